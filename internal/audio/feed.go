package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
)

// feed is the source cursor shared by every sink backend.
// The device side calls fill; the manager side toggles the gates.
type feed struct {
	mu      sync.Mutex
	format  Format
	sources []Source
	volume  float32
	paused  bool
	stopped bool
	frames  uint64
	err     error
}

func newFeed(format Format, volume float32) *feed {
	return &feed{format: format, volume: volume}
}

func (f *feed) attach(src Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrCorrupt)
	}
	if src.Format() != f.format {
		return fmt.Errorf("%w: source format %+v does not match sink format %+v",
			ErrUnsupportedFormat, src.Format(), f.format)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return ErrSinkStopped
	}
	f.sources = append(f.sources, src)
	return nil
}

// fill writes up to len(out) bytes of audio and zero-pads the remainder.
// It returns the number of real audio bytes and whether the feed has nothing left to play.
func (f *feed) fill(out []byte) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || f.paused {
		clear(out)
		return 0, f.stopped
	}

	bpf := f.format.BytesPerFrame()
	limit := len(out) - len(out)%bpf
	n := 0

	for n < limit && len(f.sources) > 0 {
		read, err := f.sources[0].Read(out[n:limit])
		n += read
		if err == nil {
			if read == 0 {
				// A source that yields nothing without error is treated as exhausted
				f.sources = f.sources[1:]
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			slog.Error("source read failed mid-stream", "error", err)
			f.err = err
			f.sources = nil
			break
		}
		f.sources = f.sources[1:]
	}

	clear(out[n:])

	if f.volume != 1.0 {
		applyVolumeToSamples(out[:n], f.format.Sample, f.volume)
	}
	f.frames += uint64(n / bpf)

	return n, len(f.sources) == 0
}

func (f *feed) setPaused(paused bool) {
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
}

func (f *feed) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// stop drops every pending source; it reports whether this call did the stopping
func (f *feed) stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return false
	}
	f.stopped = true
	f.sources = nil
	return true
}

func (f *feed) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *feed) drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped || len(f.sources) == 0
}

// fail records a device error unless playback was already over
func (f *feed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || f.err != nil || len(f.sources) == 0 {
		return
	}
	f.err = err
}

func (f *feed) error() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *feed) framesPlayed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// applyVolumeToSamples applies volume scaling to little-endian samples in place
func applyVolumeToSamples(samples []byte, format SampleFormat, volume float32) {
	switch format {
	case SampleS16:
		for i := 0; i+1 < len(samples); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(samples[i:]))
			sample = int16(float32(sample) * volume)
			binary.LittleEndian.PutUint16(samples[i:], uint16(sample))
		}
	case SampleS24:
		for i := 0; i+2 < len(samples); i += 3 {
			sample := int32(samples[i]) | int32(samples[i+1])<<8 | int32(samples[i+2])<<16
			// Sign extend from 24-bit to 32-bit
			if sample&0x800000 != 0 {
				sample |= ^0xFFFFFF
			}
			sample = int32(float32(sample) * volume)
			samples[i] = byte(sample)
			samples[i+1] = byte(sample >> 8)
			samples[i+2] = byte(sample >> 16)
		}
	case SampleS32:
		for i := 0; i+3 < len(samples); i += 4 {
			sample := int32(binary.LittleEndian.Uint32(samples[i:]))
			sample = int32(float64(sample) * float64(volume))
			binary.LittleEndian.PutUint32(samples[i:], uint32(sample))
		}
	case SampleF32:
		for i := 0; i+3 < len(samples); i += 4 {
			sample := math.Float32frombits(binary.LittleEndian.Uint32(samples[i:]))
			binary.LittleEndian.PutUint32(samples[i:], math.Float32bits(sample*volume))
		}
	default:
		slog.Warn("volume adjustment not implemented for format", "format", format)
	}
}
