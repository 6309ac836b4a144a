package audio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/gopxl/beep"
)

// otoSampleRate is the fixed rate of the shared oto context
const otoSampleRate = 48000

// feedStreamer exposes a feed as a beep.Streamer of stereo float samples
type feedStreamer struct {
	feed   *feed
	format Format
	buf    []byte
}

func (s *feedStreamer) Stream(samples [][2]float64) (int, bool) {
	bpf := s.format.BytesPerFrame()
	need := len(samples) * bpf
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, done := s.feed.fill(buf)
	frames := n / bpf

	if frames == 0 {
		if done {
			return 0, false
		}
		// Paused: keep the stream alive with silence
		clear(samples)
		return len(samples), true
	}

	layout := beep.Format{
		NumChannels: int(s.format.Channels),
		Precision:   s.format.Sample.BytesPerSample(),
	}
	for i := 0; i < frames; i++ {
		frame := buf[i*bpf : (i+1)*bpf]
		if s.format.Sample == SampleF32 {
			samples[i] = decodeFloatFrame(frame, int(s.format.Channels))
			continue
		}
		samples[i], _ = layout.DecodeSigned(frame)
	}
	return frames, true
}

func (s *feedStreamer) Err() error {
	return s.feed.error()
}

func decodeFloatFrame(frame []byte, channels int) [2]float64 {
	left := float64(math.Float32frombits(binary.LittleEndian.Uint32(frame)))
	if channels == 1 {
		return [2]float64{left, left}
	}
	right := float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[4:])))
	return [2]float64{left, right}
}

// streamerReader encodes a beep.Streamer as interleaved stereo S16LE for oto
type streamerReader struct {
	streamer beep.Streamer
	format   beep.Format
	samples  [][2]float64
}

func newStreamerReader(s beep.Streamer) *streamerReader {
	return &streamerReader{
		streamer: s,
		format:   beep.Format{SampleRate: otoSampleRate, NumChannels: 2, Precision: 2},
	}
}

func (r *streamerReader) Read(p []byte) (int, error) {
	width := r.format.Width()
	frames := len(p) / width
	if frames == 0 {
		return 0, nil
	}
	if cap(r.samples) < frames {
		r.samples = make([][2]float64, frames)
	}

	n, ok := r.streamer.Stream(r.samples[:frames])
	if !ok && n == 0 {
		if err := r.streamer.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	off := 0
	for _, sample := range r.samples[:n] {
		off += r.format.EncodeSigned(p[off:], sample)
	}
	return off, nil
}
