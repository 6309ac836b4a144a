package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

var stereo16 = Format{SampleRate: 8000, Channels: 2, Sample: SampleS16}

func rampPCM(frames int) []byte {
	pcm := make([]byte, frames*4)
	for i := 0; i < frames*2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i)))
	}
	return pcm
}

func TestFeedPauseResumeContinuity(t *testing.T) {
	pcm := rampPCM(100)
	f := newFeed(stereo16, 1.0)
	if err := f.attach(newFrameReader(stereo16, bytes.NewReader(pcm))); err != nil {
		t.Fatalf("attach: %v", err)
	}

	var played []byte
	buf := make([]byte, 40)

	n, done := f.fill(buf)
	played = append(played, buf[:n]...)
	if n != 40 || done {
		t.Fatalf("expected 40 bytes and not done, got %d %v", n, done)
	}

	f.setPaused(true)
	for i := 0; i < 3; i++ {
		buf[0] = 0xFF
		n, done = f.fill(buf)
		if n != 0 || done {
			t.Fatalf("paused feed should emit nothing: %d %v", n, done)
		}
		if buf[0] != 0 {
			t.Fatal("paused feed should write silence")
		}
	}

	f.setPaused(false)
	for !done {
		n, done = f.fill(buf)
		played = append(played, buf[:n]...)
	}

	if !bytes.Equal(played, pcm) {
		t.Error("audio after resume is not continuous with audio before pause")
	}
	if f.framesPlayed() != 100 {
		t.Errorf("expected 100 frames played, got %d", f.framesPlayed())
	}
	if !f.drained() {
		t.Error("feed should be drained")
	}
}

func TestFeedZeroPadsTail(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(2))))

	buf := bytes.Repeat([]byte{0xAA}, 32)
	n, done := f.fill(buf)
	if n != 8 || !done {
		t.Fatalf("expected 8 bytes and done, got %d %v", n, done)
	}
	for i, b := range buf[n:] {
		if b != 0 {
			t.Fatalf("byte %d after audio should be silence, got %x", n+i, b)
		}
	}
}

func TestFeedMultipleSources(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(3))))
	f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(5))))

	buf := make([]byte, 64)
	n, done := f.fill(buf)
	if n != 32 || !done {
		t.Errorf("expected both sources in one fill, got %d %v", n, done)
	}
}

func TestFeedStop(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(100))))

	if !f.stop() {
		t.Error("first stop should report it stopped the feed")
	}
	if f.stop() {
		t.Error("second stop should be a no-op")
	}

	n, done := f.fill(make([]byte, 16))
	if n != 0 || !done {
		t.Errorf("stopped feed should be done with no audio, got %d %v", n, done)
	}

	err := f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(1))))
	if !errors.Is(err, ErrSinkStopped) {
		t.Errorf("expected ErrSinkStopped, got %v", err)
	}
}

func TestFeedFormatMismatch(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	mono := Format{SampleRate: 8000, Channels: 1, Sample: SampleS16}

	err := f.attach(newFrameReader(mono, bytes.NewReader(nil)))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

type failingSource struct {
	format Format
	reads  int
}

func (s *failingSource) Format() Format { return s.format }

func (s *failingSource) Read(p []byte) (int, error) {
	s.reads++
	if s.reads == 1 {
		return 4, nil
	}
	return 0, errors.New("bitstream error")
}

func TestFeedRecordsMidStreamError(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	f.attach(&failingSource{format: stereo16})

	n, done := f.fill(make([]byte, 16))
	if n != 4 || !done {
		t.Errorf("expected 4 bytes then done, got %d %v", n, done)
	}
	if f.error() == nil {
		t.Error("expected recorded error")
	}
}

func TestFeedFailIgnoredAfterDrain(t *testing.T) {
	f := newFeed(stereo16, 1.0)
	f.fail(ErrDeviceUnavailable)
	if f.error() != nil {
		t.Error("device failure with nothing left to play should be ignored")
	}

	f.attach(newFrameReader(stereo16, bytes.NewReader(rampPCM(10))))
	f.fail(ErrDeviceUnavailable)
	if !errors.Is(f.error(), ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", f.error())
	}
}

func TestApplyVolumeToSamples(t *testing.T) {
	t.Run("s16", func(t *testing.T) {
		samples := make([]byte, 4)
		binary.LittleEndian.PutUint16(samples, uint16(int16(1000)))
		neg := int16(-1000)
		binary.LittleEndian.PutUint16(samples[2:], uint16(neg))

		applyVolumeToSamples(samples, SampleS16, 0.5)

		if got := int16(binary.LittleEndian.Uint16(samples)); got != 500 {
			t.Errorf("expected 500, got %d", got)
		}
		if got := int16(binary.LittleEndian.Uint16(samples[2:])); got != -500 {
			t.Errorf("expected -500, got %d", got)
		}
	})

	t.Run("s24 negative", func(t *testing.T) {
		// -2 in 24-bit little endian
		samples := []byte{0xFE, 0xFF, 0xFF}
		applyVolumeToSamples(samples, SampleS24, 0.5)
		if !bytes.Equal(samples, []byte{0xFF, 0xFF, 0xFF}) {
			t.Errorf("expected -1, got %x", samples)
		}
	})

	t.Run("f32", func(t *testing.T) {
		samples := make([]byte, 4)
		binary.LittleEndian.PutUint32(samples, math.Float32bits(0.8))
		applyVolumeToSamples(samples, SampleF32, 0.25)
		got := math.Float32frombits(binary.LittleEndian.Uint32(samples))
		if math.Abs(float64(got)-0.2) > 1e-6 {
			t.Errorf("expected 0.2, got %f", got)
		}
	})
}

func TestFeedAppliesVolume(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm, 400)
	binary.LittleEndian.PutUint16(pcm[2:], 800)

	f := newFeed(stereo16, 0.5)
	f.attach(newFrameReader(stereo16, bytes.NewReader(pcm)))

	buf := make([]byte, 4)
	f.fill(buf)

	if got := binary.LittleEndian.Uint16(buf); got != 200 {
		t.Errorf("expected 200, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(buf[2:]); got != 400 {
		t.Errorf("expected 400, got %d", got)
	}
}
