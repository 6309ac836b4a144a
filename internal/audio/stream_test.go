package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestStreamerReaderRoundTrip(t *testing.T) {
	format := Format{SampleRate: otoSampleRate, Channels: 2, Sample: SampleS16}
	values := []int16{0, 1000, -1000, 16000, -16000, 32000, -32000, 5, -5, 12345}

	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	f := newFeed(format, 1.0)
	f.attach(newFrameReader(format, bytes.NewReader(pcm)))

	reader := newStreamerReader(&feedStreamer{feed: f, format: format})
	out, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("expected %d bytes, got %d", len(pcm), len(out))
	}

	for i, want := range values {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if diff := int(got) - int(want); diff > 1 || diff < -1 {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestFeedStreamerMonoDuplicatesChannel(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 1, Sample: SampleS16}
	pcm := make([]byte, 2)
	binary.LittleEndian.PutUint16(pcm, uint16(16384))

	f := newFeed(format, 1.0)
	f.attach(newFrameReader(format, bytes.NewReader(pcm)))

	s := &feedStreamer{feed: f, format: format}
	samples := make([][2]float64, 4)
	n, ok := s.Stream(samples)
	if n != 1 || !ok {
		t.Fatalf("expected one frame, got %d %v", n, ok)
	}
	if samples[0][0] != samples[0][1] || samples[0][0] <= 0.49 || samples[0][0] >= 0.51 {
		t.Errorf("expected both channels near 0.5, got %v", samples[0])
	}

	if n, ok := s.Stream(samples); n != 0 || ok {
		t.Errorf("expected end of stream, got %d %v", n, ok)
	}
}

func TestFeedStreamerPausedYieldsSilence(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 2, Sample: SampleS16}
	f := newFeed(format, 1.0)
	f.attach(newFrameReader(format, bytes.NewReader(rampPCM(50))))
	f.setPaused(true)

	s := &feedStreamer{feed: f, format: format}
	samples := make([][2]float64, 8)
	samples[3] = [2]float64{1, 1}

	n, ok := s.Stream(samples)
	if n != len(samples) || !ok {
		t.Fatalf("paused streamer should stay alive, got %d %v", n, ok)
	}
	if samples[3] != [2]float64{} {
		t.Errorf("expected silence, got %v", samples[3])
	}
	if f.framesPlayed() != 0 {
		t.Errorf("no frames should be consumed while paused, got %d", f.framesPlayed())
	}
}
