package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNullSinkDrains(t *testing.T) {
	output := NewNullOutput(1.0)
	output.Speed = 50

	sink, err := output.OpenSink(stereo16)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Stop()

	// 0.5 s of audio at 50x drains in about 10 ms
	if err := sink.Append(newFrameReader(stereo16, bytes.NewReader(rampPCM(4000)))); err != nil {
		t.Fatalf("append: %v", err)
	}

	waitFor(t, 2*time.Second, sink.IsEmpty)

	if sink.FramesPlayed() != 4000 {
		t.Errorf("expected 4000 frames, got %d", sink.FramesPlayed())
	}
	if sink.Err() != nil {
		t.Errorf("unexpected error: %v", sink.Err())
	}
}

func TestNullSinkPauseHoldsPosition(t *testing.T) {
	output := NewNullOutput(1.0)
	output.Speed = 10

	sink, err := output.OpenSink(stereo16)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Stop()

	sink.Pause()
	sink.Append(newFrameReader(stereo16, bytes.NewReader(rampPCM(8000))))

	time.Sleep(30 * time.Millisecond)
	if sink.FramesPlayed() != 0 {
		t.Fatalf("paused sink consumed %d frames", sink.FramesPlayed())
	}
	if sink.IsEmpty() {
		t.Fatal("paused sink with audio should not be empty")
	}

	// Pause is idempotent
	if err := sink.Pause(); err != nil {
		t.Errorf("second pause: %v", err)
	}

	sink.Resume()
	waitFor(t, 2*time.Second, sink.IsEmpty)
	if sink.FramesPlayed() != 8000 {
		t.Errorf("expected every frame after resume, got %d", sink.FramesPlayed())
	}
}

func TestNullSinkStop(t *testing.T) {
	sink, err := NewNullOutput(1.0).OpenSink(stereo16)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	sink.Append(newFrameReader(stereo16, bytes.NewReader(rampPCM(80000))))

	if err := sink.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
	if !sink.IsEmpty() {
		t.Error("stopped sink should be empty")
	}
	if err := sink.Resume(); !errors.Is(err, ErrSinkStopped) {
		t.Errorf("expected ErrSinkStopped on resume, got %v", err)
	}
}

func TestNullOutputRejectsInvalidFormat(t *testing.T) {
	_, err := NewNullOutput(1.0).OpenSink(Format{})
	if err == nil {
		t.Error("expected error for zero format")
	}
}
