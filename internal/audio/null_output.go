package audio

import (
	"log/slog"
	"sync"
	"time"
)

// nullChunk is how much audio the null device consumes per step
const nullChunk = 20 * time.Millisecond

// NullOutput discards audio while pacing consumption like a real device.
// Speed above 1 drains faster than real time.
type NullOutput struct {
	Speed  float64
	volume float32
}

// NewNullOutput creates an output that needs no audio hardware
func NewNullOutput(volume float32) *NullOutput {
	return &NullOutput{Speed: 1, volume: volume}
}

// Name returns the backend name
func (o *NullOutput) Name() string {
	return BackendNull
}

// OpenSink starts a pacing goroutine that drains the sink's feed
func (o *NullOutput) OpenSink(format Format) (Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	speed := o.Speed
	if speed <= 0 {
		speed = 1
	}

	s := &nullSink{
		feed: newFeed(format, o.volume),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	frames := int(format.SampleRate) * int(nullChunk) / int(time.Second)
	if frames < 1 {
		frames = 1
	}
	step := time.Duration(float64(nullChunk) / speed)

	go s.run(make([]byte, frames*format.BytesPerFrame()), step)

	slog.Debug("null sink opened", "sample_rate", format.SampleRate, "speed", speed)
	return s, nil
}

// Close is a no-op
func (o *NullOutput) Close() error {
	return nil
}

type nullSink struct {
	feed     *feed
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *nullSink) run(buf []byte, step time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			// Keep pacing after drain so late appends still play
			s.feed.fill(buf)
		}
	}
}

func (s *nullSink) Append(src Source) error {
	return s.feed.attach(src)
}

func (s *nullSink) Pause() error {
	if s.feed.isStopped() {
		return ErrSinkStopped
	}
	s.feed.setPaused(true)
	return nil
}

func (s *nullSink) Resume() error {
	if s.feed.isStopped() {
		return ErrSinkStopped
	}
	s.feed.setPaused(false)
	return nil
}

func (s *nullSink) Stop() error {
	s.feed.stop()
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
	return nil
}

func (s *nullSink) IsEmpty() bool {
	return s.feed.drained()
}

func (s *nullSink) Err() error {
	return s.feed.error()
}

func (s *nullSink) FramesPlayed() uint64 {
	return s.feed.framesPlayed()
}
