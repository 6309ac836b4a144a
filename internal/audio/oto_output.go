//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep"
)

// oto allows a single context per process, so every OtoOutput shares it
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoInitErr error
)

func sharedOtoContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		slog.Debug("initializing oto context", "sample_rate", otoSampleRate)

		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   otoSampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoInitErr = err
			return
		}
		<-ready
		otoContext = ctx
	})
	return otoContext, otoInitErr
}

// OtoOutput plays every sink through one oto player, resampled to the context rate with beep
type OtoOutput struct {
	context *oto.Context
	volume  float32
}

func newOtoOutput(volume float32) (Output, error) {
	slog.Debug("creating oto output", "volume", volume)

	ctx, err := sharedOtoContext()
	if err != nil {
		slog.Error("failed to initialize oto context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := ctx.Resume(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &OtoOutput{context: ctx, volume: volume}, nil
}

// Name returns the backend name
func (o *OtoOutput) Name() string {
	return BackendOto
}

// OpenSink creates a player whose reader pulls from a fresh feed
func (o *OtoOutput) OpenSink(format Format) (Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	f := newFeed(format, o.volume)

	var streamer beep.Streamer = &feedStreamer{feed: f, format: format}
	if format.SampleRate != otoSampleRate {
		streamer = beep.Resample(4, beep.SampleRate(format.SampleRate), otoSampleRate, streamer)
	}

	player := o.context.NewPlayer(newStreamerReader(streamer))
	player.Play()

	slog.Debug("oto player started",
		"source_rate", format.SampleRate,
		"channels", format.Channels,
		"resampled", format.SampleRate != otoSampleRate)

	return &otoSink{feed: f, player: player}, nil
}

// Close suspends the shared context
func (o *OtoOutput) Close() error {
	return o.context.Suspend()
}

type otoSink struct {
	feed   *feed
	mu     sync.Mutex
	player *oto.Player
}

func (s *otoSink) Append(src Source) error {
	return s.feed.attach(src)
}

func (s *otoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return ErrSinkStopped
	}
	s.feed.setPaused(true)
	s.player.Pause()
	return nil
}

func (s *otoSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return ErrSinkStopped
	}
	s.feed.setPaused(false)
	s.player.Play()
	return nil
}

func (s *otoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feed.stop()
	if s.player == nil {
		return nil
	}

	s.player.Pause()
	err := s.player.Close()
	s.player = nil
	return err
}

func (s *otoSink) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return true
	}
	// The player keeps buffered audio after the feed drains
	return s.feed.drained() && !s.feed.isPaused() && !s.player.IsPlaying()
}

func (s *otoSink) Err() error {
	if err := s.feed.error(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		if err := s.player.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	return nil
}

func (s *otoSink) FramesPlayed() uint64 {
	return s.feed.framesPlayed()
}
