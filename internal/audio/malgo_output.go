//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoOutput opens one miniaudio playback device per sink
type MalgoOutput struct {
	mu      sync.Mutex
	context *Context
	volume  float32
}

func newMalgoOutput(volume float32) (Output, error) {
	slog.Debug("creating malgo output", "volume", volume)

	ctx, err := NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &MalgoOutput{context: ctx, volume: volume}, nil
}

// Name returns the backend name
func (o *MalgoOutput) Name() string {
	return BackendMalgo
}

// OpenSink initializes and starts a playback device matching format
func (o *MalgoOutput) OpenSink(format Format) (Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.context == nil || !o.context.IsValid() {
		return nil, fmt.Errorf("%w: audio context closed", ErrDeviceUnavailable)
	}

	deviceFormat, err := malgoFormat(format.Sample)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = deviceFormat
	deviceConfig.Playback.Channels = format.Channels
	deviceConfig.SampleRate = format.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	slog.Debug("device configuration",
		"format", format.Sample,
		"channels", format.Channels,
		"sample_rate", format.SampleRate)

	sink := &malgoSink{feed: newFeed(format, o.volume)}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, framecount uint32) {
			// Remaining space is zero-filled by the feed; a partial buffer would crackle
			sink.feed.fill(pOutputSample)
		},
		Stop: func() {
			if sink.feed.isPaused() {
				return
			}
			sink.feed.fail(fmt.Errorf("%w: device stopped unexpectedly", ErrDeviceUnavailable))
		},
	}

	device, err := malgo.InitDevice(o.context.Raw(), deviceConfig, callbacks)
	if err != nil {
		slog.Error("failed to initialize playback device", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		slog.Error("failed to start playback device", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	sink.device = device
	slog.Debug("playback device started")
	return sink, nil
}

// Close releases the audio context; open sinks must be stopped first
func (o *MalgoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.context == nil {
		return nil
	}
	err := o.context.Close()
	o.context = nil
	return err
}

func malgoFormat(sample SampleFormat) (malgo.FormatType, error) {
	switch sample {
	case SampleS16:
		return malgo.FormatS16, nil
	case SampleS24:
		return malgo.FormatS24, nil
	case SampleS32:
		return malgo.FormatS32, nil
	case SampleF32:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: sample format %v", ErrUnsupportedFormat, sample)
	}
}

type malgoSink struct {
	feed   *feed
	mu     sync.Mutex
	device *malgo.Device
}

func (s *malgoSink) Append(src Source) error {
	return s.feed.attach(src)
}

func (s *malgoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return ErrSinkStopped
	}
	if s.feed.isPaused() {
		return nil
	}

	s.feed.setPaused(true)
	if err := s.device.Stop(); err != nil {
		slog.Warn("failed to stop device on pause", "error", err)
	}
	return nil
}

func (s *malgoSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return ErrSinkStopped
	}
	if !s.feed.isPaused() {
		return nil
	}

	if err := s.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.feed.setPaused(false)
	return nil
}

func (s *malgoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The pause gate keeps the stop callback from recording a device failure
	s.feed.setPaused(true)
	s.feed.stop()

	if s.device == nil {
		return nil
	}
	s.device.Uninit()
	s.device = nil

	slog.Debug("playback device released")
	return nil
}

func (s *malgoSink) IsEmpty() bool {
	return s.feed.drained()
}

func (s *malgoSink) Err() error {
	return s.feed.error()
}

func (s *malgoSink) FramesPlayed() uint64 {
	return s.feed.framesPlayed()
}
