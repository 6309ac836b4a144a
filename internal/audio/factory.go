package audio

import (
	"errors"
	"fmt"
	"log/slog"
)

// Backend names accepted by OutputFactory
const (
	BackendAuto  = "auto"
	BackendMalgo = "malgo"
	BackendOto   = "oto"
	BackendNull  = "null"
)

// Factory errors
var ErrInvalidBackendType = errors.New("invalid backend type")

type outputConstructor func(volume float32) (Output, error)

// OutputFactory creates Output instances based on configuration
type OutputFactory struct {
	volume    float32
	newMalgo  outputConstructor
	newOto    outputConstructor
	isWSLFunc func() bool
}

// NewOutputFactory creates a factory with real backends and platform detection
func NewOutputFactory(volume float32) *OutputFactory {
	return &OutputFactory{
		volume:    volume,
		newMalgo:  newMalgoOutput,
		newOto:    newOtoOutput,
		isWSLFunc: IsWSL,
	}
}

// NewOutputFactoryWithDependencies creates a factory with injected constructors for testing
func NewOutputFactoryWithDependencies(volume float32, newMalgo, newOto func(float32) (Output, error), isWSLFunc func() bool) *OutputFactory {
	return &OutputFactory{
		volume:    volume,
		newMalgo:  newMalgo,
		newOto:    newOto,
		isWSLFunc: isWSLFunc,
	}
}

// CreateOutput creates an Output for the named backend; "" means auto
func (f *OutputFactory) CreateOutput(backend string) (Output, error) {
	if backend == "" {
		backend = BackendAuto
	}

	slog.Debug("creating audio output", "type", backend, "volume", f.volume)

	switch backend {
	case BackendAuto:
		return f.createAutoOutput()
	case BackendMalgo, BackendOto, BackendNull:
		return f.create(backend)
	default:
		slog.Error("invalid backend type requested", "type", backend)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backend)
	}
}

// SupportedBackends returns a list of all supported backend types
func (f *OutputFactory) SupportedBackends() []string {
	return []string{BackendAuto, BackendMalgo, BackendOto, BackendNull}
}

// IsValidBackend checks if a backend type is supported
func (f *OutputFactory) IsValidBackend(backend string) bool {
	// Empty string defaults to auto
	if backend == "" {
		return true
	}
	for _, supported := range f.SupportedBackends() {
		if backend == supported {
			return true
		}
	}
	return false
}

func (f *OutputFactory) create(backend string) (Output, error) {
	switch backend {
	case BackendMalgo:
		return f.newMalgo(f.volume)
	case BackendOto:
		return f.newOto(f.volume)
	default:
		return NewNullOutput(f.volume), nil
	}
}

// createAutoOutput tries each backend in platform preference order
func (f *OutputFactory) createAutoOutput() (Output, error) {
	order := autoBackendOrder(f.isWSLFunc())
	slog.Debug("auto-detecting audio backend", "order", order)

	var errs []error
	for _, backend := range order {
		output, err := f.create(backend)
		if err == nil {
			if backend == BackendNull {
				slog.Warn("no audio device backend available, playback will be silent",
					"error", errors.Join(errs...))
			}
			slog.Info("audio backend selected", "backend", backend)
			return output, nil
		}
		slog.Warn("audio backend unavailable", "backend", backend, "error", err)
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, errors.Join(errs...))
}
