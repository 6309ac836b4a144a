package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Registry manages container decoders and picks one by sniffing magic bytes
type Registry struct {
	decoders []FormatDecoder
}

// NewRegistry creates a new empty decoder registry
func NewRegistry() *Registry {
	slog.Debug("creating new decoder registry")
	return &Registry{
		decoders: make([]FormatDecoder, 0),
	}
}

// NewDefaultRegistry creates a registry with MP3, WAV and AIFF decoders
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(NewMp3Decoder())
	registry.Register(NewWavDecoder())
	registry.Register(NewAiffDecoder())

	slog.Info("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *Registry) Register(decoder FormatDecoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, decoder)

	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// Decoders returns all registered decoders
func (r *Registry) Decoders() []FormatDecoder {
	return r.decoders
}

// SupportedFormats returns a list of all supported format names
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// Detect returns the decoder matching the container's magic bytes, or nil
func (r *Registry) Detect(data []byte) FormatDecoder {
	if len(data) == 0 {
		slog.Debug("empty content, nothing to detect")
		return nil
	}

	mtype := mimetype.Detect(data)

	slog.Debug("magic byte detection result",
		"detected_mime", mtype.String(),
		"bytes_analyzed", len(data))

	// First registered decoder has priority
	for _, decoder := range r.decoders {
		for _, mime := range decoder.MimeTypes() {
			if mtype.Is(mime) {
				return decoder
			}
		}
	}

	// mimetype reports parents of unknown audio as application/octet-stream;
	// fall back on the MIME subtype naming the format.
	lower := strings.ToLower(mtype.String())
	for _, decoder := range r.decoders {
		if strings.Contains(lower, strings.ToLower(decoder.FormatName())) {
			return decoder
		}
	}

	slog.Debug("unsupported or unrecognized magic bytes", "mime_type", mtype.String())
	return nil
}

// Decode sniffs the container and hands data to the matching decoder
func (r *Registry) Decode(data []byte) (Source, error) {
	decoder := r.Detect(data)
	if decoder == nil {
		err := fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimetype.Detect(data).String())
		slog.Error("no suitable decoder found", "size_bytes", len(data), "error", err)
		return nil, err
	}

	source, err := decoder.Decode(data)
	if err != nil {
		slog.Error("decode operation failed",
			"decoder_format", decoder.FormatName(),
			"error", err)
		return nil, err
	}

	if err := source.Format().Validate(); err != nil {
		return nil, err
	}

	slog.Debug("audio source ready",
		"decoder_format", decoder.FormatName(),
		"channels", source.Format().Channels,
		"sample_rate", source.Format().SampleRate,
		"sample_format", source.Format().Sample)

	return source, nil
}
