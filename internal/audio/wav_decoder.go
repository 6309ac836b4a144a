package audio

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/youpy/go-wav"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// Decode reads the WAV header and returns a source streaming the data chunk
func (d *WavDecoder) Decode(data []byte) (Source, error) {
	slog.Debug("starting WAV decode operation", "size_bytes", len(data))

	if len(data) == 0 {
		slog.Error("empty WAV data")
		return nil, fmt.Errorf("%w: empty WAV data", ErrCorrupt)
	}

	wavReader := wav.NewReader(bytes.NewReader(data))

	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	slog.Debug("WAV format detected",
		"audio_format", format.AudioFormat,
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	if format.NumChannels == 0 || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, fmt.Errorf("%w: channels %d, sample rate %d", ErrCorrupt, format.NumChannels, format.SampleRate)
	}

	sample, err := wavSampleFormat(format.AudioFormat, format.BitsPerSample)
	if err != nil {
		slog.Error("unsupported WAV sample layout",
			"audio_format", format.AudioFormat,
			"bits", format.BitsPerSample)
		return nil, err
	}

	pcm := Format{
		SampleRate: format.SampleRate,
		Channels:   uint32(format.NumChannels),
		Sample:     sample,
	}

	return &wavSource{frameReader: newFrameReader(pcm, wavReader)}, nil
}

func wavSampleFormat(audioFormat, bits uint16) (SampleFormat, error) {
	switch {
	case audioFormat == wavFormatPCM && bits == 16:
		return SampleS16, nil
	case audioFormat == wavFormatPCM && bits == 24:
		return SampleS24, nil
	case audioFormat == wavFormatPCM && bits == 32:
		return SampleS32, nil
	case audioFormat == wavFormatIEEEFloat && bits == 32:
		return SampleF32, nil
	default:
		return 0, fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedFormat, audioFormat, bits)
	}
}

// MimeTypes returns the MIME types this decoder handles
func (d *WavDecoder) MimeTypes() []string {
	return []string{"audio/wav", "audio/x-wav", "audio/vnd.wave", "audio/wave"}
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}

type wavSource struct {
	*frameReader
}
