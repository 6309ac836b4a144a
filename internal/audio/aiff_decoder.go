package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding.
// go-audio/aiff only exposes whole-buffer reads, so the PCM is materialized up front.
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance
func NewAiffDecoder() *AiffDecoder {
	slog.Debug("creating new AIFF decoder instance")
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// MimeTypes returns the MIME types this decoder handles
func (d *AiffDecoder) MimeTypes() []string {
	return []string{"audio/aiff", "audio/x-aiff"}
}

// Decode reads AIFF audio data and returns an in-memory PCM source
func (d *AiffDecoder) Decode(data []byte) (Source, error) {
	slog.Debug("starting AIFF decode operation", "size_bytes", len(data))

	if len(data) == 0 {
		slog.Error("empty AIFF data")
		return nil, fmt.Errorf("%w: empty AIFF data", ErrCorrupt)
	}

	decoder := aiff.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		slog.Error("invalid AIFF file format")
		return nil, fmt.Errorf("%w: invalid AIFF header", ErrCorrupt)
	}

	sampleRate := uint32(decoder.SampleRate)
	channels := uint32(decoder.NumChans)
	bitDepth := int(decoder.SampleBitDepth())

	slog.Debug("AIFF format detected",
		"sample_rate", sampleRate,
		"channels", channels,
		"bits_per_sample", bitDepth)

	if channels == 0 || sampleRate == 0 {
		slog.Error("invalid AIFF format parameters",
			"channels", channels,
			"sample_rate", sampleRate)
		return nil, fmt.Errorf("%w: channels %d, sample rate %d", ErrCorrupt, channels, sampleRate)
	}

	var sample SampleFormat
	switch bitDepth {
	case 16:
		sample = SampleS16
	case 24:
		sample = SampleS24
	case 32:
		sample = SampleS32
	default:
		slog.Error("unsupported bit depth", "bits", bitDepth)
		return nil, fmt.Errorf("%w: aiff with %d bits", ErrUnsupportedFormat, bitDepth)
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	rawBytes := intBufferToBytes(pcmBuffer, sample)

	slog.Debug("AIFF samples read successfully",
		"total_samples", len(pcmBuffer.Data),
		"output_bytes", len(rawBytes))

	format := Format{SampleRate: sampleRate, Channels: channels, Sample: sample}
	return &pcmSource{frameReader: newFrameReader(format, bytes.NewReader(rawBytes))}, nil
}

// intBufferToBytes packs go-audio integer samples as little-endian PCM
func intBufferToBytes(buf *goaudio.IntBuffer, sample SampleFormat) []byte {
	if buf == nil {
		return nil
	}

	bps := sample.BytesPerSample()
	out := make([]byte, len(buf.Data)*bps)

	for i, v := range buf.Data {
		dst := out[i*bps:]
		switch sample {
		case SampleS16:
			binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
		case SampleS24:
			dst[0] = byte(v)
			dst[1] = byte(v >> 8)
			dst[2] = byte(v >> 16)
		case SampleS32:
			binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
		}
	}

	return out
}

// pcmSource serves frames that were fully decoded in memory
type pcmSource struct {
	*frameReader
}
