package audio

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/hajimehoshi/go-mp3"
)

// Mp3Decoder handles MP3 audio format decoding
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance
func NewMp3Decoder() *Mp3Decoder {
	slog.Debug("creating new MP3 decoder instance")
	return &Mp3Decoder{}
}

// Decode prepares a streaming MP3 source; frames are decoded as they are read
func (d *Mp3Decoder) Decode(data []byte) (Source, error) {
	slog.Debug("starting MP3 decode operation", "size_bytes", len(data))

	if len(data) == 0 {
		slog.Error("empty MP3 data")
		return nil, fmt.Errorf("%w: empty MP3 data", ErrCorrupt)
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		slog.Error("invalid MP3 sample rate", "sample_rate", sampleRate)
		return nil, fmt.Errorf("%w: sample rate %d", ErrCorrupt, sampleRate)
	}

	// go-mp3 always outputs 16-bit signed stereo
	format := Format{
		SampleRate: uint32(sampleRate),
		Channels:   2,
		Sample:     SampleS16,
	}

	slog.Debug("MP3 format detected",
		"sample_rate", sampleRate,
		"channels", format.Channels,
		"decoded_bytes", decoder.Length())

	return &mp3Source{frameReader: newFrameReader(format, decoder)}, nil
}

// MimeTypes returns the MIME types this decoder handles
func (d *Mp3Decoder) MimeTypes() []string {
	return []string{"audio/mpeg", "audio/mp3", "audio/x-mpeg"}
}

// FormatName returns the name of the format this decoder handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}

type mp3Source struct {
	*frameReader
}
