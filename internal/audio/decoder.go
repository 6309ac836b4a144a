package audio

import (
	"errors"
	"fmt"
	"io"
)

// Common decoder errors
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrCorrupt           = errors.New("corrupt audio stream")
)

// SampleFormat identifies the encoding of a single PCM sample
type SampleFormat int

const (
	SampleS16 SampleFormat = iota + 1
	SampleS24
	SampleS32
	SampleF32
)

// BytesPerSample returns the size of one sample of this format
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleS16:
		return 2
	case SampleS24:
		return 3
	case SampleS32, SampleF32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleS16:
		return "s16"
	case SampleS24:
		return "s24"
	case SampleS32:
		return "s32"
	case SampleF32:
		return "f32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// Format describes interleaved little-endian PCM produced by a Source
type Format struct {
	SampleRate uint32
	Channels   uint32
	Sample     SampleFormat
}

// BytesPerFrame returns the size of one frame (one sample per channel)
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * f.Sample.BytesPerSample()
}

// Validate rejects formats no output can open
func (f Format) Validate() error {
	if f.SampleRate == 0 || f.Channels == 0 {
		return fmt.Errorf("%w: sample rate %d, channels %d", ErrCorrupt, f.SampleRate, f.Channels)
	}
	if f.Sample.BytesPerSample() == 0 {
		return fmt.Errorf("%w: sample format %v", ErrUnsupportedFormat, f.Sample)
	}
	return nil
}

// Source is a decoded PCM sample source.
// Read fills p with whole frames only and returns io.EOF once the stream is exhausted.
type Source interface {
	Format() Format
	Read(p []byte) (int, error)
}

// FormatDecoder turns one container format into a Source
type FormatDecoder interface {
	// Decode parses data and returns a Source positioned at the first frame
	Decode(data []byte) (Source, error)

	// MimeTypes lists the MIME types this decoder accepts
	MimeTypes() []string

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// frameReader adapts a byte stream of PCM into a Source that only yields whole frames
type frameReader struct {
	format Format
	r      io.Reader
	eof    bool
}

func newFrameReader(format Format, r io.Reader) *frameReader {
	return &frameReader{format: format, r: r}
}

func (fr *frameReader) Format() Format {
	return fr.format
}

func (fr *frameReader) Read(p []byte) (int, error) {
	if fr.eof {
		return 0, io.EOF
	}

	if len(p) == 0 {
		return 0, nil
	}

	bpf := fr.format.BytesPerFrame()
	p = p[:len(p)-len(p)%bpf]
	if len(p) == 0 {
		return 0, io.ErrShortBuffer
	}

	n, err := io.ReadFull(fr.r, p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// A trailing partial frame is dropped
		fr.eof = true
		n -= n % bpf
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	default:
		fr.eof = true
		return n - n%bpf, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
}
