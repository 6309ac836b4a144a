package audio

import (
	"errors"
	"testing"
)

func TestMp3DecoderInterface(t *testing.T) {
	decoder := NewMp3Decoder()

	var _ FormatDecoder = decoder

	if decoder.FormatName() != "MP3" {
		t.Errorf("expected format name 'MP3', got '%s'", decoder.FormatName())
	}

	found := false
	for _, mime := range decoder.MimeTypes() {
		if mime == "audio/mpeg" {
			found = true
		}
	}
	if !found {
		t.Error("expected audio/mpeg among MIME types")
	}
}

func TestMp3DecoderDecodeInvalidData(t *testing.T) {
	decoder := NewMp3Decoder()

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"text", []byte("this is not an mp3 file at all")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			source, err := decoder.Decode(tc.data)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
			if source != nil {
				t.Error("expected nil source on error")
			}
		})
	}
}
