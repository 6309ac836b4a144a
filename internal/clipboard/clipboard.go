package clipboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
)

// ErrEmpty is returned when the clipboard holds no speakable text
var ErrEmpty = errors.New("clipboard is empty")

// ErrUnavailable is returned when the system clipboard cannot be read
var ErrUnavailable = errors.New("clipboard unavailable")

// Reader reads text from the system clipboard
type Reader struct {
	read func() (string, error)
}

// NewReader returns a Reader backed by the OS clipboard
func NewReader() *Reader {
	return &Reader{read: clipboard.ReadAll}
}

// NewReaderFunc returns a Reader that calls read instead of the OS clipboard
func NewReaderFunc(read func() (string, error)) *Reader {
	return &Reader{read: read}
}

// Read returns the clipboard contents with surrounding whitespace trimmed.
// The clipboard call itself is not interruptible; ctx is checked first.
func (r *Reader) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	read := r.read
	if read == nil {
		if clipboard.Unsupported {
			return "", ErrUnavailable
		}
		read = clipboard.ReadAll
	}
	text, err := read()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
