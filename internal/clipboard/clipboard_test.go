package clipboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		content string
		readErr error
		want    string
		wantErr error
	}{
		{name: "trims", content: "  hello there \n", want: "hello there"},
		{name: "empty", content: "", wantErr: ErrEmpty},
		{name: "whitespace only", content: " \t\n ", wantErr: ErrEmpty},
		{name: "invalid utf8 dropped", content: "ok\xff", want: "ok"},
		{name: "read failure", readErr: errors.New("xclip missing"), wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReaderFunc(func() (string, error) { return tt.content, tt.readErr })
			got, err := r.Read(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	r := NewReaderFunc(func() (string, error) {
		called = true
		return "x", nil
	})
	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
