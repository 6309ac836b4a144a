//go:build cgo

package audio

import (
	"testing"
)

func TestContextLifecycle(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Skipf("no audio context available: %v", err)
	}

	if !ctx.IsValid() {
		t.Error("context should be valid after creation")
	}

	if err := ctx.Close(); err != nil {
		t.Errorf("failed to close audio context: %v", err)
	}

	if ctx.IsValid() {
		t.Error("context should be invalid after close")
	}

	// Double close should not error
	if err := ctx.Close(); err != nil {
		t.Errorf("double close should not error: %v", err)
	}
}
