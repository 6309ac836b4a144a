//go:build !cgo

package audio

import (
	"errors"
	"fmt"
)

var errCGORequired = errors.New(`the malgo and oto audio backends require CGO support.

This error occurs when murmur was built without CGO enabled.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential libasound2-dev
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then run: go install murmur.click@latest

Use --backend null to run without audio output.`)

func newMalgoOutput(volume float32) (Output, error) {
	return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, errCGORequired)
}

func newOtoOutput(volume float32) (Output, error) {
	return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, errCGORequired)
}
