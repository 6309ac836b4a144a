package audio

import (
	"testing"
)

func TestIsWSL(t *testing.T) {
	tests := []struct {
		name           string
		procVersion    string
		wslEnv         string
		expectedResult bool
	}{
		{
			name:           "WSL1 detected via /proc/version",
			procVersion:    "Linux version 4.4.0-19041-Microsoft (Microsoft@Microsoft.com) (gcc version 5.4.0 (Ubuntu 5.4.0-6ubuntu1~16.04.12) ) #1237-Microsoft Sat Sep 11 14:32:00 PST 2021",
			expectedResult: true,
		},
		{
			name:           "WSL2 detected via /proc/version",
			procVersion:    "Linux version 5.15.74.2-microsoft-standard-WSL2 (gcc (GCC) 11.2.0) #1 SMP Wed Oct 5 20:57:03 UTC 2022",
			expectedResult: true,
		},
		{
			name:           "WSL detected via WSL_DISTRO_NAME env var",
			wslEnv:         "Ubuntu",
			expectedResult: true,
		},
		{
			name:           "Native Linux",
			procVersion:    "Linux version 5.15.0-56-generic (buildd@lcy02-amd64-044) (gcc (Ubuntu 11.3.0-1ubuntu1~22.04) #62-Ubuntu SMP Tue Nov 22 19:54:14 UTC 2022",
			expectedResult: false,
		},
		{
			name:           "Empty proc version and no env var",
			expectedResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := detectWSLFromData(tt.procVersion, tt.wslEnv)
			if result != tt.expectedResult {
				t.Errorf("expected %v, got %v", tt.expectedResult, result)
			}
		})
	}
}

func TestAutoBackendOrder(t *testing.T) {
	native := autoBackendOrder(false)
	if native[0] != BackendMalgo || native[len(native)-1] != BackendNull {
		t.Errorf("unexpected native order: %v", native)
	}

	wsl := autoBackendOrder(true)
	if wsl[0] != BackendOto || wsl[len(wsl)-1] != BackendNull {
		t.Errorf("unexpected WSL order: %v", wsl)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %s", got)
	}
	if got := truncateString("ab", 3); got != "ab" {
		t.Errorf("expected ab, got %s", got)
	}
}
