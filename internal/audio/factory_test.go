package audio

import (
	"errors"
	"testing"
)

type namedOutput struct {
	NullOutput
	name string
}

func (o *namedOutput) Name() string { return o.name }

func fakeConstructor(name string, fail bool) func(float32) (Output, error) {
	return func(volume float32) (Output, error) {
		if fail {
			return nil, errors.New(name + " unavailable")
		}
		return &namedOutput{name: name}, nil
	}
}

func TestOutputFactoryCreateOutput(t *testing.T) {
	testCases := []struct {
		name     string
		backend  string
		malgoErr bool
		otoErr   bool
		isWSL    bool
		expected string
		wantErr  error
	}{
		{"explicit malgo", "malgo", false, false, false, "malgo", nil},
		{"explicit oto", "oto", false, false, false, "oto", nil},
		{"explicit null", "null", true, true, false, "null", nil},
		{"explicit malgo failing", "malgo", true, false, false, "", nil},
		{"auto native prefers malgo", "auto", false, false, false, "malgo", nil},
		{"empty means auto", "", false, false, false, "malgo", nil},
		{"auto WSL prefers oto", "auto", false, false, true, "oto", nil},
		{"auto falls back to oto", "auto", true, false, false, "oto", nil},
		{"auto falls back to null", "auto", true, true, false, "null", nil},
		{"unknown backend", "pulse", false, false, false, "", ErrInvalidBackendType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			factory := NewOutputFactoryWithDependencies(1.0,
				fakeConstructor("malgo", tc.malgoErr),
				fakeConstructor("oto", tc.otoErr),
				func() bool { return tc.isWSL })

			output, err := factory.CreateOutput(tc.backend)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if tc.expected == "" {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if output.Name() != tc.expected {
				t.Errorf("expected backend %s, got %s", tc.expected, output.Name())
			}
		})
	}
}

func TestOutputFactoryIsValidBackend(t *testing.T) {
	factory := NewOutputFactory(1.0)

	for _, backend := range []string{"", "auto", "malgo", "oto", "null"} {
		if !factory.IsValidBackend(backend) {
			t.Errorf("expected %q to be valid", backend)
		}
	}
	for _, backend := range []string{"system_command", "alsa", "AUTO"} {
		if factory.IsValidBackend(backend) {
			t.Errorf("expected %q to be invalid", backend)
		}
	}
}
