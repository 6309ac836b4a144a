package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"murmur.click/internal/audio"
	"murmur.click/internal/clipboard"
	"murmur.click/internal/llm"
	"murmur.click/internal/narrate"
	"murmur.click/internal/playback"
	"murmur.click/internal/tts"
)

// Error kinds reported to clients
const (
	KindEmpty             = "Empty"
	KindBadRequest        = "BadRequest"
	KindUnknownHandle     = "UnknownHandle"
	KindQueueFull         = "QueueFull"
	KindSynthesisFailed   = "SynthesisFailed"
	KindTimeout           = "Timeout"
	KindDeviceUnavailable = "DeviceUnavailable"
	KindUnsupportedFormat = "UnsupportedFormat"
	KindCorrupt           = "Corrupt"
	KindForbidden         = "Forbidden"
	KindInternal          = "Internal"
)

var (
	errBadRequest = errors.New("malformed request body")
	errEmptyBody  = fmt.Errorf("%w: empty request body", narrate.ErrEmpty)
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps an error chain to an HTTP status and kind
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, narrate.ErrEmpty), errors.Is(err, clipboard.ErrEmpty):
		return http.StatusBadRequest, KindEmpty
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, KindBadRequest
	case errors.Is(err, playback.ErrUnknownHandle):
		return http.StatusNotFound, KindUnknownHandle
	case errors.Is(err, playback.ErrQueueFull):
		return http.StatusServiceUnavailable, KindQueueFull
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, KindTimeout
	case errors.Is(err, tts.ErrSynthesisFailed), errors.Is(err, llm.ErrGenerationFailed):
		return http.StatusBadGateway, KindSynthesisFailed
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, KindDeviceUnavailable
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusBadGateway, KindUnsupportedFormat
	case errors.Is(err, audio.ErrCorrupt):
		return http.StatusBadGateway, KindCorrupt
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if kind == KindQueueFull {
		w.Header().Set("Retry-After", "1")
	}

	level := slog.LevelWarn
	if status >= 500 && kind == KindInternal {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		"request_id", RequestID(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"kind", kind,
		"error", err)

	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}
