package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"murmur.click/internal/playback"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
	meterName       = "murmur.click/internal/server"
)

// Player is the playback manager as seen by HTTP handlers
type Player interface {
	Play(ctx context.Context, buf []byte) (playback.Handle, error)
	Stop(ctx context.Context, h playback.Handle) (playback.Status, error)
	Pause(ctx context.Context, h playback.Handle) (playback.Status, error)
	Resume(ctx context.Context, h playback.Handle) (playback.Status, error)
	Status(ctx context.Context, h playback.Handle) (playback.Status, error)
	List(ctx context.Context) ([]playback.Status, error)
	Healthy() bool
}

// Narrator produces and queues speech
type Narrator interface {
	SpeakClipboard(ctx context.Context) (playback.Handle, error)
	SpeakText(ctx context.Context, text string) ([]playback.Handle, error)
	SpeakPrompt(ctx context.Context, prompt string) ([]playback.Handle, error)
}

// Options configures the HTTP facade
type Options struct {
	// Metrics serves /metrics when set
	Metrics http.Handler
	// Meter records request metrics; nil uses the global meter provider
	Meter metric.Meter
	// ShutdownTimeout bounds how long in-flight requests may drain; 0 means 5s
	ShutdownTimeout time.Duration
}

// Server is the loopback HTTP facade over the playback manager
type Server struct {
	player   Player
	narrator Narrator
	handler  http.Handler
	grace    time.Duration
}

func New(player Player, narrator Narrator, opts Options) *Server {
	s := &Server{player: player, narrator: narrator, grace: opts.ShutdownTimeout}
	if s.grace <= 0 {
		s.grace = shutdownTimeout
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /speak_clipboard", s.handleSpeakClipboard)
	mux.HandleFunc("POST /speak_clipboard", s.handleSpeakClipboard)
	mux.HandleFunc("POST /speak_ollama", s.handleSpeakOllama)
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("POST /pause/{id}", s.control(player.Pause))
	mux.HandleFunc("POST /resume/{id}", s.control(player.Resume))
	mux.HandleFunc("POST /stop/{id}", s.control(player.Stop))
	mux.HandleFunc("GET /status/{id}", s.control(player.Status))
	mux.HandleFunc("GET /status", s.handleList)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	s.handler = withRequestID(newHTTPMetrics(meter).observe(loopbackOnly(mux)))
	return s
}

// Handler returns the full middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr and serves until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends. In-flight requests get a bounded grace period.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http facade listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down http facade")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		// Requests still running past the grace period are cut off; accepted
		// playbacks live in the manager and are unaffected
		slog.Warn("in-flight requests outlived shutdown grace period, closing", "grace", s.grace)
		err = srv.Close()
	}
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type handleResponse struct {
	Handle playback.Handle `json:"handle"`
}

type handlesResponse struct {
	Handles []playback.Handle `json:"handles"`
	Error   string            `json:"error,omitempty"`
	Kind    string            `json:"kind,omitempty"`
}

type listResponse struct {
	Playbacks []playback.Status `json:"playbacks"`
}

type speakRequest struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleSpeakClipboard(w http.ResponseWriter, r *http.Request) {
	h, err := s.narrator.SpeakClipboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, handleResponse{Handle: h})
}

func (s *Server) handleSpeakOllama(w http.ResponseWriter, r *http.Request) {
	prompt, err := readText(r, func(req speakRequest) string { return req.Prompt })
	if err != nil {
		writeError(w, r, err)
		return
	}
	handles, err := s.narrator.SpeakPrompt(r.Context(), prompt)
	s.writeHandles(w, r, handles, err)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	text, err := readText(r, func(req speakRequest) string { return req.Text })
	if err != nil {
		writeError(w, r, err)
		return
	}
	handles, err := s.narrator.SpeakText(r.Context(), text)
	s.writeHandles(w, r, handles, err)
}

// writeHandles reports a partial narration as success carrying the error
func (s *Server) writeHandles(w http.ResponseWriter, r *http.Request, handles []playback.Handle, err error) {
	if err != nil && len(handles) == 0 {
		writeError(w, r, err)
		return
	}
	resp := handlesResponse{Handles: handles}
	if err != nil {
		_, resp.Kind = classify(err)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) control(op func(context.Context, playback.Handle) (playback.Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := parseHandle(r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		st, err := op(r.Context(), h)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.player.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []playback.Status{}
	}
	writeJSON(w, http.StatusOK, listResponse{Playbacks: list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.player.Healthy() {
		http.Error(w, "playback manager stopped", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

// parseHandle treats malformed ids as unknown handles
func parseHandle(raw string) (playback.Handle, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", playback.ErrUnknownHandle, raw)
	}
	return playback.Handle(n), nil
}

// readText accepts a JSON string body, a JSON object, or plain text
func readText(r *http.Request, field func(speakRequest) string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	trimmed := strings.TrimSpace(string(body))

	var text string
	switch {
	case strings.HasPrefix(trimmed, `"`):
		if err := json.Unmarshal([]byte(trimmed), &text); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
	case strings.HasPrefix(trimmed, "{"):
		var req speakRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		text = field(req)
	default:
		text = trimmed
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyBody
	}
	return text, nil
}
