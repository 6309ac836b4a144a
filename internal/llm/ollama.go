package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrGenerationFailed covers every failure talking to the model server
var ErrGenerationFailed = errors.New("llm generation failed")

var errStalled = errors.New("ollama stopped responding")

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3.2:latest"
	DefaultTimeout  = 30 * time.Second
)

// Ollama streams completions from a local Ollama server
type Ollama struct {
	Endpoint string
	Model    string
	System   string
	// Timeout bounds the wait for the first chunk and between chunks, not the
	// whole generation; time spent in the consumer is not counted. Zero means DefaultTimeout.
	Timeout time.Duration
	Client  *http.Client
}

// NewOllama returns a client with defaults filled in for empty fields
func NewOllama(endpoint, model, system string, timeout time.Duration) *Ollama {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ollama{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Model:    model,
		System:   system,
		Timeout:  timeout,
		Client:   http.DefaultClient,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
	EvalCount int    `json:"eval_count,omitempty"`
}

// Stream posts prompt to /api/generate and hands every non-empty text chunk
// to consumer in order. It returns when the server reports done:true.
// An error from consumer aborts the stream and is returned unwrapped.
func (o *Ollama) Stream(ctx context.Context, prompt string, consumer func(chunk string) error) error {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(timeout, func() { cancel(errStalled) })
	defer idle.Stop()

	body, err := json.Marshal(generateRequest{
		Model:  o.Model,
		Prompt: prompt,
		System: o.System,
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return o.wrap(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: ollama returned status %s", ErrGenerationFailed, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		idle.Stop()
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("%w: decode chunk: %v", ErrGenerationFailed, err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("%w: %s", ErrGenerationFailed, chunk.Error)
		}
		if chunk.Response != "" {
			if err := consumer(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			slog.Debug("ollama generation complete",
				"model", o.Model,
				"eval_count", chunk.EvalCount,
				"duration", time.Since(start))
			return nil
		}
		idle.Reset(timeout)
	}
	if err := scanner.Err(); err != nil {
		return o.wrap(ctx, err)
	}
	return fmt.Errorf("%w: stream ended without done", ErrGenerationFailed)
}

// wrap keeps stalls and deadline errors classifiable as timeouts
func (o *Ollama) wrap(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errStalled) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("ollama request: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}
