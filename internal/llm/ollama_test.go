package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjsonServer(t *testing.T, lines ...string) (*httptest.Server, *generateRequest) {
	t.Helper()
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestStreamDeliversChunksInOrder(t *testing.T) {
	srv, got := ndjsonServer(t,
		`{"response":"Hello","done":false}`,
		``,
		`{"response":" world.","done":false}`,
		`{"response":"","done":true,"eval_count":2}`,
	)

	o := NewOllama(srv.URL+"/", "tiny", "be brief", time.Second)
	var chunks []string
	err := o.Stream(context.Background(), "say hi", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world."}, chunks)
	assert.Equal(t, "tiny", got.Model)
	assert.Equal(t, "say hi", got.Prompt)
	assert.Equal(t, "be brief", got.System)
	assert.True(t, got.Stream)
}

func TestStreamStopsAtDone(t *testing.T) {
	srv, _ := ndjsonServer(t,
		`{"response":"one","done":true}`,
		`{"response":"two","done":false}`,
	)

	var chunks []string
	err := NewOllama(srv.URL, "", "", 0).Stream(context.Background(), "p", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, chunks)
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"missing done", []string{`{"response":"a","done":false}`}},
		{"bad json", []string{`{"response":`}},
		{"server error field", []string{`{"error":"model not found"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := ndjsonServer(t, tt.lines...)
			err := NewOllama(srv.URL, "", "", time.Second).Stream(context.Background(), "p", func(string) error { return nil })
			assert.ErrorIs(t, err, ErrGenerationFailed)
		})
	}
}

func TestStreamHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewOllama(srv.URL, "", "", time.Second).Stream(context.Background(), "p", func(string) error { return nil })
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "500")
}

func TestStreamConsumerErrorAborts(t *testing.T) {
	srv, _ := ndjsonServer(t,
		`{"response":"a","done":false}`,
		`{"response":"b","done":true}`,
	)
	stop := errors.New("enough")

	calls := 0
	err := NewOllama(srv.URL, "", "", time.Second).Stream(context.Background(), "p", func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := NewOllama(srv.URL, "", "", 20*time.Millisecond).Stream(context.Background(), "p", func(string) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, strings.Contains(err.Error(), ErrGenerationFailed.Error()))
}

func TestNewOllamaDefaults(t *testing.T) {
	o := NewOllama("", "", "", 0)
	assert.Equal(t, DefaultEndpoint, o.Endpoint)
	assert.Equal(t, DefaultModel, o.Model)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}

// pacedServer flushes one line every gap, then holds the connection open
func pacedServer(t *testing.T, gap time.Duration, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			flusher.Flush()
			select {
			case <-time.After(gap):
			case <-r.Context().Done():
				return
			}
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamTimeoutIsPerChunk(t *testing.T) {
	var lines []string
	for i := 0; i < 14; i++ {
		lines = append(lines, fmt.Sprintf(`{"response":"w%d ","done":false}`, i))
	}
	lines = append(lines, `{"response":"end","done":true}`)
	srv := pacedServer(t, 20*time.Millisecond, lines...)

	var got []string
	start := time.Now()
	err := NewOllama(srv.URL, "", "", 200*time.Millisecond).Stream(context.Background(), "p", func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 15)
	assert.Greater(t, time.Since(start), 200*time.Millisecond, "the whole stream outlasted the timeout")
}

func TestStreamSlowConsumerDoesNotTimeOut(t *testing.T) {
	srv, _ := ndjsonServer(t,
		`{"response":"a","done":false}`,
		`{"response":"b","done":false}`,
		`{"response":"c","done":true}`,
	)

	var got []string
	err := NewOllama(srv.URL, "", "", 50*time.Millisecond).Stream(context.Background(), "p", func(c string) error {
		time.Sleep(80 * time.Millisecond)
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStreamStallAfterFirstChunk(t *testing.T) {
	srv := pacedServer(t, time.Millisecond, `{"response":"first ","done":false}`)

	var got []string
	err := NewOllama(srv.URL, "", "", 50*time.Millisecond).Stream(context.Background(), "p", func(c string) error {
		got = append(got, c)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, []string{"first "}, got)
}

func TestStreamParentDeadline(t *testing.T) {
	srv := pacedServer(t, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := NewOllama(srv.URL, "", "", time.Minute).Stream(ctx, "p", func(string) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
