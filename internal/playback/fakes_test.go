package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"murmur.click/internal/audio"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1, Sample: audio.SampleS16}

// fakeDecoder decodes any buffer into silence, one frame per two bytes.
// "corrupt" fails and "panic" panics.
type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte) (audio.Source, error) {
	switch string(data) {
	case "corrupt":
		return nil, audio.ErrCorrupt
	case "panic":
		panic("decoder exploded")
	}
	return &fakeSource{r: bytes.NewReader(make([]byte, len(data)-len(data)%2))}, nil
}

type fakeSource struct {
	r io.Reader
}

func (s *fakeSource) Format() audio.Format       { return testFormat }
func (s *fakeSource) Read(p []byte) (int, error) { return s.r.Read(p) }

// fakeSink plays nothing; tests decide when it drains
type fakeSink struct {
	mu                 sync.Mutex
	paused             bool
	stopped            bool
	empty              bool
	appended           int
	pausedBeforeAppend bool
	frames             uint64
	err                error
}

func (s *fakeSink) Append(src audio.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return audio.ErrSinkStopped
	}
	if s.appended == 0 && s.paused {
		s.pausedBeforeAppend = true
	}
	s.appended++
	return nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeSink) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.empty || s.stopped
}

func (s *fakeSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSink) FramesPlayed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *fakeSink) drain() {
	s.mu.Lock()
	s.empty = true
	s.mu.Unlock()
}

func (s *fakeSink) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSink) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSink) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// fakeOutput hands out fakeSinks and remembers them in open order
type fakeOutput struct {
	mu       sync.Mutex
	sinks    []*fakeSink
	failOpen int
}

func (o *fakeOutput) OpenSink(format audio.Format) (audio.Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpen > 0 {
		o.failOpen--
		return nil, errors.New("no such device")
	}
	s := &fakeSink{}
	o.sinks = append(o.sinks, s)
	return s, nil
}

func (o *fakeOutput) Name() string { return "fake" }
func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sinks)
}

func (o *fakeOutput) sink(i int) *fakeSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sinks[i]
}

func (o *fakeOutput) failNextOpen() {
	o.mu.Lock()
	o.failOpen++
	o.mu.Unlock()
}

// recorder observes transitions and checks that no two entries play at once
type recorder struct {
	mu         sync.Mutex
	states     map[Handle]State
	started    []Handle
	violations int
}

func newRecorder() *recorder {
	return &recorder{states: make(map[Handle]State)}
}

func (r *recorder) observe(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[tr.Handle] = tr.To
	if tr.To == StatePlaying && tr.From == StateQueued {
		r.started = append(r.started, tr.Handle)
	}

	playing := 0
	for _, s := range r.states {
		if s == StatePlaying {
			playing++
		}
	}
	if playing > 1 {
		r.violations++
	}
}

func (r *recorder) playOrder() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Handle(nil), r.started...)
}

func (r *recorder) maxPlayingViolations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations
}

type harness struct {
	m      *Manager
	out    *fakeOutput
	rec    *recorder
	cancel context.CancelFunc
	runErr chan error
}

func startManager(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		out:    &fakeOutput{},
		rec:    newRecorder(),
		runErr: make(chan error, 1),
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = 2 * time.Millisecond
	}
	if opts.Retention == 0 {
		opts.Retention = time.Minute
	}
	opts.OnTransition = h.rec.observe
	h.m = NewManager(h.out, fakeDecoder{}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.m.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.m.Done()
	})
	return h
}

func (h *harness) play(t *testing.T, buf string) Handle {
	t.Helper()
	id, err := h.m.Play(context.Background(), []byte(buf))
	require.NoError(t, err)
	return id
}

func (h *harness) waitState(t *testing.T, id Handle, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := h.m.Status(context.Background(), id)
		return err == nil && st.State == want
	}, time.Second, time.Millisecond, "handle %d never reached %s", id, want)
}

// pcmWAV builds a mono 16-bit WAV holding frames of silence
func pcmWAV(sampleRate, frames int) []byte {
	var buf bytes.Buffer
	data := frames * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data))
	buf.Write(make([]byte, data))
	return buf.Bytes()
}
