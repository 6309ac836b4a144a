package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"murmur.click/internal/audio"
)

// Manager errors
var (
	ErrUnknownHandle  = errors.New("unknown playback handle")
	ErrQueueFull      = errors.New("playback queue is full")
	ErrManagerStopped = errors.New("playback manager is not running")
	ErrManagerFailed  = errors.New("playback manager failed")
	ErrAlreadyRunning = errors.New("playback manager already running")
)

const (
	maxTickInterval   = 50 * time.Millisecond
	defaultTick       = 20 * time.Millisecond
	defaultQueueCap   = 64
	defaultMaxPending = 256
	defaultRetention  = 2 * time.Second
)

// Decoder turns a container buffer into a PCM source
type Decoder interface {
	Decode(data []byte) (audio.Source, error)
}

// Options tunes the manager
type Options struct {
	// QueueCapacity bounds the command channel
	QueueCapacity int
	// MaxPending bounds queued playbacks; 0 means no limit beyond memory
	MaxPending int
	// TickInterval is how often the active sink is polled; at most 50ms
	TickInterval time.Duration
	// Retention keeps terminal entries queryable; they always survive at least one tick
	Retention time.Duration
	// Meter records playback metrics; nil uses the global meter provider
	Meter metric.Meter
	// OnTransition observes every state change on the manager goroutine; it must not block
	OnTransition func(Transition)
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		QueueCapacity: defaultQueueCap,
		MaxPending:    defaultMaxPending,
		TickInterval:  defaultTick,
		Retention:     defaultRetention,
	}
}

func (o Options) normalized() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = defaultQueueCap
	}
	if o.MaxPending < 0 {
		o.MaxPending = 0
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTick
	}
	if o.TickInterval > maxTickInterval {
		slog.Warn("clamping playback tick interval", "requested", o.TickInterval, "max", maxTickInterval)
		o.TickInterval = maxTickInterval
	}
	if o.Retention < 0 {
		o.Retention = 0
	}
	return o
}

// Manager is the single owner of every playback and its sink.
// All state below commands is touched only by the Run goroutine.
type Manager struct {
	output   audio.Output
	decoder  Decoder
	opts     Options
	metrics  *metrics
	commands chan command
	done     chan struct{}
	running  atomic.Bool
	err      error

	entries map[Handle]*entry
	queue   []Handle
	active  *entry
	next    Handle
	seq     uint64
	ticks   uint64
}

// NewManager creates a manager that opens sinks on output and decodes with decoder
func NewManager(output audio.Output, decoder Decoder, opts Options) *Manager {
	opts = opts.normalized()

	slog.Debug("creating playback manager",
		"output", output.Name(),
		"queue_capacity", opts.QueueCapacity,
		"max_pending", opts.MaxPending,
		"tick_interval", opts.TickInterval,
		"retention", opts.Retention)

	return &Manager{
		output:   output,
		decoder:  decoder,
		opts:     opts,
		metrics:  newMetrics(opts.Meter),
		commands: make(chan command, opts.QueueCapacity),
		done:     make(chan struct{}),
		entries:  make(map[Handle]*entry),
	}
}

// Play enqueues buf for playback and returns its handle.
// It never blocks on a saturated queue; ErrQueueFull tells the caller to back off.
// Cancelling ctx after the command was accepted does not cancel the playback.
func (m *Manager) Play(ctx context.Context, buf []byte) (Handle, error) {
	if err := m.Err(); err != nil {
		return 0, err
	}

	cmd := newCommand(cmdPlay, 0, buf)
	select {
	case m.commands <- cmd:
	default:
		m.metrics.reject("channel")
		slog.Warn("play rejected, command queue saturated", "capacity", cap(m.commands))
		return 0, ErrQueueFull
	}

	r, err := m.await(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return r.handle, r.err
}

// Stop terminates the playback now
func (m *Manager) Stop(ctx context.Context, h Handle) (Status, error) {
	return m.control(ctx, cmdStop, h)
}

// Pause pauses a playing entry, or marks a queued one to start paused
func (m *Manager) Pause(ctx context.Context, h Handle) (Status, error) {
	return m.control(ctx, cmdPause, h)
}

// Resume continues a paused entry, or clears a queued entry's deferred pause
func (m *Manager) Resume(ctx context.Context, h Handle) (Status, error) {
	return m.control(ctx, cmdResume, h)
}

// Status returns the state of h; terminal entries resolve until purged
func (m *Manager) Status(ctx context.Context, h Handle) (Status, error) {
	return m.control(ctx, cmdStatus, h)
}

// List returns every entry still known to the manager, ordered by handle
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	cmd := newCommand(cmdList, 0, nil)
	if err := m.submit(ctx, cmd); err != nil {
		return nil, err
	}
	r, err := m.await(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return r.list, r.err
}

// Done is closed once Run has returned
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the manager's fatal error, or ErrManagerStopped after a clean shutdown
func (m *Manager) Err() error {
	select {
	case <-m.done:
		if m.err != nil {
			return m.err
		}
		return ErrManagerStopped
	default:
		return nil
	}
}

// Healthy reports whether the manager has not failed
func (m *Manager) Healthy() bool {
	return m.Err() == nil
}

func (m *Manager) control(ctx context.Context, kind commandKind, h Handle) (Status, error) {
	cmd := newCommand(kind, h, nil)
	if err := m.submit(ctx, cmd); err != nil {
		return Status{}, err
	}
	r, err := m.await(ctx, cmd)
	if err != nil {
		return Status{}, err
	}
	return r.status, r.err
}

func (m *Manager) submit(ctx context.Context, cmd command) error {
	if err := m.Err(); err != nil {
		return err
	}
	select {
	case m.commands <- cmd:
		return nil
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) await(ctx context.Context, cmd command) (result, error) {
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-m.done:
		// The reply may have raced with shutdown
		select {
		case r := <-cmd.reply:
			return r, nil
		default:
			return result{}, m.Err()
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// Run is the manager goroutine. It returns nil when ctx ends, after stopping
// every live playback, and ErrManagerFailed if its invariants were broken.
func (m *Manager) Run(ctx context.Context) (err error) {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("playback manager panicked", "panic", r, "stack", string(debug.Stack()))
			m.releaseAll()
			err = fmt.Errorf("%w: %v", ErrManagerFailed, r)
			m.err = err
		}
		close(m.done)
	}()

	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	slog.Info("playback manager started", "output", m.output.Name())

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			slog.Info("playback manager stopped")
			return nil
		case cmd := <-m.commands:
			m.handle(cmd)
		case <-ticker.C:
			m.tick()
		}
		m.advance()
	}
}

func (m *Manager) handle(cmd command) {
	var r result

	switch cmd.kind {
	case cmdPlay:
		r.handle, r.err = m.accept(cmd.buf)
	case cmdStop:
		r.status, r.err = m.stop(cmd.handle)
	case cmdPause:
		r.status, r.err = m.pause(cmd.handle)
	case cmdResume:
		r.status, r.err = m.resume(cmd.handle)
	case cmdStatus:
		r.status, r.err = m.status(cmd.handle)
	case cmdList:
		r.list = m.list()
	default:
		r.err = fmt.Errorf("unknown command %v", cmd.kind)
	}

	if r.err != nil {
		slog.Debug("command rejected", "command", cmd.kind, "handle", cmd.handle, "error", r.err)
	}
	cmd.reply <- r
}

func (m *Manager) accept(buf []byte) (Handle, error) {
	if m.opts.MaxPending > 0 && len(m.queue) >= m.opts.MaxPending {
		m.metrics.reject("pending")
		slog.Warn("play rejected, too many queued playbacks", "pending", len(m.queue))
		return 0, ErrQueueFull
	}

	m.seq++
	e := &entry{
		id:        m.next,
		seq:       m.seq,
		state:     StateQueued,
		buf:       buf,
		createdAt: time.Now(),
	}
	m.next++

	m.entries[e.id] = e
	m.metrics.transition(StateQueued)

	// Nothing to play: finish now instead of waiting behind the active entry
	if len(buf) == 0 {
		slog.Debug("empty buffer, nothing to play", "handle", e.id)
		m.finish(e, StateFinished, nil)
		return e.id, nil
	}

	m.queue = append(m.queue, e.id)
	m.metrics.queued(1)

	slog.Info("playback accepted", "handle", e.id, "size_bytes", len(buf), "queued", len(m.queue))
	return e.id, nil
}

// live returns the entry for h if it can still accept commands
func (m *Manager) live(h Handle) (*entry, error) {
	e, ok := m.entries[h]
	if !ok || e.state.Terminal() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e, nil
}

func (m *Manager) stop(h Handle) (Status, error) {
	e, err := m.live(h)
	if err != nil {
		return Status{}, err
	}

	if e.state == StateQueued {
		e.cancelled = true
	}
	m.finish(e, StateStopped, nil)
	return e.status(), nil
}

func (m *Manager) pause(h Handle) (Status, error) {
	e, err := m.live(h)
	if err != nil {
		return Status{}, err
	}

	switch e.state {
	case StateQueued:
		e.deferredPause = true
		slog.Debug("pause deferred until promotion", "handle", h)
	case StatePlaying:
		if err := e.sink.Pause(); err != nil {
			m.finish(e, StateFailed, fmt.Errorf("%w: pause: %v", audio.ErrDeviceUnavailable, err))
			return e.status(), e.err
		}
		m.transition(e, StatePaused)
	}
	return e.status(), nil
}

func (m *Manager) resume(h Handle) (Status, error) {
	e, err := m.live(h)
	if err != nil {
		return Status{}, err
	}

	switch e.state {
	case StateQueued:
		e.deferredPause = false
	case StatePaused:
		if err := e.sink.Resume(); err != nil {
			m.finish(e, StateFailed, fmt.Errorf("%w: resume: %v", audio.ErrDeviceUnavailable, err))
			return e.status(), e.err
		}
		m.transition(e, StatePlaying)
	}
	return e.status(), nil
}

func (m *Manager) status(h Handle) (Status, error) {
	e, ok := m.entries[h]
	if !ok {
		return Status{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e.status(), nil
}

func (m *Manager) list() []Status {
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// tick polls the active sink and purges expired terminal entries
func (m *Manager) tick() {
	m.ticks++

	if e := m.active; e != nil && e.state == StatePlaying {
		if err := e.sink.Err(); err != nil {
			m.finish(e, StateFailed, err)
		} else if e.sink.IsEmpty() {
			m.finish(e, StateFinished, nil)
		}
	}

	now := time.Now()
	for h, e := range m.entries {
		if e.state.Terminal() && m.ticks > e.endedTick && now.Sub(e.endedAt) >= m.opts.Retention {
			delete(m.entries, h)
			slog.Debug("playback purged", "handle", h)
		}
	}
}

// advance promotes queued entries while the active slot is empty
func (m *Manager) advance() {
	for m.active == nil && len(m.queue) > 0 {
		h := m.queue[0]
		m.queue = m.queue[1:]
		m.metrics.queued(-1)

		if e, ok := m.entries[h]; ok && e.state == StateQueued {
			m.promote(e)
		}
	}
}

func (m *Manager) promote(e *entry) {
	buf := e.buf
	e.buf = nil

	src, err := m.decoder.Decode(buf)
	if err != nil {
		slog.Warn("decode failed on promotion", "handle", e.id, "error", err)
		m.finish(e, StateFailed, err)
		return
	}

	sink, err := m.output.OpenSink(src.Format())
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		slog.Error("failed to open sink", "handle", e.id, "error", err)
		m.finish(e, StateFailed, err)
		return
	}
	e.sink = sink

	if e.deferredPause {
		if err := sink.Pause(); err != nil {
			m.finish(e, StateFailed, fmt.Errorf("%w: pause: %v", audio.ErrDeviceUnavailable, err))
			return
		}
	}

	if err := sink.Append(src); err != nil {
		slog.Error("failed to attach source", "handle", e.id, "error", err)
		m.finish(e, StateFailed, err)
		return
	}

	m.active = e
	e.startedAt = time.Now()

	if e.deferredPause {
		e.deferredPause = false
		m.transition(e, StatePaused)
		return
	}

	m.metrics.started(e.startedAt.Sub(e.createdAt))
	m.transition(e, StatePlaying)
}

// finish moves e to a terminal state and releases its sink before returning
func (m *Manager) finish(e *entry, to State, err error) {
	if e.sink != nil {
		e.framesPlayed = e.sink.FramesPlayed()
		if stopErr := e.sink.Stop(); stopErr != nil {
			slog.Warn("error releasing sink", "handle", e.id, "error", stopErr)
		}
		e.sink = nil
	}

	if m.active == e {
		m.active = nil
	}

	if e.state == StateQueued {
		m.dequeue(e.id)
	}

	e.buf = nil
	e.err = err
	e.endedAt = time.Now()
	e.endedTick = m.ticks
	m.transition(e, to)
}

func (m *Manager) dequeue(h Handle) {
	for i, queued := range m.queue {
		if queued == h {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.metrics.queued(-1)
			return
		}
	}
}

func (m *Manager) transition(e *entry, to State) {
	from := e.state
	e.state = to

	attrs := []any{"handle", e.id, "from", from, "to", to}
	if e.err != nil {
		attrs = append(attrs, "error", e.err)
	}
	slog.Info("playback transition", attrs...)

	m.metrics.transition(to)
	if m.opts.OnTransition != nil {
		m.opts.OnTransition(Transition{Handle: e.id, From: from, To: to, At: time.Now()})
	}
}

// shutdown stops every live playback on a clean exit
func (m *Manager) shutdown() {
	for _, e := range m.entries {
		if !e.state.Terminal() {
			m.finish(e, StateStopped, nil)
		}
	}
	m.queue = nil
}

// releaseAll is the panic path: it frees every sink without trusting the rest of the state
func (m *Manager) releaseAll() {
	for _, e := range m.entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("failed to release sink after panic", "handle", e.id, "panic", r)
				}
			}()
			if e.sink != nil {
				e.sink.Stop()
				e.sink = nil
			}
		}()
	}
}
