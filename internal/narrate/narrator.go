package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"murmur.click/internal/playback"
	"murmur.click/internal/text"
)

// ErrEmpty is returned when there is nothing left to speak after cleanup
var ErrEmpty = errors.New("nothing to speak")

// errStopped ends a narration whose listener stopped one of its playbacks
var errStopped = errors.New("narration stopped")

const DefaultTimeout = 30 * time.Second

// Player accepts encoded audio for ordered playback
type Player interface {
	Play(ctx context.Context, buf []byte) (playback.Handle, error)
	Status(ctx context.Context, h playback.Handle) (playback.Status, error)
}

// Synthesizer turns text into encoded audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Generator streams model output in chunks
type Generator interface {
	Stream(ctx context.Context, prompt string, consumer func(chunk string) error) error
}

// TextSource supplies text to read aloud, e.g. the clipboard
type TextSource interface {
	Read(ctx context.Context) (string, error)
}

// Narrator synthesizes text sentence by sentence and queues each sentence for playback
type Narrator struct {
	player    Player
	synth     Synthesizer
	generator Generator
	source    TextSource

	// Timeout bounds each synthesis call
	Timeout time.Duration
	// MaxRunes caps a sentence
	MaxRunes int

	mu      sync.Mutex
	active  int
	stopped map[playback.Handle]struct{}
}

func NewNarrator(player Player, synth Synthesizer, generator Generator, source TextSource) *Narrator {
	return &Narrator{
		player:    player,
		synth:     synth,
		generator: generator,
		source:    source,
		Timeout:   DefaultTimeout,
		MaxRunes:  text.DefaultMaxRunes,
		stopped:   make(map[playback.Handle]struct{}),
	}
}

// Observe receives playback transitions. Stops seen while a narration runs are
// remembered until every narration has ended, so a stopped sentence still ends
// its narration after the player has forgotten the handle.
// It is called from the player's goroutine and never blocks on it.
func (n *Narrator) Observe(tr playback.Transition) {
	if tr.To != playback.StateStopped {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active > 0 {
		if n.stopped == nil {
			n.stopped = make(map[playback.Handle]struct{})
		}
		n.stopped[tr.Handle] = struct{}{}
	}
}

// begin marks a narration as running; the returned func ends it
func (n *Narrator) begin() func() {
	n.mu.Lock()
	n.active++
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.active--
		if n.active == 0 {
			clear(n.stopped)
		}
	}
}

func (n *Narrator) observedStop(handles []playback.Handle) (playback.Handle, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, h := range handles {
		if _, ok := n.stopped[h]; ok {
			return h, true
		}
	}
	return 0, false
}

// SpeakClipboard reads the clipboard and queues it as one playback
func (n *Narrator) SpeakClipboard(ctx context.Context) (playback.Handle, error) {
	raw, err := n.source.Read(ctx)
	if err != nil {
		return 0, err
	}
	cleaned := text.Clean(raw)
	if cleaned == "" {
		return 0, ErrEmpty
	}

	slog.Info("speaking clipboard", "runes", len([]rune(cleaned)))
	return n.speak(ctx, cleaned)
}

// SpeakText splits s into sentences and queues one playback per sentence.
// If a later sentence fails, the handles already queued are returned with the error.
func (n *Narrator) SpeakText(ctx context.Context, s string) ([]playback.Handle, error) {
	defer n.begin()()

	sp := text.NewSplitter(n.MaxRunes)
	sentences := append(sp.Write(s), sp.Flush()...)

	var handles []playback.Handle
	for _, sentence := range sentences {
		if err := n.speakNext(ctx, sentence, &handles); err != nil {
			return n.result(handles, err)
		}
	}
	return n.result(handles, nil)
}

// SpeakPrompt streams a completion for prompt and speaks each sentence as soon
// as it is complete, while the model keeps generating.
func (n *Narrator) SpeakPrompt(ctx context.Context, prompt string) ([]playback.Handle, error) {
	if prompt == "" {
		return nil, ErrEmpty
	}
	defer n.begin()()

	g, gctx := errgroup.WithContext(ctx)
	sentences := make(chan string, 4)

	g.Go(func() error {
		defer close(sentences)

		sp := text.NewSplitter(n.MaxRunes)
		send := func(segs []string) error {
			for _, s := range segs {
				select {
				case sentences <- s:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		}
		if err := n.generator.Stream(gctx, prompt, func(chunk string) error {
			return send(sp.Write(chunk))
		}); err != nil {
			return err
		}
		return send(sp.Flush())
	})

	var handles []playback.Handle
	g.Go(func() error {
		for sentence := range sentences {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := n.speakNext(gctx, sentence, &handles); err != nil {
				return err
			}
		}
		return nil
	})

	return n.result(handles, g.Wait())
}

// speakNext queues sentence unless one of the earlier handles was stopped
func (n *Narrator) speakNext(ctx context.Context, sentence string, handles *[]playback.Handle) error {
	cleaned := text.Clean(sentence)
	if cleaned == "" {
		return nil
	}
	if n.anyStopped(ctx, *handles) {
		return errStopped
	}

	h, err := n.speak(ctx, cleaned)
	if err != nil {
		return err
	}
	*handles = append(*handles, h)
	return nil
}

func (n *Narrator) speak(ctx context.Context, s string) (playback.Handle, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	audio, err := n.synth.Synthesize(sctx, s)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("synthesize: %w", err)
	}

	// Once audio exists the playback must not be lost to a departing caller.
	h, err := n.player.Play(context.WithoutCancel(ctx), audio)
	if err != nil {
		return 0, fmt.Errorf("queue playback: %w", err)
	}
	slog.Debug("queued sentence", "handle", h, "bytes", len(audio))
	return h, nil
}

// anyStopped reports whether the listener stopped one of handles, either seen
// through Observe or, for players that are not observed, still in their status
func (n *Narrator) anyStopped(ctx context.Context, handles []playback.Handle) bool {
	if h, ok := n.observedStop(handles); ok {
		slog.Info("narration stopped by listener", "handle", h)
		return true
	}
	for _, h := range handles {
		st, err := n.player.Status(ctx, h)
		if err != nil {
			continue
		}
		if st.State == playback.StateStopped {
			slog.Info("narration stopped by listener", "handle", h)
			return true
		}
	}
	return false
}

func (n *Narrator) result(handles []playback.Handle, err error) ([]playback.Handle, error) {
	if errors.Is(err, errStopped) {
		err = nil
	}
	if err == nil && len(handles) == 0 {
		return nil, ErrEmpty
	}
	if err != nil && len(handles) > 0 {
		slog.Warn("narration ended early", "queued", len(handles), "error", err)
	}
	return handles, err
}
