package playback

import (
	"fmt"
	"strings"
	"time"

	"murmur.click/internal/audio"
)

// Handle identifies one accepted playback. Handles are dense, start at 0
// and are never reused.
type Handle uint64

// State is the lifecycle position of a playback
type State int

const (
	StateQueued State = iota
	StatePlaying
	StatePaused
	StateStopped
	StateFinished
	StateFailed
)

var stateNames = [...]string{
	StateQueued:   "queued",
	StatePlaying:  "playing",
	StatePaused:   "paused",
	StateStopped:  "stopped",
	StateFinished: "finished",
	StateFailed:   "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFinished || s == StateFailed
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown playback state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, candidate := range stateNames {
		if candidate == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

// Status is the observable projection of one playback
type Status struct {
	Handle        Handle     `json:"handle"`
	State         State      `json:"state"`
	Seq           uint64     `json:"seq"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DeferredPause bool       `json:"deferred_pause,omitempty"`
	// Cancelled marks an entry stopped while still queued, before any audio played
	Cancelled    bool   `json:"cancelled,omitempty"`
	FramesPlayed uint64 `json:"frames_played"`
	Error        string `json:"error,omitempty"`
}

// Transition records one state change, reported in order from the manager goroutine
type Transition struct {
	Handle Handle
	From   State
	To     State
	At     time.Time
}

type entry struct {
	id            Handle
	seq           uint64
	state         State
	buf           []byte
	sink          audio.Sink
	createdAt     time.Time
	startedAt     time.Time
	endedAt       time.Time
	endedTick     uint64
	deferredPause bool
	cancelled     bool
	framesPlayed  uint64
	err           error
}

func (e *entry) status() Status {
	st := Status{
		Handle:        e.id,
		State:         e.state,
		Seq:           e.seq,
		CreatedAt:     e.createdAt,
		DeferredPause: e.deferredPause,
		Cancelled:     e.cancelled,
		FramesPlayed:  e.framesPlayed,
	}
	if e.sink != nil {
		st.FramesPlayed = e.sink.FramesPlayed()
	}
	if !e.startedAt.IsZero() {
		started := e.startedAt
		st.StartedAt = &started
	}
	if !e.endedAt.IsZero() {
		ended := e.endedAt
		st.EndedAt = &ended
	}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}
