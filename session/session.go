// Package session tracks per-session dataset load state for the explorer.
//
// Each session holds one load state per flag and an optional current
// selection. Flags follow an explicit state machine:
//
//	NotRequested -> Loading -> Loaded | Failed
//	Loaded | Failed -> Loading
//
// A flag reports loaded only after a load completed successfully in that
// session. Changing the selection never touches flags.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known flags.
const (
	FlagPrimary   = "primary"
	FlagReference = "reference"
)

// LoadState is the load progress of a single flag.
type LoadState int

const (
	NotRequested LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case NotRequested:
		return "not_requested"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type flagState struct {
	state LoadState
	err   error
}

// Session holds the load state of one user session. It is safe for
// concurrent use.
type Session struct {
	id string

	mu        sync.Mutex
	flags     map[string]flagState
	selection string
	selected  bool
	touched   time.Time
	now       func() time.Time
}

func newSession(now func() time.Time) *Session {
	return &Session{
		id:      uuid.Must(uuid.NewV7()).String(),
		flags:   make(map[string]flagState),
		touched: now(),
		now:     now,
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Begin moves flag into Loading. It fails with ErrLoadInProgress while a
// load for flag is already running.
func (s *Session) Begin(flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.flags[flag].state == Loading {
		return fmt.Errorf("%w: %s", ErrLoadInProgress, flag)
	}
	s.flags[flag] = flagState{state: Loading}
	return nil
}

// Complete moves flag from Loading to Loaded.
func (s *Session) Complete(flag string) error {
	return s.finish(flag, Loaded, nil)
}

// Fail moves flag from Loading to Failed and records cause.
func (s *Session) Fail(flag string, cause error) error {
	return s.finish(flag, Failed, cause)
}

func (s *Session) finish(flag string, to LoadState, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	from := s.flags[flag].state
	if from != Loading {
		return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, flag, from, to)
	}
	s.flags[flag] = flagState{state: to, err: cause}
	return nil
}

// MarkLoaded sets flag to Loaded from any state. It records an explicit
// user action that stands in for a completed load.
func (s *Session) MarkLoaded(flag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.flags[flag] = flagState{state: Loaded}
}

// IsLoaded reports whether flag is Loaded.
func (s *Session) IsLoaded(flag string) bool {
	return s.State(flag) == Loaded
}

// State returns the current state of flag.
func (s *Session) State(flag string) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[flag].state
}

// LastError returns the error recorded by the last Fail of flag, or nil
// once flag has moved on.
func (s *Session) LastError(flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[flag].err
}

// Reset returns the named flags to NotRequested. Other flags keep their
// state.
func (s *Session) Reset(flags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for _, f := range flags {
		delete(s.flags, f)
	}
}

// Flags returns a snapshot of every flag that has left NotRequested.
func (s *Session) Flags() map[string]LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]LoadState, len(s.flags))
	for f, st := range s.flags {
		out[f] = st.state
	}
	return out
}

// CurrentSelection returns the selected dataset id.
func (s *Session) CurrentSelection() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection, s.selected
}

// SetSelection records id as the current selection.
func (s *Session) SetSelection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.selection = id
	s.selected = true
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID        string               `json:"id"`
	Selection string               `json:"selection,omitempty"`
	Flags     map[string]LoadState `json:"flags"`
	Errors    map[string]string    `json:"errors,omitempty"`
	LastSeen  time.Time            `json:"last_seen"`
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		Selection: s.selection,
		Flags:     make(map[string]LoadState, len(s.flags)),
		LastSeen:  s.touched,
	}
	for f, st := range s.flags {
		snap.Flags[f] = st.state
		if st.err != nil {
			if snap.Errors == nil {
				snap.Errors = make(map[string]string)
			}
			snap.Errors[f] = st.err.Error()
		}
	}
	return snap
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// touch must be called with s.mu held.
func (s *Session) touch() {
	s.touched = s.now()
}
