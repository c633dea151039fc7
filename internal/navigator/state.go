package navigator

import (
	"fmt"
	"strings"
	"time"

	"github.com/jask/dexnav/internal/fetch"
)

// Phase is the display mode of a session.
type Phase int

const (
	PhaseIdle Phase = iota // before Initialize
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase by name in JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// State is an immutable snapshot of the session.
//
// CurrentID is the id of the most recently requested fetch, which is not
// necessarily the id of Entity while a newer fetch is outstanding.
type State struct {
	CurrentID  int           `json:"current_id"`
	Phase      Phase         `json:"phase"`
	Entity     *fetch.Entity `json:"entity,omitempty"` // PhaseLoaded only
	Err        string        `json:"error,omitempty"`  // PhaseFailed only
	ErrKind    fetch.Kind    `json:"error_kind,omitempty"`
	StatusCode int           `json:"status_code,omitempty"` // HttpStatus failures only
	Generation uint64        `json:"generation"`
}

// Busy reports whether a fetch for the current generation is outstanding.
func (s State) Busy() bool { return s.Phase == PhaseLoading }

// Consistent reports whether the phase and its payload agree.
func (s State) Consistent() bool {
	switch s.Phase {
	case PhaseIdle, PhaseLoading:
		return s.Entity == nil && s.Err == ""
	case PhaseLoaded:
		return s.Entity != nil && s.Err == ""
	case PhaseFailed:
		return s.Entity == nil && s.Err != ""
	}
	return false
}

// Gate decides who suppresses commands issued while a fetch is outstanding.
type Gate int

const (
	// GateSuppress makes the controller reject commands while loading.
	GateSuppress Gate = iota
	// GateCaller accepts every command; the binder gates its own input and
	// overlapping fetches are settled by generation.
	GateCaller
)

func (g Gate) String() string {
	if g == GateCaller {
		return "caller"
	}
	return "suppress"
}

// ParseGate maps a config value to a Gate.
func ParseGate(s string) (Gate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "suppress":
		return GateSuppress, nil
	case "caller":
		return GateCaller, nil
	default:
		return GateSuppress, fmt.Errorf("navigator: unknown gate %q", s)
	}
}

// Command names a navigation action.
type Command string

const (
	CommandInitialize Command = "initialize"
	CommandNext       Command = "next"
	CommandPrevious   Command = "previous"
	CommandReload     Command = "reload"
	CommandInvalid    Command = "invalid"
	CommandGoTo       Command = "goto"
)

// Outcome is how a fetch resolution was applied.
type Outcome string

const (
	OutcomeLoaded Outcome = "loaded"
	OutcomeFailed Outcome = "failed"
	// OutcomeStale marks a resolution discarded because a newer fetch was
	// started before it completed.
	OutcomeStale Outcome = "stale"
)

// Resolution describes one completed fetch, authoritative or not.
type Resolution struct {
	ID         int
	Generation uint64
	Command    Command
	Outcome    Outcome
	Entity     *fetch.Entity
	Err        error
	Duration   time.Duration
}
