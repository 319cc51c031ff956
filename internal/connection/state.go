package connection

import (
	"fmt"
	"time"
)

// State is the connectivity state of one device session.
//
// Invariants: Reconnecting implies !Connected, and RetryCount > 0 implies
// Reconnecting.
type State struct {
	Connected          bool
	Reconnecting       bool
	RetryCount         int
	LastSuccessfulPing time.Time // zero until the first success

	// Restored is set for the short window after a reconnection succeeds
	// and only affects the display projection.
	Restored bool
}

// InitialState is the state at session start: optimistic and connected.
func InitialState() State {
	return State{Connected: true}
}

// Event is an input to the state machine
type Event int

const (
	// EventSuccess: a transport-level success was observed
	EventSuccess Event = iota
	// EventFailure: a transport-level failure was observed
	EventFailure
	// EventStartReconnection: begin the probe loop (no-op if already running)
	EventStartReconnection
	// EventProbeAttempt: the probe loop is about to issue one probe
	EventProbeAttempt
	// EventRestoreElapsed: the "connection restored" window ended
	EventRestoreElapsed
	// EventHalt: reconnection was stopped without reaching the device
	EventHalt
)

func (e Event) String() string {
	switch e {
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventStartReconnection:
		return "start-reconnection"
	case EventProbeAttempt:
		return "probe-attempt"
	case EventRestoreElapsed:
		return "restore-elapsed"
	case EventHalt:
		return "halt"
	default:
		return fmt.Sprintf("Event(%d)", e)
	}
}

// Effects are the side effects a transition asks its owner to perform
type Effects struct {
	// StartLoop asks for a new probe chain
	StartLoop bool
	// ScheduleRestoreClear asks for EventRestoreElapsed after the restore window
	ScheduleRestoreClear bool
	// Changed is false when the event left the state untouched
	Changed bool
}

// Next is the pure transition function of the connection state machine.
func Next(s State, ev Event, now time.Time) (State, Effects) {
	var eff Effects
	prev := s

	switch ev {
	case EventSuccess:
		wasReconnecting := s.Reconnecting
		s.Connected = true
		s.Reconnecting = false
		s.RetryCount = 0
		s.LastSuccessfulPing = now
		if wasReconnecting {
			s.Restored = true
			eff.ScheduleRestoreClear = true
		}

	case EventFailure:
		if !s.Connected {
			// the running loop (or a deliberate halt) owns recovery
			return s, eff
		}
		return Next(s, EventStartReconnection, now)

	case EventStartReconnection:
		if s.Reconnecting {
			return s, eff
		}
		s.Connected = false
		s.Reconnecting = true
		s.RetryCount = 0
		s.Restored = false
		eff.StartLoop = true

	case EventProbeAttempt:
		if !s.Reconnecting {
			return s, eff
		}
		s.RetryCount++

	case EventRestoreElapsed:
		s.Restored = false

	case EventHalt:
		if !s.Reconnecting {
			return s, eff
		}
		s.Reconnecting = false
		s.RetryCount = 0
	}

	eff.Changed = s != prev
	return s, eff
}

// BannerKind is the kind of connection banner to show
type BannerKind int

const (
	BannerHidden BannerKind = iota
	BannerWarning
	BannerError
	BannerRestored
)

func (k BannerKind) String() string {
	switch k {
	case BannerHidden:
		return "hidden"
	case BannerWarning:
		return "warning"
	case BannerError:
		return "error"
	case BannerRestored:
		return "success-transient"
	default:
		return fmt.Sprintf("BannerKind(%d)", k)
	}
}

// Banner is the display projection of a State
type Banner struct {
	Kind    BannerKind
	Attempt int // set for BannerWarning
}

// String renders the banner compactly, e.g. "warning(3)"
func (b Banner) String() string {
	if b.Kind == BannerWarning {
		return fmt.Sprintf("warning(%d)", b.Attempt)
	}
	return b.Kind.String()
}

// Message is the text shown to the user
func (b Banner) Message() string {
	switch b.Kind {
	case BannerWarning:
		return fmt.Sprintf("Connection lost. Reconnecting... (attempt %d)", b.Attempt)
	case BannerError:
		return "Connection lost"
	case BannerRestored:
		return "Connection restored"
	default:
		return ""
	}
}

// Visible reports whether the banner should be drawn at all
func (b Banner) Visible() bool {
	return b.Kind != BannerHidden
}

// Project is the pure display projection of a State
func Project(s State) Banner {
	switch {
	case s.Connected && s.Restored:
		return Banner{Kind: BannerRestored}
	case s.Connected:
		return Banner{Kind: BannerHidden}
	case s.Reconnecting:
		return Banner{Kind: BannerWarning, Attempt: s.RetryCount}
	default:
		return Banner{Kind: BannerError}
	}
}
