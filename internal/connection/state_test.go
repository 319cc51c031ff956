package connection

import (
	"math/rand/v2"
	"testing"
	"time"
)

func checkInvariants(t *testing.T, s State, step int) {
	t.Helper()
	if s.Reconnecting && s.Connected {
		t.Fatalf("step %d: reconnecting while connected: %+v", step, s)
	}
	if s.RetryCount > 0 && !s.Reconnecting {
		t.Fatalf("step %d: retry count %d without reconnecting: %+v", step, s.RetryCount, s)
	}
	if s.RetryCount < 0 {
		t.Fatalf("step %d: negative retry count: %+v", step, s)
	}
}

func TestNext_InvariantsHoldForRandomSequences(t *testing.T) {
	events := []Event{
		EventSuccess,
		EventFailure,
		EventStartReconnection,
		EventProbeAttempt,
		EventRestoreElapsed,
		EventHalt,
	}
	rng := rand.New(rand.NewPCG(1, 2))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for run := 0; run < 200; run++ {
		s := InitialState()
		loops := 0
		for step := 0; step < 100; step++ {
			ev := events[rng.IntN(len(events))]
			next, eff := Next(s, ev, now)
			checkInvariants(t, next, step)

			if eff.StartLoop {
				if s.Reconnecting {
					t.Fatalf("step %d: loop started while one was running", step)
				}
				loops++
			}
			if !next.Reconnecting {
				loops = 0
			}
			if loops > 1 {
				t.Fatalf("step %d: more than one probe chain", step)
			}
			s = next
		}
	}
}

func TestNext_Transitions(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reconnecting := State{Reconnecting: true, RetryCount: 3}
	halted := State{}

	tests := []struct {
		name       string
		from       State
		event      Event
		want       State
		wantLoop   bool
		wantClear  bool
		wantChange bool
	}{
		{
			name:       "success while connected refreshes ping",
			from:       InitialState(),
			event:      EventSuccess,
			want:       State{Connected: true, LastSuccessfulPing: now},
			wantChange: true,
		},
		{
			name:       "success while reconnecting restores",
			from:       reconnecting,
			event:      EventSuccess,
			want:       State{Connected: true, LastSuccessfulPing: now, Restored: true},
			wantClear:  true,
			wantChange: true,
		},
		{
			name:       "success after halt does not flash restored",
			from:       halted,
			event:      EventSuccess,
			want:       State{Connected: true, LastSuccessfulPing: now},
			wantChange: true,
		},
		{
			name:       "failure while connected starts loop",
			from:       InitialState(),
			event:      EventFailure,
			want:       State{Reconnecting: true},
			wantLoop:   true,
			wantChange: true,
		},
		{
			name:  "failure while reconnecting is ignored",
			from:  reconnecting,
			event: EventFailure,
			want:  reconnecting,
		},
		{
			name:  "failure after halt is ignored",
			from:  halted,
			event: EventFailure,
			want:  halted,
		},
		{
			name:  "start while reconnecting is a no-op",
			from:  reconnecting,
			event: EventStartReconnection,
			want:  reconnecting,
		},
		{
			name:       "start after halt starts a new loop",
			from:       halted,
			event:      EventStartReconnection,
			want:       State{Reconnecting: true},
			wantLoop:   true,
			wantChange: true,
		},
		{
			name:       "probe attempt increments retry",
			from:       reconnecting,
			event:      EventProbeAttempt,
			want:       State{Reconnecting: true, RetryCount: 4},
			wantChange: true,
		},
		{
			name:  "probe attempt while connected is ignored",
			from:  InitialState(),
			event: EventProbeAttempt,
			want:  InitialState(),
		},
		{
			name:       "restore window elapses",
			from:       State{Connected: true, Restored: true},
			event:      EventRestoreElapsed,
			want:       State{Connected: true},
			wantChange: true,
		},
		{
			name:       "halt stops the loop",
			from:       reconnecting,
			event:      EventHalt,
			want:       halted,
			wantChange: true,
		},
		{
			name:  "halt while connected is ignored",
			from:  InitialState(),
			event: EventHalt,
			want:  InitialState(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, eff := Next(tt.from, tt.event, now)
			if got != tt.want {
				t.Errorf("Next(%+v, %v) = %+v, want %+v", tt.from, tt.event, got, tt.want)
			}
			if eff.StartLoop != tt.wantLoop {
				t.Errorf("StartLoop = %v, want %v", eff.StartLoop, tt.wantLoop)
			}
			if eff.ScheduleRestoreClear != tt.wantClear {
				t.Errorf("ScheduleRestoreClear = %v, want %v", eff.ScheduleRestoreClear, tt.wantClear)
			}
			if eff.Changed != tt.wantChange {
				t.Errorf("Changed = %v, want %v", eff.Changed, tt.wantChange)
			}
		})
	}
}

func TestProject(t *testing.T) {
	tests := []struct {
		state       State
		want        string
		wantMessage string
	}{
		{InitialState(), "hidden", ""},
		{State{Connected: true, Restored: true}, "success-transient", "Connection restored"},
		{State{Reconnecting: true, RetryCount: 1}, "warning(1)", "Connection lost. Reconnecting... (attempt 1)"},
		{State{Reconnecting: true, RetryCount: 7}, "warning(7)", "Connection lost. Reconnecting... (attempt 7)"},
		{State{}, "error", "Connection lost"},
	}

	for _, tt := range tests {
		b := Project(tt.state)
		if b.String() != tt.want {
			t.Errorf("Project(%+v) = %s, want %s", tt.state, b, tt.want)
		}
		if b.Message() != tt.wantMessage {
			t.Errorf("Project(%+v).Message() = %q, want %q", tt.state, b.Message(), tt.wantMessage)
		}
		if b.Visible() != (tt.want != "hidden") {
			t.Errorf("Project(%+v).Visible() = %v", tt.state, b.Visible())
		}
	}
}
