// Package delta describes the state changes the session publishes to its renderer.
package delta

import "github.com/gokatarajesh/quiz-session/internal/timer"

// Kind identifies which slice of state changed.
type Kind string

const (
	KindRoom      Kind = "room"
	KindRound     Kind = "round"
	KindLobby     Kind = "lobby"
	KindCountdown Kind = "countdown"
	KindTicket    Kind = "ticket"
	KindNotice    Kind = "notice"
	KindError     Kind = "error"
	KindGameOver  Kind = "game_over"
	KindRedirect  Kind = "redirect"
)

// Delta is a single change notification. Only the fields relevant to Kind are set.
type Delta struct {
	Kind      Kind
	Slot      timer.Slot
	Remaining int
	Username  string
	From      string
	To        string
	Message   string
	Err       error
}

// Sink receives deltas on the session loop. It must not block.
type Sink func(Delta)

// Emit is nil-safe.
func (s Sink) Emit(d Delta) {
	if s != nil {
		s(d)
	}
}

// Recorder collects deltas for tests and tooling.
type Recorder struct {
	Deltas []Delta
}

func (r *Recorder) Sink() Sink {
	return func(d Delta) { r.Deltas = append(r.Deltas, d) }
}

// Of returns the recorded deltas of kind k.
func (r *Recorder) Of(k Kind) []Delta {
	var out []Delta
	for _, d := range r.Deltas {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.Deltas = nil
}
