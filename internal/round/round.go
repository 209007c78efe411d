package round

import (
	"time"
)

// Phase is the round lifecycle stage as seen by this participant.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseLocked         Phase = "locked"
)

// LockReason explains why a round stopped accepting this participant's answer.
type LockReason string

const (
	LockNone      LockReason = ""
	LockCorrect   LockReason = "correct"
	LockIncorrect LockReason = "incorrect"
	LockTimedOut  LockReason = "timed_out"
)

// Mark is what the room knows about another player's answer this round.
type Mark string

const (
	MarkAnswered  Mark = "answered"
	MarkCorrect   Mark = "correct"
	MarkIncorrect Mark = "incorrect"
)

// Round is one question instance.
type Round struct {
	QuestionNumber   int
	TotalQuestions   int
	A                int64
	P                int64
	TimeLimitSeconds int
	Deadline         time.Time
	Mode             string

	Phase Phase
	Lock  LockReason

	// AnsweredByMe is the confirmed-or-tentative flag that blocks resubmission.
	AnsweredByMe bool
	// Pending is set between sending an answer and its result.
	Pending bool
	// Closed disables input: race lost, local expiry, time_up or result.
	Closed       bool
	Expired      bool
	TimerStopped bool
	Remaining    int

	SubmittedAnswer string
	CorrectAnswerer string
	CorrectAnswer   *int64
	Points          int

	Marks map[string]Mark

	resultSeen bool
}

// CanSubmit reports whether a submission would be forwarded.
func (r *Round) CanSubmit() bool {
	return r != nil && r.Phase == PhaseAwaitingAnswer && !r.AnsweredByMe && !r.Closed && !r.Expired
}

func (r *Round) mark(username string, m Mark) {
	if username == "" {
		return
	}
	// correct/incorrect outrank a bare "answered"
	if prev, ok := r.Marks[username]; ok && m == MarkAnswered && prev != MarkAnswered {
		return
	}
	if prev := r.Marks[username]; prev == MarkCorrect && m == MarkIncorrect {
		return
	}
	r.Marks[username] = m
}

func (r *Round) lock(reason LockReason) bool {
	r.Closed = true
	if r.Phase == PhaseLocked {
		return false
	}
	r.Phase = PhaseLocked
	r.Lock = reason
	return true
}

func (r *Round) clone() Round {
	out := *r
	out.Marks = make(map[string]Mark, len(r.Marks))
	for k, v := range r.Marks {
		out.Marks[k] = v
	}
	if r.CorrectAnswer != nil {
		v := *r.CorrectAnswer
		out.CorrectAnswer = &v
	}
	return out
}
