package round

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/room"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

// Outbound forwards an answer to the authority.
type Outbound interface {
	SubmitAnswer(answer string) error
}

// Controller drives one question round at a time. All methods must be called
// from the session loop.
type Controller struct {
	timers timer.Scheduler
	room   room.View
	out    Outbound
	emit   delta.Sink
	clock  clockwork.Clock
	logger zerolog.Logger

	round *Round
}

// NewController wires a round controller. A nil clock uses the real clock.
func NewController(timers timer.Scheduler, view room.View, out Outbound, emit delta.Sink, clock clockwork.Clock, logger zerolog.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		timers: timers,
		room:   view,
		out:    out,
		emit:   emit,
		clock:  clock,
		logger: logger.With().Str("component", "round").Logger(),
	}
}

// Current returns a copy of the active round.
func (c *Controller) Current() (Round, bool) {
	if c.round == nil {
		return Round{}, false
	}
	return c.round.clone(), true
}

func (c *Controller) changed(what string) {
	c.emit.Emit(delta.Delta{Kind: delta.KindRound, Message: what})
}

// ApplyNewQuestion replaces the active round. It reports false for a repeat
// or older question number, which is ignored.
func (c *Controller) ApplyNewQuestion(p ws.NewQuestionPayload) bool {
	if cur := c.round; cur != nil && p.QuestionNumber > 0 && p.QuestionNumber <= cur.QuestionNumber {
		c.logger.Debug().Int("question", p.QuestionNumber).Msg("ignoring stale new_question")
		return false
	}

	c.timers.CancelSlot(timer.SlotRound)
	c.timers.CancelSlot(timer.SlotNextQuestion)

	limit := p.TimeLimitSeconds()
	mode := p.GameMode
	if mode == "" {
		mode = string(c.room.Mode())
	}
	r := &Round{
		QuestionNumber:   p.QuestionNumber,
		TotalQuestions:   p.QuestionCount,
		A:                p.A,
		P:                p.P,
		TimeLimitSeconds: limit,
		Deadline:         c.clock.Now().Add(time.Duration(limit) * time.Second),
		Mode:             mode,
		Phase:            PhaseAwaitingAnswer,
		Remaining:        limit,
		Marks:            make(map[string]Mark),
	}
	c.round = r

	c.timers.Countdown(timer.SlotRound, limit,
		func(remaining int) {
			if c.round != r {
				return
			}
			r.Remaining = remaining
			c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotRound, Remaining: remaining})
		},
		func() {
			if c.round != r {
				return
			}
			c.expire(r)
		},
	)

	c.logger.Debug().Int("question", r.QuestionNumber).Int64("p", r.P).Int("limit", limit).Msg("round started")
	c.changed("new_question")
	return true
}

func (c *Controller) expire(r *Round) {
	r.Expired = true
	r.Remaining = 0
	r.Closed = true
	if !r.AnsweredByMe {
		r.lock(LockTimedOut)
	}
	c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotRound, Remaining: 0})
	c.changed("round_expired")
}

// Submit validates raw and forwards it. Nothing is sent when the round is not
// accepting answers or the value is malformed.
func (c *Controller) Submit(raw string) error {
	r := c.round
	switch {
	case r == nil || r.Phase != PhaseAwaitingAnswer:
		return &httperrors.ValidationError{Field: "answer", Message: "no question is open"}
	case r.AnsweredByMe:
		return &httperrors.ValidationError{Field: "answer", Message: "you already answered this question"}
	case r.Expired:
		return &httperrors.ValidationError{Field: "answer", Message: "time is up for this question"}
	case r.Closed:
		return &httperrors.ValidationError{Field: "answer", Message: "this round is closed"}
	}

	answer, err := ParseAnswer(raw, r.P)
	if err != nil {
		return err
	}

	r.AnsweredByMe = true
	r.Pending = true
	r.SubmittedAnswer = answer
	if err := c.out.SubmitAnswer(answer); err != nil {
		r.AnsweredByMe = false
		r.Pending = false
		r.SubmittedAnswer = ""
		return fmt.Errorf("submit answer: %w", err)
	}
	r.mark(c.room.Self(), MarkAnswered)
	c.changed("answer_submitted")
	return nil
}

// ApplyAnswerResult locks the round for self. It returns the points to credit
// and true only the first time a result is seen for the round.
func (c *Controller) ApplyAnswerResult(p ws.AnswerResultPayload) (int, bool) {
	r := c.round
	if r == nil {
		return 0, false
	}
	if self := c.room.Self(); p.Username != "" && self != "" && p.Username != self {
		r.mark(p.Username, resultMark(p.Correct))
		c.changed("answer_result")
		return 0, false
	}
	if r.resultSeen {
		return 0, false
	}
	r.resultSeen = true
	r.AnsweredByMe = true
	r.Pending = false
	r.Points = p.Points
	if p.CorrectAnswer != nil {
		v := int64(*p.CorrectAnswer)
		r.CorrectAnswer = &v
	}
	who := p.Username
	if who == "" {
		who = c.room.Self()
	}
	r.mark(who, resultMark(p.Correct))
	if p.Correct {
		r.lock(LockCorrect)
	} else {
		r.lock(LockIncorrect)
	}
	c.changed("answer_result")

	if !p.Correct || p.Points <= 0 {
		return 0, true
	}
	return p.Points, true
}

func resultMark(correct bool) Mark {
	if correct {
		return MarkCorrect
	}
	return MarkIncorrect
}

// ApplySomeoneCorrect marks the player and, in race mode, closes the round for
// everyone else.
func (c *Controller) ApplySomeoneCorrect(p ws.SomeoneAnsweredCorrectlyPayload) {
	r := c.round
	if r == nil {
		return
	}
	r.mark(p.Username, MarkCorrect)
	if r.CorrectAnswerer == "" {
		r.CorrectAnswerer = p.Username
	}

	race := p.Mode == string(room.ModeFirst)
	if p.Mode == "" {
		race = c.room.Mode().Race()
	}
	if race && p.Username != c.room.Self() && !r.AnsweredByMe {
		r.Closed = true
	}
	if p.StopTimer && !r.TimerStopped {
		r.TimerStopped = true
		c.timers.CancelSlot(timer.SlotRound)
	}
	c.changed("someone_answered_correctly")
}

func (c *Controller) ApplySomeoneIncorrect(p ws.SomeoneAnsweredIncorrectlyPayload) {
	if c.round == nil {
		return
	}
	c.round.mark(p.Username, MarkIncorrect)
	c.changed("someone_answered_incorrectly")
}

func (c *Controller) ApplyPlayerAnswered(p ws.PlayerAnsweredPayload) {
	if c.round == nil {
		return
	}
	c.round.mark(p.Username, MarkAnswered)
	c.changed("player_answered")
}

// ApplyAnswerRejected surfaces the authority's reason. Round state is unchanged.
func (c *Controller) ApplyAnswerRejected(p ws.AnswerRejectedPayload) error {
	return httperrors.Rejected(p.Message)
}

// ApplyTimeUp closes the round regardless of prior state. If a result already
// locked it, the lock reason stands.
func (c *Controller) ApplyTimeUp(p ws.TimeUpPayload) {
	r := c.round
	if r == nil {
		return
	}
	c.timers.CancelSlot(timer.SlotRound)
	r.Pending = false
	r.Remaining = 0
	if p.CorrectAnswer != nil {
		v := int64(*p.CorrectAnswer)
		r.CorrectAnswer = &v
	}
	if r.lock(LockTimedOut) {
		c.logger.Debug().Int("question", r.QuestionNumber).Msg("round timed out")
	}
	c.changed("time_up")
}

// ApplyNextQuestionCountdown drives the cosmetic gap between rounds.
func (c *Controller) ApplyNextQuestionCountdown(p ws.NextQuestionCountdownPayload) {
	c.timers.Countdown(timer.SlotNextQuestion, p.Countdown,
		func(remaining int) {
			c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotNextQuestion, Remaining: remaining})
		},
		func() {
			c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotNextQuestion, Remaining: 0})
		},
	)
}

// End stops round timers and leaves the last round visible but closed.
func (c *Controller) End() {
	c.timers.CancelSlot(timer.SlotRound)
	c.timers.CancelSlot(timer.SlotNextQuestion)
	if r := c.round; r != nil {
		r.Closed = true
		r.Pending = false
		r.Phase = PhaseIdle
		c.changed("round_ended")
	}
}

// Reset drops the last round so the next room's question numbering starts
// over.
func (c *Controller) Reset() {
	c.timers.CancelSlot(timer.SlotRound)
	c.timers.CancelSlot(timer.SlotNextQuestion)
	if c.round != nil {
		c.round = nil
		c.changed("round_reset")
	}
}
