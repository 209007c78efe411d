// Package matchmaking tracks the ranked queue ticket. The ticket lives outside
// any room and is driven by polling the authority.
package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/loop"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultStaleAfter   = 30 * time.Second
)

// API is the subset of the authority's request/response surface the queue uses.
type API interface {
	JoinRankedQueue(ctx context.Context) (channel.MatchStatus, error)
	CheckMatchStatus(ctx context.Context) (channel.MatchStatus, error)
	CancelRankedQueue(ctx context.Context) error
	ConfirmRankedMatch(ctx context.Context) error
	ResetRankedMatch(ctx context.Context) error
}

type Status string

const (
	StatusNone    Status = "none"
	StatusWaiting Status = "waiting"
	StatusMatched Status = "matched"
)

var transitions = map[Status][]Status{
	StatusNone:    {StatusWaiting},
	StatusWaiting: {StatusMatched, StatusNone},
	StatusMatched: {StatusNone},
}

// CanTransition reports whether the ticket may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is a copy of the queue membership record.
type Ticket struct {
	Status         Status
	Opponent       string
	Difficulty     string
	QuestionCount  int
	RoomID         string
	ElapsedSeconds int
	StaleOffered   bool
}

type Options struct {
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// Client owns the ticket. Its methods run on the session loop; requests run
// through the dispatcher and their results are applied only if no transition
// happened in between.
type Client struct {
	api      API
	dispatch loop.Dispatcher
	timers   timer.Scheduler
	emit     delta.Sink
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	pollInterval time.Duration
	staleAfter   time.Duration

	ticket   Ticket
	gen      uint64
	inFlight bool
}

func NewClient(api API, dispatch loop.Dispatcher, timers timer.Scheduler, emit delta.Sink, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Client{
		api:          api,
		dispatch:     dispatch,
		timers:       timers,
		emit:         emit,
		metrics:      m,
		logger:       logger.With().Str("component", "matchmaking").Logger(),
		pollInterval: opts.PollInterval,
		staleAfter:   opts.StaleAfter,
		ticket:       Ticket{Status: StatusNone},
	}
}

// Ticket returns a copy of the current ticket.
func (c *Client) Ticket() Ticket {
	return c.ticket
}

func invalid(from, to Status) error {
	return fmt.Errorf("ticket %s -> %s: %w", from, to, httperrors.ErrInvalidTransition)
}

// transition moves the ticket, invalidates outstanding requests and emits
// exactly one ticket delta.
func (c *Client) transition(to Status, reason string, fill func(t *Ticket)) error {
	from := c.ticket.Status
	if !CanTransition(from, to) {
		return invalid(from, to)
	}
	c.gen++
	c.inFlight = false
	c.timers.CancelSlot(timer.SlotMatchPoll)
	c.timers.CancelSlot(timer.SlotTicketClock)

	c.ticket = Ticket{Status: to}
	if fill != nil {
		fill(&c.ticket)
	}
	if to != StatusNone {
		c.timers.Every(timer.SlotTicketClock, time.Second, c.tick)
	}

	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("ticket transition")
	c.metrics.RecordTicketTransition(string(from), string(to))
	c.emit.Emit(delta.Delta{Kind: delta.KindTicket, From: string(from), To: string(to), Message: reason})
	return nil
}

// settle applies a transition driven by an authority response. Those are
// checked against the generation first, so a refusal here is only logged.
func (c *Client) settle(to Status, reason string, fill func(t *Ticket)) {
	if err := c.transition(to, reason, fill); err != nil {
		c.logger.Warn().Err(err).Str("reason", reason).Msg("ticket transition refused")
	}
}

func (c *Client) surface(err error) {
	c.emit.Emit(delta.Delta{Kind: delta.KindError, Message: err.Error(), Err: err})
}

// JoinQueue optimistically enters the queue and asks the authority to do the
// same. Joining while already waiting is a no-op.
func (c *Client) JoinQueue() error {
	if c.ticket.Status == StatusWaiting {
		return nil
	}
	if err := c.transition(StatusWaiting, "join", nil); err != nil {
		return err
	}
	gen := c.gen
	c.dispatch.Go(func(ctx context.Context) func() {
		res, err := c.api.JoinRankedQueue(ctx)
		return func() { c.onJoin(gen, res, err) }
	})
	return nil
}

func (c *Client) onJoin(gen uint64, res channel.MatchStatus, err error) {
	if gen != c.gen {
		c.logger.Debug().Msg("discarding superseded join response")
		return
	}
	if err != nil {
		c.settle(StatusNone, "join_failed", nil)
		c.surface(fmt.Errorf("join ranked queue: %w", err))
		return
	}
	switch res.Status {
	case channel.MatchMatched:
		c.matched(res)
	case channel.MatchWaiting:
		c.startPolling()
	default:
		c.settle(StatusNone, "join_failed", nil)
		c.surface(httperrors.Rejected(fmt.Sprintf("unexpected queue status %q", res.Status)))
	}
}

func (c *Client) startPolling() {
	if c.timers.Active(timer.SlotMatchPoll) {
		return
	}
	c.timers.Every(timer.SlotMatchPoll, c.pollInterval, c.poll)
}

func (c *Client) poll() {
	if c.ticket.Status != StatusWaiting || c.inFlight {
		return
	}
	c.inFlight = true
	gen := c.gen
	c.dispatch.Go(func(ctx context.Context) func() {
		res, err := c.api.CheckMatchStatus(ctx)
		return func() { c.onPoll(gen, res, err) }
	})
}

func (c *Client) onPoll(gen uint64, res channel.MatchStatus, err error) {
	if gen != c.gen {
		c.logger.Debug().Msg("discarding superseded poll response")
		return
	}
	c.inFlight = false
	if err != nil {
		// a single failed poll must not end an active wait
		c.metrics.RecordPollFailure()
		c.logger.Warn().Err(err).Bool("transient", httperrors.IsTransient(err)).Msg("match poll failed")
		return
	}
	switch res.Status {
	case channel.MatchMatched:
		c.matched(res)
	case channel.MatchNotInQueue:
		c.settle(StatusNone, "queue_lost", nil)
		c.surface(httperrors.ErrQueueLost)
	case channel.MatchCanceled:
		c.settle(StatusNone, "canceled", nil)
		c.emit.Emit(delta.Delta{Kind: delta.KindNotice, Message: "ranked queue canceled"})
	}
}

func (c *Client) matched(res channel.MatchStatus) {
	c.settle(StatusMatched, "matched", func(t *Ticket) {
		t.Opponent = res.Opponent
		t.Difficulty = res.Difficulty
		t.QuestionCount = res.QuestionCount
		t.RoomID = res.RoomID
	})
}

func (c *Client) tick() {
	c.ticket.ElapsedSeconds++
	c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotTicketClock, Remaining: c.ticket.ElapsedSeconds})

	elapsed := time.Duration(c.ticket.ElapsedSeconds) * time.Second
	if c.ticket.Status == StatusMatched && !c.ticket.StaleOffered && elapsed >= c.staleAfter {
		c.ticket.StaleOffered = true
		c.logger.Info().Int("elapsed", c.ticket.ElapsedSeconds).Msg("match is stale, offering reset")
		c.emit.Emit(delta.Delta{Kind: delta.KindNotice, Message: httperrors.ErrStaleTicket.Message, Err: httperrors.ErrStaleTicket})
	}
}

// CancelQueue leaves the queue. The ticket reverts whatever the authority answers.
func (c *Client) CancelQueue() error {
	if c.ticket.Status != StatusWaiting {
		return invalid(c.ticket.Status, StatusNone)
	}
	if err := c.transition(StatusNone, "cancel", nil); err != nil {
		return err
	}
	c.fireAndForget("cancel ranked queue", c.api.CancelRankedQueue)
	return nil
}

// ConfirmMatch accepts the match and returns the room to attach to.
func (c *Client) ConfirmMatch() (string, error) {
	if c.ticket.Status != StatusMatched {
		return "", invalid(c.ticket.Status, StatusNone)
	}
	roomID := c.ticket.RoomID
	if err := c.transition(StatusNone, "confirm", nil); err != nil {
		return "", err
	}
	c.fireAndForget("confirm ranked match", c.api.ConfirmRankedMatch)
	return roomID, nil
}

// ResetMatch abandons a stuck match. It is only offered once the match is stale.
func (c *Client) ResetMatch() error {
	if c.ticket.Status != StatusMatched {
		return invalid(c.ticket.Status, StatusNone)
	}
	if !c.ticket.StaleOffered {
		return httperrors.New(httperrors.ErrCodeInvalidTransition, "reset is offered once the match is stale")
	}
	if err := c.transition(StatusNone, "reset", nil); err != nil {
		return err
	}
	c.fireAndForget("reset ranked match", c.api.ResetRankedMatch)
	return nil
}

func (c *Client) fireAndForget(op string, call func(ctx context.Context) error) {
	logger := c.logger
	c.dispatch.Go(func(ctx context.Context) func() {
		if err := call(ctx); err != nil {
			logger.Warn().Err(err).Str("operation", op).Msg("queue request failed")
		}
		return nil
	})
}

// Stop cancels polling and the ticket clock and discards outstanding
// responses. The ticket itself is left as is.
func (c *Client) Stop() {
	c.gen++
	c.inFlight = false
	c.timers.CancelSlot(timer.SlotMatchPoll)
	c.timers.CancelSlot(timer.SlotTicketClock)
}
