package lobby

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/room"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

// DefaultAutoReadyDelay is how long a ranked room waits before consenting on
// the player's behalf.
const DefaultAutoReadyDelay = time.Second

// Outbound carries readiness intents to the authority.
type Outbound interface {
	PlayerReady() error
	PlayerCancelReady() error
	CheckRankedCountdown() error
}

// Status is the readiness state machine value.
type Status string

const (
	StatusNotReady Status = "not_ready"
	StatusReady    Status = "ready"
)

// State is a read-only copy of the lobby.
type State struct {
	Status            Status
	Confirmed         bool
	Tentative         bool
	CancelPending     bool
	WaitingForPlayers bool
	MinPlayers        int
	CurrentPlayers    int
	ReadyCount        int
	TotalPlayers      int
	ConnectedPlayers  int
	Countdown         int
	AutoReadyArmed    bool
}

// Options tunes lobby policy.
type Options struct {
	AutoReadyDelay time.Duration
}

// Controller owns pre-game readiness. Methods run on the session loop.
type Controller struct {
	timers timer.Scheduler
	room   room.View
	out    Outbound
	emit   delta.Sink
	logger zerolog.Logger

	autoReadyDelay time.Duration

	confirmed     bool
	tentative     bool
	cancelPending bool
	autoArmed     bool
	rankedChecked bool
	waiting       bool

	minPlayers     int
	currentPlayers int
	readyCount     int
	totalPlayers   int
	connected      int
	countdown      int
}

func NewController(timers timer.Scheduler, view room.View, out Outbound, emit delta.Sink, opts Options, logger zerolog.Logger) *Controller {
	delay := opts.AutoReadyDelay
	if delay <= 0 {
		delay = DefaultAutoReadyDelay
	}
	return &Controller{
		timers:         timers,
		room:           view,
		out:            out,
		emit:           emit,
		logger:         logger.With().Str("component", "lobby").Logger(),
		autoReadyDelay: delay,
	}
}

func (c *Controller) ready() bool {
	return c.confirmed || c.tentative
}

// State returns a copy of the lobby.
func (c *Controller) State() State {
	status := StatusNotReady
	if c.ready() {
		status = StatusReady
	}
	return State{
		Status:            status,
		Confirmed:         c.confirmed,
		Tentative:         c.tentative,
		CancelPending:     c.cancelPending,
		WaitingForPlayers: c.waiting,
		MinPlayers:        c.minPlayers,
		CurrentPlayers:    c.currentPlayers,
		ReadyCount:        c.readyCount,
		TotalPlayers:      c.totalPlayers,
		ConnectedPlayers:  c.connected,
		Countdown:         c.countdown,
		AutoReadyArmed:    c.autoArmed,
	}
}

func (c *Controller) changed(what string) {
	c.emit.Emit(delta.Delta{Kind: delta.KindLobby, Message: what})
}

// MarkReady sends the ready intent and optimistically shows the player ready.
func (c *Controller) MarkReady() error {
	if c.room.Started() {
		return httperrors.ErrInvalidTransition
	}
	if c.ready() {
		return nil
	}
	c.tentative = true
	if err := c.out.PlayerReady(); err != nil {
		c.tentative = false
		return fmt.Errorf("mark ready: %w", err)
	}
	c.changed("ready_sent")
	return nil
}

// CancelReady sends the cancel intent. Readiness is kept until the authority
// answers with cancel_ready_response.
func (c *Controller) CancelReady() error {
	if !c.ready() || c.room.Started() {
		return httperrors.ErrInvalidTransition
	}
	if c.cancelPending {
		return nil
	}
	c.cancelPending = true
	if err := c.out.PlayerCancelReady(); err != nil {
		c.cancelPending = false
		return fmt.Errorf("cancel ready: %w", err)
	}
	c.changed("cancel_sent")
	return nil
}

// ApplyCancelReadyResponse settles a pending cancel. A refusal keeps the
// player ready and is returned for display.
func (c *Controller) ApplyCancelReadyResponse(p ws.CancelReadyResponsePayload) error {
	if !c.cancelPending {
		return nil
	}
	c.cancelPending = false
	if !p.Success {
		c.changed("cancel_refused")
		msg := p.Message
		if msg == "" {
			msg = "could not cancel ready"
		}
		return httperrors.New(httperrors.ErrCodeCancelFailed, msg)
	}
	c.confirmed = false
	c.tentative = false
	c.changed("cancel_confirmed")
	return nil
}

// ApplyPlayerReadyStatus records readiness counts and confirms self.
func (c *Controller) ApplyPlayerReadyStatus(p ws.PlayerReadyStatusPayload) {
	c.readyCount = p.ReadyCount
	c.totalPlayers = p.TotalPlayers
	if p.Username == c.room.Self() {
		switch {
		case !p.Canceled:
			c.confirm()
		case !c.cancelPending:
			c.confirmed = false
			c.tentative = false
		}
	}
	c.changed("player_ready_status")
}

func (c *Controller) confirm() {
	c.confirmed = true
	c.tentative = false
	// the unready window is over; a later one may arm auto-ready again
	c.autoArmed = false
	c.timers.CancelSlot(timer.SlotAutoReady)
}

// ApplyRoomStatus reconciles readiness with the room the session just
// applied and runs the ranked auto-start policy.
func (c *Controller) ApplyRoomStatus() {
	self := c.room.Self()
	switch {
	case c.room.IsReady(self):
		c.confirm()
	case c.confirmed && !c.tentative && !c.cancelPending:
		c.confirmed = false
	}

	c.currentPlayers = c.room.PlayerCount()
	c.minPlayers = c.room.Mode().MinPlayers()
	c.waiting = !c.room.Started() && c.currentPlayers < c.minPlayers

	if c.room.Mode() == room.ModeRanked && c.room.AutoStart() && !c.room.Started() && c.room.Has(self) {
		c.armAutoReady()
		if !c.rankedChecked {
			c.rankedChecked = true
			if err := c.out.CheckRankedCountdown(); err != nil {
				c.rankedChecked = false
				c.logger.Warn().Err(err).Msg("check ranked countdown failed")
			}
		}
	}
	c.changed("room_status")
}

func (c *Controller) armAutoReady() {
	if c.ready() || c.autoArmed {
		return
	}
	c.autoArmed = true
	c.logger.Debug().Dur("delay", c.autoReadyDelay).Msg("auto-ready armed")
	c.timers.After(timer.SlotAutoReady, c.autoReadyDelay, func() {
		if c.room.Started() || c.ready() {
			return
		}
		if err := c.MarkReady(); err != nil {
			c.autoArmed = false
			c.logger.Warn().Err(err).Msg("auto-ready failed")
		}
	})
}

// ApplyNotEnoughPlayers is informational and leaves readiness alone.
func (c *Controller) ApplyNotEnoughPlayers(p ws.NotEnoughPlayersPayload) {
	c.minPlayers = p.MinPlayers
	c.currentPlayers = p.CurrentPlayers
	c.emit.Emit(delta.Delta{
		Kind:    delta.KindNotice,
		Message: fmt.Sprintf("waiting for players: %d of %d", p.CurrentPlayers, p.MinPlayers),
	})
}

func (c *Controller) ApplyGameCountdown(p ws.GameCountdownPayload) {
	c.startCountdown(timer.SlotLobbyCountdown, p.Countdown)
}

func (c *Controller) ApplyRankedAllConnected(p ws.RankedAllConnectedPayload) {
	c.connected = len(p.Players)
	c.startCountdown(timer.SlotRankedStart, p.Countdown)
}

func (c *Controller) ApplyRankedCountdownUpdate(p ws.RankedCountdownUpdatePayload) {
	c.connected = p.ConnectedPlayers
	c.totalPlayers = p.TotalPlayers
	c.startCountdown(timer.SlotRankedStart, p.Countdown)
}

// startCountdown shows a pre-start countdown. Its expiry is cosmetic; only
// game_started begins the game.
func (c *Controller) startCountdown(slot timer.Slot, seconds int) {
	if c.room.Started() {
		return
	}
	c.countdown = seconds
	c.timers.Countdown(slot, seconds,
		func(remaining int) {
			c.countdown = remaining
			c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: slot, Remaining: remaining})
		},
		func() {
			c.countdown = 0
			c.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: slot, Remaining: 0})
		},
	)
}

func (c *Controller) cancelTimers() {
	c.timers.CancelSlot(timer.SlotLobbyCountdown)
	c.timers.CancelSlot(timer.SlotRankedStart)
	c.timers.CancelSlot(timer.SlotAutoReady)
}

// ApplyGameStarted stops every pre-start timer.
func (c *Controller) ApplyGameStarted() {
	c.cancelTimers()
	c.countdown = 0
	c.waiting = false
	c.changed("game_started")
}

// ApplyGameOver clears readiness for the next lobby.
func (c *Controller) ApplyGameOver() {
	c.cancelTimers()
	c.confirmed = false
	c.tentative = false
	c.cancelPending = false
	c.autoArmed = false
	c.countdown = 0
	c.changed("game_over")
}

// Reset returns the lobby to its initial state for a new room. Unlike
// ApplyGameOver it also rearms the one-shot ranked countdown check.
func (c *Controller) Reset() {
	c.cancelTimers()
	c.confirmed = false
	c.tentative = false
	c.cancelPending = false
	c.autoArmed = false
	c.rankedChecked = false
	c.waiting = false
	c.minPlayers = 0
	c.currentPlayers = 0
	c.readyCount = 0
	c.totalPlayers = 0
	c.connected = 0
	c.countdown = 0
	c.changed("reset")
}
