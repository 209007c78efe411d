// Package session composes the room, round, lobby and matchmaking state
// machines behind one loop and routes the authority's events to them.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/lobby"
	"github.com/gokatarajesh/quiz-session/internal/loop"
	"github.com/gokatarajesh/quiz-session/internal/matchmaking"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/room"
	"github.com/gokatarajesh/quiz-session/internal/round"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

const (
	DefaultRedirectSeconds = 100
	DefaultLeaveTimeout    = 3 * time.Second
)

// Link is the outbound half of an attached room stream.
type Link interface {
	PlayerReady() error
	PlayerCancelReady() error
	SubmitAnswer(answer string) error
	CheckRankedCountdown() error
}

// API is the request/response surface the session calls.
type API interface {
	matchmaking.API
	RoomIdentity(ctx context.Context) (channel.RoomIdentity, error)
	RoomSummary(ctx context.Context) (channel.RoomSummary, error)
	RoomDetails(ctx context.Context) (channel.RoomDetails, error)
	LeaveRoom(ctx context.Context) error
	JoinRoom(ctx context.Context, roomID string) (channel.RoomIdentity, error)
	CreateRoom(ctx context.Context, req channel.CreateRoomRequest) (channel.RoomIdentity, error)
}

type Options struct {
	Self       string
	Dispatcher loop.Dispatcher
	// Timers defaults to a timer.Service on Clock.
	Timers  timer.Scheduler
	Clock   clockwork.Clock
	Emit    delta.Sink
	Metrics *metrics.Metrics

	AutoReadyDelay  time.Duration
	PollInterval    time.Duration
	StaleAfter      time.Duration
	RedirectSeconds int
	LeaveTimeout    time.Duration
	DedupeWindow    int
}

// Snapshot is a read-only copy of everything the renderer shows.
type Snapshot struct {
	Room              room.Snapshot
	Round             *round.Round
	Lobby             lobby.State
	Ticket            matchmaking.Ticket
	GameOver          *ws.GameOverPayload
	Attached          bool
	RedirectRemaining int
}

// Orchestrator owns the room state. Every mutation runs on the dispatcher;
// exported methods may be called from any goroutine.
type Orchestrator struct {
	dispatch loop.Dispatcher
	timers   timer.Scheduler
	api      API
	emit     delta.Sink
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	room   *room.State
	rounds *round.Controller
	lobby  *lobby.Controller
	match  *matchmaking.Client
	seen   *dedupe

	link              Link
	gameOver          *ws.GameOverPayload
	redirectSeconds   int
	redirectRemaining int
	leaveTimeout      time.Duration
	closed            bool
}

func New(api API, opts Options, logger zerolog.Logger) *Orchestrator {
	logger = logger.With().Str("component", "session").Logger()
	timers := opts.Timers
	if timers == nil {
		timers = timer.NewService(opts.Clock, opts.Dispatcher, logger)
	}
	redirect := opts.RedirectSeconds
	if redirect <= 0 {
		redirect = DefaultRedirectSeconds
	}
	leave := opts.LeaveTimeout
	if leave <= 0 {
		leave = DefaultLeaveTimeout
	}

	o := &Orchestrator{
		dispatch:        opts.Dispatcher,
		timers:          timers,
		api:             api,
		emit:            opts.Emit,
		metrics:         opts.Metrics,
		logger:          logger,
		room:            room.New(opts.Self),
		seen:            newDedupe(opts.DedupeWindow),
		redirectSeconds: redirect,
		leaveTimeout:    leave,
	}
	out := linkProxy{o}
	o.rounds = round.NewController(timers, o.room, out, opts.Emit, opts.Clock, logger)
	o.lobby = lobby.NewController(timers, o.room, out, opts.Emit, lobby.Options{AutoReadyDelay: opts.AutoReadyDelay}, logger)
	o.match = matchmaking.NewClient(api, opts.Dispatcher, timers, opts.Emit, opts.Metrics,
		matchmaking.Options{PollInterval: opts.PollInterval, StaleAfter: opts.StaleAfter}, logger)
	return o
}

// linkProxy lets controllers send through whichever stream is attached.
type linkProxy struct{ o *Orchestrator }

func (p linkProxy) get() (Link, error) {
	if p.o.link == nil {
		return nil, httperrors.ErrNotConnected
	}
	return p.o.link, nil
}

func (p linkProxy) PlayerReady() error {
	l, err := p.get()
	if err != nil {
		return err
	}
	return l.PlayerReady()
}

func (p linkProxy) PlayerCancelReady() error {
	l, err := p.get()
	if err != nil {
		return err
	}
	return l.PlayerCancelReady()
}

func (p linkProxy) SubmitAnswer(answer string) error {
	l, err := p.get()
	if err != nil {
		return err
	}
	return l.SubmitAnswer(answer)
}

func (p linkProxy) CheckRankedCountdown() error {
	l, err := p.get()
	if err != nil {
		return err
	}
	return l.CheckRankedCountdown()
}

// run executes fn on the loop and returns its error.
func (o *Orchestrator) run(ctx context.Context, fn func() error) error {
	var err error
	if cerr := o.dispatch.Call(ctx, func() {
		if o.closed {
			err = httperrors.ErrSessionClosed
			return
		}
		err = fn()
	}); cerr != nil {
		return cerr
	}
	return err
}

func (o *Orchestrator) surface(err error) {
	o.emit.Emit(delta.Delta{Kind: delta.KindError, Message: err.Error(), Err: err})
}

// SetSelf records the participant's username once it is known.
func (o *Orchestrator) SetSelf(ctx context.Context, username string) error {
	return o.run(ctx, func() error {
		o.room.SetSelf(username)
		return nil
	})
}

// Attach binds the outbound half of a room stream, looks up the room the
// authority associates with this session and seeds membership from its
// details so a reconnect does not wait for the next room_status.
func (o *Orchestrator) Attach(ctx context.Context, link Link) error {
	return o.run(ctx, func() error {
		o.link = link
		o.emit.Emit(delta.Delta{Kind: delta.KindNotice, Message: "connected"})
		o.dispatch.Go(func(ctx context.Context) func() {
			var id channel.RoomIdentity
			err := withRetry(ctx, func(ctx context.Context) error {
				var err error
				id, err = o.api.RoomIdentity(ctx)
				return err
			})
			if err != nil {
				return func() { o.logger.Warn().Err(err).Msg("room identity lookup failed") }
			}
			var details *channel.RoomDetails
			if id.RoomID != "" {
				if d, err := o.api.RoomDetails(ctx); err != nil {
					o.logger.Debug().Err(err).Str("room", id.RoomID).Msg("room details unavailable")
				} else {
					details = &d
				}
			}
			return func() {
				if o.closed {
					return
				}
				o.bindRoom(id.RoomID, id.GameMode, false)
				if details != nil && details.RoomID == o.room.RoomID() {
					o.applyRoomStatus(details.RoomStatus(), "room_details")
				}
				o.roomChanged("identity")
			}
		})
		return nil
	})
}

// Detach unbinds the stream. Outbound actions fail with ErrNotConnected until
// the next Attach.
func (o *Orchestrator) Detach(ctx context.Context) error {
	return o.run(ctx, func() error {
		if o.link == nil {
			return nil
		}
		o.link = nil
		o.emit.Emit(delta.Delta{Kind: delta.KindNotice, Message: "disconnected"})
		return nil
	})
}

// JoinRoom asks the authority to join roomID. The id is validated first.
func (o *Orchestrator) JoinRoom(ctx context.Context, roomID string) (channel.RoomIdentity, error) {
	id, err := o.api.JoinRoom(ctx, roomID)
	if err != nil {
		return id, err
	}
	return id, o.run(ctx, func() error {
		o.bindRoom(id.RoomID, id.GameMode, true)
		return nil
	})
}

// CreateRoom asks the authority for a new room.
func (o *Orchestrator) CreateRoom(ctx context.Context, req channel.CreateRoomRequest) (channel.RoomIdentity, error) {
	id, err := o.api.CreateRoom(ctx, req)
	if err != nil {
		return id, err
	}
	if id.GameMode == "" {
		id.GameMode = req.GameMode
	}
	return id, o.run(ctx, func() error {
		o.bindRoom(id.RoomID, id.GameMode, true)
		return nil
	})
}

// bindRoom records which room the session is in. Moving to a different room
// starts from a clean slate, as does an explicit entry into a room whose
// game already finished.
func (o *Orchestrator) bindRoom(roomID, mode string, entering bool) {
	cur := o.room.RoomID()
	moved := roomID != "" && cur != "" && roomID != cur
	if moved || (entering && o.room.Finished()) {
		o.resetRoom(roomID, mode)
		return
	}
	o.room.SetIdentity(roomID, mode)
}

// resetRoom drops everything tied to the previous room. The ticket and the
// attached link survive.
func (o *Orchestrator) resetRoom(roomID, mode string) {
	o.logger.Info().Str("from", o.room.RoomID()).Str("to", roomID).Msg("room reset")
	o.rounds.Reset()
	o.lobby.Reset()
	o.timers.CancelSlot(timer.SlotRedirect)
	o.room.Reset(roomID, mode)
	o.gameOver = nil
	o.redirectRemaining = 0
	o.roomChanged("room_reset")
}

// RoomSummary fetches the bound room's settings.
func (o *Orchestrator) RoomSummary(ctx context.Context) (channel.RoomSummary, error) {
	return o.api.RoomSummary(ctx)
}

func (o *Orchestrator) MarkReady(ctx context.Context) error {
	return o.run(ctx, o.lobby.MarkReady)
}

func (o *Orchestrator) CancelReady(ctx context.Context) error {
	return o.run(ctx, o.lobby.CancelReady)
}

func (o *Orchestrator) SubmitAnswer(ctx context.Context, raw string) error {
	return o.run(ctx, func() error {
		if err := o.rounds.Submit(raw); err != nil {
			return err
		}
		o.metrics.RecordAnswerSubmitted()
		return nil
	})
}

func (o *Orchestrator) JoinQueue(ctx context.Context) error {
	return o.run(ctx, o.match.JoinQueue)
}

func (o *Orchestrator) CancelQueue(ctx context.Context) error {
	return o.run(ctx, o.match.CancelQueue)
}

// ConfirmMatch accepts the match and returns the room to join.
func (o *Orchestrator) ConfirmMatch(ctx context.Context) (string, error) {
	var roomID string
	err := o.run(ctx, func() error {
		var err error
		roomID, err = o.match.ConfirmMatch()
		if err != nil {
			return err
		}
		o.bindRoom(roomID, string(room.ModeRanked), true)
		return nil
	})
	return roomID, err
}

func (o *Orchestrator) ResetMatch(ctx context.Context) error {
	return o.run(ctx, o.match.ResetMatch)
}

// Snapshot copies the current state on the loop.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.run(ctx, func() error {
		snap = o.snapshot()
		return nil
	})
	return snap, err
}

func (o *Orchestrator) snapshot() Snapshot {
	snap := Snapshot{
		Room:              o.room.Snapshot(),
		Lobby:             o.lobby.State(),
		Ticket:            o.match.Ticket(),
		Attached:          o.link != nil,
		RedirectRemaining: o.redirectRemaining,
	}
	if r, ok := o.rounds.Current(); ok {
		snap.Round = &r
	}
	if o.gameOver != nil {
		g := *o.gameOver
		snap.GameOver = &g
	}
	return snap
}

// Leave stops the room's timers, forgets the room, detaches and tells the
// authority. The notification is best effort.
func (o *Orchestrator) Leave(ctx context.Context) error {
	if err := o.run(ctx, func() error {
		o.teardownRoom()
		o.resetRoom("", "")
		return nil
	}); err != nil {
		return err
	}
	o.notifyLeave(ctx)
	return nil
}

func (o *Orchestrator) teardownRoom() {
	o.rounds.End()
	o.lobby.ApplyGameOver()
	o.timers.CancelSlot(timer.SlotRedirect)
	o.link = nil
}

func (o *Orchestrator) notifyLeave(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, o.leaveTimeout)
	defer cancel()
	if err := withRetry(ctx, o.api.LeaveRoom); err != nil {
		o.logger.Warn().Err(err).Msg("leave room failed")
	}
}

// Close ends the session: every timer and the polling loop stop, the
// authority is told we left, then the stream is released.
func (o *Orchestrator) Close(ctx context.Context) error {
	var link Link
	var inRoom bool
	if err := o.dispatch.Call(ctx, func() {
		if o.closed {
			return
		}
		o.closed = true
		o.timers.CancelAll()
		o.match.Stop()
		inRoom = o.room.RoomID() != "" || o.link != nil
		link = o.link
		o.link = nil
	}); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if inRoom {
		o.notifyLeave(ctx)
	}
	if c, ok := link.(interface{ Close() }); ok {
		c.Close()
	}
	o.logger.Info().Msg("session closed")
	return nil
}

// Deliver queues one inbound frame for the loop. It never blocks and is
// safe to use as a stream handler.
func (o *Orchestrator) Deliver(msg ws.Message) error {
	o.dispatch.Post(func() { o.apply(msg) })
	return nil
}
