package session

import (
	"fmt"

	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/lobby"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

// RedirectTarget is where the renderer goes when the post-game countdown ends.
const RedirectTarget = "lobby"

func (o *Orchestrator) apply(msg ws.Message) {
	if o.closed {
		return
	}
	if !o.seen.Add(msg.EventID) {
		o.metrics.RecordEventDropped("duplicate")
		o.logger.Debug().Str("type", msg.Type).Str("event_id", msg.EventID).Msg("duplicate event dropped")
		return
	}
	ev, err := ws.ParseEvent(msg)
	if err != nil {
		o.metrics.RecordEventDropped("invalid")
		o.logger.Warn().Err(err).Str("type", msg.Type).Msg("event dropped")
		return
	}
	o.metrics.RecordEventReceived(msg.Type)
	o.route(ev)
}

// route hands one decoded event to the state it concerns. Each case must be
// safe to apply twice with the same payload.
func (o *Orchestrator) route(ev any) {
	switch p := ev.(type) {
	case ws.UserJoinedPayload:
		o.emit.Emit(delta.Delta{Kind: delta.KindNotice, Username: p.Username, Message: fmt.Sprintf("%s joined", p.Username)})
	case ws.UserLeftPayload:
		o.emit.Emit(delta.Delta{Kind: delta.KindNotice, Username: p.Username, Message: fmt.Sprintf("%s left", p.Username)})

	case ws.RoomStatusPayload:
		o.applyRoomStatus(p, "room_status")
	case ws.PlayerReadyStatusPayload:
		o.applyReadyStatus(p)
	case ws.CancelReadyResponsePayload:
		if err := o.lobby.ApplyCancelReadyResponse(p); err != nil {
			o.surface(err)
		}
		o.syncSelfReady()
	case ws.NotEnoughPlayersPayload:
		o.lobby.ApplyNotEnoughPlayers(p)
	case ws.GameCountdownPayload:
		o.lobby.ApplyGameCountdown(p)
	case ws.RankedAllConnectedPayload:
		o.lobby.ApplyRankedAllConnected(p)
	case ws.RankedCountdownUpdatePayload:
		o.lobby.ApplyRankedCountdownUpdate(p)
	case ws.GameStartedPayload:
		o.start(p.GameMode)

	case ws.NewQuestionPayload:
		o.start(p.GameMode)
		if o.rounds.ApplyNewQuestion(p) {
			o.room.BeginQuestion()
			o.metrics.RecordRoundStarted()
		}
	case ws.PlayerAnsweredPayload:
		o.rounds.ApplyPlayerAnswered(p)
	case ws.SomeoneAnsweredCorrectlyPayload:
		o.rounds.ApplySomeoneCorrect(p)
	case ws.SomeoneAnsweredIncorrectlyPayload:
		o.rounds.ApplySomeoneIncorrect(p)
	case ws.AnswerRejectedPayload:
		o.surface(o.rounds.ApplyAnswerRejected(p))
	case ws.AnswerResultPayload:
		o.applyAnswerResult(p)
	case ws.TimeUpPayload:
		o.rounds.ApplyTimeUp(p)
	case ws.UpdateScoresPayload:
		o.room.ApplyScores(p.Scores)
		o.roomChanged("update_scores")
	case ws.NextQuestionCountdownPayload:
		o.rounds.ApplyNextQuestionCountdown(p)

	case ws.GameOverPayload:
		o.applyGameOver(p)
	}
}

func (o *Orchestrator) roomChanged(what string) {
	o.emit.Emit(delta.Delta{Kind: delta.KindRoom, Message: what})
}

func (o *Orchestrator) applyRoomStatus(p ws.RoomStatusPayload, what string) {
	if p.RoomID != "" && o.room.RoomID() != "" && p.RoomID != o.room.RoomID() {
		o.resetRoom(p.RoomID, p.GameMode)
	}
	o.room.ApplyRoomStatus(p)
	o.lobby.ApplyRoomStatus()
	o.roomChanged(what)
}

func (o *Orchestrator) applyReadyStatus(p ws.PlayerReadyStatusPayload) {
	o.lobby.ApplyPlayerReadyStatus(p)
	if p.Username == o.room.Self() {
		o.syncSelfReady()
	} else {
		o.room.SetReady(p.Username, !p.Canceled)
	}
	o.roomChanged("player_ready_status")
}

// syncSelfReady mirrors the lobby's view of self into the room.
func (o *Orchestrator) syncSelfReady() {
	o.room.SetReady(o.room.Self(), o.lobby.State().Status == lobby.StatusReady)
}

// start applies game_started, or a first new_question that implies it.
func (o *Orchestrator) start(mode string) {
	if o.room.Started() {
		return
	}
	if mode != "" {
		o.room.SetIdentity("", mode)
	}
	o.room.MarkStarted()
	o.lobby.ApplyGameStarted()
	o.logger.Info().Str("room", o.room.RoomID()).Str("mode", string(o.room.Mode())).Msg("game started")
	o.roomChanged("game_started")
}

func (o *Orchestrator) applyAnswerResult(p ws.AnswerResultPayload) {
	points, fresh := o.rounds.ApplyAnswerResult(p)
	if !fresh {
		return
	}
	r, ok := o.rounds.Current()
	if !ok {
		return
	}
	who := p.Username
	if who == "" {
		who = o.room.Self()
	}
	if o.room.AwardPoints(who, r.QuestionNumber, points) {
		o.roomChanged("answer_result")
	}
}

func (o *Orchestrator) applyGameOver(p ws.GameOverPayload) {
	if o.room.Finished() {
		return
	}
	o.rounds.End()
	o.lobby.ApplyGameOver()
	o.room.ApplyGameOver(p)
	o.gameOver = &p

	o.logger.Info().Bool("tie", p.Tie).Str("winner", p.Winner).Bool("ranked", p.IsRanked).Msg("game over")
	o.emit.Emit(delta.Delta{Kind: delta.KindGameOver, Username: p.Winner})

	o.redirectRemaining = o.redirectSeconds
	o.timers.Countdown(timer.SlotRedirect, o.redirectSeconds,
		func(remaining int) {
			o.redirectRemaining = remaining
			o.emit.Emit(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotRedirect, Remaining: remaining})
		},
		func() {
			o.redirectRemaining = 0
			o.emit.Emit(delta.Delta{Kind: delta.KindRedirect, Message: RedirectTarget})
		},
	)
}
