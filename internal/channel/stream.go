package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

// Stream is the event subscription for one room: inbound events from the
// authority and the four outbound intents.
type Stream struct {
	conn    *ws.Connection
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// DialStream opens the event subscription.
func DialStream(ctx context.Context, url string, opts ws.DialOptions, m *metrics.Metrics, logger zerolog.Logger) (*Stream, error) {
	conn, err := ws.Dial(ctx, url, opts, logger)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, m, logger), nil
}

func NewStream(conn *ws.Connection, m *metrics.Metrics, logger zerolog.Logger) *Stream {
	return &Stream{
		conn:    conn,
		metrics: m,
		logger:  logger.With().Str("component", "stream").Logger(),
	}
}

// Run pumps the connection until it drops, handing every inbound frame to
// handler in arrival order.
func (s *Stream) Run(handler func(ws.Message) error) {
	go s.conn.WritePump()
	s.conn.ReadPump(handler)
}

// Done is closed once the connection is gone.
func (s *Stream) Done() <-chan struct{} {
	return s.conn.Done()
}

func (s *Stream) Close() {
	s.conn.Close()
}

// Emit queues an outbound frame tagged with a fresh request id.
func (s *Stream) Emit(msgType string, payload any) error {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	msg.RequestID = uuid.NewString()
	err = s.conn.Send(msg)
	s.metrics.RecordOutbound(msgType, err == nil)
	if err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	s.logger.Debug().Str("type", msgType).Str("request_id", msg.RequestID).Msg("sent")
	return nil
}

func (s *Stream) PlayerReady() error {
	return s.Emit(ws.TypePlayerReady, nil)
}

func (s *Stream) PlayerCancelReady() error {
	return s.Emit(ws.TypePlayerCancelReady, nil)
}

func (s *Stream) SubmitAnswer(answer string) error {
	return s.Emit(ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Answer: answer})
}

func (s *Stream) CheckRankedCountdown() error {
	return s.Emit(ws.TypeCheckRankedCountdown, nil)
}
