package ws

import (
	"bytes"
	"encoding/json"
	"fmt"

	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

// ParseEvent decodes an inbound envelope into its typed payload value.
// The returned value is one of the *Payload structs in this package (by value).
func ParseEvent(msg Message) (any, error) {
	switch msg.Type {
	case TypeUserJoined:
		return decode[UserJoinedPayload](msg)
	case TypeUserLeft:
		return decode[UserLeftPayload](msg)
	case TypeRoomStatus:
		return decode[RoomStatusPayload](msg)
	case TypePlayerReadyStatus:
		return decode[PlayerReadyStatusPayload](msg)
	case TypeNotEnoughPlayers:
		return decode[NotEnoughPlayersPayload](msg)
	case TypeGameCountdown:
		return decode[GameCountdownPayload](msg)
	case TypeGameStarted:
		return decode[GameStartedPayload](msg)
	case TypeNewQuestion:
		return decode[NewQuestionPayload](msg)
	case TypePlayerAnswered:
		return decode[PlayerAnsweredPayload](msg)
	case TypeSomeoneAnsweredCorrectly:
		return decode[SomeoneAnsweredCorrectlyPayload](msg)
	case TypeSomeoneAnsweredIncorrectly:
		return decode[SomeoneAnsweredIncorrectlyPayload](msg)
	case TypeAnswerRejected:
		return decode[AnswerRejectedPayload](msg)
	case TypeAnswerResult:
		return decode[AnswerResultPayload](msg)
	case TypeTimeUp:
		return decode[TimeUpPayload](msg)
	case TypeUpdateScores:
		return decode[UpdateScoresPayload](msg)
	case TypeNextQuestionCountdown:
		return decode[NextQuestionCountdownPayload](msg)
	case TypeGameOver:
		return decode[GameOverPayload](msg)
	case TypeRankedCountdownUpdate:
		return decode[RankedCountdownUpdatePayload](msg)
	case TypeRankedAllConnected:
		return decode[RankedAllConnectedPayload](msg)
	case TypeCancelReadyResponse:
		return decode[CancelReadyResponsePayload](msg)
	default:
		return nil, &httperrors.Error{
			Code:    httperrors.ErrCodeUnknownMessageType,
			Message: fmt.Sprintf("unknown event type %q", msg.Type),
		}
	}
}

func decode[T any](msg Message) (any, error) {
	var payload T
	raw := bytes.TrimSpace(msg.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &httperrors.Error{
			Code:    httperrors.ErrCodeInvalidPayload,
			Message: fmt.Sprintf("decode %s: %v", msg.Type, err),
			Err:     err,
		}
	}
	return payload, nil
}
