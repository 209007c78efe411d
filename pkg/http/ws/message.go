package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MessageType constants for the room event protocol.
const (
	// Client -> Server
	TypePlayerReady          = "player_ready"
	TypePlayerCancelReady    = "player_cancel_ready"
	TypeSubmitAnswer         = "submit_answer"
	TypeCheckRankedCountdown = "check_ranked_countdown"

	// Server -> Client
	TypeUserJoined                 = "user_joined"
	TypeUserLeft                   = "user_left"
	TypeRoomStatus                 = "room_status"
	TypePlayerReadyStatus          = "player_ready_status"
	TypeNotEnoughPlayers           = "not_enough_players"
	TypeGameCountdown              = "game_countdown"
	TypeGameStarted                = "game_started"
	TypeNewQuestion                = "new_question"
	TypePlayerAnswered             = "player_answered"
	TypeSomeoneAnsweredCorrectly   = "someone_answered_correctly"
	TypeSomeoneAnsweredIncorrectly = "someone_answered_incorrectly"
	TypeAnswerRejected             = "answer_rejected"
	TypeAnswerResult               = "answer_result"
	TypeTimeUp                     = "time_up"
	TypeUpdateScores               = "update_scores"
	TypeNextQuestionCountdown      = "next_question_countdown"
	TypeGameOver                   = "game_over"
	TypeRankedCountdownUpdate      = "ranked_countdown_update"
	TypeRankedAllConnected         = "ranked_all_connected"
	TypeCancelReadyResponse        = "cancel_ready_response"
)

// DefaultQuestionSeconds is used when new_question carries no usable time limit.
const DefaultQuestionSeconds = 30

// Message wraps all WebSocket payloads with type, optional request ID and
// an optional server-assigned event ID used for duplicate suppression.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
}

// NewMessage marshals payload into a typed envelope. A nil payload yields an empty body.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// FlexInt decodes integers sent either as JSON numbers or numeric strings
// (the authority sends game_time as "30").
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("flexint %q: %w", s, err)
		}
		*f = FlexInt(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, err := n.Int64(); err == nil {
		*f = FlexInt(v)
		return nil
	}
	fv, err := n.Float64()
	if err != nil {
		return err
	}
	*f = FlexInt(int64(fv))
	return nil
}

// Client Messages (outgoing)

type SubmitAnswerPayload struct {
	Answer string `json:"answer"`
}

// Server Messages (incoming)

type UserJoinedPayload struct {
	Username string `json:"username"`
}

type UserLeftPayload struct {
	Username string `json:"username"`
}

type RoomStatusPayload struct {
	RoomID      string          `json:"room_id,omitempty"`
	Players     []string        `json:"players"`
	Scores      map[string]int  `json:"scores"`
	Ready       map[string]bool `json:"ready"`
	Ratings     map[string]int  `json:"ratings"`
	GameStarted bool            `json:"game_started"`
	GameMode    string          `json:"game_mode,omitempty"`
	IsRanked    bool            `json:"is_ranked,omitempty"`
	AutoStart   bool            `json:"auto_start,omitempty"`
}

type PlayerReadyStatusPayload struct {
	Username     string `json:"username"`
	ReadyCount   int    `json:"ready_count"`
	TotalPlayers int    `json:"total_players"`
	Canceled     bool   `json:"canceled,omitempty"`
}

type NotEnoughPlayersPayload struct {
	GameMode       string `json:"game_mode"`
	MinPlayers     int    `json:"min_players"`
	CurrentPlayers int    `json:"current_players"`
}

type GameCountdownPayload struct {
	Countdown int `json:"countdown"`
}

type NextQuestionCountdownPayload struct {
	Countdown int `json:"countdown"`
}

type GameStartedPayload struct {
	GameMode string `json:"game_mode,omitempty"`
}

type NewQuestionPayload struct {
	QuestionNumber int      `json:"question_number"`
	QuestionCount  int      `json:"question_count"`
	A              int64    `json:"a"`
	P              int64    `json:"p"`
	GameMode       string   `json:"game_mode"`
	GameTime       *FlexInt `json:"game_time,omitempty"`
	TimeLimit      *FlexInt `json:"time_limit,omitempty"`
}

// TimeLimitSeconds prefers game_time, then time_limit, then the default.
func (p NewQuestionPayload) TimeLimitSeconds() int {
	if p.GameTime != nil && *p.GameTime > 0 {
		return int(*p.GameTime)
	}
	if p.TimeLimit != nil && *p.TimeLimit > 0 {
		return int(*p.TimeLimit)
	}
	return DefaultQuestionSeconds
}

type PlayerAnsweredPayload struct {
	Username string `json:"username"`
}

type SomeoneAnsweredCorrectlyPayload struct {
	Username  string `json:"username"`
	Mode      string `json:"mode"`
	StopTimer bool   `json:"stop_timer"`
}

type SomeoneAnsweredIncorrectlyPayload struct {
	Username string `json:"username"`
	Mode     string `json:"mode"`
}

type AnswerRejectedPayload struct {
	Message string `json:"message"`
}

type AnswerResultPayload struct {
	Username      string   `json:"username"`
	Correct       bool     `json:"correct"`
	Points        int      `json:"points"`
	TimeTaken     float64  `json:"time_taken,omitempty"`
	CorrectAnswer *FlexInt `json:"correct_answer,omitempty"`
}

type TimeUpPayload struct {
	CorrectAnswer *FlexInt `json:"correct_answer,omitempty"`
}

type UpdateScoresPayload struct {
	Scores map[string]int `json:"scores"`
}

type GameOverPayload struct {
	Tie           bool           `json:"tie"`
	Winner        string         `json:"winner,omitempty"`
	TiedPlayers   []string       `json:"tied_players,omitempty"`
	Scores        map[string]int `json:"scores"`
	IsRanked      bool           `json:"is_ranked"`
	OldRatings    map[string]int `json:"old_ratings,omitempty"`
	RatingChanges map[string]int `json:"rating_changes,omitempty"`
}

type RankedCountdownUpdatePayload struct {
	Countdown        int `json:"countdown"`
	TotalPlayers     int `json:"total_players"`
	ConnectedPlayers int `json:"connected_players"`
}

type RankedAllConnectedPayload struct {
	Players   []string `json:"players"`
	Countdown int      `json:"countdown"`
}

type CancelReadyResponsePayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
