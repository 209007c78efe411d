package channel

import "github.com/gokatarajesh/quiz-session/pkg/http/ws"

// Match queue statuses reported by the authority.
const (
	MatchWaiting    = "waiting"
	MatchMatched    = "matched"
	MatchNotInQueue = "not_in_queue"
	MatchCanceled   = "canceled"
)

// Supported difficulties for room creation.
var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

// RoomIdentity is the room the authority has bound to this participant's session.
type RoomIdentity struct {
	RoomID   string `json:"room_id"`
	GameMode string `json:"game_mode"`
}

// RoomSummary describes the bound room's settings.
type RoomSummary struct {
	RoomID        string     `json:"room_id"`
	GameMode      string     `json:"game_mode"`
	Difficulty    string     `json:"difficulty"`
	GameTime      ws.FlexInt `json:"game_time"`
	QuestionCount int        `json:"question_count"`
	PlayersCount  int        `json:"players_count"`
	IsRanked      bool       `json:"is_ranked"`
}

// RoomDetails is a summary plus the current membership snapshot.
type RoomDetails struct {
	RoomSummary
	Players     []string        `json:"players"`
	Scores      map[string]int  `json:"scores"`
	Ready       map[string]bool `json:"ready"`
	Ratings     map[string]int  `json:"ratings"`
	GameStarted bool            `json:"game_started"`
	AutoStart   bool            `json:"auto_start"`
}

// RoomStatus converts details into the shape room_status carries.
func (d RoomDetails) RoomStatus() ws.RoomStatusPayload {
	return ws.RoomStatusPayload{
		RoomID:      d.RoomID,
		Players:     d.Players,
		Scores:      d.Scores,
		Ready:       d.Ready,
		Ratings:     d.Ratings,
		GameStarted: d.GameStarted,
		GameMode:    d.GameMode,
		IsRanked:    d.IsRanked,
		AutoStart:   d.AutoStart,
	}
}

// CreateRoomRequest holds the create-room form. RoomID is optional.
type CreateRoomRequest struct {
	RoomID           string
	Difficulty       string
	GameMode         string
	QuestionCount    int
	TimeLimitSeconds int
}

// MatchStatus is the response of the ranked queue endpoints.
type MatchStatus struct {
	Status        string `json:"status"`
	RoomID        string `json:"room_id,omitempty"`
	Opponent      string `json:"opponent,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
	Message       string `json:"message,omitempty"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type leaderboardResponse struct {
	Players []LeaderboardEntry `json:"players"`
}
