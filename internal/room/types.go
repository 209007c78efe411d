package room

import "strings"

// Mode is the room's game lifecycle flavour.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeFirst    Mode = "first"
	ModeSpeed    Mode = "speed"
	ModeRanked   Mode = "ranked"
)

// DefaultRating is assigned to players the authority sent no rating for.
const DefaultRating = 1500

// ParseMode accepts the authority's mode names, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePractice:
		return ModePractice, true
	case ModeFirst:
		return ModeFirst, true
	case ModeSpeed:
		return ModeSpeed, true
	case ModeRanked:
		return ModeRanked, true
	}
	return "", false
}

// MinPlayers is the membership needed before a game may start.
func (m Mode) MinPlayers() int {
	if m == ModePractice {
		return 1
	}
	return 2
}

// Race reports whether the first correct answer closes the round for everyone.
func (m Mode) Race() bool {
	return m == ModeFirst || m == ModeRanked
}

// Player is one member of the room.
type Player struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Score    int    `json:"score"`
	Ready    bool   `json:"ready"`
}

// Snapshot is a copy of the room for read-only consumers.
type Snapshot struct {
	RoomID    string   `json:"room_id"`
	Self      string   `json:"self"`
	Mode      Mode     `json:"mode"`
	Started   bool     `json:"started"`
	Finished  bool     `json:"finished"`
	AutoStart bool     `json:"auto_start"`
	Ranked    bool     `json:"ranked"`
	Players   []Player `json:"players"`
}

// View is the read-only surface controllers get.
type View interface {
	Self() string
	RoomID() string
	Mode() Mode
	Started() bool
	Finished() bool
	AutoStart() bool
	Ranked() bool
	Has(username string) bool
	IsReady(username string) bool
	PlayerCount() int
}
