package room

import (
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

type awardKey struct {
	question int
	username string
}

// State mirrors the authority's view of one room. It is owned by the session
// and only mutated on the session loop.
type State struct {
	self      string
	roomID    string
	mode      Mode
	started   bool
	finished  bool
	autoStart bool
	ranked    bool

	order   []string
	players map[string]*Player

	// score each player had when the current question began
	baseline map[string]int
	awarded  map[awardKey]struct{}
}

var _ View = (*State)(nil)

// New returns an empty room as seen by self.
func New(self string) *State {
	return &State{
		self:     self,
		mode:     ModeFirst,
		players:  make(map[string]*Player),
		baseline: make(map[string]int),
		awarded:  make(map[awardKey]struct{}),
	}
}

func (s *State) Self() string     { return s.self }
func (s *State) RoomID() string   { return s.roomID }
func (s *State) Mode() Mode       { return s.mode }
func (s *State) Started() bool    { return s.started }
func (s *State) Finished() bool   { return s.finished }
func (s *State) AutoStart() bool  { return s.autoStart }
func (s *State) Ranked() bool     { return s.ranked }
func (s *State) PlayerCount() int { return len(s.order) }
func (s *State) SetSelf(u string) { s.self = u }

func (s *State) Has(username string) bool {
	_, ok := s.players[username]
	return ok
}

func (s *State) IsReady(username string) bool {
	p, ok := s.players[username]
	return ok && p.Ready
}

// Player returns a copy of the named player.
func (s *State) Player(username string) (Player, bool) {
	p, ok := s.players[username]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// SetIdentity records the room id and, while the game has not started, its mode.
func (s *State) SetIdentity(roomID string, mode string) {
	if roomID != "" {
		s.roomID = roomID
	}
	s.setMode(mode, false)
}

// Reset forgets everything about the previous room, keeping only self, and
// binds the state to roomID.
func (s *State) Reset(roomID, mode string) {
	*s = *New(s.self)
	s.SetIdentity(roomID, mode)
}

func (s *State) setMode(raw string, ranked bool) {
	if ranked {
		s.ranked = true
	}
	if s.started {
		return
	}
	if s.ranked {
		s.mode = ModeRanked
		return
	}
	if m, ok := ParseMode(raw); ok {
		s.mode = m
		if m == ModeRanked {
			s.ranked = true
		}
	}
}

// ApplyRoomStatus replaces membership with the authority's list, keeping
// per-player records for members that remain.
func (s *State) ApplyRoomStatus(p ws.RoomStatusPayload) {
	if p.RoomID != "" {
		s.roomID = p.RoomID
	}
	s.setMode(p.GameMode, p.IsRanked)
	if p.AutoStart {
		s.autoStart = true
	}

	next := make(map[string]*Player, len(p.Players))
	order := make([]string, 0, len(p.Players))
	for _, name := range p.Players {
		if name == "" {
			continue
		}
		if _, dup := next[name]; dup {
			continue
		}
		pl, ok := s.players[name]
		if !ok {
			pl = &Player{Username: name, Rating: DefaultRating}
		}
		if score, ok := p.Scores[name]; ok {
			pl.Score = clampScore(score)
		}
		if rating, ok := p.Ratings[name]; ok {
			pl.Rating = rating
		}
		pl.Ready = p.Ready[name]
		next[name] = pl
		order = append(order, name)
	}
	s.players = next
	s.order = order

	if p.GameStarted {
		s.MarkStarted()
	}
}

// ApplyScores sets absolute scores for known players.
func (s *State) ApplyScores(scores map[string]int) {
	for name, score := range scores {
		if pl, ok := s.players[name]; ok {
			pl.Score = clampScore(score)
		}
	}
}

// SetReady records a readiness change for a known player.
func (s *State) SetReady(username string, ready bool) bool {
	pl, ok := s.players[username]
	if !ok || pl.Ready == ready {
		return false
	}
	pl.Ready = ready
	return true
}

// ResetReady clears readiness for everyone.
func (s *State) ResetReady() {
	for _, pl := range s.players {
		pl.Ready = false
	}
}

// BeginQuestion snapshots scores so awards for the question can be reconciled
// with absolute score updates arriving in either order.
func (s *State) BeginQuestion() {
	for name, pl := range s.players {
		s.baseline[name] = pl.Score
	}
}

// AwardPoints credits points to username for question once. It reports
// whether the award was new.
func (s *State) AwardPoints(username string, question, points int) bool {
	key := awardKey{question: question, username: username}
	if _, seen := s.awarded[key]; seen {
		return false
	}
	s.awarded[key] = struct{}{}

	pl, ok := s.players[username]
	if !ok || points <= 0 {
		return true
	}
	if target := s.baseline[username] + points; target > pl.Score {
		pl.Score = target
	}
	return true
}

// MarkStarted flips started once per session.
func (s *State) MarkStarted() bool {
	if s.started {
		return false
	}
	s.started = true
	return true
}

// ApplyGameOver records final scores and, for ranked games, updated ratings.
func (s *State) ApplyGameOver(p ws.GameOverPayload) {
	s.ApplyScores(p.Scores)
	if p.IsRanked {
		s.ranked = true
		for name, old := range p.OldRatings {
			if pl, ok := s.players[name]; ok {
				pl.Rating = old + p.RatingChanges[name]
			}
		}
	}
	s.ResetReady()
	s.finished = true
}

// Snapshot copies the room in membership order.
func (s *State) Snapshot() Snapshot {
	players := make([]Player, 0, len(s.order))
	for _, name := range s.order {
		players = append(players, *s.players[name])
	}
	return Snapshot{
		RoomID:    s.roomID,
		Self:      s.self,
		Mode:      s.mode,
		Started:   s.started,
		Finished:  s.finished,
		AutoStart: s.autoStart,
		Ranked:    s.ranked,
		Players:   players,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
