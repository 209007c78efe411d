// Package leaderboard serves the ranked ladder to the renderer, caching the
// authority's answer so repeated lookups stay cheap.
package leaderboard

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/channel"
)

const defaultTopN = 50

// Fetcher loads the ladder from the authority.
type Fetcher interface {
	Leaderboard(ctx context.Context) ([]channel.LeaderboardEntry, error)
}

// Cache stores the last ladder. A miss returns nil, nil.
type Cache interface {
	Get(ctx context.Context) ([]channel.LeaderboardEntry, error)
	Set(ctx context.Context, entries []channel.LeaderboardEntry) error
}

// Entry is one row of the ladder as shown.
type Entry struct {
	Rank     int
	Username string
	Rating   int
	Self     bool
}

type ServiceOptions struct {
	TopN int
	Self string
}

type Service struct {
	fetcher Fetcher
	cache   Cache
	topN    int
	self    string
	logger  zerolog.Logger
}

// NewService builds a service. cache may be nil.
func NewService(fetcher Fetcher, cache Cache, opts ServiceOptions, logger zerolog.Logger) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		topN:    topN,
		self:    opts.Self,
		logger:  logger.With().Str("component", "leaderboard").Logger(),
	}
}

// Top returns the ladder ordered by rating, highest first. Cache failures
// are logged and fall through to the authority.
func (s *Service) Top(ctx context.Context) ([]Entry, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.rank(raw), nil
}

func (s *Service) load(ctx context.Context) ([]channel.LeaderboardEntry, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("leaderboard cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	fresh, err := s.fetcher.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, fresh); err != nil {
			s.logger.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return fresh, nil
}

func (s *Service) rank(raw []channel.LeaderboardEntry) []Entry {
	sorted := make([]channel.LeaderboardEntry, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating > sorted[j].Rating
		}
		return strings.ToLower(sorted[i].Username) < strings.ToLower(sorted[j].Username)
	})
	if len(sorted) > s.topN {
		sorted = sorted[:s.topN]
	}

	out := make([]Entry, 0, len(sorted))
	for i, e := range sorted {
		out = append(out, Entry{
			Rank:     i + 1,
			Username: e.Username,
			Rating:   e.Rating,
			Self:     s.self != "" && e.Username == s.self,
		})
	}
	return out
}
