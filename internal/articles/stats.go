package articles

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/inms/inms/internal/authz"
)

const (
	statsCacheKey = "articles:stats"
	statsCacheTTL = 30 * time.Second
)

// StatusCounts holds the dashboard counters.
type StatusCounts struct {
	Draft    int `json:"draft"`
	Review   int `json:"review"`
	Approved int `json:"approved"`
	Total    int `json:"total"`
}

// Stats serves status counts from Redis with a singleflight guard so a
// cold cache triggers one database query no matter how many dashboard
// requests race.
type Stats struct {
	repo   RepositoryPort
	cache  *redis.Client
	group  singleflight.Group
	logger *slog.Logger
}

// NewStats constructs the stats reader. A nil cache client degrades to
// querying the database each time.
func NewStats(repo RepositoryPort, cache *redis.Client, logger *slog.Logger) *Stats {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{repo: repo, cache: cache, logger: logger}
}

// Counts returns the current per-status article counts.
func (s *Stats) Counts(ctx context.Context) (StatusCounts, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, statsCacheKey).Bytes()
		if err == nil {
			var cached StatusCounts
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("stats cache read", slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(statsCacheKey, func() (any, error) {
		counts, err := s.repo.CountByStatus(ctx)
		if err != nil {
			return StatusCounts{}, err
		}
		out := StatusCounts{
			Draft:    counts[string(authz.StatusDraft)],
			Review:   counts[string(authz.StatusReview)],
			Approved: counts[string(authz.StatusApproved)],
		}
		out.Total = out.Draft + out.Review + out.Approved

		if s.cache != nil {
			if raw, err := json.Marshal(out); err == nil {
				if err := s.cache.Set(ctx, statsCacheKey, raw, statsCacheTTL).Err(); err != nil {
					s.logger.Warn("stats cache write", slog.Any("error", err))
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return StatusCounts{}, err
	}
	return v.(StatusCounts), nil
}

// Invalidate drops the cached counters after a write.
func (s *Stats) Invalidate(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("stats cache invalidate", slog.Any("error", err))
	}
}
