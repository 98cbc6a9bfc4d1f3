package suppliers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Scorecard is the read model behind supplier comparison views: the current
// aggregate plus the most recent history entries.
type Scorecard struct {
	SupplierID    uuid.UUID     `json:"supplier_id"`
	Name          string        `json:"name"`
	Status        Status        `json:"status"`
	Rating        Rating        `json:"rating"`
	RecentReviews []RatingEntry `json:"recent_reviews"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

const scorecardHistoryLimit = 10

// ScorecardReader serves scorecards through a redis read-through cache;
// concurrent misses for the same supplier collapse into one repository read.
type ScorecardReader struct {
	repo  RepositoryPort
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewScorecardReader constructs the reader. cache may be nil.
func NewScorecardReader(repo RepositoryPort, cache *redis.Client, ttl time.Duration) *ScorecardReader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ScorecardReader{repo: repo, cache: cache, ttl: ttl}
}

// Get returns the scorecard for one supplier.
func (r *ScorecardReader) Get(ctx context.Context, supplierID uuid.UUID) (Scorecard, error) {
	key := fmt.Sprintf("scorecard:%s", supplierID)
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key).Bytes()
		if err == nil {
			var card Scorecard
			if json.Unmarshal(raw, &card) == nil {
				return card, nil
			}
		} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
			return Scorecard{}, ctx.Err()
		}
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.build(ctx, supplierID, key)
	})
	if err != nil {
		return Scorecard{}, err
	}
	return v.(Scorecard), nil
}

func (r *ScorecardReader) build(ctx context.Context, supplierID uuid.UUID, key string) (Scorecard, error) {
	sup, err := r.repo.Get(ctx, supplierID)
	if err != nil {
		return Scorecard{}, err
	}
	history, err := r.repo.ListRatingHistory(ctx, supplierID, scorecardHistoryLimit)
	if err != nil {
		return Scorecard{}, err
	}
	card := Scorecard{
		SupplierID:    sup.ID,
		Name:          sup.Name,
		Status:        sup.Status,
		Rating:        sup.Rating,
		RecentReviews: history,
		GeneratedAt:   time.Now(),
	}
	if r.cache != nil {
		if raw, err := json.Marshal(card); err == nil {
			_ = r.cache.Set(ctx, key, raw, r.ttl).Err()
		}
	}
	return card, nil
}

// Invalidate drops a cached scorecard after a rating write.
func (r *ScorecardReader) Invalidate(ctx context.Context, supplierID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, fmt.Sprintf("scorecard:%s", supplierID)).Err()
}
