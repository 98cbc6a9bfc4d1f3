package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AlertGate rate-limits low-rating alerts per supplier so a burst of bad
// reviews produces one operational mail, not one per review.
type AlertGate struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewAlertGate constructs the gate.
func NewAlertGate(client *redis.Client, ttl time.Duration, logger *slog.Logger) *AlertGate {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AlertGate{client: client, ttl: ttl, logger: logger}
}

// ShouldAlert claims the per-supplier alert slot. When redis is unreachable
// the gate fails open: a duplicate alert beats a swallowed one.
func (g *AlertGate) ShouldAlert(ctx context.Context, supplierID uuid.UUID) bool {
	if g == nil || g.client == nil {
		return true
	}
	key := fmt.Sprintf("alerts:low-rating:%s", supplierID)
	ok, err := g.client.SetNX(ctx, key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		g.logger.Warn("alert gate unavailable", slog.Any("error", err))
		return true
	}
	return ok
}
