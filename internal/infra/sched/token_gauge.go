package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-access/internal/domain/model"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
)

type TokenCounter interface {
	CountByStatus(ctx context.Context) (map[model.TokenStatus]int, error)
}

// PoolStats reports total, idle and in-use connections.
type PoolStats func() (total, idle, inUse int32)

// TokenGaugeRefresher keeps the token status and pool gauges current.
type TokenGaugeRefresher struct {
	interval time.Duration
	tokens   TokenCounter
	pool     PoolStats
	log      *zerolog.Logger
}

func NewTokenGaugeRefresher(interval time.Duration, tokens TokenCounter, pool PoolStats, logger *zerolog.Logger) *TokenGaugeRefresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "TokenGaugeRefresher").Logger()
	return &TokenGaugeRefresher{interval: interval, tokens: tokens, pool: pool, log: &l}
}

// Run refreshes once immediately, then on every tick.
func (w *TokenGaugeRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *TokenGaugeRefresher) refresh(ctx context.Context) {
	defer logging.TraceDuration(w.log, "TokenGaugeRefresher.refresh")()
	if w.pool != nil {
		metrics.SetDBPoolStats(w.pool())
	}
	counts, err := w.tokens.CountByStatus(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("token gauge refresh failed")
		return
	}
	metrics.SetTokenCounts(counts)
}
