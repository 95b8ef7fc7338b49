package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
	red "membership-access/internal/infra/redis"
)

const closerLockKey = "lock:governance:close_expired"

// ExpiredCloser is the part of the proposal use case the closer drives.
type ExpiredCloser interface {
	CloseExpired(ctx context.Context) (int64, error)
}

// ProposalCloser periodically closes active proposals whose deadline passed.
// With a locker, only one instance runs a sweep at a time.
type ProposalCloser struct {
	interval time.Duration
	uc       ExpiredCloser
	locker   red.Locker
	log      *zerolog.Logger
}

func NewProposalCloser(interval time.Duration, uc ExpiredCloser, locker red.Locker, logger *zerolog.Logger) *ProposalCloser {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "ProposalCloser").Logger()
	return &ProposalCloser{interval: interval, uc: uc, locker: locker, log: &l}
}

func (w *ProposalCloser) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting proposal closer")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping proposal closer")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ProposalCloser) tick(ctx context.Context) int64 {
	defer logging.TraceDuration(w.log, "ProposalCloser.tick")()
	if w.locker != nil {
		tok, err := w.locker.TryLock(ctx, closerLockKey, w.interval)
		if err != nil {
			if !errors.Is(err, red.ErrLockNotAcquired) {
				w.log.Warn().Err(err).Msg("closer lock unavailable")
			}
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), closerLockKey, tok); err != nil {
				w.log.Warn().Err(err).Msg("closer unlock failed")
			}
		}()
	}

	n, err := w.uc.CloseExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("proposal closer error")
		return 0
	}
	if n > 0 {
		metrics.AddProposalsClosed(n)
		w.log.Info().Int64("count", n).Msg("expired proposals closed")
	}
	return n
}
