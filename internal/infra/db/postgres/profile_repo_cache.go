package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
	"membership-access/internal/infra/metrics"
	red "membership-access/internal/infra/redis"
)

var _ repository.ProfileRepository = (*profileRepoCacheDecorator)(nil)

type profileRepoCacheDecorator struct {
	inner repository.ProfileRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewProfileRepoCacheDecorator caches tier lookups under "profile:<address>".
// Only found profiles are cached, so a tier assigned later is seen at once.
func NewProfileRepoCacheDecorator(inner repository.ProfileRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ProfileRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "ProfileCache").Logger()
	return &profileRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func profileKey(address string) string {
	return fmt.Sprintf("profile:%s", address)
}

func (d *profileRepoCacheDecorator) FindByAddress(ctx context.Context, tx repository.Tx, address string) (*model.Profile, error) {
	key := profileKey(address)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p model.Profile
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("profile", "hit")
			return &p, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Msg("profile cache read failed")
	}

	metrics.IncCacheRequest("profile", "miss")
	p, err := d.inner.FindByAddress(ctx, tx, address)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("profile cache write failed")
		}
	}
	return p, nil
}

// Save invalidates before and after the write so no stale tier outlives it.
func (d *profileRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	key := profileKey(p.WalletAddress)
	_ = d.cache.Del(ctx, key)
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, key); err != nil {
		d.log.Warn().Err(err).Str("address", p.WalletAddress).Msg("profile cache invalidation failed")
	}
	return nil
}
