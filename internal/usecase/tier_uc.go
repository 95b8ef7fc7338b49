package usecase

import (
	"context"
	"errors"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
	"membership-access/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// TierUseCase reads and assigns membership tiers per wallet address.
// It also serves as the TierResolver used by voting.
type TierUseCase interface {
	adapter.TierResolver
	GetTier(ctx context.Context, address string) (*model.Profile, error)
	SetTier(ctx context.Context, address, tier string) (*model.Profile, error)
}

var _ TierUseCase = (*tierUC)(nil)

type tierUC struct {
	profiles repository.ProfileRepository
	log      *zerolog.Logger
	options
}

func NewTierUseCase(profiles repository.ProfileRepository, logger *zerolog.Logger, opts ...Option) TierUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "TierUseCase").Logger()
	return &tierUC{profiles: profiles, log: &l, options: buildOptions(opts)}
}

// ResolveTier returns NOMAD for addresses without a profile.
func (uc *tierUC) ResolveTier(ctx context.Context, address string) (model.Tier, error) {
	addr, ok := normalizeAddress(address)
	if !ok {
		return "", domain.NewValidationError("address")
	}
	p, err := uc.profiles.FindByAddress(ctx, repository.NoTX, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.TierNomad, nil
		}
		return "", err
	}
	return p.Tier, nil
}

// GetTier returns the stored profile, or an unsaved NOMAD profile.
func (uc *tierUC) GetTier(ctx context.Context, address string) (*model.Profile, error) {
	addr, ok := normalizeAddress(address)
	if !ok {
		return nil, domain.NewValidationError("address")
	}
	p, err := uc.profiles.FindByAddress(ctx, repository.NoTX, addr)
	if errors.Is(err, domain.ErrNotFound) {
		return &model.Profile{WalletAddress: addr, Tier: model.TierNomad}, nil
	}
	return p, err
}

func (uc *tierUC) SetTier(ctx context.Context, address, tier string) (*model.Profile, error) {
	var bad []string
	addr, ok := normalizeAddress(address)
	if !ok {
		bad = append(bad, "address")
	}
	t, ok := model.ParseTier(tier)
	if !ok {
		bad = append(bad, "tier")
	}
	if len(bad) > 0 {
		return nil, domain.NewValidationError(bad...)
	}
	p := &model.Profile{WalletAddress: addr, Tier: t, UpdatedAt: uc.clock()}
	if err := uc.profiles.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("address", addr).Str("tier", string(t)).Msg("tier updated")
	return p, nil
}
