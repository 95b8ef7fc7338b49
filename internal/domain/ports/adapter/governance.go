package adapter

import (
	"context"

	"membership-access/internal/domain/model"
)

// TierResolver looks up the current membership tier of a wallet address.
// Unknown addresses resolve to TierNomad.
type TierResolver interface {
	ResolveTier(ctx context.Context, address string) (model.Tier, error)
}
