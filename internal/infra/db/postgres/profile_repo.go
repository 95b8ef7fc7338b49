package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) repository.ProfileRepository {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) FindByAddress(ctx context.Context, tx repository.Tx, address string) (*model.Profile, error) {
	const q = `SELECT wallet_address, tier, updated_at FROM profiles WHERE wallet_address = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, address)
	if err != nil {
		return nil, err
	}
	var (
		p    model.Profile
		tier string
	)
	if err := row.Scan(&p.WalletAddress, &tier, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Tier = model.Tier(tier)
	return &p, nil
}

// Save upserts the tier for a wallet address.
func (r *profileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	const q = `
INSERT INTO profiles (wallet_address, tier, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (wallet_address) DO UPDATE SET
  tier = EXCLUDED.tier,
  updated_at = EXCLUDED.updated_at;
`
	if _, err := execSQL(ctx, r.pool, tx, q, p.WalletAddress, string(p.Tier), p.UpdatedAt); err != nil {
		return opFailed("save profile", err)
	}
	return nil
}
