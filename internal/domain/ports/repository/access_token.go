package repository

import (
	"context"
	"time"

	"membership-access/internal/domain/model"
)

// TokenQuery narrows an access-token listing. Empty fields match everything.
// Status is evaluated against Now at query time.
type TokenQuery struct {
	UserID    string
	ChannelID string
	CreatorID string
	Status    model.TokenStatus
	Now       time.Time
	Limit     int
	Offset    int
}

// AccessTokenRepository is the single persistent store for access tokens.
type AccessTokenRepository interface {
	Create(ctx context.Context, tx Tx, t *model.AccessToken) error
	FindByToken(ctx context.Context, tx Tx, token string) (*model.AccessToken, error)
	// MarkUsed flips used=false to true only if the token is still unused and
	// not past its end date at usedAt. It reports false when no row changed.
	MarkUsed(ctx context.Context, tx Tx, token string, who model.Identity, usedAt time.Time) (bool, error)
	List(ctx context.Context, tx Tx, q TokenQuery) ([]*model.AccessToken, error)
	// Update persists the admin-mutable fields only.
	Update(ctx context.Context, tx Tx, t *model.AccessToken) error
	Delete(ctx context.Context, tx Tx, token string) error
	CountByStatus(ctx context.Context, tx Tx, now time.Time) (map[model.TokenStatus]int, error)
}
