package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
	"membership-access/internal/infra/security"
)

// Ensure implementation satisfies the interface.
var _ repository.AccessTokenRepository = (*accessTokenRepo)(nil)

type accessTokenRepo struct {
	pool   *pgxpool.Pool
	cipher security.FieldCipher
}

// NewAccessTokenRepo stores redeemer handles through cipher; nil stores them as given.
func NewAccessTokenRepo(pool *pgxpool.Pool, cipher security.FieldCipher) repository.AccessTokenRepository {
	if cipher == nil {
		cipher = security.Plaintext{}
	}
	return &accessTokenRepo{pool: pool, cipher: cipher}
}

const tokenColumns = `token, user_id, creator_id, channel_id, channel_name, creator_name,
       subscription_duration, subscription_start_date, subscription_end_date,
       tier, payment_amount, used, used_at, redeemer_id, redeemer_handle, created_at`

func opFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrOperationFailed, op, err)
}

func (r *accessTokenRepo) Create(ctx context.Context, tx repository.Tx, t *model.AccessToken) error {
	handle, err := r.sealHandle(t.RedeemerHandle)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO access_tokens (` + tokenColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.Token, t.UserID, t.CreatorID, t.ChannelID, t.ChannelName, t.CreatorName,
		t.SubscriptionDuration, t.SubscriptionStartDate, t.SubscriptionEndDate,
		string(t.Tier), t.PaymentAmount, t.Used, t.UsedAt, t.RedeemerID, handle, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrAlreadyExists
		}
		return opFailed("insert access token", err)
	}
	return nil
}

func (r *accessTokenRepo) FindByToken(ctx context.Context, tx repository.Tx, token string) (*model.AccessToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE token = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, token)
	if err != nil {
		return nil, err
	}
	t, err := r.scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// MarkUsed flips used only while the token is unused and not past its end date.
// It reports whether a row changed.
func (r *accessTokenRepo) MarkUsed(ctx context.Context, tx repository.Tx, token string, who model.Identity, usedAt time.Time) (bool, error) {
	var id, handle *string
	if who.ID != "" {
		id = &who.ID
	}
	if who.Handle != "" {
		sealed, err := r.cipher.Encrypt(who.Handle)
		if err != nil {
			return false, err
		}
		handle = &sealed
	}
	const q = `
UPDATE access_tokens
   SET used = TRUE, used_at = $2, redeemer_id = $3, redeemer_handle = $4
 WHERE token = $1 AND used = FALSE AND subscription_end_date >= $2;
`
	tag, err := execSQL(ctx, r.pool, tx, q, token, usedAt, id, handle)
	if err != nil {
		return false, opFailed("mark access token used", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *accessTokenRepo) List(ctx context.Context, tx repository.Tx, f repository.TokenQuery) ([]*model.AccessToken, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ChannelID != "" {
		add("channel_id = $%d", f.ChannelID)
	}
	if f.CreatorID != "" {
		add("creator_id = $%d", f.CreatorID)
	}
	switch f.Status {
	case model.TokenStatusUsed:
		where = append(where, "used = TRUE")
	case model.TokenStatusUnused:
		where = append(where, "used = FALSE")
	case model.TokenStatusActive:
		add("subscription_end_date >= $%d", f.Now)
	case model.TokenStatusExpired:
		add("subscription_end_date < $%d", f.Now)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + tokenColumns + " FROM access_tokens")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, token")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := queryRows(ctx, r.pool, tx, sb.String(), args...)
	if err != nil {
		return nil, opFailed("list access tokens", err)
	}
	defer rows.Close()

	var out []*model.AccessToken
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, opFailed("list access tokens", err)
	}
	return out, nil
}

// Update writes the admin-mutable columns.
func (r *accessTokenRepo) Update(ctx context.Context, tx repository.Tx, t *model.AccessToken) error {
	handle, err := r.sealHandle(t.RedeemerHandle)
	if err != nil {
		return err
	}
	const q = `
UPDATE access_tokens
   SET subscription_duration = $2, subscription_end_date = $3,
       used = $4, used_at = $5, redeemer_id = $6, redeemer_handle = $7
 WHERE token = $1;
`
	tag, err := execSQL(ctx, r.pool, tx, q,
		t.Token, t.SubscriptionDuration, t.SubscriptionEndDate, t.Used, t.UsedAt, t.RedeemerID, handle)
	if err != nil {
		return opFailed("update access token", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accessTokenRepo) Delete(ctx context.Context, tx repository.Tx, token string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM access_tokens WHERE token = $1;`, token)
	if err != nil {
		return opFailed("delete access token", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByStatus groups tokens by display status (expired, used, unused).
func (r *accessTokenRepo) CountByStatus(ctx context.Context, tx repository.Tx, now time.Time) (map[model.TokenStatus]int, error) {
	const q = `
SELECT CASE
         WHEN subscription_end_date < $1 THEN 'expired'
         WHEN used THEN 'used'
         ELSE 'unused'
       END AS status,
       COUNT(*)
  FROM access_tokens
 GROUP BY 1;
`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, opFailed("count access tokens", err)
	}
	defer rows.Close()

	out := make(map[model.TokenStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.TokenStatus(st)] = n
	}
	return out, rows.Err()
}

func (r *accessTokenRepo) sealHandle(h *string) (*string, error) {
	if h == nil || *h == "" {
		return nil, nil
	}
	sealed, err := r.cipher.Encrypt(*h)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func (r *accessTokenRepo) scan(row pgx.Row) (*model.AccessToken, error) {
	var (
		t      model.AccessToken
		tier   string
		handle *string
	)
	err := row.Scan(
		&t.Token, &t.UserID, &t.CreatorID, &t.ChannelID, &t.ChannelName, &t.CreatorName,
		&t.SubscriptionDuration, &t.SubscriptionStartDate, &t.SubscriptionEndDate,
		&tier, &t.PaymentAmount, &t.Used, &t.UsedAt, &t.RedeemerID, &handle, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.Tier = model.Tier(tier)
	if handle != nil {
		plain, err := r.cipher.Decrypt(*handle)
		if err != nil {
			return nil, fmt.Errorf("decrypt redeemer handle: %w", err)
		}
		t.RedeemerHandle = &plain
	}
	return &t, nil
}
