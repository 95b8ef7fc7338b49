package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
)

var _ repository.ProposalRepository = (*proposalRepo)(nil)

type proposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) repository.ProposalRepository {
	return &proposalRepo{pool: pool}
}

const proposalColumns = `id, title, description, status, voting_deadline, votes_for, votes_against,
       created_by, created_at, updated_at`

func (r *proposalRepo) Create(ctx context.Context, tx repository.Tx, p *model.Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `
INSERT INTO governance_proposals (` + proposalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Title, p.Description, string(p.Status), p.VotingDeadline,
		p.VotesFor, p.VotesAgainst, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrAlreadyExists
		}
		return opFailed("insert proposal", err)
	}
	return nil
}

func (r *proposalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Proposal, error) {
	return r.find(ctx, tx, id, false)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *proposalRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Proposal, error) {
	return r.find(ctx, tx, id, true)
}

func (r *proposalRepo) find(ctx context.Context, tx repository.Tx, id string, lock bool) (*model.Proposal, error) {
	// Ids are uuids; anything else cannot exist and would fail the cast in SQL.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + proposalColumns + ` FROM governance_proposals WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *proposalRepo) List(ctx context.Context, tx repository.Tx, status model.ProposalStatus) ([]*model.Proposal, error) {
	q := `SELECT ` + proposalColumns + ` FROM governance_proposals`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, opFailed("list proposals", err)
	}
	defer rows.Close()

	var out []*model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *proposalRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.ProposalStatus, at time.Time) error {
	const q = `UPDATE governance_proposals SET status = $2, updated_at = $3 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), at)
	if err != nil {
		return opFailed("update proposal status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustTally adds delta (negative on withdrawal) to the tally for choice.
func (r *proposalRepo) AdjustTally(ctx context.Context, tx repository.Tx, id string, choice model.VoteChoice, delta int) error {
	var q string
	switch choice {
	case model.VoteFor:
		q = `UPDATE governance_proposals SET votes_for = votes_for + $2, updated_at = NOW() WHERE id = $1;`
	case model.VoteAgainst:
		q = `UPDATE governance_proposals SET votes_against = votes_against + $2, updated_at = NOW() WHERE id = $1;`
	default:
		return domain.ErrInvalidArgument
	}
	tag, err := execSQL(ctx, r.pool, tx, q, id, delta)
	if err != nil {
		return opFailed("adjust proposal tally", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *proposalRepo) CloseExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `
UPDATE governance_proposals
   SET status = 'closed', updated_at = $1
 WHERE status = 'active' AND voting_deadline < $1;
`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, opFailed("close expired proposals", err)
	}
	return tag.RowsAffected(), nil
}

func scanProposal(row pgx.Row) (*model.Proposal, error) {
	var (
		p      model.Proposal
		status string
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &status, &p.VotingDeadline,
		&p.VotesFor, &p.VotesAgainst, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.ProposalStatus(status)
	return &p, nil
}
