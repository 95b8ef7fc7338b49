package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
)

var _ repository.VoteRepository = (*voteRepo)(nil)

// voteConstraint is the UNIQUE (proposal_id, voter_address) constraint in init.sql.
const voteConstraint = "governance_votes_proposal_voter_key"

type voteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) repository.VoteRepository {
	return &voteRepo{pool: pool}
}

func (r *voteRepo) Create(ctx context.Context, tx repository.Tx, v *model.Vote) error {
	const q = `
INSERT INTO governance_votes (id, proposal_id, voter_address, vote_choice, vote_weight, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := execSQL(ctx, r.pool, tx, q,
		v.ID, v.ProposalID, v.VoterAddress, string(v.Choice), v.Weight, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, voteConstraint) {
			return domain.ErrDuplicateVote
		}
		return opFailed("insert vote", err)
	}
	return nil
}

func (r *voteRepo) Find(ctx context.Context, tx repository.Tx, proposalID, voterAddress string) (*model.Vote, error) {
	if _, err := uuid.Parse(proposalID); err != nil {
		return nil, domain.ErrNotFound
	}
	const q = `
SELECT id, proposal_id, voter_address, vote_choice, vote_weight, created_at
  FROM governance_votes
 WHERE proposal_id = $1 AND voter_address = $2;
`
	row, err := pickRow(ctx, r.pool, tx, q, proposalID, voterAddress)
	if err != nil {
		return nil, err
	}
	v, err := scanVote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *voteRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM governance_votes WHERE id = $1;`, id)
	if err != nil {
		return opFailed("delete vote", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *voteRepo) ListByProposal(ctx context.Context, tx repository.Tx, proposalID string) ([]*model.Vote, error) {
	if _, err := uuid.Parse(proposalID); err != nil {
		return nil, nil
	}
	const q = `
SELECT id, proposal_id, voter_address, vote_choice, vote_weight, created_at
  FROM governance_votes
 WHERE proposal_id = $1
 ORDER BY created_at, id;
`
	rows, err := queryRows(ctx, r.pool, tx, q, proposalID)
	if err != nil {
		return nil, opFailed("list votes", err)
	}
	defer rows.Close()

	var out []*model.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVote(row pgx.Row) (*model.Vote, error) {
	var (
		v      model.Vote
		choice string
	)
	if err := row.Scan(&v.ID, &v.ProposalID, &v.VoterAddress, &choice, &v.Weight, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	v.Choice = model.VoteChoice(choice)
	return &v, nil
}
