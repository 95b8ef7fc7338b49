package repository

import (
	"context"
	"time"

	"membership-access/internal/domain/model"
)

// -----------------------------
// Proposals
// -----------------------------

type ProposalRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Proposal) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Proposal, error)
	// FindByIDForUpdate locks the row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Proposal, error)
	List(ctx context.Context, tx Tx, status model.ProposalStatus) ([]*model.Proposal, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.ProposalStatus, at time.Time) error
	// AdjustTally adds delta to the weighted tally of the given choice.
	AdjustTally(ctx context.Context, tx Tx, id string, choice model.VoteChoice, delta int) error
	// CloseExpired closes active proposals whose deadline is before now.
	CloseExpired(ctx context.Context, tx Tx, now time.Time) (int64, error)
}

// -----------------------------
// Votes
// -----------------------------

type VoteRepository interface {
	// Create returns domain.ErrDuplicateVote when (proposal, voter) already exists.
	Create(ctx context.Context, tx Tx, v *model.Vote) error
	Find(ctx context.Context, tx Tx, proposalID, voterAddress string) (*model.Vote, error)
	Delete(ctx context.Context, tx Tx, id string) error
	ListByProposal(ctx context.Context, tx Tx, proposalID string) ([]*model.Vote, error)
}

// -----------------------------
// Profiles (tier source)
// -----------------------------

type ProfileRepository interface {
	FindByAddress(ctx context.Context, tx Tx, address string) (*model.Profile, error)
	Save(ctx context.Context, tx Tx, p *model.Profile) error
}
