package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
	"membership-access/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// VoteUseCase records and withdraws tier-weighted governance votes.
type VoteUseCase interface {
	// Cast returns the stored vote; its Weight is frozen for the life of the row.
	Cast(ctx context.Context, proposalID, voterAddress, choice string) (*model.Vote, error)
	Remove(ctx context.Context, proposalID, voterAddress string) error
}

var _ VoteUseCase = (*voteUC)(nil)

type voteUC struct {
	proposals repository.ProposalRepository
	votes     repository.VoteRepository
	tiers     adapter.TierResolver
	tx        repository.TransactionManager
	log       *zerolog.Logger
	options
}

func NewVoteUseCase(
	proposals repository.ProposalRepository,
	votes repository.VoteRepository,
	tiers adapter.TierResolver,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
	opts ...Option,
) VoteUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "VoteUseCase").Logger()
	return &voteUC{
		proposals: proposals,
		votes:     votes,
		tiers:     tiers,
		tx:        tx,
		log:       &l,
		options:   buildOptions(opts),
	}
}

// Cast checks, in order: input, voter eligibility, proposal existence,
// proposal status, deadline, and an existing vote. The insert and the tally
// update share one transaction holding the proposal row lock; the unique
// (proposal_id, voter_address) constraint backs up the duplicate check.
func (uc *voteUC) Cast(ctx context.Context, proposalID, voterAddress, choice string) (*model.Vote, error) {
	var bad []string
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		bad = append(bad, "proposal_id")
	}
	addr, ok := normalizeAddress(voterAddress)
	if !ok {
		bad = append(bad, "voter_address")
	}
	vc, ok := model.ParseVoteChoice(choice)
	if !ok {
		bad = append(bad, "vote_choice")
	}
	if len(bad) > 0 {
		return nil, domain.NewValidationError(bad...)
	}

	tier, err := uc.tiers.ResolveTier(ctx, addr)
	if err != nil {
		return nil, err
	}
	weight := model.VoteWeight(tier)
	if weight == 0 {
		return nil, domain.ErrIneligibleVoter
	}

	var vote *model.Vote
	err = uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := uc.proposals.FindByIDForUpdate(ctx, tx, proposalID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrProposalNotFound
			}
			return err
		}
		now := uc.clock()
		if err := checkOpen(p, now); err != nil {
			return err
		}
		if _, err := uc.votes.Find(ctx, tx, proposalID, addr); err == nil {
			return domain.ErrDuplicateVote
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		v := &model.Vote{
			ID:           ulid.Make().String(),
			ProposalID:   proposalID,
			VoterAddress: addr,
			Choice:       vc,
			Weight:       weight,
			CreatedAt:    now,
		}
		if err := uc.votes.Create(ctx, tx, v); err != nil {
			return err
		}
		if err := uc.proposals.AdjustTally(ctx, tx, proposalID, vc, weight); err != nil {
			return err
		}
		vote = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("proposal_id", proposalID).
		Str("voter", addr).
		Str("choice", string(vc)).
		Int("weight", weight).
		Msg("vote cast")
	return vote, nil
}

// Remove withdraws a vote while the proposal is active and before its deadline.
func (uc *voteUC) Remove(ctx context.Context, proposalID, voterAddress string) error {
	var bad []string
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		bad = append(bad, "proposal_id")
	}
	addr, ok := normalizeAddress(voterAddress)
	if !ok {
		bad = append(bad, "voter_address")
	}
	if len(bad) > 0 {
		return domain.NewValidationError(bad...)
	}

	err := uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := uc.proposals.FindByIDForUpdate(ctx, tx, proposalID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrProposalNotFound
			}
			return err
		}
		if err := checkOpen(p, uc.clock()); err != nil {
			return err
		}
		v, err := uc.votes.Find(ctx, tx, proposalID, addr)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrVoteNotFound
			}
			return err
		}
		if err := uc.votes.Delete(ctx, tx, v.ID); err != nil {
			return err
		}
		return uc.proposals.AdjustTally(ctx, tx, proposalID, v.Choice, -v.Weight)
	})
	if err != nil {
		return err
	}
	uc.log.Info().Str("proposal_id", proposalID).Str("voter", addr).Msg("vote removed")
	return nil
}

// checkOpen reports a past deadline ahead of status: a proposal swept to
// closed after its deadline still answers DEADLINE_PASSED.
func checkOpen(p *model.Proposal, now time.Time) error {
	if p.Status == model.ProposalStatusCancelled {
		return domain.ErrProposalNotActive
	}
	if now.After(p.VotingDeadline) {
		return domain.ErrDeadlinePassed
	}
	if p.Status != model.ProposalStatusActive {
		return domain.ErrProposalNotActive
	}
	return nil
}
