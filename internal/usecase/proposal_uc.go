package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// ProposalUseCase manages governance proposals.
type ProposalUseCase interface {
	Create(ctx context.Context, title, description string, deadline time.Time, createdBy string) (*model.Proposal, error)
	Get(ctx context.Context, id string) (*model.Proposal, error)
	// List filters by status; an empty status lists everything.
	List(ctx context.Context, status string) ([]*model.Proposal, error)
	Close(ctx context.Context, id string) (*model.Proposal, error)
	Cancel(ctx context.Context, id string) (*model.Proposal, error)
	Votes(ctx context.Context, id string) ([]*model.Vote, error)
	// CloseExpired closes every active proposal whose deadline has passed.
	CloseExpired(ctx context.Context) (int64, error)
}

var _ ProposalUseCase = (*proposalUC)(nil)

type proposalUC struct {
	proposals repository.ProposalRepository
	votes     repository.VoteRepository
	tx        repository.TransactionManager
	log       *zerolog.Logger
	options
}

func NewProposalUseCase(
	proposals repository.ProposalRepository,
	votes repository.VoteRepository,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
	opts ...Option,
) ProposalUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "ProposalUseCase").Logger()
	return &proposalUC{
		proposals: proposals,
		votes:     votes,
		tx:        tx,
		log:       &l,
		options:   buildOptions(opts),
	}
}

func (uc *proposalUC) Create(ctx context.Context, title, description string, deadline time.Time, createdBy string) (*model.Proposal, error) {
	now := uc.clock()
	var bad []string
	title = strings.TrimSpace(title)
	if title == "" {
		bad = append(bad, "title")
	}
	if !deadline.After(now) {
		bad = append(bad, "voting_deadline")
	}
	if len(bad) > 0 {
		return nil, domain.NewValidationError(bad...)
	}
	p := &model.Proposal{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    strings.TrimSpace(description),
		Status:         model.ProposalStatusActive,
		VotingDeadline: deadline,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.proposals.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("proposal_id", p.ID).Time("deadline", deadline).Msg("proposal created")
	return p, nil
}

func (uc *proposalUC) Get(ctx context.Context, id string) (*model.Proposal, error) {
	p, err := uc.proposals.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProposalNotFound
	}
	return p, err
}

func (uc *proposalUC) List(ctx context.Context, status string) ([]*model.Proposal, error) {
	var st model.ProposalStatus
	if status != "" {
		var ok bool
		if st, ok = model.ParseProposalStatus(status); !ok {
			return nil, domain.NewValidationError("status")
		}
	}
	return uc.proposals.List(ctx, repository.NoTX, st)
}

func (uc *proposalUC) Close(ctx context.Context, id string) (*model.Proposal, error) {
	return uc.transition(ctx, id, model.ProposalStatusClosed)
}

func (uc *proposalUC) Cancel(ctx context.Context, id string) (*model.Proposal, error) {
	return uc.transition(ctx, id, model.ProposalStatusCancelled)
}

// transition moves an active proposal to a terminal status.
func (uc *proposalUC) transition(ctx context.Context, id string, to model.ProposalStatus) (*model.Proposal, error) {
	var out *model.Proposal
	err := uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := uc.proposals.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrProposalNotFound
			}
			return err
		}
		if p.Status != model.ProposalStatusActive {
			return domain.ErrProposalNotActive
		}
		now := uc.clock()
		if err := uc.proposals.UpdateStatus(ctx, tx, id, to, now); err != nil {
			return err
		}
		p.Status = to
		p.UpdatedAt = now
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("proposal_id", id).Str("status", string(to)).Msg("proposal status changed")
	return out, nil
}

func (uc *proposalUC) Votes(ctx context.Context, id string) ([]*model.Vote, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.votes.ListByProposal(ctx, repository.NoTX, id)
}

func (uc *proposalUC) CloseExpired(ctx context.Context) (int64, error) {
	return uc.proposals.CloseExpired(ctx, repository.NoTX, uc.clock())
}
