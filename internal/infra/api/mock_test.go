//go:build !integration

package api

import (
	"context"
	"time"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/usecase"
)

type mockTokenUC struct {
	IssueFunc  func(ctx context.Context, req usecase.IssueRequest) (*usecase.IssueResult, error)
	RedeemFunc func(ctx context.Context, token string, who model.Identity) (*usecase.RedeemResult, error)
	GetFunc    func(ctx context.Context, token string) (*model.AccessToken, error)
	ListFunc   func(ctx context.Context, f usecase.TokenFilter) ([]*model.AccessToken, error)
	UpdateFunc func(ctx context.Context, token string, p usecase.TokenPatch) (*model.AccessToken, error)
	DeleteFunc func(ctx context.Context, token string) error
	CountFunc  func(ctx context.Context) (map[model.TokenStatus]int, error)
}

func (m *mockTokenUC) Issue(ctx context.Context, req usecase.IssueRequest) (*usecase.IssueResult, error) {
	return m.IssueFunc(ctx, req)
}

func (m *mockTokenUC) Redeem(ctx context.Context, token string, who model.Identity) (*usecase.RedeemResult, error) {
	return m.RedeemFunc(ctx, token, who)
}

func (m *mockTokenUC) Get(ctx context.Context, token string) (*model.AccessToken, error) {
	if m.GetFunc == nil {
		return nil, domain.ErrTokenNotFound
	}
	return m.GetFunc(ctx, token)
}

func (m *mockTokenUC) List(ctx context.Context, f usecase.TokenFilter) ([]*model.AccessToken, error) {
	return m.ListFunc(ctx, f)
}

func (m *mockTokenUC) Update(ctx context.Context, token string, p usecase.TokenPatch) (*model.AccessToken, error) {
	return m.UpdateFunc(ctx, token, p)
}

func (m *mockTokenUC) Delete(ctx context.Context, token string) error {
	return m.DeleteFunc(ctx, token)
}

func (m *mockTokenUC) CountByStatus(ctx context.Context) (map[model.TokenStatus]int, error) {
	return m.CountFunc(ctx)
}

type mockVoteUC struct {
	CastFunc   func(ctx context.Context, proposalID, voter, choice string) (*model.Vote, error)
	RemoveFunc func(ctx context.Context, proposalID, voter string) error
}

func (m *mockVoteUC) Cast(ctx context.Context, proposalID, voter, choice string) (*model.Vote, error) {
	return m.CastFunc(ctx, proposalID, voter, choice)
}

func (m *mockVoteUC) Remove(ctx context.Context, proposalID, voter string) error {
	return m.RemoveFunc(ctx, proposalID, voter)
}

type mockProposalUC struct {
	CreateFunc func(ctx context.Context, title, description string, deadline time.Time, createdBy string) (*model.Proposal, error)
	GetFunc    func(ctx context.Context, id string) (*model.Proposal, error)
	ListFunc   func(ctx context.Context, status string) ([]*model.Proposal, error)
	CloseFunc  func(ctx context.Context, id string) (*model.Proposal, error)
	CancelFunc func(ctx context.Context, id string) (*model.Proposal, error)
	VotesFunc  func(ctx context.Context, id string) ([]*model.Vote, error)
}

func (m *mockProposalUC) Create(ctx context.Context, title, description string, deadline time.Time, createdBy string) (*model.Proposal, error) {
	return m.CreateFunc(ctx, title, description, deadline, createdBy)
}

func (m *mockProposalUC) Get(ctx context.Context, id string) (*model.Proposal, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockProposalUC) List(ctx context.Context, status string) ([]*model.Proposal, error) {
	return m.ListFunc(ctx, status)
}

func (m *mockProposalUC) Close(ctx context.Context, id string) (*model.Proposal, error) {
	return m.CloseFunc(ctx, id)
}

func (m *mockProposalUC) Cancel(ctx context.Context, id string) (*model.Proposal, error) {
	return m.CancelFunc(ctx, id)
}

func (m *mockProposalUC) Votes(ctx context.Context, id string) ([]*model.Vote, error) {
	return m.VotesFunc(ctx, id)
}

func (m *mockProposalUC) CloseExpired(ctx context.Context) (int64, error) { return 0, nil }

type mockTierUC struct {
	SetFunc func(ctx context.Context, address, tier string) (*model.Profile, error)
	GetFunc func(ctx context.Context, address string) (*model.Profile, error)
}

func (m *mockTierUC) ResolveTier(ctx context.Context, address string) (model.Tier, error) {
	p, err := m.GetFunc(ctx, address)
	if err != nil {
		return "", err
	}
	return p.Tier, nil
}

func (m *mockTierUC) GetTier(ctx context.Context, address string) (*model.Profile, error) {
	return m.GetFunc(ctx, address)
}

func (m *mockTierUC) SetTier(ctx context.Context, address, tier string) (*model.Profile, error) {
	return m.SetFunc(ctx, address, tier)
}

// countingLimiter admits the first n calls.
type countingLimiter struct {
	n     int
	calls int
	err   error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.n, nil
}
