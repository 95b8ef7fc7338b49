//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
	"membership-access/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock for deterministic expiry checks.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func ptr[T any](v T) *T { return &v }

// =============================
// Repositories
// =============================

// ---- In-memory AccessTokenRepository ----

type MockAccessTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.AccessToken

	CreateFunc   func(ctx context.Context, tx repository.Tx, t *model.AccessToken) error
	MarkUsedFunc func(ctx context.Context, tx repository.Tx, token string, who model.Identity, usedAt time.Time) (bool, error)
}

var _ repository.AccessTokenRepository = (*MockAccessTokenRepo)(nil)

func NewMockAccessTokenRepo() *MockAccessTokenRepo {
	return &MockAccessTokenRepo{tokens: map[string]*model.AccessToken{}}
}

func (m *MockAccessTokenRepo) Create(ctx context.Context, tx repository.Tx, t *model.AccessToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.Token]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *MockAccessTokenRepo) FindByToken(ctx context.Context, tx repository.Tx, token string) (*model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// MarkUsed mirrors the conditional UPDATE ... WHERE used = FALSE.
func (m *MockAccessTokenRepo) MarkUsed(ctx context.Context, tx repository.Tx, token string, who model.Identity, usedAt time.Time) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, tx, token, who, usedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok || t.Used || t.Expired(usedAt) {
		return false, nil
	}
	t.Used = true
	at := usedAt
	t.UsedAt = &at
	if who.ID != "" {
		id := who.ID
		t.RedeemerID = &id
	}
	if who.Handle != "" {
		h := who.Handle
		t.RedeemerHandle = &h
	}
	return true, nil
}

func (m *MockAccessTokenRepo) List(ctx context.Context, tx repository.Tx, q repository.TokenQuery) ([]*model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AccessToken
	for _, t := range m.tokens {
		if q.UserID != "" && t.UserID != q.UserID {
			continue
		}
		if q.ChannelID != "" && t.ChannelID != q.ChannelID {
			continue
		}
		if q.CreatorID != "" && t.CreatorID != q.CreatorID {
			continue
		}
		if q.Status != "" && !t.Matches(q.Status, q.Now) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *MockAccessTokenRepo) Update(ctx context.Context, tx repository.Tx, t *model.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.Token]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *MockAccessTokenRepo) Delete(ctx context.Context, tx repository.Tx, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *MockAccessTokenRepo) CountByStatus(ctx context.Context, tx repository.Tx, now time.Time) (map[model.TokenStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.TokenStatus]int{}
	for _, t := range m.tokens {
		out[t.Status(now)]++
	}
	return out, nil
}

// ---- In-memory ProposalRepository ----

type MockProposalRepo struct {
	mu        sync.Mutex
	proposals map[string]*model.Proposal
}

var _ repository.ProposalRepository = (*MockProposalRepo)(nil)

func NewMockProposalRepo() *MockProposalRepo {
	return &MockProposalRepo{proposals: map[string]*model.Proposal{}}
}

func (m *MockProposalRepo) Create(ctx context.Context, tx repository.Tx, p *model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.proposals[p.ID] = &cp
	return nil
}

func (m *MockProposalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProposalRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Proposal, error) {
	return m.FindByID(ctx, tx, id)
}

func (m *MockProposalRepo) List(ctx context.Context, tx repository.Tx, status model.ProposalStatus) ([]*model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Proposal
	for _, p := range m.proposals {
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockProposalRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.ProposalStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	return nil
}

func (m *MockProposalRepo) AdjustTally(ctx context.Context, tx repository.Tx, id string, choice model.VoteChoice, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return domain.ErrNotFound
	}
	if choice == model.VoteFor {
		p.VotesFor += delta
	} else {
		p.VotesAgainst += delta
	}
	return nil
}

func (m *MockProposalRepo) CloseExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.proposals {
		if p.Status == model.ProposalStatusActive && p.VotingDeadline.Before(now) {
			p.Status = model.ProposalStatusClosed
			n++
		}
	}
	return n, nil
}

// ---- In-memory VoteRepository (unique on proposal+voter) ----

type MockVoteRepo struct {
	mu    sync.Mutex
	votes map[string]*model.Vote // by id
}

var _ repository.VoteRepository = (*MockVoteRepo)(nil)

func NewMockVoteRepo() *MockVoteRepo {
	return &MockVoteRepo{votes: map[string]*model.Vote{}}
}

func (m *MockVoteRepo) Create(ctx context.Context, tx repository.Tx, v *model.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.votes {
		if x.ProposalID == v.ProposalID && x.VoterAddress == v.VoterAddress {
			return domain.ErrDuplicateVote
		}
	}
	cp := *v
	m.votes[v.ID] = &cp
	return nil
}

func (m *MockVoteRepo) Find(ctx context.Context, tx repository.Tx, proposalID, voter string) (*model.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.votes {
		if x.ProposalID == proposalID && x.VoterAddress == voter {
			cp := *x
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockVoteRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.votes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.votes, id)
	return nil
}

func (m *MockVoteRepo) ListByProposal(ctx context.Context, tx repository.Tx, proposalID string) ([]*model.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Vote
	for _, x := range m.votes {
		if x.ProposalID == proposalID {
			cp := *x
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockVoteRepo) count(proposalID string) int {
	vs, _ := m.ListByProposal(context.Background(), nil, proposalID)
	return len(vs)
}

// ---- In-memory ProfileRepository ----

type MockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	FindErr  error
}

var _ repository.ProfileRepository = (*MockProfileRepo)(nil)

func NewMockProfileRepo() *MockProfileRepo {
	return &MockProfileRepo{profiles: map[string]*model.Profile{}}
}

func (m *MockProfileRepo) FindByAddress(ctx context.Context, tx repository.Tx, address string) (*model.Profile, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[address]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.WalletAddress] = &cp
	return nil
}

// ---- Transaction manager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock ChannelAccessGranter ----

type MockGranter struct {
	mu      sync.Mutex
	Granted []string

	GrantAccessFunc func(ctx context.Context, t *model.AccessToken) (string, error)
}

var _ adapter.ChannelAccessGranter = (*MockGranter)(nil)

func (m *MockGranter) GrantAccess(ctx context.Context, t *model.AccessToken) (string, error) {
	if m.GrantAccessFunc != nil {
		return m.GrantAccessFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Granted = append(m.Granted, t.Token)
	return "https://t.me/+invite-" + t.ChannelID, nil
}

// ---- Static TierResolver ----

type staticTiers map[string]model.Tier

func (s staticTiers) ResolveTier(ctx context.Context, address string) (model.Tier, error) {
	if t, ok := s[address]; ok {
		return t, nil
	}
	return model.TierNomad, nil
}
