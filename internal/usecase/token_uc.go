package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
	"membership-access/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// IssueRequest is the purchase context a token is bound to.
// PaymentAmount is a pointer so that a missing amount can be told apart from zero.
type IssueRequest struct {
	UserID               string
	CreatorID            string
	ChannelID            string
	SubscriptionDuration int
	Tier                 string
	PaymentAmount        *float64
	ChannelName          string
	CreatorName          string
}

type IssueResult struct {
	Token     *model.AccessToken
	AccessURL string
	QRCode    string
}

type RedeemResult struct {
	Token      *model.AccessToken
	InviteLink string
}

// TokenFilter is the admin listing filter. Zero values match everything.
type TokenFilter struct {
	UserID    string
	ChannelID string
	CreatorID string
	Status    model.TokenStatus
	Limit     int
	Offset    int
}

// TokenPatch holds the admin-mutable fields. Nil pointers mean "no change".
type TokenPatch struct {
	SubscriptionEndDate  *time.Time
	SubscriptionDuration *int
	Used                 *bool
	RedeemerID           *string
	RedeemerHandle       *string
}

// TokenUseCase covers the single-use access token lifecycle.
type TokenUseCase interface {
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
	Redeem(ctx context.Context, token string, who model.Identity) (*RedeemResult, error)
	Get(ctx context.Context, token string) (*model.AccessToken, error)
	List(ctx context.Context, f TokenFilter) ([]*model.AccessToken, error)
	Update(ctx context.Context, token string, p TokenPatch) (*model.AccessToken, error)
	Delete(ctx context.Context, token string) error
	CountByStatus(ctx context.Context) (map[model.TokenStatus]int, error)
}

var _ TokenUseCase = (*tokenUC)(nil)

// Option tweaks a use case at construction time.
type Option func(*options)

type options struct {
	clock    func() time.Time
	tokenGen func() (string, error)
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *options) { o.clock = fn }
}

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(o *options) { o.tokenGen = fn }
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now, tokenGen: generateAccessToken}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type tokenUC struct {
	tokens  repository.AccessTokenRepository
	granter adapter.ChannelAccessGranter
	baseURL string
	log     *zerolog.Logger
	options
}

// NewTokenUseCase wires the token lifecycle. granter may be nil, in which
// case redemption returns no invite link.
func NewTokenUseCase(
	tokens repository.AccessTokenRepository,
	granter adapter.ChannelAccessGranter,
	baseURL string,
	logger *zerolog.Logger,
	opts ...Option,
) TokenUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "TokenUseCase").Logger()
	return &tokenUC{
		tokens:  tokens,
		granter: granter,
		baseURL: baseURL,
		log:     &l,
		options: buildOptions(opts),
	}
}

func (uc *tokenUC) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("userId", req.UserID)
	check("creatorId", req.CreatorID)
	check("channelId", req.ChannelID)
	if req.SubscriptionDuration <= 0 {
		missing = append(missing, "subscriptionDuration")
	}
	tier, ok := model.ParseTier(req.Tier)
	if !ok {
		missing = append(missing, "tier")
	}
	if req.PaymentAmount == nil || *req.PaymentAmount < 0 {
		missing = append(missing, "paymentAmount")
	}
	check("channelName", req.ChannelName)
	check("creatorName", req.CreatorName)
	if len(missing) > 0 {
		return nil, domain.NewValidationError(missing...)
	}

	value, err := uc.tokenGen()
	if err != nil {
		return nil, err
	}
	tok, err := model.NewAccessToken(value, req.UserID, req.CreatorID, req.ChannelID,
		req.SubscriptionDuration, tier, *req.PaymentAmount, uc.clock())
	if err != nil {
		return nil, err
	}
	tok.ChannelName = req.ChannelName
	tok.CreatorName = req.CreatorName

	if err := uc.tokens.Create(ctx, repository.NoTX, tok); err != nil {
		return nil, err
	}

	url := accessURL(uc.baseURL, tok.Token)
	qr, err := qrDataURL(url)
	if err != nil {
		// The URL alone is enough to redeem.
		uc.log.Warn().Err(err).Msg("qr code rendering failed")
	}
	uc.log.Info().
		Str("user_id", tok.UserID).
		Str("channel_id", tok.ChannelID).
		Str("tier", string(tok.Tier)).
		Int("duration_days", tok.SubscriptionDuration).
		Msg("access token issued")

	return &IssueResult{Token: tok, AccessURL: url, QRCode: qr}, nil
}

// Redeem consumes a token once. The final write is a conditional update so
// that two concurrent redemptions cannot both succeed.
func (uc *tokenUC) Redeem(ctx context.Context, token string, who model.Identity) (*RedeemResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.NewValidationError("token")
	}
	tok, err := uc.tokens.FindByToken(ctx, repository.NoTX, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	if tok.Used {
		return nil, conflictFor(tok)
	}
	now := uc.clock()
	if tok.Expired(now) {
		return nil, domain.ErrTokenExpired
	}

	changed, err := uc.tokens.MarkUsed(ctx, repository.NoTX, token, who, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Lost a race, or the row changed since the read. Classify from the current row.
		cur, err := uc.tokens.FindByToken(ctx, repository.NoTX, token)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrTokenNotFound
			}
			return nil, err
		}
		if cur.Used {
			return nil, conflictFor(cur)
		}
		if cur.Expired(now) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrOperationFailed
	}

	tok.Used = true
	tok.UsedAt = &now
	if who.ID != "" {
		tok.RedeemerID = &who.ID
	}
	if who.Handle != "" {
		tok.RedeemerHandle = &who.Handle
	}
	uc.log.Info().
		Str("channel_id", tok.ChannelID).
		Str("redeemer_id", who.ID).
		Msg("access token redeemed")

	res := &RedeemResult{Token: tok}
	if uc.granter != nil {
		link, err := uc.granter.GrantAccess(ctx, tok)
		if err != nil {
			uc.log.Error().Err(err).Str("channel_id", tok.ChannelID).Msg("channel invite link failed")
		} else {
			res.InviteLink = link
		}
	}
	return res, nil
}

func conflictFor(t *model.AccessToken) error {
	return &domain.RedemptionConflict{
		RedeemerID:     t.RedeemerID,
		RedeemerHandle: t.RedeemerHandle,
		UsedAt:         t.UsedAt,
	}
}

func (uc *tokenUC) Get(ctx context.Context, token string) (*model.AccessToken, error) {
	tok, err := uc.tokens.FindByToken(ctx, repository.NoTX, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTokenNotFound
	}
	return tok, err
}

func (uc *tokenUC) List(ctx context.Context, f TokenFilter) ([]*model.AccessToken, error) {
	if f.Status != "" {
		if _, ok := model.ParseTokenStatus(string(f.Status)); !ok {
			return nil, domain.NewValidationError("status")
		}
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return uc.tokens.List(ctx, repository.NoTX, repository.TokenQuery{
		UserID:    f.UserID,
		ChannelID: f.ChannelID,
		CreatorID: f.CreatorID,
		Status:    f.Status,
		Now:       uc.clock(),
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
}

// Update applies an admin patch. A new duration recomputes the end date from
// the start date; a new end date alone recomputes the duration in whole days.
func (uc *tokenUC) Update(ctx context.Context, token string, p TokenPatch) (*model.AccessToken, error) {
	tok, err := uc.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	switch {
	case p.SubscriptionDuration != nil:
		d := *p.SubscriptionDuration
		if d <= 0 {
			return nil, domain.NewValidationError("subscriptionDuration")
		}
		end := model.EndDate(tok.SubscriptionStartDate, d)
		if p.SubscriptionEndDate != nil && !p.SubscriptionEndDate.Equal(end) {
			return nil, domain.NewValidationError("subscriptionEndDate", "subscriptionDuration")
		}
		tok.SubscriptionDuration = d
		tok.SubscriptionEndDate = end
	case p.SubscriptionEndDate != nil:
		end := *p.SubscriptionEndDate
		if !end.After(tok.SubscriptionStartDate) {
			return nil, domain.NewValidationError("subscriptionEndDate")
		}
		tok.SubscriptionEndDate = end
		tok.SubscriptionDuration = int(math.Ceil(end.Sub(tok.SubscriptionStartDate).Hours() / 24))
	}

	if p.Used != nil {
		switch {
		case *p.Used && !tok.Used:
			now := uc.clock()
			tok.Used = true
			tok.UsedAt = &now
		case !*p.Used && tok.Used:
			tok.Used = false
			tok.UsedAt = nil
			tok.RedeemerID = nil
			tok.RedeemerHandle = nil
		}
	}
	if p.RedeemerID != nil {
		tok.RedeemerID = nilIfEmpty(*p.RedeemerID)
	}
	if p.RedeemerHandle != nil {
		tok.RedeemerHandle = nilIfEmpty(*p.RedeemerHandle)
	}

	if err := uc.tokens.Update(ctx, repository.NoTX, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (uc *tokenUC) Delete(ctx context.Context, token string) error {
	err := uc.tokens.Delete(ctx, repository.NoTX, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrTokenNotFound
	}
	return err
}

func (uc *tokenUC) CountByStatus(ctx context.Context) (map[model.TokenStatus]int, error) {
	return uc.tokens.CountByStatus(ctx, repository.NoTX, uc.clock())
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
