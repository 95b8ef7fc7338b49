package model

import (
	"time"

	"membership-access/internal/domain"
)

const day = 24 * time.Hour

// TokenStatus is derived from the used flag and the end date at query time.
type TokenStatus string

const (
	TokenStatusUsed    TokenStatus = "used"
	TokenStatusUnused  TokenStatus = "unused"
	TokenStatusActive  TokenStatus = "active"
	TokenStatusExpired TokenStatus = "expired"
)

func ParseTokenStatus(s string) (TokenStatus, bool) {
	switch st := TokenStatus(s); st {
	case TokenStatusUsed, TokenStatusUnused, TokenStatusActive, TokenStatusExpired:
		return st, true
	}
	return "", false
}

// AccessToken is a single-use credential that grants access to a creator's
// premium channel for a fixed number of days.
type AccessToken struct {
	Token                 string    `json:"token"`
	UserID                string    `json:"userId"`
	CreatorID             string    `json:"creatorId"`
	ChannelID             string    `json:"channelId"`
	ChannelName           string    `json:"channelName"`
	CreatorName           string    `json:"creatorName"`
	SubscriptionDuration  int       `json:"subscriptionDuration"`
	SubscriptionStartDate time.Time `json:"subscriptionStartDate"`
	SubscriptionEndDate   time.Time `json:"subscriptionEndDate"`
	Tier                  Tier      `json:"tier"`
	PaymentAmount         float64   `json:"paymentAmount"`

	Used           bool       `json:"used"`
	UsedAt         *time.Time `json:"usedAt,omitempty"`
	RedeemerID     *string    `json:"redeemerId,omitempty"`
	RedeemerHandle *string    `json:"redeemerHandle,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewAccessToken builds an unused token whose end date is fixed at
// start + durationDays.
func NewAccessToken(token, userID, creatorID, channelID string, durationDays int, tier Tier, amount float64, now time.Time) (*AccessToken, error) {
	if token == "" || userID == "" || creatorID == "" || channelID == "" || durationDays <= 0 || !tier.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &AccessToken{
		Token:                 token,
		UserID:                userID,
		CreatorID:             creatorID,
		ChannelID:             channelID,
		SubscriptionDuration:  durationDays,
		SubscriptionStartDate: now,
		SubscriptionEndDate:   EndDate(now, durationDays),
		Tier:                  tier,
		PaymentAmount:         amount,
		CreatedAt:             now,
	}, nil
}

// EndDate returns start plus the given number of whole days.
func EndDate(start time.Time, durationDays int) time.Time {
	return start.Add(time.Duration(durationDays) * day)
}

// Expired reports whether now is strictly after the end date.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.SubscriptionEndDate)
}

// Status returns the display status: expired wins over used/unused.
func (t *AccessToken) Status(now time.Time) TokenStatus {
	switch {
	case t.Expired(now):
		return TokenStatusExpired
	case t.Used:
		return TokenStatusUsed
	default:
		return TokenStatusUnused
	}
}

// Matches evaluates an admin status filter. The filters overlap:
// a redeemed token that has not reached its end date is both used and active.
func (t *AccessToken) Matches(st TokenStatus, now time.Time) bool {
	switch st {
	case TokenStatusUsed:
		return t.Used
	case TokenStatusUnused:
		return !t.Used
	case TokenStatusActive:
		return !t.Expired(now)
	case TokenStatusExpired:
		return t.Expired(now)
	}
	return true
}

// Identity carries optional claims about the external account redeeming a token.
type Identity struct {
	ID     string
	Handle string
}

func (i Identity) IsZero() bool { return i.ID == "" && i.Handle == "" }
