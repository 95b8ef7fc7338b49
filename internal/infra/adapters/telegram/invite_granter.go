package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"membership-access/internal/config"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
)

var _ adapter.ChannelAccessGranter = (*InviteGranter)(nil)

// requester is the part of *tgbotapi.BotAPI the granter needs.
type requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// InviteGranter creates a single-member invite link to the token's channel.
// The bot must be an administrator of the channel with the invite permission.
type InviteGranter struct {
	bot     requester
	linkTTL time.Duration
	clock   func() time.Time
	log     *zerolog.Logger
}

const defaultLinkTTL = 24 * time.Hour

// NewInviteGranter connects to the Bot API with cfg.Token.
func NewInviteGranter(cfg *config.BotConfig, logger *zerolog.Logger) (*InviteGranter, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newInviteGranter(bot, defaultLinkTTL, time.Now, logger), nil
}

func newInviteGranter(bot requester, ttl time.Duration, clock func() time.Time, logger *zerolog.Logger) *InviteGranter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "InviteGranter").Logger()
	return &InviteGranter{bot: bot, linkTTL: ttl, clock: clock, log: &l}
}

// GrantAccess returns an invite link usable by one member. The link expires
// after linkTTL or at the subscription end date, whichever comes first.
func (g *InviteGranter) GrantAccess(ctx context.Context, t *model.AccessToken) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	expire := g.clock().Add(g.linkTTL)
	if t.SubscriptionEndDate.Before(expire) {
		expire = t.SubscriptionEndDate
	}
	req := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  chatConfig(t.ChannelID),
		Name:        linkName(t.Token),
		ExpireDate:  int(expire.Unix()),
		MemberLimit: 1,
	}

	resp, err := g.bot.Request(req)
	if err != nil {
		return "", fmt.Errorf("create invite link for %s: %w", t.ChannelID, err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", errors.New("telegram returned an empty invite link")
	}
	g.log.Debug().Str("channel_id", t.ChannelID).Time("expires", expire).Msg("invite link created")
	return link.InviteLink, nil
}

// chatConfig accepts numeric chat ids and @usernames.
func chatConfig(channelID string) tgbotapi.ChatConfig {
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return tgbotapi.ChatConfig{ChatID: id}
	}
	name := channelID
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	return tgbotapi.ChatConfig{SuperGroupUsername: name}
}

// linkName labels the link in the channel admin UI (max 32 chars).
func linkName(token string) string {
	if len(token) > 8 {
		token = token[:8]
	}
	return "access " + token
}
