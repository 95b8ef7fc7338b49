package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/adapter"
)

var _ adapter.ChannelAccessGranter = (*NoopGranter)(nil)

// NoopGranter is used when no bot token is configured. Redemption still
// succeeds; the page just has no invite link.
type NoopGranter struct {
	log *zerolog.Logger
}

func NewNoopGranter(logger *zerolog.Logger) *NoopGranter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "NoopGranter").Logger()
	return &NoopGranter{log: &l}
}

func (g *NoopGranter) GrantAccess(ctx context.Context, t *model.AccessToken) (string, error) {
	g.log.Debug().Str("channel_id", t.ChannelID).Msg("no bot configured, skipping invite link")
	return "", nil
}
