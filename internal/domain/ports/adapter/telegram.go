package adapter

import (
	"context"

	"membership-access/internal/domain/model"
)

// ChannelAccessGranter turns a redeemed token into a way into the channel,
// typically a single-member invite link that expires with the subscription.
type ChannelAccessGranter interface {
	GrantAccess(ctx context.Context, t *model.AccessToken) (inviteLink string, err error)
}
