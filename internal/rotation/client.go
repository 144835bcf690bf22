package rotation

import (
	"context"
	"time"
)

// ChannelClient is the messaging platform as seen by the rotation engine.
// Chat identifiers are @usernames or numeric IDs. Errors should carry a
// transport.ErrorKind (see transport.KindOf).
type ChannelClient interface {
	CreateInviteLink(ctx context.Context, chatID string, ttl time.Duration, userLimit int) (string, error)
	SendMessage(ctx context.Context, chatID, html string) (int, error)
	EditMessage(ctx context.Context, chatID string, messageID int, html string) error
	DeleteMessage(ctx context.Context, chatID string, messageID int) error
}
