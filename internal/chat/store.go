package chat

import (
	"context"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// Store is the durable message log the hub writes through. Fetch* return
// newest first. Lookup returns (nil, nil) for an unknown id. Implementations
// must not retry internally; errors go back to the caller.
type Store interface {
	PersistPublic(ctx context.Context, sender, text string, att *models.Attachment, replyTo *int64) (*models.Message, error)
	PersistPrivate(ctx context.Context, pairKey, sender, recipient, text string, att *models.Attachment, replyTo *int64) (*models.Message, error)
	FetchPublic(ctx context.Context, limit int) ([]*models.Message, error)
	FetchPrivate(ctx context.Context, pairKey string, limit int) ([]*models.Message, error)
	Lookup(ctx context.Context, scope models.Scope, id int64) (*models.Message, error)

	AddReaction(ctx context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error)
	RemoveReaction(ctx context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error)
	TallyReactions(ctx context.Context, messageID int64, scope models.Scope) (models.Tally, error)
	TallyMany(ctx context.Context, scope models.Scope, ids []int64) (map[int64]models.Tally, error)

	CountMessages(ctx context.Context) (int64, error)
	ClearHistory(ctx context.Context) error
}

// InboxStore backs the per-identity conversation list. Optional.
type InboxStore interface {
	ListConversations(ctx context.Context, identity string) ([]models.ConversationPreview, error)
	MarkRead(ctx context.Context, identity, peer string) error
}

// Notifier delivers out-of-band notices (mail, push, webhook...).
type Notifier interface {
	NotifyMention(ctx context.Context, target, from, text string) error
	NotifyDirectMessage(ctx context.Context, recipient, from, text string) error
}
