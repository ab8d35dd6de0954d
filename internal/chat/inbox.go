package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// Inbox lists the private conversations of identity, newest first.
func (m *ChatManager) Inbox(ctx context.Context, identity string) ([]models.ConversationPreview, error) {
	if m.inbox == nil {
		return []models.ConversationPreview{}, nil
	}
	list, err := m.inbox.ListConversations(ctx, identity)
	if err != nil {
		return nil, &PersistenceError{Op: "list_conversations", Err: err}
	}
	return list, nil
}

// MarkRead clears the unread count of identity's conversation with peer and
// tells identity's other tabs to refresh.
func (m *ChatManager) MarkRead(ctx context.Context, identity, peer string) error {
	if err := checkIdentity("identity", identity); err != nil {
		return err
	}
	if err := checkIdentity("peer", peer); err != nil {
		return err
	}
	if m.inbox == nil {
		return nil
	}
	if err := m.inbox.MarkRead(ctx, identity, peer); err != nil {
		return &PersistenceError{Op: "mark_read", Err: err}
	}
	return m.deliver(ctx, toIdentities(identity), encode(OutInboxUpdated, InboxSignal{Peer: peer}))
}

// 私聊消息落库后通知双方刷新 inbox
func (m *ChatManager) signalInbox(ctx context.Context, sender, recipient string) {
	if m.inbox == nil {
		return
	}
	if err := m.deliver(ctx, toIdentities(sender), encode(OutInboxUpdated, InboxSignal{Peer: recipient})); err != nil {
		m.log.Debug("inbox signal skipped", zap.Error(err))
		return
	}
	if err := m.deliver(ctx, toIdentities(recipient), encode(OutInboxUpdated, InboxSignal{Peer: sender})); err != nil {
		m.log.Debug("inbox signal skipped", zap.Error(err))
	}
}
