package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// SendPublic persists the message and then delivers it to every connection,
// the sender's own tabs included. Nothing is delivered if the store fails.
func (m *ChatManager) SendPublic(ctx context.Context, sender string, p models.Payload) (*models.Message, error) {
	text, replyTo, att, err := models.Parts(p)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	msg, err := m.store.PersistPublic(ctx, sender, text, att, replyTo)
	if err != nil {
		return nil, &PersistenceError{Op: "persist_public", Err: err}
	}
	metrics.MessagesPersisted.WithLabelValues(string(models.ScopePublic)).Inc()
	m.attachReply(ctx, msg)

	if err := m.deliver(ctx, everyone(), encode(OutPublicMessage, msg)); err != nil {
		return msg, err
	}
	m.dispatchMentions(ctx, sender, text)
	return msg, nil
}

// SendPrivate persists under the pair key and delivers to every connection of
// the sender and of the recipient. An offline recipient is not an error; the
// message waits in history and a direct-message notice goes out regardless.
func (m *ChatManager) SendPrivate(ctx context.Context, sender, recipient string, p models.Payload) (*models.Message, error) {
	if err := checkIdentity("sender", sender); err != nil {
		return nil, err
	}
	if err := checkIdentity("recipient", recipient); err != nil {
		return nil, err
	}
	text, replyTo, att, err := models.Parts(p)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	key := models.PairKey(sender, recipient)
	msg, err := m.store.PersistPrivate(ctx, key, sender, recipient, text, att, replyTo)
	if err != nil {
		return nil, &PersistenceError{Op: "persist_private", Err: err}
	}
	metrics.MessagesPersisted.WithLabelValues(string(models.ScopePrivate)).Inc()
	m.attachReply(ctx, msg)

	if err := m.deliver(ctx, toIdentities(sender, recipient), encode(OutPrivateMessage, msg)); err != nil {
		return msg, err
	}
	m.signalInbox(ctx, sender, recipient)
	m.notifyDirect(ctx, recipient, sender, text)
	m.dispatchMentions(ctx, sender, text)
	return msg, nil
}

// ReplayPublic returns the latest limit public messages in chronological
// order, each with its reaction tally and reply snapshot.
func (m *ChatManager) ReplayPublic(ctx context.Context, limit int) ([]*models.Message, error) {
	msgs, err := m.store.FetchPublic(ctx, m.clampLimit(limit))
	if err != nil {
		return nil, &PersistenceError{Op: "fetch_public", Err: err}
	}
	return m.annotate(ctx, models.ScopePublic, msgs)
}

func (m *ChatManager) ReplayPrivate(ctx context.Context, pairKey string, limit int) ([]*models.Message, error) {
	if _, _, ok := models.SplitPairKey(pairKey); !ok {
		return nil, badRequest("invalid pair key %q", pairKey)
	}
	msgs, err := m.store.FetchPrivate(ctx, pairKey, m.clampLimit(limit))
	if err != nil {
		return nil, &PersistenceError{Op: "fetch_private", Err: err}
	}
	return m.annotate(ctx, models.ScopePrivate, msgs)
}

func (m *ChatManager) clampLimit(limit int) int {
	if limit <= 0 || limit > m.historyLimit {
		return m.historyLimit
	}
	return limit
}

// annotate 把最新在前的结果翻成时间顺序，并补上 reactions 和回复快照
func (m *ChatManager) annotate(ctx context.Context, scope models.Scope, msgs []*models.Message) ([]*models.Message, error) {
	out := make([]*models.Message, len(msgs))
	ids := make([]int64, len(msgs))
	byID := make(map[int64]*models.Message, len(msgs))
	for i, msg := range msgs {
		out[len(msgs)-1-i] = msg
		ids[i] = msg.ID
		byID[msg.ID] = msg
	}

	tallies, err := m.store.TallyMany(ctx, scope, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "tally_reactions", Err: err}
	}
	for _, msg := range out {
		msg.Reactions = tallies[msg.ID]
		if msg.ReplyToID == nil {
			continue
		}
		if parent, ok := byID[*msg.ReplyToID]; ok {
			msg.ReplyTo = parent.Snapshot()
			continue
		}
		m.attachReply(ctx, msg)
	}
	return out, nil
}

// attachReply 查不到被回复的消息就不带快照，不算错误
func (m *ChatManager) attachReply(ctx context.Context, msg *models.Message) {
	if msg.ReplyToID == nil {
		return
	}
	parent, err := m.store.Lookup(ctx, msg.Scope, *msg.ReplyToID)
	if err != nil {
		m.log.Warn("reply lookup failed", zap.Int64("id", msg.ID), zap.Int64("reply_to", *msg.ReplyToID), zap.Error(err))
		return
	}
	if parent == nil || parent.PairKey != msg.PairKey {
		return
	}
	msg.ReplyTo = parent.Snapshot()
}
