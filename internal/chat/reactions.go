package chat

import (
	"context"
	"strings"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

type reactionMode int

const (
	reactionToggle reactionMode = iota
	reactionAdd
	reactionRemove
)

// ReactionTarget names a message. Peer is the other participant and is
// required for private messages.
type ReactionTarget struct {
	MessageID int64
	Scope     models.Scope
	Peer      string
}

// ToggleReaction adds the (message, scope, identity, emoji) tuple if it is
// missing and removes it otherwise, then broadcasts and returns the tally.
func (m *ChatManager) ToggleReaction(ctx context.Context, identity string, t ReactionTarget, emoji string) (models.Tally, error) {
	return m.react(ctx, identity, t, emoji, reactionToggle)
}

// AddReaction is a no-op on an existing tuple; the tally is still broadcast.
func (m *ChatManager) AddReaction(ctx context.Context, identity string, t ReactionTarget, emoji string) (models.Tally, error) {
	return m.react(ctx, identity, t, emoji, reactionAdd)
}

// RemoveReaction is a no-op on a missing tuple; the tally is still broadcast.
func (m *ChatManager) RemoveReaction(ctx context.Context, identity string, t ReactionTarget, emoji string) (models.Tally, error) {
	return m.react(ctx, identity, t, emoji, reactionRemove)
}

func (m *ChatManager) react(ctx context.Context, identity string, t ReactionTarget, emoji string, mode reactionMode) (models.Tally, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, badRequest("emoji is required")
	}
	if !t.Scope.Valid() {
		return nil, badRequest("unknown scope %q", t.Scope)
	}
	if err := checkIdentity("identity", identity); err != nil {
		return nil, err
	}
	to := everyone()
	if t.Scope == models.ScopePrivate {
		if t.Peer == "" {
			return nil, badRequest("otherParty is required for private reactions")
		}
		if err := checkIdentity("otherParty", t.Peer); err != nil {
			return nil, err
		}
		to = toIdentities(identity, t.Peer)
	}

	msg, err := m.store.Lookup(ctx, t.Scope, t.MessageID)
	if err != nil {
		return nil, &PersistenceError{Op: "lookup_message", Err: err}
	}
	if msg == nil {
		return nil, badRequest("unknown message %d", t.MessageID)
	}
	if t.Scope == models.ScopePrivate && msg.PairKey != models.PairKey(identity, t.Peer) {
		return nil, badRequest("message %d is not in this conversation", t.MessageID)
	}

	result, err := m.applyReaction(ctx, identity, t, emoji, mode)
	if err != nil {
		return nil, err
	}
	metrics.ReactionChanges.WithLabelValues(result).Inc()

	tally, err := m.store.TallyReactions(ctx, t.MessageID, t.Scope)
	if err != nil {
		return nil, &PersistenceError{Op: "tally_reactions", Err: err}
	}
	update := TallyUpdate{MessageID: t.MessageID, Scope: t.Scope, Tally: tally}
	if err := m.deliver(ctx, to, encode(OutReactionTally, update)); err != nil {
		return tally, err
	}
	return tally, nil
}

// applyReaction 依赖唯一索引：并发的两次同向操作，后到的那次自然变成 noop
func (m *ChatManager) applyReaction(ctx context.Context, identity string, t ReactionTarget, emoji string, mode reactionMode) (string, error) {
	if mode != reactionRemove {
		inserted, err := m.store.AddReaction(ctx, t.MessageID, t.Scope, identity, emoji)
		if err != nil {
			return "", &PersistenceError{Op: "add_reaction", Err: err}
		}
		if inserted {
			return "added", nil
		}
		if mode == reactionAdd {
			return "noop", nil
		}
	}
	deleted, err := m.store.RemoveReaction(ctx, t.MessageID, t.Scope, identity, emoji)
	if err != nil {
		return "", &PersistenceError{Op: "remove_reaction", Err: err}
	}
	if deleted {
		return "removed", nil
	}
	return "noop", nil
}
