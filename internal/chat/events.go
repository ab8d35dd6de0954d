package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// Handle runs one inbound event for c. Failures are reported to c only.
func (m *ChatManager) Handle(ctx context.Context, c *Client, ev *Event) {
	if err := m.handle(ctx, c, ev); err != nil {
		code := ErrorCode(err)
		metrics.SendFailures.WithLabelValues(code).Inc()
		if !errors.Is(err, ErrBadRequest) && !errors.Is(err, ErrRateLimited) {
			m.log.Warn("event failed",
				zap.String("type", ev.Type),
				zap.String("conn", c.Id),
				zap.String("identity", c.Identity),
				zap.Error(err))
		}
		c.enqueue(encode(OutError, ErrorFrame{Ref: ev.Ref, Op: ev.Type, Code: code, Message: err.Error()}))
	}
}

func (m *ChatManager) handle(ctx context.Context, c *Client, ev *Event) error {
	switch ev.Type {
	case EventJoin, EventRegister:
		identity := ev.Identity
		if identity == "" {
			identity = c.Identity
		}
		location := ev.Location
		if location == "" {
			location = c.Location
		}
		if ev.Type == EventRegister {
			_, err := m.Register(ctx, c, identity, location)
			return err
		}
		_, _, err := m.Join(ctx, c, identity, location)
		return err

	case EventPageChange:
		c.Location = ev.Location
		return m.ChangeLocation(ctx, c.Id, ev.Location)

	case EventSendPublic, EventSendPrivate:
		if !c.allow() {
			return ErrRateLimited
		}
		p, err := ev.Payload()
		if err != nil {
			return badRequest("%v", err)
		}
		var msg *models.Message
		if ev.Type == EventSendPublic {
			msg, err = m.SendPublic(ctx, c.Identity, p)
		} else {
			msg, err = m.SendPrivate(ctx, c.Identity, ev.To, p)
		}
		if msg != nil {
			// ack 也走事件线程，保证排在回显之后
			ack := encode(OutAck, Ack{Ref: ev.Ref, ID: msg.ID})
			if serr := send(ctx, m.done, m.queryChan, func() { c.enqueue(ack) }); serr != nil && err == nil {
				err = serr
			}
		}
		return err

	case EventTyping:
		return m.StartTyping(ctx, ev.Room, c.Identity)

	case EventStopTyping:
		return m.StopTyping(ctx, ev.Room, c.Identity)

	case EventAddReaction, EventRemoveReaction, EventToggleReaction:
		if !c.allow() {
			return ErrRateLimited
		}
		t := ReactionTarget{MessageID: ev.MessageID, Scope: models.ScopePublic}
		if ev.IsPrivate {
			t.Scope, t.Peer = models.ScopePrivate, ev.OtherParty
		}
		var err error
		switch ev.Type {
		case EventAddReaction:
			_, err = m.AddReaction(ctx, c.Identity, t, ev.Emoji)
		case EventRemoveReaction:
			_, err = m.RemoveReaction(ctx, c.Identity, t, ev.Emoji)
		default:
			_, err = m.ToggleReaction(ctx, c.Identity, t, ev.Emoji)
		}
		return err

	case EventFetchPublicHistory:
		msgs, err := m.ReplayPublic(ctx, ev.Limit)
		if err != nil {
			return err
		}
		c.enqueue(encode(OutHistoryReplay, HistoryReplay{Scope: models.ScopePublic, Messages: msgs}))
		return nil

	case EventFetchPrivateHistory:
		if err := checkIdentity("otherParty", ev.OtherParty); err != nil {
			return err
		}
		msgs, err := m.ReplayPrivate(ctx, models.PairKey(c.Identity, ev.OtherParty), ev.Limit)
		if err != nil {
			return err
		}
		c.enqueue(encode(OutHistoryReplay, HistoryReplay{Scope: models.ScopePrivate, Peer: ev.OtherParty, Messages: msgs}))
		return nil

	case EventMarkRead:
		return m.MarkRead(ctx, c.Identity, ev.OtherParty)

	default:
		return badRequest("unknown event type %q", ev.Type)
	}
}
