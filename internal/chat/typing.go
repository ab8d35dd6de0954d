package chat

import (
	"context"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// Timer is the part of *time.Timer the typing coordinator needs.
type Timer interface {
	Stop() bool
}

// typingKey: room 是 "public" 或者私聊对方的 identity
type typingKey struct {
	room     string
	identity string
}

type typingState struct {
	timer Timer
	gen   uint64
}

type typingRequest struct {
	key  typingKey
	stop bool
}

type typingExpiry struct {
	key typingKey
	gen uint64
}

func typingRoom(room string) string {
	if room == "" {
		return models.PublicRoom
	}
	return room
}

// StartTyping moves (room, identity) to Typing, or restarts its timer if it
// is already typing. typingStarted is only emitted on the Idle->Typing edge.
func (m *ChatManager) StartTyping(ctx context.Context, room, identity string) error {
	key, err := newTypingKey(room, identity)
	if err != nil {
		return err
	}
	return send(ctx, m.done, m.typingChan, typingRequest{key: key})
}

func (m *ChatManager) StopTyping(ctx context.Context, room, identity string) error {
	key, err := newTypingKey(room, identity)
	if err != nil {
		return err
	}
	return send(ctx, m.done, m.typingChan, typingRequest{key: key, stop: true})
}

// 私聊的 room 就是对方的 identity
func newTypingKey(room, identity string) (typingKey, error) {
	if err := checkIdentity("identity", identity); err != nil {
		return typingKey{}, err
	}
	if room != "" {
		if err := checkIdentity("room", room); err != nil {
			return typingKey{}, err
		}
	}
	return typingKey{room: typingRoom(room), identity: identity}, nil
}

func (m *ChatManager) onTyping(req typingRequest) {
	st, typing := m.typing[req.key]
	if req.stop {
		if typing {
			m.clearTyping(req.key, st)
		}
		return
	}
	if typing {
		// 刷新：旧 timer 先停，再换新的；不重复发 typingStarted
		st.timer.Stop()
		st.timer, st.gen = m.armTyping(req.key)
		return
	}
	st = &typingState{}
	st.timer, st.gen = m.armTyping(req.key)
	m.typing[req.key] = st
	metrics.TypingActive.Inc()
	m.emitTyping(OutTypingStarted, req.key)
}

func (m *ChatManager) armTyping(key typingKey) (Timer, uint64) {
	m.typingGen++
	gen := m.typingGen
	t := m.afterFunc(m.typingTimeout, func() {
		select {
		case m.expireChan <- typingExpiry{key: key, gen: gen}:
		case <-m.done:
		}
	})
	return t, gen
}

// 过期事件可能在刷新之后才到达，gen 不一致的直接丢掉
func (m *ChatManager) onTypingExpired(ev typingExpiry) {
	st, ok := m.typing[ev.key]
	if !ok || st.gen != ev.gen {
		return
	}
	m.clearTyping(ev.key, st)
}

func (m *ChatManager) clearTyping(key typingKey, st *typingState) {
	st.timer.Stop()
	delete(m.typing, key)
	metrics.TypingActive.Dec()
	m.emitTyping(OutTypingStopped, key)
}

// stopTypingIfOffline 某个 identity 的最后一个连接断开后，清掉它所有的 typing 状态
func (m *ChatManager) stopTypingIfOffline(identity string) {
	if identity == "" || m.isOnline(identity) {
		return
	}
	for key, st := range m.typing {
		if key.identity == identity {
			m.clearTyping(key, st)
		}
	}
}

func (m *ChatManager) emitTyping(kind string, key typingKey) {
	data := encode(kind, TypingSignal{Identity: key.identity, Room: key.room})
	if key.room == models.PublicRoom {
		m.fanout(everyone(), data)
		return
	}
	m.fanout(toIdentities(key.room), data)
}
