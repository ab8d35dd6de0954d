package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

const (
	DefaultHistoryLimit  = 50
	DefaultTypingTimeout = 3 * time.Second
)

// connection 是注册表里的一条连接记录，只由 Start 协程读写
type connection struct {
	client   *Client
	identity string
	location string
	seq      uint64 // 最近一次上报位置的序号，用来挑"最新"的标签页
}

// audience 决定一帧发给谁
type audience struct {
	all        bool
	identities []string
}

func everyone() audience { return audience{all: true} }

func toIdentities(ids ...string) audience { return audience{identities: ids} }

func (a audience) matches(c *connection) bool {
	if a.all {
		return true
	}
	for _, id := range a.identities {
		if c.identity == id {
			return true
		}
	}
	return false
}

type joinRequest struct {
	client   *Client
	identity string
	location string
	reply    chan []models.PresenceEntry
}

type locationChange struct {
	connID   string
	location string
}

type delivery struct {
	to   audience
	data []byte
}

// Option configures a ChatManager.
type Option func(*ChatManager)

func WithLogger(log *zap.Logger) Option {
	return func(m *ChatManager) { m.log = log }
}

func WithInbox(inbox InboxStore) Option {
	return func(m *ChatManager) { m.inbox = inbox }
}

func WithHistoryLimit(n int) Option {
	return func(m *ChatManager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

func WithTypingTimeout(d time.Duration) Option {
	return func(m *ChatManager) {
		if d > 0 {
			m.typingTimeout = d
		}
	}
}

// ChatManager is the connection registry and the single event loop that owns
// every piece of in-memory state (connections, typing timers). Other
// goroutines talk to it through channels.
type ChatManager struct {
	store    Store
	inbox    InboxStore
	notifier Notifier
	log      *zap.Logger

	historyLimit  int
	typingTimeout time.Duration
	afterFunc     func(time.Duration, func()) Timer

	// 以下字段只在 Start 协程里读写
	conns     map[string]*connection
	typing    map[typingKey]*typingState
	seq       uint64
	typingGen uint64

	registerChan   chan joinRequest
	unregisterChan chan string
	locationChan   chan locationChange
	deliverChan    chan delivery
	typingChan     chan typingRequest
	expireChan     chan typingExpiry
	queryChan      chan func()
	done           chan struct{}
}

func NewChatManager(store Store, notifier Notifier, opts ...Option) *ChatManager {
	m := &ChatManager{
		store:         store,
		notifier:      notifier,
		log:           zap.NewNop(),
		historyLimit:  DefaultHistoryLimit,
		typingTimeout: DefaultTypingTimeout,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		conns:          map[string]*connection{},
		typing:         map[typingKey]*typingState{},
		registerChan:   make(chan joinRequest),
		unregisterChan: make(chan string),
		locationChan:   make(chan locationChange),
		deliverChan:    make(chan delivery),
		typingChan:     make(chan typingRequest),
		expireChan:     make(chan typingExpiry),
		queryChan:      make(chan func()),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the event loop until ctx is cancelled. Call it once.
func (m *ChatManager) Start(ctx context.Context) {
	defer func() {
		for key, st := range m.typing {
			st.timer.Stop()
			delete(m.typing, key)
		}
		metrics.TypingActive.Set(0)
		close(m.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-m.registerChan:
			m.seq++
			conn, ok := m.conns[req.client.Id]
			if !ok {
				conn = &connection{client: req.client}
				m.conns[req.client.Id] = conn
				metrics.Connections.Inc()
			}
			prev := conn.identity
			conn.identity, conn.location, conn.seq = req.identity, req.location, m.seq
			if ok && prev != req.identity {
				m.stopTypingIfOffline(prev)
			}
			m.log.Debug("connection registered",
				zap.String("conn", req.client.Id),
				zap.String("identity", req.identity),
				zap.String("location", req.location))
			req.reply <- m.presenceChanged()

		case id := <-m.unregisterChan:
			conn, ok := m.conns[id]
			if !ok {
				continue
			}
			delete(m.conns, id)
			metrics.Connections.Dec()
			m.stopTypingIfOffline(conn.identity)
			m.log.Debug("connection removed", zap.String("conn", id), zap.String("identity", conn.identity))
			m.presenceChanged()

		case ch := <-m.locationChan:
			conn, ok := m.conns[ch.connID]
			if !ok {
				continue
			}
			m.seq++
			conn.location, conn.seq = ch.location, m.seq
			m.presenceChanged()

		case d := <-m.deliverChan:
			m.fanout(d.to, d.data)

		case req := <-m.typingChan:
			m.onTyping(req)

		case ev := <-m.expireChan:
			m.onTypingExpired(ev)

		case fn := <-m.queryChan:
			fn()
		}
	}
}

// fanout 对每个连接非阻塞投递；某个连接满了只丢它自己的那一份
func (m *ChatManager) fanout(to audience, data []byte) int {
	n := 0
	for _, conn := range m.conns {
		if !to.matches(conn) {
			continue
		}
		if !conn.client.enqueue(data) {
			metrics.DeliveriesDropped.Inc()
			m.log.Warn("dropping frame for slow connection",
				zap.String("conn", conn.client.Id),
				zap.String("identity", conn.identity))
			continue
		}
		n++
	}
	return n
}

// presence 按 identity 去重；位置取该 identity 最近上报的那条连接
func (m *ChatManager) presence() []models.PresenceEntry {
	byIdentity := map[string]*models.PresenceEntry{}
	latest := map[string]uint64{}
	for _, conn := range m.conns {
		e, ok := byIdentity[conn.identity]
		if !ok {
			e = &models.PresenceEntry{Identity: conn.identity}
			byIdentity[conn.identity] = e
		}
		e.Connections++
		if conn.seq >= latest[conn.identity] {
			latest[conn.identity] = conn.seq
			e.Location = conn.location
		}
	}
	list := make([]models.PresenceEntry, 0, len(byIdentity))
	for _, e := range byIdentity {
		list = append(list, *e)
	}
	models.SortPresence(list)
	return list
}

func (m *ChatManager) presenceChanged() []models.PresenceEntry {
	view := m.presence()
	metrics.OnlineIdentities.Set(float64(len(view)))
	m.fanout(everyone(), encode(OutPresenceUpdated, view))
	return view
}

func (m *ChatManager) isOnline(identity string) bool {
	for _, conn := range m.conns {
		if conn.identity == identity {
			return true
		}
	}
	return false
}

func send[T any](ctx context.Context, done <-chan struct{}, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do 在事件线程上执行 fn 并等它完成
func (m *ChatManager) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := send(ctx, m.done, m.queryChan, func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ChatManager) deliver(ctx context.Context, to audience, data []byte) error {
	return send(ctx, m.done, m.deliverChan, delivery{to: to, data: data})
}

// Register inserts or overwrites the registry entry for c and returns the
// presence view that was broadcast to everyone.
func (m *ChatManager) Register(ctx context.Context, c *Client, identity, location string) ([]models.PresenceEntry, error) {
	if err := checkIdentity("identity", identity); err != nil {
		return nil, err
	}
	req := joinRequest{client: c, identity: identity, location: location, reply: make(chan []models.PresenceEntry, 1)}
	if err := send(ctx, m.done, m.registerChan, req); err != nil {
		return nil, err
	}
	select {
	case view := <-req.reply:
		c.Identity, c.Location = identity, location
		return view, nil
	case <-m.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Join is Register plus a replay of the recent public history (with reaction
// tallies) sent to the joining connection only.
func (m *ChatManager) Join(ctx context.Context, c *Client, identity, location string) ([]models.PresenceEntry, []*models.Message, error) {
	view, err := m.Register(ctx, c, identity, location)
	if err != nil {
		return nil, nil, err
	}
	replay, err := m.ReplayPublic(ctx, m.historyLimit)
	if err != nil {
		return view, nil, err
	}
	c.enqueue(encode(OutHistoryReplay, HistoryReplay{Scope: models.ScopePublic, Messages: replay}))
	return view, replay, nil
}

// ChangeLocation is a no-op for an unknown connection.
func (m *ChatManager) ChangeLocation(ctx context.Context, connID, location string) error {
	return send(ctx, m.done, m.locationChan, locationChange{connID: connID, location: location})
}

// Disconnect removes the connection before the next presence broadcast.
// Unknown ids are ignored.
func (m *ChatManager) Disconnect(ctx context.Context, connID string) error {
	return send(ctx, m.done, m.unregisterChan, connID)
}

func (m *ChatManager) ListPresence(ctx context.Context) ([]models.PresenceEntry, error) {
	var view []models.PresenceEntry
	if err := m.do(ctx, func() { view = m.presence() }); err != nil {
		return nil, err
	}
	return view, nil
}

// Online returns the distinct identities that currently have a connection.
func (m *ChatManager) Online(ctx context.Context) ([]string, error) {
	view, err := m.ListPresence(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(view))
	for i, e := range view {
		ids[i] = e.Identity
	}
	return ids, nil
}

func (m *ChatManager) CountMessages(ctx context.Context) (int64, error) {
	n, err := m.store.CountMessages(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "count_messages", Err: err}
	}
	return n, nil
}

func (m *ChatManager) ClearHistory(ctx context.Context) error {
	if err := m.store.ClearHistory(ctx); err != nil {
		return &PersistenceError{Op: "clear_history", Err: err}
	}
	m.log.Info("message history cleared")
	return nil
}
