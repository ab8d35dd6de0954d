package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

var errDiskFull = errors.New("disk full")

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	public    []*models.Message
	private   []*models.Message
	reactions []reactionRow
	failWrite bool
	failRead  bool
}

type reactionRow struct {
	messageID int64
	scope     models.Scope
	identity  string
	emoji     string
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) setFailWrite(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = v
}

func (s *memStore) PersistPublic(_ context.Context, sender, text string, att *models.Attachment, replyTo *int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return nil, errDiskFull
	}
	s.nextID++
	msg := &models.Message{ID: s.nextID, Scope: models.ScopePublic, Sender: sender, Text: text, Attachment: att, ReplyToID: replyTo, CreatedAt: time.Now()}
	s.public = append(s.public, msg)
	cp := *msg
	return &cp, nil
}

func (s *memStore) PersistPrivate(_ context.Context, pairKey, sender, recipient, text string, att *models.Attachment, replyTo *int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return nil, errDiskFull
	}
	s.nextID++
	msg := &models.Message{ID: s.nextID, Scope: models.ScopePrivate, PairKey: pairKey, Sender: sender, Recipient: recipient, Text: text, Attachment: att, ReplyToID: replyTo, CreatedAt: time.Now()}
	s.private = append(s.private, msg)
	cp := *msg
	return &cp, nil
}

func newestFirst(list []*models.Message, keep func(*models.Message) bool, limit int) []*models.Message {
	var out []*models.Message
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(list[i]) {
			cp := *list[i]
			out = append(out, &cp)
		}
	}
	return out
}

func (s *memStore) FetchPublic(_ context.Context, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errDiskFull
	}
	return newestFirst(s.public, func(*models.Message) bool { return true }, limit), nil
}

func (s *memStore) FetchPrivate(_ context.Context, pairKey string, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errDiskFull
	}
	return newestFirst(s.private, func(m *models.Message) bool { return m.PairKey == pairKey }, limit), nil
}

func (s *memStore) Lookup(_ context.Context, scope models.Scope, id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.public
	if scope == models.ScopePrivate {
		list = s.private
	}
	for _, m := range list {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) AddReaction(_ context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return false, errDiskFull
	}
	row := reactionRow{messageID, scope, identity, emoji}
	for _, r := range s.reactions {
		if r == row {
			return false, nil
		}
	}
	s.reactions = append(s.reactions, row)
	return true, nil
}

func (s *memStore) RemoveReaction(_ context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return false, errDiskFull
	}
	row := reactionRow{messageID, scope, identity, emoji}
	for i, r := range s.reactions {
		if r == row {
			s.reactions = append(s.reactions[:i], s.reactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) tally(messageID int64, scope models.Scope) models.Tally {
	t := models.Tally{}
	for _, r := range s.reactions {
		if r.messageID == messageID && r.scope == scope {
			t[r.emoji] = append(t[r.emoji], r.identity)
		}
	}
	return t
}

func (s *memStore) TallyReactions(_ context.Context, messageID int64, scope models.Scope) (models.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally(messageID, scope), nil
}

func (s *memStore) TallyMany(_ context.Context, scope models.Scope, ids []int64) (map[int64]models.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]models.Tally{}
	for _, id := range ids {
		if t := s.tally(id, scope); len(t) > 0 {
			out[id] = t
		}
	}
	return out, nil
}

func (s *memStore) CountMessages(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.public) + len(s.private)), nil
}

func (s *memStore) ClearHistory(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public, s.private, s.reactions = nil, nil, nil
	return nil
}

type notice struct {
	kind   models.NotificationKind
	target string
	from   string
	text   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) NotifyMention(_ context.Context, target, from, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{models.NotifyMention, target, from, text})
	return nil
}

func (n *recordingNotifier) NotifyDirectMessage(_ context.Context, recipient, from, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{models.NotifyDirectMessage, recipient, from, text})
	return nil
}

func (n *recordingNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func (n *recordingNotifier) targets(kind models.NotificationKind) []string {
	var out []string
	for _, x := range n.all() {
		if x.kind == kind {
			out = append(out, x.target)
		}
	}
	sort.Strings(out)
	return out
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback even if the timer was stopped, like a timer that
// expired just before Stop was called.
func (t *fakeTimer) fire() { t.f() }

func (c *fakeClock) afterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	m        *ChatManager
	store    *memStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := newMemStore()
	notifier := &recordingNotifier{}
	clock := &fakeClock{}
	m := NewChatManager(store, notifier, opts...)
	m.afterFunc = clock.afterFunc

	stopped := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return &harness{t: t, ctx: ctx, m: m, store: store, notifier: notifier, clock: clock}
}

// connect registers a new connection and throws away the frames it caused.
func (h *harness) connect(identity, location string) *Client {
	h.t.Helper()
	c := NewClient(nil, identity, location, 64, nil)
	_, err := h.m.Register(h.ctx, c, identity, location)
	require.NoError(h.t, err)
	h.settle()
	drain(c)
	return c
}

// settle waits until the event loop has handled everything queued before it.
func (h *harness) settle() {
	h.t.Helper()
	require.NoError(h.t, h.m.do(h.ctx, func() {}))
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func drain(c *Client) []frame {
	var out []frame
	for {
		select {
		case b := <-c.Send:
			var f frame
			_ = json.Unmarshal(b, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func framesOf(frames []frame, kind string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func event(t *testing.T, raw string) *Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return &ev
}
