package models

import (
	"sort"
	"strings"
	"time"
)

type Scope string

const (
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
)

// PublicRoom 是公共频道在 typing 事件里的 room 名
const PublicRoom = "public"

func (s Scope) Valid() bool { return s == ScopePublic || s == ScopePrivate }

type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ReplySnapshot 被回复消息的冗余快照
type ReplySnapshot struct {
	ID     int64  `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type Message struct {
	ID         int64          `json:"id"`
	Scope      Scope          `json:"scope"`
	PairKey    string         `json:"pair_key,omitempty"`  // private only
	Sender     string         `json:"sender"`
	Recipient  string         `json:"recipient,omitempty"` // private only
	Text       string         `json:"text"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	ReplyToID  *int64         `json:"reply_to_id,omitempty"`
	ReplyTo    *ReplySnapshot `json:"reply_to,omitempty"`
	Reactions  Tally          `json:"reactions,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (m *Message) Snapshot() *ReplySnapshot {
	return &ReplySnapshot{ID: m.ID, Sender: m.Sender, Text: m.Text}
}

// Tally: emoji -> 按反应先后排列的 identity
type Tally map[string][]string

const pairSep = "|"

// ValidIdentity reports whether s can take part in a pair key. The separator
// is reserved, otherwise PairKey("a|b", "c") == PairKey("a", "b|c").
func ValidIdentity(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.Contains(s, pairSep)
}

// PairKey returns the order-independent key of a two-party conversation.
// Callers validate both sides with ValidIdentity first.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + pairSep + b
}

// SplitPairKey is the inverse of PairKey.
func SplitPairKey(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, pairSep)
	if !ok || !ValidIdentity(a) || !ValidIdentity(b) {
		return "", "", false
	}
	return a, b, true
}

// PresenceEntry 每个 identity 一条，无论开了几个标签页
type PresenceEntry struct {
	Identity    string `json:"identity"`
	Location    string `json:"location"`
	Connections int    `json:"connections"`
}

func SortPresence(list []PresenceEntry) {
	sort.Slice(list, func(i, j int) bool { return list[i].Identity < list[j].Identity })
}

// ConversationPreview 收件箱里的一条私聊会话
type ConversationPreview struct {
	Peer     string    `json:"peer"`
	PairKey  string    `json:"pair_key"`
	LastID   int64     `json:"last_id"`
	LastFrom string    `json:"last_from"`
	LastBody string    `json:"last_body"`
	LastAt   time.Time `json:"last_at"`
	Unread   int       `json:"unread"`
}

type NotificationKind string

const (
	NotifyMention       NotificationKind = "mention"
	NotifyDirectMessage NotificationKind = "direct_message"
)

type Notification struct {
	ID        int64            `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Target    string           `json:"target"`
	From      string           `json:"from"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"created_at"`
}
