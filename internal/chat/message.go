package chat

import (
	"encoding/json"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// 客户端 -> 服务端
const (
	EventJoin                = "join"
	EventRegister            = "register"
	EventPageChange          = "pageChange"
	EventSendPublic          = "sendPublic"
	EventSendPrivate         = "sendPrivate"
	EventTyping              = "typing"
	EventStopTyping          = "stopTyping"
	EventAddReaction         = "addReaction"
	EventRemoveReaction      = "removeReaction"
	EventToggleReaction      = "toggleReaction"
	EventFetchPublicHistory  = "fetchPublicHistory"
	EventFetchPrivateHistory = "fetchPrivateHistory"
	EventMarkRead            = "markRead"
	EventDisconnect          = "disconnect"
)

// 服务端 -> 客户端
const (
	OutPresenceUpdated = "presenceUpdated"
	OutPublicMessage   = "publicMessage"
	OutPrivateMessage  = "privateMessage"
	OutTypingStarted   = "typingStarted"
	OutTypingStopped   = "typingStopped"
	OutReactionTally   = "reactionTallyUpdated"
	OutHistoryReplay   = "historyReplay"
	OutInboxUpdated    = "inboxUpdated"
	OutAck             = "ack"
	OutError           = "error"
)

// Event is one inbound frame. Which fields matter depends on Type.
type Event struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"` // echoed back in ack/error

	Identity string `json:"identity,omitempty"` // join/register
	Location string `json:"location,omitempty"` // join/register/pageChange

	To         string             `json:"to,omitempty"`   // sendPrivate
	Text       json.RawMessage    `json:"text,omitempty"` // string or {text,replyToId,attachment}
	Attachment *models.Attachment `json:"attachment,omitempty"`
	ReplyToID  *int64             `json:"replyToId,omitempty"`

	Room string `json:"room,omitempty"` // typing/stopTyping

	MessageID  int64  `json:"messageId,omitempty"`
	Emoji      string `json:"emoji,omitempty"`
	IsPrivate  bool   `json:"isPrivate,omitempty"`
	OtherParty string `json:"otherParty,omitempty"` // private reactions/history, markRead

	Limit int `json:"limit,omitempty"`
}

// Payload resolves the text field (bare string or object) together with the
// top-level attachment/replyToId into one models.Payload.
func (e *Event) Payload() (models.Payload, error) {
	var p models.Payload
	if len(e.Text) > 0 {
		var err error
		if p, err = models.DecodePayload(e.Text); err != nil {
			return nil, err
		}
	}
	if e.Attachment == nil && e.ReplyToID == nil {
		if p == nil {
			return nil, models.ErrEmptyPayload
		}
		return p, nil
	}

	st := models.Structured{Attachment: e.Attachment, ReplyToID: e.ReplyToID}
	switch v := p.(type) {
	case models.PlainText:
		st.Text = string(v)
	case models.Structured:
		st.Text = v.Text
		if st.Attachment == nil {
			st.Attachment = v.Attachment
		}
		if st.ReplyToID == nil {
			st.ReplyToID = v.ReplyToID
		}
	}
	return st, nil
}

// Envelope is one outbound frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type TypingSignal struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

type TallyUpdate struct {
	MessageID int64        `json:"messageId"`
	Scope     models.Scope `json:"scope"`
	Tally     models.Tally `json:"tally"`
}

type HistoryReplay struct {
	Scope    models.Scope      `json:"scope"`
	Peer     string            `json:"peer,omitempty"`
	Messages []*models.Message `json:"messages"`
}

type Ack struct {
	Ref string `json:"ref,omitempty"`
	ID  int64  `json:"id"`
}

type ErrorFrame struct {
	Ref     string `json:"ref,omitempty"`
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InboxSignal 轻量提示：让前端刷新 inbox（不含正文）
type InboxSignal struct {
	Peer string `json:"peer"`
}

func encode(kind string, data any) []byte {
	b, _ := json.Marshal(&Envelope{Type: kind, Data: data})
	return b
}
