package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyPayload = errors.New("empty message payload")

// Payload is what a client sends as a chat message: either a bare string
// (PlainText) or an object (Structured). It is decoded once at the boundary.
type Payload interface {
	isPayload()
}

type PlainText string

type Structured struct {
	Text       string      `json:"text"`
	ReplyToID  *int64      `json:"replyToId,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

func (PlainText) isPayload()  {}
func (Structured) isPayload() {}

// DecodePayload accepts `"hello"` or `{"text":"hello","replyToId":3}`.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrEmptyPayload
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return PlainText(s), nil
	}
	var st Structured
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return st, nil
}

// Parts flattens a payload. Text is trimmed; a payload with neither text nor
// attachment is rejected.
func Parts(p Payload) (text string, replyTo *int64, att *Attachment, err error) {
	switch v := p.(type) {
	case PlainText:
		text = strings.TrimSpace(string(v))
	case Structured:
		text = strings.TrimSpace(v.Text)
		replyTo = v.ReplyToID
		if v.Attachment != nil && v.Attachment.URL != "" {
			att = v.Attachment
		}
	default:
		return "", nil, nil, ErrEmptyPayload
	}
	if text == "" && att == nil {
		return "", nil, nil, ErrEmptyPayload
	}
	return text, replyTo, att, nil
}
