package chat

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

func TestPublicMessageReachesEveryTabOnce(t *testing.T) {
	h := newHarness(t)
	u1a := h.connect("u1", "/")
	u1b := h.connect("u1", "/")
	u2a := h.connect("u2", "/")
	u2b := h.connect("u2", "/")
	for _, c := range []*Client{u1a, u1b, u2a, u2b} {
		drain(c)
	}

	msg, err := h.m.SendPublic(h.ctx, "u1", models.PlainText("reefer temp alarm on load 88"))
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	h.settle()

	for _, c := range []*Client{u1a, u1b, u2a, u2b} {
		got := framesOf(drain(c), OutPublicMessage)
		require.Len(t, got, 1, "connection %s", c.Id)
		m := decode[models.Message](t, got[0])
		assert.Equal(t, msg.ID, m.ID)
		assert.Equal(t, "u1", m.Sender)
	}
}

func TestPrivateMessageToOfflineRecipient(t *testing.T) {
	h := newHarness(t)
	u1 := h.connect("u1", "/")

	msg, err := h.m.SendPrivate(h.ctx, "u1", "u2", models.PlainText("customs hold on MSKU123"))
	require.NoError(t, err)
	assert.Equal(t, models.PairKey("u1", "u2"), msg.PairKey)
	h.settle()
	assert.Len(t, framesOf(drain(u1), OutPrivateMessage), 1, "sender's own tab gets the echo")

	u2 := h.connect("u2", "/")
	history, err := h.m.ReplayPrivate(h.ctx, models.PairKey("u2", "u1"), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "customs hold on MSKU123", history[0].Text)
	h.settle()
	assert.Empty(t, framesOf(drain(u2), OutPrivateMessage))

	assert.Equal(t, []notice{{models.NotifyDirectMessage, "u2", "u1", "customs hold on MSKU123"}}, h.notifier.all())
}

func TestPrivateMessageOnlyReachesBothParties(t *testing.T) {
	h := newHarness(t)
	a1 := h.connect("ana", "/")
	a2 := h.connect("ana", "/")
	b1 := h.connect("ben", "/")
	cy := h.connect("cy", "/")
	for _, c := range []*Client{a1, a2, b1, cy} {
		drain(c)
	}

	_, err := h.m.SendPrivate(h.ctx, "ben", "ana", models.PlainText("rate confirmation signed"))
	require.NoError(t, err)
	h.settle()

	for _, c := range []*Client{a1, a2, b1} {
		assert.Len(t, framesOf(drain(c), OutPrivateMessage), 1)
	}
	assert.Empty(t, drain(cy))
}

func TestPersistenceFailureIsNotBroadcast(t *testing.T) {
	h := newHarness(t)
	sender := h.connect("ana", "/")
	other := h.connect("ben", "/")
	drain(sender)
	h.store.setFailWrite(true)

	h.m.Handle(h.ctx, sender, event(t, `{"type":"sendPublic","ref":"r1","text":"will not land"}`))
	h.m.Handle(h.ctx, sender, event(t, `{"type":"sendPrivate","ref":"r2","to":"ben","text":"nor this"}`))
	h.settle()

	frames := drain(sender)
	errs := framesOf(frames, OutError)
	require.Len(t, errs, 2)
	first := decode[ErrorFrame](t, errs[0])
	assert.Equal(t, "r1", first.Ref)
	assert.Equal(t, "persistence_failed", first.Code)
	assert.Equal(t, EventSendPublic, first.Op)
	assert.Empty(t, framesOf(frames, OutAck))
	assert.Empty(t, drain(other))
	assert.Empty(t, h.notifier.all())

	_, err := h.m.SendPublic(h.ctx, "ana", models.PlainText("x"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)
}

func TestSendAcknowledgesWithID(t *testing.T) {
	h := newHarness(t)
	c := h.connect("ana", "/")

	h.m.Handle(h.ctx, c, event(t, `{"type":"sendPublic","ref":"abc","text":{"text":"POD uploaded","attachment":{"url":"/f/pod.pdf","type":"application/pdf","name":"pod.pdf"}}}`))
	h.settle()

	frames := drain(c)
	acks := framesOf(frames, OutAck)
	require.Len(t, acks, 1)
	ack := decode[Ack](t, acks[0])
	assert.Equal(t, "abc", ack.Ref)
	assert.NotZero(t, ack.ID)

	pub := framesOf(frames, OutPublicMessage)
	require.Len(t, pub, 1)
	msg := decode[models.Message](t, pub[0])
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "pod.pdf", msg.Attachment.Name)
}

func TestLiveReplyCarriesSnapshot(t *testing.T) {
	h := newHarness(t)
	c := h.connect("ana", "/")

	parent, err := h.m.SendPrivate(h.ctx, "ben", "ana", models.PlainText("need the BL"))
	require.NoError(t, err)
	h.m.Handle(h.ctx, c, event(t, `{"type":"sendPrivate","to":"ben","text":"attached","replyToId":`+itoa(parent.ID)+`}`))
	h.settle()

	msgs := framesOf(drain(c), OutPrivateMessage)
	require.Len(t, msgs, 2)
	reply := decode[models.Message](t, msgs[1])
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, models.ReplySnapshot{ID: parent.ID, Sender: "ben", Text: "need the BL"}, *reply.ReplyTo)

	// a reply id from another conversation gets no snapshot
	other, err := h.m.SendPrivate(h.ctx, "cy", "dan", models.PlainText("secret"))
	require.NoError(t, err)
	leaked, err := h.m.SendPrivate(h.ctx, "ana", "ben", models.Structured{Text: "?", ReplyToID: &other.ID})
	require.NoError(t, err)
	assert.Nil(t, leaked.ReplyTo)
}

func TestReplayIsChronologicalAndLimited(t *testing.T) {
	h := newHarness(t, WithHistoryLimit(3))
	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := h.m.SendPublic(h.ctx, "ana", models.PlainText(text))
		require.NoError(t, err)
	}

	msgs, err := h.m.ReplayPublic(h.ctx, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"two", "three", "four"}, texts(msgs))

	msgs, err = h.m.ReplayPublic(h.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, texts(msgs))

	_, err = h.m.ReplayPrivate(h.ctx, "not-a-key", 10)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestSlowConnectionDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t)
	slow := NewClient(nil, "slow", "/", 1, nil)
	_, err := h.m.Register(h.ctx, slow, "slow", "/")
	require.NoError(t, err)
	h.settle()
	// buffer of one, already holding the presence frame
	fast := h.connect("fast", "/")

	for i := 0; i < 3; i++ {
		_, err := h.m.SendPublic(h.ctx, "fast", models.PlainText("tick"))
		require.NoError(t, err)
	}
	h.settle()
	assert.Len(t, framesOf(drain(fast), OutPublicMessage), 3)
	assert.Len(t, drain(slow), 1)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.SendPublic(h.ctx, "ana", models.PlainText("   "))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = h.m.SendPrivate(h.ctx, "ana", "", models.PlainText("hi"))
	assert.ErrorIs(t, err, ErrBadRequest)

	c := h.connect("ana", "/")
	h.m.Handle(h.ctx, c, event(t, `{"type":"bogus","ref":"z"}`))
	h.settle()
	errs := framesOf(drain(c), OutError)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad_request", decode[ErrorFrame](t, errs[0]).Code)
}

func TestSeparatorInIdentityIsRejected(t *testing.T) {
	h := newHarness(t)
	c := h.connect("c", "/")
	drain(c)

	_, err := h.m.SendPrivate(h.ctx, "a|b", "c", models.PlainText("for a and b|c only"))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = h.m.SendPrivate(h.ctx, "a", "b|c", models.PlainText("for a|b and c only"))
	assert.ErrorIs(t, err, ErrBadRequest)

	n, err := h.m.CountMessages(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = h.m.ReplayPrivate(h.ctx, models.PairKey("a", "b|c"), 0)
	assert.ErrorIs(t, err, ErrBadRequest)

	h.m.Handle(h.ctx, c, event(t, `{"type":"sendPrivate","ref":"x","to":"a|b","text":"hi"}`))
	h.m.Handle(h.ctx, c, event(t, `{"type":"fetchPrivateHistory","otherParty":"a|b"}`))
	h.settle()
	frames := drain(c)
	errs := framesOf(frames, OutError)
	require.Len(t, errs, 2)
	for _, raw := range errs {
		assert.Equal(t, "bad_request", decode[ErrorFrame](t, raw).Code)
	}
	assert.Empty(t, framesOf(frames, OutPrivateMessage))
	assert.Empty(t, framesOf(frames, OutHistoryReplay))
	assert.Empty(t, h.notifier.all())
}

func texts(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
