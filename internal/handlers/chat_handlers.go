package handlers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pelusa-v/dispatchdesk/internal/chat"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

const maxNotifications = 100

// NoticeLister is the read side of the notification log.
type NoticeLister interface {
	ListNotifications(ctx context.Context, target string, limit int) ([]models.Notification, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	SendBuffer int
	RateLimit  float64 // 每秒；<= 0 不限速
	RateBurst  int
}

type Handler struct {
	ctx     context.Context
	chat    *chat.ChatManager
	notices NoticeLister
	db      Pinger
	log     *zap.Logger
	opts    Options
}

// New wires the HTTP surface. ctx bounds every websocket session.
func New(ctx context.Context, m *chat.ChatManager, notices NoticeLister, db Pinger, log *zap.Logger, opts Options) *Handler {
	return &Handler{ctx: ctx, chat: m, notices: notices, db: db, log: log, opts: opts}
}

func (h *Handler) limiter() *rate.Limiter {
	if h.opts.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(h.opts.RateLimit), h.opts.RateBurst)
}

const identityKey = "identity"

// RequireUpgrade 非法 identity 直接 400，非 websocket 请求 426
func RequireUpgrade(c *fiber.Ctx) error {
	identity, err := url.PathUnescape(c.Params("identity"))
	identity = strings.TrimSpace(identity)
	if err != nil || !models.ValidIdentity(identity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid identity"})
	}
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals(identityKey, identity)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// RegisterHandler GET /api/ws/register/:identity?location=
func (h *Handler) RegisterHandler(c *websocket.Conn) {
	identity, _ := c.Locals(identityKey).(string)
	location := c.Query("location", "/")
	client := chat.NewClient(c, identity, location, h.opts.SendBuffer, h.limiter())

	_, _, err := h.chat.Join(h.ctx, client, identity, location)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrPersistence):
		// 历史回放失败不影响在线
		h.log.Warn("history replay failed", zap.String("identity", identity), zap.Error(err))
	default:
		h.log.Info("websocket join rejected", zap.String("identity", identity), zap.Error(err))
		_ = c.WriteJSON(chat.Envelope{Type: chat.OutError, Data: chat.ErrorFrame{Op: chat.EventJoin, Code: chat.ErrorCode(err), Message: err.Error()}})
		return
	}

	defer func() {
		if err := h.chat.Disconnect(context.Background(), client.Id); err != nil {
			h.log.Debug("disconnect after shutdown", zap.String("conn", client.Id), zap.Error(err))
		}
		client.Close()
	}()
	go client.WritePump()
	client.ReadPump(h.ctx, h.chat)
}

// PresenceHandler GET /api/presence
func (h *Handler) PresenceHandler(c *fiber.Ctx) error {
	view, err := h.chat.ListPresence(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// PublicHistoryHandler GET /api/history/public?limit=
func (h *Handler) PublicHistoryHandler(c *fiber.Ctx) error {
	msgs, err := h.chat.ReplayPublic(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

// PrivateHistoryHandler GET /api/history/private?a=&b=&limit=
func (h *Handler) PrivateHistoryHandler(c *fiber.Ctx) error {
	a, b := strings.TrimSpace(c.Query("a")), strings.TrimSpace(c.Query("b"))
	if a == "" || b == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing a or b"})
	}
	if !models.ValidIdentity(a) || !models.ValidIdentity(b) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid a or b"})
	}
	msgs, err := h.chat.ReplayPrivate(c.UserContext(), models.PairKey(a, b), c.QueryInt("limit"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

// InboxHandler GET /api/inbox/:identity
func (h *Handler) InboxHandler(c *fiber.Ctx) error {
	list, err := h.chat.Inbox(c.UserContext(), c.Params("identity"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

// MarkReadHandler POST /api/inbox/read?identity=&peer=
func (h *Handler) MarkReadHandler(c *fiber.Ctx) error {
	identity := strings.TrimSpace(c.Query("identity"))
	peer := strings.TrimSpace(c.Query("peer"))
	if identity == "" || peer == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := h.chat.MarkRead(c.UserContext(), identity, peer); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// NotificationsHandler GET /api/notifications/:identity?limit=
func (h *Handler) NotificationsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxNotifications {
		limit = maxNotifications
	}
	list, err := h.notices.ListNotifications(c.UserContext(), c.Params("identity"), limit)
	if err != nil {
		return h.fail(c, &chat.PersistenceError{Op: "list_notifications", Err: err})
	}
	return c.JSON(list)
}

// CountHandler GET /api/admin/messages/count
func (h *Handler) CountHandler(c *fiber.Ctx) error {
	n, err := h.chat.CountMessages(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// ClearHistoryHandler DELETE /api/admin/history
func (h *Handler) ClearHistoryHandler(c *fiber.Ctx) error {
	if err := h.chat.ClearHistory(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HealthHandler GET /healthz
func (h *Handler) HealthHandler(c *fiber.Ctx) error {
	if err := h.db.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	if _, err := h.chat.ListPresence(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrBadRequest):
		code = fiber.StatusBadRequest
	case errors.Is(err, chat.ErrHubStopped):
		code = fiber.StatusServiceUnavailable
	case errors.Is(err, chat.ErrPersistence):
		code = fiber.StatusInternalServerError
		h.log.Error("store failure", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
