package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client 是一条 websocket 连接。Identity/Location 只由读协程修改。
type Client struct {
	Id       string
	Identity string
	Location string
	Conn     ConnLike
	Send     chan []byte

	limiter   *rate.Limiter
	closeOnce sync.Once
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// NewClient; limiter 为 nil 时不限速
func NewClient(conn ConnLike, identity, location string, buffer int, limiter *rate.Limiter) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		Id:       uuid.NewString(),
		Identity: identity,
		Location: location,
		Conn:     conn,
		Send:     make(chan []byte, buffer),
		limiter:  limiter,
	}
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Close stops the write pump. Call it only after the manager has dropped the
// connection (Disconnect returned), so nothing enqueues afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// ReadPump 按到达顺序逐条处理；读出错或收到 disconnect 即返回
func (c *Client) ReadPump(ctx context.Context, m *ChatManager) {
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.enqueue(encode(OutError, ErrorFrame{Op: "decode", Code: ErrorCode(ErrBadRequest), Message: "malformed frame"}))
			continue
		}
		if ev.Type == EventDisconnect {
			return
		}
		m.Handle(ctx, c, &ev)
	}
}

func (c *Client) WritePump() {
	broken := false
	for data := range c.Send {
		if broken {
			continue
		}
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// 写失败：关掉连接让读协程退出，剩下的帧直接丢
			broken = true
			_ = c.Conn.Close()
		}
	}
}
