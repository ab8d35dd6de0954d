package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook POSTs each notice as JSON to a fixed URL.
type Webhook struct {
	url     string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		url:     url,
		timeout: timeout,
		client:  &fasthttp.Client{Name: "dispatchdesk"},
	}
}

func (w *Webhook) Deliver(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyRaw(body)

	// 取 ctx 截止时间和固定超时里更早的那个
	timeout := w.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	if err := w.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("webhook %s: %w", n.Kind, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook %s: status %d", n.Kind, code)
	}
	return nil
}
