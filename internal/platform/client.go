// Package platform talks to the messaging platform: outbound reply/push
// delivery and inbound webhook verification and parsing.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"calobot.app/bot/internal/model"
)

const defaultBaseURL = "https://api.line.me"

// Client is the messaging API client. It implements collector.Transport.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	channelSecret string
}

type Option func(*Client)

// WithBaseURL points the client at a different API host. Used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(accessToken, channelSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		baseURL:       defaultBaseURL,
		accessToken:   accessToken,
		channelSecret: channelSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type replyRequest struct {
	ReplyToken string          `json:"replyToken"`
	Messages   []model.Message `json:"messages"`
}

type pushRequest struct {
	To       string          `json:"to"`
	Messages []model.Message `json:"messages"`
}

// Reply sends messages in response to a webhook event. Reply tokens are
// single-use and expire shortly after the event, so callers fall back to Push
// for anything later.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []model.Message) error {
	return c.post(ctx, "/v2/bot/message/reply", replyRequest{ReplyToken: replyToken, Messages: outbound(msgs)})
}

// Push sends messages to a user outside the reply window.
func (c *Client) Push(ctx context.Context, userID string, msgs []model.Message) error {
	return c.post(ctx, "/v2/bot/message/push", pushRequest{To: userID, Messages: outbound(msgs)})
}

// outbound strips platform-assigned message ids so received messages can be
// forwarded as-is.
func outbound(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.WithoutID()
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, detail)
	}
	return nil
}
