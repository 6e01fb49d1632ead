package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"calobot.app/bot/internal/model"
)

// ValidateSignature checks the webhook body against the X-Line-Signature
// header: base64(HMAC-SHA256(channel secret, body)).
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

type webhookPayload struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string          `json:"type"`
	Timestamp  int64           `json:"timestamp"`
	ReplyToken string          `json:"replyToken"`
	Source     webhookSource   `json:"source"`
	Message    *webhookMessage `json:"message"`
	Postback   *model.Postback `json:"postback"`
}

type webhookSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type webhookMessage struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	PackageID string  `json:"packageId"`
	StickerID string  `json:"stickerId"`
	Title     string  `json:"title"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ParseWebhook decodes a verified webhook body into events.
func ParseWebhook(body []byte) ([]model.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}

	events := make([]model.Event, 0, len(payload.Events))
	for _, we := range payload.Events {
		ev := model.Event{
			Type:       we.Type,
			UserID:     we.Source.UserID,
			ReplyToken: we.ReplyToken,
			Timestamp:  time.UnixMilli(we.Timestamp).UTC(),
			Postback:   we.Postback,
		}
		if we.Message != nil {
			ev.Message = &model.Message{
				ID:        we.Message.ID,
				Type:      we.Message.Type,
				Text:      we.Message.Text,
				PackageID: we.Message.PackageID,
				StickerID: we.Message.StickerID,
				Title:     we.Message.Title,
				Address:   we.Message.Address,
				Latitude:  we.Message.Latitude,
				Longitude: we.Message.Longitude,
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
