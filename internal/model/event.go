package model

import "time"

// Event type constants for inbound webhook events.
const (
	EventTypeMessage  = "message"
	EventTypePostback = "postback"
)

// Event is one inbound webhook event from the messaging platform.
type Event struct {
	Type       string
	UserID     string
	ReplyToken string
	Timestamp  time.Time
	Message    *Message
	Postback   *Postback
}

type Postback struct {
	Data string `json:"data"`
}

// InputText returns the user-supplied text value of the event: the message
// text for message events, the postback data otherwise.
func (e Event) InputText() string {
	if e.Type == EventTypePostback && e.Postback != nil {
		return e.Postback.Data
	}
	if e.Message != nil {
		return e.Message.Text
	}
	return ""
}
