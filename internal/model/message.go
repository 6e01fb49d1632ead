package model

import "encoding/json"

// Message type constants, matching the messaging platform's wire values.
const (
	MessageTypeText     = "text"
	MessageTypeSticker  = "sticker"
	MessageTypeLocation = "location"
	MessageTypeTemplate = "template"
)

// Message is an outbound or inbound platform message. Rich NLU fulfillment
// payloads are carried verbatim in Raw and serialized as-is, everything else
// uses the typed fields.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	PackageID string    `json:"packageId,omitempty"`
	StickerID string    `json:"stickerId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Address   string    `json:"address,omitempty"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
	AltText   string    `json:"altText,omitempty"`
	Template  *Template `json:"template,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Template is a structured message template (confirm dialogs, button menus).
type Template struct {
	Type    string           `json:"type"`
	Text    string           `json:"text"`
	Actions []TemplateAction `json:"actions"`
}

type TemplateAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// MarshalJSON emits Raw verbatim when set so pass-through payloads reach the
// platform untouched.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type plain Message
	return json.Marshal(plain(m))
}

// WithoutID returns a copy of the message with the platform-assigned message
// id cleared, suitable for re-sending as a new message.
func (m Message) WithoutID() Message {
	m.ID = ""
	return m
}

func NewTextMessage(text string) Message {
	return Message{Type: MessageTypeText, Text: text}
}

func NewRawMessage(payload json.RawMessage) Message {
	return Message{Raw: payload}
}

// NewConfirmMessage builds a yes/no confirm template. The labels double as the
// message text sent back when the user taps a button.
func NewConfirmMessage(altText, text string, choices ...string) Message {
	actions := make([]TemplateAction, 0, len(choices))
	for _, choice := range choices {
		actions = append(actions, TemplateAction{Type: "message", Label: choice, Text: choice})
	}
	return Message{
		Type:    MessageTypeTemplate,
		AltText: altText,
		Template: &Template{
			Type:    "confirm",
			Text:    text,
			Actions: actions,
		},
	}
}

// NewButtonsMessage builds a button-menu template.
func NewButtonsMessage(altText, text string, choices ...string) Message {
	actions := make([]TemplateAction, 0, len(choices))
	for _, choice := range choices {
		actions = append(actions, TemplateAction{Type: "message", Label: choice, Text: choice})
	}
	return Message{
		Type:    MessageTypeTemplate,
		AltText: altText,
		Template: &Template{
			Type:    "buttons",
			Text:    text,
			Actions: actions,
		},
	}
}
