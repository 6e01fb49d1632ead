package model

import "encoding/json"

// Intent is the NLU resolution of an inbound message: the matched intent
// name, any extracted parameters, and the fulfillment configured for it.
type Intent struct {
	Name        string         `json:"name"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Fulfillment Fulfillment    `json:"fulfillment"`
}

type Fulfillment struct {
	Messages []FulfillmentMessage `json:"messages,omitempty"`
}

// Fulfillment message kinds as delivered by the NLU service.
const (
	FulfillmentTypeSpeech  = 0
	FulfillmentTypePayload = 4
)

type FulfillmentMessage struct {
	Type    int             `json:"type"`
	Speech  string          `json:"speech,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisteredIntent is one entry of the intent-management service's catalog.
type RegisteredIntent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
