// Package intent wraps the NLU / intent-management service: intent detection
// for inbound messages and intent CRUD for the Q&A learning flow.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"calobot.app/bot/internal/model"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

type detectRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Detect classifies a message and returns the matched intent with any
// extracted parameters and fulfillment messages.
func (c *Client) Detect(ctx context.Context, sessionID, text string) (model.Intent, error) {
	var intent model.Intent
	if err := c.postJSON(ctx, "/query", detectRequest{SessionID: sessionID, Text: text}, &intent); err != nil {
		return model.Intent{}, fmt.Errorf("detecting intent: %w", err)
	}
	return intent, nil
}

// List returns all registered intents.
func (c *Client) List(ctx context.Context) ([]model.RegisteredIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/intents", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing intents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing intents returned %d", resp.StatusCode)
	}

	var intents []model.RegisteredIntent
	if err := json.NewDecoder(resp.Body).Decode(&intents); err != nil {
		return nil, fmt.Errorf("decoding intents: %w", err)
	}
	return intents, nil
}

type addRequest struct {
	Name           string `json:"name"`
	Action         string `json:"action"`
	TrainingPhrase string `json:"training_phrase"`
	ResponseText   string `json:"response_text"`
}

// Add registers a new trainable intent with one training phrase and one
// response.
func (c *Client) Add(ctx context.Context, name, action, trainingPhrase, responseText string) error {
	if err := c.postJSON(ctx, "/intents", addRequest{
		Name:           name,
		Action:         action,
		TrainingPhrase: trainingPhrase,
		ResponseText:   responseText,
	}, nil); err != nil {
		return fmt.Errorf("adding intent: %w", err)
	}
	return nil
}

// AddTrainingPhrase attaches another example phrase to an existing intent.
func (c *Client) AddTrainingPhrase(ctx context.Context, intentID, phrase string) error {
	path := fmt.Sprintf("/intents/%s/phrases", intentID)
	if err := c.postJSON(ctx, path, map[string]string{"phrase": phrase}, nil); err != nil {
		return fmt.Errorf("adding training phrase: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
