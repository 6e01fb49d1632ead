// Package fooddb wraps the nutrition database service: food name resolution
// and the unidentified-food registry that feeds manual curation.
package fooddb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
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

// Resolve looks a food name up and returns its candidate records. An empty
// candidate list means the food is unidentified, not an error.
func (c *Client) Resolve(ctx context.Context, foodName string) (model.FoodCandidates, error) {
	endpoint := c.baseURL + "/food?name=" + url.QueryEscape(foodName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.FoodCandidates{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.FoodCandidates{}, fmt.Errorf("resolving %s: %w", foodName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.FoodCandidates{}, fmt.Errorf("resolving %s returned %d", foodName, resp.StatusCode)
	}

	candidates := model.FoodCandidates{Name: foodName}
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return model.FoodCandidates{}, fmt.Errorf("decoding candidates: %w", err)
	}
	candidates.Name = foodName
	return candidates, nil
}

// SaveUnidentified records a food name the database could not resolve.
func (c *Client) SaveUnidentified(ctx context.Context, foodName string) error {
	body, err := json.Marshal(map[string]string{"food_name": foodName})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/food/unidentified", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("saving unidentified %s: %w", foodName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("saving unidentified %s returned %d", foodName, resp.StatusCode)
	}
	return nil
}
