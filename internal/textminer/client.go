// Package textminer wraps the morphological-analysis service used to pull
// food mentions out of free-form Japanese text.
package textminer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"
)

const nounPOS = "名詞"

// Token is one morpheme from the analysis service: surface form plus its
// part-of-speech tags.
type Token struct {
	Surface      string `json:"surface"`
	PartOfSpeech string `json:"pos"`
	SubCategory  string `json:"pos_detail_1"`
}

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

// Parse runs morphological analysis over a sentence.
func (c *Client) Parse(ctx context.Context, sentence string) ([]Token, error) {
	body, err := json.Marshal(map[string]string{"sentence": sentence})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling parse: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parse returned %d", resp.StatusCode)
	}

	var tokens []Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}
	return tokens, nil
}

// ExtractFoodNames parses a message and returns its noun surface forms in
// order of appearance, deduplicated. An empty result means no food candidates
// were recognized.
func (c *Client) ExtractFoodNames(ctx context.Context, text string) ([]string, error) {
	tokens, err := c.Parse(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extracting food names: %w", err)
	}

	var names []string
	for _, tok := range tokens {
		if tok.PartOfSpeech != nounPOS {
			continue
		}
		if !slices.Contains(names, tok.Surface) {
			names = append(names, tok.Surface)
		}
	}
	return names, nil
}
