// Package research holds the HTTP adapters for the two external
// collaborators: the deep-research service that executes research work and
// the suggestion service that proposes topics from ingested content.
// Neither adapter knows anything about task or topic identifiers.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"topic-orchestrator/internal/domain"
)

const (
	defaultInitialQueries = 3
	defaultMaxLoops       = 3
)

type researchRequest struct {
	Question       string `json:"question"`
	InitialQueries int    `json:"initial_queries"`
	MaxLoops       int    `json:"max_loops"`
	ReasoningModel string `json:"reasoning_model,omitempty"`
}

type researchResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"sources"`
}

// Client calls the deep-research service over HTTP.
type Client struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewClient constructs a research client for the given endpoint. The
// http.Client's timeout should exceed the orchestrator's execution timeout
// so the dispatcher, not the transport, decides when a task times out.
func NewClient(baseURL, model string, httpClient *http.Client) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  httpClient,
	}
}

// Research runs the deep-research pipeline for a question and returns the
// synthesized answer with its gathered sources.
func (c *Client) Research(ctx context.Context, question string) (*domain.ResearchResult, error) {
	reqBody := researchRequest{
		Question:       question,
		InitialQueries: defaultInitialQueries,
		MaxLoops:       defaultMaxLoops,
		ReasoningModel: c.Model,
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal research request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/research", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call research endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("research endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var rr researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("failed to decode research response: %w", err)
	}

	answer := strings.TrimSpace(rr.Answer)
	if answer == "" {
		return nil, fmt.Errorf("research produced no answer")
	}

	result := &domain.ResearchResult{Answer: answer}
	for _, s := range rr.Sources {
		result.Sources = append(result.Sources, domain.ResearchSource{URL: s.URL, Title: s.Title})
	}
	return result, nil
}

var _ domain.ResearchExecutor = (*Client)(nil)
