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

type suggestRequest struct {
	Content     string  `json:"content"`
	SourceType  string  `json:"source_type"`
	MaxTopics   int     `json:"max_topics"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
}

type suggestResponse struct {
	Text string `json:"text"`
}

// Suggester calls the model-backed suggestion service and parses its
// response into topic proposals.
type Suggester struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewSuggester(baseURL, model string, httpClient *http.Client) *Suggester {
	return &Suggester{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  httpClient,
	}
}

// SuggestTopics asks the model for up to maxTopics proposals. The model
// returns a JSON array of {topic, context, priority_score}, sometimes
// wrapped in a markdown code fence; both shapes parse. An empty array is a
// normal "no suggestions" outcome.
func (s *Suggester) SuggestTopics(ctx context.Context, content domain.ContentUnit, maxTopics int) ([]domain.TopicProposal, error) {
	reqBody := suggestRequest{
		Content:     content.Content,
		SourceType:  content.SourceType,
		MaxTopics:   maxTopics,
		Model:       s.Model,
		Temperature: 0.3,
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggest request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/suggest-topics", s.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create suggest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call suggestion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("suggestion endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var sr suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode suggestion response: %w", err)
	}

	return ParseProposals(sr.Text, maxTopics)
}

// ParseProposals extracts topic proposals from model output. Proposals
// missing any of the three fields are dropped; scores are clamped to
// [0, 1].
func ParseProposals(text string, maxTopics int) ([]domain.TopicProposal, error) {
	raw := stripCodeFence(strings.TrimSpace(text))
	if raw == "" {
		return nil, nil
	}

	var parsed []struct {
		Topic         *string  `json:"topic"`
		Context       *string  `json:"context"`
		PriorityScore *float64 `json:"priority_score"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("suggestion output is not a JSON array: %w", err)
	}

	var proposals []domain.TopicProposal
	for _, p := range parsed {
		if len(proposals) >= maxTopics {
			break
		}
		if p.Topic == nil || p.Context == nil || p.PriorityScore == nil {
			continue
		}
		score := *p.PriorityScore
		if score < 0.0 {
			score = 0.0
		}
		if score > 1.0 {
			score = 1.0
		}
		proposals = append(proposals, domain.TopicProposal{
			Topic:         *p.Topic,
			Context:       *p.Context,
			PriorityScore: score,
		})
	}
	return proposals, nil
}

func stripCodeFence(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return text
}

var _ domain.SuggestionSource = (*Suggester)(nil)
