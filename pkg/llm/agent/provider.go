// Package agent talks to a standalone answer-retrieval service over HTTP.
//
// Request:  POST {baseURL}/answer {"question": "...", "history": [...]}
// Response: 200 {"answer": "..."}
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voice-qa-be/pkg/llm"
)

type AgentProvider struct {
	baseURL string
	client  *http.Client
}

var _ llm.LLMProvider = &AgentProvider{}

func NewAgentProvider(baseURL string) *AgentProvider {
	return &AgentProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

type answerRequest struct {
	Question string        `json:"question"`
	History  []llm.Message `json:"history,omitempty"`
}

type answerResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Chat sends the last user message as the question and everything before it as history.
func (p *AgentProvider) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("agent: no question")
	}
	last := history[len(history)-1]

	payload, err := json.Marshal(answerRequest{
		Question: last.Content,
		History:  history[:len(history)-1],
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/answer", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llm.StatusError{Provider: "agent", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out answerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("agent returned error: %s", out.Error)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", llm.ErrEmptyResponse
	}
	return out.Answer, nil
}
