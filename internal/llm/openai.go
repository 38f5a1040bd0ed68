package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatClient calls a chat-completions endpoint that speaks the
// OpenAI wire format and asks for JSON output. The same shape covers
// OpenAI, DeepSeek and DashScope/Qwen compatible-mode endpoints.
type OpenAICompatClient struct {
	http    *http.Client
	name    string
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAICompatClient creates a client for baseURL (without the /v1
// suffix). name labels the provider in logs and failure reports.
func NewOpenAICompatClient(name, baseURL, apiKey, model string) *OpenAICompatClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	base = strings.TrimSuffix(base, "/v1")
	return &OpenAICompatClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		name:    name,
		apiKey:  apiKey,
		model:   model,
		baseURL: base + "/v1/chat/completions",
	}
}

func (c *OpenAICompatClient) Name() string { return c.name + ":" + c.model }
func (c *OpenAICompatClient) Close() error { return nil }

type chatReq struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float32           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateJSON assembles a single user message from prompt + input and
// requests JSON output.
func (c *OpenAICompatClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.MarshalIndent(input, "", "  ")
	full := prompt + "\n\n[INPUT JSON]\n" + string(in)

	reqBody := chatReq{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: full}},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewPermanentError(errors.New(c.name + ": unexpected status " + resp.Status))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(c.name + ": unexpected status " + resp.Status)
	}
	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, ErrInvalidJSON
	}
	raw := json.RawMessage(out.Choices[0].Message.Content)
	var scratch any
	if err := json.Unmarshal(raw, &scratch); err != nil {
		return nil, ErrInvalidJSON
	}
	return raw, nil
}
