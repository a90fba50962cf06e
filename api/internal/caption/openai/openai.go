package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"caption-proxy/api/internal/caption"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Prompter    caption.Prompter

	httpc *http.Client
}

func New(key, model string) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}

	return &Engine{
		APIKey:      strings.TrimSpace(key),
		Model:       strings.TrimSpace(model),
		BaseURL:     DefaultBaseURL,
		MaxTokens:   300,
		Temperature: 0.8,
		// No overall timeout: a slow completion is surfaced by the transport limits above.
		httpc: &http.Client{Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for tests or tracing).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }
func (e *Engine) Configured() bool { return e.APIKey != "" }
func (e *Engine) endpoint() string { return strings.TrimRight(e.BaseURL, "/") + "/chat/completions" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
}

// content returns the first choice's message content, falling back to the
// legacy completions "text" field.
func (r chatResponse) content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	c := r.Choices[0]
	if c.Message != nil && c.Message.Content != nil && strings.TrimSpace(*c.Message.Content) != "" {
		return *c.Message.Content
	}
	if c.Text != nil {
		return *c.Text
	}
	return ""
}

func (e *Engine) Generate(ctx context.Context, in caption.Request) (caption.Result, error) {
	if !e.Configured() {
		return caption.Result{}, caption.NotConfigured("OpenAI")
	}

	msgs := e.Prompter.Build(e.Name(), in.Prompt)
	body := chatRequest{
		Model: e.Model,
		Messages: []chatMessage{
			{Role: "system", Content: msgs.System},
			{Role: "user", Content: msgs.User},
		},
		MaxTokens:   e.MaxTokens,
		Temperature: e.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return caption.Result{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return caption.Result{}, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return caption.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return caption.Result{}, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return caption.Result{}, &caption.UpstreamError{
			Provider:   "OpenAI",
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return caption.Result{}, fmt.Errorf("openai: bad JSON: %w", err)
	}
	text := strings.TrimSpace(out.content())
	if text == "" {
		return caption.Result{}, &caption.EmptyContentError{Provider: "OpenAI", Raw: raw}
	}
	return caption.Result{Captions: text}, nil
}
