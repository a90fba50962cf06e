package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"

	"caption-proxy/api/internal/caption"
)

type Engine struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Prompter    caption.Prompter
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       strings.TrimSpace(model),
		MaxTokens:   300,
		Temperature: 0.8,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }
func (e *Engine) Configured() bool { return e.APIKey != "" }

func (e *Engine) Generate(ctx context.Context, in caption.Request) (caption.Result, error) {
	if !e.Configured() {
		return caption.Result{}, caption.NotConfigured("Gemini")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return caption.Result{}, fmt.Errorf("gemini: new client: %w", err)
	}
	defer cl.Close()

	msgs := e.Prompter.Build(e.Name(), in.Prompt)

	m := cl.GenerativeModel(e.Model)
	m.SetTemperature(float32(e.Temperature))
	m.SetMaxOutputTokens(int32(e.MaxTokens))
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(msgs.System)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(msgs.User))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			raw, _ := json.Marshal(blocked)
			return caption.Result{}, &caption.EmptyContentError{Provider: "Gemini", Raw: raw}
		}
		var ae *apierror.APIError
		if errors.As(err, &ae) {
			code := ae.HTTPCode()
			if code <= 0 {
				code = http.StatusBadGateway
			}
			return caption.Result{}, &caption.UpstreamError{Provider: "Gemini", StatusCode: code, Body: ae.Error()}
		}
		return caption.Result{}, err
	}

	text := strings.TrimSpace(candidateText(resp))
	if text == "" {
		raw, _ := json.Marshal(resp)
		return caption.Result{}, &caption.EmptyContentError{Provider: "Gemini", Raw: raw}
	}
	return caption.Result{Captions: text}, nil
}

// candidateText concatenates the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
