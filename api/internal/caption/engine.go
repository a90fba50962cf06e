package caption

import (
	"context"
	"errors"
	"strings"
)

type Engine interface {
	Name() string
	GetModel() string
	// Configured reports whether the provider credential is present.
	// Generate fails with ErrNotConfigured when it returns false.
	Configured() bool
	Generate(ctx context.Context, in Request) (Result, error)
}

type Request struct {
	Prompt string
}

type Result struct {
	Captions string
}

type Engines struct {
	Default string
	OpenAI  Engine
	Gemini  Engine
}

var ErrUnknownEngine = errors.New("unknown llm_name; use 'gpt' or 'gemini'")

// GetEngine resolves an llm_name to an engine. An empty name selects the default.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(e.Default))
	}
	switch name {
	case "", "gpt", "openai":
		if e.OpenAI != nil {
			return e.OpenAI, nil
		}
	case "gemini":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	}
	return nil, ErrUnknownEngine
}
