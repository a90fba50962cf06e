package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"caption-proxy/api/internal/caption"
)

func newTestEngine(t *testing.T, h http.HandlerFunc) (*Engine, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	e := New("sk-test", "gpt-4o-mini").WithHTTPClient(srv.Client())
	e.BaseURL = srv.URL + "/v1/"
	return e, &calls
}

func TestGenerateRequestShape(t *testing.T) {
	var got chatRequest
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Unexpected Authorization header %q", auth)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Unexpected Content-Type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad request body: %s", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"  Caption A \n"}}]}`))
	})

	res, err := e.Generate(context.Background(), caption.Request{Prompt: "a sunset over mountains"})
	if err != nil {
		t.Fatal(err)
	}
	if expected := "Caption A"; res.Captions != expected {
		t.Errorf("Expected captions %q, got %q", expected, res.Captions)
	}

	if got.Model != "gpt-4o-mini" || got.MaxTokens != 300 || got.Temperature != 0.8 {
		t.Errorf("Unexpected sampling parameters %+v", got)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != caption.DefaultSystemPrompt {
		t.Errorf("Unexpected system message %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || !strings.Contains(got.Messages[1].Content, "a sunset over mountains") {
		t.Errorf("Unexpected user message %+v", got.Messages[1])
	}
}

func TestGenerateTextFallback(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"text":"Legacy caption"}]}`))
	})
	res, err := e.Generate(context.Background(), caption.Request{Prompt: "coffee"})
	if err != nil {
		t.Fatal(err)
	}
	if expected := "Legacy caption"; res.Captions != expected {
		t.Errorf("Expected %q, got %q", expected, res.Captions)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Run("upstream status", func(t *testing.T) {
		e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream exploded"))
		})
		_, err := e.Generate(context.Background(), caption.Request{Prompt: "x"})
		var ue *caption.UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("Expected UpstreamError, got %v", err)
		}
		if ue.StatusCode != http.StatusInternalServerError || ue.Body != "upstream exploded" {
			t.Errorf("Unexpected upstream error %+v", ue)
		}
	})

	for _, body := range []string{
		`{"choices":[]}`,
		`{}`,
		`{"choices":[{"message":{"content":null}}]}`,
		`{"choices":[{"message":{"content":"   "}}]}`,
	} {
		t.Run("empty "+body, func(t *testing.T) {
			e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := e.Generate(context.Background(), caption.Request{Prompt: "x"})
			var ee *caption.EmptyContentError
			if !errors.As(err, &ee) {
				t.Fatalf("Expected EmptyContentError, got %v", err)
			}
			if string(ee.Raw) != body {
				t.Errorf("Expected raw %s, got %s", body, ee.Raw)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":`))
		})
		_, err := e.Generate(context.Background(), caption.Request{Prompt: "x"})
		if err == nil {
			t.Fatal("Expected error")
		}
		var ue *caption.UpstreamError
		var ee *caption.EmptyContentError
		if errors.As(err, &ue) || errors.As(err, &ee) {
			t.Errorf("Expected untyped error, got %T", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		e, calls := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})
		e.APIKey = ""
		_, err := e.Generate(context.Background(), caption.Request{Prompt: "x"})
		if !errors.Is(err, caption.ErrNotConfigured) {
			t.Errorf("Expected ErrNotConfigured, got %v", err)
		}
		if n := calls.Load(); n != 0 {
			t.Errorf("Expected no outbound calls, got %d", n)
		}
	})
}
