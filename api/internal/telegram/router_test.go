package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/store"
)

type fakeBot struct {
	sent     []tgbotapi.MessageConfig
	requests int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) last(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("Expected a message to be sent")
	}
	return f.sent[len(f.sent)-1].Text
}

type stubEngine struct {
	name       string
	configured bool
	err        error
	prompts    []string
}

func (s *stubEngine) Name() string     { return s.name }
func (s *stubEngine) GetModel() string { return s.name + "-model" }
func (s *stubEngine) Configured() bool { return s.configured }
func (s *stubEngine) Generate(_ context.Context, in caption.Request) (caption.Result, error) {
	s.prompts = append(s.prompts, in.Prompt)
	if s.err != nil {
		return caption.Result{}, s.err
	}
	return caption.Result{Captions: "captions for " + in.Prompt}, nil
}

type memHistory struct{ recs []store.CaptionRecord }

func (m *memHistory) Insert(_ context.Context, rec store.CaptionRecord) (int64, error) {
	m.recs = append([]store.CaptionRecord{rec}, m.recs...)
	return int64(len(m.recs)), nil
}

func (m *memHistory) Recent(_ context.Context, limit int) ([]store.CaptionRecord, error) {
	return m.recs[:min(limit, len(m.recs))], nil
}

func newRouter(gpt, gem *stubEngine, hist History) (*Router, *fakeBot) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	bot := &fakeBot{}
	return &Router{
		Bot:     bot,
		Engines: &caption.Engines{Default: "gpt", OpenAI: gpt, Gemini: gem},
		History: hist,
		Log:     l,
	}, bot
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestTextGeneratesCaptions(t *testing.T) {
	gpt := &stubEngine{name: "gpt", configured: true}
	hist := &memHistory{}
	r, bot := newRouter(gpt, &stubEngine{name: "gemini"}, hist)

	r.HandleUpdate(textUpdate(1, "  latte art  "))

	if expected, actual := "captions for latte art", bot.last(t); expected != actual {
		t.Errorf("Expected %q, got %q", expected, actual)
	}
	if bot.sent[len(bot.sent)-1].ReplyMarkup == nil {
		t.Error("Expected a More captions keyboard")
	}
	if len(hist.recs) != 1 || hist.recs[0].Prompt != "latte art" {
		t.Errorf("Unexpected history %+v", hist.recs)
	}
}

func TestEngineSwitch(t *testing.T) {
	gpt := &stubEngine{name: "gpt", configured: true}
	gem := &stubEngine{name: "gemini", configured: true}
	r, bot := newRouter(gpt, gem, nil)

	r.HandleUpdate(textUpdate(7, "/engine gemini"))
	if msg := bot.last(t); !strings.Contains(msg, "gemini") {
		t.Errorf("Unexpected reply %q", msg)
	}

	r.HandleUpdate(textUpdate(7, "beach day"))
	if len(gem.prompts) != 1 || len(gpt.prompts) != 0 {
		t.Errorf("Expected gemini to serve chat 7, gpt=%v gemini=%v", gpt.prompts, gem.prompts)
	}

	// Other chats keep the default.
	r.HandleUpdate(textUpdate(8, "city night"))
	if len(gpt.prompts) != 1 {
		t.Errorf("Expected gpt to serve chat 8, got %v", gpt.prompts)
	}

	r.HandleUpdate(textUpdate(7, "/engine claude"))
	if msg := bot.last(t); !strings.HasPrefix(msg, "Unknown engine") {
		t.Errorf("Unexpected reply %q", msg)
	}
}

func TestEngineSwitchUnconfigured(t *testing.T) {
	r, bot := newRouter(&stubEngine{name: "gpt", configured: true}, &stubEngine{name: "gemini"}, nil)
	r.HandleUpdate(textUpdate(1, "/engine gemini"))
	if msg := bot.last(t); !strings.Contains(msg, "not configured") {
		t.Errorf("Unexpected reply %q", msg)
	}
	if r.state.getEngine(1) != "" {
		t.Error("Expected engine choice to be unchanged")
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name     string
		engine   *stubEngine
		contains string
	}{
		{"not configured", &stubEngine{name: "gpt"}, "not configured"},
		{"upstream", &stubEngine{name: "gpt", configured: true, err: &caption.UpstreamError{Provider: "OpenAI", StatusCode: 503}}, "OpenAI API error (503)"},
		{"empty", &stubEngine{name: "gpt", configured: true, err: &caption.EmptyContentError{Provider: "OpenAI"}}, "no captions"},
		{"other", &stubEngine{name: "gpt", configured: true, err: errors.New("dial tcp")}, "Server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, bot := newRouter(tc.engine, nil, nil)
			r.HandleUpdate(textUpdate(1, "sunrise"))
			if msg := bot.last(t); !strings.Contains(msg, tc.contains) {
				t.Errorf("Expected reply containing %q, got %q", tc.contains, msg)
			}
		})
	}
}

func TestMoreCallback(t *testing.T) {
	gpt := &stubEngine{name: "gpt", configured: true}
	r, bot := newRouter(gpt, nil, nil)

	cb := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    callbackMore,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}},
	}}

	r.HandleUpdate(cb)
	if msg := bot.last(t); !strings.Contains(msg, "send it again") {
		t.Errorf("Unexpected reply %q", msg)
	}

	r.HandleUpdate(textUpdate(3, "mountain hike"))
	r.HandleUpdate(cb)
	if expected := []string{"mountain hike", "mountain hike"}; strings.Join(gpt.prompts, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected %v, got %v", expected, gpt.prompts)
	}
}

func TestHistoryCommand(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r, bot := newRouter(&stubEngine{name: "gpt", configured: true}, nil, nil)
		r.HandleUpdate(textUpdate(1, "/history"))
		if msg := bot.last(t); !strings.Contains(msg, "not enabled") {
			t.Errorf("Unexpected reply %q", msg)
		}
	})

	t.Run("lists prompts", func(t *testing.T) {
		hist := &memHistory{}
		r, bot := newRouter(&stubEngine{name: "gpt", configured: true}, nil, hist)
		r.HandleUpdate(textUpdate(1, "/history"))
		if msg := bot.last(t); msg != "No captions generated yet." {
			t.Errorf("Unexpected reply %q", msg)
		}
		r.HandleUpdate(textUpdate(1, "first"))
		r.HandleUpdate(textUpdate(1, "second"))
		r.HandleUpdate(textUpdate(1, "/history"))
		if expected, actual := "Recent prompts:\n1. second (gpt)\n2. first (gpt)\n", bot.last(t); expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
	})
}

func TestTruncate(t *testing.T) {
	if actual := truncate("héllo", 2); actual != "hé…" {
		t.Errorf("Unexpected %q", actual)
	}
	if actual := truncate("ok", 10); actual != "ok" {
		t.Errorf("Unexpected %q", actual)
	}
}
