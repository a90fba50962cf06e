package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/logging"
	"caption-proxy/api/internal/store"
)

const (
	maxMessageLen  = 3900
	historyEntries = 5
)

// Sender is the subset of *tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type History interface {
	Insert(ctx context.Context, rec store.CaptionRecord) (int64, error)
	Recent(ctx context.Context, limit int) ([]store.CaptionRecord, error)
}

type Router struct {
	Bot     Sender
	Engines *caption.Engines
	History History // optional
	Log     *logrus.Logger

	state chatState
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	cid := upd.Message.Chat.ID

	if upd.Message.IsCommand() {
		r.handleCommand(cid, upd.Message)
		return
	}

	text := strings.TrimSpace(upd.Message.Text)
	if text == "" {
		text = strings.TrimSpace(upd.Message.Caption)
	}
	if text == "" {
		r.send(cid, "Send me a text description of your post.")
		return
	}
	r.generate(cid, text)
}

func (r *Router) handleCommand(cid int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	case "history":
		r.handleHistory(cid)
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

func (r *Router) handleEngineCommand(cid int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	if name == "" {
		eng, err := r.Engines.GetEngine(r.state.getEngine(cid))
		if err != nil {
			r.send(cid, err.Error())
			return
		}
		r.send(cid, fmt.Sprintf("Current engine: %s (%s)\nUsage: /engine gpt | /engine gemini", eng.Name(), eng.GetModel()))
		return
	}
	eng, err := r.Engines.GetEngine(name)
	if err != nil {
		r.send(cid, "Unknown engine. Available: gpt | gemini")
		return
	}
	if !eng.Configured() {
		r.send(cid, "❌ "+eng.Name()+" is not configured on this server.")
		return
	}
	r.state.setEngine(cid, name)
	r.send(cid, fmt.Sprintf("✅ Engine: %s (%s).", eng.Name(), eng.GetModel()))
}

func (r *Router) handleHistory(cid int64) {
	if r.History == nil {
		r.send(cid, "History is not enabled on this server.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := r.History.Recent(ctx, historyEntries)
	if err != nil {
		r.logger().WithError(err).Error("telegram: recent history")
		r.send(cid, "Could not load history, try again later.")
		return
	}
	if len(recs) == 0 {
		r.send(cid, "No captions generated yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Recent prompts:\n")
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, rec.Prompt, rec.Engine)
	}
	r.send(cid, b.String())
}

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message == nil || cb.Data != callbackMore {
		return
	}
	cid := cb.Message.Chat.ID
	prompt, ok := r.state.getLastPrompt(cid)
	if !ok {
		r.send(cid, "I don't remember your last description, please send it again.")
		return
	}
	r.generate(cid, prompt)
}

func (r *Router) generate(cid int64, prompt string) {
	eng, err := r.Engines.GetEngine(r.state.getEngine(cid))
	if err != nil {
		r.send(cid, err.Error())
		return
	}
	if !eng.Configured() {
		r.logger().Errorf("telegram: %s API key not configured", eng.Name())
		r.send(cid, "⚠️ Caption engine is not configured on the server.")
		return
	}

	r.state.setLastPrompt(cid, prompt)
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	ctx := context.Background()
	res, err := eng.Generate(ctx, caption.Request{Prompt: prompt})
	if err != nil {
		r.logger().WithFields(logrus.Fields{"chat": cid, "engine": eng.Name()}).WithError(err).Error("telegram: generate")
		r.send(cid, userError(err))
		return
	}

	if r.History != nil {
		if _, err := r.History.Insert(ctx, store.CaptionRecord{
			Engine: eng.Name(), Model: eng.GetModel(), Prompt: prompt, Captions: res.Captions,
		}); err != nil {
			r.logger().WithError(err).Warn("telegram: history insert")
		}
	}

	msg := tgbotapi.NewMessage(cid, truncate(res.Captions, maxMessageLen))
	msg.ReplyMarkup = makeMoreKeyboard()
	_, _ = r.Bot.Send(msg)
}

func userError(err error) string {
	var (
		ue *caption.UpstreamError
		ee *caption.EmptyContentError
	)
	switch {
	case errors.As(err, &ue):
		return fmt.Sprintf("⚠️ %s API error (%d). Try again in a moment.", ue.Provider, ue.StatusCode)
	case errors.As(err, &ee):
		return "⚠️ The model returned no captions. Try rephrasing your description."
	default:
		return "⚠️ Server error, try again later."
	}
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "…"
	}
	return s
}

func (r *Router) send(chatID int64, text string) {
	_, _ = r.Bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logging.GetLogger()
}
