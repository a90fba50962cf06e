package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/caption/gemini"
	"caption-proxy/api/internal/caption/openai"
	"caption-proxy/api/internal/config"
	"caption-proxy/api/internal/httpserver"
	"caption-proxy/api/internal/logging"
	"caption-proxy/api/internal/store"
	"caption-proxy/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.GetLogger()

	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required for the bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompter := caption.Prompter{Dir: cfg.PromptDir}
	oa := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	oa.BaseURL = cfg.OpenAIBaseURL
	oa.MaxTokens, oa.Temperature, oa.Prompter = cfg.MaxTokens, cfg.Temperature, prompter
	gm := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	gm.MaxTokens, gm.Temperature, gm.Prompter = cfg.MaxTokens, cfg.Temperature, prompter

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal(err)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:     bot,
		Engines: &caption.Engines{Default: cfg.DefaultLLM, OpenAI: oa, Gemini: gm},
		Log:     log,
	}

	var db *sql.DB
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		db, err = store.Open(ctx, dsn)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		log.Infof("db connected: %s", safeDSNSummary(dsn))
		repo := store.NewCaptionRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("database schema: %v", err)
		}
		r.History = repo
	}

	mux := http.NewServeMux()

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		path := "/webhook/" + shortHash(bot.Token)
		public := strings.TrimRight(webhookURL, "/") + path

		wh, err := tgbotapi.NewWebhook(public)
		if err != nil {
			log.Fatal(err)
		}
		wh.DropPendingUpdates = true
		if _, err := bot.Request(wh); err != nil {
			log.Fatal(err)
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
			upd, err := bot.HandleUpdate(req)
			if err != nil {
				log.WithError(err).Warn("webhook: bad update")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			go r.HandleUpdate(*upd)
		})
		log.Infof("webhook listening on %s", path)
	} else {
		go runPolling(ctx, bot, log, r.HandleUpdate)
	}

	srv := httpserver.New(cfg.Port, mux, db, log)
	if err := srv.Run(ctx, 10*time.Second); err != nil {
		log.Fatalf("server: %v", err)
	}
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

// runPolling long-polls Telegram with backoff until ctx is done.
func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, log *logrus.Logger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.WithError(err).Warnf("polling error; retry in %v", d)
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

// shortHash is an FNV-1a hex digest used to make the webhook path unguessable.
func shortHash(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	host, port := u.Host, ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, u.User.Username())
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, u.User.Username())
}
