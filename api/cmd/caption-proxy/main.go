package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"caption-proxy/api/internal/caption"
	"caption-proxy/api/internal/caption/gemini"
	"caption-proxy/api/internal/caption/openai"
	"caption-proxy/api/internal/config"
	"caption-proxy/api/internal/handle"
	"caption-proxy/api/internal/httpserver"
	"caption-proxy/api/internal/logging"
	"caption-proxy/api/internal/store"
)

var helpEnv = flag.Bool("help-env", false, "Print recognised environment variables and exit")

func main() {
	flag.Parse()
	if *helpEnv {
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.GetLogger()

	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		log.Warn("OPENAI_API_KEY is not set; gpt requests will fail with 500")
	}

	prompter := caption.Prompter{Dir: cfg.PromptDir}

	oa := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	oa.BaseURL = cfg.OpenAIBaseURL
	oa.MaxTokens = cfg.MaxTokens
	oa.Temperature = cfg.Temperature
	oa.Prompter = prompter

	gm := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	gm.MaxTokens = cfg.MaxTokens
	gm.Temperature = cfg.Temperature
	gm.Prompter = prompter

	engines := &caption.Engines{Default: cfg.DefaultLLM, OpenAI: oa, Gemini: gm}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db      *sql.DB
		history handle.HistoryStore
	)
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		db, err = store.Open(ctx, dsn)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		repo := store.NewCaptionRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("database schema: %v", err)
		}
		history = repo
		log.Info("caption history enabled")
	}

	mux := http.NewServeMux()
	handle.New(engines, history).WithLogger(log).Register(mux)

	srv := httpserver.New(cfg.Port, mux, db, log)
	if err := srv.Run(ctx, 10*time.Second); err != nil {
		log.Fatalf("server: %v", err)
	}
}
