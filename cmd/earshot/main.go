package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/earshot-ai/earshot/internal/backup"
	"github.com/earshot-ai/earshot/internal/config"
	"github.com/earshot-ai/earshot/internal/llm"
	"github.com/earshot-ai/earshot/internal/notify"
	"github.com/earshot-ai/earshot/internal/server"
	"github.com/earshot-ai/earshot/internal/session"
	"github.com/earshot-ai/earshot/internal/store"
)

func main() {
	log.Println("earshot: starting")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	hub := server.NewHub()

	synthClient := buildClient(cfg, cfg.SynthesisModel, "synthesis")
	if synthClient == nil {
		log.Fatalf("no usable synthesis backend: configure %sGEMINI_API_KEY or another provider key", config.EnvPrefix)
	}

	deltaClient := buildClient(cfg, cfg.DeltaModel, "delta")
	if deltaClient == nil {
		deltaClient = synthClient
	}

	var transcriber llm.AudioTranscriber
	if provider, model, perr := llm.ParseModel(cfg.TranscribeModel); perr == nil {
		if key := cfg.APIKeyFor(provider); key != "" {
			transcriber, err = llm.NewTranscriber(provider, key, model)
			if err != nil {
				log.Printf("warning: transcription disabled: %v", err)
			}
		}
	}
	if transcriber == nil {
		log.Printf("warning: transcription disabled, POST /api/transcribe will return 503")
	}

	var dispatcher *notify.Dispatcher
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		dispatcher = notify.NewDispatcher(notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	} else {
		log.Printf("warning: Telegram not configured, notifications disabled")
	}

	mode, err := session.ParseDeltaMode(cfg.DeltaMode)
	if err != nil {
		mode = session.DeltaModeInsights
	}

	engine := session.NewEngine(synthClient, st)
	extractor := session.NewExtractor(deltaClient)

	var notifier session.Notifier
	if dispatcher != nil {
		notifier = dispatcher
	}
	pipeline := session.NewPipeline(st, engine, extractor, notifier, hub, mode, cfg.ParsedDebounce())

	deps := server.Deps{
		Store:       st,
		Engine:      engine,
		Extractor:   extractor,
		Pipeline:    pipeline,
		Transcriber: transcriber,
		Warnings:    func() []string { return warnings },
	}
	if dispatcher != nil {
		deps.Notifier = dispatcher
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GDriveFolderID != "" {
		uploader, berr := backup.NewUploader(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if berr != nil {
			log.Printf("warning: drive backup disabled: %v", berr)
		} else {
			go runBackups(ctx, st, uploader)
		}
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler(hub, deps)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("earshot: API listening on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("earshot: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	pipeline.FlushAll(shutdownCtx)
	if dispatcher != nil {
		dispatcher.Wait()
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// buildClient resolves one provider/model config value into a client, or
// nil when the provider has no key configured.
func buildClient(cfg config.Config, model, role string) llm.Client {
	provider, modelName, err := llm.ParseModel(model)
	if err != nil {
		log.Printf("warning: invalid %s model %q: %v", role, model, err)
		return nil
	}
	key := cfg.APIKeyFor(provider)
	if key == "" {
		log.Printf("warning: no API key for %s provider %q", role, provider)
		return nil
	}
	client, err := llm.NewClient(provider, key, modelName)
	if err != nil {
		log.Printf("warning: %s client unavailable: %v", role, err)
		return nil
	}
	return client
}

// runBackups snapshots the database every five minutes and uploads the
// copy, one Drive file per day.
func runBackups(ctx context.Context, st *store.SQLiteStore, uploader *backup.Uploader) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			snapPath := filepath.Join(os.TempDir(), fmt.Sprintf("earshot-snapshot-%d.db", time.Now().UnixNano()))
			if err := st.Snapshot(snapPath); err != nil {
				slog.Warn("backup snapshot failed", "error", err)
				continue
			}
			if err := uploader.Upload(snapPath, date); err != nil {
				slog.Warn("backup upload failed", "error", err)
			}
			if err := os.Remove(snapPath); err != nil {
				slog.Warn("backup cleanup failed", "path", snapPath, "error", err)
			}
		}
	}
}
