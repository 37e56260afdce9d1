// Command greenroute runs the model-routing gateway.
//
// Startup order matters: storage first, then the catalog snapshot, then the
// providers, then the HTTP server. Optional subsystems (semantic cache,
// grader) degrade to no-ops when their prerequisites are missing; the
// process refuses to start only when the ledger or catalog store cannot be
// opened.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/greenroute/gateway/internal/catalog"
	"github.com/greenroute/gateway/internal/config"
	"github.com/greenroute/gateway/internal/ledger"
	"github.com/greenroute/gateway/internal/monitoring"
	"github.com/greenroute/gateway/internal/policy"
	"github.com/greenroute/gateway/internal/providers"
	"github.com/greenroute/gateway/internal/scoring"
	"github.com/greenroute/gateway/internal/semcache"
	"github.com/greenroute/gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run() error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ------------------------------------------------------------------
	// Storage and catalog
	// ------------------------------------------------------------------
	store, err := catalog.OpenSQLiteStore(cfg.Catalog.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer store.Close()

	var opts []catalog.Option
	if cfg.Catalog.OverrideFile != "" {
		models, err := catalog.LoadOverrideFile(cfg.Catalog.OverrideFile)
		if err != nil {
			log.Warn().Err(err).Msg("override file unreadable, using built-in fallback")
		} else {
			opts = append(opts, catalog.WithFallback(models))
		}
	}
	cat := catalog.New(ctx, store, opts...)
	if cat.Degraded() {
		log.Warn().Msg("catalog serving static fallback, savings will be unknown")
	}

	led, err := ledger.Open(cfg.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("open savings ledger: %w", err)
	}
	defer led.Close()

	// ------------------------------------------------------------------
	// Providers, scoring, cache
	// ------------------------------------------------------------------
	creds := config.Credentials()
	registry := providers.NewRegistry(ctx, providers.Credentials{
		AnthropicAPIKey: creds.AnthropicAPIKey,
		OpenAIAPIKey:    creds.OpenAIAPIKey,
		GroqAPIKey:      creds.GroqAPIKey,
		BedrockRegion:   creds.BedrockRegion,
	})

	var grader scoring.Grader
	if creds.OpenAIAPIKey != "" {
		grader = providers.NewGrader(providers.NewOpenAIClient(creds.OpenAIAPIKey), cfg.Scoring.GraderModel)
	} else {
		log.Warn().Msg("no grader credential, complexity scoring will default to 5")
	}
	scorer := scoring.New(grader)

	var cache *semcache.PromptCache
	var retriever *semcache.Retriever
	if cfg.Cache.Enabled && creds.OpenAIAPIKey != "" {
		embedder := providers.NewEmbeddingClient(creds.OpenAIAPIKey, cfg.Cache.EmbeddingModel)
		index, err := semcache.OpenSQLiteIndex(cfg.Cache.IndexPath, embedder)
		if err != nil {
			log.Warn().Err(err).Msg("prompt index unavailable, semantic cache disabled")
		} else {
			defer index.Close()
			retriever = semcache.NewRetriever(index)
			cache = semcache.NewPromptCache(retriever, cfg.Cache.Threshold)
		}
	}

	metrics := monitoring.New()

	srv := server.New(server.Deps{
		Config:    cfg,
		Catalog:   cat,
		Policy:    policy.New(cat),
		Scorer:    scorer,
		Registry:  registry,
		Ledger:    led,
		Metrics:   metrics,
		Cache:     cache,
		Retriever: retriever,
	})

	// ------------------------------------------------------------------
	// Background workers and HTTP server
	// ------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Catalog.RefreshSpec, func() {
		cat.Refresh(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule catalog refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Catalog.OverrideFile != "" {
		g.Go(func() error {
			stopCh := make(chan struct{})
			go func() {
				<-gctx.Done()
				close(stopCh)
			}()
			if err := catalog.Watch(stopCh, cfg.Catalog.OverrideFile, cat); err != nil {
				log.Warn().Err(err).Msg("override watcher stopped")
			}
			return nil
		})
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("gateway stopped")
	return nil
}

// setupLogging picks console output on a terminal and JSON otherwise.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
