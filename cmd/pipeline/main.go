package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/secalert-agent/internal/classify"
	"github.com/secalert-agent/internal/config"
	"github.com/secalert-agent/internal/content"
	"github.com/secalert-agent/internal/dispatch"
	"github.com/secalert-agent/internal/feed"
	"github.com/secalert-agent/internal/match"
	"github.com/secalert-agent/internal/pipeline"
	"github.com/secalert-agent/internal/reference"
	"github.com/secalert-agent/internal/storage/sqlite"
	"github.com/secalert-agent/pkg/logger"
	"github.com/secalert-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "secalert-pipeline",
		Short: "Security-alert ingestion and classification daemon",
		Long: `Polls configured feeds, classifies new articles into the alert
taxonomy and routes them to matching subscriptions. Runs until interrupted.`,
		RunE: runPipeline,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting security-alert pipeline")

	// Storage is the only fatal startup dependency.
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start health check server
	go startHealthServer()

	// Initialize rate limiters for the two outbound surfaces
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterFeeds, cfg.RateLimit.FeedRequestsPerSecond, 5)
	limiter.AddLimiter(ratelimit.LimiterContent, cfg.RateLimit.ContentRequestsPerSecond, 3)

	// Wire the stages
	dir := reference.NewDirectory(repo)
	tagger := reference.NewTagger(dir, log)
	classifier := classify.New(cfg.Classify.MinScore, tagger, log)
	matcher := match.New(dir, log)
	dispatcher := dispatch.NewLogDispatcher(log)
	fetcher := content.New(cfg.Content, nil, limiter, log)

	pipe := pipeline.New(repo, fetcher, tagger, classifier, matcher, dispatcher, log)
	poller := feed.New(cfg.Poller, repo, nil, limiter, pipe, log)

	log.Info().
		Bool("content_enabled", fetcher.Enabled()).
		Int("max_concurrent", cfg.Poller.MaxConcurrent).
		Msg("Pipeline wired")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sweep job retries articles held unclassified by an earlier outage.
	c := cron.New(cron.WithLogger(cronLogger{log}))
	_, err = c.AddFunc(cfg.Scheduler.SweepCron, func() {
		result, err := pipe.SweepUnclassified(ctx, 100)
		if err != nil {
			log.Error().Err(err).Msg("Sweep failed")
			return
		}
		if result.Seen > 0 {
			log.Info().
				Int("seen", result.Seen).
				Int("classified", result.Classified).
				Int("fallbacks", result.Fallbacks).
				Int("held", result.Held).
				Msg("Sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.SweepCron).Msg("Sweep job scheduled")

	c.Start()

	go poller.Run(ctx)
	log.Info().Msg("Poller started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down pipeline")
	cancel()
	c.Stop()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
