package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mariovalmir/chatwoot/internal/cache"
	"github.com/mariovalmir/chatwoot/internal/config"
	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/database"
	"github.com/mariovalmir/chatwoot/internal/features"
	"github.com/mariovalmir/chatwoot/internal/guard"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/privacy"
	"github.com/mariovalmir/chatwoot/internal/queue"
	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/internal/tracing"
	"github.com/mariovalmir/chatwoot/pkg/media"
	"github.com/mariovalmir/chatwoot/pkg/whatsapp"
	"github.com/mariovalmir/chatwoot/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("waingest %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

// cacheBackend is what both cache implementations offer.
type cacheBackend interface {
	service.IdentityCache
	guard.Backend
	Close() error
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting waingest")

	watcher := config.NewConfigWatcher(*configPath, logger)
	cfg, err := watcher.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)
	privacy.SetEnabled(!*verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	}

	flags := features.NewFlagManager()
	if err := flags.LoadFromConfig(cfg.Features); err != nil {
		return fmt.Errorf("invalid features: %w", err)
	}
	if err := flags.LoadFromEnvironment(); err != nil {
		return err
	}

	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := syncInboxes(ctx, db, cfg.Inboxes); err != nil {
		return err
	}

	backend, locker, err := openCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	publisher, err := openPublisher(ctx, cfg.AMQP, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	clients := whatsapp.NewClientSet(clientOptions(cfg.Lookup, logger))

	deps := service.Dependencies{
		Store:     db,
		Cache:     backend,
		Lookups:   clients,
		Marker:    guard.NewDedupeMarker(backend),
		Locker:    locker,
		Broadcast: queue.NewStatusJobs(publisher),
		Events:    queue.NewInboxEvents(publisher),
		Media: media.NewValidator(media.Options{
			Gateways:       gateways(cfg.Inboxes),
			CheckReachable: flags.IsEnabled(features.FlagMediaReachability),
			Logger:         logger,
		}),
		Logger:              logger,
		ShowDeletedOriginal: cfg.DeletedShowOriginal,
	}
	if flags.IsEnabled(features.FlagAvatarJobs) {
		deps.Avatars = queue.NewAvatarJobs(publisher)
	}
	svc := service.New(deps)
	router := whatsapp.NewServiceRouter(svc, logger)
	syncer := whatsapp.NewSessionSyncer(clients, svc, logger)

	checks := []HealthCheck{{Name: "database", Check: db.Ping}}
	if pinger, ok := backend.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, HealthCheck{Name: "redis", Check: pinger.Ping})
	}

	server, err := NewServer(cfg, router, db, logger, checks...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.verbose = *verbose
	server.flags = flags
	go server.RunLimiterCleanup(ctx)

	if flags.IsEnabled(features.FlagSessionSync) {
		go syncSessions(ctx, db, syncer, logger)
	}

	watcher.OnConfigChange(func(newCfg *models.Config) {
		if err := syncInboxes(ctx, db, newCfg.Inboxes); err != nil {
			logger.WithError(err).Error("Failed to store reloaded inboxes")
			return
		}
		applyLogLevel(logger, newCfg.LogLevel, *verbose)
		clients.Reset()
		server.SetConfig(newCfg)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// syncInboxes writes the configured inboxes to the store so webhooks can
// be matched against them.
func syncInboxes(ctx context.Context, db *database.Database, inboxes []models.InboxConfig) error {
	for _, inbox := range inboxes {
		if err := db.UpsertInbox(ctx, inbox); err != nil {
			return fmt.Errorf("failed to store inbox %d: %w", inbox.ID, err)
		}
	}
	return nil
}

func syncSessions(ctx context.Context, db *database.Database, syncer *whatsapp.SessionSyncer, logger *logrus.Logger) {
	inboxes, err := db.ListInboxes(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to list inboxes for session sync")
		return
	}
	report := syncer.Sync(ctx, inboxes)
	logger.WithFields(logrus.Fields{
		"processed": report.Processed(),
		"skipped":   report.Skipped(),
		"failed":    report.Failed(),
	}).Info("Gateway session states synced")
}

// openCache returns redis when an address is configured and an in-process
// cache otherwise. The channel lock follows: a lease in redis is shared by
// every process, a mutex only serializes this one.
func openCache(ctx context.Context, cfg models.RedisConfig, logger *logrus.Logger) (cacheBackend, service.ChannelLocker, error) {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, using in-memory cache")
		return cache.NewMemory(), guard.NewKeyedMutex(), nil
	}
	r, err := cache.NewRedis(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	logger.WithField("addr", cfg.Addr).Info("Using redis cache")
	return r, guard.NewLeaseLocker(r, logger), nil
}

func openPublisher(ctx context.Context, cfg models.AMQPConfig, logger *logrus.Logger) (queue.Publisher, error) {
	if cfg.URL == "" {
		logger.Info("AMQP not configured, jobs are logged only")
		return queue.NewLogPublisher(logger), nil
	}
	p, err := queue.DialAMQP(ctx, cfg.URL, cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}
	return p, nil
}

func clientOptions(cfg models.LookupConfig, logger *logrus.Logger) whatsapp.ClientOptions {
	return whatsapp.ClientOptions{
		Timeout:            time.Duration(cfg.TimeoutSec) * time.Second,
		CircuitMaxFailures: uint32(cfg.CircuitMaxFailures),
		CircuitOpenTimeout: time.Duration(cfg.CircuitOpenTimeoutSec) * time.Second,
		Backoff:            cfg.Backoff,
		Logger:             logger,
	}
}

func gateways(inboxes []models.InboxConfig) []media.Gateway {
	out := make([]media.Gateway, 0, len(inboxes))
	for _, inbox := range inboxes {
		if inbox.APIURL == "" {
			continue
		}
		header := types.HeaderEvolutionKey
		if inbox.Provider == models.ProviderWAHA {
			header = types.HeaderWAHAKey
		}
		out = append(out, media.Gateway{BaseURL: inbox.APIURL, KeyHeader: header, APIKey: inbox.APIKey})
	}
	return out
}
