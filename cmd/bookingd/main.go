package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sessionbooking/internal/api"
	"sessionbooking/internal/audit"
	"sessionbooking/internal/config"
	"sessionbooking/internal/database"
	"sessionbooking/internal/digest"
	"sessionbooking/internal/events"
	"sessionbooking/internal/metrics"
	"sessionbooking/internal/notify"
	"sessionbooking/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("BOOKING_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial load + hot reload of the course catalog
	if err := config.WatchCourses(ctx, cfg.CoursesFile, cfg.CoursesReloadInterval(),
		func(updated *config.CoursesConfig) {
			if err := db.SyncCoursesFromConfig(ctx, updated); err != nil {
				logger.Error().Err(err).Msg("failed to apply courses config")
			}
		},
		func(err error) {
			logger.Error().Err(err).Msg("failed to reload courses config")
		},
	); err != nil {
		logger.Error().Err(err).Msg("courses watch failed")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	notifier, sender, closeNotifier, err := buildNotifier(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create notifier error")
	}
	defer closeNotifier()

	links, err := digest.NewLinks(cfg.Host.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid host.base_url")
	}

	vault := database.NewSlotVault(db, &logger)
	prefs := database.NewPreferences(db)
	participants := database.NewParticipants(db)

	bus := events.NewEventBus()
	digest.NewRecorder(prefs, &logger).Subscribe(bus)

	task := digest.NewTask(participants, prefs, vault, notifier, links, cfg.Host.SiteCourseID, &logger)

	var locker scheduler.Locker
	if cfg.Scheduler.LockEnabled {
		locker = scheduler.NewRedisLocker(rdb, "")
	}
	sched := scheduler.New(scheduler.Config{
		Interval:   cfg.SchedulerInterval(),
		RunOnStart: cfg.Scheduler.RunOnStart,
		RunTimeout: cfg.RunTimeout(),
		LockTTL:    cfg.LockTTL(),
	}, task, locker, &logger)

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	checks := map[string]func(context.Context) error{"database": db.HealthCheck}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	goRun(func() { startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, checks, &logger) })

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		goRun(func() { startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger) })
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup, &logger)
		goRun(func() { backup.Start(ctx) })
	}

	if cfg.Audit.Enabled {
		var docs audit.DocumentSender
		if sender != nil {
			docs = sender
		}
		auditService := audit.NewService(audit.Config{
			ExportDir:     cfg.Audit.ExportDir,
			RetentionDays: cfg.Audit.RetentionDays,
			ExportOnStart: cfg.Audit.ExportOnStart,
		}, db, audit.NewExcelizeWriter, docs, vault, &logger)
		goRun(func() { auditService.Start(ctx) })
	}

	if cfg.API.Enabled {
		server := api.NewHTTPServer(cfg.API.Address, cfg.API.APIKey, api.Deps{
			Slots:       vault,
			Bus:         bus,
			Enrolments:  participants,
			Preferences: prefs,
			Digest:      sched,
			Checks:      checks,
		}, &logger)
		goRun(func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("api server error")
				stop()
			}
		})
		goRun(func() {
			<-ctx.Done()
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctxShutdown)
		})
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("notifier", cfg.Notifier.Backend).
		Msg("Session booking service started")

	sched.Start(ctx)
	wg.Wait()
	logger.Info().Msg("Session booking service stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Log.Format != "json" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(output).With().Timestamp().Str("service", "sessionbooking").Logger()
}

// buildNotifier returns the digest notifier for the configured backend and, for
// Telegram, the same client as the audit document sender.
func buildNotifier(cfg *config.Config, logger *zerolog.Logger) (digest.Notifier, *notify.TelegramNotifier, func(), error) {
	noop := func() {}

	switch cfg.Notifier.Backend {
	case "telegram":
		tc := notify.DefaultTelegramConfig()
		tc.RatePerSec = cfg.Notifier.Telegram.RatePerSec
		tc.Burst = cfg.Notifier.Telegram.Burst
		tc.MaxRetries = cfg.Notifier.Telegram.MaxRetries
		tc.AdminChatIDs = cfg.Notifier.Telegram.AdminChatIDs

		tg, err := notify.NewTelegramNotifier(cfg.Notifier.Telegram.BotToken, tc, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		return tg, tg, noop, nil
	case "kafka":
		k := notify.NewKafkaNotifier(cfg.Notifier.Kafka.Brokers, cfg.Notifier.Kafka.Topic, logger)
		return k, nil, func() {
			if err := k.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka writer")
			}
		}, nil
	case "log":
		return notify.NewLogNotifier(logger), nil, noop, nil
	default:
		return nil, nil, noop, errors.New("unknown notifier backend " + cfg.Notifier.Backend)
	}
}

func startHealthServer(ctx context.Context, port int, checks map[string]func(context.Context) error, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctxPing); err != nil {
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
