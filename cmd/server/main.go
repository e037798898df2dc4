package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/config"
	"github.com/t77yq/goal-planner/internal/monitor"
	"github.com/t77yq/goal-planner/internal/planner"
	"github.com/t77yq/goal-planner/internal/storage"
	"github.com/t77yq/goal-planner/internal/transport"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// connect dials NATS, retrying with exponential backoff up to the configured
// number of attempts
func connect(ctx context.Context, cfg config.NATSConfig, name string, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		nc, err = nats.Connect(strings.Join(cfg.URLs, ","), opts...)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.ConnectAttempts-1))
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return nc, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("GOALPLAN_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	nc, err := connect(ctx, cfg.NATS, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	history, err := storage.NewSQLiteLayoutHistory(logger, cfg.History.DBPath)
	if err != nil {
		logger.Fatal("Failed to create layout history storage", zap.Error(err))
	}
	defer history.Close()

	retention, err := storage.NewRetentionJob(history, cfg.History.CleanupSchedule, cfg.History.Retention, logger)
	if err != nil {
		logger.Fatal("Failed to create retention job", zap.Error(err))
	}
	retention.Start()
	defer retention.Stop()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer setupCancel()

	notifier := monitor.NewAnomalyNotifier(logger, js)
	if err := notifier.Setup(setupCtx); err != nil {
		logger.Fatal("Failed to setup alert stream", zap.Error(err))
	}
	for _, rule := range monitor.DefaultRules() {
		if err := notifier.AddRule(rule); err != nil {
			logger.Fatal("Failed to add alert rule", zap.String("rule", rule.Name), zap.Error(err))
		}
	}

	metrics := monitor.NewMetricsCollector(js, cfg.Metrics.Interval, logger)
	if err := metrics.Setup(setupCtx); err != nil {
		logger.Fatal("Failed to setup metrics stream", zap.Error(err))
	}
	if err := metrics.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer metrics.Stop()

	controller := planner.NewController(logger,
		planner.WithHistory(history),
		planner.WithNotifier(notifier),
		planner.WithObserver(metrics))

	gateway, err := transport.NewGateway(js, controller, logger)
	if err != nil {
		logger.Fatal("Failed to create gateway", zap.Error(err))
	}
	defer gateway.Close()

	logger.Info("Planner started", zap.String("app", cfg.App.Name))

	<-ctx.Done()

	gateway.Close()
	if err := nc.Drain(); err != nil {
		logger.Warn("Failed to drain NATS connection", zap.Error(err))
	}
	logger.Info("Server shutting down gracefully", zap.Strings("goals", controller.Goals()))
}
