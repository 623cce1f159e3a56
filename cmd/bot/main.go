package main

import (
	"context"
	"dcatrader/internal/config"
	"dcatrader/internal/credentials"
	"dcatrader/internal/engine"
	"dcatrader/internal/exchange/coinbase"
	"dcatrader/internal/exchange/coinbase/ws"
	"dcatrader/internal/ledger"
	"dcatrader/internal/logger"
	"dcatrader/internal/metrics"
	"dcatrader/internal/quotes"
	tradesignal "dcatrader/internal/signal"
	"dcatrader/internal/status"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "путь к config.yaml")
	envFile := pflag.String("env", ".env", "файл с переменными окружения")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	creds := credentials.Credentials{KeyName: cfg.Exchange.ApiKey, Secret: cfg.Exchange.Secret}
	if creds.KeyName == "" || creds.Secret == "" {
		creds, err = credentials.Load(cfg.Paths.CredentialsDir)
		if err != nil {
			logger.WithError(err).WithField("dir", cfg.Paths.CredentialsDir).Fatal("Нет ключей API. Запустите creds или задайте exchange.api_key и exchange.secret.")
		}
	}

	if err := os.MkdirAll(cfg.Paths.HubDir, 0o755); err != nil {
		logger.WithError(err).Fatal("Не удалось создать каталог данных.")
	}

	client, err := coinbase.New(cfg.Exchange.BaseURL, creds.KeyName, creds.Secret, cfg.Exchange.Timeout, cfg.Exchange.MaxTries, logger)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось создать клиент биржи.")
	}

	book, err := quotes.New(cfg.Exchange.QuoteTTL)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось создать книгу котировок.")
	}
	defer book.Close()

	settings := config.NewSettingsStore(cfg.Paths.SettingsFile, logger)
	current, _ := settings.Snapshot()
	signals := tradesignal.NewFileSource(func() string {
		return settings.Current().MainNeuralDir
	})

	eng := engine.New(cfg, engine.Deps{
		Gateway:   client,
		Signals:   signals,
		Settings:  settings,
		Ledger:    ledger.Open(cfg.Paths.HubDir, logger),
		Quotes:    book,
		Status:    status.NewWriter(cfg.Paths.HubDir),
		SignalLog: status.NewSignalLog(cfg.Paths.HubDir),
		Manual:    status.NewManualInbox(cfg.Paths.HubDir),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Бот запущен.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.Exchange.WSURL != "" {
		feed := ws.New(cfg.Exchange.WSURL, book, logger)
		g.Go(func() error {
			feed.Run(gctx, current.Coins)
			return nil
		})
	}
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Бот завершился с ошибкой.")
		os.Exit(1)
	}
	logger.Info("Бот остановлен.")
}
