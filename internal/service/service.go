// Package service wires the subsystems together and drives the analysis
// cycle: per-symbol analysis, one monitor pass over the open set, broadcast
// of anything generated or closed, then sleep until the next cycle.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-servicev1/config"
	"signal-servicev1/internal/indicator"
	"signal-servicev1/internal/market"
	"signal-servicev1/internal/metrics"
	"signal-servicev1/internal/model"
	"signal-servicev1/internal/notification"
	"signal-servicev1/internal/signalgen"
	"signal-servicev1/internal/store/redis"
	"signal-servicev1/internal/store/sqlite"
	"signal-servicev1/internal/strategy"
	"signal-servicev1/internal/subscriber"
)

// Service owns the wired subsystems and the cycle loop.
type Service struct {
	cfg    *config.Config
	params *config.Params
	log    *slog.Logger

	store       model.SignalStore
	stream      *market.PriceStream
	generator   *signalgen.Generator
	distributor model.Distributor
	bot         *notification.Bot
	notifier    notification.Notifier
	prom        *metrics.Metrics
}

// New builds the full service from configuration. The signal store backend
// is selected by cfg.StoreBackend; the subscriber registry always lives in
// SQLite so delivery state survives a Redis-backed deployment too.
func New(cfg *config.Config, params *config.Params, log *slog.Logger) (*Service, error) {
	client, err := market.NewClient(market.ClientConfig{
		BaseURL: cfg.BinanceBaseURL,
		APIKey:  cfg.BinanceAPIKey,
	})
	if err != nil {
		return nil, err
	}

	stream := market.NewPriceStream(cfg.BinanceWSURL, params.Symbols)
	client.UseStream(stream)

	store, subsDB, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	engine := indicator.NewEngine(indicator.Config{
		EMAFast:   params.EMAFast,
		EMASlow:   params.EMASlow,
		RSIPeriod: params.RSIPeriod,
		BBPeriod:  params.BBPeriod,
		BBStdDev:  params.BBStdDev,
		ATRPeriod: params.ATRPeriod,
	}, log)
	scorer := strategy.NewScorer(params, log)

	prom := metrics.NewMetrics()

	generator, err := signalgen.New(client, engine, scorer, store, params, prom, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	manager, err := subscriber.NewManager(subsDB)
	if err != nil {
		store.Close()
		return nil, err
	}

	telegram := notification.NewTelegramClient(cfg.TelegramBotToken)
	distributor := subscriber.NewDistributor(manager, telegram, params, log)

	// Operational alerts go to the admin chat when one is configured.
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.TelegramAdminID != 0 {
		notifier = notification.NewTelegramNotifier(telegram, cfg.TelegramAdminID)
	}

	bot := notification.NewBot(telegram, manager, generator, notification.BotConfig{
		AdminChatID:     cfg.TelegramAdminID,
		TOTPSecret:      cfg.AdminTOTPSecret,
		StatsWindowDays: params.PerformanceWindowDays,
	}, log)

	return &Service{
		cfg:         cfg,
		params:      params,
		log:         log.With(slog.String("component", "service")),
		store:       store,
		stream:      stream,
		generator:   generator,
		distributor: distributor,
		bot:         bot,
		notifier:    notifier,
		prom:        prom,
	}, nil
}

// openStores selects the signal store backend and returns the sqlx handle
// backing the subscriber registry. With the sqlite backend the registry
// shares the signal database; with redis it gets its own sqlite file.
func openStores(cfg *config.Config) (model.SignalStore, *sqlx.DB, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	case "redis":
		st, err := redis.New(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, err
		}
		reg, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, reg.DB(), nil
	default:
		return nil, nil, fmt.Errorf("service: unknown store backend %q", cfg.StoreBackend)
	}
}

// Run starts the background tasks and drives analysis cycles until ctx is
// cancelled. Cancellation is honored between units of work: an in-flight
// symbol analysis finishes before the loop exits.
func (s *Service) Run(ctx context.Context) error {
	go metrics.Serve(s.cfg.MetricsAddr)
	go s.stream.Run(ctx)
	go s.bot.Run(ctx)

	interval := time.Duration(s.params.AnalysisIntervalSec) * time.Second
	s.log.Info("service started",
		slog.Any("symbols", s.params.Symbols),
		slog.String("interval", s.params.Interval),
		slog.Duration("cycle", interval))
	s.alert(ctx, notification.AlertInfo, "Signal service started",
		fmt.Sprintf("%d symbols on %s candles", len(s.params.Symbols), s.params.Interval))

	for {
		s.runCycle(ctx)
		if ctx.Err() != nil {
			break
		}
		s.prom.CyclesTotal.Inc()

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.log.Info("service stopping")
	return s.store.Close()
}

// runCycle analyzes every configured symbol and then monitors the open set.
// Per-symbol errors are logged and isolated so one symbol never starves the
// rest.
func (s *Service) runCycle(ctx context.Context) {
	for _, symbol := range s.params.Symbols {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		sig, err := s.generator.AnalyzeSymbol(ctx, symbol)
		s.prom.AnalyzeDur.Observe(time.Since(start).Seconds())
		if err != nil {
			s.log.Error("symbol analysis failed",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
			s.alert(ctx, notification.AlertCritical, "Signal persistence failed",
				fmt.Sprintf("%s: %v", symbol, err))
			continue
		}
		if sig != nil {
			s.broadcastSignal(ctx, *sig)
		}
	}

	if ctx.Err() != nil {
		return
	}

	closed, err := s.generator.MonitorActiveSignals(ctx)
	if err != nil {
		s.log.Error("monitor pass reported errors", slog.String("error", err.Error()))
		s.alert(ctx, notification.AlertWarning, "Monitor pass reported errors", err.Error())
	}
	for _, sig := range closed {
		if ctx.Err() != nil {
			return
		}
		if n, err := s.distributor.BroadcastClosure(ctx, sig); err != nil {
			s.log.Warn("closure broadcast failed",
				slog.String("signal_id", sig.ID), slog.String("error", err.Error()))
		} else {
			s.prom.DeliveredTotal.Add(float64(n))
		}
	}
}

// alert delivers an operational alert best-effort: a failed delivery is
// logged, never escalated.
func (s *Service) alert(ctx context.Context, level notification.AlertLevel, title, message string) {
	if err := s.notifier.Send(ctx, notification.Alert{
		Level:   level,
		Title:   title,
		Message: message,
	}); err != nil {
		s.log.Warn("alert delivery failed",
			slog.String("title", title), slog.String("error", err.Error()))
	}
}

func (s *Service) broadcastSignal(ctx context.Context, sig model.Signal) {
	n, err := s.distributor.BroadcastSignal(ctx, sig)
	if err != nil {
		s.log.Warn("signal broadcast failed",
			slog.String("signal_id", sig.ID), slog.String("error", err.Error()))
		return
	}
	s.prom.DeliveredTotal.Add(float64(n))
}
