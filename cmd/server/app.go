package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/warp/statement-engine/billing"
	"github.com/warp/statement-engine/config"
	"github.com/warp/statement-engine/logger"
	"github.com/warp/statement-engine/mailer"
	"github.com/warp/statement-engine/store/sqlite"
)

// app is the wired dependency graph shared by the commands.
type app struct {
	cfg        *config.Config
	store      *sqlite.Store
	engine     *billing.Engine
	scheduler  *billing.Scheduler
	dispatcher billing.Dispatcher
	logCloser  io.Closer
}

func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	closer, err := logger.Setup(logger.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: logger.DefaultConfig().TimeFormat,
		Output:     cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func newApp() (*app, error) {
	cfg, closer, err := loadConfig()
	if err != nil {
		return nil, err
	}

	cal, err := billing.NewCalendar(cfg.Timezone)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	dispatcher := newDispatcher(cfg, logger.WithComponent("mailer"))
	engine := billing.NewEngine(store, cal)
	scheduler := billing.NewScheduler(engine, dispatcher,
		billing.SchedulerConfig{SystemUserID: cfg.Scheduler.SystemUserID},
		logger.WithComponent("scheduler"))

	return &app{
		cfg:        cfg,
		store:      store,
		engine:     engine,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		logCloser:  closer,
	}, nil
}

func newDispatcher(cfg *config.Config, log zerolog.Logger) billing.Dispatcher {
	if cfg.Mailer.Kind == "webhook" {
		hook := mailer.NewWebhook(cfg.Mailer.WebhookURL, cfg.Auth.APIKey, cfg.Mailer.Timeout, log)
		if cfg.Mailer.MaxPerSecond > 0 {
			hook.WithRateLimit(cfg.Mailer.MaxPerSecond)
		}
		return hook
	}
	return mailer.NewLog(log)
}

func (a *app) Close() {
	a.store.Close()
	a.logCloser.Close()
}
