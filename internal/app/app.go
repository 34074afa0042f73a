// Package app wires configuration, storage, transport, the conversation
// machine, and the dispatcher into one runnable bot.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"remindbot/internal/config"
	"remindbot/internal/conversation"
	"remindbot/internal/dispatcher"
	"remindbot/internal/notifier"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

const updateBuffer = 128

type App struct {
	manager *config.Manager
	logSvc  *logx.Service
	log     logx.Logger

	db     *gorm.DB
	adapt  *telegram.Adapter
	disp   *dispatcher.Dispatcher
	router *Router
	store  *conversation.Store

	sessionTTL time.Duration
	updates    chan transport.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(manager *config.Manager, logSvc *logx.Service, log logx.Logger) (*App, error) {
	cfg := manager.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	db, err := storage.Open(storage.Config{URL: cfg.Database.URL, Path: cfg.Database.Path},
		log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	repo := storage.NewRepository(db)

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapt, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	interval, err := config.ParseDurationOrDefault("dispatcher.interval", cfg.Dispatcher.Interval, time.Minute)
	if err != nil {
		return nil, err
	}
	maxAge, err := config.ParseDurationField("retention.max_age", cfg.Retention.MaxAge)
	if err != nil {
		return nil, err
	}
	ttl, err := config.ParseDurationField("session.ttl", cfg.Session.TTL)
	if err != nil {
		return nil, err
	}

	notify := notifier.NewTelegram(adapt, cfg.Telegram.RatePerSec,
		log.With(logx.String("comp", "notifier")))
	disp := dispatcher.New(repo, notify, dispatcher.Config{
		Interval:          interval,
		QuarantineOrphans: cfg.Dispatcher.QuarantineOrphans,
		RetentionMaxAge:   maxAge,
	}, log.With(logx.String("comp", "dispatcher")))

	store := conversation.NewStore(ttl)
	machine := conversation.NewMachine(repo, loc, log.With(logx.String("comp", "conversation")))
	router := NewRouter(adapt, machine, store, log.With(logx.String("comp", "router")))

	return &App{
		manager:    manager,
		logSvc:     logSvc,
		log:        log,
		db:         db,
		adapt:      adapt,
		disp:       disp,
		router:     router,
		store:      store,
		sessionTTL: ttl,
		updates:    make(chan transport.Update, updateBuffer),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.adapt.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	if err := a.disp.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(ctx, a.updates)
	}()

	if a.sessionTTL > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.janitor(ctx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConfig(ctx)
	}()

	a.log.Info("bot started")
	return nil
}

// janitor periodically evicts idle dialogue sessions.
func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(a.sessionTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := a.store.Sweep(); dropped > 0 {
				a.log.Debug("idle sessions dropped", logx.Int("count", dropped))
			}
		}
	}
}

// watchConfig hot-reloads the file and re-applies the logging section. Other
// sections need a restart; the new values are validated either way.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.manager.Subscribe(1)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.manager.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging settings reapplied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Stop shuts the bot down: transport first so no new updates arrive, then the
// dispatcher, then the database.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.adapt.Stop(ctx); err != nil {
		a.log.Warn("transport stop", logx.Err(err))
	}
	a.disp.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out waiting for workers")
	}

	if err := storage.Close(a.db); err != nil {
		a.log.Warn("database close", logx.Err(err))
	}
	a.log.Info("bot stopped")
	return nil
}
