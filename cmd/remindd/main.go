package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"remindd/internal/config"
	"remindd/internal/engine"
	"remindd/internal/eventbus"
	"remindd/internal/graph"
	"remindd/internal/notify"
	rtsup "remindd/internal/runtime/supervisor"
	"remindd/internal/scan"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./remindd.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()

	cfgMgr.SetLogger(log.With(logx.String("component", "config")))
	cfgMgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return c.Validate()
	})

	src := graph.NewDir(cfg.Graph.Path, log)
	pipeline := scan.NewPipeline(src, log)
	bus := eventbus.New()

	var audit storage.Store
	if cfg.Storage != nil {
		audit, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.Storage.BusyTimeoutOrDefault(),
		}, log.With(logx.String("component", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	if audit != nil {
		defer audit.Close()
	}

	var (
		sink notify.Sink
		tg   *notify.Telegram
	)
	if cfg.Telegram != nil {
		tg, err = notify.NewTelegram(notify.TelegramConfig{
			Token:      cfg.Telegram.Token,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Telegram.ThreadID,
			RatePerSec: cfg.Telegram.RatePerSec,
			RetryMax:   cfg.Telegram.RetryMax,
		}, log)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sink = tg
	} else {
		log.Warn("no telegram configured; notifications go to the log")
		sink = notify.NewLogSink(log)
	}

	eng := engine.New(engine.Deps{
		Log:               log,
		Config:            cfgMgr,
		Pipeline:          pipeline,
		Sink:              sink,
		Audit:             audit,
		Bus:               bus,
		OnGraphPathChange: src.SetRoot,
	})

	sup := rtsup.New(ctx, rtsup.WithLogger(log), rtsup.WithCancelOnError(false))

	sup.GoRestart("config.watch", cfgMgr.Watch)

	// logging settings are applied here so the engine stays unaware of the
	// log service
	sup.Go0("logging.reload", func(c context.Context) {
		ch := cfgMgr.Subscribe(2)
		defer cfgMgr.Unsubscribe(ch)
		for {
			select {
			case <-c.Done():
				return
			case nc, ok := <-ch:
				if !ok {
					return
				}
				if nc == nil {
					continue
				}
				logSvc.Apply(logx.Config{
					Level:   nc.Logging.Level,
					Console: nc.Logging.Console,
					File: logx.FileConfig{
						Enabled: nc.Logging.File.Enabled,
						Path:    nc.Logging.File.Path,
					},
				})
			}
		}
	})

	// lifecycle events are mirrored into the log for operators tailing at
	// debug level
	sup.Go0("events.log", func(c context.Context) {
		ch, unsub := bus.Subscribe(16)
		defer unsub()
		evLog := log.With(logx.String("component", "events"))
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				evLog.Debug(ev.Type, logx.Time("at", ev.Time), logx.Any("data", ev.Data))
			}
		}
	})

	// SIGUSR1 is the keybinding-equivalent manual rescan trigger
	sup.Go0("rescan.signal", func(c context.Context) {
		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, syscall.SIGUSR1)
		defer signal.Stop(usr1)
		for {
			select {
			case <-c.Done():
				return
			case <-usr1:
				n, err := eng.Rescan(c)
				if err != nil {
					log.Warn("manual rescan failed", logx.Err(err))
					continue
				}
				log.Info("manual rescan complete", logx.Int("items", n))
			}
		}
	})

	// The engine starts before the Telegram poller so a /rescan arriving the
	// moment polling begins already has a running engine behind it.
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	if tg != nil {
		tg.SetRescanFunc(eng.Rescan)
		if err := tg.Start(ctx); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
	}
	_, _ = sd.SdNotify(false, sd.SdNotifyReady)
	log.Info("remindd ready", logx.String("config", cfgPath), logx.String("graph", cfg.Graph.Path))

	<-ctx.Done()
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Warn("engine stop", logx.Err(err))
	}
	if tg != nil {
		if err := tg.Stop(stopCtx); err != nil {
			log.Warn("telegram stop", logx.Err(err))
		}
	}
	sup.Cancel()
	if err := sup.Wait(stopCtx); err != nil {
		log.Warn("background loops stop", logx.Err(err))
	}
	log.Info("bye")
	return nil
}
