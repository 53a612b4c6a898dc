// Keenbot is a Telegram bot for administering an Entware-based home router:
// package upgrades, service control, health monitoring and diagnostics,
// reachable from the admin's pocket instead of an SSH session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keenbot/keenbot/pkg/api"
	"github.com/keenbot/keenbot/pkg/bot"
	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/config"
	"github.com/keenbot/keenbot/pkg/drivers"
	"github.com/keenbot/keenbot/pkg/jobs"
	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/monitor"
	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/store"
	"github.com/keenbot/keenbot/pkg/telegram"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file (JSON or YAML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "keenbot:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.Debug, cfg.LogPath); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := shell.New(cfg.CommandTimeout(), cfg.MaxOutputBytes)

	// the store is optional: a broken flash partition must not keep the bot down
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.WarnCF("main", "persistent store unavailable", map[string]interface{}{
			"path": cfg.StorePath, "error": err.Error(),
		})
		st = nil
	} else {
		defer st.Close()
	}

	b := bus.New()
	defer b.Close()

	router := drivers.NewRouter(runner)
	opkg := drivers.NewOpkg(runner)
	nfqws := drivers.NewNfqws(runner, cfg.NfqwsWebPort)
	hydra := drivers.NewHydra(runner, cfg.HydraWebPort)
	magi := drivers.NewMagiTrickle(runner, hydra)
	awg := drivers.NewAwg(cfg.Awg)
	speed := drivers.NewSpeedtest(runner)

	registry := jobs.NewRegistry(runner, cfg.JobHistoryLimit)
	if st != nil {
		registry.SetHistory(func(j jobs.Job) {
			rec := store.JobRecord{
				ID:         j.ID,
				Key:        j.Key,
				Status:     string(j.Status),
				ExitCode:   j.Result.ExitCode,
				Output:     j.Result.Output,
				StartedAt:  j.StartedAt,
				FinishedAt: j.FinishedAt,
			}
			if err := st.SaveJob(context.Background(), rec, cfg.JobHistoryLimit); err != nil {
				logger.WarnCF("main", "job history save failed", map[string]interface{}{"error": err.Error()})
			}
		})
	}

	var ann monitor.Announcer
	if st != nil {
		ann = st
	}
	mon := monitor.New(cfg, router, []drivers.Service{nfqws, hydra, magi}, opkg, b, ann)

	transport, err := telegram.NewTelegoTransport(cfg.Token)
	if err != nil {
		return err
	}
	if me, err := transport.Me(ctx); err == nil {
		logger.InfoCF("main", "connected to Telegram", map[string]interface{}{"bot": "@" + me})
	}

	var noteLog telegram.NotificationLog
	if st != nil {
		noteLog = st
	}
	notifier := telegram.NewNotifier(transport, b, cfg.Admins, noteLog, cfg.JobHistoryLimit, time.Now)

	dispatcher := bot.NewDispatcher(transport, bot.Deps{
		Cfg:     cfg,
		Runner:  runner,
		Jobs:    registry,
		Store:   st,
		Bus:     b,
		Monitor: mon,
		Router:  router,
		Opkg:    opkg,
		Nfqws:   nfqws,
		Hydra:   hydra,
		Magi:    magi,
		Awg:     awg,
		Speed:   speed,
	})
	poller := telegram.NewPoller(transport, dispatcher, cfg.PollTimeout())

	go mon.Run(ctx)
	go notifier.Run(ctx)

	var apiServer *api.Server
	if cfg.Gateway.Enabled {
		apiServer = api.NewServer(cfg, mon, registry, st, b)
		if err := apiServer.Start(ctx); err != nil {
			return err
		}
	}

	logger.InfoC("main", "keenbot started")
	err = poller.Run(ctx)

	stop()
	if apiServer != nil {
		_ = apiServer.Stop()
	}
	registry.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoC("main", "keenbot stopped")
	return nil
}
