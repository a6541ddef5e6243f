package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pvebot/internal/bot"
	"pvebot/internal/config"
	"pvebot/internal/monitor"
	"pvebot/internal/proxmox"
	"pvebot/internal/store"
	"pvebot/internal/utils"
	"pvebot/internal/version"
	"pvebot/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	paths := utils.NewPaths(cfg.DataDir)
	logger := utils.NewLogger(paths.LogFile())
	defer logger.Close()
	logger.Writef("pvebot %s starting", version.Current)

	history := store.NewHistoryStore(paths.HistoryFile(), cfg.HistoryLimit)
	if err := history.Load(); err != nil {
		log.Fatalf("history store: %v", err)
	}
	notify := store.NewNotifyStore(paths.NotifyFile())
	if err := notify.Load(); err != nil {
		log.Fatalf("notify store: %v", err)
	}

	client, err := proxmox.New(proxmox.Options{
		Host:               cfg.ProxmoxHost,
		Port:               cfg.ProxmoxPort,
		TokenID:            cfg.ProxmoxTokenID,
		TokenSecret:        cfg.ProxmoxTokenSecret,
		CABundle:           cfg.ProxmoxCABundle,
		InsecureSkipVerify: cfg.ProxmoxInsecureTLS,
		Timeout:            cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("proxmox client: %v", err)
	}

	b, err := bot.New(cfg.DiscordToken, cfg.CommandPrefix, cfg.EmergencySecret, client, history, notify, logger)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}

	mon := monitor.New(client, b, history, notify, logger, cfg.PollInterval)
	b.AttachMonitor(mon)

	var webSrv *web.Server
	if cfg.WebAddr != "" {
		webSrv = web.NewServer(cfg.WebAddr, cfg.WebToken, mon, history, notify, logger)
		mon.SetBroadcast(webSrv.Broadcast)
	}

	if err := b.Open(); err != nil {
		log.Fatalf("%v", err)
	}
	mon.Start()
	if webSrv != nil {
		webSrv.Start()
	}
	logger.Write("pvebot running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Write("shutting down")

	mon.Stop()
	if webSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := webSrv.Shutdown(ctx); err != nil {
			logger.Writef("dashboard shutdown: %v", err)
		}
		cancel()
	}
	if err := b.Close(); err != nil {
		logger.Writef("discord close: %v", err)
	}
	logger.Write("pvebot stopped")
}
