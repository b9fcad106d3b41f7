package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/underxbet/inplay-engine/internal/adapters/inbound/feedws"
	"github.com/underxbet/inplay-engine/internal/adapters/outbound/amqppub"
	"github.com/underxbet/inplay-engine/internal/adapters/outbound/mlpredict"
	"github.com/underxbet/inplay-engine/internal/adapters/outbound/pgarchive"
	"github.com/underxbet/inplay-engine/internal/adapters/outbound/redisstore"
	"github.com/underxbet/inplay-engine/internal/config"
	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/cashout"
	"github.com/underxbet/inplay-engine/internal/core/decision"
	"github.com/underxbet/inplay-engine/internal/journal"
	"github.com/underxbet/inplay-engine/internal/notify"
	"github.com/underxbet/inplay-engine/internal/poller"
	"github.com/underxbet/inplay-engine/internal/telemetry"
	"github.com/underxbet/inplay-engine/internal/web"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	telemetry.Infof("Starting in-play engine")

	// ── Bet store ──────────────────────────────────────────────
	store := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer store.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := store.Ping(ctx)
		cancel()
		if err != nil {
			telemetry.Errorf("redis: %v", err)
			os.Exit(1)
		}
	}

	// ── Signal queue ───────────────────────────────────────────
	sink := amqppub.New(cfg.AMQPURL, cfg.BetSignalsQueue, cfg.CashoutSignalsQueue)
	if err := sink.Connect(); err != nil {
		telemetry.Errorf("amqp: %v", err)
		os.Exit(1)
	}
	defer sink.Close()

	// ── Rules ──────────────────────────────────────────────────
	loader, err := config.NewRulesLoader(cfg.RulesPath)
	if err != nil {
		telemetry.Errorf("rules: %v", err)
		os.Exit(1)
	}

	// ── Model predictor (optional) ─────────────────────────────
	var predictor decision.Predictor
	if cfg.PredictorURL != "" {
		predictor = mlpredict.NewClient(cfg.PredictorURL, cfg.PredictorTimeout)
		telemetry.Infof("predictor: %s (timeout %s)", cfg.PredictorURL, cfg.PredictorTimeout)
	} else {
		telemetry.Warnf("predictor: disabled, rule verdicts stand alone")
	}
	blender := decision.NewBlender(predictor, cfg.PredictorTimeout)

	// ── Journal ────────────────────────────────────────────────
	jr, err := journal.Open(cfg.JournalDBPath)
	if err != nil {
		telemetry.Errorf("journal: %v", err)
		os.Exit(1)
	}
	defer jr.Close()

	// ── Postgres archive (optional) ────────────────────────────
	archive, err := pgarchive.Open(cfg.PostgresDSN)
	if err != nil {
		telemetry.Warnf("pgarchive: disabled: %v", err)
	}
	defer archive.Close()

	// ── Telegram (optional) ────────────────────────────────────
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		telemetry.Warnf("telegram: disabled: %v", err)
	}

	// ── Core ───────────────────────────────────────────────────
	coordinator := bet.NewCoordinator(store, sink, cfg.BetTTL)
	monitor := cashout.NewMonitor(store, sink)

	// ── Feed ───────────────────────────────────────────────────
	snapStore := feedws.NewStore()
	feedClient := feedws.NewClient(cfg.FeedWSURL, snapStore)

	// ── Poller ─────────────────────────────────────────────────
	p := poller.New(snapStore, loader, blender, coordinator, monitor, jr, tg, archive, poller.Options{
		Interval:            cfg.PollInterval,
		MaxConcurrentEvents: cfg.MaxConcurrentEvents,
		MaxCombinedAvgGoals: cfg.MaxCombinedAvgGoals,
	})

	// ── Status API ─────────────────────────────────────────────
	server := web.NewServer(cfg.HTTPListen, store, loader, jr)
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go feedClient.ConnectWithRetry(ctx)
	go loader.WatchReload(ctx, cfg.RulesReloadPeriod)
	go p.Run(ctx)

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		telemetry.Warnf("web shutdown: %v", err)
	}
}
