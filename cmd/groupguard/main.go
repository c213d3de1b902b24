package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg-groupguard/internal/bot"
	"tg-groupguard/internal/config"
	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/enforce"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/handler"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer crash.RecoverWithStackAndExit("main")

	db, err := storage.Initialize(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	violations := storage.NewViolationRepository(db)
	captchas := storage.NewCaptchaRepository(db)
	whitelist := storage.NewWhitelistRepository(db)
	groups := storage.NewGroupRepository(db)
	for _, m := range []interface{ MigrateTable() error }{violations, captchas, whitelist, groups} {
		if err := m.MigrateTable(); err != nil {
			logger.Fatalf("Failed to migrate tables: %v", err)
		}
	}

	groupManager := models.NewGroupInfoManager()
	if err := groups.LoadGroups(groupManager); err != nil {
		logger.Warningf("Failed to preload group info: %v", err)
	}

	profile := enforce.NewTracker(violations, models.KindProfile,
		cfg.Enforce.WarningThreshold, cfg.Enforce.WarningMaxAge())
	probation := enforce.NewProbation(violations,
		cfg.Enforce.ProbationThreshold, cfg.Enforce.ProbationWindow())
	captcha := enforce.NewCaptcha(captchas, cfg.Enforce.CaptchaTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botService, server, err := bot.Initialize(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	gw := gateway.NewTelegramGateway(botService.Bot)

	// Hooks are filled after the handler exists; the engine only decides,
	// the handler executes.
	hooks := enforce.Hooks{}
	reconciler := enforce.NewReconciler(captcha, hooks)

	h := handler.New(cfg, botService.Bot, botService.Username, gw, profile, probation, captcha,
		reconciler, whitelist, violations, groups, groupManager)

	hooks = enforce.Hooks{
		OnEscalated:      h.OnEscalated,
		OnCaptchaExpired: h.OnCaptchaExpired,
	}
	reconciler.SetHooks(hooks)

	sweeper := enforce.NewSweeper(profile, captcha, hooks,
		cfg.Enforce.SweepInterval(), cfg.Enforce.SweepStartupDelay())

	if err := h.RefreshAdmins(ctx); err != nil {
		logger.Warningf("Failed to load group administrators: %v", err)
	}

	// Recover pending captcha deadlines before any update is processed.
	if err := reconciler.Run(ctx, time.Now()); err != nil {
		logger.Errorf("Captcha reconciliation failed: %v", err)
	}

	sweeper.Start(ctx)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Give the server time to start before consuming updates.
	time.Sleep(500 * time.Millisecond)
	logger.Infof("HTTP server is ready, starting bot handler...")

	h.Setup(botService.Handler)
	crash.SafeGoroutine("bot-handler", func() {
		botService.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Infof("Received signal: %v, shutting down...", sig)

	cancel()
	botService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warningf("HTTP server shutdown error: %v", err)
	}

	logger.Infof("Server gracefully stopped")
}
