package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/logger"
)

// Service bundles the Telegram bot client with its update handler loop.
type Service struct {
	Bot      *telego.Bot
	Handler  *th.BotHandler
	Username string
}

// Start starts consuming updates. Blocks until Stop is called.
func (s *Service) Start() {
	s.Handler.Start()
}

// Stop stops the update handler loop.
func (s *Service) Stop() {
	s.Handler.Stop()
}

// Initialize creates the bot client, registers commands and sets up the
// webhook transport.
func Initialize(ctx context.Context, cfg *config.Config) (*Service, *WebhookServer, error) {
	if cfg.Bot.Token == "" {
		return nil, nil, fmt.Errorf("bot token is required")
	}

	bot, err := telego.NewBot(cfg.Bot.Token, telego.WithDefaultDebugLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize bot: %w", err)
	}

	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	logger.Infof("Authorized on account %s", botUser.Username)

	setCommands(ctx, bot)

	if err := bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return nil, nil, fmt.Errorf("failed to delete existing webhook: %w", err)
	}

	secretToken := "groupguard_webhook_" + cfg.Bot.Token[len(cfg.Bot.Token)-6:]

	bh, server, err := SetupWebhook(ctx, bot, cfg.Bot.Webhook.Endpoint, cfg.Bot.Webhook.ListenPort,
		cfg.Bot.Webhook.DebugPath, secretToken, cfg.Bot.Webhook.CertFile, cfg.Bot.Webhook.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup webhook: %w", err)
	}

	return &Service{Bot: bot, Handler: bh, Username: botUser.Username}, server, nil
}

// setCommands publishes the bot command menu.
func setCommands(ctx context.Context, bot *telego.Bot) {
	commands := []telego.BotCommand{
		{Command: "help", Description: "Show available commands"},
		{Command: "verify", Description: "Whitelist a user's profile photo check"},
		{Command: "unverify", Description: "Remove a user from the photo whitelist"},
		{Command: "status", Description: "Show tracked state for a user"},
		{Command: "check", Description: "Check a user's profile status"},
		{Command: "forget", Description: "Delete all violation records for a user"},
	}

	err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
		Scope:    &telego.BotCommandScopeAllPrivateChats{Type: telego.ScopeTypeAllPrivateChats},
	})
	if err != nil {
		logger.Warningf("Failed to set bot commands: %v", err)
	}
}
