// Package gateway wraps the Telegram platform API behind the capability set
// the moderation engine's callers need. The engine itself returns decisions
// and never calls the platform; handlers and sweep hooks act through this.
package gateway

import (
	"context"

	"github.com/mymmrac/telego"

	"tg-groupguard/internal/logger"
)

// Gateway is the platform capability set consumed by the handlers.
type Gateway interface {
	SendMessage(ctx context.Context, chatID int64, topicID int, text string, markup *telego.InlineKeyboardMarkup) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictMember(ctx context.Context, chatID, userID int64) error
	UnrestrictMember(ctx context.Context, chatID, userID int64) error
	GetMembership(ctx context.Context, chatID, userID int64) (telego.ChatMember, error)
	HasProfilePhotos(ctx context.Context, userID int64) (bool, error)
}

// TelegramGateway implements Gateway over a telego bot.
type TelegramGateway struct {
	bot *telego.Bot
}

// NewTelegramGateway wraps the given bot.
func NewTelegramGateway(bot *telego.Bot) *TelegramGateway {
	return &TelegramGateway{bot: bot}
}

// SendMessage sends an HTML-formatted message, optionally into a forum topic,
// and returns the sent message ID.
func (g *TelegramGateway) SendMessage(ctx context.Context, chatID int64, topicID int, text string, markup *telego.InlineKeyboardMarkup) (int, error) {
	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "HTML",
	}
	if topicID != 0 {
		params.MessageThreadID = topicID
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	msg, err := g.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (g *TelegramGateway) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := g.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

// DeleteMessage removes a message from a chat.
func (g *TelegramGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return g.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	})
}

// RestrictMember mutes a user by dropping all chat permissions.
func (g *TelegramGateway) RestrictMember(ctx context.Context, chatID, userID int64) error {
	err := g.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID:      telego.ChatID{ID: chatID},
		UserID:      userID,
		Permissions: telego.ChatPermissions{},
	})
	if err != nil {
		logger.Warningf("Error restricting user %d in chat %d: %v", userID, chatID, err)
		return err
	}
	logger.Infof("Restricted user %d in chat %d", userID, chatID)
	return nil
}

// UnrestrictMember restores the chat's default permissions for a user.
func (g *TelegramGateway) UnrestrictMember(ctx context.Context, chatID, userID int64) error {
	chatInfo, err := g.bot.GetChat(ctx, &telego.GetChatParams{
		ChatID: telego.ChatID{ID: chatID},
	})

	permissions := telego.ChatPermissions{}
	if err == nil && chatInfo.Permissions != nil {
		permissions = *chatInfo.Permissions
	}

	err = g.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID:      telego.ChatID{ID: chatID},
		UserID:      userID,
		Permissions: permissions,
	})
	if err != nil {
		logger.Warningf("Error unrestricting user %d in chat %d: %v", userID, chatID, err)
		return err
	}
	logger.Infof("Unrestricted user %d in chat %d", userID, chatID)
	return nil
}

// GetMembership returns the user's membership object in a chat.
func (g *TelegramGateway) GetMembership(ctx context.Context, chatID, userID int64) (telego.ChatMember, error) {
	return g.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
}

// HasProfilePhotos reports whether the user has at least one visible profile
// photo.
func (g *TelegramGateway) HasProfilePhotos(ctx context.Context, userID int64) (bool, error) {
	photos, err := g.bot.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return false, err
	}
	return photos.TotalCount > 0, nil
}
