package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

const helpText = "<b>Group Guard</b>\n\n" +
	"Admin commands (private chat):\n" +
	"/verify &lt;user_id&gt; - whitelist a user's profile photo check\n" +
	"/unverify &lt;user_id&gt; - remove a user from the photo whitelist\n" +
	"/check &lt;user_id&gt; - check a user's profile status\n" +
	"/status &lt;user_id&gt; - show tracked state for a user\n" +
	"/forget &lt;user_id&gt; - delete all violation records for a user\n" +
	"/help - show this message"

// handleCommand processes private chat commands. Everything except /help is
// restricted to group administrators.
func (h *Handler) handleCommand(ctx *th.Context, message telego.Message) error {
	fields := strings.Fields(message.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		// Not a command. Admins forward messages to check their sender;
		// everyone else goes through the self-service unrestriction flow.
		if message.ForwardOrigin != nil && h.isAdmin(message.From.ID) {
			return h.handleCheckForward(ctx.Context(), message)
		}
		return h.handleDM(ctx.Context(), message)
	}
	command := fields[0]
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}

	if command == "/help" {
		return h.reply(ctx.Context(), message.Chat.ID, helpText)
	}
	// The restriction notices link straight to the bot; the opening /start
	// runs the unrestriction flow rather than the help text.
	if command == "/start" {
		return h.handleDM(ctx.Context(), message)
	}

	if !h.ensureAdmin(ctx.Context(), message.From.ID) {
		return h.reply(ctx.Context(), message.Chat.ID, msgNoPermission)
	}

	switch command {
	case "/verify":
		return h.handleVerifyCommand(ctx.Context(), message, fields)
	case "/unverify":
		return h.handleUnverifyCommand(ctx.Context(), message, fields)
	case "/check":
		return h.handleCheckCommand(ctx.Context(), message, fields)
	case "/status":
		return h.handleStatusCommand(ctx.Context(), message, fields)
	case "/forget":
		return h.handleForgetCommand(ctx.Context(), message, fields)
	}
	return nil
}

// handleForgetCommand wipes every violation record for a user, all kinds.
// Used after manual review; does not lift an active chat restriction.
func (h *Handler) handleForgetCommand(ctx context.Context, message telego.Message, fields []string) error {
	userID, ok := parseUserIDArg(fields)
	if !ok {
		return h.reply(ctx, message.Chat.ID, "Usage: /forget &lt;user_id&gt;")
	}

	key := storage.Key{GroupID: h.cfg.Enforce.GroupID, UserID: userID}
	n, err := h.violations.DeleteByUser(ctx, key)
	if err != nil {
		logger.Warningf("Failed to delete records for user %d: %v", userID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to delete records.")
	}

	h.compliantCache.Remove(userID)
	logger.Infof("Admin %d deleted %d record(s) for user %d", message.From.ID, n, userID)
	return h.reply(ctx, message.Chat.ID, fmt.Sprintf("Deleted %d record(s) for user %d.", n, userID))
}

// handleVerifyCommand whitelists a user so the profile photo API check is
// skipped for them.
func (h *Handler) handleVerifyCommand(ctx context.Context, message telego.Message, fields []string) error {
	userID, ok := parseUserIDArg(fields)
	if !ok {
		return h.reply(ctx, message.Chat.ID, "Usage: /verify &lt;user_id&gt;")
	}

	err := h.whitelist.Add(ctx, userID, message.From.ID, "")
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return h.reply(ctx, message.Chat.ID, fmt.Sprintf("User %d is already whitelisted.", userID))
		}
		logger.Warningf("Failed to whitelist user %d: %v", userID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to whitelist user.")
	}

	// The user may already have a restriction cycle for the photo check.
	h.liftSystemRestriction(ctx, storage.Key{GroupID: h.cfg.Enforce.GroupID, UserID: userID})

	logger.Infof("Admin %d whitelisted user %d", message.From.ID, userID)
	return h.reply(ctx, message.Chat.ID, fmt.Sprintf("User %d whitelisted.", userID))
}

func (h *Handler) handleUnverifyCommand(ctx context.Context, message telego.Message, fields []string) error {
	userID, ok := parseUserIDArg(fields)
	if !ok {
		return h.reply(ctx, message.Chat.ID, "Usage: /unverify &lt;user_id&gt;")
	}

	err := h.whitelist.Remove(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return h.reply(ctx, message.Chat.ID, fmt.Sprintf("User %d is not whitelisted.", userID))
		}
		logger.Warningf("Failed to remove user %d from whitelist: %v", userID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to remove user from whitelist.")
	}

	h.compliantCache.Remove(userID)
	logger.Infof("Admin %d removed user %d from whitelist", message.From.ID, userID)
	return h.reply(ctx, message.Chat.ID, fmt.Sprintf("User %d removed from whitelist.", userID))
}

// handleStatusCommand reports the tracked moderation state for one user.
func (h *Handler) handleStatusCommand(ctx context.Context, message telego.Message, fields []string) error {
	userID, ok := parseUserIDArg(fields)
	if !ok {
		return h.reply(ctx, message.Chat.ID, "Usage: /status &lt;user_id&gt;")
	}

	key := storage.Key{GroupID: h.cfg.Enforce.GroupID, UserID: userID}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Status for user %d</b>\n", userID)

	whitelisted, _ := h.whitelist.Contains(ctx, userID)
	fmt.Fprintf(&b, "Photo whitelist: %v\n", whitelisted)

	if rec, err := h.profile.Status(ctx, key); err == nil {
		fmt.Fprintf(&b, "Profile warnings: %d (restricted: %v, by: %s)\n",
			rec.Count, rec.Restricted, actorLabel(rec.RestrictedBy))
	} else {
		b.WriteString("Profile warnings: none\n")
	}

	if rec, err := h.probation.Status(ctx, key); err == nil {
		fmt.Fprintf(&b, "Probation violations: %d (restricted: %v, window until: %s)\n",
			rec.Count, rec.Restricted, rec.ProbationUntil.Format(time.RFC3339))
	} else {
		b.WriteString("Probation violations: none\n")
	}

	if rec, err := h.captcha.Status(ctx, key); err == nil {
		fmt.Fprintf(&b, "Captcha: %s (attempts: %d, deadline: %s)\n",
			rec.Status, rec.Attempts, rec.Deadline.Format(time.RFC3339))
	} else {
		b.WriteString("Captcha: none\n")
	}

	return h.reply(ctx, message.Chat.ID, b.String())
}

// ensureAdmin consults the cached admin set and refreshes it once on a miss.
func (h *Handler) ensureAdmin(ctx context.Context, userID int64) bool {
	if h.isAdmin(userID) {
		return true
	}
	if err := h.RefreshAdmins(ctx); err != nil {
		logger.Warningf("Failed to refresh admin list: %v", err)
		return false
	}
	return h.isAdmin(userID)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	_, err := h.gw.SendMessage(ctx, chatID, 0, text, nil)
	return err
}

func parseUserIDArg(fields []string) (int64, bool) {
	if len(fields) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func actorLabel(actor models.Actor) string {
	if actor == models.ActorNone {
		return "none"
	}
	return string(actor)
}
