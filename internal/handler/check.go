package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// handleCheckCommand reports a user's profile status to an admin with
// follow-up action buttons.
func (h *Handler) handleCheckCommand(ctx context.Context, message telego.Message, fields []string) error {
	userID, ok := parseUserIDArg(fields)
	if !ok {
		return h.reply(ctx, message.Chat.ID, "Usage: /check &lt;user_id&gt;")
	}

	text, markup, err := h.buildCheckReport(ctx, userID, "")
	if err != nil {
		logger.Warningf("Profile check failed for user %d: %v", userID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to check user.")
	}

	logger.Infof("Admin %d checked profile of user %d", message.From.ID, userID)
	_, err = h.gw.SendMessage(ctx, message.Chat.ID, 0, text, markup)
	return err
}

// handleCheckForward runs the same profile check against the sender of a
// message an admin forwarded into the bot DM.
func (h *Handler) handleCheckForward(ctx context.Context, message telego.Message) error {
	origin, ok := message.ForwardOrigin.(*telego.MessageOriginUser)
	if !ok || origin.SenderUser.ID == 0 {
		return h.reply(ctx, message.Chat.ID, msgCheckForwardFailed)
	}
	sender := origin.SenderUser

	name := sender.FirstName
	if sender.LastName != "" {
		name += " " + sender.LastName
	}

	text, markup, err := h.buildCheckReport(ctx, sender.ID, name)
	if err != nil {
		logger.Warningf("Profile check failed for forwarded user %d: %v", sender.ID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to check user.")
	}

	logger.Infof("Admin %d checked forwarded user %d", message.From.ID, sender.ID)
	_, err = h.gw.SendMessage(ctx, message.Chat.ID, 0, text, markup)
	return err
}

// buildCheckReport assembles the status text and the action keyboard:
// a warn/verify pair for incomplete profiles, an unverify button for
// whitelisted complete ones.
func (h *Handler) buildCheckReport(ctx context.Context, userID int64, name string) (string, *telego.InlineKeyboardMarkup, error) {
	chat, err := h.bot.GetChat(ctx, &telego.GetChatParams{
		ChatID: telego.ChatID{ID: userID},
	})
	if err != nil {
		return "", nil, err
	}
	if name == "" {
		name = chat.FirstName
		if chat.LastName != "" {
			name += " " + chat.LastName
		}
	}

	hasUsername := chat.Username != ""

	whitelisted, err := h.whitelist.Contains(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	hasPhoto := whitelisted
	if !whitelisted {
		hasPhoto, err = h.gw.HasProfilePhotos(ctx, userID)
		if err != nil {
			return "", nil, err
		}
	}

	var prompt string
	var markup *telego.InlineKeyboardMarkup
	if hasPhoto && hasUsername {
		prompt = msgCheckComplete
		if whitelisted {
			markup = &telego.InlineKeyboardMarkup{
				InlineKeyboard: [][]telego.InlineKeyboardButton{{
					{Text: "❌ Unverify User", CallbackData: fmt.Sprintf("unverify:%d", userID)},
				}},
			}
		}
	} else {
		prompt = msgCheckIncomplete
		code := ""
		if !hasPhoto {
			code += "p"
		}
		if !hasUsername {
			code += "u"
		}
		markup = &telego.InlineKeyboardMarkup{
			InlineKeyboard: [][]telego.InlineKeyboardButton{{
				{Text: "⚠️ Warn User", CallbackData: fmt.Sprintf("warn:%d:%s", userID, code)},
				{Text: "✅ Verify User", CallbackData: fmt.Sprintf("verify:%d", userID)},
			}},
		}
	}

	text := fmt.Sprintf(msgCheckReport, linkedUserNameByID(userID, name), userID,
		checkMark(hasPhoto), checkMark(hasUsername), prompt)
	return text, markup, nil
}

func checkMark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// handleWarnCallback posts a profile warning into the warning topic on an
// admin's behalf. Data format: warn:<userID>:<code> where code marks the
// missing items (p photo, u username).
func (h *Handler) handleWarnCallback(ctx *th.Context, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")
	if len(parts) < 2 {
		return nil
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		logger.Warningf("Invalid warn callback data: %s", query.Data)
		return nil
	}
	if !h.ensureAdmin(ctx.Context(), query.From.ID) {
		return h.answerCallback(ctx, query.ID, msgNoPermission, true)
	}

	var missing []string
	if len(parts) > 2 {
		if strings.Contains(parts[2], "p") {
			missing = append(missing, "public profile photo")
		}
		if strings.Contains(parts[2], "u") {
			missing = append(missing, "username")
		}
	}
	if len(missing) == 0 {
		missing = append(missing, "profile")
	}

	userLink := linkedUserNameByID(userID, "")
	if chat, err := h.bot.GetChat(ctx.Context(), &telego.GetChatParams{
		ChatID: telego.ChatID{ID: userID},
	}); err == nil {
		name := chat.FirstName
		if chat.LastName != "" {
			name += " " + chat.LastName
		}
		userLink = linkedUserNameByID(userID, name)
	}

	text := fmt.Sprintf(msgProfileWarningNoEnforce, userLink,
		strings.Join(missing, " and "), h.cfg.Enforce.RulesLink)
	h.notifyWarningTopic(ctx.Context(), text)

	h.editCallbackMessage(ctx, query, fmt.Sprintf(msgAdminWarnSent, userLink))
	logger.Infof("Admin %d warned user %d via check report", query.From.ID, userID)
	return h.answerCallback(ctx, query.ID, "Warning sent.", false)
}

// handleVerifyCallback whitelists the user from a check report.
func (h *Handler) handleVerifyCallback(ctx *th.Context, query telego.CallbackQuery) error {
	userID, ok := parseCallbackUserID(query.Data)
	if !ok {
		return nil
	}
	if !h.ensureAdmin(ctx.Context(), query.From.ID) {
		return h.answerCallback(ctx, query.ID, msgNoPermission, true)
	}

	err := h.whitelist.Add(ctx.Context(), userID, query.From.ID, "")
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		logger.Warningf("Failed to whitelist user %d: %v", userID, err)
		return h.answerCallback(ctx, query.ID, "Failed to whitelist user.", true)
	}

	key := storage.Key{GroupID: h.cfg.Enforce.GroupID, UserID: userID}
	h.liftSystemRestriction(ctx.Context(), key)

	h.editCallbackMessage(ctx, query, fmt.Sprintf("✅ User %d whitelisted.", userID))
	logger.Infof("Admin %d whitelisted user %d via check report", query.From.ID, userID)
	return h.answerCallback(ctx, query.ID, "User whitelisted.", false)
}

// handleUnverifyCallback removes the user from the whitelist from a check
// report.
func (h *Handler) handleUnverifyCallback(ctx *th.Context, query telego.CallbackQuery) error {
	userID, ok := parseCallbackUserID(query.Data)
	if !ok {
		return nil
	}
	if !h.ensureAdmin(ctx.Context(), query.From.ID) {
		return h.answerCallback(ctx, query.ID, msgNoPermission, true)
	}

	if err := h.whitelist.Remove(ctx.Context(), userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warningf("Failed to remove user %d from whitelist: %v", userID, err)
		return h.answerCallback(ctx, query.ID, "Failed to remove user from whitelist.", true)
	}
	h.compliantCache.Remove(userID)

	h.editCallbackMessage(ctx, query, fmt.Sprintf("❌ User %d removed from whitelist.", userID))
	logger.Infof("Admin %d unverified user %d via check report", query.From.ID, userID)
	return h.answerCallback(ctx, query.ID, "User removed from whitelist.", false)
}

// liftSystemRestriction clears an outstanding system restriction cycle,
// leaving admin-applied restrictions alone.
func (h *Handler) liftSystemRestriction(ctx context.Context, key storage.Key) {
	rec, err := h.profile.Status(ctx, key)
	if err != nil || !rec.Restricted || rec.RestrictedBy == models.ActorAdmin {
		return
	}
	if err := h.gw.UnrestrictMember(ctx, key.GroupID, key.UserID); err != nil {
		logger.Warningf("Failed to unrestrict user %d: %v", key.UserID, err)
		return
	}
	if err := h.profile.Reset(ctx, key, models.ActorSystem); err != nil {
		logger.Warningf("Failed to reset warning record for user %d: %v", key.UserID, err)
	}
}

// editCallbackMessage rewrites the message carrying the pressed button.
func (h *Handler) editCallbackMessage(ctx *th.Context, query telego.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	msg, ok := query.Message.(*telego.Message)
	if !ok {
		return
	}
	if err := h.gw.EditMessage(ctx.Context(), msg.Chat.ID, msg.MessageID, text); err != nil {
		logger.Warningf("Failed to edit callback message: %v", err)
	}
}

func parseCallbackUserID(data string) (int64, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		logger.Warningf("Invalid callback data: %s", data)
		return 0, false
	}
	return id, true
}
