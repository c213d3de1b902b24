package handler

import (
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

// handleCallbackQuery dispatches inline keyboard presses by data prefix.
func (h *Handler) handleCallbackQuery(ctx *th.Context, query telego.CallbackQuery) error {
	if query.Data == "" {
		return nil
	}

	logger.Debugf("Received callback query: %s", query.Data)

	if strings.HasPrefix(query.Data, "captcha:") {
		return h.handleCaptchaCallback(ctx, query)
	}
	if strings.HasPrefix(query.Data, "unban:") {
		return h.handleUnbanCallback(ctx, query)
	}
	if strings.HasPrefix(query.Data, "warn:") {
		return h.handleWarnCallback(ctx, query)
	}
	if strings.HasPrefix(query.Data, "unverify:") {
		return h.handleUnverifyCallback(ctx, query)
	}
	if strings.HasPrefix(query.Data, "verify:") {
		return h.handleVerifyCallback(ctx, query)
	}
	return nil
}

// handleCaptchaCallback verifies (or rejects) a captcha answer button press.
// Data format: captcha:<groupID>:<userID>:ok or captcha:<groupID>:<userID>:no:<n>.
func (h *Handler) handleCaptchaCallback(ctx *th.Context, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")
	if len(parts) < 4 {
		logger.Warningf("Invalid captcha callback data: %s", query.Data)
		return nil
	}
	groupID, err1 := strconv.ParseInt(parts[1], 10, 64)
	userID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		logger.Warningf("Invalid captcha callback data: %s", query.Data)
		return nil
	}

	// Only the challenged user may answer.
	if query.From.ID != userID {
		return h.answerCallback(ctx, query.ID, msgCaptchaNotYours, true)
	}

	key := storage.Key{GroupID: groupID, UserID: userID}

	if parts[3] != "ok" {
		if err := h.captcha.RecordAttempt(ctx.Context(), key); err != nil {
			logger.Warningf("Failed to record captcha attempt for user %d: %v", userID, err)
		}
		return h.answerCallback(ctx, query.ID, msgCaptchaWrongAnswer, true)
	}

	rec, err := h.captcha.Verify(ctx.Context(), key, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyTerminal) {
			if rec != nil && rec.Status == models.CaptchaVerified {
				return h.answerCallback(ctx, query.ID, "Already verified.", false)
			}
			return h.answerCallback(ctx, query.ID, "The challenge has expired.", true)
		}
		logger.Warningf("Captcha verification failed for user %d: %v", userID, err)
		return h.answerCallback(ctx, query.ID, "Verification failed, please contact an administrator.", true)
	}

	if err := h.gw.UnrestrictMember(ctx.Context(), groupID, userID); err != nil {
		logger.Errorf("Failed to unrestrict verified user %d: %v", userID, err)
	}

	// Verified members start their probation window now.
	if h.cfg.Enforce.ProbationHours > 0 {
		if err := h.probation.Begin(ctx.Context(), key, time.Now()); err != nil {
			logger.Warningf("Failed to open probation window for user %d: %v", userID, err)
		}
	}

	userLink := linkedUserNameByID(userID, rec.UserName)
	if rec.ChatID != 0 && rec.MessageID != 0 {
		text := fmt.Sprintf(msgCaptchaVerified, userLink)
		if err := h.gw.EditMessage(ctx.Context(), rec.ChatID, rec.MessageID, text); err != nil {
			logger.Warningf("Failed to edit captcha message for user %d: %v", userID, err)
		}
	}

	logger.Infof("User %d verified in group %d", userID, groupID)
	return h.answerCallback(ctx, query.ID, "Verified, welcome!", false)
}

// handleUnbanCallback lets a group admin lift a restriction from the
// warning topic. Data format: unban:<groupID>:<userID>.
func (h *Handler) handleUnbanCallback(ctx *th.Context, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 {
		logger.Warningf("Invalid unban callback data: %s", query.Data)
		return nil
	}
	groupID, err1 := strconv.ParseInt(parts[1], 10, 64)
	userID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		logger.Warningf("Invalid unban callback data: %s", query.Data)
		return nil
	}

	if !h.isGroupAdmin(ctx.Context(), groupID, query.From.ID) {
		return h.answerCallback(ctx, query.ID, msgNoPermission, true)
	}

	key := storage.Key{GroupID: groupID, UserID: userID}
	if err := h.profile.Reset(ctx.Context(), key, models.ActorAdmin); err != nil {
		logger.Warningf("Failed to reset warning record for user %d: %v", userID, err)
	}
	if err := h.probation.Reset(ctx.Context(), key, models.ActorAdmin); err != nil {
		logger.Warningf("Failed to reset probation record for user %d: %v", userID, err)
	}
	if err := h.gw.UnrestrictMember(ctx.Context(), groupID, userID); err != nil {
		logger.Errorf("Failed to unrestrict user %d: %v", userID, err)
		return h.answerCallback(ctx, query.ID, "Failed to lift restriction.", true)
	}

	logger.Infof("Admin %d unrestricted user %d in group %d", query.From.ID, userID, groupID)

	// Update the topic message so a second press has nothing to do.
	if query.Message != nil {
		if msg, ok := query.Message.(*telego.Message); ok {
			text := fmt.Sprintf(msgUserUnbanned, linkedUserNameByID(userID, ""))
			if err := h.gw.EditMessage(ctx.Context(), msg.Chat.ID, msg.MessageID, text); err != nil {
				logger.Warningf("Failed to edit unban message: %v", err)
			}
		}
	}

	return h.answerCallback(ctx, query.ID, "Restriction lifted.", false)
}

func (h *Handler) answerCallback(ctx *th.Context, queryID, text string, alert bool) error {
	err := h.bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		logger.Warningf("Error answering callback query: %v", err)
	}
	return err
}
