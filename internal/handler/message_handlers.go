package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/enforce"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// handleGroupMessage runs the probation check and the profile compliance
// check for one inbound group message.
func (h *Handler) handleGroupMessage(ctx *th.Context, message telego.Message) error {
	if message.Chat.ID != h.cfg.Enforce.GroupID {
		return nil
	}

	if h.guardWarningTopic(ctx.Context(), message) {
		return nil
	}

	h.rememberGroup(message.Chat)

	now := time.Now()
	key := storage.Key{GroupID: message.Chat.ID, UserID: message.From.ID}

	handled, err := h.checkProbation(ctx.Context(), message, key, now)
	if err != nil {
		logger.Warningf("Probation check failed for user %d: %v", key.UserID, err)
	}
	if handled {
		return nil
	}

	return h.checkProfileCompliance(ctx.Context(), message, key, now)
}

// guardWarningTopic keeps the warning topic clean for bot notices: posts
// from non-admins are removed before any other check runs. Returns true
// when the message belonged to the warning topic and was handled here.
func (h *Handler) guardWarningTopic(ctx context.Context, message telego.Message) bool {
	if h.cfg.Enforce.WarningTopicID == 0 || message.MessageThreadID != h.cfg.Enforce.WarningTopicID {
		return false
	}
	if h.isGroupAdmin(ctx, message.Chat.ID, message.From.ID) {
		return false
	}

	if err := h.gw.DeleteMessage(ctx, message.Chat.ID, message.MessageID); err != nil {
		logger.Warningf("Failed to delete non-admin post in warning topic from user %d: %v",
			message.From.ID, err)
		return true
	}
	logger.Infof("Deleted non-admin post in warning topic from user %d", message.From.ID)
	return true
}

// checkProbation deletes and counts link/forward messages from users whose
// probation window is still open. Returns true when the message was a
// violation and has been handled.
func (h *Handler) checkProbation(ctx context.Context, message telego.Message, key storage.Key, now time.Time) (bool, error) {
	active, err := h.probation.Active(ctx, key, now)
	if err != nil || !active {
		return false, err
	}

	if !h.isProbationViolation(message) {
		return false, nil
	}

	logger.Infof("Probation violation from user %d: forwarded=%v, link=%v, external_reply=%v, story=%v",
		key.UserID, message.ForwardOrigin != nil, h.hasNonWhitelistedLink(message),
		message.ExternalReply != nil, message.Story != nil)

	if err := h.gw.DeleteMessage(ctx, message.Chat.ID, message.MessageID); err != nil {
		logger.Warningf("Failed to delete violation message from user %d: %v", key.UserID, err)
	}

	dec, err := h.probation.RecordViolation(ctx, key, now)
	if err != nil {
		return true, err
	}

	userLink := GetLinkedUserName(*message.From)
	switch dec.Action {
	case enforce.ActionWarn:
		text := fmt.Sprintf(msgProbationWarning, userLink,
			formatHours(h.cfg.Enforce.ProbationHours), h.cfg.Enforce.RulesLink)
		h.notifyWarningTopic(ctx, text)
	case enforce.ActionRestrict:
		if err := h.gw.RestrictMember(ctx, key.GroupID, key.UserID); err == nil {
			text := fmt.Sprintf(msgProbationRestricted, userLink, dec.Count, h.cfg.Enforce.RulesLink)
			h.notifyWarningTopicMarkup(ctx, text, unbanMarkup(key.GroupID, key.UserID))
		}
	}
	return true, nil
}

// checkProfileCompliance warns and progressively restricts users whose
// profile is missing a photo or a username.
func (h *Handler) checkProfileCompliance(ctx context.Context, message telego.Message, key storage.Key, now time.Time) error {
	user := *message.From

	if h.compliantCache.Contains(user.ID) {
		return nil
	}

	complete, missing, err := h.checkProfile(ctx, user)
	if err != nil {
		logger.Warningf("Profile check failed for user %d: %v", user.ID, err)
		return nil
	}

	if complete {
		h.compliantCache.Add(user.ID)
		h.clearComplianceCycle(ctx, key)
		return nil
	}

	userLink := GetLinkedUserName(user)
	missingText := strings.Join(missing, " and ")

	// Warning mode: every message gets a reminder, nothing is tracked.
	if !h.cfg.Enforce.Enabled {
		text := fmt.Sprintf(msgProfileWarningNoEnforce, userLink, missingText, h.cfg.Enforce.RulesLink)
		h.notifyWarningTopic(ctx, text)
		return nil
	}

	dec, err := h.profile.RecordViolation(ctx, key, now)
	if err != nil {
		logger.Warningf("Recording profile violation for user %d failed: %v", user.ID, err)
		return nil
	}

	switch dec.Action {
	case enforce.ActionWarn:
		text := fmt.Sprintf(msgProfileWarning, userLink, missingText,
			h.cfg.Enforce.WarningThreshold, h.cfg.Enforce.RulesLink)
		h.notifyWarningTopic(ctx, text)
		logger.Infof("First warning for user %d, missing: %s", user.ID, missingText)
	case enforce.ActionRestrict:
		if err := h.gw.RestrictMember(ctx, key.GroupID, key.UserID); err != nil {
			return nil
		}
		text := fmt.Sprintf(msgProfileRestricted, userLink, dec.Count, missingText,
			h.cfg.Enforce.RulesLink, h.dmLink())
		h.notifyWarningTopicMarkup(ctx, text, unbanMarkup(key.GroupID, key.UserID))
		logger.Infof("Restricted user %d after %d messages", user.ID, dec.Count)
	case enforce.ActionSilent:
		logger.Debugf("Silent increment for user %d, count: %d", user.ID, dec.Count)
	}
	return nil
}

// rememberGroup keeps group metadata current for log and notice rendering.
// First sight of a group persists it; later sights are served from memory.
func (h *Handler) rememberGroup(chat telego.Chat) {
	if h.groups.GetGroupInfo(chat.ID) != nil {
		return
	}

	info := &models.GroupInfo{
		GroupID:   chat.ID,
		GroupName: chat.Title,
	}
	if chat.Username != "" {
		info.GroupLink = "https://t.me/" + chat.Username
	}

	if err := h.groupRepo.CreateOrUpdateGroupInfo(info); err != nil {
		logger.Warningf("Failed to persist group info for %d: %v", chat.ID, err)
		return
	}
	h.groups.AddGroupInfo(info)
	logger.Infof("Tracking group %d (%s)", chat.ID, chat.Title)
}

// clearComplianceCycle resets an outstanding warning cycle once the user
// became compliant, lifting a restriction only if the system applied it.
func (h *Handler) clearComplianceCycle(ctx context.Context, key storage.Key) {
	rec, err := h.profile.Status(ctx, key)
	if err != nil || rec.Count == 0 {
		return
	}

	if rec.Restricted && rec.RestrictedBy == models.ActorSystem {
		if err := h.gw.UnrestrictMember(ctx, key.GroupID, key.UserID); err != nil {
			logger.Warningf("Failed to unrestrict compliant user %d: %v", key.UserID, err)
			return
		}
	}

	if err := h.profile.Reset(ctx, key, models.ActorSystem); err != nil {
		logger.Warningf("Failed to reset warning cycle for user %d: %v", key.UserID, err)
	}
	logger.Infof("User %d became compliant, warning cycle cleared", key.UserID)
}

// checkProfile reports whether the user's profile is complete and which
// items are missing. Whitelisted users skip the photo API call.
func (h *Handler) checkProfile(ctx context.Context, user telego.User) (bool, []string, error) {
	hasUsername := user.Username != ""

	whitelisted, err := h.whitelist.Contains(ctx, user.ID)
	if err != nil {
		return false, nil, err
	}

	hasPhoto := whitelisted
	if !whitelisted {
		hasPhoto, err = h.gw.HasProfilePhotos(ctx, user.ID)
		if err != nil {
			return false, nil, err
		}
	}

	var missing []string
	if !hasPhoto {
		missing = append(missing, "public profile photo")
	}
	if !hasUsername {
		missing = append(missing, "username")
	}
	return hasPhoto && hasUsername, missing, nil
}

// notifyWarningTopic posts into the configured warning topic.
func (h *Handler) notifyWarningTopic(ctx context.Context, text string) {
	h.notifyWarningTopicMarkup(ctx, text, nil)
}

func (h *Handler) notifyWarningTopicMarkup(ctx context.Context, text string, markup *telego.InlineKeyboardMarkup) {
	_, err := h.gw.SendMessage(ctx, h.cfg.Enforce.GroupID, h.cfg.Enforce.WarningTopicID, text, markup)
	if err != nil {
		logger.Warningf("Failed to post to warning topic: %v", err)
	}
}

// unbanMarkup builds the admin-only button attached to restriction notices.
func unbanMarkup(groupID, userID int64) *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{{
			{
				Text:         msgUnbanButton,
				CallbackData: fmt.Sprintf("unban:%d:%d", groupID, userID),
			},
		}},
	}
}

func formatHours(hours int) string {
	if hours%24 == 0 && hours >= 24 {
		days := hours / 24
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
