package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// handleDM is the self-service unrestriction flow. A user restricted for an
// incomplete profile can message the bot after fixing it; once the profile
// checks out, the bot lifts its own restriction without an admin.
func (h *Handler) handleDM(ctx context.Context, message telego.Message) error {
	user := *message.From
	groupID := h.cfg.Enforce.GroupID
	key := storage.Key{GroupID: groupID, UserID: user.ID}

	member, err := h.gw.GetMembership(ctx, groupID, user.ID)
	if err != nil {
		logger.Warningf("Membership lookup failed for user %d: %v", user.ID, err)
		return h.reply(ctx, message.Chat.ID, msgDMNotInGroup)
	}
	status := member.MemberStatus()
	if status == telego.MemberStatusLeft || status == telego.MemberStatusBanned {
		return h.reply(ctx, message.Chat.ID, msgDMNotInGroup)
	}

	// An unanswered captcha is resolved in the group, not here.
	if rec, err := h.captcha.Status(ctx, key); err == nil && rec.Status == models.CaptchaPending {
		return h.reply(ctx, message.Chat.ID, msgDMPendingCaptcha)
	}

	complete, missing, err := h.checkProfile(ctx, user)
	if err != nil {
		logger.Warningf("Profile check failed for user %d: %v", user.ID, err)
		return nil
	}
	if !complete {
		text := fmt.Sprintf(msgDMIncompleteProfile,
			strings.Join(missing, " and "), h.cfg.Enforce.RulesLink)
		return h.reply(ctx, message.Chat.ID, text)
	}

	rec, err := h.profile.Status(ctx, key)
	if err != nil || !rec.Restricted || rec.RestrictedBy != models.ActorSystem {
		return h.reply(ctx, message.Chat.ID, msgDMNoRestriction)
	}

	// An admin may have lifted the chat restriction already; only the
	// record is left to clear.
	if status != telego.MemberStatusRestricted {
		if err := h.profile.Reset(ctx, key, models.ActorSystem); err != nil {
			logger.Warningf("Failed to reset warning record for user %d: %v", user.ID, err)
		}
		h.compliantCache.Add(user.ID)
		return h.reply(ctx, message.Chat.ID, msgDMAlreadyUnrestricted)
	}

	if err := h.gw.UnrestrictMember(ctx, groupID, user.ID); err != nil {
		logger.Errorf("Failed to unrestrict user %d via DM: %v", user.ID, err)
		return h.reply(ctx, message.Chat.ID, "Failed to lift the restriction, please try again later.")
	}
	if err := h.profile.Reset(ctx, key, models.ActorSystem); err != nil {
		logger.Warningf("Failed to reset warning record for user %d: %v", user.ID, err)
	}
	h.compliantCache.Add(user.ID)

	h.notifyWarningTopic(ctx, fmt.Sprintf(msgDMUnrestrictNotice, GetLinkedUserName(user)))
	logger.Infof("User %d unrestricted via DM", user.ID)
	return h.reply(ctx, message.Chat.ID, msgDMUnrestricted)
}
