package handler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/enforce"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// handleChatMemberUpdate restricts newly joined members and challenges them
// with a math captcha.
func (h *Handler) handleChatMemberUpdate(ctx *th.Context, update telego.Update) error {
	if update.ChatMember == nil {
		return nil
	}
	if update.ChatMember.Chat.ID != h.cfg.Enforce.GroupID {
		return nil
	}

	newMember := update.ChatMember.NewChatMember
	oldStatus := update.ChatMember.OldChatMember.MemberStatus()
	user := newMember.MemberUser()

	if user.IsBot {
		return nil
	}
	if newMember.MemberStatus() != telego.MemberStatusMember {
		return nil
	}
	// Only fresh joins, not restriction or promotion changes.
	if oldStatus != telego.MemberStatusLeft && oldStatus != telego.MemberStatusBanned {
		return nil
	}

	logger.Infof("New member %d joined group %d", user.ID, update.ChatMember.Chat.ID)
	return h.challengeNewMember(ctx.Context(), update.ChatMember.Chat.ID, user)
}

// challengeNewMember mutes the user, posts a math problem with answer
// buttons and opens the captcha countdown.
func (h *Handler) challengeNewMember(ctx context.Context, groupID int64, user telego.User) error {
	if err := h.gw.RestrictMember(ctx, groupID, user.ID); err != nil {
		logger.Warningf("Failed to restrict new member %d: %v", user.ID, err)
		return err
	}

	num1 := rand.Intn(100)
	num2 := rand.Intn(100)
	operators := []string{"+", "-", "*"}
	operator := operators[rand.Intn(len(operators))]

	var answer int
	switch operator {
	case "+":
		answer = num1 + num2
	case "-":
		answer = num1 - num2
	case "*":
		answer = num1 * num2
	}

	userLink := GetLinkedUserName(user)
	text := fmt.Sprintf(msgCaptchaChallenge, userLink,
		int(h.captcha.Timeout().Seconds()), num1, operator, num2)
	markup := buildCaptchaKeyboard(groupID, user.ID, answer)

	messageID, err := h.gw.SendMessage(ctx, groupID, 0, text, markup)
	if err != nil {
		logger.Warningf("Failed to send captcha challenge to user %d: %v", user.ID, err)
		return err
	}

	key := storage.Key{GroupID: groupID, UserID: user.ID}
	meta := enforce.ChallengeMeta{
		ChatID:    groupID,
		MessageID: messageID,
		UserName:  user.FirstName,
	}
	rec, err := h.captcha.Create(ctx, key, meta, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyPending) {
			// A challenge is already running, drop the duplicate message.
			h.gw.DeleteMessage(ctx, groupID, messageID)
			return nil
		}
		logger.Errorf("Failed to create captcha for user %d: %v", user.ID, err)
		return err
	}

	h.reconciler.Arm(rec, time.Now())
	logger.Infof("Captcha created for user %d, deadline %s", user.ID, rec.Deadline.Format(time.RFC3339))
	return nil
}

// buildCaptchaKeyboard puts the correct answer among three decoys in random
// order. Correctness is encoded in the callback data.
func buildCaptchaKeyboard(groupID, userID int64, answer int) *telego.InlineKeyboardMarkup {
	options := make([]telego.InlineKeyboardButton, 0, 4)
	options = append(options, telego.InlineKeyboardButton{
		Text:         fmt.Sprintf("%d", answer),
		CallbackData: fmt.Sprintf("captcha:%d:%d:ok", groupID, userID),
	})
	seen := map[int]bool{answer: true}
	for i := 0; len(options) < 4; i++ {
		decoy := answer + rand.Intn(41) - 20
		if seen[decoy] {
			continue
		}
		seen[decoy] = true
		options = append(options, telego.InlineKeyboardButton{
			Text:         fmt.Sprintf("%d", decoy),
			CallbackData: fmt.Sprintf("captcha:%d:%d:no:%d", groupID, userID, i),
		})
	}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{options},
	}
}

// OnCaptchaExpired edits the challenge message once the countdown elapsed
// without a correct answer. Wired as a sweeper and reconciler hook.
func (h *Handler) OnCaptchaExpired(ctx context.Context, rec *models.CaptchaRecord) {
	if rec.ChatID == 0 || rec.MessageID == 0 {
		return
	}
	userLink := linkedUserNameByID(rec.UserID, rec.UserName)
	text := fmt.Sprintf(msgCaptchaExpired, userLink)
	if err := h.gw.EditMessage(ctx, rec.ChatID, rec.MessageID, text); err != nil {
		logger.Warningf("Failed to edit expired captcha message for user %d: %v", rec.UserID, err)
	}
}

// OnEscalated posts a notice when the sweeper restricts a user whose oldest
// unresolved warning went stale. Wired as a sweeper hook.
func (h *Handler) OnEscalated(ctx context.Context, esc enforce.Escalation) {
	if err := h.gw.RestrictMember(ctx, esc.Key.GroupID, esc.Key.UserID); err != nil {
		logger.Warningf("Failed to restrict stale-warned user %d: %v", esc.Key.UserID, err)
		return
	}
	userLink := linkedUserNameByID(esc.Key.UserID, "")
	text := fmt.Sprintf(msgTimeRestricted, userLink, h.cfg.Enforce.RulesLink, h.dmLink())
	h.notifyWarningTopicMarkup(ctx, text, unbanMarkup(esc.Key.GroupID, esc.Key.UserID))
	logger.Infof("Escalated stale warnings for user %d, count %d", esc.Key.UserID, esc.Count)
}
