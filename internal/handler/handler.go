package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/enforce"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Handler is the thin dispatch layer between Telegram updates and the
// enforcement engine. It translates updates into tracker/lifecycle calls and
// decisions into gateway calls; it holds no record state of its own.
type Handler struct {
	cfg         *config.Config
	bot         *telego.Bot
	botUsername string
	gw          gateway.Gateway
	profile    *enforce.Tracker
	probation  *enforce.Probation
	captcha    *enforce.Captcha
	reconciler *enforce.Reconciler
	whitelist  *storage.WhitelistRepository
	violations *storage.ViolationRepository
	groupRepo  *storage.GroupRepository
	groups     *models.GroupInfoManager

	// compliantCache skips profile-photo API calls for users who recently
	// passed the check.
	compliantCache *models.UserCache

	whitelistDomains map[string]struct{}

	adminMu  sync.RWMutex
	adminIDs map[int64]bool
}

// New wires the handler. All collaborators are constructed once at startup
// and injected; nothing here is a package-level singleton.
func New(
	cfg *config.Config,
	bot *telego.Bot,
	botUsername string,
	gw gateway.Gateway,
	profile *enforce.Tracker,
	probation *enforce.Probation,
	captcha *enforce.Captcha,
	reconciler *enforce.Reconciler,
	whitelist *storage.WhitelistRepository,
	violations *storage.ViolationRepository,
	groupRepo *storage.GroupRepository,
	groups *models.GroupInfoManager,
) *Handler {
	domains := make(map[string]struct{}, len(cfg.Enforce.WhitelistDomains))
	for _, d := range cfg.Enforce.WhitelistDomains {
		domains[strings.ToLower(d)] = struct{}{}
	}

	return &Handler{
		cfg:              cfg,
		bot:              bot,
		botUsername:      botUsername,
		gw:               gw,
		profile:          profile,
		probation:        probation,
		captcha:          captcha,
		reconciler:       reconciler,
		whitelist:        whitelist,
		violations:       violations,
		groupRepo:        groupRepo,
		groups:           groups,
		compliantCache:   models.NewUserCache(30),
		whitelistDomains: domains,
		adminIDs:         make(map[int64]bool),
	}
}

// Setup registers all update handlers on the bot handler.
func (h *Handler) Setup(bh *th.BotHandler) {
	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		defer crash.RecoverWithStack("message-handler")

		if message.From == nil || message.From.IsBot {
			return nil
		}

		if message.Chat.Type == "private" {
			return h.handleCommand(ctx, message)
		}

		return h.handleGroupMessage(ctx, message)
	})

	bh.Handle(func(ctx *th.Context, update telego.Update) error {
		defer crash.RecoverWithStack("chat-member-handler")
		return h.handleChatMemberUpdate(ctx, update)
	}, th.AnyChatMember())

	bh.HandleCallbackQuery(func(ctx *th.Context, query telego.CallbackQuery) error {
		defer crash.RecoverWithStack("callback-handler")
		return h.handleCallbackQuery(ctx, query)
	})
}

// RefreshAdmins fetches and caches the monitored group's administrator IDs.
// Called once at startup; DM commands are gated on this set.
func (h *Handler) RefreshAdmins(ctx context.Context) error {
	admins, err := h.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: telego.ChatID{ID: h.cfg.Enforce.GroupID},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch group administrators: %w", err)
	}

	h.adminMu.Lock()
	defer h.adminMu.Unlock()
	h.adminIDs = make(map[int64]bool, len(admins))
	for _, admin := range admins {
		h.adminIDs[admin.MemberUser().ID] = true
	}
	logger.Infof("Cached %d admin(s) for group %d", len(admins), h.cfg.Enforce.GroupID)
	return nil
}

func (h *Handler) isAdmin(userID int64) bool {
	h.adminMu.RLock()
	defer h.adminMu.RUnlock()
	return h.adminIDs[userID]
}

// isGroupAdmin checks live membership, used where the cached set may lag
// (unban button pressed by a freshly promoted admin).
func (h *Handler) isGroupAdmin(ctx context.Context, chatID, userID int64) bool {
	if h.isAdmin(userID) {
		return true
	}
	member, err := h.gw.GetMembership(ctx, chatID, userID)
	if err != nil {
		logger.Warningf("Error checking membership of user %d in chat %d: %v", userID, chatID, err)
		return false
	}
	status := member.MemberStatus()
	return status == telego.MemberStatusAdministrator || status == telego.MemberStatusCreator
}

// GetLinkedUserName returns an HTML profile link for a user.
func GetLinkedUserName(user telego.User) string {
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}

	displayName = strings.ReplaceAll(displayName, "&", "&amp;")
	displayName = strings.ReplaceAll(displayName, "<", "&lt;")
	displayName = strings.ReplaceAll(displayName, ">", "&gt;")

	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", user.ID, displayName)
}

// dmLink is the appeal link attached to restriction notices.
func (h *Handler) dmLink() string {
	return "https://t.me/" + h.botUsername
}

// linkedUserNameByID builds the same profile link from stored record data.
func linkedUserNameByID(userID int64, name string) string {
	if name == "" {
		name = fmt.Sprintf("user %d", userID)
	}
	name = strings.ReplaceAll(name, "&", "&amp;")
	name = strings.ReplaceAll(name, "<", "&lt;")
	name = strings.ReplaceAll(name, ">", "&gt;")
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", userID, name)
}
