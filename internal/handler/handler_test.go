package handler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/enforce"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// fakeGateway records platform calls so handler flows can be asserted
// without a live bot.
type fakeGateway struct {
	member    telego.ChatMember
	hasPhotos bool

	sent         []string
	deleted      []int
	restricted   []int64
	unrestricted []int64
	edited       []string
}

func (g *fakeGateway) SendMessage(_ context.Context, _ int64, _ int, text string, _ *telego.InlineKeyboardMarkup) (int, error) {
	g.sent = append(g.sent, text)
	return len(g.sent), nil
}

func (g *fakeGateway) EditMessage(_ context.Context, _ int64, _ int, text string) error {
	g.edited = append(g.edited, text)
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) RestrictMember(_ context.Context, _ int64, userID int64) error {
	g.restricted = append(g.restricted, userID)
	return nil
}

func (g *fakeGateway) UnrestrictMember(_ context.Context, _ int64, userID int64) error {
	g.unrestricted = append(g.unrestricted, userID)
	return nil
}

func (g *fakeGateway) GetMembership(context.Context, int64, int64) (telego.ChatMember, error) {
	return g.member, nil
}

func (g *fakeGateway) HasProfilePhotos(context.Context, int64) (bool, error) {
	return g.hasPhotos, nil
}

const (
	testGroupID = int64(-100)
	testAdminID = int64(900)
)

func newHandlerEnv(t *testing.T) (*Handler, *fakeGateway) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Logger.Level = "ERROR"
	cfg.Enforce.Enabled = true
	cfg.Enforce.GroupID = testGroupID
	cfg.Enforce.WarningTopicID = 99
	cfg.Enforce.RulesLink = "https://t.me/c/1/2"
	cfg.Enforce.WarningThreshold = 3
	cfg.Enforce.CaptchaTimeoutSeconds = 120
	cfg.Enforce.ProbationHours = 72
	cfg.Enforce.ProbationThreshold = 3

	db, err := storage.Initialize(cfg)
	require.NoError(t, err)
	violations := storage.NewViolationRepository(db)
	require.NoError(t, violations.MigrateTable())
	captchas := storage.NewCaptchaRepository(db)
	require.NoError(t, captchas.MigrateTable())
	whitelist := storage.NewWhitelistRepository(db)
	require.NoError(t, whitelist.MigrateTable())

	gw := &fakeGateway{member: &telego.ChatMemberMember{}, hasPhotos: true}

	h := &Handler{
		cfg:              cfg,
		botUsername:      "groupguard_bot",
		gw:               gw,
		profile:          enforce.NewTracker(violations, models.KindProfile, cfg.Enforce.WarningThreshold, 0),
		probation:        enforce.NewProbation(violations, cfg.Enforce.ProbationThreshold, cfg.Enforce.ProbationWindow()),
		captcha:          enforce.NewCaptcha(captchas, cfg.Enforce.CaptchaTimeout()),
		whitelist:        whitelist,
		violations:       violations,
		compliantCache:   models.NewUserCache(30),
		whitelistDomains: map[string]struct{}{},
		adminIDs:         map[int64]bool{testAdminID: true},
	}
	return h, gw
}

func dmMessage(userID int64, username string) telego.Message {
	return telego.Message{
		MessageID: 7,
		Chat:      telego.Chat{ID: userID, Type: "private"},
		From:      &telego.User{ID: userID, FirstName: "Ann", Username: username},
	}
}

func TestWarningTopicGuardDeletesNonAdminPosts(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()

	message := telego.Message{
		MessageID:       11,
		MessageThreadID: 99,
		Chat:            telego.Chat{ID: testGroupID, Type: "supergroup"},
		From:            &telego.User{ID: 42, FirstName: "Ann"},
	}

	assert.True(t, h.guardWarningTopic(ctx, message))
	assert.Equal(t, []int{11}, gw.deleted)
}

func TestWarningTopicGuardAllowsAdmins(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()

	message := telego.Message{
		MessageID:       11,
		MessageThreadID: 99,
		Chat:            telego.Chat{ID: testGroupID, Type: "supergroup"},
		From:            &telego.User{ID: testAdminID, FirstName: "Mod"},
	}

	assert.False(t, h.guardWarningTopic(ctx, message))
	assert.Empty(t, gw.deleted)
}

func TestWarningTopicGuardIgnoresOtherTopics(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()

	message := telego.Message{
		MessageID:       11,
		MessageThreadID: 5,
		Chat:            telego.Chat{ID: testGroupID, Type: "supergroup"},
		From:            &telego.User{ID: 42, FirstName: "Ann"},
	}

	assert.False(t, h.guardWarningTopic(ctx, message))
	assert.Empty(t, gw.deleted)
}

func TestDMUnrestrictsCompliantUser(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()
	key := storage.Key{GroupID: testGroupID, UserID: 42}

	// Drive the warning cycle to a system restriction.
	for i := 0; i < 3; i++ {
		_, err := h.profile.RecordViolation(ctx, key, time.Now())
		require.NoError(t, err)
	}
	rec, err := h.profile.Status(ctx, key)
	require.NoError(t, err)
	require.True(t, rec.Restricted)

	gw.member = &telego.ChatMemberRestricted{}

	require.NoError(t, h.handleDM(ctx, dmMessage(42, "ann")))

	assert.Equal(t, []int64{42}, gw.unrestricted)
	rec, err = h.profile.Status(ctx, key)
	require.NoError(t, err)
	assert.False(t, rec.Restricted)
	assert.Equal(t, 0, rec.Count)

	// One notice to the warning topic, one reply to the user.
	require.Len(t, gw.sent, 2)
	assert.Contains(t, gw.sent[0], "unrestricted via direct message")
	assert.Equal(t, msgDMUnrestricted, gw.sent[1])
}

func TestDMIncompleteProfileKeepsRestriction(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()
	key := storage.Key{GroupID: testGroupID, UserID: 42}

	for i := 0; i < 3; i++ {
		_, err := h.profile.RecordViolation(ctx, key, time.Now())
		require.NoError(t, err)
	}

	gw.member = &telego.ChatMemberRestricted{}
	gw.hasPhotos = false

	require.NoError(t, h.handleDM(ctx, dmMessage(42, "ann")))

	assert.Empty(t, gw.unrestricted)
	require.Len(t, gw.sent, 1)
	assert.True(t, strings.Contains(gw.sent[0], "public profile photo"))
}

func TestDMPendingCaptchaRedirectsToGroup(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()
	key := storage.Key{GroupID: testGroupID, UserID: 42}

	_, err := h.captcha.Create(ctx, key, enforce.ChallengeMeta{}, time.Now())
	require.NoError(t, err)
	gw.member = &telego.ChatMemberRestricted{}

	require.NoError(t, h.handleDM(ctx, dmMessage(42, "ann")))

	assert.Empty(t, gw.unrestricted)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, msgDMPendingCaptcha, gw.sent[0])
}

func TestDMWithoutRestrictionJustReplies(t *testing.T) {
	h, gw := newHandlerEnv(t)
	ctx := context.Background()

	require.NoError(t, h.handleDM(ctx, dmMessage(42, "ann")))

	assert.Empty(t, gw.unrestricted)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, msgDMNoRestriction, gw.sent[0])
}
