package enforce

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/storage"
)

func newTestRepos(t *testing.T) (*storage.ViolationRepository, *storage.CaptchaRepository) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Logger.Level = "ERROR"

	db, err := storage.Initialize(cfg)
	require.NoError(t, err)

	violations := storage.NewViolationRepository(db)
	require.NoError(t, violations.MigrateTable())
	captchas := storage.NewCaptchaRepository(db)
	require.NoError(t, captchas.MigrateTable())

	return violations, captchas
}
