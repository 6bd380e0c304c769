package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbmodel "github.com/lumichat/credit/model"
)

// setupTestDatabase points the db layer at a fresh in-memory SQLite database.
func setupTestDatabase(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&dbmodel.User{}, &dbmodel.Credit{}, &dbmodel.CreditLog{},
		&dbmodel.AIModel{}, &dbmodel.Chat{}))

	prev := dbmodel.DB
	dbmodel.DB = db
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
		dbmodel.DB = prev
	})
}

// stubTextTokens makes token counts deterministic: one token per byte. Length
// is additive over concatenation, which the stream tests rely on.
func stubTextTokens(t *testing.T) {
	t.Helper()
	prev := countTextTokensFn
	countTextTokensFn = func(modelID string, text string) int {
		return len(text)
	}
	t.Cleanup(func() { countTextTokensFn = prev })
}

func stubImageSize(t *testing.T, width int, height int, err error) {
	t.Helper()
	prev := getImageSizeFn
	getImageSizeFn = func(image string) (int, int, error) {
		return width, height, err
	}
	t.Cleanup(func() { getImageSizeFn = prev })
}
