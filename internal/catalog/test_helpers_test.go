package catalog

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func sampleDocuments() []Document {
	return LaunchDocuments()
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "catalog.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&DocumentRecord{}))
	return db
}

// newSeededGormStore inserts documents so that the first one lists first.
func newSeededGormStore(t *testing.T, documents ...Document) *GormStore {
	t.Helper()
	db := openTestDatabase(t)
	base := time.Unix(1700000000, 0)
	for index, document := range documents {
		record := NewDocumentRecord(document, base.Add(-time.Duration(index)*time.Second))
		require.NoError(t, db.Create(&record).Error)
	}
	tick := base
	store, err := NewGormStore(GormStoreConfig{
		Database: db,
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return store
}
