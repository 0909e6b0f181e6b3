package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationSeedLaunchCatalog = "2024-06-01_seed_launch_catalog"
	migrationSeedDemoProfiles  = "2024-06-01_seed_demo_profiles"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

type demoProfile struct {
	key         string
	accountID   string
	displayName string
	balance     int64
}

var demoProfiles = []demoProfile{
	{key: "vip123@", accountID: "vip_user", displayName: "VIP Member 👑", balance: 9999},
	{key: "test123@", accountID: "test_user", displayName: "Member", balance: 500},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedLaunchCatalog, apply: seedLaunchCatalog},
		{name: migrationSeedDemoProfiles, apply: seedDemoProfiles},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedLaunchCatalog lists the launch documents so that the first one lists first.
func seedLaunchCatalog(db *gorm.DB) error {
	base := time.Now().UTC()
	for index, document := range catalog.LaunchDocuments() {
		record := catalog.NewDocumentRecord(document, base.Add(-time.Duration(index)*time.Second))
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedDemoProfiles(db *gorm.DB) error {
	for _, demo := range demoProfiles {
		profile, err := profiles.NewProfile(demo.key, demo.accountID, demo.displayName, demo.balance)
		if err != nil {
			return err
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error; err != nil {
			return err
		}
	}
	return nil
}
