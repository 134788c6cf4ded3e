package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// migrationsList holds all migrations
var migrationsList []*gormigrate.Migration

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, logger *logrus.Logger) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("could not migrate: %w", err)
	}
	logger.WithField("count", len(migrationsList)).Info("Migrations ran successfully")
	return nil
}

// RollbackLast reverts the most recent migration
func RollbackLast(db *gorm.DB, logger *logrus.Logger) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)

	if err := m.RollbackLast(); err != nil {
		return fmt.Errorf("could not roll back: %w", err)
	}
	logger.Info("Rolled back last migration")
	return nil
}

// IDs lists registered migration ids in order
func IDs() []string {
	ids := make([]string, 0, len(migrationsList))
	for _, m := range migrationsList {
		ids = append(ids, m.ID)
	}
	return ids
}
