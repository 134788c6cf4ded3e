package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createReportCommentsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_report_comments_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS report_comments (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					report_id UUID NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
					author_id UUID NOT NULL,
					company_id UUID NOT NULL,
					body TEXT NOT NULL CHECK (length(btrim(body)) > 0),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_report_comments_report_created ON report_comments(report_id, created_at);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS report_comments").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReportCommentsTableMigration())
}
