package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createReportAnalysesTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_report_analyses_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS report_analyses (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					report_id UUID NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
					company_id UUID NOT NULL,
					country_code VARCHAR(10),
					tax_types JSONB,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					overall_score INT CHECK (overall_score BETWEEN 0 AND 100),
					total_checks INT NOT NULL DEFAULT 0,
					passed_checks INT NOT NULL DEFAULT 0,
					errors INT NOT NULL DEFAULT 0,
					warnings INT NOT NULL DEFAULT 0,
					error_details JSONB,
					failure_reason TEXT,
					started_at TIMESTAMP WITH TIME ZONE,
					completed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_report_analyses_report_created ON report_analyses(report_id, created_at DESC);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS report_analyses").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReportAnalysesTableMigration())
}
