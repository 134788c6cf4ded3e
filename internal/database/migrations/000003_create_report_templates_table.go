package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createReportTemplatesTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_report_templates_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS report_templates (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					name VARCHAR(255) NOT NULL,
					description TEXT,
					report_type VARCHAR(50) NOT NULL,
					country_code VARCHAR(10),
					tax_types JSONB,
					is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
					recurrence_pattern VARCHAR(50),
					created_by UUID NOT NULL,
					company_id UUID NOT NULL,
					tenant_id UUID,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_report_templates_company ON report_templates(company_id);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS report_templates").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReportTemplatesTableMigration())
}
