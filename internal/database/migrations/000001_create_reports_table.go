package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createReportsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_reports_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "pgcrypto";

				CREATE TABLE IF NOT EXISTS reports (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					title VARCHAR(255) NOT NULL,
					description TEXT,
					report_type VARCHAR(50) NOT NULL,
					status VARCHAR(50) NOT NULL DEFAULT 'draft',
					owner_id UUID NOT NULL,
					company_id UUID NOT NULL,
					tenant_id UUID,
					country_code VARCHAR(10),
					tax_types JSONB,
					file_reference VARCHAR(500),
					file_name VARCHAR(255),
					file_size BIGINT,
					submitted_at TIMESTAMP WITH TIME ZONE,
					reviewed_at TIMESTAMP WITH TIME ZONE,
					reviewed_by UUID,
					reviewer_comments TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					CONSTRAINT reports_status_check CHECK (status IN ('draft', 'submitted', 'under_review', 'approved', 'rejected')),
					CONSTRAINT reports_submitted_at_check CHECK ((status = 'draft') = (submitted_at IS NULL)),
					CONSTRAINT reports_reviewed_at_check CHECK ((status IN ('approved', 'rejected')) = (reviewed_at IS NOT NULL))
				);

				CREATE INDEX IF NOT EXISTS idx_reports_company_status ON reports(company_id, status);
				CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports(owner_id);
				CREATE INDEX IF NOT EXISTS idx_reports_submitted_at ON reports(submitted_at) WHERE status = 'submitted';
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS reports").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReportsTableMigration())
}
