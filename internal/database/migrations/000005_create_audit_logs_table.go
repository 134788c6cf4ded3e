package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createAuditLogsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_audit_logs_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS audit_logs (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					actor_id UUID,
					actor_role VARCHAR(20),
					company_id UUID,
					report_id UUID,
					event_type VARCHAR(40) NOT NULL,
					description TEXT,
					details JSONB,
					success BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_report ON audit_logs(report_id, timestamp);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_company ON audit_logs(company_id, timestamp);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS audit_logs").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createAuditLogsTableMigration())
}
