package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createNotificationsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_notifications_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS notifications (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL,
					company_id UUID NOT NULL,
					report_id UUID REFERENCES reports(id) ON DELETE SET NULL,
					type VARCHAR(20) NOT NULL DEFAULT 'info',
					title VARCHAR(255) NOT NULL,
					message TEXT NOT NULL,
					link VARCHAR(255),
					is_read BOOLEAN NOT NULL DEFAULT FALSE,
					read_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE is_read = FALSE;
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS notifications").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createNotificationsTableMigration())
}
