package migrations

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsRegisteredInOrder(t *testing.T) {
	ids := IDs()

	assert.Equal(t, []string{
		"000001_create_reports_table",
		"000002_create_report_comments_table",
		"000003_create_report_templates_table",
		"000004_create_report_analyses_table",
		"000005_create_audit_logs_table",
		"000006_create_notifications_table",
	}, ids)
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestMigrationsHaveRollback(t *testing.T) {
	for _, m := range migrationsList {
		assert.NotNil(t, m.Migrate, m.ID)
		assert.NotNil(t, m.Rollback, m.ID)
	}
}
