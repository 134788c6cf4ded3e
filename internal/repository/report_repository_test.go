package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
)

type statement struct {
	SQL  string
	Vars []interface{}
}

// recordingPool is a gorm.ConnPool that records writes instead of running them.
// Selects cannot return fake *sql.Rows, so they are built in DryRun sessions.
type recordingPool struct {
	mu           sync.Mutex
	rowsAffected int64
	execs        []statement
	queries      []statement
	commits      int
	rollbacks    int
}

func (p *recordingPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, errors.New("prepared statements are not recorded")
}

func (p *recordingPool) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execs = append(p.execs, statement{SQL: query, Vars: args})
	return driver.RowsAffected(p.rowsAffected), nil
}

func (p *recordingPool) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("selects must run in a DryRun session")
}

func (p *recordingPool) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (p *recordingPool) BeginTx(ctx context.Context, opts *sql.TxOptions) (gorm.ConnPool, error) {
	return &recordingTx{recordingPool: p}, nil
}

func (p *recordingPool) lastQuery(t *testing.T) statement {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.queries)
	return p.queries[len(p.queries)-1]
}

type recordingTx struct {
	*recordingPool
}

func (t *recordingTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *recordingTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

// newRecordingDB opens a postgres-dialect gorm.DB with the tenant guard over a recordingPool
func newRecordingDB(t *testing.T) (*gorm.DB, *recordingPool) {
	t.Helper()
	pool := &recordingPool{rowsAffected: 1}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: pool}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Use(database.NewTenantGuardPlugin()))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:record_query", func(tx *gorm.DB) {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		pool.queries = append(pool.queries, statement{SQL: tx.Statement.SQL.String(), Vars: tx.Statement.Vars})
	}))
	return db, pool
}

func dryRun(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{DryRun: true})
}

func TestApplyTransitionIsCompareAndSet(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(db)
	company, id := uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)
	at := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	err := repo.ApplyTransition(ctx, id, models.ReportStatusDraft, TransitionChange{
		To:          models.ReportStatusSubmitted,
		At:          at,
		SubmittedAt: &at,
	})
	require.NoError(t, err)

	require.Len(t, pool.execs, 1)
	stmt := pool.execs[0]
	assert.True(t, strings.HasPrefix(stmt.SQL, `UPDATE "reports" SET "status"=$1,"submitted_at"=$2,"updated_at"=$3 `), stmt.SQL)
	assert.Contains(t, stmt.SQL, `WHERE (id = $4 AND status = $5) AND "reports"."company_id" = $6`)
	require.Len(t, stmt.Vars, 6)
	assert.Equal(t, models.ReportStatusSubmitted, stmt.Vars[0])
	assert.Equal(t, id, stmt.Vars[3])
	assert.Equal(t, models.ReportStatusDraft, stmt.Vars[4])
	assert.Equal(t, company, stmt.Vars[5])

	pool.rowsAffected = 0
	err = repo.ApplyTransition(ctx, id, models.ReportStatusDraft, TransitionChange{To: models.ReportStatusSubmitted, At: at})
	assert.ErrorIs(t, err, ErrStaleStatus)
}

func TestApplyTransitionWritesReviewFields(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(db)
	reviewer := uuid.New()
	comment := "missing schedules"
	at := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	err := repo.ApplyTransition(context.Background(), uuid.New(), models.ReportStatusUnderReview, TransitionChange{
		To:               models.ReportStatusRejected,
		At:               at,
		ReviewedAt:       &at,
		ReviewedBy:       &reviewer,
		ReviewerComments: &comment,
	})
	require.NoError(t, err)

	require.Len(t, pool.execs, 1)
	stmt := pool.execs[0]
	assert.Contains(t, stmt.SQL, `SET "reviewed_at"=$1,"reviewed_by"=$2,"reviewer_comments"=$3,"status"=$4,"updated_at"=$5`)
	// no tenant scope on the context, so only the status guard remains
	assert.Contains(t, stmt.SQL, `WHERE id = $6 AND status = $7`)
	assert.NotContains(t, stmt.SQL, "company_id")
	assert.Equal(t, models.ReportStatusUnderReview, stmt.Vars[6])
}

func TestUpdateDraftGuardsStatus(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(db)
	company, id := uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)

	require.NoError(t, repo.UpdateDraft(ctx, id, map[string]interface{}{"title": "VAT Q2"}))

	require.Len(t, pool.execs, 1)
	stmt := pool.execs[0]
	assert.Contains(t, stmt.SQL, `SET "title"=$1,"updated_at"=$2`)
	assert.Contains(t, stmt.SQL, `WHERE (id = $3 AND status = $4) AND "reports"."company_id" = $5`)
	assert.Equal(t, models.ReportStatusDraft, stmt.Vars[3])

	pool.rowsAffected = 0
	err := repo.UpdateDraft(ctx, id, map[string]interface{}{"title": "VAT Q2"})
	assert.ErrorIs(t, err, ErrStaleStatus)
}

func TestDeleteGuardsStatusInTransaction(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(db)
	company, id := uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)

	require.NoError(t, repo.Delete(ctx, id, models.ReportStatusDraft))

	require.Len(t, pool.execs, 3)
	assert.Contains(t, pool.execs[0].SQL, `DELETE FROM "reports" WHERE (id = $1 AND status = $2) AND "reports"."company_id" = $3`)
	assert.Equal(t, models.ReportStatusDraft, pool.execs[0].Vars[1])
	assert.Contains(t, pool.execs[1].SQL, `DELETE FROM "report_comments" WHERE report_id = $1 AND "report_comments"."company_id" = $2`)
	assert.Contains(t, pool.execs[2].SQL, `DELETE FROM "report_analyses" WHERE report_id = $1 AND "report_analyses"."company_id" = $2`)
	assert.Equal(t, 1, pool.commits)
	assert.Zero(t, pool.rollbacks)

	pool.execs = nil
	pool.rowsAffected = 0
	err := repo.Delete(ctx, id, models.ReportStatusDraft)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.Len(t, pool.execs, 1)
	assert.Equal(t, 1, pool.rollbacks)
}

func TestFindByIDForUpdateLocksRow(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(dryRun(db))
	company, id := uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)

	_, err := repo.FindByIDForUpdate(ctx, id)
	require.NoError(t, err)

	stmt := pool.lastQuery(t)
	assert.True(t, strings.HasPrefix(stmt.SQL, `SELECT * FROM "reports" WHERE id = $1 AND "reports"."company_id" = $2`), stmt.SQL)
	assert.True(t, strings.HasSuffix(stmt.SQL, " FOR UPDATE"), stmt.SQL)
	assert.Equal(t, id, stmt.Vars[0])
	assert.Equal(t, company, stmt.Vars[1])

	_, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, pool.lastQuery(t).SQL, "FOR UPDATE")
}

func TestTenantGuardScopesQueries(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewReportRepository(dryRun(db))
	company, id := uuid.New(), uuid.New()

	t.Run("scoped context adds the company filter", func(t *testing.T) {
		_, err := repo.FindByID(database.WithCompanyScope(context.Background(), company), id)
		require.NoError(t, err)
		stmt := pool.lastQuery(t)
		assert.Contains(t, stmt.SQL, `"reports"."company_id" = $2`)
		assert.Contains(t, stmt.Vars, company)
	})

	t.Run("cross tenant context is left alone", func(t *testing.T) {
		ctx := database.WithoutCompanyScope(database.WithCompanyScope(context.Background(), company))
		_, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, pool.lastQuery(t).SQL, "company_id")
	})

	t.Run("explicit company filter is not doubled", func(t *testing.T) {
		other := uuid.New()
		ctx := database.WithCompanyScope(context.Background(), company)
		_, _, err := repo.List(ctx, ReportFilter{CompanyID: &other})
		require.NoError(t, err)

		stmt := pool.lastQuery(t)
		assert.Equal(t, 1, strings.Count(stmt.SQL, "company_id"), stmt.SQL)
		assert.Contains(t, stmt.Vars, other)
		assert.NotContains(t, stmt.Vars, company)
	})

	t.Run("other tables with company_id are guarded", func(t *testing.T) {
		ctx := database.WithCompanyScope(context.Background(), company)
		_, err := NewCommentRepository(dryRun(db)).ListByReport(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, pool.lastQuery(t).SQL, `"report_comments"."company_id" = $2`)
	})
}

func TestAnalysisListForReportNewestFirst(t *testing.T) {
	db, pool := newRecordingDB(t)
	company, reportID := uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)

	_, err := NewAnalysisRepository(dryRun(db)).ListForReport(ctx, reportID)
	require.NoError(t, err)

	stmt := pool.lastQuery(t)
	assert.Contains(t, stmt.SQL, `FROM "report_analyses" WHERE report_id = $1 AND "report_analyses"."company_id" = $2 ORDER BY created_at DESC`)
	assert.Equal(t, reportID, stmt.Vars[0])
}

func TestNotificationMarkReadIsOwnerOnly(t *testing.T) {
	db, pool := newRecordingDB(t)
	repo := NewNotificationRepository(db)
	company, id, user := uuid.New(), uuid.New(), uuid.New()
	ctx := database.WithCompanyScope(context.Background(), company)
	at := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.MarkRead(ctx, id, user, at))

	require.Len(t, pool.execs, 1)
	stmt := pool.execs[0]
	assert.Contains(t, stmt.SQL, `UPDATE "notifications" SET "is_read"=$1,"read_at"=COALESCE(read_at, $2)`)
	assert.Regexp(t, `WHERE \(id = \$\d+ AND user_id = \$\d+\) AND "notifications"."company_id" = \$\d+$`, stmt.SQL)
	assert.Contains(t, stmt.Vars, user)

	pool.rowsAffected = 0
	err := repo.MarkRead(ctx, id, uuid.New(), at)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
