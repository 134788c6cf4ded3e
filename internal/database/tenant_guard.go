package database

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/regdesk/backend/internal/models"
)

const tenantColumn = "company_id"

type contextKey string

const (
	contextKeyCompanyID       contextKey = "tenant_guard.company_id"
	contextKeySkipTenantScope contextKey = "tenant_guard.skip"
)

// WithCompanyScope restricts every guarded statement run with ctx to companyID
func WithCompanyScope(ctx context.Context, companyID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKeyCompanyID, companyID)
}

// WithoutCompanyScope marks ctx as cross-tenant (superadmin and scheduled jobs)
func WithoutCompanyScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeySkipTenantScope, true)
}

// ScopeContext applies the tenant scope that matches actor
func ScopeContext(ctx context.Context, actor models.Actor) context.Context {
	if actor.CrossTenant() {
		return WithoutCompanyScope(ctx)
	}
	return WithCompanyScope(ctx, actor.CompanyID)
}

// CompanyFromContext returns the scoped company, if any
func CompanyFromContext(ctx context.Context) (uuid.UUID, bool) {
	if v, ok := ctx.Value(contextKeyCompanyID).(uuid.UUID); ok && v != uuid.Nil {
		return v, true
	}
	return uuid.Nil, false
}

func shouldBypassTenantScope(ctx context.Context) bool {
	v, ok := ctx.Value(contextKeySkipTenantScope).(bool)
	return ok && v
}

// TenantGuardPlugin scopes queries, updates and deletes on tables with a
// company_id column to the company carried by the statement context.
//
// Raw SQL is not guarded.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassTenantScope(ctx) {
		return
	}
	companyID, ok := CompanyFromContext(ctx)
	if !ok {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	if _, ok := db.Statement.Schema.FieldsByDBName[tenantColumn]; !ok {
		return
	}

	if whereHasTenantColumn(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn},
				Value:  companyID,
			},
		},
	})
}

func whereHasTenantColumn(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasTenantColumn(e) {
			return true
		}
	}
	return false
}

func exprHasTenantColumn(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isTenantColumn(v.Column)
	case clause.Neq:
		return isTenantColumn(v.Column)
	case clause.IN:
		return isTenantColumn(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasTenantColumn(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasTenantColumn(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	default:
		return false
	}
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	default:
		return false
	}
}
