package workflow

import (
	"github.com/google/uuid"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
)

// Action is something an actor attempts on a report
type Action string

const (
	ActionCreate        Action = "create"
	ActionView          Action = "view"
	ActionUpdate        Action = "update"
	ActionSubmit        Action = "submit"
	ActionBeginReview   Action = "begin_review"
	ActionDecide        Action = "decide"
	ActionDelete        Action = "delete"
	ActionComment       Action = "comment"
	ActionDeleteComment Action = "delete_comment"
	ActionAnalyze       Action = "analyze"
	ActionDownload      Action = "download"

	ActionManageTemplate Action = "manage_template"
	ActionUseTemplate    Action = "use_template"
)

// InScope reports whether companyID falls inside the actor's tenant scope
func InScope(actor models.Actor, companyID uuid.UUID) bool {
	return actor.CrossTenant() || (actor.CompanyID != uuid.Nil && actor.CompanyID == companyID)
}

func owns(actor models.Actor, report *models.Report) bool {
	return actor.UserID != uuid.Nil && actor.UserID == report.OwnerID
}

// reviewer is an elevated role acting inside its scope
func reviewer(actor models.Actor, companyID uuid.UUID) bool {
	return actor.Role.Elevated() && InScope(actor, companyID)
}

// Permitted is the authorization matrix for actions on an existing report
func Permitted(actor models.Actor, action Action, report *models.Report) bool {
	if report == nil || !InScope(actor, report.CompanyID) {
		return false
	}

	switch action {
	case ActionView, ActionDownload:
		switch actor.Role {
		case models.RoleSuperAdmin, models.RoleSystem, models.RoleAdmin, models.RoleViewer:
			return true
		}
		return owns(actor, report)

	case ActionUpdate:
		return owns(actor, report) || actor.Role == models.RoleSuperAdmin

	case ActionSubmit:
		if reviewer(actor, report.CompanyID) {
			return true
		}
		return owns(actor, report) && actor.Role != models.RoleViewer

	case ActionBeginReview, ActionDecide:
		return reviewer(actor, report.CompanyID)

	case ActionDelete:
		if reviewer(actor, report.CompanyID) {
			return true
		}
		return owns(actor, report) && report.Status == models.ReportStatusDraft

	case ActionComment, ActionAnalyze:
		return owns(actor, report) || reviewer(actor, report.CompanyID)
	}
	return false
}

// Authorize returns Forbidden when the matrix denies action
func Authorize(actor models.Actor, action Action, report *models.Report) error {
	if !Permitted(actor, action, report) {
		return apperrors.Forbidden(string(action))
	}
	return nil
}

// AuthorizeCreate checks that actor may create reports for companyID
func AuthorizeCreate(actor models.Actor, companyID uuid.UUID) error {
	switch actor.Role {
	case models.RoleAccountant, models.RoleAuditor, models.RoleAdmin, models.RoleSuperAdmin:
	default:
		return apperrors.Forbidden(string(ActionCreate))
	}
	if !InScope(actor, companyID) {
		return apperrors.Forbidden(string(ActionCreate))
	}
	return nil
}

// AuthorizeCommentRemoval allows the comment's author or an elevated role in scope
func AuthorizeCommentRemoval(actor models.Actor, comment *models.Comment) error {
	if comment.AuthorID == actor.UserID && actor.UserID != uuid.Nil {
		return nil
	}
	if reviewer(actor, comment.CompanyID) {
		return nil
	}
	return apperrors.Forbidden(string(ActionDeleteComment))
}

// AuthorizeTemplate checks template actions. Managing an existing template
// requires its creator or an elevated role; createdBy is uuid.Nil on create.
func AuthorizeTemplate(actor models.Actor, action Action, companyID, createdBy uuid.UUID) error {
	if !InScope(actor, companyID) {
		return apperrors.Forbidden(string(action))
	}
	switch action {
	case ActionView:
		return nil
	case ActionUseTemplate:
		return AuthorizeCreate(actor, companyID)
	case ActionManageTemplate:
		if actor.Role.Elevated() {
			return nil
		}
		if !actor.Role.Contributor() {
			return apperrors.Forbidden(string(action))
		}
		if createdBy == uuid.Nil || createdBy == actor.UserID {
			return nil
		}
	}
	return apperrors.Forbidden(string(action))
}

// VisibleScope is the listing restriction applied for an actor.
// A nil field means unrestricted.
type VisibleScope struct {
	CompanyID *uuid.UUID
	OwnerID   *uuid.UUID
}

// ScopeFor derives the listing scope from the actor alone. requested is honoured
// only for cross-tenant actors.
func ScopeFor(actor models.Actor, requested *uuid.UUID) VisibleScope {
	if actor.CrossTenant() {
		return VisibleScope{CompanyID: requested}
	}
	company := actor.CompanyID
	scope := VisibleScope{CompanyID: &company}
	if actor.Role.Contributor() {
		owner := actor.UserID
		scope.OwnerID = &owner
	}
	return scope
}
