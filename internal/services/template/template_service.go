package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/utils"
	"github.com/regdesk/backend/internal/workflow"
)

// TemplateService manages report templates and hands drafts to the report service
type TemplateService struct {
	templates repository.TemplateRepo
	validate  *validator.Validate
	log       *logrus.Logger
	timeout   time.Duration
}

// NewTemplateService creates a new template service
func NewTemplateService(repos *repository.Repos, log *logrus.Logger, timeout time.Duration) *TemplateService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TemplateService{
		templates: repos.Template,
		validate:  utils.NewValidator(),
		log:       log,
		timeout:   timeout,
	}
}

func (s *TemplateService) begin(ctx context.Context, actor models.Actor) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return database.ScopeContext(ctx, actor), cancel
}

// Create stores a template for the actor's company
func (s *TemplateService) Create(ctx context.Context, actor models.Actor, input models.TemplateInput) (*models.ReportTemplate, error) {
	if err := workflow.AuthorizeTemplate(actor, workflow.ActionManageTemplate, actor.CompanyID, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.check(&input); err != nil {
		return nil, err
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	template := &models.ReportTemplate{
		Base:      models.Base{ID: uuid.New()},
		CreatedBy: actor.UserID,
		CompanyID: actor.CompanyID,
		TenantID:  actor.TenantID,
	}
	apply(template, input)

	if err := s.templates.Create(ctx, template); err != nil {
		config.LogError(s.log, "template", "Create", "persist template", template.Name, err)
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return template, nil
}

// Get returns a template visible to actor
func (s *TemplateService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ReportTemplate, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()
	return s.load(ctx, actor, workflow.ActionView, id)
}

// List returns the templates of the actor's company. companyID is honoured only
// for cross-tenant actors.
func (s *TemplateService) List(ctx context.Context, actor models.Actor, companyID *uuid.UUID) ([]models.ReportTemplate, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	scope := workflow.ScopeFor(actor, companyID)
	templates, err := s.templates.List(ctx, scope.CompanyID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return templates, nil
}

// Update replaces the editable fields of a template
func (s *TemplateService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, input models.TemplateInput) (*models.ReportTemplate, error) {
	if err := s.check(&input); err != nil {
		return nil, err
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	template, err := s.load(ctx, actor, workflow.ActionManageTemplate, id)
	if err != nil {
		return nil, err
	}
	apply(template, input)

	if err := s.templates.Update(ctx, template); err != nil {
		config.LogError(s.log, "template", "Update", "persist template", id, err)
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return template, nil
}

// Delete removes a template. Drafts created from it are unaffected.
func (s *TemplateService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	if _, err := s.load(ctx, actor, workflow.ActionManageTemplate, id); err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		return apperrors.OrTimeout(ctx, err)
	}
	return nil
}

// Use builds the draft payload for a new report. The caller passes it to
// ReportService.Create; nothing is stored here.
func (s *TemplateService) Use(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ReportDraftInput, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	template, err := s.load(ctx, actor, workflow.ActionUseTemplate, id)
	if err != nil {
		return nil, err
	}

	return &models.ReportDraftInput{
		Title:       DraftTitle(template),
		Description: template.Description,
		ReportType:  template.ReportType,
		CompanyID:   template.CompanyID,
		CountryCode: template.CountryCode,
		TaxTypes:    models.DecodeStrings(template.TaxTypes),
	}, nil
}

// DraftTitle names a draft created from t
func DraftTitle(t *models.ReportTemplate) string {
	suffix := "Report"
	if t.IsRecurring && t.RecurrencePattern != "" {
		suffix = strings.ToUpper(string(t.RecurrencePattern[:1])) + string(t.RecurrencePattern[1:])
	}
	return fmt.Sprintf("%s - %s", t.Name, suffix)
}

func (s *TemplateService) load(ctx context.Context, actor models.Actor, action workflow.Action, id uuid.UUID) (*models.ReportTemplate, error) {
	template, err := s.templates.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.AuthorizeTemplate(actor, action, template.CompanyID, template.CreatedBy); err != nil {
		return nil, err
	}
	return template, nil
}

func (s *TemplateService) check(input *models.TemplateInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.CountryCode = strings.ToUpper(strings.TrimSpace(input.CountryCode))
	if err := utils.ValidateStruct(s.validate, *input); err != nil {
		return err
	}
	if input.IsRecurring && input.RecurrencePattern == "" {
		return apperrors.Validation("recurrence_pattern", "recurring templates need a recurrence pattern")
	}
	if !input.IsRecurring {
		input.RecurrencePattern = ""
	}
	return nil
}

func apply(t *models.ReportTemplate, input models.TemplateInput) {
	t.Name = input.Name
	t.Description = strings.TrimSpace(input.Description)
	t.ReportType = input.ReportType
	t.CountryCode = input.CountryCode
	t.TaxTypes = models.EncodeStrings(input.TaxTypes)
	t.IsRecurring = input.IsRecurring
	t.RecurrencePattern = input.RecurrencePattern
}
