package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, template *models.ReportTemplate) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReportTemplate, error) {
	var template models.ReportTemplate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&template).Error; err != nil {
		return nil, notFoundOr(err, "template", id)
	}
	return &template, nil
}

func (r *TemplateRepository) List(ctx context.Context, companyID *uuid.UUID) ([]models.ReportTemplate, error) {
	query := r.db.WithContext(ctx).Model(&models.ReportTemplate{})
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}
	var templates []models.ReportTemplate
	if err := query.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Update(ctx context.Context, template *models.ReportTemplate) error {
	if err := r.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ReportTemplate{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("template", id)
	}
	return nil
}
