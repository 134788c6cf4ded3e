package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regdesk/backend/internal/models"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(ctx context.Context, analysis *models.ReportAnalysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReportAnalysis, error) {
	var analysis models.ReportAnalysis
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&analysis).Error; err != nil {
		return nil, notFoundOr(err, "analysis", id)
	}
	return &analysis, nil
}

func (r *AnalysisRepository) Update(ctx context.Context, analysis *models.ReportAnalysis) error {
	if err := r.db.WithContext(ctx).Save(analysis).Error; err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) LatestForReport(ctx context.Context, reportID uuid.UUID) (*models.ReportAnalysis, error) {
	var analysis models.ReportAnalysis
	err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at DESC").
		First(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest analysis: %w", err)
	}
	return &analysis, nil
}

func (r *AnalysisRepository) ListForReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportAnalysis, error) {
	var analyses []models.ReportAnalysis
	err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at DESC").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}
