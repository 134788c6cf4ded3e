package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
)

// ReportRepository is the GORM implementation of ReportRepo
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *ReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		return nil, notFoundOr(err, "report", id)
	}
	return &report, nil
}

func (r *ReportRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&report).Error
	if err != nil {
		return nil, notFoundOr(err, "report", id)
	}
	return &report, nil
}

func (r *ReportRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Report, error) {
	var reports []models.Report
	if len(ids) == 0 {
		return reports, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}
	return reports, nil
}

func (r *ReportRepository) List(ctx context.Context, filter ReportFilter) ([]models.Report, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Report{})
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ReportType != nil {
		query = query.Where("report_type = ?", *filter.ReportType)
	}
	if filter.Search != "" {
		query = query.Where("title ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var reports []models.Report
	if err := query.Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, total, nil
}

func (r *ReportRepository) UpdateDraft(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusDraft).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *ReportRepository) ApplyTransition(ctx context.Context, id uuid.UUID, from models.ReportStatus, change TransitionChange) error {
	fields := map[string]interface{}{
		"status":     change.To,
		"updated_at": change.At,
	}
	if change.SubmittedAt != nil {
		fields["submitted_at"] = *change.SubmittedAt
	}
	if change.ReviewedAt != nil {
		fields["reviewed_at"] = *change.ReviewedAt
	}
	if change.ReviewedBy != nil {
		fields["reviewed_by"] = *change.ReviewedBy
	}
	if change.ReviewerComments != nil {
		fields["reviewer_comments"] = *change.ReviewerComments
	}

	result := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to apply transition: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *ReportRepository) Delete(ctx context.Context, id uuid.UUID, status models.ReportStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND status = ?", id, status).Delete(&models.Report{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete report: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleStatus
		}
		if err := tx.Where("report_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
		if err := tx.Where("report_id = ?", id).Delete(&models.ReportAnalysis{}).Error; err != nil {
			return fmt.Errorf("failed to delete analyses: %w", err)
		}
		return nil
	})
}

func (r *ReportRepository) ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.WithContext(ctx).
		Where("status = ? AND submitted_at < ?", models.ReportStatusSubmitted, cutoff).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list submitted reports: %w", err)
	}
	return reports, nil
}

func (r *ReportRepository) WithinTx(ctx context.Context, fn func(ReportRepo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ReportRepository{db: tx})
	})
}

func notFoundOr(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(entity, id)
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}
