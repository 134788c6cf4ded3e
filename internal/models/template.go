package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RecurrencePattern is how often a recurring template is due
type RecurrencePattern string

const (
	RecurrenceMonthly   RecurrencePattern = "monthly"
	RecurrenceQuarterly RecurrencePattern = "quarterly"
	RecurrenceYearly    RecurrencePattern = "yearly"
)

// ReportTemplate pre-fills new drafts
type ReportTemplate struct {
	Base
	Name              string            `gorm:"size:255;not null" json:"name"`
	Description       string            `gorm:"type:text" json:"description"`
	ReportType        ReportType        `gorm:"size:50;not null" json:"report_type"`
	CountryCode       string            `gorm:"size:10" json:"country_code,omitempty"`
	TaxTypes          datatypes.JSON    `json:"tax_types,omitempty"`
	IsRecurring       bool              `gorm:"default:false" json:"is_recurring"`
	RecurrencePattern RecurrencePattern `gorm:"size:50" json:"recurrence_pattern,omitempty"`
	CreatedBy         uuid.UUID         `gorm:"type:uuid;not null" json:"created_by"`
	CompanyID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"company_id"`
	TenantID          uuid.UUID         `gorm:"type:uuid" json:"tenant_id"`
}

// TableName specifies the table for ReportTemplate
func (ReportTemplate) TableName() string {
	return "report_templates"
}

// TemplateInput carries template create/update fields
type TemplateInput struct {
	Name              string            `json:"name" validate:"required,max=255"`
	Description       string            `json:"description"`
	ReportType        ReportType        `json:"report_type" validate:"required,oneof=compliance audit financial risk_assessment"`
	CountryCode       string            `json:"country_code" validate:"omitempty,max=10"`
	TaxTypes          []string          `json:"tax_types"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern" validate:"omitempty,oneof=monthly quarterly yearly"`
}

// EncodeStrings stores a string list in a JSON column
func EncodeStrings(values []string) datatypes.JSON {
	if len(values) == 0 {
		return nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// DecodeStrings reads a string list from a JSON column
func DecodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}
