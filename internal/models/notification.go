package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType sets how a notification is displayed
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is an in-app message for one user about a report event
type Notification struct {
	Base
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	CompanyID uuid.UUID        `gorm:"type:uuid;not null;index" json:"company_id"`
	ReportID  *uuid.UUID       `gorm:"type:uuid" json:"report_id,omitempty"`
	Type      NotificationType `gorm:"size:20;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	Link      string           `gorm:"size:255" json:"link,omitempty"`
	IsRead    bool             `gorm:"not null;default:false" json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
}

// TableName specifies the table for Notification
func (Notification) TableName() string {
	return "notifications"
}
