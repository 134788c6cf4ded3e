package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/queue"
	"github.com/regdesk/backend/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Message is the queued payload that becomes one notification
type Message struct {
	UserID    uuid.UUID               `json:"user_id"`
	CompanyID uuid.UUID               `json:"company_id"`
	ReportID  *uuid.UUID              `json:"report_id,omitempty"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link,omitempty"`
}

// ReportSubmitted tells the owner their report reached the review queue
func ReportSubmitted(report *models.Report) Message {
	return Message{
		UserID:    report.OwnerID,
		CompanyID: report.CompanyID,
		ReportID:  &report.ID,
		Type:      models.NotificationSuccess,
		Title:     "Report Submitted",
		Message:   fmt.Sprintf("Your report '%s' has been submitted successfully.", report.Title),
		Link:      reportLink(report.ID),
	}
}

// ReportDecided tells the owner the review outcome
func ReportDecided(report *models.Report) Message {
	kind, label := models.NotificationError, "Rejected"
	if report.Status == models.ReportStatusApproved {
		kind, label = models.NotificationSuccess, "Approved"
	}
	return Message{
		UserID:    report.OwnerID,
		CompanyID: report.CompanyID,
		ReportID:  &report.ID,
		Type:      kind,
		Title:     "Report " + label,
		Message:   fmt.Sprintf("Your report '%s' has been %s.", report.Title, strings.ToLower(label)),
		Link:      reportLink(report.ID),
	}
}

func reportLink(id uuid.UUID) string {
	return "/reports/" + id.String()
}

// Publisher queues notifications for delivery by the worker pool
type Publisher struct {
	queue queue.Enqueuer
}

// NewPublisher creates a publisher on enqueuer
func NewPublisher(enqueuer queue.Enqueuer) *Publisher {
	return &Publisher{queue: enqueuer}
}

// Notify queues msg
func (p *Publisher) Notify(ctx context.Context, msg Message) error {
	if _, err := p.queue.Enqueue(ctx, queue.QueueNotifications, msg); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// NotificationService stores queued notifications and serves them to their recipient
type NotificationService struct {
	notifications repository.NotificationRepo
	log           *logrus.Logger
	timeout       time.Duration
	now           func() time.Time
}

// NewNotificationService creates a new notification service
func NewNotificationService(repos *repository.Repos, log *logrus.Logger, timeout time.Duration) *NotificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		notifications: repos.Notification,
		log:           log,
		timeout:       timeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *NotificationService) begin(ctx context.Context, actor models.Actor) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return database.ScopeContext(ctx, actor), cancel
}

// HandleJob is the queue handler for QueueNotifications
func (s *NotificationService) HandleJob(ctx context.Context, job *queue.Job) error {
	var msg Message
	if err := job.Decode(&msg); err != nil {
		return err
	}
	if msg.UserID == uuid.Nil || strings.TrimSpace(msg.Title) == "" {
		// malformed payloads would fail on every retry
		s.log.WithField("job_id", job.ID).Warn("dropping notification without recipient or title")
		return nil
	}
	if msg.Type == "" {
		msg.Type = models.NotificationInfo
	}

	ctx, cancel := s.begin(ctx, models.SystemActor())
	defer cancel()

	notification := &models.Notification{
		Base:      models.Base{ID: uuid.New()},
		UserID:    msg.UserID,
		CompanyID: msg.CompanyID,
		ReportID:  msg.ReportID,
		Type:      msg.Type,
		Title:     msg.Title,
		Message:   msg.Message,
		Link:      msg.Link,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		config.LogError(s.log, "notification", "HandleJob", "persist notification", msg.UserID, err)
		return err
	}
	return nil
}

// List returns the caller's notifications, newest first
func (s *NotificationService) List(ctx context.Context, actor models.Actor, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	notifications, total, err := s.notifications.ListForUser(ctx, actor.UserID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, apperrors.OrTimeout(ctx, err)
	}
	return notifications, total, nil
}

// MarkRead flags one of the caller's notifications as read. Other users'
// notifications are reported as NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	if err := s.notifications.MarkRead(ctx, id, actor.UserID, s.now()); err != nil {
		return apperrors.OrTimeout(ctx, err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	marked, err := s.notifications.MarkAllRead(ctx, actor.UserID, s.now())
	if err != nil {
		return 0, apperrors.OrTimeout(ctx, err)
	}
	return marked, nil
}
