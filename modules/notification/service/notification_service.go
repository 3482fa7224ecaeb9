package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"salesflow/core/config"
	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/core/params"
	eventEntity "salesflow/modules/event/entity"
	"salesflow/modules/notification/entity"
	"salesflow/modules/notification/repository"
)

var transitionTitles = map[string]string{
	"created":         "Meeting scheduled",
	"confirmed":       "Meeting confirmed",
	"cancelled":       "Meeting cancelled",
	"completed":       "Meeting completed",
	"no_show":         "Contact did not show",
	"rescheduled":     "Meeting rescheduled",
	"retry_scheduled": "No-show retry scheduled",
}

type NotificationService struct {
	repo *repository.NotificationRepository
	cfg  *config.Config
	http *http.Client
}

func NewNotificationService(repo *repository.NotificationRepository, cfg *config.Config) *NotificationService {
	return &NotificationService{
		repo: repo,
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyTransition records an in-app notification and mirrors it to Slack
// when a webhook URL is configured. Failures never block the transition.
func (s *NotificationService) NotifyTransition(ctx context.Context, ev *eventEntity.CalendarEvent, transition string) *errors.Warning {
	title, ok := transitionTitles[transition]
	if !ok {
		title = "Meeting updated"
	}
	message := fmt.Sprintf("%s: %s (%s)", title, ev.Title, ev.StartTime.Format("Mon Jan 2 15:04"))

	notif := &entity.Notification{
		CompanyID: ev.CompanyID,
		UserID:    ev.UserID,
		Title:     title,
		Message:   message,
		Type:      "event_" + transition,
		Data: map[string]any{
			"event_id":   ev.ID.String(),
			"status":     ev.Status,
			"event_type": ev.EventType,
			"transition": transition,
		},
	}
	if err := s.repo.Create(ctx, notif); err != nil {
		return errors.NewWarning("notification_store", err.Error())
	}

	if s.cfg.App.SlackWebhookURL != "" {
		if err := s.postSlack(ctx, message); err != nil {
			logger.Warn("NotificationService:NotifyTransition:Slack:Error", "error", err)
			return errors.NewWarning("slack_delivery", err.Error())
		}
	}
	return nil
}

func (s *NotificationService) postSlack(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.App.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (s *NotificationService) GetMyNotifications(ctx context.Context, userID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return s.repo.GetByUserID(ctx, userID, queryParams)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []string) error {
	return s.repo.MarkAsRead(ctx, userID, ids)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
