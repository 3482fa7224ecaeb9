package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"salesflow/core/constants"
	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/core/queue"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/sync/service"
)

type syncRunPayload struct {
	IntegrationID string `json:"integration_id"`
}

// NewSyncRunTask builds the per-integration reconciliation task.
func NewSyncRunTask(integrationID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(syncRunPayload{IntegrationID: integrationID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskSyncRun, payload), nil
}

// Worker registers the periodic sync and webhook renewal tasks.
type Worker struct {
	queue     *queue.Queue
	syncSvc   service.SyncService
	integSvc  integrationService.IntegrationService
	integRepo integrationRepository.IntegrationRepository
}

func NewWorker(
	q *queue.Queue,
	syncSvc service.SyncService,
	integSvc integrationService.IntegrationService,
	integRepo integrationRepository.IntegrationRepository,
) *Worker {
	return &Worker{queue: q, syncSvc: syncSvc, integSvc: integSvc, integRepo: integRepo}
}

// Register wires handlers and the periodic schedule.
func (w *Worker) Register() error {
	w.queue.HandleFunc(constants.TaskSyncRun, w.handleSyncRun)
	w.queue.HandleFunc(constants.TaskSyncEnqueueAll, w.handleEnqueueAll)
	w.queue.HandleFunc(constants.TaskWebhookRenewal, w.handleWebhookRenewal)

	cron := fmt.Sprintf("*/%d * * * *", constants.SyncIntervalMinutes)
	if err := w.queue.Schedule(cron, asynq.NewTask(constants.TaskSyncEnqueueAll, nil)); err != nil {
		return err
	}
	// Renewal runs hourly; subscriptions near expiry get recreated.
	return w.queue.Schedule("0 * * * *", asynq.NewTask(constants.TaskWebhookRenewal, nil))
}

func (w *Worker) handleSyncRun(ctx context.Context, t *asynq.Task) error {
	var payload syncRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	id, err := uuid.Parse(payload.IntegrationID)
	if err != nil {
		return fmt.Errorf("malformed integration id: %w", err)
	}

	_, appErr := w.syncSvc.RunSync(ctx, id)
	if appErr == nil {
		return nil
	}
	switch appErr.Code {
	case errors.ErrAuthExpired, errors.ErrNotFound, errors.ErrAlreadyExists:
		// Not retryable from the queue: reauth needs a human, and a held
		// lock means another run is already on it.
		logger.Warn("Worker:SyncRun:Skipped", "integration_id", id, "code", appErr.Code)
		return nil
	case errors.ErrPartialSync:
		logger.Warn("Worker:SyncRun:Partial", "integration_id", id, "error", appErr.Message)
		return nil
	}
	return appErr
}

func (w *Worker) handleEnqueueAll(ctx context.Context, _ *asynq.Task) error {
	integrations, err := w.integRepo.GetAllActive(ctx)
	if err != nil {
		return err
	}
	for _, integ := range integrations {
		if integ.NeedsReauth {
			continue
		}
		task, err := NewSyncRunTask(integ.ID)
		if err != nil {
			return err
		}
		if _, err := w.queue.Client.EnqueueContext(ctx, task); err != nil {
			logger.Error("Worker:EnqueueAll:Error", "integration_id", integ.ID, "error", err)
		}
	}
	logger.Info("Worker:EnqueueAll:Done", "count", len(integrations))
	return nil
}

func (w *Worker) handleWebhookRenewal(ctx context.Context, _ *asynq.Task) error {
	return w.integSvc.RenewWebhookSubscriptions(ctx)
}
