package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/formsheet/server/internal/config"
	"github.com/formsheet/server/internal/metrics"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	exportAttemptTimeout = 30 * time.Second
	staleExportAfter     = 10 * time.Minute
)

var (
	ErrAlreadyExported  = errors.New("submission is already exported")
	ErrExportInProgress = errors.New("submission export is in progress")
)

// ExportService owns the submission outbox. A submission is written to the spreadsheet once
// synchronously; if that fails it is retried in the background with backoff.
type ExportService struct {
	DB     *gorm.DB
	Sheets *sheets.Service

	queue  chan uuid.UUID
	config config.ExportConfig

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewExportService(db *gorm.DB, sheetsService *sheets.Service, cfg config.ExportConfig) *ExportService {
	if cfg.QueueBufferSize <= 0 {
		cfg.QueueBufferSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{time.Minute}
	}

	s := &ExportService{
		DB:     db,
		Sheets: sheetsService,
		queue:  make(chan uuid.UUID, cfg.QueueBufferSize),
		config: cfg,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processQueue()
	return s
}

// Submit persists sub and attempts the spreadsheet write right away. The returned submission
// is exported on success or pending with a scheduled retry. Only persistence errors are returned.
func (s *ExportService) Submit(ctx context.Context, sub *models.FormSubmission) (*models.FormSubmission, error) {
	sub.Status = models.SubmissionStatusProcessing
	sub.MaxAttempts = s.config.MaxAttempts
	if err := s.DB.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.export(ctx, sub)
	return sub, nil
}

// Retry re-queues a failed or pending submission. A failed submission gets a fresh attempt budget.
func (s *ExportService) Retry(id uuid.UUID) (*models.FormSubmission, error) {
	var sub models.FormSubmission
	if err := s.DB.First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}

	switch sub.Status {
	case models.SubmissionStatusExported:
		return nil, ErrAlreadyExported
	case models.SubmissionStatusProcessing:
		return nil, ErrExportInProgress
	case models.SubmissionStatusFailed:
		sub.Attempts = 0
	}

	sub.Status = models.SubmissionStatusPending
	sub.LastError = nil
	sub.NextRetryAt = nil
	if err := s.DB.Save(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}

	if !s.enqueue(sub.ID) {
		logger.Warn("export_queue_full_on_retry", map[string]interface{}{
			"submission_id": sub.ID.String(),
		})
	}
	return &sub, nil
}

// RecoverStaleJobs runs once at startup: submissions stuck in processing by a crashed process
// go back to pending, and every pending submission is queued or rescheduled.
func (s *ExportService) RecoverStaleJobs() {
	now := time.Now().UTC()

	result := s.DB.Model(&models.FormSubmission{}).
		Where("status = ? AND updated_at < ?", models.SubmissionStatusProcessing, now.Add(-staleExportAfter)).
		Updates(map[string]interface{}{
			"status":        models.SubmissionStatusPending,
			"next_retry_at": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		logger.Error("export_stale_recovery_failed", result.Error, nil)
	} else if result.RowsAffected > 0 {
		logger.Info("export_stale_recovered", map[string]interface{}{
			"count": result.RowsAffected,
		})
	}

	var pending []models.FormSubmission
	if err := s.DB.Where("status = ?", models.SubmissionStatusPending).
		Order("created_at ASC").
		Find(&pending).Error; err != nil {
		logger.Error("export_pending_load_failed", err, nil)
		return
	}

	for _, sub := range pending {
		if sub.NextRetryAt != nil && sub.NextRetryAt.After(now) {
			s.scheduleRetry(sub.ID, sub.NextRetryAt.Sub(now))
			continue
		}
		if !s.enqueue(sub.ID) {
			logger.Warn("export_queue_full_on_recovery", map[string]interface{}{
				"submission_id": sub.ID.String(),
			})
		}
	}
}

// Close stops the worker and any scheduled retries. Pending rows stay in the database
// and are picked up by RecoverStaleJobs on the next start.
func (s *ExportService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *ExportService) enqueue(id uuid.UUID) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- id:
		metrics.ExportQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		return false
	}
}

func (s *ExportService) scheduleRetry(id uuid.UUID, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if !s.enqueue(id) {
			logger.Warn("export_retry_not_queued", map[string]interface{}{
				"submission_id": id.String(),
			})
		}
	})
}

func (s *ExportService) processQueue() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case id := <-s.queue:
			metrics.ExportQueueDepth.Set(float64(len(s.queue)))
			s.processJob(id)
		}
	}
}

func (s *ExportService) processJob(id uuid.UUID) {
	// Claiming with a conditional update keeps a manual retry and a timer from exporting twice.
	claim := s.DB.Model(&models.FormSubmission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusProcessing,
			"updated_at": time.Now().UTC(),
		})
	if claim.Error != nil {
		logger.Error("export_job_claim_failed", claim.Error, map[string]interface{}{
			"submission_id": id.String(),
		})
		return
	}
	if claim.RowsAffected == 0 {
		return
	}

	var sub models.FormSubmission
	if err := s.DB.First(&sub, "id = ?", id).Error; err != nil {
		logger.Error("export_job_load_failed", err, map[string]interface{}{
			"submission_id": id.String(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), exportAttemptTimeout)
	defer cancel()
	s.export(ctx, &sub)
}

func (s *ExportService) export(ctx context.Context, sub *models.FormSubmission) {
	row, err := s.Sheets.AppendRow(ctx, sub.SheetName, sub.RowCells())
	if err != nil {
		s.markFailed(sub, err)
		return
	}

	now := time.Now().UTC()
	sub.Attempts++
	sub.Status = models.SubmissionStatusExported
	sub.ExportedRow = &row
	sub.ExportedAt = &now
	sub.LastError = nil
	sub.NextRetryAt = nil

	if err := s.DB.Save(sub).Error; err != nil {
		logger.Error("export_job_complete_failed", err, map[string]interface{}{
			"submission_id": sub.ID.String(),
		})
		return
	}

	metrics.SheetExportsTotal.WithLabelValues("exported").Inc()
	logger.Info("export_job_completed", map[string]interface{}{
		"submission_id": sub.ID.String(),
		"form_id":       sub.FormID.String(),
		"sheet":         sub.SheetName,
		"row":           row,
	})
}

func (s *ExportService) markFailed(sub *models.FormSubmission, jobErr error) {
	sub.Attempts++
	errStr := jobErr.Error()
	sub.LastError = &errStr

	var retryIn time.Duration
	if sub.Attempts >= sub.MaxAttempts {
		sub.Status = models.SubmissionStatusFailed
		sub.NextRetryAt = nil
		metrics.SheetExportsTotal.WithLabelValues("failed").Inc()
		logger.Error("export_job_final_failure", jobErr, map[string]interface{}{
			"submission_id": sub.ID.String(),
			"form_id":       sub.FormID.String(),
			"attempts":      sub.Attempts,
		})
	} else {
		sub.Status = models.SubmissionStatusPending

		delayIndex := sub.Attempts - 1
		if delayIndex >= len(s.config.RetryDelays) {
			delayIndex = len(s.config.RetryDelays) - 1
		}
		retryIn = s.config.RetryDelays[delayIndex]
		nextRetry := time.Now().UTC().Add(retryIn)
		sub.NextRetryAt = &nextRetry

		metrics.SheetExportsTotal.WithLabelValues("retry").Inc()
		logger.Warn("export_job_retry_scheduled", map[string]interface{}{
			"submission_id": sub.ID.String(),
			"form_id":       sub.FormID.String(),
			"attempts":      sub.Attempts,
			"max_attempts":  sub.MaxAttempts,
			"next_retry":    nextRetry.String(),
			"error":         errStr,
		})
	}

	if err := s.DB.Save(sub).Error; err != nil {
		logger.Error("export_job_failed_update_failed", err, map[string]interface{}{
			"submission_id": sub.ID.String(),
		})
		return
	}

	if sub.Status == models.SubmissionStatusPending {
		s.scheduleRetry(sub.ID, retryIn)
	}
}
