package services

import (
	"sync"
	"time"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const auditQueueSize = 1000

// Audit actions recorded by the handlers.
const (
	AuditUserLogin         = "user.login"
	AuditUserRegister      = "user.register"
	AuditUserCreate        = "user.create"
	AuditUserUpdate        = "user.update"
	AuditUserDelete        = "user.delete"
	AuditPasswordChange    = "user.password_change"
	AuditFormCreate        = "form.create"
	AuditFormUpdate        = "form.update"
	AuditFormDelete        = "form.delete"
	AuditFormSubmit        = "form.submit"
	AuditExportRetry       = "export.retry"
	AuditReportCreate      = "report_template.create"
	AuditReportUpdate      = "report_template.update"
	AuditReportDelete      = "report_template.delete"
	AuditAIReport          = "ai_report.generate"
	AuditSettingsUpdate    = "settings.update"
	AuditLookupSourceWrite = "lookup_source.write"
	AuditLookupSourceDrop  = "lookup_source.delete"
	AuditUpload            = "upload.create"
)

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

type AuditService struct {
	DB    *gorm.DB
	queue chan models.AuditLog

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewAuditService(db *gorm.DB) *AuditService {
	s := &AuditService{
		DB:    db,
		queue: make(chan models.AuditLog, auditQueueSize),
	}
	s.wg.Add(1)
	go s.processQueue()
	return s
}

// LogAsync queues entry for insertion. When the queue is full the entry is dropped and a
// warning is logged so that request handling never blocks on the audit table.
func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}

	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Close drains the queue and waits for the pending inserts. LogAsync must not be called after.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *AuditService) processQueue() {
	defer s.wg.Done()
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}
