package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/nfe-panel/internal/config"
	"github.com/JonMunkholm/nfe-panel/internal/logging"
	"github.com/google/uuid"
)

// Service provides the ingest operations used by the web layer.
type Service struct {
	ledger      *Ledger
	limiter     *UploadLimiter
	audit       AuditSink
	maxFileSize int64
	timeout     time.Duration
}

// IngestResult describes an upload attempt. Record is the stamped ledger
// entry and is only set when the upload was accepted.
type IngestResult struct {
	UploadID string `json:"upload_id"`
	Record   Record `json:"record"`
}

// NewService creates a Service around ledger. A nil audit sink falls back to
// the structured log.
func NewService(ledger *Ledger, cfg config.UploadConfig, audit AuditSink) *Service {
	if audit == nil {
		audit = LogAuditSink{}
	}
	return &Service{
		ledger:      ledger,
		limiter:     NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		audit:       audit,
		maxFileSize: cfg.MaxFileSize,
		timeout:     cfg.Timeout,
	}
}

// Ingest reads one uploaded document, parses it and inserts it into the
// ledger. Every attempt, successful or not, produces one audit entry.
//
// Errors match ErrTooManyUploads, ErrEmptyFile, ErrFileTooLarge, the parse
// kinds or ErrDuplicateInvoice. None of them leaves a partial record behind.
func (s *Service) Ingest(ctx context.Context, fileName string, r io.Reader) (IngestResult, error) {
	result := IngestResult{UploadID: uuid.New().String()}
	logger := logging.WithFields(ctx, "upload_id", result.UploadID, "file", fileName)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("upload slot unavailable", "error", err)
		s.recordAudit(ctx, newAuditEntry(ctx, result.UploadID, fileName, 0, Record{}, err))
		return result, err
	}
	defer s.limiter.Release()

	data, err := readUpload(r, s.maxFileSize)

	var parsed Record
	if err == nil {
		parsed, err = Parse(data)
	}
	if err == nil {
		result.Record, err = s.ledger.Insert(parsed)
	}

	s.recordAudit(ctx, newAuditEntry(ctx, result.UploadID, fileName, len(data), parsed, err))

	if err != nil {
		logger.Info("upload rejected", "code", MapError(err).Code, "error", err)
		return result, err
	}

	logger.Info("upload accepted",
		"invoice", result.Record.InvoiceNumber,
		"supplier", result.Record.Supplier,
		"value", result.Record.Value,
	)
	return result, nil
}

// recordAudit writes entry, logging instead of failing on sink errors.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	// The audit write must not be cut short by the request going away.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.audit.Record(auditCtx, entry); err != nil {
		logging.FromContext(ctx).Error("audit write failed",
			"upload_id", entry.UploadID,
			"error", err,
		)
	}
}

// readUpload reads r fully, enforcing maxSize when positive.
func readUpload(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// Entries returns the ledger snapshot, newest first.
func (s *Service) Entries() []Record {
	return s.ledger.Snapshot()
}

// Stats returns the ledger summary.
func (s *Service) Stats() LedgerStats {
	return s.ledger.Stats()
}

// UploadLimiterStatus returns the upload limiter state.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
