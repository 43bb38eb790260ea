package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AuditOutcome is what happened to one upload.
type AuditOutcome string

const (
	OutcomeAccepted  AuditOutcome = "accepted"
	OutcomeDuplicate AuditOutcome = "duplicate"
	OutcomeRejected  AuditOutcome = "rejected"
)

// AuditSeverity ranks audit entries for filtering.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry records one upload attempt.
type AuditEntry struct {
	UploadID      string        `json:"uploadId"`
	FileName      string        `json:"fileName"`
	Outcome       AuditOutcome  `json:"outcome"`
	Severity      AuditSeverity `json:"severity"`
	InvoiceNumber string        `json:"invoiceNumber,omitempty"`
	Supplier      string        `json:"supplier,omitempty"`
	Value         string        `json:"value,omitempty"`
	ErrorCode     string        `json:"errorCode,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	IPAddress     string        `json:"ipAddress,omitempty"`
	UserAgent     string        `json:"userAgent,omitempty"`
	SizeBytes     int           `json:"sizeBytes"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// AuditSink stores audit entries. Implementations must be safe for
// concurrent use.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// determineSeverity returns the severity for an outcome.
func determineSeverity(outcome AuditOutcome) AuditSeverity {
	switch outcome {
	case OutcomeAccepted:
		return SeverityLow
	case OutcomeDuplicate:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// newAuditEntry builds the entry for an ingest outcome.
// rec is the zero Record when parsing failed.
func newAuditEntry(ctx context.Context, uploadID, fileName string, size int, rec Record, err error) AuditEntry {
	meta := RequestMetaFromContext(ctx)

	outcome := OutcomeAccepted
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateInvoice):
		outcome = OutcomeDuplicate
	default:
		outcome = OutcomeRejected
	}

	entry := AuditEntry{
		UploadID:      uploadID,
		FileName:      fileName,
		Outcome:       outcome,
		Severity:      determineSeverity(outcome),
		InvoiceNumber: rec.InvoiceNumber,
		Supplier:      rec.Supplier,
		Value:         rec.Value,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		SizeBytes:     size,
		CreatedAt:     time.Now().UTC(),
	}
	if err != nil {
		entry.ErrorCode = MapError(err).Code
		entry.Reason = err.Error()
	}
	return entry
}

// LogAuditSink writes audit entries to the structured log. It is the sink
// used when no database is configured.
type LogAuditSink struct {
	Logger *slog.Logger
}

// Record implements AuditSink.
func (s LogAuditSink) Record(ctx context.Context, e AuditEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	if e.Severity == SeverityHigh {
		level = slog.LevelWarn
	}

	logger.Log(ctx, level, "upload audit",
		"upload_id", e.UploadID,
		"file", e.FileName,
		"outcome", e.Outcome,
		"severity", e.Severity,
		"invoice", e.InvoiceNumber,
		"code", e.ErrorCode,
		"ip", e.IPAddress,
		"size_bytes", e.SizeBytes,
	)
	return nil
}
