package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/nfe-panel/internal/config"
)

func testUploadConfig() config.UploadConfig {
	return config.UploadConfig{
		MaxFileSize:   64 * 1024,
		MaxConcurrent: 2,
		MaxWaitTime:   50 * time.Millisecond,
		Timeout:       5 * time.Second,
	}
}

func newTestService(t *testing.T) (*Service, *memoryAuditSink) {
	t.Helper()
	sink := &memoryAuditSink{}
	svc := NewService(NewLedgerWithClock(fixedClock()), testUploadConfig(), sink)
	return svc, sink
}

// ============================================================================
// Ingest Outcomes
// ============================================================================

func TestService_IngestAccepted(t *testing.T) {
	svc, sink := newTestService(t)

	res, err := svc.Ingest(context.Background(), "nota.xml", bytes.NewReader(nfeDoc(completeFields())))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if res.UploadID == "" {
		t.Error("UploadID is empty")
	}
	want := Record{
		Supplier:      "ACME Distribuidora LTDA",
		InvoiceNumber: "4521",
		Value:         "12.50",
		IssueDate:     "2024-03-01T10:15:00-03:00",
		ReceivedAt:    "13:04:05",
	}
	if res.Record != want {
		t.Errorf("Record = %+v, want %+v", res.Record, want)
	}

	entries := svc.Entries()
	if len(entries) != 1 || entries[0] != want {
		t.Errorf("Entries() = %+v", entries)
	}

	audits := sink.all()
	if len(audits) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audits))
	}
	a := audits[0]
	if a.Outcome != OutcomeAccepted || a.Severity != SeverityLow {
		t.Errorf("audit = %+v, want accepted/low", a)
	}
	if a.UploadID != res.UploadID || a.FileName != "nota.xml" || a.InvoiceNumber != "4521" {
		t.Errorf("audit = %+v", a)
	}
	if a.ErrorCode != "" {
		t.Errorf("ErrorCode = %q, want empty", a.ErrorCode)
	}
}

func TestService_IngestDuplicate(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "a.xml", bytes.NewReader(docWithInvoice("7"))); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	_, err := svc.Ingest(ctx, "b.xml", bytes.NewReader(docWithInvoice("7")))
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("second Ingest() error = %v, want ErrDuplicateInvoice", err)
	}
	if got := len(svc.Entries()); got != 1 {
		t.Errorf("Entries() length = %d, want 1", got)
	}

	audits := sink.all()
	if len(audits) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audits))
	}
	if a := audits[1]; a.Outcome != OutcomeDuplicate || a.ErrorCode != "NFE004" || a.InvoiceNumber != "7" {
		t.Errorf("duplicate audit = %+v", a)
	}
}

func TestService_IngestRejectedLeavesLedgerUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		wantErr  error
		wantCode string
	}{
		{"malformed", []byte("<nfeProc><NFe>"), ErrMalformedDocument, "NFE001"},
		{"no root", []byte("<!-- vazio -->"), ErrInvalidDocumentStructure, "NFE002"},
		{"bad value", func() []byte {
			f := completeFields()
			f.Value = str("doze")
			return nfeDoc(f)
		}(), ErrValueFormat, "NFE003"},
		{"empty", nil, ErrEmptyFile, "FILE005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sink := newTestService(t)
			ctx := context.Background()

			if _, err := svc.Ingest(ctx, "ok.xml", bytes.NewReader(docWithInvoice("1"))); err != nil {
				t.Fatalf("seed Ingest() error = %v", err)
			}
			before := svc.Entries()

			res, err := svc.Ingest(ctx, "bad.xml", bytes.NewReader(tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
			if res.Record != (Record{}) {
				t.Errorf("Record = %+v, want zero", res.Record)
			}

			after := svc.Entries()
			if len(after) != len(before) || after[0] != before[0] {
				t.Errorf("ledger changed: before %+v after %+v", before, after)
			}

			audits := sink.all()
			last := audits[len(audits)-1]
			if last.Outcome != OutcomeRejected || last.Severity != SeverityHigh {
				t.Errorf("audit = %+v, want rejected/high", last)
			}
			if last.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", last.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestService_IngestTooLarge(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MaxFileSize = 100
	svc := NewService(NewLedger(), cfg, &memoryAuditSink{})

	body := strings.Repeat("x", 101)
	_, err := svc.Ingest(context.Background(), "big.xml", strings.NewReader(body))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Ingest() error = %v, want ErrFileTooLarge", err)
	}
	if MapError(err).Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", MapError(err).Code)
	}
}

func TestService_IngestAtSizeLimit(t *testing.T) {
	raw := nfeDoc(completeFields())

	cfg := testUploadConfig()
	cfg.MaxFileSize = int64(len(raw))
	svc := NewService(NewLedger(), cfg, &memoryAuditSink{})

	if _, err := svc.Ingest(context.Background(), "exact.xml", bytes.NewReader(raw)); err != nil {
		t.Errorf("Ingest() at limit error = %v", err)
	}
}

// ============================================================================
// Request Metadata and Audit
// ============================================================================

func TestService_AuditCarriesRequestMeta(t *testing.T) {
	svc, sink := newTestService(t)

	ctx := ContextWithRequestMeta(context.Background(), RequestMeta{
		IPAddress: "203.0.113.9",
		UserAgent: "curl/8.5",
	})
	raw := nfeDoc(completeFields())
	if _, err := svc.Ingest(ctx, "nota.xml", bytes.NewReader(raw)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	a := sink.all()[0]
	if a.IPAddress != "203.0.113.9" || a.UserAgent != "curl/8.5" {
		t.Errorf("audit meta = %q / %q", a.IPAddress, a.UserAgent)
	}
	if a.SizeBytes != len(raw) {
		t.Errorf("SizeBytes = %d, want %d", a.SizeBytes, len(raw))
	}
}

func TestService_AuditFailureDoesNotFailIngest(t *testing.T) {
	sink := &memoryAuditSink{err: errors.New("audit store down")}
	svc := NewService(NewLedger(), testUploadConfig(), sink)

	if _, err := svc.Ingest(context.Background(), "nota.xml", bytes.NewReader(nfeDoc(completeFields()))); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(svc.Entries()) != 1 {
		t.Error("record was not inserted")
	}
}

func TestService_NilAuditSinkUsesLog(t *testing.T) {
	svc := NewService(NewLedger(), testUploadConfig(), nil)

	if _, ok := svc.audit.(LogAuditSink); !ok {
		t.Fatalf("audit sink = %T, want LogAuditSink", svc.audit)
	}
	if _, err := svc.Ingest(context.Background(), "nota.xml", bytes.NewReader(nfeDoc(completeFields()))); err != nil {
		t.Errorf("Ingest() error = %v", err)
	}
}

// ============================================================================
// Limiter
// ============================================================================

func TestService_IngestBusy(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MaxConcurrent = 1
	sink := &memoryAuditSink{}
	svc := NewService(NewLedger(), cfg, sink)

	if err := svc.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer svc.limiter.Release()

	_, err := svc.Ingest(context.Background(), "nota.xml", bytes.NewReader(nfeDoc(completeFields())))
	if !errors.Is(err, ErrTooManyUploads) {
		t.Fatalf("Ingest() error = %v, want ErrTooManyUploads", err)
	}
	if len(svc.Entries()) != 0 {
		t.Error("busy upload reached the ledger")
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if e := entries[0]; e.Outcome != OutcomeRejected || e.ErrorCode != "UPL002" || e.SizeBytes != 0 {
		t.Errorf("audit entry = %+v, want rejected UPL002 with no size", e)
	}
}

func TestService_WaitForUploads(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := svc.WaitForUploads(ctx); err != nil {
		t.Errorf("WaitForUploads() on idle service error = %v", err)
	}
	if st := svc.UploadLimiterStatus(); st.Active != 0 || st.MaxConcurrent != 2 {
		t.Errorf("UploadLimiterStatus() = %+v", st)
	}
}

func TestService_Stats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, n := range []string{"1", "2"} {
		if _, err := svc.Ingest(ctx, n+".xml", bytes.NewReader(docWithInvoice(n))); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	if st := svc.Stats(); st.Count != 2 || st.Total != "25.00" {
		t.Errorf("Stats() = %+v, want 2 records totalling 25.00", st)
	}
}
