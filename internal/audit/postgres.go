// Package audit stores upload audit entries in PostgreSQL.
//
// The table is append-only. Nothing in the panel reads it back; it exists so
// operators can answer "who sent what, and what happened" after the fact.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx used by the sink.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nfe_upload_audit (
    id             BIGSERIAL PRIMARY KEY,
    upload_id      UUID NOT NULL,
    file_name      TEXT NOT NULL,
    outcome        TEXT NOT NULL,
    severity       TEXT NOT NULL,
    invoice_number TEXT,
    supplier       TEXT,
    value          NUMERIC(15, 2),
    error_code     TEXT,
    reason         TEXT,
    ip_address     INET,
    user_agent     TEXT,
    size_bytes     INTEGER NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
INSERT INTO nfe_upload_audit (
    upload_id, file_name, outcome, severity, invoice_number, supplier, value,
    error_code, reason, ip_address, user_agent, size_bytes, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresSink writes one row per upload attempt.
type PostgresSink struct {
	db DBTX
}

// NewPostgresSink creates a sink on db. Call EnsureSchema once at startup.
func NewPostgresSink(db DBTX) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record implements core.AuditSink.
func (s *PostgresSink) Record(ctx context.Context, e core.AuditEntry) error {
	uploadID, err := toPgUUID(e.UploadID)
	if err != nil {
		return fmt.Errorf("audit upload id: %w", err)
	}

	_, err = s.db.Exec(ctx, insertSQL,
		uploadID,
		e.FileName,
		string(e.Outcome),
		string(e.Severity),
		toPgText(e.InvoiceNumber),
		toPgText(e.Supplier),
		toPgNumeric(e.Value),
		toPgText(e.ErrorCode),
		toPgText(e.Reason),
		toAddr(e.IPAddress),
		toPgText(e.UserAgent),
		e.SizeBytes,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Conversion helpers
// ----------------------------------------------------------------------------

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPgNumeric stores values formatted by the parser; anything else is NULL.
func toPgNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if s == "" {
		return n
	}
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

func toPgUUID(s string) (pgtype.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

// toAddr strips an optional port and parses the address. Unparseable
// addresses are stored as NULL.
func toAddr(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}
