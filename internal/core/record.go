package core

import (
	"errors"
	"fmt"
)

// NFeNamespace is the XML namespace of Brazilian electronic invoice documents.
const NFeNamespace = "http://www.portalfiscal.inf.br/nfe"

// Placeholders used when an optional field is missing from the document.
const (
	DefaultSupplier      = "Desconhecido"
	DefaultInvoiceNumber = "N/A"
	DefaultValue         = "0.00"
	DefaultIssueDate     = "Data não encontrada"
)

// ReceivedAtLayout is the time-of-day layout stamped by the ledger.
const ReceivedAtLayout = "15:04:05"

// Record is the normalized result of parsing one invoice document.
type Record struct {
	Supplier      string `json:"supplier" yaml:"supplier"`
	InvoiceNumber string `json:"invoiceNumber" yaml:"invoice_number"`
	Value         string `json:"value" yaml:"value"`
	IssueDate     string `json:"issueDate" yaml:"issue_date"`
	ReceivedAt    string `json:"receivedAt,omitempty" yaml:"received_at,omitempty"`
}

// Sentinel errors for the ingest taxonomy. Match with errors.Is.
var (
	ErrMalformedDocument        = errors.New("malformed document")
	ErrInvalidDocumentStructure = errors.New("invalid document structure")
	ErrValueFormat              = errors.New("invalid number in invoice value")
	ErrDuplicateInvoice         = errors.New("duplicate invoice")
	ErrEmptyFile                = errors.New("empty file")
	ErrFileTooLarge             = errors.New("file too large")
	ErrNoFile                   = errors.New("no file provided")
)

// ParseError is returned by Parse. Kind is one of ErrMalformedDocument,
// ErrInvalidDocumentStructure or ErrValueFormat.
type ParseError struct {
	Kind  error
	Field string // tag that failed, empty when the whole document failed
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error's Kind, so callers can write
// errors.Is(err, ErrValueFormat).
func (e *ParseError) Is(target error) bool {
	return target == e.Kind
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DuplicateError is returned by Ledger.Insert when the invoice number is
// already in the ledger.
type DuplicateError struct {
	InvoiceNumber string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate invoice: %s already received", e.InvoiceNumber)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateInvoice
}
