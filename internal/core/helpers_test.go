package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Document Fixtures
// ============================================================================

// nfeFields holds the optional fields of a fixture; nil means absent.
type nfeFields struct {
	Supplier      *string
	InvoiceNumber *string
	Value         *string
	IssueDate     *string
}

func str(s string) *string { return &s }

// completeFields is a fully populated fixture.
func completeFields() nfeFields {
	return nfeFields{
		Supplier:      str("ACME Distribuidora LTDA"),
		InvoiceNumber: str("4521"),
		Value:         str("12.5"),
		IssueDate:     str("2024-03-01T10:15:00-03:00"),
	}
}

// nfeDoc renders an nfeProc envelope with the given fields. The destinatario
// block always carries a second xNome so lookups must take the first one.
func nfeDoc(f nfeFields) []byte {
	opt := func(tag string, v *string) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("<%s>%s</%s>", tag, *v, tag)
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">`)
	b.WriteString(`<NFe><infNFe Id="NFe35240312345678000199550010000045211000045210" versao="4.00">`)
	b.WriteString(`<ide><cUF>35</cUF><mod>55</mod><serie>1</serie>`)
	b.WriteString(opt("nNF", f.InvoiceNumber))
	b.WriteString(`<dhEmi>2024-03-01T09:00:00-03:00</dhEmi>`)
	b.WriteString(opt("dhSaiEnt", f.IssueDate))
	b.WriteString(`</ide>`)
	b.WriteString(`<emit><CNPJ>12345678000199</CNPJ>`)
	b.WriteString(opt("xNome", f.Supplier))
	b.WriteString(`</emit>`)
	b.WriteString(`<dest><CNPJ>98765432000111</CNPJ><xNome>Cliente Final SA</xNome></dest>`)
	b.WriteString(`<total><ICMSTot><vProd>12.50</vProd>`)
	b.WriteString(opt("vNF", f.Value))
	b.WriteString(`</ICMSTot></total>`)
	b.WriteString(`</infNFe></NFe></nfeProc>`)
	return []byte(b.String())
}

// docWithInvoice is a complete fixture with the given invoice number.
func docWithInvoice(n string) []byte {
	f := completeFields()
	f.InvoiceNumber = str(n)
	return nfeDoc(f)
}

// fixedClock returns a clock frozen at 13:04:05.
func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, 3, 1, 13, 4, 5, 0, time.UTC)
	}
}

// ============================================================================
// Audit Sink Doubles
// ============================================================================

// memoryAuditSink keeps entries in memory.
type memoryAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (s *memoryAuditSink) Record(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *memoryAuditSink) all() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.entries...)
}
