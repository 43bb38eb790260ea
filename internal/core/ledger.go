package core

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the ordered, deduplicated collection of accepted invoice records.
// It is safe for concurrent use. Records are never removed and the ledger is
// not persisted; create one at process start and pass it to whoever needs it.
type Ledger struct {
	now func() time.Time

	mu      sync.RWMutex
	records []Record            // acceptance order, oldest first
	seen    map[string]struct{} // invoice numbers in records
}

// NewLedger creates an empty ledger stamping receive times from the wall clock.
func NewLedger() *Ledger {
	return NewLedgerWithClock(time.Now)
}

// NewLedgerWithClock creates an empty ledger that reads the time from now.
func NewLedgerWithClock(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:  now,
		seen: make(map[string]struct{}),
	}
}

// Insert adds rec unless a record with the same invoice number exists.
// The duplicate check and the insertion happen under one lock, so two
// concurrent inserts of the same invoice number accept exactly one.
//
// On success the stored record, stamped with ReceivedAt, is returned.
// A duplicate returns a *DuplicateError matching ErrDuplicateInvoice and
// leaves the ledger unchanged.
func (l *Ledger) Insert(rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[rec.InvoiceNumber]; exists {
		return Record{}, &DuplicateError{InvoiceNumber: rec.InvoiceNumber}
	}

	rec.ReceivedAt = l.now().Format(ReceivedAtLayout)
	l.records = append(l.records, rec)
	l.seen[rec.InvoiceNumber] = struct{}{}

	return rec, nil
}

// Snapshot returns a copy of the ledger, newest first.
func (l *Ledger) Snapshot() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, len(l.records))
	for i, rec := range l.records {
		out[len(l.records)-1-i] = rec
	}
	return out
}

// Len returns the number of accepted records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// LedgerStats summarizes the ledger for display.
type LedgerStats struct {
	Count int    `json:"count"`
	Total string `json:"total"` // sum of values, two fraction digits
}

// Stats returns the record count and value total from one consistent view.
func (l *Ledger) Stats() LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, rec := range l.records {
		// Values were formatted by Parse; anything else counts as zero.
		if d, err := decimal.NewFromString(rec.Value); err == nil {
			total = total.Add(d)
		}
	}

	return LedgerStats{
		Count: len(l.records),
		Total: total.StringFixed(2),
	}
}
