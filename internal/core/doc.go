// Package core provides the business logic for NF-e ingestion.
//
// This package is the heart of the drop panel, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// the nfectl CLI, or tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Parser: [Parse] turns raw XML bytes into a [Record] or a classified
//     [ParseError]. It is stateless and never stamps a receive time.
//   - Ledger: [Ledger] is the ordered, deduplicated collection of accepted
//     records, newest first, keyed by invoice number.
//   - Service: [Service] glues parsing, insertion, upload limiting and the
//     audit trail together for callers.
//
// # Ingest Flow
//
//  1. Caller hands [Service.Ingest] an io.Reader with the uploaded file
//  2. Service acquires a slot from the [UploadLimiter]
//  3. The body is read up to the configured size and passed to [Parse]
//  4. The record goes through [Ledger.Insert]; duplicates are rejected
//  5. One [AuditEntry] is written describing the outcome
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each error category has a code for support reference:
//
//   - NFE001-NFE004: document and ledger outcomes (malformed, structure, value, duplicate)
//   - FILE001-FILE005: file errors (size, empty, missing)
//   - UPL002-UPL005: upload errors (busy, cancelled, timeout)
//
// The ledger lives for the whole process and is never persisted. The audit
// trail is write-only and is never replayed into the ledger.
package core
