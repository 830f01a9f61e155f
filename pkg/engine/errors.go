package engine

import (
	"errors"
	"fmt"
)

// ErrMissingCapability is returned when an operation is called without an
// admin capability token.
var ErrMissingCapability = errors.New("engine: missing admin capability")

// PolicyViolation wraps a policy sentinel. Never retried automatically;
// surfaced to the admin verbatim. Nothing was applied anywhere.
type PolicyViolation struct {
	Err error
}

func (e *PolicyViolation) Error() string { return fmt.Sprintf("policy violation: %v", e.Err) }
func (e *PolicyViolation) Unwrap() error { return e.Err }

// ContentStoreError means the cheap, reversible write failed. The ledger
// was never touched; the whole operation is safe to retry.
type ContentStoreError struct {
	Err error
}

func (e *ContentStoreError) Error() string { return fmt.Sprintf("content store: %v", e.Err) }
func (e *ContentStoreError) Unwrap() error { return e.Err }

// LedgerError means the authoritative submission failed with nothing
// partially applied (operations that carry no off-chain content). Retryable
// with the same idempotency key.
type LedgerError struct {
	Err error
}

func (e *LedgerError) Error() string { return fmt.Sprintf("ledger: %v", e.Err) }
func (e *LedgerError) Unwrap() error { return e.Err }

// ArchiveError is the soft failure: the course remains fully valid without
// an archive copy. Bulk operations report it as a count, not an abort.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string { return fmt.Sprintf("archive: %v", e.Err) }
func (e *ArchiveError) Unwrap() error { return e.Err }
