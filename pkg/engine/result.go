package engine

import (
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
)

// Result is the transient outcome of one mutating operation. A populated
// OnChainError alongside a non-empty ContentRef is the explicit partial-
// failure state: the content store holds the admin's intent, the ledger
// does not yet hold the economic fact, and the operation can be retried
// idempotently with the same key.
type Result struct {
	ReceiptID string           `json:"receipt_id"`
	Signature ledger.Signature `json:"signature,omitempty"`

	// Derived addresses, populated per operation.
	MintAddress       string `json:"mint_address,omitempty"`
	CollectionAddress string `json:"collection_address,omitempty"`
	AssetAddress      string `json:"asset_address,omitempty"`

	// ContentRef identifies the exact stored revision ("id@sha256:...").
	ContentRef string `json:"content_ref,omitempty"`
	ArchiveID  string `json:"archive_id,omitempty"`

	// OnChainError is set when the ledger step failed after the content
	// store write succeeded. Empty on full success.
	OnChainError string `json:"on_chain_error,omitempty"`
}

// PartialFailure reports whether the operation saved content but failed
// on-chain.
func (r *Result) PartialFailure() bool {
	return r.OnChainError != ""
}

// ItemFailure records one failed item of a bulk operation.
type ItemFailure struct {
	CourseID string `json:"course_id"`
	Reason   string `json:"reason"`
}

// BulkResult aggregates a fan-out operation. One item's failure never
// aborts its siblings.
type BulkResult struct {
	Uploaded int           `json:"uploaded"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Failures []ItemFailure `json:"failures,omitempty"`
}
