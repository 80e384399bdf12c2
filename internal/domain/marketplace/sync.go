package marketplace

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Stock Synchronization Types
// ---------------------------------------------------------------------------

// SyncTask describes one SKU whose authoritative quantity must be fanned
// out to every marketplace except the origin. Produced once per SKU per
// order-processing run; each per-target update is its own success/failure
// record, the task as a whole is never retried.
type SyncTask struct {
	// SKU is the product to synchronize
	SKU string
	// NewQuantity is the authoritative quantity after the ERP mutation
	NewQuantity int64
	// OriginMarketplace is excluded from fan-out (case-insensitive match).
	// Empty for a full resync, in which case every marketplace is a target.
	OriginMarketplace string
	// RelatedOrderID links back to the ERP sales order, when applicable
	RelatedOrderID *int64
}

// TargetResult is the outcome of pushing one SKU to one marketplace.
type TargetResult struct {
	// Success indicates the marketplace accepted the update
	Success bool `json:"success"`
	// Error holds the failure message when Success is false
	Error string `json:"error,omitempty"`
}

// SyncReport aggregates per-target outcomes for one SyncTask. It contains
// one entry per target marketplace and is immutable after construction.
type SyncReport struct {
	// ID identifies this report in the audit store
	ID uuid.UUID `json:"id"`
	// SKU is the synchronized product
	SKU string `json:"sku"`
	// Quantity is the quantity that was pushed
	Quantity int64 `json:"quantity"`
	// Origin is the excluded origin marketplace, empty for a full resync
	Origin string `json:"origin,omitempty"`
	// Targets maps marketplace name to its individual outcome
	Targets map[string]TargetResult `json:"targets"`
	// CompletedAt is when the last target finished
	CompletedAt time.Time `json:"completed_at"`
}

// AllSucceeded returns true if every target accepted the update.
func (r *SyncReport) AllSucceeded() bool {
	for _, t := range r.Targets {
		if !t.Success {
			return false
		}
	}
	return true
}

// FailedTargets returns the names of targets that rejected the update.
func (r *SyncReport) FailedTargets() []string {
	var failed []string
	for name, t := range r.Targets {
		if !t.Success {
			failed = append(failed, name)
		}
	}
	return failed
}
