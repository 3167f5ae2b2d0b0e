package gateway

import "github.com/sendo/ledger/internal/models"

// MapStatus translates the partner status vocabulary onto the internal
// three state one. It is the only place partner status strings are
// interpreted; every call site branching on settlement state goes
// through here. Anything unknown maps to PENDING so a later signal can
// still resolve it.
func MapStatus(partnerStatus string) string {
	switch partnerStatus {
	case "completed", "succeeded", "settled":
		return models.TransactionStatusCompleted
	case "failed", "declined", "cancelled", "expired":
		return models.TransactionStatusFailed
	default:
		return models.TransactionStatusPending
	}
}
