package reconciler

import "github.com/shopspring/decimal"

// Partner webhook event types. Everything else is acknowledged and
// dropped: the partner keeps retrying events that are not answered 200.
const (
	EventIntentStatusUpdated = "transactionIntent.statusUpdated"
	EventCardTransaction     = "cardManagement.onlineTransactions"
	EventOnboardingUpdated   = "partyOnboardingSession.statusUpdated"
)

// Event is the partner webhook envelope. One shape for all event
// types; which object fields are set depends on Type.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	Object EventObject `json:"object"`
}

type EventObject struct {
	// Set on transactionIntent.statusUpdated
	TransactionIntentID string `json:"transactionIntentId,omitempty"`
	NewStatus           string `json:"newStatus,omitempty"`

	// Set on cardManagement.onlineTransactions and onboarding events
	CardID          string          `json:"cardId,omitempty"`
	Status          string          `json:"status,omitempty"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
	PaymentMethodID string          `json:"paymentMethodId,omitempty"`
}

// StatusValue returns whichever status field the partner filled in.
// Intent events use newStatus, card and onboarding events use status.
func (o EventObject) StatusValue() string {
	if o.NewStatus != "" {
		return o.NewStatus
	}
	return o.Status
}
