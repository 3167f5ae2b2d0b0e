// Package notify is the boundary to the notification subsystem. Real
// delivery (push, email) lives outside this service; the engine only
// emits the events.
package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
)

type Notifier interface {
	TransactionCompleted(ctx context.Context, tr models.Transaction)
	TransactionFailed(ctx context.Context, tr models.Transaction)
	DebtPaid(ctx context.Context, debt models.Debt)
	DebtPartiallyPaid(ctx context.Context, debt models.Debt, paid decimal.Decimal)
	DebtCreated(ctx context.Context, debt models.Debt)
	CardTerminated(ctx context.Context, card models.VirtualCard)
}

// LogNotifier writes notifications to the log. Used as the default
// implementation and in tests.
type LogNotifier struct {
	L logger.Logger
}

func (n *LogNotifier) TransactionCompleted(ctx context.Context, tr models.Transaction) {
	n.L.Info("Notify: transaction completed", "transaction_id", tr.ID, "user_id", tr.UserID, "type", tr.Type, "amount", tr.Amount)
}

func (n *LogNotifier) TransactionFailed(ctx context.Context, tr models.Transaction) {
	n.L.Info("Notify: transaction failed", "transaction_id", tr.ID, "user_id", tr.UserID, "type", tr.Type, "amount", tr.Amount)
}

func (n *LogNotifier) DebtPaid(ctx context.Context, debt models.Debt) {
	n.L.Info("Notify: debt paid in full", "debt_id", debt.ID, "user_id", debt.UserID, "amount", debt.Amount)
}

func (n *LogNotifier) DebtPartiallyPaid(ctx context.Context, debt models.Debt, paid decimal.Decimal) {
	n.L.Info("Notify: debt partially paid", "debt_id", debt.ID, "user_id", debt.UserID, "paid", paid, "remaining", debt.Amount)
}

func (n *LogNotifier) DebtCreated(ctx context.Context, debt models.Debt) {
	n.L.Info("Notify: debt recorded", "debt_id", debt.ID, "user_id", debt.UserID, "amount", debt.Amount, "label", debt.Label)
}

func (n *LogNotifier) CardTerminated(ctx context.Context, card models.VirtualCard) {
	n.L.Info("Notify: card terminated", "card_id", card.ID, "user_id", card.UserID)
}
