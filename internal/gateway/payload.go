package gateway

import (
	"github.com/shopspring/decimal"
)

// Payment type tags known to the settlement partner.
const (
	paymentTypeMobileMoney  = "mobile_money"
	paymentTypeCard         = "card"
	paymentTypeBankTransfer = "bank_transfer"
)

// intentRequest is the wire form of a create cash-in/cash-out call.
// Confirm is always true: this core never creates unconfirmed intents.
type intentRequest struct {
	Amount                     decimal.Decimal `json:"amount"`
	CurrencyCode               string          `json:"currencyCode"`
	PaymentType                string          `json:"paymentType"`
	SourcePaymentMethodID      string          `json:"sourcePaymentMethodId,omitempty"`
	DestinationPaymentMethodID string          `json:"destinationPaymentMethodId,omitempty"`
	Confirm                    bool            `json:"confirm"`
}

// Payload is one settlement leg, one variant per rail. The set is closed:
// only this package can produce the wire request.
type Payload interface {
	// Amounts handed to the partner must already be rounded to a
	// multiple of 5 per the platform rounding policy.
	Amount() decimal.Decimal
	Currency() string

	wire() intentRequest
}

// MobileMoneyPayload moves funds over a carrier mobile-money account.
type MobileMoneyPayload struct {
	Value        decimal.Decimal
	CurrencyCode string
	// Source and Destination are partner payment-method handles; for a
	// cash-in the source is the payer's mobile-money handle.
	Source      string
	Destination string
}

func (p MobileMoneyPayload) Amount() decimal.Decimal { return p.Value }
func (p MobileMoneyPayload) Currency() string        { return p.CurrencyCode }

func (p MobileMoneyPayload) wire() intentRequest {
	return intentRequest{
		Amount:                     p.Value,
		CurrencyCode:               p.CurrencyCode,
		PaymentType:                paymentTypeMobileMoney,
		SourcePaymentMethodID:      p.Source,
		DestinationPaymentMethodID: p.Destination,
		Confirm:                    true,
	}
}

// CardPayload funds or debits a virtual card payment method.
type CardPayload struct {
	Value        decimal.Decimal
	CurrencyCode string
	Source       string
	Destination  string
}

func (p CardPayload) Amount() decimal.Decimal { return p.Value }
func (p CardPayload) Currency() string        { return p.CurrencyCode }

func (p CardPayload) wire() intentRequest {
	return intentRequest{
		Amount:                     p.Value,
		CurrencyCode:               p.CurrencyCode,
		PaymentType:                paymentTypeCard,
		SourcePaymentMethodID:      p.Source,
		DestinationPaymentMethodID: p.Destination,
		Confirm:                    true,
	}
}

// BankPayload pays out to an external bank account handle.
type BankPayload struct {
	Value        decimal.Decimal
	CurrencyCode string
	Source       string
	Destination  string
}

func (p BankPayload) Amount() decimal.Decimal { return p.Value }
func (p BankPayload) Currency() string        { return p.CurrencyCode }

func (p BankPayload) wire() intentRequest {
	return intentRequest{
		Amount:                     p.Value,
		CurrencyCode:               p.CurrencyCode,
		PaymentType:                paymentTypeBankTransfer,
		SourcePaymentMethodID:      p.Source,
		DestinationPaymentMethodID: p.Destination,
		Confirm:                    true,
	}
}
