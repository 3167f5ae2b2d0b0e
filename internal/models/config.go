package models

import "github.com/shopspring/decimal"

// Operation config parameter names. Values are administered outside this
// service and read per call.
const (
	ConfigDepositFeePercent     = "DEPOSIT_FEE_PERCENT"
	ConfigDepositFeeFixed       = "DEPOSIT_FEE_FIXED"
	ConfigWithdrawalFeePercent  = "WITHDRAWAL_FEE_PERCENT"
	ConfigWithdrawalFeeFixed    = "WITHDRAWAL_FEE_FIXED"
	ConfigCardFundingFeePercent = "CARD_FUNDING_FEE_PERCENT"
	ConfigCardFundingFeeFixed   = "CARD_FUNDING_FEE_FIXED"
	ConfigCardPaymentFeePercent = "CARD_PAYMENT_FEE_PERCENT"
	ConfigCardPaymentFeeFixed   = "CARD_PAYMENT_FEE_FIXED"
	ConfigCardRejectFee         = "CARD_REJECT_FEE"
	ConfigCardUnlockFee         = "CARD_UNLOCK_FEE"
)

type ConfigParam struct {
	Name  string
	Value decimal.Decimal
}
