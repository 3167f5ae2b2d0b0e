package apperrors

import (
	"errors"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists for user")
	ErrWalletNotActive     = errors.New("wallet is not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")

	ErrCardNotFound   = errors.New("card not found")
	ErrCardTerminated = errors.New("card is terminated")

	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrTransactionAlreadyFinal = errors.New("transaction already in terminal status")
	ErrDuplicateExternalRef    = errors.New("external reference already used")

	ErrDebtNotFound = errors.New("debt not found")

	ErrConfigNotFound = errors.New("config parameter not found")
)
