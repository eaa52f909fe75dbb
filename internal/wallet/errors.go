package wallet

import "errors"

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance    = errors.New("insufficient available balance")
	ErrInsufficientLocked     = errors.New("insufficient locked balance")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWalletNotActive        = errors.New("wallet is not active")
	ErrConcurrentModification = errors.New("wallet was modified concurrently, retry")
)
