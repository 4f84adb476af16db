package ledger

import (
	"errors" // Sentinel errors

	"digital_wallet/internal/repository" // Repository sentinels
)

// Ledger errors. Validation and not-found errors are returned before any state
// changes; anything else coming out of Submit or Review is a storage failure
// and the unit of work has been rolled back.
var (
	ErrInvalidAmount          = errors.New("amount must be positive with at most 8 decimal places and 12 integer digits")
	ErrInvalidKind            = errors.New("unknown transaction kind")
	ErrInvalidCurrency        = errors.New("invalid currency code")
	ErrReceiverNotFound       = errors.New("receiver not found")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to yourself")
	ErrNotFlagged             = errors.New("transaction is not flagged")
	ErrInvalidAction          = errors.New("invalid action, must be approve or reject")

	ErrInsufficientFunds   = repository.ErrInsufficientFunds
	ErrWalletNotFound      = repository.ErrWalletNotFound
	ErrTransactionNotFound = repository.ErrTransactionNotFound
)

// Class groups errors by how a caller should react
type Class int

// Error classes
const (
	ClassInternal Class = iota
	ClassValidation
	ClassNotFound
	ClassInsufficientFunds
)

var codes = []struct {
	err   error
	code  string
	class Class
}{
	{ErrInvalidAmount, "InvalidAmount", ClassValidation},
	{ErrInvalidKind, "InvalidKind", ClassValidation},
	{ErrInvalidCurrency, "InvalidCurrency", ClassValidation},
	{ErrSelfTransferNotAllowed, "SelfTransferNotAllowed", ClassValidation},
	{ErrNotFlagged, "NotFlagged", ClassValidation},
	{ErrInvalidAction, "InvalidAction", ClassValidation},
	{ErrReceiverNotFound, "ReceiverNotFound", ClassNotFound},
	{ErrWalletNotFound, "WalletNotFound", ClassNotFound},
	{ErrTransactionNotFound, "TransactionNotFound", ClassNotFound},
	{ErrInsufficientFunds, "InsufficientFunds", ClassInsufficientFunds},
}

// Classify returns the stable error code and class of err
func Classify(err error) (string, Class) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code, c.class
		}
	}
	return "InternalError", ClassInternal
}
