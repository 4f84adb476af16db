package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact decimal amounts
	"gorm.io/gorm"                  // Soft delete support
)

// TransactionKind is the ledger operation requested
type TransactionKind string

// Transaction kinds
const (
	KindDeposit    TransactionKind = "DEPOSIT"
	KindWithdrawal TransactionKind = "WITHDRAWAL"
	KindTransfer   TransactionKind = "TRANSFER"
)

// Valid reports whether k is a known kind
func (k TransactionKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

// Transaction statuses
const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusFlagged   TransactionStatus = "FLAGGED"
)

// Transaction Model
//
// A Transfer that completes writes two rows: the sender's record and an inbound
// record owned by the receiver whose LinkedTransactionID points back at it.
type Transaction struct {
	ID                  uint              `gorm:"primaryKey" json:"id"`                         // Primary key
	OwnerID             uint              `gorm:"index;not null" json:"owner_id"`               // User whose history lists this row
	WalletID            uint              `gorm:"index;not null" json:"wallet_id"`              // Wallet of the owner
	SenderID            uint              `gorm:"index;not null" json:"sender_id"`              // Initiating user
	ReceiverID          uint              `gorm:"index;not null" json:"receiver_id"`            // Receiving user, equals sender for deposit/withdrawal
	SenderWalletID      uint              `json:"sender_wallet_id"`                             // Sender wallet
	ReceiverWalletID    uint              `json:"receiver_wallet_id"`                           // Receiver wallet
	LinkedTransactionID *uint             `gorm:"index" json:"linked_transaction_id,omitempty"` // Set on the receiver-side record of a transfer
	Amount              decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"amount"`    // Always positive
	Currency            string            `gorm:"size:10;not null" json:"currency"`             // Upper-case currency code
	Kind                TransactionKind   `gorm:"size:16;not null;index" json:"kind"`           // DEPOSIT, WITHDRAWAL or TRANSFER
	Status              TransactionStatus `gorm:"size:16;not null;index" json:"status"`         // Lifecycle state
	FlagReason          *string           `gorm:"size:255" json:"flag_reason,omitempty"`        // Why the transaction is held
	Description         string            `gorm:"size:512" json:"description"`                  // Free text
	Settled             bool              `gorm:"not null;default:false" json:"settled"`        // Balances have been applied
	ReviewedAt          *time.Time        `json:"reviewed_at,omitempty"`                        // Set once an admin resolved the flag
	ReviewedBy          *uint             `json:"reviewed_by,omitempty"`                        // Admin who resolved the flag
	CreatedAt           time.Time         `gorm:"index" json:"created_at"`                      // Creation time
	UpdatedAt           time.Time         `json:"updated_at"`                                   // Last update time
	DeletedAt           gorm.DeletedAt    `gorm:"index" json:"-"`                               // Soft delete marker
}

// Precision of the amount column
const (
	AmountScale         = 8  // Digits after the decimal point
	AmountIntegerDigits = 12 // Digits before it
)

var amountLimit = decimal.New(1, AmountIntegerDigits)

// AmountFits reports whether d is stored exactly by the amount column
func AmountFits(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale)) && d.Abs().LessThan(amountLimit)
}

// IsInbound reports whether the row is the receiver-side copy of a transfer
func (t *Transaction) IsInbound() bool {
	return t.LinkedTransactionID != nil
}

// Reason returns the flag reason or an empty string
func (t *Transaction) Reason() string {
	if t.FlagReason == nil {
		return ""
	}
	return *t.FlagReason
}

// Transaction log events
const (
	EventCompleted   = "completed"
	EventFlagged     = "flagged"
	EventScanFlagged = "scan_flagged"
	EventScanStale   = "scan_stale"
	EventApproved    = "approved"
	EventRejected    = "rejected"
)

// TransactionLog is an append-only audit entry for a transaction
type TransactionLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`                 // Primary key
	TransactionID uint      `gorm:"index;not null" json:"transaction_id"` // Transaction the entry is about
	Event         string    `gorm:"size:32;not null" json:"event"`        // What happened
	Detail        string    `gorm:"size:512" json:"detail"`               // Human-readable detail
	ActorID       *uint     `json:"actor_id,omitempty"`                   // Admin or user behind the event, nil for the scanner
	CreatedAt     time.Time `gorm:"index" json:"created_at"`              // When it happened
}
