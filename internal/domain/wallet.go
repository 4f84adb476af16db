package domain

import (
	"database/sql/driver" // Valuer interface
	"encoding/json"       // Balances are stored as a JSON document
	"errors"              // Scan errors
	"time"                // Timestamps

	"github.com/shopspring/decimal" // Exact decimal arithmetic
	"gorm.io/gorm"                  // Soft delete and dialect lookup
	"gorm.io/gorm/schema"           // Field metadata for GormDBDataType
)

// Currencies every new wallet starts with. The set is open: any other code
// reads as zero until first credited.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "JPY", "INR", "BONUS"}

// Balances maps a currency code to its balance
type Balances map[string]decimal.Decimal

// NewBalances returns zero balances for the default currencies
func NewBalances() Balances {
	b := make(Balances, len(DefaultCurrencies))
	for _, c := range DefaultCurrencies {
		b[c] = decimal.Zero
	}
	return b
}

// Get returns the balance for currency, zero when absent
func (b Balances) Get(currency string) decimal.Decimal {
	if v, ok := b[currency]; ok {
		return v
	}
	return decimal.Zero
}

// Value implements driver.Valuer
func (b Balances) Value() (driver.Value, error) {
	if b == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]decimal.Decimal(b))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner
func (b *Balances) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*b = Balances{}
		return nil
	default:
		return errors.New("balances: unsupported column type")
	}
	m := map[string]decimal.Decimal{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
	}
	*b = m
	return nil
}

// GormDataType is the generic column type
func (Balances) GormDataType() string {
	return "json"
}

// GormDBDataType picks the native JSON type per dialect
func (Balances) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return "TEXT"
}

// Wallet Model
type Wallet struct {
	ID        uint           `gorm:"primaryKey" json:"id"`                // Primary key
	UserID    uint           `gorm:"uniqueIndex;not null" json:"user_id"` // One wallet per user
	Balances  Balances       `gorm:"not null" json:"balances"`            // Per-currency balances
	CreatedAt time.Time      `json:"created_at"`                          // Creation time
	UpdatedAt time.Time      `json:"updated_at"`                          // Last balance change
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                      // Soft delete marker
}
