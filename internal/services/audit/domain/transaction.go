package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a read-only view of a payment transaction.
type Transaction struct {
	ID            string
	MerchantID    string
	Amount        decimal.Decimal
	Currency      string
	State         State
	CreatedAt     time.Time
	RetryCount    int
	FailureReason *string
}
