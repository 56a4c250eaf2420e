package entities

import (
	"database/sql"
	"time"
)

const (
	ShadowStatusPending  = "PENDING"
	ShadowStatusApproved = "APPROVED"
	ShadowStatusFailed   = "FAILED"
)

// PaymentShadow tracks the card leg of an order while the gateway
// conversation is in flight. Exactly one shadow row per order; callbacks
// overwrite it, the durable ledger gets its own rows.
type PaymentShadow struct {
	ID            string         `db:"id"`
	OrderID       string         `db:"order_id"`
	TransactionID string         `db:"transaction_id"`
	Method        string         `db:"method"`
	Amount        int64          `db:"amount"`
	Status        string         `db:"status"`
	ResultCode    string         `db:"result_code"`
	ResultMessage string         `db:"result_message"`
	ApprovedAt    sql.NullTime   `db:"approved_at"`
	CreatedAt     time.Time      `db:"created_at"`
}
