package entities

import (
	"database/sql"
	"strings"
	"time"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

const (
	PaymentTypeCard        = "CARD"
	PaymentTypePoint       = "POINT"
	PaymentTypeCardRefund  = "CARD_REFUND"
	PaymentTypePointRefund = "POINT_REFUND"
)

// Payment is one row of the append-only ledger. Refunds append a new row
// with a negative amount, the original row is never mutated.
type Payment struct {
	ID          string         `db:"id"`
	OrderNumber string         `db:"order_number"`
	TID         sql.NullString `db:"tid"`
	Provider    string         `db:"provider"`
	Amount      int64          `db:"amount"`
	Status      string         `db:"status"`
	Type        string         `db:"payment_type"`
	ResultCode  string         `db:"result_code"`
	ResultMsg   string         `db:"result_msg"`
	PaymentDate time.Time      `db:"payment_date"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Active reports whether the entry counts toward the order's net balance:
// a settled positive leg. Failed and refund-type entries are audit-only.
func (p Payment) Active() bool {
	return p.Status == PaymentStatusCompleted &&
		!strings.HasSuffix(p.Type, "_REFUND") &&
		p.Amount > 0
}

func (p Payment) Refundable() bool {
	return p.Status == PaymentStatusCompleted && p.Amount > 0
}
