package entities

import (
	"time"
)

const (
	OrderStatusPending         = "PENDING"
	OrderStatusPendingApproval = "PENDING_APPROVAL"
	OrderStatusApproved        = "APPROVED"
	OrderStatusCompleted       = "COMPLETED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusFailed          = "FAILED"
)

type Order struct {
	ID          string    `db:"id"`
	Number      string    `db:"number"`
	UserID      string    `db:"user_id"`
	TotalAmount int64     `db:"total_amount"`
	PointsUsed  int64     `db:"points_used"`
	CardAmount  int64     `db:"card_amount"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Terminal reports whether no further gateway callback may move the order.
func (o Order) Terminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}

	return false
}
