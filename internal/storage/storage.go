package storage

import (
	"context"
	"errors"

	"github.com/dkurilov/checkout/internal/entities"
)

var (
	ErrConflict        = errors.New("conflict")
	ErrNoRows          = errors.New("no rows")
	ErrNotEnoughPoints = errors.New("not enough points")
	ErrOrderTerminal   = errors.New("order already terminal")
	ErrAlreadyRefunded = errors.New("already refunded")
	ErrNothingToRefund = errors.New("nothing to refund")
)

// CreateOrderParams carries one order-creation commit. Completed marks the
// points-only fast path: the order settles at creation, Bonus is credited.
type CreateOrderParams struct {
	UserID      string
	Number      string
	TotalAmount int64
	PointsUsed  int64
	CardAmount  int64
	Completed   bool
	Bonus       int64
}

// Storage is the single source of truth. Every mutating method is one
// atomic commit; the order row acts as the per-order mutual exclusion
// boundary.
type Storage interface {
	CreateUser(ctx context.Context, login string, passwordHash string) (string, error)
	GetUser(ctx context.Context, login string, passwordHash string) (string, error)
	GetUserByID(ctx context.Context, id string) (entities.User, error)

	CreateOrder(ctx context.Context, params CreateOrderParams) (entities.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (entities.Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]entities.Order, error)

	ListPayments(ctx context.Context, orderNumber string) ([]entities.Payment, error)
	FindLatestPaymentByTID(ctx context.Context, orderNumber string, tid string) (entities.Payment, error)
	FindRefundableByTID(ctx context.Context, tid string) (entities.Payment, error)
	FindRefundableCardByOrder(ctx context.Context, orderNumber string) (entities.Payment, error)

	LatestShadow(ctx context.Context, orderID string) (entities.PaymentShadow, error)

	MarkOrderPendingApproval(ctx context.Context, orderID string) error
	CompleteCardPayment(ctx context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, bonus int64) error
	FailCardPayment(ctx context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, restore int64) error
	AppendCardRefund(ctx context.Context, entry entities.Payment) error
	RefundPoints(ctx context.Context, order entities.Order, reason string) (int64, error)

	SaveGatewayCall(ctx context.Context, log entities.GatewayLog) error
}
