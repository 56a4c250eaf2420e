package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/dkurilov/checkout/internal/gateway"
	"github.com/dkurilov/checkout/internal/points"
	"github.com/dkurilov/checkout/internal/services/ordernumber"
	"github.com/dkurilov/checkout/internal/storage"
	"go.uber.org/zap"
)

const createOrderRetries = 3

var (
	ErrUnknownOrder    = errors.New("unknown order")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrInvalidAmounts  = errors.New("invalid order amounts")
)

// GatewayCaller is the outbound half of a provider conversation. The
// gateway.Client satisfies it; tests substitute their own.
type GatewayCaller interface {
	Approve(ctx context.Context, authURL, authToken, orderNumber string) (gateway.Result, error)
	Refund(ctx context.Context, tid, reason, clientIP string) (gateway.Result, error)
}

// Outcome is the engine's answer to one inbound callback or refund
// request. Duplicate marks a replay that produced no new writes.
type Outcome struct {
	Success       bool
	Duplicate     bool
	OrderNumber   string
	ResultCode    string
	ResultMessage string
	Amount        int64
}

type registration struct {
	provider *gateway.Provider
	caller   GatewayCaller
}

// Engine drives every order through its settlement lifecycle. It decides;
// the storage commits. All writes go through single-transaction storage
// methods, so a crash between decision and commit loses nothing partial.
type Engine struct {
	storage        storage.Storage
	providers      map[string]registration
	trustConfirmed bool
}

func NewEngine(storage storage.Storage, trustConfirmed bool) *Engine {
	return &Engine{
		storage:        storage,
		providers:      make(map[string]registration),
		trustConfirmed: trustConfirmed,
	}
}

func (e *Engine) Register(provider *gateway.Provider, caller GatewayCaller) {
	e.providers[provider.Name] = registration{provider: provider, caller: caller}
}

// CreateOrder opens a new order. When points cover the whole total the
// order settles immediately and the bonus is credited in the same commit;
// otherwise it stays PENDING until the gateway calls back.
func (e *Engine) CreateOrder(ctx context.Context, userID string, totalAmount, pointsUsed int64) (entities.Order, error) {
	if totalAmount <= 0 || pointsUsed < 0 || pointsUsed > totalAmount {
		return entities.Order{}, ErrInvalidAmounts
	}

	cardAmount := totalAmount - pointsUsed
	completed := cardAmount == 0

	params := storage.CreateOrderParams{
		UserID:      userID,
		TotalAmount: totalAmount,
		PointsUsed:  pointsUsed,
		CardAmount:  cardAmount,
		Completed:   completed,
		Bonus:       points.Bonus(totalAmount),
	}

	for attempt := 0; attempt < createOrderRetries; attempt++ {
		params.Number = ordernumber.Generate()

		order, err := e.storage.CreateOrder(ctx, params)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}

			return entities.Order{}, err
		}

		return order, nil
	}

	return entities.Order{}, fmt.Errorf("cannot allocate unique order number: %w", storage.ErrConflict)
}

// HandleNotify processes the server-to-server notification channel. It is
// the authoritative settlement signal and must be idempotent: a replayed
// notification answers from the ledger without writing anything.
func (e *Engine) HandleNotify(ctx context.Context, provider string, params map[string]string) (Outcome, error) {
	reg, ok := e.providers[provider]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	result, err := gateway.Parse(provider, params)
	if err != nil {
		return Outcome{}, err
	}

	order, err := e.lookupOrder(ctx, result.OrderNumber)
	if err != nil {
		return Outcome{}, err
	}

	if outcome, replay := e.findReplay(ctx, order, result.TID); replay {
		return outcome, nil
	}

	return e.settle(ctx, reg.provider, order, result)
}

// HandleResponse processes the browser-return channel. When the callback
// carries handshake material the approve leg runs first and its answer
// supersedes the first leg.
func (e *Engine) HandleResponse(ctx context.Context, provider string, params map[string]string) (Outcome, error) {
	reg, ok := e.providers[provider]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	result, err := gateway.Parse(provider, params)
	if err != nil {
		return Outcome{}, err
	}

	order, err := e.lookupOrder(ctx, result.OrderNumber)
	if err != nil {
		return Outcome{}, err
	}

	if outcome, replay := e.findReplay(ctx, order, result.TID); replay {
		return outcome, nil
	}

	if reg.provider.Success(result.ResultCode) && result.AuthURL != "" && result.AuthToken != "" {
		if err := e.storage.MarkOrderPendingApproval(ctx, order.ID); err != nil {
			if errors.Is(err, storage.ErrOrderTerminal) {
				return e.terminalOutcome(ctx, order.Number)
			}

			return Outcome{}, err
		}

		result = e.approve(ctx, reg, order, result)
	}

	return e.settle(ctx, reg.provider, order, result)
}

// approve runs the second handshake leg. The approve answer is
// authoritative when it arrives; a transport failure falls back to the
// configured trust policy, since the first leg already said the customer
// paid.
func (e *Engine) approve(ctx context.Context, reg registration, order entities.Order, result gateway.Result) gateway.Result {
	approved, err := reg.caller.Approve(ctx, result.AuthURL, result.AuthToken, order.Number)
	if err != nil {
		zap.L().Info(
			"approve call failed",
			zap.String("order", order.Number),
			zap.Bool("trustConfirmed", e.trustConfirmed),
			zap.Error(err),
		)

		if e.trustConfirmed {
			return result
		}

		result.ResultCode = "9999"
		result.ResultMessage = "approve call failed"

		return result
	}

	result.ResultCode = approved.ResultCode
	if approved.ResultMessage != "" {
		result.ResultMessage = approved.ResultMessage
	}

	if approved.TID.Authoritative() {
		result.TID = approved.TID
	}

	if approved.Amount > 0 {
		result.Amount = approved.Amount
	}

	return result
}

// settle turns one parsed callback into a commit. Success requires both a
// passing result code and, when the callback states an amount, agreement
// with what the order expects to be charged.
func (e *Engine) settle(ctx context.Context, provider *gateway.Provider, order entities.Order, result gateway.Result) (Outcome, error) {
	success := provider.Success(result.ResultCode)

	if success && result.Amount != 0 && result.Amount != order.CardAmount {
		success = false
		result.ResultCode = "9998"
		result.ResultMessage = fmt.Sprintf("amount mismatch: callback %d, order %d", result.Amount, order.CardAmount)
	}

	entry := entities.Payment{
		OrderNumber: order.Number,
		TID:         ledgerTID(result.TID),
		Provider:    provider.Name,
		Amount:      order.CardAmount,
		Type:        entities.PaymentTypeCard,
		ResultCode:  result.ResultCode,
		ResultMsg:   result.ResultMessage,
	}

	shadow := entities.PaymentShadow{
		OrderID:       order.ID,
		TransactionID: result.TID.String(),
		Method:        entities.PaymentTypeCard,
		Amount:        order.CardAmount,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
	}

	var err error

	if success {
		entry.Status = entities.PaymentStatusCompleted
		shadow.Status = entities.ShadowStatusApproved
		shadow.ApprovedAt = sql.NullTime{Time: time.Now(), Valid: true}

		err = e.storage.CompleteCardPayment(ctx, order.ID, shadow, entry, points.Bonus(order.TotalAmount))
	} else {
		entry.Status = entities.PaymentStatusFailed
		shadow.Status = entities.ShadowStatusFailed

		err = e.storage.FailCardPayment(ctx, order.ID, shadow, entry, points.Restore(order.PointsUsed))
	}

	if err != nil {
		if errors.Is(err, storage.ErrOrderTerminal) {
			return e.terminalOutcome(ctx, order.Number)
		}

		return Outcome{}, err
	}

	return Outcome{
		Success:       success,
		OrderNumber:   order.Number,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
		Amount:        order.CardAmount,
	}, nil
}

// RefundByTID voids one settled card transaction and appends the negative
// ledger leg. The original entry is never touched.
func (e *Engine) RefundByTID(ctx context.Context, tid, reason, clientIP string) (Outcome, error) {
	entry, err := e.storage.FindRefundableByTID(ctx, tid)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return Outcome{}, storage.ErrNothingToRefund
		}

		return Outcome{}, err
	}

	return e.refundCard(ctx, entry, reason, clientIP)
}

// RefundByOrderNumber finds the latest settled card entry of an order and
// refunds it.
func (e *Engine) RefundByOrderNumber(ctx context.Context, orderNumber, reason, clientIP string) (Outcome, error) {
	if err := ordernumber.Validate(orderNumber); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnknownOrder, err)
	}

	entry, err := e.storage.FindRefundableCardByOrder(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return Outcome{}, storage.ErrNothingToRefund
		}

		return Outcome{}, err
	}

	return e.refundCard(ctx, entry, reason, clientIP)
}

func (e *Engine) refundCard(ctx context.Context, entry entities.Payment, reason, clientIP string) (Outcome, error) {
	if !entry.TID.Valid {
		return Outcome{}, storage.ErrNothingToRefund
	}

	reg, ok := e.providers[entry.Provider]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownProvider, entry.Provider)
	}

	result, err := reg.caller.Refund(ctx, entry.TID.String, reason, clientIP)
	if err != nil {
		return Outcome{}, err
	}

	if !reg.provider.RefundSuccess(result.ResultCode) {
		return Outcome{
			OrderNumber:   entry.OrderNumber,
			ResultCode:    result.ResultCode,
			ResultMessage: result.ResultMessage,
		}, nil
	}

	refund := entities.Payment{
		OrderNumber: entry.OrderNumber,
		TID:         entry.TID,
		Provider:    entry.Provider,
		Amount:      -entry.Amount,
		Status:      entities.PaymentStatusRefunded,
		Type:        entities.PaymentTypeCardRefund,
		ResultCode:  result.ResultCode,
		ResultMsg:   reason,
	}

	if err := e.storage.AppendCardRefund(ctx, refund); err != nil {
		if errors.Is(err, storage.ErrAlreadyRefunded) {
			return Outcome{
				Success:     true,
				Duplicate:   true,
				OrderNumber: entry.OrderNumber,
				Amount:      entry.Amount,
			}, nil
		}

		return Outcome{}, err
	}

	return Outcome{
		Success:       true,
		OrderNumber:   entry.OrderNumber,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
		Amount:        entry.Amount,
	}, nil
}

// RefundPoints reverses the points leg of an order on its own: the points
// go back to the customer and a negative POINT_REFUND entry records it.
func (e *Engine) RefundPoints(ctx context.Context, orderNumber, reason string) (Outcome, error) {
	order, err := e.lookupOrder(ctx, orderNumber)
	if err != nil {
		return Outcome{}, err
	}

	restored, err := e.storage.RefundPoints(ctx, order, reason)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Success:     true,
		OrderNumber: order.Number,
		Amount:      restored,
	}, nil
}

// lookupOrder resolves an externally supplied order number. Numbers that
// fail the check-digit validation are rejected before touching storage.
func (e *Engine) lookupOrder(ctx context.Context, orderNumber string) (entities.Order, error) {
	if err := ordernumber.Validate(orderNumber); err != nil {
		return entities.Order{}, fmt.Errorf("%w: %v", ErrUnknownOrder, err)
	}

	order, err := e.storage.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderNumber)
		}

		return entities.Order{}, err
	}

	return order, nil
}

// findReplay answers a callback that carries an authoritative transaction
// id the ledger has already settled. Placeholder ids never match, every
// such callback is treated as first contact.
func (e *Engine) findReplay(ctx context.Context, order entities.Order, tid gateway.TID) (Outcome, bool) {
	if !tid.Authoritative() {
		return Outcome{}, false
	}

	entry, err := e.storage.FindLatestPaymentByTID(ctx, order.Number, tid.Value)
	if err != nil {
		return Outcome{}, false
	}

	if entry.Status != entities.PaymentStatusCompleted && entry.Status != entities.PaymentStatusFailed {
		return Outcome{}, false
	}

	return Outcome{
		Success:       entry.Status == entities.PaymentStatusCompleted,
		Duplicate:     true,
		OrderNumber:   order.Number,
		ResultCode:    entry.ResultCode,
		ResultMessage: entry.ResultMsg,
		Amount:        entry.Amount,
	}, true
}

// terminalOutcome reports the settled state of an order that another
// in-flight callback finished first.
func (e *Engine) terminalOutcome(ctx context.Context, orderNumber string) (Outcome, error) {
	order, err := e.storage.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Success:     order.Status == entities.OrderStatusCompleted,
		Duplicate:   true,
		OrderNumber: order.Number,
	}, nil
}

func ledgerTID(tid gateway.TID) sql.NullString {
	if !tid.Authoritative() {
		return sql.NullString{}
	}

	return sql.NullString{String: tid.Value, Valid: true}
}
