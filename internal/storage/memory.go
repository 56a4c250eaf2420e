package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/google/uuid"
)

// MemoryStorage mirrors the Postgres semantics without a database. Used
// by tests; the mutex stands in for the per-order row lock.
type MemoryStorage struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*entities.User
	orders   map[string]*entities.Order
	payments []memoryPayment
	shadows  []entities.PaymentShadow
	calls    []entities.GatewayLog
}

type memoryPayment struct {
	entities.Payment
	seq int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:  make(map[string]*entities.User),
		orders: make(map[string]*entities.Order),
	}
}

func (s *MemoryStorage) CreateUser(_ context.Context, login string, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Login == login {
			return "", ErrConflict
		}
	}

	user := &entities.User{
		ID:       uuid.NewString(),
		Login:    login,
		Password: passwordHash,
	}
	s.users[user.ID] = user

	return user.ID, nil
}

func (s *MemoryStorage) GetUser(_ context.Context, login string, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Login == login && user.Password == passwordHash {
			return user.ID, nil
		}
	}

	return "", ErrNoRows
}

func (s *MemoryStorage) GetUserByID(_ context.Context, id string) (entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return entities.User{}, ErrNoRows
	}

	return *user, nil
}

// SeedUser registers a user with a preset points balance. Test helper.
func (s *MemoryStorage) SeedUser(login string, points int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &entities.User{
		ID:     uuid.NewString(),
		Login:  login,
		Points: points,
	}
	s.users[user.ID] = user

	return user.ID
}

func (s *MemoryStorage) CreateOrder(_ context.Context, params CreateOrderParams) (entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[params.UserID]
	if !ok {
		return entities.Order{}, ErrNoRows
	}

	if user.Points < params.PointsUsed {
		return entities.Order{}, ErrNotEnoughPoints
	}

	for _, order := range s.orders {
		if order.Number == params.Number {
			return entities.Order{}, ErrConflict
		}
	}

	status := entities.OrderStatusPending
	if params.Completed {
		status = entities.OrderStatusCompleted
	}

	now := time.Now()
	order := &entities.Order{
		ID:          uuid.NewString(),
		Number:      params.Number,
		UserID:      params.UserID,
		TotalAmount: params.TotalAmount,
		PointsUsed:  params.PointsUsed,
		CardAmount:  params.CardAmount,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.orders[order.ID] = order

	if params.PointsUsed > 0 {
		user.Points -= params.PointsUsed

		s.appendPayment(entities.Payment{
			OrderNumber: order.Number,
			Amount:      params.PointsUsed,
			Status:      entities.PaymentStatusCompleted,
			Type:        entities.PaymentTypePoint,
			ResultCode:  "0000",
			ResultMsg:   "points used",
		})
	}

	if params.Completed && params.Bonus > 0 {
		user.Points += params.Bonus
	}

	if !params.Completed {
		s.upsertShadow(order.ID, entities.PaymentShadow{
			OrderID: order.ID,
			Method:  entities.PaymentTypeCard,
			Amount:  params.CardAmount,
			Status:  entities.ShadowStatusPending,
		})
	}

	return *order, nil
}

func (s *MemoryStorage) MarkOrderPendingApproval(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrNoRows
	}

	if order.Terminal() {
		return ErrOrderTerminal
	}

	if order.Status == entities.OrderStatusPending {
		order.Status = entities.OrderStatusPendingApproval
		order.UpdatedAt = time.Now()
	}

	return nil
}

func (s *MemoryStorage) GetOrderByNumber(_ context.Context, number string) (entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.orderByNumber(number)
	if order == nil {
		return entities.Order{}, ErrNoRows
	}

	return *order, nil
}

func (s *MemoryStorage) GetUserOrders(_ context.Context, userID string) ([]entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []entities.Order

	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	return orders, nil
}

func (s *MemoryStorage) ListPayments(_ context.Context, orderNumber string) ([]entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paymentsByOrder(orderNumber), nil
}

func (s *MemoryStorage) FindLatestPaymentByTID(_ context.Context, orderNumber string, tid string) (entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, payment := range s.paymentsByOrder(orderNumber) {
		if payment.TID.Valid && payment.TID.String == tid {
			return payment, nil
		}
	}

	return entities.Payment{}, ErrNoRows
}

func (s *MemoryStorage) FindRefundableByTID(_ context.Context, tid string) (entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payments := s.sortedPayments()
	for _, payment := range payments {
		if payment.TID.Valid && payment.TID.String == tid && payment.Refundable() {
			return payment, nil
		}
	}

	return entities.Payment{}, ErrNoRows
}

func (s *MemoryStorage) FindRefundableCardByOrder(_ context.Context, orderNumber string) (entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, payment := range s.paymentsByOrder(orderNumber) {
		if payment.Type == entities.PaymentTypeCard && payment.Refundable() {
			return payment, nil
		}
	}

	return entities.Payment{}, ErrNoRows
}

func (s *MemoryStorage) LatestShadow(_ context.Context, orderID string) (entities.PaymentShadow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.shadows) - 1; i >= 0; i-- {
		if s.shadows[i].OrderID == orderID {
			return s.shadows[i], nil
		}
	}

	return entities.PaymentShadow{}, ErrNoRows
}

func (s *MemoryStorage) CompleteCardPayment(_ context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, bonus int64) error {
	return s.settle(orderID, entities.OrderStatusCompleted, shadow, entry, bonus)
}

func (s *MemoryStorage) FailCardPayment(_ context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, restore int64) error {
	return s.settle(orderID, entities.OrderStatusFailed, shadow, entry, restore)
}

func (s *MemoryStorage) settle(orderID string, status string, shadow entities.PaymentShadow, entry entities.Payment, pointsDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrNoRows
	}

	if order.Terminal() {
		return ErrOrderTerminal
	}

	order.Status = status
	order.UpdatedAt = time.Now()

	s.upsertShadow(orderID, shadow)
	s.appendPayment(entry)

	if pointsDelta != 0 {
		if user, ok := s.users[order.UserID]; ok {
			user.Points += pointsDelta
		}
	}

	return nil
}

func (s *MemoryStorage) AppendCardRefund(_ context.Context, entry entities.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.orderByNumber(entry.OrderNumber)
	if order == nil {
		return ErrNoRows
	}

	for _, payment := range s.paymentsByOrder(entry.OrderNumber) {
		if payment.TID == entry.TID && payment.Type == entry.Type {
			return ErrAlreadyRefunded
		}
	}

	s.appendPayment(entry)
	s.recomputeStatus(order)

	return nil
}

func (s *MemoryStorage) RefundPoints(_ context.Context, lookup entities.Order, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[lookup.ID]
	if !ok {
		return 0, ErrNoRows
	}

	// A FAILED order already had its points restored when the card leg
	// failed, a second credit here would double the balance.
	if order.Status == entities.OrderStatusFailed {
		return 0, ErrAlreadyRefunded
	}

	var total int64

	for _, payment := range s.paymentsByOrder(order.Number) {
		if payment.Type == entities.PaymentTypePointRefund {
			return 0, ErrAlreadyRefunded
		}

		if payment.Type == entities.PaymentTypePoint && payment.Status == entities.PaymentStatusCompleted {
			total += payment.Amount
		}
	}

	if total == 0 {
		return 0, ErrNothingToRefund
	}

	if user, ok := s.users[order.UserID]; ok {
		user.Points += total
	}

	s.appendPayment(entities.Payment{
		OrderNumber: order.Number,
		Amount:      -total,
		Status:      entities.PaymentStatusRefunded,
		Type:        entities.PaymentTypePointRefund,
		ResultCode:  "0000",
		ResultMsg:   "points refund: " + reason,
	})

	s.recomputeStatus(order)

	return total, nil
}

func (s *MemoryStorage) SaveGatewayCall(_ context.Context, log entities.GatewayLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = uuid.NewString()
	log.CreatedAt = time.Now()
	s.calls = append(s.calls, log)

	return nil
}

// GatewayCalls returns the recorded call log. Test helper.
func (s *MemoryStorage) GatewayCalls() []entities.GatewayLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]entities.GatewayLog, len(s.calls))
	copy(calls, s.calls)

	return calls
}

func (s *MemoryStorage) appendPayment(entry entities.Payment) {
	entry.ID = uuid.NewString()
	now := time.Now()
	if entry.PaymentDate.IsZero() {
		entry.PaymentDate = now
	}
	entry.CreatedAt = now

	s.seq++
	s.payments = append(s.payments, memoryPayment{Payment: entry, seq: s.seq})
}

func (s *MemoryStorage) upsertShadow(orderID string, shadow entities.PaymentShadow) {
	for i := len(s.shadows) - 1; i >= 0; i-- {
		if s.shadows[i].OrderID == orderID {
			s.shadows[i].TransactionID = shadow.TransactionID
			s.shadows[i].Status = shadow.Status
			s.shadows[i].ResultCode = shadow.ResultCode
			s.shadows[i].ResultMessage = shadow.ResultMessage
			s.shadows[i].ApprovedAt = shadow.ApprovedAt

			return
		}
	}

	shadow.ID = uuid.NewString()
	shadow.OrderID = orderID
	shadow.CreatedAt = time.Now()
	s.shadows = append(s.shadows, shadow)
}

func (s *MemoryStorage) orderByNumber(number string) *entities.Order {
	for _, order := range s.orders {
		if order.Number == number {
			return order
		}
	}

	return nil
}

// paymentsByOrder returns newest-first, matching the Postgres ordering.
func (s *MemoryStorage) paymentsByOrder(orderNumber string) []entities.Payment {
	var payments []entities.Payment

	for _, payment := range s.sortedPayments() {
		if payment.OrderNumber == orderNumber {
			payments = append(payments, payment)
		}
	}

	return payments
}

func (s *MemoryStorage) sortedPayments() []entities.Payment {
	indexed := make([]memoryPayment, len(s.payments))
	copy(indexed, s.payments)

	sort.Slice(indexed, func(i, j int) bool {
		return indexed[i].seq > indexed[j].seq
	})

	payments := make([]entities.Payment, 0, len(indexed))
	for _, payment := range indexed {
		payments = append(payments, payment.Payment)
	}

	return payments
}

func (s *MemoryStorage) recomputeStatus(order *entities.Order) {
	var chargedAmount, refundAmount int64

	for _, payment := range s.paymentsByOrder(order.Number) {
		if payment.Active() {
			chargedAmount += payment.Amount
		}

		if payment.Amount < 0 {
			refundAmount += -payment.Amount
		}
	}

	if chargedAmount-refundAmount <= 0 && refundAmount > 0 && order.Status != entities.OrderStatusCancelled {
		order.Status = entities.OrderStatusCancelled
		order.UpdatedAt = time.Now()
	}
}

var _ Storage = (*MemoryStorage)(nil)
