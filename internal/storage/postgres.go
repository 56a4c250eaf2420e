package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresStorage struct {
	db *sqlx.DB
}

func NewPostgresStorage(db *sqlx.DB) (Storage, error) {
	storage := &PostgresStorage{db: db}

	err := storage.runMigrations(context.Background())
	if err != nil {
		return nil, err
	}

	return storage, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, login string, passwordHash string) (string, error) {
	var userID string

	row := s.db.QueryRowxContext(
		ctx,
		`INSERT INTO users (login, password)
		VALUES ($1, $2) RETURNING id;`,
		login, passwordHash,
	)

	if err := row.Err(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pgerrcode.IsIntegrityConstraintViolation(string(pqErr.Code)) {
			return "", ErrConflict
		}

		return "", err
	}

	if err := row.Scan(&userID); err != nil {
		return "", err
	}

	return userID, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, login string, passwordHash string) (string, error) {
	var userID string

	row := s.db.QueryRowxContext(ctx, "SELECT id FROM users WHERE login = $1 AND password = $2;", login, passwordHash)

	if err := row.Err(); err != nil {
		return "", err
	}

	err := row.Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoRows
		}

		return "", err
	}

	return userID, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id string) (entities.User, error) {
	var user entities.User

	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1;", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.User{}, ErrNoRows
		}

		return entities.User{}, err
	}

	return user, nil
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, params CreateOrderParams) (entities.Order, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return entities.Order{}, err
	}

	defer tx.Rollback()

	var balance int64

	row := tx.QueryRowxContext(ctx, "SELECT points FROM users WHERE id = $1 FOR UPDATE;", params.UserID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Order{}, ErrNoRows
		}

		return entities.Order{}, err
	}

	if balance < params.PointsUsed {
		return entities.Order{}, ErrNotEnoughPoints
	}

	status := entities.OrderStatusPending
	if params.Completed {
		status = entities.OrderStatusCompleted
	}

	order := entities.Order{
		Number:      params.Number,
		UserID:      params.UserID,
		TotalAmount: params.TotalAmount,
		PointsUsed:  params.PointsUsed,
		CardAmount:  params.CardAmount,
		Status:      status,
	}

	orderRow := tx.QueryRowxContext(
		ctx,
		`INSERT INTO orders (number, user_id, total_amount, points_used, card_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at;`,
		order.Number, order.UserID, order.TotalAmount, order.PointsUsed, order.CardAmount, order.Status,
	)

	if err := orderRow.Err(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pgerrcode.IsIntegrityConstraintViolation(string(pqErr.Code)) {
			return entities.Order{}, ErrConflict
		}

		return entities.Order{}, err
	}

	if err := orderRow.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return entities.Order{}, err
	}

	if params.PointsUsed > 0 {
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE users SET points = points - $1 WHERE id = $2;",
			params.PointsUsed, params.UserID,
		); err != nil {
			return entities.Order{}, err
		}

		pointEntry := entities.Payment{
			OrderNumber: order.Number,
			Amount:      params.PointsUsed,
			Status:      entities.PaymentStatusCompleted,
			Type:        entities.PaymentTypePoint,
			ResultCode:  "0000",
			ResultMsg:   "points used",
		}

		if err := insertPayment(ctx, tx, pointEntry); err != nil {
			return entities.Order{}, err
		}
	}

	if params.Completed && params.Bonus > 0 {
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE users SET points = points + $1 WHERE id = $2;",
			params.Bonus, params.UserID,
		); err != nil {
			return entities.Order{}, err
		}
	}

	if !params.Completed {
		shadow := entities.PaymentShadow{
			OrderID: order.ID,
			Method:  entities.PaymentTypeCard,
			Amount:  params.CardAmount,
			Status:  entities.ShadowStatusPending,
		}

		if err := upsertShadow(ctx, tx, order.ID, shadow); err != nil {
			return entities.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return entities.Order{}, err
	}

	return order, nil
}

func (s *PostgresStorage) GetOrderByNumber(ctx context.Context, number string) (entities.Order, error) {
	var order entities.Order

	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE number = $1;", number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Order{}, ErrNoRows
		}

		return entities.Order{}, err
	}

	return order, nil
}

func (s *PostgresStorage) GetUserOrders(ctx context.Context, userID string) ([]entities.Order, error) {
	var orders []entities.Order

	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC;", userID)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *PostgresStorage) ListPayments(ctx context.Context, orderNumber string) ([]entities.Payment, error) {
	var payments []entities.Payment

	err := s.db.SelectContext(
		ctx,
		&payments,
		"SELECT * FROM payments WHERE order_number = $1 ORDER BY payment_date DESC, created_at DESC;",
		orderNumber,
	)
	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (s *PostgresStorage) FindLatestPaymentByTID(ctx context.Context, orderNumber string, tid string) (entities.Payment, error) {
	var payment entities.Payment

	err := s.db.GetContext(
		ctx,
		&payment,
		`SELECT * FROM payments WHERE order_number = $1 AND tid = $2
		ORDER BY payment_date DESC, created_at DESC LIMIT 1;`,
		orderNumber, tid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Payment{}, ErrNoRows
		}

		return entities.Payment{}, err
	}

	return payment, nil
}

func (s *PostgresStorage) FindRefundableByTID(ctx context.Context, tid string) (entities.Payment, error) {
	var payment entities.Payment

	err := s.db.GetContext(
		ctx,
		&payment,
		`SELECT * FROM payments WHERE tid = $1 AND status = $2 AND amount > 0
		ORDER BY payment_date DESC, created_at DESC LIMIT 1;`,
		tid, entities.PaymentStatusCompleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Payment{}, ErrNoRows
		}

		return entities.Payment{}, err
	}

	return payment, nil
}

func (s *PostgresStorage) FindRefundableCardByOrder(ctx context.Context, orderNumber string) (entities.Payment, error) {
	var payment entities.Payment

	err := s.db.GetContext(
		ctx,
		&payment,
		`SELECT * FROM payments
		WHERE order_number = $1 AND status = $2 AND payment_type = $3 AND amount > 0
		ORDER BY payment_date DESC, created_at DESC LIMIT 1;`,
		orderNumber, entities.PaymentStatusCompleted, entities.PaymentTypeCard,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Payment{}, ErrNoRows
		}

		return entities.Payment{}, err
	}

	return payment, nil
}

func (s *PostgresStorage) LatestShadow(ctx context.Context, orderID string) (entities.PaymentShadow, error) {
	var shadow entities.PaymentShadow

	err := s.db.GetContext(
		ctx,
		&shadow,
		"SELECT * FROM payment_shadow WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1;",
		orderID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.PaymentShadow{}, ErrNoRows
		}

		return entities.PaymentShadow{}, err
	}

	return shadow, nil
}

// MarkOrderPendingApproval records that the approve handshake is in
// flight, so a crash mid-handshake leaves a truthful order state.
func (s *PostgresStorage) MarkOrderPendingApproval(ctx context.Context, orderID string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	var order entities.Order

	row := tx.QueryRowxContext(ctx, "SELECT id, status FROM orders WHERE id = $1 FOR UPDATE;", orderID)
	if err := row.Scan(&order.ID, &order.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRows
		}

		return err
	}

	if order.Terminal() {
		return ErrOrderTerminal
	}

	if order.Status != entities.OrderStatusPending {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2;",
		entities.OrderStatusPendingApproval, orderID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStorage) CompleteCardPayment(ctx context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, bonus int64) error {
	return s.settleCardPayment(ctx, orderID, entities.OrderStatusCompleted, shadow, entry, bonus)
}

func (s *PostgresStorage) FailCardPayment(ctx context.Context, orderID string, shadow entities.PaymentShadow, entry entities.Payment, restore int64) error {
	return s.settleCardPayment(ctx, orderID, entities.OrderStatusFailed, shadow, entry, restore)
}

// settleCardPayment is the atomic commit of one reconciliation decision:
// order status, shadow row, ledger entry and points delta move together
// or not at all. The FOR UPDATE on the order row serializes concurrent
// notifications for the same order.
func (s *PostgresStorage) settleCardPayment(ctx context.Context, orderID string, status string, shadow entities.PaymentShadow, entry entities.Payment, pointsDelta int64) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	var order entities.Order

	row := tx.QueryRowxContext(
		ctx,
		"SELECT id, user_id, status FROM orders WHERE id = $1 FOR UPDATE;",
		orderID,
	)

	if err := row.Scan(&order.ID, &order.UserID, &order.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRows
		}

		return err
	}

	if order.Terminal() {
		return ErrOrderTerminal
	}

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2;",
		status, orderID,
	); err != nil {
		return err
	}

	if err := upsertShadow(ctx, tx, orderID, shadow); err != nil {
		return err
	}

	if err := insertPayment(ctx, tx, entry); err != nil {
		return err
	}

	if pointsDelta != 0 {
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE users SET points = points + $1 WHERE id = $2;",
			pointsDelta, order.UserID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStorage) AppendCardRefund(ctx context.Context, entry entities.Payment) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	var order entities.Order

	row := tx.QueryRowxContext(
		ctx,
		"SELECT id, number, status FROM orders WHERE number = $1 FOR UPDATE;",
		entry.OrderNumber,
	)

	if err := row.Scan(&order.ID, &order.Number, &order.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRows
		}

		return err
	}

	var refunded int

	if err := tx.GetContext(
		ctx,
		&refunded,
		"SELECT COUNT(*) FROM payments WHERE order_number = $1 AND tid = $2 AND payment_type = $3;",
		entry.OrderNumber, entry.TID, entry.Type,
	); err != nil {
		return err
	}

	if refunded > 0 {
		return ErrAlreadyRefunded
	}

	if err := insertPayment(ctx, tx, entry); err != nil {
		return err
	}

	if err := recomputeOrderStatus(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStorage) RefundPoints(ctx context.Context, order entities.Order, reason string) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}

	defer tx.Rollback()

	row := tx.QueryRowxContext(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE;", order.ID)
	if err := row.Scan(&order.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoRows
		}

		return 0, err
	}

	// A FAILED order already had its points restored when the card leg
	// failed, a second credit here would double the balance.
	if order.Status == entities.OrderStatusFailed {
		return 0, ErrAlreadyRefunded
	}

	var payments []entities.Payment

	if err := tx.SelectContext(
		ctx,
		&payments,
		"SELECT * FROM payments WHERE order_number = $1 ORDER BY payment_date DESC, created_at DESC;",
		order.Number,
	); err != nil {
		return 0, err
	}

	var total int64

	for _, payment := range payments {
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

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE users SET points = points + $1 WHERE id = $2;",
		total, order.UserID,
	); err != nil {
		return 0, err
	}

	refund := entities.Payment{
		OrderNumber: order.Number,
		Amount:      -total,
		Status:      entities.PaymentStatusRefunded,
		Type:        entities.PaymentTypePointRefund,
		ResultCode:  "0000",
		ResultMsg:   "points refund: " + reason,
	}

	if err := insertPayment(ctx, tx, refund); err != nil {
		return 0, err
	}

	if err := recomputeOrderStatus(ctx, tx, order); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return total, nil
}

func (s *PostgresStorage) SaveGatewayCall(ctx context.Context, log entities.GatewayLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO gateway_call_log
		(order_number, request_type, provider, request_url, request_data, response_data, http_status, is_success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		log.OrderNumber, log.RequestType, log.Provider, log.RequestURL,
		log.RequestData, log.ResponseData, log.HTTPStatus, log.Success, log.ErrorMessage,
	)

	return err
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, entry entities.Payment) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO payments
		(order_number, tid, provider, amount, status, payment_type, result_code, result_msg, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP);`,
		entry.OrderNumber, entry.TID, entry.Provider, entry.Amount, entry.Status, entry.Type, entry.ResultCode, entry.ResultMsg,
	)

	return err
}

func upsertShadow(ctx context.Context, tx *sqlx.Tx, orderID string, shadow entities.PaymentShadow) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE payment_shadow
		SET transaction_id = $1, status = $2, result_code = $3, result_message = $4, approved_at = $5
		WHERE id = (SELECT id FROM payment_shadow WHERE order_id = $6 ORDER BY created_at DESC LIMIT 1);`,
		shadow.TransactionID, shadow.Status, shadow.ResultCode, shadow.ResultMessage, shadow.ApprovedAt, orderID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected > 0 {
		return nil
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO payment_shadow
		(order_id, transaction_id, method, amount, status, result_code, result_message, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		orderID, shadow.TransactionID, shadow.Method, shadow.Amount,
		shadow.Status, shadow.ResultCode, shadow.ResultMessage, shadow.ApprovedAt,
	)

	return err
}

// recomputeOrderStatus flips a fully refunded order to CANCELLED: the
// active ledger sum reached zero and at least one refund exists.
func recomputeOrderStatus(ctx context.Context, tx *sqlx.Tx, order entities.Order) error {
	var payments []entities.Payment

	if err := tx.SelectContext(
		ctx,
		&payments,
		"SELECT * FROM payments WHERE order_number = $1;",
		order.Number,
	); err != nil {
		return err
	}

	var chargedAmount, refundAmount int64

	for _, payment := range payments {
		if payment.Active() {
			chargedAmount += payment.Amount
		}

		if payment.Amount < 0 {
			refundAmount += -payment.Amount
		}
	}

	if chargedAmount-refundAmount <= 0 && refundAmount > 0 && order.Status != entities.OrderStatusCancelled {
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2;",
			entities.OrderStatusCancelled, order.ID,
		); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresStorage) runMigrations(ctx context.Context) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS users(
			id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0)
		);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS orders(
			id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
			number VARCHAR NOT NULL UNIQUE,
			user_id uuid NOT NULL,
			total_amount BIGINT NOT NULL,
			points_used BIGINT NOT NULL DEFAULT 0,
			card_amount BIGINT NOT NULL,
			status VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_user FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			CONSTRAINT amount_split CHECK (total_amount = points_used + card_amount)
		);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS payments(
			id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
			order_number VARCHAR NOT NULL,
			tid VARCHAR,
			provider VARCHAR NOT NULL DEFAULT '',
			amount BIGINT NOT NULL,
			status VARCHAR NOT NULL,
			payment_type VARCHAR NOT NULL,
			result_code VARCHAR NOT NULL DEFAULT '',
			result_msg VARCHAR NOT NULL DEFAULT '',
			payment_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS payments_order_number_idx ON payments (order_number);
		CREATE INDEX IF NOT EXISTS payments_tid_idx ON payments (tid);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS payment_shadow(
			id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
			order_id uuid NOT NULL,
			transaction_id VARCHAR NOT NULL DEFAULT '',
			method VARCHAR NOT NULL DEFAULT 'CARD',
			amount BIGINT NOT NULL,
			status VARCHAR NOT NULL,
			result_code VARCHAR NOT NULL DEFAULT '',
			result_message VARCHAR NOT NULL DEFAULT '',
			approved_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_order FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE CASCADE
		);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS gateway_call_log(
			id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
			order_number VARCHAR NOT NULL,
			request_type VARCHAR NOT NULL,
			provider VARCHAR NOT NULL,
			request_url VARCHAR NOT NULL DEFAULT '',
			request_data TEXT NOT NULL DEFAULT '',
			response_data TEXT NOT NULL DEFAULT '',
			http_status INT NOT NULL DEFAULT 0,
			is_success BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	)

	if err != nil {
		return err
	}

	return tx.Commit()
}
