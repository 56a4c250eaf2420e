package entities

import (
	"time"
)

// GatewayLog is a write-once audit record of one call to (or callback
// from) an external payment provider. Never read by reconciliation.
type GatewayLog struct {
	ID           string    `db:"id"`
	OrderNumber  string    `db:"order_number"`
	RequestType  string    `db:"request_type"`
	Provider     string    `db:"provider"`
	RequestURL   string    `db:"request_url"`
	RequestData  string    `db:"request_data"`
	ResponseData string    `db:"response_data"`
	HTTPStatus   int       `db:"http_status"`
	Success      bool      `db:"is_success"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
}
