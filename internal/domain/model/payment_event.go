package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
)

// 終端遷移に勝ったときだけ1回発行する
type PaymentEvent struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	PaymentID     int64           `json:"payment_id"`
	OrderID       int64           `json:"order_id"`
	OutTradeNo    string          `json:"out_trade_no"`
	Status        PaymentStatus   `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
