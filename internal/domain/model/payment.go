package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PENDING以外は後戻りしない
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

type PaymentMethod string

const (
	PaymentMethodAlipay PaymentMethod = "ALIPAY"
	PaymentMethodWechat PaymentMethod = "WECHAT_PAY"
)

// 支払い記録。削除はしない（監査のため残す）
// OutTradeNoは加盟店側の参照番号で、プロバイダとのやり取りはすべてこれで突き合わせる。
type Payment struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64           `gorm:"not null;index" json:"order_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	TransactionID *string         `gorm:"type:varchar(64)" json:"transaction_id"`
	OutTradeNo    string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"out_trade_no"`
	CreateTime    time.Time       `gorm:"not null" json:"create_time"`
	UpdateTime    time.Time       `gorm:"not null" json:"update_time"`
}
