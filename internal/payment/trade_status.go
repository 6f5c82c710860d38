package payment

import "github.com/rs-labo46/storefront/internal/domain/model"

type TradeStatus string

const (
	TradeWaitBuyerPay TradeStatus = "WAIT_BUYER_PAY"
	TradeClosed       TradeStatus = "TRADE_CLOSED"
	TradeSuccess      TradeStatus = "TRADE_SUCCESS"
	TradeFinished     TradeStatus = "TRADE_FINISHED"
)

// Outcome はプロバイダの取引状態を支払いの終端状態に写す。
// 終端に当たらない（待ち・不明）ときは ok=false。
func (s TradeStatus) Outcome() (model.PaymentStatus, bool) {
	switch s {
	case TradeSuccess, TradeFinished:
		return model.PaymentStatusSuccess, true
	case TradeClosed:
		return model.PaymentStatusFailed, true
	default:
		return "", false
	}
}
