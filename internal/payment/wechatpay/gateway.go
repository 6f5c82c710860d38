// Package wechatpay は WeChat Pay（サンドボックス）の同期決済。
package wechatpay

import (
	"context"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/payment"

	"github.com/shopspring/decimal"
)

// Gateway はサンドボックス動作で、呼ばれた時点で成功として確定する。
// 取引IDには加盟店の参照番号をそのまま使う。
type Gateway struct{}

var _ payment.ChargeGateway = Gateway{}

func New() Gateway {
	return Gateway{}
}

func (Gateway) Method() model.PaymentMethod {
	return model.PaymentMethodWechat
}

func (Gateway) Charge(ctx context.Context, reference string, amount decimal.Decimal, subject string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", payment.ProviderError("charge: %v", err)
	}
	if reference == "" {
		return "", payment.ProviderError("charge: empty reference")
	}
	if !amount.IsPositive() {
		return "", payment.ProviderError("charge: amount must be > 0")
	}
	return reference, nil
}
