// Package payment は決済プロバイダとの境界。
// プロバイダごとにできることが違うので、能力ごとのインターフェースに分けている。
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs-labo46/storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// プロバイダ呼び出しの失敗（通信・タイムアウト・業務エラー）
var ErrProvider = errors.New("payment provider error")

// ProviderError は ErrProvider に詳細を付けて返す。
func ProviderError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProvider, fmt.Sprintf(format, args...))
}

type Gateway interface {
	Method() model.PaymentMethod
}

// 画面遷移で支払うプロバイダ。戻り値はブラウザを遷移させる署名済みURL。
type RedirectGateway interface {
	Gateway
	InitiateRedirect(ctx context.Context, reference string, amount decimal.Decimal, subject string) (string, error)
}

// 同期で確定するプロバイダ。戻り値はプロバイダの取引ID。
type ChargeGateway interface {
	Gateway
	Charge(ctx context.Context, reference string, amount decimal.Decimal, subject string) (string, error)
}

// 通知（push）と照会（pull）で状態を突き合わせられるプロバイダ。
type Reconcilable interface {
	Gateway
	// 署名が正しいときだけ true。壊れた入力でも panic しない。
	VerifyNotification(ctx context.Context, fields map[string]string) bool
	ParseNotification(fields map[string]string) (Notification, error)
	QueryStatus(ctx context.Context, reference string) (TradeQuery, error)
}

// 通知・戻りURLから取り出した値
type Notification struct {
	Reference     string
	TransactionID string
	Status        TradeStatus
}

type TradeQuery struct {
	Reference     string
	TransactionID string
	Status        TradeStatus
	Amount        decimal.Decimal
}

type Registry struct {
	gateways map[model.PaymentMethod]Gateway
}

// 起動時に一度だけ作る。同じ方式を二重に登録したら後勝ち。
func NewRegistry(gateways ...Gateway) *Registry {
	m := make(map[model.PaymentMethod]Gateway, len(gateways))
	for _, g := range gateways {
		if g == nil {
			continue
		}
		m[g.Method()] = g
	}
	return &Registry{gateways: m}
}

func (r *Registry) Get(method model.PaymentMethod) (Gateway, bool) {
	g, ok := r.gateways[method]
	return g, ok
}

func (r *Registry) Reconcilable(method model.PaymentMethod) (Reconcilable, bool) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, false
	}
	rc, ok := g.(Reconcilable)
	return rc, ok
}
