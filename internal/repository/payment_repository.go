package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
)

// 支払い記録の保存・取得。状態の変更はTransitionFromPendingだけ。
type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (model.Payment, error)
	FindByID(ctx context.Context, id int64) (model.Payment, error)
	FindByOutTradeNo(ctx context.Context, outTradeNo string) (model.Payment, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error)

	// status = PENDING の行だけをtoへ更新する（compare-and-set）。
	// 勝った（影響行数1）ときだけ true。
	TransitionFromPending(ctx context.Context, outTradeNo string, to model.PaymentStatus, transactionID *string, at time.Time) (bool, error)
}
