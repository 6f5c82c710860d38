package repository

import (
	"context"

	"github.com/rs-labo46/storefront/internal/domain/model"
)

type InventoryRepository interface {
	// 在庫の現在値を設定
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 在庫が足りるときだけ減算（条件付きUPDATE、影響行数1なら true）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 無条件に加算
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
