package repository

import (
	"context"
	"errors"

	"github.com/rs-labo46/storefront/internal/obs"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// 在庫の減算は複数商品の行ロックを取るので、同時注文どうしでデッドロックしうる。
const maxTxAttempts = 3

type txReposGorm struct {
	tx *gorm.DB
}

func (r txReposGorm) Orders() repo.OrderRepository         { return NewOrderGormRepository(r.tx) }
func (r txReposGorm) OrderItems() repo.OrderItemRepository { return NewOrderItemGormRepository(r.tx) }
func (r txReposGorm) Inventory() repo.InventoryRepository  { return NewInventoryGormRepository(r.tx) }
func (r txReposGorm) Products() repo.ProductRepository     { return NewProductGormRepository(r.tx) }
func (r txReposGorm) AuditLogs() repo.AuditLogRepository   { return NewAuditLogGormRepository(r.tx) }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// WithinTx は fn を1トランザクションで実行する。
// デッドロック・直列化失敗でDBに中断されたときだけ fn ごとやり直す。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(txReposGorm{tx: tx})
		})
		if !isRetryableTxError(err) || ctx.Err() != nil {
			return err
		}
		obs.Logger.WarnContext(ctx, "transaction aborted by database, retrying", "attempt", attempt, "err", err)
	}
	return err
}

// 40001 serialization_failure / 40P01 deadlock_detected
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
