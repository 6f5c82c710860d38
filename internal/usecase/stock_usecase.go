package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"
	repo "github.com/rs-labo46/storefront/internal/repository"
)

// 在庫の増減・確認・設定。
// 同時実行の安全性はDBの条件付きUPDATEだけに頼る（プロセス内ロックは持たない）。
type StockUsecase struct {
	productRepo   repo.ProductRepository
	inventoryRepo repo.InventoryRepository
	tx            repo.TransactionManager
}

func NewStockUsecase(
	productRepo repo.ProductRepository,
	inventoryRepo repo.InventoryRepository,
	tx repo.TransactionManager,
) *StockUsecase {
	return &StockUsecase{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		tx:            tx,
	}
}

// 在庫を減らす。足りなければ何も変えずに ErrInsufficientStock。
func (u *StockUsecase) DecreaseStock(ctx context.Context, productID int64, qty int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, badRequest("invalid product id")
	}
	if qty <= 0 {
		return model.Product{}, badRequest("quantity must be > 0")
	}

	ok, err := u.inventoryRepo.DecreaseStockIfEnough(ctx, productID, qty)
	if err != nil {
		return model.Product{}, dbError(err)
	}

	// 成否どちらでも読み直す（0行のときは原因の切り分けに使う）
	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, wrapErr(ErrProductNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, dbError(err)
	}
	if !ok {
		return model.Product{}, wrapErr(ErrInsufficientStock, "insufficient stock")
	}

	obs.Logger.InfoContext(ctx, "stock decreased",
		"product_id", productID, "quantity", qty, "stock", p.Stock)
	return p, nil
}

// 在庫を増やす（上限なし）
func (u *StockUsecase) IncreaseStock(ctx context.Context, productID int64, qty int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, badRequest("invalid product id")
	}
	if qty <= 0 {
		return model.Product{}, badRequest("quantity must be > 0")
	}

	err := u.inventoryRepo.IncreaseStock(ctx, productID, qty)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, wrapErr(ErrProductNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, dbError(err)
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, wrapErr(ErrProductNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, dbError(err)
	}

	obs.Logger.InfoContext(ctx, "stock increased",
		"product_id", productID, "quantity", qty, "stock", p.Stock)
	return p, nil
}

// 読むだけ。予約はしないので、結果はその瞬間のもの。
func (u *StockUsecase) CheckStock(ctx context.Context, productID int64, qty int64) (bool, error) {
	if productID <= 0 {
		return false, badRequest("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, wrapErr(ErrProductNotFound, "product not found")
	}
	if err != nil {
		return false, dbError(err)
	}
	return p.Stock >= qty, nil
}

// 管理者による在庫の絶対値設定。
// 設定・履歴・監査ログを同じTxで書く。
func (u *StockUsecase) UpdateStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, badRequest("invalid product id")
	}
	if newStock < 0 {
		return model.Product{}, badRequest("stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Product{}, badRequest("reason required")
	}

	var updated model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return wrapErr(ErrProductNotFound, "product not found")
		}
		if err != nil {
			return dbError(err)
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return wrapErr(ErrProductNotFound, "product not found")
			}
			return dbError(err)
		}

		now := time.Now()
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Before:      p.Stock,
			After:       newStock,
			Delta:       newStock - p.Stock,
			Reason:      reason,
			CreatedAt:   now,
		}); err != nil {
			return dbError(err)
		}

		//監査ログ（在庫更新）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, p.Stock),
			AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
			CreatedAt:    now,
		}); err != nil {
			return dbError(err)
		}

		p.Stock = newStock
		updated = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return updated, nil
}
