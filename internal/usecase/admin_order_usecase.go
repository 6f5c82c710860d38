package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"
	repo "github.com/rs-labo46/storefront/internal/repository"
)

type AdminOrderUsecase struct {
	tx repo.TransactionManager
}

func NewAdminOrderUsecase(tx repo.TransactionManager) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx}
}

type AdminUpdateOrderStatusInput struct {
	Status string `json:"status"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, badRequest("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, badRequest("invalid limit")
	}
	if f.Status != "" && !model.OrderStatus(f.Status).IsValid() {
		return OrderListOutput{}, badRequest("invalid status")
	}

	var out OrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return dbError(err)
		}

		outs, err := withItems(ctx, r, orders)
		if err != nil {
			return err
		}
		out = OrderListOutput{Items: outs, Total: total, Page: f.Page, Size: f.Limit}
		return nil
	})

	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// 許可する遷移
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusCreated: {model.OrderStatusPaid, model.OrderStatusCanceled},
	model.OrderStatusPaid:    {model.OrderStatusShipped, model.OrderStatusCanceled},
	model.OrderStatusShipped: {model.OrderStatusCompleted},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ステータス更新。CANCELEDでも在庫は戻さない。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return badRequest("invalid id")
	}

	newStatus := model.OrderStatus(strings.TrimSpace(in.Status))
	if !newStatus.IsValid() {
		return badRequest("invalid status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return wrapErr(ErrOrderNotFound, "order not found")
		}
		if err != nil {
			return dbError(err)
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		// 終端ガード
		if o.Status.IsTerminal() {
			return badRequest("cannot change " + strings.ToLower(string(o.Status)) + " order")
		}
		if !canTransition(o.Status, newStatus) {
			return badRequest("invalid transition")
		}

		// 読んだ後に他で変わっていたら負け
		moved, err := r.Orders().UpdateStatusIf(ctx, orderID, o.Status, newStatus)
		if err != nil {
			return dbError(err)
		}
		if !moved {
			return wrapErr(ErrConflict, "order status changed concurrently")
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + string(o.Status) + `"}`,
			AfterJSON:    `{"status":"` + string(newStatus) + `"}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return dbError(err)
		}

		obs.Logger.InfoContext(ctx, "order status updated",
			"order_id", orderID, "from", o.Status, "to", newStatus, "actor", actorAdminUserID)
		return nil
	})
}
