package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderLineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CreateOrderInput struct {
	Items []OrderLineInput `json:"items"`
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	Status      string            `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// 注文を作る。価格は1回の読み取りで全商品まとめて確定させ、以後は再計算しない。
// 在庫はここでは減らさない。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, badRequest("items required")
	}

	ids := make([]int64, 0, len(in.Items))
	seen := make(map[int64]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return OrderOutput{}, badRequest("invalid product_id")
		}
		if it.Quantity <= 0 {
			return OrderOutput{}, badRequest("quantity must be > 0")
		}
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//同一時点のスナップショット
		products, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return dbError(err)
		}
		byID := make(map[int64]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		items := make([]model.OrderItem, 0, len(in.Items))
		total := decimal.Zero
		now := time.Now()
		for _, it := range in.Items {
			p, ok := byID[it.ProductID]
			if !ok {
				return wrapErr(ErrProductNotFound, "product not found")
			}
			item := model.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				CreatedAt: now,
			}
			total = total.Add(item.Subtotal())
			items = append(items, item)
		}

		order := model.Order{
			UserID:      userID,
			Status:      model.OrderStatusCreated,
			TotalAmount: total,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return dbError(err)
		}
		order.ID = orderID

		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return dbError(err)
		}
		for i := range items {
			items[i].OrderID = orderID
		}

		out = toOrderOutput(order, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	obs.Logger.InfoContext(ctx, "order created",
		"order_id", out.ID, "user_id", userID, "total_amount", out.TotalAmount.String())
	return out, nil
}

// 他人の注文は管理者以外には「存在しない扱い」
func (u *OrderUsecase) GetOrder(ctx context.Context, requesterID int64, isAdmin bool, orderID int64) (OrderOutput, error) {
	if requesterID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, badRequest("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return wrapErr(ErrOrderNotFound, "order not found")
		}
		if err != nil {
			return dbError(err)
		}
		if !isAdmin && o.UserID != requesterID {
			return wrapErr(ErrOrderNotFound, "order not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return dbError(err)
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 新しい順のページング一覧
func (u *OrderUsecase) ListUserOrders(ctx context.Context, requesterID int64, isAdmin bool, userID int64, page int, size int) (OrderListOutput, error) {
	if requesterID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if userID <= 0 {
		return OrderListOutput{}, badRequest("invalid user id")
	}
	if !isAdmin && userID != requesterID {
		return OrderListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if page < 1 {
		return OrderListOutput{}, badRequest("invalid page")
	}
	if size < 1 || size > 100 {
		return OrderListOutput{}, badRequest("invalid size")
	}

	var out OrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, size)
		if err != nil {
			return dbError(err)
		}

		outs, err := withItems(ctx, r, orders)
		if err != nil {
			return err
		}
		out = OrderListOutput{Items: outs, Total: total, Page: page, Size: size}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// 支払いイベントの反映。SUCCESSならCREATED→PAID。
// 何度届いても結果は同じ（CREATED以外なら何もしない）。
func (u *OrderUsecase) ApplyPaymentEvent(ctx context.Context, ev model.PaymentEvent) error {
	if ev.Status != model.PaymentStatusSuccess {
		return nil
	}
	if ev.OrderID <= 0 {
		return badRequest("invalid order id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		moved, err := r.Orders().UpdateStatusIf(ctx, ev.OrderID, model.OrderStatusCreated, model.OrderStatusPaid)
		if err != nil {
			return dbError(err)
		}
		if moved {
			obs.Logger.InfoContext(ctx, "order paid",
				"order_id", ev.OrderID, "out_trade_no", ev.OutTradeNo)
		}
		return nil
	})
}

// 一覧の明細は1クエリでまとめて読む
func withItems(ctx context.Context, r repo.TxRepos, orders []model.Order) ([]OrderOutput, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	byOrder, err := r.OrderItems().ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, dbError(err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o, byOrder[o.ID]))
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
		})
	}

	return OrderOutput{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		Items:       outItems,
	}
}
