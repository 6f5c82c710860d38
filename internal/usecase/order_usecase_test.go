package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"
	"github.com/rs-labo46/storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	uc         *usecase.OrderUsecase
	tx         *TxManagerMock
	products   *ProductRepoMock
	orders     *OrderRepoMock
	orderItems *OrderItemRepoMock
}

func newOrderFixture() orderFixture {
	f := orderFixture{
		products:   new(ProductRepoMock),
		orders:     new(OrderRepoMock),
		orderItems: new(OrderItemRepoMock),
	}
	f.tx = &TxManagerMock{Repos: &txRepos{
		products:   f.products,
		orders:     f.orders,
		orderItems: f.orderItems,
	}}
	f.uc = usecase.NewOrderUsecase(f.tx)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateOrder_FreezesPricesAndTotal(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil).Once()
	f.products.On("FindByIDs", ctx, []int64{1, 2}).Return([]model.Product{
		{ID: 1, Price: dec("10.00"), Stock: 3},
		{ID: 2, Price: dec("5.50"), Stock: 0},
	}, nil).Once()
	f.orders.On("Create", ctx, mock.MatchedBy(func(o model.Order) bool {
		return o.UserID == 7 && o.Status == model.OrderStatusCreated && o.TotalAmount.Equal(dec("25.50"))
	})).Return(int64(100), nil).Once()
	f.orderItems.On("CreateBulk", ctx, int64(100), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 2 &&
			items[0].UnitPrice.Equal(dec("10.00")) && items[0].Quantity == 2 &&
			items[1].UnitPrice.Equal(dec("5.50")) && items[1].Quantity == 1
	})).Return(nil).Once()

	out, err := f.uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(100), out.ID)
	assert.Equal(t, "CREATED", out.Status)
	assert.True(t, out.TotalAmount.Equal(dec("25.50")), out.TotalAmount.String())
	require.Len(t, out.Items, 2)
	assert.True(t, out.Items[0].Subtotal.Equal(dec("20.00")))

	// 在庫は触らない
	f.products.AssertNumberOfCalls(t, "FindByIDs", 1)
	f.orders.AssertExpectations(t)
	f.orderItems.AssertExpectations(t)
}

// 注文後に商品価格が変わっても、注文の単価・合計は変わらない
func TestCreateOrder_LaterPriceChangeDoesNotAffectOrder(t *testing.T) {
	cat := newMemCatalog(
		model.Product{ID: 1, Price: dec("10.00"), Stock: 5},
		model.Product{ID: 2, Price: dec("5.50"), Stock: 5},
	)
	orders := new(OrderRepoMock)
	items := new(OrderItemRepoMock)
	tx := &TxManagerMock{Repos: &txRepos{products: cat, orders: orders, orderItems: items}}
	uc := usecase.NewOrderUsecase(tx)
	ctx := context.Background()

	var saved []model.OrderItem
	tx.On("WithinTx", ctx).Return(nil)
	orders.On("Create", ctx, mock.Anything).Return(int64(1), nil).Once()
	items.On("CreateBulk", ctx, int64(1), mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(2).([]model.OrderItem)
	}).Return(nil).Once()

	out, err := uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{
		{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1},
	}})
	require.NoError(t, err)

	require.NoError(t, cat.Update(ctx, model.Product{ID: 1, Price: dec("99.99")}))

	orders.On("FindByID", ctx, int64(1)).Return(model.Order{
		ID: 1, UserID: 7, Status: model.OrderStatusCreated, TotalAmount: out.TotalAmount,
	}, nil).Once()
	items.On("ListByOrderID", ctx, int64(1)).Return(saved, nil).Once()

	got, err := uc.GetOrder(ctx, 7, false, 1)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("25.50")))
	assert.True(t, got.Items[0].UnitPrice.Equal(dec("10.00")))
}

func TestCreateOrder_MissingProductPersistsNothing(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil).Once()
	f.products.On("FindByIDs", ctx, []int64{1, 404}).Return([]model.Product{
		{ID: 1, Price: dec("10.00")},
	}, nil).Once()

	_, err := f.uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{
		{ProductID: 1, Quantity: 1}, {ProductID: 404, Quantity: 1},
	}})
	assert.True(t, errors.Is(err, usecase.ErrProductNotFound))
	assertStatus(t, err, http.StatusNotFound)

	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.orderItems.AssertNotCalled(t, "CreateBulk", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_DuplicateProductReadOnce(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil).Once()
	f.products.On("FindByIDs", ctx, []int64{1}).Return([]model.Product{{ID: 1, Price: dec("1.25")}}, nil).Once()
	f.orders.On("Create", ctx, mock.MatchedBy(func(o model.Order) bool {
		return o.TotalAmount.Equal(dec("5.00"))
	})).Return(int64(2), nil).Once()
	f.orderItems.On("CreateBulk", ctx, int64(2), mock.Anything).Return(nil).Once()

	out, err := f.uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{
		{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 3},
	}})
	require.NoError(t, err)
	assert.Len(t, out.Items, 2)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	_, err := f.uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{})
	assert.True(t, errors.Is(err, usecase.ErrInvalidArgument))

	_, err = f.uc.CreateOrder(ctx, 7, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{{ProductID: 1, Quantity: 0}}})
	assert.True(t, errors.Is(err, usecase.ErrInvalidArgument))

	_, err = f.uc.CreateOrder(ctx, 0, usecase.CreateOrderInput{Items: []usecase.OrderLineInput{{ProductID: 1, Quantity: 1}}})
	assertStatus(t, err, http.StatusUnauthorized)

	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestGetOrder_OtherUsersOrderHidden(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil)
	f.orders.On("FindByID", ctx, int64(5)).Return(model.Order{ID: 5, UserID: 1}, nil)
	f.orderItems.On("ListByOrderID", ctx, int64(5)).Return([]model.OrderItem{}, nil)

	_, err := f.uc.GetOrder(ctx, 2, false, 5)
	assert.True(t, errors.Is(err, usecase.ErrOrderNotFound))

	out, err := f.uc.GetOrder(ctx, 2, true, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil)
	f.orders.On("FindByID", ctx, int64(5)).Return(model.Order{}, repo.ErrNotFound)

	_, err := f.uc.GetOrder(ctx, 1, false, 5)
	assert.True(t, errors.Is(err, usecase.ErrOrderNotFound))
	assertStatus(t, err, http.StatusNotFound)
}

func TestListUserOrders(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil)
	f.orders.On("ListByUserID", ctx, int64(3), 2, 10).Return([]model.Order{{ID: 9, UserID: 3}}, int64(11), nil).Once()
	f.orderItems.On("ListByOrderIDs", ctx, []int64{9}).Return(map[int64][]model.OrderItem{}, nil).Once()

	out, err := f.uc.ListUserOrders(ctx, 3, false, 3, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), out.Total)
	assert.Len(t, out.Items, 1)

	_, err = f.uc.ListUserOrders(ctx, 4, false, 3, 1, 10)
	assertStatus(t, err, http.StatusForbidden)

	_, err = f.uc.ListUserOrders(ctx, 3, false, 3, 0, 10)
	assert.True(t, errors.Is(err, usecase.ErrInvalidArgument))
}

func TestApplyPaymentEvent(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", ctx).Return(nil)
	f.orders.On("UpdateStatusIf", ctx, int64(5), model.OrderStatusCreated, model.OrderStatusPaid).Return(true, nil).Once()
	f.orders.On("UpdateStatusIf", ctx, int64(5), model.OrderStatusCreated, model.OrderStatusPaid).Return(false, nil).Once()

	ev := model.PaymentEvent{OrderID: 5, Status: model.PaymentStatusSuccess}
	require.NoError(t, f.uc.ApplyPaymentEvent(ctx, ev))
	// 重複配信でもエラーにしない
	require.NoError(t, f.uc.ApplyPaymentEvent(ctx, ev))

	// 失敗イベントは注文を動かさない
	require.NoError(t, f.uc.ApplyPaymentEvent(ctx, model.PaymentEvent{OrderID: 5, Status: model.PaymentStatusFailed}))
	f.orders.AssertNumberOfCalls(t, "UpdateStatusIf", 2)
}
