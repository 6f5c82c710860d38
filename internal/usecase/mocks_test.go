package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// Repository mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *ProductRepoMock) SoftDelete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) SetStock(ctx context.Context, productID int64, newStock int64) error {
	return m.Called(ctx, productID, newStock).Error(0)
}

func (m *InventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *InventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	return m.Called(ctx, productID, qty).Error(0)
}

func (m *InventoryRepoMock) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return m.Called(ctx, adj).Error(0)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	os, _ := args.Get(0).([]model.Order)
	return os, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	os, _ := args.Get(0).([]model.Order)
	return os, args.Get(1).(int64), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	return m.Called(ctx, orderID, items).Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *OrderItemRepoMock) ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	args := m.Called(ctx, orderIDs)
	byOrder, _ := args.Get(0).(map[int64][]model.OrderItem)
	return byOrder, args.Error(1)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, f)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

// =====================
// TxManager / TxRepos
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定する
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

type txRepos struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	inventory  repo.InventoryRepository
	products   repo.ProductRepository
	auditLogs  repo.AuditLogRepository
}

func (r *txRepos) Orders() repo.OrderRepository         { return r.orders }
func (r *txRepos) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txRepos) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *txRepos) Products() repo.ProductRepository     { return r.products }
func (r *txRepos) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }

// =====================
// In-memory stores（同時実行テスト用）
// DBの条件付きUPDATEと同じく、判定と更新を1回のロックで行う。
// =====================

type memCatalog struct {
	mu       sync.Mutex
	products map[int64]model.Product
}

func newMemCatalog(ps ...model.Product) *memCatalog {
	c := &memCatalog{products: map[int64]model.Product{}}
	for _, p := range ps {
		c.products[p.ID] = p
	}
	return c
}

func (c *memCatalog) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	panic("not used")
}

func (c *memCatalog) FindByID(ctx context.Context, id int64) (model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (c *memCatalog) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memCatalog) Create(ctx context.Context, p model.Product) (model.Product, error) {
	panic("not used")
}

func (c *memCatalog) Update(ctx context.Context, p model.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.products[p.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.Price = p.Price
	c.products[p.ID] = cur
	return nil
}

func (c *memCatalog) SoftDelete(ctx context.Context, id int64) error { panic("not used") }

func (c *memCatalog) SetStock(ctx context.Context, productID int64, newStock int64) error {
	panic("not used")
}

func (c *memCatalog) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	c.products[productID] = p
	return true, nil
}

func (c *memCatalog) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	c.products[productID] = p
	return nil
}

func (c *memCatalog) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	panic("not used")
}

type memPayments struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]model.Payment
	cas    int // TransitionFromPending が呼ばれた回数
}

func newMemPayments(ps ...model.Payment) *memPayments {
	m := &memPayments{rows: map[string]model.Payment{}}
	for _, p := range ps {
		m.nextID++
		if p.ID == 0 {
			p.ID = m.nextID
		}
		m.rows[p.OutTradeNo] = p
	}
	return m
}

func (m *memPayments) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.rows[p.OutTradeNo] = p
	return p, nil
}

func (m *memPayments) FindByID(ctx context.Context, id int64) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (m *memPayments) FindByOutTradeNo(ctx context.Context, ref string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[ref]
	if !ok {
		return model.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *memPayments) ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Payment{}
	for _, p := range m.rows {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) TransitionFromPending(ctx context.Context, ref string, to model.PaymentStatus, txID *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cas++
	p, ok := m.rows[ref]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	if txID != nil {
		v := *txID
		p.TransactionID = &v
	}
	p.UpdateTime = at
	m.rows[ref] = p
	return true, nil
}

func (m *memPayments) get(ref string) model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[ref]
}
