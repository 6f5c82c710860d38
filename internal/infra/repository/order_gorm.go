package repository

import (
	"context"
	"errors"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 100
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

// 1始まりのページ。範囲外の値は既定値に寄せる。
func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > maxOrderPageSize {
		limit = defaultOrderPageSize
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("id desc").Limit(limit).Offset((page - 1) * limit)
	}
}

func ordersOf(userID int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

// 管理画面の絞り込み。空の条件は無視する。
func adminOrderFilter(f repo.AdminOrderListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.UserID != nil {
			db = db.Where("user_id = ?", *f.UserID)
		}
		if f.From != nil {
			db = db.Where("created_at >= ?", *f.From)
		}
		if f.To != nil {
			db = db.Where("created_at <= ?", *f.To)
		}
		return db
	}
}

// 件数と1ページ分を同じ条件で取る
func (r *OrderGormRepository) page(ctx context.Context, filter func(*gorm.DB) *gorm.DB, page, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).Scopes(filter).Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	orders := []model.Order{}
	if total == 0 {
		return orders, 0, nil
	}
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Scopes(filter, paginate(page, limit)).
		Find(&orders).Error
	if err != nil {
		return []model.Order{}, 0, err
	}
	return orders, total, nil
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	return r.page(ctx, ordersOf(userID), page, limit)
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	return r.page(ctx, adminOrderFilter(f), f.Page, f.Limit)
}

// Create は注文ヘッダだけを書く。合計金額は作成時に確定した値。明細はOrderItemRepositoryで作る。
func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	if !order.Status.IsValid() {
		return 0, errors.New("invalid order status")
	}
	if err := r.db.WithContext(ctx).Omit("Items").Create(&order).Error; err != nil {
		return 0, err
	}
	return order.ID, nil
}

// UpdateStatusIf は status = from の行だけを to にする（決済イベントの重複適用に耐える）。
func (r *OrderGormRepository) UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
