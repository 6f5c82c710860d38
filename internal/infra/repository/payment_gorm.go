package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByID(ctx context.Context, id int64) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByOutTradeNo(ctx context.Context, outTradeNo string) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("out_trade_no = ?", outTradeNo).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error) {
	var ps []model.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&ps).Error; err != nil {
		return []model.Payment{}, err
	}
	return ps, nil
}

// PENDINGのときだけ更新する。通知と照会が同時に来ても勝つのは1つだけ。
func (r *PaymentGormRepository) TransitionFromPending(ctx context.Context, outTradeNo string, to model.PaymentStatus, transactionID *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":      to,
		"update_time": at,
	}
	if transactionID != nil {
		updates["transaction_id"] = *transactionID
	}

	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("out_trade_no = ? AND status = ?", outTradeNo, model.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
