package repository

import (
	"context"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

func (r *AuditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

// 指定された条件だけでAND検索、新しい順
func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&model.AuditLog{})

	conds := []struct {
		set   bool
		query string
		arg   any
	}{
		{f.ActorUserID != nil, "actor_user_id = ?", val(f.ActorUserID)},
		{f.Action != nil, "action = ?", val(f.Action)},
		{f.ResourceType != nil, "resource_type = ?", val(f.ResourceType)},
		{f.ResourceID != nil, "resource_id = ?", val(f.ResourceID)},
		{f.CreatedFrom != nil, "created_at >= ?", val(f.CreatedFrom)},
		{f.CreatedTo != nil, "created_at <= ?", val(f.CreatedTo)},
	}
	for _, c := range conds {
		if c.set {
			q = q.Where(c.query, c.arg)
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	logs := []model.AuditLog{}
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func val[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
