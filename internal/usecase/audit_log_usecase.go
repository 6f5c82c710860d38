package usecase

import (
	"context"
	"strings"

	"github.com/rs-labo46/storefront/internal/domain/model"
	repo "github.com/rs-labo46/storefront/internal/repository"
)

type AuditLogUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditLogUsecase(logs repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs}
}

// 空文字・0は「指定なし」
type AuditLogQuery struct {
	Action       string
	ResourceType string
	ResourceID   int64
	Limit        int
	Offset       int
}

// 管理者操作の履歴（新しい順）
func (u *AuditLogUsecase) List(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, error) {
	if q.Limit < 0 || q.Limit > 200 {
		return nil, badRequest("invalid limit")
	}
	if q.Offset < 0 {
		return nil, badRequest("invalid offset")
	}

	f := repo.AuditLogFilter{Limit: q.Limit, Offset: q.Offset}

	if a := model.AuditAction(strings.TrimSpace(q.Action)); a != "" {
		if a != model.AuditActionUpdateStock && a != model.AuditActionUpdateOrderStatus {
			return nil, badRequest("invalid action")
		}
		f.Action = &a
	}
	if rt := model.AuditResourceType(strings.TrimSpace(q.ResourceType)); rt != "" {
		if rt != model.AuditResourceProduct && rt != model.AuditResourceOrder {
			return nil, badRequest("invalid resource_type")
		}
		f.ResourceType = &rt
	}
	if q.ResourceID < 0 {
		return nil, badRequest("invalid resource_id")
	}
	if q.ResourceID > 0 {
		id := q.ResourceID
		f.ResourceID = &id
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, dbError(err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
