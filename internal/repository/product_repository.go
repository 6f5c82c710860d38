package repository

import (
	"context"
	"errors"

	"github.com/rs-labo46/storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 一覧取得（ページング＋カテゴリ）
type ProductListQuery struct {
	Page     int
	Limit    int
	Category string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	//複数商品を1クエリで取得（同一時点のスナップショット）
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
