package repository

import (
	"context"
	"errors"

	"inventory/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")
	// 一意制約違反（商品名など）
	ErrDuplicate = errors.New("duplicate")
)

// 絞り込みの演算子
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpIn  FilterOp = "in"
)

// Filter は1つの絞り込み条件（field op value）。
// Fieldは許可リストで検証済みのカラム名、Valueはカラムの型に変換済み。
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// 並び順
type SortField struct {
	Field string
	Desc  bool
}

// 一覧検索
type ProductListQuery struct {
	Page    int
	Limit   int
	Filters []Filter
	Sort    []SortField
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	SearchByName(ctx context.Context, name string) ([]model.Product, error)
	ListByOwner(ctx context.Context, userID string) ([]model.Product, error)
	FindByID(ctx context.Context, id string) (model.Product, error)
	// 完全一致。無ければ ErrNotFound
	FindByName(ctx context.Context, name string) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) (model.Product, error)
	Delete(ctx context.Context, id string) error
	// ownerIDが空なら所有者で絞らない（管理者）
	DeleteMany(ctx context.Context, ids []string, ownerID string) (int64, error)
}
