package repository

import (
	"context"

	"inventory/internal/domain/model"
)

// 在庫変更履歴は追加と参照だけ（更新・削除は無い）
type InventoryHistoryRepository interface {
	Append(ctx context.Context, entry model.InventoryHistory) (model.InventoryHistory, error)

	// 新しい順
	ListByProductID(ctx context.Context, productID string) ([]model.InventoryHistory, error)
}
