package repository

import (
	"context"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryHistoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryHistoryGormRepository(db *gorm.DB) *InventoryHistoryGormRepository {
	return &InventoryHistoryGormRepository{db: db}
}

var _ repo.InventoryHistoryRepository = (*InventoryHistoryGormRepository)(nil)

// 履歴を1件追加
func (r *InventoryHistoryGormRepository) Append(ctx context.Context, entry model.InventoryHistory) (model.InventoryHistory, error) {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
		return model.InventoryHistory{}, err
	}
	return entry, nil
}

// 商品ごとの履歴（新しい順）
func (r *InventoryHistoryGormRepository) ListByProductID(ctx context.Context, productID string) ([]model.InventoryHistory, error) {
	var entries []model.InventoryHistory
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username")
		}).
		Where("product_id = ?", productID).
		Order("created_at desc").Order("id desc").
		Find(&entries).Error
	if err != nil {
		return []model.InventoryHistory{}, err
	}
	return entries, nil
}
