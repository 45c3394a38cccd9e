package model

import "time"

// 在庫数変更の履歴（作成後は変更しない）
type InventoryHistory struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID   string    `gorm:"type:uuid;not null;index" json:"product"`
	OldQuantity int64     `gorm:"not null" json:"oldQuantity"`
	NewQuantity int64     `gorm:"not null" json:"newQuantity"`
	UserID      string    `gorm:"type:uuid;not null;index" json:"-"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime;index" json:"createdAt"`
}

// 在庫の差分
func (h InventoryHistory) Delta() int64 {
	return h.NewQuantity - h.OldQuantity
}
