package model

import (
	"time"

	"gorm.io/gorm"
)

// 商品の単位
type Unit string

const (
	UnitKg    Unit = "kg"
	UnitG     Unit = "g"
	UnitL     Unit = "l"
	UnitMl    Unit = "ml"
	UnitPiece Unit = "piece"
	UnitBox   Unit = "box"
	UnitPack  Unit = "pack"
)

// 商品カテゴリ
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryFood        Category = "Food"
	CategoryBooks       Category = "Books"
	CategoryToys        Category = "Toys"
	CategoryOther       Category = "Other"
)

// 在庫ステータス（stockから導出する。直接は設定しない）
type StockStatus string

const (
	StatusInStock    StockStatus = "In Stock"
	StatusOutOfStock StockStatus = "Out of Stock"
)

// 画像未設定のときの値
const DefaultImage = "no-photo.jpg"

var (
	Units      = []Unit{UnitKg, UnitG, UnitL, UnitMl, UnitPiece, UnitBox, UnitPack}
	Categories = []Category{CategoryElectronics, CategoryClothing, CategoryFood, CategoryBooks, CategoryToys, CategoryOther}
)

func (u Unit) Valid() bool {
	for _, v := range Units {
		if v == u {
			return true
		}
	}
	return false
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// DeriveStatus は在庫数からステータスを決める。
func DeriveStatus(stock int64) StockStatus {
	if stock > 0 {
		return StatusInStock
	}
	return StatusOutOfStock
}

type Product struct {
	ID            string      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string      `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Unit          Unit        `gorm:"type:varchar(10);not null" json:"unit"`
	Category      Category    `gorm:"type:varchar(20);not null;index" json:"category"`
	Brand         string      `gorm:"type:varchar(30)" json:"brand"`
	Stock         int64       `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Status        StockStatus `gorm:"type:varchar(20);not null" json:"status"`
	Image         string      `gorm:"type:text;not null;default:'no-photo.jpg'" json:"image"`
	ImagePublicID string      `gorm:"type:varchar(255)" json:"imagePublicId,omitempty"`
	UserID        string      `gorm:"type:uuid;not null;index" json:"-"`
	User          *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt     time.Time   `gorm:"not null;autoCreateTime;index" json:"createdAt"`
}

// 保存直前に必ずステータスを導出し直す
func (p *Product) BeforeSave(tx *gorm.DB) error {
	p.Status = DeriveStatus(p.Stock)
	if p.Image == "" {
		p.Image = DefaultImage
	}
	return nil
}

// 画像が既定値以外（アセットストアにある）か
func (p Product) HasStoredImage() bool {
	return p.ImagePublicID != ""
}
