package repository

import (
	"context"
	"io"
)

// 保存済みの画像
type Asset struct {
	PublicID string // 削除に使う識別子
	URL      string // 商品に保存する参照
}

// 商品画像の保存先（外部ストレージ）
type AssetStore interface {
	Save(ctx context.Context, ext string, content io.Reader) (Asset, error)
	Delete(ctx context.Context, publicID string) error
}
