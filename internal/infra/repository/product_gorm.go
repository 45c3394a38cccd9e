package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 所有者はidとusernameだけ読む
func preloadOwner(tx *gorm.DB) *gorm.DB {
	return tx.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "username")
	})
}

// 絞り込み/ソート/ページング付きで返す。
func (r *ProductGormRepository) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{})

	for _, f := range q.Filters {
		var err error
		tx, err = applyFilter(tx, f)
		if err != nil {
			return []model.Product{}, 0, err
		}
	}

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	//sort
	if len(q.Sort) == 0 {
		tx = tx.Order("created_at desc")
	}
	for _, s := range q.Sort {
		field, ok := repo.ProductFields[s.Field]
		if !ok || !field.Sortable {
			return []model.Product{}, 0, fmt.Errorf("unsortable field %q", s.Field)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: field.Column}, Desc: s.Desc})
	}
	tx = tx.Order("id asc")

	offset := (q.Page - 1) * q.Limit
	if err := preloadOwner(tx).Offset(offset).Limit(q.Limit).Find(&products).Error; err != nil {
		return []model.Product{}, 0, err
	}

	return products, total, nil
}

func applyFilter(tx *gorm.DB, f repo.Filter) (*gorm.DB, error) {
	field, ok := repo.ProductFields[f.Field]
	if !ok || !field.Filterable {
		return nil, fmt.Errorf("unfilterable field %q", f.Field)
	}
	col := clause.Column{Name: field.Column}

	switch f.Op {
	case repo.OpEq:
		return tx.Where(clause.Eq{Column: col, Value: f.Value}), nil
	case repo.OpGt:
		return tx.Where(clause.Gt{Column: col, Value: f.Value}), nil
	case repo.OpGte:
		return tx.Where(clause.Gte{Column: col, Value: f.Value}), nil
	case repo.OpLt:
		return tx.Where(clause.Lt{Column: col, Value: f.Value}), nil
	case repo.OpLte:
		return tx.Where(clause.Lte{Column: col, Value: f.Value}), nil
	case repo.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("in filter on %q needs a list", f.Field)
		}
		return tx.Where(clause.IN{Column: col, Values: values}), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", f.Op)
	}
}

// 名前の部分一致（大文字小文字を区別しない）
func (r *ProductGormRepository) SearchByName(ctx context.Context, name string) ([]model.Product, error) {
	var products []model.Product
	like := "%" + escapeLike(strings.TrimSpace(name)) + "%"
	err := r.db.WithContext(ctx).
		Where("name ILIKE ?", like).
		Order("created_at desc").
		Find(&products).Error
	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// 所有者の商品（作成順）
func (r *ProductGormRepository) ListByOwner(ctx context.Context, userID string) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").Order("id asc").
		Find(&products).Error
	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	err := preloadOwner(r.db.WithContext(ctx)).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 名前の完全一致
func (r *ProductGormRepository) FindByName(ctx context.Context, name string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 商品の作成（BeforeSaveでstatusが決まる）
// Tx内ではSAVEPOINTになるので、一意制約違反でも外側のTxは使い続けられる
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&p).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.Product{}, repo.ErrDuplicate
		}
		return model.Product{}, err
	}
	return p, nil
}

// 商品の更新
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) (model.Product, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&model.Product{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"name":            p.Name,
			"unit":            p.Unit,
			"category":        p.Category,
			"brand":           p.Brand,
			"stock":           p.Stock,
			"status":          model.DeriveStatus(p.Stock),
			"image":           p.Image,
			"image_public_id": p.ImagePublicID,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return model.Product{}, repo.ErrDuplicate
		}
		return model.Product{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.Product{}, repo.ErrNotFound
	}
	return r.FindByID(ctx, p.ID)
}

// 商品削除
func (r *ProductGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// まとめて削除（ownerIDがあればその人の商品だけ）
func (r *ProductGormRepository) DeleteMany(ctx context.Context, ids []string, ownerID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Where("id IN ?", ids)
	if ownerID != "" {
		tx = tx.Where("user_id = ?", ownerID)
	}
	res := tx.Delete(&model.Product{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
