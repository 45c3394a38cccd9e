package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"github.com/google/uuid"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

const (
	msgProductNotFound = "Product not found"
	msgNameTaken       = "A product with this name already exists"
	msgDB              = "db error"
)

// 商品の保存前チェック
type ProductValidator interface {
	ValidateProduct(p model.Product) error
}

// 読み取りキャッシュ（書き込みのたびにBumpで無効化）
type ProductCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error
	Bump(ctx context.Context) error
}

// 在庫まわりの計測
type StockMetrics interface {
	HistoryAppended()
	HistoryAppendFailed()
	ImportRows(outcome string, n int)
}

type ProductDeps struct {
	Products      repo.ProductRepository
	History       repo.InventoryHistoryRepository
	Assets        repo.AssetStore
	Validator     ProductValidator
	Cache         ProductCache // nilならキャッシュ無し
	Metrics       StockMetrics // nil可
	Logger        *slog.Logger
	MaxImageBytes int64
}

type ProductUsecase struct {
	products      repo.ProductRepository
	history       repo.InventoryHistoryRepository
	assets        repo.AssetStore
	validator     ProductValidator
	cache         ProductCache
	metrics       StockMetrics
	log           *slog.Logger
	maxImageBytes int64
}

// DI
func NewProductUsecase(d ProductDeps) *ProductUsecase {
	u := &ProductUsecase{
		products:      d.Products,
		history:       d.History,
		assets:        d.Assets,
		validator:     d.Validator,
		cache:         d.Cache,
		metrics:       d.Metrics,
		log:           d.Logger,
		maxImageBytes: d.MaxImageBytes,
	}
	if u.cache == nil {
		u.cache = noCache{}
	}
	if u.metrics == nil {
		u.metrics = noMetrics{}
	}
	if u.log == nil {
		u.log = slog.Default()
	}
	if u.maxImageBytes <= 0 {
		u.maxImageBytes = 5 << 20
	}
	return u
}

// CanMutate は更新・削除できるか（所有者か管理者）
func CanMutate(actor model.Actor, ownerID string) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.IsAdmin() || actor.UserID == ownerID
}

type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

type ProductListOutput struct {
	Items      []model.Product `json:"items"`
	Total      int64           `json:"total"`
	Pagination Pagination      `json:"pagination"`
}

// GET /products
func (u *ProductUsecase) ListProducts(ctx context.Context, values url.Values) (ProductListOutput, error) {
	q, err := ParseListQuery(values)
	if err != nil {
		return ProductListOutput{}, err
	}

	var out ProductListOutput
	err = u.cached(ctx, &out, func(ctx context.Context) (interface{}, error) {
		items, total, err := u.products.List(ctx, q)
		if err != nil {
			return nil, NewHTTPError(http.StatusInternalServerError, msgDB)
		}
		return ProductListOutput{
			Items:      items,
			Total:      total,
			Pagination: buildPagination(q.Page, q.Limit, total),
		}, nil
	}, "products", "list", values.Encode())
	if err != nil {
		return ProductListOutput{}, err
	}
	return out, nil
}

// GET /products/search?name=
func (u *ProductUsecase) SearchProducts(ctx context.Context, name string) ([]model.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "Please provide a search term")
	}
	if len(name) > 100 {
		return nil, NewHTTPError(http.StatusBadRequest, "search term too long")
	}

	items, err := u.products.SearchByName(ctx, name)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	return items, nil
}

func (u *ProductUsecase) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	if !validID(productID) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, msgProductNotFound)
	}

	var p model.Product
	err := u.cached(ctx, &p, func(ctx context.Context) (interface{}, error) {
		return u.findProduct(ctx, productID)
	}, "products", "id", productID)
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

type CreateProductInput struct {
	Name     string
	Unit     string
	Category string
	Brand    string
	Stock    int64
}

func (u *ProductUsecase) CreateProduct(ctx context.Context, actor model.Actor, in CreateProductInput, image *ImageUpload) (model.Product, error) {
	if actor.UserID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	p := model.Product{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(in.Name),
		Unit:     model.Unit(strings.TrimSpace(in.Unit)),
		Category: model.Category(strings.TrimSpace(in.Category)),
		Brand:    strings.TrimSpace(in.Brand),
		Stock:    in.Stock,
		Image:    model.DefaultImage,
		UserID:   actor.UserID,
	}
	p.Status = model.DeriveStatus(p.Stock)

	if err := u.checkProduct(ctx, p); err != nil {
		return model.Product{}, err
	}

	var img *checkedImage
	if image != nil {
		c, err := readImage(image, u.maxImageBytes)
		if err != nil {
			return model.Product{}, err
		}
		img = &c
	}

	if img != nil {
		a, err := u.assets.Save(ctx, img.ext, img.reader())
		if err != nil {
			u.log.ErrorContext(ctx, "image upload failed", slog.Any("error", err))
			return model.Product{}, NewHTTPError(http.StatusInternalServerError, "image upload failed")
		}
		p.Image = a.URL
		p.ImagePublicID = a.PublicID
	}

	created, err := u.products.Create(ctx, p)
	if err != nil {
		if p.HasStoredImage() {
			u.deleteAsset(ctx, p.ImagePublicID)
		}
		if errors.Is(err, repo.ErrDuplicate) {
			return model.Product{}, NewHTTPError(http.StatusBadRequest, msgNameTaken)
		}
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, msgDB)
	}

	u.bump(ctx)
	return created, nil
}

// nilのフィールドは変更しない
type ProductChanges struct {
	Name     *string
	Unit     *string
	Category *string
	Brand    *string
	Stock    *int64
}

// UpdateProduct は商品を更新し、在庫数が変わったときだけ履歴を1件残す。
func (u *ProductUsecase) UpdateProduct(ctx context.Context, productID string, actor model.Actor, changes ProductChanges, image *ImageUpload) (model.Product, error) {
	if !validID(productID) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, msgProductNotFound)
	}

	p, err := u.findProduct(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}

	//所有者か管理者だけ
	if !CanMutate(actor, p.UserID) {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("User %s is not authorized to update this product", actor.UserID))
	}

	var img *checkedImage
	if image != nil {
		c, err := readImage(image, u.maxImageBytes)
		if err != nil {
			return model.Product{}, err
		}
		img = &c
	}

	//履歴用に変更前の在庫を保持
	oldStock := p.Stock

	applyChanges(&p, changes)
	p.Status = model.DeriveStatus(p.Stock)
	if err := u.checkProduct(ctx, p); err != nil {
		return model.Product{}, err
	}

	//画像の差し替え（古い画像は保存成功後に消す）
	oldPublicID := ""
	if img != nil {
		a, err := u.assets.Save(ctx, img.ext, img.reader())
		if err != nil {
			u.log.ErrorContext(ctx, "image upload failed", slog.String("product_id", p.ID), slog.Any("error", err))
			return model.Product{}, NewHTTPError(http.StatusInternalServerError, "image upload failed")
		}
		oldPublicID = p.ImagePublicID
		p.Image = a.URL
		p.ImagePublicID = a.PublicID
	}

	updated, err := u.products.Update(ctx, p)
	if err != nil {
		if img != nil {
			u.deleteAsset(ctx, p.ImagePublicID)
		}
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return model.Product{}, NewHTTPError(http.StatusNotFound, msgProductNotFound)
		case errors.Is(err, repo.ErrDuplicate):
			return model.Product{}, NewHTTPError(http.StatusBadRequest, msgNameTaken)
		default:
			return model.Product{}, NewHTTPError(http.StatusInternalServerError, msgDB)
		}
	}
	if oldPublicID != "" {
		u.deleteAsset(ctx, oldPublicID)
	}

	//在庫が指定されていて値が変わったときだけ履歴
	if changes.Stock != nil && *changes.Stock != oldStock {
		u.appendHistory(ctx, model.InventoryHistory{
			ID:          uuid.NewString(),
			ProductID:   updated.ID,
			OldQuantity: oldStock,
			NewQuantity: *changes.Stock,
			UserID:      actor.UserID,
		})
	}

	u.bump(ctx)
	return updated, nil
}

func applyChanges(p *model.Product, c ProductChanges) {
	if c.Name != nil {
		p.Name = strings.TrimSpace(*c.Name)
	}
	if c.Unit != nil {
		p.Unit = model.Unit(strings.TrimSpace(*c.Unit))
	}
	if c.Category != nil {
		p.Category = model.Category(strings.TrimSpace(*c.Category))
	}
	if c.Brand != nil {
		p.Brand = strings.TrimSpace(*c.Brand)
	}
	if c.Stock != nil {
		p.Stock = *c.Stock
	}
}

// 商品の書き込みは成功済みなので、履歴の失敗はログと計測だけ
func (u *ProductUsecase) appendHistory(ctx context.Context, entry model.InventoryHistory) {
	if _, err := u.history.Append(ctx, entry); err != nil {
		u.metrics.HistoryAppendFailed()
		u.log.ErrorContext(ctx, "inventory history append failed",
			slog.String("product_id", entry.ProductID),
			slog.Int64("old_quantity", entry.OldQuantity),
			slog.Int64("new_quantity", entry.NewQuantity),
			slog.Int64("delta", entry.Delta()),
			slog.Any("error", err),
		)
		return
	}
	u.metrics.HistoryAppended()
	u.log.InfoContext(ctx, "inventory history appended",
		slog.String("product_id", entry.ProductID),
		slog.String("user_id", entry.UserID),
		slog.Int64("delta", entry.Delta()),
	)
}

func (u *ProductUsecase) DeleteProduct(ctx context.Context, productID string, actor model.Actor) error {
	if !validID(productID) {
		return NewHTTPError(http.StatusNotFound, msgProductNotFound)
	}

	p, err := u.findProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !CanMutate(actor, p.UserID) {
		return NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("User %s is not authorized to delete this product", actor.UserID))
	}

	if err := u.products.Delete(ctx, p.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, msgProductNotFound)
		}
		return NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	if p.HasStoredImage() {
		u.deleteAsset(ctx, p.ImagePublicID)
	}

	u.bump(ctx)
	return nil
}

// DeleteManyProducts は削除した件数を返す。管理者以外は自分の商品だけ消える。
func (u *ProductUsecase) DeleteManyProducts(ctx context.Context, ids []string, actor model.Actor) (int64, error) {
	if actor.UserID == "" {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	ownerID := actor.UserID
	if actor.IsAdmin() {
		ownerID = ""
	}

	n, err := u.products.DeleteMany(ctx, valid, ownerID)
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	if n > 0 {
		u.bump(ctx)
	}
	return n, nil
}

// GET /products/:productId/history（新しい順）
func (u *ProductUsecase) ProductHistory(ctx context.Context, productID string) ([]model.InventoryHistory, error) {
	if !validID(productID) {
		return []model.InventoryHistory{}, nil
	}

	entries, err := u.history.ListByProductID(ctx, productID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	return entries, nil
}

func (u *ProductUsecase) findProduct(ctx context.Context, productID string) (model.Product, error) {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, msgProductNotFound)
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	return p, nil
}

// 入力ルールと名前の重複（自分以外）
func (u *ProductUsecase) checkProduct(ctx context.Context, p model.Product) error {
	if err := u.validator.ValidateProduct(p); err != nil {
		return NewHTTPError(http.StatusBadRequest, err.Error())
	}

	other, err := u.products.FindByName(ctx, p.Name)
	switch {
	case err == nil:
		if other.ID != p.ID {
			return NewHTTPError(http.StatusBadRequest, msgNameTaken)
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	return nil
}

func (u *ProductUsecase) deleteAsset(ctx context.Context, publicID string) {
	if err := u.assets.Delete(ctx, publicID); err != nil {
		u.log.WarnContext(ctx, "image delete failed", slog.String("public_id", publicID), slog.Any("error", err))
	}
}

// キャッシュ障害時はDBから直接読む。読み込み済みなら再読み込みしない
func (u *ProductUsecase) cached(ctx context.Context, dest interface{}, load func(context.Context) (interface{}, error), parts ...string) error {
	var (
		loaded  bool
		value   interface{}
		loadErr error
	)
	loader := func(ctx context.Context) (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			loadErr = err
			return nil, err
		}
		loaded, value = true, v
		return v, nil
	}

	key, err := u.cache.BuildKey(ctx, parts...)
	if err == nil {
		err = u.cache.FetchJSON(ctx, key, dest, loader)
		if err == nil || loadErr != nil {
			return err
		}
	}

	u.log.WarnContext(ctx, "cache unavailable", slog.Any("error", err))
	if loaded {
		return noCache{}.FetchJSON(ctx, "", dest, func(context.Context) (interface{}, error) {
			return value, nil
		})
	}
	return noCache{}.FetchJSON(ctx, "", dest, load)
}

func (u *ProductUsecase) bump(ctx context.Context) {
	if err := u.cache.Bump(ctx); err != nil {
		u.log.WarnContext(ctx, "cache bump failed", slog.Any("error", err))
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
