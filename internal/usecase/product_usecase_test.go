package usecase_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"
	"inventory/internal/usecase"
	"inventory/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 最小のPNG（シグネチャ + IHDR）
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), []byte("\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")...)

type productFixture struct {
	uc       *usecase.ProductUsecase
	products *memProducts
	history  *HistoryRepoMock
	assets   *fakeAssets
	metrics  *fakeMetrics
}

func newProductFixture(seed ...model.Product) productFixture {
	f := productFixture{
		products: newMemProducts(seed...),
		history:  new(HistoryRepoMock),
		assets:   &fakeAssets{},
		metrics:  &fakeMetrics{},
	}
	f.uc = usecase.NewProductUsecase(usecase.ProductDeps{
		Products:      f.products,
		History:       f.history,
		Assets:        f.assets,
		Validator:     validator.NewProductValidator(),
		Metrics:       f.metrics,
		MaxImageBytes: 1 << 10,
	})
	return f
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

// =====================
// UpdateProduct（在庫変更と履歴）
// =====================

func TestUpdateProduct_StockChange_AppendsOneHistoryEntry(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	f.history.On("Append", mock.Anything, mock.MatchedBy(func(e model.InventoryHistory) bool {
		return e.ProductID == productA && e.OldQuantity == 10 && e.NewQuantity == 4 && e.UserID == ownerA && e.ID != ""
	})).Return(model.InventoryHistory{}, nil).Once()

	got, err := f.uc.UpdateProduct(ctx, productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(4)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Stock)
	assert.Equal(t, model.StatusInStock, got.Status)

	f.history.AssertExpectations(t)
	f.history.AssertNumberOfCalls(t, "Append", 1)
	assert.Equal(t, 1, f.metrics.appended)
}

func TestUpdateProduct_StockToZero_DerivesOutOfStock(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))
	f.history.On("Append", mock.Anything, mock.Anything).Return(model.InventoryHistory{}, nil)

	got, err := f.uc.UpdateProduct(ctx, productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOutOfStock, got.Status)

	stored, _ := f.products.get(productA)
	assert.Equal(t, model.StatusOutOfStock, stored.Status)
}

func TestUpdateProduct_NoHistoryWhenStockAbsentOrUnchanged(t *testing.T) {
	cases := []struct {
		name    string
		changes usecase.ProductChanges
	}{
		{name: "stock absent", changes: usecase.ProductChanges{Brand: strp("Other brand")}},
		{name: "stock equal", changes: usecase.ProductChanges{Stock: int64p(10)}},
		{name: "name only", changes: usecase.ProductChanges{Name: strp("Widget 2")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newProductFixture(widget(productA, ownerA, "Widget", 10))

			_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), tc.changes, nil)
			require.NoError(t, err)

			f.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateProduct_NotOwner_Unauthorized(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerB), usecase.ProductChanges{Stock: int64p(1)}, nil)
	he := assertHTTPError(t, err, http.StatusUnauthorized)
	require.NotNil(t, he)
	assert.Contains(t, he.Message, ownerB)

	stored, _ := f.products.get(productA)
	assert.Equal(t, int64(10), stored.Stock)
	f.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestUpdateProduct_AdminMayUpdateAnyProduct(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))
	f.history.On("Append", mock.Anything, mock.MatchedBy(func(e model.InventoryHistory) bool {
		return e.UserID == admin
	})).Return(model.InventoryHistory{}, nil).Once()

	got, err := f.uc.UpdateProduct(context.Background(), productA, adminActor(), usecase.ProductChanges{Stock: int64p(3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stock)

	// 所有者は変わらない
	stored, _ := f.products.get(productA)
	assert.Equal(t, ownerA, stored.UserID)
	f.history.AssertExpectations(t)
}

func TestUpdateProduct_NegativeStock_Rejected(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(-1)}, nil)
	he := assertHTTPError(t, err, http.StatusBadRequest)
	require.NotNil(t, he)
	assert.Equal(t, "stock must be >= 0", he.Message)

	stored, _ := f.products.get(productA)
	assert.Equal(t, int64(10), stored.Stock)
	f.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestUpdateProduct_HistoryFailureStillSucceeds(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))
	f.history.On("Append", mock.Anything, mock.Anything).Return(model.InventoryHistory{}, errBoom)

	got, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(7)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Stock)

	stored, _ := f.products.get(productA)
	assert.Equal(t, int64(7), stored.Stock)
	assert.Equal(t, 1, f.metrics.failed)
	assert.Equal(t, 0, f.metrics.appended)
}

func TestUpdateProduct_NameTakenByAnotherProduct(t *testing.T) {
	f := newProductFixture(
		widget(productA, ownerA, "Widget", 10),
		widget(productB, ownerA, "Gadget", 1),
	)

	_, err := f.uc.UpdateProduct(context.Background(), productB, userActor(ownerA), usecase.ProductChanges{Name: strp("Widget")}, nil)
	he := assertHTTPError(t, err, http.StatusBadRequest)
	require.NotNil(t, he)
	assert.Equal(t, "A product with this name already exists", he.Message)

	// 自分自身と同じ名前はOK
	_, err = f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Name: strp("Widget")}, nil)
	assert.NoError(t, err)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	f := newProductFixture()

	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{}, nil)
	assertHTTPError(t, err, http.StatusNotFound)

	_, err = f.uc.UpdateProduct(context.Background(), "not-a-uuid", userActor(ownerA), usecase.ProductChanges{}, nil)
	assertHTTPError(t, err, http.StatusNotFound)
}

func TestUpdateProduct_ReplacesImage(t *testing.T) {
	p := widget(productA, ownerA, "Widget", 10)
	p.Image = "/uploads/product_images/old.png"
	p.ImagePublicID = "product_images/old.png"
	f := newProductFixture(p)

	img := &usecase.ImageUpload{Filename: "photo.png", Content: bytes.NewReader(pngBytes)}
	got, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{}, img)
	require.NoError(t, err)

	require.Len(t, f.assets.saved, 1)
	assert.True(t, strings.HasSuffix(f.assets.saved[0], ".png"))
	assert.Equal(t, f.assets.saved[0], got.ImagePublicID)
	assert.Equal(t, []string{"product_images/old.png"}, f.assets.deleted)
}

func TestUpdateProduct_RejectsNonImageUpload(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	img := &usecase.ImageUpload{Filename: "photo.png", Content: strings.NewReader("just some text")}
	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{}, img)
	assertHTTPError(t, err, http.StatusBadRequest)
	assert.Empty(t, f.assets.saved)
}

func TestUpdateProduct_ValidationFailureKeepsCurrentImage(t *testing.T) {
	p := widget(productA, ownerA, "Widget", 10)
	p.ImagePublicID = "product_images/old.png"
	f := newProductFixture(p)

	img := &usecase.ImageUpload{Filename: "photo.png", Content: bytes.NewReader(pngBytes)}
	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(-5)}, img)
	assertHTTPError(t, err, http.StatusBadRequest)

	assert.Empty(t, f.assets.saved)
	assert.Empty(t, f.assets.deleted)
}

func TestUpdateProduct_OversizedImage(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	big := append(append([]byte{}, pngBytes...), make([]byte, 2<<10)...)
	img := &usecase.ImageUpload{Filename: "big.png", Content: bytes.NewReader(big)}
	_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{}, img)
	he := assertHTTPError(t, err, http.StatusBadRequest)
	require.NotNil(t, he)
	assert.Contains(t, he.Message, "at most")
}

func TestUpdateProduct_StoreFailure_NoHistory(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "db error", err: errBoom, status: http.StatusInternalServerError, msg: "db error"},
		{name: "name taken concurrently", err: repo.ErrDuplicate, status: http.StatusBadRequest, msg: "A product with this name already exists"},
		{name: "deleted concurrently", err: repo.ErrNotFound, status: http.StatusNotFound, msg: "Product not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := widget(productA, ownerA, "Widget", 10)
			p.ImagePublicID = "product_images/old.png"
			f := newProductFixture(p)
			f.products.updateErr = tc.err

			img := &usecase.ImageUpload{Filename: "photo.png", Content: bytes.NewReader(pngBytes)}
			_, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(3)}, img)
			he := assertHTTPError(t, err, tc.status)
			require.NotNil(t, he)
			assert.Equal(t, tc.msg, he.Message)

			// 履歴は残らない、新しい画像は消す、古い画像は残す
			f.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			require.Len(t, f.assets.saved, 1)
			assert.Equal(t, f.assets.saved, f.assets.deleted)

			stored, _ := f.products.get(productA)
			assert.Equal(t, int64(10), stored.Stock)
			assert.Equal(t, "product_images/old.png", stored.ImagePublicID)
		})
	}
}

func TestUpdateProduct_OldImageDeleteFailureIgnored(t *testing.T) {
	p := widget(productA, ownerA, "Widget", 10)
	p.ImagePublicID = "product_images/old.png"
	f := newProductFixture(p)
	f.assets.deleteErr = errBoom

	img := &usecase.ImageUpload{Filename: "photo.png", Content: bytes.NewReader(pngBytes)}
	got, err := f.uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{}, img)
	require.NoError(t, err)

	require.Len(t, f.assets.saved, 1)
	assert.Equal(t, f.assets.saved[0], got.ImagePublicID)
	assert.Equal(t, []string{"product_images/old.png"}, f.assets.deleted)

	stored, _ := f.products.get(productA)
	assert.Equal(t, f.assets.saved[0], stored.ImagePublicID)
}

func TestUpdateProduct_LogsHistoryDelta(t *testing.T) {
	var logs bytes.Buffer
	products := newMemProducts(widget(productA, ownerA, "Widget", 10))
	history := new(HistoryRepoMock)
	history.On("Append", mock.Anything, mock.Anything).Return(model.InventoryHistory{}, nil).Once()
	history.On("Append", mock.Anything, mock.Anything).Return(model.InventoryHistory{}, errBoom).Once()

	uc := usecase.NewProductUsecase(usecase.ProductDeps{
		Products:  products,
		History:   history,
		Assets:    &fakeAssets{},
		Validator: validator.NewProductValidator(),
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
	})

	_, err := uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(4)}, nil)
	require.NoError(t, err)
	_, err = uc.UpdateProduct(context.Background(), productA, userActor(ownerA), usecase.ProductChanges{Stock: int64p(9)}, nil)
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `msg="inventory history appended"`)
	assert.Contains(t, out, "delta=-6")
	assert.Contains(t, out, `msg="inventory history append failed"`)
	assert.Contains(t, out, "delta=5")
}

// =====================
// CreateProduct
// =====================

func TestCreateProduct_DerivesStatusAndOwner(t *testing.T) {
	f := newProductFixture()

	got, err := f.uc.CreateProduct(context.Background(), userActor(ownerA), usecase.CreateProductInput{
		Name: "  Apples ", Unit: "kg", Category: "Food", Stock: 0,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Apples", got.Name)
	assert.Equal(t, ownerA, got.UserID)
	assert.Equal(t, model.StatusOutOfStock, got.Status)
	assert.Equal(t, model.DefaultImage, got.Image)
	assert.Equal(t, 1, f.products.count())
}

func TestCreateProduct_Invalid(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	cases := []struct {
		name string
		in   usecase.CreateProductInput
		msg  string
	}{
		{"missing name", usecase.CreateProductInput{Unit: "kg", Category: "Food"}, "name is required"},
		{"bad unit", usecase.CreateProductInput{Name: "X", Unit: "ton", Category: "Food"}, "unit must be one of: kg, g, l, ml, piece, box, pack"},
		{"negative stock", usecase.CreateProductInput{Name: "X", Unit: "kg", Category: "Food", Stock: -2}, "stock must be >= 0"},
		{"name taken", usecase.CreateProductInput{Name: "Widget", Unit: "kg", Category: "Food"}, "A product with this name already exists"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.CreateProduct(context.Background(), userActor(ownerA), tc.in, nil)
			he := assertHTTPError(t, err, http.StatusBadRequest)
			require.NotNil(t, he)
			assert.Equal(t, tc.msg, he.Message)
		})
	}
	assert.Equal(t, 1, f.products.count())
}

func TestCreateProduct_WithImage(t *testing.T) {
	f := newProductFixture()

	img := &usecase.ImageUpload{Filename: "a.png", Content: bytes.NewReader(pngBytes)}
	got, err := f.uc.CreateProduct(context.Background(), userActor(ownerA), usecase.CreateProductInput{
		Name: "Pears", Unit: "kg", Category: "Food", Stock: 3,
	}, img)
	require.NoError(t, err)

	require.Len(t, f.assets.saved, 1)
	assert.Equal(t, "/uploads/"+f.assets.saved[0], got.Image)
	assert.True(t, got.HasStoredImage())
}

// =====================
// Delete / DeleteMany
// =====================

func TestDeleteProduct(t *testing.T) {
	p := widget(productA, ownerA, "Widget", 10)
	p.ImagePublicID = "product_images/a.png"
	f := newProductFixture(p)

	err := f.uc.DeleteProduct(context.Background(), productA, userActor(ownerB))
	assertHTTPError(t, err, http.StatusUnauthorized)
	assert.Equal(t, 1, f.products.count())

	err = f.uc.DeleteProduct(context.Background(), productA, userActor(ownerA))
	require.NoError(t, err)
	assert.Equal(t, 0, f.products.count())
	assert.Equal(t, []string{"product_images/a.png"}, f.assets.deleted)

	err = f.uc.DeleteProduct(context.Background(), productA, userActor(ownerA))
	assertHTTPError(t, err, http.StatusNotFound)
}

func TestDeleteProduct_AssetFailureIgnored(t *testing.T) {
	p := widget(productA, ownerA, "Widget", 10)
	p.ImagePublicID = "product_images/a.png"
	f := newProductFixture(p)
	f.assets.deleteErr = errBoom

	err := f.uc.DeleteProduct(context.Background(), productA, userActor(ownerA))
	require.NoError(t, err)
	assert.Equal(t, 0, f.products.count())
}

func TestDeleteManyProducts_OnlyOwnProducts(t *testing.T) {
	f := newProductFixture(
		widget(productA, ownerA, "A", 1),
		widget(productB, ownerA, "B", 1),
		widget(productC, ownerB, "C", 1),
	)

	n, err := f.uc.DeleteManyProducts(context.Background(), []string{productA, productB, productC}, userActor(ownerA))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok := f.products.get(productC)
	assert.True(t, ok)
	assert.Equal(t, 1, f.products.count())
}

func TestDeleteManyProducts_Admin(t *testing.T) {
	f := newProductFixture(
		widget(productA, ownerA, "A", 1),
		widget(productB, ownerA, "B", 1),
		widget(productC, ownerB, "C", 1),
	)

	n, err := f.uc.DeleteManyProducts(context.Background(), []string{productA, productB, productC, "garbage"}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 0, f.products.count())
}

func TestDeleteManyProducts_NoValidIDs(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "A", 1))

	n, err := f.uc.DeleteManyProducts(context.Background(), []string{"x", "y"}, userActor(ownerA))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 1, f.products.count())
}

// =====================
// 読み取り
// =====================

func TestGetProduct(t *testing.T) {
	f := newProductFixture(widget(productA, ownerA, "Widget", 10))

	got, err := f.uc.GetProduct(context.Background(), productA)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)

	_, err = f.uc.GetProduct(context.Background(), productB)
	assertHTTPError(t, err, http.StatusNotFound)

	_, err = f.uc.GetProduct(context.Background(), "nope")
	assertHTTPError(t, err, http.StatusNotFound)
}

func TestGetProduct_CacheWriteFailureReadsStoreOnce(t *testing.T) {
	products := newMemProducts(widget(productA, ownerA, "Widget", 10))
	c := &setFailCache{}
	uc := usecase.NewProductUsecase(usecase.ProductDeps{
		Products:  products,
		Validator: validator.NewProductValidator(),
		Cache:     c,
	})

	got, err := uc.GetProduct(context.Background(), productA)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, 1, c.fetches)
	assert.Equal(t, 1, products.finds)

	_, err = uc.GetProduct(context.Background(), productB)
	assertHTTPError(t, err, http.StatusNotFound)
	assert.Equal(t, 2, products.finds)
}

func TestSearchProducts(t *testing.T) {
	f := newProductFixture(
		widget(productA, ownerA, "Blue Widget", 1),
		widget(productB, ownerA, "Gadget", 1),
	)

	items, err := f.uc.SearchProducts(context.Background(), "widget")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Blue Widget", items[0].Name)

	_, err = f.uc.SearchProducts(context.Background(), "   ")
	he := assertHTTPError(t, err, http.StatusBadRequest)
	require.NotNil(t, he)
	assert.Equal(t, "Please provide a search term", he.Message)
}

func TestListProducts_Pagination(t *testing.T) {
	seed := make([]model.Product, 0, 3)
	for i, id := range []string{productA, productB, productC} {
		seed = append(seed, widget(id, ownerA, string(rune('A'+i)), int64(i)))
	}
	f := newProductFixture(seed...)

	out, err := f.uc.ListProducts(context.Background(), url.Values{"page": {"1"}, "limit": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	require.NotNil(t, out.Pagination.Next)
	assert.Equal(t, usecase.PageRef{Page: 2, Limit: 2}, *out.Pagination.Next)
	assert.Nil(t, out.Pagination.Prev)

	out, err = f.uc.ListProducts(context.Background(), url.Values{"page": {"2"}, "limit": {"2"}})
	require.NoError(t, err)
	assert.Nil(t, out.Pagination.Next)
	require.NotNil(t, out.Pagination.Prev)
	assert.Equal(t, usecase.PageRef{Page: 1, Limit: 2}, *out.Pagination.Prev)

	_, err = f.uc.ListProducts(context.Background(), url.Values{"color[eq]": {"red"}})
	assertHTTPError(t, err, http.StatusBadRequest)
}

func TestProductHistory(t *testing.T) {
	f := newProductFixture()
	entries := []model.InventoryHistory{
		{ID: "h2", ProductID: productA, OldQuantity: 5, NewQuantity: 2},
		{ID: "h1", ProductID: productA, OldQuantity: 10, NewQuantity: 5},
	}
	f.history.On("ListByProductID", mock.Anything, productA).Return(entries, nil)

	got, err := f.uc.ProductHistory(context.Background(), productA)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	got, err = f.uc.ProductHistory(context.Background(), "bad-id")
	require.NoError(t, err)
	assert.Empty(t, got)
	f.history.AssertNumberOfCalls(t, "ListByProductID", 1)
}

func TestCanMutate(t *testing.T) {
	assert.True(t, usecase.CanMutate(userActor(ownerA), ownerA))
	assert.False(t, usecase.CanMutate(userActor(ownerB), ownerA))
	assert.True(t, usecase.CanMutate(adminActor(), ownerA))
	assert.False(t, usecase.CanMutate(model.Actor{}, ""))
}

var _ repo.InventoryHistoryRepository = (*HistoryRepoMock)(nil)
