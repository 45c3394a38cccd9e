package usecase_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"
	"inventory/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// 商品ストア（メモリ）
// =====================

type memProducts struct {
	mu        sync.Mutex
	items     map[string]model.Product
	order     []string
	createErr func(p model.Product) error
	updateErr error
	finds     int
}

func newMemProducts(seed ...model.Product) *memProducts {
	m := &memProducts{items: map[string]model.Product{}}
	for _, p := range seed {
		p.Status = model.DeriveStatus(p.Stock)
		m.items[p.ID] = p
		m.order = append(m.order, p.ID)
	}
	return m
}

var _ repo.ProductRepository = (*memProducts)(nil)

func (m *memProducts) get(id string) (model.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	return p, ok
}

func (m *memProducts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memProducts) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Product, 0, len(m.order))
	for _, id := range m.order {
		if p, ok := m.items[id]; ok {
			out = append(out, p)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memProducts) SearchByName(ctx context.Context, name string) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Product
	for _, id := range m.order {
		p, ok := m.items[id]
		if ok && strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) ListByOwner(ctx context.Context, userID string) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Product
	for _, id := range m.order {
		p, ok := m.items[id]
		if ok && p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) FindByID(ctx context.Context, id string) (model.Product, error) {
	m.mu.Lock()
	m.finds++
	m.mu.Unlock()
	p, ok := m.get(id)
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) FindByName(ctx context.Context, name string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Name == name {
			return p, nil
		}
	}
	return model.Product{}, repo.ErrNotFound
}

func (m *memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if m.createErr != nil {
		if err := m.createErr(p); err != nil {
			return model.Product{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.items {
		if other.Name == p.Name {
			return model.Product{}, repo.ErrDuplicate
		}
	}
	p.Status = model.DeriveStatus(p.Stock)
	if p.Image == "" {
		p.Image = model.DefaultImage
	}
	m.items[p.ID] = p
	m.order = append(m.order, p.ID)
	return p, nil
}

func (m *memProducts) Update(ctx context.Context, p model.Product) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return model.Product{}, m.updateErr
	}
	cur, ok := m.items[p.ID]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	for id, other := range m.items {
		if id != p.ID && other.Name == p.Name {
			return model.Product{}, repo.ErrDuplicate
		}
	}
	p.UserID = cur.UserID
	p.CreatedAt = cur.CreatedAt
	p.Status = model.DeriveStatus(p.Stock)
	m.items[p.ID] = p
	return p, nil
}

func (m *memProducts) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memProducts) DeleteMany(ctx context.Context, ids []string, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		p, ok := m.items[id]
		if !ok || (ownerID != "" && p.UserID != ownerID) {
			continue
		}
		delete(m.items, id)
		n++
	}
	return n, nil
}

// 失敗したら開始前の状態に戻す
type memTx struct {
	products *memProducts
}

type memTxRepos struct{ products repo.ProductRepository }

func (r memTxRepos) Products() repo.ProductRepository { return r.products }

func (tm memTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	tm.products.mu.Lock()
	snapshot := make(map[string]model.Product, len(tm.products.items))
	for k, v := range tm.products.items {
		snapshot[k] = v
	}
	order := append([]string(nil), tm.products.order...)
	tm.products.mu.Unlock()

	if err := fn(memTxRepos{products: tm.products}); err != nil {
		tm.products.mu.Lock()
		tm.products.items = snapshot
		tm.products.order = order
		tm.products.mu.Unlock()
		return err
	}
	return nil
}

// =====================
// Mocks
// =====================

type HistoryRepoMock struct{ mock.Mock }

func (m *HistoryRepoMock) Append(ctx context.Context, entry model.InventoryHistory) (model.InventoryHistory, error) {
	args := m.Called(ctx, entry)
	e, _ := args.Get(0).(model.InventoryHistory)
	return e, args.Error(1)
}

func (m *HistoryRepoMock) ListByProductID(ctx context.Context, productID string) ([]model.InventoryHistory, error) {
	args := m.Called(ctx, productID)
	items, _ := args.Get(0).([]model.InventoryHistory)
	return items, args.Error(1)
}

type fakeAssets struct {
	mu        sync.Mutex
	saved     []string
	deleted   []string
	deleteErr error
}

func (a *fakeAssets) Save(ctx context.Context, ext string, content io.Reader) (repo.Asset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := io.ReadAll(content); err != nil {
		return repo.Asset{}, err
	}
	id := "product_images/new-" + string(rune('a'+len(a.saved))) + ext
	a.saved = append(a.saved, id)
	return repo.Asset{PublicID: id, URL: "/uploads/" + id}, nil
}

func (a *fakeAssets) Delete(ctx context.Context, publicID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, publicID)
	return a.deleteErr
}

type fakeMetrics struct {
	appended, failed int
	rows             map[string]int
}

func (f *fakeMetrics) HistoryAppended()     { f.appended++ }
func (f *fakeMetrics) HistoryAppendFailed() { f.failed++ }
func (f *fakeMetrics) ImportRows(outcome string, n int) {
	if f.rows == nil {
		f.rows = map[string]int{}
	}
	f.rows[outcome] += n
}

// 読み込みはできるが保存に失敗するキャッシュ
type setFailCache struct{ fetches int }

func (c *setFailCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	return strings.Join(parts, ":"), nil
}

func (c *setFailCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	c.fetches++
	if _, err := loader(ctx); err != nil {
		return err
	}
	return errors.New("cache: set failed")
}

func (c *setFailCache) Bump(ctx context.Context) error { return nil }

// =====================
// helper
// =====================

const (
	ownerA = "0b6f6c3e-2f1a-4a8e-9d5e-6a1b2c3d4e01"
	ownerB = "0b6f6c3e-2f1a-4a8e-9d5e-6a1b2c3d4e02"
	admin  = "0b6f6c3e-2f1a-4a8e-9d5e-6a1b2c3d4eff"

	productA = "a1a1a1a1-0000-4000-8000-000000000001"
	productB = "a1a1a1a1-0000-4000-8000-000000000002"
	productC = "a1a1a1a1-0000-4000-8000-000000000003"
)

func userActor(id string) model.Actor { return model.Actor{UserID: id, Role: model.RoleUser} }
func adminActor() model.Actor         { return model.Actor{UserID: admin, Role: model.RoleAdmin} }

func widget(id, owner, name string, stock int64) model.Product {
	return model.Product{
		ID:       id,
		Name:     name,
		Unit:     model.UnitPiece,
		Category: model.CategoryToys,
		Brand:    "Acme",
		Stock:    stock,
		Image:    model.DefaultImage,
		UserID:   owner,
	}
}

func assertHTTPError(t *testing.T, err error, status int) *usecase.HTTPError {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if !assert.True(t, ok, "expected HTTPError, got %v", err) {
		return nil
	}
	assert.Equal(t, status, he.Status, he.Message)
	return he
}

var errBoom = errors.New("boom")
