package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"github.com/google/uuid"
)

// CSVの1行。キーは小文字化したヘッダー名（name, unit, ...）
type Row map[string]string

// RowSource は1行ずつ取り出す。終わりは io.EOF
type RowSource interface {
	Next() (Row, error)
}

// 商品一覧をCSVに書き出す
type ProductSheetWriter interface {
	WriteProducts(w io.Writer, products []model.Product) error
}

// 1行の処理結果
type RowOutcome string

const (
	RowAdded     RowOutcome = "added"
	RowDuplicate RowOutcome = "duplicate"
	RowEmpty     RowOutcome = "empty"
	RowInvalid   RowOutcome = "invalid"
)

type ImportSummary struct {
	AddedCount      int `json:"addedCount"`
	SkippedCount    int `json:"skippedCount"`
	EmptyRowCount   int `json:"emptyRowCount"`
	InvalidRowCount int `json:"invalidRowCount"`
}

func (s *ImportSummary) add(o RowOutcome) {
	switch o {
	case RowAdded:
		s.AddedCount++
	case RowDuplicate:
		s.SkippedCount++
	case RowEmpty:
		s.EmptyRowCount++
	case RowInvalid:
		// 不正行も追加されなかった行として数える
		s.InvalidRowCount++
		s.SkippedCount++
	}
}

type ImportDeps struct {
	Tx        repo.TransactionManager
	Products  repo.ProductRepository
	Validator ProductValidator
	Sheet     ProductSheetWriter
	Cache     ProductCache
	Metrics   StockMetrics
	Logger    *slog.Logger
}

type ImportUsecase struct {
	tx        repo.TransactionManager
	products  repo.ProductRepository
	validator ProductValidator
	sheet     ProductSheetWriter
	cache     ProductCache
	metrics   StockMetrics
	log       *slog.Logger
}

func NewImportUsecase(d ImportDeps) *ImportUsecase {
	u := &ImportUsecase{
		tx:        d.Tx,
		products:  d.Products,
		validator: d.Validator,
		sheet:     d.Sheet,
		cache:     d.Cache,
		metrics:   d.Metrics,
		log:       d.Logger,
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
	return u
}

// ImportProducts はCSVの行を順番に取り込む。
// 全体を1トランザクションで行い、DBや読み込みの失敗では何も残さない。
func (u *ImportUsecase) ImportProducts(ctx context.Context, src RowSource, actorID string) (ImportSummary, error) {
	if actorID == "" {
		return ImportSummary{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var sum ImportSummary
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		sum = ImportSummary{}
		rc := &reconciler{
			src:       src,
			products:  r.Products(),
			validator: u.validator,
			actorID:   actorID,
			log:       u.log,
		}
		for {
			outcome, err := rc.next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			sum.add(outcome)
		}
	})
	if err != nil {
		u.log.ErrorContext(ctx, "import aborted", slog.String("user_id", actorID), slog.Any("error", err))
		return ImportSummary{}, NewHTTPError(http.StatusInternalServerError, "import failed: "+err.Error())
	}

	u.metrics.ImportRows(string(RowAdded), sum.AddedCount)
	u.metrics.ImportRows(string(RowDuplicate), sum.SkippedCount-sum.InvalidRowCount)
	u.metrics.ImportRows(string(RowEmpty), sum.EmptyRowCount)
	u.metrics.ImportRows(string(RowInvalid), sum.InvalidRowCount)

	if sum.AddedCount > 0 {
		if err := u.cache.Bump(ctx); err != nil {
			u.log.WarnContext(ctx, "cache bump failed", slog.Any("error", err))
		}
	}

	u.log.InfoContext(ctx, "import finished",
		slog.String("user_id", actorID),
		slog.Int("added", sum.AddedCount),
		slog.Int("skipped", sum.SkippedCount),
		slog.Int("empty", sum.EmptyRowCount),
		slog.Int("invalid", sum.InvalidRowCount),
	)
	return sum, nil
}

// ExportProducts は自分の商品をCSVで w に書く。1件も無ければ404
func (u *ImportUsecase) ExportProducts(ctx context.Context, w io.Writer, actorID string) error {
	if actorID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	items, err := u.products.ListByOwner(ctx, actorID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, msgDB)
	}
	if len(items) == 0 {
		return NewHTTPError(http.StatusNotFound, "No products found")
	}

	var buf bytes.Buffer
	if err := u.sheet.WriteProducts(&buf, items); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "export failed")
	}
	if _, err := buf.WriteTo(w); err != nil {
		return err
	}
	return nil
}

// reconciler は呼ばれるたびに1行読み、その結果を返す。
type reconciler struct {
	src       RowSource
	products  repo.ProductRepository
	validator ProductValidator
	actorID   string
	log       *slog.Logger
	row       int // ヘッダーを除いた何行目か
}

func (rc *reconciler) next(ctx context.Context) (RowOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	row, err := rc.src.Next()
	if err != nil {
		return "", err
	}
	rc.row++

	if row.blank() {
		return RowEmpty, nil
	}

	p := rc.productFromRow(row)
	if p.Name == "" {
		rc.log.WarnContext(ctx, "import row skipped", slog.Int("row", rc.row), slog.String("reason", "name is required"))
		return RowInvalid, nil
	}
	if err := rc.validator.ValidateProduct(p); err != nil {
		rc.log.WarnContext(ctx, "import row skipped", slog.Int("row", rc.row), slog.String("reason", err.Error()))
		return RowInvalid, nil
	}

	_, err = rc.products.FindByName(ctx, p.Name)
	if err == nil {
		return RowDuplicate, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}

	if _, err := rc.products.Create(ctx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return RowDuplicate, nil
		}
		return "", err
	}
	return RowAdded, nil
}

func (rc *reconciler) productFromRow(row Row) model.Product {
	stock := parseStock(row.get("stock"))

	unit := row.get("unit")
	if unit == "" {
		unit = string(model.UnitPiece)
	}
	category := row.get("category")
	if category == "" {
		category = string(model.CategoryOther)
	}
	image := row.get("image")
	if image == "" {
		image = model.DefaultImage
	}

	// status列は使わず在庫から決める
	return model.Product{
		ID:       uuid.NewString(),
		Name:     row.get("name"),
		Unit:     model.Unit(unit),
		Category: model.Category(category),
		Brand:    row.get("brand"),
		Stock:    stock,
		Status:   model.DeriveStatus(stock),
		Image:    image,
		UserID:   rc.actorID,
	}
}

func (r Row) get(key string) string {
	return strings.TrimSpace(r[key])
}

// 全ての値が空白
func (r Row) blank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// 先頭の符号と数字だけを10進数として読む（"12 pcs" → 12）。読めなければ0
func parseStock(s string) int64 {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		if n > (1<<62)/10 {
			return 0
		}
		n = n*10 + int64(c-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	if neg {
		return -n
	}
	return n
}
