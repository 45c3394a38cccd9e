package csvio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"inventory/internal/domain/model"
	"inventory/internal/usecase"
)

var exportHeader = []string{"Name", "Unit", "Category", "Brand", "Stock", "Status", "Image"}

// ProductSheet は商品一覧をCSVにする。
// 名前は常にダブルクォートで囲み、他の列は必要なときだけ囲む。
type ProductSheet struct{}

var _ usecase.ProductSheetWriter = ProductSheet{}

func (ProductSheet) WriteProducts(w io.Writer, products []model.Product) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(exportHeader, ",") + "\n"); err != nil {
		return err
	}
	for _, p := range products {
		fields := []string{
			quote(p.Name),
			quoteIfNeeded(string(p.Unit)),
			quoteIfNeeded(string(p.Category)),
			quoteIfNeeded(p.Brand),
			strconv.FormatInt(p.Stock, 10),
			quoteIfNeeded(string(p.Status)),
			quoteIfNeeded(p.Image),
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsAny(s, ",\"\r\n") || s[0] == ' ' || s[0] == '\t' {
		return quote(s)
	}
	return s
}
