package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"inventory/internal/usecase"

	"golang.org/x/text/cases"
)

const bom = "\ufeff"

// RowReader はCSVを1行ずつ usecase.Row にする。
// ヘッダーは大文字小文字を畳み込むので Name と name は同じ列になる。
type RowReader struct {
	r      *csv.Reader
	fold   cases.Caser
	header []string
}

var _ usecase.RowSource = (*RowReader)(nil)

func NewRowReader(r io.Reader) *RowReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return &RowReader{r: cr, fold: cases.Fold()}
}

// Next は次のデータ行を返す。残りが無ければ io.EOF
func (rr *RowReader) Next() (usecase.Row, error) {
	if rr.header == nil {
		if err := rr.readHeader(); err != nil {
			return nil, err
		}
	}

	record, err := rr.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}

	row := make(usecase.Row, len(rr.header))
	for i, name := range rr.header {
		if name == "" {
			continue
		}
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row, nil
}

func (rr *RowReader) readHeader() error {
	record, err := rr.r.Read()
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("csv: header: %w", err)
	}

	header := make([]string, len(record))
	for i, name := range record {
		if i == 0 {
			name = strings.TrimPrefix(name, bom)
		}
		header[i] = rr.fold.String(strings.TrimSpace(name))
	}
	rr.header = header
	return nil
}
