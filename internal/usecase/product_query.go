package usecase

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	repo "inventory/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPage  = 1
	defaultLimit = 25
	maxLimit     = 100
)

// 絞り込みとして扱わないクエリ
var reservedParams = map[string]bool{
	"page":  true,
	"limit": true,
	"sort":  true,
}

// ParseListQuery は GET /products のクエリを検証済みの検索条件に変換する。
//
//	?page=2&limit=10&sort=-stock,name&category=Food&stock[gte]=5&unit[in]=kg,g
func ParseListQuery(values url.Values) (repo.ProductListQuery, error) {
	q := repo.ProductListQuery{Page: defaultPage, Limit: defaultLimit}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return repo.ProductListQuery{}, NewHTTPError(http.StatusBadRequest, "invalid page")
		}
		q.Page = page
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return repo.ProductListQuery{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		q.Limit = limit
	}

	sortFields, err := parseSort(values.Get("sort"))
	if err != nil {
		return repo.ProductListQuery{}, err
	}
	q.Sort = sortFields

	// mapの順序に依存しないようキーを並べる
	keys := make([]string, 0, len(values))
	for k := range values {
		if !reservedParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		name, op, err := splitFilterKey(key)
		if err != nil {
			return repo.ProductListQuery{}, err
		}
		field, ok := repo.ProductFields[name]
		if !ok || !field.Filterable {
			return repo.ProductListQuery{}, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown filter field: %s", name))
		}
		for _, raw := range values[key] {
			f, err := buildFilter(name, field, op, raw)
			if err != nil {
				return repo.ProductListQuery{}, err
			}
			q.Filters = append(q.Filters, f)
		}
	}

	return q, nil
}

// "-createdAt,name" → [{createdAt desc} {name asc}]
func parseSort(raw string) ([]repo.SortField, error) {
	var out []repo.SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		field, ok := repo.ProductFields[name]
		if !ok || !field.Sortable {
			return nil, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid sort field: %s", name))
		}
		out = append(out, repo.SortField{Field: name, Desc: desc})
	}
	if len(out) == 0 {
		return []repo.SortField{{Field: "createdAt", Desc: true}}, nil
	}
	return out, nil
}

// "stock[gte]" → ("stock", gte) / "unit" → ("unit", eq)
func splitFilterKey(key string) (string, repo.FilterOp, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, repo.OpEq, nil
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid filter: %s", key))
	}

	op := repo.FilterOp(key[open+1 : len(key)-1])
	switch op {
	case repo.OpEq, repo.OpGt, repo.OpGte, repo.OpLt, repo.OpLte, repo.OpIn:
	default:
		return "", "", NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown filter operator: %s", op))
	}
	return key[:open], op, nil
}

func buildFilter(name string, field repo.ProductField, op repo.FilterOp, raw string) (repo.Filter, error) {
	if op != repo.OpIn {
		v, err := convertValue(name, field, raw)
		if err != nil {
			return repo.Filter{}, err
		}
		return repo.Filter{Field: name, Op: op, Value: v}, nil
	}

	var list []any
	for _, part := range strings.Split(raw, ",") {
		v, err := convertValue(name, field, strings.TrimSpace(part))
		if err != nil {
			return repo.Filter{}, err
		}
		list = append(list, v)
	}
	return repo.Filter{Field: name, Op: op, Value: list}, nil
}

func convertValue(name string, field repo.ProductField, raw string) (any, error) {
	switch field.Kind {
	case repo.KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid value for %s", name))
		}
		return n, nil
	case repo.KindUUID:
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid value for %s", name))
		}
		return id.String(), nil
	default:
		return raw, nil
	}
}

// next は page*limit < total、prev は page > 1 のとき
func buildPagination(page, limit int, total int64) Pagination {
	var p Pagination
	if int64(page)*int64(limit) < total {
		p.Next = &PageRef{Page: page + 1, Limit: limit}
	}
	if page > 1 {
		p.Prev = &PageRef{Page: page - 1, Limit: limit}
	}
	return p
}
