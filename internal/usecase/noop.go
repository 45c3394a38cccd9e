package usecase

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
)

// キャッシュ無しで毎回loaderを呼ぶ
type noCache struct{}

func (noCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	return strings.Join(parts, ":"), nil
}

func (noCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() == reflect.Ptr && !dv.IsNil() && reflect.TypeOf(value) == dv.Elem().Type() {
		dv.Elem().Set(reflect.ValueOf(value))
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (noCache) Bump(ctx context.Context) error { return nil }

type noMetrics struct{}

func (noMetrics) HistoryAppended()       {}
func (noMetrics) HistoryAppendFailed()   {}
func (noMetrics) ImportRows(string, int) {}
