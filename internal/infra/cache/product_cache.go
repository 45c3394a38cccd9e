package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory/internal/usecase"

	"github.com/redis/go-redis/v9"
)

// 全プロセスで共有するバージョン
const versionKey = "inventory:products:version"

// ProductCache は商品の読み取り結果をRedisに置く。
// 書き込みのたびにバージョンを上げ、古いキーはTTLで消える。
// clientがnilなら常にloaderを呼ぶ。
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ usecase.ProductCache = (*ProductCache)(nil)

func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

// Version は現在のバージョン（無ければ1で初期化）
func (c *ProductCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// 他のプロセスが先に作っていればそれを使う
		if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *ProductCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("inventory:%s:v%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON はキャッシュがあればdestに入れ、無ければloaderの結果を保存して入れる。
func (c *ProductCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump は全キーを無効化する。バージョンはRedis上の1キーなので他のプロセスにもそのまま効く。
func (c *ProductCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey).Err()
}

func roundTrip(value interface{}, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
