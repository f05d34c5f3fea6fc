package oracle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cached 在任意 PriceOracle 外包一层 TTL 缓存，避免对行情接口的
// 重复请求。巡检周期远短于行情的有效期，不加缓存会触发限流。
type Cached struct {
	inner PriceOracle
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cachedQuote
}

type cachedQuote struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// NewCached 构造带缓存的行情源。ttl 不为正时使用 5 分钟。
func NewCached(inner PriceOracle, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cachedQuote),
	}
}

// AssetPrice 实现 PriceOracle。缓存命中时不触达底层行情源。
func (c *Cached) AssetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= c.ttl {
		return entry.price, nil
	}

	price, err := c.inner.AssetPrice(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	c.mu.Lock()
	c.entries[key] = cachedQuote{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()
	return price, nil
}

// Clear 清空全部缓存条目。
func (c *Cached) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedQuote)
}

var _ PriceOracle = (*Cached)(nil)
