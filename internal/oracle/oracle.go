// Package oracle 提供条件求值所需的市场行情数据。
package oracle

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// PriceOracle 返回资产的美元现价。
// 行情不可用时返回错误，调用方据此阻塞执行而不是猜测价格。
type PriceOracle interface {
	AssetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Static 是一个固定报价的行情源，用于模拟结算与测试。
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic 以给定报价表构造 Static。报价符号按大写归一化。
func NewStatic(prices map[string]decimal.Decimal) *Static {
	normalized := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		normalized[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return &Static{prices: normalized}
}

// DefaultStatic 返回覆盖白名单代币的默认报价表。
func DefaultStatic() *Static {
	return NewStatic(map[string]decimal.Decimal{
		"USDC":  decimal.NewFromInt(1),
		"DAI":   decimal.NewFromInt(1),
		"ETH":   decimal.NewFromInt(2000),
		"CHZ":   decimal.RequireFromString("0.07"),
		"MATIC": decimal.RequireFromString("0.5"),
		"LINK":  decimal.NewFromInt(15),
	})
}

// AssetPrice 实现 PriceOracle。
func (s *Static) AssetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeOracleUnavailable, "没有该资产的报价: "+symbol)
	}
	return price, nil
}

// SetPrice 更新某个资产的报价。
func (s *Static) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(strings.TrimSpace(symbol))] = price
}
