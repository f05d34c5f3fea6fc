package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStaticOracle(t *testing.T) {
	static := DefaultStatic()
	ctx := context.Background()

	price, err := static.AssetPrice(ctx, "eth")
	if err != nil {
		t.Fatalf("asset price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected ETH price: %s", price)
	}

	if _, err := static.AssetPrice(ctx, "DOGE"); err == nil {
		t.Fatal("expected error for unlisted asset")
	}

	static.SetPrice("ETH", decimal.NewFromInt(1800))
	price, err = static.AssetPrice(ctx, "ETH")
	if err != nil {
		t.Fatalf("asset price after update: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1800)) {
		t.Fatalf("expected updated price, got %s", price)
	}
}

func TestCoinGeckoAssetPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "ethereum" {
			t.Errorf("unexpected ids param %q", got)
		}
		fmt.Fprint(w, `{"ethereum":{"usd":2345.67}}`)
	}))
	defer server.Close()

	client := NewCoinGecko(WithBaseURL(server.URL))
	price, err := client.AssetPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("asset price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("2345.67")) {
		t.Fatalf("unexpected price: %s", price)
	}
}

func TestCoinGeckoErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewCoinGecko(WithBaseURL(server.URL))
	if _, err := client.AssetPrice(context.Background(), "ETH"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
	if _, err := client.AssetPrice(context.Background(), "DOGE"); err == nil {
		t.Fatal("expected error for unsupported symbol")
	}
}

func TestCachedOracle(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"ethereum":{"usd":2000}}`)
	}))
	defer server.Close()

	cached := NewCached(NewCoinGecko(WithBaseURL(server.URL)), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := cached.AssetPrice(ctx, "ETH")
		if err != nil {
			t.Fatalf("asset price %d: %v", i, err)
		}
		if !price.Equal(decimal.NewFromInt(2000)) {
			t.Fatalf("unexpected price: %s", price)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", got)
	}

	cached.Clear()
	if _, err := cached.AssetPrice(ctx, "ETH"); err != nil {
		t.Fatalf("asset price after clear: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected refetch after clear, got %d calls", got)
	}
}
