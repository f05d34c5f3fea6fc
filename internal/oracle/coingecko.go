package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// coinIDs 将白名单代币符号映射为 CoinGecko 的资产 ID。
var coinIDs = map[string]string{
	"USDC":  "usd-coin",
	"DAI":   "dai",
	"ETH":   "ethereum",
	"CHZ":   "chiliz",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
}

const defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko 通过 CoinGecko 的 simple/price 接口获取美元现价。
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

// CoinGeckoOption 配置 CoinGecko 客户端。
type CoinGeckoOption func(*CoinGecko)

// WithBaseURL 覆盖 API 地址，测试时指向本地服务。
func WithBaseURL(base string) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient 覆盖默认的 HTTP 客户端。
func WithHTTPClient(client *http.Client) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.httpClient = client
	}
}

// NewCoinGecko 构造 CoinGecko 行情客户端。
func NewCoinGecko(opts ...CoinGeckoOption) *CoinGecko {
	c := &CoinGecko{
		baseURL:    defaultCoinGeckoBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AssetPrice 实现 PriceOracle。
func (c *CoinGecko) AssetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	coinID, ok := coinIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeOracleUnavailable, "不支持查询该资产的报价: "+symbol)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(coinID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "构造行情请求失败")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "请求行情接口失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeOracleUnavailable,
			fmt.Sprintf("行情接口返回异常状态码: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "读取行情响应失败")
	}

	// 响应形如 {"ethereum": {"usd": 2000.12}}，金额用 json.Number
	// 读出后直接转十进制，避免经过 float64。
	var result map[string]map[string]json.Number
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "解析行情响应失败")
	}

	quote, ok := result[coinID]
	if !ok {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeOracleUnavailable, "行情响应缺少资产数据: "+coinID)
	}
	usd, ok := quote["usd"]
	if !ok {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeOracleUnavailable, "行情响应缺少美元报价: "+coinID)
	}
	price, err := decimal.NewFromString(usd.String())
	if err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "报价不是合法的十进制数")
	}
	return price, nil
}

var _ PriceOracle = (*CoinGecko)(nil)
