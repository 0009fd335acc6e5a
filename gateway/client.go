package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crocket-go/market"
)

// Client 是交易所 v1.1 REST 客户端。无状态请求/响应映射：
// 路径+参数进，{success,message,result} 信封出。
// 私有接口在查询串里带 apikey 与 nonce，整个 URI 经 HMAC-SHA512
// 签名后放入 apisign 头。
type Client struct {
	http      *resty.Client
	baseURL   string
	apiKey    string
	apiSecret string
	limiter   RateLimiter
	nonce     func() string
}

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	Limiter        RateLimiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = noLimit{}
	}
	return &Client{
		http:      resty.New().SetTimeout(cfg.RequestTimeout),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		limiter:   cfg.Limiter,
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		},
	}
}

// doQuery 发起一次 API 调用并解码 result。
// 传输失败与 success=false 都返回 error，后者为 *APIError。
func (c *Client) doQuery(ctx context.Context, op, path string, params url.Values, private bool, out any) error {
	c.limiter.Wait()

	if params == nil {
		params = url.Values{}
	}
	if private {
		params.Set("apikey", c.apiKey)
		params.Set("nonce", c.nonce())
	}
	uri := c.baseURL + path + "?" + params.Encode()

	req := c.http.R().SetContext(ctx)
	if private {
		req.SetHeader("apisign", SignURI(uri, c.apiSecret))
	}
	resp, err := req.Get(uri)
	if err != nil {
		return errors.Wrapf(err, "%s request", op)
	}
	if resp.StatusCode() >= 300 {
		return errors.Errorf("%s: unexpected status %d", op, resp.StatusCode())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Wrapf(err, "%s decode", op)
	}
	if !env.Success {
		return &APIError{Op: op, Message: env.Message}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errors.Wrapf(err, "%s decode result", op)
		}
	}
	return nil
}

// GetTicker 返回市场当前买一/卖一。
func (c *Client) GetTicker(ctx context.Context, mkt string) (Ticker, error) {
	var t Ticker
	params := url.Values{"market": {mkt}}
	if err := c.doQuery(ctx, "getticker", "/public/getticker", params, false, &t); err != nil {
		return Ticker{}, err
	}
	if t.Bid.IsZero() && t.Ask.IsZero() {
		return Ticker{}, &APIError{Op: "getticker", Message: "empty ticker"}
	}
	return t, nil
}

// GetMarkets 返回全部市场元数据。
func (c *Client) GetMarkets(ctx context.Context) ([]MarketInfo, error) {
	var ms []MarketInfo
	if err := c.doQuery(ctx, "getmarkets", "/public/getmarkets", nil, false, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// FilterMarkets 按计价币筛选活跃市场。
func FilterMarkets(ms []MarketInfo, baseAsset string) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		if m.IsActive && m.BaseCurrency == baseAsset {
			out = append(out, m.MarketName)
		}
	}
	return out
}

// GetMarketHistory 返回市场最近一页成交，从新到旧。
// 页大小由交易所决定，与上次结果重叠、无游标。
func (c *Client) GetMarketHistory(ctx context.Context, mkt string) ([]market.Trade, error) {
	var raw []tradeEntry
	params := url.Values{"market": {mkt}}
	if err := c.doQuery(ctx, "getmarkethistory", "/public/getmarkethistory", params, false, &raw); err != nil {
		return nil, err
	}
	trades := make([]market.Trade, 0, len(raw))
	for _, e := range raw {
		t, err := e.toTrade()
		if err != nil {
			return nil, errors.Wrap(err, "getmarkethistory")
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// BuyLimit 提交限价买单，返回交易所订单 UUID。
func (c *Client) BuyLimit(ctx context.Context, mkt string, quantity, rate decimal.Decimal) (string, error) {
	return c.placeLimit(ctx, "buylimit", "/market/buylimit", mkt, quantity, rate)
}

// SellLimit 提交限价卖单，返回交易所订单 UUID。
func (c *Client) SellLimit(ctx context.Context, mkt string, quantity, rate decimal.Decimal) (string, error) {
	return c.placeLimit(ctx, "selllimit", "/market/selllimit", mkt, quantity, rate)
}

func (c *Client) placeLimit(ctx context.Context, op, path, mkt string, quantity, rate decimal.Decimal) (string, error) {
	params := url.Values{
		"market":   {mkt},
		"quantity": {quantity.String()},
		"rate":     {rate.String()},
	}
	var ref orderRef
	if err := c.doQuery(ctx, op, path, params, true, &ref); err != nil {
		return "", err
	}
	if ref.UUID == "" {
		return "", &APIError{Op: op, Message: "empty order uuid"}
	}
	return ref.UUID, nil
}

// GetOrder 查询订单当前数据（成交量、剩余量、均价、手续费）。
func (c *Client) GetOrder(ctx context.Context, uuid string) (OrderStatus, error) {
	var st OrderStatus
	params := url.Values{"uuid": {uuid}}
	if err := c.doQuery(ctx, "getorder", "/account/getorder", params, true, &st); err != nil {
		return OrderStatus{}, err
	}
	return st, nil
}

// CancelOrder 撤销订单（或其未成交部分）。
func (c *Client) CancelOrder(ctx context.Context, uuid string) error {
	params := url.Values{"uuid": {uuid}}
	return c.doQuery(ctx, "cancel", "/market/cancel", params, true, nil)
}

// GetBalance 查询单一资产余额。
func (c *Client) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	var b balanceResult
	params := url.Values{"currency": {currency}}
	if err := c.doQuery(ctx, "getbalance", "/account/getbalance", params, true, &b); err != nil {
		return decimal.Zero, err
	}
	return b.Available, nil
}
