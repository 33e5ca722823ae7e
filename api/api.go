package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/config"
	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/internal/constants"
	"ema-bracket-bot/internal/utils"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

// RESTClient provides methods to interact with the Bybit v5 REST API. It
// backs the account, execution and instrument lookups of the live bot.
type RESTClient struct {
	Config *config.Config
	Logger logging.LoggerInterface
}

var (
	_ interfaces.Account            = (*RESTClient)(nil)
	_ interfaces.Execution          = (*RESTClient)(nil)
	_ interfaces.InstrumentProvider = (*RESTClient)(nil)
)

// NewRESTClient creates a new REST API client
func NewRESTClient(cfg *config.Config, logger logging.LoggerInterface) *RESTClient {
	return &RESTClient{
		Config: cfg,
		Logger: logger,
	}
}

// SignREST signs a REST request
func (c *RESTClient) SignREST(secret, timestamp, apiKey, recvWindow, payload string) string {
	base := timestamp + apiKey + recvWindow + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) signedGET(path, query string) ([]byte, error) {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	req, err := http.NewRequest("GET", c.Config.RESTHost+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-BAPI-API-KEY", c.Config.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.Config.RecvWindow)
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-SIGN", c.SignREST(c.Config.APISecret, ts, c.Config.APIKey, c.Config.RecvWindow, query))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.Logger.Error("GET %s failed: %v", path, err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("GET %s: status %d, body: %s", path, resp.StatusCode, string(body))
	return body, nil
}

func (c *RESTClient) signedPOST(path string, payload map[string]interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("POST %s body: %s", path, raw)

	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	req, err := http.NewRequest("POST", c.Config.RESTHost+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BAPI-API-KEY", c.Config.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.Config.RecvWindow)
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-SIGN", c.SignREST(c.Config.APISecret, ts, c.Config.APIKey, c.Config.RecvWindow, string(raw)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.Logger.Error("POST %s failed: %v", path, err)
		return nil, err
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("POST %s: status %d, body: %s", path, resp.StatusCode, string(reply))
	return reply, nil
}

// GetInstrumentInfo fetches instrument metadata
func (c *RESTClient) GetInstrumentInfo(symbol string) (*types.InstrumentInfo, error) {
	const path = "/v5/market/instruments-info"
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)

	body, err := c.signedGET(path, q.Encode())
	if err != nil {
		return nil, err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				QuoteCoin     string `json:"quoteCoin"`
				LotSizeFilter struct {
					MinOrderQty string `json:"minOrderQty"`
					QtyStep     string `json:"qtyStep"`
				} `json:"lotSizeFilter"`
				PriceFilter struct {
					TickSize string `json:"tickSize"`
				} `json:"priceFilter"`
			} `json:"list"`
		} `json:"result"`
	}
	if json.Unmarshal(body, &r) != nil || r.RetCode != 0 || len(r.Result.List) == 0 {
		c.Logger.Error("Error in instrument info response: %d: %s", r.RetCode, r.RetMsg)
		return nil, fmt.Errorf("instrument info error %d: %s", r.RetCode, r.RetMsg)
	}

	it := r.Result.List[0]
	tickSize, err := decimal.NewFromString(strings.TrimSpace(it.PriceFilter.TickSize))
	if err != nil || tickSize.Sign() <= 0 {
		return nil, fmt.Errorf("invalid tick size %q for %s", it.PriceFilter.TickSize, symbol)
	}

	parseQty := func(s string) int64 {
		v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if v < 1 {
			return 1
		}
		return int64(v)
	}

	return &types.InstrumentInfo{
		Symbol:         symbol,
		QuoteCurrency:  it.QuoteCoin,
		TickSize:       tickSize,
		PricePrecision: utils.PrecisionFromTick(tickSize),
		MinQty:         parseQty(it.LotSizeFilter.MinOrderQty),
		QtyStep:        parseQty(it.LotSizeFilter.QtyStep),
	}, nil
}

// GetRecentBars fetches up to limit recent klines for indicator warm-up.
// The venue returns newest first with the in-progress candle on top; the
// result here is closed bars only, oldest first.
func (c *RESTClient) GetRecentBars(symbol, interval string, limit int) ([]types.Bar, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.signedGET("/v5/market/kline", q.Encode())
	if err != nil {
		return nil, err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if json.Unmarshal(body, &r) != nil || r.RetCode != 0 {
		return nil, fmt.Errorf("kline error %d: %s", r.RetCode, r.RetMsg)
	}

	bars := make([]types.Bar, 0, len(r.Result.List))
	for i := len(r.Result.List) - 1; i >= 1; i-- {
		row := r.Result.List[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline start time %q: %w", row[0], err)
		}
		fields := [5]decimal.Decimal{}
		for j := 0; j < 5; j++ {
			v, err := decimal.NewFromString(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline field %q: %w", row[j+1], err)
			}
			fields[j] = v
		}
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
			Timestamp: time.UnixMilli(ms).UTC(),
		})
	}
	return bars, nil
}

// FreeEquity fetches the available wallet balance in the account currency
func (c *RESTClient) FreeEquity() (decimal.Decimal, error) {
	q := "accountType=UNIFIED&coin=" + c.Config.AccountCurrency
	body, err := c.signedGET("/v5/account/wallet-balance", q)
	if err != nil {
		return decimal.Zero, err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				TotalAvailableBalance string `json:"totalAvailableBalance"`
			} `json:"list"`
		} `json:"result"`
	}
	if json.Unmarshal(body, &r) != nil || r.RetCode != 0 || len(r.Result.List) == 0 {
		c.Logger.Error("Error in wallet balance response: %d: %s", r.RetCode, r.RetMsg)
		return decimal.Zero, fmt.Errorf("wallet error %d: %s", r.RetCode, r.RetMsg)
	}
	return decimal.NewFromString(r.Result.List[0].TotalAvailableBalance)
}

// ExchangeRate converts the instrument's quote currency into the account
// currency using the top of book of the conversion pair. Buys convert at
// the ask, sells at the bid.
func (c *RESTClient) ExchangeRate(quoteCurrency string, side types.Side) (decimal.Decimal, error) {
	if quoteCurrency == c.Config.AccountCurrency {
		return decimal.NewFromInt(1), nil
	}

	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", quoteCurrency+c.Config.AccountCurrency)
	body, err := c.signedGET("/v5/market/tickers", q.Encode())
	if err != nil {
		return decimal.Zero, err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Bid1Price string `json:"bid1Price"`
				Ask1Price string `json:"ask1Price"`
			} `json:"list"`
		} `json:"result"`
	}
	if json.Unmarshal(body, &r) != nil || r.RetCode != 0 || len(r.Result.List) == 0 {
		return decimal.Zero, fmt.Errorf("ticker error %d: %s", r.RetCode, r.RetMsg)
	}

	px := r.Result.List[0].Ask1Price
	if side == types.Sell {
		px = r.Result.List[0].Bid1Price
	}
	rate, err := decimal.NewFromString(px)
	if err != nil || rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no usable %s/%s rate: %q",
			quoteCurrency, c.Config.AccountCurrency, px)
	}
	return rate, nil
}

// IsFlat reports whether the account has no open position in the symbol
func (c *RESTClient) IsFlat() (bool, error) {
	const path = "/v5/position/list"
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", c.Config.Symbol)

	body, err := c.signedGET(path, q.Encode())
	if err != nil {
		return false, err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Size string `json:"size"`
			} `json:"list"`
		} `json:"result"`
	}
	if json.Unmarshal(body, &r) != nil || r.RetCode != 0 {
		c.Logger.Error("Error in position list response: %d: %s", r.RetCode, r.RetMsg)
		return false, fmt.Errorf("position list error %d: %s", r.RetCode, r.RetMsg)
	}

	for _, pos := range r.Result.List {
		size, _ := strconv.ParseFloat(pos.Size, 64)
		if size > 0 {
			return false, nil
		}
	}
	return true, nil
}

// SubmitBracketOrder places a conditional entry with attached stop-loss and
// take-profit and returns the venue order id. The GTD expiry of the intent
// is enforced locally by the order manager; the venue order rests GTC.
func (c *RESTClient) SubmitBracketOrder(intent *types.OrderIntent) (string, error) {
	triggerDirection := 1 // triggers when the price rises to the entry
	if intent.Side == types.Sell {
		triggerDirection = 2
	}

	reply, err := c.signedPOST("/v5/order/create", map[string]interface{}{
		"category":         "linear",
		"symbol":           intent.Symbol,
		"side":             string(intent.Side),
		"orderType":        "Limit",
		"qty":              utils.FormatQty(intent.Quantity),
		"price":            intent.EntryPrice.String(),
		"triggerPrice":     intent.EntryPrice.String(),
		"triggerDirection": triggerDirection,
		"timeInForce":      constants.GoodTillCancel,
		"takeProfit":       intent.TakeProfitPrice.String(),
		"stopLoss":         intent.StopLossPrice.String(),
		"positionIdx":      0,
	})
	if err != nil {
		return "", err
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if json.Unmarshal(reply, &r) != nil || r.RetCode != 0 || r.Result.OrderID == "" {
		c.Logger.Error("Error placing bracket: %d: %s", r.RetCode, r.RetMsg)
		return "", fmt.Errorf("order create error %d: %s", r.RetCode, r.RetMsg)
	}
	return r.Result.OrderID, nil
}

// ModifyOrder replaces the price of a working order. Before the entry fills
// the protective prices ride on the conditional order and are amended there;
// once a position is open they live on its trading stop. The entry itself is
// amended in place.
func (c *RESTClient) ModifyOrder(orderID string, newPrice decimal.Decimal) error {
	switch {
	case strings.HasSuffix(orderID, "-sl"):
		return c.modifyProtective(strings.TrimSuffix(orderID, "-sl"), "stopLoss", newPrice.String())
	case strings.HasSuffix(orderID, "-tp"):
		return c.modifyProtective(strings.TrimSuffix(orderID, "-tp"), "takeProfit", newPrice.String())
	}

	reply, err := c.signedPOST("/v5/order/amend", map[string]interface{}{
		"category":     "linear",
		"symbol":       c.Config.Symbol,
		"orderId":      orderID,
		"price":        newPrice.String(),
		"triggerPrice": newPrice.String(),
	})
	if err != nil {
		return err
	}
	return checkRetCode(reply, "order amend")
}

// CancelOrder cancels a working order. Cancelling a protective leg clears
// the matching price on the conditional order or the trading stop, whichever
// carries it.
func (c *RESTClient) CancelOrder(orderID string) error {
	switch {
	case strings.HasSuffix(orderID, "-sl"):
		return c.modifyProtective(strings.TrimSuffix(orderID, "-sl"), "stopLoss", "0")
	case strings.HasSuffix(orderID, "-tp"):
		return c.modifyProtective(strings.TrimSuffix(orderID, "-tp"), "takeProfit", "0")
	}

	reply, err := c.signedPOST("/v5/order/cancel", map[string]interface{}{
		"category": "linear",
		"symbol":   c.Config.Symbol,
		"orderId":  orderID,
	})
	if err != nil {
		return err
	}
	return checkRetCode(reply, "order cancel")
}

// modifyProtective routes a stop-loss or take-profit change to wherever the
// leg currently lives. While flat the entry has not filled and the price is
// attached to the conditional order; the venue rejects a trading-stop update
// without a position.
func (c *RESTClient) modifyProtective(entryID, field, value string) error {
	flat, err := c.IsFlat()
	if err != nil {
		return err
	}
	if flat {
		reply, err := c.signedPOST("/v5/order/amend", map[string]interface{}{
			"category": "linear",
			"symbol":   c.Config.Symbol,
			"orderId":  entryID,
			field:      value,
		})
		if err != nil {
			return err
		}
		return checkRetCode(reply, "order amend")
	}
	return c.updateTradingStop(field, value)
}

func (c *RESTClient) updateTradingStop(field, value string) error {
	reply, err := c.signedPOST("/v5/position/trading-stop", map[string]interface{}{
		"category":    "linear",
		"symbol":      c.Config.Symbol,
		"positionIdx": 0,
		field:         value,
	})
	if err != nil {
		return err
	}
	return checkRetCode(reply, "trading-stop update")
}

func checkRetCode(reply []byte, op string) error {
	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if json.Unmarshal(reply, &r) != nil || r.RetCode != 0 {
		return fmt.Errorf("%s error %d: %s", op, r.RetCode, r.RetMsg)
	}
	return nil
}
