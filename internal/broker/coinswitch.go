// Package broker provides exchange clients for quoting and trading crypto options.
// It includes a Bybit v5 client routed through the Coinswitch DMA gateway.
package broker

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/models"
)

const (
	defaultBaseURL = "https://dma.coinswitch.co"
	tickersPath    = "/v5/market/tickers"
	orderPath      = "/v5/order/create"
	categoryOption = "option"
)

// APIError represents a failed exchange call: either a non-2xx HTTP status or
// a response whose retCode is not zero.
type APIError struct {
	Status  int
	RetCode int
	Body    string
}

func (e *APIError) Error() string {
	if e.RetCode != 0 {
		return fmt.Sprintf("API error %d (retCode %d): %s", e.Status, e.RetCode, e.Body)
	}
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// CoinswitchBybit talks to Bybit's v5 option endpoints through the Coinswitch
// DMA gateway, which authenticates each request with an ed25519 signature.
type CoinswitchBybit struct {
	client  *http.Client
	logger  logrus.FieldLogger
	now     func() time.Time
	apiKey  string
	baseURL string
	signer  ed25519.PrivateKey
}

// NewCoinswitchBybit creates a client. apiSecret is the hex-encoded ed25519
// seed (32 bytes) or full private key (64 bytes).
func NewCoinswitchBybit(apiKey, apiSecret, baseURL string, timeout time.Duration,
	logger logrus.FieldLogger) (*CoinswitchBybit, error) {
	key, err := parseSigningKey(apiSecret)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CoinswitchBybit{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  key,
	}, nil
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *CoinswitchBybit) WithHTTPClient(hc *http.Client) *CoinswitchBybit {
	if hc != nil {
		c.client = hc
	}
	return c
}

func parseSigningKey(secret string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("api secret is not hex: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("api secret must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// ============ Wire structures ============

type envelope struct {
	Result  json.RawMessage `json:"result"`
	RetMsg  string          `json:"retMsg"`
	RetCode int             `json:"retCode"`
}

type tickerItem struct {
	Symbol          string `json:"symbol"`
	MarkIV          string `json:"markIv"`
	Delta           string `json:"delta"`
	UnderlyingPrice string `json:"underlyingPrice"`
	Bid1Price       string `json:"bid1Price"`
	Ask1Price       string `json:"ask1Price"`
}

type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerItem `json:"list"`
}

type orderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// FetchQuotes returns the option chain for one base asset and expiry code
// (e.g. BTC, 21APR25). Tickers whose symbol does not parse are skipped.
func (c *CoinswitchBybit) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	params := url.Values{}
	params.Set("category", categoryOption)
	if baseAsset != "" {
		params.Set("baseCoin", baseAsset)
	}
	if expiry != "" {
		params.Set("expDate", expiry)
	}

	var result tickersResult
	if err := c.do(ctx, http.MethodGet, tickersPath, params, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	snap := models.NewQuoteSnapshot()
	for _, item := range result.List {
		q, err := item.toQuote()
		if err != nil {
			c.logger.WithError(err).WithField("symbol", item.Symbol).Debug("Skipping ticker")
			continue
		}
		snap.Add(q)
	}
	return snap, nil
}

func (t tickerItem) toQuote() (models.OptionQuote, error) {
	contract, err := models.ParseContract(t.Symbol)
	if err != nil {
		return models.OptionQuote{}, err
	}
	q := models.OptionQuote{Contract: contract}
	fields := []struct {
		dst  *float64
		raw  string
		name string
	}{
		{&q.IV, t.MarkIV, "markIv"},
		{&q.Delta, t.Delta, "delta"},
		{&q.UnderlyingPrice, t.UnderlyingPrice, "underlyingPrice"},
		{&q.Bid, t.Bid1Price, "bid1Price"},
		{&q.Ask, t.Ask1Price, "ask1Price"},
	}
	for _, f := range fields {
		v, err := parseDecimal(f.raw)
		if err != nil {
			return models.OptionQuote{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return q, nil
}

// parseDecimal treats an empty field as zero
func parseDecimal(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// SubmitOrder places an immediate-or-cancel market order and returns the
// exchange order ID.
func (c *CoinswitchBybit) SubmitOrder(ctx context.Context, side OrderSide, symbol string,
	quantity float64) (string, error) {
	if !side.Valid() {
		return "", fmt.Errorf("invalid order side %q", side)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("order quantity must be > 0, got %v", quantity)
	}

	body := orderRequest{
		Category:    categoryOption,
		Symbol:      symbol,
		Side:        string(side),
		OrderType:   "Market",
		Qty:         decimal.NewFromFloat(quantity).String(),
		TimeInForce: "IOC",
		OrderLinkID: uuid.New().String(),
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": symbol, "side": side, "qty": body.Qty, "order_link_id": body.OrderLinkID,
	}).Info("Placing order")

	var result orderResult
	if err := c.do(ctx, http.MethodPost, orderPath, nil, body, &result); err != nil {
		return "", fmt.Errorf("order placement failed: %w", err)
	}
	if result.OrderID == "" {
		return "", &APIError{Status: http.StatusOK, Body: "order response missing orderId"}
	}
	return result.OrderID, nil
}

// sign builds the gateway auth headers. The signed message is
// METHOD + path[?unescaped query] + epoch seconds.
func (c *CoinswitchBybit) sign(method, path string, params url.Values) (http.Header, error) {
	epoch := strconv.FormatInt(c.now().Unix(), 10)

	endpoint := path
	if method == http.MethodGet && len(params) > 0 {
		unescaped, err := url.QueryUnescape(params.Encode())
		if err != nil {
			return nil, fmt.Errorf("unescaping query: %w", err)
		}
		endpoint += "?" + unescaped
	}

	sig := ed25519.Sign(c.signer, []byte(method+endpoint+epoch))

	h := http.Header{}
	h.Set("X-AUTH-SIGNATURE", hex.EncodeToString(sig))
	h.Set("X-AUTH-APIKEY", c.apiKey)
	h.Set("X-AUTH-EPOCH", epoch)
	return h, nil
}

func (c *CoinswitchBybit) do(ctx context.Context, method, path string, params url.Values,
	body interface{}, out interface{}) error {
	full := c.baseURL + path
	if method == http.MethodGet && len(params) > 0 {
		full += "?" + params.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return err
	}
	headers, err := c.sign(method, path, params)
	if err != nil {
		return err
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, path, string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decoding envelope: %w", method, path, err)
	}
	if env.RetCode != 0 {
		return &APIError{Status: resp.StatusCode, RetCode: env.RetCode, Body: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s %s: decoding result: %w", method, path, err)
	}
	return nil
}
