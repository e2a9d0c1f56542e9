// Package binance implements the exchange gateway against the Binance spot API.
package binance

import (
	"context"
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

	"github.com/your-org/stop-guard-bot/internal/exchange"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

var (
	// defaultBaseURL can be overridden for testing.
	defaultBaseURL = "https://api.binance.com"
)

// GetBaseURL returns the current base URL used by the client.
// Useful for testing to confirm the target URL.
func GetBaseURL() string {
	return defaultBaseURL
}

// SetBaseURL sets the base URL for the client.
// This is intended for use in tests to redirect requests to a mock server.
func SetBaseURL(url string) {
	defaultBaseURL = url
}

// Client provides methods to interact with the Binance spot API.
// It implements exchange.Gateway.
type Client struct {
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Binance API client.
func NewClient(apiKey, secretKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

var _ exchange.Gateway = (*Client)(nil)

// newSignedRequest builds a request whose query string carries a timestamp and
// an HMAC-SHA256 signature, as required by the signed trade endpoints.
func (c *Client) newSignedRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	if _, err := mac.Write([]byte(query)); err != nil {
		return nil, err // Should not happen
	}
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, defaultBaseURL+endpoint+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return req, nil
}

// do executes the request and decodes the response into out. Venue errors are
// mapped to the exchange package's sentinel errors by code and message.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body (status: %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.Unmarshal(bodyBytes, &apiErr); err != nil {
			return fmt.Errorf("binance API returned status %d with unparseable body: %s", resp.StatusCode, string(bodyBytes))
		}
		return fmt.Errorf("binance API error (code %d): %s: %w", apiErr.Code, apiErr.Msg, classifyAPIError(apiErr))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response (status: %d, body: %s): %w", resp.StatusCode, string(bodyBytes), err)
	}
	return nil
}

// classifyAPIError maps a venue error to a sentinel the callers can branch on.
func classifyAPIError(apiErr apiError) error {
	switch apiErr.Code {
	case -1116, -1102, -1013: // invalid order type / mandatory parameter / filter failure on type
		return exchange.ErrUnsupportedOrderType
	case -2011, -2013: // unknown order sent / order does not exist
		return exchange.ErrOrderNotFound
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Msg), "insufficient") {
			return exchange.ErrInsufficientBalance
		}
		return fmt.Errorf("order rejected: %s", apiErr.Msg)
	}
	msg := strings.ToLower(apiErr.Msg)
	if strings.Contains(msg, "order type") || strings.Contains(msg, "not a valid") {
		return exchange.ErrUnsupportedOrderType
	}
	return fmt.Errorf("request failed: %s", apiErr.Msg)
}

// PlaceOrder submits a stop-limit order with the request's exact type string.
func (c *Client) PlaceOrder(ctx context.Context, reqBody exchange.OrderRequest) (*exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", reqBody.Symbol)
	params.Set("side", strings.ToUpper(string(reqBody.Side)))
	params.Set("type", reqBody.Type)
	params.Set("quantity", formatFloat(reqBody.Quantity))
	params.Set("price", formatFloat(reqBody.Price))
	params.Set("stopPrice", formatFloat(reqBody.StopPrice))
	params.Set("timeInForce", "GTC")
	if reqBody.ClientOrderID != "" {
		params.Set("newClientOrderId", reqBody.ClientOrderID)
	}

	httpReq, err := c.newSignedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create new order request: %w", err)
	}

	var orderResp orderResponse
	if err := c.do(httpReq, &orderResp); err != nil {
		return nil, fmt.Errorf("new order %s %s: %w", reqBody.Symbol, reqBody.Type, err)
	}
	logger.Debugf("Order placed: id=%d clientOrderId=%s", orderResp.OrderID, orderResp.ClientOrderID)
	return toOrder(orderResp), nil
}

// PlaceMarketOrder submits a market order for immediate execution.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quantity float64) (*exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(quantity))

	httpReq, err := c.newSignedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create market order request: %w", err)
	}

	var orderResp orderResponse
	if err := c.do(httpReq, &orderResp); err != nil {
		return nil, fmt.Errorf("market order %s %s: %w", symbol, side, err)
	}
	return toOrder(orderResp), nil
}

// CancelOrder cancels an open order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	httpReq, err := c.newSignedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		return fmt.Errorf("failed to create cancel order request: %w", err)
	}

	var cancelResp cancelResponse
	if err := c.do(httpReq, &cancelResp); err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	return nil
}

// OpenOrders lists the currently open orders for a symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	httpReq, err := c.newSignedRequest(ctx, http.MethodGet, "/api/v3/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create open orders request: %w", err)
	}

	var raw []orderResponse
	if err := c.do(httpReq, &raw); err != nil {
		return nil, fmt.Errorf("open orders %s: %w", symbol, err)
	}

	orders := make([]exchange.Order, 0, len(raw))
	for _, r := range raw {
		orders = append(orders, *toOrder(r))
	}
	return orders, nil
}

// RecentOrders lists orders created at or after since, regardless of state.
func (c *Client) RecentOrders(ctx context.Context, symbol string, since time.Time) ([]exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", "50")

	httpReq, err := c.newSignedRequest(ctx, http.MethodGet, "/api/v3/allOrders", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create order history request: %w", err)
	}

	var raw []orderResponse
	if err := c.do(httpReq, &raw); err != nil {
		return nil, fmt.Errorf("order history %s: %w", symbol, err)
	}

	orders := make([]exchange.Order, 0, len(raw))
	for _, r := range raw {
		orders = append(orders, *toOrder(r))
	}
	return orders, nil
}

// Ticker returns the last traded price for a symbol. The endpoint is public
// and needs no signature.
func (c *Client) Ticker(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", defaultBaseURL, url.QueryEscape(symbol))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticker request: %w", err)
	}

	var tick tickerResponse
	if err := c.do(httpReq, &tick); err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(tick.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price %q: %w", tick.Price, err)
	}
	return price, nil
}

// toOrder normalizes a wire order into the gateway's order type.
func toOrder(r orderResponse) *exchange.Order {
	createdAt := r.Time
	if createdAt == 0 {
		createdAt = r.TransactTime
	}
	o := &exchange.Order{
		ID:            r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          exchange.Side(strings.ToLower(r.Side)),
		Type:          r.Type,
		Quantity:      parseFloat(r.OrigQty),
		Price:         parseFloat(r.Price),
		StopPrice:     parseFloat(r.StopPrice),
		Status:        normalizeStatus(r.Status),
		CreatedAt:     time.UnixMilli(createdAt).UTC(),
	}
	// Average fill price, derived from the quote and base quantities.
	if executed := parseFloat(r.ExecutedQty); executed > 0 {
		o.ExecutedPrice = parseFloat(r.CummulativeQuoteQty) / executed
	}
	return o
}

func normalizeStatus(s string) string {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return exchange.StatusOpen
	case "FILLED":
		return exchange.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return exchange.StatusCanceled
	case "REJECTED", "EXPIRED":
		return exchange.StatusRejected
	}
	return strings.ToLower(s)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
