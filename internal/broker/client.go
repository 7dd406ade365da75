package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
)

// Client is a thin wrapper around the brokerage REST API
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	baseURL    string
	dataURL    string
}

// NewClient creates a new brokerage client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		baseURL: cfg.BrokerBaseURL,
		dataURL: cfg.BrokerDataURL,
	}
}

// doRequest performs an HTTP request with auth headers
func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.cfg.BrokerKeyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.BrokerSecretKey)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// parseResponse reads and unmarshals the response
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

// GetAccount retrieves account information
func (c *Client) GetAccount(ctx context.Context) (*models.Account, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL+"/v2/account", nil)
	if err != nil {
		return nil, err
	}

	var account models.Account
	if err := parseResponse(resp, &account); err != nil {
		return nil, err
	}

	return &account, nil
}

// PlaceOrder submits a new order
func (c *Client) PlaceOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error) {
	resp, err := c.doRequest(ctx, "POST", c.baseURL+"/v2/orders", order)
	if err != nil {
		return nil, err
	}

	var newOrder models.Order
	if err := parseResponse(resp, &newOrder); err != nil {
		return nil, err
	}

	return &newOrder, nil
}

// GetOrder retrieves a specific order by ID
func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, orderID)
	resp, err := c.doRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := parseResponse(resp, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, orderID)
	resp, err := c.doRequest(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// CancelAllOrders cancels every open order on the account
func (c *Client) CancelAllOrders(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "DELETE", c.baseURL+"/v2/orders", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel all orders failed %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetPositions retrieves all positions
func (c *Client) GetPositions(ctx context.Context) ([]*models.Position, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL+"/v2/positions", nil)
	if err != nil {
		return nil, err
	}

	var positions []*models.Position
	if err := parseResponse(resp, &positions); err != nil {
		return nil, err
	}

	return positions, nil
}

// GetPosition retrieves a specific position
func (c *Client) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	url := fmt.Sprintf("%s/v2/positions/%s", c.baseURL, url.PathEscape(symbol))
	resp, err := c.doRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var position models.Position
	if err := parseResponse(resp, &position); err != nil {
		return nil, err
	}

	return &position, nil
}

// GetBars retrieves historical bars, used for gap backfill
func (c *Client) GetBars(ctx context.Context, symbol string, timeframe string, start, end time.Time, limit int) ([]*models.Bar, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("timeframe", timeframe)
	if !start.IsZero() {
		params.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	url := fmt.Sprintf("%s/v2/stocks/bars?%s", c.dataURL, params.Encode())
	resp, err := c.doRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bars map[string][]*wireBar `json:"bars"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return nil, err
	}

	bars := make([]*models.Bar, 0, len(result.Bars[symbol]))
	for _, wb := range result.Bars[symbol] {
		bars = append(bars, wb.toBar(symbol))
	}
	return bars, nil
}

// wireBar is the data API's compact bar encoding
type wireBar struct {
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume int64           `json:"v"`
	Time   time.Time       `json:"t"`
}

func (wb *wireBar) toBar(symbol string) *models.Bar {
	return &models.Bar{
		Symbol:    symbol,
		Open:      wb.Open,
		High:      wb.High,
		Low:       wb.Low,
		Close:     wb.Close,
		Volume:    wb.Volume,
		Timestamp: wb.Time,
	}
}
