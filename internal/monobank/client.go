// Package monobank fetches public currency rates from the Monobank API.
package monobank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.monobank.ua"

// ISO 4217 numeric codes.
const (
	CodeUAH = 980
	CodeUSD = 840
	CodeEUR = 978
	CodeCNY = 156
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CurrencyInfo is one element of the /bank/currency response. Rates absent
// from the payload stay nil.
type CurrencyInfo struct {
	CurrencyCodeA int      `json:"currencyCodeA"`
	CurrencyCodeB int      `json:"currencyCodeB"`
	Date          int64    `json:"date"`
	RateBuy       *float64 `json:"rateBuy"`
	RateSell      *float64 `json:"rateSell"`
	RateCross     *float64 `json:"rateCross"`
}

// StatusError reports a non-200 answer from the API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("❌ Monobank API error: %d", e.Code)
}

// Currency fetches the raw currency table.
func (c *Client) Currency(ctx context.Context) ([]CurrencyInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/bank/currency", nil)
	if err != nil {
		return nil, fmt.Errorf("monobank: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monobank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var result []CurrencyInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("monobank: decode response: %w", err)
	}
	return result, nil
}

// Pair is a buy/sell quote in hryvnias.
type Pair struct {
	Buy  float64
	Sell float64
}

type Table struct {
	USD Pair
	EUR Pair
	CNY Pair
}

// Rates fetches the table and keeps the UAH quotes for USD, EUR and CNY.
func (c *Client) Rates(ctx context.Context) (Table, error) {
	infos, err := c.Currency(ctx)
	if err != nil {
		return Table{}, err
	}
	return Extract(infos), nil
}

// Extract picks the UAH quotes out of a currency table. A missing buy or sell
// rate falls back to the cross rate, then to zero.
func Extract(infos []CurrencyInfo) Table {
	var t Table
	for _, info := range infos {
		if info.CurrencyCodeB != CodeUAH {
			continue
		}
		p := Pair{
			Buy:  rateOr(info.RateBuy, info.RateCross),
			Sell: rateOr(info.RateSell, info.RateCross),
		}
		switch info.CurrencyCodeA {
		case CodeUSD:
			t.USD = p
		case CodeEUR:
			t.EUR = p
		case CodeCNY:
			t.CNY = p
		}
	}
	return t
}

func rateOr(primary, fallback *float64) float64 {
	if primary != nil {
		return *primary
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}

// Format renders the table as a Markdown message.
func (t Table) Format() string {
	return fmt.Sprintf("💰 *Monobank Currency Rates*\n"+
		"💵 USD: %.2f / %.2f ₴\n"+
		"💶 EUR: %.2f / %.2f ₴\n"+
		"🇨🇳 CNY: %.2f / %.2f ₴\n"+
		"(via api.monobank.ua)",
		t.USD.Buy, t.USD.Sell, t.EUR.Buy, t.EUR.Sell, t.CNY.Buy, t.CNY.Sell)
}
