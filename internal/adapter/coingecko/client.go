package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus"
)

// Defaults of the public CoinGecko API
const (
	DefaultBaseURL      = "https://api.coingecko.com/api/v3"
	DefaultAPIKeyHeader = "x-cg-demo-api-key"
	DefaultUserAgent    = "pricesnap/1.0 (+https://local)"
	DefaultTimeout      = 30 * time.Second
)

// maxErrorBody bounds how much of an error response is kept in the error message
const maxErrorBody = 512

// Config configures the client
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	UserAgent    string
	Timeout      time.Duration
}

var _ domain.PriceProvider = (*Client)(nil)

// Client is a CoinGecko-compatible implementation of domain.PriceProvider
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     logrus.FieldLogger
}

// NewClient creates a new provider client
func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// SpotPrices implements domain.PriceProvider using GET /simple/price
func (c *Client) SpotPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error) {
	subject := strings.Join(ids, ",")
	params := url.Values{}
	params.Set("ids", subject)
	params.Set("vs_currencies", vsCurrency)

	var payload interface{}
	if err := c.get(ctx, subject, "/simple/price", params, &payload); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		path := fmt.Sprintf("$[%q][%q]", id, vsCurrency)
		value, err := jsonpath.Get(path, payload)
		if err != nil {
			// unknown ids are simply absent from the payload
			continue
		}
		price, err := toDecimal(value)
		if err != nil {
			return nil, &domain.ProviderError{ProviderID: id, Err: fmt.Errorf("invalid price at %s: %w", path, err)}
		}
		prices[id] = price
	}
	return prices, nil
}

type rangeResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// PriceRange implements domain.PriceProvider using GET /coins/{id}/market_chart/range
func (c *Client) PriceRange(ctx context.Context, id, vsCurrency string, from, to time.Time) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", vsCurrency)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var payload rangeResponse
	if err := c.get(ctx, id, "/coins/"+url.PathEscape(id)+"/market_chart/range", params, &payload); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) < 2 {
			continue
		}
		ms, err := pair[0].Float64()
		if err != nil {
			return nil, &domain.ProviderError{ProviderID: id, Err: fmt.Errorf("invalid timestamp %q: %w", pair[0], err)}
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, &domain.ProviderError{ProviderID: id, Err: fmt.Errorf("invalid price %q: %w", pair[1], err)}
		}
		points = append(points, domain.PricePoint{Time: time.UnixMilli(int64(ms)).UTC(), Price: price})
	}
	return points, nil
}

// ErrEmptyQuery is returned by SearchCoins for a blank query
var ErrEmptyQuery = errors.New("empty search query")

// Coin is one match of a provider search
type Coin struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank int    `json:"market_cap_rank"` // 0 when unranked
}

type searchResponse struct {
	Coins []Coin `json:"coins"`
}

// SearchCoins looks up provider ids by id, symbol or name using GET /search.
// Matches keep the provider's relevance order.
func (c *Client) SearchCoins(ctx context.Context, query string) ([]Coin, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	params := url.Values{}
	params.Set("query", query)

	var payload searchResponse
	if err := c.get(ctx, query, "/search", params, &payload); err != nil {
		return nil, err
	}
	return payload.Coins, nil
}

// get performs the request and decodes the JSON body into out, numbers kept exact
func (c *Client) get(ctx context.Context, subject, path string, params url.Values, out interface{}) error {
	reqURL := c.cfg.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &domain.ProviderError{ProviderID: subject, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the caller's own cancellation is not worth retrying
		retryable := ctx.Err() == nil
		return &domain.ProviderError{ProviderID: subject, Retryable: retryable, Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("provider request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ProviderError{
			ProviderID: subject,
			StatusCode: resp.StatusCode,
			Retryable:  isRetryableStatus(resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), strings.TrimSpace(string(body))),
		}
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &domain.ProviderError{ProviderID: subject, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, errors.New("not a number")
	}
}
