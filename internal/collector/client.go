package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cleanspend/internal/config"
	"cleanspend/internal/metrics"
	"cleanspend/internal/models"
)

// Search endpoints, relative to the configured base URL.
const (
	endpointAwards    = "/search/spending_by_award/"
	endpointOverTime  = "/search/spending_over_time/"
	endpointGeography = "/search/spending_by_geography/"
)

// Record is one award row as returned by the search API, keyed by the
// requested field names. Amounts arrive as JSON numbers, everything else as
// strings or null.
type Record map[string]any

type searchRequest struct {
	Filters Filters  `json:"filters"`
	Fields  []string `json:"fields"`
	Sort    string   `json:"sort"`
	Order   string   `json:"order"`
	Limit   int      `json:"limit"`
	Page    int      `json:"page"`
}

type pageMetadata struct {
	Page    int  `json:"page"`
	HasNext bool `json:"hasNext"`
}

type searchResponse struct {
	Results  []Record     `json:"results"`
	Metadata pageMetadata `json:"page_metadata"`
}

type overTimeRequest struct {
	Filters Filters `json:"filters"`
	Group   string  `json:"group"`
}

// TimeSpending is one spending_over_time result bucket.
type TimeSpending struct {
	TimePeriod TimePeriodKey `json:"time_period"`
	Amount     float64       `json:"aggregated_amount"`
}

// TimePeriodKey identifies an over-time bucket. The API fills only the
// fields matching the requested grouping.
type TimePeriodKey struct {
	FiscalYear string `json:"fiscal_year"`
	Quarter    string `json:"quarter"`
	Month      string `json:"month"`
}

type overTimeResponse struct {
	Results []TimeSpending `json:"results"`
}

type geographyRequest struct {
	Filters Filters `json:"filters"`
	Scope   string  `json:"scope"`
}

// StateSpending is one spending_by_geography result row.
type StateSpending struct {
	ShapeCode   string  `json:"shape_code"`
	DisplayName string  `json:"display_name"`
	Amount      float64 `json:"aggregated_amount"`
}

type geographyResponse struct {
	Results []StateSpending `json:"results"`
}

// Client talks to the award-search API. Every request passes through a
// shared rate limiter; timeouts, 5xx and 429 responses retry with
// exponential backoff.
type Client struct {
	baseURL    string
	userAgent  string
	pageSize   int
	pageDelay  time.Duration
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(cfg config.CollectorConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		pageSize:   cfg.PageSize,
		pageDelay:  cfg.PageDelay,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger,
	}
}

// SearchAwards fetches a single result page. The second return reports
// whether the server has more pages beyond this one.
func (c *Client) SearchAwards(ctx context.Context, filters Filters, page int) ([]Record, bool, error) {
	req := searchRequest{
		Filters: filters,
		Fields:  DefaultAwardFields,
		Sort:    "Award Amount",
		Order:   "desc",
		Limit:   c.pageSize,
		Page:    page,
	}
	var resp searchResponse
	if err := c.post(ctx, endpointAwards, req, &resp); err != nil {
		return nil, false, err
	}
	hasNext := resp.Metadata.HasNext && len(resp.Results) == c.pageSize
	return resp.Results, hasNext, nil
}

// CollectAwards walks result pages until the server runs out or maxPages is
// reached, pausing pageDelay between requests.
func (c *Client) CollectAwards(ctx context.Context, filters Filters, maxPages int) ([]Record, error) {
	var all []Record
	for page := 1; page <= maxPages; page++ {
		results, hasNext, err := c.SearchAwards(ctx, filters, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, results...)
		if !hasNext {
			break
		}
		if c.pageDelay > 0 && page < maxPages {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}
	return all, nil
}

// SpendingOverTime fetches the API's own time-bucketed totals for the filter
// set. Group is one of month, quarter, fiscal_year.
func (c *Client) SpendingOverTime(ctx context.Context, filters Filters, group string) ([]TimeSpending, error) {
	var resp overTimeResponse
	if err := c.post(ctx, endpointOverTime, overTimeRequest{Filters: filters, Group: group}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SpendingByState fetches the API's own state-level totals for the filter
// set.
func (c *Client) SpendingByState(ctx context.Context, filters Filters) ([]StateSpending, error) {
	var resp geographyResponse
	if err := c.post(ctx, endpointGeography, geographyRequest{Filters: filters, Scope: "state"}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			c.logger.Warn("retrying request",
				"endpoint", endpoint,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.CollectorRequests.WithLabelValues(endpoint, "error").Inc()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		metrics.CollectorRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if !retryable(resp.StatusCode) {
			return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
		}
		lastErr = fmt.Errorf("%s: status %d", endpoint, resp.StatusCode)
	}

	return fmt.Errorf("retries exhausted: %w", lastErr)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// rawFromRecord maps a search result row onto a raw award. keyword records
// the search term or program number the row was collected under.
func rawFromRecord(rec Record, keyword string) models.RawAward {
	return models.RawAward{
		AwardID:       recString(rec, "Award ID"),
		RecipientName: recString(rec, "Recipient Name"),
		Amount:        recString(rec, "Award Amount"),
		StartDate:     recString(rec, "Start Date"),
		EndDate:       recString(rec, "End Date"),
		Agency:        recString(rec, "Awarding Agency"),
		StateCode:     recString(rec, "Place of Performance State Code"),
		StateName:     recString(rec, "Place of Performance State"),
		Description:   recString(rec, "Description"),
		SourceKeyword: keyword,
	}
}

func recString(rec Record, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
