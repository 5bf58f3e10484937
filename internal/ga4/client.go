// Package ga4 is the Google Analytics Data API transport: one runReport call
// per query, with HTTP failures mapped onto the pipeline error taxonomy.
package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/version"
)

const (
	// DefaultBaseURL is the Data API v1beta root.
	DefaultBaseURL = "https://analyticsdata.googleapis.com/v1beta"

	// pageSize is the row limit per runReport page.
	pageSize = 100_000

	// maxErrorBody bounds how much of an error body is kept in messages.
	maxErrorBody = 512
)

// TokenProvider supplies bearer tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client calls runReport.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	baseURL    string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient creates a Data API client.
func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     tokens,
		baseURL:    DefaultBaseURL,
		userAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiName struct {
	Name string `json:"name"`
}

type apiDateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type runReportRequest struct {
	DateRanges    []apiDateRange `json:"dateRanges"`
	Dimensions    []apiName      `json:"dimensions,omitempty"`
	Metrics       []apiName      `json:"metrics"`
	Limit         int64          `json:"limit,omitempty"`
	Offset        int64          `json:"offset,omitempty"`
	KeepEmptyRows bool           `json:"keepEmptyRows"`
}

type apiValue struct {
	Value string `json:"value"`
}

type runReportResponse struct {
	DimensionHeaders []apiName `json:"dimensionHeaders"`
	MetricHeaders    []apiName `json:"metricHeaders"`
	Rows             []struct {
		DimensionValues []apiValue `json:"dimensionValues"`
		MetricValues    []apiValue `json:"metricValues"`
	} `json:"rows"`
	RowCount int64 `json:"rowCount"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// RunReport executes q, following pagination until every row is read.
func (c *Client) RunReport(ctx context.Context, q models.ReportQuery) (*models.RawResponse, error) {
	out := &models.RawResponse{}

	var offset int64
	for {
		page, err := c.runPage(ctx, q, offset)
		if err != nil {
			return nil, err
		}

		if offset == 0 {
			out.DimensionHeaders = names(page.DimensionHeaders)
			out.MetricHeaders = names(page.MetricHeaders)
		}
		for _, r := range page.Rows {
			out.Rows = append(out.Rows, models.RawRow{
				DimensionValues: values(r.DimensionValues),
				MetricValues:    values(r.MetricValues),
			})
		}

		offset += int64(len(page.Rows))
		if len(page.Rows) == 0 || offset >= page.RowCount {
			return out, nil
		}
	}
}

func (c *Client) runPage(ctx context.Context, q models.ReportQuery, offset int64) (*runReportResponse, error) {
	body := runReportRequest{
		DateRanges: []apiDateRange{{
			StartDate: q.Range.Start.Format(models.DateLayout),
			EndDate:   q.Range.End.Format(models.DateLayout),
		}},
		KeepEmptyRows: true,
		Limit:         pageSize,
		Offset:        offset,
	}
	for _, m := range q.Metrics {
		body.Metrics = append(body.Metrics, apiName{Name: m})
	}
	for _, d := range q.Dimensions {
		body.Dimensions = append(body.Dimensions, apiName{Name: d})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode runReport request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/properties/%s:runReport", c.baseURL, q.PropertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create runReport request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.TransientError{Err: fmt.Errorf("runReport request failed: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read runReport response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return nil, classifyStatus(resp, raw)
	}

	var page runReportResponse
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &models.MalformedResponseError{Row: -1, Reason: "undecodable runReport body: " + err.Error()}
	}
	return &page, nil
}

// classifyStatus maps a non-200 response onto the error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	msg, status := errorDetails(body)

	if status == "RESOURCE_EXHAUSTED" || resp.StatusCode == http.StatusTooManyRequests {
		return &models.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    msg,
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return &models.InvalidArgumentError{Field: "request", Value: status, Reason: msg}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &models.AuthError{StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode >= 500:
		return &models.TransientError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
	default:
		return fmt.Errorf("unexpected runReport status %d: %s", resp.StatusCode, msg)
	}
}

func errorDetails(body []byte) (message, status string) {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message, e.Error.Status
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s, ""
}

// parseRetryAfter reads delay-seconds or an HTTP date. Zero means no hint.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func names(in []apiName) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = n.Name
	}
	return out
}

func values(in []apiValue) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.Value
	}
	return out
}
