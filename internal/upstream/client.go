// Package upstream is the HTTP client for the authoritative HR API the
// gateway fronts. All timestamps crossing this boundary are UTC ISO-8601;
// all calendar-day filters are KST YYYY-MM-DD strings normalized before the
// request is issued.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"attendance.gateway/internal/core/model"
	"attendance.gateway/pkg/kst"
)

// Client is the contract for the upstream HR system.
type Client interface {
	ListAttendance(ctx context.Context, f model.AttendanceFilter) (*model.Page[model.AttendanceRecord], error)
	GetRecord(ctx context.Context, id string) (*model.AttendanceRecord, error)
	UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.AttendanceRecord, error)
	ReassignDay(ctx context.Context, id, day string) (*model.AttendanceRecord, error)
	ClockIn(ctx context.Context, clockIn time.Time, employeeID string) (*model.AttendanceRecord, error)
	ClockOut(ctx context.Context, clockOut time.Time, employeeID string) (*model.AttendanceRecord, error)
	ListEmployees(ctx context.Context, f model.ListFilter) (*model.Page[model.Employee], error)
	ListCompanies(ctx context.Context, f model.ListFilter) (*model.Page[model.Company], error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	DailySummary(ctx context.Context, companyID, day string) (*model.DailySummary, error)
}

// HTTPClient talks to the HR API over HTTP. A circuit breaker protects the
// upstream when it is struggling; transient failures are retried with
// exponential backoff, 4xx responses never are.
type HTTPClient struct {
	client   *http.Client
	baseURL  string
	cb       *gobreaker.CircuitBreaker
	maxTries uint
}

// NewHTTPClient creates a client for the HR API at baseURL.
func NewHTTPClient(baseURL string, maxTries uint) *HTTPClient {
	settings := gobreaker.Settings{
		Name:        "HR-API",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate exceeds 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	if maxTries == 0 {
		maxTries = 3
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  baseURL,
		cb:       gobreaker.NewCircuitBreaker(settings),
		maxTries: maxTries,
	}
}

func (c *HTTPClient) ListAttendance(ctx context.Context, f model.AttendanceFilter) (*model.Page[model.AttendanceRecord], error) {
	q := url.Values{}
	setStr(q, "companyId", f.CompanyID)
	setStr(q, "employeeId", f.EmployeeID)
	setStr(q, "search", f.Search)
	if !f.From.IsZero() {
		q.Set("from", kst.CalendarDayOf(f.From))
	}
	if !f.To.IsZero() {
		q.Set("to", kst.CalendarDayOf(f.To))
	}
	setPaging(q, f.Page, f.Limit)

	var page model.Page[model.AttendanceRecord]
	if err := c.do(ctx, http.MethodGet, "/attendance", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) GetRecord(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := c.do(ctx, http.MethodGet, "/attendance/"+url.PathEscape(id), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := c.do(ctx, http.MethodPut, "/attendance/"+url.PathEscape(id), nil, u, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ReassignDay(ctx context.Context, id, day string) (*model.AttendanceRecord, error) {
	body := map[string]string{"date": day}
	var rec model.AttendanceRecord
	if err := c.do(ctx, http.MethodPut, "/attendance/"+url.PathEscape(id)+"/day", nil, body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ClockIn(ctx context.Context, clockIn time.Time, employeeID string) (*model.AttendanceRecord, error) {
	return c.clock(ctx, "/attendance/clock-in", clockIn, employeeID)
}

func (c *HTTPClient) ClockOut(ctx context.Context, clockOut time.Time, employeeID string) (*model.AttendanceRecord, error) {
	return c.clock(ctx, "/attendance/clock-out", clockOut, employeeID)
}

func (c *HTTPClient) clock(ctx context.Context, path string, at time.Time, employeeID string) (*model.AttendanceRecord, error) {
	body := map[string]string{
		"employeeId": employeeID,
		"timestamp":  at.UTC().Format(time.RFC3339),
	}
	var rec model.AttendanceRecord
	if err := c.do(ctx, http.MethodPost, path, nil, body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListEmployees(ctx context.Context, f model.ListFilter) (*model.Page[model.Employee], error) {
	q := url.Values{}
	setStr(q, "companyId", f.CompanyID)
	setStr(q, "search", f.Search)
	setPaging(q, f.Page, f.Limit)

	var page model.Page[model.Employee]
	if err := c.do(ctx, http.MethodGet, "/employees", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) ListCompanies(ctx context.Context, f model.ListFilter) (*model.Page[model.Company], error) {
	q := url.Values{}
	setStr(q, "search", f.Search)
	setPaging(q, f.Page, f.Limit)

	var page model.Page[model.Company]
	if err := c.do(ctx, http.MethodGet, "/companies", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var company model.Company
	if err := c.do(ctx, http.MethodGet, "/companies/"+url.PathEscape(id), nil, nil, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

func (c *HTTPClient) DailySummary(ctx context.Context, companyID, day string) (*model.DailySummary, error) {
	q := url.Values{}
	q.Set("day", day)
	var s model.DailySummary
	if err := c.do(ctx, http.MethodGet, "/companies/"+url.PathEscape(companyID)+"/summary", q, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// do performs one API call with retry and breaker semantics. Transient
// failures (transport errors, 5xx, open breaker) are retried up to maxTries;
// 4xx responses surface immediately.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal hr api payload: %w", err)
		}
		payload = b
	}

	attempt := func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, query, payload, out)
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	return err
}

func (c *HTTPClient) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create hr api request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &TransientError{Err: err}
		}
		if resp.StatusCode >= 500 {
			msg := readMessage(resp.Body)
			resp.Body.Close()
			return nil, &TransientError{Status: resp.StatusCode, Err: errors.New(msg)}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &TransientError{Err: err}
		}
		return err
	}

	resp := res.(*http.Response)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Caller error: retrying cannot help, surface immediately.
		return backoff.Permanent(&RequestError{Status: resp.StatusCode, Message: readMessage(resp.Body)})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode hr api response: %w", err))
	}
	return nil
}

// readMessage extracts the server-provided error message, falling back to a
// generic one when the body is not the usual {"message": ...} shape.
func readMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return "request failed"
}

func setStr(q url.Values, name, v string) {
	if v != "" {
		q.Set(name, v)
	}
}

func setPaging(q url.Values, page, limit int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}
