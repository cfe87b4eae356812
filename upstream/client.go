// Package upstream is the HTTP client for the seat booking provider. It
// translates the provider's JSON payloads into the booking domain model and
// tracks whether the provider is currently reachable.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/config"
)

const (
	accountInfoPath = "/accounts/GetAccountInfo"
	searchPath      = "/areas/SearchAvailableAreas"

	// startTimeLayout is the provider's local datetime format, minute precision.
	startTimeLayout = "2006-01-02T15:04"
	// errorBodyLimit caps how much of a failed response ends up in the error.
	errorBodyLimit = 512
)

// Client talks to one booking provider. A single Client is created at startup
// and shared by every pipeline; its rate limiter is process-wide.
type Client struct {
	baseURL string
	referer string
	loc     *time.Location
	http    *http.Client
	limiter *rate.Limiter
	health  *HealthChecker
}

func NewClient(cfg config.Config, loc *time.Location) *Client {
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		// One aggregation fans out a query per timeslot to the same host.
		MaxIdleConnsPerHost: max(cfg.UpstreamConcurrency, 10),
	}

	limit := rate.Inf
	if cfg.UpstreamRateLimit > 0 {
		limit = rate.Limit(cfg.UpstreamRateLimit)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.UpstreamURL, "/"),
		referer: cfg.UpstreamReferer,
		loc:     loc,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter: rate.NewLimiter(limit, max(cfg.UpstreamBurst, 1)),
	}
}

// SetHealthChecker attaches a health checker that is told about the outcome of
// every request. Must be called before the client is used.
func (c *Client) SetHealthChecker(hc *HealthChecker) {
	c.health = hc
}

// HealthChecker returns the attached health checker, or nil if none is set.
func (c *Client) HealthChecker() *HealthChecker {
	return c.health
}

// GetAccountInfo fetches the library catalogue. Libraries without any areas
// are left out.
func (c *Client) GetAccountInfo(ctx context.Context) (booking.LibraryInfo, error) {
	var payload accountInfoPayload
	if err := c.getJSON(ctx, accountInfoPath, nil, &payload); err != nil {
		return nil, fmt.Errorf("upstream: account info: %w", err)
	}
	info, err := payload.libraryInfo(c.loc)
	if err != nil {
		return nil, fmt.Errorf("upstream: account info: %w: %w", booking.ErrUpstreamUnavailable, err)
	}
	return info, nil
}

// SearchAvailableAreas asks which seats of library are free for the whole of
// [start, start+duration). A nil area searches every area of the library.
func (c *Client) SearchAvailableAreas(ctx context.Context, library booking.LibraryID, start time.Time, duration time.Duration, area *booking.AreaID) (booking.AvailableAreas, error) {
	q := url.Values{}
	q.Set("Mode", "OffsiteMode")
	q.Set("BranchId", strconv.Itoa(int(library)))
	if area != nil {
		q.Set("AreaId", strconv.Itoa(int(*area)))
	} else {
		q.Set("AreaId", "")
	}
	q.Set("StartTime", start.In(c.loc).Format(startTimeLayout))
	q.Set("DurationInMinutes", strconv.Itoa(int(duration/time.Minute)))

	var payload searchPayload
	if err := c.getJSON(ctx, searchPath, q, &payload); err != nil {
		return nil, fmt.Errorf("upstream: search library %d at %s: %w", library, q.Get("StartTime"), err)
	}
	return payload.availableAreas(), nil
}

// Ping checks that the provider answers at all. It bypasses the rate limiter
// and does not report to the health checker.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, accountInfoPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a rate-limited GET and decodes and validates the response
// into out. Transport, status and payload failures all wrap
// booking.ErrUpstreamUnavailable.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	err := c.doJSON(ctx, path, query, out)
	c.recordHealth(ctx, err)
	if err != nil {
		return fmt.Errorf("%w: %w", booking.ErrUpstreamUnavailable, err)
	}
	return nil
}

// recordHealth feeds the outcome of one request to the health checker.
// Requests cancelled on our side say nothing about the provider and are not
// counted.
func (c *Client) recordHealth(ctx context.Context, err error) {
	switch {
	case c.health == nil:
	case err == nil:
		c.health.RecordRequestSuccess()
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
	default:
		c.health.RecordRequestFailure(err)
	}
}

func (c *Client) doJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	return req, nil
}
