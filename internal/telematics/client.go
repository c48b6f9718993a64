// Package telematics is a small client for the Samsara-style fleet REST API.
package telematics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.samsara.com"

// APIError is returned for non-2xx upstream responses.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telematics api %s: status %d: %s", e.Path, e.Status, e.Body)
}

type Options struct {
	BaseURL           string
	Token             string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		logger:     opts.Logger,
	}
}

type page struct {
	Data       []json.RawMessage `json:"data"`
	Pagination struct {
		EndCursor   string `json:"endCursor"`
		HasNextPage bool   `json:"hasNextPage"`
	} `json:"pagination"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telematics api %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("telematics request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// pages follows endCursor until the last page and returns every raw item.
func (c *Client) pages(ctx context.Context, path string, query url.Values) ([]json.RawMessage, error) {
	if query == nil {
		query = url.Values{}
	}
	var items []json.RawMessage
	for {
		var p page
		if err := c.get(ctx, path, query, &p); err != nil {
			return nil, err
		}
		items = append(items, p.Data...)
		if !p.Pagination.HasNextPage || p.Pagination.EndCursor == "" {
			return items, nil
		}
		query.Set("after", p.Pagination.EndCursor)
	}
}

func decodeAll[T any](items []json.RawMessage, keep func(*T, json.RawMessage)) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode item: %w", err)
		}
		if keep != nil {
			keep(&v, raw)
		}
		out = append(out, v)
	}
	return out, nil
}

func timeRange(q url.Values, start, end time.Time) {
	q.Set("startTime", start.UTC().Format(time.RFC3339))
	q.Set("endTime", end.UTC().Format(time.RFC3339))
}

// ListVehicles returns the full vehicle directory.
func (c *Client) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	items, err := c.pages(ctx, "/fleet/vehicles", url.Values{"limit": {"512"}})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, func(v *Vehicle, raw json.RawMessage) { v.Raw = raw })
}

// Tags returns every tag of the organization.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	items, err := c.pages(ctx, "/tags", url.Values{"limit": {"512"}})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, func(t *Tag, raw json.RawMessage) { t.Raw = raw })
}

// VehicleStats returns the latest values of the requested stat types.
func (c *Client) VehicleStats(ctx context.Context, vehicleIDs, types []string) ([]VehicleStats, error) {
	q := url.Values{"types": {strings.Join(types, ",")}}
	if len(vehicleIDs) > 0 {
		q.Set("vehicleIds", strings.Join(vehicleIDs, ","))
	}
	items, err := c.pages(ctx, "/fleet/vehicles/stats", q)
	if err != nil {
		return nil, err
	}
	return decodeAll[VehicleStats](items, nil)
}

// DashcamMedia lists media captured in [start, end].
func (c *Client) DashcamMedia(ctx context.Context, vehicleIDs, inputs []string, start, end time.Time) ([]Media, error) {
	q := url.Values{}
	if len(vehicleIDs) > 0 {
		q.Set("vehicleIds", strings.Join(vehicleIDs, ","))
	}
	if len(inputs) > 0 {
		q.Set("inputs", strings.Join(inputs, ","))
	}
	timeRange(q, start, end)

	var resp struct {
		Data struct {
			Media []Media `json:"media"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/cameras/media", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Media, nil
}

// SafetyEvents lists events created in [start, end], newest first, at most limit.
func (c *Client) SafetyEvents(ctx context.Context, vehicleIDs, states []string, start, end time.Time, limit int) ([]SafetyEvent, error) {
	q := url.Values{}
	if len(vehicleIDs) > 0 {
		q.Set("assetIds", strings.Join(vehicleIDs, ","))
	}
	if len(states) > 0 {
		q.Set("eventStates", strings.Join(states, ","))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	timeRange(q, start, end)

	var resp struct {
		Data []SafetyEvent `json:"data"`
	}
	if err := c.get(ctx, "/safety-events/stream", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Trips lists trips started in [start, end].
func (c *Client) Trips(ctx context.Context, vehicleIDs []string, start, end time.Time, limit int) ([]Trip, error) {
	q := url.Values{"includeAsset": {"true"}}
	if len(vehicleIDs) > 0 {
		q.Set("ids", strings.Join(vehicleIDs, ","))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	timeRange(q, start, end)

	var resp struct {
		Data []Trip `json:"data"`
	}
	if err := c.get(ctx, "/trips/stream", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
