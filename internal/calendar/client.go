package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to the product backend's calendar and task APIs over
// JSON/REST. It implements Reader, Writer, and ActionWriter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientConfig configures the calendar client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// TokenSource supplies bearer tokens. Required.
	TokenSource oauth2.TokenSource
}

// NewClient creates a calendar client backed by the given token source.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("calendar base URL is required")
	}
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: cfg.TokenSource},
		},
		logger: logger,
	}, nil
}

// ListEvents returns the owner's events between from and to inclusive.
func (c *Client) ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	q.Set("from", from.Format(DateLayout))
	q.Set("to", to.Format(DateLayout))

	var resp struct {
		Events []struct {
			ID              string `json:"id"`
			Title           string `json:"title"`
			Date            string `json:"date"`
			Time            string `json:"time"`
			DurationMinutes int    `json:"duration_minutes"`
		} `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/calendar/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]Event, 0, len(resp.Events))
	for _, e := range resp.Events {
		events = append(events, Event{
			ID:       e.ID,
			Title:    e.Title,
			Date:     e.Date,
			Time:     e.Time,
			Duration: time.Duration(e.DurationMinutes) * time.Minute,
		})
	}
	return events, nil
}

// CreateEvent creates a calendar event and returns its id.
func (c *Client) CreateEvent(ctx context.Context, req CreateEventRequest) (string, error) {
	body := map[string]any{
		"owner_id":         req.OwnerID,
		"title":            req.Title,
		"date":             req.Date,
		"time":             req.Time,
		"duration_minutes": int(req.Duration / time.Minute),
		"category":         req.Category,
		"idempotency_key":  req.IdempotencyKey,
	}
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/calendar/events", body, &resp); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("create event: backend returned empty event id")
	}
	return resp.EventID, nil
}

// DeleteEvent removes an event. Used only to compensate a partially
// completed scheduling write.
func (c *Client) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	path := fmt.Sprintf("/api/v1/calendar/events/%s?owner_id=%s", url.PathEscape(eventID), url.QueryEscape(ownerID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// CreateLinkedAction mirrors a scheduled commitment into task tracking.
func (c *Client) CreateLinkedAction(ctx context.Context, req CreateLinkedActionRequest) (string, error) {
	var resp struct {
		ActionID string `json:"action_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions", req, &resp); err != nil {
		return "", fmt.Errorf("create linked action: %w", err)
	}
	if resp.ActionID == "" {
		return "", fmt.Errorf("create linked action: backend returned empty action id")
	}
	return resp.ActionID, nil
}

// do performs one JSON request against the backend.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: backend returned %d", ErrCredentialInvalid, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// Ensure interfaces are implemented at compile time.
var (
	_ Reader       = (*Client)(nil)
	_ Writer       = (*Client)(nil)
	_ ActionWriter = (*Client)(nil)
)
