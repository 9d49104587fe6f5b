package tourdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBasePath is where tourdesk serve mounts the JSON API.
const DefaultBasePath = "/api/v0"

// Client is a minimal Tourdesk JSON API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: DefaultBasePath,
		Timeout:  10 * time.Second,
	}
}

// Cell is one day of a 42-day month grid.
type Cell struct {
	Date           string `json:"date"`
	Day            int    `json:"day"`
	Weekday        int    `json:"weekday"`
	InCurrentMonth bool   `json:"in_current_month"`
}

// MonthGrid is a Sunday-first calendar page.
type MonthGrid struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	DaysInMonth int    `json:"days_in_month"`
	Cells       []Cell `json:"cells"`
}

// LineItem amounts are integer cents; discounts are basis points.
type LineItem struct {
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price_cents"`
	Discount    int64  `json:"discount_bp,omitempty"`
}

type LineTotals struct {
	Subtotal int64 `json:"subtotal_cents"`
	Discount int64 `json:"discount_cents"`
	Tax      int64 `json:"tax_cents"`
	Total    int64 `json:"total_cents"`
}

type Totals struct {
	Subtotal      int64        `json:"subtotal_cents"`
	DiscountTotal int64        `json:"discount_total_cents"`
	TaxableAmount int64        `json:"taxable_amount_cents"`
	TaxAmount     int64        `json:"tax_amount_cents"`
	Total         int64        `json:"total_cents"`
	Lines         []LineTotals `json:"lines"`
}

// NextStatuses lists the statuses reachable from Status in one step.
type NextStatuses struct {
	Kind     string   `json:"kind"`
	Status   string   `json:"status"`
	Label    string   `json:"label"`
	Next     []string `json:"next"`
	Terminal bool     `json:"terminal"`
}

// Event represents an activity log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// EventFilter narrows Events. Zero values match everything.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// MonthGrid fetches the grid for month 1-12 of year.
func (c *Client) MonthGrid(ctx context.Context, year, month int) (MonthGrid, error) {
	var resp MonthGrid
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("calendar/%d/%d", year, month), nil, &resp)
	return resp, err
}

// Totals computes invoice totals. A nil taxPercent uses the server's
// configured tax lookup.
func (c *Client) Totals(ctx context.Context, items []LineItem, taxPercent *float64) (Totals, error) {
	if items == nil {
		items = []LineItem{}
	}
	body := map[string]any{"items": items}
	if taxPercent != nil {
		body["tax_percent"] = *taxPercent
	}
	var resp Totals
	err := c.do(ctx, http.MethodPost, "invoices/totals", body, &resp)
	return resp, err
}

// NextStatuses asks which statuses a kind (booking, refund, ...) may move to.
func (c *Client) NextStatuses(ctx context.Context, kind, current string) (NextStatuses, error) {
	var resp NextStatuses
	endpoint := fmt.Sprintf("statuses/%s/%s/next", url.PathEscape(kind), url.PathEscape(current))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int, f EventFilter) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "", f)
	return page.Items, err
}

// EventsPage returns one page of events; pass NextCursor back to continue.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string, f EventFilter) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	for k, v := range map[string]string{
		"type":        f.Type,
		"entity_kind": f.EntityKind,
		"entity_id":   f.EntityID,
		"actor_id":    f.ActorID,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
