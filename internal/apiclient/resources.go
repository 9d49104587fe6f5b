package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"tourdesk/internal/calendar"
	"tourdesk/internal/domain"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

// Filter narrows list endpoints. Zero values are omitted.
type Filter struct {
	VendorID   string
	ActivityID string
	Status     status.Status
	Limit      int
	Offset     int
}

func (f Filter) values() url.Values {
	q := url.Values{}
	if f.VendorID != "" {
		q.Set("vendor_id", f.VendorID)
	}
	if f.ActivityID != "" {
		q.Set("activity_id", f.ActivityID)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

func list[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	var resp domain.Page[T]
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	return resp.Items, nil
}

func get[T any](ctx context.Context, c *Client, endpoint string) (T, error) {
	var out T
	err := c.do(ctx, http.MethodGet, endpoint, nil, &out)
	return out, err
}

// Activities

func (c *Client) ListActivities(ctx context.Context, f Filter) ([]domain.Activity, error) {
	return list[domain.Activity](ctx, c, withQuery("activities", f.values()))
}

func (c *Client) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return get[domain.Activity](ctx, c, path("activities", id))
}

func (c *Client) SaveActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	var out domain.Activity
	if a.ID == "" {
		err := c.do(ctx, http.MethodPost, "activities", a, &out)
		return out, err
	}
	err := c.do(ctx, http.MethodPut, path("activities", a.ID), a, &out)
	return out, err
}

func (c *Client) DeleteActivity(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, path("activities", id), nil, nil)
}

// Packages travel in the backend shape and are converted here.

func (c *Client) ListPackages(ctx context.Context, activityID string) ([]transform.Package, error) {
	raw, err := list[transform.Record](ctx, c, path("activities", activityID, "packages"))
	if err != nil {
		return nil, err
	}
	out := make([]transform.Package, 0, len(raw))
	for _, r := range raw {
		out = append(out, transform.PackageFromBackend(r))
	}
	return out, nil
}

func (c *Client) GetPackage(ctx context.Context, id string) (transform.Package, error) {
	raw, err := get[transform.Record](ctx, c, path("packages", id))
	if err != nil {
		return transform.Package{}, err
	}
	return transform.PackageFromBackend(raw), nil
}

// SavePackage creates the package when it has no id yet.
func (c *Client) SavePackage(ctx context.Context, p transform.Package) (transform.Package, error) {
	body := transform.PackageToBackend(p)
	var raw transform.Record
	var err error
	if p.ID == "" {
		err = c.do(ctx, http.MethodPost, path("activities", p.ActivityID, "packages"), body, &raw)
	} else {
		err = c.do(ctx, http.MethodPut, path("packages", p.ID), body, &raw)
	}
	if err != nil {
		return transform.Package{}, err
	}
	return transform.PackageFromBackend(raw), nil
}

func (c *Client) DeletePackage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, path("packages", id), nil, nil)
}

// Media

func (c *Client) ListMedia(ctx context.Context, activityID string) ([]transform.MediaItem, error) {
	raw, err := list[transform.Record](ctx, c, path("activities", activityID, "media"))
	if err != nil {
		return nil, err
	}
	return transform.MediaListFromBackend(raw), nil
}

// ReorderMedia sends the full list in its new order.
func (c *Client) ReorderMedia(ctx context.Context, activityID string, items []transform.MediaItem) error {
	rows := make([]transform.Record, 0, len(items))
	for _, m := range items {
		rows = append(rows, transform.MediaToBackend(m))
	}
	body := map[string]any{"items": rows}
	return c.do(ctx, http.MethodPut, path("activities", activityID, "media", "order"), body, nil)
}

func (c *Client) DeleteMedia(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, path("media", id), nil, nil)
}

// Bookings

func (c *Client) ListBookings(ctx context.Context, f Filter) ([]domain.Booking, error) {
	return list[domain.Booking](ctx, c, withQuery("bookings", f.values()))
}

func (c *Client) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return get[domain.Booking](ctx, c, path("bookings", id))
}

func (c *Client) UpdateBookingStatus(ctx context.Context, id string, to status.Status) (domain.Booking, error) {
	var out domain.Booking
	err := c.do(ctx, http.MethodPatch, path("bookings", id, "status"), map[string]any{"status": to}, &out)
	return out, err
}

// Invoices

func (c *Client) ListInvoices(ctx context.Context, f Filter) ([]domain.Invoice, error) {
	return list[domain.Invoice](ctx, c, withQuery("invoices", f.values()))
}

func (c *Client) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	return get[domain.Invoice](ctx, c, path("invoices", id))
}

// SaveInvoiceLines stores the lines together with the totals computed for
// them; the backend keeps totals for reporting only.
func (c *Client) SaveInvoiceLines(ctx context.Context, id string, lines []money.LineItem, totals money.Totals) (domain.Invoice, error) {
	body := map[string]any{"lines": lines, "totals": totals}
	var out domain.Invoice
	err := c.do(ctx, http.MethodPut, path("invoices", id, "lines"), body, &out)
	return out, err
}

func (c *Client) UpdateInvoiceStatus(ctx context.Context, id string, to status.Status) (domain.Invoice, error) {
	var out domain.Invoice
	err := c.do(ctx, http.MethodPatch, path("invoices", id, "status"), map[string]any{"status": to}, &out)
	return out, err
}

// Payments

func (c *Client) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	return list[domain.Payment](ctx, c, path("invoices", invoiceID, "payments"))
}

func (c *Client) RecordPayment(ctx context.Context, invoiceID string, p domain.Payment) (domain.Payment, error) {
	var out domain.Payment
	err := c.do(ctx, http.MethodPost, path("invoices", invoiceID, "payments"), p, &out)
	return out, err
}

// Refunds

func (c *Client) ListRefunds(ctx context.Context, f Filter) ([]domain.Refund, error) {
	return list[domain.Refund](ctx, c, withQuery("refunds", f.values()))
}

func (c *Client) GetRefund(ctx context.Context, id string) (domain.Refund, error) {
	return get[domain.Refund](ctx, c, path("refunds", id))
}

func (c *Client) ApproveRefund(ctx context.Context, id string) (domain.Refund, error) {
	var out domain.Refund
	err := c.do(ctx, http.MethodPost, path("refunds", id, "approve"), map[string]any{}, &out)
	return out, err
}

func (c *Client) RejectRefund(ctx context.Context, id, reason string) (domain.Refund, error) {
	var out domain.Refund
	err := c.do(ctx, http.MethodPost, path("refunds", id, "reject"), map[string]any{"reason": reason}, &out)
	return out, err
}

func (c *Client) ProcessRefund(ctx context.Context, id string) (domain.Refund, error) {
	var out domain.Refund
	err := c.do(ctx, http.MethodPost, path("refunds", id, "process"), map[string]any{}, &out)
	return out, err
}

// Discounts

func (c *Client) ListDiscounts(ctx context.Context, f Filter) ([]domain.Discount, error) {
	return list[domain.Discount](ctx, c, withQuery("discounts", f.values()))
}

func (c *Client) GetDiscount(ctx context.Context, id string) (domain.Discount, error) {
	return get[domain.Discount](ctx, c, path("discounts", id))
}

func (c *Client) SaveDiscount(ctx context.Context, d domain.Discount) (domain.Discount, error) {
	var out domain.Discount
	if d.ID == "" {
		err := c.do(ctx, http.MethodPost, "discounts", d, &out)
		return out, err
	}
	err := c.do(ctx, http.MethodPut, path("discounts", d.ID), d, &out)
	return out, err
}

func (c *Client) UpdateDiscountStatus(ctx context.Context, id string, to status.Status) (domain.Discount, error) {
	var out domain.Discount
	err := c.do(ctx, http.MethodPatch, path("discounts", id, "status"), map[string]any{"status": to}, &out)
	return out, err
}

// Resources and availability

func (c *Client) ListResources(ctx context.Context, f Filter) ([]domain.Resource, error) {
	return list[domain.Resource](ctx, c, withQuery("resources", f.values()))
}

func (c *Client) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	return get[domain.Resource](ctx, c, path("resources", id))
}

type availabilityRow struct {
	Date string `json:"date"`
	calendar.Override
}

// ListAvailability returns the overrides stored between from and to
// inclusive.
func (c *Client) ListAvailability(ctx context.Context, resourceID, from, to string) (calendar.Overrides, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	rows, err := list[availabilityRow](ctx, c, withQuery(path("resources", resourceID, "availability"), q))
	if err != nil {
		return nil, err
	}
	out := make(calendar.Overrides, len(rows))
	for _, r := range rows {
		out[r.Date] = r.Override
	}
	return out, nil
}

// SaveAvailability replaces the overrides on the given dates.
func (c *Client) SaveAvailability(ctx context.Context, resourceID string, overrides calendar.Overrides) error {
	rows := make([]availabilityRow, 0, len(overrides))
	for _, d := range overrides.Dates() {
		rows = append(rows, availabilityRow{Date: d, Override: overrides[d]})
	}
	body := map[string]any{"items": rows}
	return c.do(ctx, http.MethodPut, path("resources", resourceID, "availability"), body, nil)
}
