// Package enginetest provides an in-memory marketplace backend for tests of
// the layers above the API client.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/calendar"
	"tourdesk/internal/domain"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

// Backend is safe for concurrent use. Seed it through the exported maps
// before handing it out, or through the Put helpers afterwards.
type Backend struct {
	mu sync.Mutex

	Activities   map[string]domain.Activity
	Packages     map[string]transform.Package
	Media        map[string][]transform.MediaItem
	Bookings     map[string]domain.Booking
	Invoices     map[string]domain.Invoice
	Payments     map[string][]domain.Payment
	Refunds      map[string]domain.Refund
	Discounts    map[string]domain.Discount
	Resources    map[string]domain.Resource
	Availability map[string]calendar.Overrides

	// Fail, when set, is returned by every call.
	Fail error
	// Calls counts mutating calls by method name.
	Calls map[string]int

	seq int
}

func New() *Backend {
	return &Backend{
		Activities:   map[string]domain.Activity{},
		Packages:     map[string]transform.Package{},
		Media:        map[string][]transform.MediaItem{},
		Bookings:     map[string]domain.Booking{},
		Invoices:     map[string]domain.Invoice{},
		Payments:     map[string][]domain.Payment{},
		Refunds:      map[string]domain.Refund{},
		Discounts:    map[string]domain.Discount{},
		Resources:    map[string]domain.Resource{},
		Availability: map[string]calendar.Overrides{},
		Calls:        map[string]int{},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apiclient.ErrNotFound)
}

func (b *Backend) call(name string) error {
	if b.Calls != nil {
		b.Calls[name]++
	}
	return b.Fail
}

func sortedValues[T any](m map[string]T, keep func(T) bool) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if keep == nil || keep(m[k]) {
			out = append(out, m[k])
		}
	}
	return out
}

func (b *Backend) PutBooking(v domain.Booking) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Bookings[v.ID] = v
}

func (b *Backend) PutRefund(v domain.Refund) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Refunds[v.ID] = v
}

func (b *Backend) ListActivities(_ context.Context, f apiclient.Filter) ([]domain.Activity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Activities, func(a domain.Activity) bool {
		return f.VendorID == "" || a.VendorID == f.VendorID
	}), nil
}

func (b *Backend) GetActivity(_ context.Context, id string) (domain.Activity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Activity{}, b.Fail
	}
	a, ok := b.Activities[id]
	if !ok {
		return domain.Activity{}, notFound("activity", id)
	}
	return a, nil
}

// Packages are stored in the backend shape so every read goes through the
// transform, the same way the real client does.
func (b *Backend) ListPackages(_ context.Context, activityID string) ([]transform.Package, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	pkgs := sortedValues(b.Packages, func(p transform.Package) bool { return p.ActivityID == activityID })
	for i, p := range pkgs {
		pkgs[i] = transform.PackageFromBackend(transform.PackageToBackend(p))
	}
	return pkgs, nil
}

func (b *Backend) GetPackage(_ context.Context, id string) (transform.Package, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return transform.Package{}, b.Fail
	}
	p, ok := b.Packages[id]
	if !ok {
		return transform.Package{}, notFound("package", id)
	}
	return transform.PackageFromBackend(transform.PackageToBackend(p)), nil
}

func (b *Backend) SavePackage(_ context.Context, p transform.Package) (transform.Package, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("SavePackage"); err != nil {
		return transform.Package{}, err
	}
	if p.ID == "" {
		b.seq++
		p.ID = fmt.Sprintf("pkg-%d", b.seq)
	} else if existing, ok := b.Packages[p.ID]; ok && p.ActivityID == "" {
		p.ActivityID = existing.ActivityID
	}
	saved := transform.PackageFromBackend(transform.PackageToBackend(p))
	b.Packages[saved.ID] = saved
	return saved, nil
}

func (b *Backend) ListMedia(_ context.Context, activityID string) ([]transform.MediaItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	items := append([]transform.MediaItem(nil), b.Media[activityID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (b *Backend) ReorderMedia(_ context.Context, activityID string, items []transform.MediaItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("ReorderMedia"); err != nil {
		return err
	}
	b.Media[activityID] = append([]transform.MediaItem(nil), items...)
	return nil
}

func (b *Backend) ListBookings(_ context.Context, f apiclient.Filter) ([]domain.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Bookings, func(v domain.Booking) bool {
		return (f.Status == "" || v.Status == f.Status) && (f.VendorID == "" || v.VendorID == f.VendorID)
	}), nil
}

func (b *Backend) GetBooking(_ context.Context, id string) (domain.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Booking{}, b.Fail
	}
	v, ok := b.Bookings[id]
	if !ok {
		return domain.Booking{}, notFound("booking", id)
	}
	return v, nil
}

func (b *Backend) UpdateBookingStatus(_ context.Context, id string, to status.Status) (domain.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("UpdateBookingStatus"); err != nil {
		return domain.Booking{}, err
	}
	v, ok := b.Bookings[id]
	if !ok {
		return domain.Booking{}, notFound("booking", id)
	}
	v.Status = to
	b.Bookings[id] = v
	return v, nil
}

func (b *Backend) ListInvoices(_ context.Context, f apiclient.Filter) ([]domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Invoices, func(v domain.Invoice) bool {
		return (f.Status == "" || v.Status == f.Status) && (f.VendorID == "" || v.VendorID == f.VendorID)
	}), nil
}

func (b *Backend) GetInvoice(_ context.Context, id string) (domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Invoice{}, b.Fail
	}
	v, ok := b.Invoices[id]
	if !ok {
		return domain.Invoice{}, notFound("invoice", id)
	}
	return v, nil
}

func (b *Backend) SaveInvoiceLines(_ context.Context, id string, lines []money.LineItem, totals money.Totals) (domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("SaveInvoiceLines"); err != nil {
		return domain.Invoice{}, err
	}
	v, ok := b.Invoices[id]
	if !ok {
		return domain.Invoice{}, notFound("invoice", id)
	}
	v.Lines = append([]money.LineItem(nil), lines...)
	v.Totals = &totals
	b.Invoices[id] = v
	return v, nil
}

func (b *Backend) UpdateInvoiceStatus(_ context.Context, id string, to status.Status) (domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("UpdateInvoiceStatus"); err != nil {
		return domain.Invoice{}, err
	}
	v, ok := b.Invoices[id]
	if !ok {
		return domain.Invoice{}, notFound("invoice", id)
	}
	v.Status = to
	b.Invoices[id] = v
	return v, nil
}

func (b *Backend) ListPayments(_ context.Context, invoiceID string) ([]domain.Payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	out := append([]domain.Payment{}, b.Payments[invoiceID]...)
	return out, nil
}

func (b *Backend) ListRefunds(_ context.Context, f apiclient.Filter) ([]domain.Refund, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Refunds, func(v domain.Refund) bool {
		return f.Status == "" || v.Status == f.Status
	}), nil
}

func (b *Backend) GetRefund(_ context.Context, id string) (domain.Refund, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Refund{}, b.Fail
	}
	v, ok := b.Refunds[id]
	if !ok {
		return domain.Refund{}, notFound("refund", id)
	}
	return v, nil
}

func (b *Backend) setRefund(method, id string, to status.Status, reason string) (domain.Refund, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call(method); err != nil {
		return domain.Refund{}, err
	}
	v, ok := b.Refunds[id]
	if !ok {
		return domain.Refund{}, notFound("refund", id)
	}
	v.Status = to
	if reason != "" {
		v.RejectionReason = reason
	}
	b.Refunds[id] = v
	return v, nil
}

func (b *Backend) ApproveRefund(_ context.Context, id string) (domain.Refund, error) {
	return b.setRefund("ApproveRefund", id, status.RefundApproved, "")
}

func (b *Backend) RejectRefund(_ context.Context, id, reason string) (domain.Refund, error) {
	return b.setRefund("RejectRefund", id, status.RefundRejected, reason)
}

func (b *Backend) ProcessRefund(_ context.Context, id string) (domain.Refund, error) {
	return b.setRefund("ProcessRefund", id, status.RefundCompleted, "")
}

func (b *Backend) ListDiscounts(_ context.Context, f apiclient.Filter) ([]domain.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Discounts, func(v domain.Discount) bool {
		return f.Status == "" || v.Status == f.Status
	}), nil
}

func (b *Backend) GetDiscount(_ context.Context, id string) (domain.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Discount{}, b.Fail
	}
	v, ok := b.Discounts[id]
	if !ok {
		return domain.Discount{}, notFound("discount", id)
	}
	return v, nil
}

func (b *Backend) UpdateDiscountStatus(_ context.Context, id string, to status.Status) (domain.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("UpdateDiscountStatus"); err != nil {
		return domain.Discount{}, err
	}
	v, ok := b.Discounts[id]
	if !ok {
		return domain.Discount{}, notFound("discount", id)
	}
	v.Status = to
	b.Discounts[id] = v
	return v, nil
}

func (b *Backend) ListResources(_ context.Context, f apiclient.Filter) ([]domain.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	return sortedValues(b.Resources, func(v domain.Resource) bool {
		return f.ActivityID == "" || v.ActivityID == f.ActivityID
	}), nil
}

func (b *Backend) GetResource(_ context.Context, id string) (domain.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return domain.Resource{}, b.Fail
	}
	v, ok := b.Resources[id]
	if !ok {
		return domain.Resource{}, notFound("resource", id)
	}
	return v, nil
}

func (b *Backend) ListAvailability(_ context.Context, resourceID, from, to string) (calendar.Overrides, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	out := calendar.Overrides{}
	for d, o := range b.Availability[resourceID] {
		if d >= from && d <= to {
			out[d] = o
		}
	}
	return out, nil
}

func (b *Backend) SaveAvailability(_ context.Context, resourceID string, overrides calendar.Overrides) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("SaveAvailability"); err != nil {
		return err
	}
	merged := calendar.Overrides{}
	for d, o := range b.Availability[resourceID] {
		merged[d] = o
	}
	for d, o := range overrides {
		merged[d] = o
	}
	b.Availability[resourceID] = merged
	return nil
}
