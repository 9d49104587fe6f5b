package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"tourdesk/internal/calendar"
	"tourdesk/internal/config"
	"tourdesk/internal/domain"
	"tourdesk/internal/engine"
	"tourdesk/internal/engine/enginetest"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

type testEnv struct {
	Engine  engine.Engine
	Backend *enginetest.Backend
	Events  *enginetest.Recorder
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	backend := enginetest.New()
	rec := &enginetest.Recorder{}
	cfg := config.Default()
	cfg.Invoice.DefaultTaxPercent = 10
	eng := engine.New(backend, rec, cfg, nil)
	eng.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Backend: backend, Events: rec, Ctx: context.Background()}
}

func TestBookingTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.PutBooking(domain.Booking{ID: "b1", Status: status.BookingPending})

	b, err := env.Engine.TransitionBooking(env.Ctx, "b1", status.BookingConfirmed, "admin")
	if err != nil || b.Status != status.BookingConfirmed {
		t.Fatalf("to confirmed: %v", err)
	}
	b, err = env.Engine.TransitionBooking(env.Ctx, "b1", status.BookingCheckedIn, "admin")
	if err != nil || b.Status != status.BookingCheckedIn {
		t.Fatalf("to checked_in: %v", err)
	}
	// invalid transition should not reach the backend
	calls := env.Backend.Calls["UpdateBookingStatus"]
	_, err = env.Engine.TransitionBooking(env.Ctx, "b1", status.BookingPending, "admin")
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if env.Backend.Calls["UpdateBookingStatus"] != calls {
		t.Fatalf("invalid transition was forwarded")
	}
	if got := env.Events.Types(); !reflect.DeepEqual(got, []string{"booking.status", "booking.status"}) {
		t.Fatalf("events: %v", got)
	}
	if _, err := env.Engine.TransitionBooking(env.Ctx, "missing", status.BookingConfirmed, "admin"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTerminalBookingRejectsEverything(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.PutBooking(domain.Booking{ID: "b1", Status: status.BookingCheckedOut})
	for _, to := range []status.Status{status.BookingPending, status.BookingCancelled, status.BookingNoShow} {
		if _, err := env.Engine.TransitionBooking(env.Ctx, "b1", to, "admin"); !errors.Is(err, engine.ErrInvalidTransition) {
			t.Fatalf("checked_out -> %s: %v", to, err)
		}
	}
}

func TestDecideRefund(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.PutRefund(domain.Refund{ID: "r1", Status: status.RefundPending})
	env.Backend.PutRefund(domain.Refund{ID: "r2", Status: status.RefundPending})

	if _, err := env.Engine.DecideRefund(env.Ctx, "r1", status.RefundProcess, "", "admin"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("pending refunds cannot be processed: %v", err)
	}
	r, err := env.Engine.DecideRefund(env.Ctx, "r1", status.RefundApprove, "", "admin")
	if err != nil || r.Status != status.RefundApproved {
		t.Fatalf("approve: %v", err)
	}
	r, err = env.Engine.DecideRefund(env.Ctx, "r1", status.RefundProcess, "", "admin")
	if err != nil || r.Status != status.RefundCompleted {
		t.Fatalf("process: %v", err)
	}
	if _, err := env.Engine.DecideRefund(env.Ctx, "r2", status.RefundReject, "", "admin"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("reject without reason: %v", err)
	}
	r, err = env.Engine.DecideRefund(env.Ctx, "r2", status.RefundReject, "outside window", "admin")
	if err != nil || r.Status != status.RefundRejected || r.RejectionReason != "outside window" {
		t.Fatalf("reject: %+v %v", r, err)
	}
	if _, err := env.Engine.DecideRefund(env.Ctx, "r2", "refund-twice", "", "admin"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("unknown action: %v", err)
	}
	want := []string{"refund.approve", "refund.process", "refund.reject"}
	if got := env.Events.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events: %v", got)
	}
}

func TestInvoiceAndDiscountTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Invoices["i1"] = domain.Invoice{ID: "i1", Status: status.InvoiceDraft}
	env.Backend.Discounts["d1"] = domain.Discount{ID: "d1", Status: status.DiscountArchived}

	if _, err := env.Engine.TransitionInvoice(env.Ctx, "i1", status.InvoicePaid, "admin"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("draft -> paid: %v", err)
	}
	if inv, err := env.Engine.TransitionInvoice(env.Ctx, "i1", status.InvoiceSent, "admin"); err != nil || inv.Status != status.InvoiceSent {
		t.Fatalf("draft -> sent: %v", err)
	}
	if _, err := env.Engine.TransitionDiscount(env.Ctx, "d1", status.DiscountActive, "admin"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("archived discount moved: %v", err)
	}
}

func TestInvoiceLines(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Invoices["i1"] = domain.Invoice{ID: "i1", Status: status.InvoiceDraft}
	env.Backend.Payments["i1"] = []domain.Payment{
		{ID: "p1", AmountCents: 10000, Status: status.PaymentCompleted},
		{ID: "p2", AmountCents: 5000, Status: status.PaymentFailed},
	}
	lines := []money.LineItem{
		{Description: "Kayak", Quantity: 2, UnitPrice: 10000, Discount: 1000},
		{Description: "Snacks", Quantity: 1, UnitPrice: 5000},
	}
	v, err := env.Engine.SaveInvoiceLines(env.Ctx, "i1", lines, "admin")
	if err != nil {
		t.Fatalf("save lines: %v", err)
	}
	if v.Totals.TaxableAmount != 23000 || v.Totals.TaxAmount != 2300 || v.Totals.Total != 25300 {
		t.Fatalf("totals: %+v", v.Totals)
	}
	if v.Paid != 10000 || v.Balance != 15300 || !v.Editable {
		t.Fatalf("view: paid=%s balance=%s", v.Paid, v.Balance)
	}
	stored := env.Backend.Invoices["i1"]
	if stored.Totals == nil || stored.Totals.Total != 25300 || len(stored.Lines) != 2 {
		t.Fatalf("stored invoice: %+v", stored)
	}

	bad := []money.LineItem{{Quantity: -1, UnitPrice: 100}}
	if _, err := env.Engine.SaveInvoiceLines(env.Ctx, "i1", bad, "admin"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("negative quantity: %v", err)
	}

	env.Backend.Invoices["i2"] = domain.Invoice{ID: "i2", Status: status.InvoicePaid}
	if _, err := env.Engine.SaveInvoiceLines(env.Ctx, "i2", lines, "admin"); !errors.Is(err, engine.ErrNotEditable) {
		t.Fatalf("paid invoice edited: %v", err)
	}
}

func TestMonthAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Resources["boat"] = domain.Resource{ID: "boat", BasePrice: 20000}
	env.Backend.Availability["boat"] = calendar.Overrides{
		"2024-01-28": {Status: calendar.Blocked},
		"2024-02-14": {Status: calendar.Maintenance},
		"2024-04-01": {Status: calendar.Blocked},
	}
	v, err := env.Engine.MonthAvailability(env.Ctx, "boat", 2024, 1)
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if v.Year != 2024 || v.Month0 != 1 || len(v.Days) != calendar.GridSize {
		t.Fatalf("view: %d-%d %d", v.Year, v.Month0, len(v.Days))
	}
	if v.Days[0].Date != "2024-01-28" || v.Days[0].Status != calendar.Blocked {
		t.Fatalf("leading override not merged: %+v", v.Days[0])
	}
	if v.Days[1].Price != 20000 || v.Days[1].Status != calendar.Available {
		t.Fatalf("base not applied: %+v", v.Days[1])
	}

	rolled, err := env.Engine.MonthAvailability(env.Ctx, "boat", 2023, 13)
	if err != nil || rolled.Year != 2024 || rolled.Month0 != 1 {
		t.Fatalf("rollover: %d-%d %v", rolled.Year, rolled.Month0, err)
	}
}

func TestBulkEditAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Resources["boat"] = domain.Resource{ID: "boat", BasePrice: 20000}
	stay := 2
	env.Backend.Availability["boat"] = calendar.Overrides{"2024-02-10": {Status: calendar.Blocked, MinStay: &stay}}

	price := money.Cents(15000)
	changed, err := env.Engine.BulkEditAvailability(env.Ctx, "boat", []string{"2024-02-10", "2024-02-11"}, calendar.Override{Status: calendar.Available, PriceOverride: &price}, "vendor")
	if err != nil {
		t.Fatalf("bulk edit: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("changed: %v", changed)
	}
	stored := env.Backend.Availability["boat"]["2024-02-10"]
	if stored.MinStay != nil || stored.Status != calendar.Available || *stored.PriceOverride != 15000 {
		t.Fatalf("override should be replaced: %+v", stored)
	}
	if _, err := env.Engine.BulkEditAvailability(env.Ctx, "boat", nil, calendar.Override{Status: calendar.Blocked}, "vendor"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("empty selection: %v", err)
	}
	if _, err := env.Engine.BulkEditAvailability(env.Ctx, "boat", []string{"2024-02-10"}, calendar.Override{Status: "closed"}, "vendor"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("bad status: %v", err)
	}
	tooMany := make([]string, calendar.MaxRangeDays+1)
	for i := range tooMany {
		tooMany[i] = time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(calendar.DateLayout)
	}
	saves := env.Backend.Calls["SaveAvailability"]
	if _, err := env.Engine.BulkEditAvailability(env.Ctx, "boat", tooMany, calendar.Override{Status: calendar.Blocked}, "vendor"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("oversized selection: %v", err)
	}
	if env.Backend.Calls["SaveAvailability"] != saves {
		t.Fatalf("oversized selection reached the backend")
	}
}

func samplePackage() transform.Package {
	return transform.Package{
		ActivityID:      "a1",
		Name:            "Sunset kayak",
		BasePrice:       8000,
		MaxParticipants: 10,
		IsActive:        true,
		Options: transform.OptionsConfig{
			PricingTiers: []transform.PricingTier{
				{Name: "Group", Price: 6000, MinParticipants: 4, MaxParticipants: 10},
			},
		},
	}
}

func TestSaveAndQuotePackage(t *testing.T) {
	env := newTestEnv(t)
	saved, err := env.Engine.SavePackage(env.Ctx, samplePackage(), "vendor")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || saved.Currency != transform.DefaultCurrency {
		t.Fatalf("saved: %+v", saved)
	}
	if got := env.Events.Types(); len(got) != 1 || got[0] != "package.create" {
		t.Fatalf("events: %v", got)
	}

	q, err := env.Engine.QuotePackage(saved, "Group", 4)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.UnitPrice != 6000 || q.Totals.Subtotal != 24000 || q.Totals.TaxAmount != 2400 || q.Totals.Total != 26400 {
		t.Fatalf("quote: %+v", q)
	}
	if _, err := env.Engine.QuotePackage(saved, "Group", 2); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("below tier minimum: %v", err)
	}
	if _, err := env.Engine.QuotePackage(saved, "", 11); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("above package capacity: %v", err)
	}
	if q, err := env.Engine.QuotePackage(saved, "", 1); err != nil || q.Totals.Subtotal != 8000 {
		t.Fatalf("base price quote: %+v %v", q, err)
	}

	bad := samplePackage()
	bad.Options.BookingOptions.RequiresTimeSlot = true
	if _, err := env.Engine.SavePackage(env.Ctx, bad, "vendor"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("time slot required: %v", err)
	}
}

func TestReorderMedia(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Media["a1"] = []transform.MediaItem{
		{ID: "m1", SortOrder: 0}, {ID: "m2", SortOrder: 1}, {ID: "m3", SortOrder: 2},
	}
	items, err := env.Engine.ReorderMedia(env.Ctx, "a1", 2, 0, "vendor")
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if items[0].ID != "m3" || items[0].SortOrder != 0 || items[2].ID != "m2" {
		t.Fatalf("items: %+v", items)
	}
	if stored := env.Backend.Media["a1"]; stored[0].ID != "m3" {
		t.Fatalf("not stored: %+v", stored)
	}
	if _, err := env.Engine.ReorderMedia(env.Ctx, "a1", 7, 0, "vendor"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("out of range: %v", err)
	}
}

func TestPublicActivity(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.Activities["a1"] = domain.Activity{ID: "a1", Title: "Kayaking", IsActive: true}
	env.Backend.Activities["a2"] = domain.Activity{ID: "a2", Title: "Hidden", IsActive: false}
	active := samplePackage()
	active.ID, active.SortOrder = "p1", 2
	hidden := samplePackage()
	hidden.ID, hidden.IsActive = "p2", false
	cheap := samplePackage()
	cheap.ID, cheap.SortOrder, cheap.BasePrice = "p3", 1, 3000
	cheap.Options.PricingTiers = nil
	env.Backend.Packages = map[string]transform.Package{"p1": active, "p2": hidden, "p3": cheap}
	env.Backend.Media["a1"] = []transform.MediaItem{{ID: "m1"}, {ID: "m2", IsPrimary: true, SortOrder: 1}}

	list, err := env.Engine.PublicActivities(env.Ctx)
	if err != nil || len(list) != 1 || list[0].ID != "a1" {
		t.Fatalf("public list: %+v %v", list, err)
	}
	v, err := env.Engine.PublicActivity(env.Ctx, "a1")
	if err != nil {
		t.Fatalf("public activity: %v", err)
	}
	if len(v.Packages) != 2 || v.Packages[0].ID != "p3" || v.Packages[1].ID != "p1" {
		t.Fatalf("packages: %+v", v.Packages)
	}
	if v.FromPrice == nil || *v.FromPrice != 3000 {
		t.Fatalf("from price: %v", v.FromPrice)
	}
	if v.Cover == nil || v.Cover.ID != "m2" {
		t.Fatalf("cover: %+v", v.Cover)
	}
	if _, err := env.Engine.PublicActivity(env.Ctx, "a2"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("inactive activity visible: %v", err)
	}
	if _, err := env.Engine.PublicPackage(env.Ctx, "a1", "p2"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("inactive package visible: %v", err)
	}
}
