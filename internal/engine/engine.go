package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/calendar"
	"tourdesk/internal/config"
	"tourdesk/internal/domain"
	"tourdesk/internal/events"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrNotEditable       = errors.New("not editable in current status")
	ErrNotFound          = apiclient.ErrNotFound
)

// Backend is the slice of the marketplace API the portal uses.
type Backend interface {
	ListActivities(ctx context.Context, f apiclient.Filter) ([]domain.Activity, error)
	GetActivity(ctx context.Context, id string) (domain.Activity, error)

	ListPackages(ctx context.Context, activityID string) ([]transform.Package, error)
	GetPackage(ctx context.Context, id string) (transform.Package, error)
	SavePackage(ctx context.Context, p transform.Package) (transform.Package, error)

	ListMedia(ctx context.Context, activityID string) ([]transform.MediaItem, error)
	ReorderMedia(ctx context.Context, activityID string, items []transform.MediaItem) error

	ListBookings(ctx context.Context, f apiclient.Filter) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, to status.Status) (domain.Booking, error)

	ListInvoices(ctx context.Context, f apiclient.Filter) ([]domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
	SaveInvoiceLines(ctx context.Context, id string, lines []money.LineItem, totals money.Totals) (domain.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, to status.Status) (domain.Invoice, error)
	ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error)

	ListRefunds(ctx context.Context, f apiclient.Filter) ([]domain.Refund, error)
	GetRefund(ctx context.Context, id string) (domain.Refund, error)
	ApproveRefund(ctx context.Context, id string) (domain.Refund, error)
	RejectRefund(ctx context.Context, id, reason string) (domain.Refund, error)
	ProcessRefund(ctx context.Context, id string) (domain.Refund, error)

	ListDiscounts(ctx context.Context, f apiclient.Filter) ([]domain.Discount, error)
	GetDiscount(ctx context.Context, id string) (domain.Discount, error)
	UpdateDiscountStatus(ctx context.Context, id string, to status.Status) (domain.Discount, error)

	ListResources(ctx context.Context, f apiclient.Filter) ([]domain.Resource, error)
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	ListAvailability(ctx context.Context, resourceID, from, to string) (calendar.Overrides, error)
	SaveAvailability(ctx context.Context, resourceID string, overrides calendar.Overrides) error
}

// Recorder appends to the activity log.
type Recorder interface {
	Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) (domain.Event, error)
}

type Engine struct {
	API    Backend
	Events Recorder
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(api Backend, rec Recorder, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{API: api, Events: rec, Config: cfg, Logger: logger, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// Currency is the portal display currency.
func (e Engine) Currency() string { return e.config().Portal.Currency }

// record never fails the caller; the backend change already happened.
func (e Engine) record(ctx context.Context, evtType string, kind status.Kind, id, actorID string, payload events.EventPayload) {
	if e.Events == nil {
		return
	}
	if actorID == "" {
		actorID = e.config().API.Actor
	}
	if _, err := e.Events.Append(ctx, evtType, string(kind), id, actorID, payload); err != nil {
		e.logger().Error("record event failed",
			zap.String("type", evtType),
			zap.String("entity_id", id),
			zap.Error(err),
		)
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func ensureTransition(kind status.Kind, from, to status.Status) error {
	g, ok := status.ForKind(kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidTransition, kind)
	}
	if !g.Allows(from, to) {
		return fmt.Errorf("%w: invalid %s status transition %s -> %s", ErrInvalidTransition, kind, from, to)
	}
	return nil
}

// TransitionBooking moves a booking along the booking table.
func (e Engine) TransitionBooking(ctx context.Context, id string, to status.Status, actorID string) (domain.Booking, error) {
	b, err := e.API.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := ensureTransition(status.KindBooking, b.Status, to); err != nil {
		return domain.Booking{}, err
	}
	from := b.Status
	updated, err := e.API.UpdateBookingStatus(ctx, id, to)
	if err != nil {
		return domain.Booking{}, err
	}
	e.record(ctx, "booking.status", status.KindBooking, id, actorID, events.EventPayload{"from": from, "to": to})
	return updated, nil
}

func (e Engine) TransitionInvoice(ctx context.Context, id string, to status.Status, actorID string) (domain.Invoice, error) {
	inv, err := e.API.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := ensureTransition(status.KindInvoice, inv.Status, to); err != nil {
		return domain.Invoice{}, err
	}
	from := inv.Status
	updated, err := e.API.UpdateInvoiceStatus(ctx, id, to)
	if err != nil {
		return domain.Invoice{}, err
	}
	e.record(ctx, "invoice.status", status.KindInvoice, id, actorID, events.EventPayload{"from": from, "to": to})
	return updated, nil
}

func (e Engine) TransitionDiscount(ctx context.Context, id string, to status.Status, actorID string) (domain.Discount, error) {
	d, err := e.API.GetDiscount(ctx, id)
	if err != nil {
		return domain.Discount{}, err
	}
	if err := ensureTransition(status.KindDiscount, d.Status, to); err != nil {
		return domain.Discount{}, err
	}
	from := d.Status
	updated, err := e.API.UpdateDiscountStatus(ctx, id, to)
	if err != nil {
		return domain.Discount{}, err
	}
	e.record(ctx, "discount.status", status.KindDiscount, id, actorID, events.EventPayload{"from": from, "to": to})
	return updated, nil
}

// DecideRefund applies approve, reject or process. Rejections need a reason.
func (e Engine) DecideRefund(ctx context.Context, id string, action status.RefundAction, reason, actorID string) (domain.Refund, error) {
	to, ok := action.Target()
	if !ok {
		return domain.Refund{}, validationError("unknown refund action %q", action)
	}
	if action == status.RefundReject && reason == "" {
		return domain.Refund{}, validationError("a reason is required to reject a refund")
	}
	r, err := e.API.GetRefund(ctx, id)
	if err != nil {
		return domain.Refund{}, err
	}
	if err := ensureTransition(status.KindRefund, r.Status, to); err != nil {
		return domain.Refund{}, err
	}
	var updated domain.Refund
	switch action {
	case status.RefundApprove:
		updated, err = e.API.ApproveRefund(ctx, id)
	case status.RefundReject:
		updated, err = e.API.RejectRefund(ctx, id, reason)
	case status.RefundProcess:
		updated, err = e.API.ProcessRefund(ctx, id)
	}
	if err != nil {
		return domain.Refund{}, err
	}
	payload := events.EventPayload{"from": r.Status, "to": to}
	if reason != "" {
		payload["reason"] = reason
	}
	e.record(ctx, "refund."+string(action), status.KindRefund, id, actorID, payload)
	return updated, nil
}
