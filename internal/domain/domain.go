package domain

import (
	"tourdesk/internal/calendar"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
)

type Activity struct {
	ID          string `json:"id"`
	VendorID    string `json:"vendor_id,omitempty"`
	Title       string `json:"title"`
	Slug        string `json:"slug,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
	Currency    string `json:"currency,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

type Booking struct {
	ID            string        `json:"id"`
	ActivityID    string        `json:"activity_id"`
	PackageID     string        `json:"package_id,omitempty"`
	VendorID      string        `json:"vendor_id,omitempty"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	Date          string        `json:"date" format:"date"`
	TimeSlot      string        `json:"time_slot,omitempty"`
	Participants  int           `json:"participants"`
	TotalCents    money.Cents   `json:"total_cents"`
	Currency      string        `json:"currency,omitempty"`
	Status        status.Status `json:"status" enum:"pending,confirmed,checked_in,checked_out,cancelled,no_show"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     string        `json:"created_at,omitempty" format:"date-time"`
}

type Invoice struct {
	ID        string           `json:"id"`
	BookingID string           `json:"booking_id,omitempty"`
	VendorID  string           `json:"vendor_id,omitempty"`
	Number    string           `json:"number"`
	Customer  string           `json:"customer,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	Status    status.Status    `json:"status" enum:"draft,sent,paid,overdue,cancelled"`
	IssuedAt  string           `json:"issued_at,omitempty" format:"date"`
	DueAt     string           `json:"due_at,omitempty" format:"date"`
	Lines     []money.LineItem `json:"lines"`
	Totals    *money.Totals    `json:"totals,omitempty"`
}

type Payment struct {
	ID          string        `json:"id"`
	InvoiceID   string        `json:"invoice_id"`
	AmountCents money.Cents   `json:"amount_cents"`
	Method      string        `json:"method,omitempty"`
	Reference   string        `json:"reference,omitempty"`
	Status      status.Status `json:"status" enum:"pending,completed,failed,refunded"`
	PaidAt      string        `json:"paid_at,omitempty" format:"date-time"`
}

type Refund struct {
	ID              string        `json:"id"`
	BookingID       string        `json:"booking_id"`
	PaymentID       string        `json:"payment_id,omitempty"`
	AmountCents     money.Cents   `json:"amount_cents"`
	Reason          string        `json:"reason,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	Status          status.Status `json:"status" enum:"pending,approved,rejected,completed"`
	CreatedAt       string        `json:"created_at,omitempty" format:"date-time"`
	ProcessedAt     string        `json:"processed_at,omitempty" format:"date-time"`
}

type Discount struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	Description string        `json:"description,omitempty"`
	Percent     money.Percent `json:"percent_bp"`
	ValidFrom   string        `json:"valid_from,omitempty" format:"date"`
	ValidTo     string        `json:"valid_to,omitempty" format:"date"`
	MaxUses     int           `json:"max_uses,omitempty"`
	Uses        int           `json:"uses"`
	Status      status.Status `json:"status" enum:"draft,active,expired,archived"`
}

// Resource is a bookable unit (boat, room, guide) with a daily calendar.
type Resource struct {
	ID            string          `json:"id"`
	ActivityID    string          `json:"activity_id,omitempty"`
	Name          string          `json:"name"`
	Kind          string          `json:"kind,omitempty"`
	Capacity      int             `json:"capacity,omitempty"`
	BasePrice     money.Cents     `json:"base_price_cents"`
	DefaultStatus calendar.Status `json:"default_status,omitempty"`
}

func (r Resource) Base() calendar.Base {
	return calendar.Base{Price: r.BasePrice, Status: r.DefaultStatus}
}

// Event is one row of the local activity log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Page is a list response from the backend.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total,omitempty"`
}
