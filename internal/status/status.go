// Package status holds the fixed transition tables the portal offers as
// one-click actions. The tables are UI affordances: the backend still decides
// whether a transition is legal.
package status

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Status string

func (s Status) String() string { return string(s) }

// Kind names an entity type that owns a transition table.
type Kind string

const (
	KindBooking  Kind = "booking"
	KindRefund   Kind = "refund"
	KindDiscount Kind = "discount"
	KindInvoice  Kind = "invoice"
	KindPayment  Kind = "payment"
)

const (
	BookingPending    Status = "pending"
	BookingConfirmed  Status = "confirmed"
	BookingCheckedIn  Status = "checked_in"
	BookingCheckedOut Status = "checked_out"
	BookingCancelled  Status = "cancelled"
	BookingNoShow     Status = "no_show"
)

const (
	RefundPending   Status = "pending"
	RefundApproved  Status = "approved"
	RefundRejected  Status = "rejected"
	RefundCompleted Status = "completed"
)

const (
	DiscountDraft    Status = "draft"
	DiscountActive   Status = "active"
	DiscountExpired  Status = "expired"
	DiscountArchived Status = "archived"
)

const (
	InvoiceDraft     Status = "draft"
	InvoiceSent      Status = "sent"
	InvoicePaid      Status = "paid"
	InvoiceOverdue   Status = "overdue"
	InvoiceCancelled Status = "cancelled"
)

const (
	PaymentPending   Status = "pending"
	PaymentCompleted Status = "completed"
	PaymentFailed    Status = "failed"
	PaymentRefunded  Status = "refunded"
)

// Graph maps a status to the ordered statuses reachable in one step.
// Order is the button order on screen.
type Graph map[Status][]Status

var (
	Bookings = Graph{
		BookingPending:    {BookingConfirmed, BookingCancelled},
		BookingConfirmed:  {BookingCheckedIn, BookingCancelled, BookingNoShow},
		BookingCheckedIn:  {BookingCheckedOut},
		BookingCheckedOut: {},
		BookingCancelled:  {},
		BookingNoShow:     {},
	}
	Refunds = Graph{
		RefundPending:   {RefundApproved, RefundRejected},
		RefundApproved:  {RefundCompleted},
		RefundRejected:  {},
		RefundCompleted: {},
	}
	Discounts = Graph{
		DiscountDraft:    {DiscountActive, DiscountArchived},
		DiscountActive:   {DiscountExpired, DiscountArchived},
		DiscountExpired:  {DiscountArchived},
		DiscountArchived: {},
	}
	Invoices = Graph{
		InvoiceDraft:     {InvoiceSent, InvoiceCancelled},
		InvoiceSent:      {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
		InvoiceOverdue:   {InvoicePaid, InvoiceCancelled},
		InvoicePaid:      {},
		InvoiceCancelled: {},
	}
	Payments = Graph{
		PaymentPending:   {PaymentCompleted, PaymentFailed},
		PaymentCompleted: {PaymentRefunded},
		PaymentFailed:    {},
		PaymentRefunded:  {},
	}
)

var graphs = map[Kind]Graph{
	KindBooking:  Bookings,
	KindRefund:   Refunds,
	KindDiscount: Discounts,
	KindInvoice:  Invoices,
	KindPayment:  Payments,
}

// Kinds lists every entity kind with a table, sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(graphs))
	for k := range graphs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForKind returns the table for kind.
func ForKind(kind Kind) (Graph, bool) {
	g, ok := graphs[Kind(strings.ToLower(string(kind)))]
	return g, ok
}

// Next returns a copy of the statuses offered after current. Unknown
// statuses yield an empty, non-nil slice.
func (g Graph) Next(current Status) []Status {
	next := g[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Allows reports whether to is offered from from.
func (g Graph) Allows(from, to Status) bool {
	for _, s := range g[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a known status with no way out.
func (g Graph) IsTerminal(s Status) bool {
	next, ok := g[s]
	return ok && len(next) == 0
}

// Statuses returns every status the table knows, sorted.
func (g Graph) Statuses() []Status {
	out := make([]Status, 0, len(g))
	for s := range g {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks that every target is a known status and that no status can
// reach itself.
func (g Graph) Validate() error {
	for from, next := range g {
		for _, to := range next {
			if _, ok := g[to]; !ok {
				return fmt.Errorf("status %s -> %s: unknown target", from, to)
			}
		}
	}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Status]int, len(g))
	var visit func(Status) error
	visit = func(s Status) error {
		switch state[s] {
		case visiting:
			return fmt.Errorf("status %s is reachable from itself", s)
		case done:
			return nil
		}
		state[s] = visiting
		for _, to := range g[s] {
			if err := visit(to); err != nil {
				return err
			}
		}
		state[s] = done
		return nil
	}
	for _, s := range g.Statuses() {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

// Next looks up the table for kind; unknown kinds yield an empty slice.
func Next(kind Kind, current Status) []Status {
	g, ok := ForKind(kind)
	if !ok {
		return []Status{}
	}
	return g.Next(current)
}

func NextBookingStatuses(current Status) []Status { return Bookings.Next(current) }

func CanApproveRefund(current Status) bool { return Refunds.Allows(current, RefundApproved) }

func CanRejectRefund(current Status) bool { return Refunds.Allows(current, RefundRejected) }

func CanProcessRefund(current Status) bool { return Refunds.Allows(current, RefundCompleted) }

// RefundAction is the verb shown on a refund button.
type RefundAction string

const (
	RefundApprove RefundAction = "approve"
	RefundReject  RefundAction = "reject"
	RefundProcess RefundAction = "process"
)

// Target returns the status a refund action leads to.
func (a RefundAction) Target() (Status, bool) {
	switch a {
	case RefundApprove:
		return RefundApproved, true
	case RefundReject:
		return RefundRejected, true
	case RefundProcess:
		return RefundCompleted, true
	}
	return "", false
}

// RefundActions lists the actions available for a refund in current.
func RefundActions(current Status) []RefundAction {
	var out []RefundAction
	for _, a := range []RefundAction{RefundApprove, RefundReject, RefundProcess} {
		to, _ := a.Target()
		if Refunds.Allows(current, to) {
			out = append(out, a)
		}
	}
	return out
}

var actionLabels = map[Status]string{
	BookingConfirmed:  "Confirm",
	BookingCheckedIn:  "Check in",
	BookingCheckedOut: "Check out",
	BookingCancelled:  "Cancel",
	BookingNoShow:     "Mark no-show",
	InvoiceSent:       "Send",
	InvoicePaid:       "Mark paid",
	InvoiceOverdue:    "Mark overdue",
	DiscountActive:    "Activate",
	DiscountExpired:   "Expire",
	DiscountArchived:  "Archive",
}

// Label is the button caption for moving into s.
func Label(s Status) string {
	if l, ok := actionLabels[s]; ok {
		return l
	}
	// Casers carry state; one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}
