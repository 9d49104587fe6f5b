package status

import (
	"reflect"
	"testing"
)

func TestNextBookingStatusesKeepsButtonOrder(t *testing.T) {
	got := NextBookingStatuses(BookingPending)
	want := []Status{BookingConfirmed, BookingCancelled}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pending: got %v want %v", got, want)
	}
	got = NextBookingStatuses(BookingConfirmed)
	want = []Status{BookingCheckedIn, BookingCancelled, BookingNoShow}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("confirmed: got %v want %v", got, want)
	}
	if got := NextBookingStatuses(BookingCheckedOut); len(got) != 0 || got == nil {
		t.Fatalf("checked_out should map to an empty non-nil slice, got %#v", got)
	}
}

func TestUnknownStatusIsEmpty(t *testing.T) {
	if got := Bookings.Next("teleported"); len(got) != 0 {
		t.Fatalf("expected no transitions, got %v", got)
	}
	if got := Next("spaceship", BookingPending); len(got) != 0 {
		t.Fatalf("expected no transitions for unknown kind, got %v", got)
	}
}

func TestNextReturnsCopy(t *testing.T) {
	got := Bookings.Next(BookingPending)
	got[0] = BookingNoShow
	if Bookings[BookingPending][0] != BookingConfirmed {
		t.Fatalf("table mutated through returned slice")
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, kind := range Kinds() {
		g, _ := ForKind(kind)
		for _, s := range g.Statuses() {
			if g.IsTerminal(s) && len(g.Next(s)) != 0 {
				t.Fatalf("%s %s is terminal but offers %v", kind, s, g.Next(s))
			}
		}
	}
	for _, s := range []Status{BookingCheckedOut, BookingCancelled, BookingNoShow} {
		if !Bookings.IsTerminal(s) {
			t.Fatalf("booking %s should be terminal", s)
		}
	}
	for _, s := range []Status{RefundRejected, RefundCompleted} {
		if !Refunds.IsTerminal(s) {
			t.Fatalf("refund %s should be terminal", s)
		}
	}
	if Bookings.IsTerminal("unknown") {
		t.Fatalf("unknown status must not be reported terminal")
	}
}

func TestTablesAreAcyclic(t *testing.T) {
	for _, kind := range Kinds() {
		g, _ := ForKind(kind)
		if err := g.Validate(); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
	cyclic := Graph{"a": {"b"}, "b": {"a"}}
	if err := cyclic.Validate(); err == nil {
		t.Fatalf("expected cycle error")
	}
	dangling := Graph{"a": {"b"}}
	if err := dangling.Validate(); err == nil {
		t.Fatalf("expected unknown target error")
	}
}

func TestRefundHelpers(t *testing.T) {
	if !CanApproveRefund(RefundPending) || !CanRejectRefund(RefundPending) {
		t.Fatalf("pending refunds can be approved or rejected")
	}
	if CanProcessRefund(RefundPending) {
		t.Fatalf("pending refunds cannot be processed")
	}
	if !CanProcessRefund(RefundApproved) || CanApproveRefund(RefundApproved) {
		t.Fatalf("approved refunds can only be processed")
	}
	if got := RefundActions(RefundCompleted); len(got) != 0 {
		t.Fatalf("completed refund offers %v", got)
	}
	if got := RefundActions(RefundPending); !reflect.DeepEqual(got, []RefundAction{RefundApprove, RefundReject}) {
		t.Fatalf("pending refund actions: %v", got)
	}
	if _, ok := RefundAction("refund-twice").Target(); ok {
		t.Fatalf("unknown action should have no target")
	}
}

func TestForKindIsCaseInsensitive(t *testing.T) {
	if _, ok := ForKind("Booking"); !ok {
		t.Fatalf("expected booking table")
	}
}

func TestLabel(t *testing.T) {
	if got := Label(BookingNoShow); got != "Mark no-show" {
		t.Fatalf("label: %q", got)
	}
	if got := Label(RefundApproved); got != "Approved" {
		t.Fatalf("fallback label: %q", got)
	}
}
