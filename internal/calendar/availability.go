package calendar

import (
	"errors"
	"fmt"
	"sort"

	"tourdesk/internal/money"
)

type Status string

const (
	Available   Status = "available"
	Blocked     Status = "blocked"
	Maintenance Status = "maintenance"
)

func (s Status) Valid() bool {
	switch s {
	case Available, Blocked, Maintenance:
		return true
	}
	return false
}

var ErrInvalidOverride = errors.New("invalid availability override")

// Override is what a resource does differently on one date.
type Override struct {
	Status        Status       `json:"status"`
	PriceOverride *money.Cents `json:"price_override_cents,omitempty"`
	MinStay       *int         `json:"min_stay,omitempty"`
	MaxStay       *int         `json:"max_stay,omitempty"`
}

func (o Override) Validate() error {
	if !o.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidOverride, o.Status)
	}
	if o.PriceOverride != nil && *o.PriceOverride < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidOverride)
	}
	if o.MinStay != nil && *o.MinStay < 1 {
		return fmt.Errorf("%w: min_stay must be at least 1", ErrInvalidOverride)
	}
	if o.MaxStay != nil && *o.MaxStay < 1 {
		return fmt.Errorf("%w: max_stay must be at least 1", ErrInvalidOverride)
	}
	if o.MinStay != nil && o.MaxStay != nil && *o.MinStay > *o.MaxStay {
		return fmt.Errorf("%w: min_stay exceeds max_stay", ErrInvalidOverride)
	}
	return nil
}

func (o Override) clone() Override {
	out := Override{Status: o.Status}
	if o.PriceOverride != nil {
		v := *o.PriceOverride
		out.PriceOverride = &v
	}
	if o.MinStay != nil {
		v := *o.MinStay
		out.MinStay = &v
	}
	if o.MaxStay != nil {
		v := *o.MaxStay
		out.MaxStay = &v
	}
	return out
}

// Overrides is keyed by YYYY-MM-DD. Absent dates use the resource defaults.
type Overrides map[string]Override

// Base is the resource default for dates without an override.
type Base struct {
	Price  money.Cents `json:"price_cents"`
	Status Status      `json:"status"`
}

type DayView struct {
	Cell
	Status     Status      `json:"status"`
	Price      money.Cents `json:"price_cents"`
	MinStay    *int        `json:"min_stay,omitempty"`
	MaxStay    *int        `json:"max_stay,omitempty"`
	Overridden bool        `json:"overridden"`
}

// MergeAvailability resolves every grid cell against overrides.
func MergeAvailability(g Grid, overrides Overrides, base Base) []DayView {
	if base.Status == "" {
		base.Status = Available
	}
	out := make([]DayView, len(g))
	for i, c := range g {
		v := DayView{Cell: c, Status: base.Status, Price: base.Price}
		if o, ok := overrides[c.Date]; ok {
			v.Overridden = true
			if o.Status != "" {
				v.Status = o.Status
			}
			if o.PriceOverride != nil {
				v.Price = *o.PriceOverride
			}
			own := o.clone()
			v.MinStay = own.MinStay
			v.MaxStay = own.MaxStay
		}
		out[i] = v
	}
	return out
}

// BulkEdit gives every date its own copy of patch.
func BulkEdit(dates []string, patch Override) Overrides {
	out := make(Overrides, len(dates))
	for _, d := range dates {
		out[d] = patch.clone()
	}
	return out
}

// ApplyBulkEdit returns existing with the selected dates replaced by patch.
// Fields the patch leaves empty are cleared, not kept. existing is not
// modified.
func ApplyBulkEdit(existing Overrides, dates []string, patch Override) Overrides {
	out := make(Overrides, len(existing)+len(dates))
	for d, o := range existing {
		out[d] = o.clone()
	}
	for d, o := range BulkEdit(dates, patch) {
		out[d] = o
	}
	return out
}

// Dates returns the override keys in order.
func (o Overrides) Dates() []string {
	out := make([]string, 0, len(o))
	for d := range o {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
