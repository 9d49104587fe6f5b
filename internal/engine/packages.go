package engine

import (
	"context"
	"strings"

	"tourdesk/internal/events"
	"tourdesk/internal/money"
	"tourdesk/internal/transform"
)

func (e Engine) PackageView(ctx context.Context, id string) (transform.Package, error) {
	return e.API.GetPackage(ctx, id)
}

// ValidatePackage checks the fields a vendor can get wrong in the editor.
func ValidatePackage(p transform.Package) error {
	if strings.TrimSpace(p.Name) == "" {
		return validationError("package name is required")
	}
	if p.ActivityID == "" && p.ID == "" {
		return validationError("package must belong to an activity")
	}
	if p.BasePrice < 0 {
		return validationError("base price must not be negative")
	}
	if p.MaxParticipants < 0 || p.DurationMinutes < 0 {
		return validationError("duration and capacity must not be negative")
	}
	seen := map[string]bool{}
	for _, t := range p.Options.PricingTiers {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return validationError("pricing tier name is required")
		}
		if seen[name] {
			return validationError("duplicate pricing tier %q", name)
		}
		seen[name] = true
		if t.Price < 0 {
			return validationError("tier %q has a negative price", name)
		}
		if t.MinParticipants < 0 || (t.MaxParticipants > 0 && t.MinParticipants > t.MaxParticipants) {
			return validationError("tier %q has an invalid participant range", name)
		}
	}
	bo := p.Options.BookingOptions
	if bo.AdvanceBookingDays < 0 {
		return validationError("advance booking days must not be negative")
	}
	if bo.RequiresTimeSlot && len(bo.TimeSlots) == 0 {
		return validationError("at least one time slot is required")
	}
	for _, s := range bo.TimeSlots {
		if s.StartTime == "" || s.EndTime == "" || s.EndTime <= s.StartTime {
			return validationError("time slot %s-%s is invalid", s.StartTime, s.EndTime)
		}
		if s.Capacity < 0 {
			return validationError("time slot %s has negative capacity", s.StartTime)
		}
	}
	return nil
}

func (e Engine) SavePackage(ctx context.Context, p transform.Package, actorID string) (transform.Package, error) {
	if err := ValidatePackage(p); err != nil {
		return transform.Package{}, err
	}
	created := p.ID == ""
	saved, err := e.API.SavePackage(ctx, p)
	if err != nil {
		return transform.Package{}, err
	}
	evtType := "package.update"
	if created {
		evtType = "package.create"
	}
	e.record(ctx, evtType, "package", saved.ID, actorID, events.EventPayload{
		"activity_id": saved.ActivityID,
		"name":        saved.Name,
	})
	return saved, nil
}

type Quote struct {
	Package      transform.Package `json:"-"`
	Tier         string            `json:"tier,omitempty"`
	Participants int               `json:"participants"`
	UnitPrice    money.Cents       `json:"unit_price_cents"`
	Currency     string            `json:"currency"`
	Totals       money.Totals      `json:"totals"`
}

// QuotePackage prices a booking as a one-line invoice. An empty tier uses
// the package base price.
func (e Engine) QuotePackage(p transform.Package, tierName string, participants int) (Quote, error) {
	if participants < 1 {
		return Quote{}, validationError("at least one participant is required")
	}
	if p.MaxParticipants > 0 && participants > p.MaxParticipants {
		return Quote{}, validationError("this package takes at most %d participants", p.MaxParticipants)
	}
	unit := p.BasePrice
	if tierName != "" {
		tier, ok := p.Tier(tierName)
		if !ok {
			return Quote{}, validationError("unknown pricing tier %q", tierName)
		}
		if participants < tier.MinParticipants || (tier.MaxParticipants > 0 && participants > tier.MaxParticipants) {
			return Quote{}, validationError("tier %q is for %d-%d participants", tier.Name, tier.MinParticipants, tier.MaxParticipants)
		}
		unit = tier.Price
	}
	line, err := money.NewLineItem(p.Name, int64(participants), unit, money.ZeroPercent)
	if err != nil {
		return Quote{}, validationError("%v", err)
	}
	return Quote{
		Package:      p,
		Tier:         tierName,
		Participants: participants,
		UnitPrice:    unit,
		Currency:     p.Currency,
		Totals:       e.Totals([]money.LineItem{line}),
	}, nil
}

// ReorderMedia moves one item and stores the renumbered list.
func (e Engine) ReorderMedia(ctx context.Context, activityID string, from, to int, actorID string) ([]transform.MediaItem, error) {
	items, err := e.API.ListMedia(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if from < 0 || from >= len(items) {
		return nil, validationError("no media item at position %d", from)
	}
	moved := transform.MoveMedia(items, from, to)
	if err := e.API.ReorderMedia(ctx, activityID, moved); err != nil {
		return nil, err
	}
	e.record(ctx, "media.reorder", "activity", activityID, actorID, events.EventPayload{"from": from, "to": to})
	return moved, nil
}
