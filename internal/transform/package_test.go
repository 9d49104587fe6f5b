package transform

import (
	"encoding/json"
	"reflect"
	"testing"
)

func samplePackage() Package {
	return Package{
		ID:              "pkg-1",
		ActivityID:      "act-9",
		Name:            "Sunset kayak",
		Description:     "Two hours on the bay",
		BasePrice:       8950,
		Currency:        "EUR",
		DurationMinutes: 120,
		MaxParticipants: 12,
		IsActive:        false,
		SortOrder:       3,
		Options: OptionsConfig{
			PricingTiers: []PricingTier{
				{Name: "Adult", Price: 8950, MinParticipants: 1, MaxParticipants: 10},
				{Name: "Child", Price: 4500, MinParticipants: 0, MaxParticipants: 4},
			},
			Inclusions: []string{"Paddle", "Life vest"},
			Exclusions: []string{},
			BookingOptions: BookingOptions{
				RequiresTimeSlot:    true,
				AdvanceBookingDays:  2,
				AllowSameDayBooking: false,
				TimeSlots: []TimeSlot{
					{StartTime: "17:00", EndTime: "19:00", Capacity: 12},
				},
			},
			Extra: map[string]any{"cancellationPolicy": "flexible"},
		},
		Extra: map[string]any{"created_at": "2024-01-01T00:00:00Z"},
	}
}

func TestPackageRoundTrip(t *testing.T) {
	p := samplePackage()
	got := PackageFromBackend(PackageToBackend(p))
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, p)
	}
}

func TestPackageRoundTripThroughJSON(t *testing.T) {
	p := samplePackage()
	data, err := json.Marshal(PackageToBackend(p))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := PackageFromBackend(raw)
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("json round trip mismatch:\n got %#v\nwant %#v", got, p)
	}
}

func TestPackageDefaults(t *testing.T) {
	p := PackageFromBackend(Record{})
	if p.Currency != DefaultCurrency || !p.IsActive {
		t.Fatalf("defaults: %+v", p)
	}
	if p.Options.PricingTiers == nil || p.Options.Inclusions == nil || p.Options.Exclusions == nil {
		t.Fatalf("slices should be empty, not nil: %+v", p.Options)
	}
	if !reflect.DeepEqual(p.Options.BookingOptions, DefaultBookingOptions()) {
		t.Fatalf("booking options: %+v", p.Options.BookingOptions)
	}
	if p.Extra != nil || p.Options.Extra != nil {
		t.Fatalf("no unknown keys expected")
	}
	if p := PackageFromBackend(nil); p.Currency != DefaultCurrency {
		t.Fatalf("nil record should default too")
	}
}

func TestPackageLenientInput(t *testing.T) {
	raw, err := DecodeRecord([]byte(`{
		"base_price": 12.5,
		"max_participants": "8",
		"is_active": "false",
		"options_config": "{\"pricingTiers\":[{\"name\":\"Group\",\"price\":\"99.90\",\"minParticipants\":4}],\"bookingOptions\":{\"advanceBookingDays\":3},\"theme\":\"blue\"}"
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := PackageFromBackend(raw)
	if p.BasePrice != 1250 || p.MaxParticipants != 8 || p.IsActive {
		t.Fatalf("scalars: %+v", p)
	}
	tier, ok := p.Tier("Group")
	if !ok || tier.Price != 9990 || tier.MinParticipants != 4 {
		t.Fatalf("tier: %+v %v", tier, ok)
	}
	bo := p.Options.BookingOptions
	if bo.AdvanceBookingDays != 3 || !bo.AllowSameDayBooking || bo.RequiresTimeSlot {
		t.Fatalf("partial booking options should keep defaults: %+v", bo)
	}
	if p.Options.Extra["theme"] != "blue" {
		t.Fatalf("unknown options key lost: %+v", p.Options.Extra)
	}
}

func TestPackageThreeDecimalPrices(t *testing.T) {
	raw, err := DecodeRecord([]byte(`{
		"base_price": "12.345",
		"options_config": {"pricingTiers": [{"name": "Group", "price": "49.990"}, {"name": "Solo", "price": 12.345}]}
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := PackageFromBackend(raw)
	if p.BasePrice != 1235 {
		t.Fatalf("base price: got %s", p.BasePrice)
	}
	group, _ := p.Tier("Group")
	solo, _ := p.Tier("Solo")
	if group.Price != 4999 || solo.Price != 1235 {
		t.Fatalf("tier prices: group %s solo %s", group.Price, solo.Price)
	}
	back := PackageToBackend(p)
	if back["base_price"] != "12.35" {
		t.Fatalf("written back as %v", back["base_price"])
	}
}

func TestPackageToBackendShape(t *testing.T) {
	out := PackageToBackend(samplePackage())
	if out["base_price"] != "89.50" {
		t.Fatalf("price: %#v", out["base_price"])
	}
	opts := out["options_config"].(Record)
	if _, ok := opts["bookingOptions"]; !ok {
		t.Fatalf("bookingOptions missing: %#v", opts)
	}
	if opts["cancellationPolicy"] != "flexible" || out["created_at"] == nil {
		t.Fatalf("unknown keys not written back")
	}
	if _, ok := PackageToBackend(Package{})["id"]; ok {
		t.Fatalf("new packages should not send an id")
	}
}
