package transform

import (
	"tourdesk/internal/money"
)

const DefaultCurrency = "USD"

type PricingTier struct {
	Name            string      `json:"name"`
	Price           money.Cents `json:"price_cents"`
	MinParticipants int         `json:"min_participants"`
	MaxParticipants int         `json:"max_participants"`
}

type TimeSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"capacity"`
}

type BookingOptions struct {
	RequiresTimeSlot    bool       `json:"requires_time_slot"`
	AdvanceBookingDays  int        `json:"advance_booking_days"`
	AllowSameDayBooking bool       `json:"allow_same_day_booking"`
	TimeSlots           []TimeSlot `json:"time_slots"`
}

// DefaultBookingOptions is used when the backend record has none.
func DefaultBookingOptions() BookingOptions {
	return BookingOptions{
		RequiresTimeSlot:    false,
		AdvanceBookingDays:  1,
		AllowSameDayBooking: true,
		TimeSlots:           []TimeSlot{},
	}
}

// OptionsConfig is the typed view of a package's options_config blob.
type OptionsConfig struct {
	PricingTiers   []PricingTier  `json:"pricing_tiers"`
	Inclusions     []string       `json:"inclusions"`
	Exclusions     []string       `json:"exclusions"`
	BookingOptions BookingOptions `json:"booking_options"`
	Extra          map[string]any `json:"extra,omitempty"`
}

type Package struct {
	ID              string         `json:"id"`
	ActivityID      string         `json:"activity_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	BasePrice       money.Cents    `json:"base_price_cents"`
	Currency        string         `json:"currency"`
	DurationMinutes int            `json:"duration_minutes"`
	MaxParticipants int            `json:"max_participants"`
	IsActive        bool           `json:"is_active"`
	SortOrder       int            `json:"sort_order"`
	Options         OptionsConfig  `json:"options"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Tier finds a pricing tier by name.
func (p Package) Tier(name string) (PricingTier, bool) {
	for _, t := range p.Options.PricingTiers {
		if t.Name == name {
			return t, true
		}
	}
	return PricingTier{}, false
}

var packageKeys = keys(
	"id", "activity_id", "name", "description", "base_price", "currency",
	"duration_minutes", "max_participants", "is_active", "sort_order", "options_config",
)

var optionsKeys = keys("pricingTiers", "inclusions", "exclusions", "bookingOptions")

// PackageFromBackend builds a Package from a stored record. options_config
// may be an object or a JSON-encoded string.
func PackageFromBackend(raw Record) Package {
	p := Package{
		ID:              readString(raw["id"]),
		ActivityID:      readString(raw["activity_id"]),
		Name:            readString(raw["name"]),
		Description:     readString(raw["description"]),
		BasePrice:       readCents(raw["base_price"]),
		Currency:        readString(raw["currency"]),
		DurationMinutes: readInt(raw["duration_minutes"], 0),
		MaxParticipants: readInt(raw["max_participants"], 0),
		IsActive:        readBool(raw["is_active"], true),
		SortOrder:       readInt(raw["sort_order"], 0),
		Extra:           extraFrom(raw, packageKeys),
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	opts, _ := readObject(raw["options_config"])
	p.Options = optionsFromBackend(opts)
	return p
}

func optionsFromBackend(raw Record) OptionsConfig {
	cfg := OptionsConfig{
		PricingTiers:   []PricingTier{},
		Inclusions:     readStrings(raw["inclusions"]),
		Exclusions:     readStrings(raw["exclusions"]),
		BookingOptions: DefaultBookingOptions(),
		Extra:          extraFrom(raw, optionsKeys),
	}
	for _, t := range readObjects(raw["pricingTiers"]) {
		cfg.PricingTiers = append(cfg.PricingTiers, PricingTier{
			Name:            readString(t["name"]),
			Price:           readCents(t["price"]),
			MinParticipants: readInt(t["minParticipants"], 0),
			MaxParticipants: readInt(t["maxParticipants"], 0),
		})
	}
	if bo, ok := readObject(raw["bookingOptions"]); ok {
		def := DefaultBookingOptions()
		cfg.BookingOptions = BookingOptions{
			RequiresTimeSlot:    readBool(bo["requiresTimeSlot"], def.RequiresTimeSlot),
			AdvanceBookingDays:  readInt(bo["advanceBookingDays"], def.AdvanceBookingDays),
			AllowSameDayBooking: readBool(bo["allowSameDayBooking"], def.AllowSameDayBooking),
			TimeSlots:           []TimeSlot{},
		}
		for _, s := range readObjects(bo["timeSlots"]) {
			cfg.BookingOptions.TimeSlots = append(cfg.BookingOptions.TimeSlots, TimeSlot{
				StartTime: readString(s["startTime"]),
				EndTime:   readString(s["endTime"]),
				Capacity:  readInt(s["capacity"], 0),
			})
		}
	}
	return cfg
}

// PackageToBackend renders p in the stored shape. Prices go out as decimal
// strings and unknown keys are written back as they came in.
func PackageToBackend(p Package) Record {
	out := Record{
		"name":             p.Name,
		"description":      p.Description,
		"base_price":       p.BasePrice.String(),
		"currency":         p.Currency,
		"duration_minutes": p.DurationMinutes,
		"max_participants": p.MaxParticipants,
		"is_active":        p.IsActive,
		"sort_order":       p.SortOrder,
		"options_config":   optionsToBackend(p.Options),
	}
	if p.ID != "" {
		out["id"] = p.ID
	}
	if p.ActivityID != "" {
		out["activity_id"] = p.ActivityID
	}
	if out["currency"] == "" {
		out["currency"] = DefaultCurrency
	}
	mergeExtra(out, p.Extra)
	return out
}

func optionsToBackend(cfg OptionsConfig) Record {
	tiers := make([]any, 0, len(cfg.PricingTiers))
	for _, t := range cfg.PricingTiers {
		tiers = append(tiers, map[string]any{
			"name":            t.Name,
			"price":           t.Price.String(),
			"minParticipants": t.MinParticipants,
			"maxParticipants": t.MaxParticipants,
		})
	}
	slots := make([]any, 0, len(cfg.BookingOptions.TimeSlots))
	for _, s := range cfg.BookingOptions.TimeSlots {
		slots = append(slots, map[string]any{
			"startTime": s.StartTime,
			"endTime":   s.EndTime,
			"capacity":  s.Capacity,
		})
	}
	out := Record{
		"pricingTiers": tiers,
		"inclusions":   stringsToAny(cfg.Inclusions),
		"exclusions":   stringsToAny(cfg.Exclusions),
		"bookingOptions": map[string]any{
			"requiresTimeSlot":    cfg.BookingOptions.RequiresTimeSlot,
			"advanceBookingDays":  cfg.BookingOptions.AdvanceBookingDays,
			"allowSameDayBooking": cfg.BookingOptions.AllowSameDayBooking,
			"timeSlots":           slots,
		},
	}
	mergeExtra(out, cfg.Extra)
	return out
}

func stringsToAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
