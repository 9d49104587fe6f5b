package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"tourdesk/internal/calendar"
	"tourdesk/internal/money"
	"tourdesk/internal/transform"
)

var errInvalidForm = errors.New("invalid form")

type statusForm struct {
	Status string `validate:"required,max=32"`
}

type refundForm struct {
	Action string `validate:"required,oneof=approve reject process"`
	Reason string `validate:"max=500"`
}

type quoteForm struct {
	PackageID    string `validate:"required"`
	Tier         string `validate:"max=100"`
	Participants int    `validate:"min=1,max=1000"`
}

type mediaMoveForm struct {
	From int `validate:"min=0"`
	To   int `validate:"min=0"`
}

type bulkEditForm struct {
	From    string `validate:"required,datetime=2006-01-02"`
	To      string `validate:"omitempty,datetime=2006-01-02"`
	Status  string `validate:"required,oneof=available blocked maintenance"`
	Price   string `validate:"omitempty,numeric"`
	MinStay int    `validate:"min=0,max=365"`
	MaxStay int    `validate:"min=0,max=365"`
}

type lineForm struct {
	Description string `validate:"max=200"`
	Category    string `validate:"max=64"`
	Quantity    int64  `validate:"min=0"`
	UnitPrice   string `validate:"required,numeric"`
	Discount    string `validate:"omitempty,numeric"`
}

type tierForm struct {
	Name            string `validate:"required,max=100"`
	Price           string `validate:"required,numeric"`
	MinParticipants int    `validate:"min=0"`
	MaxParticipants int    `validate:"min=0"`
}

type slotForm struct {
	StartTime string `validate:"required,datetime=15:04"`
	EndTime   string `validate:"required,datetime=15:04"`
	Capacity  int    `validate:"min=0"`
}

type packageForm struct {
	ID                  string
	ActivityID          string `validate:"required_without=ID"`
	Name                string `validate:"required,max=200"`
	Description         string `validate:"max=5000"`
	BasePrice           string `validate:"required,numeric"`
	Currency            string `validate:"omitempty,len=3,uppercase"`
	DurationMinutes     int    `validate:"min=0"`
	MaxParticipants     int    `validate:"min=0"`
	SortOrder           int    `validate:"min=0"`
	IsActive            bool
	Inclusions          []string
	Exclusions          []string
	RequiresTimeSlot    bool
	AdvanceBookingDays  int `validate:"min=0"`
	AllowSameDayBooking bool
	Tiers               []tierForm `validate:"dive"`
	Slots               []slotForm `validate:"dive"`
}

// check runs the struct validator and flattens its complaints into one
// readable sentence.
func (p *Portal) check(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", errInvalidForm, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "numeric":
		return field + " must be a number"
	case "datetime":
		return fmt.Sprintf("%s must look like %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func formInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number", errInvalidForm, key)
	}
	return n, nil
}

func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.PostFormValue(key))) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// formLines splits a textarea into trimmed, non-empty lines.
func formLines(r *http.Request, key string) []string {
	out := []string{}
	for _, line := range strings.Split(r.PostFormValue(key), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// column returns the i-th value of a repeated form field.
func column(r *http.Request, key string, i int) string {
	vals := r.PostForm[key]
	if i < len(vals) {
		return strings.TrimSpace(vals[i])
	}
	return ""
}

func parseStatusForm(r *http.Request) (statusForm, error) {
	if err := r.ParseForm(); err != nil {
		return statusForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return statusForm{Status: strings.TrimSpace(r.PostFormValue("status"))}, nil
}

func parseRefundForm(r *http.Request) (refundForm, error) {
	if err := r.ParseForm(); err != nil {
		return refundForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return refundForm{
		Action: strings.TrimSpace(r.PostFormValue("action")),
		Reason: strings.TrimSpace(r.PostFormValue("reason")),
	}, nil
}

func parseQuoteForm(r *http.Request) (quoteForm, error) {
	if err := r.ParseForm(); err != nil {
		return quoteForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	n, err := formInt(r, "participants")
	if err != nil {
		return quoteForm{}, err
	}
	return quoteForm{
		PackageID:    strings.TrimSpace(r.PostFormValue("package_id")),
		Tier:         strings.TrimSpace(r.PostFormValue("tier")),
		Participants: n,
	}, nil
}

func parseMediaMoveForm(r *http.Request) (mediaMoveForm, error) {
	if err := r.ParseForm(); err != nil {
		return mediaMoveForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	from, err := formInt(r, "from")
	if err != nil {
		return mediaMoveForm{}, err
	}
	to, err := formInt(r, "to")
	if err != nil {
		return mediaMoveForm{}, err
	}
	return mediaMoveForm{From: from, To: to}, nil
}

func parseBulkEditForm(r *http.Request) (bulkEditForm, error) {
	if err := r.ParseForm(); err != nil {
		return bulkEditForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	minStay, err := formInt(r, "min_stay")
	if err != nil {
		return bulkEditForm{}, err
	}
	maxStay, err := formInt(r, "max_stay")
	if err != nil {
		return bulkEditForm{}, err
	}
	return bulkEditForm{
		From:    strings.TrimSpace(r.PostFormValue("from")),
		To:      strings.TrimSpace(r.PostFormValue("to")),
		Status:  strings.TrimSpace(r.PostFormValue("status")),
		Price:   strings.TrimSpace(r.PostFormValue("price")),
		MinStay: minStay,
		MaxStay: maxStay,
	}, nil
}

// override converts the form into the patch written to every selected date.
// Zero stays and an empty price mean "not set".
func (f bulkEditForm) override() (calendar.Override, error) {
	o := calendar.Override{Status: calendar.Status(f.Status)}
	if f.Price != "" {
		c, err := money.ParseCents(f.Price)
		if err != nil {
			return calendar.Override{}, fmt.Errorf("%w: price: %v", errInvalidForm, err)
		}
		o.PriceOverride = &c
	}
	if f.MinStay > 0 {
		v := f.MinStay
		o.MinStay = &v
	}
	if f.MaxStay > 0 {
		v := f.MaxStay
		o.MaxStay = &v
	}
	return o, nil
}

// dates expands the from/to range; a missing end selects a single day.
func (f bulkEditForm) dates() ([]string, error) {
	to := f.To
	if to == "" {
		to = f.From
	}
	dates, err := calendar.SelectRange(f.From, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return dates, nil
}

// parseLineForms reads the repeated description/quantity/unit_price/discount
// columns of the invoice editor. Rows with every cell blank are dropped.
func parseLineForms(r *http.Request) ([]lineForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	rows := len(r.PostForm["unit_price"])
	if n := len(r.PostForm["description"]); n > rows {
		rows = n
	}
	out := []lineForm{}
	for i := 0; i < rows; i++ {
		f := lineForm{
			Description: column(r, "description", i),
			Category:    column(r, "category", i),
			UnitPrice:   column(r, "unit_price", i),
			Discount:    column(r, "discount", i),
		}
		qty := column(r, "quantity", i)
		if f.Description == "" && f.UnitPrice == "" && qty == "" {
			continue
		}
		if qty != "" {
			n, err := strconv.ParseInt(qty, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: quantity must be a whole number", errInvalidForm, i+1)
			}
			f.Quantity = n
		}
		out = append(out, f)
	}
	return out, nil
}

func (f lineForm) lineItem() (money.LineItem, error) {
	price, err := money.ParseCents(f.UnitPrice)
	if err != nil {
		return money.LineItem{}, fmt.Errorf("%w: unit price: %v", errInvalidForm, err)
	}
	discount, err := money.ParsePercent(f.Discount)
	if err != nil {
		return money.LineItem{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return money.LineItem{
		Description: f.Description,
		Category:    f.Category,
		Quantity:    f.Quantity,
		UnitPrice:   price,
		Discount:    discount,
	}, nil
}

func parsePackageForm(r *http.Request) (packageForm, error) {
	if err := r.ParseForm(); err != nil {
		return packageForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	f := packageForm{
		ID:                  strings.TrimSpace(r.PostFormValue("id")),
		ActivityID:          strings.TrimSpace(r.PostFormValue("activity_id")),
		Name:                strings.TrimSpace(r.PostFormValue("name")),
		Description:         strings.TrimSpace(r.PostFormValue("description")),
		BasePrice:           strings.TrimSpace(r.PostFormValue("base_price")),
		Currency:            strings.TrimSpace(r.PostFormValue("currency")),
		IsActive:            formBool(r, "is_active"),
		Inclusions:          formLines(r, "inclusions"),
		Exclusions:          formLines(r, "exclusions"),
		RequiresTimeSlot:    formBool(r, "requires_time_slot"),
		AllowSameDayBooking: formBool(r, "allow_same_day_booking"),
	}
	var err error
	for key, dst := range map[string]*int{
		"duration_minutes":     &f.DurationMinutes,
		"max_participants":     &f.MaxParticipants,
		"sort_order":           &f.SortOrder,
		"advance_booking_days": &f.AdvanceBookingDays,
	} {
		if *dst, err = formInt(r, key); err != nil {
			return packageForm{}, err
		}
	}
	for i := range r.PostForm["tier_name"] {
		t := tierForm{Name: column(r, "tier_name", i), Price: column(r, "tier_price", i)}
		if t.Name == "" && t.Price == "" {
			continue
		}
		if t.MinParticipants, err = atoiOrZero(column(r, "tier_min", i)); err != nil {
			return packageForm{}, err
		}
		if t.MaxParticipants, err = atoiOrZero(column(r, "tier_max", i)); err != nil {
			return packageForm{}, err
		}
		f.Tiers = append(f.Tiers, t)
	}
	for i := range r.PostForm["slot_start"] {
		s := slotForm{StartTime: column(r, "slot_start", i), EndTime: column(r, "slot_end", i)}
		if s.StartTime == "" && s.EndTime == "" {
			continue
		}
		if s.Capacity, err = atoiOrZero(column(r, "slot_capacity", i)); err != nil {
			return packageForm{}, err
		}
		f.Slots = append(f.Slots, s)
	}
	return f, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", errInvalidForm, s)
	}
	return n, nil
}

// apply copies the form onto base so fields the editor does not show, and
// unknown backend keys, survive the save.
func (f packageForm) apply(base transform.Package) (transform.Package, error) {
	price, err := money.ParseCents(f.BasePrice)
	if err != nil {
		return transform.Package{}, fmt.Errorf("%w: base price: %v", errInvalidForm, err)
	}
	p := base
	p.ID = f.ID
	if f.ActivityID != "" {
		p.ActivityID = f.ActivityID
	}
	p.Name = f.Name
	p.Description = f.Description
	p.BasePrice = price
	if f.Currency != "" {
		p.Currency = f.Currency
	}
	if p.Currency == "" {
		p.Currency = transform.DefaultCurrency
	}
	p.DurationMinutes = f.DurationMinutes
	p.MaxParticipants = f.MaxParticipants
	p.SortOrder = f.SortOrder
	p.IsActive = f.IsActive
	p.Options.Inclusions = f.Inclusions
	p.Options.Exclusions = f.Exclusions
	p.Options.PricingTiers = make([]transform.PricingTier, 0, len(f.Tiers))
	for _, t := range f.Tiers {
		tp, err := money.ParseCents(t.Price)
		if err != nil {
			return transform.Package{}, fmt.Errorf("%w: tier %s price: %v", errInvalidForm, t.Name, err)
		}
		p.Options.PricingTiers = append(p.Options.PricingTiers, transform.PricingTier{
			Name:            t.Name,
			Price:           tp,
			MinParticipants: t.MinParticipants,
			MaxParticipants: t.MaxParticipants,
		})
	}
	p.Options.BookingOptions.RequiresTimeSlot = f.RequiresTimeSlot
	p.Options.BookingOptions.AdvanceBookingDays = f.AdvanceBookingDays
	p.Options.BookingOptions.AllowSameDayBooking = f.AllowSameDayBooking
	p.Options.BookingOptions.TimeSlots = make([]transform.TimeSlot, 0, len(f.Slots))
	for _, s := range f.Slots {
		p.Options.BookingOptions.TimeSlots = append(p.Options.BookingOptions.TimeSlots, transform.TimeSlot{
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Capacity:  s.Capacity,
		})
	}
	return p, nil
}
