package portal

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/calendar"
	"tourdesk/internal/domain"
	"tourdesk/internal/engine"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

// actor identifies who pressed the button in the activity log.
func actor(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Actor-Id")); id != "" {
		return id
	}
	return role(r)
}

// filter scopes back-office lists. The vendor portal is always filtered by
// vendor_id when one is given.
func (p *Portal) filter(r *http.Request) apiclient.Filter {
	q := r.URL.Query()
	f := apiclient.Filter{
		VendorID: q.Get("vendor_id"),
		Status:   status.Status(q.Get("status")),
		Limit:    p.pageSize,
	}
	if off, err := strconv.Atoi(q.Get("offset")); err == nil && off > 0 {
		f.Offset = off
	}
	return f
}

// --- bookings ---

type bookingsView struct {
	Bookings []domain.Booking
	Filter   apiclient.Filter
	Statuses []status.Status
}

type bookingView struct {
	Booking domain.Booking
	Next    []status.Status
}

func (p *Portal) handleBookings(w http.ResponseWriter, r *http.Request) {
	f := p.filter(r)
	list, err := p.engine.API.ListBookings(r.Context(), f)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "bookings.html", p.page(r, "bookings", bookingsView{
		Bookings: list,
		Filter:   f,
		Statuses: status.Bookings.Statuses(),
	}))
}

func (p *Portal) handleBooking(w http.ResponseWriter, r *http.Request) {
	p.showBooking(w, r, http.StatusOK, "")
}

func (p *Portal) showBooking(w http.ResponseWriter, r *http.Request, code int, errMsg string) {
	b, err := p.engine.API.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	data := p.page(r, "bookings", bookingView{Booking: b, Next: status.NextBookingStatuses(b.Status)})
	data.Error = errMsg
	p.render(w, r, code, "booking.html", data)
}

func (p *Portal) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	form, err := parseStatusForm(r)
	if err == nil {
		err = p.check(form)
	}
	if err == nil {
		_, err = p.engine.TransitionBooking(r.Context(), id, status.Status(form.Status), actor(r))
	}
	if err != nil {
		p.showBooking(w, r, statusFor(err), userMessage(err))
		return
	}
	redirect(w, r, role(r)+"/bookings/"+id)
}

// --- refunds ---

type refundRow struct {
	Refund  domain.Refund
	Actions []status.RefundAction
}

type refundsView struct {
	Refunds []refundRow
	Filter  apiclient.Filter
}

func (p *Portal) handleRefunds(w http.ResponseWriter, r *http.Request) {
	p.showRefunds(w, r, http.StatusOK, "")
}

func (p *Portal) showRefunds(w http.ResponseWriter, r *http.Request, code int, errMsg string) {
	f := p.filter(r)
	list, err := p.engine.API.ListRefunds(r.Context(), f)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	v := refundsView{Refunds: make([]refundRow, 0, len(list)), Filter: f}
	for _, rf := range list {
		v.Refunds = append(v.Refunds, refundRow{Refund: rf, Actions: status.RefundActions(rf.Status)})
	}
	data := p.page(r, "refunds", v)
	data.Error = errMsg
	p.render(w, r, code, "refunds.html", data)
}

func (p *Portal) handleRefundDecision(w http.ResponseWriter, r *http.Request) {
	form, err := parseRefundForm(r)
	if err == nil {
		err = p.check(form)
	}
	if err == nil {
		_, err = p.engine.DecideRefund(r.Context(), chi.URLParam(r, "id"), status.RefundAction(form.Action), form.Reason, actor(r))
	}
	if err != nil {
		p.showRefunds(w, r, statusFor(err), userMessage(err))
		return
	}
	redirect(w, r, role(r)+"/refunds")
}

// --- invoices ---

type invoicesView struct {
	Invoices []domain.Invoice
	Filter   apiclient.Filter
}

type invoiceView struct {
	engine.InvoiceView
	// Lines is what the editor shows; it differs from the stored lines
	// while previewing.
	Lines   []money.LineItem
	Preview bool
}

func (p *Portal) handleInvoices(w http.ResponseWriter, r *http.Request) {
	f := p.filter(r)
	list, err := p.engine.API.ListInvoices(r.Context(), f)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "invoices.html", p.page(r, "invoices", invoicesView{Invoices: list, Filter: f}))
}

func (p *Portal) handleInvoice(w http.ResponseWriter, r *http.Request) {
	v, err := p.engine.InvoiceView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "invoice.html", p.page(r, "invoices", invoiceView{InvoiceView: v, Lines: v.Invoice.Lines}))
}

// handleInvoiceLines previews or saves the editor rows. A preview
// recomputes totals without touching the backend.
func (p *Portal) handleInvoiceLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	v, err := p.engine.InvoiceView(ctx, id)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	view := invoiceView{InvoiceView: v, Lines: v.Invoice.Lines}
	lines, err := p.invoiceLines(r)
	if err == nil {
		view.Lines = lines
		if r.PostFormValue("action") == "preview" {
			view.Preview = true
			view.Totals = p.engine.Totals(lines)
			view.Balance = view.Totals.Total - view.Paid
		} else {
			var saved engine.InvoiceView
			if saved, err = p.engine.SaveInvoiceLines(ctx, id, lines, actor(r)); err == nil {
				p.logger.Info("invoice lines saved", zap.String("invoice_id", id), zap.Int("lines", len(lines)))
				redirect(w, r, role(r)+"/invoices/"+saved.Invoice.ID)
				return
			}
		}
	}
	data := p.page(r, "invoices", view)
	code := http.StatusOK
	if err != nil {
		code = statusFor(err)
		data.Error = userMessage(err)
	}
	p.render(w, r, code, "invoice.html", data)
}

func (p *Portal) invoiceLines(r *http.Request) ([]money.LineItem, error) {
	forms, err := parseLineForms(r)
	if err != nil {
		return nil, err
	}
	lines := make([]money.LineItem, 0, len(forms))
	for _, f := range forms {
		if err := p.check(f); err != nil {
			return nil, err
		}
		li, err := f.lineItem()
		if err != nil {
			return nil, err
		}
		lines = append(lines, li)
	}
	if err := engine.ValidateLines(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (p *Portal) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	form, err := parseStatusForm(r)
	if err == nil {
		err = p.check(form)
	}
	if err == nil {
		_, err = p.engine.TransitionInvoice(ctx, id, status.Status(form.Status), actor(r))
	}
	if err == nil {
		redirect(w, r, role(r)+"/invoices/"+id)
		return
	}
	v, lerr := p.engine.InvoiceView(ctx, id)
	if lerr != nil {
		p.loadFailed(w, r, lerr)
		return
	}
	data := p.page(r, "invoices", invoiceView{InvoiceView: v, Lines: v.Invoice.Lines})
	data.Error = userMessage(err)
	p.render(w, r, statusFor(err), "invoice.html", data)
}

// --- discounts ---

type discountRow struct {
	Discount domain.Discount
	Next     []status.Status
}

type discountsView struct {
	Discounts []discountRow
	Filter    apiclient.Filter
}

func (p *Portal) handleDiscounts(w http.ResponseWriter, r *http.Request) {
	p.showDiscounts(w, r, http.StatusOK, "")
}

func (p *Portal) showDiscounts(w http.ResponseWriter, r *http.Request, code int, errMsg string) {
	f := p.filter(r)
	list, err := p.engine.API.ListDiscounts(r.Context(), f)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	v := discountsView{Discounts: make([]discountRow, 0, len(list)), Filter: f}
	for _, d := range list {
		v.Discounts = append(v.Discounts, discountRow{Discount: d, Next: status.Discounts.Next(d.Status)})
	}
	data := p.page(r, "discounts", v)
	data.Error = errMsg
	p.render(w, r, code, "discounts.html", data)
}

func (p *Portal) handleDiscountStatus(w http.ResponseWriter, r *http.Request) {
	form, err := parseStatusForm(r)
	if err == nil {
		err = p.check(form)
	}
	if err == nil {
		_, err = p.engine.TransitionDiscount(r.Context(), chi.URLParam(r, "id"), status.Status(form.Status), actor(r))
	}
	if err != nil {
		p.showDiscounts(w, r, statusFor(err), userMessage(err))
		return
	}
	redirect(w, r, role(r)+"/discounts")
}

// --- resources and availability ---

type resourcesView struct {
	Resources []domain.Resource
}

type monthRef struct {
	Year  int
	Month int
}

type availabilityPage struct {
	engine.AvailabilityView
	Month    int
	Title    string
	Prev     monthRef
	Next     monthRef
	Weeks    [][]calendar.DayView
	Form     bulkEditForm
	Statuses []calendar.Status
}

func (p *Portal) handleResources(w http.ResponseWriter, r *http.Request) {
	list, err := p.engine.API.ListResources(r.Context(), p.filter(r))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "resources.html", p.page(r, "resources", resourcesView{Resources: list}))
}

// requestedMonth reads ?year=&month= (1-12), defaulting to the current
// month. Out-of-range months roll into neighbouring years.
func requestedMonth(r *http.Request) (int, int) {
	now := time.Now()
	year, month0 := now.Year(), int(now.Month())-1
	q := r.URL.Query()
	if y, err := strconv.Atoi(q.Get("year")); err == nil && y > 0 {
		year = y
	}
	if m, err := strconv.Atoi(q.Get("month")); err == nil {
		month0 = m - 1
	}
	return year, month0
}

func (p *Portal) availabilityPage(r *http.Request, year, month0 int) (availabilityPage, error) {
	v, err := p.engine.MonthAvailability(r.Context(), chi.URLParam(r, "id"), year, month0)
	if err != nil {
		return availabilityPage{}, err
	}
	first := time.Date(v.Year, time.Month(v.Month0+1), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	page := availabilityPage{
		AvailabilityView: v,
		Month:            v.Month0 + 1,
		Title:            first.Format("January 2006"),
		Prev:             monthRef{Year: prev.Year(), Month: int(prev.Month())},
		Next:             monthRef{Year: next.Year(), Month: int(next.Month())},
		Statuses:         []calendar.Status{calendar.Available, calendar.Blocked, calendar.Maintenance},
		Form:             bulkEditForm{Status: string(calendar.Blocked)},
	}
	for i := 0; i < len(v.Days); i += 7 {
		page.Weeks = append(page.Weeks, v.Days[i:i+7])
	}
	return page, nil
}

func (p *Portal) handleAvailability(w http.ResponseWriter, r *http.Request) {
	year, month0 := requestedMonth(r)
	page, err := p.availabilityPage(r, year, month0)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "availability.html", p.page(r, "resources", page))
}

// handleBulkEdit applies one override to every date in the selected range
// and shows the month containing the first selected date.
func (p *Portal) handleBulkEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceID := chi.URLParam(r, "id")
	form, err := parseBulkEditForm(r)
	if err == nil {
		err = p.check(form)
	}
	var dates []string
	if err == nil {
		dates, err = form.dates()
	}
	var patch calendar.Override
	if err == nil {
		patch, err = form.override()
	}
	if err == nil {
		_, err = p.engine.BulkEditAvailability(ctx, resourceID, dates, patch, actor(r))
	}
	year, month0 := requestedMonth(r)
	if d, perr := calendar.ParseDate(form.From); perr == nil {
		year, month0 = d.Year(), int(d.Month())-1
	}
	if err == nil {
		redirect(w, r, role(r)+"/resources/"+resourceID+"/availability?year="+strconv.Itoa(year)+"&month="+strconv.Itoa(month0+1))
		return
	}
	page, lerr := p.availabilityPage(r, year, month0)
	if lerr != nil {
		p.loadFailed(w, r, lerr)
		return
	}
	page.Form = form
	data := p.page(r, "resources", page)
	data.Error = userMessage(err)
	p.render(w, r, statusFor(err), "availability.html", data)
}

// --- activities, media and packages ---

type activitiesView struct {
	Activities []domain.Activity
}

type manageActivityView struct {
	Activity domain.Activity
	Packages []transform.Package
	Media    []transform.MediaItem
}

func (p *Portal) handleActivities(w http.ResponseWriter, r *http.Request) {
	list, err := p.engine.API.ListActivities(r.Context(), p.filter(r))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "activities.html", p.page(r, "activities", activitiesView{Activities: list}))
}

func (p *Portal) manageActivity(r *http.Request, id string) (manageActivityView, error) {
	ctx := r.Context()
	a, err := p.engine.API.GetActivity(ctx, id)
	if err != nil {
		return manageActivityView{}, err
	}
	pkgs, err := p.engine.API.ListPackages(ctx, id)
	if err != nil {
		return manageActivityView{}, err
	}
	media, err := p.engine.API.ListMedia(ctx, id)
	if err != nil {
		return manageActivityView{}, err
	}
	return manageActivityView{Activity: a, Packages: pkgs, Media: media}, nil
}

func (p *Portal) handleManageActivity(w http.ResponseWriter, r *http.Request) {
	v, err := p.manageActivity(r, chi.URLParam(r, "id"))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "manage_activity.html", p.page(r, "activities", v))
}

func (p *Portal) handleMoveMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	form, err := parseMediaMoveForm(r)
	if err == nil {
		err = p.check(form)
	}
	if err == nil {
		_, err = p.engine.ReorderMedia(r.Context(), id, form.From, form.To, actor(r))
	}
	if err == nil {
		redirect(w, r, role(r)+"/activities/"+id)
		return
	}
	v, lerr := p.manageActivity(r, id)
	if lerr != nil {
		p.loadFailed(w, r, lerr)
		return
	}
	data := p.page(r, "activities", v)
	data.Error = userMessage(err)
	p.render(w, r, statusFor(err), "manage_activity.html", data)
}

type packageEditor struct {
	Package    transform.Package
	Tiers      []transform.PricingTier
	Slots      []transform.TimeSlot
	Inclusions string
	Exclusions string
}

// editor pads the repeated rows with one blank row for adding entries.
func editor(pkg transform.Package) packageEditor {
	e := packageEditor{
		Package:    pkg,
		Tiers:      append(append([]transform.PricingTier{}, pkg.Options.PricingTiers...), transform.PricingTier{}),
		Slots:      append(append([]transform.TimeSlot{}, pkg.Options.BookingOptions.TimeSlots...), transform.TimeSlot{}),
		Inclusions: strings.Join(pkg.Options.Inclusions, "\n"),
		Exclusions: strings.Join(pkg.Options.Exclusions, "\n"),
	}
	return e
}

func (p *Portal) handleNewPackage(w http.ResponseWriter, r *http.Request) {
	pkg := transform.PackageFromBackend(transform.Record{"activity_id": r.URL.Query().Get("activity_id")})
	p.render(w, r, http.StatusOK, "package.html", p.page(r, "activities", editor(pkg)))
}

func (p *Portal) handleEditPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := p.engine.PackageView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "package.html", p.page(r, "activities", editor(pkg)))
}

// handleSavePackage loads the stored package first so the editor only
// overwrites the fields it shows.
func (p *Portal) handleSavePackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, err := parsePackageForm(r)
	if err == nil {
		err = p.check(form)
	}
	base := transform.PackageFromBackend(transform.Record{})
	if err == nil && form.ID != "" {
		base, err = p.engine.PackageView(ctx, form.ID)
	}
	pkg := base
	if err == nil {
		pkg, err = form.apply(base)
	}
	if err == nil {
		var saved transform.Package
		if saved, err = p.engine.SavePackage(ctx, pkg, actor(r)); err == nil {
			redirect(w, r, role(r)+"/activities/"+saved.ActivityID)
			return
		}
	}
	if pkg.Name == "" {
		pkg.Name = form.Name
	}
	data := p.page(r, "activities", editor(pkg))
	data.Error = userMessage(err)
	p.render(w, r, statusFor(err), "package.html", data)
}
