// Package portal serves the admin, vendor and public HTML screens. Every
// page is rendered on the server from the marketplace API through the
// engine; the package keeps no state between requests.
package portal

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/engine"
	"tourdesk/internal/logging"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
)

//go:embed templates/*.html
var templatesFS embed.FS

const DefaultPageSize = 50

type Config struct {
	Engine        engine.Engine
	Title         string
	CSRFKey       string
	SecureCookies bool
	PageSize      int
	Logger        *zap.Logger
}

type Portal struct {
	engine   engine.Engine
	title    string
	pageSize int
	logger   *zap.Logger
	validate *validator.Validate
	pages    map[string]*template.Template
}

// pageData is what every template receives.
type pageData struct {
	Title     string
	Section   string
	Base      string
	Role      string
	CSRFField template.HTML
	Error     string
	Notice    string
	Currency  string
	Data      any
}

var pageNames = []string{
	"catalogue.html",
	"activity.html",
	"bookings.html",
	"booking.html",
	"refunds.html",
	"invoices.html",
	"invoice.html",
	"discounts.html",
	"resources.html",
	"availability.html",
	"activities.html",
	"manage_activity.html",
	"package.html",
	"not_found.html",
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(c money.Cents, currency string) string { return c.Format(currency) },
		"percent": func(p money.Percent) string {
			return p.String()
		},
		"label": func(s status.Status) string { return status.Label(s) },
		"statusText": func(s status.Status) string {
			return strings.ReplaceAll(string(s), "_", " ")
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tpl, err := template.New("layout.html").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return pages, nil
}

// New builds the portal router. Admin screens live under /admin, vendor
// screens under /vendor, and the public site at the root.
func New(cfg Config) (http.Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	p := &Portal{
		engine:   cfg.Engine,
		title:    cfg.Title,
		pageSize: cfg.PageSize,
		logger:   logging.OrNop(cfg.Logger),
		validate: validator.New(),
		pages:    pages,
	}
	if p.title == "" {
		p.title = "Tourdesk"
	}
	if p.pageSize <= 0 {
		p.pageSize = DefaultPageSize
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(p.logger))
	if cfg.CSRFKey != "" {
		if !cfg.SecureCookies {
			r.Use(markPlaintext)
		}
		r.Use(csrf.Protect([]byte(cfg.CSRFKey),
			csrf.Secure(cfg.SecureCookies),
			csrf.Path("/"),
			csrf.ErrorHandler(http.HandlerFunc(p.csrfFailed)),
		))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		p.notFound(w, r, pageData{})
	})

	r.Get("/", p.handleCatalogue)
	r.Get("/activities/{id}", p.handlePublicActivity)
	r.Post("/activities/{id}/quote", p.handleQuote)

	r.Route("/admin", p.backOffice("admin"))
	r.Route("/vendor", p.backOffice("vendor"))
	return r, nil
}

// markPlaintext lets gorilla/csrf skip its HTTPS-only referer check when the
// portal is served without TLS.
func markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func (p *Portal) backOffice(role string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/"+role+"/bookings", http.StatusSeeOther)
		})
		r.Get("/bookings", p.handleBookings)
		r.Get("/bookings/{id}", p.handleBooking)
		r.Post("/bookings/{id}/status", p.handleBookingStatus)

		r.Get("/refunds", p.handleRefunds)
		r.Post("/refunds/{id}/decision", p.handleRefundDecision)

		r.Get("/invoices", p.handleInvoices)
		r.Get("/invoices/{id}", p.handleInvoice)
		r.Post("/invoices/{id}/lines", p.handleInvoiceLines)
		r.Post("/invoices/{id}/status", p.handleInvoiceStatus)

		r.Get("/discounts", p.handleDiscounts)
		r.Post("/discounts/{id}/status", p.handleDiscountStatus)

		r.Get("/resources", p.handleResources)
		r.Get("/resources/{id}/availability", p.handleAvailability)
		r.Post("/resources/{id}/availability", p.handleBulkEdit)

		r.Get("/activities", p.handleActivities)
		r.Get("/activities/{id}", p.handleManageActivity)
		r.Post("/activities/{id}/media/move", p.handleMoveMedia)

		r.Get("/packages/new", p.handleNewPackage)
		r.Get("/packages/{id}", p.handleEditPackage)
		r.Post("/packages", p.handleSavePackage)
	}
}

// role is the first path segment for back-office requests.
func role(r *http.Request) string {
	seg := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
	switch seg {
	case "admin", "vendor":
		return seg
	}
	return ""
}

func (p *Portal) page(r *http.Request, section string, data any) pageData {
	rl := role(r)
	base := ""
	if rl != "" {
		base = "/" + rl
	}
	return pageData{
		Title:     p.title,
		Section:   section,
		Base:      base,
		Role:      rl,
		CSRFField: csrf.TemplateField(r),
		Currency:  p.engine.Currency(),
		Data:      data,
	}
}

func (p *Portal) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	tpl, ok := p.pages[name]
	if !ok {
		p.logger.Error("unknown template", zap.String("template", name))
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		p.logger.Error("render", zap.String("template", name), zap.Error(err))
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (p *Portal) notFound(w http.ResponseWriter, r *http.Request, data pageData) {
	if data.Title == "" {
		data = p.page(r, "", nil)
	}
	p.render(w, r, http.StatusNotFound, "not_found.html", data)
}

func (p *Portal) csrfFailed(w http.ResponseWriter, r *http.Request) {
	p.logger.Warn("csrf check failed", zap.String("path", r.URL.Path), zap.Error(csrf.FailureReason(r)))
	http.Error(w, "invalid or missing CSRF token", http.StatusForbidden)
}

// statusFor maps engine and backend errors onto the status of the page
// that shows them.
func statusFor(err error) int {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, engine.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrValidation), errors.Is(err, errInvalidForm):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// loadFailed renders a page that could not load its data at all.
func (p *Portal) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	data := p.page(r, "", nil)
	data.Error = userMessage(err)
	if code == http.StatusNotFound {
		p.notFound(w, r, data)
		return
	}
	p.logger.Error("load page", zap.String("path", r.URL.Path), zap.Error(err))
	p.render(w, r, code, "not_found.html", data)
}

func userMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return "The marketplace API refused the request: " + apiErr.Message()
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "Something went wrong. Try again."
	}
	return err.Error()
}

// redirect sends a POST back to a GET page, relative to the site root.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
