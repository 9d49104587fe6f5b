package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/calendar"
	"tourdesk/internal/engine"
	"tourdesk/internal/logging"
	"tourdesk/internal/money"
	"tourdesk/internal/repo"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

const DefaultBasePath = "/api/v0"

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	Events         repo.Repo
	BasePath       string
	AllowedOrigins []string
	Logger         *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid booking status transition checked_out -> pending"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the tourdesk JSON API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := logging.OrNop(cfg.Logger)
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation errors are the caller's fault.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logging.RequestLogger(logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	hcfg := huma.DefaultConfig("Tourdesk API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, events: cfg.Events, logger: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	registerCalendar(group)
	registerAvailability(group)
	registerInvoices(group, h)
	registerStatuses(group)
	registerPackages(group, h)
	registerEvents(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	engine engine.Engine
	events repo.Repo
	logger *zap.Logger
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case errors.Is(err, engine.ErrNotEditable):
		return newAPIError(http.StatusConflict, "not_editable", msg, nil)
	case errors.Is(err, engine.ErrValidation),
		errors.Is(err, money.ErrNegativePrice),
		errors.Is(err, money.ErrNegativeQuantity),
		errors.Is(err, money.ErrPercentRange),
		errors.Is(err, calendar.ErrInvalidOverride):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case errors.As(err, &apiErr):
		return newAPIError(http.StatusBadGateway, "upstream_error", apiErr.Message(), map[string]any{"status": apiErr.StatusCode})
	case strings.Contains(strings.ToLower(msg), "invalid"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	// Built on first request, after every operation is registered.
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Tourdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCalendar(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "month-grid",
		Method:      http.MethodGet,
		Path:        "/calendar/{year}/{month}",
		Summary:     "42-cell month grid",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Year  int `path:"year" minimum:"1" maximum:"9999"`
		Month int `path:"month" minimum:"1" maximum:"12"`
	}) (*struct {
		Body CalendarResponse `json:"body"`
	}, error) {
		g := calendar.BuildMonthGrid(input.Year, input.Month-1)
		return &struct {
			Body CalendarResponse `json:"body"`
		}{Body: calendarResponse(input.Year, input.Month-1, g)}, nil
	})
}

func registerAvailability(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "merge-availability",
		Method:      http.MethodPost,
		Path:        "/availability/merge",
		Summary:     "Merge overrides into a month grid",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body AvailabilityMergeRequest `json:"body"`
	}) (*struct {
		Body AvailabilityMergeResponse `json:"body"`
	}, error) {
		req := input.Body
		for date, o := range req.Overrides {
			if _, err := calendar.ParseDate(date); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid override date", map[string]any{"date": date})
			}
			if err := o.Validate(); err != nil {
				return nil, handleError(fmt.Errorf("%s: %w", date, err))
			}
		}
		g := calendar.BuildMonthGrid(req.Year, req.Month-1)
		days := calendar.MergeAvailability(g, req.Overrides, calendar.Base{Price: req.BasePrice, Status: req.DefaultStatus})
		return &struct {
			Body AvailabilityMergeResponse `json:"body"`
		}{Body: AvailabilityMergeResponse{Year: req.Year, Month: req.Month, Days: days}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-edit-availability",
		Method:      http.MethodPost,
		Path:        "/availability/bulk",
		Summary:     "Apply one override to many dates",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body AvailabilityBulkRequest `json:"body"`
	}) (*struct {
		Body AvailabilityBulkResponse `json:"body"`
	}, error) {
		req := input.Body
		dates := req.Dates
		if len(dates) == 0 && req.From != "" {
			to := req.To
			if to == "" {
				to = req.From
			}
			var err error
			if dates, err = calendar.SelectRange(req.From, to); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
		}
		if len(dates) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "dates or from/to required", nil)
		}
		if len(dates) > calendar.MaxRangeDays {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "too many dates", map[string]any{"max": calendar.MaxRangeDays})
		}
		for _, d := range dates {
			if _, err := calendar.ParseDate(d); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid date", map[string]any{"date": d})
			}
		}
		if err := req.Patch.Validate(); err != nil {
			return nil, handleError(err)
		}
		merged := calendar.ApplyBulkEdit(req.Existing, dates, req.Patch)
		return &struct {
			Body AvailabilityBulkResponse `json:"body"`
		}{Body: AvailabilityBulkResponse{Changed: calendar.BulkEdit(dates, req.Patch).Dates(), Overrides: merged}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-media",
		Method:      http.MethodPost,
		Path:        "/media/move",
		Summary:     "Move one media item and renumber sort orders",
	}, func(ctx context.Context, input *struct {
		Body MediaMoveRequest `json:"body"`
	}) (*struct {
		Body []transform.MediaItem `json:"body"`
	}, error) {
		return &struct {
			Body []transform.MediaItem `json:"body"`
		}{Body: transform.MoveMedia(input.Body.Items, input.Body.From, input.Body.To)}, nil
	})
}

func registerInvoices(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "invoice-totals",
		Method:      http.MethodPost,
		Path:        "/invoices/totals",
		Summary:     "Compute invoice totals",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body TotalsRequest `json:"body"`
	}) (*struct {
		Body money.Totals `json:"body"`
	}, error) {
		if err := engine.ValidateLines(input.Body.Items); err != nil {
			return nil, handleError(err)
		}
		totals := h.engine.Totals(input.Body.Items)
		if input.Body.TaxPercent != nil {
			totals = money.ComputeTotals(input.Body.Items, money.FlatTax(money.PercentFromFloat(*input.Body.TaxPercent)))
		}
		return &struct {
			Body money.Totals `json:"body"`
		}{Body: totals}, nil
	})
}

func registerStatuses(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "status-table",
		Method:      http.MethodGet,
		Path:        "/statuses/{kind}",
		Summary:     "Transition table for an entity kind",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"booking,refund,discount,invoice,payment"`
	}) (*struct {
		Body StatusTableResponse `json:"body"`
	}, error) {
		g, ok := status.ForKind(status.Kind(input.Kind))
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown kind", map[string]any{"kind": input.Kind})
		}
		return &struct {
			Body StatusTableResponse `json:"body"`
		}{Body: statusTableResponse(status.Kind(input.Kind), g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses/{kind}/{status}/next",
		Summary:     "Statuses offered after the current one",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind   string `path:"kind" enum:"booking,refund,discount,invoice,payment"`
		Status string `path:"status"`
	}) (*struct {
		Body NextStatusesResponse `json:"body"`
	}, error) {
		g, ok := status.ForKind(status.Kind(input.Kind))
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown kind", map[string]any{"kind": input.Kind})
		}
		current := status.Status(input.Status)
		return &struct {
			Body NextStatusesResponse `json:"body"`
		}{Body: NextStatusesResponse{
			Kind:     status.Kind(input.Kind),
			Status:   current,
			Label:    status.Label(current),
			Next:     g.Next(current),
			Terminal: g.IsTerminal(current),
		}}, nil
	})
}

func registerPackages(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "normalize-package",
		Method:      http.MethodPost,
		Path:        "/packages/normalize",
		Summary:     "Convert a backend package record to the editor shape",
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body transform.Package `json:"body"`
	}, error) {
		return &struct {
			Body transform.Package `json:"body"`
		}{Body: transform.PackageFromBackend(input.Body)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "denormalize-package",
		Method:      http.MethodPost,
		Path:        "/packages/denormalize",
		Summary:     "Convert an editor package to the backend record shape",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body transform.Package `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if err := engine.ValidatePackage(input.Body); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: transform.PackageToBackend(input.Body)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "quote-package",
		Method:      http.MethodPost,
		Path:        "/packages/quote",
		Summary:     "Price a package for a party size",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Package      transform.Package `json:"package"`
			Tier         string            `json:"tier,omitempty"`
			Participants int               `json:"participants" minimum:"1"`
		} `json:"body"`
	}) (*struct {
		Body engine.Quote `json:"body"`
	}, error) {
		q, err := h.engine.QuotePackage(input.Body.Package, input.Body.Tier, input.Body.Participants)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Quote `json:"body"`
		}{Body: q}, nil
	})
}

func registerEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent activity events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if h.events.DB == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "unavailable", "activity log is not configured", nil)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.events.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			ActorID:    input.ActorID,
		})
		if err != nil {
			h.logger.Error("list events", zap.Error(err))
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
