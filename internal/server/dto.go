package server

import (
	"encoding/json"

	"tourdesk/internal/calendar"
	"tourdesk/internal/domain"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

// Request payloads

type AvailabilityMergeRequest struct {
	Year          int                `json:"year" minimum:"1"`
	Month         int                `json:"month" minimum:"1" maximum:"12" doc:"Calendar month, 1-12"`
	BasePrice     money.Cents        `json:"base_price_cents,omitempty"`
	DefaultStatus calendar.Status    `json:"default_status,omitempty" enum:"available,blocked,maintenance"`
	Overrides     calendar.Overrides `json:"overrides,omitempty"`
}

type AvailabilityBulkRequest struct {
	Existing calendar.Overrides `json:"existing,omitempty"`
	Dates    []string           `json:"dates,omitempty" doc:"Selected dates, YYYY-MM-DD"`
	From     string             `json:"from,omitempty" doc:"Range start, used when dates is empty"`
	To       string             `json:"to,omitempty"`
	Patch    calendar.Override  `json:"patch"`
}

type TotalsRequest struct {
	Items      []money.LineItem `json:"items"`
	TaxPercent *float64         `json:"tax_percent,omitempty" minimum:"0" maximum:"100" doc:"Flat tax; the configured lookup applies when omitted"`
}

type MediaMoveRequest struct {
	Items []transform.MediaItem `json:"items"`
	From  int                   `json:"from"`
	To    int                   `json:"to"`
}

// Responses

type CalendarResponse struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	DaysInMonth int             `json:"days_in_month"`
	Cells       []calendar.Cell `json:"cells"`
}

type AvailabilityMergeResponse struct {
	Year  int                `json:"year"`
	Month int                `json:"month"`
	Days  []calendar.DayView `json:"days"`
}

type AvailabilityBulkResponse struct {
	Changed   []string           `json:"changed"`
	Overrides calendar.Overrides `json:"overrides"`
}

type StatusTableResponse struct {
	Kind        status.Kind                       `json:"kind"`
	Statuses    []status.Status                   `json:"statuses"`
	Transitions map[status.Status][]status.Status `json:"transitions"`
}

type NextStatusesResponse struct {
	Kind     status.Kind     `json:"kind"`
	Status   status.Status   `json:"status"`
	Label    string          `json:"label"`
	Next     []status.Status `json:"next"`
	Terminal bool            `json:"terminal"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func calendarResponse(year, month0 int, g calendar.Grid) CalendarResponse {
	return CalendarResponse{
		Year:        year,
		Month:       month0 + 1,
		DaysInMonth: g.DaysInMonth(),
		Cells:       g[:],
	}
}

func statusTableResponse(kind status.Kind, g status.Graph) StatusTableResponse {
	res := StatusTableResponse{
		Kind:        kind,
		Statuses:    g.Statuses(),
		Transitions: make(map[status.Status][]status.Status, len(g)),
	}
	for _, s := range res.Statuses {
		res.Transitions[s] = g.Next(s)
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{"raw": raw}
	}
	return out
}
