package engine

import (
	"context"

	"tourdesk/internal/calendar"
	"tourdesk/internal/domain"
	"tourdesk/internal/events"
)

type AvailabilityView struct {
	Resource domain.Resource
	Year     int
	Month0   int
	Grid     calendar.Grid
	Days     []calendar.DayView
}

// MonthAvailability loads overrides for the whole 42-day window, including
// the leading and trailing days of the neighbouring months.
func (e Engine) MonthAvailability(ctx context.Context, resourceID string, year, month0 int) (AvailabilityView, error) {
	res, err := e.API.GetResource(ctx, resourceID)
	if err != nil {
		return AvailabilityView{}, err
	}
	grid := calendar.BuildMonthGrid(year, month0)
	overrides, err := e.API.ListAvailability(ctx, resourceID, grid.First(), grid.Last())
	if err != nil {
		return AvailabilityView{}, err
	}
	// Normalize so month 12 of 2023 renders as January 2024.
	first, _ := calendar.ParseDate(grid[GridMiddle].Date)
	return AvailabilityView{
		Resource: res,
		Year:     first.Year(),
		Month0:   int(first.Month()) - 1,
		Grid:     grid,
		Days:     calendar.MergeAvailability(grid, overrides, res.Base()),
	}, nil
}

// GridMiddle is a cell index that always falls inside the grid's month.
const GridMiddle = 14

// BulkEditAvailability writes one copy of patch to every selected date,
// replacing whatever override those dates had.
func (e Engine) BulkEditAvailability(ctx context.Context, resourceID string, dates []string, patch calendar.Override, actorID string) (calendar.Overrides, error) {
	if len(dates) == 0 {
		return nil, validationError("select at least one date")
	}
	if len(dates) > calendar.MaxRangeDays {
		return nil, validationError("select at most %d dates", calendar.MaxRangeDays)
	}
	for _, d := range dates {
		if _, err := calendar.ParseDate(d); err != nil {
			return nil, validationError("invalid date %q", d)
		}
	}
	if err := patch.Validate(); err != nil {
		return nil, validationError("%v", err)
	}
	changed := calendar.BulkEdit(dates, patch)
	if err := e.API.SaveAvailability(ctx, resourceID, changed); err != nil {
		return nil, err
	}
	e.record(ctx, "availability.bulk_edit", "resource", resourceID, actorID, events.EventPayload{
		"dates":  changed.Dates(),
		"status": patch.Status,
	})
	return changed, nil
}
