// Package calendar builds the month grid shown on availability screens and
// lays per-date overrides on top of it.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// GridSize is six weeks of seven days.
const GridSize = 42

// MaxRangeDays bounds a single date selection.
const MaxRangeDays = 366

var ErrRangeTooLong = errors.New("date range too long")

// DateLayout is the key format for every date in this package.
const DateLayout = "2006-01-02"

type Cell struct {
	Date           string       `json:"date"`
	Day            int          `json:"day"`
	Weekday        time.Weekday `json:"weekday"`
	InCurrentMonth bool         `json:"in_current_month"`
}

// Grid is always exactly GridSize cells, Sunday first.
type Grid [GridSize]Cell

// BuildMonthGrid returns the grid for month0 (0 = January) of year. Months
// outside 0..11 roll into neighbouring years.
func BuildMonthGrid(year, month0 int) Grid {
	first := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	var g Grid
	for i := range g {
		d := start.AddDate(0, 0, i)
		g[i] = Cell{
			Date:           d.Format(DateLayout),
			Day:            d.Day(),
			Weekday:        d.Weekday(),
			InCurrentMonth: d.Month() == first.Month() && d.Year() == first.Year(),
		}
	}
	return g
}

// First and Last return the first and last dates on the grid.
func (g Grid) First() string { return g[0].Date }
func (g Grid) Last() string  { return g[GridSize-1].Date }

// Weeks splits the grid into rows for rendering.
func (g Grid) Weeks() [][]Cell {
	rows := make([][]Cell, 0, GridSize/7)
	for i := 0; i < GridSize; i += 7 {
		rows = append(rows, g[i:i+7])
	}
	return rows
}

// DaysInMonth counts in-month cells.
func (g Grid) DaysInMonth() int {
	n := 0
	for _, c := range g {
		if c.InCurrentMonth {
			n++
		}
	}
	return n
}

// ParseDate accepts only the YYYY-MM-DD key format.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// SelectRange lists every date from from to to inclusive, in order. Reversed
// bounds are swapped. Ranges over MaxRangeDays fail with ErrRangeTooLong.
func SelectRange(from, to string) ([]string, error) {
	a, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	b, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if b.Before(a) {
		a, b = b, a
	}
	if days := int(b.Sub(a).Hours()/24) + 1; days > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days, at most %d", ErrRangeTooLong, days, MaxRangeDays)
	}
	var out []string
	for d := a; !d.After(b); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out, nil
}
