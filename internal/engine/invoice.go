package engine

import (
	"context"

	"tourdesk/internal/domain"
	"tourdesk/internal/events"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
)

type InvoiceView struct {
	Invoice  domain.Invoice
	Totals   money.Totals
	Payments []domain.Payment
	Paid     money.Cents
	Balance  money.Cents
	Next     []status.Status
	Editable bool
}

// Totals recomputes invoice totals with the configured tax lookup.
func (e Engine) Totals(items []money.LineItem) money.Totals {
	return money.ComputeTotals(items, e.config().TaxRate())
}

func (e Engine) InvoiceView(ctx context.Context, id string) (InvoiceView, error) {
	inv, err := e.API.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	payments, err := e.API.ListPayments(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	v := InvoiceView{
		Invoice:  inv,
		Totals:   e.Totals(inv.Lines),
		Payments: payments,
		Next:     status.Invoices.Next(inv.Status),
		Editable: inv.Status == status.InvoiceDraft,
	}
	for _, p := range payments {
		switch p.Status {
		case status.PaymentCompleted:
			v.Paid += p.AmountCents
		}
	}
	v.Balance = v.Totals.Total - v.Paid
	return v, nil
}

// ValidateLines applies the input rules the aggregator relies on.
func ValidateLines(lines []money.LineItem) error {
	for i, li := range lines {
		if _, err := money.NewLineItem(li.Description, li.Quantity, li.UnitPrice, li.Discount); err != nil {
			return validationError("line %d: %v", i+1, err)
		}
	}
	return nil
}

// SaveInvoiceLines replaces the lines of a draft invoice and stores the
// freshly computed totals alongside.
func (e Engine) SaveInvoiceLines(ctx context.Context, id string, lines []money.LineItem, actorID string) (InvoiceView, error) {
	if err := ValidateLines(lines); err != nil {
		return InvoiceView{}, err
	}
	inv, err := e.API.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	if inv.Status != status.InvoiceDraft {
		return InvoiceView{}, ErrNotEditable
	}
	if lines == nil {
		lines = []money.LineItem{}
	}
	totals := e.Totals(lines)
	if _, err := e.API.SaveInvoiceLines(ctx, id, lines, totals); err != nil {
		return InvoiceView{}, err
	}
	e.record(ctx, "invoice.lines", status.KindInvoice, id, actorID, events.EventPayload{
		"lines":       len(lines),
		"total_cents": totals.Total,
	})
	return e.InvoiceView(ctx, id)
}
