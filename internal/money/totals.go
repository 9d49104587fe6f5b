package money

// LineItem is one billable row on an invoice or quote.
type LineItem struct {
	Description string  `json:"description,omitempty" yaml:"description"`
	Category    string  `json:"category,omitempty" yaml:"category"`
	Quantity    int64   `json:"quantity" yaml:"quantity"`
	UnitPrice   Cents   `json:"unit_price_cents" yaml:"unit_price_cents"`
	Discount    Percent `json:"discount_bp,omitempty" yaml:"discount_bp"`
}

// NewLineItem rejects inputs the aggregator does not accept.
func NewLineItem(description string, quantity int64, unitPrice Cents, discount Percent) (LineItem, error) {
	if quantity < 0 {
		return LineItem{}, ErrNegativeQuantity
	}
	if unitPrice < 0 {
		return LineItem{}, ErrNegativePrice
	}
	if !discount.Valid() {
		return LineItem{}, ErrPercentRange
	}
	return LineItem{Description: description, Quantity: quantity, UnitPrice: unitPrice, Discount: discount}, nil
}

// Subtotal is quantity times unit price.
func (li LineItem) Subtotal() Cents { return Cents(li.Quantity) * li.UnitPrice }

// DiscountAmount is the rounded discount on the line subtotal.
func (li LineItem) DiscountAmount() Cents { return li.Discount.Of(li.Subtotal()) }

// Total is the line after discount, before tax.
func (li LineItem) Total() Cents { return li.Subtotal() - li.DiscountAmount() }

// TaxRateFunc returns the tax rate for one line. A nil func means no tax.
type TaxRateFunc func(LineItem) Percent

// FlatTax charges the same rate on every line.
func FlatTax(rate Percent) TaxRateFunc {
	return func(LineItem) Percent { return rate }
}

// CategoryTax looks the rate up by line category, falling back to def.
func CategoryTax(def Percent, byCategory map[string]Percent) TaxRateFunc {
	return func(li LineItem) Percent {
		if r, ok := byCategory[li.Category]; ok {
			return r
		}
		return def
	}
}

type LineTotals struct {
	Subtotal Cents `json:"subtotal_cents"`
	Discount Cents `json:"discount_cents"`
	Tax      Cents `json:"tax_cents"`
	Total    Cents `json:"total_cents"`
}

type Totals struct {
	Subtotal      Cents        `json:"subtotal_cents"`
	DiscountTotal Cents        `json:"discount_total_cents"`
	TaxableAmount Cents        `json:"taxable_amount_cents"`
	TaxAmount     Cents        `json:"tax_amount_cents"`
	Total         Cents        `json:"total_cents"`
	Lines         []LineTotals `json:"lines"`
}

// ComputeTotals recomputes everything from items. Each line is rounded on its
// own, so the sums do not depend on item order.
func ComputeTotals(items []LineItem, taxRate TaxRateFunc) Totals {
	t := Totals{Lines: make([]LineTotals, 0, len(items))}
	for _, li := range items {
		lt := LineTotals{
			Subtotal: li.Subtotal(),
			Discount: li.DiscountAmount(),
		}
		taxable := lt.Subtotal - lt.Discount
		if taxRate != nil {
			lt.Tax = taxRate(li).Of(taxable)
		}
		lt.Total = taxable + lt.Tax
		t.Lines = append(t.Lines, lt)

		t.Subtotal += lt.Subtotal
		t.DiscountTotal += lt.Discount
		t.TaxAmount += lt.Tax
	}
	t.TaxableAmount = t.Subtotal - t.DiscountTotal
	t.Total = t.TaxableAmount + t.TaxAmount
	return t
}
