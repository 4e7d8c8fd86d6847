package cart

import "github.com/shopspring/decimal"

// Item is the product snapshot supplied when adding to the cart.
type Item struct {
	ProductID    string          `json:"productId" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	StockCeiling int             `json:"stockCeiling" validate:"gte=0"`
	ImageRef     string          `json:"imageRef,omitempty" validate:"omitempty,max=500"`
}

// Line is one product in the cart. Quantity stays within [1, StockCeiling];
// a line whose quantity would reach zero is dropped.
type Line struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	StockCeiling int             `json:"stockCeiling"`
	ImageRef     string          `json:"imageRef,omitempty"`
}

// LineTotal is UnitPrice times Quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals are derived from the lines and never set directly.
type Totals struct {
	TotalItemCount   int             `json:"totalItemCount"`
	SubTotal         decimal.Decimal `json:"subTotal"`
	ShippingEstimate decimal.Decimal `json:"shippingEstimate"`
	Total            decimal.Decimal `json:"total"`
}

// ShippingPolicy drives the client-side shipping estimate. The estimate is
// zero for an empty cart or when the subtotal reaches FreeThreshold.
type ShippingPolicy struct {
	FlatEstimate  decimal.Decimal
	FreeThreshold decimal.Decimal
}

func (p ShippingPolicy) estimate(subTotal decimal.Decimal, empty bool) decimal.Decimal {
	if empty {
		return decimal.Zero
	}
	if p.FreeThreshold.IsPositive() && subTotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatEstimate
}

// Ledger holds the cart lines and their derived totals.
type Ledger struct {
	Lines  []Line `json:"lines"`
	Totals Totals `json:"totals"`

	policy ShippingPolicy
}

func NewLedger(policy ShippingPolicy) *Ledger {
	l := &Ledger{Lines: []Line{}, policy: policy}
	l.CalculateTotals()
	return l
}

// IsEmpty reports whether the cart has no lines.
func (l *Ledger) IsEmpty() bool {
	return len(l.Lines) == 0
}

// Line returns the line for productID.
func (l *Ledger) Line(productID string) (Line, bool) {
	if i := l.index(productID); i >= 0 {
		return l.Lines[i], true
	}
	return Line{}, false
}

// AddItem increments an existing line by one or appends a new line with
// quantity one. The stock ceiling is refreshed from item and the quantity is
// clamped to it silently. Items without stock are ignored.
func (l *Ledger) AddItem(item Item) {
	defer l.CalculateTotals()

	ceiling := item.StockCeiling
	if ceiling < 0 {
		ceiling = 0
	}

	if i := l.index(item.ProductID); i >= 0 {
		line := &l.Lines[i]
		line.StockCeiling = ceiling
		line.Quantity = clamp(line.Quantity+1, 0, ceiling)
		if item.Name != "" {
			line.Name = item.Name
		}
		if item.ImageRef != "" {
			line.ImageRef = item.ImageRef
		}
		line.UnitPrice = item.UnitPrice
		if line.Quantity == 0 {
			l.removeAt(i)
		}
		return
	}

	if ceiling == 0 {
		return
	}
	l.Lines = append(l.Lines, Line{
		ProductID:    item.ProductID,
		Name:         item.Name,
		UnitPrice:    item.UnitPrice,
		Quantity:     1,
		StockCeiling: ceiling,
		ImageRef:     item.ImageRef,
	})
}

// RemoveItem deletes the line for productID. It reports whether a line existed.
func (l *Ledger) RemoveItem(productID string) bool {
	defer l.CalculateTotals()
	i := l.index(productID)
	if i < 0 {
		return false
	}
	l.removeAt(i)
	return true
}

// UpdateQuantity sets the quantity to clamp(qty, 0, stockCeiling). A result
// of zero removes the line. It reports whether the line existed.
func (l *Ledger) UpdateQuantity(productID string, qty int) bool {
	defer l.CalculateTotals()
	i := l.index(productID)
	if i < 0 {
		return false
	}
	line := &l.Lines[i]
	line.Quantity = clamp(qty, 0, line.StockCeiling)
	if line.Quantity == 0 {
		l.removeAt(i)
	}
	return true
}

// Clear empties the cart and zeroes the totals.
func (l *Ledger) Clear() {
	l.Lines = []Line{}
	l.CalculateTotals()
}

// CalculateTotals recomputes Totals from the current lines.
func (l *Ledger) CalculateTotals() {
	count := 0
	sub := decimal.Zero
	for _, line := range l.Lines {
		count += line.Quantity
		sub = sub.Add(line.LineTotal())
	}
	shipping := l.policy.estimate(sub, len(l.Lines) == 0)
	l.Totals = Totals{
		TotalItemCount:   count,
		SubTotal:         sub,
		ShippingEstimate: shipping,
		Total:            sub.Add(shipping),
	}
}

func (l *Ledger) index(productID string) int {
	for i := range l.Lines {
		if l.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (l *Ledger) removeAt(i int) {
	l.Lines = append(l.Lines[:i], l.Lines[i+1:]...)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
