package cart

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

var testPolicy = ShippingPolicy{
	FlatEstimate:  decimal.NewFromInt(15000),
	FreeThreshold: decimal.NewFromInt(200000),
}

func item(id string, price int64, stock int) Item {
	return Item{ProductID: id, Name: "Product " + id, UnitPrice: decimal.NewFromInt(price), StockCeiling: stock}
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	l := NewLedger(testPolicy)
	l.AddItem(item("p1", 50000, 5))
	l.AddItem(item("p1", 50000, 5))

	if len(l.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(l.Lines))
	}
	if l.Lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", l.Lines[0].Quantity)
	}
	if !l.Totals.SubTotal.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected subtotal 100000, got %s", l.Totals.SubTotal)
	}
	if !l.Totals.Total.Equal(decimal.NewFromInt(115000)) {
		t.Fatalf("expected total 115000, got %s", l.Totals.Total)
	}
}

func TestAddItemClampsToStock(t *testing.T) {
	l := NewLedger(testPolicy)
	for i := 0; i < 5; i++ {
		l.AddItem(item("p1", 1000, 2))
	}
	if got := l.Lines[0].Quantity; got != 2 {
		t.Fatalf("expected quantity clamped to 2, got %d", got)
	}

	l.AddItem(item("p1", 1000, 1))
	if got := l.Lines[0].Quantity; got != 1 {
		t.Fatalf("expected quantity clamped to refreshed ceiling 1, got %d", got)
	}
}

func TestAddItemWithoutStockIsNoop(t *testing.T) {
	l := NewLedger(testPolicy)
	l.AddItem(item("p1", 1000, 0))
	if !l.IsEmpty() {
		t.Fatal("expected out-of-stock item to be ignored")
	}
}

func TestUpdateQuantityClampsAndZeroRemoves(t *testing.T) {
	l := NewLedger(testPolicy)
	l.AddItem(item("p1", 1000, 3))

	l.UpdateQuantity("p1", 10)
	if got := l.Lines[0].Quantity; got != 3 {
		t.Fatalf("expected clamp to 3, got %d", got)
	}

	if !l.UpdateQuantity("p1", 0) {
		t.Fatal("expected existing line to be reported")
	}
	if !l.IsEmpty() {
		t.Fatal("expected zero quantity to remove the line")
	}
	if l.UpdateQuantity("missing", 1) {
		t.Fatal("missing line should not be reported as updated")
	}
}

func TestShippingEstimate(t *testing.T) {
	l := NewLedger(testPolicy)
	if !l.Totals.ShippingEstimate.IsZero() || !l.Totals.Total.IsZero() {
		t.Fatalf("empty cart should not estimate shipping, got %+v", l.Totals)
	}

	l.AddItem(item("p1", 250000, 1))
	if !l.Totals.ShippingEstimate.IsZero() {
		t.Fatalf("expected free shipping above threshold, got %s", l.Totals.ShippingEstimate)
	}

	l.UpdateQuantity("p1", 1)
	l.AddItem(item("p2", 1000, 1))
	l.RemoveItem("p1")
	if !l.Totals.ShippingEstimate.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("expected flat estimate below threshold, got %s", l.Totals.ShippingEstimate)
	}
}

func TestClearZeroesTotals(t *testing.T) {
	l := NewLedger(testPolicy)
	l.AddItem(item("p1", 1000, 3))
	l.Clear()
	if !l.IsEmpty() || l.Totals.TotalItemCount != 0 || !l.Totals.SubTotal.IsZero() {
		t.Fatalf("expected cleared ledger, got %+v", l)
	}
}

func TestCalculateTotalsIsIdempotent(t *testing.T) {
	l := NewLedger(testPolicy)
	l.AddItem(item("p1", 1999, 4))
	l.AddItem(item("p2", 51, 9))

	l.CalculateTotals()
	first := l.Totals
	l.CalculateTotals()
	if first.TotalItemCount != l.Totals.TotalItemCount || !first.Total.Equal(l.Totals.Total) || !first.SubTotal.Equal(l.Totals.SubTotal) {
		t.Fatalf("totals changed between calls: %+v vs %+v", first, l.Totals)
	}
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}
	stock := map[string]int{"a": 1, "b": 3, "c": 7, "d": 0}
	price := map[string]int64{"a": 1200, "b": 99999, "c": 5, "d": 10}

	l := NewLedger(testPolicy)
	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			l.AddItem(item(id, price[id], stock[id]))
		case 1:
			l.UpdateQuantity(id, rng.Intn(12)-2)
		default:
			l.RemoveItem(id)
		}

		sum := decimal.Zero
		seen := map[string]bool{}
		for _, line := range l.Lines {
			if seen[line.ProductID] {
				t.Fatalf("duplicate line %s", line.ProductID)
			}
			seen[line.ProductID] = true
			if line.Quantity < 0 || line.Quantity > line.StockCeiling {
				t.Fatalf("quantity %d outside [0,%d]", line.Quantity, line.StockCeiling)
			}
			sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		if !sum.Equal(l.Totals.SubTotal) {
			t.Fatalf("subtotal %s != sum %s", l.Totals.SubTotal, sum)
		}
		if !l.Totals.Total.Equal(l.Totals.SubTotal.Add(l.Totals.ShippingEstimate)) {
			t.Fatalf("total mismatch %+v", l.Totals)
		}
	}
}
