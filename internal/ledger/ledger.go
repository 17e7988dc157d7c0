// Package ledger implements the stock calculator (C3): a pure,
// side-effect-free reduction of ledger transactions into stock state as
// of a given date.
package ledger

import (
	"sort"
	"time"

	"replenisher/internal/model"
)

// Stock is the result of reducing a SKU's transaction history to a
// single point in time.
type Stock struct {
	SKU            string
	OnHand         int
	OnOrder        int
	UnfulfilledQty int
	AsOfDate       time.Time
}

func sortForReduction(txns []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	copy(out, txns)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		pi, pj := out[i].Event.Priority(), out[j].Event.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// CalculateAsOf reduces every transaction and sales-derived SALE event
// with date strictly before asOfDate into a Stock. Events are applied in
// (date, event-priority, insertion-order) order; counters saturate at
// zero throughout.
func CalculateAsOf(sku string, asOfDate time.Time, transactions []model.Transaction, sales []model.SalesRecord) Stock {
	var filtered []model.Transaction
	for _, t := range transactions {
		if t.SKU == sku && t.Date.Before(asOfDate) {
			filtered = append(filtered, t)
		}
	}
	for _, s := range sales {
		if s.SKU == sku && s.Date.Before(asOfDate) {
			filtered = append(filtered, model.Transaction{
				Date:  s.Date,
				SKU:   s.SKU,
				Event: model.EventSale,
				Qty:   s.QtySold,
				Seq:   -1, // sales-derived events sort before same-day ledger writes of equal priority
			})
		}
	}

	ordered := sortForReduction(filtered)

	var onHand, onOrder, unfulfilled int
	for _, t := range ordered {
		switch t.Event {
		case model.EventSnapshot:
			onHand = t.Qty
			onOrder = 0
		case model.EventOrder:
			onOrder += t.Qty
		case model.EventReceipt:
			onOrder = max(0, onOrder-t.Qty)
			onHand += t.Qty
		case model.EventSale, model.EventWaste:
			onHand = max(0, onHand-t.Qty)
		case model.EventAdjust:
			onHand = max(0, t.Qty)
		case model.EventUnfulfilled:
			unfulfilled += t.Qty
		}
	}

	return Stock{
		SKU:            sku,
		OnHand:         max(0, onHand),
		OnOrder:        max(0, onOrder),
		UnfulfilledQty: max(0, unfulfilled),
		AsOfDate:       asOfDate,
	}
}

// CalculateAllSKUs runs CalculateAsOf for every SKU in skus.
func CalculateAllSKUs(skus []string, asOfDate time.Time, transactions []model.Transaction, sales []model.SalesRecord) map[string]Stock {
	out := make(map[string]Stock, len(skus))
	for _, sku := range skus {
		out[sku] = CalculateAsOf(sku, asOfDate, transactions, sales)
	}
	return out
}

// OnOrderByDate returns pending (ordered but not yet received) quantity
// grouped by expected receipt date, for ORDER/RECEIPT transactions dated
// strictly before cutoff.
func OnOrderByDate(sku string, transactions []model.Transaction, cutoff time.Time) map[time.Time]int {
	ordersByDate := map[time.Time]int{}
	receiptsByDate := map[time.Time]int{}

	for _, t := range transactions {
		if t.SKU != sku || !t.Date.Before(cutoff) || t.ReceiptDate == nil {
			continue
		}
		switch t.Event {
		case model.EventOrder:
			ordersByDate[*t.ReceiptDate] += t.Qty
		case model.EventReceipt:
			receiptsByDate[*t.ReceiptDate] += t.Qty
		}
	}

	pending := map[time.Time]int{}
	for rd, ordered := range ordersByDate {
		if remaining := ordered - receiptsByDate[rd]; remaining > 0 {
			pending[rd] = remaining
		}
	}
	return pending
}

// InventoryPosition is on_hand + on-order arriving by asOfDate -
// unfulfilled_qty.
func InventoryPosition(sku string, asOfDate time.Time, transactions []model.Transaction, sales []model.SalesRecord) int {
	stock := CalculateAsOf(sku, asOfDate, transactions, sales)
	pending := OnOrderByDate(sku, transactions, asOfDate)

	var onOrderByDate int
	for rd, qty := range pending {
		if !rd.After(asOfDate) {
			onOrderByDate += qty
		}
	}

	return stock.OnHand + onOrderByDate - stock.UnfulfilledQty
}

// CalculateSoldFromEODStock derives (qtySold, adjustment) for eodDate by
// comparing the theoretical end-of-day stock (everything except the
// day's own sales) against a declared physical count. adjustment
// preserves mass balance: theoretical_after_sales + adjustment ==
// declaredOnHand.
func CalculateSoldFromEODStock(sku string, eodDate time.Time, declaredOnHand int, transactions []model.Transaction, sales []model.SalesRecord) (qtySold, adjustment int) {
	nextDay := eodDate.AddDate(0, 0, 1)

	var salesWithoutToday []model.SalesRecord
	for _, s := range sales {
		if !s.Date.Equal(eodDate) {
			salesWithoutToday = append(salesWithoutToday, s)
		}
	}

	theoreticalEnd := CalculateAsOf(sku, nextDay, transactions, salesWithoutToday)

	qtySold = max(0, theoreticalEnd.OnHand-declaredOnHand)
	theoreticalAfterSales := theoreticalEnd.OnHand - qtySold
	adjustment = declaredOnHand - theoreticalAfterSales
	return qtySold, adjustment
}

// IsDayCensored reports whether demand observed on checkDate is
// unreliable due to a stockout, and why. A day is censored when on-hand
// was zero and sales were zero at end of day, or when an UNFULFILLED
// event fell within lookbackDays of checkDate (inclusive).
func IsDayCensored(sku string, checkDate time.Time, transactions []model.Transaction, sales []model.SalesRecord, lookbackDays int) (censored bool, reason string) {
	nextDay := checkDate.AddDate(0, 0, 1)
	eod := CalculateAsOf(sku, nextDay, transactions, sales)

	var salesQty int
	for _, s := range sales {
		if s.SKU == sku && s.Date.Equal(checkDate) {
			salesQty += s.QtySold
		}
	}

	if eod.OnHand == 0 && salesQty == 0 {
		return true, "on_hand=0 and sales=0 on " + checkDate.Format("2006-01-02")
	}

	lookbackStart := checkDate.AddDate(0, 0, -lookbackDays)
	var mostRecent time.Time
	found := false
	for _, t := range transactions {
		if t.SKU != sku || t.Event != model.EventUnfulfilled {
			continue
		}
		if t.Date.Before(lookbackStart) || t.Date.After(checkDate) {
			continue
		}
		if !found || t.Date.After(mostRecent) {
			mostRecent = t.Date
			found = true
		}
	}
	if found {
		return true, "UNFULFILLED event on " + mostRecent.Format("2006-01-02")
	}

	return false, "normal demand observation"
}
