// Package lots implements the FEFO lot engine (C4): consumption,
// usable-stock bucketing, and forward waste-risk assessment.
package lots

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"replenisher/internal/apperr"
	"replenisher/internal/model"
)

// SortFEFO returns lots sorted ascending by expiry date, with no-expiry
// lots ordered last.
func SortFEFO(lots []model.Lot) []model.Lot {
	out := make([]model.Lot, len(lots))
	copy(out, lots)
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		if ei == nil && ej == nil {
			return false
		}
		if ei == nil {
			return false
		}
		if ej == nil {
			return true
		}
		return ei.Before(*ej)
	})
	return out
}

// ConsumptionRecord traces how much was deducted from one lot.
type ConsumptionRecord struct {
	LotID        string
	QtyConsumed  int
	ExpiryDate   *time.Time
	QtyRemaining int
}

// ConsumeFEFO deducts qty from lots in FEFO order, mutating a copy of
// lots (returned as updatedLots with zero-qty lots removed) and
// returning a per-lot trace. Fails with apperr.InsufficientLotStock if
// total on-hand is less than qty. A nil/empty lots slice is a no-op
// (SKUs without lot tracking).
func ConsumeFEFO(lots []model.Lot, qty int) (updatedLots []model.Lot, trace []ConsumptionRecord, err error) {
	if len(lots) == 0 {
		return lots, nil, nil
	}

	sorted := SortFEFO(lots)

	var total int
	for _, l := range sorted {
		total += l.QtyOnHand
	}
	if total < qty {
		return nil, nil, apperr.Newf(apperr.InsufficientLotStock,
			"insufficient lot stock: need %d, available %d", qty, total)
	}

	remaining := qty
	for i := range sorted {
		if remaining <= 0 {
			break
		}
		lot := &sorted[i]
		consume := min(lot.QtyOnHand, remaining)
		lot.QtyOnHand -= consume
		remaining -= consume

		trace = append(trace, ConsumptionRecord{
			LotID:        lot.LotID,
			QtyConsumed:  consume,
			ExpiryDate:   lot.ExpiryDate,
			QtyRemaining: lot.QtyOnHand,
		})
	}

	for _, l := range sorted {
		if l.QtyOnHand > 0 {
			updatedLots = append(updatedLots, l)
		}
	}
	return updatedLots, trace, nil
}

// FormatFEFONote renders a consumption trace as the transaction note
// suffix: "FEFO: lot1:3(exp:2026-02-10), lot2:5(exp:no expiry)".
func FormatFEFONote(trace []ConsumptionRecord) string {
	if len(trace) == 0 {
		return ""
	}
	parts := make([]string, 0, len(trace))
	for _, r := range trace {
		exp := "no expiry"
		if r.ExpiryDate != nil {
			exp = r.ExpiryDate.Format("2006-01-02")
		}
		parts = append(parts, fmt.Sprintf("%s:%d(exp:%s)", r.LotID, r.QtyConsumed, exp))
	}
	return "FEFO: " + strings.Join(parts, ", ")
}

func daysUntilExpiry(expiry *time.Time, checkDate time.Time) (days int, hasExpiry bool) {
	if expiry == nil {
		return 0, false
	}
	return int(expiry.Sub(checkDate).Hours() / 24), true
}

// UsableStock is the shelf-life-aware breakdown of a SKU's on-hand lots
// at a point in time.
type UsableStock struct {
	TotalOnHand      int
	UsableQty        int
	UnusableQty      int
	ExpiringSoonQty  int
	WasteRiskPercent float64
}

// CalculateUsableStock buckets lots at checkDate into usable, unusable
// (expired or below minShelfLifeDays residual), and expiring-soon
// (within wasteHorizonDays). minShelfLifeDays==0 disables the
// constraint entirely: all on-hand stock is usable, and lots expiring
// between checkDate and wasteHorizonDays still count as expiring soon.
func CalculateUsableStock(lots []model.Lot, checkDate time.Time, minShelfLifeDays, wasteHorizonDays int) UsableStock {
	var total int
	for _, l := range lots {
		if l.QtyOnHand > 0 {
			total += l.QtyOnHand
		}
	}

	var usable, unusable, expiringSoon int
	for _, l := range lots {
		if l.QtyOnHand <= 0 {
			continue
		}
		daysLeft, hasExpiry := daysUntilExpiry(l.ExpiryDate, checkDate)
		if !hasExpiry {
			usable += l.QtyOnHand
			continue
		}
		switch {
		case minShelfLifeDays > 0 && (daysLeft < 0 || daysLeft < minShelfLifeDays):
			unusable += l.QtyOnHand
		case daysLeft >= 0 && daysLeft <= wasteHorizonDays:
			usable += l.QtyOnHand
			expiringSoon += l.QtyOnHand
		default:
			usable += l.QtyOnHand
		}
	}

	var wasteRisk float64
	if total > 0 {
		wasteRisk = float64(expiringSoon) / float64(total) * 100
	}

	return UsableStock{
		TotalOnHand:      total,
		UsableQty:        usable,
		UnusableQty:      unusable,
		ExpiringSoonQty:  expiringSoon,
		WasteRiskPercent: wasteRisk,
	}
}

func virtualIncomingLot(receiptDate time.Time, proposedQty, skuShelfLifeDays int) model.Lot {
	var expiry *time.Time
	if skuShelfLifeDays > 0 {
		e := receiptDate.AddDate(0, 0, skuShelfLifeDays)
		expiry = &e
	}
	return model.Lot{
		LotID:       "VIRTUAL_INCOMING",
		SKU:         "VIRTUAL",
		ExpiryDate:  expiry,
		QtyOnHand:   proposedQty,
		ReceiptID:   "VIRTUAL",
		ReceiptDate: receiptDate,
	}
}

// CalculateForwardWasteRisk ages lots to receiptDate and, if proposedQty
// is positive, adds a virtual incoming lot with full shelf life before
// computing the usable-stock breakdown.
func CalculateForwardWasteRisk(lots []model.Lot, receiptDate time.Time, proposedQty, skuShelfLifeDays, minShelfLifeDays, wasteHorizonDays int) (wasteRiskPercent float64, totalOnHand, expiringSoonQty int) {
	combined := lots
	if proposedQty > 0 {
		combined = append(append([]model.Lot{}, lots...), virtualIncomingLot(receiptDate, proposedQty, skuShelfLifeDays))
	}
	result := CalculateUsableStock(combined, receiptDate, minShelfLifeDays, wasteHorizonDays)
	return result.WasteRiskPercent, result.TotalOnHand, result.ExpiringSoonQty
}

// CalculateForwardWasteRiskDemandAdjusted is CalculateForwardWasteRisk
// refined by simulating FEFO consumption of forecastDailyDemand units
// per day against expiring-soon lots, earliest-expiry first, over the
// waste horizon. When forecastDailyDemand <= 0, expectedWasteQty equals
// the raw expiring-soon quantity.
func CalculateForwardWasteRiskDemandAdjusted(lots []model.Lot, receiptDate time.Time, proposedQty, skuShelfLifeDays, minShelfLifeDays, wasteHorizonDays int, forecastDailyDemand float64) (adjustedWasteRiskPercent float64, totalOnHand, expiringSoonQty, expectedWasteQty int) {
	combined := lots
	if proposedQty > 0 {
		combined = append(append([]model.Lot{}, lots...), virtualIncomingLot(receiptDate, proposedQty, skuShelfLifeDays))
	}

	result := CalculateUsableStock(combined, receiptDate, minShelfLifeDays, wasteHorizonDays)
	expectedWaste := calculateExpectedWaste(combined, receiptDate, minShelfLifeDays, wasteHorizonDays, forecastDailyDemand)

	var adjustedRisk float64
	if result.TotalOnHand > 0 {
		adjustedRisk = float64(expectedWaste) / float64(result.TotalOnHand) * 100
	}

	return adjustedRisk, result.TotalOnHand, result.ExpiringSoonQty, expectedWaste
}

type expiringLot struct {
	qty            int
	daysUntilExpiry int
}

func calculateExpectedWaste(lots []model.Lot, checkDate time.Time, minShelfLifeDays, wasteHorizonDays int, forecastDailyDemand float64) int {
	var expiring []expiringLot
	for _, l := range lots {
		if l.QtyOnHand <= 0 || l.ExpiryDate == nil {
			continue
		}
		daysLeft, _ := daysUntilExpiry(l.ExpiryDate, checkDate)
		if daysLeft < minShelfLifeDays || daysLeft > wasteHorizonDays {
			continue
		}
		expiring = append(expiring, expiringLot{qty: l.QtyOnHand, daysUntilExpiry: daysLeft})
	}
	if len(expiring) == 0 {
		return 0
	}

	if forecastDailyDemand <= 0 {
		var sum int
		for _, e := range expiring {
			sum += e.qty
		}
		return sum
	}

	sort.Slice(expiring, func(i, j int) bool { return expiring[i].daysUntilExpiry < expiring[j].daysUntilExpiry })

	var totalWaste int
	var cumulativeDemandDays float64
	for _, e := range expiring {
		demandWindowDays := float64(e.daysUntilExpiry) - cumulativeDemandDays
		if demandWindowDays < 0 {
			demandWindowDays = 0
		}
		expectedDemand := forecastDailyDemand * demandWindowDays

		waste := float64(e.qty) - expectedDemand
		if waste < 0 {
			waste = 0
		}
		totalWaste += int(waste)

		consumed := expectedDemand
		if consumed > float64(e.qty) {
			consumed = float64(e.qty)
		}
		if consumed > 0 {
			cumulativeDemandDays += consumed / forecastDailyDemand
		}
	}
	return totalWaste
}

// ApplyShelfLifePenalty adjusts proposedQty given waste risk, mode,
// threshold and factor. Below threshold: no change. Hard mode at/above
// threshold: qty forced to zero. Soft mode: qty scaled down by
// (1-factor), rounded down.
func ApplyShelfLifePenalty(proposedQty int, wasteRiskPercent, wasteRiskThreshold float64, mode model.WastePenaltyMode, penaltyFactor float64) (adjustedQty int, reason string) {
	if wasteRiskPercent < wasteRiskThreshold {
		return proposedQty, ""
	}

	switch mode {
	case model.WastePenaltyHard:
		return 0, fmt.Sprintf("blocked: waste risk %.1f%% >= %.1f%% (hard mode)", wasteRiskPercent, wasteRiskThreshold)
	case model.WastePenaltySoft:
		reduced := int(float64(proposedQty) * (1.0 - penaltyFactor))
		return reduced, fmt.Sprintf("reduced %.0f%% (waste risk %.1f%%)", penaltyFactor*100, wasteRiskPercent)
	default:
		return proposedQty, ""
	}
}
