// Package workflow implements the write-side engine facades (C7-C9):
// order proposal generation and confirmation, document-idempotent
// receiving reconciliation, and exception recording. Every entry point
// either succeeds wholly, fails wholly, or reports an idempotent no-op —
// workflows never swallow a write error (spec.md §7).
package workflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"replenisher/internal/calendar"
	"replenisher/internal/demand"
	"replenisher/internal/engine"
	"replenisher/internal/forecast"
	"replenisher/internal/ledger"
	"replenisher/internal/lots"
	"replenisher/internal/model"
)

// Workflows binds the write-side facades to the running Engine.
type Workflows struct {
	Eng *engine.Engine
}

// New builds a Workflows instance bound to eng.
func New(eng *engine.Engine) *Workflows {
	return &Workflows{Eng: eng}
}

// OrderProposal is C7's output: one SKU's recommended order quantity plus
// the forecasting and waste-risk metadata that produced it, never a
// partial result (spec.md §7: "never partial state").
type OrderProposal struct {
	SKU                     string
	Description             string
	OnHand                  int
	OnOrder                 int
	DailySalesAvg           float64
	ProposedQty             int
	ReceiptDate             time.Time
	ProtectionPeriodDays    int
	ForecastMethod          string
	MuP                     float64
	SigmaP                  float64
	SafetyStock             float64
	WasteRiskPercent        float64
	ShelfLifePenaltyApplied bool
	PenaltyReason           string
	IsCensored              bool
	NCensored               int
}

func roundUpToMultiple(qty, multiple int) int {
	if multiple <= 1 {
		if qty < 0 {
			return 0
		}
		return qty
	}
	if qty <= 0 {
		return 0
	}
	return ((qty + multiple - 1) / multiple) * multiple
}

// BuildOrderProposal runs the full C7 pipeline for one SKU: protection
// window (C1), censoring flags and current position (C3), the demand
// distribution (C6), safety stock (C5), and forward waste risk with a
// single fixed-point iteration (C4), per spec.md §4.7.
func BuildOrderProposal(
	cal *calendar.Calendar,
	sku model.SKU,
	today time.Time,
	lane calendar.Lane,
	transactions []model.Transaction,
	sales []model.SalesRecord,
	skuLots []model.Lot,
	oosLookbackDays int,
	mcDefaults demand.MCParams,
) (OrderProposal, error) {
	r1, _, protectionDays, err := cal.ProtectionWindow(today, lane)
	if err != nil {
		return OrderProposal{}, err
	}

	history, censoredFlags, nCensored := buildHistory(sku.SKU, sales, transactions, today, oosLookbackDays)

	mcParams := mcDefaults
	if sku.MCDistribution != "" {
		mcParams = demand.MCParams{
			Distribution:      sku.MCDistribution,
			NSimulations:      sku.MCNSimulations,
			RandomSeed:        sku.MCRandomSeed,
			OutputStat:        sku.MCOutputStat,
			OutputPercentile:  sku.MCOutputPercentile,
			HorizonMode:       sku.MCHorizonMode,
			HorizonDays:       sku.MCHorizonDays,
			ExpectedWasteRate: sku.MCExpectedWasteRate,
		}
	}

	dist := demand.BuildDemandDistribution(
		sku.ForecastMethod, history, protectionDays, today,
		censoredFlags, 0.2, 8, mcParams, sku.MCExpectedWasteRate,
	)

	safetyStock := forecast.SafetyStockForCSL(dist.SigmaP, sku.TargetCSL)
	if float64(sku.SafetyStock) > safetyStock {
		safetyStock = float64(sku.SafetyStock)
	}

	stock := ledger.CalculateAsOf(sku.SKU, today, transactions, sales)
	inventoryPosition := ledger.InventoryPosition(sku.SKU, today, transactions, sales)

	targetPosition := dist.MuP + safetyStock
	rawQty := int(math.Ceil(targetPosition)) - inventoryPosition
	if rawQty < 0 {
		rawQty = 0
	}

	var dailyDemand float64
	if protectionDays > 0 {
		dailyDemand = dist.MuP / float64(protectionDays)
	}

	adjustedQty := rawQty
	var wasteRisk float64
	var penaltyApplied bool
	var penaltyReason string
	if sku.ShelfLifeDays > 0 && rawQty > 0 {
		adjustedRisk, _, _, _ := lots.CalculateForwardWasteRiskDemandAdjusted(
			skuLots, r1, rawQty, sku.ShelfLifeDays, sku.MinShelfLifeDays, sku.WasteHorizonDays, dailyDemand,
		)
		wasteRisk = adjustedRisk
		reducedQty, reason := lots.ApplyShelfLifePenalty(rawQty, wasteRisk, sku.WasteRiskThresholdPct, sku.WastePenaltyMode, sku.WastePenaltyFactor)
		if reducedQty != rawQty {
			adjustedQty = reducedQty
			penaltyApplied = true
			penaltyReason = reason
		}
	}

	qty := roundUpToMultiple(adjustedQty, sku.PackSize)
	qty = roundUpToMultiple(qty, sku.MOQ)
	if sku.MaxStock > 0 {
		headroom := sku.MaxStock - inventoryPosition
		if headroom < 0 {
			headroom = 0
		}
		if qty > headroom {
			qty = headroom
		}
	}

	var dailySalesAvg float64
	if n := len(history); n > 0 {
		var sum float64
		for _, o := range history {
			sum += o.QtySold
		}
		dailySalesAvg = sum / float64(n)
	}

	return OrderProposal{
		SKU:                     sku.SKU,
		Description:             sku.Description,
		OnHand:                  stock.OnHand,
		OnOrder:                 stock.OnOrder,
		DailySalesAvg:           dailySalesAvg,
		ProposedQty:             qty,
		ReceiptDate:             r1,
		ProtectionPeriodDays:    protectionDays,
		ForecastMethod:          dist.ForecastMethod,
		MuP:                     dist.MuP,
		SigmaP:                  dist.SigmaP,
		SafetyStock:             safetyStock,
		WasteRiskPercent:        wasteRisk,
		ShelfLifePenaltyApplied: penaltyApplied,
		PenaltyReason:           penaltyReason,
		IsCensored:              nCensored > 0,
		NCensored:               nCensored,
	}, nil
}

func buildHistory(sku string, sales []model.SalesRecord, transactions []model.Transaction, today time.Time, lookbackDays int) ([]forecast.Observation, []bool, int) {
	var own []model.SalesRecord
	for _, s := range sales {
		if s.SKU == sku && s.Date.Before(today) {
			own = append(own, s)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].Date.Before(own[j].Date) })

	history := make([]forecast.Observation, len(own))
	censoredFlags := make([]bool, len(own))
	var nCensored int
	for i, s := range own {
		censored, _ := ledger.IsDayCensored(sku, s.Date, transactions, sales, lookbackDays)
		history[i] = forecast.Observation{Date: s.Date, QtySold: float64(s.QtySold), Censored: censored}
		censoredFlags[i] = censored
		if censored {
			nCensored++
		}
	}
	return history, censoredFlags, nCensored
}

// ConfirmOrders appends one ORDER transaction and one order-log record
// per accepted proposal (ProposedQty > 0), minting deterministic unique
// order IDs from a timestamp-and-sequence scheme. All writes for the
// batch succeed or none do.
func (w *Workflows) ConfirmOrders(ctx context.Context, proposals []OrderProposal, orderDate time.Time) ([]model.OrderLog, error) {
	var created []model.OrderLog
	err := w.Eng.Do(ctx, engine.FamilyOrders, func() error {
		existingOrders, err := w.Eng.Storage.LoadOrderLogs()
		if err != nil {
			return err
		}
		existingTxns, err := w.Eng.Storage.LoadTransactions()
		if err != nil {
			return err
		}

		stamp := orderDate.Format("20060102")
		prefix := "ORD-" + stamp + "-"
		seq := 0
		for _, o := range existingOrders {
			if strings.HasPrefix(o.OrderID, prefix) {
				seq++
			}
		}

		newTxns := make([]model.Transaction, 0, len(proposals))
		newOrders := make([]model.OrderLog, 0, len(proposals))
		maxSeq := maxTxnSeq(existingTxns)

		for _, p := range proposals {
			if p.ProposedQty <= 0 {
				continue
			}
			seq++
			orderID := fmt.Sprintf("ORD-%s-%04d", stamp, seq)
			receiptDate := p.ReceiptDate

			maxSeq++
			newTxns = append(newTxns, model.Transaction{
				Date:        orderDate,
				SKU:         p.SKU,
				Event:       model.EventOrder,
				Qty:         p.ProposedQty,
				ReceiptDate: &receiptDate,
				Note:        fmt.Sprintf("order %s, forecast=%s", orderID, p.ForecastMethod),
				Seq:         maxSeq,
			})
			newOrders = append(newOrders, model.OrderLog{
				OrderID:     orderID,
				Date:        orderDate,
				SKU:         p.SKU,
				QtyOrdered:  p.ProposedQty,
				QtyReceived: 0,
				Status:      model.OrderPending,
				ReceiptDate: receiptDate,
			})
		}

		if len(newTxns) == 0 {
			return nil
		}

		if err := w.Eng.Storage.SaveTransactions(append(existingTxns, newTxns...)); err != nil {
			return err
		}
		if err := w.Eng.Storage.SaveOrderLogs(append(existingOrders, newOrders...)); err != nil {
			return err
		}

		runID := uuid.NewString()
		for _, o := range newOrders {
			_ = w.Eng.Storage.AppendAuditLog(model.AuditLog{
				Timestamp: time.Now(), Operation: "confirm_order", SKU: o.SKU,
				Details: fmt.Sprintf("order_id=%s qty=%d", o.OrderID, o.QtyOrdered), RunID: runID,
			})
		}

		created = newOrders
		return nil
	})
	return created, err
}

func maxTxnSeq(txns []model.Transaction) int {
	max := -1
	for _, t := range txns {
		if t.Seq > max {
			max = t.Seq
		}
	}
	return max
}
