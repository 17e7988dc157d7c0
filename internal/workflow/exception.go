package workflow

import (
	"context"
	"time"

	"replenisher/internal/engine"
	"replenisher/internal/ledger"
	"replenisher/internal/lots"
	"replenisher/internal/model"
)

// RecordException is C9's entry point: idempotent WASTE/ADJUST/UNFULFILLED
// entry keyed on (date, sku, kind). A matching existing transaction makes
// this call a no-op that returns the existing transaction and
// alreadyRecorded=true (spec.md §4.9, §7's Conflict "idempotency" case).
func (w *Workflows) RecordException(ctx context.Context, kind model.EventKind, sku string, qty int, date *time.Time, notes string) (txn model.Transaction, alreadyRecorded bool, err error) {
	err = w.Eng.Do(ctx, engine.FamilyTransactions, func() error {
		d := time.Now()
		if date != nil {
			d = *date
		}
		d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

		transactions, loadErr := w.Eng.Storage.LoadTransactions()
		if loadErr != nil {
			return loadErr
		}

		for _, t := range transactions {
			if t.SKU == sku && t.Event == kind && t.Date.Equal(d) {
				txn = t
				alreadyRecorded = true
				return nil
			}
		}

		note := notes
		if kind == model.EventWaste {
			allLots, lotErr := w.Eng.Storage.LoadLots()
			if lotErr != nil {
				return lotErr
			}
			var skuLots, otherLots []model.Lot
			for _, l := range allLots {
				if l.SKU == sku {
					skuLots = append(skuLots, l)
				} else {
					otherLots = append(otherLots, l)
				}
			}
			if len(skuLots) > 0 {
				updated, trace, consumeErr := lots.ConsumeFEFO(skuLots, qty)
				if consumeErr != nil {
					return consumeErr
				}
				if err := w.Eng.Storage.SaveLots(append(otherLots, updated...)); err != nil {
					return err
				}
				if fefoNote := lots.FormatFEFONote(trace); fefoNote != "" {
					if note != "" {
						note = note + "; " + fefoNote
					} else {
						note = fefoNote
					}
				}
			}
		}

		txn = model.Transaction{
			Date: d, SKU: sku, Event: kind, Qty: qty, Note: note, Seq: maxTxnSeq(transactions) + 1,
		}
		if saveErr := w.Eng.Storage.AppendTransaction(txn); saveErr != nil {
			return saveErr
		}
		_ = w.Eng.Storage.AppendAuditLog(model.AuditLog{
			Timestamp: time.Now(), Operation: "record_exception", SKU: sku,
			Details: string(kind),
		})
		return nil
	})
	return txn, alreadyRecorded, err
}

// RevertExceptionDay rewrites the ledger atomically, dropping every
// transaction matching (date, sku, kind), and reports how many were
// removed.
func (w *Workflows) RevertExceptionDay(ctx context.Context, date time.Time, sku string, kind model.EventKind) (removed int, err error) {
	err = w.Eng.Do(ctx, engine.FamilyTransactions, func() error {
		transactions, loadErr := w.Eng.Storage.LoadTransactions()
		if loadErr != nil {
			return loadErr
		}
		kept := transactions[:0:0]
		for _, t := range transactions {
			if t.SKU == sku && t.Event == kind && t.Date.Equal(date) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if removed == 0 {
			return nil
		}
		return w.Eng.Storage.SaveTransactions(kept)
	})
	return removed, err
}

// ProcessEndOfDayStock reconciles a declared physical count against the
// theoretical end-of-day stock (spec.md Scenario E): it writes a Sales
// record for the implied qty_sold and triggers FEFO consumption, but
// never writes an ADJUST event for the residual — the residual is
// returned for visibility only.
func (w *Workflows) ProcessEndOfDayStock(ctx context.Context, sku string, eodDate time.Time, declaredOnHand int) (qtySold, adjustment int, err error) {
	err = w.Eng.Do(ctx, engine.FamilySales, func() error {
		transactions, loadErr := w.Eng.Storage.LoadTransactions()
		if loadErr != nil {
			return loadErr
		}
		sales, loadErr := w.Eng.Storage.LoadSales()
		if loadErr != nil {
			return loadErr
		}

		qtySold, adjustment = ledger.CalculateSoldFromEODStock(sku, eodDate, declaredOnHand, transactions, sales)

		if qtySold > 0 {
			var promo bool
			kept := sales[:0:0]
			for _, s := range sales {
				if s.SKU == sku && s.Date.Equal(eodDate) {
					promo = s.PromoFlag
					continue
				}
				kept = append(kept, s)
			}
			kept = append(kept, model.SalesRecord{Date: eodDate, SKU: sku, QtySold: qtySold, PromoFlag: promo})
			if saveErr := w.Eng.Storage.SaveSales(kept); saveErr != nil {
				return saveErr
			}

			allLots, lotErr := w.Eng.Storage.LoadLots()
			if lotErr != nil {
				return lotErr
			}
			var skuLots, otherLots []model.Lot
			for _, l := range allLots {
				if l.SKU == sku {
					skuLots = append(skuLots, l)
				} else {
					otherLots = append(otherLots, l)
				}
			}
			if len(skuLots) > 0 {
				updated, _, consumeErr := lots.ConsumeFEFO(skuLots, qtySold)
				if consumeErr == nil {
					_ = w.Eng.Storage.SaveLots(append(otherLots, updated...))
				}
			}
		}

		_ = w.Eng.Storage.AppendAuditLog(model.AuditLog{
			Timestamp: time.Now(), Operation: "process_eod_stock", SKU: sku,
		})
		return nil
	})
	return qtySold, adjustment, err
}
