package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/google/uuid"

	"replenisher/internal/engine"
	"replenisher/internal/model"
)

// receivingGroup collapses duplicate concurrent close_receipt_by_document
// calls for the same document_id into a single execution, per SPEC_FULL
// §4.2's StorageAdapter/singleflight wiring.
var receivingGroup singleflight.Group

// ReceiveItem is one line of a receiving document.
type ReceiveItem struct {
	SKU         string
	QtyReceived int
	OrderIDs    []string // optional subset restriction, FIFO order preserved
}

// ReceiveResult is the outcome of one close_receipt_by_document call.
type ReceiveResult struct {
	AlreadyProcessed bool
	Transactions     []model.Transaction
	UpdatedOrders    []model.OrderLog
	ReceivingLog     model.ReceivingLog
}

// CloseReceiptByDocument is C8's entry point: document-idempotent,
// FIFO-allocated receiving reconciliation. Calling it twice with the
// same documentID is a no-op on the second call (spec.md §4.8, §8
// invariant 3).
func (w *Workflows) CloseReceiptByDocument(ctx context.Context, skus map[string]model.SKU, documentID string, receiptDate time.Time, items []ReceiveItem, notes string) (ReceiveResult, error) {
	v, err, _ := receivingGroup.Do(documentID, func() (any, error) {
		return w.closeReceiptByDocument(ctx, skus, documentID, receiptDate, items, notes)
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	return v.(ReceiveResult), nil
}

func (w *Workflows) closeReceiptByDocument(ctx context.Context, skus map[string]model.SKU, documentID string, receiptDate time.Time, items []ReceiveItem, notes string) (ReceiveResult, error) {
	var result ReceiveResult

	err := w.Eng.Do(ctx, engine.FamilyReceivingLogs, func() error {
		recvLogs, err := w.Eng.Storage.LoadReceivingLogs()
		if err != nil {
			return err
		}
		for _, rl := range recvLogs {
			if rl.DocumentID == documentID || rl.ReceiptID == documentID {
				result = ReceiveResult{AlreadyProcessed: true}
				return nil
			}
		}

		orderLogs, err := w.Eng.Storage.LoadOrderLogs()
		if err != nil {
			return err
		}
		transactions, err := w.Eng.Storage.LoadTransactions()
		if err != nil {
			return err
		}
		allLots, err := w.Eng.Storage.LoadLots()
		if err != nil {
			return err
		}

		receiptID := "RCPT-" + uuid.NewString()[:8]
		var newTxns []model.Transaction
		var newRecvLogs []model.ReceivingLog
		maxSeq := maxTxnSeq(transactions)

		for _, item := range items {
			allocatedIDs, updatedOrders := allocateFIFO(orderLogs, item)
			orderLogs = updatedOrders

			note := fmt.Sprintf("document=%s receipt=%s orders=%s", documentID, receiptID, strings.Join(allocatedIDs, ","))
			if len(allocatedIDs) == 0 {
				if notes != "" {
					note = fmt.Sprintf("document=%s receipt=%s no matching orders; %s", documentID, receiptID, notes)
				} else {
					note = fmt.Sprintf("document=%s receipt=%s no matching orders", documentID, receiptID)
				}
			}

			maxSeq++
			newTxns = append(newTxns, model.Transaction{
				Date: receiptDate, SKU: item.SKU, Event: model.EventReceipt,
				Qty: item.QtyReceived, ReceiptDate: &receiptDate, Note: note, Seq: maxSeq,
			})

			if sku, ok := skus[item.SKU]; ok && sku.ShelfLifeDays > 0 {
				expiry := receiptDate.AddDate(0, 0, sku.ShelfLifeDays)
				allLots = append(allLots, model.Lot{
					LotID: fmt.Sprintf("LOT-%s-%s", item.SKU, receiptID), SKU: item.SKU,
					ExpiryDate: &expiry, QtyOnHand: item.QtyReceived,
					ReceiptID: receiptID, ReceiptDate: receiptDate,
				})
			} else {
				allLots = append(allLots, model.Lot{
					LotID: fmt.Sprintf("LOT-%s-%s", item.SKU, receiptID), SKU: item.SKU,
					QtyOnHand: item.QtyReceived, ReceiptID: receiptID, ReceiptDate: receiptDate,
				})
			}

			newRecvLogs = append(newRecvLogs, model.ReceivingLog{
				DocumentID: documentID, ReceiptID: receiptID, Date: receiptDate, SKU: item.SKU,
				QtyReceived: item.QtyReceived, ReceiptDate: receiptDate, OrderIDs: dedupe(allocatedIDs),
			})
		}

		if err := w.Eng.Storage.SaveTransactions(append(transactions, newTxns...)); err != nil {
			return err
		}
		if err := w.Eng.Storage.SaveOrderLogs(orderLogs); err != nil {
			return err
		}
		if err := w.Eng.Storage.SaveLots(allLots); err != nil {
			return err
		}
		if err := w.Eng.Storage.SaveReceivingLogs(append(recvLogs, newRecvLogs...)); err != nil {
			return err
		}

		runID := uuid.NewString()
		_ = w.Eng.Storage.AppendAuditLog(model.AuditLog{
			Timestamp: time.Now(), Operation: "close_receipt_by_document",
			Details: fmt.Sprintf("document=%s items=%d", documentID, len(items)), RunID: runID,
		})

		var primary model.ReceivingLog
		if len(newRecvLogs) > 0 {
			primary = newRecvLogs[0]
		}
		result = ReceiveResult{Transactions: newTxns, UpdatedOrders: orderLogs, ReceivingLog: primary}
		return nil
	})

	return result, err
}

// allocateFIFO allocates item.QtyReceived across item.SKU's pending
// orders in FIFO (date-ascending) order, optionally restricted to
// item.OrderIDs while preserving FIFO order. Quantity beyond the sum of
// outstanding order quantities is accepted as overstock and allocates to
// no order (spec.md §4.8).
func allocateFIFO(orderLogs []model.OrderLog, item ReceiveItem) (allocatedIDs []string, updated []model.OrderLog) {
	updated = make([]model.OrderLog, len(orderLogs))
	copy(updated, orderLogs)

	var pendingIdx []int
	for i, o := range updated {
		if o.SKU != item.SKU {
			continue
		}
		if o.Status != model.OrderPending && o.Status != model.OrderPartial {
			continue
		}
		pendingIdx = append(pendingIdx, i)
	}
	sort.SliceStable(pendingIdx, func(a, b int) bool {
		return updated[pendingIdx[a]].Date.Before(updated[pendingIdx[b]].Date)
	})

	if len(item.OrderIDs) > 0 {
		allowed := make(map[string]bool, len(item.OrderIDs))
		for _, id := range item.OrderIDs {
			allowed[id] = true
		}
		filtered := pendingIdx[:0:0]
		for _, idx := range pendingIdx {
			if allowed[updated[idx].OrderID] {
				filtered = append(filtered, idx)
			}
		}
		pendingIdx = filtered
	}

	remaining := item.QtyReceived
	for _, idx := range pendingIdx {
		if remaining <= 0 {
			break
		}
		o := &updated[idx]
		outstanding := o.QtyOrdered - o.QtyReceived
		if outstanding <= 0 {
			continue
		}
		alloc := outstanding
		if remaining < alloc {
			alloc = remaining
		}
		o.QtyReceived += alloc
		o.Status = model.DeriveOrderStatus(o.QtyOrdered, o.QtyReceived)
		remaining -= alloc
		allocatedIDs = append(allocatedIDs, o.OrderID)
	}

	return allocatedIDs, updated
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
