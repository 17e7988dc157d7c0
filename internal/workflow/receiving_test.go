package workflow

import (
	"context"
	"testing"

	"replenisher/internal/model"
)

// TestCloseReceiptByDocument_Idempotent reproduces spec.md Scenario B:
// two orders for one SKU, a partial receipt against the first, then a
// repeat call with the same document_id that changes nothing.
func TestCloseReceiptByDocument_Idempotent(t *testing.T) {
	wf, store, done := newTestWorkflows(t)
	defer done()

	store.orders = []model.OrderLog{
		{OrderID: "ORD-1", Date: date("2026-02-01"), SKU: "WIDGET-A", QtyOrdered: 100, Status: model.OrderPending},
		{OrderID: "ORD-2", Date: date("2026-02-02"), SKU: "WIDGET-A", QtyOrdered: 50, Status: model.OrderPending},
	}

	ctx := context.Background()
	skus := map[string]model.SKU{"WIDGET-A": {SKU: "WIDGET-A"}}
	items := []ReceiveItem{{SKU: "WIDGET-A", QtyReceived: 70}}

	result, err := wf.CloseReceiptByDocument(ctx, skus, "DDT-2026-001", date("2026-02-10"), items, "")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("first call should not be already_processed")
	}
	if len(result.Transactions) != 1 || result.Transactions[0].Qty != 70 {
		t.Fatalf("expected one RECEIPT txn qty=70, got %+v", result.Transactions)
	}

	var ord1, ord2 model.OrderLog
	for _, o := range store.orders {
		switch o.OrderID {
		case "ORD-1":
			ord1 = o
		case "ORD-2":
			ord2 = o
		}
	}
	if ord1.QtyReceived != 70 || ord1.Status != model.OrderPartial {
		t.Fatalf("order 1 = %+v, want qty_received=70 status=PARTIAL", ord1)
	}
	if ord2.QtyReceived != 0 || ord2.Status != model.OrderPending {
		t.Fatalf("order 2 should be untouched, got %+v", ord2)
	}

	txnCountBefore := len(store.txns)
	orderSnapshot := append([]model.OrderLog{}, store.orders...)

	repeat, err := wf.CloseReceiptByDocument(ctx, skus, "DDT-2026-001", date("2026-02-10"), items, "")
	if err != nil {
		t.Fatalf("repeat call: %v", err)
	}
	if !repeat.AlreadyProcessed {
		t.Fatal("repeat call should report already_processed=true")
	}
	if len(store.txns) != txnCountBefore {
		t.Fatalf("repeat call must not add transactions: before=%d after=%d", txnCountBefore, len(store.txns))
	}
	if len(store.orders) != len(orderSnapshot) {
		t.Fatal("repeat call must not change order state")
	}
	for i := range orderSnapshot {
		if store.orders[i] != orderSnapshot[i] {
			t.Fatalf("repeat call mutated order %d: %+v -> %+v", i, orderSnapshot[i], store.orders[i])
		}
	}
}

// TestCloseReceiptByDocument_Overstock verifies residual quantity beyond
// pending orders is accepted without an UNFULFILLED event.
func TestCloseReceiptByDocument_Overstock(t *testing.T) {
	wf, store, done := newTestWorkflows(t)
	defer done()

	store.orders = []model.OrderLog{
		{OrderID: "ORD-1", Date: date("2026-02-01"), SKU: "WIDGET-B", QtyOrdered: 10, Status: model.OrderPending},
	}

	ctx := context.Background()
	skus := map[string]model.SKU{"WIDGET-B": {SKU: "WIDGET-B"}}
	items := []ReceiveItem{{SKU: "WIDGET-B", QtyReceived: 25}}

	result, err := wf.CloseReceiptByDocument(ctx, skus, "DDT-OVERSTOCK", date("2026-02-10"), items, "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(result.Transactions) != 1 || result.Transactions[0].Qty != 25 {
		t.Fatalf("expected one RECEIPT txn qty=25, got %+v", result.Transactions)
	}
	for _, tx := range store.txns {
		if tx.Event == model.EventUnfulfilled {
			t.Fatal("overstock must not emit UNFULFILLED")
		}
	}

	var ord1 model.OrderLog
	for _, o := range store.orders {
		if o.OrderID == "ORD-1" {
			ord1 = o
		}
	}
	if ord1.QtyReceived != 10 || ord1.Status != model.OrderReceived {
		t.Fatalf("order should be fully received, got %+v", ord1)
	}
}

// TestCloseReceiptByDocument_RestrictsToOrderIDs verifies the optional
// order_ids subset restriction preserves FIFO order within the subset.
func TestCloseReceiptByDocument_RestrictsToOrderIDs(t *testing.T) {
	wf, store, done := newTestWorkflows(t)
	defer done()

	store.orders = []model.OrderLog{
		{OrderID: "ORD-1", Date: date("2026-02-01"), SKU: "WIDGET-C", QtyOrdered: 10, Status: model.OrderPending},
		{OrderID: "ORD-2", Date: date("2026-02-02"), SKU: "WIDGET-C", QtyOrdered: 10, Status: model.OrderPending},
	}

	ctx := context.Background()
	skus := map[string]model.SKU{"WIDGET-C": {SKU: "WIDGET-C"}}
	items := []ReceiveItem{{SKU: "WIDGET-C", QtyReceived: 10, OrderIDs: []string{"ORD-2"}}}

	_, err := wf.CloseReceiptByDocument(ctx, skus, "DDT-RESTRICT", date("2026-02-10"), items, "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	var ord1, ord2 model.OrderLog
	for _, o := range store.orders {
		switch o.OrderID {
		case "ORD-1":
			ord1 = o
		case "ORD-2":
			ord2 = o
		}
	}
	if ord1.QtyReceived != 0 {
		t.Fatalf("ORD-1 should be untouched, got %+v", ord1)
	}
	if ord2.QtyReceived != 10 || ord2.Status != model.OrderReceived {
		t.Fatalf("ORD-2 should be fully received, got %+v", ord2)
	}
}
