package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"replenisher/internal/model"
)

func openTestFlatFile(t *testing.T) *FlatFileStorage {
	t.Helper()
	f, err := NewFlatFileStorage(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("NewFlatFileStorage: %v", err)
	}
	return f
}

func TestNewFlatFileStorage_CreatesEverySchemaFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFlatFileStorage(dir, 2); err != nil {
		t.Fatalf("NewFlatFileStorage: %v", err)
	}
	for name := range schemas {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}

func TestFlatFileStorage_SKURoundTrip(t *testing.T) {
	f := openTestFlatFile(t)

	skus := []model.SKU{
		{SKU: "SKU001", Description: "Widget", MOQ: 5, PackSize: 3, LeadTimeDays: 1,
			TargetCSL: 0.95, ForecastMethod: "simple", InAssortment: true, EAN: "0000000000001"},
	}
	if err := f.SaveSKUs(skus); err != nil {
		t.Fatalf("SaveSKUs: %v", err)
	}

	got, err := f.LoadSKUs()
	if err != nil {
		t.Fatalf("LoadSKUs: %v", err)
	}
	if len(got) != 1 || got[0].SKU != "SKU001" || got[0].MOQ != 5 || got[0].TargetCSL != 0.95 {
		t.Fatalf("unexpected SKUs: %+v", got)
	}
	if !got[0].InAssortment {
		t.Fatalf("expected InAssortment=true, got %+v", got[0])
	}
}

func TestFlatFileStorage_TransactionsPreserveReceiptDateAndSeq(t *testing.T) {
	f := openTestFlatFile(t)

	receiptDate := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		{Date: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), SKU: "A", Event: model.EventOrder, Qty: 30, ReceiptDate: &receiptDate, Seq: 0},
		{Date: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), SKU: "A", Event: model.EventOrder, Qty: 50, Seq: 1},
	}
	if err := f.SaveTransactions(txns); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}

	got, err := f.LoadTransactions()
	if err != nil {
		t.Fatalf("LoadTransactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].ReceiptDate == nil || !got[0].ReceiptDate.Equal(receiptDate) {
		t.Fatalf("receipt date lost on round-trip: %+v", got[0])
	}
	if got[1].ReceiptDate != nil {
		t.Fatalf("expected nil receipt date for second txn, got %v", got[1].ReceiptDate)
	}
	if got[0].Seq != 0 || got[1].Seq != 1 {
		t.Fatalf("seq not preserved: %+v", got)
	}
}

func TestFlatFileStorage_AppendTransactionAddsWithoutLosingExisting(t *testing.T) {
	f := openTestFlatFile(t)

	first := model.Transaction{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "A", Event: model.EventSnapshot, Qty: 100}
	if err := f.SaveTransactions([]model.Transaction{first}); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}

	second := model.Transaction{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), SKU: "A", Event: model.EventSale, Qty: 5}
	if err := f.AppendTransaction(second); err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}

	got, err := f.LoadTransactions()
	if err != nil {
		t.Fatalf("LoadTransactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions after append, got %d", len(got))
	}
}

func TestFlatFileStorage_ReceivingLogsPreserveOrderIDs(t *testing.T) {
	f := openTestFlatFile(t)

	recvs := []model.ReceivingLog{
		{DocumentID: "DDT-1", ReceiptID: "R1", Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			SKU: "A", QtyReceived: 70, ReceiptDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			OrderIDs: []string{"ORD-1", "ORD-2"}},
	}
	if err := f.SaveReceivingLogs(recvs); err != nil {
		t.Fatalf("SaveReceivingLogs: %v", err)
	}

	got, err := f.LoadReceivingLogs()
	if err != nil {
		t.Fatalf("LoadReceivingLogs: %v", err)
	}
	if len(got) != 1 || len(got[0].OrderIDs) != 2 || got[0].OrderIDs[1] != "ORD-2" {
		t.Fatalf("order IDs not preserved across CSV round-trip: %+v", got)
	}
}

func TestFlatFileStorage_WriteRowsCreatesTimestampedBackupAndPrunesRetention(t *testing.T) {
	f := openTestFlatFile(t)

	for i := 0; i < 3; i++ {
		if err := f.SaveSKUs([]model.SKU{{SKU: "A", Description: "rev"}}); err != nil {
			t.Fatalf("SaveSKUs iteration %d: %v", i, err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	matches, err := filepath.Glob(filepath.Join(f.dataDir, "skus.csv.backup.*"))
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(matches) > f.backupRetention {
		t.Fatalf("expected at most %d backups retained, got %d: %v", f.backupRetention, len(matches), matches)
	}
	if len(matches) < 2 {
		t.Fatalf("expected the retention floor of 2 backups to be kept, got %d", len(matches))
	}
}

func TestFlatFileStorage_AppendAuditLogIsAppendOnly(t *testing.T) {
	f := openTestFlatFile(t)

	entries := []model.AuditLog{
		{Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), Operation: "RECORD_EXCEPTION", SKU: "A", Details: "waste", User: "svc", RunID: "run-1"},
		{Timestamp: time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC), Operation: "RECORD_EXCEPTION", SKU: "B", Details: "waste", User: "svc", RunID: "run-1"},
	}
	for _, e := range entries {
		if err := f.AppendAuditLog(e); err != nil {
			t.Fatalf("AppendAuditLog: %v", err)
		}
	}

	contents, err := os.ReadFile(f.path("audit_log.csv"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	lines := 0
	for _, b := range contents {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 { // header + two rows
		t.Fatalf("expected 3 lines (header + 2 rows), got %d: %q", lines, contents)
	}
}
