package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"replenisher/internal/model"
)

type memStorage struct {
	skus  []model.SKU
	txns  []model.Transaction
	sales []model.SalesRecord
}

func (m *memStorage) LoadSKUs() ([]model.SKU, error) { return m.skus, nil }
func (m *memStorage) SaveSKUs(s []model.SKU) error   { m.skus = s; return nil }

func (m *memStorage) LoadTransactions() ([]model.Transaction, error) { return m.txns, nil }
func (m *memStorage) SaveTransactions(t []model.Transaction) error   { m.txns = t; return nil }
func (m *memStorage) AppendTransaction(t model.Transaction) error    { m.txns = append(m.txns, t); return nil }

func (m *memStorage) LoadSales() ([]model.SalesRecord, error) { return m.sales, nil }
func (m *memStorage) SaveSales(s []model.SalesRecord) error   { m.sales = s; return nil }

func (m *memStorage) LoadLots() ([]model.Lot, error)        { return nil, nil }
func (m *memStorage) SaveLots(l []model.Lot) error          { return nil }
func (m *memStorage) LoadOrderLogs() ([]model.OrderLog, error) { return nil, nil }
func (m *memStorage) SaveOrderLogs(o []model.OrderLog) error   { return nil }
func (m *memStorage) LoadReceivingLogs() ([]model.ReceivingLog, error) { return nil, nil }
func (m *memStorage) SaveReceivingLogs(r []model.ReceivingLog) error   { return nil }
func (m *memStorage) LoadPromoWindows() ([]model.PromoWindow, error)   { return nil, nil }
func (m *memStorage) SavePromoWindows(p []model.PromoWindow) error     { return nil }
func (m *memStorage) AppendAuditLog(a model.AuditLog) error            { return nil }
func (m *memStorage) Close() error                                     { return nil }

func writeLegacyCSV(t *testing.T, rows string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.csv")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestMigrateFromLegacyCSV(t *testing.T) {
	path := writeLegacyCSV(t, "sku,description,quantity,ean\n"+
		"SKU001,Widget,40,0000000000001\n"+
		"SKU002,Gadget,15,\n")

	store := &memStorage{}
	snapshotDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	result := MigrateFromLegacyCSV(path, store, snapshotDate, false)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.MigratedSKUs != 2 {
		t.Fatalf("expected 2 migrated SKUs, got %d", result.MigratedSKUs)
	}
	if len(store.txns) != 2 {
		t.Fatalf("expected 2 SNAPSHOT transactions, got %d", len(store.txns))
	}
	for _, txn := range store.txns {
		if txn.Event != model.EventSnapshot || !txn.Date.Equal(snapshotDate) {
			t.Fatalf("unexpected transaction: %+v", txn)
		}
	}
	if len(store.skus) != 2 {
		t.Fatalf("expected 2 registered SKUs, got %d", len(store.skus))
	}
}

func TestMigrateFromLegacyCSV_SkipsWhenLedgerPopulated(t *testing.T) {
	path := writeLegacyCSV(t, "sku,description,quantity,ean\nSKU001,Widget,40,\n")

	store := &memStorage{txns: []model.Transaction{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "SKU001", Event: model.EventSnapshot, Qty: 5},
	}}

	result := MigrateFromLegacyCSV(path, store, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), false)
	if result.Success {
		t.Fatal("expected migration to be skipped, not succeed")
	}
	if len(store.txns) != 1 {
		t.Fatalf("existing ledger must be untouched, got %d transactions", len(store.txns))
	}
}

func TestMigrateFromLegacyCSV_ForceOverride(t *testing.T) {
	path := writeLegacyCSV(t, "sku,description,quantity,ean\nSKU001,Widget,40,\n")

	store := &memStorage{txns: []model.Transaction{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "SKU001", Event: model.EventSnapshot, Qty: 5},
	}}

	result := MigrateFromLegacyCSV(path, store, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), true)
	if !result.Success {
		t.Fatalf("expected forced migration to succeed, got %+v", result)
	}
	if len(store.txns) != 2 {
		t.Fatalf("expected original + migrated transaction, got %d", len(store.txns))
	}
}

func TestValidateLegacyMigration(t *testing.T) {
	snapshotDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	store := &memStorage{
		skus: []model.SKU{{SKU: "SKU001"}},
		txns: []model.Transaction{
			{Date: snapshotDate, SKU: "SKU001", Event: model.EventSnapshot, Qty: 40},
		},
	}

	ok, err := ValidateLegacyMigration(store, snapshotDate)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok {
		t.Fatal("expected validation to pass the day after the snapshot date")
	}
}
