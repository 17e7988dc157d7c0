package workflow

import (
	"context"
	"testing"
	"time"

	"replenisher/internal/calendar"
	"replenisher/internal/config"
	"replenisher/internal/engine"
	"replenisher/internal/model"
)

// memStorage is an in-memory Storage implementation for workflow tests;
// it mirrors the flat-file backend's all-or-nothing save semantics
// without touching disk.
type memStorage struct {
	skus       []model.SKU
	txns       []model.Transaction
	sales      []model.SalesRecord
	lots       []model.Lot
	orders     []model.OrderLog
	recvLogs   []model.ReceivingLog
	promos     []model.PromoWindow
	auditLogs  []model.AuditLog
}

func (m *memStorage) LoadSKUs() ([]model.SKU, error) { return append([]model.SKU{}, m.skus...), nil }
func (m *memStorage) SaveSKUs(s []model.SKU) error   { m.skus = append([]model.SKU{}, s...); return nil }

func (m *memStorage) LoadTransactions() ([]model.Transaction, error) {
	return append([]model.Transaction{}, m.txns...), nil
}
func (m *memStorage) SaveTransactions(t []model.Transaction) error {
	m.txns = append([]model.Transaction{}, t...)
	return nil
}
func (m *memStorage) AppendTransaction(t model.Transaction) error {
	m.txns = append(m.txns, t)
	return nil
}

func (m *memStorage) LoadSales() ([]model.SalesRecord, error) {
	return append([]model.SalesRecord{}, m.sales...), nil
}
func (m *memStorage) SaveSales(s []model.SalesRecord) error {
	m.sales = append([]model.SalesRecord{}, s...)
	return nil
}

func (m *memStorage) LoadLots() ([]model.Lot, error) { return append([]model.Lot{}, m.lots...), nil }
func (m *memStorage) SaveLots(l []model.Lot) error   { m.lots = append([]model.Lot{}, l...); return nil }

func (m *memStorage) LoadOrderLogs() ([]model.OrderLog, error) {
	return append([]model.OrderLog{}, m.orders...), nil
}
func (m *memStorage) SaveOrderLogs(o []model.OrderLog) error {
	m.orders = append([]model.OrderLog{}, o...)
	return nil
}

func (m *memStorage) LoadReceivingLogs() ([]model.ReceivingLog, error) {
	return append([]model.ReceivingLog{}, m.recvLogs...), nil
}
func (m *memStorage) SaveReceivingLogs(r []model.ReceivingLog) error {
	m.recvLogs = append([]model.ReceivingLog{}, r...)
	return nil
}

func (m *memStorage) LoadPromoWindows() ([]model.PromoWindow, error) {
	return append([]model.PromoWindow{}, m.promos...), nil
}
func (m *memStorage) SavePromoWindows(p []model.PromoWindow) error {
	m.promos = append([]model.PromoWindow{}, p...)
	return nil
}

func (m *memStorage) AppendAuditLog(a model.AuditLog) error {
	m.auditLogs = append(m.auditLogs, a)
	return nil
}
func (m *memStorage) Close() error { return nil }

func newTestWorkflows(t *testing.T) (*Workflows, *memStorage, func()) {
	t.Helper()
	store := &memStorage{}
	cfg := config.Default()
	cal := calendar.New(calendar.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, store, cfg, cal)
	return New(eng), store, func() {
		cancel()
		eng.Shutdown()
	}
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
