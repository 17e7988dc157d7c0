// Package storage implements the persistence layer (C2): a single
// Storage abstraction with a flat-file backend, an embedded-SQLite
// backend, and a StorageAdapter that routes to the configured backend
// and falls back to flat-file on SQL-backend write errors.
package storage

import (
	"replenisher/internal/model"
)

// Storage is the read/write abstraction every entity family goes
// through. Every mutation is either wholly visible after return or
// leaves no change: partial writes are never observable.
type Storage interface {
	LoadSKUs() ([]model.SKU, error)
	SaveSKUs(skus []model.SKU) error

	LoadTransactions() ([]model.Transaction, error)
	SaveTransactions(txns []model.Transaction) error
	AppendTransaction(txn model.Transaction) error

	LoadSales() ([]model.SalesRecord, error)
	SaveSales(sales []model.SalesRecord) error

	LoadLots() ([]model.Lot, error)
	SaveLots(lots []model.Lot) error

	LoadOrderLogs() ([]model.OrderLog, error)
	SaveOrderLogs(orders []model.OrderLog) error

	LoadReceivingLogs() ([]model.ReceivingLog, error)
	SaveReceivingLogs(recvs []model.ReceivingLog) error

	LoadPromoWindows() ([]model.PromoWindow, error)
	SavePromoWindows(promos []model.PromoWindow) error

	AppendAuditLog(entry model.AuditLog) error

	Close() error
}
