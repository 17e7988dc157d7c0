package storage

import (
	"fmt"

	"replenisher/internal/logger"
	"replenisher/internal/model"
)

// StorageAdapter routes every entity operation to a configured primary
// backend. Any error returned by the SQL backend on a write call falls
// back to a flat-file backend, logging a warning; the flat-file backend
// itself has no further fallback. Reads are never retried across
// backends: a read failure is surfaced as-is.
type StorageAdapter struct {
	primary  Storage
	fallback Storage // nil when primary is already the flat-file backend
}

// NewStorageAdapter wires primary as the configured backend. fallback may
// be nil; it is only consulted on a primary write failure.
func NewStorageAdapter(primary, fallback Storage) *StorageAdapter {
	return &StorageAdapter{primary: primary, fallback: fallback}
}

func (a *StorageAdapter) writeFallback(op string, err error, retry func(Storage) error) error {
	if a.fallback == nil {
		return err
	}
	logger.Warn("storage", fmt.Sprintf("%s failed on primary backend, falling back to flat-file: %v", op, err))
	return retry(a.fallback)
}

func (a *StorageAdapter) LoadSKUs() ([]model.SKU, error) { return a.primary.LoadSKUs() }

func (a *StorageAdapter) SaveSKUs(skus []model.SKU) error {
	if err := a.primary.SaveSKUs(skus); err != nil {
		return a.writeFallback("SaveSKUs", err, func(s Storage) error { return s.SaveSKUs(skus) })
	}
	return nil
}

func (a *StorageAdapter) LoadTransactions() ([]model.Transaction, error) {
	return a.primary.LoadTransactions()
}

func (a *StorageAdapter) SaveTransactions(txns []model.Transaction) error {
	if err := a.primary.SaveTransactions(txns); err != nil {
		return a.writeFallback("SaveTransactions", err, func(s Storage) error { return s.SaveTransactions(txns) })
	}
	return nil
}

func (a *StorageAdapter) AppendTransaction(txn model.Transaction) error {
	if err := a.primary.AppendTransaction(txn); err != nil {
		return a.writeFallback("AppendTransaction", err, func(s Storage) error { return s.AppendTransaction(txn) })
	}
	return nil
}

func (a *StorageAdapter) LoadSales() ([]model.SalesRecord, error) { return a.primary.LoadSales() }

func (a *StorageAdapter) SaveSales(sales []model.SalesRecord) error {
	if err := a.primary.SaveSales(sales); err != nil {
		return a.writeFallback("SaveSales", err, func(s Storage) error { return s.SaveSales(sales) })
	}
	return nil
}

func (a *StorageAdapter) LoadLots() ([]model.Lot, error) { return a.primary.LoadLots() }

func (a *StorageAdapter) SaveLots(lots []model.Lot) error {
	if err := a.primary.SaveLots(lots); err != nil {
		return a.writeFallback("SaveLots", err, func(s Storage) error { return s.SaveLots(lots) })
	}
	return nil
}

func (a *StorageAdapter) LoadOrderLogs() ([]model.OrderLog, error) { return a.primary.LoadOrderLogs() }

func (a *StorageAdapter) SaveOrderLogs(orders []model.OrderLog) error {
	if err := a.primary.SaveOrderLogs(orders); err != nil {
		return a.writeFallback("SaveOrderLogs", err, func(s Storage) error { return s.SaveOrderLogs(orders) })
	}
	return nil
}

func (a *StorageAdapter) LoadReceivingLogs() ([]model.ReceivingLog, error) {
	return a.primary.LoadReceivingLogs()
}

func (a *StorageAdapter) SaveReceivingLogs(recvs []model.ReceivingLog) error {
	if err := a.primary.SaveReceivingLogs(recvs); err != nil {
		return a.writeFallback("SaveReceivingLogs", err, func(s Storage) error { return s.SaveReceivingLogs(recvs) })
	}
	return nil
}

func (a *StorageAdapter) LoadPromoWindows() ([]model.PromoWindow, error) {
	return a.primary.LoadPromoWindows()
}

func (a *StorageAdapter) SavePromoWindows(promos []model.PromoWindow) error {
	if err := a.primary.SavePromoWindows(promos); err != nil {
		return a.writeFallback("SavePromoWindows", err, func(s Storage) error { return s.SavePromoWindows(promos) })
	}
	return nil
}

func (a *StorageAdapter) AppendAuditLog(entry model.AuditLog) error {
	if err := a.primary.AppendAuditLog(entry); err != nil {
		return a.writeFallback("AppendAuditLog", err, func(s Storage) error { return s.AppendAuditLog(entry) })
	}
	return nil
}

func (a *StorageAdapter) Close() error {
	if a.fallback != nil {
		_ = a.fallback.Close()
	}
	return a.primary.Close()
}

// Open builds the configured primary backend plus its flat-file fallback
// (nil fallback when the backend already is flatfile) per spec.md §4.2:
// the backend choice is made at startup from configuration.
func Open(backend string, dataDir, databasePath string, backupRetention int) (*StorageAdapter, error) {
	flatfile, err := NewFlatFileStorage(dataDir, backupRetention)
	if err != nil {
		return nil, err
	}

	if backend != "database" {
		return NewStorageAdapter(flatfile, nil), nil
	}

	sqlStore, err := OpenSQLStorage(databasePath)
	if err != nil {
		logger.Warn("storage", fmt.Sprintf("opening database backend failed, using flat-file only: %v", err))
		return NewStorageAdapter(flatfile, nil), nil
	}
	return NewStorageAdapter(sqlStore, flatfile), nil
}
