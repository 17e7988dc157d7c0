package storage

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"replenisher/internal/apperr"
	"replenisher/internal/logger"
	"replenisher/internal/model"

	_ "modernc.org/sqlite"
)

// SQLStorage persists every entity in an embedded SQLite database,
// opened in WAL mode with foreign keys enforced. Writers serialize
// through writeMu; readers run lock-free against the WAL.
type SQLStorage struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// OpenSQLStorage opens (creating if absent) the database at path and
// applies pending migrations idempotently.
func OpenSQLStorage(path string) (*SQLStorage, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "open sqlite", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.IntegrityViolation, "ping sqlite", err)
	}

	s := &SQLStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.IntegrityViolation, "migrate sqlite", err)
	}
	logger.Success("storage", fmt.Sprintf("opened database backend at %s", path))
	return s, nil
}

func (s *SQLStorage) migrate() error {
	var version int
	s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS skus (
				sku TEXT PRIMARY KEY,
				description TEXT NOT NULL DEFAULT '',
				ean TEXT NOT NULL DEFAULT '',
				moq INTEGER NOT NULL DEFAULT 1,
				pack_size INTEGER NOT NULL DEFAULT 1,
				lead_time_days INTEGER NOT NULL DEFAULT 7,
				review_period INTEGER NOT NULL DEFAULT 7,
				safety_stock INTEGER NOT NULL DEFAULT 0,
				shelf_life_days INTEGER NOT NULL DEFAULT 0,
				min_shelf_life_days INTEGER NOT NULL DEFAULT 0,
				reorder_point INTEGER NOT NULL DEFAULT 10,
				max_stock INTEGER NOT NULL DEFAULT 999,
				demand_variability TEXT NOT NULL DEFAULT 'STABLE',
				target_csl REAL NOT NULL DEFAULT 0.95,
				forecast_method TEXT NOT NULL DEFAULT 'simple',
				in_assortment INTEGER NOT NULL DEFAULT 1,
				waste_penalty_mode TEXT NOT NULL DEFAULT 'none',
				waste_penalty_factor REAL NOT NULL DEFAULT 0,
				waste_risk_threshold_pct REAL NOT NULL DEFAULT 0,
				waste_horizon_days INTEGER NOT NULL DEFAULT 0,
				mc_distribution TEXT NOT NULL DEFAULT 'empirical',
				mc_n_simulations INTEGER NOT NULL DEFAULT 0,
				mc_random_seed INTEGER NOT NULL DEFAULT 0,
				mc_output_stat TEXT NOT NULL DEFAULT 'mean',
				mc_output_percentile INTEGER NOT NULL DEFAULT 0,
				mc_horizon_mode TEXT NOT NULL DEFAULT 'auto',
				mc_horizon_days INTEGER NOT NULL DEFAULT 0,
				mc_expected_waste_rate REAL NOT NULL DEFAULT 0,
				category TEXT NOT NULL DEFAULT '',
				department TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS transactions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				date TEXT NOT NULL,
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				event TEXT NOT NULL,
				qty INTEGER NOT NULL,
				receipt_date TEXT,
				note TEXT NOT NULL DEFAULT '',
				seq INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_txn_sku_date ON transactions(sku, date);

			CREATE TABLE IF NOT EXISTS sales (
				date TEXT NOT NULL,
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				qty_sold INTEGER NOT NULL DEFAULT 0,
				promo_flag INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (date, sku)
			);

			CREATE TABLE IF NOT EXISTS lots (
				lot_id TEXT PRIMARY KEY,
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				expiry_date TEXT,
				qty_on_hand INTEGER NOT NULL DEFAULT 0,
				receipt_id TEXT NOT NULL DEFAULT '',
				receipt_date TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_lots_sku ON lots(sku);

			CREATE TABLE IF NOT EXISTS order_logs (
				order_id TEXT PRIMARY KEY,
				date TEXT NOT NULL,
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				qty_ordered INTEGER NOT NULL DEFAULT 0,
				qty_received INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'PENDING',
				receipt_date TEXT,
				prebuild_meta TEXT NOT NULL DEFAULT ''
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_order_logs_order_id ON order_logs(order_id);
			CREATE INDEX IF NOT EXISTS idx_order_logs_sku_date ON order_logs(sku, date);

			CREATE TABLE IF NOT EXISTS receiving_logs (
				document_id TEXT PRIMARY KEY,
				receipt_id TEXT NOT NULL DEFAULT '',
				date TEXT NOT NULL,
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				qty_received INTEGER NOT NULL DEFAULT 0,
				receipt_date TEXT NOT NULL,
				order_ids TEXT NOT NULL DEFAULT ''
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_receiving_logs_document_id ON receiving_logs(document_id);

			CREATE TABLE IF NOT EXISTS promo_calendar (
				sku TEXT NOT NULL REFERENCES skus(sku) ON DELETE RESTRICT,
				start_date TEXT NOT NULL,
				end_date TEXT NOT NULL,
				store_id TEXT NOT NULL DEFAULT '',
				promo_flag INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_promo_sku ON promo_calendar(sku, start_date);

			CREATE TABLE IF NOT EXISTS audit_log (
				timestamp TEXT NOT NULL,
				operation TEXT NOT NULL,
				sku TEXT NOT NULL DEFAULT '',
				details TEXT NOT NULL DEFAULT '',
				user TEXT NOT NULL DEFAULT '',
				run_id TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_id);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("storage", "applied sqlite migration v1")
	}
	return nil
}

// withRetry runs fn under the single-writer mutex, making up to 5
// attempts while it fails with SQLITE_BUSY, with exponential backoff (10ms base,
// x2, +/-25% jitter), surfacing apperr.BackendBusy on exhaustion.
func (s *SQLStorage) withRetry(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	const maxAttempts = 5
	base := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusyError(lastErr) {
			return lastErr
		}
		delay := base * time.Duration(1<<attempt)
		jitter := 1 + (rand.Float64()*0.5 - 0.25)
		time.Sleep(time.Duration(float64(delay) * jitter))
	}
	return apperr.Wrap(apperr.BackendBusy, "sqlite writer retries exhausted", lastErr)
}

func isBusyError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "busy")
}

// CheckIntegrity runs SQLite's built-in integrity check, used by the
// db_check maintenance command.
func (s *SQLStorage) CheckIntegrity() (bool, string, error) {
	var result string
	if err := s.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return false, "", apperr.Wrap(apperr.IntegrityViolation, "integrity check", err)
	}
	return result == "ok", result, nil
}

// ReindexVacuum rebuilds every index and reclaims free pages, used by
// the db_reindex_vacuum maintenance command.
func (s *SQLStorage) ReindexVacuum() error {
	return s.withRetry(func() error {
		if _, err := s.db.Exec(`REINDEX`); err != nil {
			return apperr.Wrap(apperr.IntegrityViolation, "reindex", err)
		}
		if _, err := s.db.Exec(`VACUUM`); err != nil {
			return apperr.Wrap(apperr.IntegrityViolation, "vacuum", err)
		}
		return nil
	})
}

// ---- SKUs ----

func (s *SQLStorage) LoadSKUs() ([]model.SKU, error) {
	rows, err := s.db.Query(`SELECT sku, description, ean, moq, pack_size, lead_time_days,
		review_period, safety_stock, shelf_life_days, min_shelf_life_days, reorder_point,
		max_stock, demand_variability, target_csl, forecast_method, in_assortment,
		waste_penalty_mode, waste_penalty_factor, waste_risk_threshold_pct, waste_horizon_days,
		mc_distribution, mc_n_simulations, mc_random_seed, mc_output_stat, mc_output_percentile,
		mc_horizon_mode, mc_horizon_days, mc_expected_waste_rate, category, department FROM skus`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query skus", err)
	}
	defer rows.Close()

	var out []model.SKU
	for rows.Next() {
		var sk model.SKU
		var demandVar, wasteMode string
		var inAssortment int
		if err := rows.Scan(&sk.SKU, &sk.Description, &sk.EAN, &sk.MOQ, &sk.PackSize,
			&sk.LeadTimeDays, &sk.ReviewPeriod, &sk.SafetyStock, &sk.ShelfLifeDays,
			&sk.MinShelfLifeDays, &sk.ReorderPoint, &sk.MaxStock, &demandVar, &sk.TargetCSL,
			&sk.ForecastMethod, &inAssortment, &wasteMode, &sk.WastePenaltyFactor,
			&sk.WasteRiskThresholdPct, &sk.WasteHorizonDays, &sk.MCDistribution, &sk.MCNSimulations,
			&sk.MCRandomSeed, &sk.MCOutputStat, &sk.MCOutputPercentile, &sk.MCHorizonMode,
			&sk.MCHorizonDays, &sk.MCExpectedWasteRate, &sk.Category, &sk.Department); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan sku row", err)
		}
		sk.DemandVariability = model.DemandVariability(demandVar)
		sk.WastePenaltyMode = model.WastePenaltyMode(wasteMode)
		sk.InAssortment = inAssortment != 0
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveSKUs(skus []model.SKU) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM skus`); err != nil {
			return err
		}
		for _, sk := range skus {
			_, err := tx.Exec(`INSERT INTO skus (sku, description, ean, moq, pack_size, lead_time_days,
				review_period, safety_stock, shelf_life_days, min_shelf_life_days, reorder_point,
				max_stock, demand_variability, target_csl, forecast_method, in_assortment,
				waste_penalty_mode, waste_penalty_factor, waste_risk_threshold_pct, waste_horizon_days,
				mc_distribution, mc_n_simulations, mc_random_seed, mc_output_stat, mc_output_percentile,
				mc_horizon_mode, mc_horizon_days, mc_expected_waste_rate, category, department)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				sk.SKU, sk.Description, sk.EAN, sk.MOQ, sk.PackSize, sk.LeadTimeDays,
				sk.ReviewPeriod, sk.SafetyStock, sk.ShelfLifeDays, sk.MinShelfLifeDays, sk.ReorderPoint,
				sk.MaxStock, string(sk.DemandVariability), sk.TargetCSL, sk.ForecastMethod, boolInt(sk.InAssortment),
				string(sk.WastePenaltyMode), sk.WastePenaltyFactor, sk.WasteRiskThresholdPct, sk.WasteHorizonDays,
				sk.MCDistribution, sk.MCNSimulations, sk.MCRandomSeed, sk.MCOutputStat, sk.MCOutputPercentile,
				sk.MCHorizonMode, sk.MCHorizonDays, sk.MCExpectedWasteRate, sk.Category, sk.Department)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- Transactions ----

func (s *SQLStorage) LoadTransactions() ([]model.Transaction, error) {
	rows, err := s.db.Query(`SELECT date, sku, event, qty, receipt_date, note, seq FROM transactions ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query transactions", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var date, event, note string
		var qty, seq int
		var receiptDate sql.NullString
		var sku string
		if err := rows.Scan(&date, &sku, &event, &qty, &receiptDate, &note, &seq); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan transaction row", err)
		}
		d, _ := parseDate(date)
		t := model.Transaction{Date: d, SKU: sku, Event: model.EventKind(event), Qty: qty, Note: note, Seq: seq}
		if receiptDate.Valid {
			t.ReceiptDate = parseDatePtr(receiptDate.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveTransactions(txns []model.Transaction) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM transactions`); err != nil {
			return err
		}
		for _, t := range txns {
			if err := insertTransaction(tx, t); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func insertTransaction(exec interface {
	Exec(query string, args ...any) (sql.Result, error)
}, t model.Transaction) error {
	_, err := exec.Exec(`INSERT INTO transactions (date, sku, event, qty, receipt_date, note, seq)
		VALUES (?,?,?,?,?,?,?)`,
		t.Date.Format(dateLayout), t.SKU, string(t.Event), t.Qty, formatDatePtrNullable(t.ReceiptDate), t.Note, t.Seq)
	return err
}

func formatDatePtrNullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func (s *SQLStorage) AppendTransaction(txn model.Transaction) error {
	return s.withRetry(func() error {
		return insertTransaction(s.db, txn)
	})
}

// ---- Sales ----

func (s *SQLStorage) LoadSales() ([]model.SalesRecord, error) {
	rows, err := s.db.Query(`SELECT date, sku, qty_sold, promo_flag FROM sales`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query sales", err)
	}
	defer rows.Close()

	var out []model.SalesRecord
	for rows.Next() {
		var date string
		var sku string
		var qty, promo int
		if err := rows.Scan(&date, &sku, &qty, &promo); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan sales row", err)
		}
		d, _ := parseDate(date)
		out = append(out, model.SalesRecord{Date: d, SKU: sku, QtySold: qty, PromoFlag: promo != 0})
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveSales(sales []model.SalesRecord) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM sales`); err != nil {
			return err
		}
		for _, rec := range sales {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO sales (date, sku, qty_sold, promo_flag) VALUES (?,?,?,?)`,
				rec.Date.Format(dateLayout), rec.SKU, rec.QtySold, boolInt(rec.PromoFlag)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ---- Lots ----

func (s *SQLStorage) LoadLots() ([]model.Lot, error) {
	rows, err := s.db.Query(`SELECT lot_id, sku, expiry_date, qty_on_hand, receipt_id, receipt_date FROM lots`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query lots", err)
	}
	defer rows.Close()

	var out []model.Lot
	for rows.Next() {
		var lotID, sku, receiptID, receiptDate string
		var expiry sql.NullString
		var qty int
		if err := rows.Scan(&lotID, &sku, &expiry, &qty, &receiptID, &receiptDate); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan lot row", err)
		}
		l := model.Lot{LotID: lotID, SKU: sku, QtyOnHand: qty, ReceiptID: receiptID, ReceiptDate: parseDateOr(receiptDate)}
		if expiry.Valid {
			l.ExpiryDate = parseDatePtr(expiry.String)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveLots(lots []model.Lot) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM lots`); err != nil {
			return err
		}
		for _, l := range lots {
			if _, err := tx.Exec(`INSERT INTO lots (lot_id, sku, expiry_date, qty_on_hand, receipt_id, receipt_date)
				VALUES (?,?,?,?,?,?)`,
				l.LotID, l.SKU, formatDatePtrNullable(l.ExpiryDate), l.QtyOnHand, l.ReceiptID, l.ReceiptDate.Format(dateLayout)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ---- Order logs ----

func (s *SQLStorage) LoadOrderLogs() ([]model.OrderLog, error) {
	rows, err := s.db.Query(`SELECT order_id, date, sku, qty_ordered, qty_received, status, receipt_date, prebuild_meta FROM order_logs`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query order_logs", err)
	}
	defer rows.Close()

	var out []model.OrderLog
	for rows.Next() {
		var orderID, date, sku, status, prebuild string
		var qtyOrdered, qtyReceived int
		var receiptDate sql.NullString
		if err := rows.Scan(&orderID, &date, &sku, &qtyOrdered, &qtyReceived, &status, &receiptDate, &prebuild); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan order_log row", err)
		}
		o := model.OrderLog{
			OrderID: orderID, Date: parseDateOr(date), SKU: sku,
			QtyOrdered: qtyOrdered, QtyReceived: qtyReceived, Status: model.OrderStatus(status),
			PrebuildMeta: prebuild,
		}
		if receiptDate.Valid {
			o.ReceiptDate = parseDateOr(receiptDate.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveOrderLogs(orders []model.OrderLog) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM order_logs`); err != nil {
			return err
		}
		for _, o := range orders {
			if _, err := tx.Exec(`INSERT INTO order_logs (order_id, date, sku, qty_ordered, qty_received, status, receipt_date, prebuild_meta)
				VALUES (?,?,?,?,?,?,?,?)`,
				o.OrderID, o.Date.Format(dateLayout), o.SKU, o.QtyOrdered, o.QtyReceived, string(o.Status),
				o.ReceiptDate.Format(dateLayout), o.PrebuildMeta); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ---- Receiving logs ----

func (s *SQLStorage) LoadReceivingLogs() ([]model.ReceivingLog, error) {
	rows, err := s.db.Query(`SELECT document_id, receipt_id, date, sku, qty_received, receipt_date, order_ids FROM receiving_logs`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query receiving_logs", err)
	}
	defer rows.Close()

	var out []model.ReceivingLog
	for rows.Next() {
		var documentID, receiptID, date, sku, receiptDate, orderIDs string
		var qty int
		if err := rows.Scan(&documentID, &receiptID, &date, &sku, &qty, &receiptDate, &orderIDs); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan receiving_log row", err)
		}
		var ids []string
		if orderIDs != "" {
			ids = strings.Split(orderIDs, ",")
		}
		out = append(out, model.ReceivingLog{
			DocumentID: documentID, ReceiptID: receiptID, Date: parseDateOr(date), SKU: sku,
			QtyReceived: qty, ReceiptDate: parseDateOr(receiptDate), OrderIDs: ids,
		})
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveReceivingLogs(recvs []model.ReceivingLog) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM receiving_logs`); err != nil {
			return err
		}
		for _, r := range recvs {
			if _, err := tx.Exec(`INSERT INTO receiving_logs (document_id, receipt_id, date, sku, qty_received, receipt_date, order_ids)
				VALUES (?,?,?,?,?,?,?)`,
				r.DocumentID, r.ReceiptID, r.Date.Format(dateLayout), r.SKU, r.QtyReceived,
				r.ReceiptDate.Format(dateLayout), strings.Join(r.OrderIDs, ",")); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ---- Promo windows ----

func (s *SQLStorage) LoadPromoWindows() ([]model.PromoWindow, error) {
	rows, err := s.db.Query(`SELECT sku, start_date, end_date, store_id, promo_flag FROM promo_calendar`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "query promo_calendar", err)
	}
	defer rows.Close()

	var out []model.PromoWindow
	for rows.Next() {
		var sku, start, end, store string
		var flag int
		if err := rows.Scan(&sku, &start, &end, &store, &flag); err != nil {
			return nil, apperr.Wrap(apperr.IntegrityViolation, "scan promo_calendar row", err)
		}
		out = append(out, model.PromoWindow{
			SKU: sku, StartDate: parseDateOr(start), EndDate: parseDateOr(end),
			StoreID: store, PromoFlag: flag != 0,
		})
	}
	return out, rows.Err()
}

func (s *SQLStorage) SavePromoWindows(promos []model.PromoWindow) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM promo_calendar`); err != nil {
			return err
		}
		for _, p := range promos {
			if _, err := tx.Exec(`INSERT INTO promo_calendar (sku, start_date, end_date, store_id, promo_flag)
				VALUES (?,?,?,?,?)`,
				p.SKU, p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout), p.StoreID, boolInt(p.PromoFlag)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ---- Audit log ----

func (s *SQLStorage) AppendAuditLog(entry model.AuditLog) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`INSERT INTO audit_log (timestamp, operation, sku, details, user, run_id) VALUES (?,?,?,?,?,?)`,
			entry.Timestamp.Format("2006-01-02T15:04:05.000000"), entry.Operation, entry.SKU, entry.Details, entry.User, entry.RunID)
		return err
	})
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
