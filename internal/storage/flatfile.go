package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"replenisher/internal/apperr"
	"replenisher/internal/logger"
	"replenisher/internal/model"
)

// FlatFileStorage persists every entity as one CSV file per family under
// a data directory, with fixed header schemas matching spec.md §6.
type FlatFileStorage struct {
	dataDir         string
	backupRetention int
}

const dateLayout = "2006-01-02"

// NewFlatFileStorage creates dataDir if needed and ensures every schema
// file exists with its header row.
func NewFlatFileStorage(dataDir string, backupRetention int) (*FlatFileStorage, error) {
	if backupRetention < 2 {
		backupRetention = 2
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "create data dir", err)
	}
	f := &FlatFileStorage{dataDir: dataDir, backupRetention: backupRetention}
	for name, header := range schemas {
		if err := f.ensureFile(name, header); err != nil {
			return nil, err
		}
	}
	return f, nil
}

var schemas = map[string][]string{
	"skus.csv": {
		"sku", "description", "ean", "moq", "pack_size", "lead_time_days",
		"review_period", "safety_stock", "shelf_life_days", "min_shelf_life_days",
		"reorder_point", "max_stock", "demand_variability", "target_csl",
		"forecast_method", "in_assortment",
		"waste_penalty_mode", "waste_penalty_factor", "waste_risk_threshold_pct", "waste_horizon_days",
		"mc_distribution", "mc_n_simulations", "mc_random_seed", "mc_output_stat",
		"mc_output_percentile", "mc_horizon_mode", "mc_horizon_days", "mc_expected_waste_rate",
		"category", "department",
	},
	"transactions.csv":    {"date", "sku", "event", "qty", "receipt_date", "note", "seq"},
	"sales.csv":           {"date", "sku", "qty_sold", "promo_flag"},
	"order_logs.csv":      {"order_id", "date", "sku", "qty_ordered", "qty_received", "status", "receipt_date", "prebuild_meta"},
	"receiving_logs.csv":  {"document_id", "receipt_id", "date", "sku", "qty_received", "receipt_date", "order_ids"},
	"lots.csv":            {"lot_id", "sku", "expiry_date", "qty_on_hand", "receipt_id", "receipt_date"},
	"promo_calendar.csv":  {"sku", "start_date", "end_date", "store_id", "promo_flag"},
	"audit_log.csv":       {"timestamp", "operation", "sku", "details", "user", "run_id"},
}

func (f *FlatFileStorage) path(name string) string { return filepath.Join(f.dataDir, name) }

func (f *FlatFileStorage) ensureFile(name string, header []string) error {
	path := f.path(name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return f.writeRows(name, header, nil)
}

// backupFile copies the existing file to a timestamped backup before an
// overwrite and prunes older backups beyond the retention window
// (never below two).
func (f *FlatFileStorage) backupFile(name string) {
	path := f.path(name)
	contents, err := os.ReadFile(path)
	if err != nil {
		return
	}

	stamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(f.dataDir, fmt.Sprintf("%s.backup.%s", name, stamp))
	if err := os.WriteFile(backupPath, contents, 0o644); err != nil {
		logger.Warn("storage", fmt.Sprintf("backup failed for %s: %v", name, err))
		return
	}

	matches, err := filepath.Glob(filepath.Join(f.dataDir, name+".backup.*"))
	if err != nil {
		return
	}
	sort.Strings(matches)
	keep := f.backupRetention
	if keep < 2 {
		keep = 2
	}
	if len(matches) > keep {
		for _, old := range matches[:len(matches)-keep] {
			os.Remove(old)
		}
	}
}

// writeRows backs up the existing file, writes rows to a temp file in
// the same directory, fsyncs, then renames over the target.
func (f *FlatFileStorage) writeRows(name string, header []string, rows [][]string) error {
	f.backupFile(name)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "encode header for "+name, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return apperr.Wrap(apperr.InvalidInput, "encode row for "+name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "flush csv for "+name, err)
	}

	tmp, err := os.CreateTemp(f.dataDir, name+".*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, "create temp file for "+name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.IntegrityViolation, "write temp file for "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.IntegrityViolation, "fsync temp file for "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.IntegrityViolation, "close temp file for "+name, err)
	}

	if err := os.Rename(tmpPath, f.path(name)); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.IntegrityViolation, "atomic rename for "+name, err)
	}
	return nil
}

func (f *FlatFileStorage) readRows(name string) ([]map[string]string, error) {
	contents, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IntegrityViolation, "read "+name, err)
	}
	r := csv.NewReader(bytes.NewReader(contents))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.IntegrityViolation, "parse "+name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseDatePtr(s string) *time.Time {
	t, ok := parseDate(s)
	if !ok {
		return nil
	}
	return &t
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func parseFloatOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

func parseBoolOr(s string, def bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "t":
		return true
	case "false", "0", "no", "f":
		return false
	default:
		return def
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ---- SKUs ----

func (f *FlatFileStorage) LoadSKUs() ([]model.SKU, error) {
	rows, err := f.readRows("skus.csv")
	if err != nil {
		return nil, err
	}
	skus := make([]model.SKU, 0, len(rows))
	for _, row := range rows {
		skus = append(skus, model.SKU{
			SKU:                   strings.TrimSpace(row["sku"]),
			Description:           strings.TrimSpace(row["description"]),
			EAN:                   strings.TrimSpace(row["ean"]),
			MOQ:                   atoiOr(row["moq"], 1),
			PackSize:              atoiOr(row["pack_size"], 1),
			LeadTimeDays:          atoiOr(row["lead_time_days"], 7),
			ReviewPeriod:          atoiOr(row["review_period"], 7),
			SafetyStock:           atoiOr(row["safety_stock"], 0),
			ShelfLifeDays:         atoiOr(row["shelf_life_days"], 0),
			MinShelfLifeDays:      atoiOr(row["min_shelf_life_days"], 0),
			ReorderPoint:          atoiOr(row["reorder_point"], 10),
			MaxStock:              atoiOr(row["max_stock"], 999),
			DemandVariability:     model.DemandVariability(strings.ToUpper(strings.TrimSpace(orDefault(row["demand_variability"], "STABLE")))),
			TargetCSL:             parseFloatOr(row["target_csl"], 0.95),
			ForecastMethod:        orDefault(row["forecast_method"], "simple"),
			InAssortment:          parseBoolOr(row["in_assortment"], true),
			WastePenaltyMode:      model.WastePenaltyMode(orDefault(row["waste_penalty_mode"], string(model.WastePenaltyNone))),
			WastePenaltyFactor:    parseFloatOr(row["waste_penalty_factor"], 0),
			WasteRiskThresholdPct: parseFloatOr(row["waste_risk_threshold_pct"], 0),
			WasteHorizonDays:      atoiOr(row["waste_horizon_days"], 0),
			MCDistribution:        orDefault(row["mc_distribution"], "empirical"),
			MCNSimulations:        atoiOr(row["mc_n_simulations"], 0),
			MCRandomSeed:          uint64(atoiOr(row["mc_random_seed"], 0)),
			MCOutputStat:          orDefault(row["mc_output_stat"], "mean"),
			MCOutputPercentile:    atoiOr(row["mc_output_percentile"], 0),
			MCHorizonMode:         orDefault(row["mc_horizon_mode"], "auto"),
			MCHorizonDays:         atoiOr(row["mc_horizon_days"], 0),
			MCExpectedWasteRate:   parseFloatOr(row["mc_expected_waste_rate"], 0),
			Category:              strings.TrimSpace(row["category"]),
			Department:            strings.TrimSpace(row["department"]),
		})
	}
	return skus, nil
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func (f *FlatFileStorage) SaveSKUs(skus []model.SKU) error {
	rows := make([][]string, 0, len(skus))
	for _, s := range skus {
		rows = append(rows, []string{
			s.SKU, s.Description, s.EAN,
			strconv.Itoa(s.MOQ), strconv.Itoa(s.PackSize), strconv.Itoa(s.LeadTimeDays),
			strconv.Itoa(s.ReviewPeriod), strconv.Itoa(s.SafetyStock), strconv.Itoa(s.ShelfLifeDays),
			strconv.Itoa(s.MinShelfLifeDays), strconv.Itoa(s.ReorderPoint), strconv.Itoa(s.MaxStock),
			string(s.DemandVariability), strconv.FormatFloat(s.TargetCSL, 'f', -1, 64),
			s.ForecastMethod, boolStr(s.InAssortment),
			string(s.WastePenaltyMode), strconv.FormatFloat(s.WastePenaltyFactor, 'f', -1, 64),
			strconv.FormatFloat(s.WasteRiskThresholdPct, 'f', -1, 64), strconv.Itoa(s.WasteHorizonDays),
			s.MCDistribution, strconv.Itoa(s.MCNSimulations), strconv.FormatUint(s.MCRandomSeed, 10),
			s.MCOutputStat, strconv.Itoa(s.MCOutputPercentile), s.MCHorizonMode, strconv.Itoa(s.MCHorizonDays),
			strconv.FormatFloat(s.MCExpectedWasteRate, 'f', -1, 64),
			s.Category, s.Department,
		})
	}
	return f.writeRows("skus.csv", schemas["skus.csv"], rows)
}

// ---- Transactions ----

func (f *FlatFileStorage) LoadTransactions() ([]model.Transaction, error) {
	rows, err := f.readRows("transactions.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.Transaction, 0, len(rows))
	for _, row := range rows {
		date, _ := parseDate(row["date"])
		out = append(out, model.Transaction{
			Date:        date,
			SKU:         strings.TrimSpace(row["sku"]),
			Event:       model.EventKind(strings.ToUpper(strings.TrimSpace(row["event"]))),
			Qty:         atoiOr(row["qty"], 0),
			ReceiptDate: parseDatePtr(row["receipt_date"]),
			Note:        row["note"],
			Seq:         atoiOr(row["seq"], 0),
		})
	}
	return out, nil
}

func transactionRow(t model.Transaction) []string {
	return []string{
		t.Date.Format(dateLayout), t.SKU, string(t.Event), strconv.Itoa(t.Qty),
		formatDatePtr(t.ReceiptDate), t.Note, strconv.Itoa(t.Seq),
	}
}

func (f *FlatFileStorage) SaveTransactions(txns []model.Transaction) error {
	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, transactionRow(t))
	}
	return f.writeRows("transactions.csv", schemas["transactions.csv"], rows)
}

func (f *FlatFileStorage) AppendTransaction(txn model.Transaction) error {
	existing, err := f.LoadTransactions()
	if err != nil {
		return err
	}
	return f.SaveTransactions(append(existing, txn))
}

// ---- Sales ----

func (f *FlatFileStorage) LoadSales() ([]model.SalesRecord, error) {
	rows, err := f.readRows("sales.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.SalesRecord, 0, len(rows))
	for _, row := range rows {
		date, _ := parseDate(row["date"])
		out = append(out, model.SalesRecord{
			Date:      date,
			SKU:       strings.TrimSpace(row["sku"]),
			QtySold:   atoiOr(row["qty_sold"], 0),
			PromoFlag: parseBoolOr(row["promo_flag"], false),
		})
	}
	return out, nil
}

func (f *FlatFileStorage) SaveSales(sales []model.SalesRecord) error {
	rows := make([][]string, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, []string{
			s.Date.Format(dateLayout), s.SKU, strconv.Itoa(s.QtySold), boolStr(s.PromoFlag),
		})
	}
	return f.writeRows("sales.csv", schemas["sales.csv"], rows)
}

// ---- Lots ----

func (f *FlatFileStorage) LoadLots() ([]model.Lot, error) {
	rows, err := f.readRows("lots.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.Lot, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Lot{
			LotID:       strings.TrimSpace(row["lot_id"]),
			SKU:         strings.TrimSpace(row["sku"]),
			ExpiryDate:  parseDatePtr(row["expiry_date"]),
			QtyOnHand:   atoiOr(row["qty_on_hand"], 0),
			ReceiptID:   strings.TrimSpace(row["receipt_id"]),
			ReceiptDate: parseDateOr(row["receipt_date"]),
		})
	}
	return out, nil
}

func parseDateOr(s string) time.Time {
	t, _ := parseDate(s)
	return t
}

func (f *FlatFileStorage) SaveLots(lots []model.Lot) error {
	rows := make([][]string, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []string{
			l.LotID, l.SKU, formatDatePtr(l.ExpiryDate), strconv.Itoa(l.QtyOnHand),
			l.ReceiptID, l.ReceiptDate.Format(dateLayout),
		})
	}
	return f.writeRows("lots.csv", schemas["lots.csv"], rows)
}

// ---- Order logs ----

func (f *FlatFileStorage) LoadOrderLogs() ([]model.OrderLog, error) {
	rows, err := f.readRows("order_logs.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.OrderLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.OrderLog{
			OrderID:      strings.TrimSpace(row["order_id"]),
			Date:         parseDateOr(row["date"]),
			SKU:          strings.TrimSpace(row["sku"]),
			QtyOrdered:   atoiOr(row["qty_ordered"], 0),
			QtyReceived:  atoiOr(row["qty_received"], 0),
			Status:       model.OrderStatus(orDefault(row["status"], string(model.OrderPending))),
			ReceiptDate:  parseDateOr(row["receipt_date"]),
			PrebuildMeta: row["prebuild_meta"],
		})
	}
	return out, nil
}

func (f *FlatFileStorage) SaveOrderLogs(orders []model.OrderLog) error {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			o.OrderID, o.Date.Format(dateLayout), o.SKU,
			strconv.Itoa(o.QtyOrdered), strconv.Itoa(o.QtyReceived), string(o.Status),
			o.ReceiptDate.Format(dateLayout), o.PrebuildMeta,
		})
	}
	return f.writeRows("order_logs.csv", schemas["order_logs.csv"], rows)
}

// ---- Receiving logs ----

func (f *FlatFileStorage) LoadReceivingLogs() ([]model.ReceivingLog, error) {
	rows, err := f.readRows("receiving_logs.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.ReceivingLog, 0, len(rows))
	for _, row := range rows {
		var orderIDs []string
		if v := strings.TrimSpace(row["order_ids"]); v != "" {
			orderIDs = strings.Split(v, ",")
		}
		out = append(out, model.ReceivingLog{
			DocumentID:  strings.TrimSpace(row["document_id"]),
			ReceiptID:   strings.TrimSpace(row["receipt_id"]),
			Date:        parseDateOr(row["date"]),
			SKU:         strings.TrimSpace(row["sku"]),
			QtyReceived: atoiOr(row["qty_received"], 0),
			ReceiptDate: parseDateOr(row["receipt_date"]),
			OrderIDs:    orderIDs,
		})
	}
	return out, nil
}

func (f *FlatFileStorage) SaveReceivingLogs(recvs []model.ReceivingLog) error {
	rows := make([][]string, 0, len(recvs))
	for _, r := range recvs {
		rows = append(rows, []string{
			r.DocumentID, r.ReceiptID, r.Date.Format(dateLayout), r.SKU,
			strconv.Itoa(r.QtyReceived), r.ReceiptDate.Format(dateLayout), strings.Join(r.OrderIDs, ","),
		})
	}
	return f.writeRows("receiving_logs.csv", schemas["receiving_logs.csv"], rows)
}

// ---- Promo windows ----

func (f *FlatFileStorage) LoadPromoWindows() ([]model.PromoWindow, error) {
	rows, err := f.readRows("promo_calendar.csv")
	if err != nil {
		return nil, err
	}
	out := make([]model.PromoWindow, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.PromoWindow{
			SKU:       strings.TrimSpace(row["sku"]),
			StartDate: parseDateOr(row["start_date"]),
			EndDate:   parseDateOr(row["end_date"]),
			StoreID:   strings.TrimSpace(row["store_id"]),
			PromoFlag: parseBoolOr(row["promo_flag"], true),
		})
	}
	return out, nil
}

func (f *FlatFileStorage) SavePromoWindows(promos []model.PromoWindow) error {
	rows := make([][]string, 0, len(promos))
	for _, p := range promos {
		rows = append(rows, []string{
			p.SKU, p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout),
			p.StoreID, boolStr(p.PromoFlag),
		})
	}
	return f.writeRows("promo_calendar.csv", schemas["promo_calendar.csv"], rows)
}

// ---- Audit log ----

// AppendAuditLog appends one row without backing up or rewriting the
// whole file; audit rows are append-only and never revised.
func (f *FlatFileStorage) AppendAuditLog(entry model.AuditLog) error {
	file, err := os.OpenFile(f.path("audit_log.csv"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, "open audit log", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	row := []string{
		entry.Timestamp.Format("2006-01-02T15:04:05.000000"),
		entry.Operation, entry.SKU, entry.Details, entry.User, entry.RunID,
	}
	if err := w.Write(row); err != nil {
		return apperr.Wrap(apperr.IntegrityViolation, "write audit row", err)
	}
	w.Flush()
	return w.Error()
}

func (f *FlatFileStorage) Close() error { return nil }
