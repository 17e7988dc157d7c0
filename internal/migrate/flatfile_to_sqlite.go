package migrate

import (
	"fmt"

	"replenisher/internal/storage"
)

// TableMigration reports the outcome for one entity family migrated by
// MigrateFlatFileToSQLite.
type TableMigration struct {
	Name       string
	SourceRows int
	Skipped    bool // destination already had rows and force was not set
	Error      string
}

// FlatFileToSQLiteReport is the overall outcome of
// MigrateFlatFileToSQLite, one TableMigration per entity family.
type FlatFileToSQLiteReport struct {
	DryRun  bool
	Tables  []TableMigration
	Success bool
	Message string
}

// MigrateFlatFileToSQLite copies every entity family from an
// already-open flat-file backend into an already-open SQLite backend,
// one table at a time so a failure partway through leaves the remaining
// tables untouched and the migration resumable. A table already holding
// rows in the destination is skipped unless force is set. When dryRun
// is true, rows are counted and reported but nothing is written, and
// the flat-file source (the golden dataset) is never modified either
// way.
func MigrateFlatFileToSQLite(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) FlatFileToSQLiteReport {
	report := FlatFileToSQLiteReport{DryRun: dryRun}

	report.Tables = append(report.Tables, migrateSKUs(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migrateTransactions(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migrateSales(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migrateLots(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migrateOrderLogs(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migrateReceivingLogs(flat, sql, dryRun, force))
	report.Tables = append(report.Tables, migratePromoWindows(flat, sql, dryRun, force))

	report.Success = true
	migrated := 0
	for _, t := range report.Tables {
		if t.Error != "" {
			report.Success = false
		}
		if !t.Skipped && t.Error == "" {
			migrated++
		}
	}
	switch {
	case !report.Success:
		report.Message = "migration completed with errors; see per-table detail"
	case dryRun:
		report.Message = fmt.Sprintf("dry run: %d of %d table(s) would be migrated", migrated, len(report.Tables))
	default:
		report.Message = fmt.Sprintf("migrated %d of %d table(s)", migrated, len(report.Tables))
	}
	return report
}

func migrateSKUs(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "skus"}
	rows, err := flat.LoadSKUs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file skus: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadSKUs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination skus: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveSKUs(rows); err != nil {
		tm.Error = fmt.Sprintf("writing skus: %v", err)
	}
	return tm
}

func migrateTransactions(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "transactions"}
	rows, err := flat.LoadTransactions()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file transactions: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadTransactions()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination transactions: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveTransactions(rows); err != nil {
		tm.Error = fmt.Sprintf("writing transactions: %v", err)
	}
	return tm
}

func migrateSales(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "sales"}
	rows, err := flat.LoadSales()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file sales: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadSales()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination sales: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveSales(rows); err != nil {
		tm.Error = fmt.Sprintf("writing sales: %v", err)
	}
	return tm
}

func migrateLots(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "lots"}
	rows, err := flat.LoadLots()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file lots: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadLots()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination lots: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveLots(rows); err != nil {
		tm.Error = fmt.Sprintf("writing lots: %v", err)
	}
	return tm
}

func migrateOrderLogs(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "order_logs"}
	rows, err := flat.LoadOrderLogs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file order logs: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadOrderLogs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination order logs: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveOrderLogs(rows); err != nil {
		tm.Error = fmt.Sprintf("writing order logs: %v", err)
	}
	return tm
}

func migrateReceivingLogs(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "receiving_logs"}
	rows, err := flat.LoadReceivingLogs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file receiving logs: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadReceivingLogs()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination receiving logs: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SaveReceivingLogs(rows); err != nil {
		tm.Error = fmt.Sprintf("writing receiving logs: %v", err)
	}
	return tm
}

func migratePromoWindows(flat *storage.FlatFileStorage, sql *storage.SQLStorage, dryRun, force bool) TableMigration {
	tm := TableMigration{Name: "promo_calendar"}
	rows, err := flat.LoadPromoWindows()
	if err != nil {
		tm.Error = fmt.Sprintf("reading flat-file promo calendar: %v", err)
		return tm
	}
	tm.SourceRows = len(rows)

	existing, err := sql.LoadPromoWindows()
	if err != nil {
		tm.Error = fmt.Sprintf("reading destination promo calendar: %v", err)
		return tm
	}
	if len(existing) > 0 && !force {
		tm.Skipped = true
		return tm
	}
	if dryRun {
		return tm
	}
	if err := sql.SavePromoWindows(rows); err != nil {
		tm.Error = fmt.Sprintf("writing promo calendar: %v", err)
	}
	return tm
}
