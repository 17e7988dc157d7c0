package main

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"replenisher/internal/ledger"
	"replenisher/internal/logger"
	"replenisher/internal/migrate"
	"replenisher/internal/storage"
)

const (
	exitPass = 0
	exitFail = 1
	exitWarn = 2
)

var (
	snapshotOutDir   string
	debugBundlePath  string
	backupEntity     string
	legacyCSVPath    string
	legacyForce      bool
	migrateDryRun    bool
	migrateForce     bool
)

var dbCheckCmd = &cobra.Command{
	Use:   "db_check",
	Short: "Verify database integrity and ledger invariants",
	RunE:  runDBCheck,
}

var dbReindexVacuumCmd = &cobra.Command{
	Use:   "db_reindex_vacuum",
	Short: "Rebuild indexes and reclaim free pages in the database backend",
	RunE:  runDBReindexVacuum,
}

var restoreBackupCmd = &cobra.Command{
	Use:   "restore_backup",
	Short: "Restore the most recent flat-file backup for an entity",
	RunE:  runRestoreBackup,
}

var exportSnapshotCmd = &cobra.Command{
	Use:   "export_snapshot",
	Short: "Export every entity to CSV with a manifest",
	RunE:  runExportSnapshot,
}

var exportDebugBundleCmd = &cobra.Command{
	Use:   "export_debug_bundle",
	Short: "Bundle data files and recent audit log into a diagnostic ZIP",
	RunE:  runExportDebugBundle,
}

var importLegacySnapshotCmd = &cobra.Command{
	Use:   "import-legacy-snapshot",
	Short: "Migrate a legacy inventory CSV into SNAPSHOT ledger events",
	RunE:  runImportLegacySnapshot,
}

var migrateFlatfileToSQLiteCmd = &cobra.Command{
	Use:   "migrate-flatfile-to-sqlite",
	Short: "Carry existing flat-file data across to the database backend",
	RunE:  runMigrateFlatfileToSQLite,
}

func init() {
	restoreBackupCmd.Flags().StringVar(&backupEntity, "entity", "", "entity file name to restore (e.g. transactions.csv)")
	restoreBackupCmd.MarkFlagRequired("entity")

	exportSnapshotCmd.Flags().StringVar(&snapshotOutDir, "out", "./export", "output directory for the snapshot")
	exportDebugBundleCmd.Flags().StringVar(&debugBundlePath, "out", "./debug-bundle.zip", "output path for the diagnostic ZIP")

	importLegacySnapshotCmd.Flags().StringVar(&legacyCSVPath, "legacy-csv", "", "path to the legacy inventory CSV")
	importLegacySnapshotCmd.Flags().BoolVar(&legacyForce, "force", false, "migrate even if the ledger already has transactions")
	importLegacySnapshotCmd.MarkFlagRequired("legacy-csv")

	migrateFlatfileToSQLiteCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "count rows that would move without writing them")
	migrateFlatfileToSQLiteCmd.Flags().BoolVar(&migrateForce, "force", false, "migrate a table even if the database already has rows for it")
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.StorageBackend == "database" {
		sqlStore, err := storage.OpenSQLStorage(cfg.DatabasePath)
		if err != nil {
			logger.Error("db_check", fmt.Sprintf("cannot open database: %v", err))
			os.Exit(exitFail)
		}
		defer sqlStore.Close()

		ok, detail, err := sqlStore.CheckIntegrity()
		if err != nil {
			logger.Error("db_check", err.Error())
			os.Exit(exitFail)
		}
		if !ok {
			logger.Error("db_check", fmt.Sprintf("integrity check failed: %s", detail))
			os.Exit(exitFail)
		}
		logger.Success("db_check", "database integrity check passed")
	}

	store, err := storage.Open(string(cfg.StorageBackend), cfg.DataDir, cfg.DatabasePath, cfg.BackupRetention)
	if err != nil {
		logger.Error("db_check", err.Error())
		os.Exit(exitFail)
	}
	defer store.Close()

	warnCount, err := checkLedgerInvariants(store)
	if err != nil {
		logger.Error("db_check", err.Error())
		os.Exit(exitFail)
	}
	if warnCount > 0 {
		logger.Warn("db_check", fmt.Sprintf("%d invariant warning(s) found", warnCount))
		os.Exit(exitWarn)
	}
	logger.Success("db_check", "all invariants satisfied")
	return nil
}

// checkLedgerInvariants verifies invariant 2 (stock counters never go
// negative) for every known SKU as of today.
func checkLedgerInvariants(store storage.Storage) (int, error) {
	skus, err := store.LoadSKUs()
	if err != nil {
		return 0, err
	}
	transactions, err := store.LoadTransactions()
	if err != nil {
		return 0, err
	}
	sales, err := store.LoadSales()
	if err != nil {
		return 0, err
	}

	warnings := 0
	today := time.Now().UTC()
	for _, sku := range skus {
		stock := ledger.CalculateAsOf(sku.SKU, today, transactions, sales)
		if stock.OnHand < 0 || stock.OnOrder < 0 || stock.UnfulfilledQty < 0 {
			logger.Warn("db_check", fmt.Sprintf("%s: negative stock counter in %+v", sku.SKU, stock))
			warnings++
		}
	}
	return warnings, nil
}

func runDBReindexVacuum(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != "database" {
		logger.Info("db_reindex_vacuum", "flat-file backend has no indexes to rebuild")
		return nil
	}

	sqlStore, err := storage.OpenSQLStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("db_reindex_vacuum", err.Error())
		os.Exit(exitFail)
	}
	defer sqlStore.Close()

	if err := sqlStore.ReindexVacuum(); err != nil {
		logger.Error("db_reindex_vacuum", err.Error())
		os.Exit(exitFail)
	}
	logger.Success("db_reindex_vacuum", "reindex and vacuum complete")
	return nil
}

func runRestoreBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(cfg.DataDir, backupEntity+".backup.*"))
	if err != nil {
		logger.Error("restore_backup", err.Error())
		os.Exit(exitFail)
	}
	if len(matches) == 0 {
		logger.Error("restore_backup", fmt.Sprintf("no backups found for %s", backupEntity))
		os.Exit(exitFail)
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	target := filepath.Join(cfg.DataDir, backupEntity)
	data, err := os.ReadFile(latest)
	if err != nil {
		logger.Error("restore_backup", err.Error())
		os.Exit(exitFail)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		logger.Error("restore_backup", err.Error())
		os.Exit(exitFail)
	}
	logger.Success("restore_backup", fmt.Sprintf("restored %s from %s (%s)", target, filepath.Base(latest), humanize.Bytes(uint64(len(data)))))
	return nil
}

func runExportSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(snapshotOutDir, 0o755); err != nil {
		logger.Error("export_snapshot", err.Error())
		os.Exit(exitFail)
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		logger.Error("export_snapshot", err.Error())
		os.Exit(exitFail)
	}

	var manifest strings.Builder
	manifest.WriteString("file,bytes,exported_at\n")
	exportedAt := time.Now().UTC().Format(time.RFC3339)
	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cfg.DataDir, entry.Name()))
		if err != nil {
			logger.Warn("export_snapshot", fmt.Sprintf("skipping %s: %v", entry.Name(), err))
			continue
		}
		if err := os.WriteFile(filepath.Join(snapshotOutDir, entry.Name()), data, 0o644); err != nil {
			logger.Error("export_snapshot", err.Error())
			os.Exit(exitFail)
		}
		fmt.Fprintf(&manifest, "%s,%d,%s\n", entry.Name(), len(data), exportedAt)
		copied++
	}

	if err := os.WriteFile(filepath.Join(snapshotOutDir, "manifest.csv"), []byte(manifest.String()), 0o644); err != nil {
		logger.Error("export_snapshot", err.Error())
		os.Exit(exitFail)
	}
	logger.Success("export_snapshot", fmt.Sprintf("exported %d file(s) to %s", copied, snapshotOutDir))
	return nil
}

func runExportDebugBundle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := os.Create(debugBundlePath)
	if err != nil {
		logger.Error("export_debug_bundle", err.Error())
		os.Exit(exitFail)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		logger.Error("export_debug_bundle", err.Error())
		os.Exit(exitFail)
	}

	bundleID := uuid.NewString()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cfg.DataDir, entry.Name()))
		if err != nil {
			continue
		}
		w, err := zw.Create(entry.Name())
		if err != nil {
			logger.Error("export_debug_bundle", err.Error())
			os.Exit(exitFail)
		}
		if _, err := w.Write(data); err != nil {
			logger.Error("export_debug_bundle", err.Error())
			os.Exit(exitFail)
		}
	}

	meta, err := zw.Create("bundle.txt")
	if err == nil {
		fmt.Fprintf(meta, "bundle_id: %s\ngenerated_at: %s\nbackend: %s\n", bundleID, time.Now().UTC().Format(time.RFC3339), cfg.StorageBackend)
	}

	logger.Success("export_debug_bundle", fmt.Sprintf("wrote %s (bundle %s)", debugBundlePath, bundleID))
	return nil
}

func runImportLegacySnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(string(cfg.StorageBackend), cfg.DataDir, cfg.DatabasePath, cfg.BackupRetention)
	if err != nil {
		logger.Error("import-legacy-snapshot", err.Error())
		os.Exit(exitFail)
	}
	defer store.Close()

	snapshotDate := time.Now().UTC().Truncate(24 * time.Hour)
	result := migrate.MigrateFromLegacyCSV(legacyCSVPath, store, snapshotDate, legacyForce)
	for _, e := range result.Errors {
		logger.Warn("import-legacy-snapshot", e)
	}
	if !result.Success {
		logger.Error("import-legacy-snapshot", result.Message)
		os.Exit(exitFail)
	}

	ok, err := migrate.ValidateLegacyMigration(store, snapshotDate)
	if err != nil {
		logger.Error("import-legacy-snapshot", err.Error())
		os.Exit(exitFail)
	}
	if !ok {
		logger.Warn("import-legacy-snapshot", "validation found SKUs with zero on-hand and zero on-order after migration")
		os.Exit(exitWarn)
	}

	logger.Success("import-legacy-snapshot", result.Message)
	return nil
}

// runMigrateFlatfileToSQLite carries existing flat-file data across to
// the database backend, one entity family at a time, so operators can
// flip storage_backend from flatfile to database without losing
// history. The flat-file directory is only ever read; a table already
// populated in the destination is skipped unless --force is given.
func runMigrateFlatfileToSQLite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabasePath == "" {
		logger.Error("migrate-flatfile-to-sqlite", "database_path is not configured")
		os.Exit(exitFail)
	}

	flat, err := storage.NewFlatFileStorage(cfg.DataDir, cfg.BackupRetention)
	if err != nil {
		logger.Error("migrate-flatfile-to-sqlite", fmt.Sprintf("opening flat-file source: %v", err))
		os.Exit(exitFail)
	}
	defer flat.Close()

	sqlStore, err := storage.OpenSQLStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("migrate-flatfile-to-sqlite", fmt.Sprintf("opening database destination: %v", err))
		os.Exit(exitFail)
	}
	defer sqlStore.Close()

	report := migrate.MigrateFlatFileToSQLite(flat, sqlStore, migrateDryRun, migrateForce)
	for _, t := range report.Tables {
		switch {
		case t.Error != "":
			logger.Warn("migrate-flatfile-to-sqlite", fmt.Sprintf("%s: %s", t.Name, t.Error))
		case t.Skipped:
			logger.Info("migrate-flatfile-to-sqlite", fmt.Sprintf("%s: skipped, destination already has rows (%d source rows; use --force to overwrite)", t.Name, t.SourceRows))
		default:
			logger.Success("migrate-flatfile-to-sqlite", fmt.Sprintf("%s: %d row(s)", t.Name, t.SourceRows))
		}
	}

	if !report.Success {
		logger.Error("migrate-flatfile-to-sqlite", report.Message)
		os.Exit(exitFail)
	}
	logger.Success("migrate-flatfile-to-sqlite", report.Message)
	return nil
}
