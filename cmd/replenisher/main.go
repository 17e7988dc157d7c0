// Command replenisher runs the single-store inventory replenishment
// engine as a long-lived process, and exposes maintenance subcommands
// for operating its data backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"replenisher/internal/config"
)

var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "replenisher",
	Short:   "Single-store inventory replenishment engine",
	Version: version,
}

func loadConfig() (*config.Config, error) {
	v := viper.New()
	v.BindPFlag("storage_backend", rootCmd.PersistentFlags().Lookup("backend"))
	v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	v.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("database-path"))
	return config.Load(cfgFile, v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("backend", "", "storage backend override (flatfile|database)")
	rootCmd.PersistentFlags().String("data-dir", "", "flat-file data directory override")
	rootCmd.PersistentFlags().String("database-path", "", "SQLite database path override")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dbCheckCmd)
	rootCmd.AddCommand(dbReindexVacuumCmd)
	rootCmd.AddCommand(restoreBackupCmd)
	rootCmd.AddCommand(exportSnapshotCmd)
	rootCmd.AddCommand(exportDebugBundleCmd)
	rootCmd.AddCommand(importLegacySnapshotCmd)
	rootCmd.AddCommand(migrateFlatfileToSQLiteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
