package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"replenisher/internal/calendar"
	"replenisher/internal/engine"
	"replenisher/internal/ledger"
	"replenisher/internal/logger"
	"replenisher/internal/storage"
	"replenisher/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the replenishment engine as a long-lived process",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Banner(version)

	store, err := storage.Open(string(cfg.StorageBackend), cfg.DataDir, cfg.DatabasePath, cfg.BackupRetention)
	if err != nil {
		logger.Error("storage", fmt.Sprintf("failed to open backend: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	calCfg := calendar.DefaultConfig()
	calCfg.LeadTimeDays = cfg.LeadTimeDaysDefault
	if len(cfg.OrderDays) > 0 {
		calCfg.OrderDays = calendar.WeekdaySet(cfg.OrderDays)
	}
	if len(cfg.DeliveryDays) > 0 {
		calCfg.DeliveryDays = calendar.WeekdaySet(cfg.DeliveryDays)
	}
	cal := calendar.New(calCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(ctx, store, cfg, cal)
	wf := workflow.New(eng)
	srv := &statusServer{store: store, cal: cal, wf: wf}

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		logger.Info("server", "shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server", fmt.Sprintf("shutdown error: %v", err))
		}
	}()

	logger.Server(cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server", fmt.Sprintf("failed: %v", err))
		os.Exit(1)
	}

	if err := eng.Shutdown(); err != nil {
		logger.Error("engine", fmt.Sprintf("writer shutdown: %v", err))
	}
	logger.Info("server", "stopped")
	return nil
}

// statusServer exposes a thin, read-only operational surface over the
// running engine: health and version, the SKU catalog, and one SKU's
// stock as of now.
type statusServer struct {
	store storage.Storage
	cal   *calendar.Calendar
	wf    *workflow.Workflows
}

func (s *statusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/stock/{sku}", s.handleStock)
	mux.HandleFunc("GET /api/skus", s.handleSKUs)
	return mux
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *statusServer) handleSKUs(w http.ResponseWriter, r *http.Request) {
	skus, err := s.store.LoadSKUs()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, skus)
}

func (s *statusServer) handleStock(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	transactions, err := s.store.LoadTransactions()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sales, err := s.store.LoadSales()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	stock := ledger.CalculateAsOf(sku, time.Now().UTC(), transactions, sales)
	writeJSON(w, http.StatusOK, stock)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
