package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"replenisher/internal/apperr"
	"replenisher/internal/calendar"
	"replenisher/internal/config"
	"replenisher/internal/model"
	"replenisher/internal/storage"
)

// memStorage is a minimal in-memory Storage for engine tests; only
// fields exercised by the writer discipline tests are meaningful.
type memStorage struct {
	mu   sync.Mutex
	skus []model.SKU
}

func (m *memStorage) LoadSKUs() ([]model.SKU, error) { m.mu.Lock(); defer m.mu.Unlock(); return append([]model.SKU{}, m.skus...), nil }
func (m *memStorage) SaveSKUs(s []model.SKU) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skus = append([]model.SKU{}, s...)
	return nil
}
func (m *memStorage) LoadTransactions() ([]model.Transaction, error) { return nil, nil }
func (m *memStorage) SaveTransactions(t []model.Transaction) error   { return nil }
func (m *memStorage) AppendTransaction(t model.Transaction) error    { return nil }
func (m *memStorage) LoadSales() ([]model.SalesRecord, error)        { return nil, nil }
func (m *memStorage) SaveSales(s []model.SalesRecord) error          { return nil }
func (m *memStorage) LoadLots() ([]model.Lot, error)                 { return nil, nil }
func (m *memStorage) SaveLots(l []model.Lot) error                   { return nil }
func (m *memStorage) LoadOrderLogs() ([]model.OrderLog, error)       { return nil, nil }
func (m *memStorage) SaveOrderLogs(o []model.OrderLog) error         { return nil }
func (m *memStorage) LoadReceivingLogs() ([]model.ReceivingLog, error) { return nil, nil }
func (m *memStorage) SaveReceivingLogs(r []model.ReceivingLog) error   { return nil }
func (m *memStorage) LoadPromoWindows() ([]model.PromoWindow, error)   { return nil, nil }
func (m *memStorage) SavePromoWindows(p []model.PromoWindow) error     { return nil }
func (m *memStorage) AppendAuditLog(a model.AuditLog) error            { return nil }
func (m *memStorage) Close() error                                     { return nil }

var _ storage.Storage = (*memStorage)(nil)

func newTestEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := &memStorage{}
	cfg := config.Default()
	cal := calendar.New(calendar.DefaultConfig())
	eng := New(ctx, store, cfg, cal)
	return eng, func() {
		cancel()
		eng.Shutdown()
	}
}

func TestEngine_DoRunsFnAndReturnsItsError(t *testing.T) {
	eng, done := newTestEngine(t)
	defer done()

	wantErr := apperr.New(apperr.InvalidInput, "boom")
	err := eng.Do(context.Background(), FamilyTransactions, func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("Do returned %v, want %v", err, wantErr)
	}
}

// TestEngine_SameFamilySerializes verifies writes against one family
// never overlap: each job increments a counter and checks no other job
// is concurrently inside the critical section.
func TestEngine_SameFamilySerializes(t *testing.T) {
	eng, done := newTestEngine(t)
	defer done()

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Do(context.Background(), FamilyLots, func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxObserved)
					if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxObserved != 1 {
		t.Fatalf("expected writes against one family to serialize, observed max concurrency %d", maxObserved)
	}
}

// TestEngine_DifferentFamiliesRunConcurrently verifies the per-family
// writer goroutines don't serialize against each other.
func TestEngine_DifferentFamiliesRunConcurrently(t *testing.T) {
	eng, done := newTestEngine(t)
	defer done()

	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan Family, 2)

	for _, fam := range []Family{FamilyTransactions, FamilySales} {
		wg.Add(1)
		go func(f Family) {
			defer wg.Done()
			eng.Do(context.Background(), f, func() error {
				started <- f
				<-release
				return nil
			})
		}(fam)
	}

	seen := map[Family]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case f := <-started:
			seen[f] = true
		case <-timeout:
			t.Fatal("timed out waiting for both family writers to start concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestEngine_DoReturnsCancelledIfContextDoneBeforeScheduling(t *testing.T) {
	eng, done := newTestEngine(t)
	defer done()

	// Saturate the transactions writer so the next Do call must block on
	// the queue send, then cancel its context before it is scheduled.
	blocker := make(chan struct{})
	go eng.Do(context.Background(), FamilyTransactions, func() error {
		<-blocker
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eng.Do(ctx, FamilyTransactions, func() error {
		t.Fatal("fn should not run once ctx was already cancelled before scheduling")
		return nil
	})
	if !apperr.Is(err, apperr.Cancelled) {
		t.Fatalf("expected apperr.Cancelled, got %v", err)
	}
	close(blocker)
}

func TestEngine_DoUnknownFamilyIsInvalidInput(t *testing.T) {
	eng, done := newTestEngine(t)
	defer done()

	err := eng.Do(context.Background(), Family("not_a_real_family"), func() error { return nil })
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected apperr.InvalidInput, got %v", err)
	}
}

func TestEngine_ShutdownDrainsInFlightWrites(t *testing.T) {
	eng, _ := newTestEngine(t)

	var ran int32
	done := make(chan error, 1)
	go func() {
		done <- eng.Do(context.Background(), FamilyOrders, func() error {
			time.Sleep(30 * time.Millisecond)
			atomic.StoreInt32(&ran, 1)
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected the in-flight write to have completed before Shutdown returned")
	}
	if err := <-done; err != nil {
		t.Fatalf("Do: %v", err)
	}
}
