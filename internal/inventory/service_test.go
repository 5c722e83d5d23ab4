package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/events"
)

// Mock Store: mutex-guarded in-memory map with the same Mutate contract as
// the pgx repo.
type fakeStore struct {
	mu   sync.Mutex
	recs map[string]Record
	txs  []Transaction
	seq  int
}

func newFakeStore(recs ...Record) *fakeStore {
	f := &fakeStore{recs: make(map[string]Record)}
	for _, r := range recs {
		f.recs[r.ProductID] = r
	}
	return f
}

func (f *fakeStore) Get(ctx context.Context, productID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[productID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) Mutate(ctx context.Context, productID string, fn func(rec *Record) (*Transaction, error)) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[productID]
	if !ok {
		return Record{}, ErrNotFound
	}
	trec, err := fn(&rec)
	if err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = time.Now().UTC()
	f.recs[productID] = rec
	if trec != nil {
		f.seq++
		trec.ID = fmt.Sprintf("tx-%d", f.seq)
		trec.ProductID = productID
		trec.CreatedAt = rec.UpdatedAt
		f.txs = append(f.txs, *trec)
	}
	return rec, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, productID string, page, limit int) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Transaction
	for i := len(f.txs) - 1; i >= 0; i-- { // newest first
		if f.txs[i].ProductID == productID {
			all = append(all, f.txs[i])
		}
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeStore) ListLowStock(ctx context.Context, override *int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.recs {
		if BelowThreshold(rec, override) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) transactions(productID string) []Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Transaction
	for _, t := range f.txs {
		if t.ProductID == productID {
			out = append(out, t)
		}
	}
	return out
}

// Mock Publisher: records every publish.
type fakeBus struct {
	mu        sync.Mutex
	published []string // routing keys in order
	payloads  []events.Envelope
	ok        bool
}

func (b *fakeBus) Publish(ctx context.Context, routingKey string, env events.Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, routingKey)
	b.payloads = append(b.payloads, env)
	return b.ok
}

func (b *fakeBus) count(routingKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.published {
		if k == routingKey {
			n++
		}
	}
	return n
}

func newService(recs ...Record) (*Service, *fakeStore, *fakeBus) {
	store := newFakeStore(recs...)
	bus := &fakeBus{ok: true}
	return &Service{Store: store, Bus: bus, ServiceName: "product-service-test"}, store, bus
}

func tracked(productID string, qty, reserved, threshold int) Record {
	return Record{
		ProductID:         productID,
		Quantity:          qty,
		Reserved:          reserved,
		Available:         qty - reserved,
		LowStockThreshold: threshold,
		IsTracked:         true,
	}
}

func checkInvariant(t *testing.T, rec Record) {
	t.Helper()
	if rec.Available != rec.Quantity-rec.Reserved {
		t.Errorf("invariant broken: available=%d quantity=%d reserved=%d", rec.Available, rec.Quantity, rec.Reserved)
	}
	if rec.Quantity < 0 || rec.Reserved < 0 || rec.Available < 0 {
		t.Errorf("negative pool: %+v", rec)
	}
}

func intp(i int) *int    { return &i }
func boolp(b bool) *bool { return &b }

func TestUpdate_RecomputesAvailable(t *testing.T) {
	svc, _, bus := newService(tracked("p1", 100, 20, 10))

	rec, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(150)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.Available != 130 {
		t.Errorf("expected available 130, got %d", rec.Available)
	}
	checkInvariant(t, rec)
	if got := bus.count(events.KeyInventoryUpdated); got != 1 {
		t.Errorf("expected 1 updated event, got %d", got)
	}
}

func TestUpdate_RejectsNegativeAvailable(t *testing.T) {
	svc, store, bus := newService(tracked("p1", 100, 20, 10))

	_, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(10)})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
	// no partial mutation, no event
	rec, _ := store.Get(context.Background(), "p1")
	if rec.Quantity != 100 || rec.Reserved != 20 {
		t.Errorf("record mutated on failure: %+v", rec)
	}
	if len(bus.published) != 0 {
		t.Errorf("expected no events, got %v", bus.published)
	}
}

func TestUpdate_QuantityIncreaseAppendsRestock(t *testing.T) {
	svc, store, _ := newService(tracked("p1", 100, 0, 10))

	if _, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(120)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	txs := store.transactions("p1")
	if len(txs) != 1 || txs[0].Type != TxRestock || txs[0].Quantity != 20 {
		t.Errorf("expected RESTOCK delta +20, got %+v", txs)
	}
}

func TestUpdate_QuantityDecreaseAppendsAdjustment(t *testing.T) {
	svc, store, _ := newService(tracked("p1", 100, 0, 10))

	if _, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(70)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	txs := store.transactions("p1")
	if len(txs) != 1 || txs[0].Type != TxAdjustment || txs[0].Quantity != -30 {
		t.Errorf("expected ADJUSTMENT delta -30, got %+v", txs)
	}
}

func TestUpdate_UnchangedQuantityNoTransaction(t *testing.T) {
	svc, store, bus := newService(tracked("p1", 100, 0, 10))

	// reserve first so quantity stays 100 while other fields moved
	if _, err := svc.Reserve(context.Background(), "p1", 95, "order-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	before := len(store.transactions("p1"))

	rec, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(100)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.Available != 5 {
		t.Errorf("expected available 5, got %d", rec.Available)
	}
	if got := len(store.transactions("p1")); got != before {
		t.Errorf("expected no new transaction, got %d rows", got-before)
	}
	// updated event still fires, and available 5 <= threshold 10 alerts
	if got := bus.count(events.KeyInventoryUpdated); got != 1 {
		t.Errorf("expected 1 updated event, got %d", got)
	}
	if got := bus.count(events.KeyInventoryLowStock); got != 1 {
		t.Errorf("expected 1 low-stock alert, got %d", got)
	}
}

func TestUpdate_UntrackedSuppressesAlert(t *testing.T) {
	svc, _, bus := newService(tracked("p1", 5, 0, 10))

	rec, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(4), IsTracked: boolp(false)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.IsTracked {
		t.Error("expected tracking off")
	}
	if got := bus.count(events.KeyInventoryLowStock); got != 0 {
		t.Errorf("expected no alert for untracked row, got %d", got)
	}
	if got := bus.count(events.KeyInventoryUpdated); got != 1 {
		t.Errorf("updated event still fires for untracked rows, got %d", got)
	}
}

func TestReserve_NoEvent(t *testing.T) {
	svc, store, bus := newService(tracked("p1", 100, 0, 10))

	rec, err := svc.Reserve(context.Background(), "p1", 95, "order-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if rec.Available != 5 || rec.Reserved != 95 || rec.Quantity != 100 {
		t.Errorf("unexpected record: %+v", rec)
	}
	checkInvariant(t, rec)
	if len(bus.published) != 0 {
		t.Errorf("reservation must not publish, got %v", bus.published)
	}
	txs := store.transactions("p1")
	if len(txs) != 1 || txs[0].Type != TxReserve || txs[0].Quantity != -95 || txs[0].Reference != "order-1" {
		t.Errorf("expected RESERVE delta -95 ref order-1, got %+v", txs)
	}
}

func TestReserve_InsufficientMessageCarriesAmounts(t *testing.T) {
	svc, _, _ := newService(tracked("p1", 10, 4, 0))

	_, err := svc.Reserve(context.Background(), "p1", 7, "")
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}
	if !strings.Contains(err.Error(), "7") || !strings.Contains(err.Error(), "6") {
		t.Errorf("message should state requested and available: %q", err)
	}
}

func TestReserveRelease_Inverse(t *testing.T) {
	svc, _, _ := newService(tracked("p1", 100, 30, 10))
	ctx := context.Background()

	before, _ := svc.Get(ctx, "p1")
	if _, err := svc.Reserve(ctx, "p1", 25, "order-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	after, err := svc.Release(ctx, "p1", 25, "order-1")
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if after.Reserved != before.Reserved || after.Available != before.Available {
		t.Errorf("release did not invert reserve: before=%+v after=%+v", before, after)
	}
	checkInvariant(t, after)
}

func TestRelease_MoreThanReserved(t *testing.T) {
	svc, _, _ := newService(tracked("p1", 100, 5, 10))

	_, err := svc.Release(context.Background(), "p1", 6, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
}

func TestDeduct_FromReservedOnly(t *testing.T) {
	svc, _, _ := newService(tracked("p1", 100, 40, 0))

	rec, err := svc.Deduct(context.Background(), "p1", 30, "order-1")
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	// q <= reserved: only quantity and reserved move
	if rec.Quantity != 70 || rec.Reserved != 10 || rec.Available != 60 {
		t.Errorf("unexpected record: %+v", rec)
	}
	checkInvariant(t, rec)
}

func TestDeduct_SplitsAcrossPools(t *testing.T) {
	svc, store, _ := newService(tracked("p1", 100, 10, 0))

	rec, err := svc.Deduct(context.Background(), "p1", 25, "order-1")
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	// reserved drains to 0, available drops by q - reserved_before = 15
	if rec.Quantity != 75 || rec.Reserved != 0 || rec.Available != 75 {
		t.Errorf("unexpected record: %+v", rec)
	}
	checkInvariant(t, rec)
	txs := store.transactions("p1")
	if len(txs) != 1 || txs[0].Type != TxSale || txs[0].Quantity != -25 {
		t.Errorf("expected SALE delta -25, got %+v", txs)
	}
}

func TestDeduct_96Of100FiresOneAlert(t *testing.T) {
	svc, _, bus := newService(tracked("p1", 100, 0, 10))

	rec, err := svc.Deduct(context.Background(), "p1", 96, "order-1")
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if rec.Available != 4 {
		t.Errorf("expected available 4, got %d", rec.Available)
	}
	if got := bus.count(events.KeyInventoryLowStock); got != 1 {
		t.Errorf("expected exactly 1 low-stock alert, got %d", got)
	}
}

func TestDeduct_Insufficient(t *testing.T) {
	svc, store, _ := newService(tracked("p1", 10, 4, 0))

	_, err := svc.Deduct(context.Background(), "p1", 11, "")
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}
	rec, _ := store.Get(context.Background(), "p1")
	if rec.Quantity != 10 || rec.Reserved != 4 {
		t.Errorf("record mutated on failure: %+v", rec)
	}
}

func TestLedger_UnknownProduct(t *testing.T) {
	svc, _, _ := newService()

	if _, err := svc.Reserve(context.Background(), "nope", 1, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if _, err := svc.Update(context.Background(), "nope", UpdatePatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if _, err := svc.History(context.Background(), "nope", 1, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := newFakeStore(tracked("p1", 100, 0, 10))
	bus := &fakeBus{ok: false} // every publish dropped
	svc := &Service{Store: store, Bus: bus, ServiceName: "test"}

	rec, err := svc.Update(context.Background(), "p1", UpdatePatch{Quantity: intp(5)})
	if err != nil {
		t.Fatalf("mutation must not fail on publish loss: %v", err)
	}
	if rec.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", rec.Quantity)
	}
}

func TestHistory_NewestFirstPaginated(t *testing.T) {
	svc, _, _ := newService(tracked("p1", 100, 0, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Reserve(ctx, "p1", 1, fmt.Sprintf("order-%d", i)); err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
	}

	page1, err := svc.History(ctx, "p1", 1, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page1) != 2 || page1[0].Reference != "order-4" || page1[1].Reference != "order-3" {
		t.Errorf("expected newest first [order-4 order-3], got %+v", page1)
	}
	page3, err := svc.History(ctx, "p1", 3, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page3) != 1 || page3[0].Reference != "order-0" {
		t.Errorf("expected [order-0], got %+v", page3)
	}
}

func TestInvariant_ConcurrentReserve(t *testing.T) {
	initial := 20
	requests := 50
	svc, store, _ := newService(tracked("p1", initial, 0, 0))

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := svc.Reserve(context.Background(), "p1", 1, fmt.Sprintf("order-%d", n)); err == nil {
				success.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if success.Load() != int32(initial) {
		t.Errorf("expected %d successful reservations, got %d", initial, success.Load())
	}
	rec, _ := store.Get(context.Background(), "p1")
	if rec.Available != 0 || rec.Reserved != initial {
		t.Errorf("unexpected record after concurrent reserves: %+v", rec)
	}
	checkInvariant(t, rec)
}

func TestInvariant_MixedSequence(t *testing.T) {
	svc, store, _ := newService(tracked("p1", 50, 0, 5))
	ctx := context.Background()

	steps := []func() (Record, error){
		func() (Record, error) { return svc.Reserve(ctx, "p1", 10, "o1") },
		func() (Record, error) { return svc.Deduct(ctx, "p1", 4, "o1") },
		func() (Record, error) { return svc.Release(ctx, "p1", 6, "o1") },
		func() (Record, error) { return svc.Update(ctx, "p1", UpdatePatch{Quantity: intp(60)}) },
		func() (Record, error) { return svc.Deduct(ctx, "p1", 15, "o2") },
		func() (Record, error) { return svc.Reserve(ctx, "p1", 45, "o3") },
		func() (Record, error) { return svc.Deduct(ctx, "p1", 45, "o3") },
	}
	for i, step := range steps {
		rec, err := step()
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		checkInvariant(t, rec)
	}
	rec, _ := store.Get(ctx, "p1")
	if rec.Quantity != 0 || rec.Reserved != 0 || rec.Available != 0 {
		t.Errorf("expected empty ledger, got %+v", rec)
	}
}
