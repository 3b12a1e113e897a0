package pathstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mmsim/internal/brownian"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "mmsim-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	dbPath := f.Name()
	f.Close()

	store, err := Open(dbPath)
	if err != nil {
		os.Remove(dbPath)
		t.Fatalf("failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}

	return store, cleanup
}

func testPath(samples ...float64) *brownian.Path {
	p := brownian.DefaultParams()
	p.N = len(samples)
	return &brownian.Path{Params: p, Samples: samples}
}

// ==================== MIGRATION TESTS ====================

func TestMigrationsApplied(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	applied, pending, err := store.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %v", pending)
	}
	if len(applied) != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), len(applied))
	}

	// running again is a no-op
	if err := store.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Insert(ctx, testPath(1, 2, 3)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	n, err := store.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("expected 1 path, got %d (err %v)", n, err)
	}
}

// ==================== PATH TESTS ====================

func TestInsertAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	want := testPath(100, 100.5, 99.75)
	id, err := store.Insert(ctx, want)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != id {
		t.Errorf("expected id %s, got %s", id, got.ID)
	}
	if got.Path.Params != want.Params {
		t.Errorf("expected params %+v, got %+v", want.Params, got.Path.Params)
	}
	if len(got.Path.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got.Path.Samples))
	}
	for i := range want.Samples {
		if got.Path.Samples[i] != want.Samples[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want.Samples[i], got.Path.Samples[i])
		}
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestGetNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.Get(context.Background(), "nope"); err != ErrPathNotFound {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestAllInsertionOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Insert(ctx, testPath(float64(i), float64(i)+1))
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 paths, got %d", len(all))
	}
	for i, sp := range all {
		if sp.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], sp.ID)
		}
		if sp.Path.Samples[0] != float64(i) {
			t.Errorf("position %d: expected first sample %d, got %f", i, i, sp.Path.Samples[0])
		}
	}

	gotIDs, err := store.IDs(ctx)
	if err != nil {
		t.Fatalf("IDs failed: %v", err)
	}
	for i := range ids {
		if gotIDs[i] != ids[i] {
			t.Errorf("IDs position %d: expected %s, got %s", i, ids[i], gotIDs[i])
		}
	}
}

func TestInsertBatchAndByBatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.Insert(ctx, testPath(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	ids, err := store.InsertBatch(ctx, "b1", []*brownian.Path{testPath(2), testPath(3)})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	batch, err := store.ByBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("ByBatch failed: %v", err)
	}
	if len(batch) != 2 || batch[0].Path.Samples[0] != 2 || batch[1].Path.Samples[0] != 3 {
		t.Errorf("unexpected batch contents: %+v", batch)
	}
	if batch[0].Batch != "b1" {
		t.Errorf("expected batch tag b1, got %q", batch[0].Batch)
	}

	n, err := store.DeleteBatch(ctx, "b1")
	if err != nil || n != 2 {
		t.Errorf("expected 2 deleted, got %d (err %v)", n, err)
	}
	count, _ := store.Count(ctx)
	if count != 1 {
		t.Errorf("expected untagged path to remain, count %d", count)
	}
}

func TestInsertBatchRollsBack(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	bad := testPath(1, 2)
	bad.Params.N = 5
	_, err := store.InsertBatch(ctx, "b", []*brownian.Path{testPath(1), bad})
	if !errors.Is(err, ErrCorruptPath) {
		t.Fatalf("expected ErrCorruptPath, got %v", err)
	}
	count, _ := store.Count(ctx)
	if count != 0 {
		t.Errorf("expected rollback to leave no paths, got %d", count)
	}
}

func TestDeleteAndClear(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, _ := store.Insert(ctx, testPath(1))
	store.Insert(ctx, testPath(2))
	store.Insert(ctx, testPath(3))

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, id); err != ErrPathNotFound {
		t.Errorf("expected ErrPathNotFound on second delete, got %v", err)
	}

	count, _ := store.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 paths, got %d", count)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	count, _ = store.Count(ctx)
	if count != 0 {
		t.Errorf("expected empty store after Clear, got %d", count)
	}
}

// ==================== CONCURRENCY TESTS ====================

func manyPaths(n int) []*brownian.Path {
	out := make([]*brownian.Path, n)
	for i := range out {
		out[i] = testPath(100, float64(i))
	}
	return out
}

func TestConcurrentInsertBatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	const writers, perBatch = 16, 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := fmt.Sprintf("b%d", w)
			if _, err := store.InsertBatch(ctx, batch, manyPaths(perBatch)); err != nil {
				errs <- err
				return
			}
			if w%2 == 0 {
				if _, err := store.DeleteBatch(ctx, batch); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != writers/2*perBatch {
		t.Errorf("expected %d paths, got %d", writers/2*perBatch, count)
	}
}

func TestConcurrentWritersAcrossHandles(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	a, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer a.Close()

	// a second handle on the same file has its own pool and waits on locks
	b, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open second handle: %v", err)
	}
	defer b.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		st := a
		if w%2 == 1 {
			st = b
		}
		wg.Add(1)
		go func(st *Store, w int) {
			defer wg.Done()
			if _, err := st.InsertBatch(ctx, fmt.Sprintf("h%d", w), manyPaths(20)); err != nil {
				errs <- err
			}
		}(st, w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}
	if count, _ := a.Count(ctx); count != 16*20 {
		t.Errorf("expected %d paths, got %d", 16*20, count)
	}
}

func TestPragmasOnConnection(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for name, want := range map[string]string{
		"busy_timeout": "5000",
		"journal_mode": "wal",
	} {
		got, err := store.Pragma(ctx, name)
		if err != nil {
			t.Fatalf("Pragma %s failed: %v", name, err)
		}
		if got != want {
			t.Errorf("expected %s=%s, got %s", name, want, got)
		}
	}
}

func TestWithPragmas(t *testing.T) {
	if got := withPragmas(":memory:"); got != ":memory:" {
		t.Errorf("expected memory DSN untouched, got %s", got)
	}
	got := withPragmas("/tmp/x.db")
	want := "file:/tmp/x.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got := withPragmas("file:x.db?cache=shared"); got[:len("file:x.db?cache=shared&_pragma=")] != "file:x.db?cache=shared&_pragma=" {
		t.Errorf("expected pragmas appended to existing query, got %s", got)
	}
}

// ==================== CODEC TESTS ====================

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":2,"params":{"n":1},"samples":[1]}`))
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Errorf("expected ErrUnsupportedSchema, got %v", err)
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	_, err := Decode([]byte(`{"version":1,"params":{"n":3},"samples":[1,2]}`))
	if !errors.Is(err, ErrCorruptPath) {
		t.Errorf("expected ErrCorruptPath, got %v", err)
	}
}

func TestEncodeSchema(t *testing.T) {
	data, err := Encode(testPath(100, 101))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"version":1,"params":{"s0":100,"n":2,"dt":0.005,"mu":0,"sigma":2},"samples":[100,101]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestGetRejectsUnsupportedStoredVersion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, _ := store.Insert(ctx, testPath(1))
	if _, err := store.db.Exec(`UPDATE paths SET data = '{"version":9,"params":{"n":1},"samples":[1]}' WHERE id = ?`, id); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrUnsupportedSchema) {
		t.Errorf("expected ErrUnsupportedSchema, got %v", err)
	}
}
