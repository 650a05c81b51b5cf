package demographics

import (
	"sync"
	"testing"
	"time"
)

// TestStoreInterface verifies at compile time that both stores implement
// the Store interface
func TestStoreInterface(t *testing.T) {
	var _ Store = (*InMemoryStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}

// TestInMemoryStoreAddGet verifies basic Add and Get behavior
func TestInMemoryStoreAddGet(t *testing.T) {
	store := NewInMemoryStore()

	rec := &Record{ID: "demo-1", Spec: testSpec()}
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Errorf("Add() did not set timestamps: %+v", rec)
	}

	got, err := store.Get("demo-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Spec.Name != "Test Population" {
		t.Errorf("Get() returned spec %q, want %q", got.Spec.Name, "Test Population")
	}
}

// TestInMemoryStoreAddDuplicate verifies duplicate IDs are rejected
func TestInMemoryStoreAddDuplicate(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Add(&Record{ID: "demo-1", Spec: testSpec()}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(&Record{ID: "demo-1", Spec: testSpec()}); err == nil {
		t.Errorf("Add() accepted a duplicate ID")
	}
}

// TestInMemoryStoreGetMissing verifies unknown IDs return an error
func TestInMemoryStoreGetMissing(t *testing.T) {
	store := NewInMemoryStore()

	if _, err := store.Get("nope"); err == nil {
		t.Errorf("Get() succeeded for a missing ID")
	}
}

// TestInMemoryStoreList verifies listing returns records oldest first
func TestInMemoryStoreList(t *testing.T) {
	store := NewInMemoryStore()

	for _, id := range []string{"demo-1", "demo-2", "demo-3"} {
		if err := store.Add(&Record{ID: id, Spec: testSpec()}); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
		time.Sleep(time.Millisecond)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"demo-1", "demo-2", "demo-3"} {
		if records[i].ID != want {
			t.Errorf("List()[%d].ID = %s, want %s", i, records[i].ID, want)
		}
	}
}

// TestInMemoryStoreUpdate verifies updates replace the spec, preserve
// CreatedAt and bump UpdatedAt
func TestInMemoryStoreUpdate(t *testing.T) {
	store := NewInMemoryStore()

	rec := &Record{ID: "demo-1", Spec: testSpec()}
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	created := rec.CreatedAt

	time.Sleep(time.Millisecond)

	updated := testSpec()
	updated.Name = "Updated Population"
	if err := store.Update(&Record{ID: "demo-1", Spec: updated}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := store.Get("demo-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Spec.Name != "Updated Population" {
		t.Errorf("spec name = %q, want %q", got.Spec.Name, "Updated Population")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Update() changed CreatedAt from %v to %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("Update() did not advance UpdatedAt: %v", got.UpdatedAt)
	}
}

// TestInMemoryStoreUpdateMissing verifies updating an unknown ID fails
func TestInMemoryStoreUpdateMissing(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Update(&Record{ID: "nope", Spec: testSpec()}); err == nil {
		t.Errorf("Update() succeeded for a missing ID")
	}
}

// TestInMemoryStoreDelete verifies deletion removes the record
func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Add(&Record{ID: "demo-1", Spec: testSpec()}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Delete("demo-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get("demo-1"); err == nil {
		t.Errorf("Get() succeeded after Delete()")
	}
	if err := store.Delete("demo-1"); err == nil {
		t.Errorf("Delete() succeeded twice for the same ID")
	}
}

// TestInMemoryStoreConcurrentAccess verifies the store tolerates
// concurrent readers and writers
func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		id := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_ = store.Add(&Record{ID: id, Spec: testSpec()})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.List()
		}()
	}
	wg.Wait()

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("List() returned %d records after concurrent adds, want 10", len(records))
	}
}
