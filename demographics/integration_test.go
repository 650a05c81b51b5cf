//go:build integration
// +build integration

package demographics_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/popsynth/popsynth/demographics"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container, applies the schema
// migration and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "popsynth_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=popsynth_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

const storedSpecDocument = `{
	"name": "Integration Population",
	"num_agents": 100,
	"numerical_characteristics": {
		"zeta_score": {
			"range": [0, 1],
			"points": [{"value": 0.5, "probability": 1}]
		},
		"age": {
			"range": [18, 80],
			"points": [
				{"value": 25, "probability": 0.2},
				{"value": 35, "probability": 0.3},
				{"value": 45, "probability": 0.25},
				{"value": 65, "probability": 0.25}
			]
		},
		"political_affiliation": {
			"economic": {"range": [-1, 1], "points": [{"value": 0, "probability": 1}]},
			"governance": {"range": [-1, 1], "points": [{"value": 0, "probability": 1}]},
			"cultural": {"range": [-1, 1], "points": [{"value": 0, "probability": 1}]}
		}
	},
	"categorical_characteristics": {
		"urbanization": [
			{"category": "urban", "probability": 0.4},
			{"category": "rural", "probability": 0.6}
		],
		"gender": [
			{"category": "female", "probability": 0.51},
			{"category": "male", "probability": 0.49}
		],
		"location": "United States"
	}
}`

func storedSpec(t *testing.T) demographics.Spec {
	t.Helper()
	var spec demographics.Spec
	if err := json.Unmarshal([]byte(storedSpecDocument), &spec); err != nil {
		t.Fatalf("Failed to decode fixture spec: %v", err)
	}
	return spec
}

// TestPostgresStoreRoundTrip verifies a spec survives storage bit-for-bit,
// attribute order included
func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := demographics.NewPostgresStore(db)
	spec := storedSpec(t)

	rec := &demographics.Record{ID: uuid.NewString(), Spec: spec}
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if !reflect.DeepEqual(got.Spec, spec) {
		t.Errorf("stored spec differs from original:\nwant %+v\ngot  %+v", spec, got.Spec)
	}

	// Order check on top of DeepEqual, since order is the point.
	wantOrder := []string{"zeta_score", "age", "political_affiliation"}
	for i, want := range wantOrder {
		if got.Spec.Numerical[i].Name != want {
			t.Errorf("numeric field %d = %q, want %q", i, got.Spec.Numerical[i].Name, want)
		}
	}
}

// TestPostgresStoreDuplicate verifies duplicate IDs are rejected
func TestPostgresStoreDuplicate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := demographics.NewPostgresStore(db)
	rec := &demographics.Record{ID: uuid.NewString(), Spec: storedSpec(t)}

	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(rec); err == nil {
		t.Errorf("Add() accepted a duplicate ID")
	}
}

// TestPostgresStoreUpdate verifies updates replace the spec and bump
// UpdatedAt
func TestPostgresStoreUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := demographics.NewPostgresStore(db)
	rec := &demographics.Record{ID: uuid.NewString(), Spec: storedSpec(t)}
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	updated := storedSpec(t)
	updated.Name = "Updated Population"
	updated.NumAgents = 500
	if err := store.Update(&demographics.Record{ID: rec.ID, Spec: updated}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Spec.Name != "Updated Population" || got.Spec.NumAgents != 500 {
		t.Errorf("updated spec = %q/%d", got.Spec.Name, got.Spec.NumAgents)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

// TestPostgresStoreListAndDelete verifies listing order and deletion
func TestPostgresStoreListAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := demographics.NewPostgresStore(db)

	first := &demographics.Record{ID: uuid.NewString(), Spec: storedSpec(t)}
	second := &demographics.Record{ID: uuid.NewString(), Spec: storedSpec(t)}
	for _, rec := range []*demographics.Record{first, second} {
		if err := store.Add(rec); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].ID != first.ID {
		t.Errorf("List() not oldest first: got %s", records[0].ID)
	}

	if err := store.Delete(first.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(first.ID); err == nil {
		t.Errorf("Get() succeeded after Delete()")
	}
	if err := store.Delete(first.ID); err == nil {
		t.Errorf("Delete() succeeded twice for the same ID")
	}
}
