package demographics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. Specifications are
// stored as json (not jsonb) columns: jsonb reorders object keys, and
// attribute declaration order is part of the generation contract.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed demographics store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Add inserts a new specification.
func (s *PostgresStore) Add(rec *Record) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM demographics WHERE id = $1)
	`, rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check demographic existence: %w", err)
	}
	if exists {
		return fmt.Errorf("demographic with ID %s already exists", rec.ID)
	}

	numerical, categorical, err := marshalCharacteristics(rec.Spec)
	if err != nil {
		return err
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO demographics (id, name, numerical_characteristics, categorical_characteristics, num_agents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Spec.Name, numerical, categorical, rec.Spec.NumAgents,
		rec.CreatedAt, rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert demographic: %w", err)
	}

	return nil
}

// Get retrieves a specification by ID.
func (s *PostgresStore) Get(id string) (*Record, error) {
	var rec Record
	var name string
	var numerical, categorical []byte
	var numAgents int

	err := s.db.QueryRow(`
		SELECT id, name, numerical_characteristics, categorical_characteristics, num_agents, created_at, updated_at
		FROM demographics
		WHERE id = $1
	`, id).Scan(&rec.ID, &name, &numerical, &categorical, &numAgents, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("demographic %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get demographic: %w", err)
	}

	spec, err := unmarshalCharacteristics(name, numAgents, numerical, categorical)
	if err != nil {
		return nil, err
	}
	rec.Spec = spec
	return &rec, nil
}

// List returns all specifications, oldest first.
func (s *PostgresStore) List() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, numerical_characteristics, categorical_characteristics, num_agents, created_at, updated_at
		FROM demographics
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list demographics: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var name string
		var numerical, categorical []byte
		var numAgents int
		if err := rows.Scan(&rec.ID, &name, &numerical, &categorical, &numAgents,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan demographic: %w", err)
		}
		spec, err := unmarshalCharacteristics(name, numAgents, numerical, categorical)
		if err != nil {
			return nil, err
		}
		rec.Spec = spec
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating demographics: %w", err)
	}

	return records, nil
}

// Update modifies an existing specification.
func (s *PostgresStore) Update(rec *Record) error {
	numerical, categorical, err := marshalCharacteristics(rec.Spec)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE demographics
		SET name = $1, numerical_characteristics = $2, categorical_characteristics = $3, num_agents = $4, updated_at = $5
		WHERE id = $6
	`, rec.Spec.Name, numerical, categorical, rec.Spec.NumAgents, rec.UpdatedAt, rec.ID)

	if err != nil {
		return fmt.Errorf("failed to update demographic: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("demographic %s not found", rec.ID)
	}

	return nil
}

// Delete removes a specification.
func (s *PostgresStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM demographics
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete demographic: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("demographic %s not found", id)
	}

	return nil
}

// marshalCharacteristics splits a spec into the two characteristics
// columns. The full document shape is produced by Spec.MarshalJSON; the
// columns store its two characteristics objects.
func marshalCharacteristics(spec Spec) (numerical, categorical []byte, err error) {
	doc, err := json.Marshal(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal spec: %w", err)
	}

	var parts struct {
		Numerical   json.RawMessage `json:"numerical_characteristics"`
		Categorical json.RawMessage `json:"categorical_characteristics"`
	}
	if err := json.Unmarshal(doc, &parts); err != nil {
		return nil, nil, fmt.Errorf("failed to split spec document: %w", err)
	}
	return parts.Numerical, parts.Categorical, nil
}

// unmarshalCharacteristics reassembles a spec from its stored columns.
func unmarshalCharacteristics(name string, numAgents int, numerical, categorical []byte) (Spec, error) {
	doc := fmt.Sprintf(`{"name":%s,"num_agents":%d,"numerical_characteristics":%s,"categorical_characteristics":%s}`,
		mustJSONString(name), numAgents, numerical, categorical)

	var spec Spec
	if err := json.Unmarshal([]byte(doc), &spec); err != nil {
		return Spec{}, fmt.Errorf("failed to decode stored demographic %q: %w", name, err)
	}
	return spec, nil
}

func mustJSONString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
