package population

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresRunStore implements RunStore backed by PostgreSQL. Agents are
// bulk-loaded with COPY; a 100k-agent population is one round trip, not
// 100k INSERTs.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore creates a new PostgreSQL-backed run store.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// CreateRun persists the run row and its agents in one transaction.
func (s *PostgresRunStore) CreateRun(run *Run, agents []Agent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO generation_runs (id, demographic_id, seed, num_agents)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, run.ID, run.DemographicID, int64(run.Seed), run.NumAgents).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(pq.CopyIn("agents", "run_id", "agent_id", "numerical_characteristics", "categorical_characteristics"))
	if err != nil {
		return fmt.Errorf("failed to prepare agent copy: %w", err)
	}

	for _, agent := range agents {
		numerical, err := json.Marshal(agent.Numerical)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("failed to marshal agent %d numerical characteristics: %w", agent.ID, err)
		}
		categorical, err := json.Marshal(agent.Categorical)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("failed to marshal agent %d categorical characteristics: %w", agent.ID, err)
		}
		if _, err := stmt.Exec(run.ID, agent.ID, string(numerical), string(categorical)); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy agent %d: %w", agent.ID, err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush agent copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close agent copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *PostgresRunStore) GetRun(id string) (*Run, error) {
	var run Run
	var seed int64
	err := s.db.QueryRow(`
		SELECT id, demographic_id, seed, num_agents, created_at
		FROM generation_runs
		WHERE id = $1
	`, id).Scan(&run.ID, &run.DemographicID, &seed, &run.NumAgents, &run.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Seed = uint64(seed)
	return &run, nil
}

// ListRuns returns runs for a demographic, newest first.
func (s *PostgresRunStore) ListRuns(demographicID string) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, demographic_id, seed, num_agents, created_at
		FROM generation_runs
		WHERE demographic_id = $1
		ORDER BY created_at DESC
	`, demographicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var seed int64
		if err := rows.Scan(&run.ID, &run.DemographicID, &seed, &run.NumAgents, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Seed = uint64(seed)
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListAgents returns a page of a run's agents in ID order.
func (s *PostgresRunStore) ListAgents(runID string, offset, limit int) ([]Agent, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT agent_id, numerical_characteristics, categorical_characteristics
		FROM agents
		WHERE run_id = $1
		ORDER BY agent_id ASC
		OFFSET $2 LIMIT $3
	`, runID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		var agent Agent
		var numerical, categorical []byte
		if err := rows.Scan(&agent.ID, &numerical, &categorical); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if err := json.Unmarshal(numerical, &agent.Numerical); err != nil {
			return nil, fmt.Errorf("failed to decode agent %d numerical characteristics: %w", agent.ID, err)
		}
		if err := json.Unmarshal(categorical, &agent.Categorical); err != nil {
			return nil, fmt.Errorf("failed to decode agent %d categorical characteristics: %w", agent.ID, err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

// DeleteRun removes a run; its agents cascade.
func (s *PostgresRunStore) DeleteRun(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM generation_runs
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	return nil
}
