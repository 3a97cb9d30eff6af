package duckdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// Repository is the DuckDB-backed store for pools, items and assignments.
// An item's assignee reference is the single source of truth for who holds
// what; assignment rows carry lifecycle state and rolling counters only, so
// pairing and suspension stay small transactions.
type Repository struct {
	db *sql.DB
}

var _ ports.Repository = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS work_pools (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			required_skills VARCHAR,
			minimum_accuracy DOUBLE NOT NULL,
			max_tasks_per_user INTEGER NOT NULL,
			max_concurrent_workers INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			total_tasks INTEGER NOT NULL,
			strategy VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			require_review BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS probe_templates (
			id VARCHAR PRIMARY KEY,
			pool_id VARCHAR NOT NULL,
			input VARCHAR NOT NULL,
			expected_answer VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id VARCHAR PRIMARY KEY,
			pool_id VARCHAR NOT NULL,
			sequence INTEGER NOT NULL,
			batch_id VARCHAR NOT NULL,
			input VARCHAR NOT NULL,
			source_input VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			assigned_to VARCHAR,
			assigned_at TIMESTAMP,
			is_quality_check BOOLEAN NOT NULL DEFAULT false,
			expected_answer VARCHAR,
			submission VARCHAR,
			submitted_at TIMESTAMP,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			reviewed_at TIMESTAMP,
			review_auto BOOLEAN NOT NULL DEFAULT false,
			score INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			pool_id VARCHAR NOT NULL,
			worker_id VARCHAR NOT NULL,
			capacity INTEGER NOT NULL,
			status VARCHAR NOT NULL,
			tasks_completed INTEGER NOT NULL DEFAULT 0,
			tasks_approved INTEGER NOT NULL DEFAULT 0,
			total_duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (pool_id, worker_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// asConflict maps DuckDB's optimistic concurrency failures onto the domain
// sentinel so the distributor's retry logic can classify them.
func asConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "conflict") {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrConflict)
	}
	return err
}

func marshalPayload(p domain.Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

func marshalPayloadPtr(p *domain.Payload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalPayload(*p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalPayload(s string) (domain.Payload, error) {
	var p domain.Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func unmarshalPayloadPtr(s sql.NullString) (*domain.Payload, error) {
	if !s.Valid {
		return nil, nil
	}
	p, err := unmarshalPayload(s.String)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
