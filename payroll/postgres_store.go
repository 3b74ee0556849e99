package payroll

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleSetStore implements RuleSetStore backed by PostgreSQL.
// Documents are stored as JSONB and keyed by country and tax year.
type PostgresRuleSetStore struct {
	db *sql.DB
}

// NewPostgresRuleSetStore creates a new PostgreSQL-backed RuleSetStore.
func NewPostgresRuleSetStore(db *sql.DB) *PostgresRuleSetStore {
	return &PostgresRuleSetStore{db: db}
}

// Put inserts a new rule set document.
func (s *PostgresRuleSetStore) Put(rs *StoredRuleSet) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rulesets WHERE id = $1)
	`, rs.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule set existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule set with ID %s already exists", rs.ID)
	}

	now := time.Now()
	rs.CreatedAt = now
	rs.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO rulesets (id, country, year, document, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rs.ID, rs.Country, rs.Year, rs.Document, rs.Active,
		rs.CreatedAt, rs.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule set: %w", err)
	}

	return nil
}

// Get retrieves the active rule set for a country and year.
func (s *PostgresRuleSetStore) Get(country string, year int) (*StoredRuleSet, error) {
	var rs StoredRuleSet
	err := s.db.QueryRow(`
		SELECT id, country, year, document, active, created_at, updated_at
		FROM rulesets
		WHERE country = $1 AND year = $2 AND active = true
	`, country, year).Scan(
		&rs.ID,
		&rs.Country,
		&rs.Year,
		&rs.Document,
		&rs.Active,
		&rs.CreatedAt,
		&rs.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active rule set for %s", storeKey(country, year))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}

	return &rs, nil
}

// ListActive returns all active rule set documents ordered by country and year.
func (s *PostgresRuleSetStore) ListActive() ([]*StoredRuleSet, error) {
	rows, err := s.db.Query(`
		SELECT id, country, year, document, active, created_at, updated_at
		FROM rulesets
		WHERE active = true
		ORDER BY country ASC, year ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rule sets: %w", err)
	}
	defer rows.Close()

	var sets []*StoredRuleSet
	for rows.Next() {
		var rs StoredRuleSet
		if err := rows.Scan(&rs.ID, &rs.Country, &rs.Year, &rs.Document, &rs.Active,
			&rs.CreatedAt, &rs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule set: %w", err)
		}
		sets = append(sets, &rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule sets: %w", err)
	}

	return sets, nil
}

// Update modifies an existing rule set document.
func (s *PostgresRuleSetStore) Update(rs *StoredRuleSet) error {
	rs.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE rulesets
		SET country = $1, year = $2, document = $3, active = $4, updated_at = $5
		WHERE id = $6
	`, rs.Country, rs.Year, rs.Document, rs.Active, rs.UpdatedAt, rs.ID)

	if err != nil {
		return fmt.Errorf("failed to update rule set: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule set %s not found", rs.ID)
	}

	return nil
}

// Delete removes a rule set document.
func (s *PostgresRuleSetStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rulesets
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule set %s not found", id)
	}

	return nil
}
