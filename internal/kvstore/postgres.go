package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type postgresStore struct {
	db        *sql.DB
	namespace string
}

// NewPostgres creates a Store backed by the client_state table.
// The table is created by the database package migrations.
func NewPostgres(db *sql.DB, namespace string) Store {
	return &postgresStore{db: db, namespace: namespace}
}

func (p *postgresStore) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value
		FROM client_state
		WHERE namespace = $1 AND key = $2
	`

	var value string
	err := p.db.QueryRowContext(ctx, query, p.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, nil
}

func (p *postgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_state (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := p.db.ExecContext(ctx, query, p.namespace, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, keys ...string) error {
	query := `DELETE FROM client_state WHERE namespace = $1 AND key = $2`

	for _, key := range keys {
		if _, err := p.db.ExecContext(ctx, query, p.namespace, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (p *postgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT key
		FROM client_state
		WHERE namespace = $1 AND key LIKE $2 ESCAPE '\'
		ORDER BY key ASC
	`

	rows, err := p.db.QueryContext(ctx, query, p.namespace, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	return keys, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
