package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLTier persists to a SQL database via the pure-Go sqlite driver.
// DATABASE_URL is the DSN handed to database/sql.
type SQLTier struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS env_configs (
	key   TEXT PRIMARY KEY,
	value TEXT
);
CREATE TABLE IF NOT EXISTS cache_data (
	name       TEXT PRIMARY KEY,
	value      TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

func NewSQLTier(dsn string) (*SQLTier, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("couldn't open database: %w", err)
	}
	// One writer keeps sqlite happy under the store's worker + overlay saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't create schema: %w", err)
	}
	return &SQLTier{db: db}, nil
}

func (t *SQLTier) Name() string { return "sql" }

func (t *SQLTier) LoadConfig() (map[string]string, error) {
	rows, err := t.db.Query(`SELECT key, value FROM env_configs`)
	if err != nil {
		return nil, fmt.Errorf("couldn't read env_configs: %w", err)
	}
	defer rows.Close()
	overlay := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		overlay[key] = value
	}
	return overlay, rows.Err()
}

func (t *SQLTier) SaveConfig(overlay map[string]string) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	for key, value := range overlay {
		if _, err := tx.Exec(
			`INSERT INTO env_configs (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("couldn't upsert env config %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func (t *SQLTier) LoadCache(name string) ([]byte, bool, error) {
	var value string
	err := t.db.QueryRow(`SELECT value FROM cache_data WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("couldn't read cache_data %q: %w", name, err)
	}
	return []byte(value), true, nil
}

func (t *SQLTier) SaveCache(name string, value []byte) error {
	_, err := t.db.Exec(
		`INSERT INTO cache_data (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, string(value),
	)
	if err != nil {
		return fmt.Errorf("couldn't upsert cache_data %q: %w", name, err)
	}
	return nil
}

func (t *SQLTier) Close() error {
	return t.db.Close()
}
