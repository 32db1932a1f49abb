package parse

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/tessera/api"
)

// Store persists parsing results in a sqlite file so large extractions
// do not pin every parsed document in memory at once.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the result store at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open result store %s: %w", dbPath, err)
	}

	// Results are written once and read back at most once.
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS results (
		parser TEXT NOT NULL,
		path TEXT NOT NULL,
		value JSON NOT NULL,
		PRIMARY KEY (parser, path)
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put writes one result, replacing any earlier value for the same parser
// and path.
func (s *Store) Put(parser, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result %s %s: %w", parser, path, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO results (parser, path, value) VALUES (?, ?, ?)
		 ON CONFLICT(parser, path) DO UPDATE SET value = excluded.value`,
		parser, path, string(data),
	)
	if err != nil {
		return fmt.Errorf("store result %s %s: %w", parser, path, err)
	}
	return nil
}

// Get reads one result back, with key order preserved.
func (s *Store) Get(parser, path string) (any, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT value FROM results WHERE parser = ? AND path = ?`,
		parser, path,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no stored result for %s %s", parser, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s %s: %w", parser, path, err)
	}
	return api.DecodeValue([]byte(data))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
