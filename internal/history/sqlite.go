package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kiranshivaraju/labelscan/pkg/models"
)

//go:embed schema.sql
var schema string

// SQLiteStore is a file-backed Store for single-user local use.
type SQLiteStore struct {
	db    *sql.DB
	limit int
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(ctx context.Context, path string, limit int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection serializes writers within the process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history database: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &SQLiteStore{db: db, limit: normalizeLimit(limit)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context, owner string) ([]models.ScanResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM scan_history WHERE owner = ? ORDER BY seq DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	out := []models.ScanResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		var r models.ScanResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, owner string, result models.ScanResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_history (id, owner, created_at, payload) VALUES (?, ?, ?, ?)`,
		result.ID.String(), owner, result.Timestamp.UTC().Format(time.RFC3339Nano), string(payload),
	); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM scan_history
		WHERE owner = ? AND seq NOT IN (
			SELECT seq FROM scan_history WHERE owner = ? ORDER BY seq DESC LIMIT ?
		)`, owner, owner, s.limit,
	); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) RemoveByID(ctx context.Context, owner string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_history WHERE owner = ? AND id = ?`, owner, id.String())
	if err != nil {
		return fmt.Errorf("removing history entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing history entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scan_history WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
