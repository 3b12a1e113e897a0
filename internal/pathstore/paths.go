package pathstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mmsim/internal/brownian"

	"github.com/google/uuid"
)

const selectColumns = "seq, id, batch, data, created_at"

// Insert stores a single untagged path and returns its ID
func (s *Store) Insert(ctx context.Context, p *brownian.Path) (string, error) {
	ids, err := s.InsertBatch(ctx, "", []*brownian.Path{p})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertBatch stores paths tagged with batch in one transaction.
// IDs are returned in the order of paths.
func (s *Store) InsertBatch(ctx context.Context, batch string, paths []*brownian.Path) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO paths (id, batch, schema_version, n, s0, dt, mu, sigma, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, len(paths))
	for i, p := range paths {
		data, err := Encode(p)
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			id, batch, SchemaVersion,
			p.Params.N, p.Params.S0, p.Params.Dt, p.Params.Mu, p.Params.Sigma,
			string(data),
		); err != nil {
			return nil, fmt.Errorf("failed to insert path %d: %w", i, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Get fetches a path by ID
func (s *Store) Get(ctx context.Context, id string) (*StoredPath, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM paths WHERE id = ?", id)
	sp, err := scanPath(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPathNotFound
	}
	return sp, err
}

// All returns every stored path in insertion order
func (s *Store) All(ctx context.Context) ([]*StoredPath, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM paths ORDER BY seq")
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ByBatch returns the paths tagged with batch in insertion order
func (s *Store) ByBatch(ctx context.Context, batch string) ([]*StoredPath, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM paths WHERE batch = ? ORDER BY seq", batch)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// IDs returns all path IDs in insertion order
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM paths ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored paths
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paths").Scan(&count)
	return count, err
}

// Delete removes one path
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM paths WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPathNotFound
	}
	return nil
}

// DeleteBatch removes every path tagged with batch and returns how many went
func (s *Store) DeleteBatch(ctx context.Context, batch string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM paths WHERE batch = ?", batch)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clear removes all stored paths
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM paths")
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPath(row scanner) (*StoredPath, error) {
	var (
		sp   StoredPath
		data string
	)
	if err := row.Scan(&sp.Seq, &sp.ID, &sp.Batch, &data, &sp.CreatedAt); err != nil {
		return nil, err
	}
	p, err := Decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", sp.ID, err)
	}
	sp.Path = p
	return &sp, nil
}

func collect(rows *sql.Rows) ([]*StoredPath, error) {
	defer rows.Close()

	var out []*StoredPath
	for rows.Next() {
		sp, err := scanPath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
