// Package sqlite persists chunk vectors in a local SQLite file and answers
// searches with a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"bookplatform/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	text        TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_pos   INTEGER NOT NULL,
	end_pos     INTEGER NOT NULL,
	dimension   INTEGER NOT NULL,
	embedding   BLOB NOT NULL
);`

// Store keeps normalized vectors; rowid order is insertion order and an
// upsert of an existing id keeps its row.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema when missing. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir failed: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// every connection to ":memory:" would see its own database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Upsert(ctx context.Context, id string, vector []float32, metadata vectorstore.Metadata) error {
	if id == "" {
		return vectorstore.ErrEmptyID
	}
	normalized, err := vectorstore.Normalize(vector)
	if err != nil {
		return err
	}
	dimension, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if dimension != 0 && dimension != len(normalized) {
		return fmt.Errorf("%w: store has %d, got %d", vectorstore.ErrDimensionMismatch, dimension, len(normalized))
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO chunk_vectors (id, source, text, chunk_index, start_pos, end_pos, dimension, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source = excluded.source,
	text = excluded.text,
	chunk_index = excluded.chunk_index,
	start_pos = excluded.start_pos,
	end_pos = excluded.end_pos,
	dimension = excluded.dimension,
	embedding = excluded.embedding`,
		id, metadata.Source, metadata.Text, metadata.ChunkIndex, metadata.Start, metadata.End,
		len(normalized), encodeEmbedding(normalized),
	)
	if err != nil {
		return fmt.Errorf("upsert chunk vector failed: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorstore.QueryResult, error) {
	if k <= 0 {
		return []vectorstore.QueryResult{}, nil
	}
	dimension, err := s.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dimension == 0 {
		return []vectorstore.QueryResult{}, nil
	}
	if len(query) != dimension {
		return nil, fmt.Errorf("%w: store has %d, got %d", vectorstore.ErrDimensionMismatch, dimension, len(query))
	}
	normalized, err := vectorstore.Normalize(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, text, chunk_index, start_pos, end_pos, embedding
FROM chunk_vectors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("scan chunk vectors failed: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.QueryResult
	for rows.Next() {
		var (
			r    vectorstore.QueryResult
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Metadata.Source, &r.Metadata.Text, &r.Metadata.ChunkIndex,
			&r.Metadata.Start, &r.Metadata.End, &blob); err != nil {
			return nil, fmt.Errorf("read chunk vector failed: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", r.ID, err)
		}
		if len(vec) != len(normalized) {
			return nil, fmt.Errorf("chunk %s: %w", r.ID, vectorstore.ErrDimensionMismatch)
		}
		r.Score = vectorstore.Dot(vec, normalized)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan chunk vectors failed: %w", err)
	}

	vectorstore.SortResults(results)
	return vectorstore.Truncate(results, k), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chunk vector failed: %w", err)
	}
	return nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunk vectors failed: %w", err)
	}
	return n, nil
}

// dimension reports the stored vector size, or 0 for an empty store.
func (s *Store) dimension(ctx context.Context) (int, error) {
	var dimension sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM chunk_vectors ORDER BY rowid LIMIT 1`).Scan(&dimension)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read vector dimension failed: %w", err)
	}
	return int(dimension.Int64), nil
}

// encodeEmbedding writes little-endian IEEE 754 float32 values with no length
// prefix.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

func (s *Store) PruneSource(ctx context.Context, source string, fromIndex int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk_vectors WHERE source = ? AND chunk_index >= ?`, source, fromIndex); err != nil {
		return fmt.Errorf("prune source %s failed: %w", source, err)
	}
	return nil
}
