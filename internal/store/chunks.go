// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// EncodeVector packs v as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector. A nil or empty blob
// decodes to nil.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// ReplaceChunks stores the chunks of one paper and marks it chunked, in one
// transaction. Chunks already stored for the paper are removed first, so a
// resumed job never leaves a mixed set. The chunks get fresh ids; the
// returned slice carries them.
func (s *Store) ReplaceChunks(ctx context.Context, paperID string, chunks []types.Chunk) ([]types.Chunk, error) {
	out := make([]types.Chunk, len(chunks))
	err := s.withTx(ctx, "replace chunks", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE paper_id = ?`, paperID); err != nil {
			return fmt.Errorf("deleting old chunks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chunks (id, paper_id, text, chunk_index, section, token_count, char_count,
				overlap_chars, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i, c := range chunks {
			c.ID = newID()
			c.PaperID = paperID
			c.CreatedAt = now
			c.Embedding = nil
			_, err := stmt.ExecContext(ctx,
				c.ID, c.PaperID, c.Text, c.ChunkIndex, nullString(c.Section),
				c.TokenCount, c.CharCount, c.OverlapChars, formatTime(now))
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", c.ChunkIndex, err)
			}
			out[i] = c
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE papers SET is_chunked = 1, is_embedded = 0, updated_at = ? WHERE id = ?`,
			formatTime(now), paperID)
		if err != nil {
			return fmt.Errorf("marking paper chunked: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PendingChunks returns the chunks in scope that have no embedding, ordered
// by paper and chunk index.
func (s *Store) PendingChunks(ctx context.Context, scope Scope) ([]types.Chunk, error) {
	cond, args := scope.where()
	var chunks []types.Chunk
	err := s.withRetry(ctx, "pending chunks", func() error {
		chunks = chunks[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT c.id, c.paper_id, c.text, c.chunk_index, c.section, c.token_count,
				c.char_count, c.overlap_chars, c.created_at
			 FROM chunks c JOIN papers p ON p.id = c.paper_id
			 WHERE c.embedding IS NULL AND `+cond+`
			 ORDER BY p.created_at, p.rowid, c.chunk_index`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c       types.Chunk
				section sql.NullString
				created string
			)
			if err := rows.Scan(&c.ID, &c.PaperID, &c.Text, &c.ChunkIndex, &section,
				&c.TokenCount, &c.CharCount, &c.OverlapChars, &created); err != nil {
				return fmt.Errorf("scanning chunk: %w", err)
			}
			c.Section = section.String
			c.CreatedAt = parseTime(created)
			chunks = append(chunks, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// SaveEmbeddings writes vectors for the given chunk ids in one transaction.
// ids and vectors are parallel.
func (s *Store) SaveEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("saving embeddings: %d ids for %d vectors", len(ids), len(vectors))
	}
	return s.withTx(ctx, "save embeddings", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("preparing update: %w", err)
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, EncodeVector(vectors[i]), id); err != nil {
				return fmt.Errorf("updating chunk %s: %w", id, err)
			}
		}
		return nil
	})
}

// MarkEmbedded flags every paper in scope whose chunks all carry an
// embedding. Papers without chunks are left alone. It returns the number of
// papers now flagged.
func (s *Store) MarkEmbedded(ctx context.Context, scope Scope) (int, error) {
	cond, args := scope.where()
	var n int64
	err := s.withRetry(ctx, "mark embedded", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE papers AS p SET is_embedded = 1, updated_at = ?
			 WHERE `+cond+`
			   AND EXISTS (SELECT 1 FROM chunks c WHERE c.paper_id = p.id)
			   AND NOT EXISTS (SELECT 1 FROM chunks c WHERE c.paper_id = p.id AND c.embedding IS NULL)`,
			append([]any{formatTime(time.Now())}, args...)...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// ChunkCount is the number of chunks of one paper and how many of them are
// embedded.
type ChunkCount struct {
	Total    int
	Embedded int
}

// ChunkCounts returns a ChunkCount for every paper in scope.
func (s *Store) ChunkCounts(ctx context.Context, scope Scope) (map[string]ChunkCount, error) {
	cond, args := scope.where()
	out := make(map[string]ChunkCount)
	err := s.withRetry(ctx, "chunk counts", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT p.id, COUNT(c.id), COUNT(c.embedding)
			 FROM papers p LEFT JOIN chunks c ON c.paper_id = p.id
			 WHERE `+cond+`
			 GROUP BY p.id`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id string
				cc ChunkCount
			)
			if err := rows.Scan(&id, &cc.Total, &cc.Embedded); err != nil {
				return err
			}
			out[id] = cc
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Passage is a chunk joined with its paper.
type Passage struct {
	Chunk types.Chunk
	Paper types.Paper
}

// Passages loads the chunks with the given ids together with their papers.
// Unknown ids are absent from the result.
func (s *Store) Passages(ctx context.Context, chunkIDs []string) (map[string]Passage, error) {
	out := make(map[string]Passage, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	err := s.withRetry(ctx, "load passages", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT c.id, c.text, c.chunk_index, c.section, c.token_count, c.char_count,
				c.overlap_chars, c.created_at, `+paperColumns+`
			 FROM chunks c
			 JOIN papers p ON p.id = c.paper_id
			 JOIN sources s ON s.id = p.source_id
			 WHERE c.id IN (`+placeholders(len(chunkIDs))+`)`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c       types.Chunk
				section sql.NullString
				created string
			)
			p, err := scanPaper(prefixScanner{rows: rows, prefix: []any{
				&c.ID, &c.Text, &c.ChunkIndex, &section, &c.TokenCount, &c.CharCount,
				&c.OverlapChars, &created,
			}})
			if err != nil {
				return err
			}
			c.PaperID = p.ID
			c.Section = section.String
			c.CreatedAt = parseTime(created)
			out[c.ID] = Passage{Chunk: c, Paper: p}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// prefixScanner scans leading columns into prefix before the paper columns.
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (ps prefixScanner) Scan(dest ...any) error {
	return ps.rows.Scan(append(ps.prefix, dest...)...)
}

// EmbeddingFilter restricts ScanEmbeddings by paper metadata. Zero fields
// do not filter.
type EmbeddingFilter struct {
	YearFrom     int
	YearTo       int
	MinCitations int

	// ChunkIDs, when non-nil, restricts the scan to these chunks.
	ChunkIDs []string
}

// EmbeddedChunk is one stored vector with the metadata used for filtering.
type EmbeddedChunk struct {
	ChunkID   string
	PaperID   string
	Year      int
	Citations int
	Embedding []float32
}

// ScanEmbeddings calls fn for every embedded chunk that passes f. A paper
// with an unknown year is excluded whenever a year bound is set. Returning
// an error from fn stops the scan.
func (s *Store) ScanEmbeddings(ctx context.Context, f EmbeddingFilter, fn func(EmbeddedChunk) error) error {
	q := `SELECT c.id, c.paper_id, p.year, p.citation_count, c.embedding
		FROM chunks c JOIN papers p ON p.id = c.paper_id
		WHERE c.embedding IS NOT NULL`
	var args []any
	if f.YearFrom > 0 {
		q += ` AND p.year >= ?`
		args = append(args, f.YearFrom)
	}
	if f.YearTo > 0 {
		q += ` AND p.year <= ?`
		args = append(args, f.YearTo)
	}
	if f.MinCitations > 0 {
		q += ` AND p.citation_count >= ?`
		args = append(args, f.MinCitations)
	}
	if f.ChunkIDs != nil {
		if len(f.ChunkIDs) == 0 {
			return nil
		}
		q += ` AND c.id IN (` + placeholders(len(f.ChunkIDs)) + `)`
		for _, id := range f.ChunkIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY c.id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return apperr.Database("scan embeddings", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ec   EmbeddedChunk
			year sql.NullInt64
			blob []byte
		)
		if err := rows.Scan(&ec.ChunkID, &ec.PaperID, &year, &ec.Citations, &blob); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		ec.Year = int(year.Int64)
		if ec.Embedding, err = DecodeVector(blob); err != nil {
			return fmt.Errorf("chunk %s: %w", ec.ChunkID, err)
		}
		if err := fn(ec); err != nil {
			return err
		}
	}
	return rows.Err()
}
