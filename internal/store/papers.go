// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/dedup"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

func newID() string { return uuid.NewString() }

const paperColumns = `p.id, p.source_id, s.name, p.ingest_job_id, p.external_id, p.doi,
	p.title, p.abstract, p.authors, p.year, p.venue, p.topics, p.fields_of_study,
	p.citation_count, p.pdf_url, p.landing_url, p.is_chunked, p.is_embedded,
	p.created_at, p.updated_at`

// ExistingDOIs returns the normalized DOIs of every stored paper.
func (s *Store) ExistingDOIs(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	err := s.withRetry(ctx, "existing dois", func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT doi FROM papers WHERE doi IS NOT NULL AND doi != ''`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var doi string
			if err := rows.Scan(&doi); err != nil {
				return err
			}
			if n := dedup.NormalizeDOI(doi); n != "" {
				out[n] = true
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertPapers stores papers for jobID in one transaction. A paper whose
// (source, external id) is already stored is skipped. It returns the papers
// actually inserted, in input order.
func (s *Store) InsertPapers(ctx context.Context, jobID string, papers []types.UnifiedPaper) ([]types.Paper, error) {
	sourceIDs := make(map[string]string)
	for _, up := range papers {
		if _, ok := sourceIDs[up.Source]; ok {
			continue
		}
		id, err := s.ensureSource(ctx, up.Source)
		if err != nil {
			return nil, err
		}
		sourceIDs[up.Source] = id
	}

	var stored []types.Paper
	err := s.withTx(ctx, "insert papers", func(tx *sql.Tx) error {
		stored = stored[:0]
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO papers (id, source_id, ingest_job_id, external_id, doi, title, abstract,
				authors, year, venue, topics, fields_of_study, citation_count, pdf_url, landing_url,
				created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source_id, external_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, up := range papers {
			p := types.Paper{
				ID:            newID(),
				SourceID:      sourceIDs[up.Source],
				Source:        up.Source,
				IngestJobID:   jobID,
				ExternalID:    up.ExternalID,
				DOI:           dedup.NormalizeDOI(up.DOI),
				Title:         up.Title,
				Abstract:      up.Abstract,
				Authors:       up.Authors,
				Year:          up.Year,
				Venue:         up.Venue,
				Topics:        up.Topics,
				FieldsOfStudy: up.FieldsOfStudy,
				CitationCount: up.CitationCount,
				PDFURL:        up.PDFURL,
				LandingURL:    up.LandingURL,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			res, err := stmt.ExecContext(ctx,
				p.ID, p.SourceID, nullString(jobID), p.ExternalID, nullString(p.DOI), p.Title,
				nullString(p.Abstract), marshalList(p.Authors), nullInt(p.Year), nullString(p.Venue),
				marshalList(p.Topics), marshalList(p.FieldsOfStudy), p.CitationCount,
				nullString(p.PDFURL), nullString(p.LandingURL),
				formatTime(now), formatTime(now),
			)
			if err != nil {
				return fmt.Errorf("inserting paper %s: %w", up.Key(), err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				s.log.Debug("paper already stored", zap.String("paper", up.Key()))
				continue
			}
			stored = append(stored, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Papers returns the papers in scope ordered by creation.
func (s *Store) Papers(ctx context.Context, scope Scope) ([]types.Paper, error) {
	cond, args := scope.where()
	return s.queryPapers(ctx, "list papers", cond, args)
}

// UnchunkedPapers returns the papers in scope that have not been chunked.
func (s *Store) UnchunkedPapers(ctx context.Context, scope Scope) ([]types.Paper, error) {
	cond, args := scope.where()
	return s.queryPapers(ctx, "list unchunked papers", cond+" AND p.is_chunked = 0", args)
}

// GetPaper returns one paper by id.
func (s *Store) GetPaper(ctx context.Context, id string) (types.Paper, error) {
	papers, err := s.queryPapers(ctx, "get paper", "p.id = ?", []any{id})
	if err != nil {
		return types.Paper{}, err
	}
	if len(papers) == 0 {
		return types.Paper{}, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return papers[0], nil
}

func (s *Store) queryPapers(ctx context.Context, op, cond string, args []any) ([]types.Paper, error) {
	var papers []types.Paper
	err := s.withRetry(ctx, op, func() error {
		papers = papers[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+paperColumns+`
			 FROM papers p JOIN sources s ON s.id = p.source_id
			 WHERE `+cond+`
			 ORDER BY p.created_at, p.rowid`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPaper(rows)
			if err != nil {
				return err
			}
			papers = append(papers, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return papers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (types.Paper, error) {
	var (
		p                                      types.Paper
		jobID, doi, abstract, venue, pdf, land sql.NullString
		authors, topics, fields                sql.NullString
		year                                   sql.NullInt64
		chunked, embedded                      int
		created, updated                       string
	)
	err := row.Scan(&p.ID, &p.SourceID, &p.Source, &jobID, &p.ExternalID, &doi,
		&p.Title, &abstract, &authors, &year, &venue, &topics, &fields,
		&p.CitationCount, &pdf, &land, &chunked, &embedded, &created, &updated)
	if err != nil {
		return p, fmt.Errorf("scanning paper: %w", err)
	}
	p.IngestJobID = jobID.String
	p.DOI = doi.String
	p.Abstract = abstract.String
	p.Authors = unmarshalList(authors)
	p.Year = int(year.Int64)
	p.Venue = venue.String
	p.Topics = unmarshalList(topics)
	p.FieldsOfStudy = unmarshalList(fields)
	p.PDFURL = pdf.String
	p.LandingURL = land.String
	p.IsChunked = chunked != 0
	p.IsEmbedded = embedded != 0
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
