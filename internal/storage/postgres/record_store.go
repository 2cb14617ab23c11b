// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Schema creates the record tables. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS professors (
	src_url           TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	website           TEXT NOT NULL DEFAULT 'N/A',
	research_interest TEXT[] NOT NULL DEFAULT '{}',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS interest_edges (
	canonical_interest TEXT NOT NULL,
	raw_interest       TEXT NOT NULL,
	professor_name     TEXT NOT NULL,
	method             TEXT NOT NULL,
	PRIMARY KEY (canonical_interest, raw_interest, professor_name)
);
CREATE TABLE IF NOT EXISTS courses (
	course_name        TEXT PRIMARY KEY,
	course_description TEXT NOT NULL,
	prereqs            TEXT NOT NULL DEFAULT '',
	credits            INTEGER NOT NULL DEFAULT -1,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS events (
	src_url     TEXT NOT NULL,
	title       TEXT NOT NULL,
	event_date  TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (src_url, title)
);`

const (
	upsertProfessor = `
INSERT INTO professors (src_url, name, website, research_interest)
VALUES ($1, $2, $3, $4)
ON CONFLICT (src_url) DO UPDATE
SET name = EXCLUDED.name,
	website = EXCLUDED.website,
	research_interest = EXCLUDED.research_interest,
	updated_at = now()`

	upsertEdge = `
INSERT INTO interest_edges (canonical_interest, raw_interest, professor_name, method)
VALUES ($1, $2, $3, $4)
ON CONFLICT (canonical_interest, raw_interest, professor_name) DO UPDATE
SET method = EXCLUDED.method`

	deleteEdges = `
DELETE FROM interest_edges
WHERE professor_name = ANY($1)`

	upsertCourse = `
INSERT INTO courses (course_name, course_description, prereqs, credits)
VALUES ($1, $2, $3, $4)
ON CONFLICT (course_name) DO UPDATE
SET course_description = EXCLUDED.course_description,
	prereqs = EXCLUDED.prereqs,
	credits = EXCLUDED.credits,
	updated_at = now()`

	upsertEvent = `
INSERT INTO events (src_url, title, event_date, location, description)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (src_url, title) DO UPDATE
SET event_date = EXCLUDED.event_date,
	location = EXCLUDED.location,
	description = EXCLUDED.description,
	updated_at = now()`

	selectProfessors = `
SELECT name, website, research_interest, src_url
FROM professors
ORDER BY name, src_url
LIMIT $1`
)

// DefaultListLimit caps ListProfessors when no limit is given.
const DefaultListLimit = 100

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// RecordStore upserts extracted records into Postgres.
type RecordStore struct {
	pool pool
}

// NewRecordStore connects a pool using cfg.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RecordStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the record tables if needed.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveProfessors upserts professors and replaces their interest edges in one
// transaction.
func (s *RecordStore) SaveProfessors(
	ctx context.Context,
	professors []extract.ProfessorRecord,
	edges []extract.InterestEdge,
) error {
	if len(professors) == 0 && len(edges) == 0 {
		return nil
	}
	return s.inTx(ctx, "professors", func(tx pgx.Tx) error {
		for _, p := range professors {
			interests := p.ResearchInterest
			if interests == nil {
				interests = []string{}
			}
			if _, err := tx.Exec(ctx, upsertProfessor, p.SourceURL, p.Name, p.Website, interests); err != nil {
				return fmt.Errorf("upsert professor %s: %w", p.SourceURL, err)
			}
		}
		// A re-ingested professor's edges are replaced, not merged.
		if names := extract.ProfessorNames(professors, edges); len(names) > 0 {
			if _, err := tx.Exec(ctx, deleteEdges, names); err != nil {
				return fmt.Errorf("delete stale interest edges: %w", err)
			}
		}
		for _, e := range edges {
			if _, err := tx.Exec(ctx, upsertEdge, e.CanonicalInterest, e.RawInterest, e.ProfessorName, e.Method); err != nil {
				return fmt.Errorf("upsert interest edge: %w", err)
			}
		}
		return nil
	})
}

// SaveCourses upserts courses by name.
func (s *RecordStore) SaveCourses(ctx context.Context, courses []extract.CourseRecord) error {
	if len(courses) == 0 {
		return nil
	}
	return s.inTx(ctx, "courses", func(tx pgx.Tx) error {
		for _, c := range courses {
			if _, err := tx.Exec(ctx, upsertCourse, c.CourseName, c.CourseDescription, c.Prereqs, c.Credits); err != nil {
				return fmt.Errorf("upsert course %s: %w", c.CourseName, err)
			}
		}
		return nil
	})
}

// SaveEvents upserts events by source URL and title.
func (s *RecordStore) SaveEvents(ctx context.Context, events []extract.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	return s.inTx(ctx, "events", func(tx pgx.Tx) error {
		for _, e := range events {
			if _, err := tx.Exec(ctx, upsertEvent, e.SourceURL, e.Title, e.Date, e.Location, e.Description); err != nil {
				return fmt.Errorf("upsert event %s: %w", e.SourceURL, err)
			}
		}
		return nil
	})
}

// ListProfessors returns up to limit professors ordered by name.
func (s *RecordStore) ListProfessors(ctx context.Context, limit int) ([]extract.ProfessorRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, selectProfessors, limit)
	if err != nil {
		return nil, fmt.Errorf("query professors: %w", err)
	}
	defer rows.Close()

	var out []extract.ProfessorRecord
	for rows.Next() {
		var p extract.ProfessorRecord
		if err := rows.Scan(&p.Name, &p.Website, &p.ResearchInterest, &p.SourceURL); err != nil {
			return nil, fmt.Errorf("scan professor: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate professors: %w", err)
	}
	return out, nil
}

func (s *RecordStore) inTx(ctx context.Context, what string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", what, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s tx: %w", what, err)
	}
	return nil
}
