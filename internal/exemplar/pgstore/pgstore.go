// Package pgstore provides a PostgreSQL implementation of
// exemplar.Store, one row per specialization.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/acuity/internal/casebank"
	"github.com/linnemanlabs/acuity/internal/exemplar"
)

var tracer = otel.Tracer("github.com/linnemanlabs/acuity/internal/exemplar/pgstore")

//go:embed schema.sql
var schema string

// Store persists exemplar sets in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store over the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load retrieves the persisted set for a specialization.
func (s *Store) Load(ctx context.Context, specialization string) (*exemplar.Set, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.String("acuity.specialization", specialization),
	))
	defer span.End()

	const query = `SELECT specialization, version, compiled_at, exemplars, bootstrap_pool
		FROM exemplar_sets WHERE specialization = $1`

	var (
		set                 exemplar.Set
		exemplarsJSON, pool []byte
	)
	err := s.pool.QueryRow(ctx, query, specialization).Scan(
		&set.Specialization, &set.Version, &set.CompiledAt, &exemplarsJSON, &pool,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("load exemplar set: %w", err)
	}

	if err := json.Unmarshal(exemplarsJSON, &set.Exemplars); err != nil {
		return nil, false, fmt.Errorf("decode exemplars: %w", err)
	}
	if err := json.Unmarshal(pool, &set.BootstrapPool); err != nil {
		return nil, false, fmt.Errorf("decode bootstrap pool: %w", err)
	}
	return &set, true, nil
}

// Save upserts the set for its specialization.
func (s *Store) Save(ctx context.Context, set *exemplar.Set) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.String("acuity.specialization", set.Specialization),
	))
	defer span.End()

	exemplarsJSON, err := marshalCases(set.Exemplars)
	if err != nil {
		return fmt.Errorf("encode exemplars: %w", err)
	}
	poolJSON, err := marshalCases(set.BootstrapPool)
	if err != nil {
		return fmt.Errorf("encode bootstrap pool: %w", err)
	}

	const query = `INSERT INTO exemplar_sets (specialization, version, compiled_at, exemplars, bootstrap_pool)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (specialization) DO UPDATE SET
			version = EXCLUDED.version,
			compiled_at = EXCLUDED.compiled_at,
			exemplars = EXCLUDED.exemplars,
			bootstrap_pool = EXCLUDED.bootstrap_pool`

	compiledAt := set.CompiledAt
	if compiledAt.IsZero() {
		compiledAt = time.Now()
	}

	if _, err := s.pool.Exec(ctx, query,
		set.Specialization, set.Version, compiledAt, exemplarsJSON, poolJSON,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("save exemplar set: %w", err)
	}
	return nil
}

// List returns the specializations with a persisted set.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT specialization FROM exemplar_sets ORDER BY specialization`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list exemplar sets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan specialization: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exemplar sets: %w", err)
	}
	return out, nil
}

func marshalCases(cases []casebank.LabeledCase) ([]byte, error) {
	if cases == nil {
		cases = []casebank.LabeledCase{}
	}
	return json.Marshal(cases)
}
