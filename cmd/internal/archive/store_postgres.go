package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps archived images in a table:
//
//	<schema>.archives(name TEXT PRIMARY KEY, content_type TEXT, digest TEXT, data BYTEA, created_at TIMESTAMPTZ)
//
// It does not own the pool. The credential is not used for authentication here; the
// connection string carries its own.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema (default "scrblit").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("archive: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("archive: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore on pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "scrblit"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("archive: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+s.table()+` (
  name         TEXT PRIMARY KEY,
  content_type TEXT NOT NULL,
  digest       TEXT NOT NULL,
  data         BYTEA NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create archives table: %w", err)
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "archives")
}

func (s *PostgresStore) Store(ctx context.Context, obj Object, _ string) error {
	if s == nil || s.pool == nil {
		return storeErr(BackendPostgres, obj.Name, errNilStore)
	}
	if err := obj.validate(); err != nil {
		return err
	}
	digest := obj.Digest
	if digest == "" {
		digest = Digest(obj.Data)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (name, content_type, digest, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO NOTHING`,
		obj.Name, obj.ContentType, digest, obj.Data, time.Now().UTC(),
	)
	if err != nil {
		return storeErr(BackendPostgres, obj.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return storeErr(BackendPostgres, obj.Name, fmt.Errorf("%w: name already archived", ErrRejected))
	}
	return nil
}

// Lookup reads one archived object back.
func (s *PostgresStore) Lookup(ctx context.Context, name string) (Object, error) {
	var obj Object
	err := s.pool.QueryRow(ctx,
		`SELECT name, content_type, digest, data FROM `+s.table()+` WHERE name = $1`,
		name,
	).Scan(&obj.Name, &obj.ContentType, &obj.Digest, &obj.Data)
	return obj, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
