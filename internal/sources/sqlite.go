package sources

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// SQLReader streams the result set of a database/sql query.
type SQLReader struct {
	db     *sql.DB
	rows   *sql.Rows
	schema models.Schema
	names  []string
	ownsDB bool
}

// OpenSQLite runs query against the SQLite file at path, opened read-only.
func OpenSQLite(ctx context.Context, path, query string) (*SQLReader, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite source needs a path", shared.ErrInvalidConfig)
	}
	db, err := shared.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	r, err := NewSQLReader(ctx, db, query)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.ownsDB = true
	return r, nil
}

// NewSQLReader runs query on db. The caller keeps ownership of db.
func NewSQLReader(ctx context.Context, db *sql.DB, query string) (*SQLReader, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: database source needs a query", shared.ErrInvalidConfig)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run source query: %w", err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	cols := make([]models.Column, len(types))
	names := make([]string, len(types))
	for i, ct := range types {
		names[i] = ct.Name()
		cols[i] = models.Column{Name: ct.Name(), Type: strings.ToLower(ct.DatabaseTypeName())}
	}

	return &SQLReader{db: db, rows: rows, schema: models.Schema{Columns: cols}, names: names}, nil
}

func (r *SQLReader) Schema() models.Schema { return r.schema }

func (r *SQLReader) Next() (models.Row, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return models.Row{}, fmt.Errorf("failed to read source row: %w", err)
		}
		return models.Row{}, io.EOF
	}

	values := make([]any, len(r.names))
	ptrs := make([]any, len(r.names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return models.Row{}, fmt.Errorf("failed to scan source row: %w", err)
	}
	for i, v := range values {
		values[i] = normalizeValue(v)
	}
	return models.NewRow(r.names, values), nil
}

func (r *SQLReader) Close() error {
	err := r.rows.Close()
	if r.ownsDB {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
