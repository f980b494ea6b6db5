package sources

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// PostgresReader streams a query result from PostgreSQL over a single connection.
type PostgresReader struct {
	conn   *pgx.Conn
	rows   pgx.Rows
	schema models.Schema
	names  []string
}

// OpenPostgres connects to dsn and runs query.
func OpenPostgres(ctx context.Context, dsn, query string) (*PostgresReader, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres source needs a dsn", shared.ErrInvalidConfig)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: database source needs a query", shared.ErrInvalidConfig)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	rows, err := conn.Query(ctx, query)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to run source query: %w", err)
	}

	fields := rows.FieldDescriptions()
	cols := make([]models.Column, len(fields))
	names := make([]string, len(fields))
	tm := conn.TypeMap()
	for i, fd := range fields {
		names[i] = fd.Name
		cols[i] = models.Column{Name: fd.Name, Type: "unknown"}
		if typ, ok := tm.TypeForOID(fd.DataTypeOID); ok {
			cols[i].Type = typ.Name
		}
	}

	return &PostgresReader{conn: conn, rows: rows, schema: models.Schema{Columns: cols}, names: names}, nil
}

func (p *PostgresReader) Schema() models.Schema { return p.schema }

func (p *PostgresReader) Next() (models.Row, error) {
	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return models.Row{}, fmt.Errorf("failed to read source row: %w", err)
		}
		return models.Row{}, io.EOF
	}

	values, err := p.rows.Values()
	if err != nil {
		return models.Row{}, fmt.Errorf("failed to decode source row: %w", err)
	}
	for i, v := range values {
		values[i] = normalizeValue(v)
	}
	return models.NewRow(p.names, values), nil
}

func (p *PostgresReader) Close() error {
	p.rows.Close()
	return p.conn.Close(context.Background())
}

// normalizeValue turns driver specific values into the plain types [models.TextValue] understands.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
