// Package sources reads input rows for a sync from CSV files, S3 objects, SQLite and PostgreSQL.
//
// Every source implements [Reader]: the schema is known before the first row, rows are
// streamed one at a time and Next returns [io.EOF] after the last one.
package sources

import (
	"context"
	"fmt"
	"io"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// Source types accepted in [source] type.
const (
	TypeCSV      = "csv"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeS3       = "s3"
)

// Reader streams rows with a fixed schema.
type Reader interface {
	Schema() models.Schema
	Next() (models.Row, error)
	io.Closer
}

// Open builds the reader described by cfg. S3 sources need s3Client; other types ignore it.
func Open(ctx context.Context, cfg shared.SourceConfig, s3Client GetObjectAPI) (Reader, error) {
	switch cfg.Type {
	case TypeCSV, "":
		return OpenCSVFile(cfg.Path, cfg.Delimiter)
	case TypeSQLite:
		return OpenSQLite(ctx, cfg.Path, cfg.Query)
	case TypePostgres:
		return OpenPostgres(ctx, cfg.DSN, cfg.Query)
	case TypeS3:
		if s3Client == nil {
			return nil, fmt.Errorf("%w: s3 source needs a client", shared.ErrInvalidConfig)
		}
		return OpenS3CSV(ctx, s3Client, cfg.Bucket, cfg.Key, cfg.Delimiter)
	default:
		return nil, fmt.Errorf("%w: unknown source type '%s'", shared.ErrInvalidConfig, cfg.Type)
	}
}
