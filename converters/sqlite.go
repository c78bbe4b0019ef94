package converters

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/darianmavgo/mkolist/converters/common"

	_ "modernc.org/sqlite"
)

// DefaultBatchSize is the number of rows bound into one multi-row INSERT when
// LoadOptions does not say otherwise.
const DefaultBatchSize = 1000

// LoadOptions defines configuration for writing one table.
type LoadOptions struct {
	BatchSize int          // Rows per INSERT statement, capped by SQLite's bind limit
	Logger    *slog.Logger // Receives debug records; slog.Default() when nil
}

func (o *LoadOptions) batchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o *LoadOptions) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// OpenStore opens (creating if needed) the SQLite database at path.
// The handle is limited to one connection; every table is written through it in turn.
func OpenStore(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to 1 connection to avoid locking issues and improve tx.Stmt performance
	db.SetMaxOpenConns(1)

	// page_size only takes effect before the first table is created
	if _, err := db.ExecContext(ctx, "PRAGMA page_size = 65536; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMAs: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// LoadDataset replaces tableName with the contents of ds and returns the number of rows written.
// Drop, create and inserts share one transaction, so on error the previous
// state of the table (or its absence) is kept.
func LoadDataset(ctx context.Context, db *sql.DB, tableName string, ds *common.Dataset, opts *LoadOptions) (int64, error) {
	if len(ds.Columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", tableName)
	}
	log := opts.logger().With("table", tableName)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, common.GenDropTableSQL(tableName)); err != nil {
		return 0, fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}

	createTableSQL := common.GenCreateTableSQL(tableName, ds.Columns)
	log.Debug("creating table", "sql", createTableSQL)
	if _, err := tx.ExecContext(ctx, createTableSQL); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	fields := ds.ColumnNames()
	perStmt := common.RowsPerStatement(opts.batchSize(), len(fields))

	var fullStmt *sql.Stmt
	args := make([]any, 0, perStmt*len(fields))
	var rowCount int64

	for start := 0; start < len(ds.Rows); start += perStmt {
		end := min(start+perStmt, len(ds.Rows))
		chunk := ds.Rows[start:end]

		stmt := fullStmt
		if len(chunk) != perStmt || stmt == nil {
			insertSQL, err := common.GenInsertSQL(tableName, fields, len(chunk))
			if err != nil {
				return rowCount, fmt.Errorf("failed to generate insert statement for table %s: %w", tableName, err)
			}
			stmt, err = tx.PrepareContext(ctx, insertSQL)
			if err != nil {
				return rowCount, fmt.Errorf("failed to prepare insert statement for table %s: %w", tableName, err)
			}
			if len(chunk) == perStmt {
				fullStmt = stmt
				defer fullStmt.Close()
			} else {
				defer stmt.Close()
			}
		}

		args = args[:0]
		for i, row := range chunk {
			if len(row) != len(fields) {
				return rowCount, fmt.Errorf("row %d of table %s has %d values, want %d", start+i+1, tableName, len(row), len(fields))
			}
			args = append(args, row...)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return rowCount, fmt.Errorf("failed to insert rows %d-%d in table %s: %w", start+1, end, tableName, err)
		}
		rowCount += int64(len(chunk))
	}

	if err := tx.Commit(); err != nil {
		return rowCount, fmt.Errorf("failed to commit transaction for table %s: %w", tableName, err)
	}
	committed = true

	log.Debug("finished table", "rows", rowCount)
	return rowCount, nil
}
