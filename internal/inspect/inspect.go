// Package inspect provides an ad-hoc SQL surface over the shard files.
//
// It runs DuckDB in-process against read_parquet globs of the dataset
// tree. This is an operator-facing debugging aid; the serving path
// never goes through SQL.
package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/kaelis/skyshard/internal/logging"
)

// Inspector executes SQL against the dataset's shard files.
type Inspector struct {
	mu   sync.Mutex
	db   *sql.DB
	root string
	log  *slog.Logger
}

// New opens an in-memory DuckDB session over the dataset root.
func New(root string) (*Inspector, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Inspector{
		db:   db,
		root: root,
		log:  logging.Component("inspect"),
	}, nil
}

// Close closes the DuckDB session.
func (x *Inspector) Close() error {
	if x.db != nil {
		return x.db.Close()
	}
	return nil
}

// ShardGlob returns the read_parquet glob covering one catalog's
// shard files. Shards are named by their coarse pixel id, so a digit
// prefix keeps the catalogue descriptor out of the glob.
func (x *Inspector) ShardGlob(namespace string) string {
	return filepath.Join(x.root, namespace, "[0-9]*")
}

// ScanCatalog reads every row of a catalog. union_by_name reconciles
// shards written before and after a schema widening.
func (x *Inspector) ScanCatalog(ctx context.Context, namespace string) ([]map[string]any, error) {
	q := fmt.Sprintf("SELECT * FROM read_parquet(%s, union_by_name=true) ORDER BY name", quoteLiteral(x.ShardGlob(namespace)))
	return x.Query(ctx, q)
}

// Query executes a raw SQL query and returns generic rows.
func (x *Inspector) Query(ctx context.Context, query string) ([]map[string]any, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	x.log.Debug("sql executed", "rows", len(results))
	return results, rows.Err()
}

// quoteLiteral single-quotes a string for embedding in SQL.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}
