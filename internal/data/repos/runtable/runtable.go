// Package runtable manages the dynamically created result tables for
// ad-hoc efficiency runs. The caller declares the column set; once a run
// table exists its schema is frozen, and every new run gets a fresh table
// named {sanitized_base}_{n} with the next free run number.
package runtable

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/sanitize"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

// createAttempts bounds the retry loop that resolves run-number races
// between concurrent callers of CreateRunTable.
const createAttempts = 5

// metadataType whitelists the SQL types a caller may declare for metadata
// columns. Type strings never reach SQL text unvalidated.
var metadataType = regexp.MustCompile(`(?i)^(TEXT|VARCHAR\(\d+\)|TIMESTAMP|TIMESTAMPTZ|DOUBLE PRECISION)$`)

// MetadataColumn declares one caller-supplied measurement-metadata column.
// Order is preserved in the created table.
type MetadataColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Spec declares the column set of a new run table.
type Spec struct {
	// BaseName is the source filename of the efficiency run; a trailing
	// .eff extension is dropped and the rest sanitized into the table base.
	BaseName string `json:"base_name"`

	MetadataColumns []MetadataColumn `json:"metadata_columns"`

	// SweepColumns and DataColumns are all DOUBLE PRECISION; every sweep
	// column gets its own index.
	SweepColumns []string `json:"sweep_columns"`
	DataColumns  []string `json:"data_columns"`
}

type Versioner interface {
	// NextRunNumber returns one more than the highest numeric suffix among
	// existing {base}_<n> tables, or 1 when none exist. Gaps are not reused.
	NextRunNumber(dbc dbctx.Context, baseName string) (int, error)

	// CreateRunTable creates the next run table for spec and returns its
	// name. Two callers racing for the same run number are resolved by
	// retrying with the next number; a surviving collision surfaces as a
	// schema error tagged storeerr.ErrTableExists.
	CreateRunTable(dbc dbctx.Context, spec Spec) (string, error)

	// InsertRows merges the shared metadata values into every row and
	// performs one batched multi-row insert. Returns rows written.
	InsertRows(dbc dbctx.Context, tableName string, metadata map[string]interface{}, rows []map[string]interface{}) (int64, error)

	ListTables(dbc dbctx.Context) ([]string, error)

	// ReadRows retrieves rows with optional equality filters, for export
	// and downstream analysis. limit <= 0 means no limit.
	ReadRows(dbc dbctx.Context, tableName string, filters map[string]interface{}, limit int) ([]map[string]interface{}, error)
}

type versioner struct {
	mgr    *pg.Manager
	dbName string
	log    *logger.Logger
}

func NewVersioner(mgr *pg.Manager, dbName string, baseLog *logger.Logger) Versioner {
	return &versioner{mgr: mgr, dbName: dbName, log: baseLog.With("repo", "RunTableVersioner")}
}

func (v *versioner) withConn(dbc dbctx.Context, fn func(db *gorm.DB) error) error {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if dbc.Tx != nil {
		return fn(dbc.Tx.WithContext(ctx))
	}
	return v.mgr.WithConn(ctx, v.dbName, fn)
}

func (v *versioner) NextRunNumber(dbc dbctx.Context, baseName string) (int, error) {
	base := sanitize.RunTableBase(baseName)
	next := 1
	err := v.withConn(dbc, func(db *gorm.DB) error {
		var tables []string
		if err := db.Raw(`
			SELECT tablename FROM pg_tables
			WHERE schemaname = 'public' AND tablename LIKE ?
		`, base+"\\_%").Scan(&tables).Error; err != nil {
			return err
		}
		suffix := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_(\d+)$`)
		for _, name := range tables {
			m := suffix.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			if n >= next {
				next = n + 1
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeerr.Map("next_run_number", err)
	}
	return next, nil
}

func (v *versioner) CreateRunTable(dbc dbctx.Context, spec Spec) (string, error) {
	columnDefs, indexCols, err := buildColumns(spec)
	if err != nil {
		return "", err
	}
	base := sanitize.RunTableBase(spec.BaseName)

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		n, err := v.NextRunNumber(dbc, spec.BaseName)
		if err != nil {
			return "", err
		}
		tableName := fmt.Sprintf("%s_%d", base, n)

		err = v.withConn(dbc, func(db *gorm.DB) error {
			return db.Transaction(func(tx *gorm.DB) error {
				stmt := fmt.Sprintf("CREATE TABLE %s (%s)",
					pgx.Identifier{tableName}.Sanitize(),
					strings.Join(columnDefs, ", "))
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
				for _, col := range indexCols {
					idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
						pgx.Identifier{fmt.Sprintf("idx_%s_%s", tableName, col)}.Sanitize(),
						pgx.Identifier{tableName}.Sanitize(),
						pgx.Identifier{col}.Sanitize())
					if err := tx.Exec(idx).Error; err != nil {
						return err
					}
				}
				return nil
			})
		})
		if err == nil {
			v.log.Info("run table created", "table", tableName, "attempt", attempt+1)
			return tableName, nil
		}

		lastErr = storeerr.Map("create_run_table", err)
		if storeerr.IsKind(lastErr, storeerr.KindSchema) {
			// Lost the run-number race; recompute and try the next number.
			continue
		}
		return "", lastErr
	}
	return "", lastErr
}

func buildColumns(spec Spec) ([]string, []string, error) {
	defs := []string{"id BIGSERIAL PRIMARY KEY"}
	seen := map[string]bool{"id": true, "created_at": true}

	addName := func(raw string) (string, error) {
		name := sanitize.Name(raw)
		if name == "" {
			return "", storeerr.Newf(storeerr.KindIntegrity, "create_run_table",
				"column name %q sanitizes to nothing", raw)
		}
		if seen[name] {
			return "", storeerr.Newf(storeerr.KindIntegrity, "create_run_table",
				"duplicate or reserved column name %q", name)
		}
		seen[name] = true
		return name, nil
	}

	for _, mc := range spec.MetadataColumns {
		name, err := addName(mc.Name)
		if err != nil {
			return nil, nil, err
		}
		if !metadataType.MatchString(strings.TrimSpace(mc.Type)) {
			return nil, nil, storeerr.Newf(storeerr.KindIntegrity, "create_run_table",
				"unsupported metadata column type %q for %q", mc.Type, mc.Name)
		}
		defs = append(defs, fmt.Sprintf("%s %s",
			pgx.Identifier{name}.Sanitize(), strings.ToUpper(strings.TrimSpace(mc.Type))))
	}

	var indexCols []string
	for _, raw := range spec.SweepColumns {
		name, err := addName(raw)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, fmt.Sprintf("%s DOUBLE PRECISION", pgx.Identifier{name}.Sanitize()))
		indexCols = append(indexCols, name)
	}
	for _, raw := range spec.DataColumns {
		name, err := addName(raw)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, fmt.Sprintf("%s DOUBLE PRECISION", pgx.Identifier{name}.Sanitize()))
	}

	defs = append(defs, "created_at TIMESTAMPTZ NOT NULL DEFAULT now()")
	return defs, indexCols, nil
}

func (v *versioner) InsertRows(dbc dbctx.Context, tableName string, metadata map[string]interface{}, rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	merged := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(metadata)+len(row))
		for k, val := range metadata {
			m[sanitize.Name(k)] = val
		}
		for k, val := range row {
			m[sanitize.Name(k)] = val
		}
		merged[i] = m
	}

	columns := make([]string, 0, len(merged[0]))
	for col := range merged[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}
	rowTemplate := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var inserted int64
	err := v.withConn(dbc, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			for start := 0; start < len(merged); start += 1000 {
				end := start + 1000
				if end > len(merged) {
					end = len(merged)
				}
				page := merged[start:end]

				placeholders := make([]string, len(page))
				args := make([]interface{}, 0, len(page)*len(columns))
				for i, row := range page {
					placeholders[i] = rowTemplate
					for _, col := range columns {
						val, ok := row[col]
						if !ok {
							return storeerr.Newf(storeerr.KindIntegrity, "insert_rows",
								"row %d missing column %q", start+i, col)
						}
						args = append(args, val)
					}
				}
				stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
					pgx.Identifier{tableName}.Sanitize(),
					strings.Join(quoted, ", "),
					strings.Join(placeholders, ", "))
				res := tx.Exec(stmt, args...)
				if res.Error != nil {
					return res.Error
				}
				inserted += res.RowsAffected
			}
			return nil
		})
	})
	if err != nil {
		return 0, storeerr.Map("insert_rows", err)
	}
	v.log.Info("rows inserted", "table", tableName, "rows", inserted)
	return inserted, nil
}

func (v *versioner) ListTables(dbc dbctx.Context) ([]string, error) {
	var tables []string
	err := v.withConn(dbc, func(db *gorm.DB) error {
		return db.Raw(`
			SELECT tablename FROM pg_tables
			WHERE schemaname = 'public'
			ORDER BY tablename
		`).Scan(&tables).Error
	})
	if err != nil {
		return nil, storeerr.Map("list_tables", err)
	}
	return tables, nil
}

func (v *versioner) ReadRows(dbc dbctx.Context, tableName string, filters map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	var (
		where []string
		args  []interface{}
	)
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		where = append(where, fmt.Sprintf("%s = ?", pgx.Identifier{sanitize.Name(col)}.Sanitize()))
		args = append(args, filters[col])
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{tableName}.Sanitize())
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id"
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []map[string]interface{}
	err := v.withConn(dbc, func(db *gorm.DB) error {
		return db.Raw(stmt, args...).Scan(&rows).Error
	})
	if err != nil {
		return nil, storeerr.Map("read_rows", err)
	}
	return rows, nil
}
