package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/shopkeep/internal/ir"
)

// ColumnType is the storage type of a declared column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeBool   ColumnType = "bool"
)

// Column declares one field of a table.
//
// Non-optional columns are NOT NULL with a zero default ("", 0, false) so
// records created without them stay valid and additive migrations can
// ALTER TABLE ADD COLUMN on populated tables.
type Column struct {
	Name     string
	Type     ColumnType
	Optional bool
	Indexed  bool
	Unique   bool
}

// TableSchema declares a table. Every table implicitly has the reserved
// columns id (TEXT PRIMARY KEY) and seq (insertion clock).
type TableSchema struct {
	Name    string
	Columns []Column
}

// Column returns the declared column by name.
func (t TableSchema) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// AppSchema is the versioned set of tables the store manages.
//
// Version is compared with PRAGMA user_version on open:
//   - equal: nothing to do
//   - on-disk older: additive migration (new tables, new columns, new indexes)
//   - on-disk newer: reset (the file was written by a build this code
//     cannot read; drop and recreate)
type AppSchema struct {
	Version int
	Tables  []TableSchema
}

// Table returns the schema of the named table.
func (s AppSchema) Table(name string) (TableSchema, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// Table names of the default schema.
const (
	TableFeature = "feature"
	TableConfig  = "config"
)

// DefaultSchema returns the schema of the local shop database.
func DefaultSchema() AppSchema {
	return AppSchema{
		Version: 4,
		Tables: []TableSchema{
			{
				Name: TableFeature,
				Columns: []Column{
					{Name: "name", Type: TypeString, Indexed: true},
					{Name: "icon", Type: TypeString, Optional: true},
					{Name: "title", Type: TypeString, Optional: true},
					{Name: "description", Type: TypeString, Optional: true},
					{Name: "params", Type: TypeString, Optional: true},
					{Name: "status", Type: TypeString, Optional: true},
					{Name: "type", Type: TypeString, Optional: true},
				},
			},
			{
				Name: TableConfig,
				Columns: []Column{
					{Name: "name", Type: TypeString, Unique: true},
					{Name: "json", Type: TypeString},
				},
			},
		},
	}
}

// Validate checks the schema for reserved, duplicate or mistyped columns.
// Returns all errors (not fail-fast).
func (s AppSchema) Validate() []ir.ValidationError {
	var errs []ir.ValidationError
	if s.Version < 1 {
		errs = append(errs, ir.ValidationError{Field: "version", Message: "must be >= 1"})
	}

	seenTables := make(map[string]bool)
	for i, t := range s.Tables {
		if !validIdent(t.Name) {
			errs = append(errs, ir.ValidationError{
				Field:   fmt.Sprintf("tables[%d].name", i),
				Message: fmt.Sprintf("invalid table name %q", t.Name),
			})
		}
		if seenTables[t.Name] {
			errs = append(errs, ir.ValidationError{
				Field:   fmt.Sprintf("tables[%d].name", i),
				Message: fmt.Sprintf("duplicate table %q", t.Name),
			})
		}
		seenTables[t.Name] = true

		seenCols := make(map[string]bool)
		for j, c := range t.Columns {
			field := fmt.Sprintf("tables[%d].columns[%d]", i, j)
			switch {
			case c.Name == colID || c.Name == colSeq:
				errs = append(errs, ir.ValidationError{Field: field, Message: fmt.Sprintf("column %q is reserved", c.Name)})
			case !validIdent(c.Name):
				errs = append(errs, ir.ValidationError{Field: field, Message: fmt.Sprintf("invalid column name %q", c.Name)})
			case seenCols[c.Name]:
				errs = append(errs, ir.ValidationError{Field: field, Message: fmt.Sprintf("duplicate column %q", c.Name)})
			}
			seenCols[c.Name] = true

			switch c.Type {
			case TypeString, TypeInt, TypeFloat, TypeBool:
			default:
				errs = append(errs, ir.ValidationError{
					Field:   field + ".type",
					Message: fmt.Sprintf("invalid type %q, must be one of: string, int, float, bool", c.Type),
				})
			}
		}
	}
	return errs
}

const (
	colID  = "id"
	colSeq = "seq"
)

// validIdent accepts [a-z_][a-z0-9_]*; names are interpolated into DDL.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func sqlType(t ColumnType) string {
	switch t {
	case TypeInt, TypeBool:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlDefault(t ColumnType) string {
	switch t {
	case TypeInt, TypeBool, TypeFloat:
		return "0"
	default:
		return "''"
	}
}

func columnDDL(c Column) string {
	ddl := fmt.Sprintf("%q %s", c.Name, sqlType(c.Type))
	if !c.Optional {
		ddl += " NOT NULL DEFAULT " + sqlDefault(c.Type)
	}
	return ddl
}

func createTableDDL(t TableSchema) string {
	parts := []string{
		`"id" TEXT PRIMARY KEY`,
		`"seq" INTEGER NOT NULL`,
	}
	for _, c := range t.Columns {
		parts = append(parts, columnDDL(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n\t%s\n)", t.Name, strings.Join(parts, ",\n\t"))
}

func indexDDL(t TableSchema) []string {
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (seq)", "idx_"+t.Name+"_seq", t.Name),
	}
	for _, c := range t.Columns {
		switch {
		case c.Unique:
			stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %q ON %q (%q)",
				"uniq_"+t.Name+"_"+c.Name, t.Name, c.Name))
		case c.Indexed:
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
				"idx_"+t.Name+"_"+c.Name, t.Name, c.Name))
		}
	}
	return stmts
}

// applySchema brings the database file in line with schema, deciding
// between no-op, additive migration and reset from PRAGMA user_version.
func applySchema(ctx context.Context, db *sql.DB, schema AppSchema) error {
	var onDisk int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&onDisk); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	switch {
	case onDisk > schema.Version:
		slog.Warn("database schema is newer than this build, resetting",
			"on_disk", onDisk,
			"version", schema.Version,
		)
		if err := dropAll(ctx, db); err != nil {
			return err
		}
	case onDisk > 0 && onDisk < schema.Version:
		slog.Info("migrating database schema",
			"from", onDisk,
			"to", schema.Version,
		)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply schema: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range schema.Tables {
		if _, err := tx.ExecContext(ctx, createTableDDL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		if err := addMissingColumns(ctx, tx, t); err != nil {
			return err
		}
		for _, stmt := range indexDDL(t) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index on %s: %w", t.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schema.Version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply schema: commit: %w", err)
	}
	return nil
}

// addMissingColumns performs the additive part of a migration.
func addMissingColumns(ctx context.Context, tx *sql.Tx, t TableSchema) error {
	existing, err := tableColumns(ctx, tx, t.Name)
	if err != nil {
		return err
	}
	for _, c := range t.Columns {
		if slices.Contains(existing, c.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s", t.Name, columnDDL(c))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", t.Name, c.Name, err)
		}
		slog.Info("column added", "table", t.Name, "column", c.Name)
	}
	return nil
}

func tableColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// dropAll removes every user table, leaving an empty file.
func dropAll(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	for _, name := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA user_version = 0"); err != nil {
		return fmt.Errorf("reset user_version: %w", err)
	}
	return nil
}
