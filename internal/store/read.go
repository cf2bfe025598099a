package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/shopkeep/internal/ir"
)

// Find returns the record with the given id, searching every table.
// Returns *NotFoundError if no table holds it.
func (s *Store) Find(ctx context.Context, id string) (ir.Record, error) {
	var rec ir.Record
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.find(ctx, s.db, id)
		return err
	})
	return rec, err
}

// Query returns the records of table matching q.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Query(ctx context.Context, table string, q Query) ([]ir.Record, error) {
	var out []ir.Record
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.queryRecords(ctx, s.db, table, q)
		return err
	})
	return out, err
}

// Count returns the number of records of table matching q. Sorts and
// limits in q are ignored.
func (s *Store) Count(ctx context.Context, table string, q Query) (int, error) {
	var n int
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.count(ctx, s.db, table, q)
		return err
	})
	return n, err
}

func (s *Store) table(name string) (TableSchema, error) {
	t, ok := s.schema.Table(name)
	if !ok {
		return TableSchema{}, ir.ValidationError{Field: "table", Message: fmt.Sprintf("unknown table %q", name)}
	}
	return t, nil
}

func selectList(t TableSchema) string {
	cols := []string{`"id"`, `"seq"`}
	for _, c := range t.Columns {
		cols = append(cols, fmt.Sprintf("%q", c.Name))
	}
	return strings.Join(cols, ", ")
}

func (s *Store) queryRecords(ctx context.Context, q querier, table string, query Query) ([]ir.Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	cq, err := compileQuery(t, query)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %q%s%s%s", selectList(t), t.Name, cq.where, cq.order, cq.limit)
	rows, err := q.QueryContext(ctx, stmt, cq.args...)
	if err != nil {
		return nil, storageErr("query", table, err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, t)
		if err != nil {
			return nil, storageErr("query", table, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query", table, err)
	}
	return records, nil
}

func (s *Store) count(ctx context.Context, q querier, table string, query Query) (int, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	cq, err := compileQuery(t, query)
	if err != nil {
		return 0, err
	}

	var n int
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %q%s", t.Name, cq.where)
	if err := q.QueryRowContext(ctx, stmt, cq.args...).Scan(&n); err != nil {
		return 0, storageErr("count", table, err)
	}
	return n, nil
}

// find looks the id up in each table in schema order.
func (s *Store) find(ctx context.Context, q querier, id string) (ir.Record, error) {
	for _, t := range s.schema.Tables {
		rec, err := s.findIn(ctx, q, t, id)
		if err == nil {
			return rec, nil
		}
		if !IsNotFound(err) {
			return ir.Record{}, err
		}
	}
	return ir.Record{}, &NotFoundError{ID: id}
}

func (s *Store) findIn(ctx context.Context, q querier, t TableSchema, id string) (ir.Record, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %q WHERE \"id\" = ?", selectList(t), t.Name)
	rec, err := scanRecord(q.QueryRowContext(ctx, stmt, id), t)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, &NotFoundError{ID: id, Table: t.Name}
	}
	if err != nil {
		return ir.Record{}, storageErr("find", t.Name, err)
	}
	return rec, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads a row selected with selectList(t).
func scanRecord(row scanner, t TableSchema) (ir.Record, error) {
	var (
		id  string
		seq int64
	)
	dest := []any{&id, &seq}
	cells := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case TypeInt, TypeBool:
			cells[i] = new(sql.NullInt64)
		case TypeFloat:
			cells[i] = new(sql.NullFloat64)
		default:
			cells[i] = new(sql.NullString)
		}
		dest = append(dest, cells[i])
	}

	if err := row.Scan(dest...); err != nil {
		return ir.Record{}, err
	}

	fields := make(ir.Object, len(t.Columns))
	for i, c := range t.Columns {
		fields[c.Name] = cellValue(c, cells[i])
	}
	return ir.Record{ID: id, Table: t.Name, Seq: seq, Fields: fields}, nil
}

func cellValue(c Column, cell any) ir.Value {
	switch v := cell.(type) {
	case *sql.NullInt64:
		if !v.Valid {
			return ir.Null{}
		}
		if c.Type == TypeBool {
			return ir.Bool(v.Int64 != 0)
		}
		return ir.Int(v.Int64)
	case *sql.NullFloat64:
		if !v.Valid {
			return ir.Null{}
		}
		return ir.Float(v.Float64)
	case *sql.NullString:
		if !v.Valid {
			return ir.Null{}
		}
		return ir.String(v.String)
	}
	return ir.Null{}
}
