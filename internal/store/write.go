package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/shopkeep/internal/ir"
)

// Mutator computes the change to apply to a record from its current fields.
// Returning an error aborts the update without writing.
type Mutator func(fields ir.Object) (ir.Patch, error)

// Create inserts a new record into table. Columns absent from patch take
// their zero default ("" / 0 / false) or null when optional. The store
// assigns the id and the insertion seq.
func (s *Store) Create(ctx context.Context, table string, patch ir.Patch) (ir.Record, error) {
	var rec ir.Record
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.insert(ctx, s.db, table, patch)
		return err
	})
	return rec, err
}

// Update reads the record, passes its fields to mutate and writes the
// returned patch. The read and the write happen in the same actor turn, so
// no other write can interleave. An empty patch is a no-op and does not
// notify observers.
//
// Returns *NotFoundError if id does not exist.
func (s *Store) Update(ctx context.Context, id string, mutate Mutator) (ir.Record, error) {
	var rec ir.Record
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.update(ctx, s.db, id, mutate)
		return err
	})
	return rec, err
}

// Destroy deletes the record with the given id. Deleting a missing id is
// not an error; the bool reports whether a record was removed.
func (s *Store) Destroy(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		removed, err = s.destroy(ctx, s.db, id)
		return err
	})
	return removed, err
}

// Reset drops every table and recreates the schema. Observers of every
// table are re-fed (with empty results).
func (s *Store) Reset(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if err := dropAll(ctx, s.db); err != nil {
			return storageErr("reset", "", err)
		}
		if err := applySchema(ctx, s.db, s.schema); err != nil {
			return storageErr("reset", "", err)
		}
		for _, t := range s.schema.Tables {
			s.markDirty(t.Name)
		}
		return nil
	})
}

// Tx is the write handle passed to a Batch function. It is only valid for
// the duration of that function.
type Tx struct {
	s *Store
	q querier
}

// Create inserts a record inside the batch.
func (tx *Tx) Create(ctx context.Context, table string, patch ir.Patch) (ir.Record, error) {
	return tx.s.insert(ctx, tx.q, table, patch)
}

// Update applies mutate to a record inside the batch.
func (tx *Tx) Update(ctx context.Context, id string, mutate Mutator) (ir.Record, error) {
	return tx.s.update(ctx, tx.q, id, mutate)
}

// Destroy deletes a record inside the batch.
func (tx *Tx) Destroy(ctx context.Context, id string) (bool, error) {
	return tx.s.destroy(ctx, tx.q, id)
}

// Find reads a record inside the batch, seeing the batch's own writes.
func (tx *Tx) Find(ctx context.Context, id string) (ir.Record, error) {
	return tx.s.find(ctx, tx.q, id)
}

// Query reads records inside the batch, seeing the batch's own writes.
func (tx *Tx) Query(ctx context.Context, table string, q Query) ([]ir.Record, error) {
	return tx.s.queryRecords(ctx, tx.q, table, q)
}

// Batch runs fn inside a single SQL transaction. Either every write in fn
// commits or none does. Observers are notified once per touched table after
// the commit.
//
// fn runs on the actor goroutine: it must use tx only. Calling Store
// methods from fn deadlocks.
func (s *Store) Batch(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.do(ctx, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return storageErr("batch", "", err)
		}
		defer sqlTx.Rollback()

		if err := fn(ctx, &Tx{s: s, q: sqlTx}); err != nil {
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return storageErr("batch", "", err)
		}
		return nil
	})
}

func (s *Store) insert(ctx context.Context, q querier, table string, patch ir.Patch) (ir.Record, error) {
	t, err := s.table(table)
	if err != nil {
		return ir.Record{}, err
	}
	if err := checkPatch(t, patch); err != nil {
		return ir.Record{}, err
	}

	fields := make(ir.Object, len(t.Columns))
	for _, c := range t.Columns {
		fields[c.Name] = zeroValue(c)
	}
	fields = patch.ApplyTo(fields)
	for _, c := range t.Columns {
		fields[c.Name] = coerce(c, fields[c.Name])
	}

	rec := ir.Record{
		ID:     s.ids.Generate(),
		Table:  t.Name,
		Seq:    s.clock.next(),
		Fields: fields,
	}

	cols := []string{`"id"`, `"seq"`}
	marks := []string{"?", "?"}
	args := []any{rec.ID, rec.Seq}
	for _, c := range t.Columns {
		arg, err := toArg(c, fields[c.Name])
		if err != nil {
			return ir.Record{}, ir.ValidationError{Field: c.Name, Message: err.Error()}
		}
		cols = append(cols, fmt.Sprintf("%q", c.Name))
		marks = append(marks, "?")
		args = append(args, arg)
	}

	stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return ir.Record{}, storageErr("create", t.Name, err)
	}

	s.markDirty(t.Name)
	return rec, nil
}

func (s *Store) update(ctx context.Context, q querier, id string, mutate Mutator) (ir.Record, error) {
	rec, err := s.find(ctx, q, id)
	if err != nil {
		return ir.Record{}, err
	}

	patch, err := mutate(rec.Fields.Clone())
	if err != nil {
		return ir.Record{}, err
	}
	if patch.Len() == 0 {
		return rec, nil
	}

	t, _ := s.schema.Table(rec.Table)
	if err := checkPatch(t, patch); err != nil {
		return ir.Record{}, err
	}

	var (
		sets []string
		args []any
	)
	for _, name := range patch.Columns() {
		c, _ := t.Column(name)
		v, _ := patch.Value(name)
		arg, err := toArg(c, v)
		if err != nil {
			return ir.Record{}, ir.ValidationError{Field: name, Message: err.Error()}
		}
		sets = append(sets, fmt.Sprintf("%q = ?", name))
		args = append(args, arg)
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %q SET %s WHERE \"id\" = ?", t.Name, strings.Join(sets, ", "))
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return ir.Record{}, storageErr("update", t.Name, err)
	}

	s.markDirty(t.Name)
	rec.Fields = patch.ApplyTo(rec.Fields)
	for _, name := range patch.Columns() {
		c, _ := t.Column(name)
		rec.Fields[name] = coerce(c, rec.Fields[name])
	}
	return rec, nil
}

func (s *Store) destroy(ctx context.Context, q querier, id string) (bool, error) {
	for _, t := range s.schema.Tables {
		res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE \"id\" = ?", t.Name), id)
		if err != nil {
			return false, storageErr("destroy", t.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, storageErr("destroy", t.Name, err)
		}
		if n > 0 {
			s.markDirty(t.Name)
			return true, nil
		}
	}
	return false, nil
}

// checkPatch rejects reserved, unknown and mistyped columns before any
// statement is issued.
func checkPatch(t TableSchema, patch ir.Patch) error {
	for _, name := range patch.Columns() {
		if name == colID || name == colSeq {
			return ir.ValidationError{Field: name, Message: "column is managed by the store"}
		}
		c, ok := t.Column(name)
		if !ok {
			return ir.ValidationError{Field: name, Message: fmt.Sprintf("unknown column in table %s", t.Name)}
		}
		v, _ := patch.Value(name)
		if _, err := toArg(c, v); err != nil {
			return ir.ValidationError{Field: name, Message: err.Error()}
		}
	}
	return nil
}

func zeroValue(c Column) ir.Value {
	if c.Optional {
		return ir.Null{}
	}
	switch c.Type {
	case TypeInt:
		return ir.Int(0)
	case TypeFloat:
		return ir.Float(0)
	case TypeBool:
		return ir.Bool(false)
	default:
		return ir.String("")
	}
}

// coerce returns v as it will read back from the column, so a returned
// record equals the one a later Find yields.
func coerce(c Column, v ir.Value) ir.Value {
	switch val := orNull(v).(type) {
	case ir.Int:
		if c.Type == TypeFloat {
			return ir.Float(val)
		}
	case ir.Null:
		return ir.Null{}
	}
	return v
}
