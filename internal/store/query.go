package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/shopkeep/internal/ir"
)

// Op is a comparison operator in a Where clause.
type Op string

const (
	Eq    Op = "="
	NotEq Op = "!="
	Gt    Op = ">"
	Gte   Op = ">="
	Lt    Op = "<"
	Lte   Op = "<="
	Like  Op = "LIKE"
	In    Op = "IN" // Value must be an ir.Array
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Clause is a single column condition. Clauses in a Query are ANDed.
type Clause struct {
	Column string
	Op     Op
	Value  ir.Value
}

// Sort orders results by a column.
type Sort struct {
	Column    string
	Direction Direction
}

// Query selects records from one table.
//
// Queries are values; each builder method returns a new Query:
//
//	store.Where("name", store.Eq, ir.String("user")).SortBy("name", store.Asc).Take(1)
//
// Results are ordered by the requested sorts, then by insertion order
// (seq ASC, id ASC) so they are deterministic.
type Query struct {
	clauses []Clause
	sorts   []Sort
	limit   int
}

// All matches every record.
func All() Query {
	return Query{}
}

// Where starts a query with one clause.
func Where(col string, op Op, v ir.Value) Query {
	return All().Where(col, op, v)
}

// ByID matches the record with the given id.
func ByID(id string) Query {
	return Where(colID, Eq, ir.String(id))
}

// Where adds a clause.
func (q Query) Where(col string, op Op, v ir.Value) Query {
	q.clauses = append(slices.Clip(q.clauses), Clause{Column: col, Op: op, Value: v})
	return q
}

// SortBy adds a sort key ahead of the insertion-order tiebreaker.
func (q Query) SortBy(col string, dir Direction) Query {
	q.sorts = append(slices.Clip(q.sorts), Sort{Column: col, Direction: dir})
	return q
}

// Take limits the number of results. n <= 0 means no limit.
func (q Query) Take(n int) Query {
	q.limit = n
	return q
}

// Clauses returns the query's clauses.
func (q Query) Clauses() []Clause {
	return slices.Clone(q.clauses)
}

// String renders the query for logs.
func (q Query) String() string {
	if len(q.clauses) == 0 && len(q.sorts) == 0 && q.limit == 0 {
		return "all"
	}
	var parts []string
	for _, c := range q.clauses {
		b, _ := ir.MarshalCanonical(orNull(c.Value))
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Column, c.Op, b))
	}
	for _, s := range q.sorts {
		parts = append(parts, fmt.Sprintf("sort %s %s", s.Column, s.Direction))
	}
	if q.limit > 0 {
		parts = append(parts, fmt.Sprintf("take %d", q.limit))
	}
	return strings.Join(parts, ", ")
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}

// compiledQuery is the SQL form of a Query.
type compiledQuery struct {
	where string // "" or " WHERE ..."
	order string // " ORDER BY ..."
	limit string // "" or " LIMIT n"
	args  []any
}

// lookupColumn resolves reserved and declared columns.
func lookupColumn(t TableSchema, name string) (Column, bool) {
	switch name {
	case colID:
		return Column{Name: colID, Type: TypeString}, true
	case colSeq:
		return Column{Name: colSeq, Type: TypeInt}, true
	}
	return t.Column(name)
}

// compileQuery converts q to parameterized SQL for table t.
// Column names are validated against the schema; values are always bound
// as parameters, never interpolated.
func compileQuery(t TableSchema, q Query) (compiledQuery, error) {
	var (
		conds []string
		args  []any
	)

	for i, c := range q.clauses {
		field := fmt.Sprintf("where[%d]", i)
		col, ok := lookupColumn(t, c.Column)
		if !ok {
			return compiledQuery{}, ir.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown column %q in table %s", c.Column, t.Name),
			}
		}

		switch c.Op {
		case Eq, NotEq:
			if _, isNull := orNull(c.Value).(ir.Null); isNull {
				if c.Op == Eq {
					conds = append(conds, fmt.Sprintf("%q IS NULL", col.Name))
				} else {
					conds = append(conds, fmt.Sprintf("%q IS NOT NULL", col.Name))
				}
				continue
			}
			fallthrough
		case Gt, Gte, Lt, Lte:
			arg, err := toArg(col, c.Value)
			if err != nil {
				return compiledQuery{}, ir.ValidationError{Field: field, Message: err.Error()}
			}
			conds = append(conds, fmt.Sprintf("%q %s ?", col.Name, c.Op))
			args = append(args, arg)

		case Like:
			s, ok := c.Value.(ir.String)
			if !ok || col.Type != TypeString {
				return compiledQuery{}, ir.ValidationError{
					Field:   field,
					Message: fmt.Sprintf("LIKE needs a string column and a string pattern (column %q)", col.Name),
				}
			}
			conds = append(conds, fmt.Sprintf("%q LIKE ?", col.Name))
			args = append(args, string(s))

		case In:
			arr, ok := c.Value.(ir.Array)
			if !ok {
				return compiledQuery{}, ir.ValidationError{
					Field:   field,
					Message: fmt.Sprintf("IN needs an array value, got %T", c.Value),
				}
			}
			if len(arr) == 0 {
				conds = append(conds, "0")
				continue
			}
			marks := make([]string, len(arr))
			for j, v := range arr {
				arg, err := toArg(col, v)
				if err != nil {
					return compiledQuery{}, ir.ValidationError{Field: fmt.Sprintf("%s[%d]", field, j), Message: err.Error()}
				}
				marks[j] = "?"
				args = append(args, arg)
			}
			conds = append(conds, fmt.Sprintf("%q IN (%s)", col.Name, strings.Join(marks, ", ")))

		default:
			return compiledQuery{}, ir.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unsupported operator %q", c.Op),
			}
		}
	}

	var order []string
	for i, s := range q.sorts {
		col, ok := lookupColumn(t, s.Column)
		if !ok {
			return compiledQuery{}, ir.ValidationError{
				Field:   fmt.Sprintf("sort[%d]", i),
				Message: fmt.Sprintf("unknown column %q in table %s", s.Column, t.Name),
			}
		}
		dir := s.Direction
		if dir != Desc {
			dir = Asc
		}
		order = append(order, fmt.Sprintf("%q %s", col.Name, dir))
	}
	// Deterministic tiebreaker: insertion order.
	order = append(order, `"seq" ASC`, `"id" ASC`)

	cq := compiledQuery{
		order: " ORDER BY " + strings.Join(order, ", "),
		args:  args,
	}
	if len(conds) > 0 {
		cq.where = " WHERE " + strings.Join(conds, " AND ")
	}
	if q.limit > 0 {
		cq.limit = fmt.Sprintf(" LIMIT %d", q.limit)
	}
	return cq, nil
}

// toArg converts a value to the driver argument for col, enforcing the
// column type. Null is accepted only for optional columns.
func toArg(col Column, v ir.Value) (any, error) {
	switch val := orNull(v).(type) {
	case ir.Null:
		if !col.Optional && col.Name != colID && col.Name != colSeq {
			return nil, fmt.Errorf("column %q is required and cannot be null", col.Name)
		}
		return nil, nil
	case ir.String:
		if col.Type == TypeString {
			return string(val), nil
		}
	case ir.Int:
		switch col.Type {
		case TypeInt:
			return int64(val), nil
		case TypeFloat:
			return float64(val), nil
		}
	case ir.Float:
		if col.Type == TypeFloat {
			return float64(val), nil
		}
	case ir.Bool:
		if col.Type == TypeBool {
			if val {
				return int64(1), nil
			}
			return int64(0), nil
		}
	}
	return nil, fmt.Errorf("column %q has type %s, cannot store %T", col.Name, col.Type, v)
}
