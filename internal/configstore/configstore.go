// Package configstore keeps named JSON payloads (session, cached lists,
// shop settings) in the record store's config table.
//
// Each name has at most one entry. Writes to the same name are serialized
// through a per-name lock so concurrent upserts never both create.
package configstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/store"
)

// Well-known names.
const (
	NameUser   = "user"
	NameUnit   = "unit"
	NameBranch = "branch"
	NameQR     = "qr"
)

const (
	colName = "name"
	colJSON = "json"
)

// Entry is one name/value pair for UpsertMany. Value is anything
// ir.FromAny accepts.
type Entry struct {
	Name  string
	Value any
}

// Store is a client of store.Store over the config table.
type Store struct {
	records *store.Store
	locks   *keyedMutex
}

// New returns a config store backed by records.
func New(records *store.Store) *Store {
	return &Store{records: records, locks: newKeyedMutex()}
}

// normalize returns the NFC form of name, rejecting empty names.
func normalize(name string) (string, error) {
	n := ir.NormalizeName(name)
	if n == "" {
		return "", ir.ValidationError{Field: colName, Message: "config name cannot be empty"}
	}
	return n, nil
}

func byName(name string) store.Query {
	return store.Where(colName, store.Eq, ir.String(name)).Take(1)
}

func toEntry(rec ir.Record) *ir.ConfigEntry {
	return &ir.ConfigEntry{
		ID:   rec.ID,
		Name: rec.Fields.GetString(colName),
		JSON: rec.Fields.GetString(colJSON),
	}
}

// FindByName returns the entry for name, or nil when absent.
func (c *Store) FindByName(ctx context.Context, name string) (*ir.ConfigEntry, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}
	return c.findByName(ctx, n)
}

func (c *Store) findByName(ctx context.Context, name string) (*ir.ConfigEntry, error) {
	recs, err := c.records.Query(ctx, store.TableConfig, byName(name))
	if err != nil {
		return nil, fmt.Errorf("find config %q: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return toEntry(recs[0]), nil
}

// Get returns the parsed value stored under name. Absent names and
// payloads that fail to parse both return nil without error.
func (c *Store) Get(ctx context.Context, name string) (*ir.ConfigValue, error) {
	entry, err := c.FindByName(ctx, name)
	if err != nil || entry == nil {
		return nil, err
	}
	return parse(entry), nil
}

// parse decodes an entry's payload, logging and returning nil on failure.
func parse(entry *ir.ConfigEntry) *ir.ConfigValue {
	v, err := ir.ParseJSON([]byte(entry.JSON))
	if err != nil {
		slog.Warn("config payload unreadable",
			"name", entry.Name,
			"error", ir.ValidationError{Field: entry.Name, Message: err.Error()},
		)
		return nil
	}
	return &ir.ConfigValue{Name: entry.Name, Value: v}
}

// encode marshals value canonically.
func encode(name string, value any) (string, error) {
	b, err := ir.MarshalAny(value)
	if err != nil {
		return "", ir.ValidationError{Field: name, Message: fmt.Sprintf("value not serializable: %v", err)}
	}
	return string(b), nil
}

// Upsert stores value under name, updating the existing entry or creating
// one. Concurrent upserts of one name are applied one after the other, so
// exactly one entry exists afterwards and it holds the last applied value.
func (c *Store) Upsert(ctx context.Context, name string, value any) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	payload, err := encode(n, value)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(n)
	defer unlock()

	existing, err := c.findByName(ctx, n)
	if err != nil {
		return err
	}

	if existing != nil {
		_, err = c.records.Update(ctx, existing.ID, func(ir.Object) (ir.Patch, error) {
			return ir.NewPatch().SetString(colJSON, payload), nil
		})
		if err != nil {
			return fmt.Errorf("update config %q: %w", n, err)
		}
		slog.Debug("config updated", "name", n, "id", existing.ID)
		return nil
	}

	rec, err := c.records.Create(ctx, store.TableConfig,
		ir.NewPatch().SetString(colName, n).SetString(colJSON, payload))
	if err != nil {
		return fmt.Errorf("create config %q: %w", n, err)
	}
	slog.Debug("config created", "name", n, "id", rec.ID)
	return nil
}

// UpsertMany applies every entry in one transaction, so observers see the
// whole batch or none of it. A name given twice keeps its last value.
func (c *Store) UpsertMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	payloads := make(map[string]string, len(entries))
	for i, e := range entries {
		n, err := normalize(e.Name)
		if err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
		p, err := encode(n, e.Value)
		if err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
		payloads[n] = p
	}

	keys := make([]string, 0, len(payloads))
	for k := range payloads {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	unlock := c.locks.LockAll(keys)
	defer unlock()

	err := c.records.Batch(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, n := range keys {
			recs, err := tx.Query(ctx, store.TableConfig, byName(n))
			if err != nil {
				return err
			}
			if len(recs) > 0 {
				payload := payloads[n]
				if _, err := tx.Update(ctx, recs[0].ID, func(ir.Object) (ir.Patch, error) {
					return ir.NewPatch().SetString(colJSON, payload), nil
				}); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.Create(ctx, store.TableConfig,
				ir.NewPatch().SetString(colName, n).SetString(colJSON, payloads[n])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert configs %v: %w", keys, err)
	}
	slog.Debug("configs upserted", "names", keys)
	return nil
}

// Remove deletes the entry for name. Removing an absent name is a no-op.
func (c *Store) Remove(ctx context.Context, name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(n)
	defer unlock()

	existing, err := c.findByName(ctx, n)
	if err != nil || existing == nil {
		return err
	}
	if _, err := c.records.Destroy(ctx, existing.ID); err != nil {
		return fmt.Errorf("remove config %q: %w", n, err)
	}
	slog.Debug("config removed", "name", n, "id", existing.ID)
	return nil
}

// List returns every readable entry ordered by name. Unreadable payloads
// are skipped.
func (c *Store) List(ctx context.Context) ([]ir.ConfigValue, error) {
	recs, err := c.records.Query(ctx, store.TableConfig, store.All().SortBy(colName, store.Asc))
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	out := make([]ir.ConfigValue, 0, len(recs))
	for _, rec := range recs {
		if v := parse(toEntry(rec)); v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

// Watch observes the entry for name. Each update holds zero or one record;
// use Decode to read it.
func (c *Store) Watch(ctx context.Context, name string) (*store.Subscription, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}
	return c.records.Observe(ctx, store.TableConfig, byName(n))
}

// Decode converts a Watch result set to the current value, nil when the
// entry is absent or unreadable.
func Decode(recs []ir.Record) *ir.ConfigValue {
	if len(recs) == 0 {
		return nil
	}
	return parse(toEntry(recs[0]))
}
