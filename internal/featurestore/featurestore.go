// Package featurestore reads and syncs the feature table: server-driven
// switches for app screens.
package featurestore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/store"
)

// Status controls where a feature is available.
type Status string

const (
	StatusOn          Status = "ON"
	StatusOff         Status = "OFF"
	StatusMaintain    Status = "MAINTAIN"
	StatusAndroidOnly Status = "ANDROID_ONLY"
	StatusIOSOnly     Status = "IOS_ONLY"
)

// Type distinguishes plain features from configuration carriers.
type Type string

const (
	TypeDefault Type = "DEFAULT"
	TypeConfig  Type = "CONFIG"
)

// Platform is the client platform asking about a feature.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Feature is one row of the feature table. Params is an opaque JSON
// string, read with Store.Params.
type Feature struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Params      string `json:"params,omitempty" yaml:"params,omitempty"`
	Status      Status `json:"status,omitempty" yaml:"status,omitempty"`
	Type        Type   `json:"type,omitempty" yaml:"type,omitempty"`
}

// AvailableOn reports whether the feature can be used on platform.
func (f Feature) AvailableOn(p Platform) bool {
	switch f.Status {
	case StatusOn:
		return true
	case StatusAndroidOnly:
		return p == PlatformAndroid
	case StatusIOSOnly:
		return p == PlatformIOS
	default:
		return false
	}
}

func (f Feature) patch() ir.Patch {
	p := ir.NewPatch().SetString("name", f.Name)
	opt := func(col, v string) {
		if v == "" {
			p = p.Set(col, ir.Null{})
			return
		}
		p = p.SetString(col, v)
	}
	opt("icon", f.Icon)
	opt("title", f.Title)
	opt("description", f.Description)
	opt("params", f.Params)
	opt("status", string(f.Status))
	opt("type", string(f.Type))
	return p
}

func fromRecord(rec ir.Record) Feature {
	return Feature{
		ID:          rec.ID,
		Name:        rec.Fields.GetString("name"),
		Icon:        rec.Fields.GetString("icon"),
		Title:       rec.Fields.GetString("title"),
		Description: rec.Fields.GetString("description"),
		Params:      rec.Fields.GetString("params"),
		Status:      Status(rec.Fields.GetString("status")),
		Type:        Type(rec.Fields.GetString("type")),
	}
}

// Decode converts an Observe result set to features.
func Decode(recs []ir.Record) []Feature {
	out := make([]Feature, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out
}

// Store is a client of store.Store over the feature table.
type Store struct {
	records *store.Store
}

// New returns a feature store backed by records.
func New(records *store.Store) *Store {
	return &Store{records: records}
}

func byName(name string) store.Query {
	return store.Where("name", store.Eq, ir.String(name)).Take(1)
}

// Get returns the feature named name, or nil when absent.
func (s *Store) Get(ctx context.Context, name string) (*Feature, error) {
	recs, err := s.records.Query(ctx, store.TableFeature, byName(name))
	if err != nil {
		return nil, fmt.Errorf("get feature %q: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	f := fromRecord(recs[0])
	return &f, nil
}

// List returns every feature in insertion order.
func (s *Store) List(ctx context.Context) ([]Feature, error) {
	recs, err := s.records.Query(ctx, store.TableFeature, store.All())
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	return Decode(recs), nil
}

// Params returns the feature's params object. Absent features, empty
// params and unparsable params all return nil without error.
func (s *Store) Params(ctx context.Context, name string) (ir.Object, error) {
	f, err := s.Get(ctx, name)
	if err != nil || f == nil || f.Params == "" {
		return nil, err
	}
	v, err := ir.ParseJSON([]byte(f.Params))
	if err != nil {
		slog.Warn("feature params unreadable",
			"name", name,
			"error", ir.ValidationError{Field: "params", Message: err.Error()},
		)
		return nil, nil
	}
	obj, ok := v.(ir.Object)
	if !ok {
		slog.Warn("feature params not an object", "name", name)
		return nil, nil
	}
	return obj, nil
}

// Enabled reports whether the named feature is available on platform.
// Unknown features are disabled.
func (s *Store) Enabled(ctx context.Context, name string, p Platform) (bool, error) {
	f, err := s.Get(ctx, name)
	if err != nil || f == nil {
		return false, err
	}
	return f.AvailableOn(p), nil
}

// Sync replaces the feature table with features in one transaction:
// listed names are updated or created, unlisted ones are removed.
func (s *Store) Sync(ctx context.Context, features []Feature) error {
	want := make(map[string]Feature, len(features))
	order := make([]string, 0, len(features))
	for i, f := range features {
		if f.Name == "" {
			return ir.ValidationError{Field: fmt.Sprintf("features[%d].name", i), Message: "feature name cannot be empty"}
		}
		if _, dup := want[f.Name]; !dup {
			order = append(order, f.Name)
		}
		want[f.Name] = f
	}

	var created, updated, removed int
	err := s.records.Batch(ctx, func(ctx context.Context, tx *store.Tx) error {
		existing, err := tx.Query(ctx, store.TableFeature, store.All())
		if err != nil {
			return err
		}
		have := make(map[string]string, len(existing))
		for _, rec := range existing {
			name := rec.Fields.GetString("name")
			if _, keep := want[name]; !keep {
				if _, err := tx.Destroy(ctx, rec.ID); err != nil {
					return err
				}
				removed++
				continue
			}
			have[name] = rec.ID
		}

		for _, name := range order {
			patch := want[name].patch()
			if id, ok := have[name]; ok {
				if _, err := tx.Update(ctx, id, func(ir.Object) (ir.Patch, error) { return patch, nil }); err != nil {
					return err
				}
				updated++
				continue
			}
			if _, err := tx.Create(ctx, store.TableFeature, patch); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync features: %w", err)
	}

	slog.Info("features synced", "created", created, "updated", updated, "removed", removed)
	return nil
}

// Observe watches the whole feature table.
func (s *Store) Observe(ctx context.Context) (*store.Subscription, error) {
	return s.records.Observe(ctx, store.TableFeature, store.All())
}
