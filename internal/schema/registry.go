package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode selects the duplicate-avoidance strategy for a table family.
type Mode string

const (
	// ModePoint skips a batch whose reporting date is already present
	// (daily snapshot sources).
	ModePoint Mode = "point"
	// ModeRange deletes the batch's date span before loading (sources that
	// re-report a rolling multi-day window with revised numbers).
	ModeRange Mode = "range"
)

// DefaultDateField is the designated date column unless a family overrides it.
const DefaultDateField = "date"

// Family describes one table family: a (source, report-type) pairing that
// shares a hint schema, an ingestion mode, and a date-field convention.
// Tables are matched by exact name or by name prefix (e.g. every GA4_*
// table belongs to the GA4 family).
type Family struct {
	Name      string
	Prefix    string
	Mode      Mode
	DateField string
	Hints     map[string]Type
}

func (f *Family) dateField() string {
	if f.DateField == "" {
		return DefaultDateField
	}
	return f.DateField
}

// Registry maps table names to families. Loaded once at process start and
// read-only thereafter; Resolve is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*Family
}

// NewRegistry builds a registry from the given families.
func NewRegistry(families ...*Family) *Registry {
	r := &Registry{families: make(map[string]*Family)}
	for _, f := range families {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a family by name.
func (r *Registry) Register(f *Family) error {
	if f == nil || f.Name == "" {
		return fmt.Errorf("family name is required")
	}
	switch f.Mode {
	case ModePoint, ModeRange:
	case "":
		f.Mode = ModePoint
	default:
		return fmt.Errorf("family %s: unknown mode %q", f.Name, f.Mode)
	}
	if f.Prefix == "" {
		f.Prefix = f.Name
	}
	if f.DateField == "" {
		f.DateField = DefaultDateField
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[f.Name] = f
	return nil
}

// Resolve finds the family for a table name: exact match first, then the
// longest registered prefix. This replaces ad-hoc name-prefix branching at
// call sites with one lookup per ingestion call.
func (r *Registry) Resolve(table string) (*Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.families[table]; ok {
		return f, true
	}

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(r.families[names[i]].Prefix) > len(r.families[names[j]].Prefix)
	})
	for _, name := range names {
		f := r.families[name]
		if strings.HasPrefix(table, f.Prefix) {
			return f, true
		}
	}
	return nil, false
}

// Names returns the registered family names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
