package config

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Type is the value type a schema path accepts.
type Type string

// Supported schema types.
const (
	TypeString Type = "string"
	TypeBool   Type = "boolean"
	TypeInt    Type = "integer"
	TypeNumber Type = "number"
	TypeArray  Type = "array"
	TypeObject Type = "object"
	TypeAny    Type = "any"
)

func (t Type) valid() bool {
	switch t {
	case TypeString, TypeBool, TypeInt, TypeNumber, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Constraint describes one schema path.
type Constraint struct {
	Type        Type
	Description string
	Default     any
	Required    bool
	Enum        []any
	Min         *float64
	Max         *float64
	// Expr is an expr-lang boolean expression evaluated with the value bound
	// to "value", e.g. "value >= 10 && value <= 2000".
	Expr string
}

// Schema maps dotted paths to their constraints.
type Schema map[string]Constraint

// Contribution is what a command package adds to the combined configuration.
type Contribution struct {
	Schema     Schema
	Migrations []Migration
}

// ConflictError is returned when two contributions declare the same path
// incompatibly. It is fatal at startup.
type ConflictError struct {
	Path     string
	Owner    string
	Type     Type
	Existing string
	Previous Type
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("config path %q declared by %s and %s: %s", e.Path, e.Existing, e.Owner, e.Reason)
	}
	return fmt.Sprintf("config path %q declared as %s by %s and as %s by %s",
		e.Path, e.Previous, e.Existing, e.Type, e.Owner)
}

// Ptr returns a pointer to f, for Constraint.Min and Constraint.Max.
func Ptr(f float64) *float64 {
	return &f
}

// Registry holds every registered schema fragment and migration. It is built
// once at startup and then only read.
type Registry struct {
	mu         sync.RWMutex
	schema     Schema
	owners     map[string]string
	programs   map[string]*vm.Program
	migrations []*registeredMigration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schema:   make(Schema),
		owners:   make(map[string]string),
		programs: make(map[string]*vm.Program),
	}
}

// Add registers a contribution on behalf of owner.
func (r *Registry) Add(owner string, c Contribution) error {
	if err := r.AddSchema(owner, c.Schema); err != nil {
		return err
	}
	return r.AddMigration(c.Migrations...)
}

// AddSchema merges a schema fragment into the combined schema.
func (r *Registry) AddSchema(owner string, s Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the whole fragment before touching the registry.
	programs := make(map[string]*vm.Program)
	for _, path := range sortedPaths(s) {
		c := s[path]
		if c.Type == "" {
			c.Type = TypeAny
		}
		if !c.Type.valid() {
			return fmt.Errorf("config path %q: unknown type %q", path, c.Type)
		}
		if c.Expr != "" {
			program, err := expr.Compile(c.Expr, expr.AsBool())
			if err != nil {
				return fmt.Errorf("config path %q: invalid expression: %w", path, err)
			}
			programs[path] = program
		}

		prev, exists := r.schema[path]
		if !exists {
			continue
		}
		if prev.Type != c.Type {
			return &ConflictError{Path: path, Owner: owner, Type: c.Type, Existing: r.owners[path], Previous: prev.Type}
		}
		if prev.Default != nil && c.Default != nil && !reflect.DeepEqual(prev.Default, c.Default) {
			return &ConflictError{Path: path, Owner: owner, Existing: r.owners[path], Reason: "conflicting defaults"}
		}
	}

	for path, c := range s {
		if c.Type == "" {
			c.Type = TypeAny
		}
		if prev, exists := r.schema[path]; exists {
			if c.Default == nil {
				c.Default = prev.Default
			}
			c.Required = c.Required || prev.Required
		} else {
			r.owners[path] = owner
		}
		r.schema[path] = c
		if p, ok := programs[path]; ok {
			r.programs[path] = p
		}
	}

	return nil
}

// Schema returns a copy of the combined schema.
func (r *Registry) Schema() Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Schema, len(r.schema))
	for k, v := range r.schema {
		out[k] = v
	}
	return out
}

// Defaults returns the default value of every path that declares one.
func (r *Registry) Defaults() Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj := Object{}
	for _, path := range sortedPaths(r.schema) {
		if d := r.schema[path].Default; d != nil {
			obj.Set(path, cloneValue(d))
		}
	}
	return obj
}

// GetDefaults returns the schema defaults with overrides merged on top.
func (r *Registry) GetDefaults(overrides Object) Object {
	return Merge(r.Defaults(), overrides)
}

// Unknown returns the leaf paths of obj that no schema path covers.
func (r *Registry) Unknown(obj Object) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unknown []string
	for _, path := range obj.Paths() {
		if !r.covers(path) {
			unknown = append(unknown, path)
		}
	}
	return unknown
}

// covers reports whether path or one of its parents is declared.
func (r *Registry) covers(path string) bool {
	for p := path; p != ""; p = parentPath(p) {
		if _, ok := r.schema[p]; ok {
			return true
		}
	}
	return false
}

func parentPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return ""
}

func sortedPaths(s Schema) []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
