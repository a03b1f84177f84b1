package command

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/CliForge/percy/pkg/config"
	"github.com/bmatcuk/doublestar/v4"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// SpecError lists everything wrong with a spec.
type SpecError struct {
	Command  string
	Problems []string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid command %q:\n  - %s", e.Command, strings.Join(e.Problems, "\n  - "))
}

// Registry holds the registered command specs. It is built once at startup
// and shared by reference afterwards.
type Registry struct {
	mu     sync.RWMutex
	config *config.Registry
	roots  []*Spec
	specs  map[string]*Spec
}

// NewRegistry creates a registry adding command config contributions to cfg.
func NewRegistry(cfg *config.Registry) *Registry {
	return &Registry{
		config: cfg,
		specs:  make(map[string]*Spec),
	}
}

// Config returns the combined config registry.
func (r *Registry) Config() *config.Registry {
	return r.config
}

// Register validates s and its sub-commands and adds them to the registry.
// Their config contributions are added to the config registry; a conflicting
// contribution fails the registration.
func (r *Registry) Register(s *Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := resolve(s)
	if _, exists := r.specs[resolved.Name]; exists {
		return &SpecError{Command: resolved.Name, Problems: []string{"already registered"}}
	}

	var errs []error
	walk(resolved, "", func(path string, spec *Spec) {
		if err := validate(path, spec); err != nil {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return errs[0]
	}

	var err error
	walk(resolved, "", func(path string, spec *Spec) {
		if err == nil {
			err = r.config.Add(path, spec.Config)
		}
	})
	if err != nil {
		return err
	}

	schema := r.config.Schema()
	walk(resolved, "", func(path string, spec *Spec) {
		for _, f := range spec.Flags {
			if f.Config == "" {
				continue
			}
			if _, ok := schema[f.Config]; !ok && err == nil {
				err = &SpecError{Command: path, Problems: []string{
					fmt.Sprintf("flag %s maps to undeclared config path %q", f.name(), f.Config),
				}}
			}
		}
	})
	if err != nil {
		return err
	}

	r.roots = append(r.roots, resolved)
	walk(resolved, "", func(path string, spec *Spec) {
		r.specs[path] = spec
	})
	return nil
}

// Lookup returns the spec registered under its full name, e.g. "build id".
func (r *Registry) Lookup(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Names returns the full name of every registered command, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Roots returns the top-level specs in registration order.
func (r *Registry) Roots() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Spec(nil), r.roots...)
}

// resolve returns a copy of s whose lazily resolved sub-commands are
// materialized.
func resolve(s *Spec) *Spec {
	out := *s
	out.Commands = make([]*Spec, 0, len(s.Commands))
	for _, sub := range s.Commands {
		out.Commands = append(out.Commands, resolve(sub))
	}
	if s.LazyCommands != nil {
		for _, sub := range s.LazyCommands() {
			out.Commands = append(out.Commands, resolve(sub))
		}
		out.LazyCommands = nil
	}
	return &out
}

func walk(s *Spec, parent string, fn func(path string, spec *Spec)) {
	path := s.Name
	if parent != "" {
		path = parent + " " + s.Name
	}
	fn(path, s)
	for _, sub := range s.Commands {
		walk(sub, path, fn)
	}
}

func validate(path string, s *Spec) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !namePattern.MatchString(s.Name) {
		add("name must be lowercase kebab-case")
	}
	if s.Run == nil && len(s.Commands) == 0 {
		add("has neither a workflow nor sub-commands")
	}
	if s.Run == nil && s.Percy != nil {
		add("requires percy but has no workflow")
	}

	subs := make(map[string]bool)
	for _, sub := range s.Commands {
		if subs[sub.Name] {
			add("duplicate sub-command %q", sub.Name)
		}
		subs[sub.Name] = true
	}

	args := make(map[string]bool)
	optional := false
	for i, a := range s.Args {
		switch {
		case a.Name == "":
			add("argument %d has no name", i+1)
		case args[a.Name]:
			add("duplicate argument %q", a.Name)
		}
		args[a.Name] = true
		if a.Required && optional {
			add("required argument %q follows an optional one", a.Name)
		}
		optional = optional || !a.Required
	}

	names := make(map[string]bool)
	shorts := make(map[string]string)
	for _, f := range s.Flags {
		for _, p := range validateFlag(f) {
			add("flag %s: %s", f.name(), p)
		}
		if names[f.Name] {
			add("duplicate flag --%s", f.Name)
		}
		names[f.Name] = true
		if f.Short == "" {
			continue
		}
		if other, ok := shorts[f.Short]; ok {
			add("flags --%s and --%s share shorthand -%s", other, f.Name, f.Short)
		}
		shorts[f.Short] = f.Name
	}

	if len(problems) > 0 {
		return &SpecError{Command: path, Problems: problems}
	}
	return nil
}

func validateFlag(f *Flag) []string {
	var problems []string

	if !namePattern.MatchString(f.Name) {
		problems = append(problems, "name must be lowercase kebab-case")
	}
	if _, ok := reserved[f.Name]; ok {
		problems = append(problems, "name is reserved for a global flag")
	}
	if f.Short != "" {
		if len(f.Short) != 1 {
			problems = append(problems, "shorthand must be a single character")
		}
		for name, short := range reserved {
			if short != "" && short == f.Short {
				problems = append(problems, fmt.Sprintf("shorthand is reserved for --%s", name))
			}
		}
	}

	switch f.Type {
	case FlagString, FlagBool, FlagInt, FlagPattern:
	case "":
		problems = append(problems, "has no type")
		return problems
	default:
		problems = append(problems, fmt.Sprintf("unknown type %q", f.Type))
		return problems
	}

	if f.Multiple && f.Type != FlagString && f.Type != FlagPattern {
		problems = append(problems, fmt.Sprintf("%s flags cannot be repeated", f.Type))
	}
	if f.Default != nil {
		if err := checkDefault(f); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

func checkDefault(f *Flag) error {
	switch f.Type {
	case FlagBool:
		if _, ok := f.Default.(bool); !ok {
			return fmt.Errorf("default %v is not a bool", f.Default)
		}
	case FlagInt:
		if _, ok := f.Default.(int); !ok {
			return fmt.Errorf("default %v is not an int", f.Default)
		}
	case FlagString, FlagPattern:
		values, ok := defaultStrings(f)
		if !ok {
			return fmt.Errorf("default %v is not a string", f.Default)
		}
		if f.Type != FlagPattern {
			return nil
		}
		for _, v := range values {
			if !doublestar.ValidatePattern(v) {
				return fmt.Errorf("default %q is not a valid pattern", v)
			}
		}
	}
	return nil
}

func defaultStrings(f *Flag) ([]string, bool) {
	switch v := f.Default.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, f.Multiple
	default:
		return nil, false
	}
}
