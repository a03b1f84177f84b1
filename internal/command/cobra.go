package command

import (
	"fmt"
	"strings"

	"github.com/CliForge/percy/pkg/config"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Handler runs a spec for a parsed invocation.
type Handler func(cmd *cobra.Command, spec *Spec, path string, args []string) error

// Build adds the cobra command of every registered spec to root.
func (r *Registry) Build(root *cobra.Command, run Handler) {
	for _, s := range r.Roots() {
		root.AddCommand(buildCommand(s, s.Name, run))
	}
}

func buildCommand(s *Spec, path string, run Handler) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use(s),
		Short: s.Description,
		Args:  cobra.RangeArgs(requiredArgs(s), len(s.Args)),
	}
	if len(s.Examples) > 0 {
		examples := make([]string, len(s.Examples))
		for i, e := range s.Examples {
			examples[i] = "  " + strings.ReplaceAll(e, "$0", "percy "+path)
		}
		cmd.Example = strings.Join(examples, "\n")
	}

	for _, f := range s.Flags {
		addFlag(cmd.Flags(), f)
	}

	if s.Run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			return run(c, s, path, args)
		}
	} else {
		cmd.Args = cobra.NoArgs
	}

	for _, sub := range s.Commands {
		cmd.AddCommand(buildCommand(sub, path+" "+sub.Name, run))
	}
	return cmd
}

func use(s *Spec) string {
	parts := []string{s.Name}
	for _, a := range s.Args {
		if a.Required {
			parts = append(parts, "<"+a.Name+">")
		} else {
			parts = append(parts, "["+a.Name+"]")
		}
	}
	return strings.Join(parts, " ")
}

func requiredArgs(s *Spec) int {
	n := 0
	for _, a := range s.Args {
		if a.Required {
			n++
		}
	}
	return n
}

// addFlag adds a flag to the flag set. Defaults are not given to pflag:
// FlagValues applies them, so that unset flags can be told apart.
func addFlag(fs *pflag.FlagSet, f *Flag) {
	usage := f.Description
	if f.Default != nil {
		usage = fmt.Sprintf("%s (default %v)", usage, f.Default)
	}

	switch {
	case f.Multiple:
		fs.StringArrayP(f.Name, f.Short, nil, usage)
	case f.Type == FlagBool:
		fs.BoolP(f.Name, f.Short, false, usage)
	case f.Type == FlagInt:
		fs.IntP(f.Name, f.Short, 0, usage)
	default:
		fs.StringP(f.Name, f.Short, "", usage)
	}
	if f.Hidden {
		_ = fs.MarkHidden(f.Name)
	}
}

// Flags is what an invocation's flags contribute.
type Flags struct {
	// Values holds every flag of the command by name. Unset flags hold their
	// default, or nil when they have none.
	Values map[string]any
	// Config holds explicitly set flags at their config path.
	Config config.Object
	// Defaults holds the defaults of unset flags at their config path.
	Defaults config.Object
}

// FlagValues reads the flags of s from fs.
func FlagValues(fs *pflag.FlagSet, s *Spec) (*Flags, error) {
	out := &Flags{
		Values:   make(map[string]any, len(s.Flags)),
		Config:   config.Object{},
		Defaults: config.Object{},
	}

	for _, f := range s.Flags {
		if !fs.Changed(f.Name) {
			out.Values[f.Name] = defaultValue(f)
			if f.Config != "" && f.Default != nil {
				out.Defaults.Set(f.Config, defaultValue(f))
			}
			continue
		}

		v, err := flagValue(fs, f)
		if err != nil {
			return nil, err
		}
		out.Values[f.Name] = v
		if f.Config != "" {
			out.Config.Set(f.Config, v)
		}
	}
	return out, nil
}

func flagValue(fs *pflag.FlagSet, f *Flag) (any, error) {
	switch {
	case f.Multiple:
		values, err := fs.GetStringArray(f.Name)
		if err != nil {
			return nil, err
		}
		if f.Type == FlagPattern {
			for _, v := range values {
				if err := checkPattern(f, v); err != nil {
					return nil, err
				}
			}
		}
		return values, nil
	case f.Type == FlagBool:
		return fs.GetBool(f.Name)
	case f.Type == FlagInt:
		return fs.GetInt(f.Name)
	default:
		v, err := fs.GetString(f.Name)
		if err != nil {
			return nil, err
		}
		if f.Type == FlagPattern {
			if err := checkPattern(f, v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

func checkPattern(f *Flag, pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid pattern for --%s: %q", f.Name, pattern)
	}
	return nil
}

func defaultValue(f *Flag) any {
	if f.Default == nil {
		return nil
	}
	if f.Multiple {
		values, _ := defaultStrings(f)
		return append([]string(nil), values...)
	}
	return f.Default
}

// ParseArgs maps positional arguments to their names, running attribute and
// validation functions.
func ParseArgs(s *Spec, args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for i, a := range s.Args {
		if i >= len(args) {
			if a.Required {
				return nil, fmt.Errorf("missing required argument <%s>", a.Name)
			}
			break
		}

		value := args[i]
		if a.Validate != nil {
			if err := a.Validate(value); err != nil {
				return nil, err
			}
		}

		key := a.Name
		if a.Attribute != nil {
			attr, err := a.Attribute(value)
			if err != nil {
				return nil, err
			}
			key = attr
		}
		out[key] = value
	}
	if len(args) > len(s.Args) {
		return nil, fmt.Errorf("unexpected argument %q", args[len(s.Args)])
	}
	return out, nil
}
