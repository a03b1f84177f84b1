package config

import "fmt"

// Sources are the inputs of a resolution, lowest priority first.
type Sources struct {
	// Defaults are built-in values below the schema defaults, typically
	// flag defaults.
	Defaults Object
	// File is the parsed config file, before migration. May be nil.
	File Object
	// Env holds environment overrides.
	Env Object
	// Flags holds values of flags the user set explicitly.
	Flags Object
}

// Resolve migrates the file config, merges every source and validates the
// result.
//
// Priority: Flags > Env > File > schema defaults > Defaults. A nil value in a
// higher-priority source never erases a lower one.
func Resolve(r *Registry, src Sources) (Object, error) {
	file, err := r.Migrate(src.File)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate config: %w", err)
	}

	obj := Merge(src.Defaults, r.Defaults(), file, src.Env, src.Flags)
	if err := r.Validate(obj); err != nil {
		return nil, err
	}
	return obj, nil
}
