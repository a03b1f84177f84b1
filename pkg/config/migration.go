package config

import (
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// CurrentVersion is the config document version every migration leads to.
const CurrentVersion = 2

// Migration upgrades an older-shaped config document.
//
// From is a semver constraint matched against the document's "version" (for
// example "< 2"). Apply must be pure and idempotent: applying it to an
// already-migrated document changes nothing.
type Migration struct {
	Name  string
	From  string
	To    int
	Apply func(Object) Object
}

type registeredMigration struct {
	Migration
	from *semver.Constraints
	seq  int
}

// MigrationGapError is returned when no registered migration covers the
// version of a loaded document.
type MigrationGapError struct {
	Version int
	Current int
}

func (e *MigrationGapError) Error() string {
	if e.Version > e.Current {
		return fmt.Sprintf("config version %d is newer than supported version %d", e.Version, e.Current)
	}
	return fmt.Sprintf("no migration from config version %d to version %d", e.Version, e.Current)
}

// AddMigration registers migrations. Migrations for the same source version
// run in registration order.
func (r *Registry) AddMigration(ms ...Migration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range ms {
		if m.Apply == nil {
			return fmt.Errorf("migration %q has no apply function", m.Name)
		}
		if m.To < 1 || m.To > CurrentVersion {
			return fmt.Errorf("migration %q targets unknown version %d", m.Name, m.To)
		}
		c, err := semver.NewConstraint(m.From)
		if err != nil {
			return fmt.Errorf("migration %q has invalid source range %q: %w", m.Name, m.From, err)
		}
		r.migrations = append(r.migrations, &registeredMigration{
			Migration: m,
			from:      c,
			seq:       len(r.migrations),
		})
	}
	return nil
}

// Migrate upgrades obj to CurrentVersion and returns the upgraded copy.
//
// A document without a version is taken to be current. Every migration whose
// source range matches the detected version runs, then the version is bumped
// to the lowest target among them; this repeats until the document is current.
func (r *Registry) Migrate(obj Object) (Object, error) {
	if obj == nil {
		return nil, nil
	}

	out := obj.Clone()
	version, err := detectVersion(out)
	if err != nil {
		return nil, err
	}
	if version > CurrentVersion {
		return nil, &MigrationGapError{Version: version, Current: CurrentVersion}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for version < CurrentVersion {
		v, err := semver.NewVersion(strconv.Itoa(version))
		if err != nil {
			return nil, fmt.Errorf("invalid config version %d: %w", version, err)
		}

		next := 0
		for _, m := range r.migrations {
			if m.To <= version || !m.from.Check(v) {
				continue
			}
			out = m.Apply(out)
			if next == 0 || m.To < next {
				next = m.To
			}
		}
		if next == 0 {
			return nil, &MigrationGapError{Version: version, Current: CurrentVersion}
		}

		version = next
		out["version"] = version
	}

	return out, nil
}

func detectVersion(obj Object) (int, error) {
	raw, ok := obj["version"]
	if !ok || raw == nil {
		return CurrentVersion, nil
	}
	if s, ok := raw.(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid config version %q", s)
		}
		obj["version"] = n
		return n, nil
	}
	n, ok := toInt(raw)
	if !ok || n < 1 {
		return 0, fmt.Errorf("invalid config version %v", raw)
	}
	obj["version"] = n
	return n, nil
}

// Move relocates the value at from to to, unless to is already set. It is the
// building block of most migrations.
func Move(obj Object, from, to string) {
	v, ok := obj.Get(from)
	if !ok {
		return
	}
	obj.Delete(from)
	if !obj.Has(to) {
		obj.Set(to, v)
	}
}
