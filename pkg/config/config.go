// Package config resolves the configuration a percy command runs with.
//
// Commands contribute schema fragments and migrations to a Registry. Before a
// command runs, the on-disk config file is located and migrated, then merged
// with schema defaults, environment overrides and explicit flags, and the
// result is validated against the combined schema.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// FileNames are the config file names searched for in the working directory,
// in order.
var FileNames = []string{
	".percy.yml",
	".percy.yaml",
	".percy.json",
	"percy.config.yml",
	"percy.config.yaml",
	"percy.config.json",
}

// ErrUnsupportedFiletype is returned for config files that are neither YAML
// nor JSON.
var ErrUnsupportedFiletype = errors.New("unsupported filetype")

// Loader locates and reads the percy config file.
type Loader struct {
	cliName string
	workDir string
	envPath string
}

// NewLoader creates a loader searching workDir. envPath is the value of
// PERCY_CONFIG and may be empty.
func NewLoader(workDir, envPath string) *Loader {
	return &Loader{
		cliName: "percy",
		workDir: workDir,
		envPath: envPath,
	}
}

// Find returns the config file to load. An explicit path wins, then
// PERCY_CONFIG, then the working directory, then the XDG config home. It
// returns "" when no file exists.
func (l *Loader) Find(explicit string) (string, error) {
	for _, p := range []string{explicit, l.envPath} {
		if p == "" {
			continue
		}
		p = l.resolve(p)
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}

	for _, name := range FileNames {
		p := filepath.Join(l.workDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	p := l.UserConfigPath()
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", nil
}

// UserConfigPath returns the XDG-compliant user config file path.
func (l *Loader) UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, l.cliName, "config.yml")
}

// Load finds and reads the config file. It returns a nil object and an empty
// path when there is none.
func (l *Loader) Load(explicit string) (Object, string, error) {
	path, err := l.Find(explicit)
	if err != nil || path == "" {
		return nil, "", err
	}
	obj, err := ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	return obj, path, nil
}

func (l *Loader) resolve(p string) string {
	if filepath.IsAbs(p) || l.workDir == "" {
		return p
	}
	return filepath.Join(l.workDir, p)
}

// ReadFile parses a YAML or JSON config file.
func ReadFile(path string) (Object, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFiletype)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Object(v.AllSettings()), nil
}
