package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestLoader_Find(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	t.Run("no file", func(t *testing.T) {
		path, err := NewLoader(t.TempDir(), "").Find("")
		require.NoError(t, err)
		assert.Empty(t, path)
	})

	t.Run("search order in working directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "percy.config.json", "{}")
		want := writeFile(t, dir, ".percy.yaml", "version: 2\n")

		path, err := NewLoader(dir, "").Find("")
		require.NoError(t, err)
		assert.Equal(t, want, path)
	})

	t.Run("environment path wins over working directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".percy.yml", "version: 2\n")
		want := writeFile(t, dir, "custom.yml", "version: 2\n")

		path, err := NewLoader(dir, "custom.yml").Find("")
		require.NoError(t, err)
		assert.Equal(t, want, path)
	})

	t.Run("explicit path wins over environment", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "custom.yml", "version: 2\n")
		want := writeFile(t, dir, "explicit.yml", "version: 2\n")

		path, err := NewLoader(dir, "custom.yml").Find(want)
		require.NoError(t, err)
		assert.Equal(t, want, path)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := NewLoader(t.TempDir(), "").Find("nope.yml")
		assert.Error(t, err)
	})
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".percy.yml", `version: 2
percy:
  port: 1234
snapshot:
  widths: [375, 1280]
  min-height: 800
`)

	obj, path, err := NewLoader(dir, "").Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".percy.yml"), path)
	assert.Equal(t, 2, obj.Int("version"))
	assert.Equal(t, 1234, obj.Int("percy.port"))
	assert.Equal(t, 800, obj.Int("snapshot.min-height"))
	v, ok := obj.Get("snapshot.widths")
	require.True(t, ok)
	assert.Len(t, v, 2)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		p := writeFile(t, dir, "percy.config.json", `{"version": 2, "percy": {"host": "127.0.0.1"}}`)
		obj, err := ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", obj.String("percy.host"))
	})

	t.Run("unsupported filetype", func(t *testing.T) {
		p := writeFile(t, dir, ".percy.js", "module.exports = {}")
		_, err := ReadFile(p)
		assert.True(t, errors.Is(err, ErrUnsupportedFiletype))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		p := writeFile(t, dir, "broken.yml", "percy: [unclosed\n")
		_, err := ReadFile(p)
		assert.Error(t, err)
	})
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name      string
		environ   map[string]string
		enable    bool
		overrides Object
		wantError bool
	}{
		{
			name:      "defaults",
			environ:   map[string]string{},
			enable:    true,
			overrides: Object{},
		},
		{
			name:      "disabled",
			environ:   map[string]string{"PERCY_ENABLE": "0"},
			enable:    false,
			overrides: Object{},
		},
		{
			name: "server overrides",
			environ: map[string]string{
				"PERCY_SERVER_HOST": "percy.local",
				"PERCY_SERVER_PORT": "1234",
			},
			enable: true,
			overrides: Object{
				"percy": map[string]any{"host": "percy.local", "port": 1234},
			},
		},
		{
			name:      "invalid port",
			environ:   map[string]string{"PERCY_SERVER_PORT": "http"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := LoadEnv(tt.environ)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enable, e.Enable)
			assert.Equal(t, tt.overrides, e.Overrides())
		})
	}
}

func TestStringify(t *testing.T) {
	obj := Object{"version": 2, "percy": map[string]any{"port": 5338}}

	out, err := Stringify("yaml", obj)
	require.NoError(t, err)
	assert.Equal(t, "percy:\n    port: 5338\nversion: 2\n", out)

	out, err = Stringify("json", obj)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"percy\": {\n    \"port\": 5338\n  },\n  \"version\": 2\n}\n", out)

	_, err = Stringify("toml", obj)
	assert.Error(t, err)
}
