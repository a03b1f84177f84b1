package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Priority(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddSchema("test", Schema{
		"a": {Type: TypeInt},
		"b": {Type: TypeInt},
	}))

	obj, err := Resolve(reg, Sources{
		Defaults: Object{"a": 1},
		File:     Object{"a": 2, "b": 3},
		Flags:    Object{"b": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{"a": 2, "b": 4}, obj)
}

func TestResolve_Sources(t *testing.T) {
	reg := newCoreRegistry(t)

	tests := []struct {
		name     string
		src      Sources
		wantPort int
		wantHost string
	}{
		{
			name:     "schema defaults",
			src:      Sources{},
			wantPort: 5338,
			wantHost: "localhost",
		},
		{
			name: "file overrides defaults",
			src: Sources{
				File: Object{"percy": map[string]any{"port": float64(1111)}},
			},
			wantPort: 1111,
			wantHost: "localhost",
		},
		{
			name: "env overrides file",
			src: Sources{
				File: Object{"percy": map[string]any{"port": 1111}},
				Env:  Object{"percy": map[string]any{"port": 2222, "host": "percy.local"}},
			},
			wantPort: 2222,
			wantHost: "percy.local",
		},
		{
			name: "flags override env",
			src: Sources{
				File:  Object{"percy": map[string]any{"port": 1111}},
				Env:   Object{"percy": map[string]any{"port": 2222}},
				Flags: Object{"percy": map[string]any{"port": 3333}},
			},
			wantPort: 3333,
			wantHost: "localhost",
		},
		{
			name: "nil flags never erase",
			src: Sources{
				File:  Object{"percy": map[string]any{"port": 1111}},
				Flags: Object{"percy": map[string]any{"port": nil}},
			},
			wantPort: 1111,
			wantHost: "localhost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Resolve(reg, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, obj.Int("percy.port"))
			assert.Equal(t, tt.wantHost, obj.String("percy.host"))
		})
	}
}

func TestResolve_MigratesFile(t *testing.T) {
	obj, err := Resolve(newCoreRegistry(t), Sources{
		File: Object{
			"version": 1,
			"agent": map[string]any{
				"asset-discovery": map[string]any{"network-idle-timeout": 200},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, obj.Int("discovery.network-idle-timeout"))
	assert.Equal(t, 2, obj.Int("version"))
	assert.False(t, obj.Has("agent"))
}

func TestResolve_Errors(t *testing.T) {
	reg := newCoreRegistry(t)

	_, err := Resolve(reg, Sources{File: Object{"version": 5}})
	var gap *MigrationGapError
	assert.True(t, errors.As(err, &gap))

	_, err = Resolve(reg, Sources{Flags: Object{"percy": map[string]any{"port": 0}}})
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"percy.port"}, verrs.Fields())
}
