package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("core", Core()))
	require.NoError(t, reg.AddSchema("test", Schema{
		"test.name":   {Type: TypeString, Required: true},
		"test.format": {Type: TypeString, Enum: []any{"yaml", "json"}},
		"test.ratio":  {Type: TypeNumber, Min: Ptr(0), Max: Ptr(1)},
	}))

	tests := []struct {
		name   string
		obj    Object
		fields []string
	}{
		{
			name: "valid config",
			obj: Object{
				"percy": map[string]any{"port": 5338},
				"test":  map[string]any{"name": "x", "format": "json", "ratio": 0.5},
			},
		},
		{
			name: "required path missing",
			obj:  Object{},
			fields: []string{
				"test.name",
			},
		},
		{
			name: "every violation is reported",
			obj: Object{
				"percy":    map[string]any{"port": 70000, "host": 1},
				"snapshot": map[string]any{"min-height": 5, "widths": []any{}},
				"test":     map[string]any{"name": "x", "format": "toml", "ratio": 2.5},
			},
			fields: []string{
				"percy.host",
				"percy.port",
				"snapshot.min-height",
				"snapshot.widths",
				"test.format",
				"test.ratio",
			},
		},
		{
			name: "non integral number for an integer path",
			obj: Object{
				"percy": map[string]any{"port": 5338.5},
				"test":  map[string]any{"name": "x"},
			},
			fields: []string{"percy.port"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Validate(tt.obj)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
			assert.Equal(t, tt.fields, verrs.Fields())
		})
	}
}

func TestValidator_NormalizesIntegers(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("core", Core()))

	obj := Object{"percy": map[string]any{"port": float64(1234)}}
	require.NoError(t, reg.Validate(obj))

	v, _ := obj.Get("percy.port")
	assert.Equal(t, 1234, v)
}

func TestValidator_RangeOnUnsizedValue(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddSchema("test", Schema{
		"test.flag":  {Type: TypeAny, Min: Ptr(1)},
		"test.items": {Type: TypeAny, Min: Ptr(2)},
	}))

	var err error
	require.NotPanics(t, func() {
		err = reg.Validate(Object{"test": map[string]any{"flag": true, "items": []any{"a"}}})
	})

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, err.Error(), "test.flag: must be a number, received")
	assert.Contains(t, err.Error(), "test.items: must contain at least 2 items")
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "percy.port", Message: "must be <= 65535"},
		{Field: "snapshot.min-height", Message: "must satisfy value >= 10 && value <= 2000"},
	}

	msg := errs.Error()
	assert.True(t, strings.HasPrefix(msg, "invalid config:\n"))
	assert.Contains(t, msg, "  - percy.port: must be <= 65535")
	assert.Contains(t, msg, "  - snapshot.min-height: must satisfy")
	assert.Empty(t, ValidationErrors{}.Error())
}
