package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		objs     []Object
		expected Object
	}{
		{
			name:     "later objects win",
			objs:     []Object{{"a": 1}, {"a": 2, "b": 3}, {"b": 4}},
			expected: Object{"a": 2, "b": 4},
		},
		{
			name:     "nil never overrides",
			objs:     []Object{{"a": 1, "b": []any{"x"}}, {"a": nil, "b": []string(nil)}},
			expected: Object{"a": 1, "b": []any{"x"}},
		},
		{
			name: "nested sections merge key by key",
			objs: []Object{
				{"percy": map[string]any{"port": 5338, "host": "localhost"}},
				{"percy": map[string]any{"port": 1234}},
			},
			expected: Object{"percy": map[string]any{"port": 1234, "host": "localhost"}},
		},
		{
			name: "arrays are replaced",
			objs: []Object{
				{"snapshot": map[string]any{"widths": []any{375, 1280}}},
				{"snapshot": map[string]any{"widths": []any{800}}},
			},
			expected: Object{"snapshot": map[string]any{"widths": []any{800}}},
		},
		{
			name:     "nil objects are skipped",
			objs:     []Object{nil, {"a": 1}, nil},
			expected: Object{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Merge(tt.objs...))
		})
	}
}

func TestMerge_DoesNotAliasSources(t *testing.T) {
	src := Object{"percy": map[string]any{"port": 5338}}
	merged := Merge(src)
	merged.Set("percy.port", 1)

	assert.Equal(t, 5338, src.Int("percy.port"))
}

func TestOverlay(t *testing.T) {
	out := Overlay(
		map[string]any{"baseUrl": "/", "include": []string{"*.html"}},
		map[string]any{"baseUrl": nil, "exclude": nil},
		map[string]any{"include": []string{"a.html"}},
	)

	assert.Equal(t, map[string]any{
		"baseUrl": "/",
		"include": []string{"a.html"},
		"exclude": nil,
	}, out)
}
