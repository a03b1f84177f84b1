package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Fields returns the paths that failed validation, in report order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validator checks a document against the combined schema of a registry.
type Validator struct {
	registry *Registry
	errors   ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator(r *Registry) *Validator {
	return &Validator{
		registry: r,
		errors:   make(ValidationErrors, 0),
	}
}

// Validate checks obj against the schema and reports every violation at once.
// Integral numbers decoded as floats are normalized to ints in place for
// integer paths.
func (v *Validator) Validate(obj Object) error {
	v.errors = make(ValidationErrors, 0)

	v.registry.mu.RLock()
	defer v.registry.mu.RUnlock()

	for _, path := range sortedPaths(v.registry.schema) {
		v.validatePath(obj, path, v.registry.schema[path])
	}

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Validate is a shorthand for NewValidator(r).Validate(obj).
func (r *Registry) Validate(obj Object) error {
	return NewValidator(r).Validate(obj)
}

func (v *Validator) validatePath(obj Object, path string, c Constraint) {
	value, ok := obj.Get(path)
	if !ok || isNil(value) {
		if c.Required {
			v.addError(path, "is required")
		}
		return
	}

	if c.Type == TypeInt {
		if n, ok := toInt(value); ok {
			value = n
			obj.Set(path, n)
		}
	}

	if !v.checkType(path, c.Type, value) {
		return
	}

	if len(c.Enum) > 0 && !containsValue(c.Enum, value) {
		v.addError(path, fmt.Sprintf("must be one of: %s", joinValues(c.Enum)))
	}

	if c.Min != nil || c.Max != nil {
		v.checkRange(path, c, value)
	}

	if program, ok := v.registry.programs[path]; ok {
		out, err := expr.Run(program, map[string]any{"value": value})
		if err != nil {
			v.addError(path, fmt.Sprintf("failed to evaluate %q: %v", c.Expr, err))
		} else if pass, _ := out.(bool); !pass {
			v.addError(path, fmt.Sprintf("must satisfy %s", c.Expr))
		}
	}
}

func (v *Validator) checkType(path string, t Type, value any) bool {
	ok := true
	switch t {
	case TypeString:
		_, ok = value.(string)
	case TypeBool:
		_, ok = value.(bool)
	case TypeInt:
		_, ok = toInt(value)
	case TypeNumber:
		_, ok = toFloat(value)
	case TypeArray:
		kind := reflect.TypeOf(value).Kind()
		ok = kind == reflect.Slice || kind == reflect.Array
	case TypeObject:
		_, ok = asMap(value)
	}
	if !ok {
		v.addError(path, fmt.Sprintf("must be %s, received %s", article(t), describe(value)))
	}
	return ok
}

func (v *Validator) checkRange(path string, c Constraint, value any) {
	n, ok := toFloat(value)
	if !ok {
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		default:
			v.addError(path, fmt.Sprintf("must be a number, received %s", describe(value)))
			return
		}
		n = float64(rv.Len())
		if c.Min != nil && n < *c.Min {
			v.addError(path, fmt.Sprintf("must contain at least %v items", *c.Min))
		}
		if c.Max != nil && n > *c.Max {
			v.addError(path, fmt.Sprintf("must contain at most %v items", *c.Max))
		}
		return
	}
	if c.Min != nil && n < *c.Min {
		v.addError(path, fmt.Sprintf("must be >= %v", *c.Min))
	}
	if c.Max != nil && n > *c.Max {
		v.addError(path, fmt.Sprintf("must be <= %v", *c.Max))
	}
}

// Helper methods

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

func containsValue(enum []any, value any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, value) {
			return true
		}
		if a, ok := toFloat(e); ok {
			if b, ok := toFloat(value); ok && a == b {
				return true
			}
		}
	}
	return false
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

func article(t Type) string {
	switch t {
	case TypeInt, TypeArray, TypeObject:
		return "an " + string(t)
	default:
		return "a " + string(t)
	}
}

func describe(value any) string {
	switch value.(type) {
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case []any, []string:
		return "an array"
	}
	if _, ok := toFloat(value); ok {
		return "a number"
	}
	if _, ok := asMap(value); ok {
		return "an object"
	}
	return fmt.Sprintf("%T", value)
}
