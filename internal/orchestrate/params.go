package orchestrate

import (
	"fmt"
	"math"

	"crucible/internal/registry"
)

// ValidateParams checks params against the tool's schema: required fields
// present, values coercible to the declared type, no undeclared names.
// Defaults for absent optional parameters are filled in. All violations are
// collected; the returned map is a fresh copy safe to hand to the handler.
func ValidateParams(d *registry.Descriptor, params map[string]any) (map[string]any, *InvalidParametersError) {
	out := make(map[string]any, len(d.Params))
	var violations []string

	declared := make(map[string]registry.ParamSpec, len(d.Params))
	for _, spec := range d.Params {
		declared[spec.Name] = spec
	}

	for name := range params {
		if _, ok := declared[name]; !ok {
			violations = append(violations, fmt.Sprintf("parameter %q is not declared by tool %s", name, d.Name))
		}
	}

	for _, spec := range d.Params {
		raw, present := params[spec.Name]
		if !present {
			if spec.Required {
				violations = append(violations, fmt.Sprintf("required parameter %q is missing", spec.Name))
				continue
			}
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}
		coerced, err := coerce(raw, spec.Type)
		if err != nil {
			violations = append(violations, fmt.Sprintf("parameter %q: %v", spec.Name, err))
			continue
		}
		out[spec.Name] = coerced
	}

	if len(violations) > 0 {
		return nil, &InvalidParametersError{Tool: d.Name, Violations: violations}
	}
	return out, nil
}

// coerce converts a decoded JSON value to the declared parameter type.
// JSON decoding yields float64 for all numbers, so integer parameters accept
// whole-valued floats.
func coerce(v any, t registry.ParamType) (any, error) {
	switch t {
	case registry.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case registry.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case registry.TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)
	case registry.TypeInteger:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int(n), nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case registry.TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		return m, nil
	case registry.TypeArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
}
