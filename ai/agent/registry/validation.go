package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// validateArguments checks args against schema and collects every failure
// into one *SchemaValidationError.
func validateArguments(tool string, schema *openapi3.Schema, args map[string]any) *SchemaValidationError {
	err := schema.VisitJSON(args, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	verr := &SchemaValidationError{Tool: tool}
	missing := map[string]struct{}{}
	mistyped := map[string]struct{}{}

	for _, se := range flattenSchemaErrors(err) {
		key := ""
		if path := se.JSONPointer(); len(path) > 0 {
			key = path[0]
		}
		switch {
		case se.SchemaField == "required" && key != "":
			missing[key] = struct{}{}
		case se.SchemaField == "type" && key != "":
			mistyped[key] = struct{}{}
		case key != "":
			verr.Problems = append(verr.Problems, fmt.Sprintf("%s: %s", key, se.Reason))
		default:
			verr.Problems = append(verr.Problems, se.Reason)
		}
	}
	// Non-schema errors (NaN input and the like) still invalidate the call.
	if len(missing) == 0 && len(mistyped) == 0 && len(verr.Problems) == 0 {
		verr.Problems = append(verr.Problems, err.Error())
	}

	verr.Missing = sortedKeys(missing)
	verr.Mistyped = sortedKeys(mistyped)
	return verr
}

func flattenSchemaErrors(err error) []*openapi3.SchemaError {
	switch e := err.(type) {
	case openapi3.MultiError:
		var out []*openapi3.SchemaError
		for _, inner := range e {
			out = append(out, flattenSchemaErrors(inner)...)
		}
		return out
	case *openapi3.SchemaError:
		return []*openapi3.SchemaError{e}
	default:
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			return []*openapi3.SchemaError{se}
		}
		return nil
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// coerceArguments converts top-level scalar values the model commonly gets
// wrong (numbers as strings, strings as numbers) into the declared type.
// The input map is not modified.
func coerceArguments(schema *openapi3.Schema, args map[string]any) map[string]any {
	if schema == nil || len(schema.Properties) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
		ref, ok := schema.Properties[k]
		if !ok || ref == nil || ref.Value == nil || ref.Value.Type == nil {
			continue
		}
		out[k] = coerceValue(ref.Value.Type, v)
	}
	return out
}

func coerceValue(types *openapi3.Types, v any) any {
	switch {
	case types.Is(openapi3.TypeString):
		switch tv := v.(type) {
		case float64:
			return strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(tv)
		}
	case types.Is(openapi3.TypeNumber):
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
	case types.Is(openapi3.TypeInteger):
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return float64(n)
			}
		}
	case types.Is(openapi3.TypeBoolean):
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	}
	return v
}
