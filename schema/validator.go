// Package schema validates arbitrary JSON values against a types.JSONSchema
// descriptor. It is used by the executor façade for both the input contract
// (before any backend is invoked) and the output contract (after a successful
// run).
//
// The validator is an interpreter over the module's own schema descriptor
// rather than a full JSON Schema implementation; it enforces exactly the
// constraints types.JSONSchema declares.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/BaSui01/codeflow/types"
)

// ValidationError describes one constraint violation at a value path.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks value against schema and returns all violations found.
// A nil schema accepts any value. The returned slice is empty on success.
func Validate(value any, schema *types.JSONSchema) []ValidationError {
	if schema == nil {
		return nil
	}
	var errs []ValidationError
	validate(value, schema, "$", &errs)
	return errs
}

func validate(value any, schema *types.JSONSchema, path string, errs *[]ValidationError) {
	if schema.Const != nil && !equalJSON(value, schema.Const) {
		appendErr(errs, path, "value does not match const")
		return
	}
	if len(schema.Enum) > 0 {
		found := false
		for _, candidate := range schema.Enum {
			if equalJSON(value, candidate) {
				found = true
				break
			}
		}
		if !found {
			appendErr(errs, path, "value not in enum")
			return
		}
	}

	switch schema.Type {
	case "":
		// untyped schema constrains only enum/const
	case types.SchemaTypeNull:
		if value != nil {
			appendErr(errs, path, "expected null")
		}
	case types.SchemaTypeBoolean:
		if _, ok := value.(bool); !ok {
			appendErr(errs, path, "expected boolean")
		}
	case types.SchemaTypeString:
		validateString(value, schema, path, errs)
	case types.SchemaTypeNumber, types.SchemaTypeInteger:
		validateNumber(value, schema, path, errs)
	case types.SchemaTypeObject:
		validateObject(value, schema, path, errs)
	case types.SchemaTypeArray:
		validateArray(value, schema, path, errs)
	default:
		appendErr(errs, path, fmt.Sprintf("unknown schema type %q", schema.Type))
	}
}

func validateString(value any, schema *types.JSONSchema, path string, errs *[]ValidationError) {
	s, ok := value.(string)
	if !ok {
		appendErr(errs, path, "expected string")
		return
	}
	if schema.MinLength != nil && len(s) < *schema.MinLength {
		appendErr(errs, path, fmt.Sprintf("string shorter than minLength %d", *schema.MinLength))
	}
	if schema.MaxLength != nil && len(s) > *schema.MaxLength {
		appendErr(errs, path, fmt.Sprintf("string longer than maxLength %d", *schema.MaxLength))
	}
	if schema.Pattern != "" {
		re, err := regexp.Compile(schema.Pattern)
		if err != nil {
			appendErr(errs, path, fmt.Sprintf("invalid pattern %q", schema.Pattern))
			return
		}
		if !re.MatchString(s) {
			appendErr(errs, path, fmt.Sprintf("string does not match pattern %q", schema.Pattern))
		}
	}
}

func validateNumber(value any, schema *types.JSONSchema, path string, errs *[]ValidationError) {
	n, ok := asNumber(value)
	if !ok {
		appendErr(errs, path, fmt.Sprintf("expected %s", schema.Type))
		return
	}
	if schema.Type == types.SchemaTypeInteger && n != math.Trunc(n) {
		appendErr(errs, path, "expected integer")
		return
	}
	if schema.Minimum != nil && n < *schema.Minimum {
		appendErr(errs, path, fmt.Sprintf("value below minimum %v", *schema.Minimum))
	}
	if schema.Maximum != nil && n > *schema.Maximum {
		appendErr(errs, path, fmt.Sprintf("value above maximum %v", *schema.Maximum))
	}
}

func validateObject(value any, schema *types.JSONSchema, path string, errs *[]ValidationError) {
	obj, ok := value.(map[string]any)
	if !ok {
		appendErr(errs, path, "expected object")
		return
	}
	for _, name := range schema.Required {
		if _, present := obj[name]; !present {
			appendErr(errs, path, fmt.Sprintf("missing required property %q", name))
		}
	}
	for name, prop := range schema.Properties {
		v, present := obj[name]
		if !present {
			continue
		}
		validate(v, prop, path+"."+name, errs)
	}
	if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
		for name := range obj {
			if _, declared := schema.Properties[name]; !declared {
				appendErr(errs, path, fmt.Sprintf("unexpected property %q", name))
			}
		}
	}
}

func validateArray(value any, schema *types.JSONSchema, path string, errs *[]ValidationError) {
	arr, ok := asSlice(value)
	if !ok {
		appendErr(errs, path, "expected array")
		return
	}
	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		appendErr(errs, path, fmt.Sprintf("fewer than minItems %d", *schema.MinItems))
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		appendErr(errs, path, fmt.Sprintf("more than maxItems %d", *schema.MaxItems))
	}
	if schema.Items != nil {
		for i, item := range arr {
			validate(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	}
}

func appendErr(errs *[]ValidationError, path, msg string) {
	*errs = append(*errs, ValidationError{Path: path, Message: msg})
}

// asNumber widens the numeric representations that reach the validator.
// Backend values may be native Go ints (goja exports, test fixtures) or
// float64 (decoded JSON).
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(value any) ([]any, bool) {
	if arr, ok := value.([]any); ok {
		return arr, true
	}
	return nil, false
}

// equalJSON compares two values by their canonical JSON encoding, so 2 and
// 2.0 compare equal and map ordering is irrelevant.
func equalJSON(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
