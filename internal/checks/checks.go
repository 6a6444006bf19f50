// Package checks implements the two-phase validation protocol used by action
// submits: structural validation against an explicit schema, then a raw
// completeness check against workflow-required field names.
package checks

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tixgate/actionset/model"
)

// Outcome values for Result.Error.
const (
	OutcomeOK         = ""
	OutcomeError      = "error"
	OutcomeIncomplete = "incomplete"
)

// Result is the discriminated outcome of a Run call. Exactly one of Result
// and the error fields is populated.
type Result struct {
	Error      string             `json:"error,omitempty"`
	ErrorTrace []model.FieldError `json:"error_trace,omitempty"`
	Result     map[string]any     `json:"result,omitempty"`
}

// OK returns true if validation passed both phases.
func (r Result) OK() bool {
	return r.Error == OutcomeOK
}

// Envelope converts a failed Result into the matching error envelope, or nil
// if the result is OK.
func (r Result) Envelope() *model.ErrorEnvelope {
	switch r.Error {
	case OutcomeError:
		return model.NewValidationError(r.ErrorTrace)
	case OutcomeIncomplete:
		return model.NewIncompleteError(r.ErrorTrace)
	default:
		return nil
	}
}

// Runner validates caller-submitted data. It is stateless and safe for
// concurrent use.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run validates data in two phases.
//
// Phase one validates data against the schema (types, ranges, enums, nested
// shapes). Phase two checks that each name in required is present as a key
// on the raw input. The two phases intentionally read different sources of
// truth: a field may carry a schema default and still be required for this
// specific workflow step, so completeness looks at raw presence, never at
// the defaulted output.
func (r *Runner) Run(data map[string]any, schema *openapi3.Schema, required []string) Result {
	if schema != nil {
		if err := schema.VisitJSON(toJSONValue(data), openapi3.MultiErrors()); err != nil {
			return Result{
				Error:      OutcomeError,
				ErrorTrace: traceFromSchemaError(err),
			}
		}
	}

	var missing []model.FieldError
	for _, name := range required {
		if _, present := data[name]; !present {
			missing = append(missing, model.FieldError{
				Field:   name,
				Code:    "REQUIRED",
				Message: fmt.Sprintf("field %q is required", name),
			})
		}
	}
	if len(missing) > 0 {
		return Result{
			Error:      OutcomeIncomplete,
			ErrorTrace: missing,
		}
	}

	return Result{Result: applyDefaults(data, schema)}
}

// applyDefaults returns a copy of data with top-level schema defaults filled
// in for absent properties. The raw input is never mutated.
func applyDefaults(data map[string]any, schema *openapi3.Schema) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	if schema == nil {
		return out
	}
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		if _, present := out[name]; !present && ref.Value.Default != nil {
			out[name] = ref.Value.Default
		}
	}
	return out
}

// traceFromSchemaError flattens kin-openapi validation errors into field
// errors, one per violation.
func traceFromSchemaError(err error) []model.FieldError {
	var trace []model.FieldError

	var collect func(error)
	collect = func(e error) {
		switch v := e.(type) {
		case openapi3.MultiError:
			for _, sub := range v {
				collect(sub)
			}
		case *openapi3.SchemaError:
			trace = append(trace, model.FieldError{
				Field:   strings.Join(v.JSONPointer(), "."),
				Code:    "SCHEMA",
				Message: v.Reason,
			})
		default:
			trace = append(trace, model.FieldError{
				Code:    "SCHEMA",
				Message: e.Error(),
			})
		}
	}
	collect(err)

	return trace
}

// toJSONValue normalizes the input map so kin-openapi sees the same value
// shapes a JSON decode would produce. Integers submitted as Go ints become
// float64.
func toJSONValue(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case map[string]any:
		return toJSONValue(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
