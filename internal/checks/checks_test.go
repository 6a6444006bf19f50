package checks

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// personSchema accepts name (required by schema) and an optional age with a
// default. age being schema-optional is what the two-phase tests rely on.
func personSchema() *openapi3.Schema {
	age := openapi3.NewIntegerSchema().WithMin(0).WithMax(150)
	age.Default = 18

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"name": openapi3.NewStringSchema().WithMinLength(1).NewRef(),
		"age":  age.NewRef(),
	}
	s.Required = []string{"name"}
	return s
}

func TestRunner_Run_valid(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"name": "x", "age": 30}, personSchema(), nil)
	if !res.OK() {
		t.Fatalf("Run() = %+v, want ok", res)
	}
	if res.Result["name"] != "x" {
		t.Errorf("Result[name] = %v", res.Result["name"])
	}
	if res.Envelope() != nil {
		t.Error("Envelope() should be nil for ok result")
	}
}

func TestRunner_Run_schemaViolation(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"name": "x", "age": -5}, personSchema(), nil)
	if res.Error != OutcomeError {
		t.Fatalf("Error = %q, want %q", res.Error, OutcomeError)
	}
	if len(res.ErrorTrace) == 0 {
		t.Fatal("expected a non-empty error trace")
	}
	if res.Result != nil {
		t.Error("Result must be nil on schema violation")
	}
	if env := res.Envelope(); env == nil || env.Code != "VALIDATION_ERROR" {
		t.Errorf("Envelope() = %+v", env)
	}
}

// A field can be schema-optional (it has a default) yet still required for a
// specific workflow step. Completeness checks raw presence, not the
// defaulted output.
func TestRunner_Run_schemaOptionalButWorkflowRequired(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"name": "x"}, personSchema(), []string{"age"})
	if res.Error != OutcomeIncomplete {
		t.Fatalf("Error = %q, want %q", res.Error, OutcomeIncomplete)
	}
	if len(res.ErrorTrace) != 1 || res.ErrorTrace[0].Field != "age" {
		t.Errorf("ErrorTrace = %+v", res.ErrorTrace)
	}
	if env := res.Envelope(); env == nil || env.Code != "INCOMPLETE" {
		t.Errorf("Envelope() = %+v", env)
	}
}

func TestRunner_Run_structuralBeforeCompleteness(t *testing.T) {
	r := NewRunner()

	// Both phases would fail; the structural failure must win.
	res := r.Run(map[string]any{"name": ""}, personSchema(), []string{"age"})
	if res.Error != OutcomeError {
		t.Fatalf("Error = %q, want structural error first", res.Error)
	}
}

func TestRunner_Run_appliesDefaults(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"name": "x"}, personSchema(), nil)
	if !res.OK() {
		t.Fatalf("Run() = %+v", res)
	}
	if res.Result["age"] != 18 {
		t.Errorf("Result[age] = %v, want default 18", res.Result["age"])
	}
}

func TestRunner_Run_collectsAllMissingFields(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"name": "x"}, personSchema(), []string{"age", "city", "zip"})
	if res.Error != OutcomeIncomplete {
		t.Fatalf("Error = %q", res.Error)
	}
	if len(res.ErrorTrace) != 3 {
		t.Errorf("ErrorTrace has %d entries, want 3", len(res.ErrorTrace))
	}
}

func TestRunner_Run_nilSchema(t *testing.T) {
	r := NewRunner()

	res := r.Run(map[string]any{"anything": true}, nil, nil)
	if !res.OK() {
		t.Fatalf("Run() with nil schema = %+v, want ok", res)
	}
}

func TestRunner_Run_nestedShape(t *testing.T) {
	item := openapi3.NewObjectSchema()
	item.Properties = openapi3.Schemas{
		"sku": openapi3.NewStringSchema().NewRef(),
		"qty": openapi3.NewIntegerSchema().WithMin(1).NewRef(),
	}
	item.Required = []string{"sku", "qty"}

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"items": openapi3.NewArraySchema().WithItems(item).NewRef(),
	}
	s.Required = []string{"items"}

	r := NewRunner()
	res := r.Run(map[string]any{
		"items": []any{map[string]any{"sku": "A-1", "qty": 0}},
	}, s, nil)
	if res.Error != OutcomeError {
		t.Fatalf("Error = %q, want nested qty violation", res.Error)
	}
}
