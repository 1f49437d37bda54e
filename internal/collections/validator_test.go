package collections

import (
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

func minInt(n int) *int        { return &n }
func minFloat(f float64) *float64 { return &f }

func TestCompile_DuplicateFieldName_ReturnsError(t *testing.T) {
	col := &domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString},
		{Name: "title", Type: domain.FieldNumber},
	}}
	_, err := compile(col)
	if err != domain.ErrDuplicateFieldName {
		t.Fatalf("expected ErrDuplicateFieldName, got %v", err)
	}
}

func TestCompile_InvalidPattern_ReturnsInvalidSchema(t *testing.T) {
	col := &domain.Collection{Schema: []domain.FieldDef{
		{Name: "code", Type: domain.FieldString, Pattern: "("},
	}}
	_, err := compile(col)
	if err == nil {
		t.Fatal("expected an error for an unparseable regex pattern")
	}
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	_, errs := cs.Validate(map[string]any{}, false)
	if len(errs) != 1 || errs[0].Field != "title" {
		t.Fatalf("expected a required-field error, got %v", errs)
	}
}

func TestValidate_PartialPatch_SkipsRequiredCheck(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	_, errs := cs.Validate(map[string]any{}, true)
	if len(errs) != 0 {
		t.Fatalf("expected no errors on a partial patch, got %v", errs)
	}
}

func TestValidate_UnknownField_IsRejected(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	_, errs := cs.Validate(map[string]any{"nope": "value"}, true)
	if len(errs) != 1 || errs[0].Message != "unknown field" {
		t.Fatalf("expected an unknown-field error, got %v", errs)
	}
}

func TestValidate_StringLengthBounds(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, MinLength: minInt(3), MaxLength: minInt(5)},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"title": "ok"}, true); len(errs) != 1 {
		t.Fatalf("expected a too-short error, got %v", errs)
	}
	if _, errs := cs.Validate(map[string]any{"title": "toolong"}, true); len(errs) != 1 {
		t.Fatalf("expected a too-long error, got %v", errs)
	}
	if _, errs := cs.Validate(map[string]any{"title": "fine"}, true); len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
}

func TestValidate_StringPattern(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "code", Type: domain.FieldString, Pattern: `^[A-Z]{3}$`},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"code": "abc"}, true); len(errs) != 1 {
		t.Fatalf("expected a pattern mismatch error, got %v", errs)
	}
	if _, errs := cs.Validate(map[string]any{"code": "ABC"}, true); len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
}

func TestValidate_IntegerRejectsFraction(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "count", Type: domain.FieldInteger},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"count": 3.5}, true); len(errs) != 1 {
		t.Fatalf("expected an integer-type error, got %v", errs)
	}
	normalized, errs := cs.Validate(map[string]any{"count": float64(3)}, true)
	if len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
	if normalized["count"] != int64(3) {
		t.Fatalf("expected count normalized to int64(3), got %v (%T)", normalized["count"], normalized["count"])
	}
}

func TestValidate_NumberRange(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "score", Type: domain.FieldNumber, Min: minFloat(0), Max: minFloat(100)},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"score": float64(150)}, true); len(errs) != 1 {
		t.Fatalf("expected an out-of-range error, got %v", errs)
	}
	if _, errs := cs.Validate(map[string]any{"score": float64(50)}, true); len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
}

func TestValidate_BooleanTypeMismatch(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "active", Type: domain.FieldBoolean},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"active": "yes"}, true); len(errs) != 1 {
		t.Fatalf("expected a type mismatch error, got %v", errs)
	}
}

func TestValidate_DateFieldRequiresRFC3339(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "due", Type: domain.FieldDate},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"due": "not-a-date"}, true); len(errs) != 1 {
		t.Fatalf("expected a date-format error, got %v", errs)
	}
	normalized, errs := cs.Validate(map[string]any{"due": "2030-01-01T12:00:00Z"}, true)
	if len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
	want := int64(1893499200000)
	if normalized["due"] != want {
		t.Fatalf("expected due normalized to epoch-millis %d, got %v", want, normalized["due"])
	}
}

func TestValidate_NilValueOnOptionalField_IsAllowed(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "nickname", Type: domain.FieldString},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, errs := cs.Validate(map[string]any{"nickname": nil}, true); len(errs) != 0 {
		t.Fatalf("expected no error for a nil optional field, got %v", errs)
	}
}

func TestValidate_AppliesDefaultWhenFieldAbsentOnFullWrite(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true},
		{Name: "status", Type: domain.FieldString, Default: "draft"},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	normalized, errs := cs.Validate(map[string]any{"title": "hello"}, false)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if normalized["status"] != "draft" {
		t.Fatalf("expected default %q applied for absent field, got %v", "draft", normalized["status"])
	}
}

func TestValidate_DefaultNotAppliedOnPartialPatch(t *testing.T) {
	cs, err := compile(&domain.Collection{Schema: []domain.FieldDef{
		{Name: "status", Type: domain.FieldString, Default: "draft"},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	normalized, errs := cs.Validate(map[string]any{}, true)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, present := normalized["status"]; present {
		t.Fatalf("expected no default backfilled on a partial patch, got %v", normalized)
	}
}

func TestSchemaCache_InvalidatesOnVersionBump(t *testing.T) {
	cache := newSchemaCache()
	col := &domain.Collection{Name: "notes", SchemaVersion: 1, Schema: []domain.FieldDef{
		{Name: "title", Type: domain.FieldString},
	}}

	first, err := cache.get(col)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	col.SchemaVersion = 2
	col.Schema = append(col.Schema, domain.FieldDef{Name: "body", Type: domain.FieldString})
	second, err := cache.get(col)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if first == second {
		t.Fatal("expected a new compiled schema after a version bump")
	}
	if _, ok := second.fields["body"]; !ok {
		t.Fatal("expected the new field to be present in the recompiled schema")
	}
}
