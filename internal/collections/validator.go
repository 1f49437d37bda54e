// Package collections implements the dynamic, schema-driven record store
// (spec §4.B): compiling a Collection's []domain.FieldDef into a validator,
// caching that compiled validator per (collection, schema_version), and
// orchestrating record CRUD against internal/repository.
package collections

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/go-playground/validator/v10"
)

// varValidator runs the scalar constraint checks (min/max/min_length/
// max_length) through go-playground/validator's single-variable Var() entry
// point, the only part of that library that can validate a value with no
// backing Go struct. One instance is safe for concurrent use and cheap to
// share package-wide, matching how the teacher shares its own validator.
var varValidator = validator.New()

// compiledSchema is a schema-version-stamped validator for one collection.
// Validation is a discriminated dispatch over FieldDef.Type rather than a
// reflection-based struct validator, since the data being validated is a
// map[string]any with no static Go type: go-playground/validator (the
// teacher's struct-tag validator) has no entry point for that shape, so this
// piece is hand-rolled and documented here rather than forced through it.
type compiledSchema struct {
	version int64
	fields  map[string]domain.FieldDef
	order   []string
}

func compile(c *domain.Collection) (*compiledSchema, error) {
	cs := &compiledSchema{
		version: c.SchemaVersion,
		fields:  make(map[string]domain.FieldDef, len(c.Schema)),
	}
	for _, f := range c.Schema {
		if _, dup := cs.fields[f.Name]; dup {
			return nil, domain.ErrDuplicateFieldName
		}
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return nil, fmt.Errorf("field %q: %w: %v", f.Name, domain.ErrInvalidSchema, err)
			}
		}
		cs.fields[f.Name] = f
		cs.order = append(cs.order, f.Name)
	}
	return cs, nil
}

// Validate checks data against the compiled schema and produces the
// normalized record the spec's `validate(input) -> normalized_record`
// contract calls for: types coerced to their canonical form (a `date`
// string becomes epoch-millis, an integer literal becomes int64), and
// defaults applied for any field absent from a full (non-partial) write.
// Every violation found is returned rather than stopping at the first
// (spec §4.B: reject with a full field-error list).
func (cs *compiledSchema) Validate(data map[string]any, partial bool) (map[string]any, domain.ValidationErrors) {
	var errs domain.ValidationErrors
	out := make(map[string]any, len(data))

	for name, v := range data {
		def, ok := cs.fields[name]
		if !ok {
			errs = append(errs, domain.ValidationError{Field: name, Message: "unknown field"})
			continue
		}
		normalized, msg := normalizeValue(def, v)
		if msg != "" {
			errs = append(errs, domain.ValidationError{Field: name, Message: msg})
			continue
		}
		out[name] = normalized
	}

	if !partial {
		for _, name := range cs.order {
			if _, present := data[name]; present {
				continue
			}
			def := cs.fields[name]
			switch {
			case def.Default != nil:
				out[name] = def.Default
			case def.Required:
				errs = append(errs, domain.ValidationError{Field: name, Message: "required field missing"})
			}
		}
	}

	return out, errs
}

// normalizeValue type-checks v against def and returns its canonical form
// alongside a non-empty message on failure.
func normalizeValue(def domain.FieldDef, v any) (any, string) {
	if v == nil {
		if def.Required {
			return nil, "required field missing"
		}
		return nil, ""
	}

	switch def.Type {
	case domain.FieldString:
		s, ok := v.(string)
		if !ok {
			return nil, "expected string"
		}
		var tags []string
		if def.MinLength != nil {
			tags = append(tags, fmt.Sprintf("min=%d", *def.MinLength))
		}
		if def.MaxLength != nil {
			tags = append(tags, fmt.Sprintf("max=%d", *def.MaxLength))
		}
		if len(tags) > 0 {
			if err := varValidator.Var(s, strings.Join(tags, ",")); err != nil {
				return nil, "outside allowed length range"
			}
		}
		if def.Pattern != "" {
			re := regexp.MustCompile(def.Pattern)
			if !re.MatchString(s) {
				return nil, "does not match required pattern"
			}
		}
		return s, ""
	case domain.FieldNumber, domain.FieldInteger:
		f, ok := asFloat(v)
		if !ok {
			return nil, "expected number"
		}
		if def.Type == domain.FieldInteger && f != float64(int64(f)) {
			return nil, "expected integer"
		}
		var tags []string
		if def.Min != nil {
			tags = append(tags, fmt.Sprintf("gte=%v", *def.Min))
		}
		if def.Max != nil {
			tags = append(tags, fmt.Sprintf("lte=%v", *def.Max))
		}
		if len(tags) > 0 {
			if err := varValidator.Var(f, strings.Join(tags, ",")); err != nil {
				return nil, "outside allowed value range"
			}
		}
		if def.Type == domain.FieldInteger {
			return int64(f), ""
		}
		return f, ""
	case domain.FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, "expected boolean"
		}
		return b, ""
	case domain.FieldArray:
		a, ok := v.([]any)
		if !ok {
			return nil, "expected array"
		}
		return a, ""
	case domain.FieldObject:
		o, ok := v.(map[string]any)
		if !ok {
			return nil, "expected object"
		}
		return o, ""
	case domain.FieldDate:
		s, ok := v.(string)
		if !ok {
			return nil, "expected date string"
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, "expected RFC3339 date string"
		}
		return t.UnixMilli(), ""
	case domain.FieldReference:
		s, ok := v.(string)
		if !ok {
			return nil, "expected reference id string"
		}
		return s, ""
	default:
		return nil, "unknown field type"
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// schemaCache holds the compiled validator per collection, invalidated the
// moment a higher SchemaVersion is observed so concurrent schema edits never
// leave a stale compiled validator in use.
type schemaCache struct {
	mu      sync.RWMutex
	entries map[string]*compiledSchema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{entries: make(map[string]*compiledSchema)}
}

func (c *schemaCache) get(col *domain.Collection) (*compiledSchema, error) {
	c.mu.RLock()
	cached, ok := c.entries[col.Name]
	c.mu.RUnlock()
	if ok && cached.version == col.SchemaVersion {
		return cached, nil
	}

	cs, err := compile(col)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[col.Name] = cs
	c.mu.Unlock()
	return cs, nil
}

func (c *schemaCache) invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
