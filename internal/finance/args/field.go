package args

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/finengine/internal/finance"
)

// Type is the declared JSON Schema type of a field.
type Type string

const (
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

func (t Type) article() string {
	switch t {
	case TypeInteger, TypeArray, TypeObject:
		return "an " + string(t)
	default:
		return "a " + string(t)
	}
}

// maxControlChars is the number of control characters tolerated in a free
// text argument.
const maxControlChars = 2

// Field declares one argument of a tool. The same declaration drives
// validation and the advertised JSON Schema.
//
// An object field with Record set is a map from caller-chosen labels to
// records of those fields; without Record it is a map of scalars.
type Field struct {
	Name        string
	Description string
	Type        Type
	Required    bool

	Min, Max                   *float64
	ExclusiveMin, ExclusiveMax bool

	Items  *Field  // element declaration of an array
	Record []Field // value declaration of a labelled map

	Enum      []string
	MaxLength int
	Default   any
}

// Number declares a required number.
func Number(name, description string) Field {
	return Field{Name: name, Description: description, Type: TypeNumber, Required: true}
}

// Integer declares a required integer.
func Integer(name, description string) Field {
	return Field{Name: name, Description: description, Type: TypeInteger, Required: true}
}

// Text declares a required non-empty string.
func Text(name, description string) Field {
	return Field{Name: name, Description: description, Type: TypeString, Required: true}
}

// Boolean declares a required boolean.
func Boolean(name, description string) Field {
	return Field{Name: name, Description: description, Type: TypeBoolean, Required: true}
}

// NumberList declares a required non-empty list of numbers, each at least lo.
func NumberList(name, description string, lo float64) Field {
	item := Field{Type: TypeNumber, Required: true}.AtLeast(lo)
	return Field{Name: name, Description: description, Type: TypeArray, Required: true, Items: &item}
}

// LabelledMap declares a required non-empty object mapping labels to records.
func LabelledMap(name, description string, record ...Field) Field {
	return Field{Name: name, Description: description, Type: TypeObject, Required: true, Record: record}
}

// ScalarMap declares a required object mapping keys to strings, numbers or
// booleans.
func ScalarMap(name, description string) Field {
	return Field{Name: name, Description: description, Type: TypeObject, Required: true}
}

// Optional marks the field as not required.
func (f Field) Optional() Field {
	f.Required = false
	return f
}

// WithDefault records the value assumed when the field is omitted.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

// AtLeast sets an inclusive lower bound.
func (f Field) AtLeast(lo float64) Field {
	f.Min, f.ExclusiveMin = &lo, false
	return f
}

// Above sets an exclusive lower bound.
func (f Field) Above(lo float64) Field {
	f.Min, f.ExclusiveMin = &lo, true
	return f
}

// AtMost sets an inclusive upper bound.
func (f Field) AtMost(hi float64) Field {
	f.Max, f.ExclusiveMax = &hi, false
	return f
}

// Range sets inclusive bounds on both sides.
func (f Field) Range(lo, hi float64) Field {
	return f.AtLeast(lo).AtMost(hi)
}

// OneOf restricts a string to the given values.
func (f Field) OneOf(values ...string) Field {
	f.Enum = values
	return f
}

// Limit caps the length of a string in characters.
func (f Field) Limit(n int) Field {
	f.MaxLength = n
	return f
}

// Validate checks b against fields in declaration order and returns an
// invalid-argument error describing the first violation. Arguments that are
// not declared are ignored.
func Validate(fields []Field, b Bag) error {
	for _, f := range fields {
		v, ok := b.Get(f.Name)
		if !ok {
			if f.Required {
				return finance.Invalidf("%s is required", f.Name)
			}
			continue
		}
		if err := f.check(f.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(path string, v Value) error {
	switch f.Type {
	case TypeNumber, TypeInteger:
		return f.checkNumber(path, v)
	case TypeString:
		return f.checkString(path, v)
	case TypeBoolean:
		if v.Kind() != KindBool {
			return f.mismatch(path, v)
		}
		return nil
	case TypeArray:
		return f.checkList(path, v)
	case TypeObject:
		return f.checkMap(path, v)
	}
	return fmt.Errorf("args: field %s has unsupported type %q", path, f.Type)
}

func (f Field) mismatch(path string, v Value) error {
	return finance.Invalidf("%s must be %s, got %s", path, f.Type.article(), v.Kind())
}

func (f Field) checkNumber(path string, v Value) error {
	if v.Kind() != KindNumber {
		return f.mismatch(path, v)
	}
	n := v.Float()
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return finance.Invalidf("%s must be a finite number", path)
	}
	if f.Type == TypeInteger && math.Trunc(n) != n {
		return finance.Invalidf("%s must be an integer", path)
	}
	if f.Min != nil {
		if f.ExclusiveMin && n <= *f.Min {
			return finance.Invalidf("%s must be greater than %g", path, *f.Min)
		}
		if !f.ExclusiveMin && n < *f.Min {
			return finance.Invalidf("%s must be at least %g", path, *f.Min)
		}
	}
	if f.Max != nil {
		if f.ExclusiveMax && n >= *f.Max {
			return finance.Invalidf("%s must be less than %g", path, *f.Max)
		}
		if !f.ExclusiveMax && n > *f.Max {
			return finance.Invalidf("%s must be at most %g", path, *f.Max)
		}
	}
	return nil
}

func (f Field) checkString(path string, v Value) error {
	if v.Kind() != KindString {
		return f.mismatch(path, v)
	}
	s := trim(v.Str())
	if s == "" {
		return finance.Invalidf("%s must be a non-empty string", path)
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
		return finance.Invalidf("%s must be at most %d characters", path, f.MaxLength)
	}
	var controls int
	for _, r := range s {
		if r == 0 {
			return finance.Invalidf("%s must not contain NUL characters", path)
		}
		if unicode.IsControl(r) {
			controls++
		}
	}
	if controls > maxControlChars {
		return finance.Invalidf("%s contains too many control characters", path)
	}
	if len(f.Enum) > 0 {
		for _, e := range f.Enum {
			if s == e {
				return nil
			}
		}
		return finance.Invalidf("%s must be one of %s, got %q", path, strings.Join(f.Enum, ", "), finance.Sanitize(s))
	}
	return nil
}

func (f Field) checkList(path string, v Value) error {
	if v.Kind() != KindList {
		return f.mismatch(path, v)
	}
	items := v.Items()
	if len(items) == 0 {
		return finance.Invalidf("%s must not be empty", path)
	}
	if f.Items == nil {
		return nil
	}
	for i, it := range items {
		if err := f.Items.check(fmt.Sprintf("%s[%d]", path, i), it); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) checkMap(path string, v Value) error {
	if v.Kind() != KindMap {
		return f.mismatch(path, v)
	}
	entries := v.Entries()
	if len(entries) == 0 {
		return finance.Invalidf("%s must not be empty", path)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := path + "." + finance.Sanitize(e.Key)
		if strings.TrimSpace(e.Key) == "" {
			return finance.Invalidf("%s keys must be non-empty", path)
		}
		if _, dup := seen[e.Key]; dup {
			return finance.Invalidf("%s is given more than once", key)
		}
		seen[e.Key] = struct{}{}

		if f.Record == nil {
			switch e.Value.Kind() {
			case KindBool, KindNumber, KindString:
			default:
				return finance.Invalidf("%s must be a string, number or boolean, got %s", key, e.Value.Kind())
			}
			continue
		}
		if e.Value.Kind() != KindMap {
			return finance.Invalidf("%s must be an object, got %s", key, e.Value.Kind())
		}
		for _, rf := range f.Record {
			rv, ok := e.Value.Get(rf.Name)
			if !ok || rv.Kind() == KindNull {
				if rf.Required {
					return finance.Invalidf("%s.%s is required", key, rf.Name)
				}
				continue
			}
			if err := rf.check(key+"."+rf.Name, rv); err != nil {
				return err
			}
		}
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }
