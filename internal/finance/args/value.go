// Package args turns the raw JSON argument object of a tool call into values
// a calculator can trust.
//
// The argument bag is a read-only view over the caller's JSON. Each value is a
// tagged variant ([Value] with [Kind]) so the validator can report type
// mismatches precisely and never coerces across types: "12" is a string, not
// a number. Object key order is preserved, which is what gives segment maps a
// well-defined input order.
package args

import (
	"bytes"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/finengine/internal/finance"
)

// Kind is the JSON type of a [Value].
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the JSON name of the kind as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "array"
	case KindMap:
		return "object"
	default:
		return "null"
	}
}

// Value is one node of the argument bag.
type Value struct {
	r gjson.Result
}

// Entry is a key of a JSON object together with its value.
type Entry struct {
	Key   string
	Value Value
}

// Kind reports the JSON type of v. A missing value is [KindNull].
func (v Value) Kind() Kind {
	switch v.r.Type {
	case gjson.True, gjson.False:
		return KindBool
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if v.r.IsArray() {
			return KindList
		}
		return KindMap
	default:
		return KindNull
	}
}

// Float returns the numeric value of v, or 0 for non-numbers.
func (v Value) Float() float64 {
	if v.r.Type != gjson.Number {
		return 0
	}
	return v.r.Num
}

// Str returns the string value of v, or "" for non-strings.
func (v Value) Str() string {
	if v.r.Type != gjson.String {
		return ""
	}
	return v.r.Str
}

// Bool returns the boolean value of v, or false for non-booleans.
func (v Value) Bool() bool {
	return v.r.Type == gjson.True
}

// Items returns the elements of a list, or nil for other kinds.
func (v Value) Items() []Value {
	if !v.r.IsArray() {
		return nil
	}
	var out []Value
	v.r.ForEach(func(_, item gjson.Result) bool {
		out = append(out, Value{r: item})
		return true
	})
	return out
}

// Entries returns the members of an object in document order, or nil for
// other kinds. Duplicate keys are returned as they appear.
func (v Value) Entries() []Entry {
	if !v.r.IsObject() {
		return nil
	}
	var out []Entry
	v.r.ForEach(func(key, val gjson.Result) bool {
		out = append(out, Entry{Key: key.Str, Value: Value{r: val}})
		return true
	})
	return out
}

// Get returns the first member of an object named key. Keys are matched
// literally, never as a path expression.
func (v Value) Get(key string) (Value, bool) {
	var (
		found Value
		ok    bool
	)
	if !v.r.IsObject() {
		return found, false
	}
	v.r.ForEach(func(k, val gjson.Result) bool {
		if k.Str == key {
			found, ok = Value{r: val}, true
			return false
		}
		return true
	})
	return found, ok
}

// Scalar returns v as a plain Go value: float64, string or bool. Lists,
// objects and null yield nil.
func (v Value) Scalar() any {
	switch v.Kind() {
	case KindBool, KindNumber, KindString:
		return v.r.Value()
	default:
		return nil
	}
}

// Bag is the argument object of one tool call.
type Bag struct {
	root Value
}

// Parse reads the raw argument document. An absent document, JSON null and
// an empty object all yield an empty bag. Anything other than a JSON object
// is rejected.
func Parse(raw []byte) (Bag, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Bag{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return Bag{}, finance.Invalidf("arguments must be valid JSON")
	}
	root := Value{r: gjson.ParseBytes(raw)}
	switch root.Kind() {
	case KindNull:
		return Bag{}, nil
	case KindMap:
		return Bag{root: root}, nil
	default:
		return Bag{}, finance.Invalidf("arguments must be an object, got %s", root.Kind())
	}
}

// MustParse is like [Parse] but panics on error. It is meant for tests and
// fixed literals.
func MustParse(raw string) Bag {
	b, err := Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	return b
}

// Get returns the named argument. A JSON null counts as absent.
func (b Bag) Get(name string) (Value, bool) {
	v, ok := b.root.Get(name)
	if !ok || v.Kind() == KindNull {
		return Value{}, false
	}
	return v, true
}

// Has reports whether the named argument is present and not null.
func (b Bag) Has(name string) bool {
	_, ok := b.Get(name)
	return ok
}

// The typed getters below assume the bag passed [Validate] for a field list
// that declares the argument; they return zero values otherwise.

// Float returns a number argument.
func (b Bag) Float(name string) float64 {
	v, _ := b.Get(name)
	return v.Float()
}

// OptFloat returns a number argument, or nil when it was omitted.
func (b Bag) OptFloat(name string) *float64 {
	v, ok := b.Get(name)
	if !ok {
		return nil
	}
	f := v.Float()
	return &f
}

// Int returns an integer argument, or def when it was omitted.
func (b Bag) Int(name string, def int) int {
	v, ok := b.Get(name)
	if !ok {
		return def
	}
	return int(v.Float())
}

// Str returns a trimmed string argument, or def when it was omitted.
func (b Bag) Str(name, def string) string {
	v, ok := b.Get(name)
	if !ok {
		return def
	}
	return trim(v.Str())
}

// Bool returns a boolean argument, or def when it was omitted.
func (b Bag) Bool(name string, def bool) bool {
	v, ok := b.Get(name)
	if !ok {
		return def
	}
	return v.Bool()
}

// Floats returns a list of numbers.
func (b Bag) Floats(name string) []float64 {
	v, _ := b.Get(name)
	items := v.Items()
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it.Float()
	}
	return out
}

// Entries returns the members of an object argument in document order.
func (b Bag) Entries(name string) []Entry {
	v, _ := b.Get(name)
	return v.Entries()
}
