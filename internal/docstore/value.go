package docstore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the types a stored field can hold. Code that
// walks documents generically (the session replicator in particular)
// switches on the kind instead of bare type assertions, so adding a kind
// is a single change here plus the switches the compiler flags.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindBytes
	KindMap
	KindList
)

// Value is one stored field with an explicit kind. Exactly one of the
// typed fields is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Str   string
	Num   decimal.Decimal
	Bool  bool
	Time  time.Time
	Bytes []byte
	Map   map[string]Value
	List  []Value
}

// ValueOf classifies a raw document field. Unrecognized Go types are an
// error rather than a silent pass-through, so a new field type added to a
// repository cannot sneak past the generic walkers.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case string:
		return Value{Kind: KindString, Str: val}, nil
	case bool:
		return Value{Kind: KindBool, Bool: val}, nil
	case int:
		return Value{Kind: KindNumber, Num: decimal.NewFromInt(int64(val))}, nil
	case int64:
		return Value{Kind: KindNumber, Num: decimal.NewFromInt(val)}, nil
	case float64:
		return Value{Kind: KindNumber, Num: decimal.NewFromFloat(val)}, nil
	case decimal.Decimal:
		return Value{Kind: KindNumber, Num: val}, nil
	case time.Time:
		return Value{Kind: KindTime, Time: val}, nil
	case []byte:
		return Value{Kind: KindBytes, Bytes: val}, nil
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, inner := range val {
			cv, err := ValueOf(inner)
			if err != nil {
				return Value{}, fmt.Errorf("ValueOf: field %q: %w", k, err)
			}
			m[k] = cv
		}
		return Value{Kind: KindMap, Map: m}, nil
	case Doc:
		return ValueOf(map[string]any(val))
	case []any:
		l := make([]Value, len(val))
		for i, inner := range val {
			cv, err := ValueOf(inner)
			if err != nil {
				return Value{}, fmt.Errorf("ValueOf: index %d: %w", i, err)
			}
			l[i] = cv
		}
		return Value{Kind: KindList, List: l}, nil
	case []string:
		l := make([]Value, len(val))
		for i, s := range val {
			l[i] = Value{Kind: KindString, Str: s}
		}
		return Value{Kind: KindList, List: l}, nil
	default:
		return Value{}, fmt.Errorf("ValueOf: unsupported type %T", v)
	}
}

// Interface converts the value back to its raw document representation.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	case KindBytes:
		return v.Bytes
	case KindMap:
		m := make(map[string]any, len(v.Map))
		for k, inner := range v.Map {
			m[k] = inner.Interface()
		}
		return m
	case KindList:
		l := make([]any, len(v.List))
		for i, inner := range v.List {
			l[i] = inner.Interface()
		}
		return l
	default:
		return nil
	}
}

// MapStrings applies fn to every string in the value tree, including map
// keys' values and list elements, and returns the rewritten value. Non-string
// kinds pass through untouched.
func (v Value) MapStrings(fn func(string) string) Value {
	switch v.Kind {
	case KindString:
		return Value{Kind: KindString, Str: fn(v.Str)}
	case KindMap:
		m := make(map[string]Value, len(v.Map))
		for k, inner := range v.Map {
			m[k] = inner.MapStrings(fn)
		}
		return Value{Kind: KindMap, Map: m}
	case KindList:
		l := make([]Value, len(v.List))
		for i, inner := range v.List {
			l[i] = inner.MapStrings(fn)
		}
		return Value{Kind: KindList, List: l}
	default:
		return v
	}
}
