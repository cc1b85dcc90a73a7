// pkg/model/value.go
package model

import (
	"fmt"
	"strconv"
)

// Kind is the logical type of a field
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsNumeric reports whether values of this kind feed the model as-is
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat || k == KindBool
}

// Value is a single cell of a record. A missing value keeps its kind so that
// a column stays typed even when some rows are empty.
type Value struct {
	Kind    Kind
	Str     string
	Num     float64
	Bool    bool
	Missing bool
}

// Text returns a categorical text value
func Text(s string) Value {
	return Value{Kind: KindText, Str: s}
}

// Int returns an integer value
func Int(i int64) Value {
	return Value{Kind: KindInt, Num: float64(i)}
}

// Float returns a floating-point value
func Float(f float64) Value {
	return Value{Kind: KindFloat, Num: f}
}

// Bool returns a boolean value
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Missing returns the missing sentinel for a kind
func Missing(kind Kind) Value {
	return Value{Kind: kind, Missing: true}
}

// Float64 returns the numeric view of the value. Booleans map to 0/1, text
// and missing values report ok=false.
func (v Value) Float64() (float64, bool) {
	if v.Missing {
		return 0, false
	}
	switch v.Kind {
	case KindInt, KindFloat:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String renders the value the way it would appear in a CSV cell
func (v Value) String() string {
	if v.Missing {
		return ""
	}
	switch v.Kind {
	case KindText:
		return v.Str
	case KindInt:
		return strconv.FormatInt(int64(v.Num), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}
