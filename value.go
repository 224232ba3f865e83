package catafolk

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Value is a single datum flowing along a named edge of a Transformer graph.
// A Value is either nil (null), one of the scalar types S, I, F and B, or a
// Sequence of Values.
type Value interface {
	isValue()
}

// S is a string scalar.
type S string

// I is an integer scalar.
type I int64

// F is a floating point scalar.
type F float64

// B is a boolean scalar.
type B bool

// Sequence is an ordered list of values. Operations which receive a Sequence
// where they expect a scalar apply themselves to its elements.
type Sequence []Value

func (S) isValue()        {}
func (I) isValue()        {}
func (F) isValue()        {}
func (B) isValue()        {}
func (Sequence) isValue() {}

// Record maps value names to values. A name which is present with a nil
// Value is resolved to null, which differs from a name which is absent.
type Record map[string]Value

// IsNull reports whether v is null. NaN floats count as null since they are
// what missing numeric cells decode to.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(F); ok {
		return math.IsNaN(float64(f))
	}
	return false
}

// ValueOf converts a decoded configuration literal or a Go scalar into a
// Value.
func ValueOf(x interface{}) (Value, error) {
	switch xt := x.(type) {
	case nil:
		return nil, nil
	case Value:
		return xt, nil
	case string:
		return S(xt), nil
	case []byte:
		return S(xt), nil
	case bool:
		return B(xt), nil
	case int:
		return I(xt), nil
	case int8:
		return I(xt), nil
	case int16:
		return I(xt), nil
	case int32:
		return I(xt), nil
	case int64:
		return I(xt), nil
	case uint:
		return I(xt), nil
	case uint8:
		return I(xt), nil
	case uint16:
		return I(xt), nil
	case uint32:
		return I(xt), nil
	case uint64:
		if xt > math.MaxInt64 {
			return nil, errors.Errorf("%d overflows int64", xt)
		}
		return I(xt), nil
	case float32:
		return F(xt), nil
	case float64:
		return F(xt), nil
	case json.Number:
		if i, err := xt.Int64(); err == nil {
			return I(i), nil
		}
		f, err := xt.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "converting number %s", xt)
		}
		return F(f), nil
	case []string:
		seq := make(Sequence, len(xt))
		for i, s := range xt {
			seq[i] = S(s)
		}
		return seq, nil
	case []interface{}:
		seq := make(Sequence, len(xt))
		for i, item := range xt {
			v, err := ValueOf(item)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			seq[i] = v
		}
		return seq, nil
	default:
		return nil, errors.Errorf("can't convert %v of %[1]T to a value", x)
	}
}

// MustValueOf is like ValueOf but panics on error. It is meant for literals
// in tests and package level tables.
func MustValueOf(x interface{}) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Interface returns the plain Go representation of v: nil, string, int64,
// float64, bool or []interface{}.
func Interface(v Value) interface{} {
	switch vt := v.(type) {
	case S:
		return string(vt)
	case I:
		return int64(vt)
	case F:
		return float64(vt)
	case B:
		return bool(vt)
	case Sequence:
		ret := make([]interface{}, len(vt))
		for i, item := range vt {
			ret[i] = Interface(item)
		}
		return ret
	default:
		return nil
	}
}

// Equal reports whether a and b hold the same value. I and F are compared
// numerically, so I(2) equals F(2).
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch at := a.(type) {
	case Sequence:
		bt, ok := b.(Sequence)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case I:
		switch bt := b.(type) {
		case I:
			return at == bt
		case F:
			return float64(at) == float64(bt)
		}
		return false
	case F:
		switch bt := b.(type) {
		case I:
			return float64(at) == float64(bt)
		case F:
			return at == bt
		}
		return false
	default:
		return reflect.DeepEqual(a, b)
	}
}

// String renders v the way Python's str() renders the equivalent object.
// Index files and string operations rely on this rendering being stable.
func String(v Value) string {
	switch vt := v.(type) {
	case nil:
		return "None"
	case S:
		return string(vt)
	case I:
		return strconv.FormatInt(int64(vt), 10)
	case F:
		return formatFloat(float64(vt))
	case B:
		if vt {
			return "True"
		}
		return "False"
	case Sequence:
		return repr(vt)
	default:
		return ""
	}
}

func repr(v Value) string {
	switch vt := v.(type) {
	case S:
		return "'" + strings.Replace(string(vt), "'", "\\'", -1) + "'"
	case Sequence:
		parts := make([]string, len(vt))
		for i, item := range vt {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return String(v)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
