package catafolk

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

func init() {
	Register("pick", Reducer, OperationFunc(pick))
	Register("first", Reducer, OperationFunc(first))
	Register("last", Variadic, OperationFunc(last))
	Register("rename", Elementwise, OperationFunc(rename))
	Register("default", Elementwise, OperationFunc(defaultValues))
	Register("constant", Elementwise, OperationFunc(constant))
	Register("to_int", Elementwise, OperationFunc(toInt))
	Register("to_float", Elementwise, OperationFunc(toFloat))
	Register("to_string", Elementwise, OperationFunc(toString))
	Register("drop_none", Variadic, OperationFunc(dropNone))
	Register("unique", Variadic, OperationFunc(unique))
}

// pick returns the argument at index. Negative indices count from the end.
func pick(args []Value, p *Params) ([]Value, error) {
	idx, err := p.GetInt("index", 0)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		idx += len(args)
	}
	if idx < 0 || idx >= len(args) {
		return nil, errors.Errorf("pick: index %d out of range for %d inputs", idx, len(args))
	}
	return []Value{args[idx]}, nil
}

func first(args []Value, _ *Params) ([]Value, error) {
	if len(args) == 0 {
		return nil, errors.New("first needs at least one input")
	}
	return args[:1], nil
}

// last returns the last argument, or the last element of every argument if
// the first one is a Sequence.
func last(args []Value, _ *Params) ([]Value, error) {
	if len(args) == 0 {
		return nil, errors.New("last needs at least one input")
	}
	if !nested(args) {
		return args[len(args)-1:], nil
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		if seq := asSeq(arg); len(seq) > 0 {
			out[i] = seq[len(seq)-1]
		}
	}
	return out, nil
}

func rename(args []Value, _ *Params) ([]Value, error) {
	out := make([]Value, len(args))
	copy(out, args)
	return out, nil
}

// defaultValues replaces a null argument by the value at the same position
// in the values parameter.
func defaultValues(args []Value, p *Params) ([]Value, error) {
	list, err := p.GetList("values")
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		if !IsNull(arg) || i >= len(list) {
			out[i] = arg
			continue
		}
		if out[i], err = ValueOf(list[i]); err != nil {
			return nil, errors.Wrapf(err, "default value %d", i)
		}
	}
	return out, nil
}

// constant ignores its inputs and returns value once per input.
func constant(args []Value, p *Params) ([]Value, error) {
	v, err := p.GetValue("value")
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(args))
	for i := range out {
		out[i] = v
	}
	return out, nil
}

// toInt converts strictly: strings must hold a base 10 integer, floats are
// truncated toward zero.
func toInt(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, func(v Value) (Value, error) {
		switch vt := v.(type) {
		case nil:
			return nil, nil
		case I:
			return vt, nil
		case B:
			if vt {
				return I(1), nil
			}
			return I(0), nil
		case F:
			f := float64(vt)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, errors.Errorf("to_int: cannot convert %s to an integer", String(v))
			}
			return I(int64(f)), nil
		case S:
			i, err := strconv.ParseInt(strings.TrimSpace(string(vt)), 10, 64)
			if err != nil {
				return nil, errors.Errorf("to_int: invalid literal %s", repr(v))
			}
			return I(i), nil
		default:
			return nil, errors.Errorf("to_int: cannot convert %s", repr(v))
		}
	})
}

func toFloat(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, func(v Value) (Value, error) {
		if v == nil {
			return nil, nil
		}
		f, err := asFloat(v)
		if err != nil {
			return nil, errors.Wrap(err, "to_float")
		}
		return F(f), nil
	})
}

// asFloat converts a scalar to float64 the way Python's float() does.
func asFloat(v Value) (float64, error) {
	switch vt := v.(type) {
	case I:
		return float64(vt), nil
	case F:
		return float64(vt), nil
	case B:
		if vt {
			return 1, nil
		}
		return 0, nil
	case S:
		s := strings.TrimSpace(string(vt))
		f, err := cast.ToFloat64E(s)
		if err != nil || s == "" {
			return 0, errors.Errorf("could not convert string to float: %s", repr(v))
		}
		return f, nil
	default:
		return 0, errors.Errorf("cannot convert %s to float", repr(v))
	}
}

func toString(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, func(v Value) (Value, error) {
		if v == nil {
			return nil, nil
		}
		return S(String(v)), nil
	})
}

// dropNone removes null arguments, or null elements from every argument if
// the first one is a Sequence.
func dropNone(args []Value, _ *Params) ([]Value, error) {
	keep := func(vals []Value) []Value {
		out := make([]Value, 0, len(vals))
		for _, v := range vals {
			if !IsNull(v) {
				out = append(out, v)
			}
		}
		return out
	}
	if !nested(args) {
		return keep(args), nil
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		out[i] = Sequence(keep(asSeq(arg)))
	}
	return out, nil
}

// unique removes repeated arguments keeping the first occurrence, or does
// so within every argument if the first one is a Sequence.
func unique(args []Value, _ *Params) ([]Value, error) {
	dedupe := func(vals []Value) []Value {
		out := make([]Value, 0, len(vals))
	outer:
		for _, v := range vals {
			for _, seen := range out {
				if Equal(v, seen) {
					continue outer
				}
			}
			out = append(out, v)
		}
		return out
	}
	if !nested(args) {
		return dedupe(args), nil
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		out[i] = Sequence(dedupe(asSeq(arg)))
	}
	return out, nil
}
