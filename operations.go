package catafolk

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Operation computes output values from positional input values and named
// parameters. The returned slice follows the cardinality rule: one result
// per positional input for elementwise operations, a single result for
// reducers. See Collapse for how results are bound to output names.
type Operation interface {
	Apply(args []Value, params *Params) ([]Value, error)
}

// OperationFunc can be wrapped around a function to make it implement the
// Operation interface. Similar to http.HandlerFunc.
type OperationFunc func(args []Value, params *Params) ([]Value, error)

// Apply implements Operation for OperationFunc.
func (f OperationFunc) Apply(args []Value, params *Params) ([]Value, error) {
	return f(args, params)
}

// Arity describes how the number of outputs of an operation relates to the
// number of inputs. It is checked when a node is added to a Transformer.
type Arity int

const (
	// Variadic operations are not checked.
	Variadic Arity = iota
	// Elementwise operations produce exactly one output per input.
	Elementwise
	// Reducer operations produce exactly one output.
	Reducer
	// Expander operations take exactly one input.
	Expander
)

func (a Arity) String() string {
	switch a {
	case Elementwise:
		return "elementwise"
	case Reducer:
		return "reducer"
	case Expander:
		return "expander"
	default:
		return "variadic"
	}
}

// Warning is returned by an operation together with usable results when
// some input could not be processed. Callers log it and keep the results.
type Warning string

func (w Warning) Error() string { return string(w) }

// IsWarning reports whether err is a Warning.
func IsWarning(err error) bool {
	_, ok := errors.Cause(err).(Warning)
	return ok
}

type registration struct {
	op    Operation
	arity Arity
}

var registry = map[string]registration{}

// Register adds op to the operation library under name. It panics if name
// is already taken.
func Register(name string, arity Arity, op Operation) {
	if _, exists := registry[name]; exists {
		panic("operation registered twice: " + name)
	}
	registry[name] = registration{op: op, arity: arity}
}

// Lookup returns the operation registered under name.
func Lookup(name string) (op Operation, arity Arity, ok bool) {
	reg, ok := registry[name]
	return reg.op, reg.arity, ok
}

// Operations returns the names of all registered operations, sorted.
func Operations() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call applies the named operation and collapses the results. Warnings are
// dropped.
func Call(name string, args []Value, params *Params) (Value, error) {
	op, _, ok := Lookup(name)
	if !ok {
		return nil, errors.Errorf("unknown operation '%s'", name)
	}
	results, err := op.Apply(args, params)
	if err != nil && !IsWarning(err) {
		return nil, errors.Wrap(err, name)
	}
	return Collapse(results), nil
}

// Collapse returns the single result as is and several results as a
// Sequence.
func Collapse(results []Value) Value {
	if len(results) == 1 {
		return results[0]
	}
	seq := make(Sequence, len(results))
	copy(seq, results)
	return seq
}

// mapElementwise applies f to every argument. Sequence arguments are mapped
// element by element so that list-ness of the output mirrors the input.
func mapElementwise(args []Value, f func(Value) (Value, error)) ([]Value, error) {
	out := make([]Value, len(args))
	for i, arg := range args {
		v, err := applyDeep(arg, f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func applyDeep(v Value, f func(Value) (Value, error)) (Value, error) {
	seq, ok := v.(Sequence)
	if !ok {
		return f(v)
	}
	out := make(Sequence, len(seq))
	for i, item := range seq {
		mapped, err := applyDeep(item, f)
		if err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
		out[i] = mapped
	}
	return out, nil
}

// nested reports whether the first argument is a Sequence, which makes
// list-aware operations treat every argument as its own list.
func nested(args []Value) bool {
	if len(args) == 0 {
		return false
	}
	_, ok := args[0].(Sequence)
	return ok
}

func asSeq(v Value) Sequence {
	if seq, ok := v.(Sequence); ok {
		return seq
	}
	if v == nil {
		return Sequence{}
	}
	return Sequence{v}
}

var patterns = struct {
	sync.Mutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

// compilePattern compiles and caches a regular expression. If anchored is
// set the pattern only matches at the start of the input. Patterns use RE2
// syntax, which has no lookarounds or backreferences.
func compilePattern(pattern string, anchored bool) (*regexp.Regexp, error) {
	key := pattern
	if anchored {
		key = "^(?:" + pattern + ")"
	}
	patterns.Lock()
	defer patterns.Unlock()
	if re, ok := patterns.m[key]; ok {
		return re, nil
	}
	re, err := regexp.Compile(key)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling pattern %q (RE2 syntax, lookarounds and backreferences are not supported)", pattern)
	}
	patterns.m[key] = re
	return re, nil
}

// replacementTemplate converts a replacement string using \1 and \g<name>
// group references into regexp.Expand syntax.
func replacementTemplate(repl string) string {
	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '$':
			sb.WriteString("$$")
		case c == '\\' && i+1 < len(repl):
			next := repl[i+1]
			switch {
			case next >= '0' && next <= '9':
				j := i + 1
				for j < len(repl) && j < i+3 && repl[j] >= '0' && repl[j] <= '9' {
					j++
				}
				sb.WriteString("${" + repl[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(repl) && repl[i+2] == '<':
				end := strings.IndexByte(repl[i+3:], '>')
				if end < 0 {
					sb.WriteByte(c)
					continue
				}
				sb.WriteString("${" + repl[i+3:i+3+end] + "}")
				i += 3 + end
			case next == 'n':
				sb.WriteByte('\n')
				i++
			case next == 't':
				sb.WriteByte('\t')
				i++
			case next == '\\':
				sb.WriteByte('\\')
				i++
			default:
				sb.WriteByte(c)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
