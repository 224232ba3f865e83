package catafolk

import (
	"fmt"

	"github.com/pkg/errors"
)

// EmptyInput is the reserved value name which always resolves to null. It is
// substituted as the only input of nodes declared without inputs.
const EmptyInput = "_"

// RecordTransformer maps one record to another.
type RecordTransformer interface {
	Transform(rec Record) (Record, error)
}

// RecordTransformerFunc can be wrapped around a function to make it implement
// the RecordTransformer interface. Similar to http.HandlerFunc.
type RecordTransformerFunc func(Record) (Record, error)

// Transform implements RecordTransformer for RecordTransformerFunc.
func (f RecordTransformerFunc) Transform(rec Record) (Record, error) {
	return f(rec)
}

// Transformer is a computation graph of operations over named values. It is
// built once from a list of shorthands, compiled on first use and then
// evaluated once per record. A Transformer is not safe for concurrent use
// while nodes are being added.
type Transformer struct {
	nodes    []*node
	byName   map[string]struct{}
	counters map[string]int
	compiled *graph

	log Logger
}

// TransformerOption is a functional option for NewTransformer.
type TransformerOption func(*Transformer)

// OptTransformerLogger sets the logger which receives warnings raised while
// evaluating records.
func OptTransformerLogger(l Logger) TransformerOption {
	return func(t *Transformer) {
		t.log = l
	}
}

// NewTransformer expands every shorthand and adds the resulting nodes. See
// ExpandShorthand for the accepted shapes.
func NewTransformer(shorthands []interface{}, opts ...TransformerOption) (*Transformer, error) {
	t := &Transformer{
		byName:   make(map[string]struct{}),
		counters: make(map[string]int),
		log:      NopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	for i, sh := range shorthands {
		if err := t.AddShorthand(sh); err != nil {
			return nil, errors.Wrapf(err, "transformation %d", i)
		}
	}
	return t, nil
}

// AddShorthand expands sh and adds the resulting nodes.
func (t *Transformer) AddShorthand(sh interface{}) error {
	specs, err := ExpandShorthand(sh)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := t.Add(spec); err != nil {
			return errors.Wrapf(err, "in shorthand %s", describe(sh))
		}
	}
	return nil
}

// Add adds a single node. The operation is looked up in the registry unless
// spec.Func is set, and the node's inputs and outputs are checked against
// the operation's arity. Nodes without a name are named after their
// operation and a counter.
func (t *Transformer) Add(spec OperationSpec) error {
	op, arity, opName := spec.Func, Variadic, spec.Operation
	if op == nil {
		var ok bool
		if op, arity, ok = Lookup(spec.Operation); !ok {
			return errors.Errorf("unknown operation '%s'", spec.Operation)
		}
	} else if opName == "" {
		opName = "func"
	}
	if t.counters == nil {
		t.counters = make(map[string]int)
		t.byName = make(map[string]struct{})
	}
	if t.log == nil {
		t.log = NopLogger{}
	}

	inputs := append([]string(nil), spec.Inputs...)
	if len(inputs) == 0 {
		inputs = []string{EmptyInput}
	}
	outputs := append([]string(nil), spec.Outputs...)
	if len(outputs) == 0 {
		return errors.Errorf("operation '%s' declares no outputs", opName)
	}
	switch arity {
	case Elementwise:
		if len(inputs) != len(outputs) {
			return errors.Errorf("elementwise operation '%s' needs as many outputs as inputs, got %d inputs %v and %d outputs %v",
				opName, len(inputs), inputs, len(outputs), outputs)
		}
	case Reducer:
		if len(outputs) != 1 {
			return errors.Errorf("operation '%s' has a single output, got %v", opName, outputs)
		}
	case Expander:
		if len(inputs) != 1 {
			return errors.Errorf("operation '%s' takes a single input, got %v", opName, inputs)
		}
	}

	name := spec.Name
	if name == "" {
		t.counters[opName]++
		name = fmt.Sprintf("%s_%d", opName, t.counters[opName])
	}
	if _, exists := t.byName[name]; exists {
		return errors.Errorf("duplicate node name '%s'", name)
	}
	params := spec.Params
	if params == nil {
		params = &Params{}
	}

	t.byName[name] = struct{}{}
	t.nodes = append(t.nodes, &node{
		name:    name,
		opName:  opName,
		op:      op,
		inputs:  inputs,
		outputs: outputs,
		params:  params,
	})
	t.compiled = nil
	return nil
}

// Len returns the number of nodes.
func (t *Transformer) Len() int {
	return len(t.nodes)
}

// Compile builds the graph if it has not been built since the last Add. It
// fails if two nodes produce the same value or if the graph has a cycle.
func (t *Transformer) Compile() error {
	if t.compiled != nil {
		return nil
	}
	g, err := compileGraph(t.nodes)
	if err != nil {
		return errors.Wrap(err, "compiling transformer")
	}
	t.compiled = g
	return nil
}

// Roots returns the value names without a producer that are consumed by
// exactly one node.
func (t *Transformer) Roots() ([]string, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return append([]string(nil), t.compiled.roots...), nil
}

// Inputs returns all value names without a producer, excluding EmptyInput.
// These are the names an input record should provide.
func (t *Transformer) Inputs() ([]string, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return append([]string(nil), t.compiled.inputs...), nil
}

// Leaves returns the value names which are produced but never consumed.
func (t *Transformer) Leaves() ([]string, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return append([]string(nil), t.compiled.leaves...), nil
}

// Values returns every value name in the graph in order of appearance.
func (t *Transformer) Values() ([]string, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return append([]string(nil), t.compiled.names...), nil
}

// Nodes returns the node names in the order they were added.
func (t *Transformer) Nodes() []string {
	names := make([]string, len(t.nodes))
	for i, n := range t.nodes {
		names[i] = n.name
	}
	return names
}

// Outputs returns the value names produced by nodes, in node order.
func (t *Transformer) Outputs() []string {
	var names []string
	for _, n := range t.nodes {
		names = append(names, n.outputs...)
	}
	return names
}

// Evaluate runs every node over inputs in dependency order. A node whose
// inputs can't all be resolved produces nulls. Warnings from operations are
// logged; any other operation error aborts the evaluation.
//
// If outputsOnly is set the result holds exactly the leaves, null when
// unresolved. Otherwise it holds every resolved value name, inputs
// included.
func (t *Transformer) Evaluate(inputs Record, outputsOnly bool) (Record, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	g := t.compiled
	vals := make(Record, len(inputs)+len(g.names))
	for k, v := range inputs {
		vals[k] = v
	}
	vals[EmptyInput] = nil

	for _, i := range g.order {
		n := g.nodes[i]
		args := make([]Value, len(n.inputs))
		resolved := true
		for j, in := range n.inputs {
			v, ok := vals[in]
			if !ok {
				t.log.Debugf("%s: input '%s' unresolved, setting %v to null", n.name, in, n.outputs)
				resolved = false
				break
			}
			args[j] = v
		}
		if !resolved {
			for _, out := range n.outputs {
				vals[out] = nil
			}
			continue
		}
		results, err := n.op.Apply(args, n.params)
		if err != nil {
			if !IsWarning(err) {
				return nil, errors.Wrapf(err, "node %s", n.name)
			}
			t.log.Warnf("node %s: %v", n.name, err)
		}
		if err := bind(n, results, vals); err != nil {
			t.log.Warnf("node %s: %v", n.name, err)
		}
	}

	if outputsOnly {
		out := make(Record, len(g.leaves))
		for _, leaf := range g.leaves {
			out[leaf] = vals[leaf]
		}
		return out, nil
	}
	delete(vals, EmptyInput)
	return vals, nil
}

// Transform implements RecordTransformer, returning only the leaves.
func (t *Transformer) Transform(rec Record) (Record, error) {
	return t.Evaluate(rec, true)
}

// bind assigns the results of n to its outputs. A single output gets the
// collapsed results; several outputs take the elements of a Sequence in
// order, with missing ones set to null.
func bind(n *node, results []Value, vals Record) error {
	if results == nil {
		for _, out := range n.outputs {
			vals[out] = nil
		}
		return nil
	}
	v := Collapse(results)
	if len(n.outputs) == 1 {
		vals[n.outputs[0]] = v
		return nil
	}
	seq, ok := v.(Sequence)
	if !ok {
		for _, out := range n.outputs {
			vals[out] = nil
		}
		return Warning(fmt.Sprintf("got %s for %d outputs, setting them to null", repr(v), len(n.outputs)))
	}
	for j, out := range n.outputs {
		if j < len(seq) {
			vals[out] = seq[j]
		} else {
			vals[out] = nil
		}
	}
	if len(seq) != len(n.outputs) {
		return Warning(fmt.Sprintf("got %d values for %d outputs %v", len(seq), len(n.outputs), n.outputs))
	}
	return nil
}
