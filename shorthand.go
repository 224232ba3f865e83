package catafolk

import (
	"fmt"

	"github.com/pkg/errors"
)

// OperationSpec describes a single node of a Transformer graph.
type OperationSpec struct {
	// Operation is the registry name of the operation. It is ignored if
	// Func is set.
	Operation string
	// Func is used instead of a registry lookup when set.
	Func Operation

	Inputs  []string
	Outputs []string
	Params  *Params

	// Name of the node. Generated from the operation name if empty.
	Name string
}

// ExpandShorthand expands one transformation description into the nodes it
// stands for. The accepted shapes are
//
//	{operation: op, inputs: [...], outputs: [...], params: {...}}
//	[ops, inputs, outputs]
//	[ops, inputs, outputs, params]
//	[constant, output, value]
//	{op: [inputs, outputs, params]}
//	{op: {inputs: [...], outputs: [...], params: {...}}}
//	{operations: [...], inputs: [...], outputs: [...], params: [...]}
//
// where ops, inputs and outputs may be single names or lists, and params is
// one mapping per operation. A list of several operations is a chain: the
// outputs of operation i are named {output}_{i}_{op} for every name in
// outputs and feed operation i+1.
func ExpandShorthand(shorthand interface{}) ([]OperationSpec, error) {
	specs, err := expandShorthand(shorthand)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid shorthand %s", describe(shorthand))
	}
	return specs, nil
}

func expandShorthand(shorthand interface{}) ([]OperationSpec, error) {
	switch sh := shorthand.(type) {
	case OperationSpec:
		return []OperationSpec{sh}, nil
	case *OperationSpec:
		return []OperationSpec{*sh}, nil
	case map[string]interface{}:
		return expandMapping(ParamsFromMap(sh))
	case *Params:
		return expandMapping(sh)
	case []interface{}:
		return expandList(sh)
	default:
		return nil, errors.Errorf("expected a list or a mapping, got %T", shorthand)
	}
}

func expandMapping(sh *Params) ([]OperationSpec, error) {
	if sh.Len() == 1 {
		op := sh.Keys()[0]
		body, _ := sh.Get(op)
		switch bt := body.(type) {
		case []interface{}:
			return expandList(append([]interface{}{op}, bt...))
		case *Params:
			sh = bt.Clone().Set("operation", op)
		case map[string]interface{}:
			sh = ParamsFromMap(bt).Set("operation", op)
		default:
			return nil, errors.Errorf("operation %s: expected a list or a mapping", op)
		}
	}
	if !sh.Has("operations") {
		return expandNode(sh)
	}
	ops, err := names(sh, "operations")
	if err != nil {
		return nil, err
	}
	inputs, err := names(sh, "inputs")
	if err != nil {
		return nil, err
	}
	outputs, err := names(sh, "outputs")
	if err != nil {
		return nil, err
	}
	params, err := paramList(mustGet(sh, "params"), len(ops))
	if err != nil {
		return nil, err
	}
	return chain(ops, inputs, outputs, params)
}

func expandNode(sh *Params) ([]OperationSpec, error) {
	op, err := sh.GetString("operation", "")
	if err != nil {
		return nil, err
	}
	if op == "" {
		return nil, errors.New("missing `operation`")
	}
	inputs, err := names(sh, "inputs")
	if err != nil {
		return nil, err
	}
	outputs, err := names(sh, "outputs")
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("no outputs")
	}
	params, err := sh.GetParams("params")
	if err != nil {
		return nil, err
	}
	name, err := sh.GetString("name", "")
	if err != nil {
		return nil, err
	}
	return []OperationSpec{{Operation: op, Inputs: inputs, Outputs: outputs, Params: params, Name: name}}, nil
}

func expandList(sh []interface{}) ([]OperationSpec, error) {
	if len(sh) == 3 && sh[0] == "constant" {
		out, ok := sh[1].(string)
		if !ok {
			return nil, errors.Errorf("constant output name must be a string, got %v", sh[1])
		}
		return []OperationSpec{{
			Operation: "constant",
			Inputs:    []string{},
			Outputs:   []string{out},
			Params:    NewParams("value", sh[2]),
		}}, nil
	}
	if len(sh) != 3 && len(sh) != 4 {
		return nil, errors.Errorf("expected 3 or 4 elements, got %d", len(sh))
	}
	ops, err := toNames(sh[0])
	if err != nil {
		return nil, errors.Wrap(err, "operations")
	}
	inputs, err := toNames(sh[1])
	if err != nil {
		return nil, errors.Wrap(err, "inputs")
	}
	outputs, err := toNames(sh[2])
	if err != nil {
		return nil, errors.Wrap(err, "outputs")
	}
	var rawParams interface{}
	if len(sh) == 4 {
		rawParams = sh[3]
	}
	params, err := paramList(rawParams, len(ops))
	if err != nil {
		return nil, err
	}
	return chain(ops, inputs, outputs, params)
}

// chain builds one node per operation, generating the names of the values
// passed between consecutive operations.
func chain(ops, inputs, outputs []string, params []*Params) ([]OperationSpec, error) {
	if len(ops) == 0 {
		return nil, errors.New("no operations")
	}
	if len(outputs) == 0 {
		return nil, errors.New("no outputs")
	}
	if len(params) != len(ops) {
		return nil, errors.Errorf("%d operations but %d parameter mappings", len(ops), len(params))
	}
	layers := [][]string{inputs}
	for i, op := range ops[:len(ops)-1] {
		layer := make([]string, len(outputs))
		for j, out := range outputs {
			layer[j] = fmt.Sprintf("%s_%d_%s", out, i, op)
		}
		layers = append(layers, layer)
	}
	layers = append(layers, outputs)

	specs := make([]OperationSpec, len(ops))
	for i, op := range ops {
		specs[i] = OperationSpec{
			Operation: op,
			Inputs:    layers[i],
			Outputs:   layers[i+1],
			Params:    params[i],
		}
	}
	return specs, nil
}

// paramList normalizes the params slot: nil means one empty mapping per
// operation and a single mapping is wrapped in a list.
func paramList(raw interface{}, n int) ([]*Params, error) {
	if raw == nil {
		ret := make([]*Params, n)
		for i := range ret {
			ret[i] = &Params{}
		}
		return ret, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		list = []interface{}{raw}
	}
	ret := make([]*Params, len(list))
	for i, item := range list {
		switch it := item.(type) {
		case nil:
			ret[i] = &Params{}
		case *Params:
			ret[i] = it
		case map[string]interface{}:
			ret[i] = ParamsFromMap(it)
		default:
			return nil, errors.Errorf("params %d: expected a mapping, got %v", i, item)
		}
	}
	return ret, nil
}

func names(sh *Params, key string) ([]string, error) {
	v, _ := sh.Get(key)
	ret, err := toNames(v)
	return ret, errors.Wrap(err, key)
}

// toNames normalizes a single name or a list of names.
func toNames(v interface{}) ([]string, error) {
	switch vt := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		return []string{vt}, nil
	case []string:
		return vt, nil
	case []interface{}:
		ret := make([]string, len(vt))
		for i, item := range vt {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("expected a name at %d, got %v of %[2]T", i, item)
			}
			ret[i] = s
		}
		return ret, nil
	default:
		return nil, errors.Errorf("expected a name or a list of names, got %v of %[1]T", v)
	}
}

func mustGet(p *Params, key string) interface{} {
	v, _ := p.Get(key)
	return v
}

func describe(v interface{}) string {
	switch vt := v.(type) {
	case *Params:
		return vt.String()
	default:
		return fmt.Sprintf("%v", plain(v))
	}
}
