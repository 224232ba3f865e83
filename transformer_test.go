package catafolk

import (
	"strings"
	"testing"

	"github.com/catafolk/catafolk/test"
	"github.com/google/go-cmp/cmp"
)

func mustTransformer(t *testing.T, shorthands ...interface{}) *Transformer {
	t.Helper()
	tr, err := NewTransformer(shorthands)
	if err != nil {
		t.Fatalf("building transformer: %v", err)
	}
	return tr
}

func mustEvaluate(t *testing.T, tr *Transformer, in Record, outputsOnly bool) Record {
	t.Helper()
	out, err := tr.Evaluate(in, outputsOnly)
	if err != nil {
		t.Fatalf("evaluating %v: %v", in, err)
	}
	return out
}

var recordCmp = cmp.Comparer(Equal)

func mustRecord(t *testing.T, got, want Record) {
	t.Helper()
	if diff := cmp.Diff(want, got, recordCmp); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformerRename(t *testing.T) {
	tr := mustTransformer(t, OperationSpec{Operation: "rename", Inputs: []string{"a1", "b1"}, Outputs: []string{"a2", "b2"}})
	out := mustEvaluate(t, tr, Record{"a1": I(2), "b1": I(4)}, true)
	mustRecord(t, out, Record{"a2": I(2), "b2": I(4)})
}

func TestTransformerOperations(t *testing.T) {
	tests := []struct {
		name string
		sh   []interface{}
		in   Record
		exp  Record
	}{
		{
			name: "join",
			sh:   []interface{}{"join", []interface{}{"a", "b", "c"}, "combined", NewParams("sep", "-")},
			in:   Record{"a": S("A"), "b": S("B"), "c": S("C")},
			exp:  Record{"combined": S("A-B-C")},
		},
		{
			name: "join ints",
			sh:   []interface{}{"join", []interface{}{"a", "b", "c"}, "combined"},
			in:   Record{"a": I(1), "b": I(2), "c": I(3)},
			exp:  Record{"combined": S("123")},
		},
		{
			name: "extract all groups",
			sh:   []interface{}{"extract_groups", "input", []interface{}{"g0", "g1", "g2"}, NewParams("pattern", `(.+)-(.+)`)},
			in:   Record{"input": S("foo-bar")},
			exp:  Record{"g0": S("foo-bar"), "g1": S("foo"), "g2": S("bar")},
		},
		{
			name: "extract groups no match",
			sh:   []interface{}{"extract_groups", "input", []interface{}{"g1", "g2"}, NewParams("pattern", `(.+)-(.+)`, "groups", []interface{}{1, 2})},
			in:   Record{"input": S("foobar")},
			exp:  Record{"g1": nil, "g2": nil},
		},
		{
			name: "default",
			sh:   []interface{}{"default", []interface{}{"in1", "in2"}, []interface{}{"out1", "out2"}, NewParams("values", []interface{}{"d1", "d2"})},
			in:   Record{"in1": S("orig"), "in2": nil},
			exp:  Record{"out1": S("orig"), "out2": S("d2")},
		},
		{
			name: "format",
			sh:   []interface{}{"format", []interface{}{"input1", "input2"}, "output", NewParams("pattern", "{}-{}")},
			in:   Record{"input1": S("foo"), "input2": S("bar")},
			exp:  Record{"output": S("foo-bar")},
		},
		{
			name: "split into outputs",
			sh:   []interface{}{"split", "name", []interface{}{"first", "last"}, NewParams("sep", " ")},
			in:   Record{"name": S("Francis Child")},
			exp:  Record{"first": S("Francis"), "last": S("Child")},
		},
		{
			name: "split into one output",
			sh:   []interface{}{"split", "name", "parts", NewParams("sep", " ")},
			in:   Record{"name": S("Francis Child")},
			exp:  Record{"parts": Sequence{S("Francis"), S("Child")}},
		},
		{
			name: "chain",
			sh:   []interface{}{[]interface{}{"lowercase", "titlecase"}, "title", "title_clean"},
			in:   Record{"title": S("THE TWA SISTERS")},
			exp:  Record{"title_clean": S("The Twa Sisters")},
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			tr := mustTransformer(t, tst.sh)
			mustRecord(t, mustEvaluate(t, tr, tst.in, true), tst.exp)
		})
	}
}

func TestTransformerConstant(t *testing.T) {
	tr := mustTransformer(t,
		[]interface{}{"constant", "country", "Scotland"},
		[]interface{}{"join", []interface{}{"region", "country"}, "location", NewParams("sep", ", ")},
	)
	out := mustEvaluate(t, tr, Record{"region": S("Aberdeenshire")}, true)
	mustRecord(t, out, Record{"location": S("Aberdeenshire, Scotland")})

	// the reserved empty input never appears in results
	all := mustEvaluate(t, tr, Record{"region": S("Fife")}, false)
	if _, ok := all[EmptyInput]; ok {
		t.Fatalf("empty input leaked into %v", all)
	}
	mustRecord(t, all, Record{"region": S("Fife"), "country": S("Scotland"), "location": S("Fife, Scotland")})
}

func TestTransformerMissingInput(t *testing.T) {
	tr := mustTransformer(t,
		[]interface{}{"lowercase", "a", "b"},
		[]interface{}{"uppercase", "b", "c"},
		[]interface{}{"rename", "x", "y"},
	)
	out := mustEvaluate(t, tr, Record{"x": S("kept")}, true)
	mustRecord(t, out, Record{"c": nil, "y": S("kept")})
}

func TestTransformerRowError(t *testing.T) {
	tr := mustTransformer(t, []interface{}{"to_int", "a", "b"})
	if _, err := tr.Evaluate(Record{"a": S("x")}, true); err == nil {
		t.Fatal("expected to_int to abort the row")
	}
	out := mustEvaluate(t, tr, Record{"a": S("7")}, true)
	mustRecord(t, out, Record{"b": I(7)})
}

func TestTransformerGraphQueries(t *testing.T) {
	tr := mustTransformer(t,
		[]interface{}{"lowercase", "a", "b"},
		[]interface{}{"join", []interface{}{"b", "c"}, "d"},
		[]interface{}{"rename", "b", "e"},
		[]interface{}{"constant", "k", 1},
	)
	roots, err := tr.Roots()
	test.ErrNil(t, err, "roots")
	test.MustBe(t, []string{"a", "c"}, roots, "roots")

	inputs, err := tr.Inputs()
	test.ErrNil(t, err, "inputs")
	test.MustBe(t, []string{"a", "c"}, inputs, "inputs")

	leaves, err := tr.Leaves()
	test.ErrNil(t, err, "leaves")
	test.MustBe(t, []string{"d", "e", "k"}, leaves, "leaves")

	test.MustBe(t, []string{"lowercase_1", "join_1", "rename_1", "constant_1"}, tr.Nodes(), "nodes")
	test.MustBe(t, 4, tr.Len(), "len")
}

func TestTransformerNodeNames(t *testing.T) {
	tr := &Transformer{}
	for i := 0; i < 3; i++ {
		err := tr.Add(OperationSpec{Operation: "rename", Inputs: []string{"a"}, Outputs: []string{string(rune('x' + i))}})
		test.ErrNil(t, err, "add")
	}
	test.MustBe(t, []string{"rename_1", "rename_2", "rename_3"}, tr.Nodes(), "nodes")

	other := &Transformer{}
	err := other.Add(OperationSpec{Operation: "rename", Inputs: []string{"a"}, Outputs: []string{"b"}})
	test.ErrNil(t, err, "add")
	test.MustBe(t, []string{"rename_1"}, other.Nodes(), "counters are per transformer")

	err = other.Add(OperationSpec{Operation: "rename", Inputs: []string{"b"}, Outputs: []string{"c"}, Name: "rename_1"})
	if err == nil {
		t.Fatal("expected duplicate node name error")
	}
}

func TestTransformerFunc(t *testing.T) {
	double := OperationFunc(func(args []Value, _ *Params) ([]Value, error) {
		return mapElementwise(args, func(v Value) (Value, error) {
			return S(strings.Repeat(String(v), 2)), nil
		})
	})
	tr := &Transformer{}
	test.ErrNil(t, tr.Add(OperationSpec{Func: double, Inputs: []string{"a"}, Outputs: []string{"b"}}), "add")
	out, err := tr.Transform(Record{"a": S("la")})
	test.ErrNil(t, err, "transform")
	mustRecord(t, out, Record{"b": S("lala")})
	test.MustBe(t, []string{"func_1"}, tr.Nodes(), "nodes")
}

func TestTransformerConfigErrors(t *testing.T) {
	tests := map[string][]interface{}{
		"unknown operation": {[]interface{}{"no_such_op", "a", "b"}},
		"elementwise arity": {[]interface{}{"lowercase", []interface{}{"a", "b"}, "c"}},
		"reducer arity":     {[]interface{}{"format", "a", []interface{}{"b", "c"}}},
		"expander arity":    {[]interface{}{"split", []interface{}{"a", "b"}, "c"}},
		"chain arity":       {[]interface{}{[]interface{}{"split", "lowercase"}, []interface{}{"a", "b"}, "c"}},
	}
	for name, shs := range tests {
		if _, err := NewTransformer(shs); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	compileErrors := map[string][]interface{}{
		"duplicate output": {
			[]interface{}{"lowercase", "a", "b"},
			[]interface{}{"uppercase", "c", "b"},
		},
		"cycle": {
			[]interface{}{"lowercase", "a", "b"},
			[]interface{}{"uppercase", "b", "a"},
		},
		"empty input as output": {
			[]interface{}{"rename", "a", EmptyInput},
		},
	}
	for name, shs := range compileErrors {
		tr := mustTransformer(t, shs...)
		if err := tr.Compile(); err == nil {
			t.Fatalf("%s: expected compile error", name)
		}
		if _, err := tr.Evaluate(Record{}, true); err == nil {
			t.Fatalf("%s: expected evaluate error", name)
		}
	}
}

func TestTransformerCycleMessage(t *testing.T) {
	tr := mustTransformer(t,
		[]interface{}{"lowercase", "a", "b"},
		[]interface{}{"uppercase", "b", "c"},
		[]interface{}{"rename", "c", "a"},
	)
	err := tr.Compile()
	if err == nil || !strings.Contains(err.Error(), "cycle detected") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestTransformerDeterminism(t *testing.T) {
	tr := mustTransformer(t,
		[]interface{}{"split", "name", []interface{}{"first", "last"}, NewParams("sep", " ")},
		[]interface{}{[]interface{}{"lowercase", "titlecase"}, []interface{}{"first", "last"}, []interface{}{"f", "l"}},
		[]interface{}{"format", []interface{}{"l", "f"}, "display", NewParams("pattern", "{}, {}")},
	)
	in := Record{"name": S("francis JAMES")}
	first := mustEvaluate(t, tr, in, false)
	second := mustEvaluate(t, tr, in, false)
	mustRecord(t, second, first)
	test.MustBe(t, S("James, Francis"), first["display"], "display")
	test.MustBe(t, S("francis JAMES"), in["name"], "input untouched")
	if _, ok := in["first"]; ok {
		t.Fatal("evaluation modified the input record")
	}
}

func TestTransformerWarnings(t *testing.T) {
	warns := &warnLogger{}
	tr, err := NewTransformer([]interface{}{
		[]interface{}{"replace", "a", "b", NewParams("old", "x", "new", "y")},
		[]interface{}{"split", "c", []interface{}{"d", "e", "f"}, NewParams("sep", "-")},
	}, OptTransformerLogger(warns))
	test.ErrNil(t, err, "new")
	out := mustEvaluate(t, tr, Record{"a": I(3), "c": S("1-2")}, true)
	mustRecord(t, out, Record{"b": I(3), "d": S("1"), "e": S("2"), "f": nil})
	if len(warns.lines) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warns.lines)
	}
}

type warnLogger struct {
	NopLogger
	lines []string
}

func (w *warnLogger) Warnf(format string, v ...interface{}) {
	w.lines = append(w.lines, format)
}
