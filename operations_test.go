package catafolk

import (
	"fmt"
	"strings"
	"testing"
)

func mustCall(t *testing.T, name string, params *Params, args ...interface{}) Value {
	t.Helper()
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = MustValueOf(a)
	}
	v, err := Call(name, vals, params)
	if err != nil {
		t.Fatalf("calling %s%v: %v", name, args, err)
	}
	return v
}

func mustEqual(t *testing.T, got, want Value, ctx string) {
	t.Helper()
	if !Equal(got, want) {
		t.Fatalf("%s: got %s, want %s", ctx, repr(got), repr(want))
	}
}

func seq(items ...interface{}) Sequence {
	return MustValueOf(items).(Sequence)
}

func TestElementwiseCardinality(t *testing.T) {
	for _, op := range []string{"lowercase", "uppercase", "titlecase", "unescape_html", "rename", "to_string"} {
		one := mustCall(t, op, nil, "abc")
		if _, ok := one.(Sequence); ok {
			t.Fatalf("%s of one value returned a sequence %s", op, repr(one))
		}
		three := mustCall(t, op, nil, "a", "b", "c")
		s, ok := three.(Sequence)
		if !ok || len(s) != 3 {
			t.Fatalf("%s of three values returned %s", op, repr(three))
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		args   []interface{}
		params *Params
		exp    Value
	}{
		{args: []interface{}{"a", "b"}, exp: S("ab")},
		{args: []interface{}{"a", nil, "b"}, params: NewParams("sep", "-"), exp: S("a-b")},
		{args: []interface{}{"a", 1, 2.5, true}, params: NewParams("sep", " "), exp: S("a 1 2.5 True")},
		{args: []interface{}{[]interface{}{"a", "b"}, []interface{}{"c"}}, params: NewParams("sep", ","), exp: seq("a,b", "c")},
	}
	for i, test := range tests {
		mustEqual(t, mustCall(t, "join", test.params, test.args...), test.exp, fmt.Sprintf("join %d", i))
	}
}

func TestSplit(t *testing.T) {
	mustEqual(t, mustCall(t, "split", NewParams("sep", ","), "a,b,c"), seq("a", "b", "c"), "with sep")
	mustEqual(t, mustCall(t, "split", nil, " a  b "), seq("a", "b"), "whitespace")
	// non-strings are returned unchanged
	mustEqual(t, mustCall(t, "split", NewParams("sep", ","), 12), I(12), "int")
	if _, err := Call("split", []Value{S("a"), S("b")}, nil); err == nil {
		t.Fatal("expected error splitting two values")
	}
}

func TestPassThroughAsymmetry(t *testing.T) {
	// lowercase, split and replace tolerate non-strings
	mustEqual(t, mustCall(t, "lowercase", nil, 5), I(5), "lowercase")
	mustEqual(t, mustCall(t, "split", nil, 5), I(5), "split")
	res, err := registry["replace"].op.Apply([]Value{I(5), S("aa")}, NewParams("old", "a", "new", "b"))
	if !IsWarning(err) {
		t.Fatalf("replace on a non-string should warn, got %v", err)
	}
	mustEqual(t, Collapse(res), seq(5, "bb"), "replace")

	// uppercase, titlecase, to_int and to_float are strict
	for _, op := range []string{"uppercase", "titlecase"} {
		if _, err := Call(op, []Value{Sequence{S("a"), I(1)}}, nil); err == nil {
			t.Fatalf("%s: expected error", op)
		}
	}
	if _, err := Call("to_int", []Value{S("abc")}, nil); err == nil {
		t.Fatal("to_int: expected error")
	}
	if _, err := Call("to_float", []Value{S("abc")}, nil); err == nil {
		t.Fatal("to_float: expected error")
	}
}

func TestCaseOps(t *testing.T) {
	mustEqual(t, mustCall(t, "lowercase", nil, "HeLLo", nil), seq("hello", nil), "lowercase")
	mustEqual(t, mustCall(t, "uppercase", nil, "HeLLo"), S("HELLO"), "uppercase")
	mustEqual(t, mustCall(t, "titlecase", nil, "the wild rover"), S("The Wild Rover"), "titlecase")
	mustEqual(t, mustCall(t, "unescape_html", nil, "Tom &amp; Jerry", 3), seq("Tom & Jerry", 3), "unescape")
}

func TestReplace(t *testing.T) {
	mustEqual(t, mustCall(t, "replace", NewParams("old", "entry", "new", ""), "entry1"), S("1"), "literal")
	mustEqual(t, mustCall(t, "replace", NewParams("old", `(\d+)-(\d+)`, "new", `\2/\1`), "12-34"), S("34/12"), "groups")
	mustEqual(t, mustCall(t, "replace", NewParams("old", ".", "new", "!", "regex", false), "a.b"), S("a!b"), "no regex")
	if _, err := Call("replace", []Value{S("a")}, nil); err == nil {
		t.Fatal("expected error without old")
	}
	for _, old := range []string{`a(?=b)`, `(a)\1`} {
		_, err := Call("replace", []Value{S("aab")}, NewParams("old", old, "new", "x"))
		if err == nil || !strings.Contains(err.Error(), "RE2") {
			t.Fatalf("%s: expected an RE2 syntax error, got %v", old, err)
		}
	}
}

func TestFormat(t *testing.T) {
	mustEqual(t, mustCall(t, "format", NewParams("pattern", "item-{:0>3}"), 5), S("item-005"), "pattern")
	mustEqual(t, mustCall(t, "format", nil, "{}-{}", "a", 1), S("a-1"), "first is pattern")
	mustEqual(t, mustCall(t, "format", NewParams("pattern", "{1} {0}"), "a", "b"), S("b a"), "positions")
	mustEqual(t, mustCall(t, "format", NewParams("pattern", "{}"), nil), nil, "null")
	for name, args := range map[string][]Value{
		"no inputs":       nil,
		"non-string":      {I(1), S("x")},
		"single string":   {S("hello")},
		"null pattern":    {nil, S("x")},
		"single non-text": {I(1)},
	} {
		if _, err := Call("format", args, nil); err == nil {
			t.Fatalf("%s: expected error without a pattern", name)
		}
	}
}

func TestExtractGroups(t *testing.T) {
	p := NewParams("pattern", "(.+)-(.+)")
	mustEqual(t, mustCall(t, "extract_groups", p, "foo-bar"), seq("foo-bar", "foo", "bar"), "all groups")

	p = NewParams("pattern", "(.+)-(.+)", "groups", []interface{}{1, 2})
	mustEqual(t, mustCall(t, "extract_groups", p, "foo-bar"), seq("foo", "bar"), "groups")
	mustEqual(t, mustCall(t, "extract_groups", p, "foobar"), seq(nil, nil), "no match")

	p = NewParams("pattern", "(.+)-(.+)", "groups", 2)
	mustEqual(t, mustCall(t, "extract_groups", p, "foo-bar"), S("bar"), "one group")

	if _, err := Call("extract_groups", []Value{S("foobar")}, NewParams("pattern", "(.+)-(.+)")); err == nil {
		t.Fatal("expected error on ambiguous no match")
	}
}

func TestMapValues(t *testing.T) {
	p := NewParams("mapping", NewParams("(H|h).llo", "Hello", "w.+d", "world"))
	mustEqual(t, mustCall(t, "map_values", p, "hello", "woaooorld", "foo"), seq("Hello", "world", nil), "regex")

	p.Set("return_missing", true)
	mustEqual(t, mustCall(t, "map_values", p, "foo"), S("foo"), "return missing")

	p = NewParams("mapping", NewParams("1", "one", "2", "two"), "regex", false)
	mustEqual(t, mustCall(t, "map_values", p, 1, "2", 3), seq("one", "two", nil), "literal")

	p = NewParams("mapping", NewParams(`(\w+), (\w+)`, "{2} {1}"))
	mustEqual(t, mustCall(t, "map_values", p, "Child, Francis"), S("Francis Child"), "groups")

	p = NewParams("mapping", NewParams("a.*", "A"))
	mustEqual(t, mustCall(t, "map_values", p, []interface{}{"ab", "b"}, []interface{}{"ac"}),
		Sequence{seq("A", nil), seq("A")}, "nested")

	// first matching key wins
	p = NewParams("mapping", NewParams("b.*", "first", "ba.*", "second"))
	mustEqual(t, mustCall(t, "map_values", p, "bar"), S("first"), "order")
}

func TestMapNumericBins(t *testing.T) {
	bins := []interface{}{
		NewParams("min", 0, "max", 10, "value", "foo"),
		NewParams("min", 10, "max", 100, "value", "bar"),
	}
	p := NewParams("bins", bins)
	mustEqual(t, mustCall(t, "map_numeric_bins", p, 2), S("foo"), "2")
	mustEqual(t, mustCall(t, "map_numeric_bins", p, 20), S("bar"), "20")
	mustEqual(t, mustCall(t, "map_numeric_bins", p, "10"), S("bar"), "string")
	mustEqual(t, mustCall(t, "map_numeric_bins", p, 100), nil, "no bin")
	p.Set("default", "none")
	mustEqual(t, mustCall(t, "map_numeric_bins", p, "abc", nil), seq("none", "none"), "default")

	open := NewParams("bins", []interface{}{NewParams("max", 0, "value", "neg")})
	mustEqual(t, mustCall(t, "map_numeric_bins", open, -1e9), S("neg"), "open min")
}

func TestSelection(t *testing.T) {
	mustEqual(t, mustCall(t, "pick", NewParams("index", 1), "a", "b", "c"), S("b"), "pick")
	mustEqual(t, mustCall(t, "pick", NewParams("index", -1), "a", "b", "c"), S("c"), "pick negative")
	mustEqual(t, mustCall(t, "pick", nil, "a", "b"), S("a"), "pick default")
	if _, err := Call("pick", []Value{S("a")}, NewParams("index", 3)); err == nil {
		t.Fatal("expected out of range error")
	}
	mustEqual(t, mustCall(t, "first", nil, "a", "b"), S("a"), "first")
	mustEqual(t, mustCall(t, "last", nil, "a", "b"), S("b"), "last")
	mustEqual(t, mustCall(t, "last", nil, []interface{}{"a", "b"}, []interface{}{"c"}), seq("b", "c"), "last nested")
}

func TestDefaultAndConstant(t *testing.T) {
	p := NewParams("values", []interface{}{"x", "y"})
	mustEqual(t, mustCall(t, "default", p, nil, "b"), seq("x", "b"), "default")
	mustEqual(t, mustCall(t, "default", p, nil, nil, nil), seq("x", "y", nil), "more inputs than defaults")
	mustEqual(t, mustCall(t, "constant", NewParams("value", 10), nil), I(10), "constant")
	mustEqual(t, mustCall(t, "constant", NewParams("value", "a"), 1, 2), seq("a", "a"), "constant twice")
}

func TestCoercion(t *testing.T) {
	mustEqual(t, mustCall(t, "to_int", nil, "12", 3.7, true, nil), seq(12, 3, 1, nil), "to_int")
	mustEqual(t, mustCall(t, "to_float", nil, "1.5", 2), seq(1.5, 2.0), "to_float")
	mustEqual(t, mustCall(t, "to_string", nil, 1, 1.5, false, nil), seq("1", "1.5", "False", nil), "to_string")
}

func TestFilters(t *testing.T) {
	mustEqual(t, mustCall(t, "drop_none", nil, "a", nil, "b"), seq("a", "b"), "drop_none")
	mustEqual(t, mustCall(t, "drop_none", nil, []interface{}{"a", nil}, []interface{}{nil}),
		Sequence{seq("a"), Sequence{}}, "drop_none nested")
	mustEqual(t, mustCall(t, "unique", nil, "a", "b", "a", 1, 1.0), seq("a", "b", 1), "unique")
	mustEqual(t, mustCall(t, "to_string_list", nil, "a|b", "c", nil), S("a/b|c"), "to_string_list")
	mustEqual(t, mustCall(t, "to_string_list", NewParams("sep", ";"), []interface{}{"a", "b"}, []interface{}{"c"}),
		seq("a;b", "c"), "to_string_list nested")
}

func TestGeohash(t *testing.T) {
	v := mustCall(t, "geohash", NewParams("precision", 5), 57.64911, 10.40744)
	mustEqual(t, v, S("u4pru"), "geohash")
	mustEqual(t, mustCall(t, "geohash", nil, nil, 10), nil, "null")
	res, err := registry["geohash"].op.Apply([]Value{F(100), F(0)}, &Params{})
	if !IsWarning(err) || Collapse(res) != nil {
		t.Fatalf("expected warning and null, got %v %v", res, err)
	}
}

func TestRegistry(t *testing.T) {
	names := Operations()
	if len(names) != 24 {
		t.Fatalf("expected the whole library to be registered, got %v", names)
	}
	if _, _, ok := Lookup("no_such_op"); ok {
		t.Fatal("unexpected operation")
	}
	if _, err := Call("no_such_op", nil, nil); err == nil {
		t.Fatal("expected unknown operation error")
	}
}

func TestReplacementTemplate(t *testing.T) {
	tests := map[string]string{
		`\1-\2`:      "${1}-${2}",
		`\g<name>!`:  "${name}!",
		`$5`:         "$$5",
		`a\nb`:       "a\nb",
		`plain`:      "plain",
		`\12x`:       "${12}x",
		`trailing \`: `trailing \`,
	}
	for in, exp := range tests {
		if got := replacementTemplate(in); got != exp {
			t.Fatalf("replacementTemplate(%q) = %q, want %q", in, got, exp)
		}
	}
}
