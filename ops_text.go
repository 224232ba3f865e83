package catafolk

import (
	"fmt"
	"html"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func init() {
	Register("join", Variadic, OperationFunc(join))
	Register("split", Expander, OperationFunc(split))
	Register("lowercase", Elementwise, OperationFunc(lowercase))
	Register("uppercase", Elementwise, OperationFunc(uppercase))
	Register("titlecase", Elementwise, OperationFunc(titlecase))
	Register("unescape_html", Elementwise, OperationFunc(unescapeHTML))
	Register("replace", Elementwise, OperationFunc(replace))
	Register("format", Reducer, OperationFunc(format))
	Register("extract_groups", Expander, OperationFunc(extractGroups))
	Register("to_string_list", Variadic, OperationFunc(toStringList))
}

func joinValues(vals []Value, sep string) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if IsNull(v) {
			continue
		}
		parts = append(parts, String(v))
	}
	return strings.Join(parts, sep)
}

// join concatenates the non-null arguments with sep. If the first argument
// is a Sequence every argument is joined separately.
func join(args []Value, p *Params) ([]Value, error) {
	sep, err := p.GetString("sep", "")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("join needs at least one input")
	}
	if nested(args) {
		out := make([]Value, len(args))
		for i, arg := range args {
			out[i] = S(joinValues(asSeq(arg), sep))
		}
		return out, nil
	}
	return []Value{S(joinValues(args, sep))}, nil
}

// split splits a single string at sep, or at runs of whitespace if sep is
// not given. Anything but a string is returned unchanged.
func split(args []Value, p *Params) ([]Value, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("split expects a single input, got %d", len(args))
	}
	s, ok := args[0].(S)
	if !ok {
		return args, nil
	}
	sep, hasSep, err := p.GetOptString("sep")
	if err != nil {
		return nil, err
	}
	var parts []string
	switch {
	case !hasSep:
		parts = strings.Fields(string(s))
	case sep == "":
		return nil, errors.New("split: empty separator")
	default:
		parts = strings.Split(string(s), sep)
	}
	seq := make(Sequence, len(parts))
	for i, part := range parts {
		seq[i] = S(part)
	}
	return []Value{seq}, nil
}

// lowercase passes non-strings through. uppercase and titlecase reject them;
// dataset configurations depend on both behaviours.
func lowercase(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, func(v Value) (Value, error) {
		if s, ok := v.(S); ok {
			return S(strings.ToLower(string(s))), nil
		}
		return v, nil
	})
}

func uppercase(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, strictString("uppercase", strings.ToUpper))
}

func titlecase(args []Value, _ *Params) ([]Value, error) {
	caser := cases.Title(language.Und)
	return mapElementwise(args, strictString("titlecase", caser.String))
}

func strictString(name string, f func(string) string) func(Value) (Value, error) {
	return func(v Value) (Value, error) {
		switch vt := v.(type) {
		case nil:
			return nil, nil
		case S:
			return S(f(string(vt))), nil
		default:
			return nil, errors.Errorf("%s: %s is not a string", name, repr(v))
		}
	}
}

func unescapeHTML(args []Value, _ *Params) ([]Value, error) {
	return mapElementwise(args, func(v Value) (Value, error) {
		if s, ok := v.(S); ok {
			return S(html.UnescapeString(string(s))), nil
		}
		return v, nil
	})
}

// replace substitutes old by new in every string argument, treating old as
// a regular expression unless regex is false. Other values are kept and
// reported in a Warning.
func replace(args []Value, p *Params) ([]Value, error) {
	old, ok, err := p.GetOptString("old")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("replace needs the `old` parameter")
	}
	repl, err := p.GetString("new", "")
	if err != nil {
		return nil, err
	}
	useRegex, err := p.GetBool("regex", true)
	if err != nil {
		return nil, err
	}
	var sub func(string) string
	if useRegex {
		re, err := compilePattern(old, false)
		if err != nil {
			return nil, err
		}
		tmpl := replacementTemplate(repl)
		sub = func(s string) string { return re.ReplaceAllString(s, tmpl) }
	} else {
		sub = func(s string) string { return strings.Replace(s, old, repl, -1) }
	}
	var skipped []string
	out, err := mapElementwise(args, func(v Value) (Value, error) {
		s, ok := v.(S)
		if !ok {
			if v != nil {
				skipped = append(skipped, repr(v))
			}
			return v, nil
		}
		return S(sub(string(s))), nil
	})
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		return out, Warning(fmt.Sprintf("replace: skipped non-string values %s", strings.Join(skipped, ", ")))
	}
	return out, nil
}

// format fills the pattern parameter with the arguments, or uses the first
// of several arguments as pattern for the others. A null value to format
// gives a null result; a missing pattern is an error.
func format(args []Value, p *Params) ([]Value, error) {
	pattern, hasPattern, err := p.GetOptString("pattern")
	if err != nil {
		return nil, err
	}
	if !hasPattern {
		if len(args) < 2 {
			return nil, errors.New("format: either provide a pattern or multiple inputs")
		}
		s, ok := args[0].(S)
		if !ok {
			return nil, errors.Errorf("format: pattern must be a string, got %s", repr(args[0]))
		}
		pattern, args = string(s), args[1:]
	}
	for _, arg := range args {
		if IsNull(arg) {
			return []Value{nil}, nil
		}
	}
	s, err := pyFormat(pattern, args, nil)
	if err != nil {
		return nil, errors.Wrap(err, "format")
	}
	return []Value{S(s)}, nil
}

// extractGroups matches pattern at the start of a single string and returns
// the requested groups, all of them by default. Groups that did not take
// part in the match are null. Without a match the result is one null per
// requested group; if no groups were requested that count is unknown and an
// error is returned.
func extractGroups(args []Value, p *Params) ([]Value, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("extract_groups expects a single input, got %d", len(args))
	}
	pattern, ok, err := p.GetOptString("pattern")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("extract_groups needs the `pattern` parameter")
	}
	groups, hasGroups, err := p.GetInts("groups")
	if err != nil {
		return nil, err
	}
	re, err := compilePattern(pattern, true)
	if err != nil {
		return nil, err
	}

	var match []string
	var matched []int
	switch s := args[0].(type) {
	case S:
		matched = re.FindStringSubmatchIndex(string(s))
		match = re.FindStringSubmatch(string(s))
	case nil:
	default:
		return nil, errors.Errorf("extract_groups: %s is not a string", repr(args[0]))
	}

	if match == nil {
		if !hasGroups {
			return nil, errors.Errorf("pattern %q did not match %s; cannot tell how many groups to return without `groups`", pattern, repr(args[0]))
		}
		return make([]Value, len(groups)), nil
	}
	if !hasGroups {
		groups = make([]int, len(match))
		for i := range groups {
			groups[i] = i
		}
	}
	out := make([]Value, len(groups))
	for i, g := range groups {
		if g < 0 || g >= len(match) {
			return nil, errors.Errorf("extract_groups: no group %d in %q", g, pattern)
		}
		if matched[2*g] >= 0 {
			out[i] = S(match[g])
		}
	}
	return out, nil
}

// toStringList joins values into one delimited string, replacing sep inside
// each value by replace_sep_by first. If the first argument is a Sequence
// every argument is joined separately.
func toStringList(args []Value, p *Params) ([]Value, error) {
	sep, err := p.GetString("sep", "|")
	if err != nil {
		return nil, err
	}
	escape, err := p.GetString("replace_sep_by", "/")
	if err != nil {
		return nil, err
	}
	list := func(vals []Value) Value {
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			if IsNull(v) {
				continue
			}
			parts = append(parts, strings.Replace(String(v), sep, escape, -1))
		}
		return S(strings.Join(parts, sep))
	}
	if nested(args) {
		out := make([]Value, len(args))
		for i, arg := range args {
			out[i] = list(asSeq(arg))
		}
		return out, nil
	}
	return []Value{list(args)}, nil
}
