package catafolk

import (
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

func init() {
	Register("map_values", Elementwise, OperationFunc(mapValues))
	Register("map_numeric_bins", Elementwise, OperationFunc(mapNumericBins))
	Register("geohash", Reducer, OperationFunc(geohashOp))
}

// mapValues replaces every argument by the target of the first mapping key
// that matches it. Keys are regular expressions matched at the start of
// string values, or literals compared with the string form of the value if
// regex is false. Unmatched values become null, or stay as they are if
// return_missing is set. String targets of regex keys may refer to the
// groups of the match ({0}, {1}, {name}).
func mapValues(args []Value, p *Params) ([]Value, error) {
	mapping, err := p.GetParams("mapping")
	if err != nil {
		return nil, err
	}
	useRegex, err := p.GetBool("regex", true)
	if err != nil {
		return nil, err
	}
	returnMissing, err := p.GetBool("return_missing", false)
	if err != nil {
		return nil, err
	}
	keys := mapping.Keys()
	targets := make([]Value, len(keys))
	for i, k := range keys {
		if targets[i], err = mapping.GetValue(k); err != nil {
			return nil, errors.Wrap(err, "mapping")
		}
	}

	lookup := func(v Value) (Value, error) {
		if IsNull(v) {
			if returnMissing {
				return v, nil
			}
			return nil, nil
		}
		for i, key := range keys {
			if !useRegex {
				if String(v) == key {
					return targets[i], nil
				}
				continue
			}
			s, ok := v.(S)
			if !ok {
				continue
			}
			re, err := compilePattern(key, true)
			if err != nil {
				return nil, errors.Wrap(err, "map_values")
			}
			match := re.FindStringSubmatch(string(s))
			if match == nil {
				continue
			}
			return expandTarget(targets[i], re.SubexpNames(), match), nil
		}
		if returnMissing {
			return v, nil
		}
		return nil, nil
	}
	return mapElementwise(args, lookup)
}

func expandTarget(target Value, names []string, match []string) Value {
	s, ok := target.(S)
	if !ok || !strings.ContainsRune(string(s), '{') {
		return target
	}
	groups := make([]Value, len(match))
	named := make(map[string]Value)
	for i, m := range match {
		groups[i] = S(m)
		if names[i] != "" {
			named[names[i]] = S(m)
		}
	}
	expanded, err := pyFormat(string(s), groups, named)
	if err != nil {
		return target
	}
	return S(expanded)
}

type numericBin struct {
	min, max float64
	value    Value
}

func parseBins(p *Params) ([]numericBin, error) {
	list, err := p.GetList("bins")
	if err != nil {
		return nil, err
	}
	bins := make([]numericBin, len(list))
	for i, item := range list {
		var bp *Params
		switch it := item.(type) {
		case *Params:
			bp = it
		case map[string]interface{}:
			bp = ParamsFromMap(it)
		default:
			return nil, errors.Errorf("bin %d: expected a mapping, got %v", i, item)
		}
		b := numericBin{min: math.Inf(-1), max: math.Inf(1)}
		if v, ok := bp.Get("min"); ok && v != nil {
			if b.min, err = cast.ToFloat64E(v); err != nil {
				return nil, errors.Wrapf(err, "bin %d min", i)
			}
		}
		if v, ok := bp.Get("max"); ok && v != nil {
			if b.max, err = cast.ToFloat64E(v); err != nil {
				return nil, errors.Wrapf(err, "bin %d max", i)
			}
		}
		if b.value, err = bp.GetValue("value"); err != nil {
			return nil, errors.Wrapf(err, "bin %d", i)
		}
		bins[i] = b
	}
	return bins, nil
}

// mapNumericBins maps every argument to the value of the first bin with
// min <= x < max. Arguments that are not numeric or fall in no bin map to
// default.
func mapNumericBins(args []Value, p *Params) ([]Value, error) {
	bins, err := parseBins(p)
	if err != nil {
		return nil, errors.Wrap(err, "map_numeric_bins")
	}
	def, err := p.GetValue("default")
	if err != nil {
		return nil, err
	}
	return mapElementwise(args, func(v Value) (Value, error) {
		if IsNull(v) {
			return def, nil
		}
		x, err := asFloat(v)
		if err != nil || math.IsNaN(x) {
			return def, nil
		}
		for _, b := range bins {
			if b.min <= x && x < b.max {
				return b.value, nil
			}
		}
		return def, nil
	})
}

// geohashOp encodes a latitude and a longitude into a geohash of precision
// characters. Missing or non-numeric coordinates give null.
func geohashOp(args []Value, p *Params) ([]Value, error) {
	if len(args) != 2 {
		return nil, errors.Errorf("geohash expects latitude and longitude, got %d inputs", len(args))
	}
	precision, err := p.GetInt("precision", 12)
	if err != nil {
		return nil, err
	}
	if precision < 1 || precision > 12 {
		return nil, errors.Errorf("geohash: precision %d out of range 1-12", precision)
	}
	if IsNull(args[0]) || IsNull(args[1]) {
		return []Value{nil}, nil
	}
	lat, errLat := asFloat(args[0])
	lng, errLng := asFloat(args[1])
	if errLat != nil || errLng != nil || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return []Value{nil}, Warning("geohash: invalid coordinates " + repr(Sequence(args)))
	}
	return []Value{S(geohash.EncodeWithPrecision(lat, lng, uint(precision)))}, nil
}
