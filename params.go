package catafolk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Params is an ordered string-keyed map. It holds operation parameters and
// decoded dataset configuration. Key order is the order in which keys were
// first set (or appeared in the decoded document), which matters for
// operations like map_values that take the first matching entry. Nested
// mappings are held as *Params and lists as []interface{}.
//
// A nil *Params is a valid empty map for all read methods.
type Params struct {
	keys []string
	vals map[string]interface{}
}

// NewParams returns a Params holding the given key/value pairs in order. It
// panics if kv has odd length or a key is not a string.
func NewParams(kv ...interface{}) *Params {
	if len(kv)%2 != 0 {
		panic("NewParams needs key/value pairs")
	}
	p := &Params{vals: make(map[string]interface{}, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("NewParams key %v is a %[1]T, not a string", kv[i]))
		}
		p.Set(key, kv[i+1])
	}
	return p
}

// Set sets key to val, keeping the key's original position if it was
// already present.
func (p *Params) Set(key string, val interface{}) *Params {
	if p.vals == nil {
		p.vals = make(map[string]interface{})
	}
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = val
	return p
}

// Get returns the raw value at key.
func (p *Params) Get(key string) (interface{}, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Keys returns the keys in order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns a shallow copy of p.
func (p *Params) Clone() *Params {
	c := &Params{vals: make(map[string]interface{}, p.Len())}
	for _, k := range p.Keys() {
		c.Set(k, p.vals[k])
	}
	return c
}

// Map returns p as a plain map, converting nested *Params recursively.
func (p *Params) Map() map[string]interface{} {
	ret := make(map[string]interface{}, p.Len())
	for _, k := range p.Keys() {
		ret[k] = plain(p.vals[k])
	}
	return ret
}

func plain(v interface{}) interface{} {
	switch vt := v.(type) {
	case *Params:
		return vt.Map()
	case []interface{}:
		ret := make([]interface{}, len(vt))
		for i, item := range vt {
			ret[i] = plain(item)
		}
		return ret
	default:
		return v
	}
}

// Equal reports whether p and o hold the same keys in the same order with
// deeply equal values.
func (p *Params) Equal(o *Params) bool {
	return reflect.DeepEqual(p.Keys(), o.Keys()) && reflect.DeepEqual(p.Map(), o.Map())
}

// String formats p like a Python dict literal.
func (p *Params) String() string {
	parts := make([]string, 0, p.Len())
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%q: %v", k, p.vals[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// GetString returns the string at key or def if the key is absent.
func (p *Params) GetString(key, def string) (string, error) {
	v, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	s, err := cast.ToStringE(v)
	return s, errors.Wrapf(err, "param %s", key)
}

// GetOptString is like GetString but distinguishes an absent or null key
// from the empty string.
func (p *Params) GetOptString(key string) (s string, ok bool, err error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return "", false, nil
	}
	s, err = cast.ToStringE(v)
	return s, true, errors.Wrapf(err, "param %s", key)
}

// GetBool returns the bool at key or def if the key is absent.
func (p *Params) GetBool(key string, def bool) (bool, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	return b, errors.Wrapf(err, "param %s", key)
}

// GetInt returns the int at key or def if the key is absent.
func (p *Params) GetInt(key string, def int) (int, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	i, err := cast.ToIntE(v)
	return i, errors.Wrapf(err, "param %s", key)
}

// GetInts returns the list of ints at key. ok is false if the key is absent
// or null. A scalar is returned as a one element list.
func (p *Params) GetInts(key string) (ints []int, ok bool, err error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return nil, false, nil
	}
	list, isList := v.([]interface{})
	if !isList {
		list = []interface{}{v}
	}
	ints = make([]int, len(list))
	for i, item := range list {
		ints[i], err = cast.ToIntE(item)
		if err != nil {
			return nil, true, errors.Wrapf(err, "param %s index %d", key, i)
		}
	}
	return ints, true, nil
}

// GetValue returns the value at key converted with ValueOf.
func (p *Params) GetValue(key string) (Value, error) {
	v, _ := p.Get(key)
	val, err := ValueOf(v)
	return val, errors.Wrapf(err, "param %s", key)
}

// GetList returns the list at key. A scalar is returned as a one element
// list and an absent or null key as an empty one.
func (p *Params) GetList(key string) ([]interface{}, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	if list, isList := v.([]interface{}); isList {
		return list, nil
	}
	return []interface{}{v}, nil
}

// GetParams returns the mapping at key, or an empty Params if absent.
func (p *Params) GetParams(key string) (*Params, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return &Params{}, nil
	}
	switch vt := v.(type) {
	case *Params:
		return vt, nil
	case map[string]interface{}:
		return ParamsFromMap(vt), nil
	default:
		return nil, errors.Errorf("param %s: expected a mapping, got %v of %[2]T", key, v)
	}
}

// ParamsFromMap builds Params from a plain map. Keys are sorted since Go
// maps carry no order.
func ParamsFromMap(m map[string]interface{}) *Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := &Params{vals: make(map[string]interface{}, len(m))}
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping mapping order.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeYAML(node)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Params)
	if !ok {
		return errors.Errorf("line %d: expected a mapping", node.Line)
	}
	*p = *decoded
	return nil
}

func decodeYAML(node *yaml.Node) (interface{}, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeYAML(node.Content[0])
	case yaml.AliasNode:
		return decodeYAML(node.Alias)
	case yaml.MappingNode:
		p := &Params{vals: make(map[string]interface{}, len(node.Content)/2)}
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			val, err := decodeYAML(v)
			if err != nil {
				return nil, err
			}
			p.Set(k.Value, val)
		}
		return p, nil
	case yaml.SequenceNode:
		list := make([]interface{}, len(node.Content))
		for i, item := range node.Content {
			val, err := decodeYAML(item)
			if err != nil {
				return nil, err
			}
			list[i] = val
		}
		return list, nil
	case yaml.ScalarNode:
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return nil, errors.Wrapf(err, "line %d", node.Line)
		}
		return v, nil
	default:
		return nil, errors.Errorf("line %d: unsupported yaml node kind %v", node.Line, node.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, keeping object key order.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return errors.Wrap(err, "decoding json")
	}
	decoded, ok := v.(*Params)
	if !ok {
		return errors.New("expected a json object")
	}
	*p = *decoded
	return nil
}

func decodeJSON(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tt := tok.(type) {
	case json.Delim:
		switch tt {
		case '{':
			p := &Params{vals: make(map[string]interface{})}
			for dec.More() {
				ktok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := ktok.(string)
				if !ok {
					return nil, errors.Errorf("unexpected object key %v", ktok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, errors.Wrapf(err, "key %s", key)
				}
				p.Set(key, val)
			}
			_, err := dec.Token()
			return p, err
		case '[':
			list := make([]interface{}, 0)
			for dec.More() {
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			_, err := dec.Token()
			return list, err
		default:
			return nil, errors.Errorf("unexpected delimiter %v", tt)
		}
	case json.Number:
		if i, err := tt.Int64(); err == nil {
			return int(i), nil
		}
		return tt.Float64()
	default:
		// string, bool or nil
		return tok, nil
	}
}
