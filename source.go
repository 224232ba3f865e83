package catafolk

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// IDField is the name of the key column of every table.
const IDField = "id"

// InternalPrefix prefixes the fields a source adds itself, so they don't
// clash with fields read from the underlying data.
const InternalPrefix = "cf_"

// Source is one origin of tabular data contributing columns to an Index.
type Source interface {
	Name() string
	Collect() (*Table, error)
}

// RowProducer materializes the raw rows of a source along with the order
// of their columns.
type RowProducer interface {
	Rows() (columns []string, rows []Record, err error)
}

// RowProducerFunc can be wrapped around a function to make it implement
// the RowProducer interface.
type RowProducerFunc func() ([]string, []Record, error)

// Rows implements RowProducer for RowProducerFunc.
func (f RowProducerFunc) Rows() ([]string, []Record, error) {
	return f()
}

// BaseSource implements Source on top of a RowProducer. It keys every row
// by the value of an id field, or by the "id" output of an id transformer,
// and keeps the sorted table until Reset is called.
type BaseSource struct {
	name          string
	idField       string
	idTransformer RecordTransformer
	producer      RowProducer
	log           Logger

	table *Table
}

// SourceOption is a functional option for NewBaseSource.
type SourceOption func(*BaseSource) error

// OptSourceIDField sets the field whose value becomes the row id. The
// default is "id".
func OptSourceIDField(field string) SourceOption {
	return func(s *BaseSource) error {
		if field == "" {
			return errors.New("id field can't be empty")
		}
		s.idField = field
		return nil
	}
}

// OptSourceIDTransformer computes ids by transforming every row. The
// transformer's output must hold an "id" value. It takes precedence over
// the id field.
func OptSourceIDTransformer(t RecordTransformer) SourceOption {
	return func(s *BaseSource) error {
		s.idTransformer = t
		return nil
	}
}

// OptSourceIDTransformations compiles shorthands into the id transformer.
func OptSourceIDTransformations(shorthands []interface{}) SourceOption {
	return func(s *BaseSource) error {
		if len(shorthands) == 0 {
			return nil
		}
		t, err := NewTransformer(shorthands, OptTransformerLogger(s.log))
		if err != nil {
			return errors.Wrap(err, "id transformations")
		}
		if err := t.Compile(); err != nil {
			return errors.Wrap(err, "id transformations")
		}
		s.idTransformer = t
		return nil
	}
}

// OptSourceLogger sets the source's logger. It should come before
// OptSourceIDTransformations for the transformer to share it.
func OptSourceLogger(l Logger) SourceOption {
	return func(s *BaseSource) error {
		s.log = l
		return nil
	}
}

// NewBaseSource returns a source reading its rows from producer. An empty
// name makes the source's columns keep their bare names in an Index.
func NewBaseSource(name string, producer RowProducer, opts ...SourceOption) (*BaseSource, error) {
	if producer == nil {
		return nil, errors.Errorf("source '%s' has no row producer", name)
	}
	s := &BaseSource{
		name:     name,
		idField:  IDField,
		producer: producer,
		log:      NopLogger{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrapf(err, "source '%s'", name)
		}
	}
	return s, nil
}

// Name implements Source.
func (s *BaseSource) Name() string { return s.name }

// IDField returns the field ids are read from when there is no id
// transformer.
func (s *BaseSource) IDField() string { return s.idField }

// Reset drops the collected table so the next Collect reads the rows again.
func (s *BaseSource) Reset() { s.table = nil }

// Collect implements Source. Every row must resolve to a unique non-empty
// id. The "id" column itself becomes the key and is not one of the
// table's columns.
func (s *BaseSource) Collect() (*Table, error) {
	if s.table != nil {
		return s.table, nil
	}
	columns, rows, err := s.producer.Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "collecting source '%s'", s.name)
	}
	if len(rows) == 0 {
		s.log.Warnf("source '%s' has no rows", s.name)
	} else if s.idTransformer == nil && !contains(columns, s.idField) {
		return nil, errors.Errorf("source '%s': id field '%s' does not exist", s.name, s.idField)
	}

	table := NewTable()
	for _, col := range columns {
		if col != IDField {
			table.AddColumn(col)
		}
	}
	for i, row := range rows {
		id, err := s.resolveID(row)
		if err != nil {
			return nil, errors.Wrapf(err, "source '%s' row %d", s.name, i)
		}
		rec := make(Record, len(row))
		for k, v := range row {
			if k != IDField {
				rec[k] = v
			}
		}
		if err := table.Insert(id, rec); err != nil {
			return nil, errors.Wrapf(err, "source '%s' row %d", s.name, i)
		}
	}
	table.Sort()
	s.table = table
	return table, nil
}

func (s *BaseSource) resolveID(row Record) (string, error) {
	var v Value
	if s.idTransformer != nil {
		out, err := s.idTransformer.Transform(row)
		if err != nil {
			return "", errors.Wrap(err, "id transformation")
		}
		var ok bool
		if v, ok = out[IDField]; !ok {
			return "", errors.New("id transformation failed: no `id` in output")
		}
	} else {
		v = row[s.idField]
	}
	if IsNull(v) {
		return "", errors.New("null id")
	}
	if _, ok := v.(Sequence); ok {
		return "", errors.Errorf("id must be a scalar, got %s", repr(v))
	}
	id := String(v)
	if strings.TrimSpace(id) == "" {
		return "", errors.New("empty id")
	}
	return id, nil
}

// NewEntriesSource returns a source wrapping in-memory entries. Columns
// appear in order of first appearance, with the new keys of each entry in
// sorted order.
func NewEntriesSource(name string, entries []Record, opts ...SourceOption) (*BaseSource, error) {
	producer := RowProducerFunc(func() ([]string, []Record, error) {
		return ColumnsOf(entries), entries, nil
	})
	return NewBaseSource(name, producer, opts...)
}

// ColumnsOf returns the keys of records in order of first appearance.
func ColumnsOf(records []Record) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, rec := range records {
		var added []string
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				added = append(added, k)
			}
		}
		sort.Strings(added)
		columns = append(columns, added...)
	}
	return columns
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
