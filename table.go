package catafolk

import (
	"sort"

	"github.com/pkg/errors"
)

// Table is a set of rows keyed by a unique string id, with an ordered list
// of columns. Cells that were never set are null.
type Table struct {
	columns []string
	colSet  map[string]struct{}
	ids     []string
	rows    map[string]Record
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{
		colSet: make(map[string]struct{}),
		rows:   make(map[string]Record),
	}
	for _, col := range columns {
		t.AddColumn(col)
	}
	return t
}

// AddColumn appends col unless the table already has it.
func (t *Table) AddColumn(col string) {
	if _, ok := t.colSet[col]; ok {
		return
	}
	t.colSet[col] = struct{}{}
	t.columns = append(t.columns, col)
}

// HasColumn reports whether col is one of the table's columns.
func (t *Table) HasColumn(col string) bool {
	_, ok := t.colSet[col]
	return ok
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// IDs returns a copy of the row ids in order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.ids...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.ids)
}

// Has reports whether the table has a row with the given id.
func (t *Table) Has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

// Insert adds a row. Keys of rec that are not columns yet are added as
// columns in sorted order. It is an error to insert an id twice.
func (t *Table) Insert(id string, rec Record) error {
	if _, ok := t.rows[id]; ok {
		return errors.Errorf("duplicate id '%s'", id)
	}
	row := make(Record, len(rec))
	var added []string
	for k, v := range rec {
		row[k] = v
		if !t.HasColumn(k) {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	for _, col := range added {
		t.AddColumn(col)
	}
	t.ids = append(t.ids, id)
	t.rows[id] = row
	return nil
}

// Get returns the cell at id and col, null if either doesn't exist.
func (t *Table) Get(id, col string) Value {
	return t.rows[id][col]
}

// Ensure adds an all-null row with the given id unless it exists.
func (t *Table) Ensure(id string) {
	if _, ok := t.rows[id]; ok {
		return
	}
	t.rows[id] = make(Record)
	t.ids = append(t.ids, id)
}

// Set sets a cell, adding the row and the column as needed.
func (t *Table) Set(id, col string, v Value) {
	t.Ensure(id)
	t.AddColumn(col)
	t.rows[id][col] = v
}

// Row returns a copy of the row with the given id, holding every column.
func (t *Table) Row(id string) (Record, bool) {
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	rec := make(Record, len(t.columns))
	for _, col := range t.columns {
		rec[col] = row[col]
	}
	return rec, true
}

// Column returns the cells of col in row order.
func (t *Table) Column(col string) []Value {
	vals := make([]Value, len(t.ids))
	for i, id := range t.ids {
		vals[i] = t.rows[id][col]
	}
	return vals
}

// Sort orders the rows by id.
func (t *Table) Sort() {
	sort.Strings(t.ids)
}

// Project returns a copy of the table restricted to columns, in that order.
// Columns the table lacks are added as nulls.
func (t *Table) Project(columns []string) *Table {
	p := NewTable(columns...)
	for _, id := range t.ids {
		row := make(Record, len(columns))
		for _, col := range columns {
			row[col] = t.rows[id][col]
		}
		p.ids = append(p.ids, id)
		p.rows[id] = row
	}
	return p
}

// Rename returns a copy of the table with every column renamed by f.
func (t *Table) Rename(f func(string) string) *Table {
	r := NewTable()
	for _, col := range t.columns {
		r.AddColumn(f(col))
	}
	for _, id := range t.ids {
		row := make(Record, len(t.columns))
		for _, col := range t.columns {
			row[f(col)] = t.rows[id][col]
		}
		r.ids = append(r.ids, id)
		r.rows[id] = row
	}
	return r
}
