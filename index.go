package catafolk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrIndexNotFound is returned by Index.Load when there is no index file.
var ErrIndexNotFound = errors.New("index file does not exist, update the index")

// ParseError is returned when an index file can't be read back.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Index merges the tables of its sources, transforms every row and keeps
// the result in a CSV file restricted to a fixed list of fields.
type Index struct {
	path        string
	fields      []string
	sources     []Source
	names       map[string]struct{}
	transformer *Transformer
	strict      bool

	fs   afero.Fs
	log  Logger
	stat Statter

	data *Table
}

// IndexOption is a functional option for NewIndex.
type IndexOption func(*Index) error

// OptIndexFields sets the fields kept in the index. "id" is always the
// first field whether or not it is listed.
func OptIndexFields(fields ...string) IndexOption {
	return func(i *Index) error {
		i.fields = []string{IDField}
		seen := map[string]struct{}{IDField: {}}
		for _, f := range fields {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			i.fields = append(i.fields, f)
		}
		return nil
	}
}

// OptIndexTransformer sets the transformer applied to every collected row.
func OptIndexTransformer(t *Transformer) IndexOption {
	return func(i *Index) error {
		i.transformer = t
		return nil
	}
}

// OptIndexFs sets the filesystem the index file lives on.
func OptIndexFs(fs afero.Fs) IndexOption {
	return func(i *Index) error {
		i.fs = fs
		return nil
	}
}

// OptIndexLogger sets the logger.
func OptIndexLogger(l Logger) IndexOption {
	return func(i *Index) error {
		i.log = l
		return nil
	}
}

// OptIndexStatter sets the statter receiving row counts.
func OptIndexStatter(s Statter) IndexOption {
	return func(i *Index) error {
		i.stat = s
		return nil
	}
}

// OptIndexStrictRows makes a row whose transformation fails abort
// Transform instead of being skipped.
func OptIndexStrictRows(strict bool) IndexOption {
	return func(i *Index) error {
		i.strict = strict
		return nil
	}
}

// NewIndex returns an Index stored at path.
func NewIndex(path string, opts ...IndexOption) (*Index, error) {
	i := &Index{
		path:   path,
		fields: []string{IDField},
		names:  make(map[string]struct{}),
		fs:     afero.NewOsFs(),
		log:    NopLogger{},
		stat:   NopStatter{},
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, errors.Wrap(err, "applying index option")
		}
	}
	return i, nil
}

// Path returns the location of the index file.
func (i *Index) Path() string { return i.path }

// Fields returns the fields of the index, "id" first.
func (i *Index) Fields() []string { return append([]string(nil), i.fields...) }

// columns are the fields other than id.
func (i *Index) columns() []string { return i.fields[1:] }

// Register adds sources. Source names must be unique within the index.
func (i *Index) Register(sources ...Source) error {
	for _, src := range sources {
		if src == nil {
			return errors.New("can't register a nil source")
		}
		if _, ok := i.names[src.Name()]; ok {
			return errors.Errorf("a source named '%s' is already registered", src.Name())
		}
		i.names[src.Name()] = struct{}{}
		i.sources = append(i.sources, src)
	}
	return nil
}

// Sources returns the registered sources in registration order.
func (i *Index) Sources() []Source {
	return append([]Source(nil), i.sources...)
}

// Collect outer joins the tables of all sources on their ids. Columns are
// named {source}.{column}, or keep their name for a source without a name,
// and follow registration order.
func (i *Index) Collect() (*Table, error) {
	if len(i.sources) == 0 {
		return nil, errors.New("no sources have been registered")
	}
	joined := NewTable()
	for _, src := range i.sources {
		t, err := src.Collect()
		if err != nil {
			return nil, err
		}
		name := src.Name()
		rename := func(col string) string {
			if name == "" {
				return col
			}
			return name + "." + col
		}
		for _, col := range t.Columns() {
			if joined.HasColumn(rename(col)) {
				return nil, errors.Errorf("source '%s': column '%s' collides with another source", name, rename(col))
			}
			joined.AddColumn(rename(col))
		}
		for _, id := range t.IDs() {
			joined.Ensure(id)
			row, _ := t.Row(id)
			for col, v := range row {
				joined.Set(id, rename(col), v)
			}
		}
		i.log.Debugf("collected %d rows and %d columns from source '%s'", t.Len(), len(t.Columns()), name)
	}
	joined.Sort()
	i.stat.Count("index.collected", int64(joined.Len()), 1)
	i.stat.Gauge("index.columns", float64(len(joined.Columns())), 1)
	return joined, nil
}

// Transform evaluates the transformer on every row of t, with the row's id
// available as "id". The result holds the columns of t followed by the
// values the transformer produces. Rows whose evaluation fails are logged
// and skipped unless the index is strict. Without a transformer t is
// returned as it is.
func (i *Index) Transform(t *Table) (*Table, error) {
	if i.transformer == nil {
		i.log.Warnf("index has no transformer, returning the table unchanged")
		return t, nil
	}
	if err := i.transformer.Compile(); err != nil {
		return nil, err
	}
	out := NewTable(without(t.Columns(), IDField)...)
	for _, col := range i.transformer.Outputs() {
		if col != IDField {
			out.AddColumn(col)
		}
	}
	var skipped int64
	for _, id := range t.IDs() {
		row, _ := t.Row(id)
		row[IDField] = S(id)
		vals, err := i.transformer.Evaluate(row, false)
		if err != nil {
			if i.strict {
				return nil, errors.Wrapf(err, "transforming row '%s'", id)
			}
			i.log.Warnf("skipping row '%s': %v", id, err)
			skipped++
			continue
		}
		out.Ensure(id)
		for col, v := range vals {
			if col != IDField && out.HasColumn(col) {
				out.Set(id, col, v)
			}
		}
	}
	i.stat.Count("index.transformed", int64(out.Len()), 1)
	i.stat.Count("index.skipped", skipped, 1)
	return out, nil
}

// Update upserts the rows of t into the index data. Only index fields are
// kept. A null cell in t leaves the existing value in place.
func (i *Index) Update(t *Table) error {
	data, err := i.Data()
	if err != nil {
		return err
	}
	var inserted, updated int64
	for _, id := range t.IDs() {
		if !data.Has(id) {
			data.Ensure(id)
			inserted++
		} else {
			updated++
		}
		for _, col := range i.columns() {
			if !t.HasColumn(col) {
				continue
			}
			if v := t.Get(id, col); !IsNull(v) {
				data.Set(id, col, v)
			}
		}
	}
	data.Sort()
	i.stat.Count("index.inserted", inserted, 1)
	i.stat.Count("index.updated", updated, 1)
	return nil
}

// Data returns the index table, loading it from the index file on first
// use or starting empty if there is none.
func (i *Index) Data() (*Table, error) {
	if i.data != nil {
		return i.data, nil
	}
	err := i.Load()
	if errors.Cause(err) == ErrIndexNotFound {
		i.data = NewTable(i.columns()...)
		return i.data, nil
	}
	return i.data, err
}

// HasFile reports whether the index file exists.
func (i *Index) HasFile() bool {
	ok, err := afero.Exists(i.fs, i.path)
	return err == nil && ok
}

// Load reads the index file. Cells are loaded as strings, empty cells as
// null. Columns of the file that are not index fields are dropped.
func (i *Index) Load() error {
	f, err := i.fs.Open(i.path)
	if os.IsNotExist(err) {
		return ErrIndexNotFound
	} else if err != nil {
		return errors.Wrap(err, "opening index")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return &ParseError{Path: i.path, Err: errors.New("empty file")}
	} else if err != nil {
		return &ParseError{Path: i.path, Line: 1, Err: err}
	}
	idCol := -1
	for n, col := range header {
		if col == IDField {
			idCol = n
		}
	}
	if idCol < 0 {
		return &ParseError{Path: i.path, Line: 1, Err: errors.Errorf("no '%s' column in %v", IDField, header)}
	}

	data := NewTable(i.columns()...)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return &ParseError{Path: i.path, Line: line, Err: err}
		}
		id := rec[idCol]
		if id == "" {
			return &ParseError{Path: i.path, Line: line, Err: errors.New("empty id")}
		}
		row := make(Record, len(i.columns()))
		for n, col := range header {
			if n == idCol || !data.HasColumn(col) || rec[n] == "" {
				continue
			}
			row[col] = S(rec[n])
		}
		if err := data.Insert(id, row); err != nil {
			return &ParseError{Path: i.path, Line: line, Err: err}
		}
	}
	i.data = data
	return nil
}

// Save writes the index data to the index file: an "id" column followed by
// the other fields, one row per id in id order.
func (i *Index) Save() error {
	data, err := i.Data()
	if err != nil {
		return err
	}
	f, err := i.fs.Create(i.path)
	if err != nil {
		return errors.Wrap(err, "creating index file")
	}
	w := csv.NewWriter(f)
	if err := w.Write(i.fields); err != nil {
		f.Close()
		return errors.Wrap(err, "writing header")
	}
	data.Sort()
	rec := make([]string, len(i.fields))
	for _, id := range data.IDs() {
		rec[0] = id
		for n, col := range i.columns() {
			rec[n+1] = cell(data.Get(id, col))
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing row '%s'", id)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "flushing index")
	}
	return errors.Wrap(f.Close(), "closing index file")
}

// Clear deletes the index file and forgets the index data.
func (i *Index) Clear() error {
	i.data = nil
	for _, src := range i.sources {
		if r, ok := src.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
	if !i.HasFile() {
		return nil
	}
	return errors.Wrap(i.fs.Remove(i.path), "removing index file")
}

// Make collects, transforms, updates and saves the index.
func (i *Index) Make() error {
	start := time.Now()
	collected, err := i.Collect()
	if err != nil {
		return errors.Wrap(err, "collecting")
	}
	i.log.Printf("collected %d rows with %d columns", collected.Len(), len(collected.Columns()))
	i.log.Debugf("columns: %v", collected.Columns())
	transformed, err := i.Transform(collected)
	if err != nil {
		return errors.Wrap(err, "transforming")
	}
	if err := i.Update(transformed); err != nil {
		return errors.Wrap(err, "updating")
	}
	if err := i.Save(); err != nil {
		return errors.Wrap(err, "saving")
	}
	i.log.Printf("saved %d rows to %s", i.data.Len(), i.path)
	i.stat.Gauge("index.rows", float64(i.data.Len()), 1)
	i.stat.Timing("index.make", time.Since(start), 1)
	return nil
}

func cell(v Value) string {
	if IsNull(v) {
		return ""
	}
	return String(v)
}

func without(list []string, s string) []string {
	ret := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			ret = append(ret, item)
		}
	}
	return ret
}
