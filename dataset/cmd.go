package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/boltdb"
	"github.com/catafolk/catafolk/file"
	"github.com/catafolk/catafolk/leveldb"
	"github.com/catafolk/catafolk/termstat"
	"github.com/hashicorp/go-hclog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Cache kinds accepted by Main.
const (
	CacheNone    = "none"
	CacheLevelDB = "leveldb"
	CacheBolt    = "bolt"
)

// Main builds the indices of one or more datasets.
type Main struct {
	DatasetsDir string   `help:"Directory holding one directory per dataset."`
	Datasets    []string `help:"Datasets to build. Arguments are added to this list."`
	Schema      string   `help:"CSV file with the index fields and their order."`
	NoClear     bool     `help:"Merge into the existing index instead of rebuilding it."`
	Strict      bool     `help:"Abort when a row fails to transform."`
	Cache       string   `help:"Metadata cache: none, leveldb or bolt."`
	CacheDir    string   `help:"Directory of the metadata cache."`
	Verbose     bool     `help:"Enable debug logging."`
	Stats       bool     `help:"Print index statistics when done."`

	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

// NewMain returns a Main with default settings.
func NewMain() *Main {
	return &Main{
		DatasetsDir: "datasets",
		Schema:      SchemaFile,
		Cache:       CacheNone,
		CacheDir:    ".catafolk-cache",
		fs:          afero.NewOsFs(),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// SetOutput sets where results and logs are written.
func (m *Main) SetOutput(stdout, stderr io.Writer) {
	m.stdout, m.stderr = stdout, stderr
}

// SetOutput sets where results and logs are written.
func (m *ChecksumMain) SetOutput(stdout, stderr io.Writer) {
	m.stdout, m.stderr = stdout, stderr
}

func (m *Main) logger() catafolk.Logger {
	return catafolk.NewHCLogger("catafolk", m.Verbose, &hclog.LoggerOptions{Output: m.stderr})
}

// Run makes every dataset in turn and stops at the first failure.
func (m *Main) Run() (err error) {
	if len(m.Datasets) == 0 {
		return errors.New("no datasets given")
	}
	log := m.logger()
	fields, err := LoadSchema(m.fs, m.Schema, log)
	if err != nil {
		return errors.Wrap(err, "loading schema")
	}
	namespace, closeCache, err := m.openCache()
	if err != nil {
		return errors.Wrap(err, "opening cache")
	}
	defer func() {
		if cerr := closeCache(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing cache")
		}
	}()

	var stats catafolk.Statter = catafolk.NopStatter{}
	if m.Stats {
		c := termstat.NewCollector(m.stdout)
		defer c.Flush()
		stats = c
	}

	for _, id := range m.Datasets {
		start := time.Now()
		opts := []Option{
			OptDir(filepath.Join(m.DatasetsDir, "{dataset_id}")),
			OptFields(fields...),
			OptFs(m.fs),
			OptLogger(log),
			OptStatter(stats),
			OptStrictRows(m.Strict),
		}
		if namespace != nil {
			cache, err := namespace(id)
			if err != nil {
				return errors.Wrapf(err, "cache of %s", id)
			}
			opts = append(opts, OptCache(cache))
		}
		d, err := New(id, opts...)
		if err != nil {
			return err
		}
		if err := d.Make(!m.NoClear); err != nil {
			return err
		}
		stats.Timing("dataset.make", time.Since(start), 1)
		log.Printf("dataset %s done in %v", id, time.Since(start))
	}
	return nil
}

func (m *Main) openCache() (namespace func(id string) (file.Cache, error), closeFn func() error, err error) {
	switch m.Cache {
	case "", CacheNone:
		return nil, func() error { return nil }, nil
	case CacheLevelDB:
		c, err := leveldb.NewCache(m.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		return func(id string) (file.Cache, error) {
			ns, err := c.Namespace(id)
			if err != nil {
				return nil, err
			}
			return ns, nil
		}, c.Close, nil
	case CacheBolt:
		if err := os.MkdirAll(m.CacheDir, 0700); err != nil {
			return nil, nil, errors.Wrap(err, "making cache directory")
		}
		c, err := boltdb.NewCache(filepath.Join(m.CacheDir, "metadata.db"))
		if err != nil {
			return nil, nil, err
		}
		return func(id string) (file.Cache, error) {
			ns, err := c.Namespace(id)
			if err != nil {
				return nil, err
			}
			return ns, nil
		}, c.Close, nil
	}
	return nil, nil, errors.Errorf("unknown cache '%s', expected none, leveldb or bolt", m.Cache)
}

// ChecksumMain prints a checksum per dataset.
type ChecksumMain struct {
	DatasetsDir string   `help:"Directory holding one directory per dataset."`
	Datasets    []string `help:"Datasets to checksum. Arguments are added to this list."`
	Schema      string   `help:"CSV file with the index fields and their order."`
	Refresh     bool     `help:"Hash the data files instead of reading checksums from the index."`
	Verbose     bool     `help:"Enable debug logging."`

	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

// NewChecksumMain returns a ChecksumMain with default settings.
func NewChecksumMain() *ChecksumMain {
	return &ChecksumMain{
		DatasetsDir: "datasets",
		Schema:      SchemaFile,
		fs:          afero.NewOsFs(),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// Run prints a table of dataset ids and checksums.
func (m *ChecksumMain) Run() error {
	if len(m.Datasets) == 0 {
		return errors.New("no datasets given")
	}
	log := catafolk.NewHCLogger("catafolk", m.Verbose, &hclog.LoggerOptions{Output: m.stderr})
	fields, err := LoadSchema(m.fs, m.Schema, log)
	if err != nil {
		return errors.Wrap(err, "loading schema")
	}
	tw := newTableWriter(m.stdout)
	tw.AppendHeader(table.Row{"Dataset", "Checksum"})
	for _, id := range m.Datasets {
		d, err := New(id,
			OptDir(filepath.Join(m.DatasetsDir, "{dataset_id}")),
			OptFields(fields...),
			OptFs(m.fs),
			OptLogger(log))
		if err != nil {
			return err
		}
		sum, err := d.Checksum(m.Refresh)
		if err != nil {
			return errors.Wrapf(err, "checksum of %s", id)
		}
		tw.AppendRow(table.Row{id, sum})
	}
	tw.Render()
	return nil
}

// PrintOperations writes a table of the registered operations.
func PrintOperations(w io.Writer) {
	tw := newTableWriter(w)
	tw.AppendHeader(table.Row{"Operation", "Arity"})
	for _, name := range catafolk.Operations() {
		_, arity, _ := catafolk.Lookup(name)
		tw.AppendRow(table.Row{name, arity})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d operations", len(catafolk.Operations()))})
	tw.Render()
}

// newTableWriter returns a table writer that keeps headers and footers as
// written.
func newTableWriter(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	return tw
}
