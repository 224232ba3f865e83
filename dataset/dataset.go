// Package dataset builds the index of one dataset from its configuration
// file and keeps it up to date.
package dataset

import (
	"path/filepath"
	"strings"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/aws/s3"
	"github.com/catafolk/catafolk/csv"
	"github.com/catafolk/catafolk/file"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrDatasetNotFound is returned when the directory of a dataset does not
// exist.
var ErrDatasetNotFound = errors.New("dataset directory does not exist")

// Defaults.
const (
	DefaultDir        = "datasets/{dataset_id}"
	DefaultConfigFile = "dataset.yml"
	DefaultJSONConfig = "config.json"
	DefaultIndexFile  = "index.csv"
	ChecksumField     = "checksum"
)

// Dataset is a directory holding a configuration file, data files and the
// generated index.
type Dataset struct {
	id             string
	dir            string
	dirTemplate    string
	configFile     string
	jsonConfigFile string
	indexFile      string
	fields         []string
	strict         bool
	override       *catafolk.Params

	fs    afero.Fs
	log   catafolk.Logger
	stats catafolk.Statter
	cache file.Cache
	s3    []s3.OpenerOption

	config      *Config
	transformer *catafolk.Transformer
	sources     []catafolk.Source
	index       *catafolk.Index
}

// Option is a functional option for New.
type Option func(d *Dataset) error

// OptDir sets the dataset directory. "{dataset_id}" is replaced by the id.
func OptDir(template string) Option {
	return func(d *Dataset) error {
		d.dirTemplate = template
		return nil
	}
}

// OptConfigFile sets the name of the YAML configuration file.
func OptConfigFile(name string) Option {
	return func(d *Dataset) error {
		d.configFile = name
		return nil
	}
}

// OptIndexFile sets the name of the index file.
func OptIndexFile(name string) Option {
	return func(d *Dataset) error {
		d.indexFile = name
		return nil
	}
}

// OptFields sets the index fields.
func OptFields(fields ...string) Option {
	return func(d *Dataset) error {
		d.fields = fields
		return nil
	}
}

// OptOverride replaces configuration keys ("transformations", "sources")
// with the ones in p.
func OptOverride(p *catafolk.Params) Option {
	return func(d *Dataset) error {
		d.override = p
		return nil
	}
}

// OptStrictRows makes a row that fails to transform abort the build.
func OptStrictRows(strict bool) Option {
	return func(d *Dataset) error {
		d.strict = strict
		return nil
	}
}

// OptFs sets the filesystem the dataset lives on.
func OptFs(fs afero.Fs) Option {
	return func(d *Dataset) error {
		d.fs = fs
		return nil
	}
}

// OptLogger sets the logger.
func OptLogger(l catafolk.Logger) Option {
	return func(d *Dataset) error {
		d.log = l
		return nil
	}
}

// OptStatter sets the statter of the index.
func OptStatter(s catafolk.Statter) Option {
	return func(d *Dataset) error {
		d.stats = s
		return nil
	}
}

// OptCache sets the metadata cache of the file sources.
func OptCache(c file.Cache) Option {
	return func(d *Dataset) error {
		d.cache = c
		return nil
	}
}

// OptS3 passes options to the opener of s3:// csv sources.
func OptS3(opts ...s3.OpenerOption) Option {
	return func(d *Dataset) error {
		d.s3 = append(d.s3, opts...)
		return nil
	}
}

// New loads the dataset id: its configuration, transformer, sources and
// index.
func New(id string, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		id:             id,
		dirTemplate:    DefaultDir,
		configFile:     DefaultConfigFile,
		jsonConfigFile: DefaultJSONConfig,
		indexFile:      DefaultIndexFile,
		fields:         DefaultFields,
		fs:             afero.NewOsFs(),
		log:            catafolk.NopLogger{},
		stats:          catafolk.NopStatter{},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.dir = strings.Replace(d.dirTemplate, "{dataset_id}", id, -1)
	if ok, _ := afero.DirExists(d.fs, d.dir); !ok {
		return nil, errors.Wrapf(ErrDatasetNotFound, "dataset %s: %s", id, d.dir)
	}

	raw, err := d.loadConfig()
	if err != nil {
		return nil, err
	}
	for _, k := range d.override.Keys() {
		v, _ := d.override.Get(k)
		raw.Set(k, v)
	}
	if d.config, err = ParseConfig(raw); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", id)
	}
	if err := d.setupIndex(); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", id)
	}
	return d, nil
}

func (d *Dataset) setupIndex() error {
	idxOpts := []catafolk.IndexOption{
		catafolk.OptIndexFields(d.fields...),
		catafolk.OptIndexFs(d.fs),
		catafolk.OptIndexLogger(d.log),
		catafolk.OptIndexStatter(d.stats),
		catafolk.OptIndexStrictRows(d.strict),
	}
	if len(d.config.Transformations) > 0 {
		t, err := catafolk.NewTransformer(d.config.Transformations, catafolk.OptTransformerLogger(d.log))
		if err != nil {
			return errors.Wrap(err, "building transformer")
		}
		if err := t.Compile(); err != nil {
			return errors.Wrap(err, "compiling transformer")
		}
		d.transformer = t
		idxOpts = append(idxOpts, catafolk.OptIndexTransformer(t))
	}
	index, err := catafolk.NewIndex(filepath.Join(d.dir, d.indexFile), idxOpts...)
	if err != nil {
		return errors.Wrap(err, "creating index")
	}
	for _, sc := range d.config.Sources {
		src, err := d.newSource(sc)
		if err != nil {
			return errors.Wrapf(err, "source '%s'", sc.Name)
		}
		d.sources = append(d.sources, src)
	}
	if err := index.Register(d.sources...); err != nil {
		return errors.Wrap(err, "registering sources")
	}
	d.index = index
	return nil
}

func (d *Dataset) newSource(sc SourceConfig) (catafolk.Source, error) {
	var srcOpts []catafolk.SourceOption
	if len(sc.IDTransformations) > 0 {
		srcOpts = append(srcOpts, catafolk.OptSourceIDTransformations(sc.IDTransformations))
	}
	if sc.IDField != "" {
		srcOpts = append(srcOpts, catafolk.OptSourceIDField(sc.IDField))
	}
	switch sc.Type {
	case TypeFile:
		opts := []file.SrcOption{
			file.OptSrcFs(d.fs),
			file.OptSrcLogger(d.log),
			file.OptSrcExclude(sc.Exclude...),
			file.OptSrcFileOptions(file.OptFileOptions(sc.FileOptions)),
			file.OptSrcSourceOptions(srcOpts...),
		}
		if sc.UseFilenameAsID != nil {
			opts = append(opts, file.OptSrcUseFilenameAsID(*sc.UseFilenameAsID))
		}
		if d.cache != nil {
			opts = append(opts, file.OptSrcCache(d.cache))
		}
		return file.NewSource(sc.Name, d.dir, sc.FilePattern, opts...)
	case TypeCSV:
		path := sc.Path
		if !isURL(path) {
			path = filepath.Join(d.dir, path)
		}
		return csv.NewSource(sc.Name, path,
			csv.OptFs(d.fs),
			csv.OptLogger(d.log),
			csv.OptParams(sc.Options),
			csv.OptS3(d.s3...),
			csv.OptSourceOptions(srcOpts...))
	}
	return nil, errors.Errorf("unknown source type '%s'", sc.Type)
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || s3.IsURL(path)
}

// ID returns the dataset id.
func (d *Dataset) ID() string { return d.id }

// Dir returns the dataset directory.
func (d *Dataset) Dir() string { return d.dir }

// Config returns the parsed configuration.
func (d *Dataset) Config() *Config { return d.config }

// Index returns the index of the dataset.
func (d *Dataset) Index() *catafolk.Index { return d.index }

// Transformer returns the dataset transformer, or nil if the configuration
// has no transformations.
func (d *Dataset) Transformer() *catafolk.Transformer { return d.transformer }

// Sources returns the sources in configuration order.
func (d *Dataset) Sources() []catafolk.Source { return d.sources }

// Make builds the index and saves it. With clear the existing index is
// removed first; otherwise new data is merged into it.
func (d *Dataset) Make(clear bool) error {
	if clear {
		if err := d.index.Clear(); err != nil {
			return errors.Wrap(err, "clearing index")
		}
	}
	return errors.Wrapf(d.index.Make(), "making dataset %s", d.id)
}

// Checksum returns the md5 digest of the concatenated checksums of all
// files. With refresh the files are hashed again; otherwise the checksum
// column of the index is used.
func (d *Dataset) Checksum(refresh bool) (string, error) {
	var checksums []string
	if refresh {
		for _, src := range d.sources {
			fs, ok := src.(*file.Source)
			if !ok {
				continue
			}
			fs.Reset()
			files, err := fs.Files()
			if err != nil {
				return "", errors.Wrapf(err, "listing files of %s", fs.Name())
			}
			for _, f := range files {
				sum, err := f.Checksum()
				if err != nil {
					return "", err
				}
				checksums = append(checksums, sum)
			}
		}
		return file.ChecksumStrings(checksums), nil
	}
	data, err := d.index.Data()
	if err != nil {
		return "", errors.Wrap(err, "loading index")
	}
	if !data.HasColumn(ChecksumField) {
		return "", errors.Errorf("index of %s has no %s field", d.id, ChecksumField)
	}
	for _, v := range data.Column(ChecksumField) {
		if !catafolk.IsNull(v) {
			checksums = append(checksums, catafolk.String(v))
		}
	}
	return file.ChecksumStrings(checksums), nil
}
