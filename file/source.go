package file

import (
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/catafolk/catafolk"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Internal columns added to every file entry.
const (
	PathField     = catafolk.InternalPrefix + "path"
	ChecksumField = catafolk.InternalPrefix + "checksum"
	FormatField   = catafolk.InternalPrefix + "format"
	NameField     = catafolk.InternalPrefix + "name"
)

// Source is a catafolk.Source with one row per file matching a glob
// pattern below a directory. A row holds the file's metadata plus its
// relative path, checksum, format and name.
type Source struct {
	*catafolk.BaseSource

	dir             string
	pattern         string
	exclude         []string
	useFilenameAsID bool
	fileOpts        []FileOption
	fs              afero.Fs
	cache           Cache
	log             catafolk.Logger
	srcOpts         []catafolk.SourceOption

	files []*File
}

// SrcOption is a functional option for the file Source.
type SrcOption func(s *Source) error

// OptSrcFs sets the filesystem files are found and read on.
func OptSrcFs(fs afero.Fs) SrcOption {
	return func(s *Source) error {
		s.fs = fs
		return nil
	}
}

// OptSrcExclude drops files whose path relative to the directory matches
// any of the patterns.
func OptSrcExclude(patterns ...string) SrcOption {
	return func(s *Source) error {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return errors.Errorf("invalid exclude pattern '%s'", p)
			}
		}
		s.exclude = append(s.exclude, patterns...)
		return nil
	}
}

// OptSrcFileOptions sets the options every file is opened with.
func OptSrcFileOptions(opts ...FileOption) SrcOption {
	return func(s *Source) error {
		s.fileOpts = append(s.fileOpts, opts...)
		return nil
	}
}

// OptSrcUseFilenameAsID controls whether the file name is the row id.
// Defaults to true; when false the id comes from the source options.
func OptSrcUseFilenameAsID(use bool) SrcOption {
	return func(s *Source) error {
		s.useFilenameAsID = use
		return nil
	}
}

// OptSrcCache sets a metadata cache keyed by file checksum.
func OptSrcCache(c Cache) SrcOption {
	return func(s *Source) error {
		s.cache = c
		return nil
	}
}

// OptSrcLogger sets the logger of the source.
func OptSrcLogger(l catafolk.Logger) SrcOption {
	return func(s *Source) error {
		s.log = l
		return nil
	}
}

// OptSrcSourceOptions passes options through to the underlying BaseSource.
func OptSrcSourceOptions(opts ...catafolk.SourceOption) SrcOption {
	return func(s *Source) error {
		s.srcOpts = append(s.srcOpts, opts...)
		return nil
	}
}

// NewSource gets a new file source named name for the files in dir that
// match pattern (doublestar syntax, relative to dir).
func NewSource(name, dir, pattern string, opts ...SrcOption) (*Source, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid file pattern '%s'", pattern)
	}
	s := &Source{
		dir:             dir,
		pattern:         pattern,
		useFilenameAsID: true,
		fs:              afero.NewOsFs(),
		log:             catafolk.NopLogger{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	srcOpts := append([]catafolk.SourceOption{catafolk.OptSourceLogger(s.log)}, s.srcOpts...)
	if s.useFilenameAsID {
		srcOpts = append(srcOpts, catafolk.OptSourceIDField(NameField))
	}
	base, err := catafolk.NewBaseSource(name, s, srcOpts...)
	if err != nil {
		return nil, err
	}
	s.BaseSource = base
	return s, nil
}

// Paths returns the paths relative to the directory of all matching files
// that are not excluded, sorted.
func (s *Source) Paths() ([]string, error) {
	matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(s.fs, s.dir)), s.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s in %s", s.pattern, s.dir)
	}
	paths := matches[:0]
	for _, m := range matches {
		if !s.excluded(m) {
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Source) excluded(rel string) bool {
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

// Files opens every matching file once. It warns when nothing matched.
func (s *Source) Files() ([]*File, error) {
	if s.files != nil {
		return s.files, nil
	}
	paths, err := s.Paths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		s.log.Warnf("source '%s': no files were found matching %s in %s", s.Name(), s.pattern, s.dir)
	}
	opts := append([]FileOption{OptFileFs(s.fs)}, s.fileOpts...)
	files := make([]*File, 0, len(paths))
	var errs *multierror.Error
	for _, p := range paths {
		f, err := Open(filepath.Join(s.dir, filepath.FromSlash(p)), opts...)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		files = append(files, f)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	s.files = files
	return files, nil
}

// Reset forgets the matched files and the collected table.
func (s *Source) Reset() {
	s.files = nil
	s.BaseSource.Reset()
}

// Rows implements catafolk.RowProducer. Every file is read; all read
// failures are reported together.
func (s *Source) Rows() ([]string, []catafolk.Record, error) {
	files, err := s.Files()
	if err != nil {
		return nil, nil, err
	}
	rows := make([]catafolk.Record, 0, len(files))
	var errs *multierror.Error
	for _, f := range files {
		row, err := s.entry(f)
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "file %s", f.Path()))
			continue
		}
		rows = append(rows, row)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, nil, err
	}
	return catafolk.ColumnsOf(rows), rows, nil
}

func (s *Source) entry(f *File) (catafolk.Record, error) {
	checksum, err := f.Checksum()
	if err != nil {
		return nil, err
	}
	md, err := s.metadata(f, checksum)
	if err != nil {
		return nil, err
	}
	rel, err := f.Relpath(s.dir)
	if err != nil {
		return nil, err
	}
	row := copyRecord(md)
	row[PathField] = catafolk.S(rel)
	row[ChecksumField] = catafolk.S(checksum)
	row[FormatField] = catafolk.S(f.Format())
	row[NameField] = catafolk.S(f.Name())
	return row, nil
}

func (s *Source) metadata(f *File, checksum string) (catafolk.Record, error) {
	if s.cache == nil {
		return f.Metadata()
	}
	md, ok, err := s.cache.Get(checksum)
	if err != nil {
		s.log.Warnf("reading cached metadata of %s: %v", f.Path(), err)
	} else if ok {
		f.SetMetadata(md)
		return md, nil
	}
	md, err = f.Metadata()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(checksum, md); err != nil {
		s.log.Warnf("caching metadata of %s: %v", f.Path(), err)
	}
	return md, nil
}
