package file

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/catafolk/catafolk"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Supported file formats.
const (
	FormatInfer = "infer"
	FormatKern  = "kern"
	FormatXML   = "xml"
)

var extensions = map[string]string{
	".krn":      FormatKern,
	".xml":      FormatXML,
	".musicxml": FormatXML,
}

// InferFormat returns the format belonging to the extension of path, or
// the empty string when the extension is unknown.
func InferFormat(path string) string {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// MetadataReader extracts the metadata of one file format.
type MetadataReader func(r io.Reader) (catafolk.Record, error)

var readers = map[string]MetadataReader{
	FormatKern: ReadKern,
	FormatXML:  ReadXML,
}

// File is a music file whose metadata and checksum are read once and kept
// until Reset.
type File struct {
	path     string
	name     string
	format   string
	encoding encoding.Encoding
	fs       afero.Fs

	metadata catafolk.Record
	checksum string
}

// Options are the per-file settings a dataset can pass under a file
// source's "file_options" key.
type Options struct {
	Format   string `mapstructure:"format"`
	Encoding string `mapstructure:"encoding"`
}

// FileOption is a functional option for Open.
type FileOption func(f *File) error

// OptFileFs sets the filesystem the file lives on.
func OptFileFs(fs afero.Fs) FileOption {
	return func(f *File) error {
		f.fs = fs
		return nil
	}
}

// OptFileFormat fixes the format instead of inferring it from the
// extension.
func OptFileFormat(format string) FileOption {
	return func(f *File) error {
		if format == "" || format == FormatInfer {
			return nil
		}
		if _, ok := readers[format]; !ok {
			return errors.Errorf("unknown file format '%s'", format)
		}
		f.format = format
		return nil
	}
}

// OptFileEncoding sets the text encoding of kern files by its WHATWG name,
// e.g. "latin1" or "utf-8". XML files declare their own encoding.
func OptFileEncoding(name string) FileOption {
	return func(f *File) error {
		if name == "" {
			return nil
		}
		enc, err := htmlindex.Get(name)
		if err != nil {
			return errors.Wrapf(err, "unknown encoding '%s'", name)
		}
		f.encoding = enc
		return nil
	}
}

// OptFileOptions applies decoded Options.
func OptFileOptions(o Options) FileOption {
	return func(f *File) error {
		if err := OptFileFormat(o.Format)(f); err != nil {
			return err
		}
		return OptFileEncoding(o.Encoding)(f)
	}
}

// Open returns the File at path. The file must exist and its format must
// be known.
func Open(path string, opts ...FileOption) (*File, error) {
	f := &File{
		path: path,
		fs:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.format == "" {
		f.format = InferFormat(path)
		if f.format == "" {
			return nil, errors.Errorf("unknown file format of %s", path)
		}
	}
	exists, err := afero.Exists(f.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "checking %s", path)
	}
	if !exists {
		return nil, errors.Errorf("file does not exist: %s", path)
	}
	base := filepath.Base(path)
	f.name = strings.TrimSuffix(base, filepath.Ext(base))
	return f, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Name returns the file name without directory and extension.
func (f *File) Name() string { return f.name }

// Format returns the file format.
func (f *File) Format() string { return f.format }

func (f *File) String() string {
	return fmt.Sprintf("<File name=%s format=%s>", f.name, f.format)
}

// Metadata returns the metadata found in the file. Properties such as the
// path are not part of it.
func (f *File) Metadata() (catafolk.Record, error) {
	if f.metadata != nil {
		return f.metadata, nil
	}
	r, err := f.fs.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	defer r.Close()
	var content io.Reader = r
	if f.encoding != nil && f.format != FormatXML {
		content = f.encoding.NewDecoder().Reader(r)
	}
	md, err := readers[f.format](content)
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata of %s", f.path)
	}
	f.metadata = md
	return md, nil
}

// SetMetadata stores metadata obtained elsewhere, e.g. from a cache.
func (f *File) SetMetadata(md catafolk.Record) {
	f.metadata = md
}

// Checksum returns the md5 hex digest of the file's bytes.
func (f *File) Checksum() (string, error) {
	if f.checksum != "" {
		return f.checksum, nil
	}
	r, err := f.fs.Open(f.path)
	if err != nil {
		return "", errors.Wrap(err, "opening file")
	}
	defer r.Close()
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrapf(err, "hashing %s", f.path)
	}
	f.checksum = hex.EncodeToString(h.Sum(nil))
	return f.checksum, nil
}

// Relpath returns the path of the file relative to root.
func (f *File) Relpath(root string) (string, error) {
	rel, err := filepath.Rel(root, f.path)
	if err != nil {
		return "", errors.Wrapf(err, "relative path of %s", f.path)
	}
	return filepath.ToSlash(rel), nil
}

// Reset forgets the stored metadata and checksum. The file itself is left
// untouched.
func (f *File) Reset() {
	f.metadata = nil
	f.checksum = ""
}

// ChecksumStrings returns the md5 hex digest of the concatenated strings.
func ChecksumStrings(ss []string) string {
	h := md5.New()
	for _, s := range ss {
		io.WriteString(h, s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

var referenceRecord = regexp.MustCompile(`^!{3}([^:]+):[ \t]*(.+)`)

// ReadKern collects the reference records ("!!!KEY: value") of a kern
// file. A key that occurs more than once maps to the list of its values.
// The key "id" is stored as "_id".
func ReadKern(r io.Reader) (catafolk.Record, error) {
	md := make(catafolk.Record)
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), 1024*1024)
	for scan.Scan() {
		m := referenceRecord.FindStringSubmatch(scan.Text())
		if m == nil {
			continue
		}
		key, value := m[1], catafolk.S(m[2])
		if key == catafolk.IDField {
			key = "_id"
		}
		switch prev := md[key].(type) {
		case nil:
			md[key] = value
		case catafolk.Sequence:
			md[key] = append(prev, value)
		default:
			md[key] = catafolk.Sequence{prev, value}
		}
	}
	return md, errors.Wrap(scan.Err(), "scanning")
}

// metadataContainers hold the metadata elements of an XML file.
var metadataContainers = []string{"work", "identification"}

// ReadXML collects the elements inside <work> and <identification> that
// carry text of their own. Later elements with the same tag overwrite
// earlier ones.
func ReadXML(r io.Reader) (catafolk.Record, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing xml")
	}
	md := make(catafolk.Record)
	for _, tag := range metadataContainers {
		for _, container := range xmlquery.Find(doc, "//"+tag) {
			for _, el := range xmlquery.Find(container, "descendant-or-self::*") {
				if text := ownText(el); strings.TrimSpace(text) != "" {
					md[el.Data] = catafolk.S(text)
				}
			}
		}
	}
	return md, nil
}

// ownText returns the text of n that precedes its first child element.
func ownText(n *xmlquery.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil && c.Type != xmlquery.ElementNode; c = c.NextSibling {
		if c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
