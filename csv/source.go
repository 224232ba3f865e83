// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package csv

import (
	encsv "encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/aws/s3"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Source reads one CSV file into an id-keyed table. The first line holds
// the column names. Column types are inferred from the whole column unless
// Options.Dtype fixes them.
type Source struct {
	*catafolk.BaseSource

	opener  OpenStringer
	path    string
	fs      afero.Fs
	http    *retryablehttp.Client
	retries int
	s3opts  []s3.OpenerOption
	options Options
	log     catafolk.Logger
	srcOpts []catafolk.SourceOption
}

// Options are the reader settings a dataset can pass under a csv source's
// "options" key.
type Options struct {
	// Sep is the single character separating fields. Defaults to ",".
	Sep string `mapstructure:"sep"`
	// Comment marks lines to skip when it starts them.
	Comment string `mapstructure:"comment"`
	// Dtype is one of "", "str", "int", "float" or "bool". The empty
	// string infers a type per column.
	Dtype string `mapstructure:"dtype"`
	// NAValues are extra cell values read as null.
	NAValues []string `mapstructure:"na_values"`
}

// DecodeOptions maps a params mapping onto Options. Unknown keys are an
// error.
func DecodeOptions(p *catafolk.Params) (Options, error) {
	opts := Options{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, errors.Wrap(err, "creating decoder")
	}
	if err := dec.Decode(p.Map()); err != nil {
		return opts, errors.Wrap(err, "decoding csv options")
	}
	return opts, opts.validate()
}

func (o Options) validate() error {
	if o.Sep != "" && utf8.RuneCountInString(o.Sep) != 1 {
		return errors.Errorf("sep must be a single character, got %q", o.Sep)
	}
	if o.Comment != "" && utf8.RuneCountInString(o.Comment) != 1 {
		return errors.Errorf("comment must be a single character, got %q", o.Comment)
	}
	switch o.Dtype {
	case "", "str", "int", "float", "bool":
	default:
		return errors.Errorf("unsupported dtype %q", o.Dtype)
	}
	return nil
}

// Option is a functional option to pass to NewSource.
type Option func(*Source) error

// OptFs sets the filesystem local paths are opened on.
func OptFs(fs afero.Fs) Option {
	return func(s *Source) error {
		s.fs = fs
		return nil
	}
}

// OptOptions sets the reader options.
func OptOptions(o Options) Option {
	return func(s *Source) error {
		if err := o.validate(); err != nil {
			return err
		}
		s.options = o
		return nil
	}
}

// OptParams decodes the reader options from p.
func OptParams(p *catafolk.Params) Option {
	return func(s *Source) error {
		o, err := DecodeOptions(p)
		if err != nil {
			return err
		}
		s.options = o
		return nil
	}
}

// OptOpener replaces the opener derived from the path.
func OptOpener(o OpenStringer) Option {
	return func(s *Source) error {
		s.opener = o
		return nil
	}
}

// OptS3 passes options to the opener used for s3:// paths.
func OptS3(opts ...s3.OpenerOption) Option {
	return func(s *Source) error {
		s.s3opts = append(s.s3opts, opts...)
		return nil
	}
}

// OptHTTPClient sets the client used for http(s) URLs. Its retry policy
// decides how often a failed download is attempted.
func OptHTTPClient(c *retryablehttp.Client) Option {
	return func(s *Source) error {
		s.http = c
		return nil
	}
}

// OptMaxRetries sets how many times a failed download is retried.
func OptMaxRetries(n int) Option {
	return func(s *Source) error {
		if n < 0 {
			return errors.Errorf("max retries can't be negative, got %d", n)
		}
		s.retries = n
		return nil
	}
}

// OptLogger sets the logger of the source.
func OptLogger(l catafolk.Logger) Option {
	return func(s *Source) error {
		s.log = l
		return nil
	}
}

// OptSourceOptions passes options through to the underlying BaseSource,
// e.g. the id field.
func OptSourceOptions(opts ...catafolk.SourceOption) Option {
	return func(s *Source) error {
		s.srcOpts = append(s.srcOpts, opts...)
		return nil
	}
}

// NewSource creates a Source named name for the CSV at path, which may be a
// local path, an http(s) URL or an s3://bucket/key URL.
func NewSource(name, path string, options ...Option) (*Source, error) {
	s := &Source{
		path:    path,
		fs:      afero.NewOsFs(),
		retries: -1,
		log:     catafolk.NopLogger{},
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	if s.http == nil {
		s.http = retryablehttp.NewClient()
		s.http.Logger = leveledLogger{s.log}
	}
	if s.retries >= 0 {
		s.http.RetryMax = s.retries
	}
	if s.opener == nil {
		s.opener = &urlOpener{url: path, fs: s.fs, http: s.http, s3opts: s.s3opts}
	}
	srcOpts := append([]catafolk.SourceOption{catafolk.OptSourceLogger(s.log)}, s.srcOpts...)
	base, err := catafolk.NewBaseSource(name, s, srcOpts...)
	if err != nil {
		return nil, err
	}
	s.BaseSource = base
	return s, nil
}

// leveledLogger sends retryablehttp's messages to a catafolk.Logger.
type leveledLogger struct {
	catafolk.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.Warnf("%s %v", msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.Warnf("%s %v", msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.Debugf("%s %v", msg, kv) }

// Path returns the location the source reads from.
func (s *Source) Path() string { return s.opener.String() }

// Opener is an interface to a resource which can be repeatedly Opened (and the
// returned ReadCloser can be subsequently read). Each call to Open should
// return a ReadCloser which reads from the beginning of the resource.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// OpenStringer is an Opener which also has a String method which should return
// the name of the resource being opened (e.g. a file or URL).
type OpenStringer interface {
	fmt.Stringer
	Opener
}

// urlOpener turns a URL or file path into an OpenStringer.
type urlOpener struct {
	url    string
	fs     afero.Fs
	http   *retryablehttp.Client
	s3opts []s3.OpenerOption
}

func (u *urlOpener) Open() (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(u.url, "http://") || strings.HasPrefix(u.url, "https://"):
		resp, err := u.http.Get(u.url)
		if err != nil {
			return nil, errors.Wrap(err, "getting via http")
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, errors.Errorf("getting %s: %s", u.url, resp.Status)
		}
		return resp.Body, nil
	case s3.IsURL(u.url):
		o, err := s3.NewOpener(u.url, u.s3opts...)
		if err != nil {
			return nil, err
		}
		return o.Open()
	default:
		f, err := u.fs.Open(u.url)
		if err != nil {
			return nil, errors.Wrap(err, "opening file")
		}
		return f, nil
	}
}

func (u *urlOpener) String() string {
	return u.url
}

// Rows implements catafolk.RowProducer.
func (s *Source) Rows() ([]string, []catafolk.Record, error) {
	header, cells, err := s.read()
	if err != nil {
		return nil, nil, err
	}
	return s.convert(header, cells)
}

func (s *Source) read() ([]string, [][]string, error) {
	content, err := s.opener.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening")
	}
	defer content.Close()

	r := encsv.NewReader(content)
	r.FieldsPerRecord = -1
	if s.options.Sep != "" {
		r.Comma, _ = utf8.DecodeRuneInString(s.options.Sep)
	}
	if s.options.Comment != "" {
		r.Comment, _ = utf8.DecodeRuneInString(s.options.Comment)
	}

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, &catafolk.ParseError{Path: s.opener.String(), Err: errors.New("no header")}
	} else if err != nil {
		return nil, nil, s.parseError(err)
	}
	if err := validateHeader(header); err != nil {
		return nil, nil, &catafolk.ParseError{Path: s.opener.String(), Line: 1, Err: err}
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, s.parseError(err)
		}
		line, _ := r.FieldPos(0)
		cells, err := s.fit(header, row, line)
		if err != nil {
			return nil, nil, &catafolk.ParseError{Path: s.opener.String(), Line: line, Err: err}
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

func (s *Source) parseError(err error) error {
	if perr, ok := err.(*encsv.ParseError); ok {
		return &catafolk.ParseError{Path: s.opener.String(), Line: perr.Line, Err: perr.Err}
	}
	return errors.Wrapf(err, "reading %s", s.opener)
}

// fit checks row against the header. Extra cells are dropped and logged
// when they hold data.
func (s *Source) fit(header, row []string, line int) ([]string, error) {
	if len(header) > len(row) {
		return nil, errors.Errorf("header/row len mismatch: %dvs%d, %v and %v", len(header), len(row), header, row)
	}
	for i := len(header); i < len(row); i++ {
		if strings.TrimSpace(row[i]) != "" {
			s.log.Warnf("%s line %d: data in non headered field %d: %v", s.opener, line, i, row)
			break
		}
	}
	return row[:len(header)], nil
}

func (s *Source) convert(header []string, cells [][]string) ([]string, []catafolk.Record, error) {
	recs := make([]catafolk.Record, len(cells))
	for i := range recs {
		recs[i] = make(catafolk.Record, len(header))
	}
	na := naSet(s.options.NAValues)
	for j, col := range header {
		column := make([]string, len(cells))
		for i, row := range cells {
			column[i] = row[j]
		}
		values, err := convertColumn(column, s.options.Dtype, na)
		if err != nil {
			return nil, nil, &catafolk.ParseError{Path: s.opener.String(), Err: errors.Wrapf(err, "column %s", col)}
		}
		for i, v := range values {
			recs[i][col] = v
		}
	}
	return header, recs, nil
}

// defaultNA are the cell values read as null.
var defaultNA = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a",
	"nan", "null",
}

func naSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaultNA)+len(extra))
	for _, v := range defaultNA {
		set[v] = struct{}{}
	}
	for _, v := range extra {
		set[v] = struct{}{}
	}
	return set
}

type parser func(string) (catafolk.Value, error)

func parseInt(s string) (catafolk.Value, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, err
	}
	return catafolk.I(i), nil
}

func parseFloat(s string) (catafolk.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, err
	}
	return catafolk.F(f), nil
}

func parseBool(s string) (catafolk.Value, error) {
	switch strings.TrimSpace(s) {
	case "True", "TRUE", "true":
		return catafolk.B(true), nil
	case "False", "FALSE", "false":
		return catafolk.B(false), nil
	}
	return nil, errors.Errorf("invalid bool %q", s)
}

func parseString(s string) (catafolk.Value, error) {
	return catafolk.S(s), nil
}

var parsers = map[string]parser{
	"int":   parseInt,
	"float": parseFloat,
	"bool":  parseBool,
	"str":   parseString,
}

// inference order: the first parser accepting every cell wins.
var inferred = []parser{parseInt, parseFloat, parseBool, parseString}

func convertColumn(column []string, dtype string, na map[string]struct{}) ([]catafolk.Value, error) {
	candidates := inferred
	if dtype != "" {
		candidates = []parser{parsers[dtype]}
	}
	var lastErr error
	for _, parse := range candidates {
		values, err := parseColumn(column, parse, na)
		if err == nil {
			return values, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func parseColumn(column []string, parse parser, na map[string]struct{}) ([]catafolk.Value, error) {
	values := make([]catafolk.Value, len(column))
	for i, cell := range column {
		if _, ok := na[cell]; ok {
			continue
		}
		v, err := parse(cell)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		values[i] = v
	}
	return values, nil
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}
