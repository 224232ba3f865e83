package csv_test

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/catafolk/catafolk"
	s3open "github.com/catafolk/catafolk/aws/s3"
	"github.com/catafolk/catafolk/csv"
	"github.com/catafolk/catafolk/mock"
	"github.com/catafolk/catafolk/test"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const items = `item_id,col1,col2,score,flag
item0,a,1,0.5,True
item1,b,2,,False
item2,c,,1.5,true
`

func mustSource(t *testing.T, content string, opts ...csv.Option) *csv.Source {
	t.Helper()
	fs := test.MemFs(t, map[string]string{"/data/items.csv": content})
	src, err := csv.NewSource("csv", "/data/items.csv", append([]csv.Option{csv.OptFs(fs)}, opts...)...)
	test.ErrNil(t, err, "NewSource")
	return src
}

func TestCSVSource(t *testing.T) {
	src := mustSource(t, items, csv.OptSourceOptions(catafolk.OptSourceIDField("item_id")))
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"item0", "item1", "item2"}, table.IDs(), "ids")
	test.MustBe(t, []string{"item_id", "col1", "col2", "score", "flag"}, table.Columns(), "columns")

	row, _ := table.Row("item1")
	test.MustBe(t, catafolk.Record{
		"item_id": catafolk.S("item1"),
		"col1":    catafolk.S("b"),
		"col2":    catafolk.I(2),
		"score":   nil,
		"flag":    catafolk.B(false),
	}, row, "item1")
	test.MustBe(t, catafolk.Value(nil), table.Get("item2", "col2"), "empty int cell")
	test.MustBe(t, catafolk.Value(catafolk.F(1.5)), table.Get("item2", "score"), "float")
	test.MustBe(t, "/data/items.csv", src.Path())
}

func TestCSVDtype(t *testing.T) {
	src := mustSource(t, items,
		csv.OptParams(catafolk.NewParams("dtype", "str")),
		csv.OptSourceOptions(catafolk.OptSourceIDField("item_id")))
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, catafolk.Value(catafolk.S("1")), table.Get("item0", "col2"), "string int")
	test.MustBe(t, catafolk.Value(catafolk.S("True")), table.Get("item0", "flag"), "string bool")
	test.MustBe(t, catafolk.Value(nil), table.Get("item1", "score"), "na stays null")

	src = mustSource(t, "id,n\n1,x\n", csv.OptOptions(csv.Options{Dtype: "int"}))
	if _, err := src.Collect(); err == nil {
		t.Fatal("expected error forcing a non-numeric column to int")
	}
}

func TestCSVOptions(t *testing.T) {
	src := mustSource(t, "# exported\nid;name\n1;a\n# skipped\n2;-\n",
		csv.OptParams(catafolk.NewParams("sep", ";", "comment", "#", "na_values", []interface{}{"-"})))
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"1", "2"}, table.IDs(), "ids")
	test.MustBe(t, []catafolk.Value{catafolk.S("a"), nil}, table.Column("name"), "names")

	bad := []*catafolk.Params{
		catafolk.NewParams("sep", ";;"),
		catafolk.NewParams("dtype", "date"),
		catafolk.NewParams("header", 0),
	}
	for _, p := range bad {
		if _, err := csv.DecodeOptions(p); err == nil {
			t.Fatalf("%v: expected error", p)
		}
	}
	opts, err := csv.DecodeOptions(catafolk.NewParams("sep", "\t"))
	test.ErrNil(t, err, "DecodeOptions")
	test.MustBe(t, csv.Options{Sep: "\t"}, opts)
}

func TestCSVParseErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"empty header":   "id,,x\n1,2,3\n",
		"dup header":     "id,a,a\n1,2,3\n",
		"short row":      "id,a,b\n1,2\n",
		"bare quote":     "id,a\n1,\"x\"y\n",
		"missing id col": "name\nx\n",
	}
	for name, content := range tests {
		src := mustSource(t, content)
		_, err := src.Collect()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if name == "missing id col" {
			continue
		}
		if _, ok := errors.Cause(err).(*catafolk.ParseError); !ok {
			t.Fatalf("%s: expected ParseError, got %T: %v", name, errors.Cause(err), err)
		}
	}
}

func TestCSVExtraCells(t *testing.T) {
	logger := &mock.RecordingLogger{}
	src := mustSource(t, "id,a\n1,x,\n2,y,oops\n", csv.OptLogger(logger))
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"a"}, table.Columns())
	test.MustBe(t, 1, len(logger.Warnings), "warnings")
}

type stringOpener string

func (o stringOpener) Open() (io.ReadCloser, error) {
	return ioutil.NopCloser(strings.NewReader(string(o))), nil
}

func (o stringOpener) String() string { return "inline" }

func TestCSVOpener(t *testing.T) {
	src, err := csv.NewSource("csv", "ignored", csv.OptOpener(stringOpener("id,v\n1,2\n")))
	test.ErrNil(t, err, "NewSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"1"}, table.IDs())
	test.MustBe(t, "inline", src.Path())
}

func fastClient(retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = time.Millisecond
	c.RetryWaitMax = time.Millisecond
	c.Logger = nil
	return c
}

func TestCSVHTTPRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "id,v\n1,2\n")
	}))
	defer srv.Close()

	src, err := csv.NewSource("csv", srv.URL, csv.OptHTTPClient(fastClient(3)))
	test.ErrNil(t, err, "NewSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, int32(3), atomic.LoadInt32(&calls), "calls")
	test.MustBe(t, []string{"1"}, table.IDs())

	atomic.StoreInt32(&calls, -10)
	src, err = csv.NewSource("csv", srv.URL, csv.OptHTTPClient(fastClient(3)), csv.OptMaxRetries(1))
	test.ErrNil(t, err, "NewSource")
	if _, err := src.Collect(); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	test.MustBe(t, int32(-8), atomic.LoadInt32(&calls), "calls with one retry")

	if _, err := csv.NewSource("csv", "ignored", csv.OptMaxRetries(-1)); err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestCSVHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items.csv" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, items)
	}))
	defer srv.Close()

	src, err := csv.NewSource("csv", srv.URL+"/items.csv", csv.OptSourceOptions(catafolk.OptSourceIDField("item_id")))
	test.ErrNil(t, err, "NewSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, 3, table.Len())

	src, err = csv.NewSource("csv", srv.URL+"/missing.csv", csv.OptHTTPClient(fastClient(0)))
	test.ErrNil(t, err, "NewSource")
	if _, err := src.Collect(); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

type fakeS3 struct {
	s3iface.S3API
	body string
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	if aws.StringValue(in.Bucket) != "songs" || aws.StringValue(in.Key) != "meta/items.csv" {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(strings.NewReader(f.body))}, nil
}

func TestCSVS3(t *testing.T) {
	src, err := csv.NewSource("csv", "s3://songs/meta/items.csv",
		csv.OptS3(s3open.OptOpenerClient(&fakeS3{body: items})),
		csv.OptSourceOptions(catafolk.OptSourceIDField("item_id")))
	test.ErrNil(t, err, "NewSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"item0", "item1", "item2"}, table.IDs())
}
