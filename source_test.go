package catafolk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/mock"
	"github.com/catafolk/catafolk/test"
	"github.com/pkg/errors"
)

func entries(n int, f func(i int) catafolk.Record) []catafolk.Record {
	recs := make([]catafolk.Record, n)
	for i := range recs {
		recs[i] = f(i)
	}
	return recs
}

func TestEntriesSource(t *testing.T) {
	recs := entries(10, func(i int) catafolk.Record {
		return catafolk.Record{"id": catafolk.I(int64(i)), "foo": catafolk.S("bar")}
	})
	src, err := catafolk.NewEntriesSource("test", recs)
	test.ErrNil(t, err, "NewEntriesSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, 10, table.Len(), "rows")
	test.MustBe(t, []string{"foo"}, table.Columns(), "columns")
	for _, id := range table.IDs() {
		test.MustBe(t, catafolk.Value(catafolk.S("bar")), table.Get(id, "foo"), id)
	}
	test.MustBe(t, []string{"0", "1", "2"}, table.IDs()[:3], "ids")
}

func TestSourceIDField(t *testing.T) {
	recs := []catafolk.Record{
		{"item_id": catafolk.S("b"), "x": catafolk.I(2)},
		{"item_id": catafolk.S("a"), "x": catafolk.I(1)},
	}
	src, err := catafolk.NewEntriesSource("test", recs, catafolk.OptSourceIDField("item_id"))
	test.ErrNil(t, err, "NewEntriesSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"a", "b"}, table.IDs(), "sorted ids")
	test.MustBe(t, []string{"item_id", "x"}, table.Columns(), "columns")
}

func TestSourceIDTransformations(t *testing.T) {
	recs := entries(10, func(i int) catafolk.Record {
		return catafolk.Record{"item_id": catafolk.I(int64(i)), "foo": catafolk.S("bar")}
	})
	src, err := catafolk.NewEntriesSource("test", recs,
		catafolk.OptSourceIDField("item_id"),
		catafolk.OptSourceIDTransformations([]interface{}{
			[]interface{}{"format", "item_id", "id", catafolk.NewParams("pattern", "item-{:0>3}")},
		}))
	test.ErrNil(t, err, "NewEntriesSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"item-000", "item-001", "item-002"}, table.IDs()[:3], "ids")
	test.MustBe(t, 10, table.Len(), "rows")
	test.MustBe(t, 2, len(table.Columns()), "columns")
	test.MustBe(t, catafolk.Value(catafolk.S("bar")), table.Get("item-000", "foo"), "foo")
}

func TestSourceIDTransformerFunc(t *testing.T) {
	recs := []catafolk.Record{{"foo": catafolk.S("entry1")}, {"foo": catafolk.S("entry2")}}
	strip := catafolk.RecordTransformerFunc(func(rec catafolk.Record) (catafolk.Record, error) {
		return catafolk.Record{"id": catafolk.S(strings.TrimPrefix(catafolk.String(rec["foo"]), "entry"))}, nil
	})
	src, err := catafolk.NewEntriesSource("test", recs, catafolk.OptSourceIDTransformer(strip))
	test.ErrNil(t, err, "NewEntriesSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, []string{"1", "2"}, table.IDs())
}

func TestSourceIDErrors(t *testing.T) {
	tests := map[string]struct {
		recs []catafolk.Record
		opts []catafolk.SourceOption
	}{
		"duplicate": {
			recs: []catafolk.Record{{"id": catafolk.S("a")}, {"id": catafolk.S("a")}},
		},
		"null id": {
			recs: []catafolk.Record{{"id": catafolk.S("a")}, {"id": nil}},
		},
		"empty id": {
			recs: []catafolk.Record{{"id": catafolk.S(" ")}},
		},
		"missing field": {
			recs: []catafolk.Record{{"name": catafolk.S("a")}},
		},
		"no id output": {
			recs: []catafolk.Record{{"name": catafolk.S("a")}},
			opts: []catafolk.SourceOption{catafolk.OptSourceIDTransformer(catafolk.RecordTransformerFunc(
				func(catafolk.Record) (catafolk.Record, error) { return catafolk.Record{"other": catafolk.S("x")}, nil }))},
		},
	}
	for name, tst := range tests {
		src, err := catafolk.NewEntriesSource("test", tst.recs, tst.opts...)
		test.ErrNil(t, err, name)
		if _, err := src.Collect(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := catafolk.NewEntriesSource("test", nil, catafolk.OptSourceIDTransformations([]interface{}{"bad"})); err == nil {
		t.Fatal("expected error from invalid id transformations")
	}
}

func TestSourceCaching(t *testing.T) {
	calls := 0
	producer := catafolk.RowProducerFunc(func() ([]string, []catafolk.Record, error) {
		calls++
		return []string{"id"}, []catafolk.Record{{"id": catafolk.S(fmt.Sprint(calls))}}, nil
	})
	src, err := catafolk.NewBaseSource("test", producer)
	test.ErrNil(t, err, "NewBaseSource")
	for i := 0; i < 2; i++ {
		table, err := src.Collect()
		test.ErrNil(t, err, "Collect")
		test.MustBe(t, []string{"1"}, table.IDs())
	}
	src.Reset()
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect after reset")
	test.MustBe(t, []string{"2"}, table.IDs())

	failing, err := catafolk.NewBaseSource("broken", catafolk.RowProducerFunc(func() ([]string, []catafolk.Record, error) {
		return nil, nil, errors.New("boom")
	}))
	test.ErrNil(t, err, "NewBaseSource")
	if _, err := failing.Collect(); err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected error naming the source, got %v", err)
	}
}

func TestSourceEmptyWarns(t *testing.T) {
	logger := &mock.RecordingLogger{}
	src, err := catafolk.NewEntriesSource("empty", nil, catafolk.OptSourceLogger(logger))
	test.ErrNil(t, err, "NewEntriesSource")
	table, err := src.Collect()
	test.ErrNil(t, err, "Collect")
	test.MustBe(t, 0, table.Len())
	test.MustBe(t, 1, len(logger.Warnings), "warnings")
}
