package dataset

import (
	"sort"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/csv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SchemaFile is the default name of the file listing the index fields.
const SchemaFile = "index-schema.csv"

// DefaultFields are the index fields used when there is no schema file.
var DefaultFields = []string{catafolk.IDField, "dataset_id"}

// LoadSchema reads the index fields from a CSV file with the columns
// "field" and "order", sorted by order. A missing file yields
// DefaultFields and a warning.
func LoadSchema(fs afero.Fs, path string, log catafolk.Logger) ([]string, error) {
	if log == nil {
		log = catafolk.NopLogger{}
	}
	if ok, _ := afero.Exists(fs, path); !ok {
		log.Warnf("schema file does not exist: %s", path)
		return append([]string(nil), DefaultFields...), nil
	}
	src, err := csv.NewSource("schema", path,
		csv.OptFs(fs),
		csv.OptLogger(log),
		csv.OptSourceOptions(catafolk.OptSourceIDField("field")))
	if err != nil {
		return nil, err
	}
	table, err := src.Collect()
	if err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}
	if !table.HasColumn("order") {
		return nil, errors.Errorf("schema %s has no order column", path)
	}
	fields := table.IDs()
	order := make(map[string]float64, len(fields))
	for _, f := range fields {
		v := table.Get(f, "order")
		switch vt := v.(type) {
		case catafolk.I:
			order[f] = float64(vt)
		case catafolk.F:
			order[f] = float64(vt)
		default:
			return nil, errors.Errorf("schema %s: field %s has no numeric order", path, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return order[fields[i]] < order[fields[j]] })
	return fields, nil
}
