package dataset

import (
	"encoding/json"
	"path/filepath"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/file"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Source types.
const (
	TypeFile = "file"
	TypeCSV  = "csv"
)

// ConfigFields are the keys of a configuration file that are used. All
// other keys are ignored.
var ConfigFields = []string{"transformations", "sources"}

// Config is the part of a dataset configuration that drives indexing.
type Config struct {
	Transformations []interface{}
	Sources         []SourceConfig
}

// SourceConfig describes one source of a dataset.
type SourceConfig struct {
	Type            string       `mapstructure:"type"`
	Name            string       `mapstructure:"name"`
	FilePattern     string       `mapstructure:"file_pattern"`
	FileOptions     file.Options `mapstructure:"file_options"`
	Exclude         []string     `mapstructure:"exclude"`
	UseFilenameAsID *bool        `mapstructure:"use_filename_as_id"`
	Path            string       `mapstructure:"path"`
	IDField         string       `mapstructure:"id_field"`

	// IDTransformations and Options keep the order of their mappings and
	// are taken from the raw definition.
	IDTransformations []interface{}   `mapstructure:"-"`
	Options           *catafolk.Params `mapstructure:"-"`
}

// ParseConfig picks the used keys out of a decoded configuration.
func ParseConfig(raw *catafolk.Params) (*Config, error) {
	c := &Config{}
	var err error
	if c.Transformations, err = raw.GetList("transformations"); err != nil {
		return nil, err
	}
	sources, err := raw.GetList("sources")
	if err != nil {
		return nil, err
	}
	for n, s := range sources {
		sc, err := parseSource(s)
		if err != nil {
			return nil, errors.Wrapf(err, "source %d", n)
		}
		c.Sources = append(c.Sources, sc)
	}
	return c, nil
}

func parseSource(raw interface{}) (SourceConfig, error) {
	sc := SourceConfig{}
	p, ok := raw.(*catafolk.Params)
	if !ok {
		return sc, errors.Errorf("expected a mapping, got %v", raw)
	}
	var err error
	if sc.IDTransformations, err = p.GetList("id_transformations"); err != nil {
		return sc, err
	}
	if sc.Options, err = p.GetParams("options"); err != nil {
		return sc, err
	}
	m := p.Map()
	delete(m, "id_transformations")
	delete(m, "options")
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return sc, errors.Wrap(err, "creating decoder")
	}
	if err := dec.Decode(m); err != nil {
		return sc, errors.Wrap(err, "decoding source")
	}
	switch sc.Type {
	case TypeFile:
		if sc.FilePattern == "" {
			return sc, errors.New("file source needs a file_pattern")
		}
	case TypeCSV:
		if sc.Path == "" {
			return sc, errors.New("csv source needs a path")
		}
	default:
		return sc, errors.Errorf("unknown source type '%s'", sc.Type)
	}
	return sc, nil
}

// loadConfig reads the configuration of the dataset. The deprecated JSON
// configuration takes precedence over the YAML one. A dataset without
// configuration gets an empty one.
func (d *Dataset) loadConfig() (*catafolk.Params, error) {
	jsonPath := filepath.Join(d.dir, d.jsonConfigFile)
	yamlPath := filepath.Join(d.dir, d.configFile)
	raw := &catafolk.Params{}
	var path string
	var unmarshal func([]byte, interface{}) error
	if ok, _ := afero.Exists(d.fs, jsonPath); ok {
		d.log.Warnf("JSON configurations are deprecated: %s", jsonPath)
		path, unmarshal = jsonPath, json.Unmarshal
	} else if ok, _ := afero.Exists(d.fs, yamlPath); ok {
		path, unmarshal = yamlPath, yaml.Unmarshal
	} else {
		d.log.Warnf("no configuration file found: %s", yamlPath)
		return raw, nil
	}
	data, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if err := unmarshal(data, raw); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	d.log.Printf("configuration file loaded: %s", path)

	config := &catafolk.Params{}
	for _, f := range ConfigFields {
		if v, ok := raw.Get(f); ok {
			config.Set(f, v)
		}
	}
	return config, nil
}
