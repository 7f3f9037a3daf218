package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"wte/misc"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	SourceConfig struct {
		BaseURL           string        `yaml:"base_url" validate:"required,url"`
		UserAgent         string        `yaml:"user_agent" validate:"required"`
		Cookie            SecretString  `yaml:"cookie,omitempty"`
		Charset           string        `yaml:"charset,omitempty"`
		Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
		RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
		Burst             int           `yaml:"burst" validate:"min=1"`
	}

	ImagesConfig struct {
		Skip       bool `yaml:"skip"`
		TableWidth int  `yaml:"table_width" validate:"gte=0"`
	}

	CoverConfig struct {
		Resize      CoverResize `yaml:"resize" validate:"gte=0"`
		Width       int         `yaml:"width" validate:"min=600"`
		Height      int         `yaml:"height" validate:"min=800"`
		JPEGQuality int         `yaml:"jpeg_quality" validate:"min=40,max=100"`
	}

	DocumentConfig struct {
		Workers               int          `yaml:"workers" validate:"gte=0"`
		FixZip                bool         `yaml:"fix_zip"`
		Verify                bool         `yaml:"verify"`
		Language              string       `yaml:"language" validate:"required,bcp47_language_tag"`
		SlugLength            int          `yaml:"slug_length" validate:"min=8,max=200"`
		TitleTemplate         string       `yaml:"title_template"`
		OutputNameTemplate    string       `yaml:"output_name_template"`
		FileNameTransliterate bool         `yaml:"file_name_transliterate"`
		Images                ImagesConfig `yaml:"images"`
		Cover                 CoverConfig  `yaml:"cover"`
	}

	ShelfConfig struct {
		Path string `yaml:"path,omitempty" sanitize:"path_clean" validate:"omitempty,filepath"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Source    SourceConfig   `yaml:"source"`
		Document  DocumentConfig `yaml:"document"`
		Shelf     ShelfConfig    `yaml:"shelf"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
	TitleTemplateFieldName      TemplateFieldName = "title_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
	gencfg.WithDoNotExpandField(string(TitleTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// ShelfPath returns location of the story database. When not configured it
// lives in the user configuration directory.
func (conf *ShelfConfig) ShelfPath() (string, error) {
	// path_clean turns empty value into "."
	if len(conf.Path) > 0 && conf.Path != "." {
		return conf.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to locate user configuration directory: %w", err)
	}
	dir = filepath.Join(dir, misc.GetAppName())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create shelf directory: %w", err)
	}
	return filepath.Join(dir, "shelf.db"), nil
}
