package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrConfigParse marks configuration that is missing or cannot be coerced.
var ErrConfigParse = eris.New("config: invalid configuration")

// ParseError describes one configuration value that failed validation or
// type coercion.
type ParseError struct {
	Field string
	Value string
	Kind  string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Kind != "" && e.Err != nil:
		return fmt.Sprintf("config: %s=%q is not a valid %s: %v", e.Field, e.Value, e.Kind, e.Err)
	case e.Kind != "":
		return fmt.Sprintf("config: %s=%q is not a valid %s", e.Field, e.Value, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("config: %s is required", e.Field)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match ErrConfigParse.
func (e *ParseError) Is(target error) bool { return target == ErrConfigParse }

// Config holds the full application configuration.
type Config struct {
	Data    string        `yaml:"data" mapstructure:"data"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	BBox    BBoxConfig    `yaml:"bbox" mapstructure:"bbox"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	CRS     CRSConfig     `yaml:"crs" mapstructure:"crs"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`

	v *viper.Viper
}

// RunConfig identifies one preparation run. Each field is also read from the
// bare workflow variable (COUNTRY, LOCATION, PROJECTION, VARIANT).
type RunConfig struct {
	Country    string `yaml:"country" mapstructure:"country"`
	Location   string `yaml:"location" mapstructure:"location"`
	Projection string `yaml:"projection" mapstructure:"projection"`
	Variant    string `yaml:"variant" mapstructure:"variant"`
}

// BBoxConfig configures the bounding box grid.
type BBoxConfig struct {
	Grid float64 `yaml:"grid" mapstructure:"grid"`
}

// OutputConfig configures written artifacts.
type OutputConfig struct {
	Format       string `yaml:"format" mapstructure:"format"`
	XLSXManifest bool   `yaml:"xlsx_manifest" mapstructure:"xlsx_manifest"`
}

// CRSConfig configures the projection registry.
type CRSConfig struct {
	// Definitions adds proj4 strings keyed by EPSG code.
	Definitions  map[string]string `yaml:"definitions" mapstructure:"definitions"`
	WorkingEPSG  string            `yaml:"working_epsg" mapstructure:"working_epsg"`
	DefaultInput string            `yaml:"default_input" mapstructure:"default_input"`
}

// CatalogConfig holds the boilerplate stamped on every metadata document.
type CatalogConfig struct {
	Language     string `yaml:"language" mapstructure:"language"`
	Keyword      string `yaml:"keyword" mapstructure:"keyword"`
	Subject      string `yaml:"subject" mapstructure:"subject"`
	License      string `yaml:"license" mapstructure:"license"`
	ContactName  string `yaml:"contact_name" mapstructure:"contact_name"`
	ContactEmail string `yaml:"contact_email" mapstructure:"contact_email"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// bareEnv binds keys to the unprefixed variables the workflow platform sets.
var bareEnv = map[string]string{
	"data":           "DATA",
	"run.country":    "COUNTRY",
	"run.location":   "LOCATION",
	"run.projection": "PROJECTION",
	"run.variant":    "VARIANT",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("floodprep")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if p := os.Getenv("FLOODPREP_CONFIG"); p != "" {
		v.SetConfigFile(p)
	}

	// Environment
	v.SetEnvPrefix("FLOODPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range bareEnv {
		prefixed := "FLOODPREP_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", env)
		}
	}

	// Defaults
	v.SetDefault("data", "/data")
	v.SetDefault("run.variant", "udm")
	v.SetDefault("bbox.grid", 1000)
	v.SetDefault("output.format", "gpkg")
	v.SetDefault("output.xlsx_manifest", false)
	v.SetDefault("crs.working_epsg", "3857")
	v.SetDefault("crs.default_input", "4326")
	v.SetDefault("catalog.language", "en")
	v.SetDefault("catalog.keyword", "UDM")
	v.SetDefault("catalog.subject", "Environment")
	v.SetDefault("catalog.license", "https://creativecommons.org/licences/by/4.0/")
	v.SetDefault("catalog.contact_name", "DAFNI")
	v.SetDefault("catalog.contact_email", "support@dafni.ac.uk")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &ParseError{Field: "config file", Value: v.ConfigFileUsed(), Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Field: "config", Err: err}
	}
	cfg.v = v

	return &cfg, nil
}

// Param looks up a pass-through workflow value by name. The bare upper-case
// environment variable wins over a params entry in the config file.
func (c *Config) Param(name string) (string, bool) {
	if val, ok := os.LookupEnv(strings.ToUpper(name)); ok {
		return val, true
	}
	if c.v == nil {
		return "", false
	}
	key := "params." + strings.ToLower(name)
	if !c.v.IsSet(key) {
		return "", false
	}
	return c.v.GetString(key), true
}

// Validate checks the settings every run depends on.
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"DATA", c.Data},
		{"COUNTRY", c.Run.Country},
		{"LOCATION", c.Run.Location},
		{"VARIANT", c.Run.Variant},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ParseError{Field: r.field}
		}
	}
	if strings.ContainsAny(c.Run.Location, `/\`) {
		return &ParseError{Field: "LOCATION", Value: c.Run.Location, Kind: "file name"}
	}
	if c.BBox.Grid <= 0 {
		return &ParseError{Field: "bbox.grid", Value: fmt.Sprint(c.BBox.Grid), Kind: "positive grid size"}
	}
	switch c.Output.Format {
	case "gpkg", "shp", "geojson":
	default:
		return &ParseError{Field: "output.format", Value: c.Output.Format, Kind: "vector format (gpkg, shp, geojson)"}
	}
	if c.Batch.Concurrency < 1 {
		return &ParseError{Field: "batch.concurrency", Value: fmt.Sprint(c.Batch.Concurrency), Kind: "positive integer"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return &ParseError{Field: "log.level", Value: cfg.Level, Kind: "log level", Err: err}
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
