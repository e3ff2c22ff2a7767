// Package config loads the report configuration: built-in defaults, then an
// optional YAML file, then OMICSREPORT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"omicsreport/internal/blob"
	"omicsreport/internal/dataset"
	"omicsreport/internal/ledger"
	"omicsreport/internal/logging"
	"omicsreport/internal/render"
	"omicsreport/internal/samples"
)

// Config is the full run configuration.
type Config struct {
	Data      blob.Config         `yaml:"data"`
	Artifacts blob.Config         `yaml:"artifacts"`
	Ledger    ledger.Config       `yaml:"ledger"`
	Log       logging.Config      `yaml:"log"`
	GeneInfo  GeneInfo            `yaml:"geneinfo"`
	Report    Report              `yaml:"report"`
	Tables    []dataset.TableSpec `yaml:"tables"`
}

// Report holds the pipeline knobs.
type Report struct {
	// Lineage restricts every section to matching cell lines; empty keeps
	// all annotated samples.
	Lineage      string            `yaml:"lineage"`
	LineageMatch samples.MatchMode `yaml:"lineage_match"`
	Format       render.Format     `yaml:"format"`
	// Sections selects catalog entries by id; empty runs the whole catalog.
	Sections []string `yaml:"sections"`
	// Prefix is the artifact key prefix; runs land under <prefix>/<run-id>/.
	Prefix string `yaml:"prefix"`
	// UploadParallelism bounds concurrent artifact uploads.
	UploadParallelism int `yaml:"upload_parallelism"`
}

// GeneInfo configures the gene annotation lookup.
type GeneInfo struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	Species   string        `yaml:"species"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in configuration: local directories, a sqlite
// ledger and the DepMap file names for every table the catalog uses.
func Default() *Config {
	return &Config{
		Data:      blob.Config{Driver: blob.DriverFilesystem, Root: "./data"},
		Artifacts: blob.Config{Driver: blob.DriverFilesystem, Root: "./artifacts"},
		Ledger:    ledger.Config{Driver: ledger.DriverSQLite, SQLitePath: "omicsreport.db"},
		Log:       logging.Config{Level: "info", Format: "json"},
		GeneInfo: GeneInfo{
			Enabled:   true,
			BaseURL:   "https://mygene.info",
			Species:   "human",
			BatchSize: 100,
			Timeout:   30 * time.Second,
			CachePath: "geneinfo.db",
			CacheTTL:  30 * 24 * time.Hour,
		},
		Report: Report{
			Lineage:           "Breast",
			LineageMatch:      samples.MatchExact,
			Format:            render.PNG,
			Prefix:            "runs",
			UploadParallelism: 4,
		},
		Tables: DefaultTables(),
	}
}

// DefaultTables maps catalog table ids onto DepMap release files.
func DefaultTables() []dataset.TableSpec {
	return []dataset.TableSpec{
		{ID: "metadata", Key: "Model.csv", Layout: dataset.LayoutMetadata},
		{ID: "expression", Key: "OmicsExpressionProteinCodingGenesTPMLogp1.csv", Layout: dataset.LayoutWide, Label: dataset.LabelParen},
		{ID: "dependency", Key: "CRISPRGeneEffect.csv", Layout: dataset.LayoutWide, Label: dataset.LabelParen},
		{ID: "copy_number", Key: "OmicsCNGene.csv", Layout: dataset.LayoutWide, Label: dataset.LabelParen},
		{ID: "methylation", Key: "CCLE_RRBS_TSS1kb_20181022.txt.gz", Layout: dataset.LayoutWide, Label: dataset.LabelPrefix},
		{
			ID: "mutations", Key: "OmicsSomaticMutations.csv", Layout: dataset.LayoutLong, Events: true,
			Gene: "HugoSymbol", Sample: "ModelID",
			Attrs: []string{"VariantInfo", "VariantType", "ProteinChange", "LikelyLoF", "Hotspot"},
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is empty.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping defaults for absent keys. A tables
// list in the file replaces the default list.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays the OMICSREPORT_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	c.Data.ApplyEnv("DATA", getenv)
	c.Artifacts.ApplyEnv("ARTIFACT", getenv)
	c.Ledger.ApplyEnv(getenv)
	if v := getenv("OMICSREPORT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("OMICSREPORT_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("OMICSREPORT_LINEAGE"); v != "" {
		c.Report.Lineage = v
	}
	if v := getenv("OMICSREPORT_GENEINFO_URL"); v != "" {
		c.GeneInfo.BaseURL = v
	}
	if v := getenv("OMICSREPORT_GENEINFO_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OMICSREPORT_GENEINFO_ENABLED: %w", err)
		}
		c.GeneInfo.Enabled = on
	}
	return nil
}

// Validate checks every section of the configuration and reports all
// problems at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Data.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("data: %w", err))
	}
	if err := c.Artifacts.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("artifacts: %w", err))
	}
	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ledger: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if !c.Report.Format.Valid() {
		errs = append(errs, fmt.Errorf("report: unsupported format %q", c.Report.Format))
	}
	switch c.Report.LineageMatch {
	case samples.MatchExact, samples.MatchContains, "":
	default:
		errs = append(errs, fmt.Errorf("report: unknown lineage match %q", c.Report.LineageMatch))
	}
	if c.Report.UploadParallelism < 0 {
		errs = append(errs, errors.New("report: upload_parallelism must not be negative"))
	}
	if strings.Contains(c.Report.Prefix, "..") {
		errs = append(errs, fmt.Errorf("report: invalid prefix %q", c.Report.Prefix))
	}
	if c.GeneInfo.Enabled && c.GeneInfo.BaseURL == "" {
		errs = append(errs, errors.New("geneinfo: base_url required when enabled"))
	}
	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("table %s configured twice", t.ID))
		}
		seen[t.ID] = true
	}
	return errors.Join(errs...)
}
