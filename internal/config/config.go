// =============================================================================
// PRF Budget Import - Configuration Module
// =============================================================================
//
// This module loads the single configuration struct that is passed into the
// pipeline entry points. Nothing below the cmd layer reads globals or the
// environment directly.
//
// SOURCES (later wins):
//   1. Built-in defaults (applyDefaults)
//   2. YAML file (config.yaml, or --config)
//   3. .env file and process environment (PRF_* variables)
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	HTTP     HTTPConfig     `yaml:"http"`
	Import   ImportConfig   `yaml:"import"`
	Output   OutputConfig   `yaml:"output"`

	// SheetTokens are the case-insensitive substrings used to recognise
	// request and budget sheets when no explicit name is given.
	SheetTokens SheetTokens `yaml:"sheet_tokens"`

	// HeaderAliases extends the built-in header dictionary. The key is a
	// canonical field name, the value lists accepted header texts.
	HeaderAliases map[string][]string `yaml:"header_aliases"`

	// TransformationRules are applied to text cells before grouping.
	TransformationRules []TransformationRule `yaml:"transformation_rules"`

	// CostCodeMap rewrites duplicate or retired cost codes to their
	// canonical code before validation.
	CostCodeMap map[string]string `yaml:"cost_code_map"`
}

// DatabaseConfig configures the PostgreSQL record store.
type DatabaseConfig struct {
	// URL is a pgx connection string. Empty means "use the in-memory store",
	// which is only useful for validate-only runs and demos.
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`
	// Format: "json" or "console". Default: "console"
	Format      string `yaml:"format"`
	OutputPath  string `yaml:"output_path"`
	Development bool   `yaml:"development"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// ImportConfig carries the per-batch defaults.
type ImportConfig struct {
	RequestSheet string `yaml:"request_sheet"`
	BudgetSheet  string `yaml:"budget_sheet"`

	// RequestHeaderRow and BudgetHeaderRow are zero-based. The request sheet
	// has historically carried a title row above its header.
	RequestHeaderRow int `yaml:"request_header_row"`
	BudgetHeaderRow  int `yaml:"budget_header_row"`

	SkipDuplicates bool `yaml:"skip_duplicates"`
	UpdateExisting bool `yaml:"update_existing"`
	AutoCreateCOA  bool `yaml:"auto_create_coa"`

	DefaultCOACategory string `yaml:"default_coa_category"`

	// AmountTolerance is the rounding tolerance for total-price checks.
	AmountTolerance string `yaml:"amount_tolerance"`

	FiscalYearMin int `yaml:"fiscal_year_min"`
	FiscalYearMax int `yaml:"fiscal_year_max"`

	CSV CSVSettings `yaml:"csv"`
}

// CSVSettings contains settings for reading CSV uploads.
type CSVSettings struct {
	// Delimiter: "," (default), ";", "|", "tab".
	Delimiter string `yaml:"delimiter"`
	// Encoding: "UTF-8" (default), "ISO-8859-1", "Windows-1252".
	Encoding string `yaml:"encoding"`
}

// OutputConfig controls where CLI reports and archives are written.
type OutputConfig struct {
	ReportDir  string `yaml:"report_dir"`
	ArchiveDir string `yaml:"archive_dir"`

	// ReportNameFormat supports {original}, {timestamp}, {date}, {uuid}.
	ReportNameFormat string `yaml:"report_name_format"`

	// ReportFormats lists "json", "csv", "xlsx".
	ReportFormats []string `yaml:"report_formats"`

	// UseTimestampSubdirs archives into YYYY/MM/DD subdirectories.
	UseTimestampSubdirs bool `yaml:"use_timestamp_subdirs"`
}

// SheetTokens are the sheet-name heuristics.
type SheetTokens struct {
	Request []string `yaml:"request"`
	Budget  []string `yaml:"budget"`
}

// =============================================================================
// TRANSFORMATION RULES
// =============================================================================

// TransformationRule defines transformations for one canonical field.
type TransformationRule struct {
	Field   string                 `yaml:"field"`
	Actions []TransformationAction `yaml:"actions"`
}

// TransformationAction defines a single transformation.
//
// Supported types:
//   - "trim", "uppercase", "lowercase"
//   - "prepend_string", "append_string"  (Value)
//   - "pad_zeros_to_length"              (Value = target length)
//   - "replace"                          (Find -> Value)
//   - "regex_replace"                    (Find pattern -> Value)
//   - "lookup"                           (LookupTable)
type TransformationAction struct {
	Type        string            `yaml:"type"`
	Value       string            `yaml:"value"`
	Find        string            `yaml:"find,omitempty"`
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newBase()
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path, applies defaults, then applies .env and
// environment overrides.
//
// PARAMETERS:
//   - path: The YAML file. A missing file is not an error; defaults are used.
//
// RETURNS:
//   - The validated configuration.
//   - An error if the file exists but cannot be parsed, or validation fails.
func Load(path string) (*Config, error) {
	cfg := newBase()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults only
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyDefaults(cfg)

	// .env is optional; a missing file is the normal case in production.
	_ = godotenv.Load()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newBase returns the values YAML may override with an explicit zero.
func newBase() *Config {
	return &Config{
		Import: ImportConfig{
			// The request sheet has a title row above its header.
			RequestHeaderRow: 1,
			BudgetHeaderRow:  0,
		},
	}
}

// applyDefaults sets default values for any unset option.
func applyDefaults(cfg *Config) {
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxUploadMB == 0 {
		cfg.HTTP.MaxUploadMB = 20
	}
	if cfg.Import.DefaultCOACategory == "" {
		cfg.Import.DefaultCOACategory = "General"
	}
	if cfg.Import.AmountTolerance == "" {
		cfg.Import.AmountTolerance = "0.01"
	}
	if cfg.Import.FiscalYearMin == 0 {
		cfg.Import.FiscalYearMin = 2020
	}
	if cfg.Import.FiscalYearMax == 0 {
		cfg.Import.FiscalYearMax = 2030
	}
	if cfg.Import.CSV.Delimiter == "" {
		cfg.Import.CSV.Delimiter = ","
	}
	if cfg.Import.CSV.Encoding == "" {
		cfg.Import.CSV.Encoding = "UTF-8"
	}
	if len(cfg.SheetTokens.Request) == 0 {
		cfg.SheetTokens.Request = []string{"prf", "request", "purchase"}
	}
	if len(cfg.SheetTokens.Budget) == 0 {
		cfg.SheetTokens.Budget = []string{"budget", "allocation"}
	}
	if cfg.Output.ReportDir == "" {
		cfg.Output.ReportDir = "./reports"
	}
	if cfg.Output.ArchiveDir == "" {
		cfg.Output.ArchiveDir = "./archive"
	}
	if cfg.Output.ReportNameFormat == "" {
		cfg.Output.ReportNameFormat = "{original}_{timestamp}_{uuid}"
	}
	if len(cfg.Output.ReportFormats) == 0 {
		cfg.Output.ReportFormats = []string{"json"}
	}
}

// applyEnv overlays PRF_* environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("PRF_DATABASE_URL"); ok && v != "" {
		cfg.Database.URL = v
	}
	if v, ok := lookup("PRF_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("PRF_HTTP_ADDR"); ok && v != "" {
		cfg.HTTP.Addr = v
	}
	if v, ok := lookup("PRF_AUTO_CREATE_COA"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PRF_AUTO_CREATE_COA %q: %w", v, err)
		}
		cfg.Import.AutoCreateCOA = b
	}
	return nil
}

// validate checks cross-field constraints.
func validate(cfg *Config) error {
	// An import holds one connection for its transaction and may need a
	// second one for chart-of-account lookups.
	if cfg.Database.MaxConns < 2 {
		return fmt.Errorf("database max_conns must be at least 2, got %d", cfg.Database.MaxConns)
	}
	if cfg.Import.RequestHeaderRow < 0 || cfg.Import.BudgetHeaderRow < 0 {
		return errors.New("header rows must be zero or positive")
	}
	if cfg.Import.FiscalYearMin > cfg.Import.FiscalYearMax {
		return fmt.Errorf("fiscal_year_min %d is after fiscal_year_max %d",
			cfg.Import.FiscalYearMin, cfg.Import.FiscalYearMax)
	}
	switch strings.ToUpper(cfg.Import.CSV.Encoding) {
	case "UTF-8", "UTF8", "ISO-8859-1", "LATIN1", "WINDOWS-1252", "CP1252":
	default:
		return fmt.Errorf("unsupported csv encoding %q", cfg.Import.CSV.Encoding)
	}
	for _, f := range cfg.Output.ReportFormats {
		switch strings.ToLower(f) {
		case "json", "csv", "xlsx":
		default:
			return fmt.Errorf("unsupported report format %q", f)
		}
	}
	for _, rule := range cfg.TransformationRules {
		if rule.Field == "" {
			return errors.New("transformation rule without field")
		}
	}
	return nil
}

// ImportOptions returns the configured duplicate/COA policy.
func (c *Config) ImportOptions() types.ImportOptions {
	return types.ImportOptions{
		SkipDuplicates: c.Import.SkipDuplicates,
		UpdateExisting: c.Import.UpdateExisting,
		AutoCreateCOA:  c.Import.AutoCreateCOA,
	}
}
