package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// ErrInvalidConfig is returned by Validate when the import specification cannot be used.
var ErrInvalidConfig = errors.New("invalid import specification")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableSpec maps one destination table to one source file.
type TableSpec struct {
	Name      string `hcl:"name,label"`
	Source    string `hcl:"source"`             // Path relative to DataDir
	Delimiter string `hcl:"delimiter,optional"` // Single character; detected when empty
	Encoding  string `hcl:"encoding,optional"`  // IANA name; UTF-8 when empty
	Sheet     string `hcl:"sheet,optional"`     // Worksheet name or HTML table id
}

// Config represents the application configuration.
type Config struct {
	DataDir   string      `hcl:"data_dir,optional"`
	Database  string      `hcl:"database,optional"`
	BatchSize int         `hcl:"batch_size,optional"`
	Tables    []TableSpec `hcl:"table,block"`
}

// DefaultConfig returns the default configuration: the Olist e-commerce dataset.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "data/",
		Database:  "olist.db",
		BatchSize: 1000,
		Tables: []TableSpec{
			{Name: "customers", Source: "olist_customers_dataset.csv"},
			{Name: "geolocation", Source: "olist_geolocation_dataset.csv"},
			{Name: "order_items", Source: "olist_order_items_dataset.csv"},
			{Name: "order_payments", Source: "olist_order_payments_dataset.csv"},
			{Name: "order_reviews", Source: "olist_order_reviews_dataset.csv"},
			{Name: "orders", Source: "olist_orders_dataset.csv"},
			{Name: "products", Source: "olist_products_dataset.csv"},
			{Name: "sellers", Source: "olist_sellers_dataset.csv"},
			{Name: "product_category_name_translation", Source: "product_category_name_translation.csv"},
		},
	}
}

// Load reads the configuration from the given HCL file.
// Attributes missing from the file keep their defaults. If the file declares any
// table blocks they replace the default mapping entirely.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}

	return cfg, nil
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("data_dir", cty.StringVal(cfg.DataDir))
	root.SetAttributeValue("database", cty.StringVal(cfg.Database))
	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(cfg.BatchSize)))

	for _, t := range cfg.Tables {
		root.AppendNewline()
		block := root.AppendNewBlock("table", []string{t.Name})
		body := block.Body()
		body.SetAttributeValue("source", cty.StringVal(t.Source))
		if t.Delimiter != "" {
			body.SetAttributeValue("delimiter", cty.StringVal(t.Delimiter))
		}
		if t.Encoding != "" {
			body.SetAttributeValue("encoding", cty.StringVal(t.Encoding))
		}
		if t.Sheet != "" {
			body.SetAttributeValue("sheet", cty.StringVal(t.Sheet))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}

// Validate checks the invariants of the import specification.
// Table names are compared case-insensitively because SQLite identifiers are.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database must not be empty", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}

	seen := make(map[string]string, len(c.Tables))
	for i, t := range c.Tables {
		if !identifier.MatchString(t.Name) {
			return fmt.Errorf("%w: table %d has invalid name %q", ErrInvalidConfig, i, t.Name)
		}
		key := strings.ToLower(t.Name)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%w: table %q declared twice (also as %q)", ErrInvalidConfig, t.Name, prev)
		}
		seen[key] = t.Name

		if strings.TrimSpace(t.Source) == "" {
			return fmt.Errorf("%w: table %q has no source", ErrInvalidConfig, t.Name)
		}
		if t.Delimiter != "" && len([]rune(t.Delimiter)) != 1 {
			return fmt.Errorf("%w: table %q delimiter must be a single character, got %q", ErrInvalidConfig, t.Name, t.Delimiter)
		}
	}
	return nil
}

// DelimiterRune returns the configured delimiter, or 0 when it should be detected.
func (t TableSpec) DelimiterRune() rune {
	for _, r := range t.Delimiter {
		return r
	}
	return 0
}
