// Package config provides configuration loading for the ingestion service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/stage"
	"github.com/adlake/ingest-core/internal/warehouse"
)

// Config is the full service configuration, loaded once at process start.
type Config struct {
	// Project is the logical project prefix in table addressing.
	Project string `yaml:"project"`
	// Dataset is the default target dataset (one per tenant).
	Dataset string `yaml:"dataset"`

	Warehouse WarehouseConfig `yaml:"warehouse"`
	Stage     StageConfig     `yaml:"stage"`
	Ingest    IngestConfig    `yaml:"ingest"`

	// Families extends or overrides the built-in table families.
	Families []FamilyConfig `yaml:"families"`
}

// WarehouseConfig holds warehouse connection settings.
type WarehouseConfig struct {
	DSN        string  `yaml:"dsn"`
	RateLimit  float64 `yaml:"rateLimit"`
	RateBurst  int     `yaml:"rateBurst"`
	MaxRetries int     `yaml:"maxRetries"`
}

// StageConfig holds object-store settings. An empty endpoint disables the
// stage (inline loads only).
type StageConfig struct {
	EndpointURL     string `yaml:"endpointUrl"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"useSSL"`
}

// IngestConfig tunes the batch loader.
type IngestConfig struct {
	ChunkSize          int `yaml:"chunkSize"`
	Parallelism        int `yaml:"parallelism"`
	TableReadyAttempts int `yaml:"tableReadyAttempts"`
	TableReadyDelayMS  int `yaml:"tableReadyDelayMs"`
	// Archive enables parquet artifacts for successful loads (needs a
	// configured stage).
	Archive bool `yaml:"archive"`
}

// FamilyConfig declares one table family in configuration.
type FamilyConfig struct {
	Name      string            `yaml:"name"`
	Prefix    string            `yaml:"prefix"`
	Mode      string            `yaml:"mode"`
	DateField string            `yaml:"dateField"`
	Hints     map[string]string `yaml:"hints"`
}

// Load reads YAML from path (optional), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Project = getEnv("INGEST_PROJECT", c.Project)
	c.Dataset = getEnv("INGEST_DATASET", c.Dataset)
	c.Warehouse.DSN = getEnv("INGEST_WAREHOUSE_DSN", c.Warehouse.DSN)
	c.Stage.EndpointURL = getEnv("INGEST_STAGE_ENDPOINT", c.Stage.EndpointURL)
	c.Stage.AccessKeyID = getEnv("INGEST_STAGE_ACCESS_KEY", c.Stage.AccessKeyID)
	c.Stage.SecretAccessKey = getEnv("INGEST_STAGE_SECRET_KEY", c.Stage.SecretAccessKey)
	c.Stage.Bucket = getEnv("INGEST_STAGE_BUCKET", c.Stage.Bucket)
	c.Stage.Region = getEnv("INGEST_STAGE_REGION", c.Stage.Region)
	c.Ingest.ChunkSize = getEnvInt("INGEST_CHUNK_SIZE", c.Ingest.ChunkSize)
	c.Ingest.Parallelism = getEnvInt("INGEST_PARALLELISM", c.Ingest.Parallelism)
}

func (c *Config) applyDefaults() {
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 50000
	}
	if c.Ingest.Parallelism <= 0 {
		c.Ingest.Parallelism = 4
	}
	if c.Ingest.TableReadyAttempts <= 0 {
		c.Ingest.TableReadyAttempts = 100
	}
	if c.Ingest.TableReadyDelayMS <= 0 {
		c.Ingest.TableReadyDelayMS = 300
	}
}

// Validate rejects configurations that would fail mid-ingestion: bad modes
// and hint types are caught here, before any warehouse call.
func (c *Config) Validate() error {
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required")
	}
	if c.StageEnabled() {
		if c.Stage.AccessKeyID == "" || c.Stage.SecretAccessKey == "" {
			return fmt.Errorf("stage credentials are required when stage.endpointUrl is set")
		}
		if c.Stage.Bucket == "" {
			return fmt.Errorf("stage.bucket is required when stage.endpointUrl is set")
		}
	}
	if c.Ingest.Archive && !c.StageEnabled() {
		return fmt.Errorf("ingest.archive needs a configured stage")
	}
	for _, f := range c.Families {
		if f.Name == "" {
			return fmt.Errorf("family name is required")
		}
		switch schema.Mode(f.Mode) {
		case schema.ModePoint, schema.ModeRange, "":
		default:
			return fmt.Errorf("family %s: unknown mode %q", f.Name, f.Mode)
		}
		for col, typ := range f.Hints {
			if _, err := parseType(typ); err != nil {
				return fmt.Errorf("family %s, column %s: %w", f.Name, col, err)
			}
		}
	}
	return nil
}

// StageEnabled reports whether an object stage is configured.
func (c *Config) StageEnabled() bool { return c.Stage.EndpointURL != "" }

// WarehouseConfig converts to the warehouse package's config type.
func (c *Config) WarehouseConfig() *warehouse.Config {
	return &warehouse.Config{
		DSN:        c.Warehouse.DSN,
		Project:    c.Project,
		RateLimit:  c.Warehouse.RateLimit,
		RateBurst:  c.Warehouse.RateBurst,
		MaxRetries: c.Warehouse.MaxRetries,
	}
}

// StageClientConfig converts to the stage package's config type.
func (c *Config) StageClientConfig() *stage.Config {
	return &stage.Config{
		EndpointURL:     c.Stage.EndpointURL,
		AccessKeyID:     c.Stage.AccessKeyID,
		SecretAccessKey: c.Stage.SecretAccessKey,
		Region:          c.Stage.Region,
		Bucket:          c.Stage.Bucket,
		UseSSL:          c.Stage.UseSSL,
	}
}

// TableReadyDelay returns the poll delay as a duration.
func (c *Config) TableReadyDelay() time.Duration {
	return time.Duration(c.Ingest.TableReadyDelayMS) * time.Millisecond
}

// Registry builds the family registry: built-ins first, configured families
// layered on top.
func (c *Config) Registry() (*schema.Registry, error) {
	reg := schema.DefaultRegistry()
	for _, f := range c.Families {
		hints := make(map[string]schema.Type, len(f.Hints))
		for col, typ := range f.Hints {
			t, err := parseType(typ)
			if err != nil {
				return nil, fmt.Errorf("family %s, column %s: %w", f.Name, col, err)
			}
			hints[col] = t
		}
		fam := &schema.Family{
			Name:      f.Name,
			Prefix:    f.Prefix,
			Mode:      schema.Mode(f.Mode),
			DateField: f.DateField,
			Hints:     hints,
		}
		if err := reg.Register(fam); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseType(s string) (schema.Type, error) {
	switch schema.Type(s) {
	case schema.TypeString, schema.TypeInteger, schema.TypeFloat,
		schema.TypeBoolean, schema.TypeDate, schema.TypeDatetime:
		return schema.Type(s), nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
