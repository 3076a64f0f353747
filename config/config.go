// Package config loads cachekey.yaml.
//
// The file is searched from the working directory up to the filesystem
// root. A missing file yields the zero Config, which formats every type with
// nanosecond precision and uses the in-memory badger backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/acksell/cachekey/stampfmt"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file searched for by Load.
const FileName = "cachekey.yaml"

type Backend string

const (
	BackendBadger   Backend = "badger"
	BackendBolt     Backend = "bolt"
	BackendDynamoDB Backend = "dynamodb"
)

// Config holds everything read from cachekey.yaml.
type Config struct {
	// DefaultFormat is the precision used for types without an entry in Formats.
	DefaultFormat string `yaml:"defaultFormat"`

	// CacheTimestampFormat is the old name of DefaultFormat.
	//
	// Deprecated: use DefaultFormat.
	CacheTimestampFormat string `yaml:"cacheTimestampFormat"`

	// Formats maps a type name to a precision name.
	Formats map[string]string `yaml:"formats"`

	// Backend selects the store the CLI reads from. Empty means badger.
	Backend Backend `yaml:"backend"`

	// DataDir is the badger directory or the bbolt file. Empty runs badger
	// in memory.
	DataDir string `yaml:"dataDir"`

	Tables []Table `yaml:"tables"`
}

type Table struct {
	Name         string   `yaml:"name"`
	PartitionKey Key      `yaml:"partitionKey"`
	SortKey      *Key     `yaml:"sortKey"`
	Timestamps   []string `yaml:"timestamps"`
	Touches      []Touch  `yaml:"touches"`
}

type Key struct {
	Name string `yaml:"name"`
	// Kind is S, N or B. Empty means S.
	Kind string `yaml:"kind"`
}

type Touch struct {
	ForeignKey string `yaml:"foreignKey"`
	Parent     string `yaml:"parent"`
	Field      string `yaml:"field"`
}

var deprecationOnce sync.Once

// Load searches for cachekey.yaml walking up from the current directory.
// Returns the zero Config if no file is found.
func Load(log logrus.FieldLogger) (Config, error) {
	path := findConfigFile()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path, log)
}

// LoadFile reads and validates the configuration at path.
func LoadFile(path string, log logrus.FieldLogger) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, log)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a cachekey.yaml document. The deprecated cacheTimestampFormat
// key is honored when defaultFormat is unset and warned about once per
// process.
func Parse(data []byte, log logrus.FieldLogger) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.CacheTimestampFormat != "" {
		if log != nil {
			deprecationOnce.Do(func() {
				log.WithField("key", "cacheTimestampFormat").
					Warn("config key is deprecated, use defaultFormat instead")
			})
		}
		if cfg.DefaultFormat == "" {
			cfg.DefaultFormat = cfg.CacheTimestampFormat
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks precision names, the backend and every table definition.
func (c Config) Validate() error {
	if _, err := stampfmt.ParsePrecision(c.DefaultFormat); err != nil {
		return fmt.Errorf("defaultFormat: %w", err)
	}
	for typeName, name := range c.Formats {
		if _, err := stampfmt.ParsePrecision(name); err != nil {
			return fmt.Errorf("formats.%s: %w", typeName, err)
		}
	}
	switch c.Backend {
	case "", BackendBadger, BackendBolt, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendBolt && c.DataDir == "" {
		return fmt.Errorf("backend bolt needs dataDir")
	}
	for _, t := range c.Tables {
		for _, k := range []*Key{&t.PartitionKey, t.SortKey} {
			if k == nil {
				continue
			}
			switch table.KeyKind(k.Kind) {
			case "", table.KeyKindS, table.KeyKindN, table.KeyKindB:
			default:
				return fmt.Errorf("table %q: key %q has unknown kind %q", t.Name, k.Name, k.Kind)
			}
		}
	}
	seen := make(map[string]bool, len(c.Tables))
	for _, def := range c.TableDefinitions() {
		if seen[def.Name] {
			return fmt.Errorf("table %q is defined twice", def.Name)
		}
		seen[def.Name] = true
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return table.ValidateTouches(c.TableDefinitions())
}

// Registry builds the per-type format registry. Call Validate first; unknown
// precision names fall back to the default.
func (c Config) Registry() *stampfmt.Registry {
	fallback, _ := stampfmt.ParsePrecision(c.DefaultFormat)
	specs := make(map[string]stampfmt.FormatSpec, len(c.Formats))
	for typeName, name := range c.Formats {
		p, err := stampfmt.ParsePrecision(name)
		if err != nil {
			continue
		}
		specs[typeName] = stampfmt.Spec(p)
	}
	return stampfmt.NewRegistry(stampfmt.Spec(fallback), specs)
}

// TableDefinitions converts the configured tables.
func (c Config) TableDefinitions() []table.TableDefinition {
	defs := make([]table.TableDefinition, 0, len(c.Tables))
	for _, t := range c.Tables {
		def := table.TableDefinition{
			Name: t.Name,
			KeyDefinitions: table.PrimaryKeyDefinition{
				PartitionKey: t.PartitionKey.def(),
			},
			Timestamps: t.Timestamps,
		}
		if t.SortKey != nil {
			def.KeyDefinitions.SortKey = t.SortKey.def()
		}
		for _, touch := range t.Touches {
			def.Touches = append(def.Touches, table.TouchDef{
				ForeignKey: touch.ForeignKey,
				Parent:     touch.Parent,
				Field:      touch.Field,
			})
		}
		defs = append(defs, def)
	}
	return defs
}

func (k Key) def() table.KeyDef {
	kind := table.KeyKind(k.Kind)
	if kind == "" {
		kind = table.KeyKindS
	}
	return table.KeyDef{Name: k.Name, Kind: kind}
}

// findConfigFile searches for cachekey.yaml walking up from current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
