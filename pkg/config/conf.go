// Package config reads and writes the riskctl configuration file.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dataFileName   = "data.db"
	dirMode        = 0700
	fileMode       = 0600

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the application configuration.
type Config struct {
	Engine     Engine     `yaml:"engine"`
	Anomaly    Anomaly    `yaml:"anomaly"`
	Classifier Classifier `yaml:"classifier"`
	Store      Store      `yaml:"store"`
	Server     Server     `yaml:"server"`
	Model      Model      `yaml:"model"`
	Log        Log        `yaml:"log"`
}

// Engine controls synthetic data generation and training concurrency.
type Engine struct {
	Samples      int     `yaml:"samples"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
	Workers      int     `yaml:"workers"`
}

// Anomaly configures the isolation forest.
type Anomaly struct {
	Trees         int     `yaml:"trees"`
	SampleSize    int     `yaml:"sample_size"`
	Contamination float64 `yaml:"contamination"`
}

// Classifier configures the random forest.
type Classifier struct {
	Trees           int `yaml:"trees"`
	MaxFeatures     int `yaml:"max_features"`
	MinSamplesSplit int `yaml:"min_samples_split"`
	MaxDepth        int `yaml:"max_depth"`
}

// Store selects the database holding models and history. An empty SQLite
// DSN means the data file in the config directory.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Model struct {
	Name string `yaml:"name"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Engine: Engine{
			Samples:      1000,
			TestFraction: 0.2,
			Seed:         42,
		},
		Anomaly: Anomaly{
			Trees:         100,
			SampleSize:    256,
			Contamination: 0.1,
		},
		Classifier: Classifier{
			Trees:           100,
			MinSamplesSplit: 2,
		},
		Store: Store{
			Driver: DriverSQLite,
		},
		Server: Server{
			Port: 8080,
		},
		Model: Model{
			Name: "default",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Validate checks the values that would make training or serving fail.
func (c *Config) Validate() error {
	if c.Engine.Samples < 2 {
		return errors.Errorf("engine.samples must be at least 2, got %d", c.Engine.Samples)
	}
	if c.Engine.TestFraction <= 0 || c.Engine.TestFraction >= 1 {
		return errors.Errorf("engine.test_fraction must be in (0,1), got %v", c.Engine.TestFraction)
	}
	if c.Engine.Workers < 0 {
		return errors.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers)
	}
	if c.Anomaly.Trees <= 0 {
		return errors.Errorf("anomaly.trees must be positive, got %d", c.Anomaly.Trees)
	}
	if c.Anomaly.SampleSize < 0 {
		return errors.Errorf("anomaly.sample_size must not be negative, got %d", c.Anomaly.SampleSize)
	}
	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination > 0.5 {
		return errors.Errorf("anomaly.contamination must be in (0,0.5], got %v", c.Anomaly.Contamination)
	}
	if c.Classifier.Trees <= 0 {
		return errors.Errorf("classifier.trees must be positive, got %d", c.Classifier.Trees)
	}
	if c.Classifier.MaxFeatures < 0 || c.Classifier.MaxDepth < 0 {
		return errors.New("classifier.max_features and classifier.max_depth must not be negative")
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return errors.Errorf("unsupported store.driver: %s", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return errors.New("model.name is required")
	}
	return nil
}

// DataSource returns the driver and DSN to open, resolving an empty SQLite
// DSN to the data file inside dirPath.
func (c *Config) DataSource(dirPath string) (string, string) {
	if c.Store.Driver == DriverSQLite && c.Store.DSN == "" {
		return DriverSQLite, filepath.Join(dirPath, dataFileName)
	}
	return c.Store.Driver, c.Store.DSN
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// ReadOrCreate reads the config from dirPath, writing the defaults first
// when no config file exists. Keys missing from the file keep their
// default values.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
	}

	path := filepath.Join(dirPath, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	return Read(path)
}

// Read loads and validates the config file at path.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error parsing config file: %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the application directory under the user's
// home. The created flag is set when the directory did not exist.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "dir", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
