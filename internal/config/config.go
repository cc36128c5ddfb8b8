package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds instance-level configuration for the service.
type Config struct {
	ListenAddr            string `yaml:"listenAddr"`
	MaxReceiveMessageSize int    `yaml:"maxReceiveMessageSize"`

	Window          time.Duration `yaml:"window"`
	MaxQueue        int           `yaml:"maxQueue"`
	MaxBatch        int           `yaml:"maxBatch"`
	OutputFile      string        `yaml:"outputFile"`
	OutputURL       string        `yaml:"outputURL"`
	LogLevel        string        `yaml:"logLevel"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// RegisterFlags registers CLI flags and returns a reader that builds the Config after flag.Parse().
// When -config names a YAML file its values replace the defaults, and flags given
// on the command line replace the file values.
func RegisterFlags() func() (Config, error) {
	configPath := flag.String("config", "", "Optional YAML config file")
	listenAddr := flag.String("listenAddr", "localhost:4317", "The listen address")
	maxRecv := flag.Int("maxReceiveMessageSize", 16*1024*1024, "The max message size in bytes the server can receive")

	window := flag.Duration("window", 10*time.Second, "Batching window duration")
	maxQueue := flag.Int("maxQueue", 100_000, "Max ingestion queue size")
	maxBatch := flag.Int("maxBatch", 1000, "Max records per batch before an early flush")
	outFile := flag.String("outputFile", "", "Append JSON lines to this file instead of stdout")
	outURL := flag.String("outputURL", "", "Publish batches to this ws:// or wss:// endpoint")
	logLevel := flag.String("logLevel", "info", "Log level: debug|info|warn|error")
	graceful := flag.Duration("gracefulTimeout", 10*time.Second, "Graceful shutdown timeout")

	return func() (Config, error) {
		fromFlags := Config{
			ListenAddr:            *listenAddr,
			MaxReceiveMessageSize: *maxRecv,
			Window:                *window,
			MaxQueue:              *maxQueue,
			MaxBatch:              *maxBatch,
			OutputFile:            *outFile,
			OutputURL:             *outURL,
			LogLevel:              *logLevel,
			GracefulTimeout:       *graceful,
		}

		if *configPath == "" {
			return fromFlags, fromFlags.Validate()
		}

		cfg := fromFlags
		if err := Load(*configPath, &cfg); err != nil {
			return Config{}, err
		}

		flag.Visit(func(f *flag.Flag) { cfg.override(f.Name, fromFlags) })

		return cfg, cfg.Validate()
	}
}

// Load decodes the YAML file at path into cfg. Keys absent from the file leave cfg unchanged.
func Load(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("cannot parse yaml %s: %w", path, err)
	}

	return nil
}

func (c *Config) override(name string, src Config) {
	switch name {
	case "listenAddr":
		c.ListenAddr = src.ListenAddr
	case "maxReceiveMessageSize":
		c.MaxReceiveMessageSize = src.MaxReceiveMessageSize
	case "window":
		c.Window = src.Window
	case "maxQueue":
		c.MaxQueue = src.MaxQueue
	case "maxBatch":
		c.MaxBatch = src.MaxBatch
	case "outputFile":
		c.OutputFile = src.OutputFile
	case "outputURL":
		c.OutputURL = src.OutputURL
	case "logLevel":
		c.LogLevel = src.LogLevel
	case "gracefulTimeout":
		c.GracefulTimeout = src.GracefulTimeout
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.MaxReceiveMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("maxReceiveMessageSize must be positive, got %d", c.MaxReceiveMessageSize))
	}

	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be positive, got %s", c.Window))
	}

	if c.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("maxQueue must not be negative, got %d", c.MaxQueue))
	}

	if c.MaxBatch <= 0 {
		errs = append(errs, fmt.Errorf("maxBatch must be positive, got %d", c.MaxBatch))
	}

	if c.GracefulTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gracefulTimeout must be positive, got %s", c.GracefulTimeout))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.OutputURL != "" {
		u, err := url.Parse(c.OutputURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("outputURL: %w", err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("outputURL must use ws or wss, got %q", u.Scheme))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("logLevel: %w", err)
	}

	return l, nil
}
