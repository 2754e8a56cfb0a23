// Package config provides configuration parsing for the inference server.
//
// Every setting has a command-line flag and an environment variable named
// after it (-model-path / MODEL_PATH). Settings may also be read from a YAML
// file passed with -config-file or CONFIG_FILE.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. YAML config file
//  4. Default values
//
// LISTEN falls back to ":$PORT" when only PORT is set, which is how most
// container platforms announce the port to bind.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	logger := logger.New(cfg.LogFormat, cfg.LogLevel)
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/irisserve/pkg/tls"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all inference server configuration.
type Config struct {
	Listen     string `yaml:"listen"`
	GRPCListen string `yaml:"grpcListen"`

	ModelPath      string `yaml:"modelPath"`
	ONNXRuntimeLib string `yaml:"onnxruntimeLib"`

	Cache           string        `yaml:"cache"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	CacheMaxEntries int           `yaml:"cacheMaxEntries"`
	RedisAddr       string        `yaml:"redisAddr"`
	RedisPassword   string        `yaml:"redisPassword"`
	RedisDB         int           `yaml:"redisDB"`

	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	LogFormat string `yaml:"logFormat"`
	LogLevel  string `yaml:"logLevel"`

	TLS tls.Config `yaml:"tls"`

	ConfigFile string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Listen:          ":8080",
		ModelPath:       "model/iris_forest.json",
		Cache:           CacheNone,
		CacheTTL:        10 * time.Minute,
		CacheMaxEntries: 10000,
		RedisAddr:       "localhost:6379",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogFormat:       "text",
		LogLevel:        "info",
	}
}

// ParseFlags parses os.Args and the process environment into a Config.
// Invalid configuration is fatal: the error is printed and the process exits 1.
func ParseFlags() *Config {
	cfg, err := Load(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Load builds a Config from args and getenv, then validates it.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()
	fs := newFlagSet(&cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Flags were written straight into cfg; remember them, then rebuild from
	// the lower-precedence sources and re-apply them on top.
	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	configFile := cfg.ConfigFile
	if configFile == "" {
		configFile = getenv("CONFIG_FILE")
	}

	cfg = Defaults()
	if configFile != "" {
		if err := loadFile(configFile, &cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configFile
	}

	if port := getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}

	var envErr error
	fs.VisitAll(func(f *flag.Flag) {
		if envErr != nil {
			return
		}
		key := envName(f.Name)
		if value := getenv(key); value != "" {
			if err := fs.Set(f.Name, value); err != nil {
				envErr = fmt.Errorf("invalid %s %q: %w", key, value, err)
			}
		}
	})
	if envErr != nil {
		return nil, envErr
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, fmt.Errorf("invalid -%s %q: %w", name, value, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", cfg.GRPCListen, "gRPC listen address (empty disables gRPC)")

	fs.StringVar(&cfg.ModelPath, "model-path", cfg.ModelPath, "Model artifact path (.json or .onnx), relative to the executable unless absolute")
	fs.StringVar(&cfg.ONNXRuntimeLib, "onnxruntime-lib", cfg.ONNXRuntimeLib, "Path to the onnxruntime shared library")

	fs.StringVar(&cfg.Cache, "cache", cfg.Cache, "Prediction cache: none, memory or redis")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Prediction cache TTL (0 keeps entries until evicted)")
	fs.IntVar(&cfg.CacheMaxEntries, "cache-max-entries", cfg.CacheMaxEntries, "Maximum entries in the memory cache")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")

	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-request prediction timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", cfg.TLS.Enabled, "Serve HTTP and gRPC over TLS")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", cfg.TLS.CertFile, "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", cfg.TLS.KeyFile, "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", cfg.TLS.CAFile, "CA file for client certificate verification (enables mTLS)")

	fs.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "YAML config file")

	return fs
}

// envName maps a flag name to its environment variable: model-path -> MODEL_PATH.
func envName(flagName string) string {
	return strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}

	switch c.Cache {
	case CacheNone, CacheRedis:
	case CacheMemory:
		if c.CacheMaxEntries <= 0 {
			return fmt.Errorf("cache-max-entries must be > 0, got %d", c.CacheMaxEntries)
		}
	default:
		return fmt.Errorf("invalid cache %q (must be none, memory or redis)", c.Cache)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache-ttl cannot be negative, got %v", c.CacheTTL)
	}
	if c.Cache == CacheRedis && c.RedisAddr == "" {
		return errors.New("redis-addr is required when cache=redis")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0, got %v", c.RequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be > 0, got %v", c.ShutdownTimeout)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return nil
}
