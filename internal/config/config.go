// Package config loads service settings from a YAML file and NOVELLA_*
// environment variables. Environment variables win over the file; command
// line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NOVELLA_LOG_LEVEL.
const EnvPrefix = "NOVELLA"

// Loader kinds.
const (
	LoaderLoam = "loam"
	LoaderFile = "file"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	// Stories is the story project directory.
	Stories string `yaml:"stories" envconfig:"STORIES"`
	// Loader selects how Stories is read: a loam project or plain story files.
	Loader string `yaml:"loader" envconfig:"LOADER"`
	// Watch reloads stories when their files change.
	Watch bool `yaml:"watch" envconfig:"WATCH"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`

	HTTP     HTTPConfig     `yaml:"http" envconfig:"HTTP"`
	MCP      MCPConfig      `yaml:"mcp" envconfig:"MCP"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Engine   EngineConfig   `yaml:"engine" envconfig:"ENGINE"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type MCPConfig struct {
	// Port serves the SSE transport. Zero means stdio.
	Port int `yaml:"port" envconfig:"PORT"`
}

// StoreConfig selects where playthroughs are kept.
type StoreConfig struct {
	Kind    string        `yaml:"kind" envconfig:"KIND"`
	Dir     string        `yaml:"dir" envconfig:"DIR"`
	LockTTL time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	Prefix   string        `yaml:"prefix" envconfig:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
}

// EngineConfig tunes the runtime. Zero values keep the engine defaults.
type EngineConfig struct {
	MaxAutoSteps       int  `yaml:"max_auto_steps" envconfig:"MAX_AUTO_STEPS"`
	PreIncrementVisits bool `yaml:"pre_increment_visits" envconfig:"PRE_INCREMENT_VISITS"`
	ReachabilityDepth  int  `yaml:"reachability_depth" envconfig:"REACHABILITY_DEPTH"`
}

// SecurityConfig protects stored playthroughs.
type SecurityConfig struct {
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
	// FallbackKeys open playthroughs sealed with retired keys.
	FallbackKeys []string `yaml:"fallback_keys" envconfig:"FALLBACK_KEYS"`
	// Redact lists variable name patterns masked before saving.
	Redact []string `yaml:"redact" envconfig:"REDACT"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Stories:   ".",
		Loader:    LoaderLoam,
		LogLevel:  "info",
		LogFormat: "text",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Kind:    StoreFile,
			Dir:     ".novella/playthroughs",
			LockTTL: 10 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "novella:playthrough:",
			},
		},
	}
}

// Load reads path, when set, over the defaults and applies environment
// overrides. A missing file is an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not go unnoticed.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Loader {
	case LoaderLoam, LoaderFile:
	default:
		errs = append(errs, fmt.Errorf("loader: unknown kind %q", c.Loader))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown format %q", c.LogFormat))
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file store"))
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind: unknown kind %q", c.Store.Kind))
	}
	if c.Engine.MaxAutoSteps < 0 {
		errs = append(errs, errors.New("engine.max_auto_steps must not be negative"))
	}
	if c.Engine.ReachabilityDepth < 0 {
		errs = append(errs, errors.New("engine.reachability_depth must not be negative"))
	}
	if len(c.Security.FallbackKeys) > 0 && c.Security.EncryptionKey == "" {
		errs = append(errs, errors.New("security.fallback_keys need an encryption_key"))
	}
	return errors.Join(errs...)
}
