// Copyright 2025 Certen Protocol
//
// Configuration Loader
// Loads signing key, per-chain schema/contract tables, and API-key table
// once at startup. Immutable afterwards.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Astral Location Services oracle.
type Config struct {
	// Server
	ListenAddr      string
	MaxBodyBytes    int64
	RPCTimeout      time.Duration
	SigningDeadline time.Duration

	// Signing
	SigningKeyHex string

	// Rate limiting
	RateLimitWindow    time.Duration
	RateLimitPublic    int
	RateLimitDeveloper int
	RateLimitInternal  int

	// Chains, schemas, API keys loaded from the YAML tables file (if any)
	Chains  map[int64]ChainConfig
	Schemas SchemaTable
	APIKeys map[string]APIKeyRecord

	// DefaultChainID is used when a verify request omits options.chainId.
	DefaultChainID int64

	// EvaluationMode is the value reported in CredibilityVector.meta.evaluationMode
	EvaluationMode string
}

// ChainConfig describes how to reach EAS on one chain.
type ChainConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	EASContractAddress string `yaml:"eas_contract_address"`
}

// SchemaTable holds the default schema UID per attestation family.
type SchemaTable struct {
	Numeric string `yaml:"numeric"`
	Boolean string `yaml:"boolean"`
	Verify  string `yaml:"verify"`
}

// APIKeyRecord is one row of the API-key table.
type APIKeyRecord struct {
	Tier  string `yaml:"tier"`
	Label string `yaml:"label"`
}

// tablesFile is the on-disk shape of the YAML configuration file, matched
// field-for-field against Config's table fields. Per-chain schema overrides
// are nested under "chains" alongside the RPC/EAS address pair.
type tablesFile struct {
	Chains map[string]struct {
		ChainConfig `yaml:",inline"`
		Schemas     *SchemaTable `yaml:"schemas,omitempty"`
	} `yaml:"chains"`
	DefaultSchemas SchemaTable             `yaml:"default_schemas"`
	APIKeys        map[string]APIKeyRecord `yaml:"api_keys"`
}

// defaultChains holds the well-known EAS deployments.
func defaultChains() map[int64]ChainConfig {
	return map[int64]ChainConfig{
		1:        {EASContractAddress: "0xA1207F3BBa224E2c9c3c6D5aF63D0eb1582Ce587"},
		11155111: {EASContractAddress: "0xC2679fBD37d54388Ce493F1DB75320D236e1815e"},
		8453:     {EASContractAddress: "0x4200000000000000000000000000000000000021"},
		84532:    {EASContractAddress: "0x4200000000000000000000000000000000000021"},
	}
}

// Load reads configuration from the environment plus an optional YAML
// tables file named by ASTRAL_CONFIG_FILE. Environment variables always
// win over the file, matching the "env overrides file" convention.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		RPCTimeout:      getEnvDuration("RPC_TIMEOUT", 10*time.Second),
		SigningDeadline: getEnvDuration("SIGNING_DEADLINE", time.Hour),

		SigningKeyHex: getEnv("SIGNING_KEY", ""),

		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitPublic:    getEnvInt("RATE_LIMIT_PUBLIC", 100),
		RateLimitDeveloper: getEnvInt("RATE_LIMIT_DEVELOPER", 1000),
		RateLimitInternal:  getEnvInt("RATE_LIMIT_INTERNAL", 10000),

		Chains:         defaultChains(),
		DefaultChainID: int64(getEnvInt("DEFAULT_CHAIN_ID", 84532)),
		EvaluationMode: getEnv("EVALUATION_MODE", "tee"),
		APIKeys:        make(map[string]APIKeyRecord),
	}

	if path := getEnv("ASTRAL_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadTablesFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if v := getEnv("EAS_SCHEMA_NUMERIC", ""); v != "" {
		cfg.Schemas.Numeric = v
	}
	if v := getEnv("EAS_SCHEMA_BOOLEAN", ""); v != "" {
		cfg.Schemas.Boolean = v
	}
	if v := getEnv("EAS_SCHEMA_VERIFY", ""); v != "" {
		cfg.Schemas.Verify = v
	}

	return cfg, nil
}

func (c *Config) loadTablesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var tf tablesFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	for idStr, entry := range tf.Chains {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id %q: %w", idStr, err)
		}
		c.Chains[id] = entry.ChainConfig
		if entry.Schemas != nil {
			// SchemaFor takes no chain id, so a chain's schemas are not
			// looked up per chain: they only seed the default table
			// while it has no numeric schema yet (with several such
			// chains, which one wins is not defined), and a non-empty
			// default_schemas block replaces them.
			if c.Schemas.Numeric == "" {
				c.Schemas = *entry.Schemas
			}
		}
	}
	if tf.DefaultSchemas.Numeric != "" || tf.DefaultSchemas.Boolean != "" || tf.DefaultSchemas.Verify != "" {
		c.Schemas = tf.DefaultSchemas
	}
	for k, v := range tf.APIKeys {
		c.APIKeys[k] = v
	}

	return nil
}

// Validate checks that the minimum configuration required to serve
// requests is present.
func (c *Config) Validate() error {
	var errs []string

	if c.SigningKeyHex == "" {
		errs = append(errs, "SIGNING_KEY is required but not set")
	}
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one chain must be configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SchemaFor returns the configured schema UID for a family, honouring a
// per-request override when non-empty.
func (c *Config) SchemaFor(family, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	var def string
	switch family {
	case "numeric":
		def = c.Schemas.Numeric
	case "boolean":
		def = c.Schemas.Boolean
	case "verify":
		def = c.Schemas.Verify
	}
	if def == "" {
		return "", fmt.Errorf("no schema configured for %s and none supplied in request", family)
	}
	return def, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
