package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bftcore/pkg/helper/errors"
)

// LoadFromFile loads configuration from a YAML file, then applies
// environment-variable overrides, then validates.
func LoadFromFile(configPath string) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		expandedPath := ExpandHomeDir(configPath)

		if _, err := os.Stat(expandedPath); os.IsNotExist(err) {
			return nil, errors.NotFoundf("configuration file not found: %s", expandedPath)
		}

		data, err := os.ReadFile(expandedPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read configuration file")
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "failed to parse configuration file")
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFromEnv applies BFTCORE_*-prefixed environment variable overrides.
func loadFromEnv(config *Config) error {
	strVars := map[string]*string{
		"BFTCORE_LOG_LEVEL":           &config.LogLevel,
		"BFTCORE_SECRETS_PROVIDER":    &config.Secrets.ProviderType,
		"BFTCORE_AWS_SECRET_REGION":   &config.Secrets.AWSRegion,
		"BFTCORE_GCP_SECRET_PROJECT":  &config.Secrets.GCPProject,
		"BFTCORE_ADMIN_ADDR":          &config.Admin.Addr,
		"BFTCORE_AWS_KMS_KEY_ID":      &config.Encryption.AWSKMSKeyID,
		"BFTCORE_GCP_KMS_KEY_ID":      &config.Encryption.GCPKMSKeyID,
	}
	for env, field := range strVars {
		if value, exists := os.LookupEnv(env); exists && value != "" {
			*field = value
		}
	}

	boolVars := map[string]*bool{
		"BFTCORE_SINGLE_SIGNATURE_SCHEME":    &config.Signing.SingleSignatureScheme,
		"BFTCORE_CLIENT_TX_SIGNING_ENABLED":  &config.Signing.ClientTransactionSigningEnabled,
		"BFTCORE_DEBUG_STATISTICS_ENABLED":   &config.Signing.DebugStatisticsEnabled,
		"BFTCORE_USE_SECRETS_MANAGER":        &config.Secrets.UseSecretsManager,
		"BFTCORE_ENCRYPT_CANDIDATES":         &config.Encryption.Enabled,
		"BFTCORE_ADMIN_ENABLED":              &config.Admin.Enabled,
	}
	for env, field := range boolVars {
		if value, exists := os.LookupEnv(env); exists {
			*field = strings.ToLower(value) == "true" || value == "1"
		}
	}

	if value, exists := os.LookupEnv("BFTCORE_NUM_REPLICAS"); exists {
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			config.NumReplicas = uint32(n)
		}
	}
	if value, exists := os.LookupEnv("BFTCORE_CHECKPOINT_WINDOW"); exists {
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			config.Reserved.CheckpointWindow = n
		}
	}
	if value, exists := os.LookupEnv("BFTCORE_STATE_TRANSFER_TIMER_PERIOD"); exists {
		if d, err := time.ParseDuration(value); err == nil {
			config.StateTransfer.TimerPeriod = d
		}
	}

	return nil
}

// SaveToFile writes the configuration to path as YAML.
func (c *Config) SaveToFile(filePath string) error {
	expandedPath := ExpandHomeDir(filePath)

	file, err := os.Create(expandedPath)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	defer encoder.Close()
	if err := encoder.Encode(c); err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	logLevel := strings.ToLower(c.LogLevel)
	if logLevel != "debug" && logLevel != "info" && logLevel != "warn" && logLevel != "error" && logLevel != "fatal" {
		return errors.InvalidInputf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", c.LogLevel)
	}

	if c.NumReplicas == 0 {
		return errors.InvalidInputf("num_replicas must be non-zero")
	}
	if c.Reserved.CheckpointWindow == 0 {
		return errors.InvalidInputf("checkpoint_window must be non-zero")
	}
	if c.Reserved.WorkWindow == 0 {
		return errors.InvalidInputf("work_window must be non-zero")
	}
	if c.StateTransfer.TimerPeriod <= 0 {
		return errors.InvalidInputf("state transfer timer period must be positive")
	}

	if c.Secrets.UseSecretsManager {
		if c.Secrets.ProviderType != "aws" && c.Secrets.ProviderType != "gcp" {
			return errors.InvalidInputf("invalid secrets provider: %s (must be one of: aws, gcp)", c.Secrets.ProviderType)
		}
		if c.Secrets.ProviderType == "aws" && c.Secrets.AWSRegion == "" {
			return errors.InvalidInputf("aws region must be specified when using the AWS secrets provider")
		}
		if c.Secrets.ProviderType == "gcp" && c.Secrets.GCPProject == "" {
			return errors.InvalidInputf("gcp project must be specified when using the GCP secrets provider")
		}
	}

	if c.Encryption.Enabled {
		if c.Encryption.AWSKMSKeyID == "" && c.Encryption.GCPKMSKeyID == "" {
			return errors.InvalidInputf("encryption is enabled but neither an AWS nor a GCP KMS key id was specified")
		}
		if c.Encryption.AWSKMSKeyID != "" && c.Secrets.AWSRegion == "" {
			return errors.InvalidInputf("aws region must be specified to seal candidates with an AWS KMS key")
		}
		if c.Encryption.GCPKMSKeyID != "" && c.Secrets.GCPProject == "" {
			return errors.InvalidInputf("gcp project must be specified to seal candidates with a GCP KMS key")
		}
	}

	return nil
}
