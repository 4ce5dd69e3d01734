package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// SigningAlgo enumerates the replica message-signing algorithm. Only
// EdDSA is exercised by this core.
type SigningAlgo string

const (
	SigningAlgoEdDSA SigningAlgo = "eddsa"
)

// Config is the top-level node configuration, covering every option
// named by the external-interfaces configuration table.
type Config struct {
	LogLevel string

	// Principal counts, laid out contiguously in the fixed order:
	// replicas | ro-replicas | client proxies | external clients |
	// internal clients | client services.
	NumReplicas        uint32
	NumROReplicas      uint32
	NumOfClientProxies uint32
	NumOfExternalClients uint32
	NumOfInternalClients uint32
	NumOfClientServices  uint32

	Signing      SigningConfig
	Reserved     ReservedPagesConfig
	StateTransfer StateTransferConfig
	Admin        AdminConfig
	Secrets      SecretsConfig
	Encryption   EncryptionConfig
}

// SigningConfig covers the signature-manager-facing options.
type SigningConfig struct {
	ReplicaMsgSigningAlgo          SigningAlgo
	ClientTransactionSigningEnabled bool
	SingleSignatureScheme           bool
	DebugStatisticsEnabled          bool
	DebugPersistentStorageEnabled   bool
}

// ReservedPagesConfig covers the reserved-page layout parameters, used
// only to compute reserved-page counts (the pages themselves are an
// external collaborator this core does not own).
type ReservedPagesConfig struct {
	CheckpointWindow      uint64
	WorkWindow            uint64
	SizeOfReservedPage    uint32
	MaxReplyMessageSize   uint32
	ClientBatchingMaxMsgs uint32
}

// StateTransferConfig covers the state-transfer shim's tunables.
type StateTransferConfig struct {
	TimerPeriod             time.Duration
	ReconciliationDrainRate float64 // polls/sec, paced drain of the reconfiguration queue
}

// AdminConfig covers the introspection HTTP server.
type AdminConfig struct {
	Enabled bool
	Addr    string
}

// SecretsConfig configures the key-exchange coordinator's persistence
// backend.
type SecretsConfig struct {
	UseSecretsManager  bool
	ProviderType       string // "aws" or "gcp"
	AWSRegion          string
	GCPProject         string
	GCPCredentialsFile string
	SecretNamePrefix   string
}

// EncryptionConfig configures whether key-exchange candidates are sealed
// before being handed to the secrets backend.
type EncryptionConfig struct {
	Enabled            bool
	EnvelopeEncryption bool
	AWSKMSKeyID        string
	GCPKMSKeyID        string
	GCPKeyRing         string
	GCPLocation        string
}

// NewDefaultConfig returns a Config with the defaults exercised by the
// demo single-node deployment.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:           "info",
		NumReplicas:        4,
		NumROReplicas:      0,
		NumOfClientProxies: 0,
		NumOfExternalClients: 1,
		NumOfInternalClients: 0,
		NumOfClientServices:  0,
		Signing: SigningConfig{
			ReplicaMsgSigningAlgo:           SigningAlgoEdDSA,
			ClientTransactionSigningEnabled: true,
			SingleSignatureScheme:           true,
			DebugStatisticsEnabled:          false,
			DebugPersistentStorageEnabled:   false,
		},
		Reserved: ReservedPagesConfig{
			CheckpointWindow:      150,
			WorkWindow:            300,
			SizeOfReservedPage:    4096,
			MaxReplyMessageSize:   65536,
			ClientBatchingMaxMsgs: 1,
		},
		StateTransfer: StateTransferConfig{
			TimerPeriod:             5 * time.Second,
			ReconciliationDrainRate: 20,
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Secrets: SecretsConfig{
			UseSecretsManager: false,
			ProviderType:      "aws",
			SecretNamePrefix:  "bftcore/key-exchange-candidate",
		},
		Encryption: EncryptionConfig{
			Enabled:            false,
			EnvelopeEncryption: true,
			GCPKeyRing:         "bftcore",
			GCPLocation:        "global",
		},
	}
}

// AddFlagsToCommand registers the node's flags on cmd.
func (c *Config) AddFlagsToCommand(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error, fatal)")

	cmd.PersistentFlags().Uint32Var(&c.NumReplicas, "num-replicas", c.NumReplicas, "Number of full voting replicas")
	cmd.PersistentFlags().Uint32Var(&c.NumROReplicas, "num-ro-replicas", c.NumROReplicas, "Number of read-only replicas")
	cmd.PersistentFlags().Uint32Var(&c.NumOfClientProxies, "num-client-proxies", c.NumOfClientProxies, "Number of client proxies")
	cmd.PersistentFlags().Uint32Var(&c.NumOfExternalClients, "num-external-clients", c.NumOfExternalClients, "Number of external clients")
	cmd.PersistentFlags().Uint32Var(&c.NumOfInternalClients, "num-internal-clients", c.NumOfInternalClients, "Number of internal clients")
	cmd.PersistentFlags().Uint32Var(&c.NumOfClientServices, "num-client-services", c.NumOfClientServices, "Number of client services")

	cmd.PersistentFlags().BoolVar(&c.Signing.ClientTransactionSigningEnabled, "client-transaction-signing-enabled", c.Signing.ClientTransactionSigningEnabled, "Client transaction signing flag; stored in the config but not read by any component")
	cmd.PersistentFlags().BoolVar(&c.Signing.SingleSignatureScheme, "single-signature-scheme", c.Signing.SingleSignatureScheme, "Gate the reconciliation pipeline's key-sync steps")
	cmd.PersistentFlags().BoolVar(&c.Signing.DebugStatisticsEnabled, "debug-statistics-enabled", c.Signing.DebugStatisticsEnabled, "Debug statistics flag; stored in the config but not read by any component")
	cmd.PersistentFlags().BoolVar(&c.Signing.DebugPersistentStorageEnabled, "debug-persistent-storage-enabled", c.Signing.DebugPersistentStorageEnabled, "Debug persistent storage flag; stored in the config but not read by any component")

	cmd.PersistentFlags().Uint64Var(&c.Reserved.CheckpointWindow, "checkpoint-window", c.Reserved.CheckpointWindow, "Sequences per checkpoint")
	cmd.PersistentFlags().Uint64Var(&c.Reserved.WorkWindow, "work-window", c.Reserved.WorkWindow, "In-flight sequence window")

	cmd.PersistentFlags().DurationVar(&c.StateTransfer.TimerPeriod, "state-transfer-timer-period", c.StateTransfer.TimerPeriod, "State-transfer engine timer period")

	cmd.PersistentFlags().BoolVar(&c.Admin.Enabled, "admin-enabled", c.Admin.Enabled, "Enable the admin introspection HTTP server")
	cmd.PersistentFlags().StringVar(&c.Admin.Addr, "admin-addr", c.Admin.Addr, "Admin HTTP server listen address")

	cmd.PersistentFlags().BoolVar(&c.Secrets.UseSecretsManager, "use-secrets-manager", c.Secrets.UseSecretsManager, "Persist key-exchange candidates to a cloud secrets backend")
	cmd.PersistentFlags().StringVar(&c.Secrets.ProviderType, "secrets-provider", c.Secrets.ProviderType, "Secrets backend (aws, gcp)")
	cmd.PersistentFlags().StringVar(&c.Secrets.AWSRegion, "aws-secret-region", c.Secrets.AWSRegion, "AWS region for Secrets Manager")
	cmd.PersistentFlags().StringVar(&c.Secrets.GCPProject, "gcp-secret-project", c.Secrets.GCPProject, "GCP project for Secret Manager")

	cmd.PersistentFlags().BoolVar(&c.Encryption.Enabled, "encrypt-candidates", c.Encryption.Enabled, "Seal key-exchange candidates before persistence")
	cmd.PersistentFlags().StringVar(&c.Encryption.AWSKMSKeyID, "aws-kms-key-id", c.Encryption.AWSKMSKeyID, "AWS KMS key id used to seal key-exchange candidates")
	cmd.PersistentFlags().StringVar(&c.Encryption.GCPKMSKeyID, "gcp-kms-key-id", c.Encryption.GCPKMSKeyID, "GCP KMS key name used to seal key-exchange candidates")
	cmd.PersistentFlags().StringVar(&c.Encryption.GCPKeyRing, "gcp-kms-key-ring", c.Encryption.GCPKeyRing, "GCP KMS key ring holding the sealing key")
}

// ExpandHomeDir expands the ~ or $HOME at the beginning of a directory path.
func ExpandHomeDir(path string) string {
	if path == "" {
		return path
	}
	if strings.Contains(path, "${HOME}") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "${HOME}", homeDir)
		}
	}
	if strings.HasPrefix(path, "~") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}
	return path
}
