// Command bftnode boots a single BFT replica's signature-management and
// state-transfer shim stack for demonstration and integration testing:
// it wires the principal registry, key store, crypto epoch manager,
// signature manager, key-exchange coordinator, state-transfer shim,
// reconfiguration polling client, and admin introspection server from a
// loaded configuration, following the same cobra root-command layout the
// project's other command-line entry points use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"bftcore/pkg/adminserver"
	"bftcore/pkg/config"
	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/epoch"
	"bftcore/pkg/helper/log"
	"bftcore/pkg/keyexchange"
	"bftcore/pkg/keystore"
	"bftcore/pkg/metrics"
	"bftcore/pkg/principal"
	"bftcore/pkg/reconfig"
	"bftcore/pkg/secrets"
	"bftcore/pkg/security/encryption"
	"bftcore/pkg/sigmanager"
	"bftcore/pkg/statetransfer"
)

var (
	cfgFile  string
	cfg      = config.NewDefaultConfig()
	replicaID uint32
)

var rootCmd = &cobra.Command{
	Use:   "bftnode",
	Short: "Run a BFT replica's signature-management and state-transfer shim stack",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the node and serve until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd.Context())
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an EdDSA keypair for bootstrapping a demo deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := cryptoengine.GenerateEdDSAKeyPair()
		if err != nil {
			return err
		}
		fmt.Printf("public:  %x\n", pub)
		fmt.Printf("private: %x\n", priv)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().Uint32Var(&replicaID, "replica-id", 0, "This node's principal id")
	cfg.AddFlagsToCommand(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// node bundles the wired components so runNode's shutdown path can tear
// them down in reverse construction order; it also serves as the admin
// server's StatusProvider.
type node struct {
	logger  log.Logger
	admin   *adminserver.Server
	shim    *statetransfer.Shim
	rpc     *reconfig.Client
	sm      *sigmanager.Manager
	cem     *epoch.Manager
}

func (n *node) ReplicaID() uint32        { return replicaID }
func (n *node) LastExecutedSeq() uint64  { return n.sm.ReplicaLastExecutedSeq() }
func (n *node) LiveKeyGenerations() int  { return n.cem.LiveCount() }

func runNode(ctx context.Context) error {
	loaded, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return fmt.Errorf("bftnode: load config: %w", err)
	}
	cfg = loaded

	logger := log.NewBasicLogger(parseLevel(cfg.LogLevel))
	logger.WithField("replica_id", replicaID).Info("bftnode: starting")

	reg, err := principal.NewRegistry(principal.Counts{
		NumReplicas:        cfg.NumReplicas,
		NumROReplicas:      cfg.NumROReplicas,
		NumClientProxies:   cfg.NumOfClientProxies,
		NumExternalClients: cfg.NumOfExternalClients,
		NumInternalClients: cfg.NumOfInternalClients,
		NumClientServices:  cfg.NumOfClientServices,
	})
	if err != nil {
		return fmt.Errorf("bftnode: build principal registry: %w", err)
	}

	promReg := prometheus.NewRegistry()
	sigMetrics := metrics.NewSignatureMetrics(promReg)

	store, err := keystore.New(ctx, reg, nil, logger)
	if err != nil {
		return fmt.Errorf("bftnode: build key store: %w", err)
	}

	cem, err := epoch.NewManager(cfg.Reserved.CheckpointWindow)
	if err != nil {
		return fmt.Errorf("bftnode: build crypto epoch manager: %w", err)
	}

	// Bootstrap generation 0 with a fresh demo keypair for every replica.
	_, priv, err := cryptoengine.GenerateEdDSAKeyPair()
	if err != nil {
		return fmt.Errorf("bftnode: generate demo keypair: %w", err)
	}
	signer, err := cryptoengine.NewEdDSASigner(priv)
	if err != nil {
		return fmt.Errorf("bftnode: build demo signer: %w", err)
	}
	replicaIDs := make([]uint32, cfg.NumReplicas)
	for i := range replicaIDs {
		replicaIDs[i] = uint32(i)
	}
	multiSigner, err := cryptoengine.NewMultiSigner(signer, replicaIDs)
	if err != nil {
		return fmt.Errorf("bftnode: build multi-signer: %w", err)
	}
	cem.Activate(0, multiSigner, multiSigner.Verifiers())

	sm, err := sigmanager.New(sigmanager.Config{
		Registry:      reg,
		Store:         store,
		CEM:           cem,
		SelfID:        replicaID,
		IsSelfReplica: reg.IsReplica(replicaID),
		Metrics:       sigMetrics,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("bftnode: build signature manager: %w", err)
	}
	sigmanager.Register(sm)

	var secretsProvider secrets.Provider
	if cfg.Secrets.UseSecretsManager {
		secretsProvider, err = secrets.GetProvider(ctx, secrets.ManagerOptions{
			Provider:           secrets.ProviderType(cfg.Secrets.ProviderType),
			Logger:             logger,
			AWSRegion:          cfg.Secrets.AWSRegion,
			GCPProject:         cfg.Secrets.GCPProject,
			GCPCredentialsFile: cfg.Secrets.GCPCredentialsFile,
		})
		if err != nil {
			return fmt.Errorf("bftnode: build secrets provider: %w", err)
		}
	}

	var encMgr *encryption.Manager
	if cfg.Encryption.Enabled {
		encMgr, err = buildEncryptionManager(ctx, cfg.Encryption, cfg.Secrets, logger)
		if err != nil {
			return fmt.Errorf("bftnode: build encryption manager: %w", err)
		}
	}

	kec := keyexchange.New(keyexchange.Config{
		SecretsProvider:   secretsProvider,
		SecretNamePrefix:  cfg.Secrets.SecretNamePrefix,
		EncryptionManager: encMgr,
		Logger:            logger,
	})

	rpc := reconfig.NewClient(0)

	shim := statetransfer.New(statetransfer.Config{
		Engine: statetransfer.NewNullEngine(),
		Reconciliation: statetransfer.ReconciliationDeps{
			SigManager:            sm,
			CEM:                   cem,
			KEC:                   kec,
			RPC:                   rpc,
			CheckpointWindowSize:  cfg.Reserved.CheckpointWindow,
			SingleSignatureScheme: cfg.Signing.SingleSignatureScheme,
			ReadOnlyReplica:       reg.IsROReplica(replicaID),
			LatestKnownUpdateBlock: rpc.LatestKnownUpdateBlock,
		},
		Logger:         logger,
		TimerPeriod:    cfg.StateTransfer.TimerPeriod,
		DrainRateLimit: rate.Limit(cfg.StateTransfer.ReconciliationDrainRate),
	})

	n := &node{logger: logger, shim: shim, rpc: rpc, sm: sm, cem: cem}

	var adminSrv *adminserver.Server
	if cfg.Admin.Enabled {
		adminSrv = adminserver.New(cfg.Admin.Addr, promReg, n, logger)
		adminSrv.Start()
		n.admin = adminSrv
	}

	if err := shim.Start(ctx); err != nil {
		return fmt.Errorf("bftnode: start state transfer shim: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("bftnode: shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StateTransfer.TimerPeriod)
	defer cancel()

	if err := shim.Stop(stopCtx); err != nil {
		logger.Error("bftnode: state transfer shim stop returned an error", err)
	}
	if n.admin != nil {
		if err := n.admin.Stop(stopCtx); err != nil {
			logger.Error("bftnode: admin server stop returned an error", err)
		}
	}
	return nil
}

// buildEncryptionManager registers whichever KMS providers the
// configuration names (AWS, GCP, or both) and returns a Manager
// defaulting to whichever was configured, preferring AWS when both are.
func buildEncryptionManager(ctx context.Context, envCfg config.EncryptionConfig, secretsCfg config.SecretsConfig, logger log.Logger) (*encryption.Manager, error) {
	providers := map[string]encryption.Provider{}
	defaultProvider := ""

	if envCfg.AWSKMSKeyID != "" {
		provider, err := encryption.NewAWSKMS(ctx, encryption.AWSOpts{
			Region: secretsCfg.AWSRegion,
			KeyID:  envCfg.AWSKMSKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("build AWS KMS provider: %w", err)
		}
		providers["aws-kms"] = provider
		defaultProvider = "aws-kms"
	}

	if envCfg.GCPKMSKeyID != "" {
		provider, err := encryption.NewGCPKMS(ctx, encryption.GCPOpts{
			Project:         secretsCfg.GCPProject,
			Location:        envCfg.GCPLocation,
			KeyRing:         envCfg.GCPKeyRing,
			Key:             envCfg.GCPKMSKeyID,
			CredentialsFile: secretsCfg.GCPCredentialsFile,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build GCP KMS provider: %w", err)
		}
		providers["gcp-kms"] = provider
		if defaultProvider == "" {
			defaultProvider = "gcp-kms"
		}
	}

	mgr := encryption.NewManager(providers, encryption.EncryptionConfig{
		Provider:           defaultProvider,
		EnvelopeEncryption: envCfg.EnvelopeEncryption,
		DataKeyLength:      32,
	})
	return mgr, nil
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
