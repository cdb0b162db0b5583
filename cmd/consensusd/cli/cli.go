// Package cli assembles the consensusd command tree, following the
// teacher's cmd/empower1d/cli package: a cobra root command with
// functional wiring in the command handlers rather than a DI framework.
package cli

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/empower1/consensusd/internal/blockloader"
	"github.com/empower1/consensusd/internal/config"
	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/metrics"
	"github.com/empower1/consensusd/internal/node"
	"github.com/empower1/consensusd/internal/ordering"
	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/round"
	"github.com/empower1/consensusd/internal/simulator"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/syncer"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
	"github.com/empower1/consensusd/internal/yac"
)

// NewRootCommand builds the consensusd command tree.
func NewRootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "consensusd",
		Short: "consensusd runs one node of a permissioned BFT/CFT consensus network",
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to a config file (yaml, json or toml)")
	config.BindFlags(flags)

	root.AddCommand(newRunCommand(&configFile, flags))
	root.AddCommand(newKeygenCommand())
	return root
}

func newRunCommand(configFile *string, flags *pflag.FlagSet) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start this node and participate in consensus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile, flags)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg)
		},
	}
}

func newKeygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a P-256 signing key and print its did:key identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			if err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}
			if out != "" {
				if err := crypto.SavePEM(priv, out); err != nil {
					return err
				}
			}
			adapter, err := crypto.NewAdapter(priv)
			if err != nil {
				return err
			}
			did, err := crypto.DIDKey(adapter.PublicKey())
			if err != nil {
				return err
			}
			fmt.Printf("public_key: %x\n", adapter.PublicKey())
			fmt.Printf("did: %s\n", did)
			if out != "" {
				fmt.Printf("private key written to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the generated private key PEM here")
	return cmd
}

// loadOrCreateSigner reads an existing PEM key from keyFile, or generates
// and persists a fresh one if keyFile is empty or does not yet exist.
func loadOrCreateSigner(keyFile string) (crypto.Adapter, error) {
	if keyFile != "" {
		if _, err := os.Stat(keyFile); err == nil {
			priv, err := crypto.LoadPEM(keyFile)
			if err != nil {
				return nil, err
			}
			return crypto.NewAdapter(priv)
		}
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if keyFile != "" {
		if err := crypto.SavePEM(priv, keyFile); err != nil {
			return nil, err
		}
	}
	return crypto.NewAdapter(priv)
}

func supermajorityChecker(model config.ConsistencyModel) yac.SupermajorityChecker {
	if model == config.CFT {
		return yac.CFTChecker{}
	}
	return yac.BFTChecker{}
}

// orderingClock adapts benbjohnson/clock's deterministic Clock to
// ordering.Clock's millisecond-epoch interface.
type orderingClock struct{ clk clock.Clock }

func (c orderingClock) NowMillis() uint64 { return uint64(c.clk.Now().UnixMilli()) }

func runNode(ctx context.Context, cfg config.Config) error {
	log := logging.New("consensusd", cfg.Debug)
	defer log.Sync() //nolint:errcheck

	signer, err := loadOrCreateSigner(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	self := signer.PublicKey()
	log.Infow("node identity", "public_key", fmt.Sprintf("%x", self))

	genesisPeers, err := resolveGenesisPeers(cfg, self)
	if err != nil {
		return err
	}

	st, closeStorage, err := openStorage(cfg, genesisPeers)
	if err != nil {
		return err
	}
	defer closeStorage()

	checker := supermajorityChecker(cfg.ConsistencyModel)
	presenceCache := presence.New(st)
	batchStore := ordering.NewBatchStore(presenceCache, int(cfg.BatchStoreTxCap))
	clk := clock.New()
	orderingSvc := ordering.NewService(batchStore, orderingClock{clk}, int(cfg.MaxProposalSize), int(cfg.ProposalCacheRounds), uint64(cfg.MaxDelay.Milliseconds()), uint64(cfg.MaxPastCreatedHours)*uint64(time.Hour.Milliseconds()), log)
	sim := simulator.New(st, signer, log)
	blockSrv := blockloader.NewServer(st, log)

	dialer := &transport.TCPDialer{Timeout: 5 * time.Second}
	registry := transport.NewRegistry(dialer, log)
	registry.SetPeers(genesisPeers)

	yacCore := yac.NewCore(self, signer, checker, registry, log)
	yacCore.SetVoteDelay(cfg.VoteDelay)

	var collectors *metrics.Collectors
	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		collectors = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnw("metrics server stopped", "error", err)
			}
		}()
	}
	yacCore.SetMetrics(collectors)

	syncerInst := syncer.New(st, checker, presenceCache, blockSrv, registry, log)

	handler := node.New(yacCore, orderingSvc, blockSrv, log)
	if err := handler.Start(); err != nil {
		return fmt.Errorf("start node handler: %w", err)
	}
	defer handler.Stop() //nolint:errcheck

	transportSrv := transport.NewServer(cfg.ListenAddress, handler, log)
	if err := transportSrv.Start(); err != nil {
		return fmt.Errorf("start transport server: %w", err)
	}
	defer transportSrv.Stop() //nolint:errcheck

	driver := round.New(round.Deps{
		Self:            self,
		Ordering:        orderingSvc,
		Simulator:       sim,
		YAC:             yacCore,
		Syncer:          syncerInst,
		Resolver:        registry,
		Storage:         st,
		MaxRoundsDelay:  cfg.MaxRoundsDelay,
		ProposalTimeout: cfg.ProposalDelay,
		SyncingMode:     cfg.SyncingMode,
		Metrics:         collectors,
		Clock:           clk,
	}, log)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := driver.Start(runCtx); err != nil {
		return fmt.Errorf("start round driver: %w", err)
	}

	<-runCtx.Done()
	log.Info("shutting down")
	if err := driver.Stop(); err != nil {
		log.Warnw("round driver stop", "error", err)
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// resolveGenesisPeers loads the validator set a fresh node starts from,
// adding self with its listen address if a peers file did not already
// name it.
func resolveGenesisPeers(cfg config.Config, self types.PublicKey) (types.PeerSet, error) {
	if cfg.PeersFile == "" {
		return types.PeerSet{{PublicKey: self, Address: cfg.ListenAddress}}, nil
	}
	peers, err := config.LoadPeers(cfg.PeersFile)
	if err != nil {
		return nil, fmt.Errorf("load genesis peers: %w", err)
	}
	if !peers.Contains(self) {
		peers = types.Sorted(append(peers, types.Peer{PublicKey: self, Address: cfg.ListenAddress}))
	}
	return peers, nil
}

// openStorage picks the embedded Bolt-backed adapter when a data
// directory is configured, falling back to the in-memory adapter
// otherwise (development runs, or an explicit ":memory:" data dir).
func openStorage(cfg config.Config, genesisPeers types.PeerSet) (storage.Adapter, func(), error) {
	if cfg.DataDir == "" || cfg.DataDir == ":memory:" {
		return storage.NewMemoryAdapter(genesisPeers), func() {}, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir %q: %w", cfg.DataDir, err)
	}
	dbPath := filepath.Join(cfg.DataDir, "consensusd.db")
	adapter, err := storage.OpenBolt(dbPath, genesisPeers)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage at %q: %w", dbPath, err)
	}
	return adapter, func() { _ = adapter.Close() }, nil
}
