package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/pineappleworkshop/lightning/batchpool"
	"github.com/pineappleworkshop/lightning/blockstore"
	"github.com/pineappleworkshop/lightning/gossip"
	"github.com/pineappleworkshop/lightning/nodeidentity"
)

func main() {
	app := &cli.App{
		Name:  "lightning-node",
		Usage: "decentralized content-delivery node",
		Commands: []*cli.Command{
			{
				Name:            "run",
				Usage:           "start the node",
				SkipFlagParsing: true,
				Action: func(c *cli.Context) error {
					return runNode(c.Args().Slice(), os.Stdout, os.Stderr)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runNode parses the run subcommand's own flags with a hand-rolled
// flag.FlagSet (the top-level command routing is urfave/cli's job;
// per-command flags stay plain stdlib flag, mirroring how the
// reference node lays out its subcommands).
func runNode(args []string, stdout, stderr *os.File) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a TOML config file")
	peerCSV := fs.String("peers", "", "bootstrap peers, comma-separated host:port")
	network := fs.String("network", "", "network name (devnet/testnet/mainnet)")
	dataDir := fs.String("datadir", "", "node data directory")
	bindAddr := fs.String("bind", "", "bind address host:port")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error")
	maxPeers := fs.Int("max-peers", 0, "max connected peers")
	metricsAddr := fs.String("metrics-addr", "", "prometheus metrics listen address")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *network != "" {
		cfg.Network = *network
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *bindAddr != "" {
		cfg.BindAddr = *bindAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *maxPeers != 0 {
		cfg.MaxPeers = *maxPeers
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *peerCSV != "" {
		cfg.Peers = NormalizePeers(append(append([]string{}, cfg.Peers...), *peerCSV)...)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	if *dryRun {
		fmt.Fprintf(stdout, "%+v\n", cfg)
		return nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	identity, err := nodeidentity.LoadOrGenerate(
		filepath.Join(cfg.DataDir, "node.pem"),
		filepath.Join(cfg.DataDir, "network.pem"),
		nil,
	)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.WithField("node_pubkey", fmt.Sprintf("%x", identity.NodePublicKey[:8])).Info("identity loaded")

	store, err := blockstore.OpenDiskStore(filepath.Join(cfg.DataDir, "blocks.db"))
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()

	p2pHost, err := gossip.NewHost(cfg.BindAddr, identity.NetworkSecretKey)
	if err != nil {
		return fmt.Errorf("start p2p transport: %w", err)
	}
	defer p2pHost.Close()
	log.WithField("peer_id", p2pHost.ID().String()).Info("p2p transport listening")

	registry := prometheus.NewRegistry()
	pool := batchpool.New()
	for _, c := range pool.Collectors() {
		registry.MustRegister(c)
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server exited")
		}
	}()
	defer metricsServer.Close()

	log.WithFields(logrus.Fields{
		"network":  cfg.Network,
		"bind":     cfg.BindAddr,
		"data_dir": cfg.DataDir,
		"peers":    len(cfg.Peers),
	}).Info("starting lightning-node")

	// The consensus pipeline and submission engine are wired here once
	// the application layer (committee, worker cache, node state,
	// mempool client) is available; those are external collaborators
	// supplied by the service embedding this node, not constructed by
	// it.
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	return nil
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logrus.NewEntry(logger)
}
