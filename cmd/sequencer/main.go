// Command sequencer boots the EVM-compatible JSON-RPC sequencer
// front-end: it loads configuration, opens the mempool's embedded
// store, dials the upstream Ethereum node, and serves the method
// registry until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/dusk-network/evm-sequencer/pkg/config"
	evmlog "github.com/dusk-network/evm-sequencer/pkg/log"
	"github.com/dusk-network/evm-sequencer/pkg/core/mempool"
	"github.com/dusk-network/evm-sequencer/pkg/core/sequencer"
	"github.com/dusk-network/evm-sequencer/pkg/rpc"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on clean shutdown, non-zero on
// bootstrap failure per §6 (bind error, store open error, missing
// config).
func run() int {
	configPath := flag.String("config", "sequencer.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	if err := evmlog.Configure(evmlog.Config{Level: cfg.Log.Level, FilePath: cfg.Log.FilePath}); err != nil {
		fmt.Fprintln(os.Stderr, "log config error:", err)
		return 1
	}
	log := logger.WithFields(logger.Fields{"prefix": "main"})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mp, err := mempool.New(mempool.Config{Path: cfg.Path, ClientURL: cfg.ClientURL})
	if err != nil {
		log.WithError(err).Error("failed to open mempool")
		return 1
	}
	defer mp.Close()

	upstream, err := rpc.DialUpstream(ctx, cfg.UpstreamURL)
	if err != nil {
		log.WithError(err).Error("failed to dial upstream")
		return 1
	}
	defer upstream.Close()

	seq, err := sequencer.New(sequencer.Config{
		Mempool:    mp,
		BatchSize:  cfg.BatchSize,
		ServerPort: cfg.ServerPort,
		Provider:   upstream,
	})
	if err != nil {
		log.WithError(err).Error("failed to construct sequencer")
		return 1
	}

	registry := rpc.NewRegistry(seq)
	handle, err := rpc.Serve(cfg.ServerPort, registry)
	if err != nil {
		log.WithError(err).Error("failed to bind rpc server")
		return 1
	}

	log.WithField("port", cfg.ServerPort).Info("sequencer running")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := handle.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return 1
	}

	<-handle.Stopped()
	log.Info("shutdown complete")
	return 0
}
