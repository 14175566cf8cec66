// Command metrics polls a running sequencer's get_pending_transactions
// method and exposes the result as a Prometheus text-format endpoint,
// the same poll-and-serve shape as the teacher's cmd/exporter, adapted
// from dusk block-height polling to pending-queue depth.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var pending int64

func main() {
	sequencerURL := flag.String("sequencer-url", "http://127.0.0.1:8545", "JSON-RPC URL of the sequencer to poll")
	listenAddr := flag.String("listen", "0.0.0.0:9090", "address to serve /metrics on")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	log := logger.WithFields(logger.Fields{"prefix": "metrics"})

	client, err := gethrpc.DialContext(context.Background(), *sequencerURL)
	if err != nil {
		log.WithError(err).Fatal("failed to dial sequencer")
	}

	go poll(client, *interval, log)

	http.HandleFunc("/metrics", handleMetrics)
	log.WithField("addr", *listenAddr).Info("metrics server listening")
	if err := http.ListenAndServe(*listenAddr, nil); err != nil {
		log.WithError(err).Fatal("metrics server stopped")
	}
}

func poll(client *gethrpc.Client, interval time.Duration, log *logger.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var count int64
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := client.CallContext(ctx, &count, "get_pending_transactions")
		cancel()
		if err != nil {
			log.WithError(err).Warn("poll failed")
			continue
		}
		atomic.StoreInt64(&pending, count)
	}
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "sequencer_pending_transactions %d\n", atomic.LoadInt64(&pending))
}
