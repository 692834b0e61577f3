// Package main implements the quorra peer node, which holds a full replica of
// the cluster's records and takes part in leader election and commits.
//
// Startup order:
//  1. register with the central node (with retries)
//  2. start the supervisor, which elects a leader and keeps watching it
//  3. bootstrap: copy the leader's records that are missing locally
//  4. serve the RPC surface
//
// RPC surface:
//
//	GET  /data/       committed records
//	PUT  /data/       write a record (forwarded to the leader)
//	PUT  /proposal/   leader only: run a commit
//	PUT  /prepare/    stage a record
//	PUT  /submit/     promote staged records
//	PUT  /rollback/   discard a staged record
//	GET  /leader/     {"leader": name}
//	GET  /ping/       identity of the node
//	GET  /kill/       terminate the process
//	GET  /info/       replica statistics and leader belief
//	GET  /metrics     Prometheus text
//
// Example usage:
//
//	quorra-node --name n1 --port 9001 --central-address 127.0.0.1:8000
//	QUORRA_NAME=n2 QUORRA_PORT=9002 quorra-node
//
//	# write a record through any node
//	curl -X PUT localhost:9002/data/ -d '{"data_id":"a","raw":"...","signature":"..."}'
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/config"
	"github.com/dreamware/quorra/internal/logging"
	"github.com/dreamware/quorra/internal/peer"
	"github.com/dreamware/quorra/internal/replica"
	"github.com/dreamware/quorra/internal/storage"
	"github.com/dreamware/quorra/internal/storage/pgstore"
)

var Logger = logger.GetLogger("node")

// exit is a variable to allow replacing os.Exit in tests.
var exit = os.Exit

// logFatal is a variable to allow mocking fatal errors in tests.
var logFatal = func(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
	exit(1)
}

// Registration retries, as attempts x delay.
const (
	registerAttempts = 10
	registerDelay    = 400 * time.Millisecond
)

var rootCmd = &cobra.Command{
	Use:   "quorra-node",
	Short: "Run a quorra peer node",
	Long: `Run a peer node of a quorra cluster. The node registers with the central node, joins the elected leader and replicates every committed record.
Every flag can be set with an environment variable QUORRA_<FLAG> (e.g. QUORRA_CENTRAL_ADDRESS=10.0.0.1:8000), or in a .env file.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	config.BindFlags(rootCmd, false)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd, false)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	Logger.Infof("starting peer node\n%s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openRecords(ctx, cfg)
	if err != nil {
		return err
	}
	rep := replica.New(store)
	defer rep.Close()

	self := cluster.Node{Name: cfg.Name, Address: cfg.Address}
	p := peer.New(self, cfg.CentralAddress, cluster.NewClient(cfg.Timeout()), rep, cfg.CheckInterval())
	if err := p.Start(ctx, registerAttempts, registerDelay); err != nil {
		return err
	}
	defer p.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           newServer(p, terminate).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Infof("node %s listening on %s (leader %s)", cfg.Name, cfg.ListenAddr(), p.View.Leader())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logFatal("listen: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		Logger.Errorf("server shutdown error: %v", err)
	}
	Logger.Infof("node stopped")
	return nil
}

// openRecords opens the configured record store.
func openRecords(ctx context.Context, cfg *config.Config) (storage.RecordStore, error) {
	switch cfg.RecordStore {
	case config.StorePostgres:
		s, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

// terminate ends the process after the /kill/ answer had time to go out.
func terminate() {
	Logger.Warningf("terminating")
	time.Sleep(100 * time.Millisecond)
	exit(1)
}
