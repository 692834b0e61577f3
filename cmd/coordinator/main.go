// Package main implements the quorra central node, which keeps the cluster
// membership and evicts nodes that stop answering.
//
// The central node does not hold records and takes no part in elections or
// commits. Its RPC surface is:
//
//	GET  /register/   list the membership as {name: address}
//	PUT  /register/   upsert {"name", "address"}
//	GET  /info/       membership with the last health check of every node
//	GET  /ping/       identity of the central node
//	GET  /kill/       terminate the process
//	GET  /metrics     Prometheus text
//
// Every other verb answers with a capability error.
//
// Example usage:
//
//	quorra-central --port 8000
//	QUORRA_MEMBERSHIP_STORE=redis QUORRA_REDIS_ADDR=127.0.0.1:6379 quorra-central
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
	"github.com/dreamware/quorra/internal/coordinator"
	"github.com/dreamware/quorra/internal/health"
	"github.com/dreamware/quorra/internal/logging"
	"github.com/dreamware/quorra/internal/storage"
	"github.com/dreamware/quorra/internal/storage/redisstore"
)

var Logger = logger.GetLogger("node")

// exit is a variable to allow replacing os.Exit in tests.
var exit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "quorra-central",
	Short: "Run the quorra central node",
	Long: `Run the central node of a quorra cluster. It keeps the membership registry and evicts nodes that fail a health check.
Every flag can be set with an environment variable QUORRA_<FLAG> (e.g. QUORRA_CHECK_INTERVAL=2), or in a .env file.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	config.BindFlags(rootCmd, true)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd, true)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	Logger.Infof("starting central node\n%s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openMembership(ctx, cfg)
	if err != nil {
		return err
	}
	registry := coordinator.NewRegistry(store)
	defer registry.Close()

	monitor := health.NewMonitor(cfg.CheckInterval(), cluster.NewClient(cfg.Timeout()))
	srv := newServer(cluster.Node{Name: cfg.Name, Address: cfg.Address}, registry, monitor, terminate)
	monitor.SetOnUnhealthy(srv.evict)
	monitor.Start(ctx, srv.nodes)
	defer monitor.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("central %s listening on %s", cfg.Name, cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		Logger.Errorf("server shutdown error: %v", err)
	}
	Logger.Infof("central stopped")
	return nil
}

// openMembership opens the configured membership store.
func openMembership(ctx context.Context, cfg *config.Config) (storage.MembershipStore, error) {
	switch cfg.MembershipStore {
	case config.StoreRedis:
		return redisstore.New(ctx, redisstore.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
			Key:  cfg.RedisKey,
		})
	default:
		return storage.NewMemoryMembership(), nil
	}
}

// terminate ends the process after the /kill/ answer had time to go out.
func terminate() {
	Logger.Warningf("terminating")
	time.Sleep(100 * time.Millisecond)
	exit(1)
}
