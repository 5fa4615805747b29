package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/api"
	"github.com/affandar/toygres/pkg/catalog"
	"github.com/affandar/toygres/pkg/client"
	"github.com/affandar/toygres/pkg/config"
	"github.com/affandar/toygres/pkg/engine"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/log"
	"github.com/affandar/toygres/pkg/worker"
	"github.com/affandar/toygres/pkg/workflows"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the toygres control plane: Event-History Store, Activity Worker, and HTTP Client Surface",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.WithComponent("serve")

	store, err := history.OpenRaftStore(history.RaftConfig{
		NodeID:   cfg.RaftNodeID,
		BindAddr: cfg.RaftBindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("open event-history store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForLeader(10 * time.Second); err != nil {
		return fmt.Errorf("wait for raft leader: %w", err)
	}
	logger.Info().Str("node_id", cfg.RaftNodeID).Msg("event-history store ready")

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to catalog metadata store: %w", err)
	}
	defer dbPool.Close()
	catalogStore := catalog.NewStore(dbPool)

	k8sClient, err := newK8sClient(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}

	activityRegistry := activities.NewDefaultRegistry(k8sClient, catalogStore, store)
	workflowRegistry := workflows.NewDefaultRegistry()

	workerPool := worker.NewPool(store, activityRegistry, worker.Config{
		OwnerID:      cfg.RaftNodeID,
		Size:         cfg.WorkerPoolSize,
		LeaseTimeout: cfg.ActivityLease,
	})
	workerPool.Start()
	logger.Info().Int("size", cfg.WorkerPoolSize).Msg("activity worker pool started")

	runtime := engine.NewRuntime(store, workflowRegistry)
	dispatcher := engine.NewDispatcher(store, runtime, cfg.RaftNodeID)
	dispatcher.Start()
	logger.Info().Msg("orchestration dispatcher started")

	manifestOverrides, err := config.LoadManifestOverrides(cfg.ManifestOverridesPath)
	if err != nil {
		return fmt.Errorf("load manifest overrides: %w", err)
	}

	toygresClient := client.New(store).WithCatalog(catalogStore)
	apiServer := api.NewServer(toygresClient, store, log.WithComponent("api")).WithManifestOverrides(manifestOverrides)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: apiServer,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr()).Msg("http client surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("serving error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	dispatcher.Stop()
	workerPool.Stop()
	logger.Info().Msg("shutdown complete")
	return nil
}

// newK8sClient builds the controller-runtime client the Activity Catalog
// uses for every Deploy/Delete/WaitForReady/GetConnectionStrings call. An
// empty kubeconfigPath defers to in-cluster config, matching how a Pod
// expects to reach its own API server.
func newK8sClient(kubeconfigPath string) (ctrlclient.Client, error) {
	var restCfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restCfg, err = ctrl.GetConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}

	return ctrlclient.New(restCfg, ctrlclient.Options{Scheme: scheme.Scheme})
}
