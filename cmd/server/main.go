// Package main provides the local sync server for the resistance-test
// data-entry app. Clients talk REST/WebSocket on localhost; the server owns
// the durable local store and syncs it against the remote document store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/cmd/server/handlers"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/blob"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/remote"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/store"
	syncengine "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync/queue"
	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync/scheduler"
)

var (
	flagDataDir        string
	flagRemoteEndpoint string
	flagRemoteAPIKey   string
	flagCollection     string
	flagCapacity       int
	flagLogLevel       string
	flagAddr           string
	flagS3Endpoint     string
	flagS3Bucket       string
	flagS3AccessKey    string
	flagS3SecretKey    string
	flagS3Region       string
)

func main() {
	root := &cobra.Command{
		Use:          "resistencias",
		Short:        "Local-first sync server for resistance test records",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(os.Stderr, flagLogLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", envOr("RESISTENCIAS_DATA_DIR", "./data"), "directory for the local database")
	pf.StringVar(&flagRemoteEndpoint, "remote-endpoint", envOr("RESISTENCIAS_REMOTE_ENDPOINT", ""), "base URL of the remote document store")
	pf.StringVar(&flagRemoteAPIKey, "remote-api-key", envOr("RESISTENCIAS_REMOTE_API_KEY", ""), "bearer token for the remote document store")
	pf.StringVar(&flagCollection, "collection", envOr("RESISTENCIAS_COLLECTION", syncengine.DefaultCollection), "remote collection name")
	pf.IntVar(&flagCapacity, "capacity", envIntOr("RESISTENCIAS_CAPACITY", syncengine.DefaultCapacity), "local cache capacity in records")
	pf.StringVar(&flagLogLevel, "log-level", envOr("RESISTENCIAS_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	pf.StringVar(&flagS3Endpoint, "s3-endpoint", envOr("RESISTENCIAS_S3_ENDPOINT", ""), "photo archive S3 endpoint")
	pf.StringVar(&flagS3Bucket, "s3-bucket", envOr("RESISTENCIAS_S3_BUCKET", ""), "photo archive bucket")
	pf.StringVar(&flagS3AccessKey, "s3-access-key", envOr("RESISTENCIAS_S3_ACCESS_KEY", ""), "photo archive access key")
	pf.StringVar(&flagS3SecretKey, "s3-secret-key", envOr("RESISTENCIAS_S3_SECRET_KEY", ""), "photo archive secret key")
	pf.StringVar(&flagS3Region, "s3-region", envOr("RESISTENCIAS_S3_REGION", "us-east-1"), "photo archive region")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST/WebSocket server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", envOr("RESISTENCIAS_ADDR", "localhost:8090"), "listen address")

	root.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "sync",
			Short: "Run one reconciliation pass and exit",
			RunE:  runSync,
		},
		&cobra.Command{
			Use:   "retry",
			Short: "Retry pending writes and drain the operation queue, then exit",
			RunE:  runRetry,
		},
		&cobra.Command{
			Use:   "pending",
			Short: "Print pending records and queued operations",
			RunE:  runPending,
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine wires store, remote client, queue and optional photo archive
// into an engine.
func buildEngine() (*syncengine.Engine, *store.Store, *store.DB, error) {
	db, err := store.Open(flagDataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	st := store.New(db)

	rc := remote.NewRESTClient(&remote.Config{
		Endpoint: flagRemoteEndpoint,
		APIKey:   flagRemoteAPIKey,
	})

	var photos blob.Store
	if flagS3Endpoint != "" && flagS3Bucket != "" {
		photos = blob.NewS3Client(&blob.S3Config{
			Endpoint:   flagS3Endpoint,
			BucketName: flagS3Bucket,
			AccessKey:  flagS3AccessKey,
			SecretKey:  flagS3SecretKey,
			Region:     flagS3Region,
		})
	}

	q := queue.New(st)
	engine := syncengine.NewEngine(st, rc, q, photos, syncengine.Config{
		Collection: flagCollection,
		Capacity:   flagCapacity,
	})
	return engine, st, db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, _, db, err := buildEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	hub := NewWSHub(flagAddr)

	prober := scheduler.ProbeFunc(func(ctx context.Context) bool {
		rc := remote.NewRESTClient(&remote.Config{
			Endpoint: flagRemoteEndpoint,
			APIKey:   flagRemoteAPIKey,
			Timeout:  3 * time.Second,
		})
		_, err := rc.Query(ctx, flagCollection, remote.Query{Limit: 1})
		return err == nil
	})

	sched := scheduler.New(engine, prober, hub, scheduler.Config{})
	sched.Start()
	defer sched.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	rh := handlers.NewRecordsHandler(engine)
	sh := handlers.NewSyncHandler(engine, sched)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", rh.List)
			r.Get("/{id}", rh.Get)
			r.Put("/{id}", rh.Save)
			r.Delete("/{id}", rh.Delete)
			r.Post("/{id}/photos", rh.UploadPhoto)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", sh.Status)
			r.Get("/pending", sh.Pending)
			r.Post("/retry", sh.Retry)
			r.Post("/reconcile", sh.Reconcile)
		})
	})
	r.Get("/ws", HandleWebSocket(hub))

	srv := &http.Server{Addr: flagAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", logging.Fields{"addr": flagAddr})
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("shutting down", logging.Fields{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	engine, _, db, err := buildEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := engine.Reconcile(ctx); err != nil {
		return err
	}

	status := engine.Status()
	fmt.Printf("reconciled: %d local records, %d pending, %d queued ops\n",
		status.LocalRecords, status.PendingRecords, status.QueuedOps)
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	engine, _, db, err := buildEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := engine.ResumeSync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("synced %d records; ops: %d succeeded, %d retained, %d discarded\n",
		result.RecordsSynced, result.Drain.Succeeded, result.Drain.Retained, result.Drain.Discarded)
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	engine, st, db, err := buildEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	markers, err := st.ListPendingMarkers()
	if err != nil {
		return err
	}
	fmt.Printf("pending records: %d\n", len(markers))
	for _, m := range markers {
		fmt.Printf("  %s (marked %s)\n", m.RecordID,
			time.UnixMilli(m.MarkedAt).Format(time.RFC3339))
	}

	ops, err := st.ListOps()
	if err != nil {
		return err
	}
	fmt.Printf("queued operations: %d\n", len(ops))
	for _, op := range ops {
		fmt.Printf("  %s kind=%s retries=%d\n", op.ID, op.Kind, op.RetryCount)
	}

	status := engine.Status()
	fmt.Printf("local records: %d / capacity %d\n", status.LocalRecords, status.Capacity)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
