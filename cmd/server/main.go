package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/admin"
	"github.com/carbonregistry/evidence-registry/internal/auth"
	"github.com/carbonregistry/evidence-registry/internal/catalog"
	"github.com/carbonregistry/evidence-registry/internal/config"
	"github.com/carbonregistry/evidence-registry/internal/db"
	"github.com/carbonregistry/evidence-registry/internal/httpapi"
	"github.com/carbonregistry/evidence-registry/internal/ingestion"
	"github.com/carbonregistry/evidence-registry/internal/objectstore"
	"github.com/carbonregistry/evidence-registry/internal/replica"
	"github.com/carbonregistry/evidence-registry/internal/retrieval"
)

// retryMaxElapsed bounds the object-store retry loop for Put/Head/Presign
// (internal/objectstore.Retrying); Get and Delete are never retried there
// (spec.md §4.1, §7).
const retryMaxElapsed = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.StartupChecks(ctx, pool); err != nil {
		slog.Error("startup checks failed", "error", err)
		os.Exit(1)
	}

	store := catalog.New(pool)

	if expired, err := store.ExpireStaleSessions(ctx, time.Now().UTC()); err != nil {
		slog.Error("startup session-expiry sweep failed", "error", err)
		os.Exit(1)
	} else if expired > 0 {
		slog.Info("expired stale upload sessions at startup", "count", expired)
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	pinner := newPinner(cfg)

	hmacVerifier := auth.NewHMACVerifier(cfg.HMACAppKeys)
	jwtVerifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	uploadTokens := auth.NewUploadTokenIssuer(cfg.UploadTokenSecret())

	ingestionCtl := ingestion.New(store, objects, pinner, uploadTokens, cfg.SessionTTL(), cfg.PresignTTL(), cfg.MaxUploadBytes)
	retrievalCtl := retrieval.New(store, objects, cfg.PresignTTL())
	adminCtl := admin.New(store, objects, pinner)

	router := httpapi.NewRouter(httpapi.Deps{
		Pool:         pool,
		Ingestion:    ingestionCtl,
		Retrieval:    retrievalCtl,
		Admin:        adminCtl,
		HMACVerifier: hmacVerifier,
		JWTVerifier:  jwtVerifier,
		UploadTokens: uploadTokens,
		Objects:      objects,
		Replica:      pinner,
		PublicRead:   cfg.PublicRead,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down server...")

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(cancelCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// newObjectStore builds the configured backend, wrapped in bounded retry
// for Put/Head/Presign in every phase, per spec.md §4.8.1 and §9's
// sum-type driver-selection guidance.
func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverS3:
		s3Store, err := objectstore.NewS3Store(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3ForcePathStyle)
		if err != nil {
			return nil, err
		}
		return objectstore.NewRetrying(s3Store, retryMaxElapsed), nil
	case config.StorageDriverLocal:
		localStore, err := objectstore.NewLocalStore(cfg.LocalStorageRoot, "")
		if err != nil {
			return nil, err
		}
		return objectstore.NewRetrying(localStore, retryMaxElapsed), nil
	default:
		// config.Load already rejected any other value.
		return nil, nil
	}
}

// newPinner builds the configured secondary-replica port, or nil when
// disabled — the ingestion/admin controllers treat a nil Pinner as "not
// configured" (spec.md §4.6).
func newPinner(cfg *config.Config) replica.Pinner {
	switch cfg.ReplicaDriver {
	case config.ReplicaDriverSelfHosted:
		return replica.NewSelfHosted(cfg.IPFSAPIURL, cfg.IPFSGatewayURL, nil)
	case config.ReplicaDriverThirdParty:
		return replica.NewPinningService(cfg.IPFSPinServiceURL, cfg.IPFSPinServiceKey, cfg.IPFSGatewayURL, nil)
	default:
		return nil
	}
}
