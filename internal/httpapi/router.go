package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carbonregistry/evidence-registry/internal/admin"
	authpkg "github.com/carbonregistry/evidence-registry/internal/auth"
	"github.com/carbonregistry/evidence-registry/internal/ingestion"
	"github.com/carbonregistry/evidence-registry/internal/objectstore"
	"github.com/carbonregistry/evidence-registry/internal/replica"
	"github.com/carbonregistry/evidence-registry/internal/retrieval"
)

// readySentinelKey is a well-known key the object-store backend is asked to
// Head at /ready. It need not exist — Head returning false,nil still proves
// the backend answered.
const readySentinelKey = "_readiness/sentinel"

// Deps bundles everything the router needs to wire the HTTP surface
// (spec.md §6).
type Deps struct {
	Pool         *pgxpool.Pool
	Ingestion    *ingestion.Controller
	Retrieval    *retrieval.Controller
	Admin        *admin.Controller
	HMACVerifier *authpkg.HMACVerifier
	JWTVerifier  *authpkg.JWTVerifier
	UploadTokens *authpkg.UploadTokenIssuer
	Objects      objectstore.Store
	Replica      replica.Pinner
	PublicRead   bool
}

// NewRouter builds the full chi router: middleware stack, per-endpoint
// auth, and every route in spec.md §6's HTTP surface.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	authMW := authpkg.Middleware(d.HMACVerifier, d.JWTVerifier)

	ingestionH := NewIngestionHandler(d.Ingestion, d.UploadTokens)
	retrievalH := NewRetrievalHandler(d.Retrieval, d.PublicRead)
	adminH := NewAdminHandler(d.Admin)

	r.Get("/health", healthHandler(d.Pool))
	r.Get("/ready", readyHandler(d.Pool, d.Objects, d.Replica))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/upload", func(r chi.Router) {
		r.Use(authMW)
		r.Post("/init", ingestionH.Init)
		r.Post("/complete", ingestionH.Complete)
	})

	r.Route("/v1/artifacts", func(r chi.Router) {
		r.With(requireAuthUnlessPublic(d.PublicRead, authMW)).Get("/{d}", retrievalH.Resolve)
		r.With(authMW).Get("/{d}/meta", retrievalH.Meta)
		r.Get("/{d}/verify", retrievalH.Verify)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(authMW)
		r.Use(authpkg.RequireAdmin)
		r.Post("/retention/sweep", adminH.RetentionSweep)
		r.Post("/ipfs/pin", adminH.Pin)
		r.Post("/ipfs/unpin", adminH.Unpin)
		r.Post("/rescan", adminH.Rescan)
	})

	return r
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readyHandler reports whether the process is ready to serve traffic:
// beyond health's database ping, it confirms the object-store backend
// answers a Head on a well-known sentinel key and, when a secondary
// replica is configured, that its backend is reachable.
func readyHandler(pool *pgxpool.Pool, objects objectstore.Store, pinner replica.Pinner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		if _, err := objects.Head(r.Context(), readySentinelKey); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		if pinner != nil {
			if err := pinner.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
