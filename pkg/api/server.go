package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/favorites"
	"github.com/platinummonkey/tollgate/pkg/gateway"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/middleware"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/tools"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds HTTP-facing settings
type Config struct {
	StoreTimeout   time.Duration
	MinTopUpCents  int64
	MaxTopUpCents  int64
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// Options wires a Server. Sessions nil disables the account routes and
// Payments nil disables the billing routes.
type Options struct {
	Registry  *tools.Registry
	Prices    *billing.PriceTable
	Gate      *gateway.Gate
	Resolver  *auth.Resolver
	Keys      auth.KeyStore
	Profiles  billing.ProfileStore
	Caps      *billing.CapGuard
	Favorites favorites.Store
	Payments  billing.PaymentProvider
	Sessions  middleware.Verifier
	Config    Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Server represents our API server
type Server struct {
	router    *mux.Router
	registry  *tools.Registry
	prices    *billing.PriceTable
	resolver  *auth.Resolver
	keys      auth.KeyStore
	profiles  billing.ProfileStore
	caps      *billing.CapGuard
	favorites favorites.Store
	payments  billing.PaymentProvider
	cfg       Config
	logger    *observability.Logger
	metrics   *observability.Metrics

	toolHandlers map[string]http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Config.StoreTimeout <= 0 {
		opts.Config.StoreTimeout = 2 * time.Second
	}
	if opts.Config.MaxBodyBytes <= 0 {
		opts.Config.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		router:       mux.NewRouter(),
		registry:     opts.Registry,
		prices:       opts.Prices,
		resolver:     opts.Resolver,
		keys:         opts.Keys,
		profiles:     opts.Profiles,
		caps:         opts.Caps,
		favorites:    opts.Favorites,
		payments:     opts.Payments,
		cfg:          opts.Config,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		toolHandlers: make(map[string]http.Handler),
	}

	for _, tool := range s.registry.List() {
		s.toolHandlers[tool.ID] = opts.Gate.Handler(tool)
	}

	s.setupRoutes(opts.Sessions)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(sessions middleware.Verifier) {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, apierr.NotFound("Route not found"))
	})

	s.router.HandleFunc("/api/tools", s.listTools).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tools/{toolID}", s.callTool).Methods(http.MethodPost)

	if sessions != nil {
		requireSession := middleware.NewSessionMiddleware(sessions).Handler

		account := s.router.PathPrefix("/api/account").Subrouter()
		account.Use(requireSession)
		s.registerAccountRoutes(account)

		if s.payments != nil {
			s.router.Handle("/api/billing/checkout", requireSession(http.HandlerFunc(s.createCheckout))).
				Methods(http.MethodPost)
		}
	}

	if s.payments != nil {
		s.router.HandleFunc("/api/billing/webhook", s.handleWebhook).Methods(http.MethodPost)
	}
}

// Handler returns the router wrapped in the request middleware chain
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(s.cfg.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.cfg.MaxBodyBytes),
	)
	return otelhttp.NewHandler(chain(s.router), "tollgate-api")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// storeContext bounds a single store call made by a handler
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
}
