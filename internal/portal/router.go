package portal

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/store"
)

// Dependencies holds everything the portal serves. Nil stores leave their
// routes unregistered.
type Dependencies struct {
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer
	HandlerTimeout time.Duration
	Ready          observability.ReadinessChecks

	Attributes *store.AttributeStore
	Brands     *store.BrandStore
	Offers     *store.OfferStore
	Panel      *store.DeliveryPanel
	Sink       store.Sink
}

// NewRouter creates a chi router with the full middleware chain and all
// routes registered.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware (order matters).
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Ready))
	r.Method(http.MethodGet, "/metrics", observability.Handler(deps.Gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(deps.Metrics.MetricsMiddleware)
		r.Use(RequestLogging(logger))
		r.Use(HandlerTimeout(deps.HandlerTimeout))

		if deps.Attributes != nil {
			r.Route("/attributes", func(r chi.Router) {
				mountCollection(r, deps.Attributes)
			})
		}
		if deps.Brands != nil {
			r.Route("/brands", func(r chi.Router) {
				mountCollection(r, deps.Brands)
			})
		}
		if deps.Offers != nil {
			r.Route("/offers", func(r chi.Router) {
				mountCollection(r, deps.Offers.Collection)
				r.Post("/{id}/toggle", toggleOffer(deps.Offers))
			})
		}
		if deps.Panel != nil {
			r.Route("/delivery", func(r chi.Router) {
				mountPanel(r, deps.Panel, deps.Sink)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errMethodNotAllowed})
	})

	return r
}
