package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lectern-edu/lectern-payments/api/controllers"
	paymentcontrollers "github.com/lectern-edu/lectern-payments/api/controllers/payments"
	webhookcontrollers "github.com/lectern-edu/lectern-payments/api/controllers/webhooks"
	"github.com/lectern-edu/lectern-payments/api/middleware"
	"github.com/lectern-edu/lectern-payments/internal/payments"
	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	pkgredis "github.com/lectern-edu/lectern-payments/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore pkgredis.IdempotencyStore
	Payments         payments.Service
	Webhooks         webhookcontrollers.EventHandler
	MetricsGatherer  prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Gateway deliveries authenticate by signature, not bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(deps.Webhooks, webhookcontrollers.Options{
			MaxBodyBytes:  cfg.Webhooks.MaxBodyBytes,
			EventIDHeader: cfg.Webhooks.EventIDHeader,
		}, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(middleware.Idempotency(deps.IdempotencyStore, middleware.IdempotencyOptions{TTL: cfg.App.IdempotencyTTL}, logg)).Post("/", paymentcontrollers.Create(deps.Payments, logg))
		r.Get("/", paymentcontrollers.List(deps.Payments, logg))
		r.Route("/{paymentId}", func(r chi.Router) {
			r.Get("/", paymentcontrollers.Get(deps.Payments, logg))
			r.Get("/success", paymentcontrollers.Success(deps.Payments, logg))
			r.Post("/sync", paymentcontrollers.Sync(deps.Payments, logg))
		})
	})

	return r
}
