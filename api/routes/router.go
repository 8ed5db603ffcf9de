package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/meli-sales-relay/api/controllers"
	webhookcontrollers "github.com/angelmondragon/meli-sales-relay/api/controllers/webhooks"
	"github.com/angelmondragon/meli-sales-relay/api/middleware"
	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// NewRouter assembles the webhook server's HTTP surface.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	triageService webhookcontrollers.NotificationTriage,
	gatherer prometheus.Gatherer,
	ready controllers.ReadinessCheck,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz/live", controllers.HealthLive(cfg))
	r.Get("/healthz/ready", controllers.HealthReady(cfg, logg, ready))

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/ml-notifications", webhookcontrollers.MercadoLibreNotifications(logg, triageService))

	return r
}
