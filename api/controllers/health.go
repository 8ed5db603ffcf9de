package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/meli-sales-relay/api/responses"
	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// ReadinessCheck pings the backing stores.
type ReadinessCheck func(ctx context.Context) error

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relay-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, check ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relay-Env", cfg.App.Env)
		if check != nil {
			if err := check(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store not ready"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
