package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/meli-sales-relay/api/responses"
	"github.com/angelmondragon/meli-sales-relay/api/validators"
	"github.com/angelmondragon/meli-sales-relay/internal/triage"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// NotificationTriage is the triage surface the webhook controller needs.
type NotificationTriage interface {
	Process(ctx context.Context, notification triage.Notification) error
}

// MercadoLibreNotifications accepts marketplace webhook deliveries. The
// upstream retries on anything but a 2xx, so every decodable payload is
// acknowledged even when triage fails; a 400 is reserved for bodies that
// cannot be decoded at all.
func MercadoLibreNotifications(logg *logger.Logger, service NotificationTriage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var notification triage.Notification
		if err := validators.DecodeJSONBody(r, &notification); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := service.Process(r.Context(), notification); err != nil {
			logg.Error(r.Context(), "notification triage failed", err)
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
