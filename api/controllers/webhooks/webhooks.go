package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-settlement/api/responses"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

// maxBodyBytes caps webhook payloads; provider notifications are a few KB.
const maxBodyBytes = 1 << 20

type Handler interface {
	SignatureHeader(method enums.PaymentMethod) string
	Handle(ctx context.Context, method enums.PaymentMethod, rawBody []byte, signature string) bool
}

// Provider receives notifications for the method named in the {method} path segment.
// Every delivery is answered with 200 so providers stop retrying; the acknowledged flag
// reports whether it was trusted and processed.
func Provider(svc Handler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		segment := chi.URLParam(r, "method")
		method, ok := enums.PaymentMethodForWebhook(segment)
		if !ok {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "webhook_path", segment), "webhook for unknown payment method")
			}
			responses.WriteWebhookAck(w, false)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithField(ctx, "method", string(method)), "read webhook body", err)
			}
			responses.WriteWebhookAck(w, false)
			return
		}

		signature := r.Header.Get(svc.SignatureHeader(method))
		responses.WriteWebhookAck(w, svc.Handle(ctx, method, body, signature))
	}
}
