package subscriptions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-settlement/api/middleware"
	"github.com/angelmondragon/packfinderz-settlement/api/responses"
	"github.com/angelmondragon/packfinderz-settlement/api/validators"
	"github.com/angelmondragon/packfinderz-settlement/internal/settlement"
	subsvc "github.com/angelmondragon/packfinderz-settlement/internal/subscriptions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

type Service interface {
	Purchase(ctx context.Context, input subsvc.PurchaseInput) (*settlement.InitiateResult, error)
	Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error)
}

type purchaseRequest struct {
	PlanID      string `json:"plan_id" validate:"required,uuid"`
	Method      string `json:"method" validate:"required,payment_method"`
	BonusAmount string `json:"bonus_amount,omitempty" validate:"omitempty,money"`
	SourceToken string `json:"source_token,omitempty"`
	CardOnFile  string `json:"card_on_file,omitempty"`
	ReturnURL   string `json:"return_url,omitempty" validate:"omitempty,url"`
}

type purchaseResponse struct {
	TransactionID   uuid.UUID  `json:"transaction_id"`
	State           string     `json:"state"`
	AmountToPay     string     `json:"amount_to_pay"`
	ExternalRef     string     `json:"external_ref,omitempty"`
	RedirectURL     string     `json:"redirect_url,omitempty"`
	ProviderPayload string     `json:"provider_payload,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	InvoiceNumber   string     `json:"invoice_number,omitempty"`
}

type subscriptionResponse struct {
	ID          uuid.UUID  `json:"id"`
	PlanID      uuid.UUID  `json:"plan_id"`
	Status      string     `json:"status"`
	AutoRenew   bool       `json:"auto_renew"`
	StartedAt   time.Time  `json:"started_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Purchase starts the payment that activates a plan once it settles.
func Purchase(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}

		var payload purchaseRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bonus, err := validators.ParseAmount("bonus_amount", payload.BonusAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Purchase(r.Context(), subsvc.PurchaseInput{
			UserID:      userID,
			PlanID:      uuid.MustParse(payload.PlanID),
			Method:      enums.PaymentMethod(payload.Method),
			BonusAmount: bonus,
			SourceToken: strings.TrimSpace(payload.SourceToken),
			CardOnFile:  strings.TrimSpace(payload.CardOnFile),
			ReturnURL:   strings.TrimSpace(payload.ReturnURL),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := purchaseResponse{
			TransactionID:   result.TransactionID,
			State:           string(result.State),
			AmountToPay:     result.AmountToPay.StringFixed(2),
			ExternalRef:     result.ExternalRef,
			RedirectURL:     result.RedirectURL,
			ProviderPayload: result.ProviderPayload,
			ExpiresAt:       result.ExpiresAt,
		}
		if result.Invoice != nil {
			resp.InvoiceNumber = result.Invoice.Number
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// Cancel turns off auto-renew; access lasts until the expiry sweep.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}
		subscriptionID, err := validators.PathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Cancel(r.Context(), userID, subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{
			ID:          sub.ID,
			PlanID:      sub.PlanID,
			Status:      string(sub.Status),
			AutoRenew:   sub.AutoRenew,
			StartedAt:   sub.StartedAt,
			ExpiresAt:   sub.ExpiresAt,
			CancelledAt: sub.CancelledAt,
		})
	}
}
