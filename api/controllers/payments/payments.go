package payments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-settlement/api/middleware"
	"github.com/angelmondragon/packfinderz-settlement/api/responses"
	"github.com/angelmondragon/packfinderz-settlement/api/validators"
	"github.com/angelmondragon/packfinderz-settlement/internal/inventory"
	"github.com/angelmondragon/packfinderz-settlement/internal/settlement"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

// Service is the settlement surface the payment routes need.
type Service interface {
	Initiate(ctx context.Context, input settlement.InitiateInput) (*settlement.InitiateResult, error)
	Get(ctx context.Context, userID, transactionID uuid.UUID) (*models.Transaction, error)
	Refund(ctx context.Context, input settlement.RefundInput) (*models.Transaction, error)
	CompleteByID(ctx context.Context, transactionID uuid.UUID) error
}

const maxRefundReasonLen = 500

type itemRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
	Qty    int    `json:"qty" validate:"required,min=1"`
}

type initiateRequest struct {
	Amount      string            `json:"amount" validate:"required,money"`
	BonusAmount string            `json:"bonus_amount,omitempty" validate:"omitempty,money"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,currency"`
	Method      string            `json:"method" validate:"required,payment_method"`
	Items       []itemRequest     `json:"items,omitempty" validate:"omitempty,dive"`
	SourceToken string            `json:"source_token,omitempty"`
	ReturnURL   string            `json:"return_url,omitempty" validate:"omitempty,url"`
	Correlation map[string]string `json:"correlation,omitempty"`
}

type refundRequest struct {
	Amount string `json:"amount,omitempty" validate:"omitempty,money"`
	Reason string `json:"reason,omitempty"`
}

type invoiceResponse struct {
	Number         string            `json:"number"`
	DueDate        time.Time         `json:"due_date"`
	RoutingDetails map[string]string `json:"routing_details"`
}

type initiateResponse struct {
	TransactionID   uuid.UUID        `json:"transaction_id"`
	State           string           `json:"state"`
	AmountToPay     string           `json:"amount_to_pay"`
	ExternalRef     string           `json:"external_ref,omitempty"`
	RedirectURL     string           `json:"redirect_url,omitempty"`
	ProviderPayload string           `json:"provider_payload,omitempty"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	Invoice         *invoiceResponse `json:"invoice,omitempty"`
}

type transactionResponse struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	State          string     `json:"state"`
	Method         string     `json:"method"`
	Amount         string     `json:"amount"`
	BonusAmount    string     `json:"bonus_amount"`
	AmountToPay    string     `json:"amount_to_pay"`
	RefundedAmount string     `json:"refunded_amount"`
	Currency       string     `json:"currency"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	ExternalRef    *string    `json:"external_ref,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
}

// Initiate starts a store purchase for the authenticated user.
func Initiate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}

		var payload initiateRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newInitiateResponse(result))
	}
}

// Get returns one of the caller's transactions.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Get(r.Context(), userID, transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// Refund reverses all or part of a completed transaction. An empty body refunds the
// remaining amount.
func Refund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input := settlement.RefundInput{
			UserID:        userID,
			TransactionID: transactionID,
			Reason:        validators.SanitizeString(payload.Reason, maxRefundReasonLen),
		}
		if strings.TrimSpace(payload.Amount) != "" {
			amount, err := validators.ParseAmount("amount", payload.Amount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Amount = &amount
		}

		txn, err := svc.Refund(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// AdminComplete lets an operator confirm a pending payment, typically a bank transfer
// reconciled by hand.
func AdminComplete(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.CompleteByID(r.Context(), transactionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transaction_id": transactionID,
			"completed":      true,
		})
	}
}

func (p initiateRequest) toInput(userID uuid.UUID) (settlement.InitiateInput, error) {
	amount, err := validators.ParseAmount("amount", p.Amount)
	if err != nil {
		return settlement.InitiateInput{}, err
	}
	bonus, err := validators.ParseAmount("bonus_amount", p.BonusAmount)
	if err != nil {
		return settlement.InitiateInput{}, err
	}

	items := make([]inventory.ReservationRequest, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, inventory.ReservationRequest{
			ItemID: uuid.MustParse(item.ItemID),
			Qty:    item.Qty,
		})
	}

	return settlement.InitiateInput{
		UserID:      userID,
		Kind:        enums.TransactionKindStorePurchase,
		Amount:      amount,
		BonusAmount: bonus,
		Currency:    enums.Currency(strings.ToUpper(strings.TrimSpace(p.Currency))),
		Method:      enums.PaymentMethod(p.Method),
		Correlation: p.Correlation,
		Items:       items,
		SourceToken: strings.TrimSpace(p.SourceToken),
		ReturnURL:   strings.TrimSpace(p.ReturnURL),
	}, nil
}

func newInitiateResponse(result *settlement.InitiateResult) initiateResponse {
	resp := initiateResponse{
		TransactionID:   result.TransactionID,
		State:           string(result.State),
		AmountToPay:     result.AmountToPay.StringFixed(2),
		ExternalRef:     result.ExternalRef,
		RedirectURL:     result.RedirectURL,
		ProviderPayload: result.ProviderPayload,
		ExpiresAt:       result.ExpiresAt,
	}
	if result.Invoice != nil {
		resp.Invoice = &invoiceResponse{
			Number:         result.Invoice.Number,
			DueDate:        result.Invoice.DueDate,
			RoutingDetails: result.Invoice.RoutingDetails,
		}
	}
	return resp
}

func newTransactionResponse(txn *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:             txn.ID,
		Kind:           string(txn.Kind),
		State:          string(txn.State),
		Method:         string(txn.Method),
		Amount:         txn.Amount.StringFixed(2),
		BonusAmount:    txn.BonusAmount.StringFixed(2),
		AmountToPay:    txn.AmountToPay().StringFixed(2),
		RefundedAmount: txn.RefundedAmount.StringFixed(2),
		Currency:       txn.Currency,
		SubscriptionID: txn.SubscriptionID,
		ExternalRef:    txn.ExternalRef,
		CreatedAt:      txn.CreatedAt,
		CompletedAt:    txn.CompletedAt,
		RefundedAt:     txn.RefundedAt,
	}
}
