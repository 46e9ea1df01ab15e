package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-settlement/api/middleware"
	"github.com/angelmondragon/packfinderz-settlement/internal/settlement"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/types"
)

type stubService struct {
	initiateInput *settlement.InitiateInput
	initiateErr   error
	refundInput   *settlement.RefundInput
	completed     uuid.UUID
	completeErr   error
	txn           *models.Transaction
	getErr        error
}

func (s *stubService) Initiate(_ context.Context, input settlement.InitiateInput) (*settlement.InitiateResult, error) {
	s.initiateInput = &input
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return &settlement.InitiateResult{
		TransactionID: uuid.New(),
		State:         enums.TransactionStatePending,
		AmountToPay:   input.Amount.Sub(input.BonusAmount),
		ExternalRef:   "sim_card_1",
	}, nil
}

func (s *stubService) Get(_ context.Context, userID, transactionID uuid.UUID) (*models.Transaction, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.txn, nil
}

func (s *stubService) Refund(_ context.Context, input settlement.RefundInput) (*models.Transaction, error) {
	s.refundInput = &input
	return s.txn, nil
}

func (s *stubService) CompleteByID(_ context.Context, transactionID uuid.UUID) error {
	s.completed = transactionID
	return s.completeErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
}

func newRouter(svc Service, userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != uuid.Nil {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), userID, enums.ActorRoleUser))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/payments", Initiate(svc, testLogger()))
	r.Get("/payments/{transactionId}", Get(svc, testLogger()))
	r.Post("/payments/{transactionId}/refund", Refund(svc, testLogger()))
	r.Post("/admin/payments/{transactionId}/complete", AdminComplete(svc, testLogger()))
	return r
}

func completedTxn(userID uuid.UUID) *models.Transaction {
	ref := "sq_pay_1"
	return &models.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           enums.TransactionKindStorePurchase,
		State:          enums.TransactionStateCompleted,
		Method:         enums.PaymentMethodCard,
		Amount:         decimal.RequireFromString("100"),
		BonusAmount:    decimal.RequireFromString("30"),
		RefundedAmount: decimal.Zero,
		Currency:       "USD",
		ExternalRef:    &ref,
	}
}

func TestInitiateMapsRequestToStorePurchase(t *testing.T) {
	svc := &stubService{}
	userID := uuid.New()
	itemID := uuid.New()
	body := `{"amount":"100.00","bonus_amount":"30","currency":"usd","method":"card","source_token":"cnon:ok","items":[{"item_id":"` + itemID.String() + `","qty":2}]}`

	rec := httptest.NewRecorder()
	newRouter(svc, userID).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	in := svc.initiateInput
	if in == nil {
		t.Fatal("service not invoked")
	}
	if in.UserID != userID || in.Kind != enums.TransactionKindStorePurchase || in.Method != enums.PaymentMethodCard {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.Currency != enums.CurrencyUSD || !in.BonusAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected money fields %+v", in)
	}
	if len(in.Items) != 1 || in.Items[0].ItemID != itemID || in.Items[0].Qty != 2 {
		t.Fatalf("unexpected items %+v", in.Items)
	}

	var envelope struct {
		Data initiateResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.AmountToPay != "70.00" || envelope.Data.State != string(enums.TransactionStatePending) {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestInitiateRejectsUnknownMethod(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"10","method":"cash"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.initiateInput != nil {
		t.Fatal("service should not be called for invalid input")
	}
}

func TestInitiateRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubService{}, uuid.Nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"10","method":"card"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInitiateSurfacesInsufficientCredit(t *testing.T) {
	svc := &stubService{initiateErr: pkgerrors.New(pkgerrors.CodeInsufficientCredit, "bonus balance too low")}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"10","bonus_amount":"10","method":"card"}`)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInsufficientCredit) || body.Error.Retryable {
		t.Fatalf("unexpected error %+v", body.Error)
	}
}

func TestGetReturnsOwnedTransaction(t *testing.T) {
	userID := uuid.New()
	txn := completedTxn(userID)
	rec := httptest.NewRecorder()
	newRouter(&stubService{txn: txn}, userID).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/"+txn.ID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data transactionResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != txn.ID || envelope.Data.AmountToPay != "70.00" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestGetForbiddenForOtherUser(t *testing.T) {
	svc := &stubService{getErr: pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another user")}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/"+uuid.NewString(), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRefundWithoutBodyRefundsRemainder(t *testing.T) {
	userID := uuid.New()
	txn := completedTxn(userID)
	svc := &stubService{txn: txn}
	rec := httptest.NewRecorder()
	newRouter(svc, userID).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/"+txn.ID.String()+"/refund", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.refundInput == nil || svc.refundInput.Amount != nil || svc.refundInput.TransactionID != txn.ID {
		t.Fatalf("unexpected refund input %+v", svc.refundInput)
	}
}

func TestRefundPartialAmount(t *testing.T) {
	userID := uuid.New()
	txn := completedTxn(userID)
	svc := &stubService{txn: txn}
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"amount":"25.50","reason":"  damaged  "}`)
	newRouter(svc, userID).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/"+txn.ID.String()+"/refund", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	in := svc.refundInput
	if in.Amount == nil || !in.Amount.Equal(decimal.RequireFromString("25.5")) || in.Reason != "damaged" {
		t.Fatalf("unexpected refund input %+v", in)
	}
}

func TestAdminComplete(t *testing.T) {
	svc := &stubService{}
	id := uuid.New()
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/payments/"+id.String()+"/complete", nil))

	if rec.Code != http.StatusOK || svc.completed != id {
		t.Fatalf("expected completion of %s, got status %d id %s", id, rec.Code, svc.completed)
	}
}

func TestAdminCompleteUnknownTransaction(t *testing.T) {
	svc := &stubService{completeErr: pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/payments/"+uuid.NewString()+"/complete", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
