package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/api/middleware"
	"github.com/angelmondragon/creatorpage-backend/internal/dispatch"
	internalintents "github.com/angelmondragon/creatorpage-backend/internal/intents"
	internalorders "github.com/angelmondragon/creatorpage-backend/internal/orders"
	pkgauth "github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
)

type fakeSupervisor struct {
	opened    *internalorders.OpenInput
	started   []uuid.UUID
	cancelled []uuid.UUID
	retried   []uuid.UUID
}

func (f *fakeSupervisor) Open(_ context.Context, input internalorders.OpenInput) (*models.PaymentOrder, error) {
	f.opened = &input
	return &models.PaymentOrder{
		ID:          uuid.New(),
		Status:      enums.OrderStatusPendingConfirmation,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		PayerActor:  input.PayerActor,
	}, nil
}

func (f *fakeSupervisor) Retry(_ context.Context, orderID uuid.UUID, _ string) (*models.PaymentOrder, error) {
	f.retried = append(f.retried, orderID)
	return &models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusPendingConfirmation, Currency: "INR"}, nil
}

func (f *fakeSupervisor) Start(_ context.Context, orderID uuid.UUID) bool {
	f.started = append(f.started, orderID)
	return true
}

func (f *fakeSupervisor) Cancel(orderID uuid.UUID) bool {
	f.cancelled = append(f.cancelled, orderID)
	return true
}

type fakeReader map[uuid.UUID]*models.PaymentOrder

func (f fakeReader) Get(_ context.Context, id uuid.UUID) (*models.PaymentOrder, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment order not found")
}

type fakeDispatcher struct {
	result *dispatch.Result
	input  dispatch.Input
}

func (f *fakeDispatcher) Dispatch(_ context.Context, input dispatch.Input) (*dispatch.Result, error) {
	f.input = input
	return f.result, nil
}

func newRouter(sup *fakeSupervisor, reader fakeReader, disp *fakeDispatcher) http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", Create(sup, disp, "INR", nil))
	r.Get("/orders/{orderId}", Status(reader, sup, nil))
	r.Post("/orders/{orderId}/cancel", Cancel(reader, sup, nil))
	r.Post("/orders/{orderId}/retry", Retry(reader, sup, nil))
	return r
}

func serve(h http.Handler, method, path, body string, actor *uuid.UUID) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), actor.String()))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateOpensOrderFromAmount(t *testing.T) {
	sup := &fakeSupervisor{}
	h := newRouter(sup, fakeReader{}, &fakeDispatcher{})

	rec := serve(h, http.MethodPost, "/orders", `{"amount":"499.50","payee":"creator@upi"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if sup.opened == nil {
		t.Fatalf("expected supervisor to open an order")
	}
	if sup.opened.AmountMinor != 49950 || sup.opened.Currency != "INR" {
		t.Fatalf("unexpected terms %+v", sup.opened)
	}
	if sup.opened.PayerActor != pkgauth.Anonymous().String() {
		t.Fatalf("expected anonymous payer, got %s", sup.opened.PayerActor)
	}

	var env struct {
		Data orderResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Amount != "499.50" || env.Data.Message != msgAwaiting {
		t.Fatalf("unexpected response %+v", env.Data)
	}
}

func TestCreateRejectsBadAmounts(t *testing.T) {
	cases := []string{
		`{"amount":"0","payee":"creator"}`,
		`{"amount":"-5","payee":"creator"}`,
		`{"amount":"1.005","payee":"creator"}`,
		`{"amount":"ten","payee":"creator"}`,
		`{"payee":"creator"}`,
	}
	for _, body := range cases {
		sup := &fakeSupervisor{}
		rec := serve(newRouter(sup, fakeReader{}, &fakeDispatcher{}), http.MethodPost, "/orders", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if sup.opened != nil {
			t.Fatalf("%s: order should not be opened", body)
		}
	}
}

func TestCreateFromIntentUsesDispatcher(t *testing.T) {
	intentID := uuid.New()
	order := &models.PaymentOrder{ID: uuid.New(), IntentID: &intentID, Status: enums.OrderStatusPendingConfirmation, AmountMinor: 10000, Currency: "INR"}
	disp := &fakeDispatcher{result: &dispatch.Result{
		Outcome: internalintents.OutcomeDispatch,
		Effect:  &dispatch.Effect{Kind: enums.CTAKindBuy, Order: order},
	}}
	sup := &fakeSupervisor{}

	rec := serve(newRouter(sup, fakeReader{}, disp), http.MethodPost, "/orders", `{"intent_id":"`+intentID.String()+`","source_token":"cnon:card-ok"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if disp.input.IntentID != intentID || disp.input.SourceToken != "cnon:card-ok" {
		t.Fatalf("unexpected dispatch input %+v", disp.input)
	}
	if sup.opened != nil {
		t.Fatalf("intent orders must be opened by the dispatcher")
	}
}

func TestCreateFromIntentMapsOutcomes(t *testing.T) {
	cases := []struct {
		result *dispatch.Result
		status int
	}{
		{&dispatch.Result{Outcome: internalintents.OutcomeNotFound}, http.StatusNotFound},
		{&dispatch.Result{Outcome: internalintents.OutcomeExpired}, http.StatusUnprocessableEntity},
		{&dispatch.Result{Outcome: internalintents.OutcomeAlreadyConsumed}, http.StatusConflict},
		{&dispatch.Result{Outcome: internalintents.OutcomeDispatch, Effect: &dispatch.Effect{Kind: enums.CTAKindEnquiry}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		disp := &fakeDispatcher{result: tc.result}
		rec := serve(newRouter(&fakeSupervisor{}, fakeReader{}, disp), http.MethodPost, "/orders", `{"intent_id":"`+uuid.NewString()+`"}`, nil)
		if rec.Code != tc.status {
			t.Fatalf("outcome %s: expected %d, got %d", tc.result.Outcome, tc.status, rec.Code)
		}
	}
}

func TestStatusRestartsSupervisionForPendingOrders(t *testing.T) {
	pending := &models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusPendingConfirmation, Currency: "INR"}
	expired := &models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusExpired, Currency: "INR"}
	sup := &fakeSupervisor{}
	h := newRouter(sup, fakeReader{pending.ID: pending, expired.ID: expired}, &fakeDispatcher{})

	if rec := serve(h, http.MethodGet, "/orders/"+pending.ID.String(), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := serve(h, http.MethodGet, "/orders/"+expired.ID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), msgTimedOut) {
		t.Fatalf("expected timeout message, got %s", rec.Body.String())
	}
	if len(sup.started) != 1 || sup.started[0] != pending.ID {
		t.Fatalf("expected only the pending order to be supervised, got %v", sup.started)
	}

	if rec := serve(h, http.MethodGet, "/orders/not-a-uuid", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestCancelIsReservedToThePayer(t *testing.T) {
	owner := uuid.New()
	order := &models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusPendingConfirmation, PayerActor: pkgauth.UserActor(owner).String()}
	sup := &fakeSupervisor{}
	h := newRouter(sup, fakeReader{order.ID: order}, &fakeDispatcher{})

	stranger := uuid.New()
	if rec := serve(h, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", &stranger); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous caller, got %d", rec.Code)
	}
	rec := serve(h, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", &owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(sup.cancelled) != 1 {
		t.Fatalf("expected one cancellation, got %d", len(sup.cancelled))
	}
}

func TestRetryOpensReplacement(t *testing.T) {
	order := &models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusExpired, PayerActor: pkgauth.Anonymous().String()}
	sup := &fakeSupervisor{}
	h := newRouter(sup, fakeReader{order.ID: order}, &fakeDispatcher{})

	rec := serve(h, http.MethodPost, "/orders/"+order.ID.String()+"/retry", `{"source_token":"cnon:card-ok"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sup.retried) != 1 || sup.retried[0] != order.ID {
		t.Fatalf("expected retry of %s, got %v", order.ID, sup.retried)
	}
}

func TestStatusMessage(t *testing.T) {
	cases := map[enums.OrderStatus]string{
		enums.OrderStatusCreated:             msgAwaiting,
		enums.OrderStatusPendingConfirmation: msgAwaiting,
		enums.OrderStatusPaid:                msgConfirmed,
		enums.OrderStatusFailed:              msgFailed,
		enums.OrderStatusExpired:             msgTimedOut,
	}
	for status, want := range cases {
		if got := StatusMessage(status); got != want {
			t.Fatalf("%s: expected %q, got %q", status, want, got)
		}
	}
}
