package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/dkurilov/checkout/internal/gateway"
	"github.com/dkurilov/checkout/internal/middleware"
	"github.com/dkurilov/checkout/internal/models"
	"github.com/dkurilov/checkout/internal/reconciler"
	"github.com/dkurilov/checkout/internal/storage"
	"github.com/go-chi/chi"
)

type fakeCaller struct {
	approveResult gateway.Result
	approveErr    error
	refundResult  gateway.Result
	refundErr     error
}

func (f *fakeCaller) Approve(context.Context, string, string, string) (gateway.Result, error) {
	return f.approveResult, f.approveErr
}

func (f *fakeCaller) Refund(context.Context, string, string, string) (gateway.Result, error) {
	return f.refundResult, f.refundErr
}

type testEnv struct {
	server *httptest.Server
	store  *storage.MemoryStorage
	caller *fakeCaller
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStorage()
	caller := &fakeCaller{}

	engine := reconciler.NewEngine(store, true)
	engine.Register(gateway.Inipay(), caller)
	engine.Register(gateway.Nicepay(), caller)

	handler := NewHandler(store, engine)

	mux := chi.NewMux()
	mux.Route("/api", func(r chi.Router) {
		r.Post("/user/register", http.HandlerFunc(handler.Register))
		r.Post("/user/login", http.HandlerFunc(handler.Login))

		r.Post("/payment/notify", http.HandlerFunc(handler.Notify))
		r.Post("/payment/response", http.HandlerFunc(handler.Response))
		r.Get("/payment/status/{orderNo}", http.HandlerFunc(handler.Status))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)

			r.Post("/payment/orders", http.HandlerFunc(handler.CreateOrder))
			r.Post("/payment/refund", http.HandlerFunc(handler.Refund))
			r.Post("/payment/refund/points/{orderNo}", http.HandlerFunc(handler.RefundPoints))
			r.Get("/payment/history", http.HandlerFunc(handler.History))
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, store: store, caller: caller}
	env.register(t, "customer", "secret")

	return env
}

func (e *testEnv) register(t *testing.T, login, password string) {
	t.Helper()

	res := e.postJSON(t, "/api/user/register", models.AuthorizationRequest{Login: login, Password: password}, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d, want 200", res.StatusCode)
	}

	for _, cookie := range res.Cookies() {
		if cookie.Name == middleware.TokenCookieName {
			e.cookie = cookie
			return
		}
	}

	t.Fatal("register must set the token cookie")
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("cannot encode request body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("cannot create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	res, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	return res
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()

	res, err := e.server.Client().PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	return res
}

func (e *testEnv) createOrder(t *testing.T, totalAmount, pointsUsed int64) models.CreateOrderResponse {
	t.Helper()

	res := e.postJSON(t, "/api/payment/orders", models.CreateOrderRequest{
		TotalAmount: totalAmount,
		PointsUsed:  pointsUsed,
	}, e.cookie)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("create order status = %d, want 200", res.StatusCode)
	}

	var created models.CreateOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("cannot decode create order response: %v", err)
	}

	return created
}

func (e *testEnv) notify(t *testing.T, orderNo, code, tid string, amount int64) string {
	t.Helper()

	res := e.postForm(t, "/api/payment/notify", url.Values{
		"orderNumber": {orderNo},
		"resultCode":  {code},
		"tid":         {tid},
		"price":       {strconv.FormatInt(amount, 10)},
	})
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("cannot read notify body: %v", err)
	}

	return string(body)
}

func TestRegisterDuplicateLogin(t *testing.T) {
	env := newTestEnv(t)

	res := env.postJSON(t, "/api/user/register", models.AuthorizationRequest{Login: "customer", Password: "other"}, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", res.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	res := env.postJSON(t, "/api/user/login", models.AuthorizationRequest{Login: "customer", Password: "wrong"}, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", res.StatusCode)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	res := env.postJSON(t, "/api/payment/orders", models.CreateOrderRequest{TotalAmount: 1000}, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated create order status = %d, want 401", res.StatusCode)
	}
}

func TestCreateOrderAmountInvariant(t *testing.T) {
	env := newTestEnv(t)

	res := env.postJSON(t, "/api/payment/orders", models.CreateOrderRequest{
		TotalAmount: 1000,
		PointsUsed:  0,
		CardAmount:  900,
	}, env.cookie)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 for broken amount invariant", res.StatusCode)
	}
}

func TestNotifyAnswersOKAndFail(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)

	if body := env.notify(t, created.OrderNo, "9999", "TID-F", 10000); body != "FAIL" {
		t.Errorf("failure notify answer = %s, want FAIL", body)
	}

	second := env.createOrder(t, 10000, 0)

	if body := env.notify(t, second.OrderNo, "0000", "TID-S", 10000); body != "OK" {
		t.Errorf("success notify answer = %s, want OK", body)
	}

	if body := env.notify(t, "ORD00000000000000", "0000", "TID-X", 10000); body != "FAIL" {
		t.Errorf("unknown order notify answer = %s, want FAIL", body)
	}

	var logged int
	for _, call := range env.store.GatewayCalls() {
		if call.RequestType == "PAYMENT_NOTIFY" {
			logged++
		}
	}

	if logged != 3 {
		t.Errorf("logged %d PAYMENT_NOTIFY calls, want 3", logged)
	}
}

func TestResponseCallback(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)

	res := env.postForm(t, "/api/payment/response", url.Values{
		"orderNumber": {created.OrderNo},
		"resultCode":  {"0000"},
		"tid":         {"TID-R"},
		"price":       {"10000"},
	})
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("response status = %d, want 200", res.StatusCode)
	}

	var callback models.CallbackResponse
	if err := json.NewDecoder(res.Body).Decode(&callback); err != nil {
		t.Fatalf("cannot decode callback response: %v", err)
	}

	if !callback.Success || callback.OrderNo != created.OrderNo {
		t.Errorf("callback = %+v, want success for %s", callback, created.OrderNo)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)
	env.notify(t, created.OrderNo, "0000", "TID-1", 10000)

	res, err := env.server.Client().Get(env.server.URL + "/api/payment/status/" + created.OrderNo)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var view models.OrderStatusResponse
	if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
		t.Fatalf("cannot decode status response: %v", err)
	}

	if view.Status != entities.OrderStatusCompleted {
		t.Errorf("order status = %s, want COMPLETED", view.Status)
	}

	if len(view.Payments) != 1 || view.Payments[0].TID != "TID-1" {
		t.Errorf("payments = %+v, want one entry with TID-1", view.Payments)
	}

	if !view.Payments[0].Refundable {
		t.Error("settled card entry must be refundable")
	}
}

func TestStatusUnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.server.Client().Get(env.server.URL + "/api/payment/status/ORD00000000000000")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestRefundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)
	env.notify(t, created.OrderNo, "0000", "TID-1", 10000)

	env.caller.refundResult = gateway.Result{Provider: gateway.ProviderInipay, ResultCode: "00"}

	res := env.postJSON(t, "/api/payment/refund", models.RefundRequest{TID: "TID-1", Reason: "customer request"}, env.cookie)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("refund status = %d, want 200", res.StatusCode)
	}

	var refund models.RefundResponse
	if err := json.NewDecoder(res.Body).Decode(&refund); err != nil {
		t.Fatalf("cannot decode refund response: %v", err)
	}

	if !refund.Success || refund.Amount != 10000 {
		t.Errorf("refund = %+v, want success amount 10000", refund)
	}
}

func TestRefundWithoutTarget(t *testing.T) {
	env := newTestEnv(t)

	res := env.postJSON(t, "/api/payment/refund", models.RefundRequest{Reason: "nothing given"}, env.cookie)
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("refund status = %d, want 400", res.StatusCode)
	}
}

func TestPointsRefundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)
	env.notify(t, created.OrderNo, "0000", "TID-1", 10000)

	res := env.postJSON(t, "/api/payment/refund/points/"+created.OrderNo, models.PointsRefundRequest{Reason: "return"}, env.cookie)
	defer res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		t.Errorf("points refund status = %d, want 404 when no points were used", res.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	created := env.createOrder(t, 10000, 0)
	env.notify(t, created.OrderNo, "0000", "TID-1", 10000)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/payment/history", nil)
	if err != nil {
		t.Fatalf("cannot create request: %v", err)
	}
	req.AddCookie(env.cookie)

	res, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("history request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want 200", res.StatusCode)
	}

	var history models.GetHistoryResponse
	if err := json.NewDecoder(res.Body).Decode(&history); err != nil {
		t.Fatalf("cannot decode history response: %v", err)
	}

	if len(history) != 1 || history[0].OrderNo != created.OrderNo {
		t.Errorf("history = %+v, want the created order", history)
	}
}
