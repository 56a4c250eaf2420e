package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dkurilov/checkout/internal/entities"
)

type recordingLogger struct {
	mu   sync.Mutex
	logs []entities.GatewayLog
}

func (r *recordingLogger) SaveGatewayCall(_ context.Context, log entities.GatewayLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingLogger) byType(requestType string) []entities.GatewayLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	var logs []entities.GatewayLog
	for _, log := range r.logs {
		if log.RequestType == requestType {
			logs = append(logs, log)
		}
	}

	return logs
}

func newTestClient(logs CallLogger) *Client {
	return NewClient(Inipay(), Config{
		MerchantID:  "MID01",
		SignKey:     "SKEY",
		APIKey:      "APIKEY",
		CallTimeout: 2 * time.Second,
	}, logs)
}

func TestApprove(t *testing.T) {
	var form url.Values

	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			t.Errorf("cannot parse approve form: %v", err)
		}
		form = req.PostForm

		res.Header().Set("Content-Type", "application/json")
		json.NewEncoder(res).Encode(map[string]string{
			"resultCode": "0000",
			"resultMsg":  "approved",
			"tid":        "INI-TID-9",
		})
	}))
	defer server.Close()

	logs := &recordingLogger{}
	client := newTestClient(logs)

	result, err := client.Approve(context.Background(), server.URL, "auth-token", "ORD1")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if result.ResultCode != "0000" || result.TID.Value != "INI-TID-9" {
		t.Errorf("Approve() = %+v, want code 0000 tid INI-TID-9", result)
	}

	if result.TID.Temporary {
		t.Error("approve tid must be authoritative")
	}

	if form.Get("mid") != "MID01" || form.Get("authToken") != "auth-token" {
		t.Errorf("approve form = %v, want mid and authToken", form)
	}

	if form.Get("signature") == "" || form.Get("verification") == "" {
		t.Error("approve form must carry signature and verification")
	}

	if len(logs.byType("APPROVE_REQUEST")) != 1 || len(logs.byType("APPROVE_RESPONSE")) != 1 {
		t.Errorf("approve must log request and response, got %d logs", len(logs.logs))
	}
}

func TestApproveNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
		res.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(&recordingLogger{})

	result, err := client.Approve(context.Background(), server.URL, "auth-token", "ORD1")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if result.ResultCode != "9999" {
		t.Errorf("result code = %s, want 9999 on http error", result.ResultCode)
	}
}

func TestApproveTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	logs := &recordingLogger{}
	client := newTestClient(logs)

	_, err := client.Approve(context.Background(), server.URL, "auth-token", "ORD1")
	if err == nil {
		t.Fatal("Approve() expected transport error")
	}

	if !errors.Is(err, ErrTransport) {
		t.Errorf("Approve() error = %v, want ErrTransport", err)
	}

	if len(logs.byType("APPROVE_RESPONSE")) == 0 {
		t.Error("transport failures must still be logged")
	}
}

func TestRefund(t *testing.T) {
	var request map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
			t.Errorf("cannot decode refund request: %v", err)
		}

		res.Header().Set("Content-Type", "application/json")
		json.NewEncoder(res).Encode(map[string]string{
			"resultCode": "00",
			"resultMsg":  "refunded",
		})
	}))
	defer server.Close()

	logs := &recordingLogger{}
	client := NewClient(Inipay(), Config{
		MerchantID:  "MID01",
		SignKey:     "SKEY",
		APIKey:      "APIKEY",
		RefundURL:   server.URL,
		CallTimeout: 2 * time.Second,
	}, logs)

	result, err := client.Refund(context.Background(), "INI-TID-9", "customer request", "10.0.0.1")
	if err != nil {
		t.Fatalf("Refund() error = %v", err)
	}

	if result.ResultCode != "00" {
		t.Errorf("result code = %s, want 00", result.ResultCode)
	}

	if request["type"] != "refund" || request["hashData"] == "" {
		t.Errorf("refund request = %v, want type refund with hashData", request)
	}

	if len(logs.byType("REFUND_REQUEST")) != 1 || len(logs.byType("REFUND_RESPONSE")) != 1 {
		t.Error("refund must log request and response")
	}
}

func TestRefundNoResultCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
		res.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(Inipay(), Config{
		MerchantID:  "MID01",
		APIKey:      "APIKEY",
		RefundURL:   server.URL,
		CallTimeout: 2 * time.Second,
	}, &recordingLogger{})

	result, err := client.Refund(context.Background(), "INI-TID-9", "reason", "10.0.0.1")
	if err != nil {
		t.Fatalf("Refund() error = %v", err)
	}

	if result.ResultCode != "9999" {
		t.Errorf("result code = %s, want 9999 when provider answers nothing", result.ResultCode)
	}
}
