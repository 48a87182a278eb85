//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/repository"
	"payment-flows/internal/usecase"
)

// --- Mock FlowUseCase ---

type mockFlowUC struct {
	InitiateFunc        func(ctx context.Context, gatewayID string, data model.TxData, correlationHint, name string) (string, error)
	PaymentURLFunc      func(ctx context.Context, recordName string) (string, bool, error)
	ProceedFunc         func(ctx context.Context, recordName string, patch *model.TxData) (*model.Proceeded, error)
	ProcessResponseFunc func(ctx context.Context, recordName string, payload map[string]interface{}) (*model.Processed, error)

	LastPayload map[string]interface{}
}

var _ usecase.FlowUseCase = (*mockFlowUC)(nil)

func (m *mockFlowUC) Initiate(ctx context.Context, gatewayID string, data model.TxData, correlationHint, name string) (string, error) {
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, gatewayID, data, correlationHint, name)
	}
	return "rec-1", nil
}

func (m *mockFlowUC) PaymentURL(ctx context.Context, recordName string) (string, bool, error) {
	if m.PaymentURLFunc != nil {
		return m.PaymentURLFunc(ctx, recordName)
	}
	return "https://pay.example.test/pay?ref=" + recordName, true, nil
}

func (m *mockFlowUC) Proceed(ctx context.Context, recordName string, patch *model.TxData) (*model.Proceeded, error) {
	if m.ProceedFunc != nil {
		return m.ProceedFunc(ctx, recordName, patch)
	}
	return &model.Proceeded{GatewayID: "mockpay", FlowType: model.FlowTypeCharge}, nil
}

func (m *mockFlowUC) ProcessResponse(ctx context.Context, recordName string, payload map[string]interface{}) (*model.Processed, error) {
	m.LastPayload = payload
	if m.ProcessResponseFunc != nil {
		return m.ProcessResponseFunc(ctx, recordName, payload)
	}
	return &model.Processed{GatewayID: "mockpay", Message: "ok"}, nil
}

// --- Mock record repo (operator inspection only) ---

type mockRecordRepo struct {
	repository.RecordRepository
	rec *model.TransactionRecord
}

func (m *mockRecordRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.TransactionRecord, error) {
	if m.rec == nil || m.rec.Name != name {
		return nil, domain.ErrNotFound
	}
	return m.rec, nil
}

func newTestServer(uc usecase.FlowUseCase, records repository.RecordRepository) *Server {
	logger := zerolog.New(io.Discard)
	auth := NewAuthManager("test-secret", false, "", time.Hour)
	return NewServer(uc, records, auth, nil, "login-secret", &logger)
}

func TestHandleInitiate(t *testing.T) {
	t.Run("should return 201 with the record name", func(t *testing.T) {
		uc := &mockFlowUC{}
		srv := newTestServer(uc, &mockRecordRepo{})
		body := `{"gateway_id":"mockpay","tx_data":{"amount":19900,"currency":"EUR"}}`

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/", strings.NewReader(body))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
		}
		var resp initiateResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.RecordName != "rec-1" {
			t.Errorf("expected record name rec-1, got %q", resp.RecordName)
		}
	})

	t.Run("should map invalid tx data to 400", func(t *testing.T) {
		uc := &mockFlowUC{
			InitiateFunc: func(ctx context.Context, gatewayID string, data model.TxData, hint, name string) (string, error) {
				return "", domain.ErrInvalidArgument
			},
		}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/", strings.NewReader(`{"gateway_id":"mockpay"}`))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestHandlePaymentURL(t *testing.T) {
	t.Run("should return the hosted URL", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1/url", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp map[string]interface{}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["url"] != "https://pay.example.test/pay?ref=rec-1" {
			t.Errorf("unexpected url: %v", resp["url"])
		}
	})

	t.Run("should return a null URL without a hosted page", func(t *testing.T) {
		uc := &mockFlowUC{PaymentURLFunc: func(ctx context.Context, name string) (string, bool, error) {
			return "", false, nil
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1/url", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp map[string]interface{}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["url"] != nil {
			t.Errorf("expected null url, got %v", resp["url"])
		}
	})
}

func TestHandleProceed(t *testing.T) {
	t.Run("should pass the patch through", func(t *testing.T) {
		var gotPatch *model.TxData
		uc := &mockFlowUC{ProceedFunc: func(ctx context.Context, name string, patch *model.TxData) (*model.Proceeded, error) {
			gotPatch = patch
			return &model.Proceeded{GatewayID: "mockpay", FlowType: model.FlowTypeCharge}, nil
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/proceed", strings.NewReader(`{"amount":500}`))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if gotPatch == nil || gotPatch.Amount != 500 {
			t.Errorf("expected the patch to reach the use case, got %+v", gotPatch)
		}
	})

	t.Run("should map a terminal flow to 409", func(t *testing.T) {
		uc := &mockFlowUC{ProceedFunc: func(ctx context.Context, name string, patch *model.TxData) (*model.Proceeded, error) {
			return nil, domain.ErrFlowTerminal
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/proceed", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rr.Code)
		}
	})

	t.Run("should map an initiation failure to 502 without leaking details", func(t *testing.T) {
		uc := &mockFlowUC{ProceedFunc: func(ctx context.Context, name string, patch *model.TxData) (*model.Proceeded, error) {
			return nil, domain.NewInitiationError("ref-1", errors.New("tls handshake with provider failed"))
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/proceed", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "tls handshake") {
			t.Error("adapter error detail leaked into the response")
		}
		if !strings.Contains(rr.Body.String(), "ref-1") {
			t.Error("expected the support reference in the response")
		}
	})
}

func TestHandlePay(t *testing.T) {
	t.Run("should redirect to the gateway page", func(t *testing.T) {
		uc := &mockFlowUC{ProceedFunc: func(ctx context.Context, name string, patch *model.TxData) (*model.Proceeded, error) {
			return &model.Proceeded{Payload: map[string]interface{}{"redirect_url": "https://gw.test/pay/abc"}}, nil
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodGet, "/pay?ref=rec-1", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "https://gw.test/pay/abc" {
			t.Errorf("unexpected redirect target %q", loc)
		}
	})

	t.Run("should require the ref parameter", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodGet, "/pay", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestHandleResponse(t *testing.T) {
	t.Run("should merge body and query fields, query wins", func(t *testing.T) {
		uc := &mockFlowUC{}
		srv := newTestServer(uc, &mockRecordRepo{})
		body := `{"kr-answer":"from-body","extra":"kept"}`

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/response?kr-answer=from-query", strings.NewReader(body))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
		}
		if uc.LastPayload["kr-answer"] != "from-query" {
			t.Errorf("query value must win, got %v", uc.LastPayload["kr-answer"])
		}
		if uc.LastPayload["extra"] != "kept" {
			t.Errorf("body-only fields must survive, got %v", uc.LastPayload["extra"])
		}
	})

	t.Run("should accept the user redirect as GET", func(t *testing.T) {
		uc := &mockFlowUC{}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1/response?kr-hash=abc", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if uc.LastPayload["kr-hash"] != "abc" {
			t.Errorf("expected the query payload, got %v", uc.LastPayload)
		}
	})

	t.Run("should answer 202 while processing is still in flight", func(t *testing.T) {
		uc := &mockFlowUC{ProcessResponseFunc: func(ctx context.Context, name string, payload map[string]interface{}) (*model.Processed, error) {
			return nil, nil
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/response", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", rr.Code)
		}
	})

	t.Run("should hide integrity failures behind a generic 500", func(t *testing.T) {
		uc := &mockFlowUC{ProcessResponseFunc: func(ctx context.Context, name string, payload map[string]interface{}) (*model.Processed, error) {
			return nil, domain.NewPayloadIntegrityError("ref-9", errors.New("kr-hash mismatch"))
		}}
		srv := newTestServer(uc, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/rec-1/response", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "kr-hash") {
			t.Error("validation detail leaked into the response")
		}
	})
}

func TestOperatorEndpoints(t *testing.T) {
	rec := &model.TransactionRecord{Name: "rec-1", GatewayID: "mockpay", Status: model.FlowStatusCompleted}

	t.Run("should reject record inspection without a session", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{rec: rec})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("should serve the record after login", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{rec: rec})
		router := srv.Router()

		login := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"secret":"login-secret"}`))
		loginRR := httptest.NewRecorder()
		router.ServeHTTP(loginRR, login)
		if loginRR.Code != http.StatusOK {
			t.Fatalf("login failed: %d (%s)", loginRR.Code, loginRR.Body.String())
		}
		var session map[string]string
		json.Unmarshal(loginRR.Body.Bytes(), &session)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1", nil)
		req.Header.Set("Authorization", "Bearer "+session["token"])
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "rec-1") {
			t.Error("expected the record in the response")
		}
	})

	t.Run("should serve the record with the session cookie", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{rec: rec})
		router := srv.Router()

		login := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"secret":"login-secret"}`))
		loginRR := httptest.NewRecorder()
		router.ServeHTTP(loginRR, login)

		var session *http.Cookie
		for _, c := range loginRR.Result().Cookies() {
			if c.Name == operatorCookie {
				session = c
			}
		}
		if session == nil || session.Value == "" {
			t.Fatal("expected the login to set the operator cookie")
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/rec-1", nil)
		req.AddCookie(session)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
		}
	})

	t.Run("logout should expire the session cookie", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		var cleared *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == operatorCookie {
				cleared = c
			}
		}
		if cleared == nil || cleared.Value != "" || cleared.MaxAge >= 0 {
			t.Errorf("expected an expired operator cookie, got %+v", cleared)
		}
	})

	t.Run("should refuse a wrong login secret", func(t *testing.T) {
		srv := newTestServer(&mockFlowUC{}, &mockRecordRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"secret":"wrong"}`))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})
}
