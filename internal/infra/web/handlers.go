package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
)

type initiateRequest struct {
	GatewayID     string       `json:"gateway_id"`
	TxData        model.TxData `json:"tx_data"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Name          string       `json:"name,omitempty"`
}

type initiateResponse struct {
	RecordName string `json:"record_name"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	name, err := s.flowUC.Initiate(r.Context(), req.GatewayID, req.TxData, req.CorrelationID, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiateResponse{RecordName: name})
}

func (s *Server) handlePaymentURL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	u, ok, err := s.flowUC.PaymentURL(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"url": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": u})
}

func (s *Server) handleProceed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var patch *model.TxData
	if r.ContentLength > 0 {
		patch = &model.TxData{}
		if err := json.NewDecoder(r.Body).Decode(patch); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	proceeded, err := s.flowUC.Proceed(r.Context(), name, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proceeded)
}

// handlePay is the hosted payment entry point: it proceeds the flow and
// either follows the gateway's redirect or hands the initiation payload to
// the gateway-specific front end.
func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("ref")
	if name == "" {
		http.Error(w, "missing ref", http.StatusBadRequest)
		return
	}
	proceeded, err := s.flowUC.Proceed(r.Context(), name, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if u, _ := proceeded.Payload["redirect_url"].(string); u != "" {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, proceeded)
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// Webhooks deliver a JSON body; user redirects carry the same fields in
	// the query string. Query values win so the two channels stay consistent.
	payload := map[string]interface{}{}
	if r.Method == http.MethodPost && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}

	processed, err := s.flowUC.ProcessResponse(r.Context(), name, payload)
	if err != nil {
		var integrity *domain.PayloadIntegrityError
		var hookErr *domain.HookError
		switch {
		case errors.As(err, &integrity), errors.As(err, &hookErr):
			// Generic server error only; details stay in the log.
			s.notifyFailure(r, name, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			s.writeError(w, err)
		}
		return
	}
	if processed == nil {
		// Concurrent processing still in flight and nothing saved yet.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
		return
	}
	writeJSON(w, http.StatusOK, processed)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.records.FindByName(r.Context(), nil, name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type loginRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.secret == "" || req.Secret != s.secret {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Issue(w)
	if err != nil {
		http.Error(w, "Failed to mint session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) notifyFailure(r *http.Request, record string, err error) {
	msg := fmt.Sprintf("payment flow %s: %v", record, err)
	if nerr := s.notifier.Notify(r.Context(), msg); nerr != nil {
		s.log.Warn().Err(nerr).Msg("ops notification failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var initErr *domain.InitiationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "Invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrFlowTerminal), errors.Is(err, domain.ErrAlreadyInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &initErr):
		// Surfaced to the user with the support reference only.
		http.Error(w, initErr.Error(), http.StatusBadGateway)
	case errors.Is(err, domain.ErrGatewayNotConfigured):
		http.Error(w, "Gateway not configured", http.StatusInternalServerError)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
