package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"payment-flows/internal/config"
	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
	"payment-flows/internal/domain/ports/repository"
)

var (
	_ adapter.PaymentGateway = (*PayzenGateway)(nil)
	_ adapter.StatusPoller   = (*PayzenGateway)(nil)
)

var payzenSupportedCurrencies = map[string]bool{
	"COP": true,
	"EUR": true,
}

// PayzenGateway talks to the Payzen (Lyra) V4 REST API. Initiation creates a
// form token the embedded checkout renders; responses come back as a kr-answer
// JSON document signed with HMAC-SHA256 (kr-hash).
type PayzenGateway struct {
	id       string
	cfg      config.PayzenConfig
	mandates repository.MandateRepository
	client   *http.Client
}

func NewPayzenGateway(id string, cfg config.PayzenConfig, mandates repository.MandateRepository) (*PayzenGateway, error) {
	if cfg.ShopID == "" || cfg.Password == "" || cfg.HMACKey == "" {
		return nil, domain.ErrGatewayNotConfigured
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.payzen.lat/api-payment"
	}
	return &PayzenGateway{
		id:       id,
		cfg:      cfg,
		mandates: mandates,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *PayzenGateway) Name() string            { return g.id }
func (g *PayzenGateway) SupportsHostedURL() bool { return true }

func (g *PayzenGateway) PatchTxData(ctx context.Context, data model.TxData) (model.TxData, error) {
	if !payzenSupportedCurrencies[data.Currency] {
		return data, fmt.Errorf("%w: payzen does not support currency %q", domain.ErrInvalidArgument, data.Currency)
	}
	return data, nil
}

// payerRef extracts the gateway-scoped payer identity from the tx data.
func payerRef(data model.TxData) string {
	if data.PayerContact != nil {
		if email, ok := data.PayerContact["email"].(string); ok && email != "" {
			return email
		}
	}
	return ""
}

func (g *PayzenGateway) ShouldHaveMandate(ctx context.Context, fc *adapter.FlowContext) (bool, error) {
	// The reference document flags recurring business flows in the tx meta.
	if fc.TxData.Meta != nil {
		if v, ok := fc.TxData.Meta["require_mandate"].(bool); ok {
			return v, nil
		}
	}
	return false, nil
}

func (g *PayzenGateway) GetMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	ref := payerRef(fc.TxData)
	if ref == "" {
		return nil, nil
	}
	m, err := g.mandates.FindChargeable(ctx, nil, g.id, ref)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (g *PayzenGateway) CreateMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	ref := payerRef(fc.TxData)
	if ref == "" {
		return nil, fmt.Errorf("%w: payer contact email is required for a mandate", domain.ErrInvalidArgument)
	}
	now := time.Now()
	return &model.Mandate{
		ID:        uuid.NewString(),
		GatewayID: g.id,
		PayerRef:  ref,
		Status:    model.MandateStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (g *PayzenGateway) InitiateMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	body := map[string]interface{}{
		"currency":   fc.TxData.Currency,
		"orderId":    fc.Record.Name,
		"customer":   map[string]interface{}{"email": payerRef(fc.TxData)},
		"formAction": "REGISTER",
	}
	return g.createFormToken(ctx, "V4/Charge/CreateToken", body)
}

func (g *PayzenGateway) InitiateMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	if fc.Mandate == nil || fc.Mandate.Token == "" {
		return nil, fmt.Errorf("%w: mandated charge without a usable mandate token", domain.ErrInvalidArgument)
	}
	body := map[string]interface{}{
		"amount":             fc.TxData.Amount,
		"currency":           fc.TxData.Currency,
		"orderId":            fc.Record.Name,
		"paymentMethodToken": fc.Mandate.Token,
		"customer":           map[string]interface{}{"email": payerRef(fc.TxData)},
	}
	return g.createFormToken(ctx, "V4/Charge/CreatePayment", body)
}

func (g *PayzenGateway) InitiateCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	body := map[string]interface{}{
		"amount":   fc.TxData.Amount,
		"currency": fc.TxData.Currency,
		"orderId":  fc.Record.Name,
		"customer": map[string]interface{}{"email": payerRef(fc.TxData)},
	}
	return g.createFormToken(ctx, "V4/Charge/CreatePayment", body)
}

type payzenEnvelope struct {
	Status string                 `json:"status"`
	Answer map[string]interface{} `json:"answer"`
}

func (g *PayzenGateway) createFormToken(ctx context.Context, path string, body map[string]interface{}) (*model.Initiated, error) {
	env, err := g.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	token, _ := env.Answer["formToken"].(string)
	if token == "" {
		return nil, fmt.Errorf("payzen: %s returned no form token", path)
	}
	return &model.Initiated{
		CorrelationID: token,
		Payload: map[string]interface{}{
			"formToken": token,
			"publicKey": g.cfg.ShopID,
		},
	}, nil
}

func (g *PayzenGateway) post(ctx context.Context, path string, body map[string]interface{}) (*payzenEnvelope, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payzen: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL+"/"+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("payzen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.cfg.ShopID, g.cfg.Password)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payzen: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("payzen: read response: %w", err)
	}
	var env payzenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("payzen: decode response: %w", err)
	}
	if env.Status != "SUCCESS" {
		return nil, fmt.Errorf("payzen: %s answered status %q", path, env.Status)
	}
	return &env, nil
}

// ValidateResponsePayload recomputes kr-hash over the raw kr-answer string.
// signature = HMAC-SHA256(hmac_key, kr-answer), hex encoded.
func (g *PayzenGateway) ValidateResponsePayload(ctx context.Context, fc *adapter.FlowContext) error {
	answer, _ := fc.ResponsePayload["kr-answer"].(string)
	hash, _ := fc.ResponsePayload["kr-hash"].(string)
	if answer == "" || hash == "" {
		return fmt.Errorf("payzen: response payload misses kr-answer or kr-hash")
	}
	if !hmac.Equal([]byte(ComputeAnswerSignature(g.cfg.HMACKey, answer)), []byte(hash)) {
		return fmt.Errorf("payzen: kr-hash signature mismatch")
	}
	return nil
}

// ComputeAnswerSignature derives the kr-hash for a raw kr-answer document.
func ComputeAnswerSignature(key, answer string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(answer))
	return hex.EncodeToString(h.Sum(nil))
}

type krAnswer struct {
	OrderStatus  string `json:"orderStatus"`
	OrderDetails struct {
		OrderID string `json:"orderId"`
	} `json:"orderDetails"`
	Transactions []struct {
		UUID               string `json:"uuid"`
		DetailedStatus     string `json:"detailedStatus"`
		ErrorMessage       string `json:"errorMessage"`
		PaymentMethodToken string `json:"paymentMethodToken"`
	} `json:"transactions"`
}

func (g *PayzenGateway) parseAnswer(fc *adapter.FlowContext) (*krAnswer, error) {
	raw, _ := fc.ResponsePayload["kr-answer"].(string)
	if raw == "" {
		return nil, fmt.Errorf("payzen: response payload misses kr-answer")
	}
	var a krAnswer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("payzen: decode kr-answer: %w", err)
	}
	return &a, nil
}

// classify maps the Payzen order status onto the controller's buckets.
func classify(a *krAnswer) model.StatusBucket {
	switch a.OrderStatus {
	case "PAID":
		return model.BucketSuccess
	case "AUTHORISED", "PRE_AUTHORISED":
		return model.BucketPreAuthorized
	case "RUNNING":
		return model.BucketProcessing
	default: // UNPAID, ABANDONED, ...
		return model.BucketFailure
	}
}

func (g *PayzenGateway) ProcessCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	a, err := g.parseAnswer(fc)
	if err != nil {
		return nil, err
	}
	fc.ResolveTo(classify(a))
	return nil, nil
}

func (g *PayzenGateway) ProcessMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	a, err := g.parseAnswer(fc)
	if err != nil {
		return nil, err
	}
	fc.ResolveTo(classify(a))
	return nil, nil
}

func (g *PayzenGateway) ProcessMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	a, err := g.parseAnswer(fc)
	if err != nil {
		return nil, err
	}
	bucket := classify(a)
	if bucket == model.BucketSuccess && fc.Mandate != nil {
		// The acquired token arrives with the answer; persist it on the
		// mandate so mandated charges can use it. Activation itself is the
		// controller's write.
		for _, tx := range a.Transactions {
			if tx.PaymentMethodToken != "" {
				fc.Mandate.Token = tx.PaymentMethodToken
				fc.Mandate.UpdatedAt = time.Now()
				if err := g.mandates.Save(ctx, nil, fc.Mandate); err != nil {
					return nil, err
				}
				break
			}
		}
	}
	fc.ResolveTo(bucket)
	return nil, nil
}

func (g *PayzenGateway) RenderFailureMessage(ctx context.Context, fc *adapter.FlowContext) string {
	a, err := g.parseAnswer(fc)
	if err != nil {
		return "The payment could not be completed."
	}
	for _, tx := range a.Transactions {
		if tx.ErrorMessage != "" {
			return tx.ErrorMessage
		}
	}
	return fmt.Sprintf("The payment was not completed (status %s).", a.OrderStatus)
}

// PollProcessingPayload fetches the order state over the authenticated REST
// channel and re-signs it with our own key, producing a payload the normal
// validation path accepts.
func (g *PayzenGateway) PollProcessingPayload(ctx context.Context, rec *model.TransactionRecord) (map[string]interface{}, error) {
	env, err := g.post(ctx, "V4/Order/Get", map[string]interface{}{"orderId": rec.Name})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env.Answer)
	if err != nil {
		return nil, fmt.Errorf("payzen: marshal polled answer: %w", err)
	}
	answer := string(raw)
	return map[string]interface{}{
		"kr-answer": answer,
		"kr-hash":   ComputeAnswerSignature(g.cfg.HMACKey, answer),
	}, nil
}
