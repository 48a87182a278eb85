//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
	"payment-flows/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- In-memory RecordRepository ----

// MockRecordRepo keeps records in a map and mimics the guard semantics of the
// real repository (CAS on status, write-once flow type). Assign the *Func
// fields to override individual methods for a test.
type MockRecordRepo struct {
	mu   sync.Mutex
	data map[string]*model.TransactionRecord

	SaveFunc                   func(ctx context.Context, tx repository.Tx, rec *model.TransactionRecord) error
	FindByNameFunc             func(ctx context.Context, tx repository.Tx, name string) (*model.TransactionRecord, error)
	UpdateTxDataIfStatusInFunc func(ctx context.Context, tx repository.Tx, name string, data model.TxData, status model.FlowStatus, from []model.FlowStatus) (bool, error)
	SetInitiationFunc          func(ctx context.Context, tx repository.Tx, name string, flowType model.FlowType, correlationID string, mandateID *string, payload map[string]interface{}) error
	SetProcessedFunc           func(ctx context.Context, tx repository.Tx, name string, status model.FlowStatus, payload map[string]interface{}, failureReason string, saved *model.Processed) error
}

var _ repository.RecordRepository = (*MockRecordRepo)(nil)

func NewMockRecordRepo() *MockRecordRepo {
	return &MockRecordRepo{data: map[string]*model.TransactionRecord{}}
}

func (r *MockRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.TransactionRecord) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, rec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.data[rec.Name] = &cp
	return nil
}

func (r *MockRecordRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.TransactionRecord, error) {
	if r.FindByNameFunc != nil {
		return r.FindByNameFunc(ctx, tx, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MockRecordRepo) UpdateTxDataIfStatusIn(ctx context.Context, tx repository.Tx, name string, data model.TxData, status model.FlowStatus, from []model.FlowStatus) (bool, error) {
	if r.UpdateTxDataIfStatusInFunc != nil {
		return r.UpdateTxDataIfStatusInFunc(ctx, tx, name, data, status, from)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[name]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range from {
		if rec.Status == s {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	rec.TxData = data
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockRecordRepo) SetInitiation(ctx context.Context, tx repository.Tx, name string, flowType model.FlowType, correlationID string, mandateID *string, payload map[string]interface{}) error {
	if r.SetInitiationFunc != nil {
		return r.SetInitiationFunc(ctx, tx, name, flowType, correlationID, mandateID, payload)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[name]
	if !ok {
		return domain.ErrOperationFailed
	}
	// same write-once guard as the SQL repository
	if rec.FlowType != "" && rec.FlowType != flowType {
		return domain.ErrOperationFailed
	}
	rec.FlowType = flowType
	rec.CorrelationID = correlationID
	rec.MandateID = mandateID
	rec.InitiationPayload = payload
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *MockRecordRepo) SetProcessed(ctx context.Context, tx repository.Tx, name string, status model.FlowStatus, payload map[string]interface{}, failureReason string, saved *model.Processed) error {
	if r.SetProcessedFunc != nil {
		return r.SetProcessedFunc(ctx, tx, name, status, payload, failureReason, saved)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[name]
	if !ok {
		return domain.ErrOperationFailed
	}
	// same transition guard as the SQL repository
	if !rec.Status.CanTransition(status) {
		return domain.ErrOperationFailed
	}
	rec.Status = status
	rec.ProcessingPayload = payload
	rec.FailureReason = failureReason
	rec.SavedResult = saved
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *MockRecordRepo) ListUnsettledOlderThan(ctx context.Context, tx repository.Tx, statuses []model.FlowStatus, olderThan time.Time, limit int) ([]*model.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TransactionRecord
	for _, rec := range r.data {
		for _, s := range statuses {
			if rec.Status == s && rec.UpdatedAt.Before(olderThan) {
				cp := *rec
				out = append(out, &cp)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MockRecordRepo) DeleteSettledOlderThan(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for name, rec := range r.data {
		if rec.Status.Terminal() && rec.UpdatedAt.Before(before) {
			delete(r.data, name)
			n++
		}
	}
	return n, nil
}

// Get returns the stored record directly, for assertions.
func (r *MockRecordRepo) Get(name string) *model.TransactionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.data[name]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

// ---- In-memory MandateRepository ----

type MockMandateRepo struct {
	mu   sync.Mutex
	data map[string]*model.Mandate

	SaveFunc         func(ctx context.Context, tx repository.Tx, m *model.Mandate) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, id string, status model.MandateStatus) error
}

var _ repository.MandateRepository = (*MockMandateRepo)(nil)

func NewMockMandateRepo() *MockMandateRepo {
	return &MockMandateRepo{data: map[string]*model.Mandate{}}
}

func (r *MockMandateRepo) Save(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.data[m.ID] = &cp
	return nil
}

func (r *MockMandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Mandate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MockMandateRepo) FindChargeable(ctx context.Context, tx repository.Tx, gatewayID, payerRef string) (*model.Mandate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.data {
		if m.GatewayID == gatewayID && m.PayerRef == payerRef && m.Status == model.MandateStatusActive {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMandateRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.MandateStatus) error {
	if r.UpdateStatusFunc != nil {
		return r.UpdateStatusFunc(ctx, tx, id, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	return nil
}

func (r *MockMandateRepo) Get(id string) *model.Mandate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.data[id]; ok {
		cp := *m
		return &cp
	}
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

// MockGateway defaults to a plain charge flow that resolves to success.
// Every behavior is overridable via the *Func fields; call counts are
// recorded for assertions.
type MockGateway struct {
	mu sync.Mutex

	GatewayName string
	HostedURL   bool

	PatchTxDataFunc                func(ctx context.Context, data model.TxData) (model.TxData, error)
	ShouldHaveMandateFunc          func(ctx context.Context, fc *adapter.FlowContext) (bool, error)
	GetMandateFunc                 func(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error)
	CreateMandateFunc              func(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error)
	InitiateMandateAcquisitionFunc func(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error)
	InitiateMandatedChargeFunc     func(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error)
	InitiateChargeFunc             func(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error)
	ValidateResponsePayloadFunc    func(ctx context.Context, fc *adapter.FlowContext) error
	ProcessMandateAcquisitionFunc  func(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error)
	ProcessMandatedChargeFunc      func(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error)
	ProcessChargeFunc              func(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error)
	RenderFailureMessageFunc       func(ctx context.Context, fc *adapter.FlowContext) string

	Calls struct {
		InitiateCharge             int
		InitiateMandatedCharge     int
		InitiateMandateAcquisition int
		ProcessCharge              int
		ProcessMandatedCharge      int
		ProcessMandateAcquisition  int
		Validate                   int
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string {
	if g.GatewayName != "" {
		return g.GatewayName
	}
	return "mockpay"
}

func (g *MockGateway) SupportsHostedURL() bool { return g.HostedURL }

func (g *MockGateway) PatchTxData(ctx context.Context, data model.TxData) (model.TxData, error) {
	if g.PatchTxDataFunc != nil {
		return g.PatchTxDataFunc(ctx, data)
	}
	return data, nil
}

func (g *MockGateway) ShouldHaveMandate(ctx context.Context, fc *adapter.FlowContext) (bool, error) {
	if g.ShouldHaveMandateFunc != nil {
		return g.ShouldHaveMandateFunc(ctx, fc)
	}
	return false, nil
}

func (g *MockGateway) GetMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	if g.GetMandateFunc != nil {
		return g.GetMandateFunc(ctx, fc)
	}
	return nil, nil
}

func (g *MockGateway) CreateMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	if g.CreateMandateFunc != nil {
		return g.CreateMandateFunc(ctx, fc)
	}
	return &model.Mandate{
		ID:        "mandate-1",
		GatewayID: g.Name(),
		PayerRef:  "payer@example.test",
		Status:    model.MandateStatusPending,
	}, nil
}

func (g *MockGateway) InitiateMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	g.count(&g.Calls.InitiateMandateAcquisition)
	if g.InitiateMandateAcquisitionFunc != nil {
		return g.InitiateMandateAcquisitionFunc(ctx, fc)
	}
	return &model.Initiated{CorrelationID: "corr-acq", Payload: map[string]interface{}{"redirect_url": "https://gw.test/acquire"}}, nil
}

func (g *MockGateway) InitiateMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	g.count(&g.Calls.InitiateMandatedCharge)
	if g.InitiateMandatedChargeFunc != nil {
		return g.InitiateMandatedChargeFunc(ctx, fc)
	}
	return &model.Initiated{CorrelationID: "corr-mcharge", Payload: map[string]interface{}{}}, nil
}

func (g *MockGateway) InitiateCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	g.count(&g.Calls.InitiateCharge)
	if g.InitiateChargeFunc != nil {
		return g.InitiateChargeFunc(ctx, fc)
	}
	return &model.Initiated{CorrelationID: "corr-charge", Payload: map[string]interface{}{"redirect_url": "https://gw.test/pay"}}, nil
}

func (g *MockGateway) ValidateResponsePayload(ctx context.Context, fc *adapter.FlowContext) error {
	g.count(&g.Calls.Validate)
	if g.ValidateResponsePayloadFunc != nil {
		return g.ValidateResponsePayloadFunc(ctx, fc)
	}
	return nil
}

func (g *MockGateway) ProcessMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.count(&g.Calls.ProcessMandateAcquisition)
	if g.ProcessMandateAcquisitionFunc != nil {
		return g.ProcessMandateAcquisitionFunc(ctx, fc)
	}
	fc.ResolveTo(model.BucketSuccess)
	return nil, nil
}

func (g *MockGateway) ProcessMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.count(&g.Calls.ProcessMandatedCharge)
	if g.ProcessMandatedChargeFunc != nil {
		return g.ProcessMandatedChargeFunc(ctx, fc)
	}
	fc.ResolveTo(model.BucketSuccess)
	return nil, nil
}

func (g *MockGateway) ProcessCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.count(&g.Calls.ProcessCharge)
	if g.ProcessChargeFunc != nil {
		return g.ProcessChargeFunc(ctx, fc)
	}
	fc.ResolveTo(model.BucketSuccess)
	return nil, nil
}

func (g *MockGateway) RenderFailureMessage(ctx context.Context, fc *adapter.FlowContext) string {
	if g.RenderFailureMessageFunc != nil {
		return g.RenderFailureMessageFunc(ctx, fc)
	}
	return "payment was declined"
}

func (g *MockGateway) count(c *int) {
	g.mu.Lock()
	*c++
	g.mu.Unlock()
}

// ---- Mock GatewayRegistry ----

type MockRegistry struct {
	Gateways map[string]adapter.PaymentGateway
}

var _ adapter.GatewayRegistry = (*MockRegistry)(nil)

func (r *MockRegistry) Resolve(gatewayID string) (adapter.PaymentGateway, error) {
	gw, ok := r.Gateways[gatewayID]
	if !ok {
		return nil, domain.ErrGatewayNotConfigured
	}
	return gw, nil
}

// ---- Recording ReferenceDocument ----

// RecordingRefDoc counts hook invocations and lets tests inject hook results
// or failures.
type RecordingRefDoc struct {
	adapter.NoopReferenceDocument
	mu sync.Mutex

	OnChargeProcessedFunc func(ctx context.Context, bucket model.StatusBucket, fc *adapter.FlowContext) (*adapter.HookResult, error)

	Calls struct {
		ChargeProcessed             int
		MandatedChargeProcessed     int
		MandateAcquisitionProcessed int
		Failed                      int
		Authorized                  int
	}
	LastBucket     model.StatusBucket
	FailedMessage  string
	FailedStatus   model.FlowStatus
	AuthStatusSeen model.FlowStatus
}

func (d *RecordingRefDoc) OnChargeProcessed(ctx context.Context, bucket model.StatusBucket, fc *adapter.FlowContext) (*adapter.HookResult, error) {
	d.mu.Lock()
	d.Calls.ChargeProcessed++
	d.LastBucket = bucket
	d.mu.Unlock()
	if d.OnChargeProcessedFunc != nil {
		return d.OnChargeProcessedFunc(ctx, bucket, fc)
	}
	return nil, nil
}

func (d *RecordingRefDoc) OnMandatedChargeProcessed(ctx context.Context, bucket model.StatusBucket, fc *adapter.FlowContext) (*adapter.HookResult, error) {
	d.mu.Lock()
	d.Calls.MandatedChargeProcessed++
	d.LastBucket = bucket
	d.mu.Unlock()
	return nil, nil
}

func (d *RecordingRefDoc) OnMandateAcquisitionProcessed(ctx context.Context, bucket model.StatusBucket, fc *adapter.FlowContext) (*adapter.HookResult, error) {
	d.mu.Lock()
	d.Calls.MandateAcquisitionProcessed++
	d.LastBucket = bucket
	d.mu.Unlock()
	return nil, nil
}

func (d *RecordingRefDoc) OnPaymentFailed(ctx context.Context, status model.FlowStatus, message string) error {
	d.mu.Lock()
	d.Calls.Failed++
	d.FailedStatus = status
	d.FailedMessage = message
	d.mu.Unlock()
	return nil
}

func (d *RecordingRefDoc) OnPaymentAuthorized(ctx context.Context, status model.FlowStatus) error {
	d.mu.Lock()
	d.Calls.Authorized++
	d.AuthStatusSeen = status
	d.mu.Unlock()
	return nil
}

// ---- Mock RefDocResolver ----

type MockRefDocResolver struct {
	Doc adapter.ReferenceDocument
}

var _ adapter.RefDocResolver = (*MockRefDocResolver)(nil)

func (r *MockRefDocResolver) Resolve(ctx context.Context, docType, docID string) (adapter.ReferenceDocument, error) {
	if r.Doc == nil {
		return adapter.NoopReferenceDocument{}, nil
	}
	return r.Doc, nil
}

// =============================
// Infra ports
// =============================

// ---- In-memory Locker ----

// MockLocker implements real exclusive-lock semantics in memory. With Poll
// set it retries a held key until the wait window elapses, like the Redis
// locker; otherwise a held key fails immediately with ErrLockNotAcquired.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int

	Poll        bool
	TryLockFunc func(ctx context.Context, key string, ttl, wait time.Duration) (string, error)
}

var _ repository.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	if l.TryLockFunc != nil {
		return l.TryLockFunc(ctx, key, ttl, wait)
	}
	deadline := time.Now().Add(wait)
	for {
		l.mu.Lock()
		if _, taken := l.held[key]; !taken {
			l.seq++
			token := fmt.Sprintf("tok-%d", l.seq)
			l.held[key] = token
			l.mu.Unlock()
			return token, nil
		}
		l.mu.Unlock()
		if !l.Poll || time.Now().After(deadline) {
			return "", domain.ErrLockNotAcquired
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// ---- Mock TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx executes the function immediately without a real transaction unless
// a test assigns WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
