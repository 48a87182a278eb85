package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
	"payment-flows/internal/domain/ports/repository"
)

// Compile-time check
var _ FlowUseCase = (*flowUC)(nil)

// FlowUseCase orchestrates the payment flow state machine. It is the only
// component with real invariants: single effective processing per record,
// state-machine legality and charge / mandated-charge / mandate-acquisition
// branch selection.
type FlowUseCase interface {
	// Initiate creates a transaction record for the given gateway and returns
	// its name, the sole handle the caller must persist. No remote call here.
	Initiate(ctx context.Context, gatewayID string, data model.TxData, correlationHint, name string) (string, error)

	// PaymentURL returns the hosted payment URL for a record, or ok=false
	// when the gateway has no hosted page.
	PaymentURL(ctx context.Context, recordName string) (string, bool, error)

	// Proceed initiates the capture with the remote gateway once the user
	// agreed to pay. The optional patch is merged onto the stored tx data.
	Proceed(ctx context.Context, recordName string, patch *model.TxData) (*model.Proceeded, error)

	// ProcessResponse reconciles a signed gateway response into durable state
	// exactly once. Racing duplicates observe the already-computed outcome.
	ProcessResponse(ctx context.Context, recordName string, payload map[string]interface{}) (*model.Processed, error)
}

// FlowConfig tunes the controller.
type FlowConfig struct {
	// BaseURL is the public base of this service, used to render hosted
	// payment URLs (BaseURL + /pay?ref=<name>).
	BaseURL string
	// LockTTL bounds how long a single processing attempt may hold the
	// record lock; LockWait bounds how long a second caller waits before
	// falling back to the saved result.
	LockTTL  time.Duration
	LockWait time.Duration
}

func (c *FlowConfig) withDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 3 * time.Second
	}
}

type flowUC struct {
	records  repository.RecordRepository
	mandates repository.MandateRepository
	gateways adapter.GatewayRegistry
	refdocs  adapter.RefDocResolver
	locker   repository.Locker
	tm       repository.TransactionManager
	metrics  adapter.FlowMetrics
	cfg      FlowConfig
	log      *zerolog.Logger
}

func NewFlowUseCase(
	records repository.RecordRepository,
	mandates repository.MandateRepository,
	gateways adapter.GatewayRegistry,
	refdocs adapter.RefDocResolver,
	locker repository.Locker,
	tm repository.TransactionManager,
	met adapter.FlowMetrics,
	cfg FlowConfig,
	logger *zerolog.Logger,
) *flowUC {
	cfg.withDefaults()
	if met == nil {
		met = adapter.NoopFlowMetrics{}
	}
	return &flowUC{
		records:  records,
		mandates: mandates,
		gateways: gateways,
		refdocs:  refdocs,
		locker:   locker,
		tm:       tm,
		metrics:  met,
		cfg:      cfg,
		log:      logger,
	}
}

func (u *flowUC) Initiate(ctx context.Context, gatewayID string, data model.TxData, correlationHint, name string) (string, error) {
	gw, err := u.gateways.Resolve(gatewayID)
	if err != nil {
		return "", err
	}
	if data.Amount <= 0 || data.Currency == "" {
		return "", domain.ErrInvalidArgument
	}

	data, err = gw.PatchTxData(ctx, data)
	if err != nil {
		return "", err
	}

	if name == "" {
		name = ulid.Make().String()
	}
	now := time.Now()
	rec := &model.TransactionRecord{
		Name:          name,
		GatewayID:     gatewayID,
		CorrelationID: correlationHint,
		Status:        model.FlowStatusInitiated,
		TxData:        data,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.records.Save(ctx, nil, rec); err != nil {
		return "", err
	}

	u.metrics.FlowInitiated(gatewayID)
	u.log.Info().Str("record", name).Str("gateway", gatewayID).Msg("flow initiated")
	return name, nil
}

func (u *flowUC) PaymentURL(ctx context.Context, recordName string) (string, bool, error) {
	rec, err := u.records.FindByName(ctx, nil, recordName)
	if err != nil {
		return "", false, err
	}
	gw, err := u.gateways.Resolve(rec.GatewayID)
	if err != nil {
		return "", false, err
	}
	if !gw.SupportsHostedURL() {
		return "", false, nil
	}
	q := url.Values{"ref": {recordName}}
	return u.cfg.BaseURL + "/pay?" + q.Encode(), true, nil
}

func (u *flowUC) Proceed(ctx context.Context, recordName string, patch *model.TxData) (*model.Proceeded, error) {
	rec, err := u.records.FindByName(ctx, nil, recordName)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, domain.ErrFlowTerminal
	}
	gw, err := u.gateways.Resolve(rec.GatewayID)
	if err != nil {
		return nil, err
	}

	// Durable before any network call: a crash past this point leaves the
	// flow resumable at Queued, never lost. The status guard rejects records
	// that already moved past initiation.
	merged := rec.TxData.Merge(patch)
	ok, err := u.records.UpdateTxDataIfStatusIn(ctx, nil, recordName, merged, model.FlowStatusQueued,
		[]model.FlowStatus{model.FlowStatusInitiated, model.FlowStatusQueued})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyInProgress
	}
	rec.TxData = merged
	rec.Status = model.FlowStatusQueued

	fc := &adapter.FlowContext{Record: rec, TxData: merged}
	proceeded, err := u.initiateRemote(ctx, gw, fc)
	if err != nil {
		ref := uuid.NewString()
		u.log.Error().Err(err).Str("record", recordName).Str("gateway", rec.GatewayID).
			Str("ref", ref).Msg("flow initiation failed")
		u.metrics.InitiationFailure(rec.GatewayID)
		return nil, domain.NewInitiationError(ref, err)
	}

	u.metrics.FlowProceeded(rec.GatewayID, string(proceeded.FlowType))
	u.log.Info().Str("record", recordName).Str("flow_type", string(proceeded.FlowType)).Msg("flow proceeded")
	return proceeded, nil
}

// initiateRemote selects the flow branch, calls the matching gateway
// initiation and atomically persists {flow_type, correlation_id, mandate}.
func (u *flowUC) initiateRemote(ctx context.Context, gw adapter.PaymentGateway, fc *adapter.FlowContext) (*model.Proceeded, error) {
	rec := fc.Record

	mandate, err := gw.GetMandate(ctx, fc)
	if err != nil {
		return nil, fmt.Errorf("mandate lookup: %w", err)
	}
	fc.Mandate = mandate

	var (
		flowType  model.FlowType
		initiated *model.Initiated
		mandateID *string
	)
	switch {
	case fc.Mandate == nil:
		should, err := gw.ShouldHaveMandate(ctx, fc)
		if err != nil {
			return nil, fmt.Errorf("mandate requirement check: %w", err)
		}
		if !should {
			flowType = model.FlowTypeCharge
			if initiated, err = gw.InitiateCharge(ctx, fc); err != nil {
				return nil, fmt.Errorf("initiate charge: %w", err)
			}
			break
		}
		m, err := gw.CreateMandate(ctx, fc)
		if err != nil {
			return nil, fmt.Errorf("create mandate: %w", err)
		}
		// The pending mandate is persisted before the remote call so the
		// acquisition can reference a durable id.
		if err := u.mandates.Save(ctx, nil, m); err != nil {
			return nil, fmt.Errorf("save mandate: %w", err)
		}
		fc.Mandate = m
		mandateID = &m.ID
		flowType = model.FlowTypeMandateAcquisition
		if initiated, err = gw.InitiateMandateAcquisition(ctx, fc); err != nil {
			return nil, fmt.Errorf("initiate mandate acquisition: %w", err)
		}
	default:
		mandateID = &fc.Mandate.ID
		flowType = model.FlowTypeMandatedCharge
		if initiated, err = gw.InitiateMandatedCharge(ctx, fc); err != nil {
			return nil, fmt.Errorf("initiate mandated charge: %w", err)
		}
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.records.SetInitiation(ctx, tx, rec.Name, flowType, initiated.CorrelationID, mandateID, initiated.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("persist initiation: %w", err)
	}

	rec.FlowType = flowType
	rec.CorrelationID = initiated.CorrelationID
	rec.MandateID = mandateID
	rec.InitiationPayload = initiated.Payload

	return &model.Proceeded{
		GatewayID: rec.GatewayID,
		FlowType:  flowType,
		Mandate:   fc.Mandate,
		TxData:    fc.TxData,
		Payload:   initiated.Payload,
	}, nil
}

// flowRoutine binds one flow type to its processing routine and the matching
// reference-document hook. A closed table, no dynamic dispatch.
type flowRoutine struct {
	label   string
	process func(context.Context, *adapter.FlowContext) (*model.Processed, error)
	hook    func(adapter.ReferenceDocument, context.Context, model.StatusBucket, *adapter.FlowContext) (*adapter.HookResult, error)
}

func routineFor(gw adapter.PaymentGateway, flowType model.FlowType) (flowRoutine, error) {
	switch flowType {
	case model.FlowTypeMandateAcquisition:
		return flowRoutine{
			label:   "mandate acquisition",
			process: gw.ProcessMandateAcquisition,
			hook:    adapter.ReferenceDocument.OnMandateAcquisitionProcessed,
		}, nil
	case model.FlowTypeMandatedCharge:
		return flowRoutine{
			label:   "mandated charge",
			process: gw.ProcessMandatedCharge,
			hook:    adapter.ReferenceDocument.OnMandatedChargeProcessed,
		}, nil
	case model.FlowTypeCharge:
		return flowRoutine{
			label:   "charge",
			process: gw.ProcessCharge,
			hook:    adapter.ReferenceDocument.OnChargeProcessed,
		}, nil
	default:
		return flowRoutine{}, fmt.Errorf("%w: record has no flow type, proceed first", domain.ErrInvalidArgument)
	}
}

func (u *flowUC) ProcessResponse(ctx context.Context, recordName string, payload map[string]interface{}) (*model.Processed, error) {
	start := time.Now()

	rec, err := u.records.FindByName(ctx, nil, recordName)
	if err != nil {
		return nil, err
	}

	// Guard against the same payload arriving via two channels (webhook and
	// user redirect). Contention is not an error: the concurrent caller gets
	// the already-computed outcome.
	token, err := u.locker.TryLock(ctx, rec.LockKey(), u.cfg.LockTTL, u.cfg.LockWait)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			u.metrics.LockContention(rec.GatewayID)
			u.log.Info().Str("record", recordName).Msg("record already being processed; replaying saved result")
			if fresh, ferr := u.records.FindByName(ctx, nil, recordName); ferr == nil {
				return fresh.SavedResult, nil
			}
			return rec.SavedResult, nil
		}
		return nil, err
	}
	defer func() {
		if uerr := u.locker.Unlock(context.WithoutCancel(ctx), rec.LockKey(), token); uerr != nil {
			u.log.Warn().Err(uerr).Str("record", recordName).Msg("record unlock failed; ttl will expire it")
		}
	}()

	// The pre-lock snapshot may predate a concurrent caller that settled the
	// record while we waited for the lock. Decide on a fresh read taken under
	// the lock, never on the snapshot.
	rec, err = u.records.FindByName(ctx, nil, recordName)
	if err != nil {
		return nil, err
	}

	// A settled record is replayed, not reprocessed.
	if rec.Status.Terminal() && rec.SavedResult != nil {
		return rec.SavedResult, nil
	}

	gw, err := u.gateways.Resolve(rec.GatewayID)
	if err != nil {
		return nil, err
	}
	routine, err := routineFor(gw, rec.FlowType)
	if err != nil {
		return nil, err
	}

	fc := &adapter.FlowContext{Record: rec, TxData: rec.TxData, ResponsePayload: payload}

	if err := gw.ValidateResponsePayload(ctx, fc); err != nil {
		ref := uuid.NewString()
		u.log.Error().Err(err).Str("record", recordName).Str("ref", ref).Msg("response payload validation failed")
		u.metrics.IntegrityFailure(rec.GatewayID)
		return nil, domain.NewPayloadIntegrityError(ref, err)
	}

	if rec.MandateID != nil {
		m, err := u.mandates.FindByID(ctx, nil, *rec.MandateID)
		if err != nil {
			return nil, err
		}
		fc.Mandate = m
	}

	processed, procErr := routine.process(ctx, fc)
	if procErr != nil {
		ref := uuid.NewString()
		u.log.Error().Err(procErr).Str("record", recordName).Str("flow_type", string(rec.FlowType)).
			Str("ref", ref).Msg("processing routine failed")
		fc.ResolveTo(model.BucketFailure)
		processed = nil
	}

	bucket, resolved := fc.Resolved()
	if !resolved {
		// Programming-contract violation on the adapter side, not a runtime
		// condition we can classify.
		panic(fmt.Sprintf("gateway %q: processing routine for %s returned without resolving a status bucket",
			gw.Name(), routine.label))
	}

	rd, err := u.refdocs.Resolve(ctx, rec.TxData.ReferenceDocType, rec.TxData.ReferenceDocID)
	if err != nil {
		u.log.Warn().Err(err).Str("record", recordName).Msg("reference document resolution failed; using no-op hooks")
		rd = adapter.NoopReferenceDocument{}
	}

	var hookErr error
	if res, herr := routine.hook(rd, ctx, bucket, fc); herr != nil {
		hookErr = herr
	} else if res != nil {
		processed = &model.Processed{
			GatewayID: rec.GatewayID,
			Message:   res.Message,
			Action:    res.Action,
			Payload:   res.Payload,
		}
	}

	status := bucket.Status()
	failureReason := ""
	if bucket == model.BucketFailure {
		failureReason = gw.RenderFailureMessage(ctx, fc)
	}
	if processed == nil {
		processed = defaultProcessed(rec.GatewayID, routine.label, bucket)
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if bucket == model.BucketSuccess && rec.FlowType == model.FlowTypeMandateAcquisition && rec.MandateID != nil {
			if err := u.mandates.UpdateStatus(ctx, tx, *rec.MandateID, model.MandateStatusActive); err != nil {
				return err
			}
		}
		return u.records.SetProcessed(ctx, tx, rec.Name, status, payload, failureReason, processed)
	})
	if err != nil {
		return nil, err
	}
	rec.Status = status
	rec.SavedResult = processed

	// Outcome-specific notifications run after the classification is durable;
	// their failures are logged, never surfaced.
	switch bucket {
	case model.BucketFailure:
		if err := rd.OnPaymentFailed(ctx, status, failureReason); err != nil {
			u.log.Error().Err(err).Str("record", recordName).Msg("on_payment_failed hook failed")
		}
	case model.BucketPreAuthorized:
		if err := rd.OnPaymentAuthorized(ctx, status); err != nil {
			u.log.Error().Err(err).Str("record", recordName).Msg("on_payment_authorized hook failed")
		}
	}

	u.metrics.FlowProcessed(rec.GatewayID, string(rec.FlowType), string(bucket))
	u.metrics.ProcessingDuration(rec.GatewayID, time.Since(start))

	if hookErr != nil {
		ref := uuid.NewString()
		u.log.Error().Err(hookErr).Str("record", recordName).Str("flow_type", string(rec.FlowType)).
			Str("ref", ref).Msg("reference document hook failed")
		return nil, domain.NewHookError(ref, hookErr)
	}

	u.log.Info().Str("record", recordName).Str("bucket", string(bucket)).Str("status", string(status)).
		Msg("flow response processed")
	return processed, nil
}

func defaultProcessed(gatewayID, label string, bucket model.StatusBucket) *model.Processed {
	var msg string
	switch bucket {
	case model.BucketSuccess:
		msg = fmt.Sprintf("Payment %s succeeded", label)
	case model.BucketPreAuthorized:
		msg = fmt.Sprintf("Payment %s authorized", label)
	case model.BucketProcessing:
		msg = fmt.Sprintf("Payment %s awaiting further processing by the bank", label)
	default:
		msg = fmt.Sprintf("Payment %s failed", label)
	}
	return &model.Processed{
		GatewayID: gatewayID,
		Message:   msg,
		Action:    map[string]string{"redirect_to": "/"},
	}
}
