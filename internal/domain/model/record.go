package model

import "time"

// TxData is the main data interchange format between the reference document
// and the flow controller. It is supplied at initiation and may be amended
// (merged, never replaced) once more via Proceed before capture.
type TxData struct {
	Amount           int64                  `json:"amount"` // minor units, to avoid float errors
	Currency         string                 `json:"currency"`
	ReferenceDocType string                 `json:"reference_doctype"`
	ReferenceDocID   string                 `json:"reference_docname"`
	PayerContact     map[string]interface{} `json:"payer_contact,omitempty"`
	PayerAddress     map[string]interface{} `json:"payer_address,omitempty"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
}

// Merge returns a copy of d with the non-zero fields of patch applied.
// Maps are merged key-wise so later customer choices can refine, not drop,
// earlier data.
func (d TxData) Merge(patch *TxData) TxData {
	out := d
	if patch == nil {
		return out
	}
	if patch.Amount != 0 {
		out.Amount = patch.Amount
	}
	if patch.Currency != "" {
		out.Currency = patch.Currency
	}
	if patch.ReferenceDocType != "" {
		out.ReferenceDocType = patch.ReferenceDocType
	}
	if patch.ReferenceDocID != "" {
		out.ReferenceDocID = patch.ReferenceDocID
	}
	out.PayerContact = mergeMaps(d.PayerContact, patch.PayerContact)
	out.PayerAddress = mergeMaps(d.PayerAddress, patch.PayerAddress)
	out.Meta = mergeMaps(d.Meta, patch.Meta)
	return out
}

func mergeMaps(base, patch map[string]interface{}) map[string]interface{} {
	if patch == nil {
		return base
	}
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// TransactionRecord is the durable anchor of one payment flow. It is created
// by Initiate, mutated by Proceed and ProcessResponse, and never deleted by
// the core (retention is a housekeeping concern).
type TransactionRecord struct {
	Name          string // ULID; the sole handle callers persist
	GatewayID     string // which gateway adapter owns this record
	FlowType      FlowType
	CorrelationID string // gateway-assigned id for out-of-band reconciliation
	Status        FlowStatus
	TxData        TxData
	MandateID     *string

	// Last payloads received from the remote gateway, kept for idempotent
	// replay and post-mortem inspection. Serialized as JSONB.
	InitiationPayload map[string]interface{}
	ProcessingPayload map[string]interface{}

	// SavedResult is the last computed outward-facing result; duplicate
	// ProcessResponse calls replay it instead of recomputing side effects.
	SavedResult *Processed

	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LockKey is the distributed-lock key guarding ProcessResponse for this record.
func (r *TransactionRecord) LockKey() string {
	return "flowlock:" + r.Name
}
