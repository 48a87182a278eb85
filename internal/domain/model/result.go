package model

// Initiated is returned by a gateway adapter flow initiation. CorrelationID
// is stored on the record to correlate remote and local requests; Payload is
// opaque to the core and handed to the caller for user-facing continuation
// (redirect URL, embedded form token, ...).
type Initiated struct {
	CorrelationID string                 `json:"correlation_id"`
	Payload       map[string]interface{} `json:"payload"`
}

// Proceeded is the return value of a Proceed call.
type Proceeded struct {
	GatewayID string                 `json:"gateway_id"`
	FlowType  FlowType               `json:"flow_type"`
	Mandate   *Mandate               `json:"mandate,omitempty"`
	TxData    TxData                 `json:"tx_data"`
	Payload   map[string]interface{} `json:"payload"`
}

// Processed is the outward result of processing a gateway response. It is
// persisted on the record as SavedResult so racing duplicate calls observe
// the original outcome.
type Processed struct {
	GatewayID string                 `json:"gateway_id"`
	Message   string                 `json:"message"`
	Action    map[string]string      `json:"action"` // understood by the calling flow, e.g. {"redirect_to": "/"}
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
