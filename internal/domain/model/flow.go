package model

// FlowType distinguishes the three distinct flow shapes. They may be chained
// into a composed flow by the business logic, for example a mandate
// acquisition can precede a mandated charge.
type FlowType string

const (
	FlowTypeCharge             FlowType = "charge"
	FlowTypeMandatedCharge     FlowType = "mandated_charge"
	FlowTypeMandateAcquisition FlowType = "mandate_acquisition"
)

func (t FlowType) Valid() bool {
	switch t {
	case FlowTypeCharge, FlowTypeMandatedCharge, FlowTypeMandateAcquisition:
		return true
	}
	return false
}

// FlowStatus drives the record's finite-state machine.
type FlowStatus string

const (
	FlowStatusInitiated  FlowStatus = "Initiated" // record created, nothing remote yet
	FlowStatusQueued     FlowStatus = "Queued"    // durable before the initiation call; retryable
	FlowStatusAuthorized FlowStatus = "Authorized"
	FlowStatusWaiting    FlowStatus = "Waiting"
	FlowStatusCompleted  FlowStatus = "Completed"
	FlowStatusFailed     FlowStatus = "Failed"
)

// Terminal reports whether no further transition is legal.
func (s FlowStatus) Terminal() bool {
	return s == FlowStatusCompleted || s == FlowStatusFailed
}

// legal edges; no transition skips Queued.
var flowEdges = map[FlowStatus][]FlowStatus{
	FlowStatusInitiated:  {FlowStatusQueued},
	FlowStatusQueued:     {FlowStatusQueued, FlowStatusAuthorized, FlowStatusWaiting, FlowStatusCompleted, FlowStatusFailed},
	FlowStatusAuthorized: {FlowStatusCompleted, FlowStatusFailed},
	FlowStatusWaiting:    {FlowStatusAuthorized, FlowStatusWaiting, FlowStatusCompleted, FlowStatusFailed},
}

// CanTransition reports whether the edge s -> next is part of the documented
// state machine.
func (s FlowStatus) CanTransition(next FlowStatus) bool {
	for _, t := range flowEdges[s] {
		if t == next {
			return true
		}
	}
	return false
}

// StatusesLeadingTo lists every status with a legal edge into next. Repos use
// it as the from-set of guarded status updates.
func StatusesLeadingTo(next FlowStatus) []FlowStatus {
	sources := []FlowStatus{FlowStatusInitiated, FlowStatusQueued, FlowStatusAuthorized, FlowStatusWaiting}
	var out []FlowStatus
	for _, from := range sources {
		if from.CanTransition(next) {
			out = append(out, from)
		}
	}
	return out
}

// StatusBucket is the mandatory outcome classification every processing
// routine must resolve to exactly once.
type StatusBucket string

const (
	BucketSuccess       StatusBucket = "success"
	BucketPreAuthorized StatusBucket = "pre_authorized"
	BucketProcessing    StatusBucket = "processing"
	BucketFailure       StatusBucket = "failure"
)

// Status maps a bucket to the record status it commits.
func (b StatusBucket) Status() FlowStatus {
	switch b {
	case BucketSuccess:
		return FlowStatusCompleted
	case BucketPreAuthorized:
		return FlowStatusAuthorized
	case BucketProcessing:
		return FlowStatusWaiting
	default:
		return FlowStatusFailed
	}
}
