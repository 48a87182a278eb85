package model

import "time"

type MandateStatus string

const (
	MandateStatusPending MandateStatus = "pending" // created, acquisition not confirmed yet
	MandateStatusActive  MandateStatus = "active"  // confirmed by the gateway, chargeable
	MandateStatusRevoked MandateStatus = "revoked"
)

// Mandate is a reusable, gateway-issued payment authorization such as a
// stored card token or a SEPA mandate. The core only stores a reference and
// lets the gateway adapter interpret Token.
type Mandate struct {
	ID        string // UUID
	GatewayID string
	PayerRef  string // gateway-scoped payer identity (e.g. customer id or contact email)
	Token     string // opaque gateway token backing the mandate
	Status    MandateStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Mandate) Chargeable() bool {
	return m != nil && m.Status == MandateStatusActive
}
