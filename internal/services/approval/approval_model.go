package approval

import "time"

// Risk classifies a gated action and drives the decision table: CRITICAL is
// always denied, HIGH is denied unless manual approval is enabled, MEDIUM and
// LOW auto-approve.
type Risk string

const (
	RiskLow      Risk = "LOW"
	RiskMedium   Risk = "MEDIUM"
	RiskHigh     Risk = "HIGH"
	RiskCritical Risk = "CRITICAL"
)

type Status string

const (
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusDenied       Status = "DENIED"
	StatusAutoApproved Status = "AUTO_APPROVED"
)

// Terminal reports whether s is a final status. A request never transitions
// out of a terminal status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusAutoApproved
}

// Request is one risk-gated action awaiting (or having received) a decision.
type Request struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	DetailsJSON string    `json:"details"`
	Risk        Risk      `json:"risk_level"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}
