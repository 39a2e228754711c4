package safety

// Flag identifies the category of a failed safety check.
type Flag string

const (
	FlagPII             Flag = "PII"
	FlagInjection       Flag = "INJECTION"
	FlagPolicyViolation Flag = "POLICY_VIOLATION"
)

// Verdict is the outcome of a single safety check. It is immutable and
// short-lived; callers branch on Safe and surface Reason without echoing the
// offending content back to the user.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
	Flag   Flag   `json:"flag,omitempty"`
}

// Allow returns a passing verdict.
func Allow() Verdict {
	return Verdict{Safe: true}
}

// Reject returns a failing verdict with the given flag and reason.
func Reject(flag Flag, reason string) Verdict {
	return Verdict{Safe: false, Flag: flag, Reason: reason}
}
