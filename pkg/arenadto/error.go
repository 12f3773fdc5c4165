package arenadto

// Error codes surfaced to clients. Validation codes are returned synchronously,
// gating codes carry a remediation hint rendered from the message catalog.
const (
	CodeInsufficientPractice = "INSUFFICIENT_PRACTICE"
	CodeTiltProtection       = "TILT_PROTECTION"
	CodeAlreadyInQueue       = "ALREADY_IN_QUEUE"
	CodeNotInQueue           = "NOT_IN_QUEUE"
	CodeNotInMatch           = "NOT_IN_MATCH"
	CodeAlreadyAnswered      = "ALREADY_ANSWERED"
	CodeNoActiveQuestion     = "NO_ACTIVE_QUESTION"
	CodeMatchFinished        = "MATCH_FINISHED"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena service error"
}

// Remediation carries the machine-readable hint attached to a gating rejection.
type Remediation struct {
	SessionsNeeded int    `json:"sessions_needed,omitempty"`
	BreakMinutes   int    `json:"break_minutes,omitempty"`
	Hint           string `json:"hint,omitempty"`
}

// GateError is a gating rejection: a DomainError plus remediation.
type GateError struct {
	DomainError
	Remediation Remediation
}
