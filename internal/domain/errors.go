package domain

import "errors"

// ConditionKind tags the closed set of expected, user-actionable failure
// conditions a run can end in. Anything outside this set is reported as an
// unexpected error at the orchestrator boundary.
type ConditionKind int

const (
	KindEligibility ConditionKind = iota
	KindPrecondition
	KindInstall
	KindUpdate
	KindRollbackFailed
	KindAnalysisFailed
	KindRemediation
	KindInventory
	KindUnexpected
)

// String returns the kind name for logging.
func (k ConditionKind) String() string {
	switch k {
	case KindEligibility:
		return "eligibility"
	case KindPrecondition:
		return "precondition"
	case KindInstall:
		return "install"
	case KindUpdate:
		return "update"
	case KindRollbackFailed:
		return "rollback-failed"
	case KindAnalysisFailed:
		return "analysis-failed"
	case KindRemediation:
		return "remediation"
	case KindInventory:
		return "inventory"
	default:
		return "unexpected"
	}
}

// Condition is an expected failure carrying a short operator-facing message
// and a longer diagnostic report. It is caught at the orchestrator boundary
// and converted into the run Verdict; it never escapes the process.
type Condition struct {
	Kind    ConditionKind
	Message string
	Report  string
}

// NewCondition builds a tagged condition.
func NewCondition(kind ConditionKind, message, report string) *Condition {
	return &Condition{Kind: kind, Message: message, Report: report}
}

// Error implements the error interface.
func (c *Condition) Error() string {
	return c.Message
}

// AsCondition unwraps err into a Condition if it is one.
func AsCondition(err error) (*Condition, bool) {
	var cond *Condition
	if errors.As(err, &cond) {
		return cond, true
	}
	return nil, false
}
