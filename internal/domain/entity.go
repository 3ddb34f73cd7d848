// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

// Severity classifies a run outcome or a single report finding.
// The set is fixed and totally ordered by numeric code.
type Severity string

const (
	SeveritySuccess     Severity = "SUCCESS"
	SeverityInfo        Severity = "INFO"
	SeverityWarning     Severity = "WARNING"
	SeveritySkip        Severity = "SKIP"
	SeverityOverridable Severity = "OVERRIDABLE"
	SeverityError       Severity = "ERROR"
)

// severityCodes mirrors the conversion tool's status codes. Anything above
// SeverityWarning inhibits the conversion and raises an alert.
var severityCodes = map[Severity]int{
	SeveritySuccess:     0,
	SeverityInfo:        25,
	SeverityWarning:     51,
	SeveritySkip:        101,
	SeverityOverridable: 152,
	SeverityError:       202,
}

// Code returns the numeric rank of a severity tier and whether the tier is
// part of the known set.
func (s Severity) Code() (int, bool) {
	code, ok := severityCodes[s]
	return code, ok
}

// Known reports whether s is one of the fixed severity tiers.
func (s Severity) Known() bool {
	_, ok := severityCodes[s]
	return ok
}

// MoreSevereThan compares two known tiers by code.
func (s Severity) MoreSevereThan(other Severity) bool {
	a, _ := s.Code()
	b, _ := other.Code()
	return a > b
}

// DetailContext wraps a free-form diagnostic or remediation text.
type DetailContext struct {
	Context string `json:"context"`
}

// FindingDetail groups remediation and diagnosis contexts of a finding.
type FindingDetail struct {
	Remediations []DetailContext `json:"remediations"`
	Diagnosis    []DetailContext `json:"diagnosis"`
}

// Finding is a single normalized reportable fact derived from the conversion
// tool's report. Records whose original level is SUCCESS are never findings.
type Finding struct {
	Key       string        `json:"key"`
	Title     string        `json:"title"`
	Severity  string        `json:"severity"`
	Summary   string        `json:"summary"`
	Detail    FindingDetail `json:"detail"`
	Modifiers []string      `json:"modifiers"`
}

const (
	tasksFormatVersion = "1.0"
	tasksFormatID      = "oamg-format"
)

// ReportEnvelope is the structured-findings payload attached to a Verdict.
type ReportEnvelope struct {
	TasksFormatVersion string    `json:"tasks_format_version"`
	TasksFormatID      string    `json:"tasks_format_id"`
	Entries            []Finding `json:"entries"`
}

// NewReportEnvelope wraps flattened findings in the fixed format envelope.
func NewReportEnvelope(entries []Finding) *ReportEnvelope {
	return &ReportEnvelope{
		TasksFormatVersion: tasksFormatVersion,
		TasksFormatID:      tasksFormatID,
		Entries:            entries,
	}
}

// Verdict is the single machine-readable result of a run. Exactly one is
// emitted per run regardless of where a failure occurred. Error stays false
// on every path this worker implements; failure signaling happens through
// Status, Alert and Message.
type Verdict struct {
	Status     string          `json:"status"`
	Alert      bool            `json:"alert"`
	Error      bool            `json:"error"`
	Message    string          `json:"message"`
	Report     string          `json:"report"`
	ReportJSON *ReportEnvelope `json:"report_json"`
}

// RequiredFile is one file fetched from a remote source and written to the
// host before the run. Keep is flipped by the orchestrator after a
// non-alerting success; cleanup removes or restores the file otherwise.
type RequiredFile struct {
	Path       string
	Source     string
	SigningKey bool
	Keep       bool
}

// PreserveAction reports what a Preserve call did to a path.
type PreserveAction string

const (
	PreserveRestored PreserveAction = "restored"
	PreserveBackedUp PreserveAction = "backed-up"
	PreserveNone     PreserveAction = "none"
)

// UndoLedger accumulates package-manager transaction ids pending undo. It is
// owned by the orchestrator for the run's lifetime: handles are registered
// after a fresh install, cleared after a confirmed non-alerting success, and
// consumed during cleanup.
type UndoLedger struct {
	transactions []string
}

// Register adds a transaction handle to the pending set.
func (l *UndoLedger) Register(txID string) {
	l.transactions = append(l.transactions, txID)
}

// Clear removes a handle from the pending set so cleanup will not undo it.
func (l *UndoLedger) Clear(txID string) {
	kept := l.transactions[:0]
	for _, id := range l.transactions {
		if id != txID {
			kept = append(kept, id)
		}
	}
	l.transactions = kept
}

// Pending returns the handles still awaiting undo.
func (l *UndoLedger) Pending() []string {
	return l.transactions
}
