// Package report reconciles the conversion tool's structured and free-text
// output into a severity-ranked finding list. The report schema is owned by
// the external tool; this package only consumes it, and malformed content
// degrades to an empty result rather than failing the run.
package report

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// RawMessage is one result or message record as emitted by the tool.
type RawMessage struct {
	ID           string `json:"id"`
	Level        string `json:"level"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Diagnosis    string `json:"diagnosis"`
	Remediation  string `json:"remediation"`
	Remediations string `json:"remediations"`
}

// Action groups the tool's per-action result and messages.
type Action struct {
	Result   RawMessage   `json:"result"`
	Messages []RawMessage `json:"messages"`
}

// Report is the tool's structured pre-conversion analysis.
type Report struct {
	Actions map[string]Action `json:"actions"`
}

// Load reads the structured report at path. A missing, empty or unparseable
// file yields a zero report: there is nothing to reconcile, which the
// orchestrator does not treat as an error.
func Load(path string) Report {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return Report{}
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return Report{}
	}
	return rep
}

// LoadText reads the free-text report used as a fallback when no structured
// findings can be attached. A missing file yields an empty string.
func LoadText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// HighestSeverity collects every result-level and message-level value across
// all actions, discards unknown tiers and returns the most severe one. The
// boolean is false when no known tier is present.
func HighestSeverity(actions map[string]Action) (domain.Severity, bool) {
	var highest domain.Severity
	found := false

	consider := func(level string) {
		sev := domain.Severity(level)
		if !sev.Known() {
			return
		}
		if !found || sev.MoreSevereThan(highest) {
			highest = sev
			found = true
		}
	}

	for _, action := range actions {
		consider(action.Result.Level)
		for _, msg := range action.Messages {
			consider(msg.Level)
		}
	}
	return highest, found
}

// TransformMessage maps one raw record into a Finding. Records at the lowest
// tier (SUCCESS) are not issues and are dropped; ok is false for those.
func TransformMessage(msg RawMessage, actionID string) (domain.Finding, bool) {
	if msg.Level == string(domain.SeveritySuccess) {
		return domain.Finding{}, false
	}

	remediation := msg.Remediations
	if remediation == "" {
		remediation = msg.Remediation
	}

	return domain.Finding{
		Key:      actionID + "::" + msg.ID,
		Title:    msg.Title,
		Severity: msg.Level,
		Summary:  msg.Description,
		Detail: domain.FindingDetail{
			Remediations: []domain.DetailContext{{Context: remediation}},
			Diagnosis:    []domain.DetailContext{{Context: msg.Diagnosis}},
		},
		Modifiers: []string{},
	}, true
}

// Flatten turns every action's messages and result into a uniform finding
// list, excluding dropped records. Actions are visited in sorted id order so
// the output is deterministic.
func Flatten(actions map[string]Action) []domain.Finding {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	findings := make([]domain.Finding, 0, len(actions))
	for _, id := range ids {
		action := actions[id]
		for _, msg := range action.Messages {
			if finding, ok := TransformMessage(msg, id); ok {
				findings = append(findings, finding)
			}
		}
		if finding, ok := TransformMessage(action.Result, id); ok {
			findings = append(findings, finding)
		}
	}
	return findings
}
