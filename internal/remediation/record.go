// Package remediation drives automated remediation attempts: matching
// alerts to rules, executing each rule's ordered actions and keeping the
// audit trail of every attempt.
package remediation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a remediation attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusTimeout is a declared terminal state that the executor never
	// assigns: an action timing out is treated as an ordinary action
	// failure and the record terminates as failed. Kept for wire
	// compatibility with rule tooling that knows the full state set.
	StatusTimeout Status = "timeout"
	// StatusCancelled is reachable only through an explicit abort,
	// never through normal execution.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Alert is one alert event delivered by the monitoring pipeline. The
// full payload is kept opaque; only the name and labels are interpreted.
type Alert struct {
	Name    string
	Labels  map[string]string
	payload map[string]any
}

// NewAlert builds an alert from its interpreted parts. Used by tests and
// internal callers; webhook alerts arrive via UnmarshalJSON.
func NewAlert(name string, labels map[string]string) Alert {
	payload := map[string]any{"alertname": name}
	if len(labels) > 0 {
		labelsAny := make(map[string]any, len(labels))
		for k, v := range labels {
			labelsAny[k] = v
		}
		payload["labels"] = labelsAny
	}
	return Alert{Name: name, Labels: labels, payload: payload}
}

// UnmarshalJSON keeps the raw payload while pulling out the alert name
// and labels.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.payload = raw
	a.Labels = make(map[string]string)

	if name, ok := raw["alertname"].(string); ok {
		a.Name = name
	}
	if labels, ok := raw["labels"].(map[string]any); ok {
		for k, v := range labels {
			if s, ok := v.(string); ok {
				a.Labels[k] = s
			}
		}
	}
	return nil
}

// Severity returns the alert's severity label.
func (a Alert) Severity() string {
	return a.Labels["severity"]
}

// Payload returns the opaque alert payload.
func (a Alert) Payload() map[string]any {
	if a.payload == nil {
		return NewAlert(a.Name, a.Labels).payload
	}
	return a.payload
}

// Record is one remediation attempt. It is created by the orchestrator,
// mutated only by the execution unit that owns it, and read concurrently
// by the HTTP surface through Snapshot.
type Record struct {
	mu sync.Mutex

	id              string
	ruleID          string
	alert           map[string]any
	status          Status
	createdAt       time.Time
	completedAt     *time.Time
	duration        time.Duration
	actionsExecuted []string
	log             []string
	err             string
}

func newRecord(ruleID string, alert Alert) *Record {
	now := time.Now()
	return &Record{
		id:        fmt.Sprintf("%s-%d", ruleID, now.UnixNano()),
		ruleID:    ruleID,
		alert:     alert.Payload(),
		status:    StatusPending,
		createdAt: now,
	}
}

// ID returns the record identifier.
func (r *Record) ID() string {
	return r.id
}

func (r *Record) appendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, line)
}

func (r *Record) appendAction(actionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionsExecuted = append(r.actionsExecuted, actionID)
}

func (r *Record) actionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actionsExecuted)
}

func (r *Record) markRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusPending {
		r.status = StatusRunning
	}
}

// complete moves the record to a terminal status exactly once. Later
// calls are no-ops, so a panic after normal completion cannot rewrite
// the outcome.
func (r *Record) complete(status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return
	}
	now := time.Now()
	r.status = status
	r.completedAt = &now
	r.duration = now.Sub(r.createdAt)
	if errMsg != "" {
		r.err = errMsg
	}
}

// RecordView is an immutable copy of a record for the HTTP surface and
// the audit exporter.
type RecordView struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"rule_id"`
	Alert           map[string]any `json:"alert"`
	Status          Status         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	ActionsExecuted []string       `json:"actions_executed"`
	Log             []string       `json:"log"`
	Error           string         `json:"error,omitempty"`
}

// Snapshot returns a copy safe for concurrent use.
func (r *Record) Snapshot() RecordView {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := RecordView{
		ID:              r.id,
		RuleID:          r.ruleID,
		Alert:           r.alert,
		Status:          r.status,
		CreatedAt:       r.createdAt,
		DurationSeconds: r.duration.Seconds(),
		ActionsExecuted: append([]string(nil), r.actionsExecuted...),
		Log:             append([]string(nil), r.log...),
		Error:           r.err,
	}
	if r.completedAt != nil {
		completed := *r.completedAt
		view.CompletedAt = &completed
	}
	return view
}

// AuditDocument flattens the record into one document for the audit
// sink, with an explicit timestamp field.
func (v RecordView) AuditDocument() map[string]any {
	doc := map[string]any{
		"@timestamp":       time.Now().UTC().Format(time.RFC3339),
		"record_id":        v.ID,
		"rule_id":          v.RuleID,
		"status":           string(v.Status),
		"alert":            v.Alert,
		"created_at":       v.CreatedAt.UTC().Format(time.RFC3339),
		"duration_seconds": v.DurationSeconds,
		"actions_executed": v.ActionsExecuted,
		"log":              v.Log,
	}
	if v.CompletedAt != nil {
		doc["completed_at"] = v.CompletedAt.UTC().Format(time.RFC3339)
	}
	if v.Error != "" {
		doc["error"] = v.Error
	}
	return doc
}
