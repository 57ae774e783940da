package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/cooldown"
	"github.com/lvonguyen/remedyd/internal/observability"
	"github.com/lvonguyen/remedyd/internal/rules"
	"github.com/lvonguyen/remedyd/internal/runner"
)

// ActionRunner executes one remediation action.
type ActionRunner interface {
	Run(ctx context.Context, action rules.Action) runner.Result
}

// Exporter receives completed records for best-effort audit export.
type Exporter interface {
	Submit(doc map[string]any)
}

// Outcome is the result of processing one alert.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeCooldown Outcome = "cooldown"
)

// Orchestrator matches alerts to rules and drives remediation attempts.
// Each accepted alert gets its own execution unit; acceptance never
// blocks on execution.
type Orchestrator struct {
	registry *rules.Registry
	tracker  cooldown.Tracker
	runner   ActionRunner
	store    *Store
	exporter Exporter               // nil disables export
	metrics  *observability.Metrics // nil disables metrics
	logger   *zap.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator wires the orchestrator. maxConcurrent caps concurrently
// executing attempts; values below 1 fall back to 1.
func NewOrchestrator(
	registry *rules.Registry,
	tracker cooldown.Tracker,
	actionRunner ActionRunner,
	store *Store,
	exporter Exporter,
	metrics *observability.Metrics,
	logger *zap.Logger,
	maxConcurrent int,
) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		registry: registry,
		tracker:  tracker,
		runner:   actionRunner,
		store:    store,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		sem:      make(chan struct{}, maxConcurrent),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Store returns the record store.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// ProcessAlert matches one alert against the rule set. When a rule
// matches and its cooldown has elapsed, a record is created and an
// execution unit is scheduled; the record id is returned immediately.
// No match and an active cooldown are expected outcomes, not errors.
func (o *Orchestrator) ProcessAlert(ctx context.Context, alert Alert) (string, Outcome) {
	if o.metrics != nil {
		o.metrics.AlertsReceived.Inc()
	}

	rule := o.registry.FindMatch(alert.Name, alert.Severity())
	if rule == nil {
		o.logger.Info("No rule matched alert",
			zap.String("alertname", alert.Name),
			zap.String("severity", alert.Severity()),
		)
		o.countOutcome(OutcomeNoMatch)
		return "", OutcomeNoMatch
	}

	if !o.tracker.Acquire(ctx, rule.ID, rule.Cooldown) {
		o.logger.Info("Skipped remediation, cooldown active",
			zap.String("rule_id", rule.ID),
			zap.String("alertname", alert.Name),
		)
		o.countOutcome(OutcomeCooldown)
		return "", OutcomeCooldown
	}

	rec := newRecord(rule.ID, alert)
	o.store.add(rec)

	// Execution is detached from the request context: acceptance is
	// fire-and-forget. The context exists so an explicit abort can
	// reach the execution unit.
	execCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[rec.id] = cancel
	o.mu.Unlock()

	o.logger.Info("Remediation scheduled",
		zap.String("record_id", rec.id),
		zap.String("rule_id", rule.ID),
		zap.String("alertname", alert.Name),
	)
	o.countOutcome(OutcomeCreated)

	o.wg.Add(1)
	go o.execute(execCtx, rec, *rule)

	return rec.id, OutcomeCreated
}

// Abort requests cancellation of a scheduled or running record. The
// execution unit observes the request between actions; a running action
// process is killed through its context.
func (o *Orchestrator) Abort(recordID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[recordID]
	o.mu.Unlock()

	if !ok {
		if _, exists := o.store.Get(recordID); exists {
			return fmt.Errorf("record %s already completed", recordID)
		}
		return fmt.Errorf("record not found: %s", recordID)
	}
	cancel()
	return nil
}

// Wait blocks until all in-flight execution units finish. Used at
// shutdown; completion is bounded by the per-action timeouts.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// execute is the execution-unit body. It is the failure-containment
// boundary: nothing escapes it except the record's final state.
func (o *Orchestrator) execute(ctx context.Context, rec *Record, rule rules.Rule) {
	defer o.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			rec.complete(StatusFailed, fmt.Sprintf("internal error: %v", p))
		}
		o.finish(rec)
	}()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		rec.appendLog("control: aborted before execution started")
		rec.complete(StatusCancelled, "")
		return
	}

	rec.markRunning()
	if o.metrics != nil {
		o.metrics.RunningRecords.Inc()
		defer o.metrics.RunningRecords.Dec()
	}

	for _, action := range rule.Actions {
		if ctx.Err() != nil {
			rec.appendLog(fmt.Sprintf("control: abort requested, stopping before action %s", action.ID))
			rec.complete(StatusCancelled, "")
			return
		}

		res := o.runner.Run(ctx, action)
		for _, line := range res.Lines {
			rec.appendLog(line)
		}
		if o.metrics != nil {
			o.metrics.ActionDuration.WithLabelValues(rule.ID, action.ID).Observe(res.Duration.Seconds())
		}

		if res.OK {
			rec.appendAction(action.ID)
			rec.appendLog(fmt.Sprintf("control: action %s completed in %s", action.ID, res.Duration.Round(time.Millisecond)))
			continue
		}

		if ctx.Err() != nil && !res.TimedOut {
			rec.appendLog(fmt.Sprintf("control: abort requested during action %s", action.ID))
			rec.complete(StatusCancelled, "")
			return
		}

		rec.appendLog(fmt.Sprintf("control: action %s failed, stopping", action.ID))
		if action.RetryCount > 0 {
			// The retry budget is carried on the action definition but
			// no retry loop exists; a failed action always ends the
			// sequence.
			rec.appendLog(fmt.Sprintf("control: action %s retry budget %d not consumed, retries are not implemented", action.ID, action.RetryCount))
		}
		break
	}

	if rec.actionCount() == len(rule.Actions) {
		rec.complete(StatusSuccess, "")
	} else {
		rec.complete(StatusFailed, "")
	}
}

// finish runs exactly once per record regardless of exit path: it
// releases the abort handle, updates metrics and hands the completed
// record to the audit exporter.
func (o *Orchestrator) finish(rec *Record) {
	o.mu.Lock()
	if cancel, ok := o.cancels[rec.id]; ok {
		cancel()
		delete(o.cancels, rec.id)
	}
	o.mu.Unlock()

	view := rec.Snapshot()

	if o.metrics != nil {
		o.metrics.RecordsTotal.WithLabelValues(view.RuleID, string(view.Status)).Inc()
	}

	o.logger.Info("Remediation finished",
		zap.String("record_id", view.ID),
		zap.String("rule_id", view.RuleID),
		zap.String("status", string(view.Status)),
		zap.Float64("duration_seconds", view.DurationSeconds),
		zap.Int("actions_executed", len(view.ActionsExecuted)),
	)

	if o.exporter != nil {
		o.exporter.Submit(view.AuditDocument())
	}
}

func (o *Orchestrator) countOutcome(outcome Outcome) {
	if o.metrics != nil {
		o.metrics.AlertOutcomes.WithLabelValues(string(outcome)).Inc()
	}
}

// StatusSummary is the operational snapshot served by the status
// endpoint.
type StatusSummary struct {
	RulesLoaded  int                  `json:"rules_loaded"`
	RunningCount int                  `json:"running_count"`
	TotalRecords int                  `json:"total_records"`
	SuccessRate  float64              `json:"success_rate"`
	LastFired    map[string]time.Time `json:"last_fired,omitempty"`
}

// Status derives the current summary. SuccessRate is 0 when no records
// exist.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	running, total, byStatus := o.store.Counts()

	summary := StatusSummary{
		RulesLoaded:  o.registry.Count(),
		RunningCount: running,
		TotalRecords: total,
		LastFired:    make(map[string]time.Time),
	}
	if total > 0 {
		summary.SuccessRate = float64(byStatus[StatusSuccess]) / float64(total)
	}
	for _, rule := range o.registry.List() {
		if last, ok := o.tracker.LastFired(ctx, rule.ID); ok {
			summary.LastFired[rule.ID] = last
		}
	}
	return summary
}
