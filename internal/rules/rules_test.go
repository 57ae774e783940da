package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testRule(id, pattern, severity string, enabled bool) Rule {
	return Rule{
		ID:           id,
		Name:         id,
		AlertPattern: pattern,
		Severity:     severity,
		Enabled:      enabled,
		Cooldown:     time.Minute,
		Actions: []Action{
			{ID: id + "-a1", Name: "action", Playbook: "playbooks/fix.yml", Timeout: time.Minute},
		},
	}
}

func newTestRegistry(t *testing.T, rules ...Rule) *Registry {
	t.Helper()
	r := NewRegistry(zap.NewNop())
	for _, rule := range rules {
		if err := r.Add(rule); err != nil {
			t.Fatalf("Add(%s): %v", rule.ID, err)
		}
	}
	return r
}

func TestFindMatch_SubstringAndSeverity(t *testing.T) {
	r := newTestRegistry(t, testRule("cpu", "HighCPU", "warning", true))

	tests := []struct {
		name      string
		alertName string
		severity  string
		wantID    string
	}{
		{"exact name", "HighCPU", "warning", "cpu"},
		{"substring match", "NodeHighCPUUsage", "warning", "cpu"},
		{"wrong severity", "HighCPU", "critical", ""},
		{"severity is case sensitive", "HighCPU", "Warning", ""},
		{"pattern not contained", "HighMemory", "warning", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindMatch(tt.alertName, tt.severity)
			if tt.wantID == "" {
				if got != nil {
					t.Fatalf("expected no match, got %s", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected match %s, got none", tt.wantID)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected %s, got %s", tt.wantID, got.ID)
			}
		})
	}
}

func TestFindMatch_DeclarationOrderWins(t *testing.T) {
	r := newTestRegistry(t,
		testRule("first", "CPU", "warning", true),
		testRule("second", "HighCPU", "warning", true),
	)

	got := r.FindMatch("HighCPU", "warning")
	if got == nil || got.ID != "first" {
		t.Fatalf("expected first declared rule to win, got %v", got)
	}
}

func TestFindMatch_SkipsDisabledRules(t *testing.T) {
	r := newTestRegistry(t,
		testRule("disabled", "HighCPU", "warning", false),
		testRule("enabled", "HighCPU", "warning", true),
	)

	got := r.FindMatch("HighCPU", "warning")
	if got == nil || got.ID != "enabled" {
		t.Fatalf("expected disabled rule to be skipped, got %v", got)
	}
}

func TestFindMatch_Idempotent(t *testing.T) {
	r := newTestRegistry(t,
		testRule("a", "HighCPU", "warning", true),
		testRule("b", "CPU", "warning", true),
	)

	first := r.FindMatch("HighCPU", "warning")
	second := r.FindMatch("HighCPU", "warning")
	if first == nil || second == nil || first.ID != second.ID {
		t.Fatalf("matching is not idempotent: %v vs %v", first, second)
	}
}

func TestSetEnabled(t *testing.T) {
	r := newTestRegistry(t, testRule("cpu", "HighCPU", "warning", true))

	if err := r.SetEnabled("cpu", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := r.FindMatch("HighCPU", "warning"); got != nil {
		t.Errorf("disabled rule should not match, got %s", got.ID)
	}

	if err := r.SetEnabled("cpu", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := r.FindMatch("HighCPU", "warning"); got == nil {
		t.Error("re-enabled rule should match")
	}

	if err := r.SetEnabled("missing", true); err == nil {
		t.Error("expected error for unknown rule id")
	}
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t, testRule("cpu", "HighCPU", "warning", true))

	err := r.Add(testRule("cpu", "HighMem", "warning", true))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestAdd_Validation(t *testing.T) {
	valid := testRule("ok", "HighCPU", "warning", true)

	tests := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"missing id", func(r *Rule) { r.ID = "" }},
		{"missing pattern", func(r *Rule) { r.AlertPattern = "" }},
		{"missing severity", func(r *Rule) { r.Severity = "" }},
		{"no actions", func(r *Rule) { r.Actions = nil }},
		{"negative cooldown", func(r *Rule) { r.Cooldown = -time.Second }},
		{"action without id", func(r *Rule) { r.Actions[0].ID = "" }},
		{"action without playbook", func(r *Rule) { r.Actions[0].Playbook = "" }},
		{"action without timeout", func(r *Rule) { r.Actions[0].Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			rule.Actions = append([]Action(nil), valid.Actions...)
			tt.mutate(&rule)

			r := NewRegistry(zap.NewNop())
			if err := r.Add(rule); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

const ruleYAML = `
rules:
  - id: high-cpu
    name: Restart on high CPU
    alert_pattern: HighCPU
    severity: warning
    cooldown: 5m
    enabled: true
    actions:
      - id: restart
        name: Restart service
        playbook: playbooks/restart.yml
        timeout: 2m
        retry_count: 0
        variables:
          service: app
`

func TestLoad_RulesDocument(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if err := r.Load([]byte(ruleYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rule, ok := r.Get("high-cpu")
	if !ok {
		t.Fatal("rule not found after load")
	}
	if rule.Cooldown != 5*time.Minute {
		t.Errorf("expected cooldown 5m, got %s", rule.Cooldown)
	}
	if len(rule.Actions) != 1 || rule.Actions[0].Variables["service"] != "app" {
		t.Errorf("action not parsed correctly: %+v", rule.Actions)
	}
}

func TestLoad_BareListDocument(t *testing.T) {
	bare := `
- id: bare
  name: Bare list rule
  alert_pattern: DiskFull
  severity: critical
  cooldown: 1m
  enabled: true
  actions:
    - id: clean
      name: Clean
      playbook: playbooks/clean.yml
      timeout: 1m
`
	r := NewRegistry(zap.NewNop())
	if err := r.Load([]byte(bare)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 rule, got %d", r.Count())
	}
}

func TestLoadPath_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(ruleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a rule"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(zap.NewNop())
	if err := r.LoadPath(dir); err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 rule, got %d", r.Count())
	}
}

func TestLoadPath_MissingPath(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if err := r.LoadPath(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}
