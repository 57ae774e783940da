// Package rules provides remediation rule definitions and matching.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Rule defines an automated remediation triggered by matching alerts.
type Rule struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description,omitempty"`
	AlertPattern string        `yaml:"alert_pattern" json:"alert_pattern"`
	Severity     string        `yaml:"severity" json:"severity"`
	Actions      []Action      `yaml:"actions" json:"actions"`
	Cooldown     time.Duration `yaml:"cooldown" json:"cooldown"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
}

// Action is a single step of a rule, executed by the external runner.
type Action struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Playbook   string            `yaml:"playbook" json:"playbook"`
	Timeout    time.Duration     `yaml:"timeout" json:"timeout"`
	RetryCount int               `yaml:"retry_count" json:"retry_count"`
	Conditions []string          `yaml:"conditions" json:"conditions,omitempty"`
	Variables  map[string]string `yaml:"variables" json:"variables,omitempty"`
}

// ruleFile is the on-disk document shape: either a bare list or a
// top-level "rules" key.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Registry holds validated rules in declaration order. Read-only after
// load except for the explicit enable/disable operation.
type Registry struct {
	mu     sync.RWMutex
	rules  []*Rule
	byID   map[string]*Rule
	logger *zap.Logger
}

// NewRegistry creates an empty rule registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]*Rule),
		logger: logger,
	}
}

// LoadPath loads rules from a YAML file, or from every .yaml/.yml file
// in a directory (lexical order, so declaration order is stable).
func (r *Registry) LoadPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rules path: %w", err)
	}

	if !info.IsDir() {
		return r.loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("reading rules dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.loadFile(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rule file %s: %w", path, err)
	}
	if err := r.Load(data); err != nil {
		return fmt.Errorf("rule file %s: %w", path, err)
	}
	return nil
}

// Load parses rule YAML and adds every rule it contains.
func (r *Registry) Load(yamlData []byte) error {
	var doc ruleFile
	docErr := yaml.Unmarshal(yamlData, &doc)
	if docErr != nil || doc.Rules == nil {
		// Bare list form.
		var list []Rule
		if listErr := yaml.Unmarshal(yamlData, &list); listErr != nil {
			if docErr != nil {
				return fmt.Errorf("parsing rule YAML: %w", docErr)
			}
			return fmt.Errorf("parsing rule YAML: %w", listErr)
		}
		doc.Rules = list
	}

	for i := range doc.Rules {
		if err := r.Add(doc.Rules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Add validates a rule and appends it to the registry.
func (r *Registry) Add(rule Rule) error {
	if err := validate(rule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[rule.ID]; exists {
		return fmt.Errorf("duplicate rule id: %s", rule.ID)
	}

	stored := rule
	r.rules = append(r.rules, &stored)
	r.byID[rule.ID] = &stored

	r.logger.Info("Rule loaded",
		zap.String("id", rule.ID),
		zap.String("name", rule.Name),
		zap.Int("actions", len(rule.Actions)),
		zap.Bool("enabled", rule.Enabled),
	)
	return nil
}

func validate(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule is missing an id")
	}
	if rule.AlertPattern == "" {
		return fmt.Errorf("rule %s: alert_pattern is required", rule.ID)
	}
	if rule.Severity == "" {
		return fmt.Errorf("rule %s: severity is required", rule.ID)
	}
	if len(rule.Actions) == 0 {
		return fmt.Errorf("rule %s: at least one action is required", rule.ID)
	}
	if rule.Cooldown < 0 {
		return fmt.Errorf("rule %s: cooldown must not be negative", rule.ID)
	}
	for _, action := range rule.Actions {
		if action.ID == "" {
			return fmt.Errorf("rule %s: action is missing an id", rule.ID)
		}
		if action.Playbook == "" {
			return fmt.Errorf("rule %s: action %s: playbook is required", rule.ID, action.ID)
		}
		if action.Timeout <= 0 {
			return fmt.Errorf("rule %s: action %s: timeout must be positive", rule.ID, action.ID)
		}
	}
	return nil
}

// FindMatch returns the first enabled rule (declaration order) whose
// alert pattern is a substring of the alert name and whose severity
// equals the alert severity. Returns nil when nothing matches.
func (r *Registry) FindMatch(alertName, severity string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if !rule.Enabled {
			continue
		}
		if rule.Severity != severity {
			continue
		}
		if strings.Contains(alertName, rule.AlertPattern) {
			matched := *rule
			return &matched
		}
	}
	return nil
}

// Get returns a copy of the rule with the given id.
func (r *Registry) Get(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.byID[id]
	if !ok {
		return Rule{}, false
	}
	return *rule, true
}

// List returns copies of all rules in declaration order.
func (r *Registry) List() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	return out
}

// Count returns the number of loaded rules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// SetEnabled flips a rule's enabled flag.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	rule.Enabled = enabled

	r.logger.Info("Rule toggled",
		zap.String("id", id),
		zap.Bool("enabled", enabled),
	)
	return nil
}
