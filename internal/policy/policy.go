// Package policy loads the governance rule tables: role capabilities,
// content scan patterns, scoring weights, and routing thresholds.
// Tables are immutable after load; a reload builds a new Table wholesale
// rather than mutating one in place.
package policy

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/govgate-protocol/govgate/internal/models"
)

// Role describes what a sender role is permitted to do.
type Role struct {
	AllowedTypes []models.MessageType `yaml:"allowed_types"`
	MaxPriority  models.Priority      `yaml:"max_priority"`
}

// Weights are the impact-factor weights. Defaults sum to 1.0.
type Weights struct {
	Semantic   float64 `yaml:"semantic"`
	Permission float64 `yaml:"permission"`
	Volume     float64 `yaml:"volume"`
	Context    float64 `yaml:"context"`
	Drift      float64 `yaml:"drift"`
	Priority   float64 `yaml:"priority"`
	Type       float64 `yaml:"type"`
}

// Threshold bounds the adaptive routing threshold and its learning steps.
type Threshold struct {
	Initial  float64 `yaml:"initial"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	StepUp   float64 `yaml:"step_up"`
	StepDown float64 `yaml:"step_down"`
}

// BusinessHours is the inclusive-start, exclusive-end on-hours window in UTC.
type BusinessHours struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// file is the on-disk YAML shape.
type file struct {
	Roles             map[string]Role    `yaml:"roles"`
	AgentRoles        map[string]string  `yaml:"agent_roles"`
	InjectionPatterns []string           `yaml:"injection_patterns"`
	PIIPatterns       []string           `yaml:"pii_patterns"`
	Weights           *Weights           `yaml:"weights"`
	Threshold         *Threshold         `yaml:"threshold"`
	BusinessHours     *BusinessHours     `yaml:"business_hours"`
	CapabilityRisk    map[string]float64 `yaml:"capability_risk"`
	AmountThresholds  map[string]float64 `yaml:"amount_thresholds"`
	HighImpactTerms   map[string]float64 `yaml:"high_impact_terms"`
	AlwaysDeliberate  []string           `yaml:"always_deliberate"`
	AlwaysVote        []string           `yaml:"always_vote"`
	BurstThreshold    int                `yaml:"burst_threshold"`
}

// Table is the compiled, immutable policy set shared by the pipeline.
type Table struct {
	Roles             map[string]Role
	AgentRoles        map[string]string
	InjectionPatterns []*regexp.Regexp
	PIIPatterns       []*regexp.Regexp
	Weights           Weights
	Threshold         Threshold
	BusinessHours     BusinessHours
	CapabilityRisk    map[string]float64
	AmountThresholds  map[string]float64
	HighImpactTerms   map[string]float64
	AlwaysDeliberate  map[string]bool
	AlwaysVote        map[string]bool
	BurstThreshold    int
}

// RoleFor resolves an agent id to its role name, or "" if unregistered.
func (t *Table) RoleFor(agentID string) string {
	return t.AgentRoles[agentID]
}

// Allows reports whether role may send messages of type mt.
func (t *Table) Allows(role string, mt models.MessageType) bool {
	r, ok := t.Roles[role]
	if !ok {
		return false
	}
	for _, allowed := range r.AllowedTypes {
		if allowed == mt {
			return true
		}
	}
	return false
}

// OffHours reports whether hour (UTC) falls outside the business window.
func (t *Table) OffHours(hour int) bool {
	return hour < t.BusinessHours.StartHour || hour >= t.BusinessHours.EndHour
}

// Default returns the built-in policy table used when no file is configured.
func Default() *Table {
	t, err := compile(defaults())
	if err != nil {
		panic("default policy table failed to compile: " + err.Error())
	}
	return t
}

// Load reads a YAML policy file and compiles it over the defaults.
// Missing sections fall back to built-in values.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	f := defaults()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	return compile(f)
}

func defaults() file {
	w := Weights{
		Semantic:   0.25,
		Permission: 0.20,
		Volume:     0.10,
		Context:    0.10,
		Drift:      0.10,
		Priority:   0.15,
		Type:       0.10,
	}
	th := Threshold{Initial: 0.8, Min: 0.5, Max: 0.98, StepUp: 0.01, StepDown: 0.02}
	return file{
		Roles: map[string]Role{
			"orchestrator": {
				AllowedTypes: []models.MessageType{
					models.TypeCommand, models.TypeQuery, models.TypeResponse,
					models.TypeEvent, models.TypeNotification, models.TypeHeartbeat,
					models.TypeGovernanceRequest, models.TypeGovernanceResponse,
					models.TypeConstitutionalValidation,
					models.TypeTaskRequest, models.TypeTaskResponse,
				},
				MaxPriority: models.PriorityCritical,
			},
			"worker": {
				AllowedTypes: []models.MessageType{
					models.TypeQuery, models.TypeResponse, models.TypeEvent,
					models.TypeNotification, models.TypeHeartbeat,
					models.TypeTaskRequest, models.TypeTaskResponse,
				},
				MaxPriority: models.PriorityHigh,
			},
			"observer": {
				AllowedTypes: []models.MessageType{
					models.TypeQuery, models.TypeHeartbeat, models.TypeEvent,
				},
				MaxPriority: models.PriorityNormal,
			},
		},
		AgentRoles: map[string]string{},
		InjectionPatterns: []string{
			`(?i)ignore\s+(all\s+)?previous\s+instructions`,
			`(?i)disregard\s+(your|the)\s+(system\s+)?prompt`,
			`(?i);\s*(drop|delete|truncate)\s+table`,
			`(?i)union\s+select\s`,
			`(?i)<script[\s>]`,
			`(?i)javascript:`,
			`\{\{.*\}\}`,
			`(?i)\beval\s*\(`,
		},
		PIIPatterns: []string{
			`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
			`\b\d{3}-\d{2}-\d{4}\b`,
			`\b(?:\d[ \-]*?){13,16}\b`,
			`\+?[0-9][0-9\-\s]{7,}[0-9]`,
		},
		Weights:       &w,
		Threshold:     &th,
		BusinessHours: &BusinessHours{StartHour: 8, EndHour: 18},
		CapabilityRisk: map[string]float64{
			"admin":    1.0,
			"delete":   1.0,
			"transfer": 1.0,
			"deploy":   0.8,
			"write":    0.6,
			"execute":  0.6,
			"read":     0.2,
			"list":     0.1,
		},
		AmountThresholds: map[string]float64{
			"amount":             1000,
			"transaction_amount": 1000,
			"budget":             5000,
		},
		HighImpactTerms: map[string]float64{
			"delete":       0.9,
			"drop":         0.9,
			"transfer":     0.9,
			"payment":      0.8,
			"wire":         0.8,
			"credential":   0.8,
			"password":     0.8,
			"secret":       0.8,
			"production":   0.7,
			"deploy":       0.7,
			"irreversible": 0.9,
			"shutdown":     0.7,
		},
		AlwaysDeliberate: []string{
			string(models.TypeGovernanceRequest),
			string(models.TypeConstitutionalValidation),
		},
		AlwaysVote: []string{
			"delete_all", "transfer_funds", "rotate_root_credentials",
		},
		BurstThreshold: 100,
	}
}

func compile(f file) (*Table, error) {
	t := &Table{
		Roles:            f.Roles,
		AgentRoles:       f.AgentRoles,
		Weights:          *f.Weights,
		Threshold:        *f.Threshold,
		BusinessHours:    *f.BusinessHours,
		CapabilityRisk:   f.CapabilityRisk,
		AmountThresholds: f.AmountThresholds,
		HighImpactTerms:  f.HighImpactTerms,
		AlwaysDeliberate: map[string]bool{},
		AlwaysVote:       map[string]bool{},
		BurstThreshold:   f.BurstThreshold,
	}
	if t.BurstThreshold <= 0 {
		t.BurstThreshold = 100
	}
	for _, v := range f.AlwaysDeliberate {
		t.AlwaysDeliberate[v] = true
	}
	for _, v := range f.AlwaysVote {
		t.AlwaysVote[v] = true
	}
	for _, p := range f.InjectionPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("injection pattern %q: %w", p, err)
		}
		t.InjectionPatterns = append(t.InjectionPatterns, re)
	}
	for _, p := range f.PIIPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		t.PIIPatterns = append(t.PIIPatterns, re)
	}
	return t, nil
}
