// Package gate implements the constitutional-compliance check that every
// inter-agent message must pass before scoring and routing.
package gate

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/govgate-protocol/govgate/internal/models"
	"github.com/govgate-protocol/govgate/internal/policy"
)

// Code identifies a rejection class.
type Code string

const (
	CodeHashMismatch             Code = "HASH_MISMATCH"
	CodeSchemaInvalid            Code = "SCHEMA_INVALID"
	CodePermissionDenied         Code = "PERMISSION_DENIED"
	CodeTenantIsolationViolation Code = "TENANT_ISOLATION_VIOLATION"
	CodePayloadTooLarge          Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimited              Code = "RATE_LIMITED"
	CodeUnsafeContent            Code = "UNSAFE_CONTENT"
)

// Violation is a single failed check with a human-readable detail.
type Violation struct {
	Code   Code   `json:"code"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return string(v.Code) + ": " + v.Detail
}

// Denial carries the full ordered violation list so callers can remediate.
type Denial struct {
	Violations []Violation
}

func (d *Denial) Error() string {
	parts := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		parts[i] = v.String()
	}
	return "message denied: " + strings.Join(parts, "; ")
}

// Reasons returns the violations as plain strings in check order.
func (d *Denial) Reasons() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.String()
	}
	return out
}

// Caller is the externally supplied request context for a validation.
// Size and rate flags are computed by the serving layer, not here.
type Caller struct {
	TenantID        string
	MultiTenant     bool
	PayloadTooLarge bool
	RateLimited     bool
	PIIAuthorized   bool
	ForceDeliberate bool
}

// Validator checks messages against the constitutional rules. All checks
// are pure functions of (message, caller); no I/O.
type Validator struct {
	token []byte
	table *policy.Table
	now   func() time.Time
}

// New builds a Validator with the process-wide compliance token and the
// compiled policy table.
func New(complianceToken string, table *policy.Table) *Validator {
	return &Validator{
		token: []byte(complianceToken),
		table: table,
		now:   time.Now,
	}
}

// Validate runs every check and returns a *Denial carrying all failures,
// or nil when the message passes. The violation order is fixed: token,
// schema, permission, tenant, size, rate, content.
func (v *Validator) Validate(msg *models.Message, caller Caller) error {
	var violations []Violation

	if subtle.ConstantTimeCompare([]byte(msg.ComplianceToken), v.token) != 1 {
		violations = append(violations, Violation{
			Code:   CodeHashMismatch,
			Detail: "compliance token does not match constitutional hash",
		})
	}

	violations = append(violations, v.checkSchema(msg)...)
	violations = append(violations, v.checkPermission(msg)...)

	if caller.MultiTenant && msg.TenantID != "" && msg.TenantID != caller.TenantID {
		violations = append(violations, Violation{
			Code:   CodeTenantIsolationViolation,
			Detail: fmt.Sprintf("message tenant %q differs from caller tenant %q", msg.TenantID, caller.TenantID),
		})
	}

	if caller.PayloadTooLarge {
		violations = append(violations, Violation{
			Code:   CodePayloadTooLarge,
			Detail: "payload exceeds the configured size limit",
		})
	}

	if caller.RateLimited {
		violations = append(violations, Violation{
			Code:   CodeRateLimited,
			Detail: "sender exceeded its request budget",
		})
	}

	violations = append(violations, v.checkContent(msg, caller)...)

	if len(violations) > 0 {
		return &Denial{Violations: violations}
	}
	return nil
}

func (v *Validator) checkSchema(msg *models.Message) []Violation {
	var out []Violation

	if msg.ID == "" {
		out = append(out, Violation{CodeSchemaInvalid, "id is required"})
	}
	if msg.FromAgent == "" {
		out = append(out, Violation{CodeSchemaInvalid, "from_agent is required"})
	}
	if msg.ToAgent == "" {
		out = append(out, Violation{CodeSchemaInvalid, "to_agent is required"})
	}
	if !msg.Type.Known() {
		out = append(out, Violation{CodeSchemaInvalid, fmt.Sprintf("unknown message_type %q", msg.Type)})
	}
	if !msg.Priority.Valid() {
		out = append(out, Violation{CodeSchemaInvalid, fmt.Sprintf("priority %d out of range", msg.Priority)})
	}
	if msg.CreatedAt.IsZero() {
		out = append(out, Violation{CodeSchemaInvalid, "created_at is required"})
	} else if msg.UpdatedAt.Before(msg.CreatedAt) {
		out = append(out, Violation{CodeSchemaInvalid, "created_at is after updated_at"})
	}
	if msg.Expired(v.now()) {
		out = append(out, Violation{CodeSchemaInvalid, "message has expired"})
	}
	return out
}

func (v *Validator) checkPermission(msg *models.Message) []Violation {
	role := v.table.RoleFor(msg.FromAgent)
	if role == "" {
		return []Violation{{
			CodePermissionDenied,
			fmt.Sprintf("agent %q has no registered role", msg.FromAgent),
		}}
	}

	var out []Violation
	if !v.table.Allows(role, msg.Type) {
		out = append(out, Violation{
			CodePermissionDenied,
			fmt.Sprintf("role %q may not send %q messages", role, msg.Type),
		})
	}
	if r, ok := v.table.Roles[role]; ok && msg.Priority < r.MaxPriority {
		out = append(out, Violation{
			CodePermissionDenied,
			fmt.Sprintf("role %q may not use priority %d", role, msg.Priority),
		})
	}
	return out
}

// checkContent scans the flattened payload against the pre-compiled
// injection and PII patterns. PII matches pass when the caller holds
// PII-handling authorization; injection matches never do.
func (v *Validator) checkContent(msg *models.Message, caller Caller) []Violation {
	text := flatten(msg.Content)
	if text == "" {
		return nil
	}

	var out []Violation
	for _, re := range v.table.InjectionPatterns {
		if re.MatchString(text) {
			out = append(out, Violation{
				CodeUnsafeContent,
				fmt.Sprintf("content matches injection pattern %q", re.String()),
			})
			break
		}
	}
	if !caller.PIIAuthorized {
		for _, re := range v.table.PIIPatterns {
			if re.MatchString(text) {
				out = append(out, Violation{
					CodeUnsafeContent,
					"content contains unauthorized PII",
				})
				break
			}
		}
	}
	return out
}

// flatten renders nested payload values into one scannable string.
func flatten(content map[string]any) string {
	if len(content) == 0 {
		return ""
	}
	var b strings.Builder
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			b.WriteString(t)
			b.WriteByte(' ')
		case map[string]any:
			for _, inner := range t {
				walk(inner)
			}
		case []any:
			for _, inner := range t {
				walk(inner)
			}
		case fmt.Stringer:
			b.WriteString(t.String())
			b.WriteByte(' ')
		default:
			fmt.Fprintf(&b, "%v ", t)
		}
	}
	walk(content)
	return b.String()
}
