// Package govgate provides a client for the GovGate governance-gated
// message bus.
package govgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a GovGate API client.
type Client struct {
	BaseURL         string
	AgentID         string
	ComplianceToken string
	TenantID        string
	HTTPClient      *http.Client
}

// NewClient creates a new GovGate client for one agent.
func NewClient(baseURL, agentID, complianceToken string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:         baseURL,
		AgentID:         agentID,
		ComplianceToken: complianceToken,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Message is an outbound message submission.
type Message struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	ToAgent        string         `json:"to_agent"`
	MessageType    string         `json:"message_type"`
	Priority       *int           `json:"priority,omitempty"`
	Content        map[string]any `json:"content"`
	TenantID       string         `json:"tenant_id,omitempty"`
}

// Decision is the bus's governance verdict for a published message.
type Decision struct {
	MessageID   string   `json:"message_id"`
	DecisionID  string   `json:"decision_id"`
	Allowed     bool     `json:"allowed"`
	Violations  []string `json:"violations,omitempty"`
	ImpactScore float64  `json:"impact_score"`
	Lane        string   `json:"lane"`
}

// DeniedError is returned when the bus rejects a message. The violation
// list carries every failed check.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("message denied (decision %s): %v", e.Decision.DecisionID, e.Decision.Violations)
}

type publishRequest struct {
	Message
	FromAgent       string `json:"from_agent"`
	ComplianceToken string `json:"compliance_token"`
}

// Publish submits a message through the governance pipeline. A denial is
// returned as *DeniedError with the full decision attached.
func (c *Client) Publish(ctx context.Context, msg Message) (*Decision, error) {
	req := publishRequest{
		Message:         msg,
		FromAgent:       c.AgentID,
		ComplianceToken: c.ComplianceToken,
	}

	var decision Decision
	status, err := c.post(ctx, "/messages", req, &decision)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		return &decision, &DeniedError{Decision: decision}
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return &decision, nil
}

// Feedback reports the reviewed outcome of a past decision. Outcome is
// one of true_positive, false_positive, false_negative, true_negative.
func (c *Client) Feedback(ctx context.Context, decisionID, outcome string) (float64, error) {
	body := map[string]string{"decision_id": decisionID, "outcome": outcome}
	var resp struct {
		Threshold float64 `json:"threshold"`
	}
	status, err := c.post(ctx, "/feedback", body, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", status)
	}
	return resp.Threshold, nil
}

// VerifyEntry checks an inclusion proof against a committed root.
func (c *Client) VerifyEntry(ctx context.Context, entryHash string, proof []string, index int, rootHash string) (bool, error) {
	body := map[string]any{
		"entry_hash":     entryHash,
		"proof":          proof,
		"sequence_index": index,
		"root_hash":      rootHash,
	}
	var resp struct {
		Valid bool `json:"valid"`
	}
	status, err := c.post(ctx, "/audit/verify", body, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", status)
	}
	return resp.Valid, nil
}

// Delivery is one received message with its governance decision.
type Delivery struct {
	Message  json.RawMessage `json:"message"`
	Decision *Decision       `json:"decision"`
}

// Inbox fetches the agent's fast-lane deliveries, newest first.
func (c *Client) Inbox(ctx context.Context, limit int) ([]Delivery, error) {
	path := "/inbox/" + url.PathEscape(c.AgentID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp struct {
		Deliveries []Delivery `json:"deliveries"`
	}
	status, err := c.get(ctx, path, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return resp.Deliveries, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.AgentID != "" {
		req.Header.Set("X-GovGate-Agent", c.AgentID)
	}
	if c.TenantID != "" {
		req.Header.Set("X-GovGate-Tenant", c.TenantID)
	}
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
