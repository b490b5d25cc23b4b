// Package policyengine calls the external policy-evaluation engine as an
// optional secondary check layered on top of the constitutional gate. An
// unreachable engine is a degradation, never a message failure.
package policyengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/govgate-protocol/govgate/internal/models"
)

// Decision is the engine's verdict on one message.
type Decision struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations,omitempty"`
}

// Checker evaluates a message against external authorization rules.
type Checker interface {
	Check(ctx context.Context, msg *models.Message, tenantID string) (Decision, error)
}

// Client is the HTTP implementation of Checker.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient wires the policy engine endpoint.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

type evalRequest struct {
	Input evalInput `json:"input"`
}

type evalInput struct {
	Message  *models.Message `json:"message"`
	TenantID string          `json:"tenant_id,omitempty"`
}

// Check submits the message and caller context for evaluation.
func (c *Client) Check(ctx context.Context, msg *models.Message, tenantID string) (Decision, error) {
	body, err := json.Marshal(evalRequest{Input: evalInput{Message: msg, TenantID: tenantID}})
	if err != nil {
		return Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Decision{}, fmt.Errorf("policy engine status %d", resp.StatusCode)
	}

	var out Decision
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, err
	}
	return out, nil
}
