package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/models"
)

// Anchorer hands a committed root to the external permanent-storage or
// distributed-ledger network. Retries and backoff belong to the
// collaborator boundary; the ledger only observes success or failure.
type Anchorer interface {
	Anchor(ctx context.Context, payload models.AnchorPayload) (txID string, err error)
}

// HTTPAnchorer posts anchor payloads to the anchoring collaborator.
type HTTPAnchorer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAnchorer wires the anchor collaborator endpoint.
func NewHTTPAnchorer(baseURL string) *HTTPAnchorer {
	return &HTTPAnchorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type anchorResponse struct {
	TransactionID string `json:"transaction_id"`
}

// Anchor submits the payload and returns the collaborator's transaction id.
func (a *HTTPAnchorer) Anchor(ctx context.Context, payload models.AnchorPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("anchor service status %d", resp.StatusCode)
	}

	var out anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.TransactionID, nil
}

// LogAnchorer records anchor payloads to the log. Used when no anchoring
// network is configured; batches stay locally verifiable either way.
type LogAnchorer struct {
	logger zerolog.Logger
}

// NewLogAnchorer builds the logging fallback anchorer.
func NewLogAnchorer(logger zerolog.Logger) *LogAnchorer {
	return &LogAnchorer{logger: logger}
}

// Anchor logs the payload and reports success.
func (a *LogAnchorer) Anchor(_ context.Context, payload models.AnchorPayload) (string, error) {
	a.logger.Info().
		Str("batch_id", payload.BatchID).
		Str("root_hash", payload.RootHash).
		Int("entry_count", payload.EntryCount).
		Msg("anchor payload recorded locally")
	return "local:" + payload.BatchID, nil
}
