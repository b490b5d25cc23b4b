// Package semantic estimates how close a message payload sits to the
// high-impact concept set. The primary path calls an external embedding
// service; when that collaborator is unreachable the estimator degrades
// to keyword matching. The fallback is a first-class branch, not an
// exception path, so callers can observe which variant produced a score.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source tells the caller which variant produced an estimate.
type Source string

const (
	SourceEmbedding Source = "embedding"
	SourceKeyword   Source = "keyword"
)

// Estimate is a [0,1] similarity plus the variant that computed it.
type Estimate struct {
	Score  float64
	Source Source
}

// Estimator scores text against the high-impact concept set.
type Estimator interface {
	Estimate(ctx context.Context, text string) Estimate
}

// KeywordEstimator is the local fallback: the strongest matching term
// from the policy table wins.
type KeywordEstimator struct {
	terms map[string]float64
}

// NewKeywordEstimator builds the fallback estimator over term→risk weights.
func NewKeywordEstimator(terms map[string]float64) *KeywordEstimator {
	return &KeywordEstimator{terms: terms}
}

// Estimate returns the highest risk weight among matched terms, 0 when
// nothing matches.
func (k *KeywordEstimator) Estimate(_ context.Context, text string) Estimate {
	lower := strings.ToLower(text)
	var best float64
	for term, weight := range k.terms {
		if strings.Contains(lower, term) && weight > best {
			best = weight
		}
	}
	if best > 1 {
		best = 1
	}
	return Estimate{Score: best, Source: SourceKeyword}
}

// Client calls the external embedding/similarity service and falls back
// to keyword matching on timeout or error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	fallback   *KeywordEstimator
}

// NewClient wires the embedding collaborator. A short timeout keeps the
// scoring path fast when the service degrades.
func NewClient(baseURL string, fallback *KeywordEstimator) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Second},
		fallback:   fallback,
	}
}

type similarityRequest struct {
	Text string `json:"text"`
}

type similarityResponse struct {
	SimilarityScore float64 `json:"similarity_score"`
}

// Estimate asks the service for a similarity score. Any transport or
// decode failure degrades to the keyword variant.
func (c *Client) Estimate(ctx context.Context, text string) Estimate {
	score, err := c.similarity(ctx, text)
	if err != nil {
		return c.fallback.Estimate(ctx, text)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Estimate{Score: score, Source: SourceEmbedding}
}

func (c *Client) similarity(ctx context.Context, text string) (float64, error) {
	body, err := json.Marshal(similarityRequest{Text: text})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/similarity", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("similarity service status %d", resp.StatusCode)
	}

	var out similarityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.SimilarityScore, nil
}
