// Package classifier calls the pretrained complaint classification
// service. The model itself is external; this package only speaks its
// request/response contract and supplies safe defaults when the service
// is unreachable.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scope-engine/scope-assistant/internal/complaint"
	"github.com/scope-engine/scope-assistant/internal/httpkit"
)

// Prediction is the multi-task classification result for one complaint.
type Prediction struct {
	Category complaint.Category `json:"category"`
	Urgency  complaint.Urgency  `json:"urgency"`
}

// Fallback is the prediction used when classification is unavailable.
func Fallback() Prediction {
	return Prediction{
		Category: complaint.CategoryOther,
		Urgency:  complaint.UrgencyMedium,
	}
}

// Predictor classifies complaint text.
type Predictor interface {
	Predict(ctx context.Context, text string) (Prediction, error)
}

// Client talks to the classification inference service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a classifier client for the given inference service URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Category string `json:"category"`
	Urgency  string `json:"urgency"`
}

// Predict classifies one complaint text into a category and urgency.
// Responses outside the known enumerations are rejected so a confused
// model cannot write invalid values into the store.
func (c *Client) Predict(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("create prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Prediction{}, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return Prediction{}, fmt.Errorf("prediction service returned status %d: %s", resp.StatusCode, errBody)
	}

	var pred predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}

	if !complaint.ValidCategory(pred.Category) {
		return Prediction{}, fmt.Errorf("prediction returned unknown category %q", pred.Category)
	}
	switch complaint.Urgency(pred.Urgency) {
	case complaint.UrgencyLow, complaint.UrgencyMedium, complaint.UrgencyHigh, complaint.UrgencyCritical:
	default:
		return Prediction{}, fmt.Errorf("prediction returned unknown urgency %q", pred.Urgency)
	}

	return Prediction{
		Category: complaint.Category(pred.Category),
		Urgency:  complaint.Urgency(pred.Urgency),
	}, nil
}
