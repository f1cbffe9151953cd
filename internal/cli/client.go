package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
)

// Client is a thin HTTP client for the valuation API, used by the CLI.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	return resp, nil
}

// CreateRuleset creates a new ruleset.
func (c *Client) CreateRuleset(req *models.CreateRulesetRequest) (*models.Ruleset, error) {
	resp, err := c.doRequest("POST", "/api/v1/rulesets", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create ruleset: %s (status: %d)", string(body), resp.StatusCode)
	}

	var result models.Ruleset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// Recalculate schedules an asynchronous recalculation for a listing.
func (c *Client) Recalculate(listingID uuid.UUID) error {
	resp, err := c.doRequest("POST", fmt.Sprintf("/api/v1/listings/%s/recalculate", listingID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to schedule recalculation: %s (status: %d)", string(body), resp.StatusCode)
	}
	return nil
}

// RecalculateRuleset schedules recalculation of every listing a
// ruleset's scope covers.
func (c *Client) RecalculateRuleset(rulesetID uuid.UUID) error {
	resp, err := c.doRequest("POST", fmt.Sprintf("/api/v1/rulesets/%s/recalculate", rulesetID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to schedule recalculation: %s (status: %d)", string(body), resp.StatusCode)
	}
	return nil
}

// Evaluate runs a synchronous evaluation pass and returns the breakdown.
func (c *Client) Evaluate(listingID uuid.UUID) (*models.EvaluationBreakdown, error) {
	resp, err := c.doRequest("POST", fmt.Sprintf("/api/v1/listings/%s/evaluate", listingID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to evaluate listing: %s (status: %d)", string(body), resp.StatusCode)
	}

	var result models.EvaluationBreakdown
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetBreakdown fetches the latest persisted breakdown for a listing.
func (c *Client) GetBreakdown(listingID uuid.UUID) (*models.EvaluationBreakdown, error) {
	resp, err := c.doRequest("GET", fmt.Sprintf("/api/v1/listings/%s/breakdown", listingID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get breakdown: %s (status: %d)", string(body), resp.StatusCode)
	}

	var result models.EvaluationBreakdown
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
