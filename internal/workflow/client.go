// Package workflow triggers the external analysis workflow for an analysis.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/telemetry"
	"plancheck-backend/internal/shared/util"
)

const (
	CallbackPath       = "/api/v1/webhooks/analysis-update"
	defaultHTTPTimeout = 30 * time.Second
	maxBodySnippet     = 512
)

var ErrDispatchFailed = errors.New("workflow dispatch failed")

// Job is what the workflow needs to run one analysis.
type Job struct {
	AnalysisID    string
	UserID        string
	PDFURL        string
	SelectedCodes []string
	Description   string
	PageNumbers   string
}

type envelope struct {
	AnalysisID    string   `json:"analysisId"`
	PDFURL        string   `json:"pdfUrl"`
	SelectedCodes []string `json:"selectedCodes"`
	Description   string   `json:"description,omitempty"`
	PageNumbers   string   `json:"pageNumbers,omitempty"`
	CallbackURL   string   `json:"callbackUrl"`
}

// EndpointResolver returns a per-user workflow URL override, or "".
type EndpointResolver interface {
	WorkflowURL(ctx context.Context, userID string) (string, error)
}

// Client posts jobs to the workflow engine.
type Client struct {
	HTTP          *http.Client
	DefaultURL    string
	PublicBaseURL string
	WebhookSecret string
	Endpoints     EndpointResolver
}

// NewClient constructs a Client whose requests are bounded by timeout.
func NewClient(defaultURL, publicBaseURL, webhookSecret string, timeout time.Duration, endpoints EndpointResolver) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		HTTP:          &http.Client{Timeout: timeout},
		DefaultURL:    strings.TrimSpace(defaultURL),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		WebhookSecret: webhookSecret,
		Endpoints:     endpoints,
	}
}

// CallbackURL is where the workflow reports completion.
func (c *Client) CallbackURL() string {
	u := c.PublicBaseURL + CallbackPath
	if c.WebhookSecret != "" {
		u += "?token=" + url.QueryEscape(c.WebhookSecret)
	}
	return u
}

func (c *Client) endpoint(ctx context.Context, userID string) string {
	if c.Endpoints != nil && userID != "" {
		override, err := c.Endpoints.WorkflowURL(ctx, userID)
		if err != nil {
			telemetry.Warn("workflow.endpoint_lookup_failed", map[string]any{
				"user_id": userID,
				"error":   err,
			})
		} else if strings.TrimSpace(override) != "" {
			return strings.TrimSpace(override)
		}
	}
	return c.DefaultURL
}

// Dispatch posts the job envelope. Any failure wraps ErrDispatchFailed.
func (c *Client) Dispatch(ctx context.Context, job Job) error {
	start := time.Now()
	err := c.dispatch(ctx, job)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveDispatch(outcome, time.Since(start))
	if err != nil {
		telemetry.Error("workflow.dispatch_failed", map[string]any{
			"analysis_id": job.AnalysisID,
			"user_id":     job.UserID,
			"error":       err,
		})
		return err
	}
	telemetry.Info("workflow.dispatched", map[string]any{
		"analysis_id": job.AnalysisID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

func (c *Client) dispatch(ctx context.Context, job Job) error {
	target := c.endpoint(ctx, job.UserID)
	if target == "" {
		return fmt.Errorf("%w: no workflow endpoint configured", ErrDispatchFailed)
	}
	codes := job.SelectedCodes
	if codes == nil {
		codes = []string{}
	}
	body, err := json.Marshal(envelope{
		AnalysisID:    job.AnalysisID,
		PDFURL:        job.PDFURL,
		SelectedCodes: codes,
		Description:   job.Description,
		PageNumbers:   job.PageNumbers,
		CallbackURL:   c.CallbackURL(),
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Analysis-Id", job.AnalysisID)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return fmt.Errorf("%w: status %d: %s", ErrDispatchFailed, resp.StatusCode, util.Truncate(strings.TrimSpace(string(snippet)), maxBodySnippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
