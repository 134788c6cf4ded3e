package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/utils"
)

const analyzeEndpoint = "/analyze"

// ScoreRequest is the body sent to the scoring service
type ScoreRequest struct {
	ReportID    string   `json:"report_id"`
	CountryCode string   `json:"country_code"`
	TaxTypes    []string `json:"tax_types"`
	FileURL     string   `json:"file_url"`
}

// ScoreResult is the scoring service response
type ScoreResult struct {
	OverallScore int                  `json:"overall_score"`
	TotalChecks  int                  `json:"total_checks"`
	PassedChecks int                  `json:"passed_checks"`
	Errors       int                  `json:"errors"`
	Warnings     int                  `json:"warnings"`
	ErrorDetails []models.ErrorDetail `json:"error_details"`
}

// ErrInvalidResponse marks a 2xx answer that could not be used
var ErrInvalidResponse = errors.New("invalid scoring response")

// Scorer scores an uploaded report
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error)
}

// StatusError is a non-2xx answer from the scoring service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scoring service returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether err is worth another attempt
func Retryable(err error) bool {
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// ScoringClient calls the external scoring service over HTTP
type ScoringClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
}

// NewScoringClient creates a new scoring client
func NewScoringClient(cfg config.ScoringConfig) *ScoringClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	perSec := cfg.RequestsPerSec
	if perSec <= 0 {
		perSec = 2
	}
	return &ScoringClient{
		BaseURL:    strings.TrimRight(cfg.URL, "/"),
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
		},
	}
}

// Score posts the request, retrying transport errors and 5xx responses
func (c *ScoringClient) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		result, err := c.do(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil || !Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *ScoringClient) do(ctx context.Context, body []byte) (*ScoreResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+analyzeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set(utils.SignatureHeader, utils.SignPayload(body, c.APIKey))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call scoring service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var result ScoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.OverallScore < 0 || result.OverallScore > 100 {
		return nil, fmt.Errorf("%w: overall_score %d out of range", ErrInvalidResponse, result.OverallScore)
	}
	return &result, nil
}
