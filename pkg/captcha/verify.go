// Package captcha verifies puzzle solutions submitted with public forms.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Verifier struct {
	HTTPClient *http.Client
	VerifyURL  string
	Secret     string
}

type verifyResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// RejectedError means the provider answered but did not accept the solution.
type RejectedError struct {
	Reasons []string
}

func (e *RejectedError) Error() string {
	if len(e.Reasons) == 0 {
		return "captcha rejected"
	}
	return "captcha rejected: " + strings.Join(e.Reasons, ", ")
}

// Verify posts the solution to the site-verify endpoint.
func (v Verifier) Verify(ctx context.Context, solution string) error {
	if strings.TrimSpace(solution) == "" {
		return &RejectedError{Reasons: []string{"solution_missing"}}
	}
	if v.VerifyURL == "" || v.Secret == "" {
		return fmt.Errorf("captcha verifier is not configured")
	}
	httpClient := v.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	form := url.Values{}
	form.Set("solution", solution)
	form.Set("secret", v.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out verifyResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("captcha verify: status=%d body=%s", resp.StatusCode, string(b))
	}
	if !out.Success {
		return &RejectedError{Reasons: out.Errors}
	}
	return nil
}
