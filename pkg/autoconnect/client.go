// Package autoconnect is a client for the AutoConnect booking REST API, the
// system of record for cars, bookings, users and messages.
package autoconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const defaultTimeout = 20 * time.Second

type Client struct {
	HTTPClient *http.Client

	// BaseURL is the API root without a trailing slash, e.g. https://api.autoconnect.ph
	BaseURL string
}

func New(baseURL string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("autoconnect api error: %s %s status=%d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("autoconnect api error: %s %s status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("autoconnect api error: %s %s status=%d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("autoconnect %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: defaultTimeout}
	}
	return c.HTTPClient
}

func (c Client) url(path string) string {
	return c.BaseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c Client) doJSON(ctx context.Context, method, path string, reqBody any, respBody any) (int, error) {
	var body io.Reader
	if reqBody != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return 0, err
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return 0, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, respBody)
}

// doMultipart sends fields and an optional file as multipart/form-data.
func (c Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, file *FilePart, respBody any) (int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return 0, err
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return 0, err
		}
		if _, err := part.Write(file.Data); err != nil {
			return 0, err
		}
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, respBody)
}

func (c Client) do(req *http.Request, path string, respBody any) (int, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		// Surface cancellation as-is so callers can tell an abort from an outage.
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &NetworkError{Op: req.Method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	b, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, &NetworkError{Op: req.Method + " " + path, Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       path,
			Message:    errorMessage(b),
			Body:       truncate(string(b), 512),
		}
	}

	if respBody != nil && len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, respBody); err != nil {
			// Include body for easier debugging (unexpected shape, partial responses, etc).
			return resp.StatusCode, fmt.Errorf("decode autoconnect response failed: %w body=%s", err, truncate(string(b), 512))
		}
	}

	return resp.StatusCode, nil
}

// errorMessage pulls a human readable message out of the backend's error
// body, which is usually {"message": "..."} and sometimes {"error": "..."}.
func errorMessage(b []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return ""
	}
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
