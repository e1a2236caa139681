package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gigbook/apperror"
	"gigbook/utils"
)

// Credentials are the bearer tokens a client presents.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// HttpClient talks JSON to the booking API. Requests rejected for an expired or
// missing access token are retried once after a refresh.
type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
	// StreamClient has no timeout and serves long-lived event streams.
	StreamClient *http.Client
	// OnRefresh, when set, receives every rotated token pair.
	OnRefresh func(utils.TokenPair)

	mu    sync.RWMutex
	creds Credentials
}

func NewHttpClient(baseURL string, creds Credentials) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		StreamClient: &http.Client{},
		creds:        creds,
	}
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

func (c *HttpClient) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *HttpClient) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// Refresh exchanges the refresh token for a new pair.
func (c *HttpClient) Refresh(ctx context.Context) error {
	refresh := c.Credentials().RefreshToken
	if refresh == "" {
		return apperror.AuthRequired("no refresh token")
	}
	resp, err := c.send(ctx, c.HTTPClient, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": refresh}, false)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	var pair utils.TokenPair
	if err := resp.DecodeJSON(&pair); err != nil {
		return fmt.Errorf("failed to decode token pair: %w", err)
	}
	c.SetCredentials(Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	if c.OnRefresh != nil {
		c.OnRefresh(pair)
	}
	return nil
}

// Do sends body as JSON and decodes a successful reply into out. API errors
// come back as *apperror.Error.
func (c *HttpClient) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := utils.WithAuthRetry(ctx, c, func(ctx context.Context) (*Response, error) {
		resp, err := c.send(ctx, c.HTTPClient, method, path, body, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, decodeError(resp)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *HttpClient) GET(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *HttpClient) POST(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Stream opens a server-sent event stream. The caller closes the body.
func (c *HttpClient) Stream(ctx context.Context, path string) (io.ReadCloser, error) {
	return utils.WithAuthRetry(ctx, c, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil, true)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		resp, err := c.StreamClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("stream request failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, decodeError(&Response{Response: resp, Body: body})
		}
		return resp.Body, nil
	})
}

func (c *HttpClient) newRequest(ctx context.Context, method, path string, body any, authed bool) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if tok := c.Credentials().AccessToken; tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

func (c *HttpClient) send(ctx context.Context, hc *http.Client, method, path string, body any, authed bool) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body, authed)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{Response: resp, Body: respBody}, nil
}

// decodeError rebuilds the server's typed error from an error reply.
func decodeError(resp *Response) error {
	var body utils.ErrorResponse
	if err := resp.DecodeJSON(&body); err != nil || body.Code == "" {
		return &apperror.Error{
			Kind:    kindForStatus(resp.StatusCode),
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return &apperror.Error{
		Kind:       apperror.Kind(body.Code),
		Message:    body.Error,
		BookingID:  body.BookingID,
		Transition: body.Transition,
	}
}

func kindForStatus(status int) apperror.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apperror.KindAuthRequired
	case http.StatusForbidden:
		return apperror.KindAccessDenied
	case http.StatusNotFound:
		return apperror.KindNotFound
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperror.KindValidation
	case http.StatusBadGateway:
		return apperror.KindPaymentGateway
	default:
		return apperror.KindInternal
	}
}

func (c *HttpClient) WaitForHealthy(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		resp, err := c.send(ctx, c.HTTPClient, http.MethodGet, "/health", nil, false)
		if err == nil && resp.StatusCode == http.StatusOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return fmt.Errorf("service did not become healthy within %v", maxWait)
}
