package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenSource returns the current access token, if any.
type TokenSource func(ctx context.Context) (string, bool)

// StaticToken returns a TokenSource for a fixed token. Empty means no token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, bool) {
		return token, token != ""
	}
}

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Endpoint string
	// Client carries the cookie jar ("credentials") and TLS settings.
	// Defaults to a client with Timeout.
	Client  *http.Client
	Token   TokenSource
	Timeout time.Duration
}

// HTTP posts batches as JSON to an ingestion endpoint.
type HTTP struct {
	endpoint string
	client   *http.Client
	token    TokenSource
	timeout  time.Duration
}

// NewHTTP constructs an HTTP transport.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTP{
		endpoint: opts.Endpoint,
		client:   client,
		token:    opts.Token,
		timeout:  opts.Timeout,
	}
}

// errorBody is the error envelope returned by the ingestion endpoint.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *HTTP) Send(ctx context.Context, batch Batch, keepalive bool) Result {
	body, err := json.Marshal(batch)
	if err != nil {
		return Result{Outcome: Permanent, Err: fmt.Errorf("marshal batch: %w", err)}
	}

	if keepalive {
		// Teardown cancels the caller's context; the request must outlive it.
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Permanent, Err: fmt.Errorf("build request: %w", err)}
	}
	request.Header.Set("Content-Type", "application/json")
	if h.token != nil {
		if token, ok := h.token(ctx); ok {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := h.client.Do(request)
	if err != nil {
		return Result{Outcome: Retryable, Status: StatusOffline, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	outcome := ClassifyStatus(resp.StatusCode)
	if outcome == OK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{Outcome: OK, Status: resp.StatusCode}
	}

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	return Result{
		Outcome: outcome,
		Status:  resp.StatusCode,
		Code:    eb.Code,
		Err:     fmt.Errorf("ingestion response status %d: %s", resp.StatusCode, eb.Error),
	}
}
