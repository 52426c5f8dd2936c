// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apiclient is the client side of the BizMap REST contract.

Every call attaches the stored access token as a bearer credential unless the
context carries an override from [WithBearer]; when no access token exists,
verification endpoints (paths containing "verify") fall back to the temporary
token. Non-2xx answers are classified once, here, into
[apperr.AppError] values so the session layer can branch on Kind.

The client never mutates the token store; persisting what the backend returns
is the session manager's job.
*/
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// TokenSource supplies the credentials attached to outgoing requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	TemporaryToken(ctx context.Context) (string, error)
}

// Client calls the external BizMap API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default transport, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL (no trailing slash).
func New(baseURL string, tokens TokenSource, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// BaseURL returns the API root this client talks to.
func (client *Client) BaseURL() string { return client.baseURL }

/*
do performs one JSON request.

Parameters:
  - ctx: context.Context
  - op: operation name used to pick error copy (apperr.Op*)
  - method: HTTP method
  - path: endpoint path, including the trailing slash the backend expects
  - in: request body, or nil
  - out: destination for a 2xx JSON body, or nil

Returns:
  - error: *apperr.AppError for transport and HTTP failures
*/
func (client *Client) do(ctx context.Context, op, method, path string, in, out any) error {

	// 1. Encode body
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperr.Internal(fmt.Errorf("apiclient: encode %s request: %w", op, err))
		}
		body = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return apperr.Internal(fmt.Errorf("apiclient: build %s request: %w", op, err))
	}

	// 2. Headers
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set(constants.HeaderXRequestID, requestID(ctx))

	if bearer := client.bearer(ctx, path); bearer != "" {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+bearer)
	}

	// 3. Send
	started := time.Now()
	response, err := client.http.Do(request)
	if err != nil {
		client.logger.Warn("api_request_failed",
			slog.String("op", op),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return apperr.Network(err, isUnreachable(err))
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return apperr.Network(fmt.Errorf("apiclient: read %s response: %w", op, err), false)
	}

	client.logger.Debug("api_request_completed",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", response.StatusCode),
		slog.Duration("duration", time.Since(started)),
	)

	// 4. Classify failures
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		ae := apperr.Classify(op, response.StatusCode, raw)
		client.logger.Info("api_request_rejected",
			slog.String("op", op),
			slog.Int("status", response.StatusCode),
			slog.String("code", ae.Code),
		)
		return ae
	}

	// 5. Decode success
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !strings.Contains(response.Header.Get("Content-Type"), "json") && !json.Valid(raw) {
		return apperr.Internal(fmt.Errorf("apiclient: %s returned non-JSON body", op))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Internal(fmt.Errorf("apiclient: decode %s response: %w", op, err))
	}

	return nil
}

type bearerKey struct{}

// WithBearer makes calls under ctx authenticate with token instead of the stored credentials.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// bearer picks the credential for path. Token store failures send the request unauthenticated.
func (client *Client) bearer(ctx context.Context, path string) string {
	if token, ok := ctx.Value(bearerKey{}).(string); ok && token != "" {
		return token
	}
	if client.tokens == nil {
		return ""
	}

	access, err := client.tokens.AccessToken(ctx)
	if err != nil {
		client.logger.Warn("api_token_read_failed", slog.Any("error", err))
	}
	if access != "" {
		return access
	}

	if !strings.Contains(path, "verify") {
		return ""
	}

	temporary, err := client.tokens.TemporaryToken(ctx)
	if err != nil {
		client.logger.Warn("api_token_read_failed", slog.Any("error", err))
	}
	return temporary
}

// requestID reuses the id of the shell request that triggered the call, if any.
func requestID(ctx context.Context) string {
	if id := ctxutil.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// isUnreachable reports whether err means nothing is listening at the API address.
func isUnreachable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
