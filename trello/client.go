package trello

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
)

/* Client wraps the Trello webhook REST API
 * Only the webhook registration endpoints are covered - this is not a
 * general-purpose Trello API client
 */

// DefaultBaseURL is the production Trello API endpoint
const DefaultBaseURL = "https://api.trello.com/1"

// DefaultTimeout bounds every remote round trip
const DefaultTimeout = 10 * time.Second

/* Error taxonomy for remote calls
 * ErrRejected means Trello declined the request (HTTP 400) - it is a
 * terminal outcome for that attempt and must not be retried automatically.
 * The others map transport/auth failures and are retriable outside the
 * request path.
 */
var (
	ErrUnauthorized = errors.New("trello: unauthorized")
	ErrNotFound     = errors.New("trello: webhook not found")
	ErrRateLimited  = errors.New("trello: rate limited")
	ErrUnavailable  = errors.New("trello: service unavailable")
	ErrRejected     = errors.New("trello: request rejected")
)

// Webhook is a remote webhook registration as returned by the Trello API
type Webhook struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IDModel     string `json:"idModel"`
	CallbackURL string `json:"callbackURL"`
	Active      bool   `json:"active"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a client against the production Trello API
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom endpoint (used in tests)
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// List returns every webhook registered against the given user token
func (c *Client) List(ctx context.Context, token string) ([]Webhook, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s/webhooks", c.baseURL, url.PathEscape(token))

	var hooks []Webhook
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &hooks); err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return hooks, nil
}

/* Create registers a new webhook for the model/callback pair.
 * Trello rejects duplicate registrations for the same (model, callback,
 * token) triple with a 400 - surfaced as ErrRejected.
 */
func (c *Client) Create(ctx context.Context, token string, hook Webhook) (Webhook, error) {
	endpoint := fmt.Sprintf("%s/webhooks", c.baseURL)

	body := map[string]string{
		"idModel":     hook.IDModel,
		"callbackURL": hook.CallbackURL,
		"description": hook.Description,
	}

	var created Webhook
	if err := c.do(ctx, http.MethodPost, endpoint, token, body, &created); err != nil {
		return Webhook{}, fmt.Errorf("creating webhook: %w", err)
	}
	return created, nil
}

// Update modifies the callback URL and description of an existing registration
func (c *Client) Update(ctx context.Context, token string, hook Webhook) (Webhook, error) {
	if hook.ID == "" {
		return Webhook{}, fmt.Errorf("updating webhook: missing webhook id")
	}
	endpoint := fmt.Sprintf("%s/webhooks/%s", c.baseURL, url.PathEscape(hook.ID))

	body := map[string]string{
		"callbackURL": hook.CallbackURL,
		"description": hook.Description,
	}

	var updated Webhook
	if err := c.do(ctx, http.MethodPut, endpoint, token, body, &updated); err != nil {
		return Webhook{}, fmt.Errorf("updating webhook: %w", err)
	}
	return updated, nil
}

// Delete removes a remote registration
func (c *Client) Delete(ctx context.Context, token, id string) error {
	if id == "" {
		return fmt.Errorf("deleting webhook: missing webhook id")
	}
	endpoint := fmt.Sprintf("%s/webhooks/%s", c.baseURL, url.PathEscape(id))

	if err := c.do(ctx, http.MethodDelete, endpoint, token, nil, nil); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return nil
}

// do performs one authenticated round trip and decodes the response into out
func (c *Client) do(ctx context.Context, method, endpoint, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// key and token are passed as query parameters, per the Trello API
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	q.Set("token", token)
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError maps an HTTP status to the client error taxonomy
func statusError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	// Trello error bodies are plain text, e.g. "A webhook with that
	// callback, model, and token already exists"
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(detail))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, msg)
	}
}
