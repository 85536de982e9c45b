package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// ErrAuthInvalid is returned when the hub rejects the access token.
var ErrAuthInvalid = errors.New("hub: access token rejected")

// maxErrorBody caps how much of an error response is read into the error.
const maxErrorBody = 512

// Transient REST failures are retried with doubling waits.
const (
	restAttempts   = 3
	restRetryDelay = 250 * time.Millisecond
)

// restClient talks to the hub's /api REST endpoints with a bearer token.
type restClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRESTClient(baseURL, token string, hc *http.Client) *restClient {
	return &restClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    hc,
	}
}

// ping proves the REST API is reachable and the token is accepted.
func (c *restClient) ping(ctx context.Context) error {
	var body struct {
		Message string `json:"message"`
	}
	return c.get(ctx, "/api/", &body)
}

// states fetches the full entity snapshot.
func (c *restClient) states(ctx context.Context) ([]entityState, error) {
	var out []entityState
	if err := c.get(ctx, "/api/states", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get retries network and timeout failures. Auth and decode errors are
// returned at once.
func (c *restClient) get(ctx context.Context, path string, out any) error {
	return validate.Retry(ctx, restAttempts, restRetryDelay, func(ctx context.Context) error {
		err := c.getOnce(ctx, path, out)
		if err != nil && (ctx.Err() != nil || !device.IsRetryable(err)) {
			return validate.Permanent(err)
		}
		return err
	})
}

func (c *restClient) getOnce(ctx context.Context, path string, out any) error {
	const op = "hub.rest"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return device.NewError(device.KindConfiguration, op, fmt.Errorf("building request for %s: %w", path, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return device.NewError(device.KindTimeout, op, fmt.Errorf("GET %s: %w", path, err))
		}
		return device.NewError(device.KindNetwork, op, fmt.Errorf("GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return device.NewError(device.KindConfiguration, op, fmt.Errorf("GET %s: %w (status %d)", path, ErrAuthInvalid, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return device.Errorf(device.KindNetwork, op, "GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return device.NewError(device.KindInternal, op, fmt.Errorf("decoding %s: %w", path, err))
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
