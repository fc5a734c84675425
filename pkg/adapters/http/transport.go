package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Transport is a ports.Transport that reaches cores hosted by another engine
// through its admin API.
type Transport struct {
	base   string
	client *http.Client
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		t.client = c
	}
}

// NewTransport creates a transport for the engine serving baseURL.
func NewTransport(baseURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Invoke posts msg to the remote core and returns the status and response
// bytes it relayed back.
func (t *Transport) Invoke(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error) {
	url := fmt.Sprintf("%s/rpc/%s/%d", t.base, core, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg))
	if err != nil {
		return domain.StatusTransportFailure, nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.StatusTimeout, nil, ctx.Err()
		}
		return domain.StatusCoreUnavailable, nil, fmt.Errorf("%w: %s: %w", domain.ErrTransport, core, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.StatusTransportFailure, nil, fmt.Errorf("%w: reading reply from %s: %w", domain.ErrTransport, core, err)
	}

	status := domain.StatusTransportFailure
	if h := resp.Header.Get(StatusHeader); h != "" {
		v, err := strconv.ParseInt(h, 10, 32)
		if err != nil {
			return domain.StatusTransportFailure, nil, fmt.Errorf("%w: bad status header %q", domain.ErrTransport, h)
		}
		status = domain.Status(v)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return status, body, nil
	case resp.StatusCode == http.StatusNotFound && status == domain.StatusUnknownFunction:
		return status, nil, fmt.Errorf("%w: %s fn %d", domain.ErrUnknownFunc, core, fn)
	default:
		return status, nil, fmt.Errorf("%w: %s replied %d: %s", domain.ErrTransport, core, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// Functions fetches the entry points the remote core exports.
func (t *Transport) Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error) {
	url := fmt.Sprintf("%s/rpc/%s/functions", t.base, core)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransport, core, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s replied %d: %s", domain.ErrTransport, core, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var fns []domain.EntryPoint
	if err := json.NewDecoder(resp.Body).Decode(&fns); err != nil {
		return nil, fmt.Errorf("%w: decoding functions of %s: %w", domain.ErrTransport, core, err)
	}
	return fns, nil
}
