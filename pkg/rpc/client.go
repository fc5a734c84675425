package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

// DefaultTimeout bounds a single transport call.
const DefaultTimeout = 5 * time.Second

// Observer receives one event per completed call.
type Observer interface {
	Call(core domain.Core, fn string, status domain.Status, d time.Duration, sent, received int)
}

// Client issues calls to remote cores. Function names are resolved to
// indexes once per core, at Connect.
type Client struct {
	transport ports.Transport
	timeout   time.Duration

	mu    sync.RWMutex
	funcs map[domain.Core]map[string]domain.EntryPoint
	names map[domain.Core]map[int]string

	observer Observer
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each transport call. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithObserver reports calls to o.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client over transport.
func NewClient(transport ports.Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		timeout:   DefaultTimeout,
		funcs:     make(map[domain.Core]map[string]domain.EntryPoint),
		names:     make(map[domain.Core]map[int]string),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect fetches core's entry points and caches their indexes.
func (c *Client) Connect(ctx context.Context, core domain.Core) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	eps, err := c.transport.Functions(ctx, core)
	if err != nil {
		return fmt.Errorf("connect %s: %w", core, wrapTransport(err))
	}
	byName := make(map[string]domain.EntryPoint, len(eps))
	byIndex := make(map[int]string, len(eps))
	for _, ep := range eps {
		byName[ep.Name] = ep
		byIndex[ep.Index] = ep.Name
	}
	c.mu.Lock()
	c.funcs[core] = byName
	c.names[core] = byIndex
	c.mu.Unlock()
	c.logger.Debug("Connected", "core", core, "functions", len(eps))
	return nil
}

// Disconnect forgets core's entry points.
func (c *Client) Disconnect(core domain.Core) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.funcs, core)
	delete(c.names, core)
}

// Resolve returns the index of a function exported by a connected core.
func (c *Client) Resolve(core domain.Core, name string) (domain.EntryPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	funcs, ok := c.funcs[core]
	if !ok {
		return domain.EntryPoint{}, fmt.Errorf("%w: %s is not connected", domain.ErrUnknownFunc, core)
	}
	ep, ok := funcs[name]
	if !ok {
		return domain.EntryPoint{}, fmt.Errorf("%w: %s on %s", domain.ErrUnknownFunc, name, core)
	}
	return ep, nil
}

// Functions returns the entry points cached for core.
func (c *Client) Functions(core domain.Core) []domain.EntryPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.EntryPoint, 0, len(c.funcs[core]))
	for _, ep := range c.funcs[core] {
		out = append(out, ep)
	}
	return out
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) name(core domain.Core, fn int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n, ok := c.names[core][fn]; ok {
		return n
	}
	return fmt.Sprintf("fn#%d", fn)
}

func wrapTransport(err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}

// Call invokes function fn on core. The returned status is the function's
// own result, or a transport status (<= StatusTransportFailure) together with
// an error wrapping domain.ErrTransport.
func (c *Client) Call(ctx context.Context, core domain.Core, fn int, params ...Param) (domain.Status, error) {
	name := c.name(core, fn)
	msg, err := Marshal(params)
	if err != nil {
		return domain.StatusInvalidParameter, fmt.Errorf("call %s on %s: %w", name, core, err)
	}

	start := time.Now()
	callCtx, cancel := c.bound(ctx)
	status, resp, err := c.transport.Invoke(callCtx, core, fn, msg)
	timedOut := callCtx.Err() == context.DeadlineExceeded
	cancel()
	d := time.Since(start)

	switch {
	case err != nil:
		switch {
		case timedOut || errors.Is(err, context.DeadlineExceeded):
			status = domain.StatusTimeout
		case errors.Is(err, domain.ErrUnknownFunc):
			status = domain.StatusUnknownFunction
		case !status.Transport():
			status = domain.StatusTransportFailure
		}
		err = wrapTransport(err)
	case status.Transport():
		err = fmt.Errorf("%w: %s", domain.ErrTransport, status)
	case status < domain.StatusFailure:
		// The remote refused the call. Its response bytes are not results.
	default:
		if uerr := Unmarshal(params, resp); uerr != nil {
			status, err = domain.StatusTransportFailure, uerr
		}
	}

	if c.observer != nil {
		c.observer.Call(core, name, status, d, len(msg), len(resp))
	}
	if err != nil {
		c.logger.Warn("Call failed", "core", core, "fn", name, "status", status, "err", err)
		return status, fmt.Errorf("call %s on %s: %w", name, core, err)
	}
	c.logger.Debug("Call returned", "core", core, "fn", name, "status", status, "duration", d)
	return status, nil
}

// CallName resolves name and calls it.
func (c *Client) CallName(ctx context.Context, core domain.Core, name string, params ...Param) (domain.Status, error) {
	ep, err := c.Resolve(core, name)
	if err != nil {
		return domain.StatusUnknownFunction, err
	}
	return c.Call(ctx, core, ep.Index, params...)
}
