package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glimte/bridgekit-go/config"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/internal/reliability"
)

var errorBody = json.RawMessage(`{"type":"error"}`)

// Result is the outcome of a synchronous call: the callee's JSON body, or
// the uniform error body when the call failed.
type Result struct {
	Status int
	Body   json.RawMessage
}

func errorResult(status int) Result {
	return Result{Status: status, Body: errorBody}
}

// IsError reports whether the call failed or the callee answered with an
// error body.
func (r Result) IsError() bool {
	if r.Status < 200 || r.Status > 299 {
		return true
	}

	var probe struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(r.Body, &probe) == nil && probe.Type == contracts.ResultError {
		return true
	}
	return false
}

// Decode unmarshals the body into v
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// InvokeObserver records sync call outcomes
type InvokeObserver interface {
	ObserveInvoke(service, event, outcome string, elapsed time.Duration)
}

// BreakerObserver is told every breaker transition, e.g. to export the state
// as a gauge
type BreakerObserver interface {
	ObserveBreaker(service, state string)
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithInvokeObserver reports call outcomes
func WithInvokeObserver(observer InvokeObserver) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithCircuitBreaker guards each destination service with its own breaker.
// An open breaker short-circuits to the error result without a request.
// A config with zero Failures leaves breakers off.
func WithCircuitBreaker(cfg config.BreakerConfig) ClientOption {
	return func(c *Client) {
		if !cfg.Enabled() {
			c.breakers = nil
			return
		}
		c.breakerCfg = cfg
		c.breakers = make(map[string]*reliability.Breaker)
	}
}

// WithBreakerObserver reports breaker transitions
func WithBreakerObserver(observer BreakerObserver) ClientOption {
	return func(c *Client) {
		c.breakerObserver = observer
	}
}

// Client calls other services' event endpoints
type Client struct {
	hosts    map[string]string
	token    string
	http     *http.Client
	logger   *slog.Logger
	observer InvokeObserver

	mu              sync.Mutex
	breakerCfg      config.BreakerConfig
	breakerObserver BreakerObserver
	breakers        map[string]*reliability.Breaker
}

// NewClient creates a Client for the given service host table
func NewClient(hosts map[string]string, token string, opts ...ClientOption) *Client {
	c := &Client{
		hosts:  make(map[string]string, len(hosts)),
		token:  token,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for service, url := range hosts {
		c.hosts[service] = strings.TrimRight(url, "/")
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke calls event on service with payload. It makes a single attempt.
func (c *Client) Invoke(ctx context.Context, service string, event contracts.EventName, payload any) Result {
	start := time.Now()

	var result Result
	call := func() error {
		var err error
		result, err = c.do(ctx, service, event, payload)
		return err
	}

	var err error
	if breaker := c.breaker(service); breaker != nil {
		err = breaker.Execute(ctx, call)
	} else {
		err = call()
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		if result.Body == nil {
			result = errorResult(0)
		}
		c.logger.Error("sync request failed", "service", service, "event", event, "error", err)
	}

	if c.observer != nil {
		c.observer.ObserveInvoke(service, string(event), outcome, time.Since(start))
	}
	return result
}

func (c *Client) do(ctx context.Context, service string, event contracts.EventName, payload any) (Result, error) {
	fail := func(status int, err error) (Result, error) {
		return errorResult(status), &InvokeError{
			Service:   service,
			Event:     event,
			Status:    status,
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	base, ok := c.hosts[service]
	if !ok || base == "" {
		return fail(0, ErrUnknownService)
	}
	if err := event.Validate(); err != nil {
		return fail(0, err)
	}

	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fail(0, err)
	}

	url := fmt.Sprintf("%s/app-events/%s", base, event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, ErrBadStatus)
	}
	if !json.Valid(raw) {
		return fail(resp.StatusCode, fmt.Errorf("undecodable body"))
	}

	return Result{Status: resp.StatusCode, Body: raw}, nil
}

func (c *Client) breaker(service string) *reliability.Breaker {
	if c.breakers == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[service]; ok {
		return b
	}
	b := reliability.NewBreaker(reliability.BreakerSettings{
		Name:          service,
		Failures:      c.breakerCfg.Failures,
		OpenTimeout:   c.breakerCfg.OpenTimeout,
		Probes:        c.breakerCfg.Probes,
		OnStateChange: c.breakerChanged,
	})
	c.breakers[service] = b
	return b
}

func (c *Client) breakerChanged(service string, from, to reliability.State) {
	c.logger.Warn("sync circuit breaker changed state", "service", service, "from", from.String(), "to", to.String())
	if c.breakerObserver != nil {
		c.breakerObserver.ObserveBreaker(service, to.String())
	}
}

// BreakerState reports the breaker state of service ("closed", "half-open"
// or "open"). ok is false when breakers are off.
func (c *Client) BreakerState(service string) (state string, ok bool) {
	if c.breakers == nil {
		return "", false
	}

	c.mu.Lock()
	b, found := c.breakers[service]
	c.mu.Unlock()

	if !found {
		return reliability.StateClosed.String(), true
	}
	return b.State().String(), true
}
