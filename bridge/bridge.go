package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// healthProbeTimeout bounds the advisory GET /health probe.
	healthProbeTimeout = 5 * time.Second

	// executeTimeout is deliberately long to accommodate slow backend
	// executions such as long-running renders.
	executeTimeout = 300 * time.Second
)

// ServiceConfig is the immutable configuration of a Connection.
// An empty Endpoint means the backend has no configured address.
type ServiceConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	Protocol string `json:"protocol"`
}

// Ack is the result envelope returned by Connect and Disconnect.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Status is a point-in-time snapshot of a Connection.
type Status struct {
	ToolName  string        `json:"toolName"`
	Connected bool          `json:"connected"`
	Config    ServiceConfig `json:"config"`
}

// Connection is a named logical link to one backend service.
// It holds no socket or handle; the connected flag is the only state.
type Connection struct {
	name   string
	cfg    ServiceConfig
	logger *zap.SugaredLogger

	customClient *http.Client

	probeTimeout time.Duration
	execTimeout  time.Duration

	mut       sync.Mutex
	connected bool
	client    *http.Client
}

type Option func(c *Connection)

func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) {
		c.logger = l.Named("bridge").Sugar()
	}
}

// WithHTTPClient replaces the client used for all outbound calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Connection) {
		c.customClient = hc
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.probeTimeout = d
	}
}

func WithExecuteTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.execTimeout = d
	}
}

// NewConnection builds a Connection in the disconnected state.
// It never fails and performs no I/O.
func NewConnection(name string, cfg ServiceConfig, opts ...Option) *Connection {
	c := &Connection{
		name:         name,
		cfg:          cfg,
		logger:       zap.NewNop().Sugar(),
		probeTimeout: healthProbeTimeout,
		execTimeout:  executeTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect marks the connection usable. When a non-local endpoint is
// configured it first issues an advisory GET /health probe; probe failures
// are logged and swallowed, so Connect always reports success.
func (c *Connection) Connect(ctx context.Context) Ack {
	endpoint := c.cfg.Endpoint

	if endpoint != "" && !localEndpoint(endpoint) {
		if err := c.probe(ctx, endpoint); err != nil {
			c.logger.Debugf("health probe for %s backend failed: %s", c.name, err)
		}
	}

	c.mut.Lock()
	c.connected = true
	if c.client == nil {
		c.client = c.newHTTPClient()
	}
	c.mut.Unlock()

	if endpoint == "" {
		return Ack{Success: true, Message: fmt.Sprintf("%s backend marked connected (no endpoint configured)", c.name)}
	}
	return Ack{Success: true, Message: fmt.Sprintf("connected to %s backend at %s", c.name, endpoint)}
}

// Disconnect resets the connection to its initial state. Safe to call
// multiple times.
func (c *Connection) Disconnect() Ack {
	c.mut.Lock()
	c.connected = false
	c.client = nil
	c.mut.Unlock()
	return Ack{Success: true, Message: fmt.Sprintf("disconnected from %s backend", c.name)}
}

// Status returns a snapshot of the connection.
func (c *Connection) Status() Status {
	c.mut.Lock()
	connected := c.connected
	c.mut.Unlock()
	return Status{
		ToolName:  c.name,
		Connected: connected,
		Config:    c.cfg,
	}
}

// Execute forwards a named command with parameters to the backend's
// /execute route and returns the backend's JSON response verbatim.
// Failures are returned as an envelope of the form
//
//	{"success": false, "error": "...", "endpoint": "..."}
//
// and are never raised as Go errors. A key named "command" in params
// overrides the command argument in the outgoing body.
func (c *Connection) Execute(ctx context.Context, command string, params map[string]any) map[string]any {
	c.mut.Lock()
	connected := c.connected
	c.mut.Unlock()
	if !connected {
		c.Connect(ctx)
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		return failure(fmt.Sprintf("%s backend endpoint not configured", c.name), "")
	}

	body := make(map[string]any, len(params)+1)
	body["command"] = command
	for k, v := range params {
		body[k] = v
	}

	b, err := json.Marshal(body)
	if err != nil {
		return failure(fmt.Sprintf("encoding %q request: %s", command, err), endpoint)
	}

	ctx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/execute", bytes.NewReader(b))
	if err != nil {
		return failure(fmt.Sprintf("building %q request: %s", command, err), endpoint)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return failure(fmt.Sprintf("executing %q against %s backend: %s", command, c.name, err), endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(fmt.Sprintf("%s backend returned status %d %s", c.name, resp.StatusCode, http.StatusText(resp.StatusCode)), endpoint)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failure(fmt.Sprintf("decoding %s backend response: %s", c.name, err), endpoint)
	}
	return result
}

func (c *Connection) probe(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := c.newHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected probe status code %d", resp.StatusCode)
	}
	return nil
}

func (c *Connection) httpClient() *http.Client {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.client == nil {
		c.client = c.newHTTPClient()
	}
	return c.client
}

func (c *Connection) newHTTPClient() *http.Client {
	if c.customClient != nil {
		return c.customClient
	}
	return &http.Client{}
}

func failure(msg, endpoint string) map[string]any {
	m := map[string]any{
		"success": false,
		"error":   msg,
	}
	if endpoint != "" {
		m["endpoint"] = endpoint
	}
	return m
}

// localEndpoint reports whether the endpoint addresses the local host.
// Local backends are assumed reachable and are not probed.
func localEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified()
}
