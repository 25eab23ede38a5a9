package master

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"coflowd/internal/agent/config"
	"coflowd/internal/types"
	"coflowd/internal/version"

	"go.uber.org/zap"
)

// State represents the registration state of the master link
type State int32

const (
	StateDisconnected State = iota
	StateRegistering
	StateRegistered
	StateFailed // terminal
)

// String returns a printable state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Events delivered to the agent loop. Exactly one of Registered or
// Rejected follows a Connect call; Disassociated is emitted at most
// once over the connection's lifetime.

// Registered reports a successful registration handshake
type Registered struct {
	MasterUI string
}

// Rejected reports that the master refused the registration
type Rejected struct {
	Reason string
}

// Disassociated reports that the registered master stopped answering
type Disassociated struct {
	Err error
}

// Sink receives connection lifecycle events
type Sink func(ev any)

// Connection manages the registration handshake with the coordinator
// and watches it for failure afterwards.
type Connection struct {
	cfg      *config.MasterConfig
	identity types.RegisterRequest
	logger   *zap.Logger
	client   *http.Client
	sink     Sink

	state        atomic.Int32
	masterUI     string
	disassocOnce sync.Once
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewConnection creates an unconnected master link
func NewConnection(cfg *config.MasterConfig, identity types.RegisterRequest, sink Sink, logger *zap.Logger) *Connection {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &Connection{
		cfg:      cfg,
		identity: identity,
		logger:   logger,
		client:   client,
		sink:     sink,
		stopChan: make(chan struct{}),
	}
}

// State returns the current connection state
func (c *Connection) State() State {
	return State(c.state.Load())
}

// MasterUI returns the master's UI endpoint recorded at registration
func (c *Connection) MasterUI() string {
	return c.masterUI
}

// Connect resolves the master address and performs the registration
// handshake. The outcome is delivered to the sink as a Registered or
// Rejected event; a transport or resolution error is returned directly
// and is fatal to the caller. On success the failure watch loop starts.
func (c *Connection) Connect(ctx context.Context) error {
	c.state.Store(int32(StateRegistering))

	u, err := url.Parse(c.cfg.Address)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("invalid master address %q: %w", c.cfg.Address, err)
	}
	if _, err := net.ResolveTCPAddr("tcp", u.Host); err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to resolve master %q: %w", u.Host, err)
	}

	payload, err := json.Marshal(c.identity)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	endpoint := c.cfg.Address + "/api/v1/agents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to create registration request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "coflowd-agent/"+version.GetInfo().Version)

	resp, err := c.client.Do(req)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to send registration: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var ack types.RegisteredAck
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			c.state.Store(int32(StateFailed))
			return fmt.Errorf("failed to decode registration ack: %w", err)
		}
		c.masterUI = ack.MasterUI
		c.state.Store(int32(StateRegistered))

		c.wg.Add(1)
		go c.watch()

		c.sink(Registered{MasterUI: ack.MasterUI})
		return nil
	default:
		var rej types.RegistrationRejected
		if err := json.NewDecoder(resp.Body).Decode(&rej); err != nil || rej.Reason == "" {
			rej.Reason = fmt.Sprintf("master returned status %d", resp.StatusCode)
		}
		c.state.Store(int32(StateFailed))
		c.sink(Rejected{Reason: rej.Reason})
		return nil
	}
}

// SendHeartbeat sends one heartbeat. Fire-and-forget: the caller logs
// the error, nothing retries it within the cycle.
func (c *Connection) SendHeartbeat(ctx context.Context, hb types.Heartbeat) error {
	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/agents/%s/heartbeat", c.cfg.Address, hb.AgentID)
	return c.post(ctx, endpoint, payload)
}

// ForwardFlow relays a flow registration to the master
func (c *Connection) ForwardFlow(ctx context.Context, desc types.FlowDescriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal flow descriptor: %w", err)
	}
	return c.post(ctx, c.cfg.Address+"/api/v1/flows", payload)
}

// ForwardFlows relays a batch of flow registrations to the master
func (c *Connection) ForwardFlows(ctx context.Context, batch types.AddFlowsRequest) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal flow batch: %w", err)
	}
	return c.post(ctx, c.cfg.Address+"/api/v1/flows/batch", payload)
}

// post sends a JSON payload and checks for a 2xx reply
func (c *Connection) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "coflowd-agent/"+version.GetInfo().Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrMasterUnreachable, err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("master returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// watch probes the registered master on a fixed interval. A run of
// consecutive probe failures is treated as a disassociation of the
// remote address and reported exactly once.
func (c *Connection) watch() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.WatchInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if err := c.probe(); err != nil {
				failures++
				c.logger.Warn("Master probe failed",
					zap.Int("failures", failures),
					zap.Error(err))

				if failures >= c.cfg.MaxFailures {
					c.disassocOnce.Do(func() {
						c.state.Store(int32(StateFailed))
						c.sink(Disassociated{Err: err})
					})
					return
				}
			} else {
				failures = 0
			}
		}
	}
}

// probe checks the master's health endpoint
func (c *Connection) probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WatchInterval)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Address+"/api/v1/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("master health returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the watch loop
func (c *Connection) Close() error {
	close(c.stopChan)
	c.wg.Wait()
	return nil
}
