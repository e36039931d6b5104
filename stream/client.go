// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/stripesight/stripesight/lib/clock"
)

// State is the connection manager's reported lifecycle state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// Backoff parameters for reconnection. The delay starts at
// DefaultBaseDelay, doubles per consecutive failure, and caps at
// DefaultMaxDelay; each wait is jittered to avoid thundering-herd
// reconnects when many dashboards share a backend.
const (
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// maxFrameBytes bounds a single stream frame. 1 MB is far beyond any
// legitimate envelope; larger lines indicate a corrupt or hostile
// stream and terminate the connection (which then reconnects).
const maxFrameBytes = 1 << 20

// controlMessage is the outbound join/leave wire format.
type controlMessage struct {
	Type            string `json:"type"`
	InvestigationID string `json:"investigation_id"`
}

// Config configures a Client.
type Config struct {
	// Address is the stream endpoint in host:port form. Ignored when
	// Dial is set.
	Address string

	// Dial overrides the transport, letting tests connect over
	// net.Pipe. Nil selects a TCP dialer for Address.
	Dial func(ctx context.Context) (net.Conn, error)

	// InvestigationID is the channel to join. The client re-joins the
	// same id on every reconnect; subscribing to a different
	// investigation means a new Client (and a new engine).
	InvestigationID string

	// BaseDelay and MaxDelay tune the reconnect backoff. Zero values
	// select the defaults.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Clock drives backoff waits. Nil selects the real clock.
	Clock clock.Clock

	// Logger receives connection diagnostics. Nil selects
	// slog.Default().
	Logger *slog.Logger
}

// Client maintains the subscription. Connect and Disconnect are
// idempotent; a failed transport is never fatal to the caller — it
// surfaces as StateDisconnected followed by periodic retries.
//
// A Client is single-use: after Disconnect it stays down. A new
// subscription (a different investigation, or the same one after
// session teardown) gets a new Client and a fresh engine, because
// state from different subscriptions is never comparable.
type Client struct {
	investigationID string
	dial            func(ctx context.Context) (net.Conn, error)
	baseDelay       time.Duration
	maxDelay        time.Duration
	clock           clock.Clock
	logger          *slog.Logger

	messages chan []byte
	states   chan State

	mu        sync.Mutex
	lastState State
	cancel    context.CancelFunc
	done      chan struct{}
	used      bool

	// activeConn is the live connection, tracked so Disconnect can
	// unblock a reader stuck in Scan.
	activeConn net.Conn
}

// NewClient creates a Client. It does not connect; call Connect.
func NewClient(config Config) (*Client, error) {
	if config.InvestigationID == "" {
		return nil, fmt.Errorf("stream: InvestigationID is required")
	}
	if config.Address == "" && config.Dial == nil {
		return nil, fmt.Errorf("stream: either Address or Dial is required")
	}

	dial := config.Dial
	if dial == nil {
		address := config.Address
		dial = func(ctx context.Context) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", address)
		}
	}

	baseDelay := config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		investigationID: config.InvestigationID,
		dial:            dial,
		baseDelay:       baseDelay,
		maxDelay:        maxDelay,
		clock:           clk,
		logger:          logger,
		messages:        make(chan []byte, 256),
		states:          make(chan State, 16),
		lastState:       StateDisconnected,
	}, nil
}

// Messages returns the inbound frame queue. Frames arrive in wire
// order; the channel is the serialization point between the transport
// and the engine. The channel is closed after Disconnect.
func (client *Client) Messages() <-chan []byte {
	return client.messages
}

// States returns connection state changes. Sends never block the
// connection goroutine: if the consumer lags, intermediate states are
// dropped and LastState still reports the newest.
func (client *Client) States() <-chan State {
	return client.states
}

// LastState returns the most recently reported state.
func (client *Client) LastState() State {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.lastState
}

// InvestigationID returns the subscribed investigation.
func (client *Client) InvestigationID() string {
	return client.investigationID
}

// Connect starts the connection goroutine. Calling Connect on an
// already-connected (or already torn down) client is a no-op.
func (client *Client) Connect() {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.used {
		return
	}
	client.used = true
	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	done := make(chan struct{})
	client.done = done
	go func() {
		defer close(done)
		client.run(ctx)
	}()
}

// Disconnect tears the subscription down: it stops the connection
// goroutine, cancels any pending reconnect wait, sends a best-effort
// leave message, and closes Messages. Safe to call with no active
// subscription, and safe to call twice.
func (client *Client) Disconnect() {
	client.mu.Lock()
	cancel := client.cancel
	done := client.done
	conn := client.activeConn
	client.cancel = nil
	client.done = nil
	client.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		// Unblock the read loop; the leave message was already sent
		// by the run goroutine's deferred teardown if the connection
		// is still healthy.
		conn.SetReadDeadline(time.Now())
	}
	<-done
}

// run is the connection lifecycle loop: dial, join, read until
// failure, back off, repeat. Exits only on context cancellation.
func (client *Client) run(ctx context.Context) {
	defer close(client.messages)
	defer client.setState(StateDisconnected)

	delay := client.baseDelay
	attempt := 0

	for {
		if attempt == 0 {
			client.setState(StateConnecting)
		} else {
			client.setState(StateReconnecting)
		}

		err := client.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}

		client.setState(StateDisconnected)
		client.logger.Warn("stream disconnected",
			"investigation_id", client.investigationID,
			"error", err,
			"backoff", delay,
			"attempt", attempt+1,
		)

		select {
		case <-ctx.Done():
			return
		case <-client.clock.After(jitter(delay)):
		}

		delay = min(delay*2, client.maxDelay)
		attempt++
	}
}

// runConnection performs one dial/join/read cycle. Returns the error
// that ended the connection.
func (client *Client) runConnection(ctx context.Context) error {
	conn, err := client.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	client.mu.Lock()
	client.activeConn = conn
	client.mu.Unlock()
	defer func() {
		client.mu.Lock()
		client.activeConn = nil
		client.mu.Unlock()
		conn.Close()
	}()

	if err := client.sendControl(conn, "join"); err != nil {
		return fmt.Errorf("join %s: %w", client.investigationID, err)
	}

	client.setState(StateConnected)
	client.logger.Info("stream connected", "investigation_id", client.investigationID)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			client.sendControl(conn, "leave")
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer; frames handed to the engine
		// must own their bytes.
		frame := make([]byte, len(line))
		copy(frame, line)

		select {
		case client.messages <- frame:
		case <-ctx.Done():
			client.sendControl(conn, "leave")
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		client.sendControl(conn, "leave")
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

// sendControl writes a join/leave control message with a short write
// deadline so teardown never hangs on a dead peer.
func (client *Client) sendControl(conn net.Conn, kind string) error {
	payload, err := json.Marshal(controlMessage{
		Type:            kind,
		InvestigationID: client.investigationID,
	})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetWriteDeadline(time.Time{})
	_, err = conn.Write(append(payload, '\n'))
	return err
}

// setState records and publishes a state change. Publishing drops the
// oldest queued state when the consumer lags, so the channel always
// converges on the newest state.
func (client *Client) setState(state State) {
	client.mu.Lock()
	if client.lastState == state {
		client.mu.Unlock()
		return
	}
	client.lastState = state
	client.mu.Unlock()

	for {
		select {
		case client.states <- state:
			return
		default:
			select {
			case <-client.states:
			default:
			}
		}
	}
}

// jitter spreads a backoff delay uniformly over [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
