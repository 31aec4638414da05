package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamcompute/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error values returned before any JetStream call is attempted.
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Client owns one NATS connection and its JetStream context. Failed
// JetStream calls count towards a circuit breaker; once open, calls fail
// fast until the backoff elapses.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	failures         atomic.Int32
	circuitFailures  atomic.Int32
	circuitThreshold int32
	backoff          atomic.Int64 // time.Duration
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	username   string
	password   string
	token      string
	clientName string

	metrics *jetstreamMetrics

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.status.Store(StatusDisconnected)
	c.backoff.Store(int64(time.Second))
	return c, nil
}

// URL returns the server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// IsHealthy reports whether the client is connected.
func (c *Client) IsHealthy() bool { return c.Status() == StatusConnected }

// Failures returns the number of failures since the last success.
func (c *Client) Failures() int32 { return c.failures.Load() }

// Backoff returns the delay before an open circuit is tested again.
func (c *Client) Backoff() time.Duration { return time.Duration(c.backoff.Load()) }

func (c *Client) setStatus(s ConnectionStatus) { c.status.Store(s) }

// recordFailure counts a failure and opens the circuit once the threshold is
// reached. Each opening doubles the backoff up to maxBackoff.
func (c *Client) recordFailure() {
	c.failures.Add(1)
	n := c.circuitFailures.Add(1)
	if n < c.circuitThreshold {
		return
	}
	current := c.Status()
	if current == StatusCircuitOpen || !c.status.CompareAndSwap(current, StatusCircuitOpen) {
		return
	}
	wait := c.Backoff()
	next := wait * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(int64(next))
	c.circuitFailures.Store(0)
	c.logger.Warn("circuit breaker opened", "failures", n, "backoff", wait)
	time.AfterFunc(wait, c.halfOpen)
}

// halfOpen lets the next call through after the backoff.
func (c *Client) halfOpen() {
	if c.Status() != StatusCircuitOpen {
		return
	}
	if conn := c.connection(); conn != nil && conn.IsConnected() {
		c.setStatus(StatusConnected)
	} else {
		c.setStatus(StatusDisconnected)
	}
	c.logger.Debug("circuit breaker half open")
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(int64(time.Second))
}

func (c *Client) connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			c.resetCircuit()
			c.logger.Info("reconnected to NATS")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("NATS error", "error", err)
		}),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server and initializes JetStream.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		js   jetstream.JetStream
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		if err != nil {
			done <- result{err: err}
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			done <- result{err: err}
			return
		}
		done <- result{conn: conn, js: js}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.recordFailure()
			if c.Status() == StatusCircuitOpen {
				return ErrCircuitOpen
			}
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(r.err, "Client", "Connect", "establish connection")
		}
		c.mu.Lock()
		c.conn, c.js = r.conn, r.js
		c.mu.Unlock()
	case <-ctx.Done():
		c.recordFailure()
		if c.Status() != StatusCircuitOpen {
			c.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("connected to NATS", "url", c.url)
	return nil
}

// Close drains the connection. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn, c.js = nil, nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()
	defer c.setStatus(StatusDisconnected)

	if conn == nil {
		return nil
	}
	defer conn.Close()

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()
	select {
	case err := <-drained:
		if err != nil {
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(c.drainTimeout):
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", c.drainTimeout), "Client", "Close", "drain")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain")
	}
}

// JetStream returns the JetStream context, checking the circuit first.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil || c.conn == nil || !c.conn.IsConnected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// Do runs fn with the JetStream context and feeds its outcome to the
// circuit breaker. Not-found style errors are answers, not failures.
func (c *Client) Do(ctx context.Context, op string, fn func(ctx context.Context, js jetstream.JetStream) error) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	err = fn(ctx, js)
	switch {
	case err == nil:
		c.resetCircuit()
	case isNotFound(err):
	default:
		c.recordFailure()
		c.metrics.recordError(op)
	}
	return err
}

// EnsureStream creates the stream or updates it to cfg.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	var stream jetstream.Stream
	err := c.Do(ctx, "ensure_stream", func(ctx context.Context, js jetstream.JetStream) error {
		s, err := js.CreateOrUpdateStream(ctx, cfg)
		stream = s
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
	}
	c.metrics.trackStream(cfg.Name, stream)
	return stream, nil
}

// EnsureKeyValue returns the bucket, creating it when missing.
func (c *Client) EnsureKeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	var kv jetstream.KeyValue
	err := c.Do(ctx, "ensure_kv", func(ctx context.Context, js jetstream.JetStream) error {
		b, err := js.KeyValue(ctx, cfg.Bucket)
		if err == nil {
			kv = b
			return nil
		}
		if b, err = js.CreateKeyValue(ctx, cfg); err != nil && isAlreadyExists(err) {
			b, err = js.KeyValue(ctx, cfg.Bucket)
		}
		kv = b
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureKeyValue", "open bucket "+cfg.Bucket)
	}
	return kv, nil
}

// EnsureObjectStore returns the object store, creating it when missing.
func (c *Client) EnsureObjectStore(ctx context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error) {
	var store jetstream.ObjectStore
	err := c.Do(ctx, "ensure_object_store", func(ctx context.Context, js jetstream.JetStream) error {
		s, err := js.ObjectStore(ctx, cfg.Bucket)
		if err == nil {
			store = s
			return nil
		}
		if s, err = js.CreateObjectStore(ctx, cfg); err != nil && isAlreadyExists(err) {
			s, err = js.ObjectStore(ctx, cfg.Bucket)
		}
		store = s
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureObjectStore", "open object store "+cfg.Bucket)
	}
	return store, nil
}

// Publish publishes to a stream subject and returns the stream sequence.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) (uint64, error) {
	var seq uint64
	err := c.Do(ctx, "publish", func(ctx context.Context, js jetstream.JetStream) error {
		ack, err := js.Publish(ctx, subject, data)
		if err == nil {
			seq = ack.Sequence
		}
		return err
	})
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return seq, nil
}

func isAlreadyExists(err error) bool {
	s := err.Error()
	return strings.Contains(s, "already in use") || strings.Contains(s, "already exists")
}

func isNotFound(err error) bool {
	return stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrMsgNotFound) ||
		stderrors.Is(err, jetstream.ErrObjectNotFound) ||
		stderrors.Is(err, jetstream.ErrStreamNotFound) ||
		stderrors.Is(err, jetstream.ErrBucketNotFound)
}
