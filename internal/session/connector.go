package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kcenon/file-manager/internal/frame"
)

// Connector is the client-side half of spec §4.4: dial, perform the
// handshake, auto-reconnect with backoff. It guarantees at most one
// in-flight dial per Connector, matching
// master-server/internal/ws/ws.go's RegisterConnection reconnect
// branch — generalized into an explicit supervisor goroutine per the
// §9 design note replacing recursive restart-from-callback.
type Connector struct {
	opts Options

	mu       sync.Mutex
	endpoint *Endpoint
	dialing  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc

	onConnection ConnectionCallback
	onMessage    MessageCallback
	onFile       FileCallback
	fileSource   FileSource
	fileSink     FileSink
}

// NewConnector constructs a client connector. Call Start to dial.
func NewConnector(opts Options) *Connector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{opts: opts, ctx: ctx, cancel: cancel}
}

func (c *Connector) SetConnectionNotification(cb ConnectionCallback) { c.mu.Lock(); c.onConnection = cb; c.mu.Unlock() }
func (c *Connector) SetMessageNotification(cb MessageCallback)       { c.mu.Lock(); c.onMessage = cb; c.mu.Unlock() }
func (c *Connector) SetFileNotification(cb FileCallback)             { c.mu.Lock(); c.onFile = cb; c.mu.Unlock() }
func (c *Connector) SetFileSource(fs FileSource)                     { c.mu.Lock(); c.fileSource = fs; c.mu.Unlock() }
func (c *Connector) SetFileSink(fs FileSink)                         { c.mu.Lock(); c.fileSink = fs; c.mu.Unlock() }

// Start begins dialing host:port. It is safe to call again after a
// disconnect callback fired with condition=false; a restart already in
// flight is a no-op.
func (c *Connector) Start(host string, port int, hi, normal, low int) {
	c.mu.Lock()
	if c.dialing || c.stopped {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.mu.Unlock()

	go c.superviseLoop(host, port, hi, normal, low)
}

// Stop idempotently tears down the current endpoint (if any) and
// cancels the reconnect supervisor.
func (c *Connector) Stop() error {
	c.mu.Lock()
	c.stopped = true
	ep := c.endpoint
	c.mu.Unlock()
	c.cancel()
	if ep != nil {
		return ep.Stop()
	}
	return nil
}

// Endpoint returns the currently active endpoint, or nil if not
// connected.
func (c *Connector) Endpoint() *Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

func (c *Connector) superviseLoop(host string, port int, hi, normal, low int) {
	defer func() {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ep, err := c.dialOnce(host, port)
		if err != nil {
			if !c.wait(ReconnectBackoff) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.endpoint = ep
		c.mu.Unlock()

		ep.Start(hi, normal, low)

		// Block until this endpoint's transport dies, then loop to
		// redial after the fixed backoff, unless Stop() was called.
		<-ep.closed

		if !c.wait(ReconnectBackoff) {
			return
		}
	}
}

func (c *Connector) wait(d time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Connector) dialOnce(host string, port int) (*Endpoint, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s:%d: %w", host, port, err)
	}

	var cipher frame.AEAD
	if c.opts.Encrypt {
		cipher, err = frame.NewChaCha20Poly1305Cipher(c.opts.ConnectionKey)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	codec := frame.NewCodec(cipher, c.opts.MaxFrameLen)

	ep := newEndpoint(conn, c.opts, codec)
	ep.setState(StateDialing)
	ep.mu.Lock()
	ep.condition = ConditionConnecting
	ep.mu.Unlock()

	c.mu.Lock()
	ep.onConnection = c.onConnection
	ep.onMessage = c.onMessage
	ep.onFile = c.onFile
	ep.fileSource = c.fileSource
	ep.fileSink = c.fileSink
	c.mu.Unlock()

	if err := clientHandshake(ep, codec); err != nil {
		conn.Close()
		return nil, err
	}
	return ep, nil
}

// clientHandshake drives states dialing -> handshake_sent ->
// key_exchange -> confirmed, per spec §4.2.
func clientHandshake(ep *Endpoint, codec *frame.Codec) error {
	keyDigest := frame.KeyDigest(ep.opts.ConnectionKey)
	hs := buildHandshake(ep.opts.Self, ep.opts.SessionType, ep.opts.Compress, ep.opts.Encrypt, keyDigest)

	ep.setState(StateHandshakeSent)
	if err := writeHandshakeFrame(ep.conn, codec, hs.Serialize()); err != nil {
		return err
	}

	ep.setState(StateKeyExchange)
	ep.mu.Lock()
	ep.condition = ConditionKeyExchanging
	ep.mu.Unlock()

	ackBody, err := readHandshakeFrame(ep.conn, codec)
	if err != nil {
		return err
	}
	ack, err := parseHandshakeAckOrReject(ackBody)
	if err != nil {
		return err
	}
	ep.setConfirmed(ack)
	return nil
}
