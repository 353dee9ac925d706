package session

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/frame"
)

// Acceptor is the server-side half of spec §4.3: listen, accept, spawn
// a session endpoint per connection, enforce session_limit_count.
// Grounded on master-server/internal/ws/ws.go's NewHub/RegisterConnection
// and internal/api/handlers/ws_handler.go's upgrade-and-register shape,
// adapted from one HTTP upgrade to a raw net.Listener.Accept loop.
type Acceptor struct {
	opts            Options
	sessionLimit    int
	listener        net.Listener
	workerCounts    WorkerCounts

	mu       sync.Mutex
	sessions map[*Endpoint]struct{}
	stopped  chan struct{}

	onConnection ConnectionCallback
	onMessage    MessageCallback
	onFile       FileCallback
	fileSource   FileSource
	fileSink     FileSink

	onSessionConnection SessionConnectionCallback
	onSessionMessage    SessionMessageCallback
	onSessionFile       SessionFileCallback
}

// SessionConnectionCallback is like ConnectionCallback but also carries
// the specific Endpoint, since an Acceptor multiplexes many downstream
// sessions and a caller that must address one of them (the router)
// needs to know which. SessionMessageCallback and SessionFileCallback
// are the message/file equivalents.
type SessionConnectionCallback func(ep *Endpoint, targetID, targetSubID string, condition bool)
type SessionMessageCallback func(ep *Endpoint, msg *container.Container)
type SessionFileCallback func(ep *Endpoint, targetID, targetSubID, indicationID, targetPath string)

// NewAcceptor constructs a server acceptor. sessionLimit 0 means
// unlimited live sessions, per spec §6.
func NewAcceptor(opts Options, sessionLimit int, workers WorkerCounts) *Acceptor {
	return &Acceptor{
		opts:         opts,
		sessionLimit: sessionLimit,
		workerCounts: workers,
		sessions:     make(map[*Endpoint]struct{}),
		stopped:      make(chan struct{}),
	}
}

func (a *Acceptor) SetConnectionNotification(cb ConnectionCallback) { a.mu.Lock(); a.onConnection = cb; a.mu.Unlock() }
func (a *Acceptor) SetMessageNotification(cb MessageCallback)       { a.mu.Lock(); a.onMessage = cb; a.mu.Unlock() }
func (a *Acceptor) SetFileNotification(cb FileCallback)             { a.mu.Lock(); a.onFile = cb; a.mu.Unlock() }
func (a *Acceptor) SetFileSource(fs FileSource)                     { a.mu.Lock(); a.fileSource = fs; a.mu.Unlock() }
func (a *Acceptor) SetFileSink(fs FileSink)                         { a.mu.Lock(); a.fileSink = fs; a.mu.Unlock() }

func (a *Acceptor) SetSessionConnectionNotification(cb SessionConnectionCallback) {
	a.mu.Lock()
	a.onSessionConnection = cb
	a.mu.Unlock()
}
func (a *Acceptor) SetSessionMessageNotification(cb SessionMessageCallback) {
	a.mu.Lock()
	a.onSessionMessage = cb
	a.mu.Unlock()
}
func (a *Acceptor) SetSessionFileNotification(cb SessionFileCallback) {
	a.mu.Lock()
	a.onSessionFile = cb
	a.mu.Unlock()
}

// Listen starts accepting connections on port; it returns once the
// listener is bound, and runs the accept loop in the background.
func (a *Acceptor) Listen(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("session: listen on port %d: %w", port, err)
	}
	a.listener = ln
	go a.acceptLoop()
	return nil
}

// Addr returns the listener's bound address. Valid after Listen
// returns; used by callers that listen on port 0 and need the
// ephemeral port actually assigned.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// WaitStop blocks until Stop is called and all sessions have drained.
func (a *Acceptor) WaitStop() {
	<-a.stopped
}

// Stop closes the listener and every live session.
func (a *Acceptor) Stop() error {
	var err error
	if a.listener != nil {
		err = a.listener.Close()
	}
	a.mu.Lock()
	sessions := make([]*Endpoint, 0, len(a.sessions))
	for ep := range a.sessions {
		sessions = append(sessions, ep)
	}
	a.mu.Unlock()
	for _, ep := range sessions {
		ep.Stop()
	}
	close(a.stopped)
	return err
}

func (a *Acceptor) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *Acceptor) register(ep *Endpoint) {
	a.mu.Lock()
	a.sessions[ep] = struct{}{}
	a.mu.Unlock()
}

func (a *Acceptor) unregister(ep *Endpoint) {
	a.mu.Lock()
	delete(a.sessions, ep)
	a.mu.Unlock()
}

func (a *Acceptor) acceptLoop() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return
		}
		if a.sessionLimit > 0 && a.liveCount() >= a.sessionLimit {
			// spec §4.3: immediately close after reading the handshake
			// header, without completing the handshake.
			go func(c net.Conn) {
				header := make([]byte, frame.HeaderSize)
				c.Read(header)
				c.Close()
			}(conn)
			continue
		}
		go a.handleConn(conn)
	}
}

func (a *Acceptor) handleConn(conn net.Conn) {
	var cipher frame.AEAD
	if a.opts.Encrypt {
		var err error
		cipher, err = frame.NewChaCha20Poly1305Cipher(a.opts.ConnectionKey)
		if err != nil {
			conn.Close()
			return
		}
	}
	codec := frame.NewCodec(cipher, a.opts.MaxFrameLen)

	ep := newEndpoint(conn, a.opts, codec)
	ep.setState(StateDialing)

	a.mu.Lock()
	plainConnection := a.onConnection
	plainMessage := a.onMessage
	plainFile := a.onFile
	sessionConnection := a.onSessionConnection
	sessionMessage := a.onSessionMessage
	sessionFile := a.onSessionFile
	ep.fileSource = a.fileSource
	ep.fileSink = a.fileSink
	a.mu.Unlock()

	ep.onConnection = func(targetID, targetSubID string, condition bool) {
		if plainConnection != nil {
			plainConnection(targetID, targetSubID, condition)
		}
		if sessionConnection != nil {
			sessionConnection(ep, targetID, targetSubID, condition)
		}
	}
	ep.onMessage = func(msg *container.Container) {
		if plainMessage != nil {
			plainMessage(msg)
		}
		if sessionMessage != nil {
			sessionMessage(ep, msg)
		}
	}
	ep.onFile = func(targetID, targetSubID, indicationID, targetPath string) {
		if plainFile != nil {
			plainFile(targetID, targetSubID, indicationID, targetPath)
		}
		if sessionFile != nil {
			sessionFile(ep, targetID, targetSubID, indicationID, targetPath)
		}
	}

	if err := a.serverHandshake(ep, codec); err != nil {
		conn.Close()
		return
	}

	a.register(ep)
	ep.Start(a.workerCounts.High, a.workerCounts.Normal, a.workerCounts.Low)
	go func() {
		<-ep.closed
		a.unregister(ep)
	}()
}

// serverHandshake validates the client's advertisement against this
// acceptor's accepted session types and connection-key digest, per
// spec §4.2/§6. A mismatch sends a rejection container and closes.
func (a *Acceptor) serverHandshake(ep *Endpoint, codec *frame.Codec) error {
	ep.setState(StateHandshakeSent)
	body, err := readHandshakeFrame(ep.conn, codec)
	if err != nil {
		return err
	}
	c, err := container.Parse(body)
	if err != nil {
		return err
	}
	advert, err := parseHandshake(c)
	if err != nil {
		return err
	}

	expectedDigest := frame.KeyDigest(a.opts.ConnectionKey)
	if !bytes.Equal(advert.keyDigest, expectedDigest[:]) {
		a.rejectHandshake(ep, codec, "connection key mismatch")
		return fmt.Errorf("session: connection key mismatch from %s", advert.self.ID)
	}
	if !a.opts.acceptsType(advert.sessionType) {
		a.rejectHandshake(ep, codec, "unsupported session_type")
		return fmt.Errorf("session: unsupported session_type %q from %s", advert.sessionType, advert.self.ID)
	}

	ep.setState(StateKeyExchange)
	ep.mu.Lock()
	ep.condition = ConditionKeyExchanging
	ep.mu.Unlock()

	ack := buildHandshakeAck(a.opts.Self)
	if err := writeHandshakeFrame(ep.conn, codec, ack.Serialize()); err != nil {
		return err
	}
	ep.setConfirmed(advert.self)
	return nil
}

func (a *Acceptor) rejectHandshake(ep *Endpoint, codec *frame.Codec, reason string) {
	reject := buildHandshakeReject(reason)
	writeHandshakeFrame(ep.conn, codec, reject.Serialize())
}
