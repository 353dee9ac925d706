package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/frame"
)

const (
	unitKindMessage byte = 0
	unitKindFile    byte = 1
)

// ConnectionCallback is invoked once with condition=true on a successful
// handshake and exactly once with condition=false on teardown, per spec
// §5's per-session ordering guarantee.
type ConnectionCallback func(targetID, targetSubID string, condition bool)

// MessageCallback receives a parsed message_line container.
type MessageCallback func(msg *container.Container)

// FileCallback is invoked after a file frame arrives and has been handed
// to the FileSink, if one is set, carrying enough identity to route
// progress accounting. It fires even when no FileSink is set or the
// write to it fails.
type FileCallback func(targetID, targetSubID, indicationID, targetPath string)

// FileSource is the out-of-scope "on-disk file reader" collaborator
// used by SendFiles.
type FileSource interface {
	Open(path string) (io.ReadCloser, error)
}

// FileSink is the out-of-scope "on-disk file writer" collaborator used
// when a file frame arrives.
type FileSink interface {
	Create(path string) (io.WriteCloser, error)
}

// TransferEntry is one (source, target) pair in a send_files manifest,
// per spec §4.2.
type TransferEntry struct {
	IndicationID string
	Source       string
	Target       string
}

// Endpoint is a single session's state machine and running I/O loop. It
// is constructed by Connector or Acceptor, which run the handshake on it
// before calling Start, and exposes the public contract from spec §4.2.
type Endpoint struct {
	opts  Options
	conn  net.Conn
	codec *frame.Codec
	queue *sendQueue

	mu        sync.Mutex
	state     State
	condition Condition
	peer      Identity

	onConnection ConnectionCallback
	onMessage    MessageCallback
	onFile       FileCallback

	fileSource FileSource
	fileSink   FileSink

	closeOnce sync.Once
	closed    chan struct{}

	connectFired    bool
	disconnectFired bool
}

func newEndpoint(conn net.Conn, opts Options, codec *frame.Codec) *Endpoint {
	return &Endpoint{
		opts:   opts,
		conn:   conn,
		codec:  codec,
		queue:  newSendQueue(opts.queueDepth()),
		state:  StateIdle,
		closed: make(chan struct{}),
	}
}

func (e *Endpoint) SetConnectionNotification(cb ConnectionCallback) { e.mu.Lock(); e.onConnection = cb; e.mu.Unlock() }
func (e *Endpoint) SetMessageNotification(cb MessageCallback)       { e.mu.Lock(); e.onMessage = cb; e.mu.Unlock() }
func (e *Endpoint) SetFileNotification(cb FileCallback)             { e.mu.Lock(); e.onFile = cb; e.mu.Unlock() }
func (e *Endpoint) SetFileSource(fs FileSource)                     { e.mu.Lock(); e.fileSource = fs; e.mu.Unlock() }
func (e *Endpoint) SetFileSink(fs FileSink)                         { e.mu.Lock(); e.fileSink = fs; e.mu.Unlock() }

func (e *Endpoint) State() State         { e.mu.Lock(); defer e.mu.Unlock(); return e.state }
func (e *Endpoint) Condition() Condition { e.mu.Lock(); defer e.mu.Unlock(); return e.condition }
func (e *Endpoint) Peer() Identity       { e.mu.Lock(); defer e.mu.Unlock(); return e.peer }
func (e *Endpoint) BridgeMode() bool     { return e.opts.Bridge }

func (e *Endpoint) setState(s State) { e.mu.Lock(); e.state = s; e.mu.Unlock() }

func (e *Endpoint) setConfirmed(peer Identity) {
	e.mu.Lock()
	e.state = StateConfirmed
	e.condition = ConditionConfirmed
	e.peer = peer
	cb := e.onConnection
	alreadyFired := e.connectFired
	e.connectFired = true
	e.mu.Unlock()
	if cb != nil && !alreadyFired {
		cb(peer.ID, peer.SubID, true)
	}
}

// fireDisconnected delivers condition=false exactly once per lifetime,
// per spec §5's ordering guarantee.
func (e *Endpoint) fireDisconnected() {
	e.mu.Lock()
	e.state = StateDraining
	e.condition = ConditionExpired
	cb := e.onConnection
	peer := e.peer
	already := e.disconnectFired
	e.disconnectFired = true
	e.mu.Unlock()
	if cb != nil && !already {
		cb(peer.ID, peer.SubID, false)
	}
}

// Start launches the send-queue workers and the read loop. Callers use
// this once the handshake has produced a confirmed Endpoint (see
// Connector/Acceptor).
func (e *Endpoint) Start(hi, normal, low int) {
	e.queue.startWorkers(WorkerCounts{High: hi, Normal: normal, Low: low}.asArray())
	go e.readLoop()
}

// Stop is idempotent: it transitions to draining, flushes the send
// queue up to DrainGrace, then closes the transport.
func (e *Endpoint) Stop() error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.setState(StateDraining)
		drained := make(chan struct{})
		go func() {
			e.queue.drain()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(DrainGrace):
		}
		closeErr = e.conn.Close()
		e.setState(StateClosed)
		close(e.closed)
		e.fireDisconnected()
	})
	return closeErr
}

// Send enqueues a message_line container at normal priority, per spec
// §4.2's default.
func (e *Endpoint) Send(msg *container.Container) error {
	return e.SendPriority(msg, PriorityNormal)
}

func (e *Endpoint) SendPriority(msg *container.Container, p Priority) error {
	if e.Condition() != ConditionConfirmed {
		return fmt.Errorf("session: send on non-confirmed endpoint (condition=%s)", e.Condition())
	}
	e.queue.enqueue(p, func() {
		if err := e.writeUnit(unitKindMessage, msg.Serialize()); err != nil {
			e.abort(err)
		}
	})
	return nil
}

// SendFiles is the server-side file_line helper from spec §4.2: for
// each entry, read the source bytes via FileSource and emit a file
// frame; each successfully-delivered file triggers the peer's
// file-arrival callback (observed locally only once the peer
// acknowledges, which in this implementation is represented by the
// write succeeding — the peer's own onFile callback fires on its
// receiving side).
func (e *Endpoint) SendFiles(entries []TransferEntry) error {
	if e.fileSource == nil {
		return errors.New("session: SendFiles requires a FileSource")
	}
	for _, entry := range entries {
		rc, err := e.fileSource.Open(entry.Source)
		if err != nil {
			return fmt.Errorf("session: opening %q: %w", entry.Source, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("session: reading %q: %w", entry.Source, err)
		}
		payload := encodeFileUnit(entry.IndicationID, entry.Target, data)
		e.queue.enqueue(PriorityNormal, func(payload []byte) func() {
			return func() {
				if err := e.writeUnit(unitKindFile, payload); err != nil {
					e.abort(err)
				}
			}
		}(payload))
	}
	return nil
}

func (e *Endpoint) writeUnit(kind byte, body []byte) error {
	payload := make([]byte, 1+len(body))
	payload[0] = kind
	copy(payload[1:], body)

	encoded, err := e.codec.Encode(payload, frame.Options{
		Compress:          e.opts.Compress,
		Encrypt:           e.opts.Encrypt,
		CompressBlockSize: e.opts.CompressBlockSize,
	})
	if err != nil {
		return err
	}
	_, err = e.conn.Write(encoded)
	return err
}

// readLoop implements the receive-dispatch side of spec §4.2: each
// frame is decoded, its leading unit-kind byte routes it to the message
// or file callback. Any ProtocolError or transport error is fatal to
// the session (spec §7): the loop exits and Stop() is invoked.
func (e *Endpoint) readLoop() {
	defer e.Stop()
	header := make([]byte, frame.HeaderSize)
	for {
		if _, err := io.ReadFull(e.conn, header); err != nil {
			return
		}
		flags, payloadLen, err := frame.DecodeHeader(header)
		if err != nil {
			return
		}
		if err := frame.MaxHeaderLimit(payloadLen, e.codec.MaxFrameLen); err != nil {
			return
		}
		raw := make([]byte, payloadLen)
		if _, err := io.ReadFull(e.conn, raw); err != nil {
			return
		}
		plain, err := e.codec.Decode(flags, raw)
		if err != nil {
			return
		}
		if len(plain) < 1 {
			continue
		}
		kind, body := plain[0], plain[1:]
		switch kind {
		case unitKindMessage:
			e.dispatchMessage(body)
		case unitKindFile:
			e.dispatchFile(body)
		}
	}
}

func (e *Endpoint) dispatchMessage(body []byte) {
	msg, err := container.Parse(body)
	if err != nil {
		return
	}
	e.mu.Lock()
	cb := e.onMessage
	e.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (e *Endpoint) dispatchFile(body []byte) {
	indicationID, targetPath, data, err := decodeFileUnit(body)
	if err != nil {
		return
	}
	e.mu.Lock()
	sink := e.fileSink
	cb := e.onFile
	peer := e.peer
	e.mu.Unlock()
	if sink != nil {
		wc, err := sink.Create(targetPath)
		if err == nil {
			wc.Write(data)
			wc.Close()
		}
	}
	if cb != nil {
		cb(peer.ID, peer.SubID, indicationID, targetPath)
	}
}

func (e *Endpoint) abort(err error) {
	_ = err
	e.Stop()
}

func encodeFileUnit(indicationID, targetPath string, data []byte) []byte {
	var out []byte
	out = appendLPString(out, indicationID)
	out = appendLPString(out, targetPath)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	out = append(out, lenBuf...)
	out = append(out, data...)
	return out
}

func decodeFileUnit(body []byte) (indicationID, targetPath string, data []byte, err error) {
	rest := body
	indicationID, rest, err = readLPString(rest)
	if err != nil {
		return "", "", nil, err
	}
	targetPath, rest, err = readLPString(rest)
	if err != nil {
		return "", "", nil, err
	}
	if len(rest) < 4 {
		return "", "", nil, fmt.Errorf("session: file unit truncated")
	}
	n := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return "", "", nil, fmt.Errorf("session: file unit data truncated")
	}
	return indicationID, targetPath, rest[:n], nil
}

func appendLPString(dst []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(s)))
	dst = append(dst, lenBuf...)
	dst = append(dst, s...)
	return dst
}

func readLPString(src []byte) (string, []byte, error) {
	if len(src) < 4 {
		return "", nil, fmt.Errorf("session: string length truncated")
	}
	n := binary.BigEndian.Uint32(src[:4])
	src = src[4:]
	if uint32(len(src)) < n {
		return "", nil, fmt.Errorf("session: string body truncated")
	}
	return string(src[:n]), src[n:], nil
}
