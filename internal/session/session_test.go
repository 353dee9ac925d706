package session

import (
	"sync"
	"testing"
	"time"

	"github.com/kcenon/file-manager/internal/container"
)

func pipeEndpoints(t *testing.T, opts Options) (client, server *Endpoint) {
	t.Helper()
	c1, c2 := netPipeConn()
	client = newEndpoint(c1, opts, testCodec())
	server = newEndpoint(c2, opts, testCodec())
	return client, server
}

func TestPriorityOrdering(t *testing.T) {
	// Spec §8 scenario 6: with 1 high/0 normal/0 low worker, enqueueing
	// low, normal, high must deliver in order high, normal, low.
	q := newSendQueue(8)
	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	// Block the single worker until all three are enqueued, so none
	// can be drained before the full set is present.
	release := make(chan struct{})
	q.enqueue(PriorityHigh, func() { <-release })
	q.startWorkers(WorkerCounts{High: 1}.asArray())

	q.enqueue(PriorityLow, record("low"))
	q.enqueue(PriorityNormal, record("normal"))
	q.enqueue(PriorityHigh, record("high"))
	close(release)

	time.Sleep(50 * time.Millisecond)
	q.drain()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "high" || order[1] != "normal" || order[2] != "low" {
		t.Fatalf("delivery order = %v, want [high normal low]", order)
	}
}

func TestHandshakeBuildParseRoundTrip(t *testing.T) {
	self := Identity{ID: "client_app", SubID: "1"}
	digest := [32]byte{1, 2, 3}
	hs := buildHandshake(self, MessageLine, true, true, digest)
	advert, err := parseHandshake(hs)
	if err != nil {
		t.Fatalf("parseHandshake: %v", err)
	}
	if advert.self != self {
		t.Fatalf("advert.self = %+v, want %+v", advert.self, self)
	}
	if advert.sessionType != MessageLine {
		t.Fatalf("advert.sessionType = %v, want message_line", advert.sessionType)
	}
	if !advert.compress || !advert.encrypt {
		t.Fatalf("advert compress/encrypt = %v/%v, want true/true", advert.compress, advert.encrypt)
	}
}

func TestParseHandshakeRejectsWrongMessageType(t *testing.T) {
	c := container.New("a", "", "", "", "not_a_handshake")
	if _, err := parseHandshake(c); err == nil {
		t.Fatalf("parseHandshake on wrong message type should error")
	}
}

func TestOptionsAcceptsType(t *testing.T) {
	opts := Options{SessionType: MessageLine, AcceptedTypes: []Type{MessageLine, FileLine}}
	if !opts.acceptsType(FileLine) {
		t.Fatalf("expected file_line to be accepted")
	}
	single := Options{SessionType: MessageLine}
	if single.acceptsType(FileLine) {
		t.Fatalf("expected file_line to be rejected when only message_line configured")
	}
}

func TestFileUnitRoundTrip(t *testing.T) {
	payload := encodeFileUnit("ind-1", "/a/b/c.txt", []byte("hello world"))
	id, target, data, err := decodeFileUnit(payload)
	if err != nil {
		t.Fatalf("decodeFileUnit: %v", err)
	}
	if id != "ind-1" || target != "/a/b/c.txt" || string(data) != "hello world" {
		t.Fatalf("decodeFileUnit mismatch: id=%q target=%q data=%q", id, target, data)
	}
}
