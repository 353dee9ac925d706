package restapi

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestGateway() *Gateway {
	connector := session.NewConnector(session.Options{
		Self:          session.Identity{ID: "gateway", SubID: ""},
		SessionType:   session.MessageLine,
		ConnectionKey: "k",
	})
	return New(connector)
}

func TestHandlePostUnknownMessageType(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL, map[string]any{"message_type": "bogus"})
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestHandlePostEmptyBody(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL, map[string]any{"message_type": ""})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestHandlePostMissingIndicationID(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL, map[string]any{"message_type": "download_files"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlePostNotConnected(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL, map[string]any{
		"message_type":  "download_files",
		"indication_id": "d1",
		"files":         []map[string]string{{"source": "/s/a", "target": "/t/a"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (not connected)", resp.StatusCode)
	}
}

func TestHandleGetUnknownIndicationID(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/restapi", nil)
	req.Header.Set("indication_id", "missing")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", resp.StatusCode)
	}
}

func TestHandleGetMissingHeader(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/restapi")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", resp.StatusCode)
	}
}

// TestOnMessageBuffersAndGetDrains covers spec §8 scenario 5's polling
// shape directly against the buffer, bypassing the network hop: a
// transfer_condition arrival is buffered, GET returns it, and
// previous_message=clear empties the buffer so a second GET is 204.
func TestOnMessageBuffersAndGetDrains(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	progress := container.New("main_server", "", "gateway", "", messageTypeTransferCondition)
	progress.Add(container.NewString("indication_id", "d1"))
	progress.Add(container.NewU32("percentage", 0))
	progress.Add(container.NewBool("completed", false))
	g.onMessage(progress)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/restapi", nil)
	req.Header.Set("indication_id", "d1")
	req.Header.Set("previous_message", "clear")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Messages []ProgressMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(body.Messages) != 1 || body.Messages[0].IndicationID != "d1" || body.Messages[0].Percentage != 0 {
		t.Fatalf("messages = %+v", body.Messages)
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/restapi", nil)
	req2.Header.Set("indication_id", "d1")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	if resp2.StatusCode != http.StatusNoContent {
		t.Fatalf("second GET status = %d, want 204 (drained, but id still known)", resp2.StatusCode)
	}
}

// TestHandlePostSuccessOverLiveSession exercises the full path: a real
// session.Acceptor stands in for the middle tier, the Gateway's
// connector dials it, and a successful download_files POST must return
// 200 and actually deliver the message upstream.
func TestHandlePostSuccessOverLiveSession(t *testing.T) {
	middleOpts := session.Options{
		Self:          session.Identity{ID: "middle", SubID: ""},
		SessionType:   session.MessageLine,
		AcceptedTypes: []session.Type{session.MessageLine},
		ConnectionKey: "k",
	}
	acceptor := session.NewAcceptor(middleOpts, 0, session.WorkerCounts{High: 1, Normal: 1, Low: 1})
	if err := acceptor.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer acceptor.Stop()

	received := make(chan *container.Container, 1)
	acceptor.SetMessageNotification(func(msg *container.Container) { received <- msg })

	connector := session.NewConnector(session.Options{
		Self:          session.Identity{ID: "gateway", SubID: ""},
		SessionType:   session.MessageLine,
		ConnectionKey: "k",
	})
	g := New(connector)
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	tcpAddr := acceptor.Addr().(*net.TCPAddr)
	connector.Start("127.0.0.1", tcpAddr.Port, 1, 1, 1)
	defer connector.Stop()

	deadline := time.After(2 * time.Second)
	for connector.Endpoint() == nil || connector.Endpoint().Condition() != session.ConditionConfirmed {
		select {
		case <-deadline:
			t.Fatalf("gateway connector never reached confirmed state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	resp := postJSON(t, srv.URL, map[string]any{
		"message_type":  "download_files",
		"indication_id": "d1",
		"files":         []map[string]string{{"source": "/s/a", "target": "/t/a"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	select {
	case msg := <-received:
		if msg.Header.MessageType != "download_files" || msg.Header.TargetID != "main_server" {
			t.Fatalf("upstream message = %+v, want download_files targeted at main_server", msg.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for upstream message")
	}
}

func postJSON(t *testing.T, baseURL string, body map[string]any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(baseURL+"/restapi", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}
