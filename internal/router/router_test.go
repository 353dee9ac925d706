package router

import (
	"net"
	"testing"
	"time"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/session"
)

func TestParseFileRequest(t *testing.T) {
	msg := container.New("client", "1", "middle", "", "download_files")
	msg.Add(container.NewString("indication_id", "d1"))
	entry := container.New("", "", "", "", "entry")
	entry.Add(container.NewString("source", "/s/a"))
	entry.Add(container.NewString("target", "/t/a"))
	msg.Add(container.NewContainer("files", entry))

	id, entries, ok := parseFileRequest(msg)
	if !ok || id != "d1" {
		t.Fatalf("parseFileRequest id/ok = %q/%v, want d1/true", id, ok)
	}
	if len(entries) != 1 || entries[0].Source != "/s/a" || entries[0].Target != "/t/a" {
		t.Fatalf("parseFileRequest entries = %+v", entries)
	}
}

func TestParseFileRequestRejectsEmptyTarget(t *testing.T) {
	msg := container.New("client", "1", "middle", "", "download_files")
	msg.Add(container.NewString("indication_id", "d1"))
	entry := container.New("", "", "", "", "entry")
	entry.Add(container.NewString("source", "/s/a"))
	entry.Add(container.NewString("target", ""))
	msg.Add(container.NewContainer("files", entry))

	if _, _, ok := parseFileRequest(msg); ok {
		t.Fatalf("parseFileRequest accepted an entry with an empty target")
	}
}

func TestParseFileRequestRequiresIndicationID(t *testing.T) {
	msg := container.New("client", "1", "middle", "", "download_files")
	if _, _, ok := parseFileRequest(msg); ok {
		t.Fatalf("parseFileRequest accepted a request with no indication_id")
	}
}

const testConnectionKey = "router-test-key"

func newTestOptions(self session.Identity, sessionType session.Type, accepted []session.Type) session.Options {
	return session.Options{
		Self:          self,
		SessionType:   sessionType,
		AcceptedTypes: accepted,
		ConnectionKey: testConnectionKey,
	}
}

// TestUpstreamDownSynthesizesErrorResponse covers spec §8 scenario 4:
// a downstream upload_files request arrives while the router's
// file_line connector has never connected, so the router must reply
// with a single error response and forward nothing upstream.
func TestUpstreamDownSynthesizesErrorResponse(t *testing.T) {
	downstreamOpts := newTestOptions(session.Identity{ID: "middle", SubID: ""}, session.MessageLine, []session.Type{session.MessageLine})
	acceptor := session.NewAcceptor(downstreamOpts, 0, session.WorkerCounts{High: 1, Normal: 1, Low: 1})
	if err := acceptor.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer acceptor.Stop()

	dataLine := session.NewConnector(newTestOptions(session.Identity{ID: "middle", SubID: ""}, session.MessageLine, nil))
	fileLine := session.NewConnector(newTestOptions(session.Identity{ID: "middle", SubID: "file"}, session.FileLine, nil))

	New(dataLine, fileLine, session.Identity{ID: "middle", SubID: "file"}, acceptor, nil)

	clientOpts := newTestOptions(session.Identity{ID: "client1", SubID: ""}, session.MessageLine, nil)
	client := session.NewConnector(clientOpts)
	tcpAddr := acceptor.Addr().(*net.TCPAddr)
	client.Start("127.0.0.1", tcpAddr.Port, 1, 1, 1)
	defer client.Stop()

	replies := make(chan *container.Container, 1)
	client.SetMessageNotification(func(msg *container.Container) { replies <- msg })

	deadline := time.After(2 * time.Second)
	for client.Endpoint() == nil || client.Endpoint().Condition() != session.ConditionConfirmed {
		select {
		case <-deadline:
			t.Fatalf("client never reached confirmed state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	req := container.New("client1", "", "middle", "", "upload_files")
	req.Add(container.NewString("indication_id", "u1"))
	if err := client.Endpoint().Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case reply := <-replies:
		errVal, _ := reply.Lookup("error")
		isErr, _ := errVal.Bool()
		if !isErr {
			t.Fatalf("reply = %+v, want error=true", reply)
		}
		reasonVal, _ := reply.Lookup("reason")
		reason, _ := reasonVal.String()
		if reason != reasonUpstreamDown {
			t.Fatalf("reason = %q, want %q", reason, reasonUpstreamDown)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error response")
	}
}
