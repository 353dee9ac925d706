// Package router implements the middle tier from spec §4.7: it bridges
// downstream client sessions to the two upstream connectors
// (data_line for message_line traffic, file_line for file traffic),
// dispatching by message_type and accounting transfer progress through
// a tracker.Tracker.
//
// Grounded on master-server/internal/ws's hub-dispatch shape (a
// message_type keyed handler table over a shared connection registry),
// adapted from a single WebSocket hub to two upstream client
// connectors plus a downstream acceptor.
package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/session"
	"github.com/kcenon/file-manager/internal/tracker"
)

// reasonUpstreamDown is the exact error reason text from spec §4.7/§8
// scenario 4.
const reasonUpstreamDown = "main_server has not been connected."

const (
	msgDownloadFiles     = "download_files"
	msgUploadFiles       = "upload_files"
	msgRequestFiles      = "request_files"
	msgUploadedFile      = "uploaded_file"
	msgTransferCondition = "transfer_condition"
)

// FileEntry is one (source, target) pair carried in a download_files or
// upload_files request body.
type FileEntry struct {
	Source string
	Target string
}

// Router owns the two upstream connectors and the downstream acceptor,
// and wires the dispatch table and tracker described in spec §4.7.
type Router struct {
	dataLine     *session.Connector
	fileLine     *session.Connector
	fileLineSelf session.Identity
	downstream   *session.Acceptor

	tracker *tracker.Tracker
	log     *slog.Logger

	mu         sync.Mutex
	byIdentity map[session.Identity]*session.Endpoint
}

// New wires a Router around already-constructed connectors and
// acceptor; callers are responsible for calling Start on the
// connectors and Listen on the acceptor's transport before traffic
// flows (spec leaves connection lifecycle to the session layer).
// fileLineSelf is the identity this middle tier advertises when
// dialing the file_line connector, used to rewrite upload_files
// sources per spec §4.7.
func New(dataLine, fileLine *session.Connector, fileLineSelf session.Identity, downstream *session.Acceptor, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		dataLine:     dataLine,
		fileLine:     fileLine,
		fileLineSelf: fileLineSelf,
		downstream:   downstream,
		tracker:      tracker.New(),
		log:          log,
		byIdentity:   make(map[session.Identity]*session.Endpoint),
	}
	r.wire()
	return r
}

func (r *Router) wire() {
	r.downstream.SetSessionConnectionNotification(r.onDownstreamConnection)
	r.downstream.SetSessionMessageNotification(r.onDownstreamMessage)

	r.fileLine.SetFileNotification(r.onUpstreamFile)
	r.fileLine.SetMessageNotification(r.onUpstreamFileLineMessage)
}

func (r *Router) onDownstreamConnection(ep *session.Endpoint, targetID, targetSubID string, condition bool) {
	id := session.Identity{ID: targetID, SubID: targetSubID}
	r.mu.Lock()
	if condition {
		r.byIdentity[id] = ep
	} else {
		delete(r.byIdentity, id)
	}
	r.mu.Unlock()
}

// onDownstreamMessage implements the dispatch table from spec §4.7.
func (r *Router) onDownstreamMessage(ep *session.Endpoint, msg *container.Container) {
	switch msg.Header.MessageType {
	case msgDownloadFiles:
		r.handleDownloadFiles(ep, msg)
	case msgUploadFiles:
		r.handleUploadFiles(ep, msg)
	default:
		r.forwardTransparently(msg)
	}
}

// handleDownloadFiles validates the request, registers the manifest
// with the tracker keyed by the downstream client's indication_id,
// acks with an initial 0% transfer_condition, and forwards a
// request_files message upstream on file_line.
func (r *Router) handleDownloadFiles(ep *session.Endpoint, msg *container.Container) {
	indicationID, entries, ok := parseFileRequest(msg)
	if !ok || len(entries) == 0 {
		r.replyError(ep, msg, "download_files requires a non-empty files array with non-empty targets")
		return
	}

	targets := make([]string, len(entries))
	for i, e := range entries {
		targets[i] = e.Target
	}

	originator := tracker.Originator{SourceID: msg.Header.SourceID, SourceSubID: msg.Header.SourceSubID}
	if !r.tracker.Register(indicationID, originator, targets) {
		r.replyError(ep, msg, fmt.Sprintf("indication_id %q is already in progress", indicationID))
		return
	}

	r.sendTransferCondition(ep, msg.Header.SourceID, msg.Header.SourceSubID, indicationID, 0, false, 0, 0)

	if !r.requireUpstreamConfirmed(r.fileLine, ep, msg) {
		return
	}
	fwd := msg.Copy(true)
	fwd.Header.MessageType = msgRequestFiles
	r.forwardUpstream(r.fileLine, fwd)
}

// handleUploadFiles stamps the downstream originator into
// gateway_source_id/gateway_source_sub_id, rewrites source to the
// file_line's own identity, and forwards upstream so that per-file
// "uploaded" acknowledgements can later be routed back through the
// gateway.
func (r *Router) handleUploadFiles(ep *session.Endpoint, msg *container.Container) {
	if !r.requireUpstreamConfirmed(r.fileLine, ep, msg) {
		return
	}

	fwd := msg.Copy(true)
	fwd.Values = append(fwd.Values,
		container.NewString("gateway_source_id", msg.Header.SourceID),
		container.NewString("gateway_source_sub_id", msg.Header.SourceSubID),
	)
	// Rewrite source to the file_line's own identity (spec §4.7): the
	// original downstream provenance now travels in the gateway_source_*
	// body fields instead of the header.
	fwd.Header.SourceID = r.fileLineSelf.ID
	fwd.Header.SourceSubID = r.fileLineSelf.SubID
	r.forwardUpstream(r.fileLine, fwd)
}

// forwardTransparently forwards anything not in the dispatch table on
// the data line, after the upstream-confirmed check.
func (r *Router) forwardTransparently(msg *container.Container) {
	if r.dataLine.Endpoint() == nil || r.dataLine.Endpoint().Condition() != session.ConditionConfirmed {
		r.log.Warn("dropping message with data_line not confirmed", "message_type", msg.Header.MessageType)
		return
	}
	r.forwardUpstream(r.dataLine, msg)
}

// requireUpstreamConfirmed synthesizes the spec §4.7/§8-scenario-4
// error response when the given upstream connector's session is not
// confirmed, and reports whether the caller may proceed.
func (r *Router) requireUpstreamConfirmed(c *session.Connector, ep *session.Endpoint, msg *container.Container) bool {
	upstream := c.Endpoint()
	if upstream != nil && upstream.Condition() == session.ConditionConfirmed {
		return true
	}
	r.replyError(ep, msg, reasonUpstreamDown)
	return false
}

// replyError copies the request header, swaps it, and appends the
// error body fields, per spec §4.7.
func (r *Router) replyError(ep *session.Endpoint, msg *container.Container, reason string) {
	resp := msg.Copy(false)
	resp.SwapHeader()
	resp.Add(container.NewBool("error", true))
	resp.Add(container.NewString("reason", reason))
	if err := ep.Send(resp); err != nil {
		r.log.Error("sending error response", "error", err)
	}
}

func (r *Router) forwardUpstream(c *session.Connector, msg *container.Container) {
	upstream := c.Endpoint()
	if upstream == nil {
		r.log.Warn("forwardUpstream called with no active endpoint")
		return
	}
	if err := upstream.Send(msg); err != nil {
		r.log.Error("forwarding upstream", "message_type", msg.Header.MessageType, "error", err)
	}
}

// onUpstreamFile handles a file arriving on file_line: it accounts the
// arrival against the tracker and forwards any resulting progress
// event downstream to the originating client.
func (r *Router) onUpstreamFile(targetID, targetSubID, indicationID, targetPath string) {
	ev := r.tracker.Record(indicationID, targetPath)
	r.deliverEvent(ev)
}

// onUpstreamFileLineMessage handles control messages on file_line:
// uploaded_file carries {indication_id, target_path} for tracker
// accounting; anything else is forwarded verbatim to the downstream
// client identified by gateway_source_id/gateway_source_sub_id.
func (r *Router) onUpstreamFileLineMessage(msg *container.Container) {
	if msg.Header.MessageType == msgUploadedFile {
		indicationID, _ := stringValue(msg, "indication_id")
		targetPath, _ := stringValue(msg, "target_path")
		ev := r.tracker.Record(indicationID, targetPath)
		r.deliverEvent(ev)
		return
	}

	gatewayID, hasID := stringValue(msg, "gateway_source_id")
	gatewaySubID, _ := stringValue(msg, "gateway_source_sub_id")
	if !hasID {
		r.log.Warn("file_line message missing gateway_source_id", "message_type", msg.Header.MessageType)
		return
	}
	r.mu.Lock()
	ep := r.byIdentity[session.Identity{ID: gatewayID, SubID: gatewaySubID}]
	r.mu.Unlock()
	if ep == nil {
		r.log.Warn("no downstream session for gateway_source_id", "gateway_source_id", gatewayID)
		return
	}
	fwd := msg.Copy(true)
	if err := ep.Send(fwd); err != nil {
		r.log.Error("forwarding downstream", "error", err)
	}
}

func (r *Router) deliverEvent(ev *tracker.Event) {
	if ev == nil {
		return
	}
	r.mu.Lock()
	ep := r.byIdentity[session.Identity{ID: ev.Originator.SourceID, SubID: ev.Originator.SourceSubID}]
	r.mu.Unlock()
	if ep == nil {
		return
	}
	r.sendTransferCondition(ep, ev.Originator.SourceID, ev.Originator.SourceSubID, ev.IndicationID, ev.Percentage, ev.Terminal && ev.Completed, ev.CompletedCount, ev.FailedCount)
}

func (r *Router) sendTransferCondition(ep *session.Endpoint, targetID, targetSubID, indicationID string, pct uint, completed bool, completedCount, failedCount int) {
	msg := container.New("", "", targetID, targetSubID, msgTransferCondition)
	msg.Add(container.NewString("indication_id", indicationID))
	msg.Add(container.NewU32("percentage", uint32(pct)))
	msg.Add(container.NewBool("completed", completed))
	if completed {
		msg.Add(container.NewI32("completed_count", int32(completedCount)))
		msg.Add(container.NewI32("failed_count", int32(failedCount)))
	}
	if err := ep.Send(msg); err != nil {
		r.log.Error("sending transfer_condition", "error", err)
	}
}

func stringValue(msg *container.Container, name string) (string, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return "", false
	}
	return v.String()
}

func parseFileRequest(msg *container.Container) (indicationID string, entries []FileEntry, ok bool) {
	indicationID, ok = stringValue(msg, "indication_id")
	if !ok {
		return "", nil, false
	}
	for _, v := range msg.LookupArray("files") {
		nested, isContainer := v.Container()
		if !isContainer {
			return "", nil, false
		}
		source, _ := stringValue(nested, "source")
		target, hasTarget := stringValue(nested, "target")
		if !hasTarget || target == "" {
			return "", nil, false
		}
		entries = append(entries, FileEntry{Source: source, Target: target})
	}
	return indicationID, entries, true
}
