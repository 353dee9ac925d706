// Package restapi implements the REST adaptor from spec §4.8: a thin
// gin-gonic HTTP server that turns POST/GET /restapi into traffic on a
// message_line session to the middle tier, and buffers transfer_condition
// progress per indication_id for polling clients.
//
// Grounded on master-server/internal/api/routers/router.go's
// gin.Engine/route-group shape, master-server/internal/api/handlers's
// handler-wraps-a-collaborator idiom and c.BindJSON/c.JSON usage, and
// master-server/internal/api/middlware/middleware.go's CorsMiddleware
// (kept verbatim in spirit).
package restapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/session"
)

const messageTypeTransferCondition = "transfer_condition"

// ProgressMessage is the small JSON object appended to a client's
// progress buffer, per spec §4.8's "received_message handler ...
// converted to a small JSON object".
type ProgressMessage struct {
	MessageType  string `json:"message_type"`
	IndicationID string `json:"indication_id"`
	Percentage   uint32 `json:"percentage"`
	Completed    bool   `json:"completed"`
}

// FileEntryRequest is one {source,target} pair in a POST body's files
// array.
type FileEntryRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MessageType has no binding:"required" tag: an empty message_type is
// a valid (if useless) request per spec §4.8's "400/204 for
// malformed/empty body" — malformed JSON fails binding with 400, an
// empty-but-well-formed body is distinguished and answered with 204.
type postBody struct {
	MessageType  string             `json:"message_type"`
	IndicationID string             `json:"indication_id"`
	Files        []FileEntryRequest `json:"files"`
}

// Gateway holds the middle-tier client session and the per-id progress
// buffers. It is constructed around a session.Connector (started before
// or after New) whose message_line connects to the middle tier's
// downstream acceptor.
type Gateway struct {
	connector *session.Connector

	mu      sync.Mutex
	seen    map[string]struct{}
	buffers map[string][]ProgressMessage
}

// New wires a Gateway around connector, registering the message
// notification that captures transfer_condition events.
func New(connector *session.Connector) *Gateway {
	g := &Gateway{
		connector: connector,
		seen:      make(map[string]struct{}),
		buffers:   make(map[string][]ProgressMessage),
	}
	connector.SetMessageNotification(g.onMessage)
	return g
}

// onMessage is the received_message handler from spec §4.8: it
// converts a transfer_condition container into a ProgressMessage and
// appends it to the per-id buffer. Any other message type is ignored
// (the REST gateway has no other consumer for upstream traffic).
func (g *Gateway) onMessage(msg *container.Container) {
	if msg.Header.MessageType != messageTypeTransferCondition {
		return
	}
	indicationID, _ := stringValue(msg, "indication_id")
	pct, _ := uint64Value(msg, "percentage")
	completed, _ := boolValue(msg, "completed")

	pm := ProgressMessage{
		MessageType:  msg.Header.MessageType,
		IndicationID: indicationID,
		Percentage:   uint32(pct),
		Completed:    completed,
	}

	g.mu.Lock()
	g.seen[indicationID] = struct{}{}
	g.buffers[indicationID] = append(g.buffers[indicationID], pm)
	g.mu.Unlock()
}

// Router builds the gin.Engine exposing /restapi.
func (g *Gateway) Router() *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())
	r.POST("/restapi", g.handlePost)
	r.GET("/restapi", g.handleGet)
	return r
}

// handlePost implements spec §4.8's POST /restapi: upload_files and
// download_files build an internal message addressed to main_server
// and hand it to the middle-tier session; anything else is rejected as
// an unknown message_type.
func (g *Gateway) handlePost(c *gin.Context) {
	var body postBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MessageType == "" {
		c.Status(http.StatusNoContent)
		return
	}

	switch body.MessageType {
	case "upload_files", "download_files":
		g.dispatchTransfer(c, body)
	default:
		c.JSON(http.StatusNotImplemented, gin.H{"error": "unknown message_type: " + body.MessageType})
	}
}

func (g *Gateway) dispatchTransfer(c *gin.Context, body postBody) {
	if body.IndicationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "indication_id is required"})
		return
	}

	ep := g.connector.Endpoint()
	if ep == nil || ep.Condition() != session.ConditionConfirmed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not connected to middle_server"})
		return
	}

	msg := container.New("", "", "main_server", "", body.MessageType)
	msg.Add(container.NewString("indication_id", body.IndicationID))
	for _, f := range body.Files {
		entry := container.New("", "", "", "", "entry")
		entry.Add(container.NewString("source", f.Source))
		entry.Add(container.NewString("target", f.Target))
		msg.Add(container.NewContainer("files", entry))
	}

	if err := ep.Send(msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g.mu.Lock()
	g.seen[body.IndicationID] = struct{}{}
	g.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGet implements spec §4.8's GET /restapi: returns the buffered
// progress objects for the requested indication_id, optionally draining
// the buffer when previous_message is "clear".
func (g *Gateway) handleGet(c *gin.Context) {
	indicationID := c.GetHeader("indication_id")
	if indicationID == "" {
		c.Status(http.StatusNotAcceptable)
		return
	}

	g.mu.Lock()
	_, known := g.seen[indicationID]
	messages := g.buffers[indicationID]
	if c.GetHeader("previous_message") == "clear" {
		delete(g.buffers, indicationID)
	}
	g.mu.Unlock()

	if !known {
		c.Status(http.StatusNotAcceptable)
		return
	}
	if len(messages) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, indication_id, previous_message")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func stringValue(msg *container.Container, name string) (string, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return "", false
	}
	return v.String()
}

func uint64Value(msg *container.Container, name string) (uint64, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return 0, false
	}
	return v.Uint64()
}

func boolValue(msg *container.Container, name string) (bool, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return false, false
	}
	return v.Bool()
}
