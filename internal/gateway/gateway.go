// Package gateway bridges browser/CLI websocket clients to the bus: client
// input is published on the orchestrator's channel (chat wrapped as a Task
// addressed to the orchestrator), and a single shared FRONTEND_CHANNEL
// subscriber fans outbound envelopes out to every attached client.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// orchestratorAgentName is the fixed recipient of every chat_message and
// start_task a client sends.
const orchestratorAgentName = "orchestrator"

// WebSocketMessage is the inbound wire shape a client sends: an
// application-level type tag plus an opaque payload.
type WebSocketMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// outbound classifications, attached to every envelope the gateway
// forwards to clients so the frontend doesn't have to re-derive them
// from the envelope's own variant/intent fields.
const (
	classChatMessage = "chat_message"
	classTaskUpdate  = "task_update"
	classTaskResult  = "task_result"
	classSystemInfo  = "system_info"
	classError       = "error"
)

// Upgrader is the default gorilla/websocket upgrader; CheckOrigin is
// permissive because the gateway is meant to sit behind a reverse proxy
// that already enforces origin policy.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected websocket's send-side state.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Gateway accepts websocket connections and bridges them to the bus.
type Gateway struct {
	Bus    bus.Bus
	Logger *slog.Logger

	mu          sync.RWMutex
	clients     map[string]*client
	knownAgents []string
}

// New constructs a Gateway.
func New(b bus.Bus, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		Bus:     b,
		Logger:  logger,
		clients: make(map[string]*client),
	}
}

// RunOutboundFanout is the gateway's single process-wide FRONTEND_CHANNEL
// subscriber. It blocks until ctx is cancelled.
func (g *Gateway) RunOutboundFanout(ctx context.Context) error {
	sub, err := g.Bus.Subscribe(ctx, agent.FrontendChannel)
	if err != nil {
		return err
	}
	defer g.Bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-sub.C:
			if !ok {
				return nil
			}
			g.handleOutbound(data)
		}
	}
}

// handleOutbound decodes one bus envelope, skips it if it originated
// from a client the gateway itself owns (feedback-loop avoidance), and
// broadcasts the classified payload to every attached client.
func (g *Gateway) handleOutbound(data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		g.Logger.Warn("gateway: dropping undecodable frontend envelope", "error", err)
		return
	}

	meta := env.Meta()
	if g.isKnownClient(meta.Agent) {
		return
	}

	out := outboundFrame{
		Class:   classify(env),
		Agent:   meta.Agent,
		TaskID:  meta.TaskID,
		Content: meta.Content,
	}
	if tr, ok := env.(envelope.TaskResult); ok {
		out.Event = string(tr.Event)
		out.Outcome = string(tr.Outcome)
	} else if t, ok := env.(envelope.Task); ok {
		out.Event = string(t.Event)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		g.Logger.Error("gateway: marshal outbound frame failed", "error", err)
		return
	}

	g.broadcast(payload)
}

// outboundFrame is what every connected client actually receives over
// the websocket: the envelope's classification plus its user-facing
// fields, with the wire-protocol noise (type tags, confidence, etc.)
// stripped out.
type outboundFrame struct {
	Class   string `json:"class"`
	Agent   string `json:"agent"`
	TaskID  string `json:"task_id,omitempty"`
	Event   string `json:"event,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Content string `json:"content"`
}

// classify maps an envelope onto the outbound categories clients switch
// on: chat_message | task_update | task_result | system_info | error.
func classify(env envelope.Envelope) string {
	switch v := env.(type) {
	case envelope.TaskResult:
		if v.Event == envelope.EventFail {
			return classError
		}
		return classTaskResult
	case envelope.Task:
		return classTaskUpdate
	case envelope.Message:
		if v.Intent == envelope.IntentChat {
			return classChatMessage
		}
		return classSystemInfo
	default:
		return classSystemInfo
	}
}

func (g *Gateway) isKnownClient(agentName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.clients[agentName]
	return ok
}

func (g *Gateway) broadcast(payload []byte) {
	g.mu.RLock()
	targets := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			g.Logger.Warn("gateway: client send buffer full, dropping client", "client_id", c.id)
			g.removeClient(c.id)
		}
	}
}

// ServeHTTP runs one connection's entire lifecycle: upgrade, assign
// client_id, announce Connected, then run the read and write pumps until
// either side closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Logger.Error("gateway: upgrade failed", "error", err)
		return
	}

	clientID := uuid.NewString()
	c := &client{id: clientID, conn: conn, send: make(chan []byte, 64)}

	g.mu.Lock()
	g.clients[clientID] = c
	g.mu.Unlock()

	g.Logger.Info("gateway: client connected", "client_id", clientID)

	connected, _ := json.Marshal(map[string]any{
		"class":     classSystemInfo,
		"message":   "Connected",
		"client_id": clientID,
	})
	select {
	case c.send <- connected:
	default:
	}

	done := make(chan struct{})
	go func() {
		g.writePump(c)
		close(done)
	}()

	g.readPump(r.Context(), c)

	g.removeClient(clientID)
	conn.Close()
	<-done
}

func (g *Gateway) removeClient(id string) {
	g.mu.Lock()
	c, ok := g.clients[id]
	if ok {
		delete(g.clients, id)
	}
	g.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// readPump decodes inbound frames until the connection closes or ctx is
// cancelled.
func (g *Gateway) readPump(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.Logger.Warn("gateway: client read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.replyError(c, "invalid message: "+err.Error())
			continue
		}

		if err := g.handleInbound(ctx, c, msg); err != nil {
			g.Logger.Error("gateway: handle inbound failed", "client_id", c.id, "type", msg.Type, "error", err)
			g.replyError(c, err.Error())
		}
	}
}

// writePump drains c.send to the physical connection until the channel
// is closed.
func (g *Gateway) writePump(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			g.Logger.Warn("gateway: client write failed", "client_id", c.id, "error", err)
			return
		}
	}
}

func (g *Gateway) replyError(c *client, message string) {
	payload, _ := json.Marshal(map[string]any{"class": classError, "content": message})
	select {
	case c.send <- payload:
	default:
	}
}
