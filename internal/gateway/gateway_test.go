package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	return conn
}

func TestServeHTTPSendsConnectedFrame(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	g := New(b, nil)

	srv := httptest.NewServer(http.HandlerFunc(g.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connected frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal connected frame: %v", err)
	}
	if frame["message"] != "Connected" {
		t.Fatalf("expected Connected frame, got %+v", frame)
	}
	if frame["client_id"] == "" || frame["client_id"] == nil {
		t.Fatalf("expected a non-empty client_id, got %+v", frame)
	}
}

func TestChatMessageForwardsToOrchestratorChannel(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()
	g := New(b, nil)

	sub, err := b.Subscribe(ctx, agent.ChannelFor("orchestrator"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	srv := httptest.NewServer(http.HandlerFunc(g.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close()
	conn.ReadMessage() // drain the Connected frame

	msg := WebSocketMessage{Type: typeChatMessage, Payload: map[string]any{"content": "hello"}}
	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	select {
	case raw := <-sub.C:
		env, err := envelope.Decode(raw)
		if err != nil {
			t.Fatalf("decode forwarded task: %v", err)
		}
		task, ok := env.(envelope.Task)
		if !ok {
			t.Fatalf("expected a Task envelope, got %T", env)
		}
		if task.Content != "hello" || task.TargetAgent != "orchestrator" {
			t.Fatalf("unexpected forwarded task: %+v", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded task on orchestrator channel")
	}
}

func TestUnknownMessageTypeRepliesWithError(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	g := New(b, nil)

	srv := httptest.NewServer(http.HandlerFunc(g.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close()
	conn.ReadMessage() // drain the Connected frame

	msg := WebSocketMessage{Type: "bogus"}
	data, _ := json.Marshal(msg)
	conn.WriteMessage(websocket.TextMessage, data)

	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	var frame map[string]any
	json.Unmarshal(reply, &frame)
	if frame["class"] != classError {
		t.Fatalf("expected an error frame, got %+v", frame)
	}
}

func TestGetAgentStatusReportsKnownAgents(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()
	if err := b.SetState(ctx, "proposer_heartbeat", []byte("alive"), time.Minute); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	g := New(b, nil)
	g.SetKnownAgents([]string{"proposer", "critic"})

	srv := httptest.NewServer(http.HandlerFunc(g.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close()
	conn.ReadMessage() // drain Connected

	msg := WebSocketMessage{Type: typeGetAgentStatus}
	data, _ := json.Marshal(msg)
	conn.WriteMessage(websocket.TextMessage, data)

	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status reply: %v", err)
	}
	var frame struct {
		Agent map[string]string `json:"agent"`
	}
	if err := json.Unmarshal(reply, &frame); err != nil {
		t.Fatalf("unmarshal status reply: %v", err)
	}
	if frame.Agent["proposer"] != "alive" {
		t.Fatalf("expected proposer alive, got %+v", frame.Agent)
	}
	if frame.Agent["critic"] != "offline" {
		t.Fatalf("expected critic offline, got %+v", frame.Agent)
	}
}

func TestOutboundFanoutSkipsKnownClientFeedback(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	g := New(b, nil)

	g.mu.Lock()
	g.clients["client-1"] = &client{id: "client-1", send: make(chan []byte, 4)}
	g.mu.Unlock()

	msg := envelope.Message{Base: envelope.Base{
		Type: envelope.VariantMessage, Timestamp: envelope.Now(),
		Agent: "client-1", Intent: envelope.IntentChat,
	}}
	data, err := envelope.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	g.handleOutbound(data)

	select {
	case <-g.clients["client-1"].send:
		t.Fatal("expected the client's own message not to be echoed back")
	default:
	}
}

func TestOutboundFanoutClassifiesTaskResultFailAsError(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	g := New(b, nil)

	g.mu.Lock()
	c := &client{id: "client-1", send: make(chan []byte, 4)}
	g.clients["client-1"] = c
	g.mu.Unlock()

	result := envelope.TaskResult{
		Task: envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTaskResult, Timestamp: envelope.Now(),
				TaskID: "t-1", Agent: "orchestrator", TargetAgent: "client-1",
				Intent: envelope.IntentModifyTask, Content: "boom",
			},
			Event: envelope.EventFail,
		},
		Outcome: envelope.OutcomeFailure,
	}
	data, err := envelope.Encode(result)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	g.handleOutbound(data)

	select {
	case payload := <-c.send:
		var frame outboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("unmarshal outbound frame: %v", err)
		}
		if frame.Class != classError {
			t.Fatalf("expected class=error, got %+v", frame)
		}
	default:
		t.Fatal("expected a frame to be queued for the client")
	}
}
