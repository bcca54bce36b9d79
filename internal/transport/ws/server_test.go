package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/mirror"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

func startServer(t *testing.T) (*bridge.Runtime, string) {
	t.Helper()
	return startServerWith(t, nil, nil)
}

func startServerWith(t *testing.T, logger *log.Logger, configure func(*Server)) (*bridge.Runtime, string) {
	t.Helper()
	reg, err := drawable.Bootstrap(nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	rt, err := bridge.New(bridge.Config{SyncRateHz: 100}, surface.NewTerminal(7, drawable.NewCodec(reg)), nil)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = rt.Run(ctx) }()

	server := NewServer(rt, 32, logger)
	if configure != nil {
		configure(server)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return rt, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, hello protocol.HelloMsg) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	hello.Type = protocol.TypeHello
	if hello.ProtocolVersion == "" {
		hello.ProtocolVersion = protocol.Version
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (protocol.BaseMessage, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base, b
}

func TestServer_EndToEnd(t *testing.T) {
	rt, url := startServer(t)

	prod := dial(t, url, protocol.HelloMsg{ClientName: "bot", Role: protocol.RoleProducer})
	base, b := read(t, prod)
	if base.Type != protocol.TypeWelcome {
		t.Fatalf("producer got %s", base.Type)
	}
	var welcome protocol.WelcomeMsg
	_ = json.Unmarshal(b, &welcome)
	if welcome.TerminalID != rt.TerminalID() || len(welcome.Kinds) != 5 {
		t.Fatalf("welcome: %+v", welcome)
	}

	view := dial(t, url, protocol.HelloMsg{ClientName: "eye", Role: "viewer", Surface: "GLOBAL"})
	if base, _ := read(t, view); base.Type != protocol.TypeWelcome {
		t.Fatalf("viewer got %s", base.Type)
	}
	m := mirror.New(rt.Codec(), "GLOBAL")
	base, b = read(t, view)
	if base.Type != protocol.TypeSync {
		t.Fatalf("expected initial SYNC, got %s", base.Type)
	}
	var sync protocol.SyncMsg
	_ = json.Unmarshal(b, &sync)
	if !sync.Clear {
		t.Fatalf("initial sync must clear")
	}
	_ = m.Apply(sync)

	err := prod.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Ops: []protocol.OpReq{{
			ID: "a", Op: protocol.OpAdd, Kind: "TEXT",
			Fields: map[string]json.RawMessage{"text": json.RawMessage(`"hello"`), "color": json.RawMessage(`16777215`)},
		}},
	})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	base, b = read(t, prod)
	if base.Type != protocol.TypeActResult {
		t.Fatalf("producer got %s", base.Type)
	}
	var res protocol.ActResultMsg
	_ = json.Unmarshal(b, &res)
	if len(res.Results) != 1 || !res.Results[0].OK {
		t.Fatalf("result: %+v", res)
	}

	base, b = read(t, view)
	if base.Type != protocol.TypeSync {
		t.Fatalf("viewer got %s", base.Type)
	}
	sync = protocol.SyncMsg{}
	_ = json.Unmarshal(b, &sync)
	if err := m.Apply(sync); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	d, ok := m.Get(res.Results[0].Target)
	if !ok || d.GetString("text") != "hello" || d.Kind() != drawable.KindText {
		t.Fatalf("viewer copy: %v", m.Sorted())
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	_, url := startServer(t)
	cases := []struct {
		hello protocol.HelloMsg
		code  string
	}{
		{protocol.HelloMsg{ProtocolVersion: "0.1"}, protocol.ErrProtoVersion},
		{protocol.HelloMsg{Role: "ADMIN"}, protocol.ErrProtoBadRequest},
		{protocol.HelloMsg{Role: protocol.RoleViewer, Surface: "PRIVATE"}, protocol.ErrProtoBadRequest},
	}
	for _, c := range cases {
		conn := dial(t, url, c.hello)
		base, b := read(t, conn)
		if base.Type != protocol.TypeError {
			t.Fatalf("%+v: got %s", c.hello, base.Type)
		}
		var em protocol.ErrorMsg
		_ = json.Unmarshal(b, &em)
		if em.Code != c.code {
			t.Fatalf("%+v: code %s want %s", c.hello, em.Code, c.code)
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_LogsDroppedMessages(t *testing.T) {
	var logs lockedBuffer
	_, url := startServerWith(t, log.New(&logs, "", 0), nil)

	prod := dial(t, url, protocol.HelloMsg{ClientName: "bot", Role: protocol.RoleProducer})
	if base, _ := read(t, prod); base.Type != protocol.TypeWelcome {
		t.Fatalf("producer got %s", base.Type)
	}
	_ = prod.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = prod.WriteJSON(protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: "0.1"})
	_ = prod.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","ops":"x"}`))
	_ = prod.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Ops: []protocol.OpReq{{ID: "a", Op: protocol.OpAdd, Kind: "BOX"}},
	})
	// The reader handles messages in order, so the result means the rest were seen.
	if base, _ := read(t, prod); base.Type != protocol.TypeActResult {
		t.Fatalf("producer got %s", base.Type)
	}
	out := logs.String()
	for _, want := range []string{"dropped unreadable message", `protocol_version "0.1"`, "dropped malformed ACT"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in logs:\n%s", want, out)
		}
	}
}

func TestServer_FailedWelcomeLeaves(t *testing.T) {
	var (
		mu       sync.Mutex
		joined   string
		joinTick uint64
	)
	rt, url := startServerWith(t, nil, func(s *Server) {
		s.writeWelcome = func(conn *websocket.Conn, v any) error {
			mu.Lock()
			joined = v.(protocol.WelcomeMsg).SessionID
			joinTick = s.rt.CurrentTick()
			mu.Unlock()
			return errors.New("connection reset")
		}
	})
	conn := dial(t, url, protocol.HelloMsg{ClientName: "eye", Role: protocol.RoleViewer})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, _ = conn.ReadMessage()

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		id, at := joined, joinTick
		mu.Unlock()
		m := rt.Metrics()
		if id != "" && m.Tick > at && m.Viewers == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %q still registered: %+v", id, m)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
