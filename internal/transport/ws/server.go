package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/protocol"
)

const (
	writeWait     = 5 * time.Second
	handshakeWait = 5 * time.Second
	readWait      = 60 * time.Second
	joinWait      = 5 * time.Second
)

type Server struct {
	rt       *bridge.Runtime
	log      *log.Logger
	maxQueue int

	upgrader websocket.Upgrader

	// writeWelcome sends the WELCOME frame; tests swap it to fail.
	writeWelcome func(conn *websocket.Conn, v any) error
}

// NewServer serves the HUD sync protocol for rt. maxQueue caps the per-session
// outbound queue a client may ask for.
func NewServer(rt *bridge.Runtime, maxQueue int, logger *log.Logger) *Server {
	if maxQueue <= 0 {
		maxQueue = 32
	}
	return &Server{
		rt:       rt,
		log:      logger,
		maxQueue: maxQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		writeWelcome: writeJSON,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		welcome, out := s.handshake(conn)
		if out == nil {
			return
		}
		sessionID := welcome.SessionID

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. The runtime closes out when the session ends,
		// including when it falls too far behind.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
							time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.logf("session %s: dropped unreadable message: %v", sessionID, err)
				continue
			}
			if base.Type != protocol.TypeAct {
				s.logf("session %s: dropped unexpected %q message", sessionID, base.Type)
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				s.logf("session %s: dropped malformed ACT: %v", sessionID, err)
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				s.logf("session %s: dropped ACT with protocol_version %q", sessionID, act.ProtocolVersion)
				continue
			}
			s.rt.Inbox() <- bridge.ActEnvelope{SessionID: sessionID, Act: act}
		}

		s.leave(sessionID)
	}
}

// leave tells the runtime a registered session is gone.
func (s *Server) leave(sessionID string) {
	select {
	case s.rt.Leave() <- sessionID:
	case <-time.After(joinWait):
		s.logf("leave for %s not delivered", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.WelcomeMsg, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return protocol.WelcomeMsg{}, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return protocol.WelcomeMsg{}, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return protocol.WelcomeMsg{}, nil
	}
	role := strings.ToUpper(strings.TrimSpace(hello.Role))
	if role == "" {
		role = protocol.RoleViewer
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 || maxQ > s.maxQueue {
		maxQ = s.maxQueue
	}
	out := make(chan []byte, maxQ)
	respCh := make(chan bridge.JoinResponse, 1)

	select {
	case s.rt.Join() <- bridge.JoinRequest{
		ClientName: hello.ClientName,
		Role:       role,
		Surface:    hello.Surface,
		Out:        out,
		Resp:       respCh,
	}:
	case <-time.After(joinWait):
		reject(conn, protocol.ErrInternal, "runtime busy")
		return protocol.WelcomeMsg{}, nil
	}

	var resp bridge.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(joinWait):
		reject(conn, protocol.ErrInternal, "join timed out")
		return protocol.WelcomeMsg{}, nil
	}
	if resp.Err != nil {
		reject(conn, bridge.CodeFor(resp.Err), resp.Err.Error())
		return protocol.WelcomeMsg{}, nil
	}

	// WELCOME goes out before the writer starts, so it precedes the snapshot.
	if err := s.writeWelcome(conn, resp.Welcome); err != nil {
		s.logf("session %s: WELCOME not delivered: %v", resp.Welcome.SessionID, err)
		s.leave(resp.Welcome.SessionID)
		return protocol.WelcomeMsg{}, nil
	}
	s.logf("session %s joined as %s (%s) surface=%q", resp.Welcome.SessionID, role, hello.ClientName, resp.Welcome.Surface)
	return resp.Welcome, out
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// reject sends an ERROR message and closes with a policy violation.
func reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
