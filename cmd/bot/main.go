package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"hudbridge.ai/internal/protocol"
)

// bot is a demo producer: it lays out a small HUD and keeps a clock and a
// progress bar moving.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		surface = flag.String("surface", protocol.SurfaceGlobal, "surface to draw on")
		every   = flag.Duration("every", 500*time.Millisecond, "update interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            protocol.RoleProducer,
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	results := make(chan protocol.ActResultMsg, 8)
	go readLoop(conn, logger, results)

	b := &hud{conn: conn, surface: *surface}
	targets, err := b.layout(results)
	if err != nil {
		logger.Fatalf("layout: %v", err)
	}
	logger.Printf("layout ready on %s: %v", *surface, targets)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-stop:
			_ = b.send(protocol.OpReq{ID: "clear", Op: protocol.OpClear, Surface: *surface})
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			for _, r := range res.Results {
				if !r.OK {
					logger.Printf("op %s failed: %s %s", r.ID, r.Code, r.Message)
				}
			}
		case now := <-ticker.C:
			step++
			err := b.send(
				protocol.OpReq{
					ID: fmt.Sprintf("clock_%d", step), Op: protocol.OpSet, Surface: *surface,
					Target: targets["clock"],
					Fields: fields("text", now.Format("15:04:05")),
				},
				protocol.OpReq{
					ID: fmt.Sprintf("bar_%d", step), Op: protocol.OpSet, Surface: *surface,
					Target: targets["bar"],
					Fields: fields("width", int16(6*(step%20+1))),
				},
			)
			if err != nil {
				logger.Printf("send: %v", err)
				return
			}
		}
	}
}

type hud struct {
	conn    *websocket.Conn
	surface string
}

func (h *hud) send(ops ...protocol.OpReq) error {
	return h.conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Ops:             ops,
	})
}

// layout adds the static panel and returns the ids of the drawables it will
// keep updating.
func (h *hud) layout(results <-chan protocol.ActResultMsg) (map[string]uint32, error) {
	s := h.surface
	err := h.send(
		protocol.OpReq{ID: "panel", Op: protocol.OpAdd, Surface: s, Kind: "GRADIENT",
			Fields: fields("x", int16(0), "y", int16(0), "z", int16(-1), "width", int16(132), "height", int16(48),
				"color1", int32(0x202040), "opacity1", float32(0.9), "color2", int32(0x000000), "opacity2", float32(0.6),
				"gradient", int32(1))},
		protocol.OpReq{ID: "title", Op: protocol.OpAdd, Surface: s, Kind: "TEXT",
			Fields: fields("x", int16(6), "y", int16(0), "text", "HUD BRIDGE", "color", int32(0xFFD700))},
		protocol.OpReq{ID: "clock", Op: protocol.OpAdd, Surface: s, Kind: "TEXT",
			Fields: fields("x", int16(6), "y", int16(12), "text", "--:--:--", "color", int32(0xFFFFFF))},
		protocol.OpReq{ID: "bar", Op: protocol.OpAdd, Surface: s, Kind: "BOX",
			Fields: fields("x", int16(6), "y", int16(24), "width", int16(6), "height", int16(12),
				"color", int32(0x33CC33), "opacity", float32(1))},
		protocol.OpReq{ID: "pool", Op: protocol.OpAdd, Surface: s, Kind: "LIQUID",
			Fields: fields("x", int16(84), "y", int16(24), "width", int16(36), "height", int16(12), "fluid", "water")},
		protocol.OpReq{ID: "gem", Op: protocol.OpAdd, Surface: s, Kind: "ITEM",
			Fields: fields("x", int16(120), "y", int16(0), "id", int32(264))},
	)
	if err != nil {
		return nil, err
	}
	select {
	case res, ok := <-results:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		out := map[string]uint32{}
		for _, r := range res.Results {
			if !r.OK {
				return nil, fmt.Errorf("%s: %s %s", r.ID, r.Code, r.Message)
			}
			out[r.ID] = r.Target
		}
		return out, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("no ACT_RESULT")
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger, results chan<- protocol.ActResultMsg) {
	defer close(results)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s terminal=%s sync_rate=%d kinds=%d", w.SessionID, w.TerminalID, w.SyncRateHz, len(w.Kinds))
		case protocol.TypeActResult:
			var res protocol.ActResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			results <- res
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

// fields builds an op field map from name/value pairs.
func fields(kv ...any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		b, err := json.Marshal(kv[i+1])
		if err != nil {
			continue
		}
		out[kv[i].(string)] = b
	}
	return out
}
