package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"hudbridge.ai/internal/config"
	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/mirror"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/render"
)

// viewer follows one surface and paints it into the terminal.
func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "viewer", "client name")
		surface    = flag.String("surface", protocol.SurfaceGlobal, "surface to watch: GLOBAL or a player name")
		configPath = flag.String("config", "", "config file for render options (optional)")
		logPath    = flag.String("log", "", "log file (the terminal is taken by the HUD)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[viewer] ", log.LstdFlags|log.Lmicroseconds)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Fatalf("log: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            protocol.RoleViewer,
		Surface:         *surface,
		MaxQueue:        32,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	welcome, err := readWelcome(conn)
	if err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	codec, err := codecFromCatalog(welcome.Kinds)
	if err != nil {
		logger.Fatalf("kinds: %v", err)
	}
	logger.Printf("WELCOME session=%s terminal=%s surface=%s", welcome.SessionID, welcome.TerminalID, welcome.Surface)

	syncs := make(chan protocol.SyncMsg, 64)
	go func() {
		defer close(syncs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeSync {
				continue
			}
			var s protocol.SyncMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				logger.Printf("bad SYNC: %v", err)
				continue
			}
			syncs <- s
		}
	}()

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		logger.Fatalf("screen: %v", err)
	}
	defer screen.Fini()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	m := mirror.New(codec, welcome.Surface)
	r := render.New(render.Options{
		CellWidth:  cfg.Render.CellWidth,
		CellHeight: cfg.Render.CellHeight,
		Background: cfg.Render.Background,
		Fluids:     cfg.Render.Fluids,
		Items:      cfg.Render.Items,
	})

	redraw := time.NewTicker(time.Second / 30)
	defer redraw.Stop()
	dirty := true
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
					return
				}
			case *tcell.EventResize:
				screen.Sync()
				dirty = true
			}
		case s, ok := <-syncs:
			if !ok {
				return
			}
			if err := m.Apply(s); err != nil {
				logger.Printf("apply tick=%d: %v", s.Tick, err)
			}
			dirty = true
		case <-redraw.C:
			if !dirty {
				continue
			}
			screen.Clear()
			r.Draw(screen, m.Sorted())
			status(screen, fmt.Sprintf(" %s  tick %d  drawables %d  [esc] quit ", m.Surface(), m.Tick(), m.Len()))
			screen.Show()
			dirty = false
		}
	}
}

func readWelcome(conn *websocket.Conn) (protocol.WelcomeMsg, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		err := json.Unmarshal(msg, &w)
		return w, err
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		return protocol.WelcomeMsg{}, fmt.Errorf("%s: %s", e.Code, e.Message)
	default:
		return protocol.WelcomeMsg{}, fmt.Errorf("unexpected %s", base.Type)
	}
}

// codecFromCatalog builds a registry with the server's tag assignments.
func codecFromCatalog(kinds []protocol.KindCatalog) (*drawable.Codec, error) {
	table := make(map[drawable.Kind]drawable.Tag, len(kinds))
	for _, k := range kinds {
		kind, ok := drawable.ParseKind(k.Kind)
		if !ok {
			return nil, fmt.Errorf("server kind %q unknown to this client", k.Kind)
		}
		table[kind] = drawable.Tag(k.Tag)
	}
	reg, err := drawable.Bootstrap(table)
	if err != nil {
		return nil, err
	}
	return drawable.NewCodec(reg), nil
}

func status(screen tcell.Screen, line string) {
	_, h := screen.Size()
	st := tcell.StyleDefault.Reverse(true)
	x := 0
	for _, ch := range line {
		screen.SetContent(x, h-1, ch, nil, st)
		x++
	}
}
