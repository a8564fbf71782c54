package ws

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/input"
	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/walkmesh/meshgen"
)

func startServer(t *testing.T, maxPlayers int) (*Server, string) {
	t.Helper()
	mesh, err := meshgen.Grid(meshgen.DefaultGridOptions())
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	cfg := game.DefaultConfig()
	cfg.Seed = 1
	cfg.Sheep.Count = 2
	cfg.MaxPlayers = maxPlayers
	g, err := game.New(mesh, cfg)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "ws-test", TickRateHz: 60}, g, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := NewServer(w, nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		hs.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readState reads frames until one full state message is buffered.
func readState(t *testing.T, conn *websocket.Conn, s *protocol.Stream) protocol.State {
	t.Helper()
	var st protocol.State
	for {
		ok, err := protocol.RecvState(s, &st)
		if err != nil {
			t.Fatalf("RecvState: %v", err)
		}
		if ok {
			return st
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		typ, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if typ != websocket.BinaryMessage {
			t.Fatalf("frame type %d", typ)
		}
		s.In = append(s.In, b...)
	}
}

func TestServer_StreamsStateAndAcceptsControls(t *testing.T) {
	srv, url := startServer(t, 8)
	a := dial(t, url)
	b := dial(t, url)

	var sa, sb protocol.Stream
	stA := readState(t, a, &sa)
	if len(stA.Sheep) != 2 || len(stA.Players) == 0 {
		t.Fatalf("state: players=%d sheep=%d", len(stA.Players), len(stA.Sheep))
	}

	// Wait until both players are visible to b; b's own player leads.
	var stB protocol.State
	deadline := time.Now().Add(5 * time.Second)
	for {
		stB = readState(t, b, &sb)
		if len(stB.Players) == 2 || time.Now().After(deadline) {
			break
		}
	}
	if len(stB.Players) != 2 || stB.Players[0].Name == stA.Players[0].Name {
		t.Fatalf("b's view: %+v (a is %q)", stB.Players, stA.Players[0].Name)
	}

	// Controls split over two frames still decode.
	msg, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Downs: 1, Pressed: true}})
	if err := a.WriteMessage(websocket.BinaryMessage, msg[:3]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.WriteMessage(websocket.BinaryMessage, msg[3:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	readState(t, a, &sa)

	if n := srv.NumConns(); n != 2 {
		t.Fatalf("NumConns=%d", n)
	}
}

func TestServer_MalformedInputClosesConnection(t *testing.T) {
	_, url := startServer(t, 8)
	c := dial(t, url)

	bad := []byte{byte(protocol.TypeControls), 2, 0, 0, 9, 9}
	if err := c.WriteMessage(websocket.BinaryMessage, bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("expected policy violation close, got %v", err)
		}
		return
	}
}

func TestServer_RefusesWhenFull(t *testing.T) {
	_, url := startServer(t, 1)
	first := dial(t, url)
	var s protocol.Stream
	readState(t, first, &s)

	second := dial(t, url)
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected try-again-later close, got %v", err)
	}
	if ce, ok := err.(*websocket.CloseError); !ok || ce.Text != protocol.CodeWorldFull {
		t.Fatalf("close reason: %v", err)
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	srv, url := startServer(t, 8)
	c := dial(t, url)
	var s protocol.Stream
	readState(t, c, &s)

	srv.Shutdown()
	for {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := c.ReadMessage(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				t.Fatalf("connection still open after Shutdown")
			}
			return
		}
	}
}

func TestServer_StoppedWorldDoesNotBlockHandlers(t *testing.T) {
	srv, url := startServer(t, 8)
	w := srv.world
	w.Stop()
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}

	for i := 0; i < cap(w.Leave()); i++ {
		w.Leave() <- "gone"
	}
	left := make(chan struct{})
	go func() {
		srv.leave("C1")
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(5 * time.Second):
		t.Fatalf("leave blocked on a stopped world")
	}

	c := dial(t, url)
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
