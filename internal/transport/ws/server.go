// Package ws carries the game byte stream over websocket binary frames.
// Frame boundaries carry no meaning: the world reassembles messages from the
// concatenated bytes.
package ws

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"

	"meshwalk.io/internal/sim/world"
)

// Outbound queue per connection. State messages supersede each other, so a
// short queue only costs a slow reader stale frames.
const outQueue = 8

const joinTimeout = 10 * time.Second

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader

	mu    deadlock.Mutex
	conns map[*websocket.Conn]string
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		conns: map[*websocket.Conn]string{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, out := s.join(conn)
		if clientID == "" {
			return
		}
		s.track(conn, clientID)
		defer s.untrack(conn)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						// The world dropped us.
						closeWith(conn, websocket.ClosePolicyViolation, "disconnected by server")
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if typ != websocket.BinaryMessage || len(msg) == 0 {
				continue
			}
			select {
			case s.world.Inbox() <- world.InboundBytes{ClientID: clientID, Data: msg}:
			case <-ctx.Done():
			case <-s.world.Done():
			}
		}

		s.leave(clientID)
	}
}

// join registers the connection with the world. A refused join closes the
// socket with the refusal code as the reason.
func (s *Server) join(conn *websocket.Conn) (clientID string, out chan []byte) {
	out = make(chan []byte, outQueue)
	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Out: out, Resp: respCh}:
	case <-s.world.Done():
		closeWith(conn, websocket.CloseGoingAway, "world stopped")
		return "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-s.world.Done():
		closeWith(conn, websocket.CloseGoingAway, "world stopped")
		return "", nil
	case <-time.After(joinTimeout):
		closeWith(conn, websocket.CloseTryAgainLater, "join timed out")
		go func() {
			select {
			case r := <-respCh:
				if r.ClientID != "" {
					s.leave(r.ClientID)
				}
			case <-s.world.Done():
			}
		}()
		return "", nil
	}
	if resp.Code != "" {
		s.log.Printf("join refused from %s: %s", conn.RemoteAddr(), resp.Code)
		closeWith(conn, websocket.CloseTryAgainLater, resp.Code)
		return "", nil
	}
	s.log.Printf("joined %s as %s (%s)", conn.RemoteAddr(), resp.ClientID, resp.Name)
	return resp.ClientID, out
}

// leave tells the world a client went away, unless the world loop has
// already stopped.
func (s *Server) leave(clientID string) {
	select {
	case s.world.Leave() <- clientID:
	case <-s.world.Done():
	}
}

func (s *Server) track(conn *websocket.Conn, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = id
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// NumConns is the number of live connections.
func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown sends a going-away close frame to every live connection and closes
// it. Handlers then leave the world on their own.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		closeWith(c, websocket.CloseGoingAway, "server shutting down")
		_ = c.Close()
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
