package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/walkmesh"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		meshPath = flag.String("mesh", "./world.w", "walk mesh bundle")
		meshName = flag.String("mesh_name", "WalkMesh", "mesh to observe")
		rate     = flag.Int("rate", 20, "controls messages per second")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "wander seed")
		every    = flag.Duration("report", 2*time.Second, "position report interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	store, err := walkmesh.LoadStore(*meshPath)
	if err != nil {
		logger.Fatalf("load meshes: %v", err)
	}
	mesh, err := store.Lookup(*meshName)
	if err != nil {
		logger.Fatalf("mesh: %v", err)
	}
	view := game.NewObserver(mesh)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var mu sync.Mutex
	states := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		var s protocol.Stream
		var st protocol.State
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					logger.Printf("closed by server: code=%d text=%q", ce.Code, ce.Text)
				} else {
					logger.Printf("read: %v", err)
				}
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			s.In = append(s.In, msg...)
			for {
				ok, err := protocol.RecvState(&s, &st)
				if err != nil {
					logger.Printf("bad state from server: %v", err)
					return
				}
				if !ok {
					break
				}
				mu.Lock()
				if err := view.ApplyState(st); err != nil {
					mu.Unlock()
					logger.Printf("state does not fit mesh %q: %v", *meshName, err)
					return
				}
				states++
				mu.Unlock()
			}
			if len(s.In) > 0 {
				if t, _ := protocol.PeekType(s.In); t != protocol.TypeState {
					logger.Printf("unexpected message type %d", t)
					return
				}
			}
		}
	}()

	if *rate <= 0 {
		*rate = 20
	}
	w := newWanderer(*seed)
	send := time.NewTicker(time.Second / time.Duration(*rate))
	defer send.Stop()
	report := time.NewTicker(*every)
	defer report.Stop()

	var out protocol.Stream
	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		case <-done:
			return
		case <-send.C:
			c := w.next()
			if protocol.SendControls(&out, c) {
				logger.Printf("press count clamped on send")
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, out.Out); err != nil {
				logger.Printf("write: %v", err)
				return
			}
			out.Out = out.Out[:0]
		case <-report.C:
			mu.Lock()
			n := states
			r := takeReport(view)
			mu.Unlock()
			if !r.Ready {
				logger.Printf("states=%d waiting for first state", n)
				continue
			}
			logger.Printf("states=%d name=%q at=(%.2f, %.2f, %.2f) others=%d sheep=%d", n, r.Name, r.At[0], r.At[1], r.At[2], r.Others, r.Sheep)
		}
	}
}
