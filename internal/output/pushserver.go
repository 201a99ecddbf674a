package output

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/fusion.report/internal/replay"
	"github.com/banshee-data/fusion.report/internal/track"
)

// fixed4 marshals a float64 to JSON with exactly four decimal places, the
// precision §6.3 of the wire format requires and that encoding/json's
// shortest-representation default cannot guarantee on its own.
type fixed4 float64

func (f fixed4) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', 4, 64)), nil
}

type wirePosition struct {
	X fixed4 `json:"x"`
	Y fixed4 `json:"y"`
	Z fixed4 `json:"z"`
}

type wireVelocity struct {
	VX fixed4 `json:"vx"`
	VY fixed4 `json:"vy"`
	VZ fixed4 `json:"vz"`
}

type wireState struct {
	EntityID     uint64       `json:"entityId"`
	Type         string       `json:"type"`
	Position     wirePosition `json:"position"`
	Velocity     wireVelocity `json:"velocity"`
	Confidence   fixed4       `json:"confidence"`
	Measurements int          `json:"measurements"`
}

func toWireState(s track.FusedEntityState) wireState {
	var w wireState
	w.EntityID = s.EntityID
	w.Type = s.EntityKind.String()
	w.Position.X = fixed4(s.Position.X)
	w.Position.Y = fixed4(s.Position.Y)
	w.Position.Z = fixed4(s.Position.Z)
	w.Velocity.VX = fixed4(s.Velocity.VX)
	w.Velocity.VY = fixed4(s.Velocity.VY)
	w.Velocity.VZ = fixed4(s.Velocity.VZ)
	w.Confidence = fixed4(s.Confidence)
	w.Measurements = s.MeasurementCount
	return w
}

// MarshalState renders s per the streaming push payload wire format.
// Covariance is never transmitted.
func MarshalState(s track.FusedEntityState) ([]byte, error) {
	return json.Marshal(toWireState(s))
}

// MarshalStates renders a batch as a JSON array of the same per-state
// shape MarshalState produces.
func MarshalStates(ss []track.FusedEntityState) ([]byte, error) {
	out := make([]wireState, len(ss))
	for i, s := range ss {
		out[i] = toWireState(s)
	}
	return json.Marshal(out)
}

// PushServer is an OutputConsumer that broadcasts each FusedEntityState to
// any number of WebSocket subscribers, mirroring WebSocketServer's
// publish/broadcast shape but with a real client fan-out instead of an
// in-memory message buffer.
type PushServer struct {
	addr     string
	upgrader websocket.Upgrader
	logger   track.Logger

	replayStore *replay.Store

	mu         sync.Mutex
	clients    map[string]*websocket.Conn
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}
	running    bool
}

// NewPushServer returns a server that will listen on addr (e.g. ":8090")
// once Start is called. logger may be nil.
func NewPushServer(addr string, logger track.Logger) *PushServer {
	if logger == nil {
		logger = track.NopLogger{}
	}
	return &PushServer{
		addr:    addr,
		logger:  logger,
		clients: make(map[string]*websocket.Conn),
	}
}

// SetReplayStore attaches a replay store whose underlying SQLite database
// is exposed as a live, read/write SQL browser on the admin mux once
// Start mounts it. Must be called before Start.
func (p *PushServer) SetReplayStore(store *replay.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replayStore = store
}

// Start binds the listen address and begins serving. A bind failure is
// returned synchronously, so it can propagate to the orchestrator's
// Start and abort the whole system's startup as the error-handling
// design requires.
func (p *PushServer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("output: push server listen on %s: %w", p.addr, err)
	}
	p.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWebSocket)

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("pushserver-subscribers", "count of connected push server subscribers", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		n := len(p.clients)
		p.mu.Unlock()
		fmt.Fprintf(w, "%d subscriber(s) connected\n", n)
	})

	if p.replayStore != nil {
		tsqlServer, err := tailsql.NewServer(tailsql.Options{
			RoutePrefix: "/debug/tailsql/",
		})
		if err != nil {
			return fmt.Errorf("output: push server: tailsql server: %w", err)
		}
		tsqlServer.SetDB("sqlite://"+p.replayStore.Path(), p.replayStore.DB(), &tailsql.DBOptions{
			Label: "Replay store",
		})
		debug.Handle("tailsql/", "SQL live debugging over the replay store", tsqlServer.NewMux())
	}

	p.httpServer = &http.Server{Handler: mux}
	p.serveDone = make(chan struct{})
	p.running = true

	go func() {
		defer close(p.serveDone)
		if err := p.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			p.logger.Warn("push server: serve: %v", err)
		}
	}()

	p.logger.Info("push server listening on %s", p.addr)
	return nil
}

// Stop shuts down the HTTP server, closes every subscriber connection,
// and waits for the serve goroutine to exit. Idempotent.
func (p *PushServer) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	srv := p.httpServer
	done := p.serveDone
	for id, conn := range p.clients {
		conn.Close()
		delete(p.clients, id)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	<-done

	p.logger.Info("push server stopped")
	return nil
}

func (p *PushServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("push server: upgrade: %v", err)
		return
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.clients[id] = conn
	p.mu.Unlock()

	p.logger.Info("push server: subscriber %s connected", id)

	// Drain and discard any client-sent frames so the connection stays
	// open until it errors or is closed from the server side on Stop.
	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.clients, id)
			p.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// PublishState broadcasts s to every connected subscriber.
func (p *PushServer) PublishState(s track.FusedEntityState) {
	payload, err := MarshalState(s)
	if err != nil {
		p.logger.Warn("push server: marshal state: %v", err)
		return
	}
	p.broadcast(payload)
}

// PublishStates broadcasts the batch as a single JSON array message. Not
// exercised by the orchestrator today, kept for consumers that batch.
func (p *PushServer) PublishStates(ss []track.FusedEntityState) {
	payload, err := MarshalStates(ss)
	if err != nil {
		p.logger.Warn("push server: marshal states: %v", err)
		return
	}
	p.broadcast(payload)
}

func (p *PushServer) broadcast(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, conn := range p.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(p.clients, id)
		}
	}
}
