package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

// DebugServer is an optional localhost HTTP surface for humans: current
// status, log tail, and a websocket pushing live log lines. It never
// carries MCP traffic.
type DebugServer struct {
	srv    *Server
	http   *http.Server
	upg    websocket.Upgrader
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func NewDebugServer(srv *Server, port int) *DebugServer {
	ds := &DebugServer{
		srv:   srv,
		conns: make(map[*websocket.Conn]struct{}),
		upg: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/debug/status", ds.handleStatus).Methods("GET")
	r.HandleFunc("/debug/log", ds.handleLog).Methods("GET")
	r.HandleFunc("/debug/stream", ds.handleStream)

	ds.http = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	srv.bus.Subscribe(events.LogLine, ds.broadcastLogLine)
	return ds
}

// Start serves until Shutdown. Errors after shutdown are swallowed.
func (ds *DebugServer) Start() {
	go func() {
		if err := ds.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server: %v", err)
		}
	}()
	log.Printf("debug server: listening on %s", ds.http.Addr)
}

func (ds *DebugServer) Shutdown(ctx context.Context) error {
	ds.mu.Lock()
	ds.closed = true
	for c := range ds.conns {
		c.Close()
	}
	ds.conns = make(map[*websocket.Conn]struct{})
	ds.mu.Unlock()
	return ds.http.Shutdown(ctx)
}

func (ds *DebugServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ds.srv.manager.GetStatus()); err != nil {
		log.Printf("debug server: encode status: %v", err)
	}
}

func (ds *DebugServer) handleLog(w http.ResponseWriter, r *http.Request) {
	n := 100
	if q := r.URL.Query().Get("tail"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = v
		}
	}
	lines, err := ds.srv.manager.ReadLog(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func (ds *DebugServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ds.upg.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("debug server: upgrade: %v", err)
		return
	}

	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		conn.Close()
		return
	}
	ds.conns[conn] = struct{}{}
	ds.mu.Unlock()

	// Reader loop only to detect close; clients do not send anything.
	go func() {
		defer ds.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (ds *DebugServer) drop(conn *websocket.Conn) {
	ds.mu.Lock()
	delete(ds.conns, conn)
	ds.mu.Unlock()
	conn.Close()
}

func (ds *DebugServer) broadcastLogLine(event events.Event) {
	ds.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(ds.conns))
	for c := range ds.conns {
		targets = append(targets, c)
	}
	ds.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type": "log",
		"time": event.Timestamp.Format(time.RFC3339Nano),
		"line": event.Data["line"],
	})
	if err != nil {
		return
	}
	for _, c := range targets {
		c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			ds.drop(c)
		}
	}
}
