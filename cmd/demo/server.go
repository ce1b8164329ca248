package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dougbarrett/reactivequery/api"
	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/server"
	"github.com/gorilla/websocket"
)

// newMux builds the demo's HTTP handler: a small REST surface over
// PostsService plus a WebSocket endpoint for the "post.created" broadcast
// that drives the client's signal-driven invalidation. Adapted from the
// teacher's example/server/main.go, which wired a generated handler from
// example/api/posts.go's @client-annotated interface (out of scope here per
// the spec's exclusion of "code-generation of accessor boilerplate",
// §1) — routes below are written out by hand instead.
func newMux(svc *PostsService, hub *broadcastHub, log querylog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/posts", handleListPosts(svc))
	mux.HandleFunc("POST /api/posts", handleCreatePost(svc, hub))
	mux.HandleFunc("GET /api/posts/{id}", handleGetPost(svc))
	mux.HandleFunc("DELETE /api/posts/{id}", handleDeletePost(svc, hub))
	mux.HandleFunc("GET /ws", hub.serveHTTP)

	return server.Chain(
		server.RequestID(),
		server.Recover(log),
		server.Logger(log),
		server.CORS(server.CORSOptions{}),
	)(mux)
}

func handleListPosts(svc *PostsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sl := api.Query(r).SkipLimit(100)

		page, err := svc.GetPage(r.Context(), sl.Skip, sl.Limit)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleGetPost(svc *PostsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			api.WriteError(w, api.BadRequest("invalid post id"))
			return
		}
		post, err := svc.GetByID(r.Context(), id)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

func handleCreatePost(svc *PostsService, hub *broadcastHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, api.BadRequest("invalid request body"))
			return
		}
		post, err := svc.Create(r.Context(), req)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		hub.broadcast("post.created", post)
		writeJSON(w, http.StatusCreated, post)
	}
}

func handleDeletePost(svc *PostsService, hub *broadcastHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			api.WriteError(w, api.BadRequest("invalid post id"))
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			api.WriteError(w, err)
			return
		}
		hub.broadcast("post.deleted", struct {
			ID int `json:"id"`
		}{id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wsMessage mirrors transport/ws.Message's wire shape without importing
// that package here (the server has no need for its client-side
// request/response correlation, only for broadcast).
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// broadcastHub fans server-side events out to every connected WebSocket
// client, adapted from the teacher's example/server/posts_ws.go
// PostsWSHandler: the same upgrade-then-register-then-broadcast-channel
// shape, trimmed to broadcast-only since the demo client never needs to
// issue posts.* RPCs over the socket — it already has the REST endpoints.
type broadcastHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	events chan wsMessage
	log    querylog.Logger
}

func newBroadcastHub(log querylog.Logger) *broadcastHub {
	h := &broadcastHub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]bool),
		events:   make(chan wsMessage, 256),
		log:      log,
	}
	go h.run()
	return h
}

func (h *broadcastHub) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", map[string]any{"err": err.Error()})
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// The demo never reads client->server messages on this socket; block
	// until the client disconnects so the registration above stays live.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *broadcastHub) broadcast(eventType string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("broadcast: marshal failed", err, map[string]any{"type": eventType})
		return
	}
	h.events <- wsMessage{Type: eventType, Payload: b}
}

func (h *broadcastHub) run() {
	for msg := range h.events {
		h.mu.RLock()
		for conn := range h.clients {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Warn("broadcast write failed", map[string]any{"err": err.Error()})
			}
		}
		h.mu.RUnlock()
	}
}

// wsURL rewrites an http(s):// base URL to its ws(s):// equivalent for the
// /ws endpoint.
func wsURL(httpURL string) string {
	u := strings.Replace(httpURL, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + "/ws"
}
