// Package preview serves the strip's contents over HTTP so it can be watched
// without any LEDs attached.
package preview

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/Jon-Bright/rmtled/pixarray"
)

// Frames queued per client before it counts as too slow and is dropped.
const clientQueue = 8

const writeWait = 200 * time.Millisecond

type Snapshot struct {
	Chip   string   `json:"chip"`
	Order  string   `json:"order"`
	LEDs   int      `json:"leds"`
	Mode   string   `json:"mode"`
	Pixels []string `json:"pixels"`
}

type frame struct {
	T       int64    `json:"t"`
	FrameID uint64   `json:"frame_id"`
	Pixels  []string `json:"pixels"`
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.out)
	})
}

// Hub fans frames out to websocket clients.
type Hub struct {
	width int

	mu      sync.Mutex
	clients map[*client]bool
	frameID uint64
}

// NewHub returns a hub formatting width channels per pixel.
func NewHub(width int) *Hub {
	return &Hub{
		width:   width,
		clients: map[*client]bool{},
	}
}

// Hex formats px the way every endpoint reports pixels.
func Hex(px []pixarray.Pixel, width int) []string {
	h := make([]string, len(px))
	for i, p := range px {
		h[i] = p.Hex(width)
	}
	return h
}

// Clients is the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues px for every client. It never blocks: a client whose queue
// is full is disconnected.
func (h *Hub) Publish(px []pixarray.Pixel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameID++
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: h.frameID, Pixels: Hex(px, h.width)})
	if err != nil {
		log.Error().Err(err).Msg("marshal frame")
		return
	}
	for c := range h.clients {
		select {
		case c.out <- b:
		default:
			log.Info().Str("client", c.id).Msg("dropping slow preview client")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for b := range c.out {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("write frame")
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) handleFrames(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	c := &client{id: cuid.New(), conn: conn, out: make(chan []byte, clientQueue)}
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Int("clients", n).Msg("preview client connected")

	go h.writeLoop(c)
	go func() {
		defer func() {
			h.remove(c)
			log.Info().Str("client", c.id).Msg("preview client gone")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// Router serves the health check, the current pixels as returned by
// snapshot, and the frame stream.
func (h *Hub) Router(snapshot func() Snapshot) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":  "ok",
			"clients": h.Clients(),
		})
	})
	r.Get("/api/pixels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, snapshot())
	})
	r.Get("/ws/frames", h.handleFrames)
	return r
}
