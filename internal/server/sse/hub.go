package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trace-rescue/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Client ist ein einzelner verbundener SSE-Client
type Client chan []byte

// Hub verwaltet die aktiven Clients und verteilt Broadcasts an sie
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex
}

// DetectionEvent ist die Nachricht, die für einen neuen Fund gesendet wird
type DetectionEvent struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Message   string    `json:"message"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		done:       make(chan struct{}),
		clients:    make(map[Client]bool),
	}
}

// Run verarbeitet Registrierungen und Broadcasts, bis ctx endet.
// Beim Beenden werden alle Client-Kanäle geschlossen.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))
			for client := range h.clients {
				select {
				case client <- message:
				default:
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register meldet einen Client an. Gibt false zurück, wenn der Hub beendet ist.
func (h *Hub) Register(client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister meldet einen Client ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount liefert die Anzahl verbundener Clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast stellt eine Nachricht für alle Clients in die Queue, ohne zu blockieren
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastDetection sendet einen neuen Fund an alle Clients
func (h *Hub) BroadcastDetection(d models.Detection, imageURL string) {
	data, err := json.Marshal(DetectionEvent{
		ID:        d.ID,
		Name:      d.Name,
		Location:  d.Location,
		Message:   d.Message,
		ImageURL:  imageURL,
		Timestamp: d.ReceivedAt,
	})
	if err != nil {
		log.Errorf("Failed to marshal detection for SSE: %v", err)
		return
	}
	h.Broadcast(data)
}
