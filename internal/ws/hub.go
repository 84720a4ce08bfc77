package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Имена событий, отправляемых клиентам.
const (
	EventProposalStatusChanged    = "proposal.status_changed"
	EventDeliverableStatusChanged = "deliverable.status_changed"
	EventFundsClaimed             = "funds.claimed"
	EventBalanceUpdated           = "balance.updated"
)

// Hub управляет всеми WebSocket клиентами.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

type message struct {
	// userID == uuid.Nil означает рассылку всем подключённым.
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NotifyUser отправляет событие конкретному участнику.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, data any) error {
	raw, err := marshalEvent(event, data)
	if err != nil {
		return err
	}
	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

// NotifyAll отправляет событие всем подключённым участникам.
func (h *Hub) NotifyAll(event string, data any) error {
	raw, err := marshalEvent(event, data)
	if err != nil {
		return err
	}
	h.broadcast <- message{userID: uuid.Nil, payload: raw}
	return nil
}

// marshalEvent сериализует событие по контракту WebSocket API: поле
// "type" содержит имя события, "data" — полезную нагрузку.
func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if userID == uuid.Nil {
		for _, clients := range h.clients {
			for client := range clients {
				client.trySend(payload)
			}
		}
		return
	}

	for client := range h.clients[userID] {
		client.trySend(payload)
	}
}
