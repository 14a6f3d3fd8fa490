package websocket

import (
	"bytes"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// ============ Типизированные сообщения (без map[string]interface{}) ============

// StatusMessage - снапшот состояния движка
type StatusMessage struct {
	Type string              `json:"type"`
	Data models.EngineStatus `json:"data"`
}

// EventMessage - событие движка (открытие, закрытие, авария, рестарт)
type EventMessage struct {
	Type string              `json:"type"`
	Data models.Notification `json:"data"`
}

// PositionsMessage - снапшот открытых позиций
type PositionsMessage struct {
	Type string            `json:"type"`
	Data []models.Position `json:"data"`
}

// PhaseMessage - состояние фазы автоматизации
type PhaseMessage struct {
	Type string            `json:"type"`
	Data models.PhaseState `json:"data"`
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральный менеджер для broadcast событий движка операторскому UI:
// real-time обновления без polling. Медленные клиенты, не успевающие
// вычитывать буфер, отключаются.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *utils.Logger
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("ws"),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Список копируется под коротким RLock, отправка без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("removed slow clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total),
				)
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет trailing newline
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastStatus отправляет снапшот состояния движка
func (h *Hub) BroadcastStatus(status models.EngineStatus) {
	h.Broadcast(&StatusMessage{Type: "status", Data: status})
}

// BroadcastEvent отправляет событие движка
func (h *Hub) BroadcastEvent(n models.Notification) {
	h.Broadcast(&EventMessage{Type: "event", Data: n})
}

// BroadcastPositions отправляет снапшот открытых позиций
func (h *Hub) BroadcastPositions(positions []models.Position) {
	h.Broadcast(&PositionsMessage{Type: "positions", Data: positions})
}

// BroadcastPhase отправляет состояние фазы
func (h *Hub) BroadcastPhase(state models.PhaseState) {
	h.Broadcast(&PhaseMessage{Type: "phase", Data: state})
}

// ForwardEvents транслирует события шины движка в WebSocket.
// Блокируется до закрытия канала, запускать в горутине.
func (h *Hub) ForwardEvents(events <-chan models.Notification) {
	for n := range events {
		h.BroadcastEvent(n)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
