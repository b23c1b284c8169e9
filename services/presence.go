package services

import (
	"context"
	"encoding/json"
	"sync"

	"sportsocial/utils/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sender - живое real-time соединение (websocket и т.п.)
type Sender interface {
	Send(data []byte) error
}

// Presence - реестр присутствия: какие соединения сейчас открыты у пользователя
type Presence interface {
	OnConnect(ctx context.Context, connectionID string, token string, sender Sender) string
	OnDisconnect(ctx context.Context, connectionID string)
	EmitToUser(userID string, event string, payload interface{}) int
	IsOnline(ctx context.Context, userID string) bool
}

// RealtimeEvent - конверт сообщения, которое уходит в сокет
type RealtimeEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

var presenceConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "presence_connections",
	Help: "Number of authenticated real-time connections held by this instance",
})

type presenceEntry struct {
	userID string
	sender Sender
}

// PresenceRegistry держит userID -> множество connectionID в памяти процесса.
// После рестарта состояние теряется, клиенты переподключаются сами
type PresenceRegistry struct {
	mu          sync.RWMutex
	decoder     TokenDecoder
	users       map[string]map[string]struct{}
	connections map[string]presenceEntry
}

func NewPresenceRegistry(decoder TokenDecoder) *PresenceRegistry {
	return &PresenceRegistry{
		decoder:     decoder,
		users:       make(map[string]map[string]struct{}),
		connections: make(map[string]presenceEntry),
	}
}

// OnConnect регистрирует соединение за пользователем из токена.
// Невалидный токен не рвет соединение: оно просто ничего не получает
func (r *PresenceRegistry) OnConnect(ctx context.Context, connectionID string, token string, sender Sender) string {
	identity, err := r.decoder.Decode(token)
	if err != nil {
		log.Log.WithField("connection_id", connectionID).Debug("unauthenticated real-time connection, not registered")
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[identity.UserID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[identity.UserID] = conns
	}
	if prev, exists := r.connections[connectionID]; !exists {
		presenceConnections.Inc()
	} else if prev.userID != identity.UserID {
		delete(r.users[prev.userID], connectionID)
		if len(r.users[prev.userID]) == 0 {
			delete(r.users, prev.userID)
		}
	}
	conns[connectionID] = struct{}{}
	r.connections[connectionID] = presenceEntry{userID: identity.UserID, sender: sender}

	log.Log.WithField("user_id", identity.UserID).WithField("connection_id", connectionID).Info("user connected")
	return identity.UserID
}

// OnDisconnect убирает соединение у того пользователя, которому оно принадлежит
func (r *PresenceRegistry) OnDisconnect(ctx context.Context, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.connections[connectionID]
	if !ok {
		return
	}
	delete(r.connections, connectionID)
	presenceConnections.Dec()

	conns := r.users[entry.userID]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.users, entry.userID)
	}
}

// EmitToUser отправляет событие во все соединения пользователя, возвращает число успешных отправок.
// Нет соединений - ничего не делаем, это не ошибка
func (r *PresenceRegistry) EmitToUser(userID string, event string, payload interface{}) int {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		senders = append(senders, r.connections[connID].sender)
	}
	r.mu.RUnlock()

	if len(senders) == 0 {
		return 0
	}

	data, err := json.Marshal(RealtimeEvent{Event: event, Data: payload})
	if err != nil {
		log.Log.WithError(err).Error("failed to marshal real-time event")
		return 0
	}

	delivered := 0
	for _, s := range senders {
		if err := s.Send(data); err != nil {
			log.Log.WithError(err).WithField("user_id", userID).Warn("real-time send failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (r *PresenceRegistry) IsOnline(ctx context.Context, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionIDs возвращает копию множества соединений пользователя
func (r *PresenceRegistry) ConnectionIDs(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.users[userID]))
	for id := range r.users[userID] {
		ids = append(ids, id)
	}
	return ids
}
