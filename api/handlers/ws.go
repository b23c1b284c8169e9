package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"sportsocial/services"
	"sportsocial/utils/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSender - запись в сокет из нескольких горутин, gorilla такого не допускает без мьютекса
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHandler - real-time канал уведомлений. Без валидного токена соединение остается открытым,
// но в presence не регистрируется и ничего не получает
func WSHandler(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	sender := &wsSender{conn: conn}
	// соединение живет дольше запроса, контекст запроса здесь не подходит
	ctx := context.Background()
	userID := svc.Presence.OnConnect(ctx, connectionID, token, sender)
	defer svc.Presence.OnDisconnect(ctx, connectionID)

	hello, _ := json.Marshal(services.RealtimeEvent{
		Event: "connected",
		Data:  gin.H{"connectionId": connectionID, "userId": userID, "authenticated": userID != ""},
	})
	_ = sender.Send(hello)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Log.WithError(err).WithField("connection_id", connectionID).Debug("WebSocket read error")
			}
			break
		}
	}
}
