package service

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	shardCount     = 32
	eventChannel   = "studyquiz_events"
)

// 推送给客户端的事件类型
const (
	EventGameAnswer   = "GAME_ANSWER"
	EventGameComplete = "GAME_COMPLETE"
	EventBadgeAwarded = "BADGE_AWARDED"
	EventSessionEnded = "SESSION_SUBMITTED"
	EventError        = "ERROR"
	EventPong         = "PONG"
)

type EventMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InboundMessage 客户端上行消息，Data 保持原始 JSON 交给处理器解析
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InboundHandler 处理上行消息，返回值（非空时）直接回给发送者
type InboundHandler func(userID string, msg InboundMessage) *EventMessage

type Client struct {
	Hub     *EventHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
	Limiter *rate.Limiter // 限流器
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.String("userId", c.UserID))
			}
			break
		}

		// 限流校验 (每秒最多 10 条消息，允许突发 20 条)
		if !c.Limiter.Allow() {
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		monitoring.WSMessageCounter.WithLabelValues(msg.Type, "in").Inc() // 记录上行消息

		if reply := c.Hub.dispatch(c.UserID, msg); reply != nil {
			c.deliver(*reply)
		}
	}
}

// deliver 直接写入本连接，不经过 redis
func (c *Client) deliver(msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		// Send 可能已被 unregister 关闭
		recover()
	}()
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// EventHub 维护每个用户的 websocket 连接，多实例部署时通过 redis pubsub 广播
type EventHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	upgrader   websocket.Upgrader

	handlerMu sync.RWMutex
	handlers  map[string]InboundHandler
}

// NewEventHub rdb 为 nil 时只推送本地连接
func NewEventHub(rdb *redis.Client, checkOrigin func(r *http.Request) bool) *EventHub {
	h := &EventHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		handlers: make(map[string]InboundHandler),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{clients: make(map[string]*Client)}
	}
	h.Handle("PING", func(string, InboundMessage) *EventMessage {
		return &EventMessage{Type: EventPong}
	})
	return h
}

// Handle 注册上行消息处理器
func (h *EventHub) Handle(msgType string, fn InboundHandler) {
	h.handlerMu.Lock()
	h.handlers[msgType] = fn
	h.handlerMu.Unlock()
}

func (h *EventHub) dispatch(userID string, msg InboundMessage) *EventMessage {
	h.handlerMu.RLock()
	fn, ok := h.handlers[msg.Type]
	h.handlerMu.RUnlock()
	if !ok {
		return &EventMessage{Type: EventError, Data: map[string]string{"message": "unknown message type " + msg.Type}}
	}
	return fn(userID, msg)
}

func (h *EventHub) getShard(userID string) *shard {
	f := fnv.New32a()
	f.Write([]byte(userID))
	return h.shards[f.Sum32()%shardCount]
}

type PubSubMessage struct {
	TargetUsers []string        `json:"targetUsers"`
	Payload     json.RawMessage `json:"payload"`
}

// Run 处理注册与注销，并消费 redis 频道；ctx 取消后返回
func (h *EventHub) Run(ctx context.Context) {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(ctx, eventChannel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				var psMsg PubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.pushToLocalRawUsers(psMsg.TargetUsers, psMsg.Payload)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if old, ok := s.clients[client.UserID]; ok {
				// 同一用户重复连接时保留最新的一条
				close(old.Send)
			} else {
				monitoring.WSOnlineUsers.Inc()
			}
			s.clients[client.UserID] = client
			s.mu.Unlock()

		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if cur, ok := s.clients[client.UserID]; ok && cur == client {
				delete(s.clients, client.UserID)
				close(client.Send)
				monitoring.WSOnlineUsers.Dec()
			}
			s.mu.Unlock()
		}
	}
}

// Stop 关闭所有连接
func (h *EventHub) Stop() {
	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, client := range s.clients {
			close(client.Send)
			delete(s.clients, userID)
			closed++
		}
		s.mu.Unlock()
	}
	monitoring.WSOnlineUsers.Set(0) // 停机时清空指标
	logger.Log.Info("EventHub stopped", zap.Int("closedConnections", closed))
}

// PushToUser 实现 Notifier
func (h *EventHub) PushToUser(userID string, msg EventMessage) {
	h.PushToUsers([]string{userID}, msg)
}

func (h *EventHub) PushToUsers(userIDs []string, msg EventMessage) {
	// 避免二次序列化
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Event marshal error", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	monitoring.WSMessageCounter.WithLabelValues(msg.Type, "out").Inc() // 记录下行消息
	if h.Redis == nil {
		h.pushToLocalRawUsers(userIDs, msgBytes)
		return
	}
	payload, _ := json.Marshal(PubSubMessage{TargetUsers: userIDs, Payload: msgBytes})
	if err := h.Redis.Publish(context.Background(), eventChannel, payload).Err(); err != nil {
		logger.Log.Warn("Event publish failed, delivering locally", zap.Error(err))
		h.pushToLocalRawUsers(userIDs, msgBytes)
	}
}

func (h *EventHub) pushToLocalRawUsers(userIDs []string, payload []byte) {
	for _, id := range userIDs {
		s := h.getShard(id)
		s.mu.RLock()
		if client, ok := s.clients[id]; ok {
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("userId", userID))
		return
	}
	client := &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(10), 20), // 每秒10条，允许突发20条
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
