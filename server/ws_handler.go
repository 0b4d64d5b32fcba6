package server

import (
	"encoding/json"
	"net/http"
	"time"

	"OnAirFM/core/radio"
	"OnAirFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096 // 4KB
	sendBufferSize = 16
)

// WSHandler 电台 WebSocket：加入时推送快照，之后转发每次状态变化
type WSHandler struct {
	radio    RadioService
	upgrader websocket.Upgrader
}

// NewWSHandler 创建 WebSocket 处理器。allowedOrigins 为空时接受任意来源
func NewWSHandler(svc RadioService, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		radio: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 非浏览器客户端不带 Origin
		return origin == "" || set[origin]
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/radio", h.ServeWS).Methods(http.MethodGet)
}

// wsClient 一个监听者连接
type wsClient struct {
	id   string
	conn *websocket.Conn
	sub  *radio.Subscription
	send chan radio.Message
	done chan struct{}
	svc  RadioService
}

// ServeWS 升级连接并启动读写循环
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	sub, snapshot := h.radio.Subscribe()
	client := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		sub:  sub,
		send: make(chan radio.Message, sendBufferSize),
		done: make(chan struct{}),
		svc:  h.radio,
	}
	logger.Info("listener connected", logger.String("client", client.id), logger.String("remote", r.RemoteAddr))

	// 加入即推送当前快照，先于任何更新写出
	msg, err := radio.NewStatusMessage(radio.MsgTypeSync, snapshot)
	if err == nil {
		err = client.write(msg)
	}
	if err != nil {
		logger.Warn("failed to send initial snapshot", logger.String("client", client.id), logger.ErrorField(err))
		sub.Close()
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func (c *wsClient) enqueue(msgType string, status radio.Status) {
	msg, err := radio.NewStatusMessage(msgType, status)
	if err != nil {
		logger.Warn("failed to encode status", logger.ErrorField(err))
		return
	}
	c.enqueueMessage(msg)
}

func (c *wsClient) enqueueMessage(msg radio.Message) {
	select {
	case c.send <- msg:
	default:
		// 缓冲区满，丢弃消息
	}
}

// readPump 读取客户端请求：sync 返回最新快照，ping 返回 pong
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.sub.Close()
		c.conn.Close()
		logger.Info("listener disconnected", logger.String("client", c.id), logger.Int64("dropped", c.sub.Dropped()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("client", c.id))
			}
			return
		}

		var msg radio.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("invalid message format", logger.ErrorField(err), logger.String("client", c.id))
			continue
		}

		switch msg.Type {
		case radio.MsgTypeSync:
			c.enqueue(radio.MsgTypeSync, c.svc.Status())
		case radio.MsgTypePing:
			c.enqueueMessage(radio.Message{Type: radio.MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			c.enqueueMessage(radio.Message{Type: radio.MsgTypeError, Data: json.RawMessage(`"unsupported message type"`), Timestamp: time.Now().UnixMilli()})
		}
	}
}

// writePump 写入消息循环，每条消息单独一帧
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}

		case status, ok := <-c.sub.Updates():
			if !ok {
				// 调度器关闭
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "radio shutting down"))
				return
			}
			msg, err := radio.NewStatusMessage(radio.MsgTypeUpdate, status)
			if err != nil {
				continue
			}
			if err := c.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *wsClient) write(msg radio.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
