// Package feed exposes emitted interval metrics to live subscribers over
// WebSocket. It is an outbound observation surface only; nothing in the
// trading path depends on it.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crocket-go/market"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Update 推送给订阅方的一条区间指标。
type Update struct {
	Market    string `json:"market"`
	Time      string `json:"time"`
	Volume    string `json:"volume"`
	BuyCount  int    `json:"buyCount"`
	SellCount int    `json:"sellCount"`
	Price     string `json:"price"`
	PriceVWAP string `json:"priceVwap"`
}

// Hub 维护活跃连接并广播指标。慢客户端的发送缓冲满了直接断开，
// 绝不反压聚合循环。
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Publish 实现 market.Publisher。
func (h *Hub) Publish(mkt string, m market.IntervalMetrics) {
	msg, err := json.Marshal(Update{
		Market:    mkt,
		Time:      m.WindowStart.Local().Format("2006-01-02 15:04:05"),
		Volume:    m.Volume.String(),
		BuyCount:  m.BuyCount,
		SellCount: m.SellCount,
		Price:     m.Price.String(),
		PriceVWAP: m.PriceVWAP.String(),
	})
	if err != nil {
		h.log.Error("feed marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	stale := make([]*client, 0)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.drop(c)
	}
}

// ServeHTTP 升级连接并注册客户端。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("feed client connected", zap.Int("total", total))

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.Close()
}

// readLoop 只为感知断开，入站消息一律丢弃。
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.log.Info("feed client disconnected", zap.Int("total", total))
}

// Serve 在 addr 上启动推送服务，路径 /feed。
func (h *Hub) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/feed", h)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			h.log.Error("feed server stopped", zap.Error(err))
		}
	}()
}
