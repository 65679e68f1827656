package ws

import (
	"sync"

	"facultylink/internal/metrics"
)

// Hub 维护两层注册表：roomID → 房间内连接集合，以及全量连接集合
// （用于 new_room 这类不分房间的广播）。集合懒创建，清空即回收，
// 长时间运行不会因临时房间无限增长。
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uint]map[*Client]struct{}
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[uint]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Register 把新连接加入全量集合。此时连接还没有身份和房间。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister 同步移除连接：先退出当前房间，再退出全量集合。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if c.roomID != 0 {
		h.removeFromRoom(c.roomID, c)
	}
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.WsConnections.Dec()
	}
	h.mu.Unlock()
	c.shutdown()
}

// Join 把连接挂到目标房间；重复 join 会先离开旧房间，集合本身天然去重。
func (h *Hub) Join(roomID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.roomID != 0 && c.roomID != roomID {
		h.removeFromRoom(c.roomID, c)
	}
	set := h.rooms[roomID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.rooms[roomID] = set
	}
	set[c] = struct{}{}
	c.roomID = roomID
}

// Leave 把连接从房间摘除，集合清空时回收整个条目。
func (h *Hub) Leave(roomID uint, c *Client) {
	h.mu.Lock()
	h.removeFromRoom(roomID, c)
	h.mu.Unlock()
}

// removeFromRoom 调用方必须持有 h.mu。
func (h *Hub) removeFromRoom(roomID uint, c *Client) {
	set := h.rooms[roomID]
	if set == nil {
		return
	}
	delete(set, c)
	if c.roomID == roomID {
		c.roomID = 0
	}
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast 把 payload 投递给房间内每个存活连接。逐个连接尽力而为：
// 发送缓冲已满或连接已关闭的直接跳过并摘除，绝不阻塞其余接收者。
// 不保证接收者之间的先后顺序。
func (h *Hub) Broadcast(roomID uint, payload []byte) {
	h.mu.RLock()
	set := h.rooms[roomID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(payload) {
			h.Unregister(c)
		}
	}
}

// BroadcastAll 投递给全部在线连接，不分房间。
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(payload) {
			h.Unregister(c)
		}
	}
}

// Room 返回连接当前所在的房间，0 表示尚未 join。
func (h *Hub) Room(c *Client) uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.roomID
}

// Online 返回房间在线连接数量，供 REST 接口复用。
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Connected 返回全量在线连接数量。
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
