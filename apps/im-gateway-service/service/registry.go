package service

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsClient 单个WebSocket连接，写锁保证同一连接串行写
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Registry 本地连接注册表，每个用户至多一条连接，新连接顶掉旧连接
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*wsClient
}

// NewRegistry 创建连接注册表
func NewRegistry() *Registry {
	return &Registry{clients: make(map[int64]*wsClient)}
}

// Add 注册连接，已有连接时关闭旧连接
func (r *Registry) Add(userID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[userID]; ok {
		existing.conn.Close()
	}
	r.clients[userID] = &wsClient{conn: conn}
}

// Remove 移除连接，仅当当前注册的还是这条连接时生效
// 被顶掉的旧连接退出时不能误删新连接
func (r *Registry) Remove(userID int64, conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.clients[userID]
	if !ok || existing.conn != conn {
		return false
	}
	delete(r.clients, userID)
	return true
}

// Push 向用户的本地连接写入一帧
func (r *Registry) Push(userID int64, payload []byte) error {
	r.mu.RLock()
	client, ok := r.clients[userID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("用户 %d 不在本地连接", userID)
	}
	return client.write(payload)
}

// Has 用户是否有本地连接
func (r *Registry) Has(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Count 本地连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll 关闭所有本地连接，服务退出时调用
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clients {
		client.conn.Close()
	}
	r.clients = make(map[int64]*wsClient)
}
