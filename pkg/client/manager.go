package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	kratoslog "github.com/go-kratos/kratos/v2/log"

	"orgtalk/pkg/config"
)

// ClientManager 服务间HTTP客户端管理器
type ClientManager struct {
	config  *config.Config
	logger  kratoslog.Logger
	clients map[string]*ServiceClient
	mu      sync.RWMutex
}

// ServiceClient 单个下游服务的HTTP客户端
type ServiceClient struct {
	baseURL string
	httpCli *http.Client
}

// NewClientManager 创建客户端管理器
func NewClientManager(cfg *config.Config, logger kratoslog.Logger) *ClientManager {
	return &ClientManager{
		config:  cfg,
		logger:  logger,
		clients: make(map[string]*ServiceClient),
	}
}

// GetClient 获取下游服务客户端，按服务名复用连接池
func (cm *ClientManager) GetClient(serviceName, baseURL string) *ServiceClient {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cli, exists := cm.clients[serviceName]; exists {
		return cli
	}

	cli := &ServiceClient{
		baseURL: baseURL,
		httpCli: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	cm.clients[serviceName] = cli
	cm.logger.Log(kratoslog.LevelInfo, "msg", "HTTP client created", "service", serviceName, "addr", baseURL)

	return cli
}

// CloseAll 关闭所有客户端连接
func (cm *ClientManager) CloseAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for name, cli := range cm.clients {
		cli.httpCli.CloseIdleConnections()
		cm.logger.Log(kratoslog.LevelInfo, "msg", "HTTP client closed", "service", name)
	}
	cm.clients = make(map[string]*ServiceClient)
	return nil
}

// GetConnectionStats 获取连接统计信息
func (cm *ClientManager) GetConnectionStats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := make(map[string]any)
	stats["total_clients"] = len(cm.clients)

	targets := make(map[string]string)
	for serviceName, cli := range cm.clients {
		targets[serviceName] = cli.baseURL
	}
	stats["targets"] = targets

	return stats
}

// PostJSON 发送JSON请求并解码响应
func (c *ServiceClient) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("编码请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("下游服务错误: %s 返回 %d", path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON 发送GET请求并解码响应
func (c *ServiceClient) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.GetJSONWithAuth(ctx, path, "", out)
}

// GetJSONWithAuth 发送GET请求并透传调用方的Authorization头
func (c *ServiceClient) GetJSONWithAuth(ctx context.Context, path, authorization string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("下游服务错误: %s 返回 %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
