package service

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"orgtalk/pkg/discovery"
	"orgtalk/pkg/logger"
)

// resourceToService URL资源段到后端服务的路由表
// 期望的URL格式: /api/v1/{resource}/{remaining-path}
var resourceToService = map[string]string{
	"messages":      "message-service",
	"conversations": "conversation-service",
	"presence":      "presence-service",
	"calls":         "call-service",
	"ptt":           "ptt-service",
	"gateway":       "im-gateway-service",
}

// staticPorts 无服务发现时的本机默认端口
var staticPorts = map[string]int32{
	"message-service":      21001,
	"conversation-service": 21002,
	"presence-service":     21003,
	"call-service":         21004,
	"ptt-service":          21005,
	"im-gateway-service":   21006,
}

// ProxyRouter 动态路由代理
// 优先走K8s服务发现加轮询负载均衡，发现不可用时回落本机静态端口
type ProxyRouter struct {
	discovery discovery.Discovery
	lb        discovery.LoadBalancer
	logger    logger.Logger
}

// NewProxyRouter 创建代理路由器，disc为nil时只用静态端口
func NewProxyRouter(disc discovery.Discovery, log logger.Logger) *ProxyRouter {
	return &ProxyRouter{
		discovery: disc,
		lb:        discovery.NewRoundRobinLoadBalancer(),
		logger:    log,
	}
}

// ServiceForPath 解析URL路径对应的后端服务名
func (p *ProxyRouter) ServiceForPath(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		return "", fmt.Errorf("invalid URL format: %s", path)
	}
	serviceName, ok := resourceToService[parts[2]]
	if !ok {
		return "", fmt.Errorf("unknown resource: %s", parts[2])
	}
	return serviceName, nil
}

// Resolve 解析后端服务地址
func (p *ProxyRouter) Resolve(serviceName string) (string, error) {
	if p.discovery != nil {
		instances, err := p.discovery.GetAllServiceInstances(serviceName)
		if err == nil && len(instances) > 0 {
			instance, err := p.lb.Select(instances)
			if err == nil {
				return fmt.Sprintf("%s:%d", instance.Host, instance.Port), nil
			}
		}
	}

	port, ok := staticPorts[serviceName]
	if !ok {
		return "", fmt.Errorf("service %s not found", serviceName)
	}
	return fmt.Sprintf("localhost:%d", port), nil
}

// ProxyRequest 把请求反向代理到后端服务，路径原样透传
func (p *ProxyRouter) ProxyRequest(w http.ResponseWriter, r *http.Request) error {
	serviceName, err := p.ServiceForPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	addr, err := p.Resolve(serviceName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Service %s not available", serviceName), http.StatusServiceUnavailable)
		return err
	}

	targetURL := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(targetURL)

	r.Header.Set("X-Forwarded-Host", r.Host)
	r.Header.Set("X-Origin-Host", addr)

	proxy.ServeHTTP(w, r)

	p.logger.Debug(r.Context(), "请求已代理",
		logger.F("method", r.Method),
		logger.F("path", r.URL.Path),
		logger.F("target", addr))
	return nil
}
