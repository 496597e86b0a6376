// Package registry 提供服务注册与发现，路由信息通过节点元数据传递给网关。
package registry

import (
	"encoding/json"
	"strings"

	"go-micro.dev/v5/registry"
)

// 节点元数据键
const (
	MetaBasePath = "base_path"
	MetaRoutes   = "routes"
)

// DefaultMethods 默认允许的HTTP方法
var DefaultMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// RouteConfig 细粒度路由配置
// 认证由网关过滤器统一裁决，路由只描述转发规则
type RouteConfig struct {
	PathPrefix  string   `json:"path_prefix"`  // 网关路径前缀，如 /api/v1/auth
	StripPrefix bool     `json:"strip_prefix"` // 转发时是否去除前缀
	Methods     []string `json:"methods"`      // 允许的HTTP方法，空表示全部默认方法
}

// MatchPath 路径是否命中该路由
func (r *RouteConfig) MatchPath(path string) bool {
	return strings.HasPrefix(path, r.PathPrefix)
}

// MatchMethod 方法是否允许
func (r *RouteConfig) MatchMethod(method string) bool {
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ServiceBuilder 服务注册信息构建器
type ServiceBuilder struct {
	name     string
	version  string
	nodeID   string
	address  string
	basePath string
	routes   []RouteConfig
}

// NewServiceBuilder 创建构建器
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{
		name:    name,
		version: version,
	}
}

// WithNodeID 设置节点ID，缺省为 {name}-1
func (b *ServiceBuilder) WithNodeID(nodeID string) *ServiceBuilder {
	b.nodeID = nodeID
	return b
}

// WithAddress 设置服务监听地址
func (b *ServiceBuilder) WithAddress(addr string) *ServiceBuilder {
	b.address = addr
	return b
}

// WithBasePath 设置基础路径
// 网关将 /api/v1/{basePath}/* 代理到服务的 /*
func (b *ServiceBuilder) WithBasePath(basePath string) *ServiceBuilder {
	b.basePath = basePath
	return b
}

// AddRoute 追加细粒度路由，覆盖基础路径的默认转发规则
func (b *ServiceBuilder) AddRoute(route RouteConfig) *ServiceBuilder {
	if len(route.Methods) == 0 {
		route.Methods = DefaultMethods
	}
	b.routes = append(b.routes, route)
	return b
}

// Build 构建注册信息，路由配置序列化进节点元数据
func (b *ServiceBuilder) Build() *registry.Service {
	if b.nodeID == "" {
		b.nodeID = b.name + "-1"
	}

	routesJSON, _ := json.Marshal(b.routes)
	return &registry.Service{
		Name:    b.name,
		Version: b.version,
		Nodes: []*registry.Node{
			{
				Id:      b.nodeID,
				Address: b.address,
				Metadata: map[string]string{
					MetaBasePath: b.basePath,
					MetaRoutes:   string(routesJSON),
				},
			},
		},
	}
}

// ParseServiceMeta 从节点元数据还原基础路径与路由配置
func ParseServiceMeta(svc *registry.Service) (basePath string, routes []RouteConfig) {
	for _, node := range svc.Nodes {
		if bp, ok := node.Metadata[MetaBasePath]; ok && bp != "" {
			basePath = bp
		}
		if routesJSON, ok := node.Metadata[MetaRoutes]; ok && routesJSON != "" {
			var nodeRoutes []RouteConfig
			if err := json.Unmarshal([]byte(routesJSON), &nodeRoutes); err == nil {
				routes = append(routes, nodeRoutes...)
			}
		}
	}
	return
}
