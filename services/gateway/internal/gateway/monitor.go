package gateway

import (
	"time"

	"github.com/goiam/pkg/metrics"
	"github.com/goiam/pkg/response"
	"github.com/gofiber/fiber/v2"
)

// Monitor 网关监控控制器
type Monitor struct {
	gateway  *Gateway
	counters *metrics.AuthCounters
}

// NewMonitor 创建监控控制器
func NewMonitor(gw *Gateway, counters *metrics.AuthCounters) *Monitor {
	return &Monitor{
		gateway:  gw,
		counters: counters,
	}
}

// RegisterRoutes 注册路由
func (m *Monitor) RegisterRoutes(app *fiber.App) {
	app.Get("/health", m.Health)
	app.Get("/services", m.Services)
	app.Get("/metrics/auth", m.AuthMetrics)
	app.Post("/metrics/auth/reset", m.ResetAuthMetrics)
}

// Health 健康检查
func (m *Monitor) Health(c *fiber.Ctx) error {
	return c.Status(200).JSON(fiber.Map{
		"status":  "healthy",
		"service": "gateway",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ServiceStatus 服务状态
type ServiceStatus struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Breaker   string   `json:"breaker"`
	Nodes     int      `json:"nodes"`
	Addresses []string `json:"addresses,omitempty"`
}

// Services 所有已注册服务的状态
func (m *Monitor) Services(c *fiber.Ctx) error {
	services, err := m.gateway.registry.ListServices()
	if err != nil {
		return response.ServerError(c, "获取服务列表失败")
	}

	var statuses []ServiceStatus
	for _, svc := range services {
		svcDetails, err := m.gateway.registry.GetService(svc.Name)
		if err != nil {
			statuses = append(statuses, ServiceStatus{
				Name:    svc.Name,
				Status:  "unknown",
				Breaker: m.gateway.breaker(svc.Name).State(),
			})
			continue
		}

		var addresses []string
		nodeCount := 0
		for _, s := range svcDetails {
			for _, node := range s.Nodes {
				addresses = append(addresses, node.Address)
				nodeCount++
			}
		}

		status := "unhealthy"
		if nodeCount > 0 {
			status = "healthy"
		}

		statuses = append(statuses, ServiceStatus{
			Name:      svc.Name,
			Status:    status,
			Breaker:   m.gateway.breaker(svc.Name).State(),
			Nodes:     nodeCount,
			Addresses: addresses,
		})
	}

	return response.Success(c, statuses)
}

// AuthMetrics 认证计数器快照
func (m *Monitor) AuthMetrics(c *fiber.Ctx) error {
	return response.Success(c, m.counters.Snapshot())
}

// ResetAuthMetrics 重置认证计数器
func (m *Monitor) ResetAuthMetrics(c *fiber.Ctx) error {
	m.counters.Reset()
	return response.Success(c, m.counters.Snapshot())
}
