package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/database"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/metrics"
	"github.com/goiam/pkg/middleware"
	pkgRegistry "github.com/goiam/pkg/registry"
	"github.com/goiam/services/gateway/internal/gateway"
	"go.uber.org/zap"
)

const serviceName = "gateway-service"

func main() {
	// 加载配置
	if err := config.Init(""); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志
	logger.Init(&cfg.Log)
	defer logger.Sync()

	// 初始化Redis（注册中心存储）
	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	defer database.CloseRedis()

	// 服务地址
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)

	// 创建 Redis 注册中心
	reg := pkgRegistry.NewRedisRegistry()

	// 创建网关与认证过滤器
	gw := gateway.NewGateway(reg, cfg)
	counters := metrics.NewAuthCounters()
	codec := auth.NewTokenCodec(&cfg.JWT)
	authFilter := gateway.NewAuthFilter(&cfg.Security.Auth, codec, counters)

	// 创建Fiber应用
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// 全局中间件，认证过滤器必须在RequestID之后
	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())

	limiter := middleware.NewRateLimiter(1000, 2000).OnLimit(counters.RecordRateLimitHit)
	app.Use(limiter.Middleware())

	// 监控端点
	monitor := gateway.NewMonitor(gw, counters)
	monitor.RegisterRoutes(app)

	// API代理：认证过滤 → 转发
	app.Use("/api", authFilter.Middleware())
	app.All("/api/*", gw.GetHandler())

	// 同步路由并监听服务变化
	if err := gw.SyncRoutes(); err != nil {
		logger.Warn("同步服务路由失败", zap.Error(err))
	}
	if err := gw.WatchServices(); err != nil {
		logger.Fatal("启动服务监听失败", zap.Error(err))
	}

	// 注册自身
	svcInfo := pkgRegistry.NewServiceBuilder(serviceName, "v1.0.0").
		WithAddress(addr).
		Build()
	if err := reg.Register(svcInfo); err != nil {
		logger.Warn("注册网关服务失败", zap.Error(err))
	}

	// 启动服务
	go func() {
		logger.Info("网关服务启动", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("服务运行失败", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("网关服务正在关闭...")
	_ = reg.Deregister(svcInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		logger.Error("网关关闭异常", zap.Error(err))
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP服务关闭异常", zap.Error(err))
	}
}
