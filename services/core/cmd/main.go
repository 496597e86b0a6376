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
	"github.com/goiam/pkg/middleware"
	"github.com/goiam/pkg/oauth2"
	pkgRegistry "github.com/goiam/pkg/registry"
	"github.com/goiam/services/core/internal/model"
	"github.com/goiam/services/core/internal/rbac"
	"go.uber.org/zap"
)

const (
	serviceName = "core-service"
	servicePort = 8082
	basePath    = "core"
)

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

	// 初始化数据库与Redis
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer database.Close()
	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	defer database.CloseRedis()

	if err := database.AutoMigrate(
		&model.User{}, &model.Role{}, &model.Permission{},
		&model.Menu{}, &model.Dept{},
	); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// casbin策略引擎
	if err := auth.InitCasbin(database.Get()); err != nil {
		logger.Fatal("初始化casbin失败", zap.Error(err))
	}
	casbinSvc := auth.NewCasbinService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// RBAC解析链路
	repo := rbac.NewRepository(database.Get())
	resolver := rbac.NewResolver(repo)
	if err := rbac.SyncCasbin(ctx, repo, casbinSvc); err != nil {
		logger.Warn("casbin策略同步失败", zap.Error(err))
	}

	// 内部API保护：自省服务间令牌并要求internal scope
	introspector := oauth2.NewRemoteIntrospector(
		cfg.OAuth2.Client.IntrospectURL,
		cfg.OAuth2.Client.ClientID,
		cfg.OAuth2.Client.ClientSecret,
	)
	clientAuth := middleware.ClientAuth(introspector, "internal")

	// 服务地址
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, servicePort)

	// 创建Fiber应用
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())
	app.Use(middleware.IdentityFromGateway())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(200).JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 内部授权接口
	ctrl := rbac.NewController(repo, resolver, casbinSvc)
	ctrl.RegisterRoutes(app, clientAuth)

	// 注册到注册中心
	reg := pkgRegistry.NewRedisRegistry()
	svcInfo := pkgRegistry.NewServiceBuilder(serviceName, "v1.0.0").
		WithAddress(addr).
		WithBasePath(basePath).
		Build()
	if err := reg.Register(svcInfo); err != nil {
		logger.Warn("注册服务失败", zap.Error(err))
	}

	// 启动服务
	go func() {
		logger.Info("核心服务启动", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("服务运行失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("核心服务正在关闭...")
	_ = reg.Deregister(svcInfo)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("HTTP服务关闭异常", zap.Error(err))
	}
}
