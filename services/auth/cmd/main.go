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
	"github.com/goiam/services/auth/internal/client"
	"github.com/goiam/services/auth/internal/login"
	"github.com/goiam/services/auth/internal/model"
	"github.com/goiam/services/auth/internal/token"
	"go.uber.org/zap"
)

const (
	serviceName = "auth-service"
	servicePort = 8081
	basePath    = "auth"
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

	if err := database.AutoMigrate(&model.OAuthClient{}); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 客户端注册表：数据库存储，启动时注册配置的客户端
	registry := client.NewGormRegistry()
	if err := client.Bootstrap(ctx, registry, cfg.OAuth2.Clients,
		cfg.OAuth2.AccessTokenTTL, cfg.OAuth2.RefreshTokenTTL); err != nil {
		logger.Fatal("注册OAuth2客户端失败", zap.Error(err))
	}

	// 令牌签发链路
	codec := auth.NewTokenCodec(&cfg.JWT)
	store := token.NewRedisStore()
	issuer := token.NewIssuer(registry, codec, store)
	token.StartSweeper(ctx, store, cfg.OAuth2.SweepDuration())

	// 登录链路：身份校验委托核心服务
	var loginCtrl *login.Controller
	if cfg.OAuth2.Client.Enabled {
		tokens := oauth2.NewClientTokenCache(&cfg.OAuth2.Client)
		core := login.NewCoreClient(cfg.OAuth2.Client.CoreURL, tokens, &cfg.OAuth2.Client)
		loginCtrl = login.NewController(core, codec, &cfg.JWT)
	}

	// 服务地址
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, servicePort)

	// 创建Fiber应用
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(200).JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// OAuth2端点
	tokenCtrl := token.NewController(issuer)
	tokenCtrl.RegisterRoutes(app)

	// 登录端点
	if loginCtrl != nil {
		jwtMiddleware := middleware.JWTAuth(codec, &cfg.Security.Auth)
		loginCtrl.RegisterRoutes(app, jwtMiddleware)
	}

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
		logger.Info("认证服务启动", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("服务运行失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("认证服务正在关闭...")
	_ = reg.Deregister(svcInfo)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("HTTP服务关闭异常", zap.Error(err))
	}
}
