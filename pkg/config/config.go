package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once   sync.Once
	config *Config
)

// Config 全局配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	OAuth2   OAuth2Config   `mapstructure:"oauth2"`
	Log      LogConfig      `mapstructure:"log"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	LogLevel     string `mapstructure:"logLevel"`
}

// DSN 生成数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	case "sqlite":
		// SQLite 直接使用文件路径作为 DSN，空值表示内存数据库
		if c.Database == "" {
			return ":memory:"
		}
		return c.Database
	default:
		return ""
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
	Mode     string `mapstructure:"mode"` // "standalone" 外部 Redis, "memory" 内存模式
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	Expire int64  `mapstructure:"expire"` // 秒
}

// ExpireDuration 令牌有效期
func (c *JWTConfig) ExpireDuration() time.Duration {
	if c.Expire <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Expire) * time.Second
}

// SecurityConfig 网关安全配置
type SecurityConfig struct {
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Whitelist   []string `mapstructure:"whitelist"`   // 白名单路径模式，按声明顺序匹配
	AdminPaths  []string `mapstructure:"adminPaths"`  // 需要管理员角色的路径模式
	AdminRoles  []string `mapstructure:"adminRoles"`  // 管理员角色编码（忽略大小写）
	TokenHeader string   `mapstructure:"tokenHeader"` // Token所在Header，默认 Authorization
	TokenPrefix string   `mapstructure:"tokenPrefix"` // Token前缀，默认 "Bearer "
	TokenParam  string   `mapstructure:"tokenParam"`  // Token查询参数名，默认 token
}

// OAuth2Config OAuth2配置
type OAuth2Config struct {
	AccessTokenTTL  int64              `mapstructure:"accessTokenTtl"`  // 默认访问令牌有效期（秒）
	RefreshTokenTTL int64              `mapstructure:"refreshTokenTtl"` // 默认刷新令牌有效期（秒）
	SweepInterval   int64              `mapstructure:"sweepInterval"`   // 过期令牌清理间隔（秒）
	Clients         []OAuth2ClientSeed `mapstructure:"clients"`         // 启动时注册的客户端
	Client          OAuth2CallerConfig `mapstructure:"client"`          // 本服务作为OAuth2客户端的配置
}

// SweepDuration 过期令牌清理间隔
func (c *OAuth2Config) SweepDuration() time.Duration {
	if c.SweepInterval <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepInterval) * time.Second
}

// OAuth2ClientSeed 启动时注册的OAuth2客户端
type OAuth2ClientSeed struct {
	ClientID        string   `mapstructure:"clientId"`
	Secret          string   `mapstructure:"secret"` // 明文，注册时散列存储
	GrantTypes      []string `mapstructure:"grantTypes"`
	Scopes          []string `mapstructure:"scopes"`
	AccessTokenTTL  int64    `mapstructure:"accessTokenTtl"`
	RefreshTokenTTL int64    `mapstructure:"refreshTokenTtl"`
	RequireConsent  bool     `mapstructure:"requireConsent"`
}

// OAuth2CallerConfig 服务间调用方配置
type OAuth2CallerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ClientID       string `mapstructure:"clientId"`
	ClientSecret   string `mapstructure:"clientSecret"`
	Scope          string `mapstructure:"scope"`          // 空格分隔
	TokenURL       string `mapstructure:"tokenUrl"`       // 令牌端点地址
	IntrospectURL  string `mapstructure:"introspectUrl"`  // 自省端点地址
	CoreURL        string `mapstructure:"coreUrl"`        // 核心服务基础地址
	CacheMargin    int64  `mapstructure:"cacheMargin"`    // 缓存提前刷新余量（秒）
	RequestTimeout int64  `mapstructure:"requestTimeout"` // 令牌请求超时（秒）
	InternalPrefix string `mapstructure:"internalPrefix"` // 内部API路径前缀
}

// CacheMarginDuration 缓存提前刷新余量
func (c *OAuth2CallerConfig) CacheMarginDuration() time.Duration {
	if c.CacheMargin <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CacheMargin) * time.Second
}

// RequestTimeoutDuration 令牌请求超时
func (c *OAuth2CallerConfig) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		config = &Config{}
		err = loadConfig(configPath)
	})
	return err
}

// loadConfig 加载配置文件
func loadConfig(configPath string) error {
	v := viper.New()

	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 读取环境变量
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}

	if env != "" && env != "default" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			// 环境配置文件不存在不报错
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to merge env config: %w", err)
			}
		}
	}

	// 解析配置到结构体
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 处理环境变量占位符
	resolveEnvVars(config)

	return nil
}

// setDefaults 设置认证相关默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("security.auth.enabled", true)
	v.SetDefault("security.auth.tokenHeader", "Authorization")
	v.SetDefault("security.auth.tokenPrefix", "Bearer ")
	v.SetDefault("security.auth.tokenParam", "token")
	v.SetDefault("security.auth.adminRoles", []string{"admin", "system"})
	v.SetDefault("oauth2.accessTokenTtl", 3600)
	v.SetDefault("oauth2.refreshTokenTtl", 604800)
	v.SetDefault("oauth2.sweepInterval", 300)
	v.SetDefault("oauth2.client.cacheMargin", 60)
	v.SetDefault("oauth2.client.requestTimeout", 5)
	v.SetDefault("oauth2.client.internalPrefix", "/api/v1/internal")
}

// resolveEnvVars 解析环境变量占位符
func resolveEnvVars(cfg *Config) {
	cfg.Database.Host = resolveEnvVar(cfg.Database.Host)
	cfg.Database.Username = resolveEnvVar(cfg.Database.Username)
	cfg.Database.Password = resolveEnvVar(cfg.Database.Password)
	cfg.Database.Database = resolveEnvVar(cfg.Database.Database)
	cfg.Redis.Host = resolveEnvVar(cfg.Redis.Host)
	cfg.Redis.Password = resolveEnvVar(cfg.Redis.Password)
	cfg.JWT.Secret = resolveEnvVar(cfg.JWT.Secret)
	cfg.OAuth2.Client.ClientSecret = resolveEnvVar(cfg.OAuth2.Client.ClientSecret)
	for i := range cfg.OAuth2.Clients {
		cfg.OAuth2.Clients[i].Secret = resolveEnvVar(cfg.OAuth2.Clients[i].Secret)
	}
}

// resolveEnvVar 解析单个环境变量
func resolveEnvVar(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envKey := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return value
}

// Get 获取配置实例
func Get() *Config {
	if config == nil {
		panic("config not initialized, call Init first")
	}
	return config
}

// GetJWT 获取JWT配置
func GetJWT() *JWTConfig {
	return &Get().JWT
}

// GetSecurity 获取安全配置
func GetSecurity() *SecurityConfig {
	return &Get().Security
}

// GetOAuth2 获取OAuth2配置
func GetOAuth2() *OAuth2Config {
	return &Get().OAuth2
}

// GetLog 获取日志配置
func GetLog() *LogConfig {
	return &Get().Log
}

// IsDev 是否为开发环境
func IsDev() bool {
	return Get().App.Env == "dev" || Get().App.Env == "development"
}

// IsProd 是否为生产环境
func IsProd() bool {
	return Get().App.Env == "prod" || Get().App.Env == "production"
}
