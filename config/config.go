// =============================================================================
// 📦 DeepResearch 配置
// =============================================================================
// 统一配置结构与默认值。各子系统的配置类型定义在各自包内,
// 这里组合成完整配置并提供校验。
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/database"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/telemetry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/journal"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/supervisor"
)

// Config 是完整的服务配置
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Persistence 远端持久化配置(redis / mongo / memory)
	Persistence persistence.Config `yaml:"persistence"`

	// Store 状态存储配置(缓存 TTL、门控阈值、锁)
	Store store.Config `yaml:"store"`

	// Supervisor 监督循环配置
	Supervisor supervisor.Config `yaml:"supervisor"`

	// Database 审计日志数据库配置
	Database database.Config `yaml:"database"`

	// Journal 审计日志写入配置
	Journal journal.Config `yaml:"journal"`

	// Telemetry 遥测配置
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口(/healthz、/metrics)
	HTTPPort int `yaml:"http_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Log:         DefaultLogConfig(),
		Persistence: persistence.DefaultConfig(),
		Store:       store.DefaultConfig(),
		Supervisor:  supervisor.DefaultConfig(),
		Database:    database.DefaultConfig(),
		Journal:     journal.DefaultConfig(),
		Telemetry:   telemetry.DefaultConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Store.GateThreshold < 0 || c.Store.GateThreshold > 1 {
		errs = append(errs, "gate_threshold must be between 0 and 1")
	}
	if c.Supervisor.MaxIterations <= 0 {
		errs = append(errs, "supervisor max_iterations must be positive")
	}
	if c.Supervisor.QualityTarget <= 0 || c.Supervisor.QualityTarget > 10 {
		errs = append(errs, "supervisor quality_target must be in (0, 10]")
	}
	switch c.Persistence.Type {
	case persistence.BackendMemory, persistence.BackendRedis, persistence.BackendMongo, "":
	default:
		errs = append(errs, fmt.Sprintf("unknown persistence backend: %s", c.Persistence.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
