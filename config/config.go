// =============================================================================
// 📦 tripo-tools 配置结构
// =============================================================================
// 客户端、Web 前端与日志的完整配置。
// 配置优先级: 默认值 → YAML 文件 → 环境变量（TRIPO_ 前缀）
// =============================================================================
package config

import (
	"fmt"
	"time"
)

// Config 是 tripo-tools 的完整配置结构
type Config struct {
	// Client 生成客户端配置
	Client ClientConfig `yaml:"client"`

	// Server Web 前端服务器配置
	Server ServerConfig `yaml:"server"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// ClientConfig 生成客户端配置
type ClientConfig struct {
	// API Key（留空则读取 TRIPO_API_KEY 环境变量）
	APIKey string `yaml:"api_key"`
	// 服务端点
	BaseURL string `yaml:"base_url"`
	// 单次 HTTP 请求超时
	Timeout time.Duration `yaml:"timeout"`
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval"`
	// 整个任务的墙钟超时
	WallTimeout time.Duration `yaml:"wall_timeout"`
	// 客户端限速（每秒请求数，0 表示不限速）
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// 默认输出格式: glb, fbx, obj, stl, usdz
	OutputFormat string `yaml:"output_format"`
}

// ServerConfig Web 前端服务器配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时（需要覆盖长下载，设置得比读取宽松）
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// 同时运行的生成任务上限
	MaxConcurrentJobs int64 `yaml:"max_concurrent_jobs"`
	// 生成产物的落盘目录
	WorkDir string `yaml:"work_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:      "https://api.tripo3d.ai/v2/openapi",
			Timeout:      30 * time.Second,
			PollInterval: 3 * time.Second,
			WallTimeout:  10 * time.Minute,
			OutputFormat: "glb",
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxConcurrentJobs: 4,
			WorkDir:           "./models",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be positive, got %v", c.Client.PollInterval)
	}
	if c.Client.WallTimeout <= 0 {
		return fmt.Errorf("client.wall_timeout must be positive, got %v", c.Client.WallTimeout)
	}
	if !validFormat(c.Client.OutputFormat) {
		return fmt.Errorf("client.output_format %q not in {glb, fbx, obj, stl, usdz}", c.Client.OutputFormat)
	}
	if c.Server.MaxConcurrentJobs < 1 {
		return fmt.Errorf("server.max_concurrent_jobs must be at least 1, got %d", c.Server.MaxConcurrentJobs)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q not in {debug, info, warn, error}", c.Log.Level)
	}
	return nil
}

func validFormat(f string) bool {
	switch f {
	case "glb", "fbx", "obj", "stl", "usdz":
		return true
	}
	return false
}
