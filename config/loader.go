// =============================================================================
// 📦 tripo-tools 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("tripo.yaml").
//	    Load()
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "TRIPO"

// Loader 配置加载器
type Loader struct {
	configPath string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath 指定 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load 按 默认值 → YAML → 环境变量 的顺序加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.configPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖。API Key 沿用客户端自身的 TRIPO_API_KEY 约定，
// 其余变量使用 TRIPO_ 前缀 + 配置路径。
func applyEnv(cfg *Config) {
	setString(&cfg.Client.APIKey, "API_KEY")
	setString(&cfg.Client.BaseURL, "BASE_URL")
	setDuration(&cfg.Client.Timeout, "TIMEOUT")
	setDuration(&cfg.Client.PollInterval, "POLL_INTERVAL")
	setDuration(&cfg.Client.WallTimeout, "WALL_TIMEOUT")
	setFloat(&cfg.Client.RequestsPerSecond, "REQUESTS_PER_SECOND")
	setString(&cfg.Client.OutputFormat, "OUTPUT_FORMAT")

	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.MaxConcurrentJobs, "SERVER_MAX_CONCURRENT_JOBS")
	setString(&cfg.Server.WorkDir, "SERVER_WORK_DIR")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func lookup(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + "_" + key)
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
