// =============================================================================
// Tripo Tools 主入口
// =============================================================================
// Tripo 3D 生成 API 的命令行与 Web 前端
//
// 使用方法:
//
//	tripo generate --image cat.png --output cat.glb   # 图生 3D
//	tripo generate --prompt "a red dragon"            # 文生 3D
//	tripo generate --multiview f.png,b.png,l.png      # 多视图生 3D
//	tripo balance                                     # 查询余额
//	tripo serve                                       # 启动 Web 服务
//	tripo version                                     # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mberenty7/tripo-tools/config"
	"github.com/mberenty7/tripo-tools/internal/metrics"
	"github.com/mberenty7/tripo-tools/tripo"
	"github.com/mberenty7/tripo-tools/web"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "balance":
		runBalance(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖼️ generate 命令
// =============================================================================

// pathList 接受重复出现或逗号分隔的路径参数
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*p = append(*p, part)
		}
	}
	return nil
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)

	var multiview pathList
	image := fs.String("image", "", "Input image for image-to-3D")
	prompt := fs.String("prompt", "", "Text prompt for text-to-3D")
	fs.Var(&multiview, "multiview", "Multiview images (repeat or comma-separate; front,back,left,right)")
	output := fs.String("output", "", "Output path (default: model.<format>)")
	format := fs.String("format", "", "Output format: glb, fbx, obj, stl, usdz")
	apiKey := fs.String("api-key", "", "Tripo API key (default: TRIPO_API_KEY env)")
	timeout := fs.Duration("timeout", 0, "Wall-clock timeout for the whole job")
	quiet := fs.Bool("quiet", false, "Suppress the progress bar")
	configPath := fs.String("config", "", "Path to config file")

	modelVersion := fs.String("model-version", "", "Model version (empty: service default)")
	noTexture := fs.Bool("no-texture", false, "Disable texture generation")
	noPBR := fs.Bool("no-pbr", false, "Disable PBR material generation")
	textureQuality := fs.String("texture-quality", "", "Texture quality: standard, detailed")
	textureAlignment := fs.String("texture-alignment", "", "Texture alignment: original_image, geometry")
	textureSeed := fs.Int64("texture-seed", -1, "Texture seed (-1: unset)")
	faceLimit := fs.Int("face-limit", 0, "Face count limit (0: unset)")
	seed := fs.Int64("seed", -1, "Geometry seed (-1: unset)")
	quad := fs.Bool("quad", false, "Request quad topology")
	autoSize := fs.Bool("auto-size", false, "Scale the model to real-world size")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	modes := 0
	for _, set := range []bool{*image != "", *prompt != "", len(multiview) > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "Exactly one of --image, --prompt, --multiview is required")
		os.Exit(2)
	}

	outFormat := cfg.Client.OutputFormat
	if *format != "" {
		outFormat = *format
	}
	if !tripo.ValidFormat(outFormat) {
		fmt.Fprintf(os.Stderr, "Unsupported format %q (supported: %s)\n",
			outFormat, strings.Join(tripo.OutputFormats, ", "))
		os.Exit(2)
	}

	dest := *output
	if dest == "" {
		dest = "model." + outFormat
	}
	dest = forceExt(dest, outFormat)

	opts := tripo.DefaultOptions()
	opts.ModelVersion = *modelVersion
	opts.Texture = !*noTexture
	opts.PBR = !*noPBR
	if *textureQuality != "" {
		opts.TextureQuality = *textureQuality
	}
	opts.TextureAlignment = *textureAlignment
	if *textureSeed >= 0 {
		opts.TextureSeed = textureSeed
	}
	if *faceLimit > 0 {
		opts.FaceLimit = faceLimit
	}
	if *seed >= 0 {
		opts.Seed = seed
	}
	opts.Quad = *quad
	opts.AutoSize = *autoSize

	clientCfg := clientConfig(cfg, *apiKey)
	if *timeout > 0 {
		clientCfg.WallTimeout = *timeout
	}

	logger := cliLogger(*quiet)
	defer logger.Sync()

	client, err := tripo.NewClient(clientCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bar := newProgressBar(os.Stderr, *quiet)

	var path string
	switch {
	case *image != "":
		path, err = client.ImageTo3D(ctx, *image, dest, opts, bar)
	case *prompt != "":
		path, err = client.TextTo3D(ctx, *prompt, dest, opts, bar)
	default:
		path, err = client.MultiviewTo3D(ctx, multiview, dest, opts, bar)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(path)
}

// forceExt 将输出路径的扩展名统一改为所选格式
func forceExt(path, format string) string {
	ext := "." + format
	if old := filepath.Ext(path); old != "" {
		return strings.TrimSuffix(path, old) + ext
	}
	return path + ext
}

// =============================================================================
// 💰 balance 命令
// =============================================================================

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	apiKey := fs.String("api-key", "", "Tripo API key (default: TRIPO_API_KEY env)")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := cliLogger(true)
	defer logger.Sync()

	client, err := tripo.NewClient(clientConfig(cfg, *apiKey), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := client.Balance(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Balance: %.2f\n", data.Balance)
	fmt.Printf("Frozen:  %.2f\n", data.Frozen)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting tripo-tools",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	if err := os.MkdirAll(cfg.Server.WorkDir, 0o755); err != nil {
		logger.Fatal("failed to create work dir", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("tripo", registry, logger)

	manager := web.NewManager(cfg.Client, cfg.Server.WorkDir, cfg.Server.MaxConcurrentJobs, collector, logger)

	handler := web.NewHandler(manager, balanceFunc(cfg.Client, logger), logger)

	server := web.NewServer(cfg.Server, handler, collector, registry, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}

	logger.Info("tripo-tools stopped")
}

// balanceFunc 为余额查询构建短生命周期客户端
func balanceFunc(cfg config.ClientConfig, logger *zap.Logger) func(r *http.Request) (*tripo.BalanceData, error) {
	return func(r *http.Request) (*tripo.BalanceData, error) {
		client, err := tripo.NewClient(tripo.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client.Balance(r.Context())
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("tripo %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`tripo - Tripo 3D generation client

Usage:
  tripo <command> [options]

Commands:
  generate  Generate a 3D model from an image, prompt, or multiview set
  balance   Show the account balance
  serve     Start the web front-end
  version   Show version information
  help      Show this help message

Options for 'generate':
  --image <path>            Single input image (image-to-3D)
  --prompt <text>           Text prompt (text-to-3D)
  --multiview <p1,p2,...>   2..N view images (multiview-to-3D)
  --output <path>           Output path (extension follows --format)
  --format <fmt>            glb, fbx, obj, stl, usdz (default: glb)
  --api-key <key>           API key (default: TRIPO_API_KEY env)
  --timeout <dur>           Wall-clock timeout, e.g. 10m
  --quiet                   Suppress the progress bar
  --model-version <v>       Model version
  --no-texture              Disable texture generation
  --no-pbr                  Disable PBR materials
  --texture-quality <q>     standard or detailed
  --texture-alignment <a>   original_image or geometry
  --texture-seed <n>        Texture seed
  --face-limit <n>          Face count limit
  --seed <n>                Geometry seed
  --quad                    Quad topology
  --auto-size               Real-world scale

Examples:
  tripo generate --image cat.png --output cat.glb
  tripo generate --prompt "a red dragon" --format obj
  tripo generate --multiview front.png,back.png,left.png,right.png
  tripo balance
  tripo serve --addr :8080
  tripo version`)
}

// =============================================================================
// 🔧 配置与日志
// =============================================================================

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// clientConfig 把文件配置折算成客户端配置，命令行 key 优先
func clientConfig(cfg *config.Config, apiKey string) tripo.Config {
	c := tripo.Config{
		APIKey:            cfg.Client.APIKey,
		BaseURL:           cfg.Client.BaseURL,
		Timeout:           cfg.Client.Timeout,
		PollInterval:      cfg.Client.PollInterval,
		WallTimeout:       cfg.Client.WallTimeout,
		RequestsPerSecond: cfg.Client.RequestsPerSecond,
	}
	if apiKey != "" {
		c.APIKey = apiKey
	}
	return c
}

// cliLogger 生成命令用的安静 logger：进度条就是用户界面，
// 日志只在出错时出现。
func cliLogger(quiet bool) *zap.Logger {
	level := zapcore.WarnLevel
	if quiet {
		level = zapcore.ErrorLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
