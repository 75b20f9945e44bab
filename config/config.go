package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"drawio_gif/pkg/capture"
	"drawio_gif/pkg/encoder"
	"drawio_gif/pkg/render"

	"gopkg.in/yaml.v2"
)

// DefaultPath 默认配置文件路径
const DefaultPath = "config/config.yaml"

// Config 全局配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Render  RenderConfig  `yaml:"render"`
	Capture CaptureConfig `yaml:"capture"`
	Encoder EncoderConfig `yaml:"encoder"`
	Redis   RedisConfig   `yaml:"redis"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Queue   QueueConfig   `yaml:"queue"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr           string        `yaml:"addr"`            // 监听地址
	MaxConversions int           `yaml:"max_conversions"` // 同时进行的转换数量上限
	RequestTimeout time.Duration `yaml:"request_timeout"` // 单次转换超时
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// RenderConfig 浏览器渲染配置
type RenderConfig struct {
	ChromePath      string          `yaml:"chrome_path"`
	Headless        bool            `yaml:"headless"`
	NoSandbox       bool            `yaml:"no_sandbox"`
	PoolSize        int             `yaml:"pool_size"`
	NavigateTimeout time.Duration   `yaml:"navigate_timeout"`
	ReadyTimeout    time.Duration   `yaml:"ready_timeout"`
	SettleDelay     time.Duration   `yaml:"settle_delay"`
	ViewerURL       string          `yaml:"viewer_url"`
	ReadySelector   string          `yaml:"ready_selector"`
	Padding         float64         `yaml:"padding"`
	Inset           float64         `yaml:"inset"`
	ClickSelector   string          `yaml:"click_selector"`
	ClickPause      time.Duration   `yaml:"click_pause"`
	DiagramViewport render.Viewport `yaml:"diagram_viewport"`
	MarkupViewport  render.Viewport `yaml:"markup_viewport"`
}

// CaptureConfig 捕获重试配置
type CaptureConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// EncoderConfig 编码配置
type EncoderConfig struct {
	Quality      int `yaml:"quality"`
	PaletteSize  int `yaml:"palette_size"`
	SampleFrames int `yaml:"sample_frames"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MongoConfig MongoDB 连接配置
type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// QueueConfig 异步任务队列配置
type QueueConfig struct {
	Enabled         bool          `yaml:"enabled"`
	WorkerCount     int           `yaml:"worker_count"`
	KeyPrefix       string        `yaml:"key_prefix"`
	Collection      string        `yaml:"collection"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	ResultTTL       time.Duration `yaml:"result_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
	File  string `yaml:"file"`  // 为空时输出到标准输出
}

var GlobalConfig Config

// Default 返回默认配置
func Default() Config {
	rc := render.DefaultConfig()
	ts := render.DefaultTargets()
	cc := capture.DefaultConfig()
	ec := encoder.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:           ":3000",
			MaxConversions: 2,
			RequestTimeout: 5 * time.Minute,
			MaxUploadBytes: 10 << 20,
		},
		Render: RenderConfig{
			Headless:        rc.Headless,
			NoSandbox:       rc.NoSandbox,
			PoolSize:        rc.PoolSize,
			NavigateTimeout: rc.NavigateTimeout,
			ReadyTimeout:    rc.ReadyTimeout,
			SettleDelay:     rc.SettleDelay,
			ViewerURL:       ts.Diagram.ViewerURL,
			ReadySelector:   ts.Diagram.ReadySelector,
			Padding:         ts.Diagram.Padding,
			Inset:           ts.Markup.Inset,
			ClickSelector:   ts.Markup.ClickSelector,
			ClickPause:      ts.Markup.ClickPause,
			DiagramViewport: ts.Diagram.Viewport,
			MarkupViewport:  ts.Markup.Viewport,
		},
		Capture: CaptureConfig{
			MaxAttempts: cc.MaxAttempts,
			BaseBackoff: cc.BaseBackoff,
			MaxBackoff:  cc.MaxBackoff,
		},
		Encoder: EncoderConfig{
			Quality:      ec.Quality,
			PaletteSize:  ec.PaletteSize,
			SampleFrames: ec.SampleFrames,
		},
		Redis: RedisConfig{
			Host:    "127.0.0.1",
			Port:    6379,
			Timeout: 5 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://127.0.0.1:27017",
			Database: "drawio_gif",
			Timeout:  10 * time.Second,
		},
		Queue: QueueConfig{
			WorkerCount:     1,
			KeyPrefix:       "drawio_gif:",
			Collection:      "jobs",
			JobTimeout:      10 * time.Minute,
			PollInterval:    time.Second,
			MetricsInterval: time.Minute,
			ResultTTL:       24 * time.Hour,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// LoadConfig 读取配置文件到 GlobalConfig
// path 为空时读取默认路径，默认路径不存在时使用默认配置
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// Load 读取并校验配置文件，未设置的字段保留默认值
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c Config) Validate() error {
	switch {
	case c.Server.MaxConversions <= 0:
		return errors.New("配置错误: server.max_conversions 必须大于 0")
	case c.Server.RequestTimeout <= 0:
		return errors.New("配置错误: server.request_timeout 必须大于 0")
	case c.Render.PoolSize <= 0:
		return errors.New("配置错误: render.pool_size 必须大于 0")
	case c.Render.NavigateTimeout <= 0 || c.Render.ReadyTimeout <= 0:
		return errors.New("配置错误: render 超时必须大于 0")
	case c.Render.DiagramViewport.Width <= 0 || c.Render.DiagramViewport.Height <= 0,
		c.Render.MarkupViewport.Width <= 0 || c.Render.MarkupViewport.Height <= 0:
		return errors.New("配置错误: 视口尺寸必须大于 0")
	case c.Capture.MaxAttempts <= 0:
		return errors.New("配置错误: capture.max_attempts 必须大于 0")
	case c.Capture.BaseBackoff < 0 || c.Capture.MaxBackoff < c.Capture.BaseBackoff:
		return errors.New("配置错误: capture 退避时间无效")
	case c.Encoder.PaletteSize < 2 || c.Encoder.PaletteSize > 256:
		return errors.New("配置错误: encoder.palette_size 必须在 2-256 之间")
	case c.Queue.Enabled && c.Queue.WorkerCount <= 0:
		return errors.New("配置错误: queue.worker_count 必须大于 0")
	}
	return nil
}

// RenderOptions 转换为渲染包配置
func (c Config) RenderOptions() (render.Config, render.Targets) {
	r := c.Render
	rc := render.Config{
		ExecPath:        r.ChromePath,
		Headless:        r.Headless,
		NoSandbox:       r.NoSandbox,
		PoolSize:        r.PoolSize,
		NavigateTimeout: r.NavigateTimeout,
		ReadyTimeout:    r.ReadyTimeout,
		SettleDelay:     r.SettleDelay,
	}
	ts := render.DefaultTargets()
	ts.Diagram.ViewerURL = r.ViewerURL
	ts.Diagram.ReadySelector = r.ReadySelector
	ts.Diagram.Padding = r.Padding
	ts.Diagram.Viewport = r.DiagramViewport
	ts.Markup.Inset = r.Inset
	ts.Markup.ClickSelector = r.ClickSelector
	ts.Markup.ClickPause = r.ClickPause
	ts.Markup.Viewport = r.MarkupViewport
	return rc, ts
}

// CaptureOptions 转换为捕获配置
func (c Config) CaptureOptions() capture.Config {
	return capture.Config{
		MaxAttempts: c.Capture.MaxAttempts,
		BaseBackoff: c.Capture.BaseBackoff,
		MaxBackoff:  c.Capture.MaxBackoff,
	}
}

// EncoderOptions 转换为编码配置
func (c Config) EncoderOptions() encoder.Config {
	return encoder.Config{
		Quality:      c.Encoder.Quality,
		PaletteSize:  c.Encoder.PaletteSize,
		SampleFrames: c.Encoder.SampleFrames,
	}
}
