package render

import "time"

// Config 浏览器渲染配置
type Config struct {
	ExecPath        string        // Chrome 可执行文件路径，为空时自动查找
	Headless        bool          // 是否无头模式
	NoSandbox       bool          // 是否关闭沙箱（容器内运行时需要）
	PoolSize        int           // 同时打开的浏览器会话上限
	NavigateTimeout time.Duration // 页面加载超时时间
	ReadyTimeout    time.Duration // 等待内容就绪的超时时间
	SettleDelay     time.Duration // 就绪后等待渲染稳定的时间
}

// DefaultConfig 返回默认渲染配置
func DefaultConfig() Config {
	return Config{
		Headless:        true,
		NoSandbox:       true,
		PoolSize:        2,
		NavigateTimeout: 30 * time.Second,
		ReadyTimeout:    15 * time.Second,
		SettleDelay:     500 * time.Millisecond,
	}
}

// Viewport 视口尺寸
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DiagramOptions 图表文档的渲染参数
type DiagramOptions struct {
	ViewerURL     string   // 图表查看器地址
	ReadySelector string   // 就绪信号元素
	Padding       float64  // 裁剪区域外扩像素
	Viewport      Viewport // 视口
}

// MarkupOptions HTML 文档的渲染参数
type MarkupOptions struct {
	ReadySelector string        // 就绪信号元素
	ClickSelector string        // 就绪后点击的元素，为空时不点击
	ClickPause    time.Duration // 点击后的等待时间
	Inset         float64       // 视口向内收缩像素
	Viewport      Viewport      // 视口
}

// Targets 两种文档的渲染参数
type Targets struct {
	Diagram DiagramOptions
	Markup  MarkupOptions
}

// DefaultTargets 返回默认渲染参数
func DefaultTargets() Targets {
	return Targets{
		Diagram: DiagramOptions{
			ViewerURL:     "https://viewer.diagrams.net/",
			ReadySelector: ".geDiagramContainer",
			Padding:       20,
			Viewport:      Viewport{Width: 1200, Height: 1000},
		},
		Markup: MarkupOptions{
			ReadySelector: "body",
			ClickSelector: "svg",
			ClickPause:    time.Second,
			Inset:         40,
			Viewport:      Viewport{Width: 1500, Height: 1200},
		},
	}
}
