package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"
)

// ChromeLauncher 基于 chromedp 的渲染面工厂
// 每个渲染面是一个独立的浏览器进程，同时打开的数量受 PoolSize 限制
type ChromeLauncher struct {
	config  Config
	pool    *semaphore.Weighted
	metrics *Metrics
	logf    func(string, ...interface{})
}

// Metrics 浏览器会话指标
type Metrics struct {
	Opened         int64         // 成功打开的会话数
	Failed         int64         // 启动失败的会话数
	Closed         int64         // 已关闭的会话数
	AverageSession time.Duration // 平均会话时长
	mu             sync.Mutex
}

// NewChromeLauncher 创建渲染面工厂
func NewChromeLauncher(config Config) *ChromeLauncher {
	if config.PoolSize <= 0 {
		config.PoolSize = 1
	}
	return &ChromeLauncher{
		config:  config,
		pool:    semaphore.NewWeighted(int64(config.PoolSize)),
		metrics: &Metrics{},
		logf:    log.Printf,
	}
}

// SetLogf 设置浏览器日志输出
func (l *ChromeLauncher) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		l.logf = logf
	}
}

// Open 启动一个浏览器会话
// 浏览器进程绑定在 ctx 上，ctx 取消或超时时进程被强制结束
func (l *ChromeLauncher) Open(ctx context.Context) (Surface, error) {
	if err := l.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("等待浏览器槽位失败: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if l.config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logf))

	// 空任务启动浏览器
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		l.pool.Release(1)
		l.metrics.mu.Lock()
		l.metrics.Failed++
		l.metrics.mu.Unlock()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	l.metrics.mu.Lock()
	l.metrics.Opened++
	l.metrics.mu.Unlock()

	return &chromeSurface{
		ctx:     tabCtx,
		config:  l.config,
		opened:  time.Now(),
		cancel:  func() { tabCancel(); allocCancel() },
		release: l.release,
	}, nil
}

// release 归还槽位并记录会话时长
func (l *ChromeLauncher) release(d time.Duration) {
	l.pool.Release(1)

	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	l.metrics.Closed++
	l.metrics.AverageSession += (d - l.metrics.AverageSession) / time.Duration(l.metrics.Closed)
}

// GetMetrics 获取会话指标快照
func (l *ChromeLauncher) GetMetrics() Metrics {
	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	return Metrics{
		Opened:         l.metrics.Opened,
		Failed:         l.metrics.Failed,
		Closed:         l.metrics.Closed,
		AverageSession: l.metrics.AverageSession,
	}
}

// chromeSurface 单个浏览器会话
type chromeSurface struct {
	ctx     context.Context
	config  Config
	target  Target
	opened  time.Time
	cancel  func()
	release func(time.Duration)

	once   sync.Once
	closed bool
	mu     sync.Mutex
}

// run 在浏览器上下文中执行任务，同时受调用方 ctx 和 timeout 约束
func (s *chromeSurface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSurface) Load(ctx context.Context, target Target) error {
	s.target = target

	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(target.Viewport.Width), int64(target.Viewport.Height)),
	}
	switch {
	case target.URL != "":
		actions = append(actions, chromedp.Navigate(target.URL))
	case target.HTML != "":
		actions = append(actions,
			chromedp.Navigate("about:blank"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				tree, err := page.GetFrameTree().Do(ctx)
				if err != nil {
					return err
				}
				return page.SetDocumentContent(tree.Frame.ID, target.HTML).Do(ctx)
			}),
		)
	default:
		return errors.New("渲染目标为空")
	}

	if err := s.run(ctx, s.config.NavigateTimeout, actions...); err != nil {
		return fmt.Errorf("Rendering failed: 加载页面失败: %w", err)
	}
	return nil
}

func (s *chromeSurface) AwaitReady(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.config.ReadyTimeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("Rendering timeout: %w: %s", ErrNotReady, selector)
		}
		return fmt.Errorf("%w: %s: %v", ErrNotReady, selector, err)
	}

	actions := []chromedp.Action{chromedp.Sleep(s.config.SettleDelay)}
	if s.target.ClickSelector != "" {
		actions = append(actions,
			chromedp.Evaluate(clickScript(s.target.ClickSelector), nil),
			chromedp.Sleep(s.target.ClickPause),
		)
	}
	return s.run(ctx, 0, actions...)
}

// clickScript 点击元素，元素不存在时什么也不做
func clickScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (el) el.dispatchEvent(new MouseEvent('click', {bubbles: true}));
		return true;
	})()`, sel)
}

// boundsResult 页面脚本返回的区域
type boundsResult struct {
	Found bool `json:"found"`
	Rect
}

func (s *chromeSurface) Bounds(ctx context.Context, selector string) (Rect, error) {
	sel, _ := json.Marshal(selector)
	script := fmt.Sprintf(`(() => {
		const sel = %s;
		if (!sel) return {found: true, x: 0, y: 0, width: window.innerWidth, height: window.innerHeight};
		const el = document.querySelector(sel);
		if (!el) return {found: false};
		const r = el.getBoundingClientRect();
		return {found: true, x: r.x + window.scrollX, y: r.y + window.scrollY, width: r.width, height: r.height};
	})()`, sel)

	var res boundsResult
	if err := s.run(ctx, s.config.ReadyTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return Rect{}, fmt.Errorf("查询内容区域失败: %w", err)
	}
	if !res.Found || res.Empty() {
		return Rect{}, fmt.Errorf("%w: %s", ErrEmptyBounds, selector)
	}
	return res.Rect, nil
}

func (s *chromeSurface) Sample(ctx context.Context, clip Rect) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.config.NavigateTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  1,
			}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("截图失败: %w", err)
	}
	return buf, nil
}

// Close 关闭浏览器并归还槽位
func (s *chromeSurface) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.release(time.Since(s.opened))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	})
	return err
}
