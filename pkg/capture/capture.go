// Package capture 驱动渲染面按固定节奏截取帧序列
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"drawio_gif/pkg/frame"
	"drawio_gif/pkg/render"
)

var (
	// ErrNoFrames 帧数为零
	ErrNoFrames = errors.New("no frames produced")
	// ErrFrameMismatch 同一次捕获中帧尺寸不一致
	ErrFrameMismatch = errors.New("帧尺寸不一致")
)

// MaxFrames 单次捕获的帧数上限 (60s x 30fps)
const MaxFrames = 60 * 30

// Options 捕获器选项
type Options struct {
	Launcher render.Launcher                            // 渲染面工厂
	Config   Config                                     // 重试配置
	Sleeper  func(context.Context, time.Duration) error // 等待函数，测试时替换
	Logf     func(string, ...interface{})               // 日志输出
}

// Capturer 帧捕获器
// 每次尝试独占一个渲染面，尝试结束后立即释放
type Capturer struct {
	launcher render.Launcher
	config   Config
	sleeper  func(context.Context, time.Duration) error
	logf     func(string, ...interface{})
	metrics  *Metrics
}

// Metrics 捕获指标
type Metrics struct {
	Captures     int64         // 捕获调用次数
	Attempts     int64         // 尝试次数
	Retries      int64         // 重试次数
	Failures     int64         // 最终失败次数
	Frames       int64         // 累计帧数
	AverageTime  time.Duration // 成功捕获的平均耗时
	mu           sync.Mutex
	successCount int64
}

// New 创建捕获器
func New(opts Options) (*Capturer, error) {
	if opts.Launcher == nil {
		return nil, errors.New("capture: launcher is required")
	}
	cfg := opts.Config
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Capturer{
		launcher: opts.Launcher,
		config:   cfg,
		sleeper:  sleeper,
		logf:     logf,
		metrics:  &Metrics{},
	}, nil
}

// TotalFrames 计算帧数
func TotalFrames(durationSeconds, fps int) int {
	if durationSeconds <= 0 || fps <= 0 {
		return 0
	}
	return durationSeconds * fps
}

// FrameInterval 帧间隔 1000/fps 毫秒
func FrameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

// Capture 捕获 durationSeconds*fps 帧
// 单次尝试失败时释放渲染面并按指数退避重试，超出次数后返回最后一次错误
func (c *Capturer) Capture(ctx context.Context, target render.Target, durationSeconds, fps int) ([]frame.Frame, error) {
	total := TotalFrames(durationSeconds, fps)
	if total == 0 {
		return nil, ErrNoFrames
	}
	if total > MaxFrames {
		return nil, fmt.Errorf("帧数 %d 超过上限 %d", total, MaxFrames)
	}

	c.metrics.mu.Lock()
	c.metrics.Captures++
	c.metrics.mu.Unlock()

	start := time.Now()
	interval := FrameInterval(fps)

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		c.metrics.mu.Lock()
		c.metrics.Attempts++
		c.metrics.mu.Unlock()

		frames, err := c.attempt(ctx, target, total, interval)
		if err == nil {
			c.recordSuccess(len(frames), time.Since(start))
			return frames, nil
		}
		lastErr = err

		// 调用方取消或超时，不再重试
		if ctx.Err() != nil {
			c.recordFailure()
			return nil, fmt.Errorf("捕获页面 %d 被中断: %w", target.PageIndex, ctx.Err())
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		delay := c.config.Backoff(attempt)
		c.logf("捕获页面 %d 第 %d 次尝试失败: %v，%v 后重试", target.PageIndex, attempt, err, delay)
		c.metrics.mu.Lock()
		c.metrics.Retries++
		c.metrics.mu.Unlock()

		if err := c.sleeper(ctx, delay); err != nil {
			c.recordFailure()
			return nil, fmt.Errorf("捕获页面 %d 被中断: %w", target.PageIndex, err)
		}
	}

	c.recordFailure()
	return nil, fmt.Errorf("捕获页面 %d 失败，已尝试 %d 次: %w", target.PageIndex, c.config.MaxAttempts, lastErr)
}

// attempt 一次完整的捕获尝试
// 渲染面在所有返回路径上都会关闭
func (c *Capturer) attempt(ctx context.Context, target render.Target, total int, interval time.Duration) ([]frame.Frame, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	surface, err := c.launcher.Open(attemptCtx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := surface.Close(); err != nil {
			c.logf("关闭渲染面失败: %v", err)
		}
	}()

	if err := surface.Load(attemptCtx, target); err != nil {
		return nil, err
	}
	if err := surface.AwaitReady(attemptCtx, target.ReadySelector); err != nil {
		return nil, err
	}

	bounds, err := surface.Bounds(attemptCtx, target.BoundsSelector)
	if err != nil {
		return nil, err
	}
	if bounds.Empty() {
		return nil, render.ErrEmptyBounds
	}
	clip := target.Clip(bounds)
	if clip.Empty() {
		return nil, fmt.Errorf("%w: 裁剪区域 %+v", render.ErrEmptyBounds, clip)
	}

	frames := make([]frame.Frame, 0, total)
	for i := 0; i < total; i++ {
		if i > 0 {
			if err := c.sleeper(attemptCtx, interval); err != nil {
				return nil, err
			}
		}

		data, err := surface.Sample(attemptCtx, clip)
		if err != nil {
			return nil, fmt.Errorf("第 %d 帧截图失败: %w", i, err)
		}
		f, err := frame.New(data)
		if err != nil {
			return nil, fmt.Errorf("第 %d 帧: %w", i, err)
		}
		if i > 0 && !f.SameSize(frames[0]) {
			return nil, fmt.Errorf("%w: 第 %d 帧 %dx%d，第 0 帧 %dx%d",
				ErrFrameMismatch, i, f.Width, f.Height, frames[0].Width, frames[0].Height)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (c *Capturer) recordSuccess(frames int, d time.Duration) {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	c.metrics.Frames += int64(frames)
	c.metrics.successCount++
	c.metrics.AverageTime += (d - c.metrics.AverageTime) / time.Duration(c.metrics.successCount)
}

func (c *Capturer) recordFailure() {
	c.metrics.mu.Lock()
	c.metrics.Failures++
	c.metrics.mu.Unlock()
}

// GetMetrics 获取指标快照
func (c *Capturer) GetMetrics() Metrics {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	return Metrics{
		Captures:    c.metrics.Captures,
		Attempts:    c.metrics.Attempts,
		Retries:     c.metrics.Retries,
		Failures:    c.metrics.Failures,
		Frames:      c.metrics.Frames,
		AverageTime: c.metrics.AverageTime,
	}
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
