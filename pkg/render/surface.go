// Package render 封装渲染面：加载页面、等待就绪、查询内容区域、截取图像
package render

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrNotReady 等待就绪信号超时
	ErrNotReady = errors.New("内容未就绪")
	// ErrEmptyBounds 内容区域不存在或面积为零
	ErrEmptyBounds = errors.New("内容区域为空")
	// ErrClosed 渲染面已关闭
	ErrClosed = errors.New("渲染面已关闭")
)

// Surface 一次捕获尝试独占的渲染面
type Surface interface {
	// Load 加载目标页面
	Load(ctx context.Context, target Target) error
	// AwaitReady 等待就绪信号元素出现
	AwaitReady(ctx context.Context, selector string) error
	// Bounds 查询元素的内容区域，selector 为空时返回整个视口
	Bounds(ctx context.Context, selector string) (Rect, error)
	// Sample 截取指定区域，返回 PNG 数据
	Sample(ctx context.Context, clip Rect) ([]byte, error)
	// Close 释放渲染面，可重复调用
	Close() error
}

// Launcher 渲染面工厂
type Launcher interface {
	Open(ctx context.Context) (Surface, error)
}

// Rect 页面坐标系中的矩形
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty 面积为零或尺寸非法
func (r Rect) Empty() bool {
	return !(r.Width > 0 && r.Height > 0)
}

// Expand 向四周外扩 pad 像素，原点不小于 0
func (r Rect) Expand(pad float64) Rect {
	x := math.Max(0, r.X-pad)
	y := math.Max(0, r.Y-pad)
	return Rect{
		X:      x,
		Y:      y,
		Width:  r.X + r.Width + pad - x,
		Height: r.Y + r.Height + pad - y,
	}
}

// Inset 向内收缩 n 像素
func (r Rect) Inset(n float64) Rect {
	return Rect{
		X:      r.X + n,
		Y:      r.Y + n,
		Width:  r.Width - 2*n,
		Height: r.Height - 2*n,
	}
}

// Round 取整到像素
func (r Rect) Round() Rect {
	return Rect{
		X:      math.Floor(r.X),
		Y:      math.Floor(r.Y),
		Width:  math.Ceil(r.Width),
		Height: math.Ceil(r.Height),
	}
}
