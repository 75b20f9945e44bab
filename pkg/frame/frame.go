// Package frame 定义捕获得到的单帧图像
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Frame 一帧 PNG 截图
// 创建后不再修改，只在一次捕获内部持有
type Frame struct {
	PNG    []byte // PNG 编码的图像数据
	Width  int    // 宽度（像素）
	Height int    // 高度（像素）
}

// New 根据 PNG 数据创建帧，只解析头部获取尺寸
func New(data []byte) (Frame, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("解析截图失败: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Frame{}, fmt.Errorf("截图尺寸无效: %dx%d", cfg.Width, cfg.Height)
	}
	return Frame{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode 解码完整图像
func (f Frame) Decode() (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(f.PNG))
	if err != nil {
		return nil, fmt.Errorf("解码截图失败: %w", err)
	}
	return img, nil
}

// SameSize 判断两帧尺寸是否一致
func (f Frame) SameSize(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// Encode 将图像编码为帧，主要用于测试和本地生成
func Encode(img image.Image) (Frame, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Frame{}, fmt.Errorf("编码截图失败: %w", err)
	}
	b := img.Bounds()
	return Frame{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}
