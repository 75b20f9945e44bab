// Package exporter 编排页面发现、帧捕获、编码和打包
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"drawio_gif/pkg/archive"
	"drawio_gif/pkg/frame"
	"drawio_gif/pkg/pages"
	"drawio_gif/pkg/render"
)

// Phase 失败阶段
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseCapture   Phase = "capture"
	PhaseEncode    Phase = "encode"
	PhaseArchive   Phase = "archive"
)

// PhaseError 标明失败阶段和页面的错误
type PhaseError struct {
	Phase     Phase
	PageIndex int
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed (page %d): %v", e.Phase, e.PageIndex, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Capturer 帧捕获能力
type Capturer interface {
	Capture(ctx context.Context, target render.Target, durationSeconds, fps int) ([]frame.Frame, error)
}

// Encoder 动画编码能力
type Encoder interface {
	Encode(frames []frame.Frame, fps int) ([]byte, error)
	Extension() string
	ContentType() string
}

// Source 待转换的源文档
type Source struct {
	Name    string     // 原始文件名
	Kind    pages.Kind // 文档类型
	Content string     // 文档内容
}

// Result 转换结果
type Result struct {
	Data        []byte       // 输出字节
	ContentType string       // MIME 类型
	Filename    string       // 建议的文件名
	Pages       []pages.Page // 导出的页面
}

// Exporter 转换编排器
// 单次调用内所有页面顺序处理
type Exporter struct {
	capturer Capturer
	encoder  Encoder
	targets  render.Targets
	logf     func(string, ...interface{})
}

// New 创建编排器
func New(capturer Capturer, encoder Encoder, targets render.Targets) *Exporter {
	return &Exporter{
		capturer: capturer,
		encoder:  encoder,
		targets:  targets,
		logf:     log.Printf,
	}
}

// SetLogf 设置日志输出
func (e *Exporter) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		e.logf = logf
	}
}

// ListPages 发现源文档的页面
func (e *Exporter) ListPages(src Source) []pages.Page {
	return pages.Discover(src.Kind, src.Content)
}

// Convert 按参数导出单页或全部页面
func (e *Exporter) Convert(ctx context.Context, src Source, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.ExportAll {
		data, list, err := e.ExportAll(ctx, src, p.DurationSeconds, p.FPS)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:        data,
			ContentType: archive.ContentType,
			Filename:    OutputName(src.Name, "-all.zip"),
			Pages:       list,
		}, nil
	}

	data, err := e.ExportOne(ctx, src, p.PageIndex, p.DurationSeconds, p.FPS)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:        data,
		ContentType: e.encoder.ContentType(),
		Filename:    OutputName(src.Name, "."+e.encoder.Extension()),
		Pages:       []pages.Page{e.pageAt(src, p.PageIndex)},
	}, nil
}

// pageAt 查找页面描述，越界时只保留序号
func (e *Exporter) pageAt(src Source, index int) pages.Page {
	list := pages.Discover(src.Kind, src.Content)
	if index < len(list) {
		return list[index]
	}
	return pages.Page{Index: index}
}

// ExportOne 捕获并编码一个页面
func (e *Exporter) ExportOne(ctx context.Context, src Source, pageIndex, durationSeconds, fps int) ([]byte, error) {
	start := time.Now()

	target, err := e.targets.For(src.Kind, src.Content, pageIndex)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseCapture, PageIndex: pageIndex, Err: err}
	}

	frames, err := e.capturer.Capture(ctx, target, durationSeconds, fps)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseCapture, PageIndex: pageIndex, Err: err}
	}

	data, err := e.encoder.Encode(frames, fps)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseEncode, PageIndex: pageIndex, Err: err}
	}

	e.logf("页面 %d 导出完成: %d 帧, %d 字节, 耗时 %v", pageIndex, len(frames), len(data), time.Since(start))
	return data, nil
}

// ExportAll 依次导出所有页面并打包
// 任一页面失败则整体失败，不返回部分归档
func (e *Exporter) ExportAll(ctx context.Context, src Source, durationSeconds, fps int) ([]byte, []pages.Page, error) {
	list := pages.Discover(src.Kind, src.Content)
	if len(list) == 0 {
		return nil, nil, &PhaseError{Phase: PhaseDiscovery, Err: errors.New("no pages")}
	}
	e.logf("发现 %d 个页面", len(list))

	bundle := archive.NewBundle()
	for _, pg := range list {
		data, err := e.ExportOne(ctx, src, pg.Index, durationSeconds, fps)
		if err != nil {
			return nil, nil, err
		}
		name := archive.EntryName(pg.Name, pg.Index, e.encoder.Extension())
		if err := bundle.Add(name, data); err != nil {
			return nil, nil, &PhaseError{Phase: PhaseArchive, PageIndex: pg.Index, Err: err}
		}
	}

	data, err := bundle.Finalize()
	if err != nil {
		return nil, nil, &PhaseError{Phase: PhaseArchive, PageIndex: len(list) - 1, Err: err}
	}
	return data, list, nil
}
