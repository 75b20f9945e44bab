package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drawio_gif/controllers"
	"drawio_gif/internal/pipeline"
	"drawio_gif/pkg/encoder"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/frame"
	"drawio_gif/pkg/pages"
	"drawio_gif/pkg/render"
)

const diagram = `<mxfile><diagram name="Flow A" id="a">x</diagram><diagram name="Flow B" id="b">y</diagram></mxfile>`

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		invalid  bool
		duration int
		fps      int
		page     int
		all      bool
		list     bool
	}{
		{"默认参数", []string{"a.drawio", "a.gif"}, false, false, 5, 10, 0, false, false},
		{"指定时长和帧率", []string{"a.drawio", "a.gif", "10", "15"}, false, false, 10, 15, 0, false, false},
		{"只指定时长", []string{"a.drawio", "a.gif", "3"}, false, false, 3, 10, 0, false, false},
		{"导出全部", []string{"-all", "a.drawio", "a.zip"}, false, false, 5, 10, 0, true, false},
		{"指定页面", []string{"-page", "2", "a.drawio", "a.gif"}, false, false, 5, 10, 2, false, false},
		{"列出页面", []string{"-list", "a.drawio"}, false, false, 5, 10, 0, false, true},
		{"缺少输出", []string{"a.drawio"}, true, false, 0, 0, 0, false, false},
		{"参数过多", []string{"a", "b", "1", "2", "3"}, true, false, 0, 0, 0, false, false},
		{"时长越界", []string{"a.drawio", "a.gif", "61"}, true, true, 0, 0, 0, false, false},
		{"帧率越界", []string{"a.drawio", "a.gif", "5", "0"}, true, true, 0, 0, 0, false, false},
		{"不是整数", []string{"a.drawio", "a.gif", "five"}, true, true, 0, 0, 0, false, false},
		{"负页码", []string{"-page", "-1", "a.drawio", "a.gif"}, true, true, 0, 0, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseArgs(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if tt.invalid && !errors.Is(err, exporter.ErrInvalidInput) {
					t.Errorf("error = %v, want ErrInvalidInput", err)
				}
				return
			}
			p := opts.params
			if p.DurationSeconds != tt.duration || p.FPS != tt.fps || p.PageIndex != tt.page || p.ExportAll != tt.all || opts.list != tt.list {
				t.Errorf("options = %+v, params = %+v", opts, p)
			}
		})
	}
}

// stillCapturer 返回固定帧
type stillCapturer struct {
	frame frame.Frame
	calls int
}

func (c *stillCapturer) Capture(ctx context.Context, target render.Target, durationSeconds, fps int) ([]frame.Frame, error) {
	c.calls++
	frames := make([]frame.Frame, durationSeconds*fps)
	for i := range frames {
		frames[i] = c.frame
	}
	return frames, nil
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入输入文件失败: %v", err)
	}
	return path
}

func newJob(t *testing.T, input string, p exporter.Params) (*ConvertJob, *stillCapturer) {
	t.Helper()
	f, err := frame.Encode(image.NewRGBA(image.Rect(0, 0, 8, 6)))
	if err != nil {
		t.Fatalf("frame.Encode() error = %v", err)
	}
	c := &stillCapturer{frame: f}
	exp := exporter.New(c, encoder.New(encoder.DefaultConfig()), render.DefaultTargets())
	exp.SetLogf(t.Logf)

	job := &ConvertJob{
		BaseJob: pipeline.BaseJob{Name: "convert", Timeout: time.Minute},
		opts: &options{
			input:  input,
			output: filepath.Join(t.TempDir(), "out"),
			params: p,
		},
		exporter: exp,
		logger:   controllers.NewLoggerManagerTo(io.Discard),
	}
	return job, c
}

func TestConvertJob(t *testing.T) {
	input := writeInput(t, "flow.drawio", diagram)
	job, c := newJob(t, input, exporter.Params{DurationSeconds: 1, FPS: 2})

	if err := pipeline.Run(context.Background(), job, job.Timeout); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if c.calls != 1 {
		t.Errorf("capture calls = %d, want 1", c.calls)
	}

	data, err := os.ReadFile(job.opts.output)
	if err != nil {
		t.Fatalf("读取输出失败: %v", err)
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gif.DecodeAll() error = %v", err)
	}
	if len(g.Image) != 2 {
		t.Errorf("frames = %d, want 2", len(g.Image))
	}
}

func TestConvertJobExportAll(t *testing.T) {
	input := writeInput(t, "flow.drawio", diagram)
	job, c := newJob(t, input, exporter.Params{DurationSeconds: 1, FPS: 1, ExportAll: true})

	if err := pipeline.Run(context.Background(), job, job.Timeout); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if c.calls != 2 {
		t.Errorf("capture calls = %d, want 2", c.calls)
	}
	if job.result.Filename != "flow-all.zip" || len(job.result.Pages) != 2 {
		t.Errorf("result = %s, pages = %d", job.result.Filename, len(job.result.Pages))
	}
}

func TestConvertJobInit(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"不支持的扩展名", "image.png", "x", pages.ErrUnsupportedKind},
		{"不是图表文件", "flow.drawio", "hello", exporter.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, c := newJob(t, writeInput(t, tt.file, tt.content), exporter.DefaultParams())
			err := pipeline.Run(context.Background(), job, job.Timeout)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if c.calls != 0 {
				t.Errorf("capture calls = %d, want 0", c.calls)
			}
		})
	}

	t.Run("文件不存在", func(t *testing.T) {
		job, _ := newJob(t, filepath.Join(t.TempDir(), "missing.drawio"), exporter.DefaultParams())
		if err := pipeline.Run(context.Background(), job, job.Timeout); err == nil {
			t.Error("Run() error = nil")
		}
	})
}

func TestListPages(t *testing.T) {
	var out bytes.Buffer
	if err := listPages(&out, writeInput(t, "flow.drawio", diagram)); err != nil {
		t.Fatalf("listPages() error = %v", err)
	}
	var list []pages.Page
	if err := json.Unmarshal(out.Bytes(), &list); err != nil {
		t.Fatalf("解析输出失败: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Flow A" || list[1].ID != "b" {
		t.Errorf("pages = %+v", list)
	}

	if err := listPages(&out, "a.txt"); !errors.Is(err, pages.ErrUnsupportedKind) {
		t.Errorf("error = %v, want ErrUnsupportedKind", err)
	}
	if !strings.Contains(out.String(), "Flow B") {
		t.Errorf("output = %s", out.String())
	}
}
