package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"drawio_gif/pkg/frame"
	"drawio_gif/pkg/pages"
	"drawio_gif/pkg/render"

	"github.com/klauspost/compress/zip"
)

const twoPages = `<mxfile><diagram name="Flow A" id="p0">a</diagram><diagram name="Flow B" id="p1">b</diagram></mxfile>`

type fakeCapturer struct {
	frame   frame.Frame
	failOn  int
	indexes []int
}

func (c *fakeCapturer) Capture(ctx context.Context, target render.Target, durationSeconds, fps int) ([]frame.Frame, error) {
	c.indexes = append(c.indexes, target.PageIndex)
	if target.PageIndex == c.failOn {
		return nil, fmt.Errorf("readiness: %w", render.ErrNotReady)
	}
	out := make([]frame.Frame, durationSeconds*fps)
	for i := range out {
		out[i] = c.frame
	}
	return out, nil
}

type fakeEncoder struct {
	fail  bool
	calls int
}

var errEncode = errors.New("encode boom")

func (e *fakeEncoder) Encode(frames []frame.Frame, fps int) ([]byte, error) {
	e.calls++
	if e.fail {
		return nil, errEncode
	}
	return []byte(fmt.Sprintf("gif#%d frames=%d fps=%d", e.calls, len(frames), fps)), nil
}

func (e *fakeEncoder) Extension() string   { return "gif" }
func (e *fakeEncoder) ContentType() string { return "image/gif" }

func newTestExporter(t *testing.T, failOn int, encFail bool) (*Exporter, *fakeCapturer, *fakeEncoder) {
	t.Helper()
	f, err := frame.Encode(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("frame.Encode() error = %v", err)
	}
	c := &fakeCapturer{frame: f, failOn: failOn}
	enc := &fakeEncoder{fail: encFail}
	e := New(c, enc, render.DefaultTargets())
	e.SetLogf(t.Logf)
	return e, c, enc
}

func diagramSource() Source {
	return Source{Name: "flows.drawio", Kind: pages.KindDiagram, Content: twoPages}
}

func TestExportAll(t *testing.T) {
	e, c, _ := newTestExporter(t, -1, false)

	data, list, err := e.ExportAll(context.Background(), diagramSource(), 1, 2)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("pages = %d, want 2", len(list))
	}
	if len(c.indexes) != 2 || c.indexes[0] != 0 || c.indexes[1] != 1 {
		t.Errorf("捕获顺序 = %v, want [0 1]", c.indexes)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	want := []string{"Flow_A-page0.gif", "Flow_B-page1.gif"}
	if len(zr.File) != len(want) {
		t.Fatalf("条目数 = %d, want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("条目 %d = %s, want %s", i, f.Name, want[i])
		}
	}
}

func TestExportAllAbortsOnPageFailure(t *testing.T) {
	e, c, enc := newTestExporter(t, 1, false)

	data, _, err := e.ExportAll(context.Background(), diagramSource(), 1, 1)
	if err == nil {
		t.Fatal("ExportAll() error = nil, want error")
	}
	if data != nil {
		t.Error("失败时不应返回部分归档")
	}

	var pe *PhaseError
	if !errors.As(err, &pe) {
		t.Fatalf("error 类型 = %T, want *PhaseError", err)
	}
	if pe.Phase != PhaseCapture || pe.PageIndex != 1 {
		t.Errorf("PhaseError = %+v", pe)
	}
	if !errors.Is(err, render.ErrNotReady) {
		t.Errorf("error 未包装原因: %v", err)
	}
	if len(c.indexes) != 2 || enc.calls != 1 {
		t.Errorf("captures=%v encodes=%d", c.indexes, enc.calls)
	}
}

func TestExportOneEncodeFailure(t *testing.T) {
	e, _, _ := newTestExporter(t, -1, true)

	_, err := e.ExportOne(context.Background(), diagramSource(), 0, 1, 1)
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseEncode {
		t.Fatalf("ExportOne() error = %v, want encode PhaseError", err)
	}
	if !errors.Is(err, errEncode) {
		t.Errorf("error 未包装原因: %v", err)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name        string
		params      Params
		wantErr     error
		wantType    string
		wantFile    string
		wantCapture int
	}{
		{"单页", Params{DurationSeconds: 2, FPS: 3, PageIndex: 1}, nil, "image/gif", "flows.gif", 1},
		{"全部页面", Params{DurationSeconds: 1, FPS: 1, ExportAll: true}, nil, "application/zip", "flows-all.zip", 2},
		{"时长过长", Params{DurationSeconds: 61, FPS: 10}, ErrInvalidInput, "", "", 0},
		{"帧率为零", Params{DurationSeconds: 5, FPS: 0}, ErrInvalidInput, "", "", 0},
		{"页码为负", Params{DurationSeconds: 5, FPS: 10, PageIndex: -1}, ErrInvalidInput, "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, c, _ := newTestExporter(t, -1, false)
			res, err := e.Convert(context.Background(), diagramSource(), tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Convert() error = %v, wantErr %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Convert() error = %v", err)
			} else {
				if res.ContentType != tt.wantType || res.Filename != tt.wantFile {
					t.Errorf("Convert() = %s %s, want %s %s", res.ContentType, res.Filename, tt.wantType, tt.wantFile)
				}
			}
			if len(c.indexes) != tt.wantCapture {
				t.Errorf("捕获次数 = %d, want %d", len(c.indexes), tt.wantCapture)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		source string
		ext    string
		want   string
	}{
		{"diagram.drawio", ".gif", "diagram.gif"},
		{"dir/anim.html", ".gif", "anim.gif"},
		{"flows.drawio", "-all.zip", "flows-all.zip"},
		{"archive.tar.xml", ".gif", "archive.tar.gif"},
		{"", ".gif", "output.gif"},
		{".drawio", ".gif", "output.gif"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.source, tt.ext); got != tt.want {
			t.Errorf("OutputName(%q, %q) = %q, want %q", tt.source, tt.ext, got, tt.want)
		}
	}
}

func TestListPagesMarkupSentinel(t *testing.T) {
	e, _, _ := newTestExporter(t, -1, false)
	got := e.ListPages(Source{Name: "a.html", Kind: pages.KindMarkup, Content: "<html></html>"})
	if len(got) != 1 || got[0] != pages.MarkupSentinel {
		t.Errorf("ListPages() = %+v", got)
	}
}
