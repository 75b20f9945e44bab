package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"drawio_gif/controllers"
	"drawio_gif/pkg/archive"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/pages"
	"drawio_gif/pkg/queue"
)

const diagram = `<mxfile><diagram name="Flow A" id="p0">a</diagram><diagram name="Flow B" id="p1">b</diagram></mxfile>`

type fakeConverter struct {
	err     error
	block   chan struct{}
	started chan struct{}
}

func (c *fakeConverter) Convert(ctx context.Context, src exporter.Source, p exporter.Params) (*exporter.Result, error) {
	if c.block != nil {
		close(c.started)
		<-c.block
	}
	if c.err != nil {
		return nil, c.err
	}
	if p.ExportAll {
		return &exporter.Result{Data: []byte("PK"), ContentType: archive.ContentType, Filename: exporter.OutputName(src.Name, "-all.zip")}, nil
	}
	return &exporter.Result{Data: []byte("GIF89a"), ContentType: "image/gif", Filename: exporter.OutputName(src.Name, ".gif")}, nil
}

func (c *fakeConverter) ListPages(src exporter.Source) []pages.Page {
	return pages.Discover(src.Kind, src.Content)
}

func newTestServer(conv Converter, jobs Jobs) http.Handler {
	logger := controllers.NewLoggerManagerTo(&bytes.Buffer{})
	return NewServer(conv, jobs, controllers.NewTaskManager(1), logger, Config{
		RequestTimeout: time.Minute,
		MaxUploadBytes: 1 << 20,
	}).Handler()
}

// newUpload 构造 multipart 上传请求
func newUpload(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		fw.Write([]byte(content))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		filename   string
		content    string
		fields     map[string]string
		convErr    error
		wantStatus int
		wantType   string
		wantFile   string
	}{
		{"单页 GIF", "/api/convert", "flow.drawio", diagram, map[string]string{"duration": "2", "fps": "5"}, nil, 200, "image/gif", "flow.gif"},
		{"全部页面 zip", "/api/convert", "flow.drawio", diagram, map[string]string{"exportAll": "true"}, nil, 200, "application/zip", "flow-all.zip"},
		{"HTML 转换", "/api/convert-html", "anim.html", "<html></html>", nil, nil, 200, "image/gif", "anim.gif"},
		{"类型与接口不符", "/api/convert", "anim.html", "<html></html>", nil, nil, 400, "", ""},
		{"不支持的扩展名", "/api/convert", "image.png", "x", nil, nil, 400, "", ""},
		{"帧率越界", "/api/convert", "flow.drawio", diagram, map[string]string{"fps": "31"}, nil, 400, "", ""},
		{"时长不是整数", "/api/convert", "flow.drawio", diagram, map[string]string{"duration": "1.5"}, nil, 400, "", ""},
		{"不是图表文件", "/api/convert", "flow.drawio", "hello", nil, nil, 400, "", ""},
		{"没有文件", "/api/convert", "", "", nil, nil, 400, "", ""},
		{"转换失败", "/api/convert", "flow.drawio", diagram, nil, errors.New("Rendering failed"), 500, "", ""},
		{"转换超时", "/api/convert", "flow.drawio", diagram, nil, context.DeadlineExceeded, 504, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeConverter{err: tt.convErr}, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, newUpload(t, tt.path, tt.filename, tt.content, tt.fields))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
					t.Errorf("错误响应 = %s", rec.Body.String())
				}
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %s, want %s", got, tt.wantType)
			}
			if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, tt.wantFile) {
				t.Errorf("Content-Disposition = %s, want %s", got, tt.wantFile)
			}
		})
	}
}

func TestConvertBusy(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{}), started: make(chan struct{})}
	h := newTestServer(conv, nil)

	first := newUpload(t, "/api/convert", "a.drawio", diagram, nil)
	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		done <- rec.Code
	}()
	<-conv.started

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newUpload(t, "/api/convert", "b.drawio", diagram, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	close(conv.block)
	if code := <-done; code != http.StatusOK {
		t.Errorf("第一个请求 status = %d, want 200", code)
	}
}

func TestListPages(t *testing.T) {
	h := newTestServer(&fakeConverter{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newUpload(t, "/api/list-pages", "flow.drawio", diagram, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Pages []pages.Page `json:"pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(body.Pages) != 2 || body.Pages[1].Name != "Flow B" || body.Pages[1].Index != 1 {
		t.Errorf("pages = %+v", body.Pages)
	}
}

type fakeJobs struct {
	jobs map[string]*queue.Job
}

func (f *fakeJobs) Submit(ctx context.Context, filename string, content []byte, p exporter.Params) (*queue.Job, error) {
	job := &queue.Job{ID: "job-1", Source: filename, Params: p, Status: queue.StatusPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*queue.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) Status(ctx context.Context, id string) (string, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (f *fakeJobs) Result(ctx context.Context, id string) (*queue.Job, []byte, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != queue.StatusCompleted {
		return job, nil, queue.ErrJobNotFinished
	}
	return job, []byte("GIF89a"), nil
}

func (f *fakeJobs) Summary(ctx context.Context) (queue.Summary, error) {
	return queue.Summary{
		Pending: 3,
		Busy:    1,
		Workers: []controllers.Worker{{ID: "worker-0", Status: controllers.WorkerBusy}},
	}, nil
}

func TestJobs(t *testing.T) {
	jobs := &fakeJobs{jobs: make(map[string]*queue.Job)}
	h := newTestServer(&fakeConverter{}, jobs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newUpload(t, "/api/jobs", "flow.drawio", diagram, map[string]string{"fps": "12"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if jobs.jobs["job-1"].Params.FPS != 12 {
		t.Errorf("参数未传递: %+v", jobs.jobs["job-1"].Params)
	}

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/api/jobs/job-1"); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := get("/api/jobs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
	if rec := get("/api/jobs/job-1/result"); rec.Code != http.StatusConflict {
		t.Errorf("pending result status = %d, want 409", rec.Code)
	}

	jobs.jobs["job-1"].Status = queue.StatusCompleted
	jobs.jobs["job-1"].ContentType = "image/gif"
	jobs.jobs["job-1"].Filename = "flow.gif"
	rec = get("/api/jobs/job-1/result")
	if rec.Code != http.StatusOK || rec.Body.String() != "GIF89a" {
		t.Errorf("result = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get("/api/jobs/job-1/status"); !strings.Contains(rec.Body.String(), queue.StatusCompleted) {
		t.Errorf("status body = %s", rec.Body.String())
	}
	rec = get("/healthz")
	var health struct {
		Queue queue.Summary `json:"queue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("解析 healthz 失败: %v", err)
	}
	if health.Queue.Pending != 3 || health.Queue.Busy != 1 || len(health.Queue.Workers) != 1 {
		t.Errorf("healthz queue = %+v", health.Queue)
	}
}
