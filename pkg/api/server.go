// Package api 提供转换服务的 HTTP 接口
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"drawio_gif/controllers"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/pages"
	"drawio_gif/pkg/queue"

	"github.com/google/uuid"
)

// Converter 同步转换能力
type Converter interface {
	Convert(ctx context.Context, src exporter.Source, p exporter.Params) (*exporter.Result, error)
	ListPages(src exporter.Source) []pages.Page
}

// Jobs 异步任务能力
type Jobs interface {
	Submit(ctx context.Context, filename string, content []byte, p exporter.Params) (*queue.Job, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	Status(ctx context.Context, id string) (string, error)
	Result(ctx context.Context, id string) (*queue.Job, []byte, error)
	Summary(ctx context.Context) (queue.Summary, error)
}

// Server HTTP 服务
type Server struct {
	converter Converter
	jobs      Jobs
	tasks     *controllers.TaskManager
	logger    *controllers.LoggerManager
	config    Config
}

// NewServer 创建 HTTP 服务，jobs 为 nil 时不提供异步任务接口
func NewServer(converter Converter, jobs Jobs, tasks *controllers.TaskManager, logger *controllers.LoggerManager, config Config) *Server {
	if logger == nil {
		logger = controllers.NewLoggerManager()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	return &Server{
		converter: converter,
		jobs:      jobs,
		tasks:     tasks,
		logger:    logger,
		config:    config,
	}
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/convert", s.handleConvert(pages.KindDiagram))
	mux.HandleFunc("POST /api/convert-html", s.handleConvert(pages.KindMarkup))
	mux.HandleFunc("POST /api/list-pages", s.handleListPages)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.jobs != nil {
		mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
		mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
		mux.HandleFunc("GET /api/jobs/{id}/status", s.handleJobStatus)
		mux.HandleFunc("GET /api/jobs/{id}/result", s.handleJobResult)
	}
	return s.logRequests(mux)
}

// statusRecorder 记录响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Logf("INFO", "%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// upload 上传的源文件和参数
type upload struct {
	filename string
	content  []byte
	kind     pages.Kind
	params   exporter.Params
}

// readUpload 解析 multipart 表单
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: 解析表单失败: %v", exporter.ErrInvalidInput, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: No file uploaded", exporter.ErrInvalidInput)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}

	kind, err := pages.KindFromFilename(header.Filename)
	if err != nil {
		return nil, err
	}

	params, err := parseParams(r)
	if err != nil {
		return nil, err
	}
	return &upload{filename: header.Filename, content: content, kind: kind, params: params}, nil
}

// parseParams 读取 duration/fps/pageIndex/exportAll，缺省时使用默认值
func parseParams(r *http.Request) (exporter.Params, error) {
	p := exporter.DefaultParams()
	ints := []struct {
		field string
		dst   *int
	}{
		{"duration", &p.DurationSeconds},
		{"fps", &p.FPS},
		{"pageIndex", &p.PageIndex},
	}
	for _, f := range ints {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: %s must be an integer", exporter.ErrInvalidInput, f.field)
		}
		*f.dst = n
	}
	if v := strings.TrimSpace(r.FormValue("exportAll")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("%w: exportAll must be a boolean", exporter.ErrInvalidInput)
		}
		p.ExportAll = b
	}
	return p, p.Validate()
}

func (s *Server) handleConvert(kind pages.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, err := s.readUpload(w, r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if up.kind != kind {
			s.writeError(w, fmt.Errorf("%w: Invalid file type. Expected %s",
				pages.ErrUnsupportedKind, strings.Join(kind.Extensions(), ", ")))
			return
		}
		if kind == pages.KindDiagram && !pages.LooksLikeDiagram(string(up.content)) {
			s.writeError(w, fmt.Errorf("%w: Invalid draw.io file", exporter.ErrInvalidInput))
			return
		}

		src := exporter.Source{Name: up.filename, Kind: up.kind, Content: string(up.content)}
		var result *exporter.Result
		err = s.tasks.Run(r.Context(), uuid.New().String(), s.config.RequestTimeout, func(ctx context.Context) error {
			var err error
			result, err = s.converter.Convert(ctx, src, up.params)
			return err
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeFile(w, result.ContentType, result.Filename, result.Data)
	}
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	list := s.converter.ListPages(exporter.Source{Name: up.filename, Kind: up.kind, Content: string(up.content)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"pages": list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"active": s.tasks.ActiveTasks(),
	}
	if s.jobs != nil {
		if sum, err := s.jobs.Summary(r.Context()); err != nil {
			body["queue_error"] = err.Error()
		} else {
			body["queue"] = sum
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.jobs.Submit(r.Context(), up.filename, up.content, up.params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job, data, err := s.jobs.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeFile(w, job.ContentType, job.Filename, data)
}

// statusOf 错误到 HTTP 状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, exporter.ErrInvalidInput), errors.Is(err, pages.ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrJobNotFinished):
		return http.StatusConflict
	case errors.Is(err, controllers.ErrTooManyTasks):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	message := "Conversion failed"
	switch status {
	case http.StatusBadRequest:
		message = "Invalid input"
	case http.StatusNotFound:
		message = "Job not found"
	case http.StatusConflict:
		message = "Job not finished"
	case http.StatusServiceUnavailable:
		message = "Server busy"
	case http.StatusGatewayTimeout:
		message = "Conversion timed out"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Logf("ERROR", "%s: %v", message, err)
	}
	writeJSON(w, status, map[string]string{"error": message, "details": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
