package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"drawio_gif/controllers"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/pages"

	"github.com/google/uuid"
)

// 任务状态
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("任务不存在")
	// ErrJobNotFinished 任务尚未完成
	ErrJobNotFinished = errors.New("任务尚未完成")

	errRequeued = errors.New("任务已重新入队")
)

// Job 异步转换任务
type Job struct {
	ID          string          `json:"id" bson:"_id"`                                        // 唯一标识
	Source      string          `json:"source" bson:"source"`                                 // 源文件名
	Kind        pages.Kind      `json:"kind" bson:"kind"`                                     // 源文档类型
	Params      exporter.Params `json:"params" bson:"params"`                                 // 转换参数
	Status      string          `json:"status" bson:"status"`                                 // 处理状态：pending/processing/completed/failed
	SourceBlob  string          `json:"-" bson:"source_blob"`                                 // 源文件 GridFS ID
	ResultBlob  string          `json:"-" bson:"result_blob,omitempty"`                       // 结果 GridFS ID
	ContentType string          `json:"content_type,omitempty" bson:"content_type,omitempty"` // 结果 MIME 类型
	Filename    string          `json:"filename,omitempty" bson:"filename,omitempty"`         // 结果文件名
	Pages       []pages.Page    `json:"pages,omitempty" bson:"pages,omitempty"`               // 导出的页面
	Error       string          `json:"error,omitempty" bson:"error,omitempty"`               // 错误信息
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" bson:"updated_at"`
}

// Converter 执行转换
type Converter interface {
	Convert(ctx context.Context, src exporter.Source, p exporter.Params) (*exporter.Result, error)
}

// QueueController 队列控制器
// Redis 缓冲待处理任务 ID，MongoDB 保存任务记录和文件
type QueueController struct {
	buffer    Buffer                     // 待处理任务缓冲区
	store     Store                      // 持久化存储
	converter Converter                  // 转换器
	workers   *controllers.WorkerManager // 工作协程状态
	config    Config                     // 队列配置
	logf      func(string, ...interface{})
	ctx       context.Context    // 上下文
	cancel    context.CancelFunc // 取消函数
	wg        sync.WaitGroup
	metrics   *QueueMetrics // 队列监控指标
}

// QueueMetrics 队列监控指标
type QueueMetrics struct {
	TotalItems     int64         // 提交的任务数
	ProcessedItems int64         // 成功的任务数
	FailedItems    int64         // 失败的任务数
	AverageTime    time.Duration // 平均处理时间
	mu             sync.Mutex    // 指标更新锁
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	TotalItems     int64         `json:"total_items" bson:"total_items"`
	ProcessedItems int64         `json:"processed_items" bson:"processed_items"`
	FailedItems    int64         `json:"failed_items" bson:"failed_items"`
	AverageTime    time.Duration `json:"average_time" bson:"average_time"`
	RecordedAt     time.Time     `json:"recorded_at" bson:"recorded_at"`
}

// NewQueueController 创建新的队列控制器，调用 Start 后开始处理
func NewQueueController(buffer Buffer, store Store, converter Converter, workers *controllers.WorkerManager, config Config) *QueueController {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if workers == nil {
		workers = controllers.NewWorkerManager()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &QueueController{
		buffer:    buffer,
		store:     store,
		converter: converter,
		workers:   workers,
		config:    config,
		logf:      log.Printf,
		ctx:       ctx,
		cancel:    cancel,
		metrics:   &QueueMetrics{},
	}
}

// SetLogf 设置日志输出
func (qc *QueueController) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		qc.logf = logf
	}
}

// Start 启动工作协程和指标收集
func (qc *QueueController) Start() {
	for i := 0; i < qc.config.WorkerCount; i++ {
		id := fmt.Sprintf("worker-%d", i)
		qc.workers.SetStatus(id, controllers.WorkerIdle, "")
		qc.wg.Add(1)
		go qc.worker(id)
	}
	if qc.config.MetricsInterval > 0 {
		qc.wg.Add(1)
		go qc.startMetricsCollector()
	}
}

// Submit 提交一个转换任务
func (qc *QueueController) Submit(ctx context.Context, filename string, content []byte, params exporter.Params) (*Job, error) {
	kind, err := pages.KindFromFilename(filename)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	blobID, err := qc.store.PutBlob(ctx, filename, content)
	if err != nil {
		return nil, fmt.Errorf("保存源文件失败: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:         generateID(),
		Source:     filename,
		Kind:       kind,
		Params:     params,
		Status:     StatusPending,
		SourceBlob: blobID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := qc.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("保存任务失败: %w", err)
	}
	qc.cacheStatus(ctx, job)

	if err := qc.buffer.Push(ctx, job.ID); err != nil {
		job.Status = StatusFailed
		job.Error = "入队失败: " + err.Error()
		job.UpdatedAt = time.Now()
		qc.saveJob(job)
		return nil, fmt.Errorf("保存到Redis失败: %w", err)
	}

	qc.metrics.mu.Lock()
	qc.metrics.TotalItems++
	qc.metrics.mu.Unlock()
	return job, nil
}

// Get 获取任务记录
func (qc *QueueController) Get(ctx context.Context, id string) (*Job, error) {
	return qc.store.GetJob(ctx, id)
}

// Status 获取任务状态，优先读取缓存
func (qc *QueueController) Status(ctx context.Context, id string) (string, error) {
	if status, err := qc.buffer.Status(ctx, id); err == nil {
		return status, nil
	}
	job, err := qc.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Result 获取已完成任务的结果
func (qc *QueueController) Result(ctx context.Context, id string) (*Job, []byte, error) {
	job, err := qc.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch job.Status {
	case StatusCompleted:
	case StatusFailed:
		return job, nil, fmt.Errorf("任务失败: %s", job.Error)
	default:
		return job, nil, ErrJobNotFinished
	}
	data, err := qc.store.GetBlob(ctx, job.ResultBlob)
	if err != nil {
		return job, nil, fmt.Errorf("读取结果失败: %w", err)
	}
	return job, data, nil
}

// Summary 队列概况
type Summary struct {
	Pending int64                `json:"pending"` // 等待处理的任务数
	Busy    int                  `json:"busy"`    // 正在处理任务的工作协程数
	Workers []controllers.Worker `json:"workers"`
}

// Summary 返回待处理任务数和工作协程状态
func (qc *QueueController) Summary(ctx context.Context) (Summary, error) {
	pending, err := qc.buffer.Pending(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("读取队列长度失败: %w", err)
	}
	return Summary{
		Pending: pending,
		Busy:    qc.workers.CountByStatus(controllers.WorkerBusy),
		Workers: qc.workers.ListWorkers(),
	}, nil
}

// worker 工作协程
func (qc *QueueController) worker(id string) {
	defer qc.wg.Done()
	defer qc.workers.SetStatus(id, controllers.WorkerOffline, "")

	for {
		select {
		case <-qc.ctx.Done():
			return
		default:
		}

		// 从Redis获取待处理项，取出后的任务总会被处理或放回
		jobID, err := qc.buffer.Pop(context.WithoutCancel(qc.ctx))
		if err != nil {
			if !errors.Is(err, ErrEmpty) && qc.ctx.Err() == nil {
				qc.logf("读取队列失败: %v", err)
			}
			qc.wait(qc.config.PollInterval)
			continue
		}

		qc.workers.SetStatus(id, controllers.WorkerBusy, jobID)
		start := time.Now()
		err = qc.process(jobID)
		if err != nil {
			qc.logf("任务 %s 处理失败: %v", jobID, err)
		}
		qc.workers.SetStatus(id, controllers.WorkerIdle, "")
		if errors.Is(err, errRequeued) {
			qc.wait(qc.config.PollInterval)
			continue
		}
		qc.updateMetrics(time.Since(start))
	}
}

// wait 可被关闭打断的等待
func (qc *QueueController) wait(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-qc.ctx.Done():
	case <-timer.C:
	}
}

// process 处理一个任务，转换失败不重试
// 已开始的转换只受 JobTimeout 限制，关闭队列不会打断它
// 开始之前失败的任务重新入队
func (qc *QueueController) process(jobID string) error {
	base := context.WithoutCancel(qc.ctx)

	job, err := qc.store.GetJob(base, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fmt.Errorf("读取任务失败: %w", err)
		}
		qc.requeue(jobID)
		return fmt.Errorf("读取任务失败: %w: %w", errRequeued, err)
	}

	// 更新状态为处理中
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now()
	if err := qc.saveJob(job); err != nil {
		qc.requeue(jobID)
		return fmt.Errorf("%w: %w", errRequeued, err)
	}

	ctx := base
	if qc.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, qc.config.JobTimeout)
		defer cancel()
	}

	result, err := qc.convert(ctx, job)
	if err != nil {
		qc.handleFailure(job, err)
		return err
	}
	if err := qc.handleSuccess(ctx, job, result); err != nil {
		qc.handleFailure(job, err)
		return err
	}
	return nil
}

// requeue 把已取出但未能开始处理的任务放回队列
func (qc *QueueController) requeue(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := qc.buffer.Push(ctx, jobID); err != nil {
		qc.logf("任务 %s 重新入队失败: %v", jobID, err)
	}
}

func (qc *QueueController) convert(ctx context.Context, job *Job) (*exporter.Result, error) {
	content, err := qc.store.GetBlob(ctx, job.SourceBlob)
	if err != nil {
		return nil, fmt.Errorf("读取源文件失败: %w", err)
	}
	src := exporter.Source{Name: job.Source, Kind: job.Kind, Content: string(content)}
	return qc.converter.Convert(ctx, src, job.Params)
}

// handleFailure 处理失败情况
func (qc *QueueController) handleFailure(job *Job, err error) {
	job.Status = StatusFailed
	job.Error = err.Error()
	job.UpdatedAt = time.Now()
	qc.saveJob(job)

	qc.metrics.mu.Lock()
	qc.metrics.FailedItems++
	qc.metrics.mu.Unlock()
}

// handleSuccess 保存结果并标记完成
func (qc *QueueController) handleSuccess(ctx context.Context, job *Job, result *exporter.Result) error {
	blobID, err := qc.store.PutBlob(ctx, result.Filename, result.Data)
	if err != nil {
		return fmt.Errorf("保存结果失败: %w", err)
	}

	job.Status = StatusCompleted
	job.ResultBlob = blobID
	job.ContentType = result.ContentType
	job.Filename = result.Filename
	job.Pages = result.Pages
	job.Error = ""
	job.UpdatedAt = time.Now()
	if err := qc.saveJob(job); err != nil {
		return err
	}

	qc.metrics.mu.Lock()
	qc.metrics.ProcessedItems++
	qc.metrics.mu.Unlock()
	return nil
}

// saveJob 持久化任务并刷新状态缓存
// 使用独立上下文，任务超时后仍能写入最终状态
func (qc *QueueController) saveJob(job *Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := qc.store.SaveJob(ctx, job); err != nil {
		qc.logf("保存任务 %s 失败: %v", job.ID, err)
		return fmt.Errorf("保存任务失败: %w", err)
	}
	qc.cacheStatus(ctx, job)
	return nil
}

func (qc *QueueController) cacheStatus(ctx context.Context, job *Job) {
	if qc.config.StatusTTL <= 0 {
		return
	}
	if err := qc.buffer.SetStatus(ctx, job.ID, job.Status, qc.config.StatusTTL); err != nil {
		qc.logf("缓存任务 %s 状态失败: %v", job.ID, err)
	}
}

// startMetricsCollector 启动指标收集器
func (qc *QueueController) startMetricsCollector() {
	defer qc.wg.Done()
	ticker := time.NewTicker(qc.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-qc.ctx.Done():
			return
		case <-ticker.C:
			qc.collectMetrics()
		}
	}
}

// GetMetrics 获取当前队列指标
func (qc *QueueController) GetMetrics() MetricsSnapshot {
	qc.metrics.mu.Lock()
	defer qc.metrics.mu.Unlock()
	return MetricsSnapshot{
		TotalItems:     qc.metrics.TotalItems,
		ProcessedItems: qc.metrics.ProcessedItems,
		FailedItems:    qc.metrics.FailedItems,
		AverageTime:    qc.metrics.AverageTime,
		RecordedAt:     time.Now(),
	}
}

// Close 停止领取新任务，等待正在处理的任务结束后返回
func (qc *QueueController) Close() {
	qc.cancel()
	qc.wg.Wait()
	// 保存最终指标
	qc.persistMetrics()
}

func generateID() string {
	return uuid.New().String()
}

// updateMetrics 更新平均处理时间
func (qc *QueueController) updateMetrics(duration time.Duration) {
	qc.metrics.mu.Lock()
	defer qc.metrics.mu.Unlock()

	done := qc.metrics.ProcessedItems + qc.metrics.FailedItems
	if done <= 1 {
		qc.metrics.AverageTime = duration
		return
	}
	qc.metrics.AverageTime += (duration - qc.metrics.AverageTime) / time.Duration(done)
}

// collectMetrics 收集当前队列指标
func (qc *QueueController) collectMetrics() {
	stats := qc.GetMetrics()
	qc.logf("Queue Stats: %+v", stats)
	qc.persistMetrics()
}

// persistMetrics 持久化队列指标到MongoDB
func (qc *QueueController) persistMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := qc.store.SaveMetrics(ctx, qc.GetMetrics()); err != nil {
		qc.logf("保存队列指标失败: %v", err)
	}
}
