// Package app 按配置组装转换服务的各个组件
package app

import (
	"context"
	"errors"
	"fmt"

	"drawio_gif/config"
	"drawio_gif/controllers"
	"drawio_gif/pkg/capture"
	"drawio_gif/pkg/encoder"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/mongodb"
	"drawio_gif/pkg/queue"
	"drawio_gif/pkg/redis"
	"drawio_gif/pkg/render"
)

// NewLogger 按日志配置创建日志管理器
func NewLogger(cfg config.LogConfig) (*controllers.LoggerManager, error) {
	logger := controllers.NewLoggerManager()
	if cfg.Level != "" {
		logger.SetLogLevel(cfg.Level)
	}
	if cfg.File != "" {
		if err := logger.SetLogFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

// NewExporter 创建浏览器渲染、帧捕获和 GIF 编码组成的转换器
func NewExporter(cfg config.Config, logger *controllers.LoggerManager) (*exporter.Exporter, error) {
	renderConfig, targets := cfg.RenderOptions()
	launcher := render.NewChromeLauncher(renderConfig)
	launcher.SetLogf(logger.Printf("DEBUG"))

	capturer, err := capture.New(capture.Options{
		Launcher: launcher,
		Config:   cfg.CaptureOptions(),
		Logf:     logger.Printf("WARN"),
	})
	if err != nil {
		return nil, err
	}

	exp := exporter.New(capturer, encoder.New(cfg.EncoderOptions()), targets)
	exp.SetLogf(logger.Printf("INFO"))
	return exp, nil
}

// Queue 异步任务队列及其依赖的连接
type Queue struct {
	*queue.QueueController
	redis *redis.RedisClient
	mongo *mongodb.MongoClient
}

// OpenQueue 连接 Redis 和 MongoDB 并创建队列控制器
// 返回的队列尚未启动，调用方按需调用 Start
func OpenQueue(ctx context.Context, cfg config.Config, converter queue.Converter, logger *controllers.LoggerManager) (*Queue, error) {
	rc, err := redis.NewRedisClient(ctx, &redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, err
	}

	mc, err := mongodb.NewMongoClient(ctx, &mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
	if err != nil {
		rc.Close()
		return nil, err
	}

	q := cfg.Queue
	qc := queue.NewQueueController(
		queue.NewRedisBuffer(rc, q.KeyPrefix),
		queue.NewMongoStore(mc, q.Collection),
		converter,
		controllers.NewWorkerManager(),
		queue.Config{
			WorkerCount:     q.WorkerCount,
			KeyPrefix:       q.KeyPrefix,
			Collection:      q.Collection,
			JobTimeout:      q.JobTimeout,
			PollInterval:    q.PollInterval,
			MetricsInterval: q.MetricsInterval,
			StatusTTL:       q.ResultTTL,
		},
	)
	qc.SetLogf(logger.Printf("INFO"))
	return &Queue{QueueController: qc, redis: rc, mongo: mc}, nil
}

// Close 停止工作协程并断开连接
func (q *Queue) Close(ctx context.Context) error {
	q.QueueController.Close()
	var errs []error
	if err := q.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭Redis连接失败: %w", err))
	}
	if err := q.mongo.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
