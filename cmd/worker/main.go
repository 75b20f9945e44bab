package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drawio_gif/config"
	"drawio_gif/internal/app"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	workers := flag.Int("workers", 0, "工作协程数量，0 表示使用配置中的 queue.worker_count")
	flag.Parse()

	// 初始化配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}
	cfg := config.GlobalConfig
	if *workers > 0 {
		cfg.Queue.WorkerCount = *workers
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer logger.Close()

	exp, err := app.NewExporter(cfg, logger)
	if err != nil {
		log.Fatalf("转换器初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	q, err := app.OpenQueue(connectCtx, cfg, exp, logger)
	cancel()
	if err != nil {
		logger.Log("ERROR", "队列初始化失败: "+err.Error())
		logger.Close()
		os.Exit(1)
	}

	q.Start()
	logger.Logf("INFO", "队列工作进程已启动: %d 个工作协程", cfg.Queue.WorkerCount)

	<-ctx.Done()
	logger.Log("INFO", "收到退出信号，等待正在处理的任务结束...")

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.Close(closeCtx); err != nil {
		logger.Log("ERROR", "关闭队列失败: "+err.Error())
	}

	m := q.GetMetrics()
	logger.Logf("INFO", "队列已关闭: 处理 %d 个任务, 失败 %d 个", m.ProcessedItems, m.FailedItems)
}
