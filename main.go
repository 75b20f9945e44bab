package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"drawio_gif/config"
	"drawio_gif/controllers"
	"drawio_gif/internal/app"
	"drawio_gif/pkg/api"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		stop()
		log.Fatalf("服务异常退出: %v", err)
	}
}

// run 启动服务直到 ctx 结束，返回前关闭队列和日志
func run(ctx context.Context, configPath string) error {
	// 初始化配置
	if err := config.LoadConfig(configPath); err != nil {
		return fmt.Errorf("配置初始化失败: %w", err)
	}
	cfg := config.GlobalConfig

	// 创建并初始化日志管理器
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Close() // 确保程序退出时关闭日志文件

	exp, err := app.NewExporter(cfg, logger)
	if err != nil {
		return fmt.Errorf("转换器初始化失败: %w", err)
	}

	// 创建任务管理器，限制同时进行的转换数
	taskManager := controllers.NewTaskManager(cfg.Server.MaxConversions)
	defer taskManager.Shutdown()

	var jobs api.Jobs
	if cfg.Queue.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		q, err := app.OpenQueue(connectCtx, cfg, exp, logger)
		cancel()
		if err != nil {
			return fmt.Errorf("队列初始化失败: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := q.Close(closeCtx); err != nil {
				logger.Log("ERROR", "关闭队列失败: "+err.Error())
			}
		}()
		q.Start()
		jobs = q
	}

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(exp, jobs, taskManager, logger, api.Config{
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Logf("INFO", "服务已启动: %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Log("ERROR", "服务异常退出: "+err.Error())
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Log("INFO", "收到退出信号，正在关闭服务...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭服务失败: %w", err)
	}
	return nil
}
