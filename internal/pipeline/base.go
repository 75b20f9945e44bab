package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job 定义一次转换作业
// 命令行和队列中的转换都按 Init -> Process -> Cleanup 的顺序执行
type Job interface {
	// Init 初始化作业
	// 读取输入、校验参数
	Init() error

	// Process 执行作业
	// ctx: 带整体超时的上下文，超时后渲染面会被强制关闭
	Process(ctx context.Context) error

	// Cleanup 清理资源
	// 无论 Process 是否成功都会执行
	Cleanup() error
}

// BaseJob 提供作业的通用属性
type BaseJob struct {
	Name        string        // 作业名称，用于日志
	Description string        // 作业描述
	Timeout     time.Duration // 作业整体超时时间，0 表示不限制
}

// Init 基础初始化实现
func (b *BaseJob) Init() error {
	return nil
}

// Process 基础处理实现
func (b *BaseJob) Process(ctx context.Context) error {
	return nil
}

// Cleanup 基础清理实现
func (b *BaseJob) Cleanup() error {
	return nil
}

// Run 按顺序执行初始化、处理和清理
// 超时是唯一的取消方式
func Run(parent context.Context, job Job, timeout time.Duration) (err error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel() // 确保资源被释放
	}

	// 执行初始化
	if err := job.Init(); err != nil {
		return fmt.Errorf("作业初始化失败: %w", err)
	}

	// 清理总是执行，清理错误与处理错误合并返回
	defer func() {
		if cerr := job.Cleanup(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("作业清理失败: %w", cerr))
		}
	}()

	if err := job.Process(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("作业超时 (%v): %w", timeout, err)
		}
		return err
	}
	return nil
}
