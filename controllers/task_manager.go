// controllers/task_manager.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTooManyTasks 超过最大任务限制
var ErrTooManyTasks = errors.New("超过最大任务限制")

// TaskManager 管理转换任务的生命周期，限制同时运行的任务数量
// tasks: 存储任务 ID 和对应的取消函数
// tasksMux: 读写锁，保护任务的并发安全访问
// activeTasks: 用于统计当前正在运行的任务数量
// maxTasks: 限制同时运行的任务数量，避免浏览器进程过多

type TaskManager struct {
	tasks       map[string]context.CancelFunc // 存储任务 ID 和其取消函数
	tasksMux    sync.RWMutex                  // 保护任务操作的互斥锁
	activeTasks int                           // 当前正在运行的任务数量
	maxTasks    int                           // 最大允许的任务数量
}

// NewTaskManager 创建一个新的 TaskManager 实例
func NewTaskManager(maxTasks int) *TaskManager {
	if maxTasks <= 0 {
		maxTasks = 1
	}
	return &TaskManager{
		tasks:    make(map[string]context.CancelFunc),
		maxTasks: maxTasks,
	}
}

// register 登记任务并返回任务上下文
func (tm *TaskManager) register(parent context.Context, taskId string, timeout time.Duration) (context.Context, error) {
	tm.tasksMux.Lock()
	defer tm.tasksMux.Unlock()

	// 检查是否超过最大任务限制
	if tm.activeTasks >= tm.maxTasks {
		return nil, fmt.Errorf("任务启动失败: %w %d", ErrTooManyTasks, tm.maxTasks)
	}
	if _, exists := tm.tasks[taskId]; exists {
		return nil, fmt.Errorf("任务启动失败: 任务 %s 已存在", taskId)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	tm.tasks[taskId] = cancel
	tm.activeTasks++
	return ctx, nil
}

// Run 同步运行一个任务，超时或取消时 ctx 结束
// taskId: 任务的唯一标识符
// timeout: 任务超时时间，0 表示不限制
func (tm *TaskManager) Run(parent context.Context, taskId string, timeout time.Duration, task func(context.Context) error) error {
	ctx, err := tm.register(parent, taskId, timeout)
	if err != nil {
		return err
	}
	defer tm.completeTask(taskId)
	return task(ctx)
}

// ActiveTasks 当前正在运行的任务数量
func (tm *TaskManager) ActiveTasks() int {
	tm.tasksMux.RLock()
	defer tm.tasksMux.RUnlock()
	return tm.activeTasks
}

// Shutdown 取消所有正在运行的任务
func (tm *TaskManager) Shutdown() {
	tm.tasksMux.RLock()
	defer tm.tasksMux.RUnlock()
	for _, cancel := range tm.tasks {
		cancel()
	}
}

// completeTask 处理任务完成的清理逻辑
// taskId: 任务的唯一标识符
func (tm *TaskManager) completeTask(taskId string) {
	tm.tasksMux.Lock()
	defer tm.tasksMux.Unlock()

	if cancel, ok := tm.tasks[taskId]; ok {
		cancel()
		delete(tm.tasks, taskId)
		tm.activeTasks--
	}
}
