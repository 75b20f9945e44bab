// controllers/worker_manager.go
package controllers

import (
	"sort"
	"sync"
	"time"
)

// 工作协程状态
const (
	WorkerIdle    = "idle"
	WorkerBusy    = "busy"
	WorkerOffline = "offline"
)

// Worker 表示一个队列工作协程的状态
// 包括 ID、当前任务和最近一次状态变化时间

type Worker struct {
	ID        string    `json:"id"`               // 工作协程唯一标识符
	Status    string    `json:"status"`           // 状态 (idle, busy, offline)
	JobID     string    `json:"job_id,omitempty"` // 正在处理的任务
	UpdatedAt time.Time `json:"updated_at"`       // 最近一次状态变化时间
}

// WorkerManager 用于管理队列工作协程的状态
// 提供登记、状态更新和查询功能

type WorkerManager struct {
	workers    map[string]*Worker // 存储工作协程信息的映射
	workersMux sync.RWMutex       // 保护工作协程操作的互斥锁
}

// NewWorkerManager 创建并初始化一个新的 WorkerManager
func NewWorkerManager() *WorkerManager {
	return &WorkerManager{
		workers: make(map[string]*Worker),
	}
}

// SetStatus 更新工作协程状态，未登记的工作协程自动登记
// id: 工作协程标识符
// status: 新状态
// jobID: 正在处理的任务，空闲时为空
func (wm *WorkerManager) SetStatus(id, status, jobID string) {
	wm.workersMux.Lock()
	defer wm.workersMux.Unlock()

	w, ok := wm.workers[id]
	if !ok {
		w = &Worker{ID: id}
		wm.workers[id] = w
	}
	w.Status = status
	w.JobID = jobID
	w.UpdatedAt = time.Now()
}

// ListWorkers 按 ID 排序返回所有工作协程的快照
func (wm *WorkerManager) ListWorkers() []Worker {
	wm.workersMux.RLock()
	defer wm.workersMux.RUnlock()

	out := make([]Worker, 0, len(wm.workers))
	for _, w := range wm.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountByStatus 统计指定状态的工作协程数量
func (wm *WorkerManager) CountByStatus(status string) int {
	wm.workersMux.RLock()
	defer wm.workersMux.RUnlock()

	n := 0
	for _, w := range wm.workers {
		if w.Status == status {
			n++
		}
	}
	return n
}
