package controllers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerTo(&buf)
	lm.SetLogLevel("warn")

	lm.Log("INFO", "hidden")
	lm.Log("WARN", "shown")
	lm.Printf("ERROR")("page %d failed", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO 日志不应输出: %s", out)
	}
	if !strings.Contains(out, "[WARN] shown") || !strings.Contains(out, "[ERROR] page 3 failed") {
		t.Errorf("日志输出 = %s", out)
	}
}

func TestTaskManagerRunLimit(t *testing.T) {
	tm := NewTaskManager(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tm.Run(context.Background(), "a", 0, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := tm.Run(context.Background(), "b", 0, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrTooManyTasks) {
		t.Errorf("Run() error = %v, want ErrTooManyTasks", err)
	}
	if tm.ActiveTasks() != 1 {
		t.Errorf("ActiveTasks() = %d, want 1", tm.ActiveTasks())
	}

	close(release)
	wg.Wait()
	if tm.ActiveTasks() != 0 {
		t.Errorf("ActiveTasks() = %d, want 0", tm.ActiveTasks())
	}
}

func TestTaskManagerRunTimeout(t *testing.T) {
	tm := NewTaskManager(2)
	err := tm.Run(context.Background(), "slow", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
}

func TestTaskManagerShutdown(t *testing.T) {
	tm := NewTaskManager(1)
	done := make(chan error, 1)
	go func() {
		done <- tm.Run(context.Background(), "req", 0, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	deadline := time.Now().Add(time.Second)
	for tm.ActiveTasks() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	tm.Shutdown()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want Canceled", err)
	}
	if n := tm.ActiveTasks(); n != 0 {
		t.Errorf("ActiveTasks() = %d, want 0", n)
	}
}

func TestWorkerManager(t *testing.T) {
	wm := NewWorkerManager()
	wm.SetStatus("w-1", WorkerIdle, "")
	wm.SetStatus("w-0", WorkerBusy, "job-1")

	list := wm.ListWorkers()
	if len(list) != 2 || list[0].ID != "w-0" || list[0].JobID != "job-1" {
		t.Errorf("ListWorkers() = %+v", list)
	}
	if wm.CountByStatus(WorkerBusy) != 1 {
		t.Errorf("CountByStatus(busy) = %d", wm.CountByStatus(WorkerBusy))
	}

	wm.SetStatus("w-0", WorkerIdle, "")
	if wm.CountByStatus(WorkerBusy) != 0 || wm.CountByStatus(WorkerIdle) != 2 {
		t.Error("状态更新后计数错误")
	}
}
