package queue

import "time"

// Config 队列控制器配置
type Config struct {
	WorkerCount     int           // 工作协程数量
	KeyPrefix       string        // Redis键前缀
	Collection      string        // MongoDB集合名
	JobTimeout      time.Duration // 单个任务的超时时间
	PollInterval    time.Duration // 队列为空时的轮询间隔
	MetricsInterval time.Duration // 指标收集间隔
	StatusTTL       time.Duration // 状态缓存过期时间
}

// DefaultConfig 返回默认队列配置
func DefaultConfig() Config {
	return Config{
		WorkerCount:     1,
		KeyPrefix:       "drawio_gif:",
		Collection:      "jobs",
		JobTimeout:      10 * time.Minute,
		PollInterval:    time.Second,
		MetricsInterval: time.Minute,
		StatusTTL:       24 * time.Hour,
	}
}
