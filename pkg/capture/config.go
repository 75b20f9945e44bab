package capture

import "time"

// Config 捕获重试配置
type Config struct {
	MaxAttempts int           // 最大尝试次数
	BaseBackoff time.Duration // 第一次重试前的等待时间
	MaxBackoff  time.Duration // 重试等待时间上限
}

// DefaultConfig 返回默认配置：最多 3 次，1s 起步指数退避，上限 5s
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  5 * time.Second,
	}
}

// Backoff 计算第 attempt 次失败后的等待时间
// min(base * 2^(attempt-1), max)
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if delay > c.MaxBackoff {
		return c.MaxBackoff
	}
	return delay
}
