package api

import "time"

// Config HTTP 服务配置
type Config struct {
	RequestTimeout time.Duration // 单次转换超时
	MaxUploadBytes int64         // 上传文件大小上限
}

// DefaultConfig 返回默认服务配置
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Minute,
		MaxUploadBytes: 10 << 20,
	}
}
