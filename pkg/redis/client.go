// Package redis 提供Redis连接和操作的封装
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient Redis客户端管理器
type RedisClient struct {
	client *redis.Client // Redis客户端实例
}

// Config Redis连接配置
type Config struct {
	Host     string        // Redis服务器地址
	Port     int           // Redis服务器端口
	Password string        // Redis密码，如果有的话
	DB       int           // 要使用的数据库编号
	Timeout  time.Duration // 连接超时时间
}

// NewRedisClient 创建新的Redis客户端实例
func NewRedisClient(ctx context.Context, cfg *Config) (*RedisClient, error) {
	// 创建Redis客户端
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	log.Printf("Redis连接成功: %s:%d", cfg.Host, cfg.Port)

	return &RedisClient{client: client}, nil
}

// IsNil 判断是否为键不存在或列表为空
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close 关闭Redis连接
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping 测试Redis连接
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RPush 将数据添加到列表末尾
func (r *RedisClient) RPush(ctx context.Context, key string, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

// LPop 从列表头部弹出数据，列表为空时返回 redis.Nil
func (r *RedisClient) LPop(ctx context.Context, key string) (string, error) {
	return r.client.LPop(ctx, key).Result()
}

// LLen 获取列表长度
func (r *RedisClient) LLen(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, key).Result()
}

// SetEX 设置键值对，带过期时间
func (r *RedisClient) SetEX(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.SetEX(ctx, key, value, expiration).Err()
}

// Get 获取键值，键不存在时返回 redis.Nil
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// RemoveKey 删除指定的key
func (r *RedisClient) RemoveKey(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除Redis key失败: %w", err)
	}
	return nil
}
