package redis

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

// createTestRedisClient 需要设置 REDIS_TEST_HOST，可选 REDIS_TEST_PORT
func createTestRedisClient(t *testing.T) *RedisClient {
	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" || testing.Short() {
		t.Skip("未设置 REDIS_TEST_HOST")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_TEST_PORT")); err == nil {
		port = p
	}
	client, err := NewRedisClient(context.Background(), &Config{
		Host:    host,
		Port:    port,
		DB:      1, // 使用不同的数据库避免影响生产环境
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("创建Redis客户端失败: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestListOperations(t *testing.T) {
	client := createTestRedisClient(t)
	ctx := context.Background()
	const key = "drawio_gif_test:pending"
	client.RemoveKey(ctx, key)
	defer client.RemoveKey(ctx, key)

	for _, v := range []string{"a", "b"} {
		if err := client.RPush(ctx, key, v); err != nil {
			t.Fatalf("RPush() error = %v", err)
		}
	}
	if n, err := client.LLen(ctx, key); err != nil || n != 2 {
		t.Errorf("LLen() = %d, %v; want 2", n, err)
	}
	if v, err := client.LPop(ctx, key); err != nil || v != "a" {
		t.Errorf("LPop() = %q, %v; want a", v, err)
	}
	client.LPop(ctx, key)
	if _, err := client.LPop(ctx, key); !IsNil(err) {
		t.Errorf("空列表 LPop() error = %v, want redis.Nil", err)
	}
}

func TestSetEX(t *testing.T) {
	client := createTestRedisClient(t)
	ctx := context.Background()
	const key = "drawio_gif_test:status"
	defer client.RemoveKey(ctx, key)

	if err := client.SetEX(ctx, key, "processing", time.Minute); err != nil {
		t.Fatalf("SetEX() error = %v", err)
	}
	if v, err := client.Get(ctx, key); err != nil || v != "processing" {
		t.Errorf("Get() = %q, %v", v, err)
	}
}
