package queue

import (
	"context"
	"errors"
	"time"

	"drawio_gif/pkg/mongodb"
	"drawio_gif/pkg/redis"
)

// ErrEmpty 队列为空
var ErrEmpty = errors.New("队列为空")

// Buffer 待处理任务缓冲区
type Buffer interface {
	Push(ctx context.Context, id string) error
	// Pop 取出下一个任务 ID，队列为空时返回 ErrEmpty
	Pop(ctx context.Context) (string, error)
	SetStatus(ctx context.Context, id, status string, ttl time.Duration) error
	// Status 读取缓存的状态，不存在时返回 ErrEmpty
	Status(ctx context.Context, id string) (string, error)
	// Pending 等待处理的任务数
	Pending(ctx context.Context) (int64, error)
}

// Store 任务记录和文件的持久化存储
type Store interface {
	SaveJob(ctx context.Context, job *Job) error
	// GetJob 不存在时返回 ErrJobNotFound
	GetJob(ctx context.Context, id string) (*Job, error)
	PutBlob(ctx context.Context, name string, data []byte) (string, error)
	GetBlob(ctx context.Context, id string) ([]byte, error)
	SaveMetrics(ctx context.Context, m MetricsSnapshot) error
}

// RedisBuffer 基于 Redis 列表的缓冲区
type RedisBuffer struct {
	client *redis.RedisClient
	prefix string
}

// NewRedisBuffer 创建 Redis 缓冲区
func NewRedisBuffer(client *redis.RedisClient, prefix string) *RedisBuffer {
	return &RedisBuffer{client: client, prefix: prefix}
}

func (b *RedisBuffer) pendingKey() string { return b.prefix + "pending" }

func (b *RedisBuffer) statusKey(id string) string { return b.prefix + "status:" + id }

func (b *RedisBuffer) Push(ctx context.Context, id string) error {
	return b.client.RPush(ctx, b.pendingKey(), id)
}

func (b *RedisBuffer) Pop(ctx context.Context) (string, error) {
	id, err := b.client.LPop(ctx, b.pendingKey())
	if redis.IsNil(err) {
		return "", ErrEmpty
	}
	return id, err
}

func (b *RedisBuffer) SetStatus(ctx context.Context, id, status string, ttl time.Duration) error {
	return b.client.SetEX(ctx, b.statusKey(id), status, ttl)
}

func (b *RedisBuffer) Status(ctx context.Context, id string) (string, error) {
	status, err := b.client.Get(ctx, b.statusKey(id))
	if redis.IsNil(err) {
		return "", ErrEmpty
	}
	return status, err
}

// Pending 待处理任务数量
func (b *RedisBuffer) Pending(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.pendingKey())
}

// MongoStore 基于 MongoDB 和 GridFS 的存储
type MongoStore struct {
	client     *mongodb.MongoClient
	collection string
}

// NewMongoStore 创建 MongoDB 存储
func NewMongoStore(client *mongodb.MongoClient, collection string) *MongoStore {
	return &MongoStore{client: client, collection: collection}
}

func (s *MongoStore) SaveJob(ctx context.Context, job *Job) error {
	return s.client.Upsert(ctx, s.collection, job.ID, job)
}

func (s *MongoStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.client.FindByID(ctx, s.collection, id, &job); err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) PutBlob(ctx context.Context, name string, data []byte) (string, error) {
	return s.client.UploadBlob(ctx, name, data)
}

func (s *MongoStore) GetBlob(ctx context.Context, id string) ([]byte, error) {
	return s.client.DownloadBlob(ctx, id)
}

func (s *MongoStore) SaveMetrics(ctx context.Context, m MetricsSnapshot) error {
	return s.client.Insert(ctx, s.collection+"_metrics", m)
}
