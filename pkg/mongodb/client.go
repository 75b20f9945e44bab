// Package mongodb 提供MongoDB数据库操作的封装
// 包含连接管理、文档存储和 GridFS 文件存储
package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ErrNotFound 文档或文件不存在
var ErrNotFound = errors.New("记录不存在")

// MongoClient MongoDB客户端管理器
// 负责维护与MongoDB的连接和操作
type MongoClient struct {
	client   *mongo.Client   // MongoDB官方客户端实例
	database *mongo.Database // 当前数据库
	bucket   *gridfs.Bucket  // 二进制文件存储
	timeout  time.Duration   // 单次操作超时时间
	blobMu   sync.Mutex      // GridFS 读写截止时间是存储级别的，需要串行
}

// Config MongoDB连接配置
// 包含建立MongoDB连接所需的所有参数
type Config struct {
	URI      string        // MongoDB连接字符串，格式如：mongodb://host:port
	Database string        // 要连接的数据库名称
	Timeout  time.Duration // 连接和操作的超时时间
}

// NewMongoClient 创建新的MongoDB客户端实例
// 参数:
//   - ctx: 控制连接过程的上下文
//   - cfg: MongoDB连接配置，包含连接信息和超时设置
//
// 返回:
//   - *MongoClient: 创建的客户端实例
//   - error: 如果连接失败则返回错误
func NewMongoClient(ctx context.Context, cfg *Config) (*MongoClient, error) {
	// 配置MongoDB客户端选项
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetWriteConcern(writeconcern.New(
			writeconcern.W(1),                     // 写入确认级别
			writeconcern.J(false),                 // 不等待日志写入
			writeconcern.WTimeout(10*time.Second), // 写入超时时间
		)).
		SetMaxPoolSize(20).  // 连接池大小
		SetMinPoolSize(2).   // 最小连接数
		SetRetryWrites(true) // 启用重试写入

	// 创建带超时的上下文
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// 连接到MongoDB服务器
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("MongoDB连接失败: %w", err)
	}

	// 测试连接
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB Ping失败: %w", err)
	}

	database := client.Database(cfg.Database)
	bucket, err := gridfs.NewBucket(database)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("创建GridFS存储失败: %w", err)
	}

	log.Printf("MongoDB连接成功: %s", cfg.URI)

	return &MongoClient{
		client:   client,
		database: database,
		bucket:   bucket,
		timeout:  cfg.Timeout,
	}, nil
}

// withTimeout 为单次操作附加超时
func (m *MongoClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Upsert 按 _id 写入文档，不存在时插入
func (m *MongoClient) Upsert(ctx context.Context, collection string, id interface{}, doc interface{}) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	coll := m.database.Collection(collection)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("保存到MongoDB失败: %w", err)
	}
	return nil
}

// FindByID 按 _id 读取文档
func (m *MongoClient) FindByID(ctx context.Context, collection string, id interface{}, out interface{}) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err := m.database.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("从MongoDB读取失败: %w", err)
	}
	return nil
}

// Insert 插入一条文档
func (m *MongoClient) Insert(ctx context.Context, collection string, doc interface{}) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.database.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("写入MongoDB失败: %w", err)
	}
	return nil
}

// UploadBlob 保存二进制数据到 GridFS，返回文件 ID
func (m *MongoClient) UploadBlob(ctx context.Context, name string, data []byte) (string, error) {
	m.blobMu.Lock()
	defer m.blobMu.Unlock()

	if deadline, ok := deadlineOf(ctx, m.timeout); ok {
		if err := m.bucket.SetWriteDeadline(deadline); err != nil {
			return "", err
		}
	}
	id, err := m.bucket.UploadFromStream(name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("上传文件到GridFS失败: %w", err)
	}
	return id.Hex(), nil
}

// DownloadBlob 从 GridFS 读取二进制数据
func (m *MongoClient) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: 文件 ID 无效 %q", ErrNotFound, id)
	}
	m.blobMu.Lock()
	defer m.blobMu.Unlock()

	if deadline, ok := deadlineOf(ctx, m.timeout); ok {
		if err := m.bucket.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := m.bucket.DownloadToStream(oid, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("从GridFS下载文件失败: %w", err)
	}
	return buf.Bytes(), nil
}

// deadlineOf 取 ctx 截止时间和超时时间中较早的一个
func deadlineOf(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		d := time.Now().Add(timeout)
		if !ok || d.Before(deadline) {
			return d, true
		}
	}
	return deadline, ok
}

// Close 关闭MongoDB连接
// 在程序结束时调用，确保资源被正确释放
// 返回:
//   - error: 如果关闭连接时发生错误则返回
func (m *MongoClient) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
