// Package queue 通过 Redis 列表批量执行导入任务
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/newsflow/draft-import-service/internal/document"
)

// 默认队列名
const (
	DefaultTaskQueue   = "draft:import_tasks"
	DefaultResultQueue = "draft:import_results"
)

// ImportTask 导入任务。HTML 为空时按 URL 抓取
type ImportTask struct {
	ID        string    `json:"id"`
	HTML      string    `json:"html,omitempty"`
	URL       string    `json:"url,omitempty"`
	Sanitize  bool      `json:"sanitize"`
	Policy    string    `json:"policy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ImportResult 导入结果
type ImportResult struct {
	TaskID    string             `json:"taskId"`
	URL       string             `json:"url,omitempty"`
	Success   bool               `json:"success"`
	Document  *document.Document `json:"document,omitempty"`
	HTML      string             `json:"html,omitempty"`
	PlainText string             `json:"plainText,omitempty"`
	Policy    string             `json:"policy,omitempty"`
	Duration  int64              `json:"duration"`
	Error     string             `json:"error,omitempty"`
}

// RedisQueue Redis 队列
type RedisQueue struct {
	client       *redis.Client
	taskQueue    string
	resultQueue  string
	consumerName string
	blockTimeout time.Duration
	logger       *slog.Logger
}

// NewRedisQueue 使用已有客户端创建队列
func NewRedisQueue(client *redis.Client, consumerName string, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:       client,
		taskQueue:    DefaultTaskQueue,
		resultQueue:  DefaultResultQueue,
		consumerName: consumerName,
		blockTimeout: 30 * time.Second,
		logger:       logger.With("consumer", consumerName),
	}
}

// Dial 解析 URL、测试连接后创建队列
func Dial(redisURL, consumerName string, logger *slog.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisQueue(client, consumerName, logger), nil
}

// Enqueue 提交任务，缺省 ID 自动生成
func (q *RedisQueue) Enqueue(ctx context.Context, task *ImportTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.taskQueue, data).Err()
}

// ConsumeTask 阻塞等待任务，超时返回 nil
func (q *RedisQueue) ConsumeTask(ctx context.Context) (*ImportTask, error) {
	result, err := q.client.BLPop(ctx, q.blockTimeout, q.taskQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	if len(result) < 2 {
		return nil, nil
	}

	var task ImportTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// PublishResult 发布结果
func (q *RedisQueue) PublishResult(ctx context.Context, result *ImportResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.resultQueue, data).Err()
}

// PopResult 非阻塞取出一个结果，没有结果时返回 nil
func (q *RedisQueue) PopResult(ctx context.Context) (*ImportResult, error) {
	data, err := q.client.LPop(ctx, q.resultQueue).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var result ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close 关闭连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// TaskHandler 任务处理函数
type TaskHandler func(ctx context.Context, task *ImportTask) *ImportResult

// StartConsumer 启动消费者，ctx 取消后等待进行中的任务结束再返回
func (q *RedisQueue) StartConsumer(ctx context.Context, handler TaskHandler, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	q.logger.Info("queue consumer started", "queue", q.taskQueue, "concurrency", concurrency)

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("queue consumer stopped")
			return
		default:
		}

		task, err := q.ConsumeTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.logger.Error("consume task failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		if task == nil {
			continue
		}

		// 获取并发控制信号量
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(t *ImportTask) {
			defer wg.Done()
			defer func() { <-sem }()

			result := handler(ctx, t)
			// 结果在取消后也要发布出去
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := q.PublishResult(pubCtx, result); err != nil {
				q.logger.Error("publish result failed", "task_id", t.ID, "error", err)
			}
		}(task)
	}
}

// GetQueueLength 获取任务队列长度
func (q *RedisQueue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.taskQueue).Result()
}
