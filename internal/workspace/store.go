package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound 工作区不存在或已过期
var ErrNotFound = errors.New("workspace not found")

// Store 工作区存储
type Store interface {
	Get(ctx context.Context, id string) (*Workspace, error)
	Save(ctx context.Context, ws *Workspace) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore 进程内存储，保存序列化后的副本
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Workspace, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (s *MemoryStore) Save(_ context.Context, ws *Workspace) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	s.mu.Lock()
	s.items[ws.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Len 当前工作区数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

const keyPrefix = "draft:workspace:"

// RedisStore Redis 存储，值为 JSON，每次保存刷新 TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 使用已有客户端
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedisStore 解析 URL 并测试连接
func DialRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
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
	return NewRedisStore(client, ttl), nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Workspace, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workspace %s: %w", id, err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, ws *Workspace) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+ws.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save workspace %s: %w", ws.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decode(data []byte) (*Workspace, error) {
	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("decode workspace: %w", err)
	}
	return &ws, nil
}
