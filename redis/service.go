package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// RedisClientOptions Redis 客户端配置选项
type RedisClientOptions struct {
	Name         string        // 客户端名称
	Addr         string        // Redis 服务器地址 (host:port)
	Password     string        // 密码（可选）
	DB           int           // 数据库编号
	DialTimeout  time.Duration // 连接超时时间
	ReadTimeout  time.Duration // 读取超时时间
	WriteTimeout time.Duration // 写入超时时间
	PoolSize     int           // 连接池大小
	MinIdleConns int           // 最小空闲连接数
	MaxRetries   int           // 最大重试次数
	Ping         bool          // 创建时检查连接
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		Ping:         true,
	}
}

// Validate 验证配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	return nil
}

// RedisClientFactory Redis 客户端工厂，客户端在首次 Get 时创建，Destroy 时关闭
type RedisClientFactory struct {
	options map[string]RedisClientOptions
	clients map[string]*redis.Client
	logger  logging.Logger
	mu      sync.Mutex
}

// NewRedisClientFactory 创建客户端工厂
func NewRedisClientFactory(logger logging.Logger) *RedisClientFactory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RedisClientFactory{
		options: make(map[string]RedisClientOptions),
		clients: make(map[string]*redis.Client),
		logger:  logger,
	}
}

// Register 登记客户端配置
func (f *RedisClientFactory) Register(opts RedisClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 检查是否已存在
	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("redis client '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的客户端名称
func (f *RedisClientFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 获取指定名称的 Redis 客户端
func (f *RedisClientFactory) Get(name string) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}
	opts, exists := f.options[name]
	if !exists {
		return nil, fmt.Errorf("redis client '%s' not found", name)
	}

	// 创建客户端
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	// 测试连接
	if opts.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis '%s': %w", name, err)
		}
	}

	f.clients[name] = client
	f.logger.Info("Redis client created",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "addr", Value: opts.Addr},
		logging.Field{Key: "db", Value: opts.DB})
	return client, nil
}

// Destroy 关闭所有 Redis 客户端，容器关闭时调用
func (f *RedisClientFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}

	// 清空客户端列表
	f.clients = make(map[string]*redis.Client)
	return errs
}
