package mongodb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// MongoOptions MongoDB 客户端配置选项
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
	Ping        bool // 创建时检查连接
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 5,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if o.MinPoolSize > o.MaxPoolSize && o.MaxPoolSize > 0 {
		return fmt.Errorf("mongo min pool size exceeds max pool size")
	}
	return nil
}

func (o *MongoOptions) clientOptions() *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(o.Uri)
	if o.Username != "" || o.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username: o.Username,
			Password: o.Password,
		})
	}
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(o.MinPoolSize)
	}
	if o.Timeout > 0 {
		clientOpts.SetConnectTimeout(o.Timeout)
		clientOpts.SetServerSelectionTimeout(o.Timeout)
	}
	return clientOpts
}

// MongoFactory MongoDB 客户端工厂
type MongoFactory struct {
	options map[string]MongoOptions
	clients map[string]*mongo.Client
	logger  logging.Logger
	mu      sync.Mutex
}

// NewMongoFactory 创建客户端工厂
func NewMongoFactory(logger logging.Logger) *MongoFactory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MongoFactory{
		options: make(map[string]MongoOptions),
		clients: make(map[string]*mongo.Client),
		logger:  logger,
	}
}

// Register 登记客户端配置
func (f *MongoFactory) Register(opts MongoOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("mongo client '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的客户端名称
func (f *MongoFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 获取指定名称的客户端，首次调用时创建
func (f *MongoFactory) Get(name string) (*mongo.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("mongo client '%s' not found", name)
	}

	client, err := mongo.Connect(opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client '%s': %w", name, err)
	}

	if opts.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to connect to mongo '%s': %w", name, err)
		}
	}

	f.clients[name] = client
	f.logger.Info("Mongo client created",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "uri", Value: opts.Uri})
	return client, nil
}

// Each 遍历已创建的客户端
func (f *MongoFactory) Each(fn func(name string, client *mongo.Client)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name, client := range f.clients {
		fn(name, client)
	}
}

// Destroy 断开所有客户端
func (f *MongoFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for name, client := range f.clients {
		if err := client.Disconnect(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}

	f.clients = make(map[string]*mongo.Client)
	return errs
}
