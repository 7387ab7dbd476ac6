package etcd

import (
	"fmt"
	"sort"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// EtcdClientOptions etcd 客户端配置选项
type EtcdClientOptions struct {
	Name               string        // 客户端名称
	Endpoints          []string      // etcd 服务器地址列表
	DialTimeout        time.Duration // 连接超时时间
	Username           string        // 用户名（可选）
	Password           string        // 密码（可选）
	AutoSyncInterval   time.Duration // 自动同步间隔（可选）
	MaxCallSendMsgSize int           // 最大发送消息大小（可选）
	MaxCallRecvMsgSize int           // 最大接收消息大小（可选）
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *EtcdClientOptions {
	return &EtcdClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *EtcdClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	return nil
}

func (o *EtcdClientOptions) clientConfig() clientv3.Config {
	config := clientv3.Config{
		Endpoints:   o.Endpoints,
		DialTimeout: o.DialTimeout,
	}

	// 设置认证信息
	if o.Username != "" {
		config.Username = o.Username
		config.Password = o.Password
	}
	if o.AutoSyncInterval > 0 {
		config.AutoSyncInterval = o.AutoSyncInterval
	}

	// 设置消息大小限制
	if o.MaxCallSendMsgSize > 0 {
		config.MaxCallSendMsgSize = o.MaxCallSendMsgSize
	}
	if o.MaxCallRecvMsgSize > 0 {
		config.MaxCallRecvMsgSize = o.MaxCallRecvMsgSize
	}
	return config
}

// EtcdClientFactory etcd 客户端工厂
type EtcdClientFactory struct {
	options map[string]EtcdClientOptions
	clients map[string]*clientv3.Client
	logger  logging.Logger
	mu      sync.Mutex
}

// NewEtcdClientFactory 创建客户端工厂
func NewEtcdClientFactory(logger logging.Logger) *EtcdClientFactory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EtcdClientFactory{
		options: make(map[string]EtcdClientOptions),
		clients: make(map[string]*clientv3.Client),
		logger:  logger,
	}
}

// Register 登记客户端配置
func (f *EtcdClientFactory) Register(opts EtcdClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("etcd client '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的客户端名称
func (f *EtcdClientFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 获取指定名称的客户端，首次调用时创建。
// 创建不等待连接建立，首个请求才会真正拨号。
func (f *EtcdClientFactory) Get(name string) (*clientv3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("etcd client '%s' not found", name)
	}

	client, err := clientv3.New(opts.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client '%s': %w", name, err)
	}
	f.clients[name] = client
	f.logger.Info("etcd client created",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "endpoints", Value: fmt.Sprintf("%v", opts.Endpoints)})
	return client, nil
}

// Each 遍历已创建的客户端
func (f *EtcdClientFactory) Each(fn func(name string, client *clientv3.Client)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name, client := range f.clients {
		fn(name, client)
	}
}

// Destroy 关闭所有 etcd 客户端
func (f *EtcdClientFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}

	// 清空客户端列表
	f.clients = make(map[string]*clientv3.Client)
	return errs
}
