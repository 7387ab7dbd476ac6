package etcd

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// Builder Etcd 客户端配置构建器
type Builder struct {
	configs []EtcdClientOptions
	names   map[string]bool
	errors  error
}

// NewBuilder 创建 Etcd 构建器
func NewBuilder() *Builder {
	return &Builder{
		names: make(map[string]bool),
	}
}

// AddClient 添加一个 etcd 客户端配置
func (b *Builder) AddClient(name string, configure func(*EtcdClientOptions)) *Builder {
	// 检查名称冲突
	if b.names[name] {
		b.errors = multierr.Append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
		return b
	}

	// 创建默认配置
	opts := NewDefaultOptions(name)

	// 应用用户配置
	if configure != nil {
		configure(opts)
	}

	// 验证配置
	if err := opts.Validate(); err != nil {
		b.errors = multierr.Append(b.errors, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = true
	b.configs = append(b.configs, *opts)
	return b
}

// Err 返回配置过程中累积的错误
func (b *Builder) Err() error {
	if b.errors != nil {
		return fmt.Errorf("etcd configuration errors: %w", b.errors)
	}
	return nil
}

// Names 按添加顺序返回客户端名称
func (b *Builder) Names() []string {
	names := make([]string, len(b.configs))
	for i, c := range b.configs {
		names[i] = c.Name
	}
	return names
}

// Build 构建 Etcd 客户端工厂
func (b *Builder) Build(logger logging.Logger) (*EtcdClientFactory, error) {
	// 检查是否有配置错误
	if err := b.Err(); err != nil {
		return nil, err
	}

	factory := NewEtcdClientFactory(logger)
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, fmt.Errorf("failed to register etcd client '%s': %w", opts.Name, err)
		}
	}
	return factory, nil
}
