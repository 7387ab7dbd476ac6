package mongodb

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// Builder MongoDB 配置构建器
type Builder struct {
	configs []MongoOptions
	names   map[string]bool
	errors  error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{
		names: make(map[string]bool),
	}
}

// Add 添加 MongoDB 客户端配置
func (b *Builder) Add(name string, uri string, configure func(*MongoOptions)) *Builder {
	if b.names[name] {
		b.errors = multierr.Append(b.errors, fmt.Errorf("mongo client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = multierr.Append(b.errors, fmt.Errorf("invalid mongo configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = true
	b.configs = append(b.configs, *opts)
	return b
}

// Err 返回配置过程中累积的错误
func (b *Builder) Err() error {
	if b.errors != nil {
		return fmt.Errorf("mongo configuration errors: %w", b.errors)
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

// Build 构建 MongoDB 工厂
func (b *Builder) Build(logger logging.Logger) (*MongoFactory, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}

	factory := NewMongoFactory(logger)
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, fmt.Errorf("failed to register mongo client '%s': %w", opts.Name, err)
		}
	}
	return factory, nil
}
